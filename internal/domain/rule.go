package domain

// RuleConfig defines an operator risk rule evaluated with CEL on top of
// the built-in scorer rules.
type RuleConfig struct {
	ID          string `json:"id" validate:"required"`
	Name        string `json:"name" validate:"required"`
	Description string `json:"description"`

	// CEL expression; must evaluate to bool, int or double.
	// A rule hits when the result is true or greater than zero.
	Expression string `json:"expression" validate:"required"`

	// Weight is the number of risk points added when the rule hits.
	Weight int `json:"weight" validate:"gte=0,lte=100"`

	// Reason and Factor/Risk describe the hit in the analysis output.
	Reason string    `json:"reason" validate:"required"`
	Factor string    `json:"factor"`
	Risk   RiskLevel `json:"risk" validate:"omitempty,oneof=Low Medium High"`

	// Whether rule is active
	Enabled bool `json:"enabled"`
}
