package rules

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/opensource-finance/kavach/internal/domain"
)

func testTx(amount float64) *domain.Transaction {
	return &domain.Transaction{
		ID:       "tx-001",
		UserID:   "user-001",
		Merchant: "Flipkart",
		Amount:   amount,
		Time:     "2:14 AM",
		Source:   "UPI",
		Category: "Shopping",
	}
}

func TestEngineCreation(t *testing.T) {
	engine, err := NewEngine(5)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	defer engine.Close()

	if engine.RulesCount() != 0 {
		t.Errorf("expected 0 rules, got %d", engine.RulesCount())
	}
	if hits := engine.Evaluate(context.Background(), testTx(100), domain.NoRecentData()); hits != nil {
		t.Errorf("expected no hits from an empty engine, got %v", hits)
	}
}

func TestLoadRule(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	rule := &domain.RuleConfig{
		ID:         "test-rule-001",
		Name:       "Test Rule",
		Expression: "amount > 100.0",
		Weight:     10,
		Enabled:    true,
	}

	if err := engine.LoadRule(rule); err != nil {
		t.Fatalf("failed to load rule: %v", err)
	}
	if engine.RulesCount() != 1 {
		t.Errorf("expected 1 rule, got %d", engine.RulesCount())
	}

	// Disabling unloads it
	rule.Enabled = false
	if err := engine.LoadRule(rule); err != nil {
		t.Fatalf("failed to load disabled rule: %v", err)
	}
	if engine.RulesCount() != 0 {
		t.Errorf("expected 0 rules after disabling, got %d", engine.RulesCount())
	}
}

func TestLoadInvalidRule(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	tests := []struct {
		name       string
		expression string
	}{
		{"syntax error", "this is not valid CEL !!!"},
		{"unknown variable", "debtor_id == creditor_id"},
		{"string result", "merchant + source"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := &domain.RuleConfig{ID: "invalid-rule", Expression: tt.expression, Enabled: true}
			if err := engine.LoadRule(rule); err == nil {
				t.Error("expected error for invalid rule")
			}
			if err := engine.ValidateRule(rule); err == nil {
				t.Error("expected ValidateRule to reject the rule")
			}
		})
	}

	if engine.RulesCount() != 0 {
		t.Errorf("invalid rules must not be loaded, got %d", engine.RulesCount())
	}
}

func TestValidateRuleNil(t *testing.T) {
	engine, _ := NewEngine(5)
	if err := engine.ValidateRule(nil); err == nil {
		t.Error("expected error for nil rule")
	}
}

func TestEvaluateBooleanRule(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	engine.LoadRule(&domain.RuleConfig{
		ID:         "large-upi",
		Name:       "Large UPI payment",
		Expression: `source == "UPI" && amount > 50000.0`,
		Weight:     15,
		Reason:     "Very large UPI payment",
		Factor:     "Payment Method",
		Risk:       domain.RiskHigh,
		Enabled:    true,
	})

	ctx := context.Background()

	if hits := engine.Evaluate(ctx, testTx(500), domain.NoRecentData()); len(hits) != 0 {
		t.Errorf("expected no hits for small amount, got %d", len(hits))
	}

	hits := engine.Evaluate(ctx, testTx(60000), domain.NoRecentData())
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	hit := hits[0]
	if hit.RuleID != "large-upi" || hit.Reason != "Very large UPI payment" {
		t.Errorf("unexpected hit: %+v", hit)
	}
	if hit.Factor.Factor != "Payment Method" || hit.Factor.Risk != domain.RiskHigh || hit.Factor.Weight != 15 {
		t.Errorf("unexpected factor: %+v", hit.Factor)
	}
}

func TestEvaluateNumericRule(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	engine.LoadRule(&domain.RuleConfig{
		ID:         "night-score",
		Name:       "Night score",
		Expression: "hour < 5 ? 1.0 : 0.0",
		Weight:     5,
		Enabled:    true,
	})

	ctx := context.Background()

	hits := engine.Evaluate(ctx, testTx(100), domain.NoRecentData())
	if len(hits) != 1 {
		t.Fatalf("expected hit at 2:14 AM, got %d", len(hits))
	}
	// Defaults when the rule leaves presentation fields empty
	if hits[0].Reason != "Night score" || hits[0].Factor.Factor != DefaultFactor || hits[0].Factor.Risk != domain.RiskMedium {
		t.Errorf("unexpected defaults: %+v", hits[0])
	}

	tx := testTx(100)
	tx.Time = "2:14 PM"
	if hits := engine.Evaluate(ctx, tx, domain.NoRecentData()); len(hits) != 0 {
		t.Errorf("expected no hit at 2:14 PM, got %d", len(hits))
	}
}

func TestVelocityRule(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	engine.LoadRule(&domain.RuleConfig{
		ID:         "velocity-check-001",
		Name:       "Transaction Velocity Check",
		Expression: "velocity_count > 10 ? 2 : (velocity_count > 5 ? 1 : 0)",
		Weight:     10,
		Enabled:    true,
	})

	ctx := context.Background()
	tests := []struct {
		name     string
		velocity domain.VelocityCheck
		wantHit  bool
	}{
		{"no data", domain.NoRecentData(), false},
		{"quiet", domain.RecentCount(2, time.Hour), false},
		{"elevated", domain.RecentCount(6, time.Hour), true},
		{"high", domain.RecentCount(15, time.Hour), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits := engine.Evaluate(ctx, testTx(100), tt.velocity)
			if got := len(hits) == 1; got != tt.wantHit {
				t.Errorf("hit = %v, want %v", got, tt.wantHit)
			}
		})
	}
}

func TestRuntimeErrorIsNotAHit(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	// Division by zero fails at evaluation time
	engine.LoadRule(&domain.RuleConfig{
		ID:         "div-zero",
		Expression: "100 / (velocity_count - velocity_count) > 1",
		Enabled:    true,
	})

	if hits := engine.Evaluate(context.Background(), testTx(100), domain.NoRecentData()); len(hits) != 0 {
		t.Errorf("expected failing rule to be skipped, got %v", hits)
	}
}

func TestParallelExecutionSortedByID(t *testing.T) {
	engine, _ := NewEngine(3)
	defer engine.Close()

	for i := 9; i >= 0; i-- {
		engine.LoadRule(&domain.RuleConfig{
			ID:         fmt.Sprintf("rule-%d", i),
			Name:       fmt.Sprintf("Rule %d", i),
			Expression: "amount > 0.0",
			Weight:     1,
			Enabled:    true,
		})
	}

	if engine.RulesCount() != 10 {
		t.Fatalf("expected 10 rules, got %d", engine.RulesCount())
	}

	for run := 0; run < 20; run++ {
		hits := engine.Evaluate(context.Background(), testTx(100), domain.NoRecentData())
		if len(hits) != 10 {
			t.Fatalf("expected 10 hits, got %d", len(hits))
		}
		for i, h := range hits {
			if want := fmt.Sprintf("rule-%d", i); h.RuleID != want {
				t.Fatalf("run %d: hit %d = %s, want %s", run, i, h.RuleID, want)
			}
		}
	}
}

func TestReloadRules(t *testing.T) {
	engine, _ := NewEngine(5)
	defer engine.Close()

	engine.LoadRule(&domain.RuleConfig{ID: "old", Expression: "true", Enabled: true})

	err := engine.ReloadRules([]*domain.RuleConfig{
		{ID: "b", Expression: "amount > 1.0", Enabled: true},
		{ID: "a", Expression: "amount > 2.0", Enabled: true},
		{ID: "off", Expression: "true", Enabled: false},
	})
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	loaded := engine.GetLoadedRules()
	if len(loaded) != 2 || loaded[0].ID != "a" || loaded[1].ID != "b" {
		t.Errorf("unexpected loaded rules: %v", loaded)
	}

	// A bad rule keeps the previous set
	err = engine.ReloadRules([]*domain.RuleConfig{{ID: "bad", Expression: "!!!", Enabled: true}})
	if err == nil {
		t.Fatal("expected reload error")
	}
	if engine.RulesCount() != 2 {
		t.Errorf("expected previous rules to stay loaded, got %d", engine.RulesCount())
	}
}

func TestActivation(t *testing.T) {
	act := Activation(testTx(32000), domain.RecentCount(4, 10*time.Minute))

	if act["hour"] != int64(2) {
		t.Errorf("hour = %v, want 2", act["hour"])
	}
	if act["velocity_count"] != int64(4) {
		t.Errorf("velocity_count = %v, want 4", act["velocity_count"])
	}
	if act["user_id"] != "user-001" || act["merchant"] != "Flipkart" {
		t.Errorf("unexpected activation: %v", act)
	}
}
