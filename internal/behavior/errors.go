package behavior

import (
	"errors"
	"fmt"

	"github.com/opensource-finance/kavach/internal/domain"
)

var (
	// ErrProfileNotFound is returned for users with no stored profile.
	ErrProfileNotFound = domain.ErrProfileNotFound

	// ErrUserRequired is returned when a call carries no user id.
	ErrUserRequired = errors.New("userId is required")
)

// FailurePolicy decides what happens when the profile store fails.
type FailurePolicy string

const (
	// PolicyFallback logs store failures and carries on in memory.
	PolicyFallback FailurePolicy = "fallback"

	// PolicyFailFast returns store failures to the caller.
	PolicyFailFast FailurePolicy = "fail-fast"
)

// ParseFailurePolicy validates a policy name. Empty means fallback.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch FailurePolicy(s) {
	case "", PolicyFallback:
		return PolicyFallback, nil
	case PolicyFailFast:
		return PolicyFailFast, nil
	default:
		return "", fmt.Errorf("unknown failure policy %q", s)
	}
}

// StoreError reports a failed profile store operation.
type StoreError struct {
	Op     string // load, save or delete
	UserID string
	Err    error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("profile store %s for %s: %v", e.Op, e.UserID, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
