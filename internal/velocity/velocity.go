// Package velocity provides transaction velocity calculation.
package velocity

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/kavach/internal/domain"
)

// Namespace holds the per-user event windows in the cache.
const Namespace = "velocity"

// DefaultWindow is used when the service is created without a window.
const DefaultWindow = 10 * time.Minute

// Counter counts a user's stored transactions in a closed time range.
// domain.Repository satisfies it.
type Counter interface {
	CountTransactionsBetween(ctx context.Context, userID string, from, to time.Time) (int64, error)
}

// Service calculates transaction velocity for users.
type Service struct {
	counter Counter
	cache   domain.Cache
	window  time.Duration
}

// NewService creates a new velocity service. A non-nil counter is
// preferred; without one the cache's event window is used.
func NewService(counter Counter, cache domain.Cache, window time.Duration) *Service {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Service{
		counter: counter,
		cache:   cache,
		window:  window,
	}
}

// Window returns the observation window.
func (s *Service) Window() time.Duration {
	return s.window
}

// Observe returns how many earlier transactions the user made within the
// window ending at at. The transaction being observed is not counted.
//
// The stored-transaction path has no side effects because the current
// transaction is persisted only after scoring. The cache path records
// the current transaction in the window, so the prior count is the
// result minus one.
func (s *Service) Observe(ctx context.Context, userID string, at time.Time) (domain.VelocityCheck, error) {
	if userID == "" {
		return domain.NoRecentData(), nil
	}
	if at.IsZero() {
		at = time.Now()
	}

	if s.counter != nil {
		count, err := s.counter.CountTransactionsBetween(ctx, userID, at.Add(-s.window), at)
		if err != nil {
			return domain.NoRecentData(), fmt.Errorf("failed to count transactions: %w", err)
		}
		return domain.RecentCount(int(count), s.window), nil
	}

	if s.cache != nil {
		n, err := s.cache.RecordEvent(ctx, Namespace, userID, at, s.window)
		if err != nil {
			return domain.NoRecentData(), fmt.Errorf("failed to record velocity event: %w", err)
		}
		return domain.RecentCount(int(n-1), s.window), nil
	}

	return domain.NoRecentData(), nil
}
