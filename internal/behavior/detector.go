// Package behavior implements the per-user behavioral anomaly detector.
package behavior

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/opensource-finance/kavach/internal/domain"
)

// Config configures a Detector.
type Config struct {
	Thresholds    Thresholds
	FailurePolicy FailurePolicy

	// OnStoreError is called once per failed store operation.
	OnStoreError func(op string)

	// Now defaults to time.Now.
	Now func() time.Time
}

// Detector scores transactions against each user's running aggregate and
// folds them into it. Calls for one user are serialized; different users
// proceed in parallel.
type Detector struct {
	store        domain.ProfileStore
	th           Thresholds
	policy       FailurePolicy
	onStoreError func(op string)
	now          func() time.Time

	mu    sync.Mutex
	users map[string]*userState
}

type userState struct {
	mu      sync.Mutex
	profile *domain.Profile // nil until loaded
	removed bool            // dropped from the map; callers must retry
}

// NewDetector creates a detector backed by the given store.
func NewDetector(store domain.ProfileStore, cfg Config) *Detector {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.FailurePolicy == "" {
		cfg.FailurePolicy = PolicyFallback
	}
	if cfg.Thresholds.TrustTiers == nil {
		cfg.Thresholds = DefaultThresholds()
	}
	return &Detector{
		store:        store,
		th:           cfg.Thresholds,
		policy:       cfg.FailurePolicy,
		onStoreError: cfg.OnStoreError,
		now:          cfg.Now,
		users:        make(map[string]*userState),
	}
}

// acquire returns the user's state with its lock held. Without create it
// returns nil for users that have no entry.
func (d *Detector) acquire(userID string, create bool) *userState {
	for {
		d.mu.Lock()
		st, ok := d.users[userID]
		if !ok {
			if !create {
				d.mu.Unlock()
				return nil
			}
			st = &userState{}
			d.users[userID] = st
		}
		d.mu.Unlock()

		st.mu.Lock()
		if !st.removed {
			return st
		}
		st.mu.Unlock()
	}
}

// dropLocked removes the user's entry. Caller holds st.mu.
func (d *Detector) dropLocked(userID string, st *userState) {
	st.removed = true
	st.profile = nil

	d.mu.Lock()
	if d.users[userID] == st {
		delete(d.users, userID)
	}
	d.mu.Unlock()
}

// storeFailed applies the failure policy. It returns nil when the caller
// should carry on.
func (d *Detector) storeFailed(op, userID string, err error) error {
	if d.onStoreError != nil {
		d.onStoreError(op)
	}
	se := &StoreError{Op: op, UserID: userID, Err: err}
	if d.policy == PolicyFailFast {
		return se
	}
	slog.Warn("profile store failed, using in-memory profile",
		"op", op,
		"user_id", userID,
		"error", err,
	)
	return nil
}

// loadLocked makes sure st holds a profile, creating and saving a fresh
// one for unknown users. Caller holds st.mu.
func (d *Detector) loadLocked(ctx context.Context, st *userState, userID string) error {
	if st.profile != nil {
		return nil
	}

	p, err := d.store.GetProfile(ctx, userID)
	switch {
	case err == nil:
		p.Normalize()
		st.profile = p
		return nil

	case errors.Is(err, ErrProfileNotFound):
		fresh := domain.NewProfile(userID, d.now().UTC())
		if err := d.store.SaveProfile(ctx, fresh); err != nil {
			if ferr := d.storeFailed("save", userID, err); ferr != nil {
				d.dropLocked(userID, st)
				return ferr
			}
		}
		st.profile = fresh
		return nil

	default:
		if ferr := d.storeFailed("load", userID, err); ferr != nil {
			d.dropLocked(userID, st)
			return ferr
		}
		st.profile = domain.NewProfile(userID, d.now().UTC())
		return nil
	}
}

// Initialize returns the user's profile, loading or creating it on first
// use. Later calls return the in-memory profile.
func (d *Detector) Initialize(ctx context.Context, userID string) (*domain.Profile, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}

	st := d.acquire(userID, true)
	defer st.mu.Unlock()

	if err := d.loadLocked(ctx, st, userID); err != nil {
		return nil, err
	}
	return st.profile.Clone(), nil
}

// Profile returns the user's profile without creating one. Unknown users
// yield ErrProfileNotFound.
func (d *Detector) Profile(ctx context.Context, userID string) (*domain.Profile, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}

	if st := d.acquire(userID, false); st != nil {
		defer st.mu.Unlock()
		if st.profile != nil {
			return st.profile.Clone(), nil
		}
	}

	// Unknown users never get an entry, so lookups for arbitrary ids
	// do not grow the map.
	p, err := d.store.GetProfile(ctx, userID)
	if errors.Is(err, ErrProfileNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		if d.onStoreError != nil {
			d.onStoreError("load")
		}
		return nil, &StoreError{Op: "load", UserID: userID, Err: err}
	}
	p.Normalize()
	return p, nil
}

// Analyze scores a transaction against the user's current aggregate
// without changing it.
func (d *Detector) Analyze(ctx context.Context, tx *domain.Transaction, velocity domain.VelocityCheck) (domain.AnomalyResult, error) {
	if tx == nil || tx.UserID == "" {
		return domain.AnomalyResult{}, ErrUserRequired
	}

	st := d.acquire(tx.UserID, true)
	defer st.mu.Unlock()

	if err := d.loadLocked(ctx, st, tx.UserID); err != nil {
		return domain.AnomalyResult{}, err
	}
	return d.score(st.profile, tx, velocity), nil
}

// Update folds a transaction into the user's aggregate and persists it.
func (d *Detector) Update(ctx context.Context, tx *domain.Transaction) (*domain.Profile, error) {
	if tx == nil || tx.UserID == "" {
		return nil, ErrUserRequired
	}

	st := d.acquire(tx.UserID, true)
	defer st.mu.Unlock()

	if err := d.loadLocked(ctx, st, tx.UserID); err != nil {
		return nil, err
	}
	if err := d.commitLocked(ctx, st, tx); err != nil {
		return nil, err
	}
	return st.profile.Clone(), nil
}

// AnalyzeAndUpdate scores a transaction against history and then commits
// it, as one step under the user's lock.
func (d *Detector) AnalyzeAndUpdate(ctx context.Context, tx *domain.Transaction, velocity domain.VelocityCheck) (domain.AnomalyResult, *domain.Profile, error) {
	if tx == nil || tx.UserID == "" {
		return domain.AnomalyResult{}, nil, ErrUserRequired
	}

	st := d.acquire(tx.UserID, true)
	defer st.mu.Unlock()

	if err := d.loadLocked(ctx, st, tx.UserID); err != nil {
		return domain.AnomalyResult{}, nil, err
	}

	result := d.score(st.profile, tx, velocity)
	if err := d.commitLocked(ctx, st, tx); err != nil {
		return result, nil, err
	}
	return result, st.profile.Clone(), nil
}

// Clear forgets the user's profile in memory and in the store.
func (d *Detector) Clear(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrUserRequired
	}

	st := d.acquire(userID, true)
	defer st.mu.Unlock()
	defer d.dropLocked(userID, st)

	if err := d.store.DeleteProfile(ctx, userID); err != nil {
		return d.storeFailed("delete", userID, err)
	}
	return nil
}

// commitLocked applies tx to a copy of the profile, persists it, and swaps
// it in. Under fail-fast a failed save leaves memory untouched.
func (d *Detector) commitLocked(ctx context.Context, st *userState, tx *domain.Transaction) error {
	next := st.profile.Clone()
	d.apply(next, tx)

	if err := d.store.SaveProfile(ctx, next); err != nil {
		if ferr := d.storeFailed("save", tx.UserID, err); ferr != nil {
			return ferr
		}
	}
	st.profile = next
	return nil
}

func (d *Detector) score(p *domain.Profile, tx *domain.Transaction, velocity domain.VelocityCheck) domain.AnomalyResult {
	th := d.th
	pt := p.Patterns
	reasons := []string{}
	score := 0

	if pt.TransactionCount > 0 || !th.AmountChecksNeedHistory {
		if tx.Amount > pt.AverageTransaction*th.AverageMultiple {
			reasons = append(reasons, averageReason(tx.Amount, pt.AverageTransaction))
			score += th.AverageWeight
		}
		if tx.Amount > pt.MaxTransaction*th.MaxMultiple {
			reasons = append(reasons, "Highest transaction amount ever")
			score += th.MaxWeight
		}
	}

	if pt.FrequentMerchants[tx.Merchant] == 0 {
		reasons = append(reasons, "First time transaction with this merchant")
		score += th.NewMerchantWeight
	}

	hour := tx.Hour()
	if hour >= 0 && hour < th.LateHourUntil && pt.TimePatterns[hour] < th.RareHourCount {
		reasons = append(reasons, "Unusual transaction time (late night)")
		score += th.LateHourWeight
	}

	if pt.PaymentMethods[tx.Source] == 0 {
		reasons = append(reasons, "First time using this payment method")
		score += th.NewMethodWeight
	}

	if velocity.Exceeds(th.VelocityThreshold) {
		reasons = append(reasons, "Multiple transactions in short time")
		score += th.VelocityWeight
	}

	score = max(0, min(score, 100))
	return domain.AnomalyResult{
		IsAnomalous: score > th.AnomalyScore,
		Reasons:     reasons,
		RiskScore:   score,
	}
}

// averageReason renders the amount-to-average ratio. A zero average has
// no meaningful ratio.
func averageReason(amount, avg float64) string {
	if avg <= 0 {
		return "Amount is above your average"
	}
	return fmt.Sprintf("Amount is %.0fx your average", math.Round(amount/avg))
}

func (d *Detector) apply(p *domain.Profile, tx *domain.Transaction) {
	th := d.th
	pt := &p.Patterns
	now := d.now()

	prior := pt.TransactionCount
	pt.TransactionCount++
	pt.TotalSpent += tx.Amount
	pt.AverageTransaction = pt.TotalSpent / float64(pt.TransactionCount)
	if prior == 0 {
		pt.MaxTransaction = tx.Amount
		pt.MinTransaction = tx.Amount
	} else {
		pt.MaxTransaction = math.Max(pt.MaxTransaction, tx.Amount)
		pt.MinTransaction = math.Min(pt.MinTransaction, tx.Amount)
	}

	pt.FrequentMerchants[tx.Merchant]++
	if tx.Category != "" {
		pt.FrequentCategories[tx.Category]++
	}
	hour := tx.Hour()
	pt.TimePatterns[hour]++
	pt.DayPatterns[tx.Weekday(now)]++
	if tx.Source != "" {
		pt.PaymentMethods[tx.Source]++
	}

	// Trust reflects the risk factors recorded before this transaction.
	p.TrustScore = th.TrustScore(pt.TransactionCount, len(p.RiskFactors))

	if tx.Amount > th.HighValueAmount && !p.HasRiskFactor(FactorHighValue) {
		p.RiskFactors = append(p.RiskFactors, FactorHighValue)
	}
	if hour >= 0 && hour < th.LateHourUntil && !p.HasRiskFactor(FactorLateNight) {
		p.RiskFactors = append(p.RiskFactors, FactorLateNight)
	}

	p.LastUpdated = now.UTC()
}
