package behavior

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/kavach/internal/cache"
	"github.com/opensource-finance/kavach/internal/domain"
)

var fixedNow = time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC) // a Wednesday

func newTestDetector(t *testing.T, store domain.ProfileStore, mutate ...func(*Config)) *Detector {
	t.Helper()
	if store == nil {
		store = cache.NewProfileStore(cache.NewLRUCache(100))
	}
	cfg := Config{
		Thresholds: DefaultThresholds(),
		Now:        func() time.Time { return fixedNow },
	}
	for _, m := range mutate {
		m(&cfg)
	}
	return NewDetector(store, cfg)
}

func txn(user, merchant string, amount float64, clock, source string) *domain.Transaction {
	return &domain.Transaction{UserID: user, Merchant: merchant, Amount: amount, Time: clock, Source: source}
}

// flakyStore fails the operations named in failOn.
type flakyStore struct {
	inner  domain.ProfileStore
	mu     sync.Mutex
	failOn map[string]bool
	calls  map[string]int
}

func newFlakyStore(ops ...string) *flakyStore {
	f := &flakyStore{
		inner:  cache.NewProfileStore(cache.NewLRUCache(10)),
		failOn: map[string]bool{},
		calls:  map[string]int{},
	}
	for _, op := range ops {
		f.failOn[op] = true
	}
	return f
}

var errDisk = errors.New("disk on fire")

func (f *flakyStore) hit(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	if f.failOn[op] {
		return errDisk
	}
	return nil
}

func (f *flakyStore) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	if err := f.hit("load"); err != nil {
		return nil, err
	}
	return f.inner.GetProfile(ctx, userID)
}

func (f *flakyStore) SaveProfile(ctx context.Context, p *domain.Profile) error {
	if err := f.hit("save"); err != nil {
		return err
	}
	return f.inner.SaveProfile(ctx, p)
}

func (f *flakyStore) DeleteProfile(ctx context.Context, userID string) error {
	if err := f.hit("delete"); err != nil {
		return err
	}
	return f.inner.DeleteProfile(ctx, userID)
}

func TestInitialize(t *testing.T) {
	ctx := context.Background()
	store := cache.NewProfileStore(cache.NewLRUCache(10))
	d := newTestDetector(t, store)

	p, err := d.Initialize(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", p.UserID)
	assert.Equal(t, domain.DefaultTrustScore, p.TrustScore)
	assert.Empty(t, p.RiskFactors)

	stored, err := store.GetProfile(ctx, "user-1")
	require.NoError(t, err, "fresh profile must be persisted")
	assert.Equal(t, 0, stored.Patterns.TransactionCount)

	_, err = d.Initialize(ctx, "")
	assert.ErrorIs(t, err, ErrUserRequired)
}

func TestInitialize_LoadsExisting(t *testing.T) {
	ctx := context.Background()
	store := cache.NewProfileStore(cache.NewLRUCache(10))
	existing := domain.NewProfile("user-1", fixedNow)
	existing.Patterns.TransactionCount = 7
	require.NoError(t, store.SaveProfile(ctx, existing))

	p, err := newTestDetector(t, store).Initialize(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 7, p.Patterns.TransactionCount)
}

func TestAnalyze_FreshProfile(t *testing.T) {
	tx := txn("user-1", "Foo", 500, "10:00 AM", "Card")

	t.Run("AmountChecksApply", func(t *testing.T) {
		d := newTestDetector(t, nil)

		res, err := d.Analyze(context.Background(), tx, domain.NoRecentData())
		require.NoError(t, err)

		assert.Equal(t, []string{
			"Amount is above your average",
			"Highest transaction amount ever",
			"First time transaction with this merchant",
			"First time using this payment method",
		}, res.Reasons)
		assert.Equal(t, 70, res.RiskScore)
		assert.True(t, res.IsAnomalous)
	})

	t.Run("AmountChecksNeedHistory", func(t *testing.T) {
		d := newTestDetector(t, nil, func(c *Config) { c.Thresholds.AmountChecksNeedHistory = true })

		res, err := d.Analyze(context.Background(), tx, domain.NoRecentData())
		require.NoError(t, err)

		assert.Equal(t, []string{
			"First time transaction with this merchant",
			"First time using this payment method",
		}, res.Reasons)
		assert.Equal(t, 25, res.RiskScore)
		assert.False(t, res.IsAnomalous)
	})

	t.Run("ZeroAmountDoesNotTrip", func(t *testing.T) {
		d := newTestDetector(t, nil)

		res, err := d.Analyze(context.Background(), txn("user-1", "Foo", 0, "10:00 AM", "Card"), domain.NoRecentData())
		require.NoError(t, err)
		assert.NotContains(t, res.Reasons, "Highest transaction amount ever")
		assert.NotContains(t, res.Reasons, "Amount is above your average")
	})
}

func TestAnalyze_Idempotent(t *testing.T) {
	ctx := context.Background()
	d := newTestDetector(t, nil)
	_, err := d.Update(ctx, txn("user-1", "Amazon", 1000, "2:00 PM", "UPI"))
	require.NoError(t, err)

	tx := txn("user-1", "Flipkart", 9000, "3:00 AM", "Card")
	first, err := d.Analyze(ctx, tx, domain.NoRecentData())
	require.NoError(t, err)
	second, err := d.Analyze(ctx, tx, domain.NoRecentData())
	require.NoError(t, err)

	assert.Equal(t, first, second)

	p, err := d.Profile(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.Patterns.TransactionCount, "analyze must not mutate the aggregate")
}

func TestAnalyze_AmountChecks(t *testing.T) {
	ctx := context.Background()
	d := newTestDetector(t, nil)
	for i := 0; i < 2; i++ {
		_, err := d.Update(ctx, txn("user-1", "Amazon", 1000, "2:00 PM", "UPI"))
		require.NoError(t, err)
	}

	res, err := d.Analyze(ctx, txn("user-1", "Amazon", 5000, "2:30 PM", "UPI"), domain.NoRecentData())
	require.NoError(t, err)

	assert.Equal(t, []string{"Amount is 5x your average", "Highest transaction amount ever"}, res.Reasons)
	assert.Equal(t, 45, res.RiskScore)
	assert.True(t, res.IsAnomalous)
}

func TestAnalyze_LateNightAndVelocity(t *testing.T) {
	ctx := context.Background()
	d := newTestDetector(t, nil)
	_, err := d.Update(ctx, txn("user-1", "Swiggy", 300, "1:15 AM", "UPI"))
	require.NoError(t, err)

	res, err := d.Analyze(ctx, txn("user-1", "Swiggy", 300, "1:40 AM", "UPI"), domain.RecentCount(4, 10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{"Unusual transaction time (late night)", "Multiple transactions in short time"}, res.Reasons)

	_, err = d.Update(ctx, txn("user-1", "Swiggy", 300, "1:50 AM", "UPI"))
	require.NoError(t, err)

	res, err = d.Analyze(ctx, txn("user-1", "Swiggy", 300, "1:55 AM", "UPI"), domain.NoRecentData())
	require.NoError(t, err)
	assert.Empty(t, res.Reasons, "hour seen twice is no longer rare")
}

func TestAnalyze_VelocityThresholdZeroDisables(t *testing.T) {
	ctx := context.Background()
	d := newTestDetector(t, nil, func(c *Config) { c.Thresholds.VelocityThreshold = 0 })
	_, err := d.Update(ctx, txn("user-1", "Swiggy", 300, "1:00 PM", "UPI"))
	require.NoError(t, err)

	res, err := d.Analyze(ctx, txn("user-1", "Swiggy", 300, "1:00 PM", "UPI"), domain.RecentCount(50, time.Minute))
	require.NoError(t, err)
	assert.Empty(t, res.Reasons)
}

func TestUpdate_AggregateConsistency(t *testing.T) {
	ctx := context.Background()
	d := newTestDetector(t, nil)

	var sum, maxAmount float64
	minAmount := 1e12
	n := 40
	for i := 0; i < n; i++ {
		amount := gofakeit.Float64Range(1, 80000)
		sum += amount
		maxAmount = max(maxAmount, amount)
		minAmount = min(minAmount, amount)
		_, err := d.Update(ctx, txn("user-1", gofakeit.Company(), amount, "12:00 PM", "Card"))
		require.NoError(t, err)
	}

	p, err := d.Profile(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, n, p.Patterns.TransactionCount)
	assert.InDelta(t, sum/float64(n), p.Patterns.AverageTransaction, 1e-6)
	assert.InDelta(t, sum, p.Patterns.TotalSpent, 1e-6)
	assert.Equal(t, maxAmount, p.Patterns.MaxTransaction)
	assert.Equal(t, minAmount, p.Patterns.MinTransaction)
}

func TestUpdate_ZeroFirstAmountSetsMin(t *testing.T) {
	ctx := context.Background()
	d := newTestDetector(t, nil)

	_, err := d.Update(ctx, txn("user-1", "Refund", 0, "12:00 PM", ""))
	require.NoError(t, err)
	p, err := d.Update(ctx, txn("user-1", "Amazon", 500, "12:00 PM", "UPI"))
	require.NoError(t, err)

	assert.Equal(t, 0.0, p.Patterns.MinTransaction)
	assert.Equal(t, 500.0, p.Patterns.MaxTransaction)
	assert.NotContains(t, p.Patterns.PaymentMethods, "", "empty source is not counted")
	assert.Empty(t, p.Patterns.FrequentCategories)
}

func TestUpdate_Histograms(t *testing.T) {
	ctx := context.Background()
	d := newTestDetector(t, nil)

	tx := txn("user-1", "Zomato", 450, "8:30 PM", "UPI")
	tx.Category = "Food"
	tx.Timestamp = time.Date(2026, 3, 1, 20, 30, 0, 0, time.UTC) // a Sunday

	p, err := d.Update(ctx, tx)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Patterns.FrequentMerchants["Zomato"])
	assert.Equal(t, 1, p.Patterns.FrequentCategories["Food"])
	assert.Equal(t, 1, p.Patterns.TimePatterns[20])
	assert.Equal(t, 1, p.Patterns.DayPatterns["Sunday"])
	assert.Equal(t, 1, p.Patterns.PaymentMethods["UPI"])

	p, err = d.Update(ctx, txn("user-1", "Zomato", 450, "8:30 PM", "UPI"))
	require.NoError(t, err)
	assert.Equal(t, 1, p.Patterns.DayPatterns["Wednesday"], "no timestamp falls back to the clock")
}

func TestUpdate_RiskFactorsNeverShrink(t *testing.T) {
	ctx := context.Background()
	d := newTestDetector(t, nil)

	p, err := d.Update(ctx, txn("user-1", "Jeweller", 75000, "2:00 AM", "Card"))
	require.NoError(t, err)
	assert.Equal(t, []string{FactorHighValue, FactorLateNight}, p.RiskFactors)
	assert.Equal(t, 50, p.TrustScore, "trust uses factors recorded before the transaction")

	for i := 0; i < 5; i++ {
		p, err = d.Update(ctx, txn("user-1", "Amazon", 200, "1:00 PM", "UPI"))
		require.NoError(t, err)
		assert.Equal(t, []string{FactorHighValue, FactorLateNight}, p.RiskFactors)
	}
	assert.Equal(t, 40, p.TrustScore)
}

func TestTrustScore(t *testing.T) {
	th := DefaultThresholds()
	assert.Equal(t, 50, th.TrustScore(10, 0))
	assert.Equal(t, 55, th.TrustScore(11, 0))
	assert.Equal(t, 60, th.TrustScore(21, 0))
	assert.Equal(t, 70, th.TrustScore(51, 0))
	assert.Equal(t, 0, th.TrustScore(1, 30))

	th.TrustTiering = TrustCumulative
	assert.Equal(t, 65, th.TrustScore(21, 0))
	assert.Equal(t, 85, th.TrustScore(51, 0))
	assert.Equal(t, 75, th.TrustScore(51, 2))
}

func TestAnalyzeAndUpdate(t *testing.T) {
	ctx := context.Background()
	d := newTestDetector(t, nil)

	res, p, err := d.AnalyzeAndUpdate(ctx, txn("user-1", "Foo", 100, "10:00 AM", "UPI"), domain.NoRecentData())
	require.NoError(t, err)
	assert.Contains(t, res.Reasons, "First time transaction with this merchant")
	assert.Equal(t, 1, p.Patterns.TransactionCount)

	res, _, err = d.AnalyzeAndUpdate(ctx, txn("user-1", "Foo", 100, "10:00 AM", "UPI"), domain.NoRecentData())
	require.NoError(t, err)
	assert.Empty(t, res.Reasons)
}

func TestConcurrentUpdatesSameUser(t *testing.T) {
	ctx := context.Background()
	d := newTestDetector(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := d.AnalyzeAndUpdate(ctx, txn("user-1", "Amazon", 10, "1:00 PM", "UPI"), domain.NoRecentData())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	p, err := d.Profile(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 50, p.Patterns.TransactionCount)
	assert.InDelta(t, 500.0, p.Patterns.TotalSpent, 1e-9)
}

func TestUsersAreIsolated(t *testing.T) {
	ctx := context.Background()
	d := newTestDetector(t, nil)

	_, err := d.Update(ctx, txn("alice", "Amazon", 100, "1:00 PM", "UPI"))
	require.NoError(t, err)

	res, err := d.Analyze(ctx, txn("bob", "Amazon", 100, "1:00 PM", "UPI"), domain.NoRecentData())
	require.NoError(t, err)
	assert.Contains(t, res.Reasons, "First time transaction with this merchant")
}

func TestFailurePolicy(t *testing.T) {
	ctx := context.Background()

	t.Run("FallbackLoad", func(t *testing.T) {
		var failed []string
		d := newTestDetector(t, newFlakyStore("load"), func(c *Config) {
			c.OnStoreError = func(op string) { failed = append(failed, op) }
		})

		p, err := d.Initialize(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, 0, p.Patterns.TransactionCount)
		assert.Equal(t, []string{"load"}, failed)
	})

	t.Run("FallbackSave", func(t *testing.T) {
		d := newTestDetector(t, newFlakyStore("save"))

		p, err := d.Update(ctx, txn("user-1", "Amazon", 100, "1:00 PM", "UPI"))
		require.NoError(t, err)
		assert.Equal(t, 1, p.Patterns.TransactionCount, "memory stays authoritative")
	})

	t.Run("FailFastLoad", func(t *testing.T) {
		d := newTestDetector(t, newFlakyStore("load"), func(c *Config) { c.FailurePolicy = PolicyFailFast })

		_, err := d.Initialize(ctx, "user-1")
		var se *StoreError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "load", se.Op)
		assert.Equal(t, "user-1", se.UserID)
		assert.ErrorIs(t, err, errDisk)
	})

	t.Run("FailFastSaveKeepsMemory", func(t *testing.T) {
		store := newFlakyStore()
		d := newTestDetector(t, store, func(c *Config) { c.FailurePolicy = PolicyFailFast })
		_, err := d.Update(ctx, txn("user-1", "Amazon", 100, "1:00 PM", "UPI"))
		require.NoError(t, err)

		store.failOn["save"] = true
		_, err = d.Update(ctx, txn("user-1", "Amazon", 100, "1:00 PM", "UPI"))
		require.Error(t, err)

		p, err := d.Profile(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, 1, p.Patterns.TransactionCount)
	})
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	store := cache.NewProfileStore(cache.NewLRUCache(10))
	d := newTestDetector(t, store)

	_, err := d.Update(ctx, txn("user-1", "Amazon", 100, "1:00 PM", "UPI"))
	require.NoError(t, err)
	require.NoError(t, d.Clear(ctx, "user-1"))

	_, err = d.Profile(ctx, "user-1")
	assert.ErrorIs(t, err, ErrProfileNotFound)
	_, err = store.GetProfile(ctx, "user-1")
	assert.ErrorIs(t, err, domain.ErrProfileNotFound)
}

func trackedUsers(d *Detector) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.users)
}

func TestUnknownUsersDoNotGrowState(t *testing.T) {
	ctx := context.Background()

	t.Run("LookupsOnUnknownUsers", func(t *testing.T) {
		d := newTestDetector(t, nil)
		for i := 0; i < 50; i++ {
			id := gofakeit.UUID()
			ins, err := d.Insights(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, EmptyInsights(), ins)
			_, err = d.Profile(ctx, id)
			assert.ErrorIs(t, err, ErrProfileNotFound)
		}
		assert.Equal(t, 0, trackedUsers(d))
	})

	t.Run("StoredProfileIsReadWithoutTracking", func(t *testing.T) {
		store := cache.NewProfileStore(cache.NewLRUCache(10))
		seed := newTestDetector(t, store)
		_, err := seed.Update(ctx, txn("user-1", "Amazon", 100, "1:00 PM", "UPI"))
		require.NoError(t, err)

		d := newTestDetector(t, store)
		p, err := d.Profile(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, 1, p.Patterns.TransactionCount)
		assert.Equal(t, 0, trackedUsers(d))
	})

	t.Run("ClearDropsEntry", func(t *testing.T) {
		d := newTestDetector(t, nil)
		_, err := d.Update(ctx, txn("user-1", "Amazon", 100, "1:00 PM", "UPI"))
		require.NoError(t, err)
		require.Equal(t, 1, trackedUsers(d))

		require.NoError(t, d.Clear(ctx, "user-1"))
		assert.Equal(t, 0, trackedUsers(d))

		p, err := d.Update(ctx, txn("user-1", "Amazon", 100, "1:00 PM", "UPI"))
		require.NoError(t, err)
		assert.Equal(t, 1, p.Patterns.TransactionCount)
	})

	t.Run("ClearOnUnknownUser", func(t *testing.T) {
		d := newTestDetector(t, nil)
		require.NoError(t, d.Clear(ctx, "ghost"))
		assert.Equal(t, 0, trackedUsers(d))
	})

	t.Run("FailFastLoadDropsEntry", func(t *testing.T) {
		d := newTestDetector(t, newFlakyStore("load"), func(c *Config) { c.FailurePolicy = PolicyFailFast })
		_, err := d.Initialize(ctx, "user-1")
		require.Error(t, err)
		assert.Equal(t, 0, trackedUsers(d))
	})

	t.Run("ConcurrentClearAndUpdate", func(t *testing.T) {
		d := newTestDetector(t, nil)
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				_, err := d.Update(ctx, txn("user-1", "Amazon", 100, "1:00 PM", "UPI"))
				assert.NoError(t, err)
			}()
			go func() {
				defer wg.Done()
				assert.NoError(t, d.Clear(ctx, "user-1"))
			}()
		}
		wg.Wait()
		assert.LessOrEqual(t, trackedUsers(d), 1)
	})
}

func TestParsePolicies(t *testing.T) {
	p, err := ParseFailurePolicy("fail-fast")
	require.NoError(t, err)
	assert.Equal(t, PolicyFailFast, p)
	_, err = ParseFailurePolicy("panic")
	assert.Error(t, err)

	tt, err := ParseTrustTiering("")
	require.NoError(t, err)
	assert.Equal(t, TrustHighest, tt)
	_, err = ParseTrustTiering("max")
	assert.Error(t, err)
}
