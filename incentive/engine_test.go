package incentive_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/incentive-engine/generic"
	"github.com/warp/incentive-engine/generic/store"
	"github.com/warp/incentive-engine/incentive"
	"go.uber.org/zap/zaptest"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestBackend(t *testing.T) *store.Memory {
	t.Helper()
	ctx := context.Background()
	m := store.NewMemory()

	require.NoError(t, m.ReplaceSlabs(ctx, []incentive.PriceSlab{standardSlab()}))
	require.NoError(t, m.SaveStore(ctx, generic.StoreRecord{ID: testStore, Name: "Store 1", Headcount: 2}))
	require.NoError(t, m.SaveEmployee(ctx, generic.EmployeeRecord{ID: "emp-1", StoreID: testStore}))
	require.NoError(t, m.SaveEmployee(ctx, generic.EmployeeRecord{ID: "emp-unassigned"}))
	return m
}

// fakeCache is an in-process ResultCache keyed like the Redis one: every key
// embeds a generation, and invalidation bumps it.
type fakeCache struct {
	results    map[string]incentive.IncentiveResult
	generation int
	gets       int
	sets       int
	getErr     error
}

func newFakeCache() *fakeCache {
	return &fakeCache{results: map[string]incentive.IncentiveResult{}}
}

func cacheKey(storeID generic.StoreID, month string, headcount, generation int) string {
	return fmt.Sprintf("%s|%s|%d|%d", storeID, month, headcount, generation)
}

func (c *fakeCache) Get(_ context.Context, storeID generic.StoreID, month generic.MonthKey, headcount int) (incentive.IncentiveResult, string, bool, error) {
	c.gets++
	if c.getErr != nil {
		return incentive.IncentiveResult{}, "", false, c.getErr
	}
	key := cacheKey(storeID, month.String(), headcount, c.generation)
	r, ok := c.results[key]
	return r, key, ok, nil
}

func (c *fakeCache) Set(_ context.Context, key string, r incentive.IncentiveResult) error {
	c.sets++
	c.results[key] = r
	return nil
}

func (c *fakeCache) InvalidateStore(_ context.Context, _ generic.StoreID) error {
	c.generation++
	return nil
}

func (c *fakeCache) InvalidateAll(_ context.Context) error {
	c.generation++
	return nil
}

// racingSales runs onFetch right after the sales are read, standing in for a
// write that commits while a calculation is in flight.
type racingSales struct {
	*store.Memory
	onFetch func()
}

func (r *racingSales) SalesForStore(ctx context.Context, storeID generic.StoreID, period generic.Period) ([]incentive.SaleRecord, error) {
	sales, err := r.Memory.SalesForStore(ctx, storeID, period)
	if r.onFetch != nil {
		r.onFetch()
		r.onFetch = nil
	}
	return sales, err
}

// =============================================================================
// ENGINE TESTS
// =============================================================================

func TestEngine_CalculateMonthlyIncentive_FetchesAndComputes(t *testing.T) {
	// GIVEN: An employee whose store sold 10 units in December
	ctx := context.Background()
	backend := newTestBackend(t)
	require.NoError(t, backend.AppendSales(ctx, sales("s", 10, 1, "Galaxy A55", "30000")))
	engine := incentive.NewEngine(backend, incentive.WithLogger(zaptest.NewLogger(t)))

	// WHEN: Calculating through the employee
	r, err := engine.CalculateMonthlyIncentive(ctx, "emp-1", 12, 2025, 2)

	// THEN: The store's share is returned
	require.NoError(t, err)
	assert.Equal(t, incentive.StatusComputed, r.Status)
	assert.Equal(t, testStore, r.StoreID)
	assertDecimal(t, "10000", r.PerEmployeeShare)
}

func TestEngine_HeadcountFromCaller_NotFromStore(t *testing.T) {
	// GIVEN: The store record says 2, the caller says 1
	ctx := context.Background()
	backend := newTestBackend(t)
	require.NoError(t, backend.AppendSales(ctx, sales("s", 10, 1, "Galaxy A55", "30000")))
	engine := incentive.NewEngine(backend)

	r, err := engine.CalculateMonthlyIncentive(ctx, "emp-1", 12, 2025, 1)

	// THEN: Thresholds and share use the caller's headcount
	require.NoError(t, err)
	assert.Equal(t, 4, r.Units.FinalGate)
	assertDecimal(t, "1.2", r.GlobalRate)
	assertDecimal(t, "24000", r.PerEmployeeShare)
}

func TestEngine_NoStore(t *testing.T) {
	ctx := context.Background()
	engine := incentive.NewEngine(newTestBackend(t))

	for _, emp := range []generic.EmployeeID{"emp-unassigned", "emp-unknown"} {
		// WHEN: The employee has no store link
		r, err := engine.CalculateMonthlyIncentive(ctx, emp, 12, 2025, 2)

		// THEN: A zero result flagged no_store, not an error
		require.NoError(t, err, emp)
		assert.Equal(t, incentive.StatusNoStore, r.Status, emp)
		assertDecimal(t, "0", r.PerEmployeeShare)
		assert.Equal(t, "12-2025", r.Month)
	}
}

func TestEngine_NoSales(t *testing.T) {
	ctx := context.Background()
	engine := incentive.NewEngine(newTestBackend(t))

	r, err := engine.CalculateMonthlyIncentive(ctx, "emp-1", 12, 2025, 2)

	require.NoError(t, err)
	assert.Equal(t, incentive.StatusNoSales, r.Status)
	assert.Equal(t, testStore, r.StoreID)
	assertDecimal(t, "0", r.StoreTotal)
}

func TestEngine_InvalidInput(t *testing.T) {
	ctx := context.Background()
	engine := incentive.NewEngine(newTestBackend(t))

	cases := []struct {
		name                   string
		month, year, headcount int
	}{
		{"month zero", 0, 2025, 2},
		{"month thirteen", 13, 2025, 2},
		{"year too small", 12, 1999, 2},
		{"year too large", 12, 10000, 2},
		{"headcount zero", 12, 2025, 0},
		{"headcount negative", 12, 2025, -3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := engine.CalculateMonthlyIncentive(ctx, "emp-1", tc.month, tc.year, tc.headcount)
			assert.ErrorIs(t, err, generic.ErrInvalidInput)
			assert.True(t, generic.IsClientError(err))
		})
	}
}

func TestEngine_Cache_HitSkipsCompute(t *testing.T) {
	// GIVEN: An engine with a cache
	ctx := context.Background()
	backend := newTestBackend(t)
	require.NoError(t, backend.AppendSales(ctx, sales("s", 10, 1, "Galaxy A55", "30000")))
	cache := newFakeCache()
	engine := incentive.NewEngine(backend, incentive.WithCache(cache))

	// WHEN: Calculating twice
	first, err := engine.CalculateMonthlyIncentive(ctx, "emp-1", 12, 2025, 2)
	require.NoError(t, err)
	require.NoError(t, backend.AppendSales(ctx, sales("late", 6, 12, "Galaxy A55", "30000")))
	second, err := engine.CalculateMonthlyIncentive(ctx, "emp-1", 12, 2025, 2)
	require.NoError(t, err)

	// THEN: The second call is served from the cache
	assert.Equal(t, 1, cache.sets)
	assert.Equal(t, 2, cache.gets)
	assert.Equal(t, first.StoreTotal.String(), second.StoreTotal.String())

	// AND: After invalidation the new sales are counted
	require.NoError(t, cache.InvalidateStore(ctx, testStore))
	third, err := engine.CalculateMonthlyIncentive(ctx, "emp-1", 12, 2025, 2)
	require.NoError(t, err)
	assertDecimal(t, "19200", third.PerEmployeeShare)
}

func TestEngine_Cache_InvalidationDuringCalculation(t *testing.T) {
	// GIVEN: New sales that commit and invalidate the cache while a
	// calculation is between its fetch and its cache write
	ctx := context.Background()
	backend := newTestBackend(t)
	require.NoError(t, backend.AppendSales(ctx, sales("s", 10, 1, "Galaxy A55", "30000")))
	cache := newFakeCache()
	racing := &racingSales{Memory: backend}
	racing.onFetch = func() {
		require.NoError(t, backend.AppendSales(ctx, sales("late", 6, 12, "Galaxy A55", "30000")))
		require.NoError(t, cache.InvalidateStore(ctx, testStore))
	}
	engine := incentive.NewEngine(racing, incentive.WithCache(cache))

	// WHEN: The in-flight calculation finishes, then the next one runs
	stale, err := engine.CalculateMonthlyIncentive(ctx, "emp-1", 12, 2025, 2)
	require.NoError(t, err)
	fresh, err := engine.CalculateMonthlyIncentive(ctx, "emp-1", 12, 2025, 2)
	require.NoError(t, err)

	// THEN: The in-flight result was computed from the old sales, but the
	// next call recomputes instead of reading it back
	assertDecimal(t, "10000", stale.PerEmployeeShare)
	assertDecimal(t, "19200", fresh.PerEmployeeShare)
	assert.Equal(t, 2, cache.sets)
}

func TestEngine_Cache_ReadFailureFallsBackToCompute(t *testing.T) {
	ctx := context.Background()
	backend := newTestBackend(t)
	require.NoError(t, backend.AppendSales(ctx, sales("s", 10, 1, "Galaxy A55", "30000")))
	cache := newFakeCache()
	cache.getErr = errors.New("connection refused")
	engine := incentive.NewEngine(backend, incentive.WithCache(cache), incentive.WithLogger(zaptest.NewLogger(t)))

	r, err := engine.CalculateMonthlyIncentive(ctx, "emp-1", 12, 2025, 2)

	require.NoError(t, err)
	assertDecimal(t, "10000", r.PerEmployeeShare)
	assert.Equal(t, 0, cache.sets)
}

func TestEngine_Timeout_ExpiredContext(t *testing.T) {
	// GIVEN: A context that is already cancelled
	backend := newTestBackend(t)
	require.NoError(t, backend.AppendSales(context.Background(), sales("s", 10, 1, "Galaxy A55", "30000")))
	engine := incentive.NewEngine(backend, incentive.WithTimeout(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// WHEN: Calculating
	_, err := engine.CalculateMonthlyIncentive(ctx, "emp-1", 12, 2025, 2)

	// THEN: The cancellation surfaces instead of a partial result
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngine_LatestAttachRate(t *testing.T) {
	ctx := context.Background()
	backend := newTestBackend(t)
	require.NoError(t, backend.AddAttachRateInterval(ctx, decInterval("first", "2025-12-01", "2025-12-15", "10")))
	require.NoError(t, backend.AddAttachRateInterval(ctx, decInterval("second", "2025-12-16", "2025-12-31", "30")))
	engine := incentive.NewEngine(backend)

	iv, ok, err := engine.LatestAttachRate(ctx, testStore, december(t))

	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second", iv.ID)
}
