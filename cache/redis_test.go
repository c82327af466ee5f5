package cache

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/incentive-engine/generic"
	"github.com/warp/incentive-engine/incentive"
)

func TestResultKey_EmbedsGenerations(t *testing.T) {
	month := generic.MonthKey{Year: 2025, Month: time.December}

	key := ResultKey("store-1", month, 2, "3", "7")

	assert.Equal(t, "incentive:store-1:12-2025:2:3.7", key)
}

func TestGeneration_MissingCounterIsZero(t *testing.T) {
	assert.Equal(t, "0", generation(nil))
	assert.Equal(t, "0", generation(""))
	assert.Equal(t, "4", generation("4"))
}

// newIntegrationCache connects to INCENTIVE_REDIS_ADDR or skips.
func newIntegrationCache(t *testing.T) *Redis {
	t.Helper()
	addr := os.Getenv("INCENTIVE_REDIS_ADDR")
	if addr == "" {
		t.Skip("INCENTIVE_REDIS_ADDR not set; skipping integration test")
	}
	c := NewFromClient(redis.NewClient(&redis.Options{Addr: addr}), time.Minute)
	t.Cleanup(func() { c.Close() })
	require.NoError(t, c.Ping(context.Background()))
	return c
}

func testResult(storeID generic.StoreID, month generic.MonthKey, total int64) incentive.IncentiveResult {
	result := incentive.ZeroResult(incentive.StatusComputed, storeID, month, 2)
	result.StoreTotal = decimal.NewFromInt(total)
	result.PerEmployeeShare = decimal.NewFromInt(total / 2)
	return result
}

func TestRedis_SetGetInvalidate(t *testing.T) {
	c := newIntegrationCache(t)
	ctx := context.Background()
	storeID := generic.StoreID(fmt.Sprintf("store-test-%d", time.Now().UnixNano()))
	month := generic.MonthKey{Year: 2025, Month: time.December}

	// GIVEN: A result cached under the key of a miss
	_, key, ok, err := c.Get(ctx, storeID, month, 2)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, c.Set(ctx, key, testResult(storeID, month, 20800)))

	// WHEN: Read back with the same inputs
	got, _, ok, err := c.Get(ctx, storeID, month, 2)

	// THEN: Hit
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.StoreTotal.Equal(decimal.NewFromInt(20800)))
	assert.True(t, got.PerEmployeeShare.Equal(decimal.NewFromInt(10400)))

	// A different headcount is a different key
	_, _, ok, err = c.Get(ctx, storeID, month, 3)
	require.NoError(t, err)
	assert.False(t, ok)

	// WHEN: The store's data changes
	require.NoError(t, c.InvalidateStore(ctx, storeID))

	// THEN: Miss
	_, key, ok, err = c.Get(ctx, storeID, month, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	// Slab changes invalidate every store
	require.NoError(t, c.Set(ctx, key, testResult(storeID, month, 20800)))
	require.NoError(t, c.InvalidateAll(ctx))
	_, _, ok, err = c.Get(ctx, storeID, month, 2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedis_ResultComputedBeforeInvalidationIsNotServed(t *testing.T) {
	c := newIntegrationCache(t)
	ctx := context.Background()
	storeID := generic.StoreID(fmt.Sprintf("store-race-%d", time.Now().UnixNano()))
	month := generic.MonthKey{Year: 2025, Month: time.December}

	// GIVEN: A miss, after which the calculation reads the old sales
	_, key, ok, err := c.Get(ctx, storeID, month, 2)
	require.NoError(t, err)
	require.False(t, ok)

	// WHEN: New sales land and invalidate the store before the old result is written
	require.NoError(t, c.InvalidateStore(ctx, storeID))
	require.NoError(t, c.Set(ctx, key, testResult(storeID, month, 100)))

	// THEN: The old result is unreachable
	_, _, ok, err = c.Get(ctx, storeID, month, 2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedis_SetRejectsEmptyKey(t *testing.T) {
	c := NewFromClient(redis.NewClient(&redis.Options{Addr: "localhost:0"}), time.Minute)
	defer c.Close()

	err := c.Set(context.Background(), "", incentive.IncentiveResult{})

	assert.Error(t, err)
}
