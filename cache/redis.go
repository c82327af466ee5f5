/*
Package cache keeps computed incentive results in Redis.

PURPOSE:
  A store-month result is a pure function of the store's sales, its attach
  intervals, the slab table, and the headcount. Repeated passbook and
  dashboard reads for the same inputs are served from Redis instead of
  re-fetching every sale.

INVALIDATION:
  Keys embed two counters: a global generation (bumped when the slab table
  changes) and a per-store generation (bumped when the store's sales or
  attach intervals change). Bumping a counter makes every older key
  unreachable; the orphans expire with the TTL.

  incentive:gen                       global generation
  incentive:gen:{store}               store generation
  incentive:{store}:{MM-YYYY}:{hc}:{global}.{store}  cached result JSON

  Get reads the counters once and hands the resulting key back to the
  caller, which fills a miss under that same key. A write never re-reads
  the counters: a result computed before an invalidation lands under a key
  nobody reads.

SEE ALSO:
  - incentive/provider.go: ResultCache contract
  - api/handlers.go: Calls InvalidateStore / InvalidateAll after writes
*/
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/warp/incentive-engine/generic"
	"github.com/warp/incentive-engine/incentive"
)

const (
	keyPrefix     = "incentive"
	globalGenKey  = keyPrefix + ":gen"
	storeGenKeyFm = keyPrefix + ":gen:%s"
)

type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

var _ incentive.ResultCache = (*Redis)(nil)

// New creates a cache over a new client.
func New(addr, password string, db int, ttl time.Duration) *Redis {
	return NewFromClient(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}), ttl)
}

func NewFromClient(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// Get returns the cached result, or ok=false on a miss together with the
// key to pass to Set.
func (r *Redis) Get(ctx context.Context, storeID generic.StoreID, month generic.MonthKey, headcount int) (incentive.IncentiveResult, string, bool, error) {
	key, err := r.resultKey(ctx, storeID, month, headcount)
	if err != nil {
		return incentive.IncentiveResult{}, "", false, err
	}

	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return incentive.IncentiveResult{}, key, false, nil
	}
	if err != nil {
		return incentive.IncentiveResult{}, "", false, fmt.Errorf("get %s: %w", key, err)
	}

	var result incentive.IncentiveResult
	if err := json.Unmarshal(data, &result); err != nil {
		return incentive.IncentiveResult{}, "", false, fmt.Errorf("decode %s: %w", key, err)
	}
	return result, key, true, nil
}

// Set stores result under a key returned by Get.
func (r *Redis) Set(ctx context.Context, key string, result incentive.IncentiveResult) error {
	if key == "" {
		return errors.New("empty cache key")
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return r.client.Set(ctx, key, data, r.ttl).Err()
}

// InvalidateStore bumps the store generation.
func (r *Redis) InvalidateStore(ctx context.Context, storeID generic.StoreID) error {
	return r.client.Incr(ctx, fmt.Sprintf(storeGenKeyFm, storeID)).Err()
}

// InvalidateAll bumps the global generation.
func (r *Redis) InvalidateAll(ctx context.Context) error {
	return r.client.Incr(ctx, globalGenKey).Err()
}

func (r *Redis) resultKey(ctx context.Context, storeID generic.StoreID, month generic.MonthKey, headcount int) (string, error) {
	vals, err := r.client.MGet(ctx, globalGenKey, fmt.Sprintf(storeGenKeyFm, storeID)).Result()
	if err != nil {
		return "", fmt.Errorf("read generations: %w", err)
	}
	return ResultKey(storeID, month, headcount, generation(vals[0]), generation(vals[1])), nil
}

// ResultKey formats the key a result is stored under.
func ResultKey(storeID generic.StoreID, month generic.MonthKey, headcount int, globalGen, storeGen string) string {
	return fmt.Sprintf("%s:%s:%s:%d:%s.%s", keyPrefix, storeID, month, headcount, globalGen, storeGen)
}

// generation maps a missing counter (nil from MGET) to "0".
func generation(v any) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return "0"
}
