package incentive

import (
	"context"

	"github.com/warp/incentive-engine/generic"
)

// =============================================================================
// PROVIDERS - Read-only data the engine fetches once per calculation
// =============================================================================

// SaleSource returns a store's sales inside period (inclusive).
type SaleSource interface {
	SalesForStore(ctx context.Context, storeID generic.StoreID, period generic.Period) ([]SaleRecord, error)
}

// SlabSource returns the full configured slab table.
type SlabSource interface {
	PriceSlabs(ctx context.Context) ([]PriceSlab, error)
}

// AttachRateSource returns a store's intervals overlapping period.
type AttachRateSource interface {
	AttachRateIntervals(ctx context.Context, storeID generic.StoreID, period generic.Period) ([]AttachRateInterval, error)
}

// StoreDirectory maps an employee to the store they sell for. An empty
// StoreID with a nil error means the employee has no store.
type StoreDirectory interface {
	StoreForEmployee(ctx context.Context, employeeID generic.EmployeeID) (generic.StoreID, error)
}

// Provider is satisfied by every storage backend.
type Provider interface {
	SaleSource
	SlabSource
	AttachRateSource
	StoreDirectory
}

// ResultCache stores computed store results. Implementations must make a
// cached result unreachable once the store's sales or attach intervals, or
// the slab table, change.
//
// Get returns the key a miss should be filled under. The key is fixed at
// read time, so a result computed from inputs that were invalidated while
// it ran is written under an already unreachable key.
type ResultCache interface {
	Get(ctx context.Context, storeID generic.StoreID, month generic.MonthKey, headcount int) (result IncentiveResult, key string, ok bool, err error)
	Set(ctx context.Context, key string, result IncentiveResult) error
	InvalidateStore(ctx context.Context, storeID generic.StoreID) error
	InvalidateAll(ctx context.Context) error
}
