package incentive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/warp/incentive-engine/generic"
	"go.uber.org/zap"
)

// =============================================================================
// ENGINE - Batch fetch, then pure calculation
// =============================================================================

// Engine fetches a store's sales, the slab table, and the store's attach
// intervals in one batch per call, then hands them to Calculate. It holds no
// state between calls and is safe for concurrent use.
type Engine struct {
	Sales       SaleSource
	Slabs       SlabSource
	AttachRates AttachRateSource
	Stores      StoreDirectory

	AttachPolicy AttachPolicy
	// Timeout bounds fetch + compute when positive.
	Timeout      time.Duration
	// Cache is optional. Failures are logged and the result is recomputed.
	Cache        ResultCache
	Logger       *zap.Logger
}

type Option func(*Engine)

func WithAttachPolicy(p AttachPolicy) Option { return func(e *Engine) { e.AttachPolicy = p } }
func WithTimeout(d time.Duration) Option     { return func(e *Engine) { e.Timeout = d } }
func WithLogger(l *zap.Logger) Option        { return func(e *Engine) { e.Logger = l } }
func WithCache(c ResultCache) Option         { return func(e *Engine) { e.Cache = c } }

// NewEngine wires every provider from one backend.
func NewEngine(p Provider, opts ...Option) *Engine {
	e := &Engine{
		Sales:        p,
		Slabs:        p,
		AttachRates:  p,
		Stores:       p,
		AttachPolicy: AttachPerGroup,
		Logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CalculateMonthlyIncentive computes the payout for the employee's store in
// the given month. headcount is the caller's count of staff sharing the
// store total and must be at least 1; it is never looked up.
//
// An employee without a store yields a zero result with StatusNoStore.
func (e *Engine) CalculateMonthlyIncentive(ctx context.Context, employeeID generic.EmployeeID, month, year, headcount int) (IncentiveResult, error) {
	key, err := validateRequest(month, year, headcount)
	if err != nil {
		return IncentiveResult{}, err
	}

	storeID, err := e.Stores.StoreForEmployee(ctx, employeeID)
	if err != nil && !errors.Is(err, generic.ErrNotFound) {
		return IncentiveResult{}, fmt.Errorf("lookup store for employee %s: %w", employeeID, err)
	}
	if storeID == "" {
		e.logger().Debug("employee has no store", zap.String("employee_id", string(employeeID)))
		return ZeroResult(StatusNoStore, "", key, headcount), nil
	}

	return e.CalculateStoreIncentive(ctx, storeID, key, headcount)
}

// CalculateStoreIncentive is the store-level entry point used by batch jobs.
func (e *Engine) CalculateStoreIncentive(ctx context.Context, storeID generic.StoreID, month generic.MonthKey, headcount int) (IncentiveResult, error) {
	if headcount < 1 {
		return IncentiveResult{}, &generic.InvalidInputError{Field: "headcount", Reason: fmt.Sprintf("must be at least 1, got %d", headcount)}
	}
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	var cacheKey string
	if e.Cache != nil {
		cached, key, ok, err := e.Cache.Get(ctx, storeID, month, headcount)
		switch {
		case err != nil:
			e.logger().Warn("result cache read failed", zap.String("store_id", string(storeID)), zap.Error(err))
		case ok:
			return cached, nil
		default:
			cacheKey = key
		}
	}

	result, err := e.compute(ctx, storeID, month, headcount)
	if err != nil {
		return IncentiveResult{}, err
	}

	if cacheKey != "" {
		if err := e.Cache.Set(ctx, cacheKey, result); err != nil {
			e.logger().Warn("result cache write failed", zap.String("store_id", string(storeID)), zap.Error(err))
		}
	}
	return result, nil
}

func (e *Engine) compute(ctx context.Context, storeID generic.StoreID, month generic.MonthKey, headcount int) (IncentiveResult, error) {
	period := month.Period()
	sales, err := e.Sales.SalesForStore(ctx, storeID, period)
	if err != nil {
		return IncentiveResult{}, fmt.Errorf("fetch sales for store %s: %w", storeID, err)
	}
	if len(sales) == 0 {
		return ZeroResult(StatusNoSales, storeID, month, headcount), nil
	}
	slabs, err := e.Slabs.PriceSlabs(ctx)
	if err != nil {
		return IncentiveResult{}, fmt.Errorf("fetch price slabs: %w", err)
	}
	intervals, err := e.AttachRates.AttachRateIntervals(ctx, storeID, period)
	if err != nil {
		return IncentiveResult{}, fmt.Errorf("fetch attach rates for store %s: %w", storeID, err)
	}
	if err := ctx.Err(); err != nil {
		return IncentiveResult{}, err
	}

	result, err := Calculate(CalculationInput{
		StoreID:      storeID,
		Month:        month,
		Headcount:    headcount,
		Sales:        sales,
		Slabs:        slabs,
		Intervals:    intervals,
		AttachPolicy: e.AttachPolicy,
	})
	if err != nil {
		return IncentiveResult{}, err
	}

	log := e.logger().With(zap.String("store_id", string(storeID)), zap.String("month", month.String()))
	for _, d := range result.Diagnostics {
		log.Warn("incentive diagnostic",
			zap.String("code", string(d.Code)),
			zap.String("sale_id", string(d.SaleID)),
			zap.String("message", d.Message))
	}
	log.Debug("incentive calculated",
		zap.Int("total_units", result.Units.TotalUnits),
		zap.String("global_rate", result.GlobalRate.String()),
		zap.String("store_total", result.StoreTotal.String()),
		zap.String("per_employee_share", result.PerEmployeeShare.String()))

	return result, nil
}

// LatestAttachRate resolves the interval overlapping the month with the
// latest end date. Audit and reporting only.
func (e *Engine) LatestAttachRate(ctx context.Context, storeID generic.StoreID, month generic.MonthKey) (AttachRateInterval, bool, error) {
	intervals, err := e.AttachRates.AttachRateIntervals(ctx, storeID, month.Period())
	if err != nil {
		return AttachRateInterval{}, false, fmt.Errorf("fetch attach rates for store %s: %w", storeID, err)
	}
	iv, ok := NewAttachIndex(intervals).ResolveLatestForMonth(storeID, month)
	return iv, ok, nil
}

func (e *Engine) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func validateRequest(month, year, headcount int) (generic.MonthKey, error) {
	if headcount < 1 {
		return generic.MonthKey{}, &generic.InvalidInputError{Field: "headcount", Reason: fmt.Sprintf("must be at least 1, got %d", headcount)}
	}
	return generic.NewMonthKey(month, year)
}
