/*
scheduler.go - Automated monthly payout scheduler

PURPOSE:
  Periodically computes the previous month's incentive for every store and
  records it in the store's passbook as {month: "MM-YYYY", amount, paidAt}.
  The engine only computes numbers; this job is the caller that persists
  them.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each tick processes the month before the current one
  - Stores without a headcount or without sales are skipped
  - Entries already marked paid are left untouched, including ones
    stamped while the run is computing (the write is conditional)
  - Re-running a month upserts the same passbook row (idempotent)
  - Passbook writes are retried with exponential backoff
  - Each run gets a UUID and is kept in memory for the admin endpoint

PAID STAMPS:
  The job never sets paidAt. Disbursement is recorded explicitly through
  POST /api/stores/{id}/passbook/{month}/paid.

USAGE:
  scheduler := NewPayoutScheduler(store, engine, ledger, logger)
  scheduler.Interval = 24 * time.Hour
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RunPayouts endpoint (manual run for any month)
  - passbook/ledger.go: Upsert-by-month contract
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/warp/incentive-engine/generic"
	"github.com/warp/incentive-engine/incentive"
	"github.com/warp/incentive-engine/passbook"
	"go.uber.org/zap"
)

const maxKeptRuns = 50

type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunPartial   RunStatus = "partial"
	RunFailed    RunStatus = "failed"
)

// PayoutRun summarizes one pass over every store for one month.
type PayoutRun struct {
	ID          string    `json:"id"`
	Month       string    `json:"month"`
	Status      RunStatus `json:"status"`
	Recorded    int       `json:"recorded"`
	Skipped     int       `json:"skipped"`
	Failed      int       `json:"failed"`
	Errors      []string  `json:"errors,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// PayoutScheduler handles automated monthly passbook writes.
type PayoutScheduler struct {
	Store    Backend
	Engine   *incentive.Engine
	Ledger   *passbook.Ledger
	Logger   *zap.Logger
	Interval time.Duration
	Enabled  bool

	// NewBackOff builds the retry policy for one passbook write.
	NewBackOff func() backoff.BackOff
	Now        func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	runsMu sync.RWMutex
	runs   []PayoutRun
}

// NewPayoutScheduler creates a disabled scheduler; set Enabled to start it.
func NewPayoutScheduler(store Backend, engine *incentive.Engine, ledger *passbook.Ledger, logger *zap.Logger) *PayoutScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PayoutScheduler{
		Store:    store,
		Engine:   engine,
		Ledger:   ledger,
		Logger:   logger,
		Interval: 24 * time.Hour,
		NewBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxElapsedTime = 30 * time.Second
			return b
		},
		Now: time.Now,
	}
}

// Start begins the scheduler.
func (ps *PayoutScheduler) Start() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if !ps.Enabled {
		ps.Logger.Info("payout scheduler disabled, not starting")
		return
	}
	if ps.ticker != nil {
		return
	}

	ps.ticker = time.NewTicker(ps.Interval)
	ps.stop = make(chan struct{})
	ps.wg.Add(1)

	go ps.run()

	ps.Logger.Info("payout scheduler started", zap.Duration("interval", ps.Interval))
}

// Stop stops the scheduler and waits for an in-flight run to finish.
func (ps *PayoutScheduler) Stop() {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if ps.ticker != nil {
		ps.ticker.Stop()
		close(ps.stop)
		ps.wg.Wait()
		ps.ticker = nil
		ps.Logger.Info("payout scheduler stopped")
	}
}

func (ps *PayoutScheduler) run() {
	defer ps.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-ps.stop
		cancel()
	}()

	// Run immediately on start
	ps.tick(ctx)

	for {
		select {
		case <-ps.ticker.C:
			ps.tick(ctx)
		case <-ps.stop:
			return
		}
	}
}

func (ps *PayoutScheduler) tick(ctx context.Context) {
	month := generic.MonthKeyOf(generic.DateOf(ps.Now())).Previous()
	if _, err := ps.RunMonth(ctx, month); err != nil {
		ps.Logger.Error("payout run failed", zap.String("month", month.String()), zap.Error(err))
	}
}

// RunMonth computes and records every store's payout for month. A failure
// for one store does not stop the others; the returned error is only for
// failures that prevent the run from starting.
func (ps *PayoutScheduler) RunMonth(ctx context.Context, month generic.MonthKey) (PayoutRun, error) {
	run := PayoutRun{
		ID:        uuid.NewString(),
		Month:     month.String(),
		StartedAt: ps.Now().UTC(),
	}
	log := ps.Logger.With(zap.String("run_id", run.ID), zap.String("month", run.Month))

	stores, err := ps.Store.ListStores(ctx)
	if err != nil {
		return PayoutRun{}, fmt.Errorf("list stores: %w", err)
	}

	for _, store := range stores {
		recorded, err := ps.processStore(ctx, store, month)
		switch {
		case err != nil:
			run.Failed++
			run.Errors = append(run.Errors, fmt.Sprintf("%s: %v", store.ID, err))
			log.Error("store payout failed", zap.String("store_id", string(store.ID)), zap.Error(err))
		case recorded:
			run.Recorded++
		default:
			run.Skipped++
		}
	}

	run.CompletedAt = ps.Now().UTC()
	switch {
	case run.Failed == 0:
		run.Status = RunCompleted
	case run.Recorded == 0:
		run.Status = RunFailed
	default:
		run.Status = RunPartial
	}
	ps.remember(run)

	log.Info("payout run finished",
		zap.String("status", string(run.Status)),
		zap.Int("recorded", run.Recorded),
		zap.Int("skipped", run.Skipped),
		zap.Int("failed", run.Failed))
	return run, nil
}

// processStore reports whether a passbook entry was written.
func (ps *PayoutScheduler) processStore(ctx context.Context, store generic.StoreRecord, month generic.MonthKey) (bool, error) {
	if store.Headcount < 1 {
		return false, nil
	}

	existing, err := ps.Ledger.Entry(ctx, store.ID, month)
	switch {
	case err == nil && existing.IsPaid():
		return false, nil
	case err != nil && !errors.Is(err, generic.ErrNotFound):
		return false, fmt.Errorf("load passbook entry: %w", err)
	}

	result, err := ps.Engine.CalculateStoreIncentive(ctx, store.ID, month, store.Headcount)
	if err != nil {
		return false, fmt.Errorf("calculate: %w", err)
	}
	if result.Status != incentive.StatusComputed {
		return false, nil
	}

	entry := passbook.Entry{
		StoreID:    store.ID,
		Month:      month,
		Amount:     result.PerEmployeeShare,
		StoreTotal: result.StoreTotal,
		Headcount:  store.Headcount,
	}
	var written bool
	write := func() error {
		var err error
		_, written, err = ps.Ledger.RecordIfUnpaid(ctx, entry)
		if err != nil && generic.IsClientError(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		ps.Logger.Warn("passbook write failed, retrying",
			zap.String("store_id", string(store.ID)),
			zap.Error(err),
			zap.Duration("next_attempt_in", next))
	}
	if err := backoff.RetryNotify(write, backoff.WithContext(ps.NewBackOff(), ctx), notify); err != nil {
		return false, fmt.Errorf("record passbook entry: %w", err)
	}
	if !written {
		ps.Logger.Info("passbook entry paid during the run, left untouched",
			zap.String("store_id", string(store.ID)),
			zap.String("month", month.String()))
	}
	return written, nil
}

func (ps *PayoutScheduler) remember(run PayoutRun) {
	ps.runsMu.Lock()
	defer ps.runsMu.Unlock()

	ps.runs = append(ps.runs, run)
	if len(ps.runs) > maxKeptRuns {
		ps.runs = ps.runs[len(ps.runs)-maxKeptRuns:]
	}
}

// Runs returns recent runs, newest first.
func (ps *PayoutScheduler) Runs() []PayoutRun {
	ps.runsMu.RLock()
	defer ps.runsMu.RUnlock()

	out := make([]PayoutRun, len(ps.runs))
	for i, r := range ps.runs {
		out[len(ps.runs)-1-i] = r
	}
	return out
}
