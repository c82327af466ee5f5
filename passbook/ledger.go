/*
Package passbook is the per-store monthly payout ledger.

PURPOSE:
  The incentive engine only computes numbers. Batch jobs persist a derived
  monthly summary {month: "MM-YYYY", amount, paidAt} per store, and sales
  staff read it back as their passbook. This package owns that record and
  its upsert-by-month contract.

INVARIANTS:
  1. One entry per (store, month). Writing the same month again replaces
     the amount instead of adding a row.
  2. Recording a recalculated amount never clears an existing PaidAt.
     Disbursement is marked explicitly with MarkPaid.
  3. Entries are listed newest month first.

EXAMPLE FLOW:
  1. Payout job computes March for store-1: Record(store-1, 03-2025, 10400)
  2. A late sale arrives, job reruns:       Record(store-1, 03-2025, 10650)
  3. Finance disburses:                     MarkPaid(store-1, 03-2025, now)

  Passbook: [{03-2025, 10650, paidAt}]

SEE ALSO:
  - api/scheduler.go: The job that records entries
  - store/sqlite/passbook.go: SQL upsert
*/
package passbook

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/incentive-engine/generic"
)

// =============================================================================
// ENTRY
// =============================================================================

// Entry is one store-month of the passbook.
type Entry struct {
	StoreID    generic.StoreID  `json:"store_id"`
	Month      generic.MonthKey `json:"month"`
	Amount     decimal.Decimal  `json:"amount"`
	PaidAt     *time.Time       `json:"paid_at"`
	StoreTotal decimal.Decimal  `json:"store_total"`
	Headcount  int              `json:"headcount"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

func (e Entry) IsPaid() bool { return e.PaidAt != nil }

// =============================================================================
// STORE - Persistence contract
// =============================================================================

// Store persists entries keyed by (store, month).
type Store interface {
	// UpsertPassbookEntry inserts or replaces the entry for (StoreID, Month).
	UpsertPassbookEntry(ctx context.Context, e Entry) error

	// UpsertUnpaidPassbookEntry writes e unless the stored entry for
	// (StoreID, Month) is already paid, in one atomic step. It reports
	// whether the entry was written.
	UpsertUnpaidPassbookEntry(ctx context.Context, e Entry) (bool, error)

	// PassbookEntry returns generic.ErrNotFound when no entry exists.
	PassbookEntry(ctx context.Context, storeID generic.StoreID, month generic.MonthKey) (Entry, error)

	// PassbookEntries returns every entry for the store in any order.
	PassbookEntries(ctx context.Context, storeID generic.StoreID) ([]Entry, error)
}

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	Store Store
	Now   func() time.Time
}

func NewLedger(store Store) *Ledger {
	return &Ledger{Store: store, Now: time.Now}
}

// Record upserts the month's amount. An existing PaidAt is carried over when
// e.PaidAt is nil.
func (l *Ledger) Record(ctx context.Context, e Entry) (Entry, error) {
	if err := validate(e); err != nil {
		return Entry{}, err
	}

	existing, err := l.Store.PassbookEntry(ctx, e.StoreID, e.Month)
	switch {
	case err == nil:
		if e.PaidAt == nil {
			e.PaidAt = existing.PaidAt
		}
	case errors.Is(err, generic.ErrNotFound):
	default:
		return Entry{}, fmt.Errorf("load passbook entry %s/%s: %w", e.StoreID, e.Month, err)
	}

	e.UpdatedAt = l.Now().UTC()
	if err := l.Store.UpsertPassbookEntry(ctx, e); err != nil {
		return Entry{}, fmt.Errorf("upsert passbook entry %s/%s: %w", e.StoreID, e.Month, err)
	}
	return e, nil
}

// RecordIfUnpaid upserts the month's amount unless the month is already
// paid. The paid check happens inside the store write, so a payout stamped
// between a caller's read and this call is never overwritten. The returned
// bool is false when the paid entry was left untouched.
func (l *Ledger) RecordIfUnpaid(ctx context.Context, e Entry) (Entry, bool, error) {
	if err := validate(e); err != nil {
		return Entry{}, false, err
	}
	e.PaidAt = nil
	e.UpdatedAt = l.Now().UTC()
	written, err := l.Store.UpsertUnpaidPassbookEntry(ctx, e)
	if err != nil {
		return Entry{}, false, fmt.Errorf("upsert unpaid passbook entry %s/%s: %w", e.StoreID, e.Month, err)
	}
	return e, written, nil
}

// MarkPaid stamps an existing entry as disbursed.
func (l *Ledger) MarkPaid(ctx context.Context, storeID generic.StoreID, month generic.MonthKey, at time.Time) (Entry, error) {
	e, err := l.Store.PassbookEntry(ctx, storeID, month)
	if err != nil {
		return Entry{}, err
	}
	paid := at.UTC()
	e.PaidAt = &paid
	e.UpdatedAt = l.Now().UTC()
	if err := l.Store.UpsertPassbookEntry(ctx, e); err != nil {
		return Entry{}, fmt.Errorf("mark paid %s/%s: %w", storeID, month, err)
	}
	return e, nil
}

func (l *Ledger) Entry(ctx context.Context, storeID generic.StoreID, month generic.MonthKey) (Entry, error) {
	return l.Store.PassbookEntry(ctx, storeID, month)
}

// Entries lists the store's passbook, newest month first.
func (l *Ledger) Entries(ctx context.Context, storeID generic.StoreID) ([]Entry, error) {
	entries, err := l.Store.PassbookEntries(ctx, storeID)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[j].Month.Before(entries[i].Month)
	})
	return entries, nil
}

func validate(e Entry) error {
	if e.StoreID == "" {
		return &generic.InvalidInputError{Field: "store_id", Reason: "required"}
	}
	if e.Month.IsZero() {
		return &generic.InvalidInputError{Field: "month", Reason: "required"}
	}
	if e.Amount.IsNegative() {
		return &generic.InvalidInputError{Field: "amount", Reason: "must not be negative"}
	}
	if e.Headcount < 0 {
		return &generic.InvalidInputError{Field: "headcount", Reason: "must not be negative"}
	}
	return nil
}
