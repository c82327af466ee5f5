package passbook_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/incentive-engine/generic"
	"github.com/warp/incentive-engine/generic/store"
	"github.com/warp/incentive-engine/passbook"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var fixedNow = time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)

func newTestLedger() *passbook.Ledger {
	l := passbook.NewLedger(store.NewMemory())
	l.Now = func() time.Time { return fixedNow }
	return l
}

func month(t *testing.T, m, y int) generic.MonthKey {
	t.Helper()
	k, err := generic.NewMonthKey(m, y)
	require.NoError(t, err)
	return k
}

func entry(t *testing.T, m, y int, amount int64) passbook.Entry {
	return passbook.Entry{
		StoreID:    "store-1",
		Month:      month(t, m, y),
		Amount:     decimal.NewFromInt(amount),
		StoreTotal: decimal.NewFromInt(amount * 2),
		Headcount:  2,
	}
}

// =============================================================================
// UPSERT-BY-MONTH INVARIANT
// =============================================================================

func TestLedger_Record_OneEntryPerMonth(t *testing.T) {
	// GIVEN: December already recorded
	ctx := context.Background()
	l := newTestLedger()
	_, err := l.Record(ctx, entry(t, 12, 2025, 10000))
	require.NoError(t, err)

	// WHEN: Recording December again with a corrected amount
	_, err = l.Record(ctx, entry(t, 12, 2025, 10400))
	require.NoError(t, err)

	// THEN: Still one entry, holding the new amount
	entries, err := l.Entries(ctx, "store-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "10400", entries[0].Amount.String())
	assert.Equal(t, fixedNow, entries[0].UpdatedAt)
}

func TestLedger_Record_KeepsPaidStamp(t *testing.T) {
	// GIVEN: A paid December entry
	ctx := context.Background()
	l := newTestLedger()
	_, err := l.Record(ctx, entry(t, 12, 2025, 10000))
	require.NoError(t, err)
	paidAt := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	_, err = l.MarkPaid(ctx, "store-1", month(t, 12, 2025), paidAt)
	require.NoError(t, err)

	// WHEN: The amount is re-recorded without a paid stamp
	got, err := l.Record(ctx, entry(t, 12, 2025, 10400))

	// THEN: The paid stamp survives
	require.NoError(t, err)
	require.NotNil(t, got.PaidAt)
	assert.True(t, got.PaidAt.Equal(paidAt))
	assert.True(t, got.IsPaid())
}

func TestLedger_RecordIfUnpaid(t *testing.T) {
	// GIVEN: An unpaid November and a paid December
	ctx := context.Background()
	l := newTestLedger()
	_, err := l.Record(ctx, entry(t, 11, 2025, 9000))
	require.NoError(t, err)
	_, err = l.Record(ctx, entry(t, 12, 2025, 10000))
	require.NoError(t, err)
	paidAt := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	_, err = l.MarkPaid(ctx, "store-1", month(t, 12, 2025), paidAt)
	require.NoError(t, err)

	// WHEN: Conditionally recording new amounts for both months and a new January
	_, novWritten, err := l.RecordIfUnpaid(ctx, entry(t, 11, 2025, 9500))
	require.NoError(t, err)
	_, decWritten, err := l.RecordIfUnpaid(ctx, entry(t, 12, 2025, 10400))
	require.NoError(t, err)
	_, janWritten, err := l.RecordIfUnpaid(ctx, entry(t, 1, 2026, 8000))
	require.NoError(t, err)

	// THEN: Unpaid and missing months are written, the paid month is untouched
	assert.True(t, novWritten)
	assert.False(t, decWritten)
	assert.True(t, janWritten)

	nov, err := l.Entry(ctx, "store-1", month(t, 11, 2025))
	require.NoError(t, err)
	assert.Equal(t, "9500", nov.Amount.String())
	assert.False(t, nov.IsPaid())

	dec, err := l.Entry(ctx, "store-1", month(t, 12, 2025))
	require.NoError(t, err)
	assert.Equal(t, "10000", dec.Amount.String())
	require.NotNil(t, dec.PaidAt)
	assert.True(t, dec.PaidAt.Equal(paidAt))
}

func TestLedger_RecordIfUnpaid_Validation(t *testing.T) {
	e := entry(t, 12, 2025, -1)

	_, written, err := newTestLedger().RecordIfUnpaid(context.Background(), e)

	assert.ErrorIs(t, err, generic.ErrInvalidInput)
	assert.False(t, written)
}

func TestLedger_MarkPaid_Missing(t *testing.T) {
	_, err := newTestLedger().MarkPaid(context.Background(), "store-1", month(t, 12, 2025), fixedNow)
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func TestLedger_Entries_NewestMonthFirst(t *testing.T) {
	// GIVEN: Months recorded out of order across a year boundary
	ctx := context.Background()
	l := newTestLedger()
	for _, e := range []passbook.Entry{entry(t, 11, 2025, 1), entry(t, 2, 2026, 2), entry(t, 12, 2025, 3), entry(t, 1, 2026, 4)} {
		_, err := l.Record(ctx, e)
		require.NoError(t, err)
	}

	// WHEN: Listing
	entries, err := l.Entries(ctx, "store-1")
	require.NoError(t, err)

	// THEN: Newest month first
	var keys []string
	for _, e := range entries {
		keys = append(keys, e.Month.String())
	}
	assert.Equal(t, []string{"02-2026", "01-2026", "12-2025", "11-2025"}, keys)
}

func TestLedger_Entries_OtherStoresExcluded(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger()
	other := entry(t, 12, 2025, 5)
	other.StoreID = "store-2"
	_, err := l.Record(ctx, other)
	require.NoError(t, err)

	entries, err := l.Entries(ctx, "store-1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLedger_Record_Validation(t *testing.T) {
	ctx := context.Background()

	cases := map[string]func(e *passbook.Entry){
		"missing store":   func(e *passbook.Entry) { e.StoreID = "" },
		"missing month":   func(e *passbook.Entry) { e.Month = generic.MonthKey{} },
		"negative amount": func(e *passbook.Entry) { e.Amount = decimal.NewFromInt(-1) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			e := entry(t, 12, 2025, 100)
			mutate(&e)
			_, err := newTestLedger().Record(ctx, e)
			assert.ErrorIs(t, err, generic.ErrInvalidInput)
		})
	}
}

func TestEntry_UnpaidByDefault(t *testing.T) {
	e := entry(t, 12, 2025, 10400)
	assert.False(t, e.IsPaid())
	assert.Equal(t, "12-2025", e.Month.String())
}
