package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/incentive-engine/generic"
	"go.uber.org/zap/zaptest"
)

// Rows written around the store (manual edits, bad imports) must fail the
// read instead of turning into zero amounts or zero bounds.

func newRawStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:", zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPriceSlabs_MalformedColumns(t *testing.T) {
	cases := map[string]struct {
		minPrice any
		perUnit  string
	}{
		"per-unit with a thousands separator": {nil, "2,000"},
		"non-numeric lower bound":             {"abc", "2000"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			// GIVEN: A slab row with a malformed money column
			ctx := context.Background()
			s := newRawStore(t)
			_, err := s.db.ExecContext(ctx, `
				INSERT INTO price_slabs (id, min_price, max_price, incentive_per_unit, gate_units, volume_kicker_units)
				VALUES ('bad', ?, NULL, ?, 4, 8)
			`, tc.minPrice, tc.perUnit)
			require.NoError(t, err)

			// WHEN: Reading the slab table
			slabs, err := s.PriceSlabs(ctx)

			// THEN: The read fails and names the slab
			require.Error(t, err)
			assert.Contains(t, err.Error(), "slab bad")
			assert.Nil(t, slabs)
		})
	}
}

func TestAttachRateIntervals_MalformedPercentage(t *testing.T) {
	ctx := context.Background()
	s := newRawStore(t)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attach_rate_intervals (id, store_id, start_date, end_date, attach_percentage, created_at)
		VALUES ('bad', 's1', '2025-12-01', '2025-12-31', '20%', '2025-11-01T00:00:00Z')
	`)
	require.NoError(t, err)

	month, err := generic.NewMonthKey(12, 2025)
	require.NoError(t, err)
	_, err = s.AttachRateIntervals(ctx, "s1", month.Period())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "attach_percentage")
}

func TestPassbookEntry_MalformedAmount(t *testing.T) {
	ctx := context.Background()
	s := newRawStore(t)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO passbook_entries (store_id, month, amount, store_total, headcount, paid_at, updated_at)
		VALUES ('s1', '12-2025', 'ten thousand', '20000', 2, NULL, '2026-01-02T00:00:00Z')
	`)
	require.NoError(t, err)

	month, err := generic.NewMonthKey(12, 2025)
	require.NoError(t, err)
	_, err = s.PassbookEntry(ctx, "s1", month)
	require.Error(t, err)
	assert.NotErrorIs(t, err, generic.ErrNotFound)

	_, err = s.PassbookEntries(ctx, "s1")
	assert.Error(t, err)
}
