package incentive

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/incentive-engine/generic"
)

// =============================================================================
// DAILY DECOMPOSER
// =============================================================================

// DailyEntry is one counted sale as the decomposer sees it.
type DailyEntry struct {
	Date             generic.TimePoint
	IncentivePerUnit decimal.Decimal
	DeviceBonus      decimal.Decimal
}

// Decompose groups entries by calendar date, newest first. The store's global
// rate applies retroactively to every day: at rate 0 no day earns base or
// volume incentive, at the kicker rate every unit adds the 0.2 uplift.
func Decompose(entries []DailyEntry, rate decimal.Decimal) []DailyRow {
	byDate := make(map[generic.TimePoint]*DailyRow)
	for _, e := range entries {
		key := generic.DateOf(e.Date.Time)
		row, ok := byDate[key]
		if !ok {
			row = &DailyRow{
				Date:            key,
				BaseIncentive:   decimal.Zero,
				VolumeIncentive: decimal.Zero,
				AttachmentBonus: decimal.Zero,
			}
			byDate[key] = row
		}
		row.Units++
		row.BaseIncentive = row.BaseIncentive.Add(e.IncentivePerUnit)
		if rate.Equal(RateKicker) {
			row.VolumeIncentive = row.VolumeIncentive.Add(e.IncentivePerUnit.Mul(kickerUplift))
		}
		row.AttachmentBonus = row.AttachmentBonus.Add(e.DeviceBonus)
	}

	rows := make([]DailyRow, 0, len(byDate))
	for _, row := range byDate {
		if rate.IsZero() {
			row.BaseIncentive = decimal.Zero
			row.VolumeIncentive = decimal.Zero
		}
		row.Total = generic.RoundCurrency(row.BaseIncentive.Add(row.VolumeIncentive).Add(row.AttachmentBonus))
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Date.After(rows[j].Date)
	})
	return rows
}

// Reconcile sums the day totals and compares them with the aggregate.
func Reconcile(rows []DailyRow, storeTotal decimal.Decimal) Reconciliation {
	sum := decimal.Zero
	for _, r := range rows {
		sum = sum.Add(r.Total)
	}
	diff := sum.Sub(storeTotal)
	return Reconciliation{
		DailyTotal: sum,
		StoreTotal: storeTotal,
		Difference: diff,
		Balanced:   diff.IsZero(),
	}
}
