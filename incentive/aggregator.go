package incentive

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/incentive-engine/generic"
)

// =============================================================================
// INCENTIVE AGGREGATOR
// =============================================================================

// CalculationInput is everything one calculation reads. All slices are
// treated as read-only.
type CalculationInput struct {
	StoreID      generic.StoreID
	Month        generic.MonthKey
	Headcount    int
	Sales        []SaleRecord
	Slabs        []PriceSlab
	Intervals    []AttachRateInterval
	AttachPolicy AttachPolicy
}

// slabGroup accumulates one (store, slab) group in first-seen order.
type slabGroup struct {
	slab     PriceSlab
	attach   decimal.Decimal
	outcomes []int
}

// Calculate is the pure core: no I/O, no shared state. Sales outside the
// store or month are ignored. A headcount below 1 is rejected outright.
func Calculate(in CalculationInput) (IncentiveResult, error) {
	if in.Headcount < 1 {
		return IncentiveResult{}, &generic.InvalidInputError{
			Field:  "headcount",
			Reason: fmt.Sprintf("must be at least 1, got %d", in.Headcount),
		}
	}
	policy, err := ParseAttachPolicy(string(in.AttachPolicy))
	if err != nil {
		return IncentiveResult{}, err
	}

	sales := salesInScope(in.Sales, in.StoreID, in.Month.Period())
	if len(sales) == 0 {
		return ZeroResult(StatusNoSales, in.StoreID, in.Month, in.Headcount), nil
	}

	table := NewSlabTable(in.Slabs)
	index := NewAttachIndex(in.Intervals)

	var (
		outcomes    = make([]SaleOutcome, 0, len(sales))
		diagnostics []Diagnostic
		groups      []*slabGroup
		groupBySlab = make(map[generic.SlabID]*slabGroup)
	)

	// 1. Classify, slab-resolve, and attach-resolve every sale; group by slab.
	for _, sale := range sales {
		outcome := SaleOutcome{
			SaleID:           sale.ID,
			Date:             sale.SaleDate,
			Class:            Classify(sale.DeviceCategory, sale.DeviceModelName),
			AttachPercentage: index.PercentageFor(in.StoreID, sale.SaleDate),
			AppliedAttach:    decimal.Zero,
			DeviceBonus:      decimal.Zero,
		}

		slab, ok := table.Resolve(sale.DevicePrice)
		if !ok {
			outcome.Skipped = true
			outcome.Reason = DiagMissingSlabMatch
			outcomes = append(outcomes, outcome)
			diagnostics = append(diagnostics, Diagnostic{
				Code:    DiagMissingSlabMatch,
				SaleID:  sale.ID,
				Message: fmt.Sprintf("price %s matches no configured slab; sale skipped", sale.DevicePrice),
			})
			continue
		}
		outcome.SlabID = slab.ID

		g, seen := groupBySlab[slab.ID]
		if !seen {
			g = &slabGroup{slab: slab, attach: outcome.AttachPercentage}
			groupBySlab[slab.ID] = g
			groups = append(groups, g)
		}
		g.outcomes = append(g.outcomes, len(outcomes))
		outcomes = append(outcomes, outcome)
	}

	if len(groups) == 0 {
		result := ZeroResult(StatusNoSales, in.StoreID, in.Month, in.Headcount)
		result.Sales = outcomes
		result.Diagnostics = diagnostics
		return result, nil
	}

	// 2. One global rate from total units across all groups, against the
	// first group's thresholds.
	thresholds := ScaleThresholds(groups[0].slab, in.Headcount)
	for _, g := range groups[1:] {
		if g.slab.GateUnits != groups[0].slab.GateUnits || g.slab.VolumeKickerUnits != groups[0].slab.VolumeKickerUnits {
			diagnostics = append(diagnostics, Diagnostic{
				Code: DiagThresholdMismatch,
				Message: fmt.Sprintf("slab %s thresholds (gate %d, kicker %d) differ from slab %s (gate %d, kicker %d); store uses the latter",
					g.slab.ID, g.slab.GateUnits, g.slab.VolumeKickerUnits,
					groups[0].slab.ID, groups[0].slab.GateUnits, groups[0].slab.VolumeKickerUnits),
			})
		}
	}
	totalUnits := 0
	for _, g := range groups {
		totalUnits += len(g.outcomes)
	}
	tier := DecideTier(totalUnits, thresholds)

	// 3. Apply the rate to each group and add device bonuses.
	storeTotal := decimal.Zero
	breakdown := make([]SlabBreakdown, 0, len(groups))
	entries := make([]DailyEntry, 0, totalUnits)
	for _, g := range groups {
		row := SlabBreakdown{
			StoreID:          in.StoreID,
			SlabID:           g.slab.ID,
			Units:            len(g.outcomes),
			IncentivePerUnit: g.slab.IncentivePerUnit,
			AppliedRate:      tier.Rate,
			AttachPercentage: g.attach,
			FoldBonus:        decimal.Zero,
			Flagship25Bonus:  decimal.Zero,
			DeviceBonusTotal: decimal.Zero,
		}
		row.BaseIncentive = g.slab.IncentivePerUnit.Mul(decimal.NewFromInt(int64(row.Units))).Mul(tier.Rate)

		diverged := 0
		for _, i := range g.outcomes {
			o := &outcomes[i]
			o.AppliedAttach = g.attach
			if policy == AttachPerSale {
				o.AppliedAttach = o.AttachPercentage
			} else if !o.AttachPercentage.Equal(g.attach) {
				diverged++
			}
			attach := o.AppliedAttach
			o.DeviceBonus = DeviceBonus(o.Class, &attach)

			switch o.Class {
			case DeviceFold:
				row.FoldUnits++
				row.FoldBonus = row.FoldBonus.Add(o.DeviceBonus)
			case DeviceFlagship25:
				row.Flagship25Units++
				row.Flagship25Bonus = row.Flagship25Bonus.Add(o.DeviceBonus)
			}
			row.DeviceBonusTotal = row.DeviceBonusTotal.Add(o.DeviceBonus)

			entries = append(entries, DailyEntry{
				Date:             o.Date,
				IncentivePerUnit: g.slab.IncentivePerUnit,
				DeviceBonus:      o.DeviceBonus,
			})
		}
		if diverged > 0 {
			diagnostics = append(diagnostics, Diagnostic{
				Code: DiagAttachDivergence,
				Message: fmt.Sprintf("slab %s: %d sale(s) have a date-specific attach rate different from the group rate %s%%",
					g.slab.ID, diverged, g.attach),
			})
		}

		row.Total = row.BaseIncentive.Add(row.DeviceBonusTotal)
		storeTotal = storeTotal.Add(row.Total)
		breakdown = append(breakdown, row)
	}

	// 4. Day-level view of the same sales, checked against the aggregate.
	daily := Decompose(entries, tier.Rate)
	recon := Reconcile(daily, storeTotal)
	if !recon.Balanced {
		diagnostics = append(diagnostics, Diagnostic{
			Code:    DiagUnreconciled,
			Message: fmt.Sprintf("daily rows sum to %s but store total is %s", recon.DailyTotal, recon.StoreTotal),
		})
	}

	return IncentiveResult{
		Status:           StatusComputed,
		StoreID:          in.StoreID,
		Month:            in.Month.String(),
		Headcount:        in.Headcount,
		GlobalRate:       tier.Rate,
		PerEmployeeShare: generic.RoundCurrency(storeTotal.Div(decimal.NewFromInt(int64(in.Headcount)))),
		StoreTotal:       storeTotal,
		Slabs:            breakdown,
		Daily:            daily,
		Units:            tier.Summary(),
		Reconciliation:   recon,
		Sales:            outcomes,
		Diagnostics:      diagnostics,
	}, nil
}

// salesInScope keeps the store's sales inside period, ordered by date then ID
// so "first sale of a group" is well defined.
func salesInScope(sales []SaleRecord, storeID generic.StoreID, period generic.Period) []SaleRecord {
	out := make([]SaleRecord, 0, len(sales))
	for _, s := range sales {
		if s.StoreID == storeID && period.Contains(s.SaleDate) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].SaleDate.Compare(out[j].SaleDate); c != 0 {
			return c < 0
		}
		return out[i].ID < out[j].ID
	})
	return out
}
