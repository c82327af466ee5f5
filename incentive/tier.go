package incentive

import "github.com/shopspring/decimal"

// =============================================================================
// VOLUME TIER ENGINE
// =============================================================================

// Global rates. One of these applies to every slab group of a store.
var (
	RateNone   = decimal.Zero
	RateBase   = decimal.NewFromInt(1)
	RateKicker = decimal.RequireFromString("1.2")

	// kickerUplift is the part of RateKicker above RateBase.
	kickerUplift = RateKicker.Sub(RateBase)
)

// Thresholds are a slab's gate and volume kicker scaled by store headcount.
type Thresholds struct {
	Gate         int
	VolumeKicker int
}

func ScaleThresholds(slab PriceSlab, headcount int) Thresholds {
	return Thresholds{
		Gate:         slab.GateUnits * headcount,
		VolumeKicker: slab.VolumeKickerUnits * headcount,
	}
}

// VolumeTier is the store-wide decision: total units across every slab
// against one set of thresholds.
type VolumeTier struct {
	Thresholds
	TotalUnits int
	Rate       decimal.Decimal
}

// DecideTier picks the global rate. Both boundaries belong to the higher
// tier: reaching the gate exactly earns 1.0, reaching the kicker exactly 1.2.
func DecideTier(totalUnits int, th Thresholds) VolumeTier {
	rate := RateNone
	switch {
	case totalUnits >= th.VolumeKicker && totalUnits >= th.Gate:
		rate = RateKicker
	case totalUnits >= th.Gate:
		rate = RateBase
	}
	return VolumeTier{Thresholds: th, TotalUnits: totalUnits, Rate: rate}
}

// Summary reports units above each threshold, never negative.
func (v VolumeTier) Summary() UnitsSummary {
	return UnitsSummary{
		TotalUnits:             v.TotalUnits,
		FinalGate:              v.Gate,
		FinalVolumeKicker:      v.VolumeKicker,
		UnitsAboveGate:         max(0, v.TotalUnits-v.Gate),
		UnitsAboveVolumeKicker: max(0, v.TotalUnits-v.VolumeKicker),
	}
}
