/*
Package incentive converts raw per-sale records into a store-level monthly
payout.

PURPOSE:
  Sales staff earn a per-unit incentive that depends on the device's price
  tier (slab), on how many units the whole store sold that month, and on a
  per-device bonus gated by the store's attach rate. This package is the
  calculation; storage, HTTP, and passbook persistence live elsewhere.

PIPELINE:
  1. Price Slab Resolver     slab.go        price -> slab
  2. Device Classifier       classifier.go  category+model -> Fold / S25 / Other
  3. Attach Rate Resolver    attach.go      (store, date) -> percentage
  4. Device Bonus Calculator bonus.go       (class, percentage) -> flat bonus
  5. Volume Tier Engine      tier.go        total store units -> 0 / 1.0 / 1.2
  6. Incentive Aggregator    aggregator.go  groups -> store total + share
  7. Daily Decomposer        daily.go       same sales, one row per day

STATELESS:
  Calculate() is a pure function of (sales, slabs, intervals, headcount).
  Engine only adds the batch fetch in front of it.

SEE ALSO:
  - engine.go: CalculateMonthlyIncentive, the exposed operation
  - provider.go: Read-only data interfaces
*/
package incentive

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/incentive-engine/generic"
)

// =============================================================================
// INPUT RECORDS (read-only, owned by external collaborators)
// =============================================================================

// SaleRecord is one device sold. Append-only upstream; never mutated here.
type SaleRecord struct {
	ID              generic.SaleID     `json:"id"`
	StoreID         generic.StoreID    `json:"store_id"`
	EmployeeID      generic.EmployeeID `json:"employee_id"`
	DevicePrice     decimal.Decimal    `json:"device_price"`
	DeviceCategory  string             `json:"device_category"`
	DeviceModelName string             `json:"device_model_name"`
	SaleDate        generic.TimePoint  `json:"sale_date"`
}

// PriceSlab is one price tier. A nil bound is unbounded on that side.
type PriceSlab struct {
	ID                generic.SlabID   `json:"id"`
	MinPrice          *decimal.Decimal `json:"min_price,omitempty"`
	MaxPrice          *decimal.Decimal `json:"max_price,omitempty"`
	IncentivePerUnit  decimal.Decimal  `json:"incentive_per_unit"`
	GateUnits         int              `json:"gate_units"`
	VolumeKickerUnits int              `json:"volume_kicker_units"`
}

// AttachRateInterval is a store's attach percentage over [Start, End].
// Intervals for one store may overlap.
type AttachRateInterval struct {
	ID               string            `json:"id"`
	StoreID          generic.StoreID   `json:"store_id"`
	Start            generic.TimePoint `json:"start_date"`
	End              generic.TimePoint `json:"end_date"`
	AttachPercentage decimal.Decimal   `json:"attach_percentage"`
	CreatedAt        time.Time         `json:"created_at"`
}

func (i AttachRateInterval) Period() generic.Period {
	return generic.Period{Start: i.Start, End: i.End}
}

// =============================================================================
// DEVICE CLASS
// =============================================================================

type DeviceClass string

const (
	DeviceFold       DeviceClass = "fold"
	DeviceFlagship25 DeviceClass = "flagship25"
	DeviceOther      DeviceClass = "other"
)

// =============================================================================
// ATTACH POLICY
// =============================================================================

// AttachPolicy selects which attach percentage feeds device bonuses.
type AttachPolicy string

const (
	// AttachPerGroup uses one percentage per (store, slab) group: the one
	// resolved for the group's earliest sale.
	AttachPerGroup AttachPolicy = "group"

	// AttachPerSale uses each sale's own date-specific percentage.
	AttachPerSale AttachPolicy = "sale"
)

func ParseAttachPolicy(s string) (AttachPolicy, error) {
	switch AttachPolicy(s) {
	case AttachPerGroup, "":
		return AttachPerGroup, nil
	case AttachPerSale:
		return AttachPerSale, nil
	}
	return "", &generic.InvalidInputError{Field: "attach_policy", Reason: "must be group or sale, got " + s}
}

// =============================================================================
// RESULT
// =============================================================================

// Status tells a caller whether a zero total was computed or there was
// nothing to compute.
type Status string

const (
	StatusComputed Status = "computed"
	StatusNoSales  Status = "no_sales"
	StatusNoStore  Status = "no_store"
)

// IncentiveResult is built fresh per call and never mutated afterwards.
type IncentiveResult struct {
	Status           Status          `json:"status"`
	StoreID          generic.StoreID `json:"store_id,omitempty"`
	Month            string          `json:"month"`
	Headcount        int             `json:"headcount"`
	GlobalRate       decimal.Decimal `json:"global_rate"`
	PerEmployeeShare decimal.Decimal `json:"per_employee_share"`
	StoreTotal       decimal.Decimal `json:"store_total"`
	Slabs            []SlabBreakdown `json:"slabs"`
	Daily            []DailyRow      `json:"daily"`
	Units            UnitsSummary    `json:"units"`
	Reconciliation   Reconciliation  `json:"reconciliation"`
	Sales            []SaleOutcome   `json:"sales"`
	Diagnostics      []Diagnostic    `json:"diagnostics,omitempty"`
}

// SlabBreakdown is one (store, slab) group.
type SlabBreakdown struct {
	StoreID          generic.StoreID `json:"store_id"`
	SlabID           generic.SlabID  `json:"slab_id"`
	Units            int             `json:"units"`
	IncentivePerUnit decimal.Decimal `json:"incentive_per_unit"`
	AppliedRate      decimal.Decimal `json:"applied_rate"`
	AttachPercentage decimal.Decimal `json:"attach_percentage"`
	BaseIncentive    decimal.Decimal `json:"base_incentive"`
	FoldUnits        int             `json:"fold_units"`
	FoldBonus        decimal.Decimal `json:"fold_bonus"`
	Flagship25Units  int             `json:"flagship25_units"`
	Flagship25Bonus  decimal.Decimal `json:"flagship25_bonus"`
	DeviceBonusTotal decimal.Decimal `json:"device_bonus_total"`
	Total            decimal.Decimal `json:"total"`
}

// DailyRow is the day-level view of the same computation.
type DailyRow struct {
	Date            generic.TimePoint `json:"date"`
	Units           int               `json:"units"`
	BaseIncentive   decimal.Decimal   `json:"base_incentive"`
	VolumeIncentive decimal.Decimal   `json:"volume_incentive"`
	AttachmentBonus decimal.Decimal   `json:"attachment_bonus"`
	Total           decimal.Decimal   `json:"total"`
}

// UnitsSummary reports volume against the headcount-scaled thresholds.
type UnitsSummary struct {
	TotalUnits             int `json:"total_units"`
	FinalGate              int `json:"final_gate"`
	FinalVolumeKicker      int `json:"final_volume_kicker"`
	UnitsAboveGate         int `json:"units_above_gate"`
	UnitsAboveVolumeKicker int `json:"units_above_volume_kicker"`
}

// Reconciliation compares the daily ledger with the aggregate.
type Reconciliation struct {
	DailyTotal decimal.Decimal `json:"daily_total"`
	StoreTotal decimal.Decimal `json:"store_total"`
	Difference decimal.Decimal `json:"difference"`
	Balanced   bool            `json:"balanced"`
}

// SaleOutcome is the per-sale accumulator entry: either the sale was
// counted (Slab set) or it was skipped (Skipped + Reason).
type SaleOutcome struct {
	SaleID           generic.SaleID    `json:"sale_id"`
	Date             generic.TimePoint `json:"date"`
	Class            DeviceClass       `json:"class"`
	SlabID           generic.SlabID    `json:"slab_id,omitempty"`
	AttachPercentage decimal.Decimal   `json:"attach_percentage"`
	AppliedAttach    decimal.Decimal   `json:"applied_attach_percentage"`
	DeviceBonus      decimal.Decimal   `json:"device_bonus"`
	Skipped          bool              `json:"skipped,omitempty"`
	Reason           DiagnosticCode    `json:"reason,omitempty"`
}

type DiagnosticCode string

const (
	DiagMissingSlabMatch  DiagnosticCode = "missing_slab_match"
	DiagThresholdMismatch DiagnosticCode = "threshold_mismatch"
	DiagAttachDivergence  DiagnosticCode = "attach_divergence"
	DiagUnreconciled      DiagnosticCode = "unreconciled_daily_total"
)

// Diagnostic surfaces a recovered problem next to the result.
type Diagnostic struct {
	Code    DiagnosticCode `json:"code"`
	SaleID  generic.SaleID `json:"sale_id,omitempty"`
	Message string         `json:"message"`
}

// ZeroResult is returned when there is nothing to compute.
func ZeroResult(status Status, storeID generic.StoreID, month generic.MonthKey, headcount int) IncentiveResult {
	return IncentiveResult{
		Status:           status,
		StoreID:          storeID,
		Month:            month.String(),
		Headcount:        headcount,
		GlobalRate:       decimal.Zero,
		PerEmployeeShare: decimal.Zero,
		StoreTotal:       decimal.Zero,
		Slabs:            []SlabBreakdown{},
		Daily:            []DailyRow{},
		Sales:            []SaleOutcome{},
		Reconciliation: Reconciliation{
			DailyTotal: decimal.Zero,
			StoreTotal: decimal.Zero,
			Difference: decimal.Zero,
			Balanced:   true,
		},
	}
}
