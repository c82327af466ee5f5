/*
Package factory provides JSON to Go configuration conversion.

PURPOSE:
  Converts JSON slab tables, attach-rate interval sets, and sale batches
  into incentive engine types. Operations staff edit JSON (admin UI,
  seed files, HTTP bodies); the factory validates it and fills defaults.

JSON SCHEMA (slab table):
  {
    "slabs": [
      {"id": "entry", "max_price": "29999", "incentive_per_unit": "500",
       "gate_units": 4, "volume_kicker_units": 8},
      {"id": "premium", "min_price": "30000", "incentive_per_unit": "2000",
       "gate_units": 4, "volume_kicker_units": 8}
    ]
  }

  Money and percentages are accepted as JSON strings or numbers. An omitted
  min_price / max_price is unbounded on that side.

JSON SCHEMA (attach rates):
  [{"store_id": "store-1", "start_date": "2025-12-01",
    "end_date": "2025-12-10", "attach_percentage": "20"}]

JSON SCHEMA (sales):
  [{"store_id": "store-1", "employee_id": "emp-1", "device_price": "45000",
    "device_category": "Smartphone", "device_model_name": "Galaxy Z Fold7",
    "sale_date": "2025-12-07"}]

  A missing "id" is filled with a random UUID.

USAGE:
  f := factory.NewConfigFactory()
  slabs, err := f.ParseSlabTable(jsonString)

  // Preset used by demos and tests
  slabs, err := f.ParseSlabTable(factory.SingleSlabJSON("standard", 2000, 4, 8))

SEE ALSO:
  - incentive/types.go: PriceSlab, AttachRateInterval, SaleRecord
  - api/scenarios.go: Demo data built from these presets
*/
package factory

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/incentive-engine/generic"
	"github.com/warp/incentive-engine/incentive"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// SlabTableJSON is the JSON representation of the whole slab table.
type SlabTableJSON struct {
	Slabs []SlabJSON `json:"slabs"`
}

// SlabJSON represents one price tier.
type SlabJSON struct {
	ID                string           `json:"id"`
	MinPrice          *decimal.Decimal `json:"min_price,omitempty"`
	MaxPrice          *decimal.Decimal `json:"max_price,omitempty"`
	IncentivePerUnit  decimal.Decimal  `json:"incentive_per_unit"`
	GateUnits         int              `json:"gate_units"`
	VolumeKickerUnits int              `json:"volume_kicker_units"`
}

// AttachRateJSON represents one attach-rate window.
type AttachRateJSON struct {
	ID               string          `json:"id,omitempty"`
	StoreID          string          `json:"store_id"`
	StartDate        string          `json:"start_date"`
	EndDate          string          `json:"end_date"`
	AttachPercentage decimal.Decimal `json:"attach_percentage"`
}

// SaleJSON represents one sale submission.
type SaleJSON struct {
	ID              string          `json:"id,omitempty"`
	StoreID         string          `json:"store_id"`
	EmployeeID      string          `json:"employee_id"`
	DevicePrice     decimal.Decimal `json:"device_price"`
	DeviceCategory  string          `json:"device_category"`
	DeviceModelName string          `json:"device_model_name"`
	SaleDate        string          `json:"sale_date"`
}

// =============================================================================
// CONFIG FACTORY
// =============================================================================

// ConfigFactory converts JSON configuration to engine types.
type ConfigFactory struct {
	// NewID generates IDs for records submitted without one.
	NewID func() string
	// Now stamps CreatedAt on attach-rate intervals.
	Now func() time.Time
}

// NewConfigFactory creates a new config factory.
func NewConfigFactory() *ConfigFactory {
	return &ConfigFactory{
		NewID: func() string { return uuid.NewString() },
		Now:   time.Now,
	}
}

// ParseSlabTable parses a JSON slab table.
func (f *ConfigFactory) ParseSlabTable(jsonStr string) ([]incentive.PriceSlab, error) {
	var tj SlabTableJSON
	if err := json.Unmarshal([]byte(jsonStr), &tj); err != nil {
		return nil, fmt.Errorf("failed to parse slab table JSON: %w", err)
	}
	return f.SlabsFromJSON(tj)
}

// SlabsFromJSON validates and converts a slab table. IDs must be unique.
func (f *ConfigFactory) SlabsFromJSON(tj SlabTableJSON) ([]incentive.PriceSlab, error) {
	seen := make(map[string]bool, len(tj.Slabs))
	slabs := make([]incentive.PriceSlab, 0, len(tj.Slabs))
	for i, sj := range tj.Slabs {
		slab, err := parseSlab(sj)
		if err != nil {
			return nil, fmt.Errorf("slab %d: %w", i, err)
		}
		if seen[sj.ID] {
			return nil, &generic.DuplicateError{Kind: "slab", ID: sj.ID}
		}
		seen[sj.ID] = true
		slabs = append(slabs, slab)
	}
	return slabs, nil
}

// SlabsToJSON converts slabs back to their JSON form.
func (f *ConfigFactory) SlabsToJSON(slabs []incentive.PriceSlab) SlabTableJSON {
	tj := SlabTableJSON{Slabs: make([]SlabJSON, 0, len(slabs))}
	for _, s := range slabs {
		tj.Slabs = append(tj.Slabs, SlabJSON{
			ID:                string(s.ID),
			MinPrice:          s.MinPrice,
			MaxPrice:          s.MaxPrice,
			IncentivePerUnit:  s.IncentivePerUnit,
			GateUnits:         s.GateUnits,
			VolumeKickerUnits: s.VolumeKickerUnits,
		})
	}
	return tj
}

// ParseAttachRates parses a JSON array of attach-rate windows.
func (f *ConfigFactory) ParseAttachRates(jsonStr string) ([]incentive.AttachRateInterval, error) {
	var aj []AttachRateJSON
	if err := json.Unmarshal([]byte(jsonStr), &aj); err != nil {
		return nil, fmt.Errorf("failed to parse attach rate JSON: %w", err)
	}
	intervals := make([]incentive.AttachRateInterval, 0, len(aj))
	for _, a := range aj {
		iv, err := f.AttachRateFromJSON(a)
		if err != nil {
			return nil, err
		}
		intervals = append(intervals, iv)
	}
	return intervals, nil
}

// AttachRateFromJSON validates one window. The percentage must be in [0, 100].
func (f *ConfigFactory) AttachRateFromJSON(aj AttachRateJSON) (incentive.AttachRateInterval, error) {
	if aj.StoreID == "" {
		return incentive.AttachRateInterval{}, &generic.InvalidInputError{Field: "store_id", Reason: "required"}
	}
	start, err := parseDate("start_date", aj.StartDate)
	if err != nil {
		return incentive.AttachRateInterval{}, err
	}
	end, err := parseDate("end_date", aj.EndDate)
	if err != nil {
		return incentive.AttachRateInterval{}, err
	}
	if aj.AttachPercentage.IsNegative() || aj.AttachPercentage.GreaterThan(generic.Hundred) {
		return incentive.AttachRateInterval{}, &generic.InvalidInputError{
			Field:  "attach_percentage",
			Reason: "must be between 0 and 100, got " + aj.AttachPercentage.String(),
		}
	}

	iv := incentive.AttachRateInterval{
		ID:               aj.ID,
		StoreID:          generic.StoreID(aj.StoreID),
		Start:            start,
		End:              end,
		AttachPercentage: aj.AttachPercentage,
		CreatedAt:        f.Now().UTC(),
	}
	if err := iv.Period().Validate(); err != nil {
		return incentive.AttachRateInterval{}, err
	}
	if iv.ID == "" {
		iv.ID = f.NewID()
	}
	return iv, nil
}

// ParseSales parses a JSON array of sales.
func (f *ConfigFactory) ParseSales(jsonStr string) ([]incentive.SaleRecord, error) {
	var sj []SaleJSON
	if err := json.Unmarshal([]byte(jsonStr), &sj); err != nil {
		return nil, fmt.Errorf("failed to parse sales JSON: %w", err)
	}
	return f.SalesFromJSON(sj)
}

// SalesFromJSON validates a batch. A repeated ID within the batch is rejected.
func (f *ConfigFactory) SalesFromJSON(sj []SaleJSON) ([]incentive.SaleRecord, error) {
	seen := make(map[string]bool, len(sj))
	sales := make([]incentive.SaleRecord, 0, len(sj))
	for i, s := range sj {
		sale, err := f.saleFromJSON(s)
		if err != nil {
			return nil, fmt.Errorf("sale %d: %w", i, err)
		}
		if seen[string(sale.ID)] {
			return nil, &generic.DuplicateError{Kind: "sale", ID: string(sale.ID)}
		}
		seen[string(sale.ID)] = true
		sales = append(sales, sale)
	}
	return sales, nil
}

func (f *ConfigFactory) saleFromJSON(s SaleJSON) (incentive.SaleRecord, error) {
	if s.StoreID == "" {
		return incentive.SaleRecord{}, &generic.InvalidInputError{Field: "store_id", Reason: "required"}
	}
	if s.EmployeeID == "" {
		return incentive.SaleRecord{}, &generic.InvalidInputError{Field: "employee_id", Reason: "required"}
	}
	if s.DevicePrice.IsNegative() {
		return incentive.SaleRecord{}, &generic.InvalidInputError{Field: "device_price", Reason: "must not be negative"}
	}
	date, err := parseDate("sale_date", s.SaleDate)
	if err != nil {
		return incentive.SaleRecord{}, err
	}

	id := s.ID
	if id == "" {
		id = f.NewID()
	}
	return incentive.SaleRecord{
		ID:              generic.SaleID(id),
		StoreID:         generic.StoreID(s.StoreID),
		EmployeeID:      generic.EmployeeID(s.EmployeeID),
		DevicePrice:     s.DevicePrice,
		DeviceCategory:  strings.TrimSpace(s.DeviceCategory),
		DeviceModelName: strings.TrimSpace(s.DeviceModelName),
		SaleDate:        date,
	}, nil
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseSlab(sj SlabJSON) (incentive.PriceSlab, error) {
	if sj.ID == "" {
		return incentive.PriceSlab{}, &generic.InvalidInputError{Field: "id", Reason: "required"}
	}
	if sj.IncentivePerUnit.IsNegative() {
		return incentive.PriceSlab{}, &generic.InvalidInputError{Field: "incentive_per_unit", Reason: "must not be negative"}
	}
	if sj.GateUnits < 0 || sj.VolumeKickerUnits < 0 {
		return incentive.PriceSlab{}, &generic.InvalidInputError{Field: "gate_units", Reason: "thresholds must not be negative"}
	}
	if sj.VolumeKickerUnits < sj.GateUnits {
		return incentive.PriceSlab{}, &generic.InvalidInputError{
			Field:  "volume_kicker_units",
			Reason: fmt.Sprintf("%d is below gate_units %d", sj.VolumeKickerUnits, sj.GateUnits),
		}
	}
	if sj.MinPrice != nil && sj.MaxPrice != nil && sj.MaxPrice.LessThan(*sj.MinPrice) {
		return incentive.PriceSlab{}, &generic.InvalidInputError{Field: "max_price", Reason: "below min_price"}
	}
	return incentive.PriceSlab{
		ID:                generic.SlabID(sj.ID),
		MinPrice:          sj.MinPrice,
		MaxPrice:          sj.MaxPrice,
		IncentivePerUnit:  sj.IncentivePerUnit,
		GateUnits:         sj.GateUnits,
		VolumeKickerUnits: sj.VolumeKickerUnits,
	}, nil
}

func parseDate(field, s string) (generic.TimePoint, error) {
	if s == "" {
		return generic.TimePoint{}, &generic.InvalidInputError{Field: field, Reason: "required"}
	}
	tp, err := generic.ParseDate(s)
	if err != nil {
		return generic.TimePoint{}, &generic.InvalidInputError{Field: field, Reason: "expected YYYY-MM-DD, got " + s}
	}
	return tp, nil
}

// =============================================================================
// PRESETS
// =============================================================================

// SingleSlabJSON returns a one-slab table covering every price.
func SingleSlabJSON(id string, incentivePerUnit int64, gateUnits, volumeKickerUnits int) string {
	tj := SlabTableJSON{Slabs: []SlabJSON{{
		ID:                id,
		IncentivePerUnit:  decimal.NewFromInt(incentivePerUnit),
		GateUnits:         gateUnits,
		VolumeKickerUnits: volumeKickerUnits,
	}}}
	b, _ := json.MarshalIndent(tj, "", "  ")
	return string(b)
}

// TieredSlabJSON returns a three-tier table: below 15000, 15000-29999, and
// 30000 and above, all sharing the same thresholds.
func TieredSlabJSON(gateUnits, volumeKickerUnits int) string {
	bound := func(v int64) *decimal.Decimal {
		d := decimal.NewFromInt(v)
		return &d
	}
	tj := SlabTableJSON{Slabs: []SlabJSON{
		{ID: "entry", MaxPrice: bound(14999), IncentivePerUnit: decimal.NewFromInt(300),
			GateUnits: gateUnits, VolumeKickerUnits: volumeKickerUnits},
		{ID: "mid", MinPrice: bound(15000), MaxPrice: bound(29999), IncentivePerUnit: decimal.NewFromInt(800),
			GateUnits: gateUnits, VolumeKickerUnits: volumeKickerUnits},
		{ID: "premium", MinPrice: bound(30000), IncentivePerUnit: decimal.NewFromInt(2000),
			GateUnits: gateUnits, VolumeKickerUnits: volumeKickerUnits},
	}}
	b, _ := json.MarshalIndent(tj, "", "  ")
	return string(b)
}
