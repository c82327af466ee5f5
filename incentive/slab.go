package incentive

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PRICE SLAB RESOLVER
// =============================================================================

// SlabTable resolves a device price to its slab. The table is sorted once at
// construction, so resolution is a first-match scan and the same price always
// lands on the same slab even when ranges share a boundary.
type SlabTable struct {
	slabs []PriceSlab
}

// NewSlabTable orders slabs by MinPrice descending with an unset MinPrice
// last. Ties fall back to the narrower upper bound (unset MaxPrice last), then
// to the slab ID.
func NewSlabTable(slabs []PriceSlab) *SlabTable {
	sorted := make([]PriceSlab, len(slabs))
	copy(sorted, slabs)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if c := compareLower(a.MinPrice, b.MinPrice); c != 0 {
			return c > 0
		}
		if c := compareUpper(a.MaxPrice, b.MaxPrice); c != 0 {
			return c < 0
		}
		return a.ID < b.ID
	})
	return &SlabTable{slabs: sorted}
}

// Resolve returns the most specific slab containing price.
func (t *SlabTable) Resolve(price decimal.Decimal) (PriceSlab, bool) {
	for _, s := range t.slabs {
		if s.Contains(price) {
			return s, true
		}
	}
	return PriceSlab{}, false
}

// Slabs returns the table in resolution order.
func (t *SlabTable) Slabs() []PriceSlab {
	out := make([]PriceSlab, len(t.slabs))
	copy(out, t.slabs)
	return out
}

// Contains reports whether price falls inside the slab's inclusive bounds.
func (s PriceSlab) Contains(price decimal.Decimal) bool {
	if s.MinPrice != nil && price.LessThan(*s.MinPrice) {
		return false
	}
	if s.MaxPrice != nil && price.GreaterThan(*s.MaxPrice) {
		return false
	}
	return true
}

// compareLower orders lower bounds with nil as negative infinity.
func compareLower(a, b *decimal.Decimal) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return a.Cmp(*b)
}

// compareUpper orders upper bounds with nil as positive infinity.
func compareUpper(a, b *decimal.Decimal) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return a.Cmp(*b)
}
