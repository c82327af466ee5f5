package incentive

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/incentive-engine/generic"
)

// =============================================================================
// ATTACH RATE RESOLVER
// =============================================================================

// AttachIndex holds every interval fetched for a calculation, bucketed by
// store and sorted by start date. Sales are resolved against it in memory
// instead of one store round trip per sale. Read-only after construction.
type AttachIndex struct {
	byStore map[generic.StoreID][]AttachRateInterval
}

// NewAttachIndex drops intervals whose end precedes their start; they can
// never contain a date.
func NewAttachIndex(intervals []AttachRateInterval) *AttachIndex {
	idx := &AttachIndex{byStore: make(map[generic.StoreID][]AttachRateInterval)}
	for _, iv := range intervals {
		if iv.End.Before(iv.Start) {
			continue
		}
		idx.byStore[iv.StoreID] = append(idx.byStore[iv.StoreID], iv)
	}
	for _, ivs := range idx.byStore {
		sort.SliceStable(ivs, func(i, j int) bool {
			return ivs[i].Start.Before(ivs[j].Start)
		})
	}
	return idx
}

// ResolveForDate picks, among the store's intervals containing date, the one
// with the earliest end date: the smallest enclosing window.
func (x *AttachIndex) ResolveForDate(storeID generic.StoreID, date generic.TimePoint) (AttachRateInterval, bool) {
	ivs := x.byStore[storeID]
	// Only intervals starting on or before date can contain it.
	n := sort.Search(len(ivs), func(i int) bool { return ivs[i].Start.After(date) })

	var best AttachRateInterval
	found := false
	for _, iv := range ivs[:n] {
		if iv.End.Before(date) {
			continue
		}
		if !found || iv.End.Before(best.End) || (iv.End.Equal(best.End) && preferOnTie(iv, best)) {
			best, found = iv, true
		}
	}
	return best, found
}

// ResolveLatestForMonth picks, among intervals overlapping the month, the one
// with the latest end date. Reporting only; payouts use ResolveForDate.
func (x *AttachIndex) ResolveLatestForMonth(storeID generic.StoreID, month generic.MonthKey) (AttachRateInterval, bool) {
	window := month.Period()

	var best AttachRateInterval
	found := false
	for _, iv := range x.byStore[storeID] {
		if !iv.Period().Overlaps(window) {
			continue
		}
		if !found || iv.End.After(best.End) || (iv.End.Equal(best.End) && preferOnTie(iv, best)) {
			best, found = iv, true
		}
	}
	return best, found
}

// PercentageFor is ResolveForDate with "no interval" collapsed to 0%.
func (x *AttachIndex) PercentageFor(storeID generic.StoreID, date generic.TimePoint) decimal.Decimal {
	if iv, ok := x.ResolveForDate(storeID, date); ok {
		return iv.AttachPercentage
	}
	return decimal.Zero
}

// preferOnTie breaks equal end dates: later start (narrower window), then
// most recently created, then the larger ID.
func preferOnTie(candidate, current AttachRateInterval) bool {
	if !candidate.Start.Equal(current.Start) {
		return candidate.Start.After(current.Start)
	}
	if !candidate.CreatedAt.Equal(current.CreatedAt) {
		return candidate.CreatedAt.After(current.CreatedAt)
	}
	return candidate.ID > current.ID
}
