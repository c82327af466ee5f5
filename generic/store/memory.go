// Package store provides an in-memory backend for tests and demos.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/incentive-engine/generic"
	"github.com/warp/incentive-engine/incentive"
	"github.com/warp/incentive-engine/passbook"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	sales     map[generic.StoreID][]incentive.SaleRecord
	saleIDs   map[generic.SaleID]bool
	slabs     []incentive.PriceSlab
	intervals map[generic.StoreID][]incentive.AttachRateInterval
	stores    map[generic.StoreID]generic.StoreRecord
	employees map[generic.EmployeeID]generic.EmployeeRecord
	passbook  map[passbookKey]passbook.Entry
}

type passbookKey struct {
	StoreID generic.StoreID
	Month   string
}

var (
	_ incentive.Provider = (*Memory)(nil)
	_ passbook.Store     = (*Memory)(nil)
)

func NewMemory() *Memory {
	m := &Memory{}
	m.resetLocked()
	return m
}

func (m *Memory) resetLocked() {
	m.sales = make(map[generic.StoreID][]incentive.SaleRecord)
	m.saleIDs = make(map[generic.SaleID]bool)
	m.slabs = nil
	m.intervals = make(map[generic.StoreID][]incentive.AttachRateInterval)
	m.stores = make(map[generic.StoreID]generic.StoreRecord)
	m.employees = make(map[generic.EmployeeID]generic.EmployeeRecord)
	m.passbook = make(map[passbookKey]passbook.Entry)
}

// Reset drops everything.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
	return nil
}

// =============================================================================
// SALES (append-only)
// =============================================================================

// AppendSales adds sales atomically. A duplicate ID rejects the whole batch.
func (m *Memory) AppendSales(_ context.Context, sales []incentive.SaleRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[generic.SaleID]bool, len(sales))
	for _, s := range sales {
		if m.saleIDs[s.ID] || seen[s.ID] {
			return &generic.DuplicateError{Kind: "sale", ID: string(s.ID)}
		}
		seen[s.ID] = true
	}
	for _, s := range sales {
		m.insertSaleLocked(s)
	}
	return nil
}

func (m *Memory) insertSaleLocked(s incentive.SaleRecord) {
	sales := m.sales[s.StoreID]

	// Keep each store's sales ordered by date.
	i := sort.Search(len(sales), func(i int) bool {
		return sales[i].SaleDate.After(s.SaleDate)
	})
	sales = append(sales, incentive.SaleRecord{})
	copy(sales[i+1:], sales[i:])
	sales[i] = s
	m.sales[s.StoreID] = sales
	m.saleIDs[s.ID] = true
}

func (m *Memory) SalesForStore(_ context.Context, storeID generic.StoreID, period generic.Period) ([]incentive.SaleRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []incentive.SaleRecord
	for _, s := range m.sales[storeID] {
		if period.Contains(s.SaleDate) {
			result = append(result, s)
		}
	}
	return result, nil
}

// =============================================================================
// SLABS
// =============================================================================

// ReplaceSlabs swaps the whole slab table.
func (m *Memory) ReplaceSlabs(_ context.Context, slabs []incentive.PriceSlab) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slabs = append([]incentive.PriceSlab(nil), slabs...)
	return nil
}

func (m *Memory) PriceSlabs(_ context.Context) ([]incentive.PriceSlab, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]incentive.PriceSlab(nil), m.slabs...), nil
}

// =============================================================================
// ATTACH RATES
// =============================================================================

func (m *Memory) AddAttachRateInterval(_ context.Context, iv incentive.AttachRateInterval) error {
	if err := iv.Period().Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.intervals[iv.StoreID] = append(m.intervals[iv.StoreID], iv)
	return nil
}

func (m *Memory) AttachRateIntervals(_ context.Context, storeID generic.StoreID, period generic.Period) ([]incentive.AttachRateInterval, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []incentive.AttachRateInterval
	for _, iv := range m.intervals[storeID] {
		if iv.Period().Overlaps(period) {
			result = append(result, iv)
		}
	}
	return result, nil
}

// =============================================================================
// DIRECTORY
// =============================================================================

func (m *Memory) SaveStore(_ context.Context, s generic.StoreRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stores[s.ID] = s
	return nil
}

func (m *Memory) GetStore(_ context.Context, id generic.StoreID) (generic.StoreRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.stores[id]
	if !ok {
		return generic.StoreRecord{}, &generic.NotFoundError{Kind: "store", ID: string(id)}
	}
	return s, nil
}

func (m *Memory) ListStores(_ context.Context) ([]generic.StoreRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]generic.StoreRecord, 0, len(m.stores))
	for _, s := range m.stores {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) SaveEmployee(_ context.Context, e generic.EmployeeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employees[e.ID] = e
	return nil
}

func (m *Memory) StoreForEmployee(_ context.Context, employeeID generic.EmployeeID) (generic.StoreID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.employees[employeeID]
	if !ok {
		return "", &generic.NotFoundError{Kind: "employee", ID: string(employeeID)}
	}
	return e.StoreID, nil
}

// =============================================================================
// PASSBOOK
// =============================================================================

func (m *Memory) UpsertPassbookEntry(_ context.Context, e passbook.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passbook[passbookKey{StoreID: e.StoreID, Month: e.Month.String()}] = e
	return nil
}

func (m *Memory) UpsertUnpaidPassbookEntry(_ context.Context, e passbook.Entry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := passbookKey{StoreID: e.StoreID, Month: e.Month.String()}
	if existing, ok := m.passbook[key]; ok && existing.IsPaid() {
		return false, nil
	}
	m.passbook[key] = e
	return true, nil
}

func (m *Memory) PassbookEntry(_ context.Context, storeID generic.StoreID, month generic.MonthKey) (passbook.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.passbook[passbookKey{StoreID: storeID, Month: month.String()}]
	if !ok {
		return passbook.Entry{}, &generic.NotFoundError{Kind: "passbook entry", ID: string(storeID) + "/" + month.String()}
	}
	return e, nil
}

func (m *Memory) PassbookEntries(_ context.Context, storeID generic.StoreID) ([]passbook.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []passbook.Entry
	for k, e := range m.passbook {
		if k.StoreID == storeID {
			result = append(result, e)
		}
	}
	return result, nil
}
