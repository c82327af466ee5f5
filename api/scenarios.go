/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
  Provides pre-built scenarios that populate the database with a slab
  table, one store, one employee, attach-rate windows, and a month of
  sales. Each one demonstrates a specific rule of the calculation and
  carries the per-employee share it should produce.

AVAILABLE SCENARIOS (store-demo, headcount 2, December 2025):
  below-gate:     5 sales, gate not reached, share 0
  base-rate:      10 sales, rate 1.0, share 10000
  volume-kicker:  16 sales, rate 1.2, share 19200
  fold-bonus:     10 sales incl. 2 Fold7 at 20% attach, share 10400
  mixed-slabs:    Three-tier slab table, S25 bonus at 15% attach, share 7850

  The first four use one slab: 2000 per unit, gate 4, kicker 8, so with
  headcount 2 the store gate is 8 units and the kicker 16.

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Replace slab table via factory preset
 3. Create store and employee
 4. Add attach-rate windows
 5. Append sales

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "fold-bonus"}

	GET /api/employees/emp-demo/incentive?month=12&year=2025&headcount=2

NOTE:
  Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Reset handler
  - factory/factory.go: Slab presets
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/incentive-engine/factory"
	"github.com/warp/incentive-engine/generic"
	"go.uber.org/zap"
)

const (
	demoStore    = "store-demo"
	demoEmployee = "emp-demo"
	demoYear     = 2025
	demoMonth    = 12
	demoHC       = 2
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenario struct {
	dto    ScenarioDTO
	slabs  string
	attach []factory.AttachRateJSON
	sales  []factory.SaleJSON
}

var scenarios = []scenario{
	{
		dto:   demoDTO("below-gate", "Below Gate", "5 ordinary sales against a store gate of 8: no payout", "0"),
		slabs: factory.SingleSlabJSON("standard", 2000, 4, 8),
		sales: demoSales(5, 0, "", 30000),
	},
	{
		dto:   demoDTO("base-rate", "Base Rate", "10 ordinary sales: gate reached, kicker not, rate 1.0", "10000"),
		slabs: factory.SingleSlabJSON("standard", 2000, 4, 8),
		sales: demoSales(10, 0, "", 30000),
	},
	{
		dto:   demoDTO("volume-kicker", "Volume Kicker", "16 ordinary sales: exactly at the kicker, rate 1.2", "19200"),
		slabs: factory.SingleSlabJSON("standard", 2000, 4, 8),
		sales: demoSales(16, 0, "", 30000),
	},
	{
		dto:    demoDTO("fold-bonus", "Fold Bonus", "10 sales incl. 2 Galaxy Z Fold7 at 20% attach: 400 bonus each", "10400"),
		slabs:  factory.SingleSlabJSON("standard", 2000, 4, 8),
		attach: []factory.AttachRateJSON{demoAttach("2025-12-01", "2025-12-31", 20)},
		sales:  demoSales(10, 2, "Galaxy Z Fold7", 30000),
	},
	{
		dto:    demoDTO("mixed-slabs", "Mixed Slabs", "6 premium + 4 mid-tier sales incl. one S25 at 15% attach", "7850"),
		slabs:  factory.TieredSlabJSON(4, 8),
		attach: []factory.AttachRateJSON{demoAttach("2025-12-01", "2025-12-31", 15)},
		sales:  append(demoSales(6, 0, "", 45000), midTierSales()...),
	},
}

func demoDTO(id, name, description, share string) ScenarioDTO {
	return ScenarioDTO{
		ID:            id,
		Name:          name,
		Description:   description,
		ExpectedShare: share,
		EmployeeID:    demoEmployee,
		Month:         demoMonth,
		Year:          demoYear,
		Headcount:     demoHC,
	}
}

// demoSales returns n sales spread over December; the first special of them
// use the given model name, the rest an ordinary phone.
func demoSales(n, special int, model string, price int64) []factory.SaleJSON {
	sales := make([]factory.SaleJSON, 0, n)
	for i := 0; i < n; i++ {
		m := "Galaxy A55"
		if i < special {
			m = model
		}
		sales = append(sales, factory.SaleJSON{
			ID:              fmt.Sprintf("sale-%d-%02d", price, i+1),
			StoreID:         demoStore,
			EmployeeID:      demoEmployee,
			DevicePrice:     decimal.NewFromInt(price),
			DeviceCategory:  "Smartphone",
			DeviceModelName: m,
			SaleDate:        time.Date(demoYear, demoMonth, 1+i%28, 0, 0, 0, 0, time.UTC).Format(generic.DateLayout),
		})
	}
	return sales
}

func midTierSales() []factory.SaleJSON {
	sales := demoSales(4, 1, "Galaxy S25", 20000)
	for i := range sales {
		sales[i].ID = fmt.Sprintf("sale-mid-%02d", i+1)
	}
	return sales
}

func demoAttach(start, end string, pct int64) factory.AttachRateJSON {
	return factory.AttachRateJSON{
		ID:               fmt.Sprintf("attach-%s-%s", start, end),
		StoreID:          demoStore,
		StartDate:        start,
		EndDate:          end,
		AttachPercentage: decimal.NewFromInt(pct),
	}
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	dtos := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		dtos[i] = s.dto
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if s, ok := findScenario(current); ok {
		writeJSON(w, http.StatusOK, s.dto)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.LoadScenarioByID(r.Context(), req.ScenarioID); err != nil {
		writeDomainError(w, "Failed to load scenario", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// LoadScenarioByID resets the database and loads one scenario.
func (h *Handler) LoadScenarioByID(ctx context.Context, id string) error {
	s, ok := findScenario(id)
	if !ok {
		return &generic.NotFoundError{Kind: "scenario", ID: id}
	}

	if err := h.reset(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	if err := h.loadScenario(ctx, s); err != nil {
		return fmt.Errorf("load %s: %w", id, err)
	}

	h.mu.Lock()
	h.currentScenario = id
	h.mu.Unlock()
	h.Logger.Info("scenario loaded", zap.String("scenario", id))
	return nil
}

// =============================================================================
// SCENARIO LOADER
// =============================================================================

func (h *Handler) loadScenario(ctx context.Context, s scenario) error {
	slabs, err := h.Factory.ParseSlabTable(s.slabs)
	if err != nil {
		return err
	}
	if err := h.Store.ReplaceSlabs(ctx, slabs); err != nil {
		return err
	}

	if err := h.Store.SaveStore(ctx, generic.StoreRecord{ID: demoStore, Name: "Demo Store", Headcount: demoHC}); err != nil {
		return err
	}
	if err := h.Store.SaveEmployee(ctx, generic.EmployeeRecord{ID: demoEmployee, Name: "Demo Seller", StoreID: demoStore}); err != nil {
		return err
	}

	for _, a := range s.attach {
		iv, err := h.Factory.AttachRateFromJSON(a)
		if err != nil {
			return err
		}
		if err := h.Store.AddAttachRateInterval(ctx, iv); err != nil {
			return err
		}
	}

	sales, err := h.Factory.SalesFromJSON(s.sales)
	if err != nil {
		return err
	}
	return h.Store.AppendSales(ctx, sales)
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.dto.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}
