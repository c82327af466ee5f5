/*
handlers.go - HTTP API handlers for the incentive engine

PURPOSE:
  Exposes the incentive engine, its configuration, and the passbook via
  REST API. Handles HTTP request/response, JSON serialization, and
  delegates to domain logic.

ENDPOINTS:
  Incentives:
    GET    /api/employees/{id}/incentive?month=&year=&headcount=
    PUT    /api/employees/{id}                     Link employee to store

  Stores:
    PUT    /api/stores/{id}                        Upsert store (headcount)
    GET    /api/stores/{id}/attach-rate?month=&year=
    POST   /api/stores/{id}/attach-rates           Add attach-rate interval

  Passbook:
    GET    /api/stores/{id}/passbook               Newest month first
    PUT    /api/stores/{id}/passbook/{month}       Upsert by "MM-YYYY"
    POST   /api/stores/{id}/passbook/{month}/paid  Mark disbursed

  Configuration:
    GET    /api/slabs                              Current slab table
    PUT    /api/slabs                              Replace slab table
    POST   /api/sales                              Append sales

  Admin:
    POST   /api/admin/payouts/run?month=&year=     Run payout job now
    GET    /api/admin/payouts/runs                 Recent runs

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: Backend (sqlite, postgres, or memory)
  - Engine: Batch fetch + calculation
  - Ledger: Passbook upsert-by-month
  - Factory: JSON to engine types
  - Cache: Optional, invalidated after every write that changes inputs

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Duplicate sale / slab / interval ID
  - 500: Internal errors

  A zero payout is NOT an error: the result's status field is
  "computed", "no_sales", or "no_store".

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/warp/incentive-engine/factory"
	"github.com/warp/incentive-engine/generic"
	"github.com/warp/incentive-engine/incentive"
	"github.com/warp/incentive-engine/passbook"
	"go.uber.org/zap"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   Backend
	Engine  *incentive.Engine
	Ledger  *passbook.Ledger
	Factory *factory.ConfigFactory
	Payouts *PayoutScheduler
	Logger  *zap.Logger

	// Cache may be nil.
	Cache incentive.ResultCache

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler over store. engine should read from the same
// store; its cache, if any, is reused for invalidation.
func NewHandler(store Backend, engine *incentive.Engine, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	ledger := passbook.NewLedger(store)
	return &Handler{
		Store:   store,
		Engine:  engine,
		Ledger:  ledger,
		Factory: factory.NewConfigFactory(),
		Payouts: NewPayoutScheduler(store, engine, ledger, logger),
		Logger:  logger,
		Cache:   engine.Cache,
	}
}

// =============================================================================
// INCENTIVE HANDLERS
// =============================================================================

// GetIncentive computes the employee's monthly payout.
func (h *Handler) GetIncentive(w http.ResponseWriter, r *http.Request) {
	employeeID := generic.EmployeeID(chi.URLParam(r, "id"))

	month, err := intQuery(r, "month")
	if err != nil {
		writeDomainError(w, "Invalid month", err)
		return
	}
	year, err := intQuery(r, "year")
	if err != nil {
		writeDomainError(w, "Invalid year", err)
		return
	}
	headcount, err := intQuery(r, "headcount")
	if err != nil {
		writeDomainError(w, "Invalid headcount", err)
		return
	}

	result, err := h.Engine.CalculateMonthlyIncentive(r.Context(), employeeID, month, year, headcount)
	if err != nil {
		writeDomainError(w, "Failed to calculate incentive", err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// UpsertEmployee links an employee to a store.
func (h *Handler) UpsertEmployee(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpsertEmployeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	emp := generic.EmployeeRecord{
		ID:      generic.EmployeeID(id),
		Name:    req.Name,
		StoreID: generic.StoreID(req.StoreID),
	}
	if err := h.Store.SaveEmployee(r.Context(), emp); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save employee", err)
		return
	}

	writeJSON(w, http.StatusOK, emp)
}

// =============================================================================
// STORE HANDLERS
// =============================================================================

// UpsertStore creates or updates a store.
func (h *Handler) UpsertStore(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpsertStoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Headcount < 1 {
		writeError(w, http.StatusBadRequest, "headcount must be at least 1", nil)
		return
	}

	rec := generic.StoreRecord{ID: generic.StoreID(id), Name: req.Name, Headcount: req.Headcount}
	if err := h.Store.SaveStore(r.Context(), rec); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save store", err)
		return
	}

	saved, err := h.Store.GetStore(r.Context(), rec.ID)
	if err != nil {
		writeDomainError(w, "Failed to load store", err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// GetAttachRate reports the latest-ending attach interval for a month.
func (h *Handler) GetAttachRate(w http.ResponseWriter, r *http.Request) {
	storeID := generic.StoreID(chi.URLParam(r, "id"))

	key, err := monthQuery(r)
	if err != nil {
		writeDomainError(w, "Invalid month", err)
		return
	}

	iv, found, err := h.Engine.LatestAttachRate(r.Context(), storeID, key)
	if err != nil {
		writeDomainError(w, "Failed to resolve attach rate", err)
		return
	}

	dto := AttachRateDTO{StoreID: string(storeID), Month: key.String(), Found: found}
	if found {
		pct := iv.AttachPercentage
		dto.AttachPercentage = &pct
		dto.StartDate = iv.Start.String()
		dto.EndDate = iv.End.String()
		dto.IntervalID = iv.ID
	}
	writeJSON(w, http.StatusOK, dto)
}

// AddAttachRate adds an interval for the store in the path.
func (h *Handler) AddAttachRate(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "id")

	var req factory.AttachRateJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	req.StoreID = storeID

	iv, err := h.Factory.AttachRateFromJSON(req)
	if err != nil {
		writeDomainError(w, "Invalid attach rate", err)
		return
	}
	if err := h.Store.AddAttachRateInterval(r.Context(), iv); err != nil {
		writeDomainError(w, "Failed to save attach rate", err)
		return
	}
	h.invalidateStores(r.Context(), iv.StoreID)

	writeJSON(w, http.StatusCreated, iv)
}

// =============================================================================
// PASSBOOK HANDLERS
// =============================================================================

// GetPassbook lists the store's passbook, newest month first.
func (h *Handler) GetPassbook(w http.ResponseWriter, r *http.Request) {
	storeID := generic.StoreID(chi.URLParam(r, "id"))

	entries, err := h.Ledger.Entries(r.Context(), storeID)
	if err != nil {
		writeDomainError(w, "Failed to load passbook", err)
		return
	}
	if entries == nil {
		entries = []passbook.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// RecordPassbookEntry upserts the entry for the month in the path.
func (h *Handler) RecordPassbookEntry(w http.ResponseWriter, r *http.Request) {
	storeID := generic.StoreID(chi.URLParam(r, "id"))
	month, err := generic.ParseMonthKey(chi.URLParam(r, "month"))
	if err != nil {
		writeDomainError(w, "Invalid month", err)
		return
	}

	var req RecordPassbookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	entry := passbook.Entry{
		StoreID:   storeID,
		Month:     month,
		Amount:    req.Amount,
		Headcount: req.Headcount,
		PaidAt:    req.PaidAt,
	}
	if req.StoreTotal != nil {
		entry.StoreTotal = *req.StoreTotal
	}

	saved, err := h.Ledger.Record(r.Context(), entry)
	if err != nil {
		writeDomainError(w, "Failed to record passbook entry", err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// MarkPaid stamps an existing entry as disbursed.
func (h *Handler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	storeID := generic.StoreID(chi.URLParam(r, "id"))
	month, err := generic.ParseMonthKey(chi.URLParam(r, "month"))
	if err != nil {
		writeDomainError(w, "Invalid month", err)
		return
	}

	var req MarkPaidRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}
	paidAt := time.Now()
	if req.PaidAt != nil {
		paidAt = *req.PaidAt
	}

	saved, err := h.Ledger.MarkPaid(r.Context(), storeID, month, paidAt)
	if err != nil {
		writeDomainError(w, "Failed to mark paid", err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// =============================================================================
// CONFIGURATION HANDLERS
// =============================================================================

// GetSlabs returns the current slab table.
func (h *Handler) GetSlabs(w http.ResponseWriter, r *http.Request) {
	slabs, err := h.Store.PriceSlabs(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load slabs", err)
		return
	}
	writeJSON(w, http.StatusOK, h.Factory.SlabsToJSON(incentive.NewSlabTable(slabs).Slabs()))
}

// ReplaceSlabs swaps the whole slab table.
func (h *Handler) ReplaceSlabs(w http.ResponseWriter, r *http.Request) {
	var req factory.SlabTableJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	slabs, err := h.Factory.SlabsFromJSON(req)
	if err != nil {
		writeDomainError(w, "Invalid slab table", err)
		return
	}
	if err := h.Store.ReplaceSlabs(r.Context(), slabs); err != nil {
		writeDomainError(w, "Failed to save slabs", err)
		return
	}
	if h.Cache != nil {
		if err := h.Cache.InvalidateAll(r.Context()); err != nil {
			h.Logger.Warn("cache invalidation failed", zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, h.Factory.SlabsToJSON(incentive.NewSlabTable(slabs).Slabs()))
}

// AppendSales records a batch of sales. The batch is all-or-nothing.
func (h *Handler) AppendSales(w http.ResponseWriter, r *http.Request) {
	var req []factory.SaleJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req) == 0 {
		writeError(w, http.StatusBadRequest, "At least one sale is required", nil)
		return
	}

	sales, err := h.Factory.SalesFromJSON(req)
	if err != nil {
		writeDomainError(w, "Invalid sales", err)
		return
	}
	if err := h.Store.AppendSales(r.Context(), sales); err != nil {
		writeDomainError(w, "Failed to record sales", err)
		return
	}

	resp := AppendSalesResponse{Count: len(sales), SaleIDs: make([]string, 0, len(sales))}
	stores := make([]generic.StoreID, 0, 1)
	seen := make(map[generic.StoreID]bool)
	for _, s := range sales {
		resp.SaleIDs = append(resp.SaleIDs, string(s.ID))
		if !seen[s.StoreID] {
			seen[s.StoreID] = true
			stores = append(stores, s.StoreID)
		}
	}
	h.invalidateStores(r.Context(), stores...)

	writeJSON(w, http.StatusCreated, resp)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// RunPayouts runs the payout job for the given month, or the previous
// month when month/year are omitted.
func (h *Handler) RunPayouts(w http.ResponseWriter, r *http.Request) {
	var key generic.MonthKey
	if r.URL.Query().Get("month") == "" && r.URL.Query().Get("year") == "" {
		key = generic.MonthKeyOf(generic.Today()).Previous()
	} else {
		var err error
		if key, err = monthQuery(r); err != nil {
			writeDomainError(w, "Invalid month", err)
			return
		}
	}

	run, err := h.Payouts.RunMonth(r.Context(), key)
	if err != nil {
		writeDomainError(w, "Payout run failed", err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// ListPayoutRuns returns recent runs, newest first.
func (h *Handler) ListPayoutRuns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Payouts.Runs())
}

// ResetDatabase clears all data (dev only).
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) reset(ctx context.Context) error {
	if err := h.Store.Reset(ctx); err != nil {
		return err
	}
	if h.Cache != nil {
		if err := h.Cache.InvalidateAll(ctx); err != nil {
			h.Logger.Warn("cache invalidation failed", zap.Error(err))
		}
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) invalidateStores(ctx context.Context, storeIDs ...generic.StoreID) {
	if h.Cache == nil {
		return
	}
	for _, id := range storeIDs {
		if err := h.Cache.InvalidateStore(ctx, id); err != nil {
			h.Logger.Warn("cache invalidation failed", zap.String("store_id", string(id)), zap.Error(err))
		}
	}
}

func intQuery(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, &generic.InvalidInputError{Field: name, Reason: "required"}
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &generic.InvalidInputError{Field: name, Reason: fmt.Sprintf("not an integer: %q", raw)}
	}
	return v, nil
}

func monthQuery(r *http.Request) (generic.MonthKey, error) {
	month, err := intQuery(r, "month")
	if err != nil {
		return generic.MonthKey{}, err
	}
	year, err := intQuery(r, "year")
	if err != nil {
		return generic.MonthKey{}, err
	}
	return generic.NewMonthKey(month, year)
}

// statusFor maps the error taxonomy to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, generic.ErrDuplicate):
		return http.StatusConflict
	case generic.IsClientError(err):
		return http.StatusBadRequest
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case generic.IsRetryable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeDomainError(w http.ResponseWriter, message string, err error) {
	writeError(w, statusFor(err), message, err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
