/*
handlers_test.go - HTTP tests for the incentive API

Tests for:
- Every demo scenario produces its expected share end to end
- Status code mapping (400, 404, 409)
- Attach-rate lookup and passbook endpoints
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/incentive-engine/incentive"
	"github.com/warp/incentive-engine/passbook"
	"github.com/warp/incentive-engine/store/sqlite"
	"go.uber.org/zap/zaptest"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testServer struct {
	handler *Handler
	router  http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store, err := sqlite.New(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := NewHandler(store, incentive.NewEngine(store, incentive.WithLogger(logger)), logger)
	return &testServer{handler: h, router: NewRouter(h, nil)}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

const demoIncentivePath = "/api/employees/emp-demo/incentive?month=12&year=2025&headcount=2"

// =============================================================================
// SCENARIOS
// =============================================================================

func TestScenarios_ProduceExpectedShare(t *testing.T) {
	for _, s := range scenarios {
		t.Run(s.dto.ID, func(t *testing.T) {
			// GIVEN: The scenario loaded into a fresh database
			srv := newTestServer(t)
			rec := srv.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: s.dto.ID})
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			// WHEN: Requesting the demo employee's incentive
			rec = srv.do(t, http.MethodGet, demoIncentivePath, nil)

			// THEN: The share matches the scenario's expectation
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			result := decodeBody[incentive.IncentiveResult](t, rec)
			assert.Equal(t, s.dto.ExpectedShare, result.PerEmployeeShare.String())
			assert.Equal(t, "12-2025", result.Month)
			assert.True(t, result.Reconciliation.Balanced)
		})
	}
}

func TestScenarios_CurrentAndReset(t *testing.T) {
	srv := newTestServer(t)
	require.NoError(t, srv.handler.LoadScenarioByID(context.Background(), "fold-bonus"))

	current := decodeBody[ScenarioDTO](t, srv.do(t, http.MethodGet, "/api/scenarios/current", nil))
	assert.Equal(t, "fold-bonus", current.ID)

	rec := srv.do(t, http.MethodPost, "/api/scenarios/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// AND: The employee is gone after the reset
	result := decodeBody[incentive.IncentiveResult](t, srv.do(t, http.MethodGet, demoIncentivePath, nil))
	assert.Equal(t, incentive.StatusNoStore, result.Status)
	assert.True(t, result.PerEmployeeShare.IsZero())
}

func TestScenarios_List(t *testing.T) {
	srv := newTestServer(t)

	list := decodeBody[[]ScenarioDTO](t, srv.do(t, http.MethodGet, "/api/scenarios/", nil))

	assert.Len(t, list, len(scenarios))
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestGetIncentive_StatusCodes(t *testing.T) {
	srv := newTestServer(t)
	require.NoError(t, srv.handler.LoadScenarioByID(context.Background(), "base-rate"))

	cases := []struct {
		name string
		path string
		want int
	}{
		{"ok", demoIncentivePath, http.StatusOK},
		{"month out of range", "/api/employees/emp-demo/incentive?month=13&year=2025&headcount=2", http.StatusBadRequest},
		{"month missing", "/api/employees/emp-demo/incentive?year=2025&headcount=2", http.StatusBadRequest},
		{"year not a number", "/api/employees/emp-demo/incentive?month=12&year=soon&headcount=2", http.StatusBadRequest},
		{"zero headcount", "/api/employees/emp-demo/incentive?month=12&year=2025&headcount=0", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := srv.do(t, http.MethodGet, tc.path, nil)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
}

func TestGetIncentive_UnknownEmployeeIsNoStore(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/api/employees/ghost/incentive?month=12&year=2025&headcount=2", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	result := decodeBody[incentive.IncentiveResult](t, rec)
	assert.Equal(t, incentive.StatusNoStore, result.Status)
}

func TestLoadScenario_Unknown(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "nope"})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, decodeBody[ErrorResponse](t, rec).Error)
}

func TestAppendSales_DuplicateIsConflict(t *testing.T) {
	// GIVEN: The base-rate scenario, whose first sale is sale-30000-01
	srv := newTestServer(t)
	require.NoError(t, srv.handler.LoadScenarioByID(context.Background(), "base-rate"))

	// WHEN: Submitting that sale ID again
	rec := srv.do(t, http.MethodPost, "/api/sales", []map[string]any{{
		"id":                "sale-30000-01",
		"store_id":          "store-demo",
		"employee_id":       "emp-demo",
		"device_price":      "30000",
		"device_category":   "Smartphone",
		"device_model_name": "Galaxy A56",
		"sale_date":         "2025-12-15",
	}})

	// THEN: 409, and the share is unchanged
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	result := decodeBody[incentive.IncentiveResult](t, srv.do(t, http.MethodGet, demoIncentivePath, nil))
	assert.Equal(t, "10000", result.PerEmployeeShare.String())
}

func TestAppendSales_ChangesResult(t *testing.T) {
	// GIVEN: 10 sales at rate 1.0
	srv := newTestServer(t)
	require.NoError(t, srv.handler.LoadScenarioByID(context.Background(), "base-rate"))

	// WHEN: Six more sales bring the store to the kicker
	var batch []map[string]any
	for _, id := range []string{"x1", "x2", "x3", "x4", "x5", "x6"} {
		batch = append(batch, map[string]any{
			"id": id, "store_id": "store-demo", "employee_id": "emp-demo",
			"device_price": 30000, "device_category": "Smartphone",
			"device_model_name": "Galaxy A56", "sale_date": "2025-12-20",
		})
	}
	rec := srv.do(t, http.MethodPost, "/api/sales", batch)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 6, decodeBody[AppendSalesResponse](t, rec).Count)

	// THEN: The volume kicker applies
	result := decodeBody[incentive.IncentiveResult](t, srv.do(t, http.MethodGet, demoIncentivePath, nil))
	assert.Equal(t, "19200", result.PerEmployeeShare.String())
}

func TestAppendSales_EmptyBatch(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/sales", []map[string]any{})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpsertStore_RejectsZeroHeadcount(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPut, "/api/stores/s1", UpsertStoreRequest{Name: "Indiranagar"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// ATTACH RATES
// =============================================================================

func TestAttachRate_AddAndLookup(t *testing.T) {
	srv := newTestServer(t)
	require.NoError(t, srv.handler.LoadScenarioByID(context.Background(), "fold-bonus"))

	// WHEN: A narrower window ending later is added
	rec := srv.do(t, http.MethodPost, "/api/stores/store-demo/attach-rates", map[string]any{
		"id":                "late",
		"start_date":        "2025-12-28",
		"end_date":          "2026-01-03",
		"attach_percentage": 30,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// THEN: It is the latest-ending interval for December
	dto := decodeBody[AttachRateDTO](t, srv.do(t, http.MethodGet, "/api/stores/store-demo/attach-rate?month=12&year=2025", nil))
	assert.True(t, dto.Found)
	assert.Equal(t, "late", dto.IntervalID)
	require.NotNil(t, dto.AttachPercentage)
	assert.Equal(t, "30", dto.AttachPercentage.String())

	// AND: A month with no windows reports not found
	dto = decodeBody[AttachRateDTO](t, srv.do(t, http.MethodGet, "/api/stores/store-demo/attach-rate?month=6&year=2025", nil))
	assert.False(t, dto.Found)
}

func TestAttachRate_InvertedWindow(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/stores/s1/attach-rates", map[string]any{
		"start_date":        "2025-12-10",
		"end_date":          "2025-12-01",
		"attach_percentage": 10,
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// PASSBOOK
// =============================================================================

func TestPassbook_RecordMarkPaidAndList(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPut, "/api/stores/s1/passbook/12-2025", map[string]any{"amount": "10400", "headcount": 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = srv.do(t, http.MethodPost, "/api/stores/s1/passbook/12-2025/paid", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decodeBody[passbook.Entry](t, rec).IsPaid())

	entries := decodeBody[[]passbook.Entry](t, srv.do(t, http.MethodGet, "/api/stores/s1/passbook", nil))
	require.Len(t, entries, 1)
	assert.Equal(t, "12-2025", entries[0].Month.String())
	assert.Equal(t, "10400", entries[0].Amount.String())
}

func TestPassbook_Errors(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/stores/s1/passbook/11-2025/paid", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = srv.do(t, http.MethodPut, "/api/stores/s1/passbook/2025-11", map[string]any{"amount": "1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodPut, "/api/stores/s1/passbook/11-2025", map[string]any{"amount": "-5"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// An empty passbook is an empty list, not null.
	rec = srv.do(t, http.MethodGet, "/api/stores/s2/passbook", nil)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

// =============================================================================
// CONFIGURATION
// =============================================================================

func TestSlabs_ReplaceAndGet(t *testing.T) {
	srv := newTestServer(t)
	require.NoError(t, srv.handler.LoadScenarioByID(context.Background(), "base-rate"))

	// WHEN: Doubling the per-unit incentive
	rec := srv.do(t, http.MethodPut, "/api/slabs", json.RawMessage(`{"slabs":[
		{"id":"standard","incentive_per_unit":4000,"gate_units":4,"volume_kicker_units":8}
	]}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// THEN: The next calculation uses the new table
	result := decodeBody[incentive.IncentiveResult](t, srv.do(t, http.MethodGet, demoIncentivePath, nil))
	assert.Equal(t, "20000", result.PerEmployeeShare.String())

	rec = srv.do(t, http.MethodGet, "/api/slabs", nil)
	assert.Contains(t, rec.Body.String(), `"standard"`)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodGet, "/healthz", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(context.DeadlineExceeded))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}
