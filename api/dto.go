/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. IncentiveResult and
  passbook.Entry already carry JSON tags and are returned as they are;
  this file holds the request bodies and the few responses that do not
  map one-to-one to a domain type.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Directory:
    UpsertStoreRequest, UpsertEmployeeRequest

  Attach rates:
    AttachRateDTO (latest interval for a month)

  Sales:
    AppendSalesResponse

  Passbook:
    RecordPassbookRequest, MarkPaidRequest

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

VALIDATION:
  Validation is done in handlers and the factory, not in DTOs.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/factory.go: SlabTableJSON, AttachRateJSON, SaleJSON bodies
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DIRECTORY
// =============================================================================

// UpsertStoreRequest creates or updates a store. Headcount is only used by
// the payout job.
type UpsertStoreRequest struct {
	Name      string `json:"name"`
	Headcount int    `json:"headcount"`
}

// UpsertEmployeeRequest links an employee to a store. An empty store_id
// unlinks.
type UpsertEmployeeRequest struct {
	Name    string `json:"name"`
	StoreID string `json:"store_id"`
}

// =============================================================================
// ATTACH RATES
// =============================================================================

// AttachRateDTO reports the interval with the latest end date overlapping a
// month. Found is false when the store has no data for the month.
type AttachRateDTO struct {
	StoreID          string           `json:"store_id"`
	Month            string           `json:"month"`
	Found            bool             `json:"found"`
	AttachPercentage *decimal.Decimal `json:"attach_percentage,omitempty"`
	StartDate        string           `json:"start_date,omitempty"`
	EndDate          string           `json:"end_date,omitempty"`
	IntervalID       string           `json:"interval_id,omitempty"`
}

// =============================================================================
// SALES
// =============================================================================

type AppendSalesResponse struct {
	Count   int      `json:"count"`
	SaleIDs []string `json:"sale_ids"`
}

// =============================================================================
// PASSBOOK
// =============================================================================

// RecordPassbookRequest upserts one month. PaidAt is optional; omitting it
// keeps any existing paid stamp.
type RecordPassbookRequest struct {
	Amount     decimal.Decimal  `json:"amount"`
	StoreTotal *decimal.Decimal `json:"store_total,omitempty"`
	Headcount  int              `json:"headcount,omitempty"`
	PaidAt     *time.Time       `json:"paid_at,omitempty"`
}

// MarkPaidRequest stamps disbursement. A missing paid_at means now.
type MarkPaidRequest struct {
	PaidAt *time.Time `json:"paid_at,omitempty"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`

	// Expected per-employee share for the scenario's employee and month.
	ExpectedShare string `json:"expected_share"`
	EmployeeID    string `json:"employee_id"`
	Month         int    `json:"month"`
	Year          int    `json:"year"`
	Headcount     int    `json:"headcount"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
