/*
Package generic provides the primitives shared by the incentive engine, the
passbook ledger, and every storage backend.

PURPOSE:
  Domain-agnostic building blocks: calendar dates, inclusive periods, month
  keys, money arithmetic on decimals, and typed identifiers. Nothing in here
  knows about slabs, devices, or attach rates.

KEY CONCEPTS IN THIS FILE (types.go):
  - StoreID / EmployeeID / SaleID: Type-safe identifiers
  - Money helpers: Rounding and parsing on decimal.Decimal

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point errors
  2. Type Safety: Strong typing for IDs prevents mixing store/employee IDs
  3. Day granularity: Every date is a calendar day, never a timestamp

SEE ALSO:
  - time.go: TimePoint
  - period.go: Period and MonthKey
  - errors.go: Sentinel and structured errors
*/
package generic

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type StoreID string
type EmployeeID string
type SaleID string
type SlabID string

// =============================================================================
// MONEY
// =============================================================================

// Hundred is used for percentage conversions.
var Hundred = decimal.NewFromInt(100)

// MustParseDecimal parses a literal and panics on malformed input. Values
// read from storage or requests go through decimal.NewFromString instead.
func MustParseDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// RoundCurrency rounds to whole currency units, half away from zero. Every
// amount the engine produces is non-negative, so this matches half-up.
func RoundCurrency(d decimal.Decimal) decimal.Decimal {
	return d.Round(0)
}
