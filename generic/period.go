package generic

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// PERIOD - Inclusive date range
// =============================================================================

// Period is an inclusive calendar range [Start, End]. Calculations always run
// over a period: one calendar month for payouts, arbitrary windows for
// attach-rate intervals.
type Period struct {
	Start TimePoint
	End   TimePoint
}

// Contains returns true if the time point is within the period [Start, End]
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.BeforeOrEqual(p.End)
}

// Overlaps reports whether the two inclusive ranges share at least one day.
func (p Period) Overlaps(other Period) bool {
	return p.Start.BeforeOrEqual(other.End) && other.Start.BeforeOrEqual(p.End)
}

// Days returns all days in the period as a slice of TimePoints.
func (p Period) Days() []TimePoint {
	var days []TimePoint
	for current := p.Start; current.BeforeOrEqual(p.End); current = current.AddDays(1) {
		days = append(days, current)
	}
	return days
}

// Validate rejects ranges whose end precedes their start.
func (p Period) Validate() error {
	if p.End.Before(p.Start) {
		return fmt.Errorf("%w: %s", ErrInvalidPeriod, p)
	}
	return nil
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// =============================================================================
// MONTH KEY - "MM-YYYY", the passbook's primary key
// =============================================================================

// MonthKey identifies one calendar month. Its string form "MM-YYYY" is what
// the passbook ledger is keyed by.
type MonthKey struct {
	Year  int
	Month time.Month
}

// NewMonthKey validates month/year. Years outside 2000..9999 are rejected as
// malformed input rather than silently computed.
func NewMonthKey(month, year int) (MonthKey, error) {
	if month < 1 || month > 12 {
		return MonthKey{}, &InvalidInputError{Field: "month", Reason: fmt.Sprintf("must be 1-12, got %d", month)}
	}
	if year < 2000 || year > 9999 {
		return MonthKey{}, &InvalidInputError{Field: "year", Reason: fmt.Sprintf("out of range: %d", year)}
	}
	return MonthKey{Year: year, Month: time.Month(month)}, nil
}

// ParseMonthKey accepts the "MM-YYYY" form.
func ParseMonthKey(s string) (MonthKey, error) {
	mm, yyyy, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok || len(mm) != 2 || len(yyyy) != 4 {
		return MonthKey{}, &InvalidInputError{Field: "month", Reason: fmt.Sprintf("expected MM-YYYY, got %q", s)}
	}
	month, err := strconv.Atoi(mm)
	if err != nil {
		return MonthKey{}, &InvalidInputError{Field: "month", Reason: fmt.Sprintf("expected MM-YYYY, got %q", s)}
	}
	year, err := strconv.Atoi(yyyy)
	if err != nil {
		return MonthKey{}, &InvalidInputError{Field: "year", Reason: fmt.Sprintf("expected MM-YYYY, got %q", s)}
	}
	return NewMonthKey(month, year)
}

func MonthKeyOf(tp TimePoint) MonthKey {
	return MonthKey{Year: tp.Year(), Month: tp.Month()}
}

func (m MonthKey) String() string {
	return fmt.Sprintf("%02d-%04d", int(m.Month), m.Year)
}

// Period returns the full calendar month.
func (m MonthKey) Period() Period {
	return Period{Start: StartOfMonth(m.Year, m.Month), End: EndOfMonth(m.Year, m.Month)}
}

// Previous returns the month before m.
func (m MonthKey) Previous() MonthKey {
	return MonthKeyOf(StartOfMonth(m.Year, m.Month).AddMonths(-1))
}

// Before reports whether m is an earlier month than other.
func (m MonthKey) Before(other MonthKey) bool {
	if m.Year != other.Year {
		return m.Year < other.Year
	}
	return m.Month < other.Month
}

func (m MonthKey) IsZero() bool { return m.Year == 0 && m.Month == 0 }

func (m MonthKey) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

func (m *MonthKey) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseMonthKey(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
