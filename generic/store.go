/*
store.go - Directory records shared by every storage backend

PURPOSE:
  Stores (retail outlets) and employees are owned by external profile and
  onboarding flows. The engine only needs two facts from them: which store
  an employee sells for, and, for batch payout jobs, how many staff share a
  store's total. These records carry exactly that.

IMPLEMENTATIONS:
  - generic/store/memory.go: In-memory for tests and demos
  - store/sqlite/sqlite.go: SQLite
  - store/postgres/postgres.go: PostgreSQL

SEE ALSO:
  - incentive/provider.go: Read interfaces the engine consumes
  - passbook/ledger.go: Payout ledger persistence contract
*/
package generic

import "time"

// StoreRecord is a retail outlet. Headcount is only read by batch jobs;
// interactive calculations take headcount from the caller.
type StoreRecord struct {
	ID        StoreID   `json:"id"`
	Name      string    `json:"name"`
	Headcount int       `json:"headcount"`
	CreatedAt time.Time `json:"created_at"`
}

// EmployeeRecord links a salesperson to a store. An empty StoreID means the
// employee has not been assigned yet.
type EmployeeRecord struct {
	ID        EmployeeID `json:"id"`
	Name      string     `json:"name"`
	StoreID   StoreID    `json:"store_id"`
	CreatedAt time.Time  `json:"created_at"`
}
