package api

import (
	"context"

	"github.com/warp/incentive-engine/generic"
	"github.com/warp/incentive-engine/incentive"
	"github.com/warp/incentive-engine/passbook"
)

// Backend is everything the HTTP layer reads and writes. Satisfied by
// store/sqlite, store/postgres, and the in-memory store.
type Backend interface {
	incentive.Provider
	passbook.Store

	AppendSales(ctx context.Context, sales []incentive.SaleRecord) error
	ReplaceSlabs(ctx context.Context, slabs []incentive.PriceSlab) error
	AddAttachRateInterval(ctx context.Context, iv incentive.AttachRateInterval) error

	SaveStore(ctx context.Context, s generic.StoreRecord) error
	GetStore(ctx context.Context, id generic.StoreID) (generic.StoreRecord, error)
	ListStores(ctx context.Context) ([]generic.StoreRecord, error)
	SaveEmployee(ctx context.Context, e generic.EmployeeRecord) error

	// Reset clears every table. Scenario loading only.
	Reset(ctx context.Context) error
}
