/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements every read provider the incentive engine consumes, the
  passbook store, and the directory/configuration writes the API exposes.

INTERFACES IMPLEMENTED:
  incentive.Provider: Sales, slabs, attach intervals, employee -> store
  passbook.Store:     Upsert-by-month payout ledger

APPEND-ONLY ENFORCEMENT:
  Sales are never updated or deleted. A duplicate sale ID is rejected with
  generic.ErrDuplicate.

KEY TABLES:
  sales:                 Immutable per-device sale records
  price_slabs:           Current slab table (replaced wholesale)
  attach_rate_intervals: Per-store attach windows, may overlap
  stores, employees:     Directory
  passbook_entries:      One row per (store, month)

INDEXES:
  - idx_sales_store_date: One range scan per calculation (hot path)
  - idx_attach_store_window: Interval fetch for a store and month

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

MIGRATION:
  Schema is applied on New() through goose (store/migrations).

USAGE:
  store, err := sqlite.New("./data/incentive.db", logger)
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := incentive.NewEngine(store)

SEE ALSO:
  - store/postgres: Same contract on PostgreSQL
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"
	"github.com/warp/incentive-engine/generic"
	"github.com/warp/incentive-engine/incentive"
	"github.com/warp/incentive-engine/passbook"
	"github.com/warp/incentive-engine/store/migrations"
	"go.uber.org/zap"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	logger *zap.Logger
}

var (
	_ incentive.Provider = (*Store)(nil)
	_ passbook.Store     = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if err := migrations.Up(context.Background(), db, goose.DialectSQLite3); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logger.Info("sqlite store ready", zap.String("path", dbPath))
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Reset deletes every row. Dev and demo scenarios only.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"sales", "price_slabs", "attach_rate_intervals", "employees", "stores", "passbook_entries"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// SALES (incentive.SaleSource)
// =============================================================================

// AppendSales inserts sales atomically. Append-only.
func (s *Store) AppendSales(ctx context.Context, sales []incentive.SaleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	query := `
		INSERT INTO sales
		(id, store_id, employee_id, device_price, device_category, device_model_name, sale_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now().UTC().Format(time.RFC3339)
	for _, sale := range sales {
		_, err := sqlTx.ExecContext(ctx, query,
			sale.ID,
			sale.StoreID,
			sale.EmployeeID,
			sale.DevicePrice.String(),
			sale.DeviceCategory,
			sale.DeviceModelName,
			sale.SaleDate.String(),
			now,
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return &generic.DuplicateError{Kind: "sale", ID: string(sale.ID)}
			}
			return fmt.Errorf("failed to append sale %s: %w", sale.ID, err)
		}
	}

	return sqlTx.Commit()
}

// SalesForStore returns the store's sales in [period.Start, period.End].
func (s *Store) SalesForStore(ctx context.Context, storeID generic.StoreID, period generic.Period) ([]incentive.SaleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, employee_id, device_price, device_category, device_model_name, sale_date
		FROM sales
		WHERE store_id = ? AND sale_date >= ? AND sale_date <= ?
		ORDER BY sale_date ASC, id ASC
	`, storeID, period.Start.String(), period.End.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query sales: %w", err)
	}
	defer rows.Close()

	var sales []incentive.SaleRecord
	for rows.Next() {
		var (
			sale            incentive.SaleRecord
			price, saleDate string
		)
		if err := rows.Scan(&sale.ID, &sale.StoreID, &sale.EmployeeID, &price,
			&sale.DeviceCategory, &sale.DeviceModelName, &saleDate); err != nil {
			return nil, fmt.Errorf("failed to scan sale: %w", err)
		}
		if sale.DevicePrice, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("sale %s: bad price %q: %w", sale.ID, price, err)
		}
		if sale.SaleDate, err = generic.ParseDate(saleDate); err != nil {
			return nil, fmt.Errorf("sale %s: %w", sale.ID, err)
		}
		sales = append(sales, sale)
	}
	return sales, rows.Err()
}

// =============================================================================
// SLABS (incentive.SlabSource)
// =============================================================================

// ReplaceSlabs swaps the whole slab table in one transaction.
func (s *Store) ReplaceSlabs(ctx context.Context, slabs []incentive.PriceSlab) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if _, err := sqlTx.ExecContext(ctx, "DELETE FROM price_slabs"); err != nil {
		return fmt.Errorf("failed to clear slabs: %w", err)
	}
	for _, slab := range slabs {
		_, err := sqlTx.ExecContext(ctx, `
			INSERT INTO price_slabs (id, min_price, max_price, incentive_per_unit, gate_units, volume_kicker_units)
			VALUES (?, ?, ?, ?, ?, ?)
		`, slab.ID, nullDecimal(slab.MinPrice), nullDecimal(slab.MaxPrice),
			slab.IncentivePerUnit.String(), slab.GateUnits, slab.VolumeKickerUnits)
		if err != nil {
			if isUniqueConstraintError(err) {
				return &generic.DuplicateError{Kind: "slab", ID: string(slab.ID)}
			}
			return fmt.Errorf("failed to insert slab %s: %w", slab.ID, err)
		}
	}
	return sqlTx.Commit()
}

func (s *Store) PriceSlabs(ctx context.Context) ([]incentive.PriceSlab, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, min_price, max_price, incentive_per_unit, gate_units, volume_kicker_units
		FROM price_slabs
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query slabs: %w", err)
	}
	defer rows.Close()

	var slabs []incentive.PriceSlab
	for rows.Next() {
		var (
			slab               incentive.PriceSlab
			minPrice, maxPrice sql.NullString
			perUnit            string
		)
		if err := rows.Scan(&slab.ID, &minPrice, &maxPrice, &perUnit, &slab.GateUnits, &slab.VolumeKickerUnits); err != nil {
			return nil, fmt.Errorf("failed to scan slab: %w", err)
		}
		if slab.MinPrice, err = parseNullDecimal(minPrice); err != nil {
			return nil, fmt.Errorf("slab %s: bad min_price: %w", slab.ID, err)
		}
		if slab.MaxPrice, err = parseNullDecimal(maxPrice); err != nil {
			return nil, fmt.Errorf("slab %s: bad max_price: %w", slab.ID, err)
		}
		if slab.IncentivePerUnit, err = decimal.NewFromString(perUnit); err != nil {
			return nil, fmt.Errorf("slab %s: bad incentive_per_unit %q: %w", slab.ID, perUnit, err)
		}
		slabs = append(slabs, slab)
	}
	return slabs, rows.Err()
}

// =============================================================================
// ATTACH RATES (incentive.AttachRateSource)
// =============================================================================

func (s *Store) AddAttachRateInterval(ctx context.Context, iv incentive.AttachRateInterval) error {
	if err := iv.Period().Validate(); err != nil {
		return err
	}
	if iv.CreatedAt.IsZero() {
		iv.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attach_rate_intervals (id, store_id, start_date, end_date, attach_percentage, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, iv.ID, iv.StoreID, iv.Start.String(), iv.End.String(), iv.AttachPercentage.String(),
		iv.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		if isUniqueConstraintError(err) {
			return &generic.DuplicateError{Kind: "attach rate interval", ID: iv.ID}
		}
		return fmt.Errorf("failed to insert attach rate interval: %w", err)
	}
	return nil
}

// AttachRateIntervals returns every interval of the store overlapping period.
func (s *Store) AttachRateIntervals(ctx context.Context, storeID generic.StoreID, period generic.Period) ([]incentive.AttachRateInterval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, start_date, end_date, attach_percentage, created_at
		FROM attach_rate_intervals
		WHERE store_id = ? AND start_date <= ? AND end_date >= ?
		ORDER BY start_date ASC, id ASC
	`, storeID, period.End.String(), period.Start.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query attach rate intervals: %w", err)
	}
	defer rows.Close()

	var intervals []incentive.AttachRateInterval
	for rows.Next() {
		var (
			iv                    incentive.AttachRateInterval
			start, end, pct, made string
		)
		if err := rows.Scan(&iv.ID, &iv.StoreID, &start, &end, &pct, &made); err != nil {
			return nil, fmt.Errorf("failed to scan attach rate interval: %w", err)
		}
		if iv.Start, err = generic.ParseDate(start); err != nil {
			return nil, err
		}
		if iv.End, err = generic.ParseDate(end); err != nil {
			return nil, err
		}
		if iv.AttachPercentage, err = decimal.NewFromString(pct); err != nil {
			return nil, fmt.Errorf("attach rate interval %s: bad attach_percentage %q: %w", iv.ID, pct, err)
		}
		if iv.CreatedAt, err = time.Parse(time.RFC3339Nano, made); err != nil {
			return nil, fmt.Errorf("attach rate interval %s: bad created_at: %w", iv.ID, err)
		}
		intervals = append(intervals, iv)
	}
	return intervals, rows.Err()
}

// =============================================================================
// DIRECTORY (incentive.StoreDirectory)
// =============================================================================

// SaveStore upserts a store.
func (s *Store) SaveStore(ctx context.Context, rec generic.StoreRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO stores (id, name, headcount, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			headcount = excluded.headcount
	`, rec.ID, rec.Name, rec.Headcount, time.Now().UTC().Format(time.RFC3339))
	return err
}

// GetStore retrieves a store by ID.
func (s *Store) GetStore(ctx context.Context, id generic.StoreID) (generic.StoreRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		rec       generic.StoreRecord
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, headcount, created_at FROM stores WHERE id = ?", id,
	).Scan(&rec.ID, &rec.Name, &rec.Headcount, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.StoreRecord{}, &generic.NotFoundError{Kind: "store", ID: string(id)}
	}
	if err != nil {
		return generic.StoreRecord{}, err
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return rec, nil
}

// ListStores returns all stores ordered by ID.
func (s *Store) ListStores(ctx context.Context) ([]generic.StoreRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name, headcount, created_at FROM stores ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stores []generic.StoreRecord
	for rows.Next() {
		var (
			rec       generic.StoreRecord
			createdAt string
		)
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Headcount, &createdAt); err != nil {
			return nil, err
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		stores = append(stores, rec)
	}
	return stores, rows.Err()
}

// SaveEmployee upserts an employee and their store link.
func (s *Store) SaveEmployee(ctx context.Context, emp generic.EmployeeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO employees (id, name, store_id, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			store_id = excluded.store_id
	`, emp.ID, emp.Name, nullString(string(emp.StoreID)), time.Now().UTC().Format(time.RFC3339))
	return err
}

// StoreForEmployee returns "" for an employee without a store, and a
// NotFoundError for an unknown employee.
func (s *Store) StoreForEmployee(ctx context.Context, employeeID generic.EmployeeID) (generic.StoreID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var storeID sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT store_id FROM employees WHERE id = ?", employeeID,
	).Scan(&storeID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", &generic.NotFoundError{Kind: "employee", ID: string(employeeID)}
	}
	if err != nil {
		return "", fmt.Errorf("failed to query employee: %w", err)
	}
	return generic.StoreID(storeID.String), nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

// parseNullDecimal maps NULL to nil (unbounded).
func parseNullDecimal(ns sql.NullString) (*decimal.Decimal, error) {
	if !ns.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(ns.String)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", ns.String, err)
	}
	return &d, nil
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
