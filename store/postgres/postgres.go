/*
Package postgres provides a PostgreSQL-backed implementation of the storage
interfaces.

PURPOSE:
  Same contract as store/sqlite, for deployments that share one database
  across several engine instances. Concurrency control is left to the
  database; there is no process-level lock.

CONNECTING:
  New retries the initial connect with exponential backoff, so the service
  can start before the database is accepting connections.

MIGRATION:
  The goose migrations in store/migrations are applied through a
  database/sql handle that shares the pgx pool.

SEE ALSO:
  - store/sqlite/sqlite.go: Single-file deployment and tests
  - store/migrations: Shared schema
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"
	"github.com/warp/incentive-engine/generic"
	"github.com/warp/incentive-engine/incentive"
	"github.com/warp/incentive-engine/passbook"
	"github.com/warp/incentive-engine/store/migrations"
	"go.uber.org/zap"
)

// uniqueViolation is the SQLSTATE for a primary key or unique conflict.
const uniqueViolation = "23505"

type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

var (
	_ incentive.Provider = (*Store)(nil)
	_ passbook.Store     = (*Store)(nil)
)

// New connects to dsn, retrying until maxWait elapses, and migrates the schema.
func New(ctx context.Context, dsn string, maxWait time.Duration, logger *zap.Logger) (*Store, error) {
	const operation = "postgres.New"

	if logger == nil {
		logger = zap.NewNop()
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: parse dsn: %w", operation, err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute

	retryPolicy := backoff.NewExponentialBackOff()
	retryPolicy.MaxElapsedTime = maxWait
	retryPolicy.MaxInterval = 15 * time.Second

	logger.Info("connecting to PostgreSQL")

	var pool *pgxpool.Pool
	err = backoff.RetryNotify(
		func() error {
			p, err := pgxpool.NewWithConfig(ctx, cfg)
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			if err := p.Ping(ctx); err != nil {
				p.Close()
				return fmt.Errorf("ping: %w", err)
			}
			pool = p
			return nil
		},
		backoff.WithContext(retryPolicy, ctx),
		func(err error, next time.Duration) {
			logger.Warn("PostgreSQL connection failed, retrying",
				zap.Error(err),
				zap.Duration("next_attempt_in", next))
		},
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", operation, generic.ErrStoreUnavailable, err)
	}

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	if err := migrations.Up(ctx, db, goose.DialectPostgres); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: %w", operation, err)
	}

	logger.Info("connected to PostgreSQL")
	return &Store{pool: pool, logger: logger}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Reset deletes every row. Dev and demo scenarios only.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		TRUNCATE sales, price_slabs, attach_rate_intervals, employees, stores, passbook_entries
	`)
	return err
}

// =============================================================================
// SALES
// =============================================================================

// AppendSales inserts the batch in one transaction. Append-only.
func (s *Store) AppendSales(ctx context.Context, sales []incentive.SaleRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const q = `
INSERT INTO sales (id, store_id, employee_id, device_price, device_category, device_model_name, sale_date, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`
	now := time.Now().UTC().Format(time.RFC3339)
	for _, sale := range sales {
		_, err := tx.Exec(ctx, q,
			string(sale.ID),
			string(sale.StoreID),
			string(sale.EmployeeID),
			sale.DevicePrice.String(),
			sale.DeviceCategory,
			sale.DeviceModelName,
			sale.SaleDate.String(),
			now,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return &generic.DuplicateError{Kind: "sale", ID: string(sale.ID)}
			}
			return fmt.Errorf("append sale %s: %w", sale.ID, err)
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) SalesForStore(ctx context.Context, storeID generic.StoreID, period generic.Period) ([]incentive.SaleRecord, error) {
	const q = `
SELECT id, store_id, employee_id, device_price, device_category, device_model_name, sale_date
FROM sales
WHERE store_id = $1 AND sale_date >= $2 AND sale_date <= $3
ORDER BY sale_date, id
`
	rows, err := s.pool.Query(ctx, q, string(storeID), period.Start.String(), period.End.String())
	if err != nil {
		return nil, fmt.Errorf("query sales: %w", err)
	}
	defer rows.Close()

	var sales []incentive.SaleRecord
	for rows.Next() {
		var id, store, employee, price, category, model, date string
		if err := rows.Scan(&id, &store, &employee, &price, &category, &model, &date); err != nil {
			return nil, fmt.Errorf("scan sale: %w", err)
		}
		devicePrice, err := decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("sale %s: bad price %q: %w", id, price, err)
		}
		saleDate, err := generic.ParseDate(date)
		if err != nil {
			return nil, fmt.Errorf("sale %s: %w", id, err)
		}
		sales = append(sales, incentive.SaleRecord{
			ID:              generic.SaleID(id),
			StoreID:         generic.StoreID(store),
			EmployeeID:      generic.EmployeeID(employee),
			DevicePrice:     devicePrice,
			DeviceCategory:  category,
			DeviceModelName: model,
			SaleDate:        saleDate,
		})
	}
	return sales, rows.Err()
}

// =============================================================================
// SLABS
// =============================================================================

func (s *Store) ReplaceSlabs(ctx context.Context, slabs []incentive.PriceSlab) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM price_slabs"); err != nil {
		return fmt.Errorf("clear slabs: %w", err)
	}

	batch := &pgx.Batch{}
	for _, slab := range slabs {
		batch.Queue(`
INSERT INTO price_slabs (id, min_price, max_price, incentive_per_unit, gate_units, volume_kicker_units)
VALUES ($1, $2, $3, $4, $5, $6)
`, string(slab.ID), decimalText(slab.MinPrice), decimalText(slab.MaxPrice),
			slab.IncentivePerUnit.String(), slab.GateUnits, slab.VolumeKickerUnits)
	}
	results := tx.SendBatch(ctx, batch)
	for _, slab := range slabs {
		if _, err := results.Exec(); err != nil {
			results.Close()
			if isUniqueViolation(err) {
				return &generic.DuplicateError{Kind: "slab", ID: string(slab.ID)}
			}
			return fmt.Errorf("insert slab %s: %w", slab.ID, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("insert slabs: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *Store) PriceSlabs(ctx context.Context) ([]incentive.PriceSlab, error) {
	const q = `
SELECT id, min_price, max_price, incentive_per_unit, gate_units, volume_kicker_units
FROM price_slabs
ORDER BY id
`
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query slabs: %w", err)
	}
	defer rows.Close()

	var slabs []incentive.PriceSlab
	for rows.Next() {
		var (
			id, perUnit        string
			minPrice, maxPrice *string
			gate, kicker       int
		)
		if err := rows.Scan(&id, &minPrice, &maxPrice, &perUnit, &gate, &kicker); err != nil {
			return nil, fmt.Errorf("scan slab: %w", err)
		}
		slab := incentive.PriceSlab{
			ID:                generic.SlabID(id),
			GateUnits:         gate,
			VolumeKickerUnits: kicker,
		}
		if slab.MinPrice, err = parseDecimalText(minPrice); err != nil {
			return nil, fmt.Errorf("slab %s: bad min_price: %w", id, err)
		}
		if slab.MaxPrice, err = parseDecimalText(maxPrice); err != nil {
			return nil, fmt.Errorf("slab %s: bad max_price: %w", id, err)
		}
		if slab.IncentivePerUnit, err = decimal.NewFromString(perUnit); err != nil {
			return nil, fmt.Errorf("slab %s: bad incentive_per_unit %q: %w", id, perUnit, err)
		}
		slabs = append(slabs, slab)
	}
	return slabs, rows.Err()
}

// =============================================================================
// ATTACH RATES
// =============================================================================

func (s *Store) AddAttachRateInterval(ctx context.Context, iv incentive.AttachRateInterval) error {
	if err := iv.Period().Validate(); err != nil {
		return err
	}
	if iv.CreatedAt.IsZero() {
		iv.CreatedAt = time.Now().UTC()
	}

	const q = `
INSERT INTO attach_rate_intervals (id, store_id, start_date, end_date, attach_percentage, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
`
	_, err := s.pool.Exec(ctx, q, iv.ID, string(iv.StoreID), iv.Start.String(), iv.End.String(),
		iv.AttachPercentage.String(), iv.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		if isUniqueViolation(err) {
			return &generic.DuplicateError{Kind: "attach rate interval", ID: iv.ID}
		}
		return fmt.Errorf("insert attach rate interval: %w", err)
	}
	return nil
}

func (s *Store) AttachRateIntervals(ctx context.Context, storeID generic.StoreID, period generic.Period) ([]incentive.AttachRateInterval, error) {
	const q = `
SELECT id, store_id, start_date, end_date, attach_percentage, created_at
FROM attach_rate_intervals
WHERE store_id = $1 AND start_date <= $2 AND end_date >= $3
ORDER BY start_date, id
`
	rows, err := s.pool.Query(ctx, q, string(storeID), period.End.String(), period.Start.String())
	if err != nil {
		return nil, fmt.Errorf("query attach rate intervals: %w", err)
	}
	defer rows.Close()

	var intervals []incentive.AttachRateInterval
	for rows.Next() {
		var id, store, start, end, pct, created string
		if err := rows.Scan(&id, &store, &start, &end, &pct, &created); err != nil {
			return nil, fmt.Errorf("scan attach rate interval: %w", err)
		}
		iv := incentive.AttachRateInterval{
			ID:      id,
			StoreID: generic.StoreID(store),
		}
		if iv.AttachPercentage, err = decimal.NewFromString(pct); err != nil {
			return nil, fmt.Errorf("attach rate interval %s: bad attach_percentage %q: %w", id, pct, err)
		}
		if iv.Start, err = generic.ParseDate(start); err != nil {
			return nil, err
		}
		if iv.End, err = generic.ParseDate(end); err != nil {
			return nil, err
		}
		if iv.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("attach rate interval %s: bad created_at: %w", id, err)
		}
		intervals = append(intervals, iv)
	}
	return intervals, rows.Err()
}

// =============================================================================
// DIRECTORY
// =============================================================================

func (s *Store) SaveStore(ctx context.Context, rec generic.StoreRecord) error {
	const q = `
INSERT INTO stores (id, name, headcount, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	headcount = EXCLUDED.headcount
`
	_, err := s.pool.Exec(ctx, q, string(rec.ID), rec.Name, rec.Headcount, time.Now().UTC().Format(time.RFC3339))
	return err
}

func (s *Store) GetStore(ctx context.Context, id generic.StoreID) (generic.StoreRecord, error) {
	const q = `SELECT name, headcount, created_at FROM stores WHERE id = $1`

	rec := generic.StoreRecord{ID: id}
	var createdAt string
	err := s.pool.QueryRow(ctx, q, string(id)).Scan(&rec.Name, &rec.Headcount, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return generic.StoreRecord{}, &generic.NotFoundError{Kind: "store", ID: string(id)}
	}
	if err != nil {
		return generic.StoreRecord{}, err
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return rec, nil
}

func (s *Store) ListStores(ctx context.Context) ([]generic.StoreRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, headcount, created_at FROM stores ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stores []generic.StoreRecord
	for rows.Next() {
		var id, name, createdAt string
		var headcount int
		if err := rows.Scan(&id, &name, &headcount, &createdAt); err != nil {
			return nil, err
		}
		rec := generic.StoreRecord{ID: generic.StoreID(id), Name: name, Headcount: headcount}
		rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		stores = append(stores, rec)
	}
	return stores, rows.Err()
}

func (s *Store) SaveEmployee(ctx context.Context, emp generic.EmployeeRecord) error {
	const q = `
INSERT INTO employees (id, name, store_id, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	store_id = EXCLUDED.store_id
`
	var storeID *string
	if emp.StoreID != "" {
		v := string(emp.StoreID)
		storeID = &v
	}
	_, err := s.pool.Exec(ctx, q, string(emp.ID), emp.Name, storeID, time.Now().UTC().Format(time.RFC3339))
	return err
}

func (s *Store) StoreForEmployee(ctx context.Context, employeeID generic.EmployeeID) (generic.StoreID, error) {
	var storeID *string
	err := s.pool.QueryRow(ctx, `SELECT store_id FROM employees WHERE id = $1`, string(employeeID)).Scan(&storeID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", &generic.NotFoundError{Kind: "employee", ID: string(employeeID)}
	}
	if err != nil {
		return "", fmt.Errorf("query employee: %w", err)
	}
	if storeID == nil {
		return "", nil
	}
	return generic.StoreID(*storeID), nil
}

// =============================================================================
// PASSBOOK
// =============================================================================

func (s *Store) UpsertPassbookEntry(ctx context.Context, e passbook.Entry) error {
	const q = `
INSERT INTO passbook_entries (store_id, month, amount, store_total, headcount, paid_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (store_id, month) DO UPDATE SET
	amount = EXCLUDED.amount,
	store_total = EXCLUDED.store_total,
	headcount = EXCLUDED.headcount,
	paid_at = EXCLUDED.paid_at,
	updated_at = EXCLUDED.updated_at
`
	var paidAt *string
	if e.PaidAt != nil {
		v := e.PaidAt.UTC().Format(time.RFC3339Nano)
		paidAt = &v
	}
	_, err := s.pool.Exec(ctx, q, string(e.StoreID), e.Month.String(), e.Amount.String(),
		e.StoreTotal.String(), e.Headcount, paidAt, e.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert passbook entry: %w", err)
	}
	return nil
}

func (s *Store) UpsertUnpaidPassbookEntry(ctx context.Context, e passbook.Entry) (bool, error) {
	const q = `
INSERT INTO passbook_entries (store_id, month, amount, store_total, headcount, paid_at, updated_at)
VALUES ($1, $2, $3, $4, $5, NULL, $6)
ON CONFLICT (store_id, month) DO UPDATE SET
	amount = EXCLUDED.amount,
	store_total = EXCLUDED.store_total,
	headcount = EXCLUDED.headcount,
	updated_at = EXCLUDED.updated_at
WHERE passbook_entries.paid_at IS NULL
`
	tag, err := s.pool.Exec(ctx, q, string(e.StoreID), e.Month.String(), e.Amount.String(),
		e.StoreTotal.String(), e.Headcount, e.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return false, fmt.Errorf("upsert unpaid passbook entry: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) PassbookEntry(ctx context.Context, storeID generic.StoreID, month generic.MonthKey) (passbook.Entry, error) {
	const q = `
SELECT store_id, month, amount, store_total, headcount, paid_at, updated_at
FROM passbook_entries
WHERE store_id = $1 AND month = $2
`
	e, err := scanEntry(s.pool.QueryRow(ctx, q, string(storeID), month.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return passbook.Entry{}, &generic.NotFoundError{Kind: "passbook entry", ID: string(storeID) + "/" + month.String()}
	}
	return e, err
}

func (s *Store) PassbookEntries(ctx context.Context, storeID generic.StoreID) ([]passbook.Entry, error) {
	const q = `
SELECT store_id, month, amount, store_total, headcount, paid_at, updated_at
FROM passbook_entries
WHERE store_id = $1
`
	rows, err := s.pool.Query(ctx, q, string(storeID))
	if err != nil {
		return nil, fmt.Errorf("query passbook: %w", err)
	}
	defer rows.Close()

	var entries []passbook.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(row pgx.Row) (passbook.Entry, error) {
	var (
		store, month, amount, total, updated string
		headcount                            int
		paidAt                               *string
	)
	if err := row.Scan(&store, &month, &amount, &total, &headcount, &paidAt, &updated); err != nil {
		return passbook.Entry{}, err
	}
	key, err := generic.ParseMonthKey(month)
	if err != nil {
		return passbook.Entry{}, fmt.Errorf("passbook %s: %w", store, err)
	}
	e := passbook.Entry{
		StoreID:   generic.StoreID(store),
		Month:     key,
		Headcount: headcount,
	}
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return passbook.Entry{}, fmt.Errorf("passbook %s/%s: bad amount %q: %w", store, month, amount, err)
	}
	if e.StoreTotal, err = decimal.NewFromString(total); err != nil {
		return passbook.Entry{}, fmt.Errorf("passbook %s/%s: bad store_total %q: %w", store, month, total, err)
	}
	if e.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return passbook.Entry{}, fmt.Errorf("passbook %s/%s: bad updated_at: %w", store, month, err)
	}
	if paidAt != nil {
		t, err := time.Parse(time.RFC3339Nano, *paidAt)
		if err != nil {
			return passbook.Entry{}, fmt.Errorf("passbook %s/%s: bad paid_at: %w", store, month, err)
		}
		e.PaidAt = &t
	}
	return e, nil
}

// Helper functions

func decimalText(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

// parseDecimalText maps NULL to nil (unbounded).
func parseDecimalText(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", *s, err)
	}
	return &d, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
