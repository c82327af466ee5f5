package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/incentive-engine/generic"
	"github.com/warp/incentive-engine/passbook"
)

// =============================================================================
// PASSBOOK (passbook.Store)
// =============================================================================

// UpsertPassbookEntry writes the (store, month) row, replacing any previous one.
func (s *Store) UpsertPassbookEntry(ctx context.Context, e passbook.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO passbook_entries (store_id, month, amount, store_total, headcount, paid_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(store_id, month) DO UPDATE SET
			amount = excluded.amount,
			store_total = excluded.store_total,
			headcount = excluded.headcount,
			paid_at = excluded.paid_at,
			updated_at = excluded.updated_at
	`, e.StoreID, e.Month.String(), e.Amount.String(), e.StoreTotal.String(), e.Headcount,
		nullTime(e.PaidAt), e.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to upsert passbook entry: %w", err)
	}
	return nil
}

func (s *Store) UpsertUnpaidPassbookEntry(ctx context.Context, e passbook.Entry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO passbook_entries (store_id, month, amount, store_total, headcount, paid_at, updated_at)
		VALUES (?, ?, ?, ?, ?, NULL, ?)
		ON CONFLICT(store_id, month) DO UPDATE SET
			amount = excluded.amount,
			store_total = excluded.store_total,
			headcount = excluded.headcount,
			updated_at = excluded.updated_at
		WHERE passbook_entries.paid_at IS NULL
	`, e.StoreID, e.Month.String(), e.Amount.String(), e.StoreTotal.String(), e.Headcount,
		e.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return false, fmt.Errorf("failed to upsert unpaid passbook entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

func (s *Store) PassbookEntry(ctx context.Context, storeID generic.StoreID, month generic.MonthKey) (passbook.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT store_id, month, amount, store_total, headcount, paid_at, updated_at
		FROM passbook_entries
		WHERE store_id = ? AND month = ?
	`, storeID, month.String())

	e, err := scanPassbookEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return passbook.Entry{}, &generic.NotFoundError{Kind: "passbook entry", ID: string(storeID) + "/" + month.String()}
	}
	return e, err
}

func (s *Store) PassbookEntries(ctx context.Context, storeID generic.StoreID) ([]passbook.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT store_id, month, amount, store_total, headcount, paid_at, updated_at
		FROM passbook_entries
		WHERE store_id = ?
	`, storeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query passbook: %w", err)
	}
	defer rows.Close()

	var entries []passbook.Entry
	for rows.Next() {
		e, err := scanPassbookEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPassbookEntry(row scanner) (passbook.Entry, error) {
	var (
		e                         passbook.Entry
		month, amount, total, upd string
		paidAt                    sql.NullString
	)
	if err := row.Scan(&e.StoreID, &month, &amount, &total, &e.Headcount, &paidAt, &upd); err != nil {
		return passbook.Entry{}, err
	}

	var err error
	if e.Month, err = generic.ParseMonthKey(month); err != nil {
		return passbook.Entry{}, fmt.Errorf("passbook %s: %w", e.StoreID, err)
	}
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return passbook.Entry{}, fmt.Errorf("passbook %s/%s: bad amount %q: %w", e.StoreID, month, amount, err)
	}
	if e.StoreTotal, err = decimal.NewFromString(total); err != nil {
		return passbook.Entry{}, fmt.Errorf("passbook %s/%s: bad store_total %q: %w", e.StoreID, month, total, err)
	}
	if e.UpdatedAt, err = time.Parse(time.RFC3339Nano, upd); err != nil {
		return passbook.Entry{}, fmt.Errorf("passbook %s/%s: bad updated_at: %w", e.StoreID, month, err)
	}
	if paidAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, paidAt.String)
		if err != nil {
			return passbook.Entry{}, fmt.Errorf("passbook %s/%s: bad paid_at: %w", e.StoreID, month, err)
		}
		e.PaidAt = &t
	}
	return e, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}
