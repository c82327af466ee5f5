/*
Package migrations holds the versioned schema shared by the SQLite and
PostgreSQL backends.

Every column uses portable types (TEXT, INTEGER): decimals are stored as
their string form and dates as YYYY-MM-DD, so the same files apply to both
dialects.

USAGE:
  if err := migrations.Up(ctx, db, goose.DialectSQLite3); err != nil {
      return err
  }
*/
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed *.sql
var FS embed.FS

// Up applies every pending migration.
func Up(ctx context.Context, db *sql.DB, dialect goose.Dialect) error {
	provider, err := goose.NewProvider(dialect, db, FS)
	if err != nil {
		return fmt.Errorf("migrations: new provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("migrations: up: %w", err)
	}
	return nil
}

// Version reports the current schema version.
func Version(ctx context.Context, db *sql.DB, dialect goose.Dialect) (int64, error) {
	provider, err := goose.NewProvider(dialect, db, FS)
	if err != nil {
		return 0, fmt.Errorf("migrations: new provider: %w", err)
	}
	return provider.GetDBVersion(ctx)
}
