// Package dbx provides tiny DB abstractions shared by the local state
// repositories (key-value metadata, role cache) and the Postgres profile
// source: a minimal interface (DBTX) implemented by both *sql.DB and
// *sql.Tx, and a helper for single-row lookups.
package dbx

import (
	"context"
	"database/sql"
	"errors"
)

// DBTX is the subset of database/sql used by our repos.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ScanOptional scans a single row into dest and reports whether a row was
// present. sql.ErrNoRows is folded into (false, nil).
func ScanOptional(row *sql.Row, dest ...any) (bool, error) {
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
