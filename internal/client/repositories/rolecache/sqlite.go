package rolecache

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/dbx"
)

// SQLiteRepository implements Repository using a DBTX (either *sql.DB or *sql.Tx).
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Get(ctx context.Context, userID string) (Entry, bool, error) {
	e := Entry{UserID: userID}
	var temporary int
	var updated int64

	query := `select role, temporary, updated_at from role_cache where user_id=?`
	found, err := dbx.ScanOptional(r.db.QueryRowContext(ctx, query, userID), &e.Role, &temporary, &updated)
	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to get role_cache[%s]: %w", userID, err)
	}
	if !found {
		return Entry{}, false, nil
	}
	e.Temporary = temporary != 0
	e.UpdatedAt = time.Unix(updated, 0)
	return e, true, nil
}

func (r *SQLiteRepository) Put(ctx context.Context, e Entry) error {
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now()
	}
	temporary := 0
	if e.Temporary {
		temporary = 1
	}

	query := `INSERT INTO role_cache (user_id, role, temporary, updated_at)
			values (?, ?, ?, ?)
			ON CONFLICT(user_id) DO UPDATE SET role = excluded.role,
				temporary = excluded.temporary,
				updated_at = excluded.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, e.UserID, e.Role, temporary, e.UpdatedAt.Unix()); err != nil {
		return fmt.Errorf("failed to upsert role_cache[%s]: %w", e.UserID, err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `delete from role_cache where user_id=?`, userID); err != nil {
		return fmt.Errorf("failed to delete role_cache[%s]: %w", userID, err)
	}
	return nil
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `delete from role_cache`); err != nil {
		return fmt.Errorf("failed to clear role_cache: %w", err)
	}
	return nil
}
