package roles

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/backend"
	"github.com/dmitrijs2005/sessionkeeper/internal/dbx"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresSource reads the profiles table directly.
type PostgresSource struct {
	db dbx.DBTX
}

func NewPostgresSource(db dbx.DBTX) *PostgresSource {
	return &PostgresSource{db: db}
}

// OpenPostgres opens a pool through the pgx stdlib driver.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func (s *PostgresSource) LookupRole(ctx context.Context, userID string) (string, error) {
	var role sql.NullString
	found, err := dbx.ScanOptional(s.db.QueryRowContext(ctx, `SELECT role FROM profiles WHERE id = $1`, userID), &role)
	if err != nil {
		return "", fmt.Errorf("failed to select profile role: %w", err)
	}
	if !found {
		return "", ErrNoProfile
	}
	if !role.Valid || role.String == "" {
		return User, nil
	}
	return role.String, nil
}

func (s *PostgresSource) EnsureProfile(ctx context.Context, u *backend.User, role string) (bool, error) {
	query := `INSERT INTO profiles (id, email, full_name, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`
	res, err := s.db.ExecContext(ctx, query, u.ID, u.Email, u.MetadataString("full_name"), role)
	if err != nil {
		return false, fmt.Errorf("failed to insert profile: %w", err)
	}
	ra, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return ra == 1, nil
}
