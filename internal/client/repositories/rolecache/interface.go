package rolecache

import (
	"context"
	"time"
)

type Entry struct {
	UserID    string
	Role      string
	Temporary bool
	UpdatedAt time.Time
}

type Repository interface {
	// Get reports ok=false when the user has no row.
	Get(ctx context.Context, userID string) (e Entry, ok bool, err error)

	// Put upserts the row for e.UserID. A zero UpdatedAt is set to now.
	Put(ctx context.Context, e Entry) error

	Delete(ctx context.Context, userID string) error

	// Clear removes every row, e.g. on sign-out.
	Clear(ctx context.Context) error
}
