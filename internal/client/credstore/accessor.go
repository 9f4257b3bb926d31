package credstore

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/sessionkeeper/internal/common"
	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
)

// Accessor reads and writes the credential bundle across its locations.
type Accessor struct {
	locations []Location
	logger    logging.Logger
}

func NewAccessor(locations []Location, logger logging.Logger) *Accessor {
	return &Accessor{locations: locations, logger: logging.OrNop(logger).With("component", "credstore")}
}

// Read assembles a bundle from the locations in priority order; for each
// field the first non-empty value wins. The expiry travels with the access
// token it was stored next to. ok is false when no access token was found.
func (a *Accessor) Read(ctx context.Context) (b Bundle, ok bool) {
	for _, loc := range a.locations {
		part, err := a.readLocation(ctx, loc)
		if err != nil {
			a.logFailure(ctx, loc, "read", err)
			continue
		}

		if b.AccessToken == "" && part.AccessToken != "" {
			b.AccessToken = part.AccessToken
			b.ExpiresAt = part.ExpiresAt
		}
		if b.RefreshToken == "" && part.RefreshToken != "" {
			b.RefreshToken = part.RefreshToken
		}
		if b.AccessToken != "" && b.RefreshToken != "" {
			break
		}
	}

	if !b.Present() {
		return Bundle{}, false
	}
	return b, true
}

func (a *Accessor) readLocation(ctx context.Context, loc Location) (Bundle, error) {
	raw, err := loc.Store.Get(ctx, loc.Key)
	if err != nil {
		return Bundle{}, fmt.Errorf("%w: %w", common.ErrStorage, err)
	}
	if len(raw) == 0 {
		return Bundle{}, nil
	}

	switch loc.Field {
	case FieldAccess:
		return Bundle{AccessToken: string(raw)}, nil
	case FieldRefresh:
		return Bundle{RefreshToken: string(raw)}, nil
	default:
		b, err := decodeCombined(raw)
		if err != nil {
			return Bundle{}, fmt.Errorf("%w: %w", common.ErrMalformedCredential, err)
		}
		return b, nil
	}
}

// Write stores b under every location, then reads back to verify. It
// returns true only if at least one primary location accepted the write
// and the verification read sees b's access token. Failures are logged,
// never returned.
func (a *Accessor) Write(ctx context.Context, b Bundle) bool {
	if !b.Present() {
		a.logger.Warn(ctx, "refusing to write credential without access token")
		return false
	}

	primaryWrites := 0
	for _, loc := range a.locations {
		if err := a.writeLocation(ctx, loc, b); err != nil {
			a.logFailure(ctx, loc, "write", err)
			continue
		}
		if !loc.Secondary {
			primaryWrites++
		}
	}

	if primaryWrites == 0 {
		a.logger.Warn(ctx, "credential write reached no primary store")
		return false
	}

	got, ok := a.Read(ctx)
	if !ok || got.AccessToken != b.AccessToken {
		a.logger.Warn(ctx, "credential write verification failed", "found", ok)
		return false
	}
	return true
}

func (a *Accessor) writeLocation(ctx context.Context, loc Location, b Bundle) error {
	var value []byte

	switch loc.Field {
	case FieldAccess:
		value = []byte(b.AccessToken)
	case FieldRefresh:
		if b.RefreshToken == "" {
			// a refresh token paired with a different access token is worse
			// than none
			return loc.Store.Delete(ctx, loc.Key)
		}
		value = []byte(b.RefreshToken)
	default:
		enc, err := encodeCombined(b)
		if err != nil {
			return err
		}
		value = enc
	}

	if err := loc.Store.Set(ctx, loc.Key, value); err != nil {
		return fmt.Errorf("%w: %w", common.ErrStorage, err)
	}
	return nil
}

// Erase removes the bundle from every location. It reports whether every
// primary delete succeeded.
func (a *Accessor) Erase(ctx context.Context) bool {
	ok := true
	for _, loc := range a.locations {
		if err := loc.Store.Delete(ctx, loc.Key); err != nil {
			a.logFailure(ctx, loc, "erase", fmt.Errorf("%w: %w", common.ErrStorage, err))
			if !loc.Secondary {
				ok = false
			}
		}
	}
	return ok
}

// Alias describes what one location currently holds.
type Alias struct {
	Store string
	Key   string
	Field Field
	Value string
	Err   error
}

// Inspect reports the decoded value of every location. Combined locations
// report their access token.
func (a *Accessor) Inspect(ctx context.Context) []Alias {
	out := make([]Alias, 0, len(a.locations))
	for _, loc := range a.locations {
		al := Alias{Store: loc.Store.Name(), Key: loc.Key, Field: loc.Field}
		part, err := a.readLocation(ctx, loc)
		switch {
		case err != nil:
			al.Err = err
		case loc.Field == FieldRefresh:
			al.Value = part.RefreshToken
		default:
			al.Value = part.AccessToken
		}
		out = append(out, al)
	}
	return out
}

func (a *Accessor) logFailure(ctx context.Context, loc Location, op string, err error) {
	args := []any{"op", op, "store", loc.Store.Name(), "key", loc.Key, "error", err}
	if loc.Secondary {
		a.logger.Debug(ctx, "secondary credential store failed", args...)
		return
	}
	a.logger.Warn(ctx, "credential store failed", args...)
}
