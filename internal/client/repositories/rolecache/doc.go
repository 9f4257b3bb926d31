// Package rolecache persists resolved user roles in the local state
// database.
//
// # Data Model
//
// One row per user: the role, whether it is temporary and when it was
// written. Temporary rows come from heuristics (user metadata, the default
// after a failed lookup) and are re-checked against the profile source on
// the next resolution; confirmed rows come from the profile source and are
// served without a lookup.
//
// Typical Usage
//
//	repo := rolecache.NewSQLiteRepository(db)
//	_ = repo.Put(ctx, rolecache.Entry{UserID: id, Role: "admin"})
//	e, ok, _ := repo.Get(ctx, id)
package rolecache
