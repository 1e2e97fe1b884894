// Package store is the persistence layer over SQLite. Stores return
// nil (not an error) for lookups that find nothing, wrap driver errors
// with context, and never leak raw SQL errors to handlers.
package store

import "errors"

// ErrStaleWrite is returned by compare-and-set updates when the row
// version changed underneath the caller. Callers retry with fresh
// state a bounded number of times before surfacing the conflict.
var ErrStaleWrite = errors.New("stale write: row version changed")

type scanner interface{ Scan(...any) error }
