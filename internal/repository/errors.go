package repository

import "errors"

var (
	// ErrConflict is returned when a guarded update matched no rows because
	// another writer changed the record first.
	ErrConflict = errors.New("record was modified concurrently")
	// ErrLimitReached is returned when an attempt would exceed its configured cap.
	ErrLimitReached = errors.New("attempt limit reached")
)
