package store

import "errors"

var (
	ErrConflict            = errors.New("conflict")
	ErrNotFound            = errors.New("not found")
	ErrIdempotencyConflict = errors.New("idempotency key conflict")
	ErrContention          = errors.New("concurrent write contention")
	ErrDuplicateSchedule   = errors.New("schedule already exists for weekday")
)
