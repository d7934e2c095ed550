package booking

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"schedula/booking/internal/store"
)

var (
	ErrServiceInactive         = errors.New("service is not active")
	ErrNotReschedulable        = errors.New("only scheduled visits can be rescheduled")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	// ErrContention means a concurrent writer got in the way. The request was not applied
	// and may be retried by the caller.
	ErrContention = errors.New("concurrent booking contention")
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

type NotFoundError struct {
	Entity string
	ID     uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return store.ErrNotFound
}

// lookup turns a store miss into a NotFoundError for entity.
func lookup(entity string, id uuid.UUID, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return &NotFoundError{Entity: entity, ID: id}
	}
	return fmt.Errorf("get %s: %w", entity, err)
}
