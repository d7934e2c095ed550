// Package booking books, reschedules and transitions visits. Every check-then-write runs in
// one store transaction under the employee lock, so two requests for overlapping slots of the
// same employee cannot both succeed.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"schedula/booking/internal/domain"
	"schedula/booking/internal/metrics"
	"schedula/booking/internal/service/availability"
	"schedula/booking/internal/store"
)

const (
	opBook         = "book"
	opReschedule   = "reschedule"
	opUpdateStatus = "update_status"
	opDelete       = "delete"
	opCheck        = "check"

	maxIdempotencyKeyLen = 256
	maxListWindow        = 93 * 24 * time.Hour
)

type Service struct {
	store   store.Store
	engine  *availability.Engine
	metrics *metrics.Collector
}

func NewService(st store.Store, engine *availability.Engine, m *metrics.Collector) *Service {
	return &Service{store: st, engine: engine, metrics: m}
}

type BookInput struct {
	EmployeeID     uuid.UUID
	CustomerID     uuid.UUID
	ServiceID      uuid.UUID
	Start          time.Time
	Comment        string
	IdempotencyKey string
}

func (s *Service) BookVisit(ctx context.Context, in BookInput) (domain.Visit, error) {
	if in.EmployeeID == uuid.Nil {
		return domain.Visit{}, validationError("employee_id is required")
	}
	if in.CustomerID == uuid.Nil {
		return domain.Visit{}, validationError("customer_id is required")
	}
	if in.ServiceID == uuid.Nil {
		return domain.Visit{}, validationError("service_id is required")
	}
	if in.Start.IsZero() {
		return domain.Visit{}, validationError("start is required")
	}

	// Stored timestamps keep microseconds, so a replayed start has to compare at that precision.
	start := in.Start.UTC().Truncate(time.Microsecond)

	var visitID uuid.UUID
	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" {
		if len(key) > maxIdempotencyKeyLen {
			return domain.Visit{}, validationError("idempotency_key too long")
		}
		visitID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("schedula:book_visit:"+in.EmployeeID.String()+":"+key))
	}

	var (
		out      domain.Visit
		replayed bool
	)
	err := s.store.InTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.GetCustomer(ctx, in.CustomerID); err != nil {
			return lookup("customer", in.CustomerID, err)
		}
		if _, err := tx.GetEmployee(ctx, in.EmployeeID); err != nil {
			return lookup("employee", in.EmployeeID, err)
		}
		svc, err := tx.GetService(ctx, in.ServiceID)
		if err != nil {
			return lookup("service", in.ServiceID, err)
		}

		if err := tx.LockEmployees(ctx, in.EmployeeID); err != nil {
			return fmt.Errorf("lock employee: %w", err)
		}

		// A replay returns the visit it already booked even if the service has since been retired.
		if visitID != uuid.Nil {
			existing, err := tx.GetVisit(ctx, visitID)
			switch {
			case err == nil:
				if existing.CustomerID != in.CustomerID || existing.ServiceID != in.ServiceID || !existing.StartAt.Equal(start) {
					return store.ErrIdempotencyConflict
				}
				out, replayed = existing, true
				return nil
			case !errors.Is(err, store.ErrNotFound):
				return fmt.Errorf("get visit: %w", err)
			}
		}

		if !svc.IsActive {
			return ErrServiceInactive
		}

		rej, err := s.check(ctx, tx, availability.Query{
			EmployeeID:      in.EmployeeID,
			Start:           start,
			DurationMinutes: svc.DurationMinutes,
		})
		if err != nil {
			return err
		}
		if rej != nil {
			return rej
		}

		created, err := tx.CreateVisit(ctx, domain.Visit{
			ID:         visitID,
			EmployeeID: in.EmployeeID,
			CustomerID: in.CustomerID,
			ServiceID:  in.ServiceID,
			StartAt:    start,
			EndAt:      start.Add(svc.Duration()),
			Price:      svc.Price,
			Comment:    in.Comment,
			Status:     domain.VisitStatusScheduled,
		})
		if err != nil {
			return fmt.Errorf("create visit: %w", err)
		}
		out = created
		return nil
	})
	if err == nil && replayed {
		s.metrics.Outcome(opBook, "replayed")
		return out, nil
	}
	if err = s.result(opBook, err); err != nil {
		return domain.Visit{}, err
	}
	return out, nil
}

type RescheduleInput struct {
	VisitID    uuid.UUID
	Start      *time.Time
	EmployeeID *uuid.UUID
	ServiceID  *uuid.UUID
	CustomerID *uuid.UUID
	Comment    *string
}

// RescheduleVisit changes a scheduled visit. A new start or employee, or a different
// service, re-runs the availability check with the visit excluded from its own conflicts.
func (s *Service) RescheduleVisit(ctx context.Context, in RescheduleInput) (domain.Visit, error) {
	if in.VisitID == uuid.Nil {
		return domain.Visit{}, validationError("visit_id is required")
	}
	if in.Start != nil && in.Start.IsZero() {
		return domain.Visit{}, validationError("start must not be empty")
	}
	if in.EmployeeID != nil && *in.EmployeeID == uuid.Nil {
		return domain.Visit{}, validationError("employee_id must not be empty")
	}
	if in.ServiceID != nil && *in.ServiceID == uuid.Nil {
		return domain.Visit{}, validationError("service_id must not be empty")
	}
	if in.CustomerID != nil && *in.CustomerID == uuid.Nil {
		return domain.Visit{}, validationError("customer_id must not be empty")
	}

	var out domain.Visit
	err := s.store.InTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		visit, err := tx.GetVisitForUpdate(ctx, in.VisitID)
		if err != nil {
			return lookup("visit", in.VisitID, err)
		}
		if visit.Status != domain.VisitStatusScheduled {
			return ErrNotReschedulable
		}

		serviceChanged := in.ServiceID != nil && *in.ServiceID != visit.ServiceID
		serviceID := visit.ServiceID
		if serviceChanged {
			serviceID = *in.ServiceID
		}
		svc, err := tx.GetService(ctx, serviceID)
		if err != nil {
			return lookup("service", serviceID, err)
		}
		if serviceChanged && !svc.IsActive {
			return ErrServiceInactive
		}

		employeeID := visit.EmployeeID
		if in.EmployeeID != nil {
			employeeID = *in.EmployeeID
			if _, err := tx.GetEmployee(ctx, employeeID); err != nil {
				return lookup("employee", employeeID, err)
			}
		}
		if in.CustomerID != nil {
			if _, err := tx.GetCustomer(ctx, *in.CustomerID); err != nil {
				return lookup("customer", *in.CustomerID, err)
			}
			visit.CustomerID = *in.CustomerID
		}
		if in.Comment != nil {
			visit.Comment = *in.Comment
		}

		start := visit.StartAt
		if in.Start != nil {
			start = in.Start.UTC().Truncate(time.Microsecond)
		}

		if in.Start != nil || in.EmployeeID != nil || serviceChanged {
			if err := tx.LockEmployees(ctx, visit.EmployeeID, employeeID); err != nil {
				return fmt.Errorf("lock employees: %w", err)
			}
			rej, err := s.check(ctx, tx, availability.Query{
				EmployeeID:      employeeID,
				Start:           start,
				DurationMinutes: svc.DurationMinutes,
				ExcludeVisitID:  &visit.ID,
			})
			if err != nil {
				return err
			}
			if rej != nil {
				return rej
			}

			visit.EmployeeID = employeeID
			visit.StartAt = start
			visit.EndAt = start.Add(svc.Duration())
			if serviceChanged {
				visit.ServiceID = svc.ID
				visit.Price = svc.Price
			}
		}

		updated, err := tx.UpdateVisit(ctx, visit)
		if err != nil {
			return fmt.Errorf("update visit: %w", err)
		}
		out = updated
		return nil
	})
	if err = s.result(opReschedule, err); err != nil {
		return domain.Visit{}, err
	}
	return out, nil
}

func (s *Service) UpdateStatus(ctx context.Context, visitID uuid.UUID, status domain.VisitStatus) (domain.Visit, error) {
	if visitID == uuid.Nil {
		return domain.Visit{}, validationError("visit_id is required")
	}
	status, err := domain.ParseVisitStatus(string(status))
	if err != nil {
		return domain.Visit{}, validationError("invalid status")
	}

	var out domain.Visit
	err = s.store.InTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		visit, err := tx.GetVisitForUpdate(ctx, visitID)
		if err != nil {
			return lookup("visit", visitID, err)
		}
		if !visit.Status.CanTransitionTo(status) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidStatusTransition, visit.Status, status)
		}
		visit.Status = status
		updated, err := tx.UpdateVisit(ctx, visit)
		if err != nil {
			return fmt.Errorf("update visit: %w", err)
		}
		out = updated
		return nil
	})
	if err = s.result(opUpdateStatus, err); err != nil {
		return domain.Visit{}, err
	}
	return out, nil
}

func (s *Service) GetVisit(ctx context.Context, visitID uuid.UUID) (domain.Visit, error) {
	if visitID == uuid.Nil {
		return domain.Visit{}, validationError("visit_id is required")
	}
	var out domain.Visit
	err := s.store.InTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		v, err := tx.GetVisit(ctx, visitID)
		if err != nil {
			return lookup("visit", visitID, err)
		}
		out = v
		return nil
	})
	return out, err
}

func (s *Service) ListVisits(ctx context.Context, employeeID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Visit, error) {
	if employeeID == uuid.Nil {
		return nil, validationError("employee_id is required")
	}
	start := windowStart.UTC()
	end := windowEnd.UTC()
	if !end.After(start) {
		return nil, validationError("window_end must be after window_start")
	}
	if end.Sub(start) > maxListWindow {
		return nil, validationError("window too long")
	}

	var out []domain.Visit
	err := s.store.InTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		visits, err := tx.ListVisits(ctx, employeeID, start, end)
		if err != nil {
			return fmt.Errorf("list visits: %w", err)
		}
		out = visits
		return nil
	})
	return out, err
}

// DeleteVisit removes the record outright. It is not an availability decision.
func (s *Service) DeleteVisit(ctx context.Context, visitID uuid.UUID) error {
	if visitID == uuid.Nil {
		return validationError("visit_id is required")
	}
	err := s.store.InTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.DeleteVisit(ctx, visitID); err != nil {
			return lookup("visit", visitID, err)
		}
		return nil
	})
	return s.result(opDelete, err)
}

type CheckInput struct {
	EmployeeID      uuid.UUID
	Start           time.Time
	DurationMinutes int
	ExcludeVisitID  *uuid.UUID
}

// CheckSlot answers whether a slot is bookable right now without booking it. A nil
// Rejection means accept.
func (s *Service) CheckSlot(ctx context.Context, in CheckInput) (*availability.Rejection, error) {
	if in.EmployeeID == uuid.Nil {
		return nil, validationError("employee_id is required")
	}
	if in.Start.IsZero() {
		return nil, validationError("start is required")
	}
	if in.DurationMinutes <= 0 {
		return nil, validationError("duration_minutes must be positive")
	}
	if in.DurationMinutes > availability.MaxDurationMinutes {
		return nil, validationError(fmt.Sprintf("duration_minutes must be at most %d", availability.MaxDurationMinutes))
	}

	var rej *availability.Rejection
	err := s.store.InTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.GetEmployee(ctx, in.EmployeeID); err != nil {
			return lookup("employee", in.EmployeeID, err)
		}
		var err error
		rej, err = s.check(ctx, tx, availability.Query{
			EmployeeID:      in.EmployeeID,
			Start:           in.Start,
			DurationMinutes: in.DurationMinutes,
			ExcludeVisitID:  in.ExcludeVisitID,
		})
		return err
	})
	if err != nil {
		return nil, s.result(opCheck, err)
	}
	if rej != nil {
		s.metrics.Outcome(opCheck, string(rej.Reason))
	} else {
		s.metrics.Outcome(opCheck, "accepted")
	}
	return rej, nil
}

func (s *Service) check(ctx context.Context, tx store.Tx, q availability.Query) (*availability.Rejection, error) {
	started := time.Now()
	rej, err := s.engine.CheckSlot(ctx, tx, q)
	s.metrics.ObserveCheck(time.Since(started))
	if err != nil {
		return nil, fmt.Errorf("check slot: %w", err)
	}
	return rej, nil
}

// result records the outcome of op and folds storage-level write conflicts into ErrContention.
func (s *Service) result(op string, err error) error {
	var (
		rej      *availability.Rejection
		notFound *NotFoundError
		vErr     *ValidationError
	)
	outcome := "error"
	switch {
	case err == nil:
		outcome = "accepted"
	case errors.As(err, &rej):
		outcome = string(rej.Reason)
	case errors.As(err, &notFound):
		outcome = "not_found"
	case errors.As(err, &vErr):
		outcome = "invalid"
	case errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrContention):
		outcome = "contention"
		err = fmt.Errorf("%w: %w", ErrContention, err)
	case errors.Is(err, ErrServiceInactive):
		outcome = "service_inactive"
	case errors.Is(err, ErrNotReschedulable):
		outcome = "not_reschedulable"
	case errors.Is(err, ErrInvalidStatusTransition):
		outcome = "invalid_transition"
	case errors.Is(err, store.ErrIdempotencyConflict):
		outcome = "idempotency_conflict"
	}
	s.metrics.Outcome(op, outcome)
	return err
}
