// Package schedules manages weekly working hours and their breaks. Writes take the same
// employee lock as bookings, so hours never change underneath a booking's check.
package schedules

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"schedula/booking/internal/domain"
	"schedula/booking/internal/store"
)

var ErrBreakOverlap = errors.New("break overlaps an existing break")

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

func notFound(entity string, id uuid.UUID, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s %s: %w", entity, id, store.ErrNotFound)
	}
	return fmt.Errorf("get %s: %w", entity, err)
}

type Service struct {
	store store.Store
}

func NewService(st store.Store) *Service {
	return &Service{store: st}
}

func validHours(start, end domain.TimeOfDay) error {
	if !start.Valid() || !end.Valid() {
		return validationError("times must be within a day")
	}
	if start >= end {
		return validationError("end_time must be after start_time")
	}
	return nil
}

type CreateInput struct {
	EmployeeID uuid.UUID
	Weekday    domain.Weekday
	StartTime  domain.TimeOfDay
	EndTime    domain.TimeOfDay
}

func (s *Service) CreateSchedule(ctx context.Context, in CreateInput) (domain.WeeklySchedule, error) {
	if in.EmployeeID == uuid.Nil {
		return domain.WeeklySchedule{}, validationError("employee_id is required")
	}
	if !in.Weekday.Valid() {
		return domain.WeeklySchedule{}, validationError("invalid weekday")
	}
	if err := validHours(in.StartTime, in.EndTime); err != nil {
		return domain.WeeklySchedule{}, err
	}

	var out domain.WeeklySchedule
	err := s.store.InTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.GetEmployee(ctx, in.EmployeeID); err != nil {
			return notFound("employee", in.EmployeeID, err)
		}
		if err := tx.LockEmployees(ctx, in.EmployeeID); err != nil {
			return fmt.Errorf("lock employee: %w", err)
		}
		existing, err := tx.GetWeeklySchedule(ctx, in.EmployeeID, in.Weekday)
		if err != nil {
			return fmt.Errorf("get weekly schedule: %w", err)
		}
		if existing != nil {
			return fmt.Errorf("%w: %s", store.ErrDuplicateSchedule, in.Weekday)
		}
		created, err := tx.CreateSchedule(ctx, domain.WeeklySchedule{
			EmployeeID: in.EmployeeID,
			Weekday:    in.Weekday,
			StartTime:  in.StartTime,
			EndTime:    in.EndTime,
		})
		if err != nil {
			return fmt.Errorf("create schedule: %w", err)
		}
		out = created
		return nil
	})
	return out, err
}

func (s *Service) ListSchedules(ctx context.Context, employeeID uuid.UUID) ([]domain.WeeklySchedule, error) {
	if employeeID == uuid.Nil {
		return nil, validationError("employee_id is required")
	}
	var out []domain.WeeklySchedule
	err := s.store.InTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.GetEmployee(ctx, employeeID); err != nil {
			return notFound("employee", employeeID, err)
		}
		schedules, err := tx.ListSchedules(ctx, employeeID)
		if err != nil {
			return fmt.Errorf("list schedules: %w", err)
		}
		out = schedules
		return nil
	})
	return out, err
}

func (s *Service) GetSchedule(ctx context.Context, scheduleID uuid.UUID) (domain.WeeklySchedule, error) {
	if scheduleID == uuid.Nil {
		return domain.WeeklySchedule{}, validationError("schedule_id is required")
	}
	var out domain.WeeklySchedule
	err := s.store.InTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		ws, err := tx.GetSchedule(ctx, scheduleID)
		if err != nil {
			return notFound("schedule", scheduleID, err)
		}
		out = ws
		return nil
	})
	return out, err
}

// lockedSchedule locks the schedule's employee and reads the schedule again under the lock.
func lockedSchedule(ctx context.Context, tx store.Tx, scheduleID uuid.UUID) (domain.WeeklySchedule, error) {
	ws, err := tx.GetSchedule(ctx, scheduleID)
	if err != nil {
		return domain.WeeklySchedule{}, notFound("schedule", scheduleID, err)
	}
	if err := tx.LockEmployees(ctx, ws.EmployeeID); err != nil {
		return domain.WeeklySchedule{}, fmt.Errorf("lock employee: %w", err)
	}
	ws, err = tx.GetSchedule(ctx, scheduleID)
	if err != nil {
		return domain.WeeklySchedule{}, notFound("schedule", scheduleID, err)
	}
	return ws, nil
}

type UpdateInput struct {
	ScheduleID uuid.UUID
	StartTime  *domain.TimeOfDay
	EndTime    *domain.TimeOfDay
}

// UpdateSchedule changes working hours. Existing breaks must still fit inside them.
func (s *Service) UpdateSchedule(ctx context.Context, in UpdateInput) (domain.WeeklySchedule, error) {
	if in.ScheduleID == uuid.Nil {
		return domain.WeeklySchedule{}, validationError("schedule_id is required")
	}

	var out domain.WeeklySchedule
	err := s.store.InTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		ws, err := lockedSchedule(ctx, tx, in.ScheduleID)
		if err != nil {
			return err
		}
		if in.StartTime != nil {
			ws.StartTime = *in.StartTime
		}
		if in.EndTime != nil {
			ws.EndTime = *in.EndTime
		}
		if err := validHours(ws.StartTime, ws.EndTime); err != nil {
			return err
		}
		for _, b := range ws.Breaks {
			if b.StartTime < ws.StartTime || b.EndTime > ws.EndTime {
				return validationError("break %s-%s would be outside updated schedule hours %s-%s",
					b.StartTime, b.EndTime, ws.StartTime, ws.EndTime)
			}
		}
		updated, err := tx.UpdateScheduleHours(ctx, ws)
		if err != nil {
			return fmt.Errorf("update schedule: %w", err)
		}
		out = updated
		return nil
	})
	return out, err
}

func (s *Service) DeleteSchedule(ctx context.Context, scheduleID uuid.UUID) error {
	if scheduleID == uuid.Nil {
		return validationError("schedule_id is required")
	}
	return s.store.InTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := lockedSchedule(ctx, tx, scheduleID); err != nil {
			return err
		}
		if err := tx.DeleteSchedule(ctx, scheduleID); err != nil {
			return notFound("schedule", scheduleID, err)
		}
		return nil
	})
}

type BreakInput struct {
	ScheduleID uuid.UUID
	StartTime  domain.TimeOfDay
	EndTime    domain.TimeOfDay
}

// AddBreak adds a break inside the schedule's hours that does not overlap a sibling break.
func (s *Service) AddBreak(ctx context.Context, in BreakInput) (domain.Break, error) {
	if in.ScheduleID == uuid.Nil {
		return domain.Break{}, validationError("schedule_id is required")
	}
	if err := validHours(in.StartTime, in.EndTime); err != nil {
		return domain.Break{}, err
	}

	var out domain.Break
	err := s.store.InTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		ws, err := lockedSchedule(ctx, tx, in.ScheduleID)
		if err != nil {
			return err
		}
		if in.StartTime < ws.StartTime || in.EndTime > ws.EndTime {
			return validationError("break must be within schedule hours (%s-%s)", ws.StartTime, ws.EndTime)
		}
		for _, b := range ws.Breaks {
			if domain.Overlaps(in.StartTime, in.EndTime, b.StartTime, b.EndTime) {
				return fmt.Errorf("%w (%s-%s)", ErrBreakOverlap, b.StartTime, b.EndTime)
			}
		}
		created, err := tx.CreateBreak(ctx, domain.Break{
			ScheduleID: ws.ID,
			StartTime:  in.StartTime,
			EndTime:    in.EndTime,
		})
		if err != nil {
			return fmt.Errorf("create break: %w", err)
		}
		out = created
		return nil
	})
	return out, err
}

func (s *Service) DeleteBreak(ctx context.Context, breakID uuid.UUID) error {
	if breakID == uuid.Nil {
		return validationError("break_id is required")
	}
	return s.store.InTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		b, err := tx.GetBreak(ctx, breakID)
		if err != nil {
			return notFound("break", breakID, err)
		}
		if _, err := lockedSchedule(ctx, tx, b.ScheduleID); err != nil {
			return err
		}
		if err := tx.DeleteBreak(ctx, breakID); err != nil {
			return notFound("break", breakID, err)
		}
		return nil
	})
}
