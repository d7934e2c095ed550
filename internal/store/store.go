package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"schedula/booking/internal/domain"
)

// Store runs work against shared schedule and visit state. Everything a caller reads and
// writes inside fn belongs to one transaction; locks taken through Tx are released when fn returns.
type Store interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

type Tx interface {
	// LockEmployees takes exclusive per-employee locks, in a stable order, until the
	// transaction ends. Every writer of an employee's visits or schedules holds it.
	LockEmployees(ctx context.Context, employeeIDs ...uuid.UUID) error

	GetEmployee(ctx context.Context, id uuid.UUID) (domain.Employee, error)
	GetCustomer(ctx context.Context, id uuid.UUID) (domain.Customer, error)
	GetService(ctx context.Context, id uuid.UUID) (domain.Service, error)

	// GetWeeklySchedule returns the schedule with breaks ordered by start, or nil when the
	// employee does not work that weekday.
	GetWeeklySchedule(ctx context.Context, employeeID uuid.UUID, weekday domain.Weekday) (*domain.WeeklySchedule, error)
	GetSchedule(ctx context.Context, id uuid.UUID) (domain.WeeklySchedule, error)
	ListSchedules(ctx context.Context, employeeID uuid.UUID) ([]domain.WeeklySchedule, error)
	CreateSchedule(ctx context.Context, s domain.WeeklySchedule) (domain.WeeklySchedule, error)
	UpdateScheduleHours(ctx context.Context, s domain.WeeklySchedule) (domain.WeeklySchedule, error)
	DeleteSchedule(ctx context.Context, id uuid.UUID) error
	GetBreak(ctx context.Context, id uuid.UUID) (domain.Break, error)
	CreateBreak(ctx context.Context, b domain.Break) (domain.Break, error)
	DeleteBreak(ctx context.Context, id uuid.UUID) error

	// GetOverlappingVisits returns scheduled visits of the employee intersecting [start, end),
	// ordered by start then id.
	GetOverlappingVisits(ctx context.Context, employeeID uuid.UUID, start, end time.Time, excludeVisitID *uuid.UUID) ([]domain.Visit, error)
	GetVisit(ctx context.Context, id uuid.UUID) (domain.Visit, error)
	// GetVisitForUpdate also locks the visit row until the transaction ends.
	GetVisitForUpdate(ctx context.Context, id uuid.UUID) (domain.Visit, error)
	ListVisits(ctx context.Context, employeeID uuid.UUID, from, to time.Time) ([]domain.Visit, error)
	CreateVisit(ctx context.Context, v domain.Visit) (domain.Visit, error)
	UpdateVisit(ctx context.Context, v domain.Visit) (domain.Visit, error)
	DeleteVisit(ctx context.Context, id uuid.UUID) error
}
