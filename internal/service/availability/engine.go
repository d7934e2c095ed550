// Package availability decides whether a candidate slot can be booked for an employee.
package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"schedula/booking/internal/domain"
)

type Reason string

const (
	ReasonSpansMidnight      Reason = "spans_midnight"
	ReasonNoScheduleForDay   Reason = "no_schedule_for_day"
	ReasonBeforeWorkingHours Reason = "before_working_hours"
	ReasonAfterWorkingHours  Reason = "after_working_hours"
	ReasonOverlapsBreak      Reason = "overlaps_break"
	ReasonOverlapsVisit      Reason = "overlaps_visit"
)

// Rejection is the outcome of a failed check. It is an expected business result, not a
// failure of the engine, and carries enough context to explain itself.
type Rejection struct {
	Reason Reason

	// Start and End are the candidate slot in the engine's location.
	Start time.Time
	End   time.Time

	Weekday domain.Weekday

	// Boundary is the schedule start or end for the working-hours reasons.
	Boundary domain.TimeOfDay

	BreakStart domain.TimeOfDay
	BreakEnd   domain.TimeOfDay

	// Conflict is the first conflicting visit, ordered by start then id.
	Conflict *domain.Visit
}

func (r *Rejection) Error() string {
	switch r.Reason {
	case ReasonSpansMidnight:
		return "visit cannot span midnight"
	case ReasonNoScheduleForDay:
		return fmt.Sprintf("employee has no schedule for %s", r.Weekday)
	case ReasonBeforeWorkingHours:
		return fmt.Sprintf("start time %s is before work hours (%s)", domain.TimeOfDayOf(r.Start), r.Boundary)
	case ReasonAfterWorkingHours:
		return fmt.Sprintf("end time %s is after work hours (%s)", domain.TimeOfDayOf(r.End), r.Boundary)
	case ReasonOverlapsBreak:
		return fmt.Sprintf("time slot overlaps with break (%s-%s)", r.BreakStart, r.BreakEnd)
	case ReasonOverlapsVisit:
		if r.Conflict == nil {
			return "time slot conflicts with existing visit"
		}
		loc := r.Start.Location()
		return fmt.Sprintf("time slot conflicts with existing visit (%s-%s)",
			r.Conflict.StartAt.In(loc).Format("15:04"), r.Conflict.EndAt.In(loc).Format("15:04"))
	default:
		return string(r.Reason)
	}
}

type ScheduleLookup interface {
	GetWeeklySchedule(ctx context.Context, employeeID uuid.UUID, weekday domain.Weekday) (*domain.WeeklySchedule, error)
}

type VisitLookup interface {
	GetOverlappingVisits(ctx context.Context, employeeID uuid.UUID, start, end time.Time, excludeVisitID *uuid.UUID) ([]domain.Visit, error)
}

type Lookup interface {
	ScheduleLookup
	VisitLookup
}

type Query struct {
	EmployeeID      uuid.UUID
	Start           time.Time
	DurationMinutes int
	// ExcludeVisitID keeps a visit being rescheduled from conflicting with itself.
	ExcludeVisitID *uuid.UUID
}

func (q Query) End() time.Time {
	return q.Start.Add(time.Duration(q.DurationMinutes) * time.Minute)
}

// MaxDurationMinutes is the longest slot that can still fit inside one calendar day.
const MaxDurationMinutes = 24*60 - 1

var ErrInvalidDuration = errors.New("duration must be positive")

// Engine holds no state besides the location in which calendar dates and times of day
// are evaluated. It never writes and never locks; callers that need the answer to stay
// true must hold the employee lock across check and write.
type Engine struct {
	loc *time.Location
}

func NewEngine(loc *time.Location) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{loc: loc}
}

func (e *Engine) Location() *time.Location {
	return e.loc
}

// CheckSlot returns nil when the slot is bookable, or the first failing check in this
// order: midnight, schedule, working hours, breaks, visits.
func (e *Engine) CheckSlot(ctx context.Context, src Lookup, q Query) (*Rejection, error) {
	if q.DurationMinutes <= 0 {
		return nil, ErrInvalidDuration
	}

	start := q.Start.In(e.loc)
	if q.DurationMinutes > MaxDurationMinutes {
		return &Rejection{
			Reason:  ReasonSpansMidnight,
			Start:   start,
			End:     start.AddDate(0, 0, 1),
			Weekday: domain.WeekdayOf(start),
		}, nil
	}
	end := q.End().In(e.loc)
	reject := func(reason Reason) *Rejection {
		return &Rejection{Reason: reason, Start: start, End: end, Weekday: domain.WeekdayOf(start)}
	}

	sy, sm, sd := start.Date()
	ey, em, ed := end.Date()
	if sy != ey || sm != em || sd != ed {
		return reject(ReasonSpansMidnight), nil
	}

	weekday := domain.WeekdayOf(start)
	schedule, err := src.GetWeeklySchedule(ctx, q.EmployeeID, weekday)
	if err != nil {
		return nil, fmt.Errorf("get weekly schedule: %w", err)
	}
	if schedule == nil {
		return reject(ReasonNoScheduleForDay), nil
	}

	slotStart := domain.TimeOfDayOf(start)
	slotEnd := domain.TimeOfDayOf(end)

	if slotStart < schedule.StartTime {
		r := reject(ReasonBeforeWorkingHours)
		r.Boundary = schedule.StartTime
		return r, nil
	}
	if slotEnd > schedule.EndTime {
		r := reject(ReasonAfterWorkingHours)
		r.Boundary = schedule.EndTime
		return r, nil
	}

	for _, b := range schedule.Breaks {
		if domain.Overlaps(slotStart, slotEnd, b.StartTime, b.EndTime) {
			r := reject(ReasonOverlapsBreak)
			r.BreakStart, r.BreakEnd = b.StartTime, b.EndTime
			return r, nil
		}
	}

	visits, err := src.GetOverlappingVisits(ctx, q.EmployeeID, start.UTC(), end.UTC(), q.ExcludeVisitID)
	if err != nil {
		return nil, fmt.Errorf("get overlapping visits: %w", err)
	}
	if first := firstVisit(visits); first != nil {
		r := reject(ReasonOverlapsVisit)
		r.Conflict = first
		return r, nil
	}

	return nil, nil
}

func firstVisit(visits []domain.Visit) *domain.Visit {
	var first *domain.Visit
	for i := range visits {
		v := &visits[i]
		if first == nil || v.StartAt.Before(first.StartAt) ||
			(v.StartAt.Equal(first.StartAt) && v.ID.String() < first.ID.String()) {
			first = v
		}
	}
	if first == nil {
		return nil
	}
	out := *first
	return &out
}
