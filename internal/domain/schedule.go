package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// WeeklySchedule holds an employee's working hours for one weekday. There is at most one
// per (employee, weekday).
type WeeklySchedule struct {
	bun.BaseModel `bun:"table:weekly_schedules,alias:ws"`

	ID         uuid.UUID `bun:"id,pk,type:uuid"`
	EmployeeID uuid.UUID `bun:"employee_id,notnull,type:uuid"`
	Weekday    Weekday   `bun:"weekday,notnull"`
	StartTime  TimeOfDay `bun:"start_time,notnull,type:time"`
	EndTime    TimeOfDay `bun:"end_time,notnull,type:time"`
	Breaks     []Break   `bun:"rel:has-many,join:id=schedule_id"`
	CreatedAt  time.Time `bun:"created_at,notnull"`
	UpdatedAt  time.Time `bun:"updated_at,notnull"`
}

func (s *WeeklySchedule) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if s.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			s.ID = id
		}
		if s.CreatedAt.IsZero() {
			s.CreatedAt = now
		}
		if s.UpdatedAt.IsZero() {
			s.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		s.UpdatedAt = now
	}
	return nil
}

// Break is a sub-interval of a schedule's hours during which nothing may be booked.
type Break struct {
	bun.BaseModel `bun:"table:schedule_breaks,alias:sb"`

	ID         uuid.UUID `bun:"id,pk,type:uuid"`
	ScheduleID uuid.UUID `bun:"schedule_id,notnull,type:uuid"`
	StartTime  TimeOfDay `bun:"start_time,notnull,type:time"`
	EndTime    TimeOfDay `bun:"end_time,notnull,type:time"`
	CreatedAt  time.Time `bun:"created_at,notnull"`
}

func (b *Break) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); !ok {
		return nil
	}
	if b.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		b.ID = id
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	return nil
}
