package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type VisitStatus string

const (
	VisitStatusScheduled VisitStatus = "scheduled"
	VisitStatusCompleted VisitStatus = "completed"
	VisitStatusCancelled VisitStatus = "cancelled"
)

func ParseVisitStatus(s string) (VisitStatus, error) {
	switch st := VisitStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case VisitStatusScheduled, VisitStatusCompleted, VisitStatusCancelled:
		return st, nil
	default:
		return "", fmt.Errorf("invalid visit status %q", s)
	}
}

// CanTransitionTo reports whether a visit in status s may be moved to next.
// Writing the current status again is allowed; completed and cancelled are terminal.
func (s VisitStatus) CanTransitionTo(next VisitStatus) bool {
	if s == next {
		return true
	}
	return s == VisitStatusScheduled && (next == VisitStatusCompleted || next == VisitStatusCancelled)
}

// Visit is a booked appointment. Price is the service price at booking time and does not
// follow later changes to the service.
type Visit struct {
	bun.BaseModel `bun:"table:visits,alias:v"`

	ID         uuid.UUID       `bun:"id,pk,type:uuid"`
	EmployeeID uuid.UUID       `bun:"employee_id,notnull,type:uuid"`
	CustomerID uuid.UUID       `bun:"customer_id,notnull,type:uuid"`
	ServiceID  uuid.UUID       `bun:"service_id,notnull,type:uuid"`
	StartAt    time.Time       `bun:"start_at,notnull"`
	EndAt      time.Time       `bun:"end_at,notnull"`
	Price      decimal.Decimal `bun:"price,type:numeric(10,2),notnull"`
	Comment    string          `bun:"comment,nullzero"`
	Status     VisitStatus     `bun:"status,notnull"`
	CreatedAt  time.Time       `bun:"created_at,notnull"`
	UpdatedAt  time.Time       `bun:"updated_at,notnull"`
}

func (v *Visit) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if v.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			v.ID = id
		}
		if v.CreatedAt.IsZero() {
			v.CreatedAt = now
		}
		if v.UpdatedAt.IsZero() {
			v.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		v.UpdatedAt = now
	}
	return nil
}

func (v Visit) Duration() time.Duration {
	return v.EndAt.Sub(v.StartAt)
}
