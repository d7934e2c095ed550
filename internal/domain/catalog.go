package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Employee, Customer and Service are owned by other parts of the system; the booking core
// only reads them.

type Employee struct {
	bun.BaseModel `bun:"table:employees,alias:e"`

	ID        uuid.UUID `bun:"id,pk,type:uuid"`
	FullName  string    `bun:"full_name,notnull"`
	IsActive  bool      `bun:"is_active,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

type Customer struct {
	bun.BaseModel `bun:"table:customers,alias:c"`

	ID        uuid.UUID `bun:"id,pk,type:uuid"`
	FullName  string    `bun:"full_name,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

type Service struct {
	bun.BaseModel `bun:"table:services,alias:s"`

	ID              uuid.UUID       `bun:"id,pk,type:uuid"`
	Name            string          `bun:"name,notnull"`
	DurationMinutes int             `bun:"duration_minutes,notnull"`
	Price           decimal.Decimal `bun:"price,type:numeric(10,2),notnull"`
	IsActive        bool            `bun:"is_active,notnull"`
	CreatedAt       time.Time       `bun:"created_at,notnull"`
}

func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}
