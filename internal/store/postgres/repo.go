package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"schedula/booking/internal/domain"
	"schedula/booking/internal/store"
)

const (
	codeUniqueViolation      = "23505"
	codeExclusionViolation   = "23P01"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"

	constraintVisitsNoOverlap     = "visits_no_overlap"
	constraintVisitsPkey          = "visits_pkey"
	constraintScheduleEmployeeDay = "weekly_schedules_employee_weekday_key"
)

type Repo struct {
	db          *bun.DB
	lockTimeout time.Duration
}

var _ store.Store = (*Repo)(nil)

// NewRepo returns a store backed by db. A positive lockTimeout bounds how long a transaction
// waits for any lock, employee locks included; running out of it is reported as contention.
func NewRepo(db *bun.DB, lockTimeout time.Duration) *Repo {
	return &Repo{db: db, lockTimeout: lockTimeout}
}

type pgTx struct {
	tx bun.Tx
}

func (r *Repo) InTransaction(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if r.lockTimeout > 0 {
			stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())
			if _, err := tx.NewRaw(stmt).Exec(ctx); err != nil {
				return err
			}
		}
		return fn(ctx, pgTx{tx: tx})
	})
	return classify(err)
}

// classify turns lock and serialization failures into store.ErrContention; other errors pass through.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
			return fmt.Errorf("%w: %w", store.ErrContention, err)
		}
	}
	return err
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func (r pgTx) LockEmployees(ctx context.Context, employeeIDs ...uuid.UUID) error {
	for _, id := range lockOrder(employeeIDs) {
		if _, err := r.tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", "employee:"+id.String()).Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

// lockOrder dedupes ids and sorts them so concurrent lockers never wait on each other in a cycle.
func lockOrder(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func (r pgTx) GetEmployee(ctx context.Context, id uuid.UUID) (domain.Employee, error) {
	var e domain.Employee
	err := r.tx.NewSelect().Model(&e).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return domain.Employee{}, notFound(err)
	}
	return e, nil
}

func (r pgTx) GetCustomer(ctx context.Context, id uuid.UUID) (domain.Customer, error) {
	var c domain.Customer
	err := r.tx.NewSelect().Model(&c).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return domain.Customer{}, notFound(err)
	}
	return c, nil
}

func (r pgTx) GetService(ctx context.Context, id uuid.UUID) (domain.Service, error) {
	var s domain.Service
	err := r.tx.NewSelect().Model(&s).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return domain.Service{}, notFound(err)
	}
	return s, nil
}

func orderBreaks(q *bun.SelectQuery) *bun.SelectQuery {
	return q.OrderExpr("start_time ASC")
}

func (r pgTx) GetWeeklySchedule(ctx context.Context, employeeID uuid.UUID, weekday domain.Weekday) (*domain.WeeklySchedule, error) {
	var s domain.WeeklySchedule
	err := r.tx.NewSelect().
		Model(&s).
		Relation("Breaks", orderBreaks).
		Where("employee_id = ?", employeeID).
		Where("weekday = ?", weekday).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r pgTx) GetSchedule(ctx context.Context, id uuid.UUID) (domain.WeeklySchedule, error) {
	var s domain.WeeklySchedule
	err := r.tx.NewSelect().
		Model(&s).
		Relation("Breaks", orderBreaks).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.WeeklySchedule{}, notFound(err)
	}
	return s, nil
}

func (r pgTx) ListSchedules(ctx context.Context, employeeID uuid.UUID) ([]domain.WeeklySchedule, error) {
	var rows []domain.WeeklySchedule
	err := r.tx.NewSelect().
		Model(&rows).
		Relation("Breaks", orderBreaks).
		Where("employee_id = ?", employeeID).
		OrderExpr("weekday ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r pgTx) CreateSchedule(ctx context.Context, s domain.WeeklySchedule) (domain.WeeklySchedule, error) {
	m := domain.WeeklySchedule{
		ID:         s.ID,
		EmployeeID: s.EmployeeID,
		Weekday:    s.Weekday,
		StartTime:  s.StartTime,
		EndTime:    s.EndTime,
	}
	if _, err := r.tx.NewInsert().Model(&m).Exec(ctx); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation && pgErr.ConstraintName == constraintScheduleEmployeeDay {
			return domain.WeeklySchedule{}, store.ErrDuplicateSchedule
		}
		return domain.WeeklySchedule{}, err
	}
	return m, nil
}

func (r pgTx) UpdateScheduleHours(ctx context.Context, s domain.WeeklySchedule) (domain.WeeklySchedule, error) {
	res, err := r.tx.NewUpdate().
		Model(&s).
		Column("start_time", "end_time", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return domain.WeeklySchedule{}, err
	}
	if err := expectAffected(res); err != nil {
		return domain.WeeklySchedule{}, err
	}
	return s, nil
}

func (r pgTx) DeleteSchedule(ctx context.Context, id uuid.UUID) error {
	res, err := r.tx.NewDelete().
		Model((*domain.WeeklySchedule)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (r pgTx) GetBreak(ctx context.Context, id uuid.UUID) (domain.Break, error) {
	var b domain.Break
	err := r.tx.NewSelect().Model(&b).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return domain.Break{}, notFound(err)
	}
	return b, nil
}

func (r pgTx) CreateBreak(ctx context.Context, b domain.Break) (domain.Break, error) {
	m := domain.Break{
		ID:         b.ID,
		ScheduleID: b.ScheduleID,
		StartTime:  b.StartTime,
		EndTime:    b.EndTime,
	}
	if _, err := r.tx.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.Break{}, err
	}
	return m, nil
}

func (r pgTx) DeleteBreak(ctx context.Context, id uuid.UUID) error {
	res, err := r.tx.NewDelete().
		Model((*domain.Break)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func (r pgTx) GetOverlappingVisits(ctx context.Context, employeeID uuid.UUID, start, end time.Time, excludeVisitID *uuid.UUID) ([]domain.Visit, error) {
	var rows []domain.Visit
	q := r.tx.NewSelect().
		Model(&rows).
		Where("employee_id = ?", employeeID).
		Where("status = ?", domain.VisitStatusScheduled).
		Where("start_at < ?", end).
		Where("end_at > ?", start)
	if excludeVisitID != nil {
		q = q.Where("id <> ?", *excludeVisitID)
	}
	if err := q.OrderExpr("start_at ASC, id ASC").Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r pgTx) GetVisit(ctx context.Context, id uuid.UUID) (domain.Visit, error) {
	var v domain.Visit
	err := r.tx.NewSelect().Model(&v).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return domain.Visit{}, notFound(err)
	}
	return v, nil
}

func (r pgTx) GetVisitForUpdate(ctx context.Context, id uuid.UUID) (domain.Visit, error) {
	var v domain.Visit
	err := r.tx.NewSelect().Model(&v).Where("id = ?", id).For("UPDATE").Limit(1).Scan(ctx)
	if err != nil {
		return domain.Visit{}, notFound(err)
	}
	return v, nil
}

func (r pgTx) ListVisits(ctx context.Context, employeeID uuid.UUID, from, to time.Time) ([]domain.Visit, error) {
	var rows []domain.Visit
	err := r.tx.NewSelect().
		Model(&rows).
		Where("employee_id = ?", employeeID).
		Where("start_at >= ?", from).
		Where("start_at < ?", to).
		OrderExpr("start_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r pgTx) CreateVisit(ctx context.Context, v domain.Visit) (domain.Visit, error) {
	m := domain.Visit{
		ID:         v.ID,
		EmployeeID: v.EmployeeID,
		CustomerID: v.CustomerID,
		ServiceID:  v.ServiceID,
		StartAt:    v.StartAt,
		EndAt:      v.EndAt,
		Price:      v.Price,
		Comment:    v.Comment,
		Status:     v.Status,
	}
	if _, err := r.tx.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.Visit{}, visitWriteError(err)
	}
	return m, nil
}

func (r pgTx) UpdateVisit(ctx context.Context, v domain.Visit) (domain.Visit, error) {
	res, err := r.tx.NewUpdate().
		Model(&v).
		Column("employee_id", "customer_id", "service_id", "start_at", "end_at", "price", "comment", "status", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return domain.Visit{}, visitWriteError(err)
	}
	if err := expectAffected(res); err != nil {
		return domain.Visit{}, err
	}
	return v, nil
}

func (r pgTx) DeleteVisit(ctx context.Context, id uuid.UUID) error {
	res, err := r.tx.NewDelete().
		Model((*domain.Visit)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

// visitWriteError maps a violation of visits_no_overlap to store.ErrConflict.
func visitWriteError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch {
	case pgErr.Code == codeExclusionViolation && pgErr.ConstraintName == constraintVisitsNoOverlap:
		return store.ErrConflict
	case pgErr.Code == codeUniqueViolation && pgErr.ConstraintName == constraintVisitsPkey:
		return store.ErrIdempotencyConflict
	}
	return err
}

func expectAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}
