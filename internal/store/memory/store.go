// Package memory is an in-process store.Store used by tests and by the server when
// store.driver is "memory". State is lost on restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"schedula/booking/internal/domain"
	"schedula/booking/internal/store"
)

type Store struct {
	lockTimeout time.Duration
	locks       *lockTable

	mu        sync.RWMutex
	employees map[uuid.UUID]domain.Employee
	customers map[uuid.UUID]domain.Customer
	services  map[uuid.UUID]domain.Service
	schedules map[uuid.UUID]domain.WeeklySchedule
	breaks    map[uuid.UUID]domain.Break
	visits    map[uuid.UUID]domain.Visit
}

func New(lockTimeout time.Duration) *Store {
	return &Store{
		lockTimeout: lockTimeout,
		locks:       newLockTable(),
		employees:   make(map[uuid.UUID]domain.Employee),
		customers:   make(map[uuid.UUID]domain.Customer),
		services:    make(map[uuid.UUID]domain.Service),
		schedules:   make(map[uuid.UUID]domain.WeeklySchedule),
		breaks:      make(map[uuid.UUID]domain.Break),
		visits:      make(map[uuid.UUID]domain.Visit),
	}
}

func (s *Store) PutEmployee(e domain.Employee) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.employees[e.ID] = e
}

func (s *Store) PutCustomer(c domain.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[c.ID] = c
}

func (s *Store) PutService(svc domain.Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[svc.ID] = svc
}

// InTransaction applies writes immediately and undoes them in reverse order if fn fails.
// Isolation between writers comes from the locks taken through the Tx, which are held
// until fn returns.
func (s *Store) InTransaction(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := &memTx{s: s, held: make(map[string]struct{})}
	defer t.releaseAll()

	if err := fn(ctx, t); err != nil {
		t.rollback()
		return err
	}
	return nil
}

type memTx struct {
	s     *Store
	held  map[string]struct{}
	order []string
	undo  []func()
}

func (t *memTx) lock(ctx context.Context, key string) error {
	if _, ok := t.held[key]; ok {
		return nil
	}
	if err := t.s.locks.acquire(ctx, key, t.s.lockTimeout); err != nil {
		return err
	}
	t.held[key] = struct{}{}
	t.order = append(t.order, key)
	return nil
}

func (t *memTx) releaseAll() {
	for i := len(t.order) - 1; i >= 0; i-- {
		t.s.locks.release(t.order[i])
	}
	t.order = nil
}

func (t *memTx) rollback() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) LockEmployees(ctx context.Context, employeeIDs ...uuid.UUID) error {
	keys := make([]string, 0, len(employeeIDs))
	for _, id := range employeeIDs {
		keys = append(keys, "employee:"+id.String())
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := t.lock(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (t *memTx) GetEmployee(ctx context.Context, id uuid.UUID) (domain.Employee, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	e, ok := t.s.employees[id]
	if !ok {
		return domain.Employee{}, store.ErrNotFound
	}
	return e, nil
}

func (t *memTx) GetCustomer(ctx context.Context, id uuid.UUID) (domain.Customer, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	c, ok := t.s.customers[id]
	if !ok {
		return domain.Customer{}, store.ErrNotFound
	}
	return c, nil
}

func (t *memTx) GetService(ctx context.Context, id uuid.UUID) (domain.Service, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	svc, ok := t.s.services[id]
	if !ok {
		return domain.Service{}, store.ErrNotFound
	}
	return svc, nil
}

// withBreaks must be called with s.mu held.
func (s *Store) withBreaks(ws domain.WeeklySchedule) domain.WeeklySchedule {
	ws.Breaks = nil
	for _, b := range s.breaks {
		if b.ScheduleID == ws.ID {
			ws.Breaks = append(ws.Breaks, b)
		}
	}
	sort.Slice(ws.Breaks, func(i, j int) bool {
		return ws.Breaks[i].StartTime < ws.Breaks[j].StartTime
	})
	return ws
}

func (t *memTx) GetWeeklySchedule(ctx context.Context, employeeID uuid.UUID, weekday domain.Weekday) (*domain.WeeklySchedule, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	for _, ws := range t.s.schedules {
		if ws.EmployeeID == employeeID && ws.Weekday == weekday {
			out := t.s.withBreaks(ws)
			return &out, nil
		}
	}
	return nil, nil
}

func (t *memTx) GetSchedule(ctx context.Context, id uuid.UUID) (domain.WeeklySchedule, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	ws, ok := t.s.schedules[id]
	if !ok {
		return domain.WeeklySchedule{}, store.ErrNotFound
	}
	return t.s.withBreaks(ws), nil
}

func (t *memTx) ListSchedules(ctx context.Context, employeeID uuid.UUID) ([]domain.WeeklySchedule, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	out := make([]domain.WeeklySchedule, 0, 7)
	for _, ws := range t.s.schedules {
		if ws.EmployeeID == employeeID {
			out = append(out, t.s.withBreaks(ws))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Weekday < out[j].Weekday })
	return out, nil
}

func (t *memTx) CreateSchedule(ctx context.Context, ws domain.WeeklySchedule) (domain.WeeklySchedule, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for _, existing := range t.s.schedules {
		if existing.EmployeeID == ws.EmployeeID && existing.Weekday == ws.Weekday {
			return domain.WeeklySchedule{}, store.ErrDuplicateSchedule
		}
	}
	if ws.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.WeeklySchedule{}, err
		}
		ws.ID = id
	}
	now := time.Now().UTC()
	ws.CreatedAt, ws.UpdatedAt = now, now
	ws.Breaks = nil

	t.s.schedules[ws.ID] = ws
	t.undo = append(t.undo, func() { delete(t.s.schedules, ws.ID) })
	return ws, nil
}

func (t *memTx) UpdateScheduleHours(ctx context.Context, ws domain.WeeklySchedule) (domain.WeeklySchedule, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	prev, ok := t.s.schedules[ws.ID]
	if !ok {
		return domain.WeeklySchedule{}, store.ErrNotFound
	}
	next := prev
	next.StartTime = ws.StartTime
	next.EndTime = ws.EndTime
	next.UpdatedAt = time.Now().UTC()

	t.s.schedules[ws.ID] = next
	t.undo = append(t.undo, func() { t.s.schedules[prev.ID] = prev })
	return t.s.withBreaks(next), nil
}

func (t *memTx) DeleteSchedule(ctx context.Context, id uuid.UUID) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	prev, ok := t.s.schedules[id]
	if !ok {
		return store.ErrNotFound
	}
	var removed []domain.Break
	for bid, b := range t.s.breaks {
		if b.ScheduleID == id {
			removed = append(removed, b)
			delete(t.s.breaks, bid)
		}
	}
	delete(t.s.schedules, id)
	t.undo = append(t.undo, func() {
		t.s.schedules[prev.ID] = prev
		for _, b := range removed {
			t.s.breaks[b.ID] = b
		}
	})
	return nil
}

func (t *memTx) GetBreak(ctx context.Context, id uuid.UUID) (domain.Break, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	b, ok := t.s.breaks[id]
	if !ok {
		return domain.Break{}, store.ErrNotFound
	}
	return b, nil
}

func (t *memTx) CreateBreak(ctx context.Context, b domain.Break) (domain.Break, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if _, ok := t.s.schedules[b.ScheduleID]; !ok {
		return domain.Break{}, store.ErrNotFound
	}
	if b.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.Break{}, err
		}
		b.ID = id
	}
	b.CreatedAt = time.Now().UTC()

	t.s.breaks[b.ID] = b
	t.undo = append(t.undo, func() { delete(t.s.breaks, b.ID) })
	return b, nil
}

func (t *memTx) DeleteBreak(ctx context.Context, id uuid.UUID) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	prev, ok := t.s.breaks[id]
	if !ok {
		return store.ErrNotFound
	}
	delete(t.s.breaks, id)
	t.undo = append(t.undo, func() { t.s.breaks[prev.ID] = prev })
	return nil
}

func sortVisits(vs []domain.Visit) {
	sort.Slice(vs, func(i, j int) bool {
		if !vs[i].StartAt.Equal(vs[j].StartAt) {
			return vs[i].StartAt.Before(vs[j].StartAt)
		}
		return vs[i].ID.String() < vs[j].ID.String()
	})
}

// overlapping must be called with s.mu held.
func (s *Store) overlapping(employeeID uuid.UUID, start, end time.Time, excludeVisitID *uuid.UUID) []domain.Visit {
	var out []domain.Visit
	for _, v := range s.visits {
		if v.EmployeeID != employeeID || v.Status != domain.VisitStatusScheduled {
			continue
		}
		if excludeVisitID != nil && v.ID == *excludeVisitID {
			continue
		}
		if domain.Overlaps(v.StartAt, v.EndAt, start, end) {
			out = append(out, v)
		}
	}
	sortVisits(out)
	return out
}

func (t *memTx) GetOverlappingVisits(ctx context.Context, employeeID uuid.UUID, start, end time.Time, excludeVisitID *uuid.UUID) ([]domain.Visit, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return t.s.overlapping(employeeID, start, end, excludeVisitID), nil
}

func (t *memTx) GetVisit(ctx context.Context, id uuid.UUID) (domain.Visit, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	v, ok := t.s.visits[id]
	if !ok {
		return domain.Visit{}, store.ErrNotFound
	}
	return v, nil
}

func (t *memTx) GetVisitForUpdate(ctx context.Context, id uuid.UUID) (domain.Visit, error) {
	if err := t.lock(ctx, "visit:"+id.String()); err != nil {
		return domain.Visit{}, err
	}
	return t.GetVisit(ctx, id)
}

func (t *memTx) ListVisits(ctx context.Context, employeeID uuid.UUID, from, to time.Time) ([]domain.Visit, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	var out []domain.Visit
	for _, v := range t.s.visits {
		if v.EmployeeID != employeeID {
			continue
		}
		if v.StartAt.Before(from) || !v.StartAt.Before(to) {
			continue
		}
		out = append(out, v)
	}
	sortVisits(out)
	return out, nil
}

// checkBackstop mirrors the visits_no_overlap exclusion constraint. Must be called with s.mu held.
func (s *Store) checkBackstop(v domain.Visit) error {
	if v.Status != domain.VisitStatusScheduled {
		return nil
	}
	if len(s.overlapping(v.EmployeeID, v.StartAt, v.EndAt, &v.ID)) > 0 {
		return store.ErrConflict
	}
	return nil
}

func (t *memTx) CreateVisit(ctx context.Context, v domain.Visit) (domain.Visit, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if v.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.Visit{}, err
		}
		v.ID = id
	}
	if _, exists := t.s.visits[v.ID]; exists {
		return domain.Visit{}, store.ErrIdempotencyConflict
	}
	if err := t.s.checkBackstop(v); err != nil {
		return domain.Visit{}, err
	}
	now := time.Now().UTC()
	v.CreatedAt, v.UpdatedAt = now, now

	t.s.visits[v.ID] = v
	t.undo = append(t.undo, func() { delete(t.s.visits, v.ID) })
	return v, nil
}

func (t *memTx) UpdateVisit(ctx context.Context, v domain.Visit) (domain.Visit, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	prev, ok := t.s.visits[v.ID]
	if !ok {
		return domain.Visit{}, store.ErrNotFound
	}
	if err := t.s.checkBackstop(v); err != nil {
		return domain.Visit{}, err
	}
	v.CreatedAt = prev.CreatedAt
	v.UpdatedAt = time.Now().UTC()

	t.s.visits[v.ID] = v
	t.undo = append(t.undo, func() { t.s.visits[prev.ID] = prev })
	return v, nil
}

func (t *memTx) DeleteVisit(ctx context.Context, id uuid.UUID) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	prev, ok := t.s.visits[id]
	if !ok {
		return store.ErrNotFound
	}
	delete(t.s.visits, id)
	t.undo = append(t.undo, func() { t.s.visits[prev.ID] = prev })
	return nil
}
