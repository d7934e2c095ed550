package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"schedula/booking/internal/domain"
	"schedula/booking/internal/store"
)

var _ store.Store = (*Store)(nil)

func scheduledVisit(employeeID uuid.UUID, start time.Time, d time.Duration) domain.Visit {
	return domain.Visit{
		EmployeeID: employeeID,
		CustomerID: uuid.New(),
		ServiceID:  uuid.New(),
		StartAt:    start,
		EndAt:      start.Add(d),
		Price:      decimal.NewFromInt(20),
		Status:     domain.VisitStatusScheduled,
	}
}

func TestInTransaction_RollsBackOnError(t *testing.T) {
	s := New(time.Second)
	employeeID := uuid.New()
	start := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	boom := errors.New("boom")

	err := s.InTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.CreateVisit(ctx, scheduledVisit(employeeID, start, time.Hour)); err != nil {
			return err
		}
		if _, err := tx.CreateSchedule(ctx, domain.WeeklySchedule{
			EmployeeID: employeeID,
			Weekday:    domain.Monday,
			StartTime:  domain.NewTimeOfDay(9, 0, 0),
			EndTime:    domain.NewTimeOfDay(17, 0, 0),
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}

	err = s.InTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		visits, err := tx.ListVisits(ctx, employeeID, start.Add(-time.Hour), start.Add(time.Hour))
		if err != nil {
			return err
		}
		if len(visits) != 0 {
			t.Fatalf("visits after rollback = %d, want 0", len(visits))
		}
		ws, err := tx.GetWeeklySchedule(ctx, employeeID, domain.Monday)
		if err != nil {
			return err
		}
		if ws != nil {
			t.Fatalf("schedule survived rollback: %+v", ws)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("InTransaction error: %v", err)
	}
}

func TestCreateVisit_BackstopRejectsOverlap(t *testing.T) {
	s := New(time.Second)
	employeeID := uuid.New()
	start := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	err := s.InTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.CreateVisit(ctx, scheduledVisit(employeeID, start, 30*time.Minute)); err != nil {
			return err
		}
		// back-to-back is fine
		if _, err := tx.CreateVisit(ctx, scheduledVisit(employeeID, start.Add(30*time.Minute), 30*time.Minute)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		t.Fatalf("InTransaction error: %v", err)
	}

	err = s.InTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := tx.CreateVisit(ctx, scheduledVisit(employeeID, start.Add(15*time.Minute), 30*time.Minute))
		return err
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("err = %v, want %v", err, store.ErrConflict)
	}
}

func TestCreateVisit_DuplicateIDIsIdempotencyConflict(t *testing.T) {
	s := New(time.Second)
	v := scheduledVisit(uuid.New(), time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC), time.Hour)
	v.ID = uuid.New()

	err := s.InTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.CreateVisit(ctx, v); err != nil {
			return err
		}
		_, err := tx.CreateVisit(ctx, v)
		return err
	})
	if !errors.Is(err, store.ErrIdempotencyConflict) {
		t.Fatalf("err = %v, want %v", err, store.ErrIdempotencyConflict)
	}
}

func TestGetOverlappingVisits_OrderedAndFiltered(t *testing.T) {
	s := New(time.Second)
	employeeID := uuid.New()
	start := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

	var early, late, cancelled domain.Visit
	err := s.InTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		if late, err = tx.CreateVisit(ctx, scheduledVisit(employeeID, start.Add(2*time.Hour), time.Hour)); err != nil {
			return err
		}
		if early, err = tx.CreateVisit(ctx, scheduledVisit(employeeID, start, time.Hour)); err != nil {
			return err
		}
		c := scheduledVisit(employeeID, start.Add(time.Hour), time.Hour)
		c.Status = domain.VisitStatusCancelled
		if cancelled, err = tx.CreateVisit(ctx, c); err != nil {
			return err
		}
		_, err = tx.CreateVisit(ctx, scheduledVisit(uuid.New(), start, 4*time.Hour))
		return err
	})
	if err != nil {
		t.Fatalf("seed error: %v", err)
	}

	err = s.InTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		got, err := tx.GetOverlappingVisits(ctx, employeeID, start, start.Add(4*time.Hour), nil)
		if err != nil {
			return err
		}
		if len(got) != 2 || got[0].ID != early.ID || got[1].ID != late.ID {
			t.Fatalf("overlapping = %v, want [%s %s]", got, early.ID, late.ID)
		}
		for _, v := range got {
			if v.ID == cancelled.ID {
				t.Fatalf("cancelled visit listed")
			}
		}

		got, err = tx.GetOverlappingVisits(ctx, employeeID, start, start.Add(4*time.Hour), &early.ID)
		if err != nil {
			return err
		}
		if len(got) != 1 || got[0].ID != late.ID {
			t.Fatalf("overlapping with exclude = %v, want [%s]", got, late.ID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("InTransaction error: %v", err)
	}
}

func TestCreateSchedule_DuplicateWeekday(t *testing.T) {
	s := New(time.Second)
	ws := domain.WeeklySchedule{
		EmployeeID: uuid.New(),
		Weekday:    domain.Tuesday,
		StartTime:  domain.NewTimeOfDay(9, 0, 0),
		EndTime:    domain.NewTimeOfDay(17, 0, 0),
	}

	err := s.InTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.CreateSchedule(ctx, ws); err != nil {
			return err
		}
		_, err := tx.CreateSchedule(ctx, ws)
		return err
	})
	if !errors.Is(err, store.ErrDuplicateSchedule) {
		t.Fatalf("err = %v, want %v", err, store.ErrDuplicateSchedule)
	}
}

func TestDeleteSchedule_CascadesBreaks(t *testing.T) {
	s := New(time.Second)
	var br domain.Break

	err := s.InTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		ws, err := tx.CreateSchedule(ctx, domain.WeeklySchedule{
			EmployeeID: uuid.New(),
			Weekday:    domain.Monday,
			StartTime:  domain.NewTimeOfDay(9, 0, 0),
			EndTime:    domain.NewTimeOfDay(17, 0, 0),
		})
		if err != nil {
			return err
		}
		if br, err = tx.CreateBreak(ctx, domain.Break{
			ScheduleID: ws.ID,
			StartTime:  domain.NewTimeOfDay(12, 0, 0),
			EndTime:    domain.NewTimeOfDay(13, 0, 0),
		}); err != nil {
			return err
		}
		return tx.DeleteSchedule(ctx, ws.ID)
	})
	if err != nil {
		t.Fatalf("InTransaction error: %v", err)
	}

	err = s.InTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := tx.GetBreak(ctx, br.ID)
		return err
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want %v", err, store.ErrNotFound)
	}
}

func TestLockEmployees_TimesOutAsContention(t *testing.T) {
	s := New(20 * time.Millisecond)
	employeeID := uuid.New()

	locked := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = s.InTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
			if err := tx.LockEmployees(ctx, employeeID); err != nil {
				return err
			}
			close(locked)
			<-done
			return nil
		})
	}()
	<-locked
	defer close(done)

	err := s.InTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.LockEmployees(ctx, employeeID)
	})
	if !errors.Is(err, store.ErrContention) {
		t.Fatalf("err = %v, want %v", err, store.ErrContention)
	}
}

func TestLockEmployees_ReentrantWithinTransaction(t *testing.T) {
	s := New(20 * time.Millisecond)
	a, b := uuid.New(), uuid.New()

	err := s.InTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if err := tx.LockEmployees(ctx, a, b, a); err != nil {
			return err
		}
		return tx.LockEmployees(ctx, b)
	})
	if err != nil {
		t.Fatalf("InTransaction error: %v", err)
	}

	// released after the transaction
	err = s.InTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.LockEmployees(ctx, a, b)
	})
	if err != nil {
		t.Fatalf("second InTransaction error: %v", err)
	}
}

func TestLocks_FreedOnceNobodyHoldsThem(t *testing.T) {
	s := New(20 * time.Millisecond)

	for i := 0; i < 100; i++ {
		visitID := uuid.New()
		err := s.InTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
			if err := tx.LockEmployees(ctx, uuid.New()); err != nil {
				return err
			}
			_, err := tx.GetVisitForUpdate(ctx, visitID)
			return err
		})
		if !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("err = %v, want %v", err, store.ErrNotFound)
		}
	}
	if n := s.locks.len(); n != 0 {
		t.Fatalf("lock slots after transactions = %d, want 0", n)
	}

	held := uuid.New()
	release := make(chan struct{})
	locked := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.InTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
			if err := tx.LockEmployees(ctx, held); err != nil {
				return err
			}
			close(locked)
			<-release
			return nil
		})
	}()
	<-locked

	err := s.InTransaction(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.LockEmployees(ctx, held)
	})
	if !errors.Is(err, store.ErrContention) {
		t.Fatalf("err = %v, want %v", err, store.ErrContention)
	}
	if n := s.locks.len(); n != 1 {
		t.Fatalf("lock slots while held = %d, want 1", n)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("holder error: %v", err)
	}
	if n := s.locks.len(); n != 0 {
		t.Fatalf("lock slots after release = %d, want 0", n)
	}
}
