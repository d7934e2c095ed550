package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"schedula/booking/internal/store"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		wantContention bool
	}{
		{name: "nil", err: nil},
		{name: "serialization failure", err: &pgconn.PgError{Code: codeSerializationFailure}, wantContention: true},
		{name: "deadlock", err: &pgconn.PgError{Code: codeDeadlockDetected}, wantContention: true},
		{name: "lock timeout", err: fmt.Errorf("lock employee: %w", &pgconn.PgError{Code: codeLockNotAvailable}), wantContention: true},
		{name: "unique violation", err: &pgconn.PgError{Code: codeUniqueViolation}},
		{name: "plain error", err: errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			if tt.err == nil {
				if got != nil {
					t.Fatalf("classify(nil) = %v, want nil", got)
				}
				return
			}
			if errors.Is(got, store.ErrContention) != tt.wantContention {
				t.Fatalf("contention = %v, want %v (err=%v)", errors.Is(got, store.ErrContention), tt.wantContention, got)
			}
			if !errors.Is(got, tt.err) {
				t.Fatalf("classified error lost the original: %v", got)
			}
		})
	}
}

func TestVisitWriteError(t *testing.T) {
	overlap := &pgconn.PgError{Code: codeExclusionViolation, ConstraintName: constraintVisitsNoOverlap}
	if err := visitWriteError(overlap); err != store.ErrConflict {
		t.Fatalf("err = %v, want %v", err, store.ErrConflict)
	}

	dupID := &pgconn.PgError{Code: codeUniqueViolation, ConstraintName: constraintVisitsPkey}
	if err := visitWriteError(dupID); err != store.ErrIdempotencyConflict {
		t.Fatalf("err = %v, want %v", err, store.ErrIdempotencyConflict)
	}

	other := &pgconn.PgError{Code: codeExclusionViolation, ConstraintName: "something_else"}
	if err := visitWriteError(other); err != error(other) {
		t.Fatalf("err = %v, want passthrough", err)
	}
}

func TestLockOrder_DedupesAndSorts(t *testing.T) {
	a := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	b := uuid.MustParse("00000000-0000-0000-0000-00000000000b")

	got := lockOrder([]uuid.UUID{b, a, b})
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0] != a || got[1] != b {
		t.Fatalf("order = %v, want [%s %s]", got, a, b)
	}
}
