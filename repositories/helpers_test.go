package repositories

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
)

func TestMapConstraintError(t *testing.T) {
	byConstraint := map[string]error{"games_match_finished_key": ErrGameRecordDuplicate}

	unique := &pq.Error{Code: pqUniqueViolation, Constraint: "games_match_finished_key"}
	if got := mapConstraintError(unique, byConstraint); !errors.Is(got, ErrGameRecordDuplicate) {
		t.Fatalf("unique violation mapped to %v", got)
	}

	wrapped := fmt.Errorf("insert: %w", unique)
	if got := mapConstraintError(wrapped, byConstraint); !errors.Is(got, ErrGameRecordDuplicate) {
		t.Fatalf("wrapped violation mapped to %v", got)
	}

	other := &pq.Error{Code: pqUniqueViolation, Constraint: "something_else"}
	if got := mapConstraintError(other, byConstraint); got != error(other) {
		t.Fatalf("unknown constraint must pass through, got %v", got)
	}

	plain := errors.New("connection reset")
	if got := mapConstraintError(plain, byConstraint); got != plain {
		t.Fatalf("non-pq error must pass through, got %v", got)
	}
}
