package workflow

import (
	"errors"
	"fmt"

	"github.com/yourorg/upkeep/internal/domain"
)

// ErrNotFound is returned when the target row vanished between lock
// acquisition and fetch, or never existed. Not retryable.
var ErrNotFound = errors.New("entity not found")

// InvalidTransitionError rejects a status change that is not legal from the
// current state. Distinct from generic validation errors so callers can
// special-case it; never retried.
type InvalidTransitionError struct {
	From domain.JobneedStatus
	To   domain.JobneedStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid workflow transition %s -> %s", e.From, e.To)
}

// IntegrityError wraps a database constraint violation on a business-entity
// write. Surfaced to the caller rather than retried at this layer.
type IntegrityError struct {
	Cause error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity violation: %v", e.Cause)
}

func (e *IntegrityError) Unwrap() error { return e.Cause }
