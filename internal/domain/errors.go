package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrQuotaExceeded means the ledger denied a reservation. Callers must not
	// issue the external call and should defer the work to a later period.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrMissingIdentifier rejects a record without a google_id.
	ErrMissingIdentifier = errors.New("missing google_id")

	// ErrPersistenceConflict is a unique-constraint or serialization race
	// while writing a restaurant. Retrying may succeed.
	ErrPersistenceConflict = errors.New("persistence conflict")

	// ErrPlaceNotFound means the external source has no match for a record.
	ErrPlaceNotFound = errors.New("place not found")
)

// QuotaExceededError carries the counters observed at denial time.
type QuotaExceededError struct {
	Key   QuotaKey
	Used  int
	Limit int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s (%d/%d)", e.Key, e.Used, e.Limit)
}

func (e *QuotaExceededError) Unwrap() error { return ErrQuotaExceeded }

// ValidationError describes a field that was dropped to NULL during
// normalization. It never rejects a record.
type ValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
}
