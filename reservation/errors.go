/*
errors.go - Centralized error types for the reservation engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages should wrap these errors with additional context.

ERROR CATEGORIES:
  1. Lookup errors      - Unknown resource/unit/reservation ids
  2. Validation errors  - Malformed windows, illegal state transitions
  3. Contention errors  - Overlap conflicts, exhausted candidate pools
  4. Store errors       - Transactional store failures

RETRY SEMANTICS:
  Conflict and Unavailable are retryable by the CALLER with fresh
  availability data. The engine itself never retries - a failed allocation
  leaves no partial state behind.

USAGE:
  Domain packages can wrap engine errors:

    if errors.Is(err, reservation.ErrNoCandidate) {
        return &NoCompatibleBagError{...}
    }

SEE ALSO:
  - ledger.go: Raises Conflict and InvalidStateTransition
  - engine.go: Raises NoCandidate and IncompatiblePair
*/
package reservation

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrResourceNotFound is returned for an unknown resource or unit id.
	ErrResourceNotFound = errors.New("resource not found")

	// ErrReservationNotFound is returned for an unknown reservation id.
	ErrReservationNotFound = errors.New("reservation not found")

	// ErrInvalidWindow is returned when a window has end <= start.
	// Rejected at input validation; never reaches the ledger.
	ErrInvalidWindow = errors.New("invalid window")

	// ErrConflict is returned when confirming a reservation would overlap an
	// existing blocking reservation on the same unit. Retryable by the
	// caller with fresh availability data; never auto-retried.
	ErrConflict = errors.New("reservation conflict")

	// ErrNoCandidate is returned when no resource satisfies the allocation
	// criteria. This is a normal business outcome, not a system fault.
	ErrNoCandidate = errors.New("no candidate resource")

	// ErrIncompatiblePair is returned when a paired allocation names a
	// secondary resource bound to a different primary (a driver assigned to
	// another vehicle). Nothing is committed.
	ErrIncompatiblePair = errors.New("incompatible resource pair")

	// ErrInvalidStateTransition is returned for illegal lifecycle moves,
	// e.g. cancelling an already-completed reservation. Record unchanged.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrResourceInUse is returned when deleting a resource that a
	// non-terminal reservation still references.
	ErrResourceInUse = errors.New("resource in use")

	// ErrStoreUnavailable is returned when the transactional store times
	// out or cannot serialize the operation. Callers retry with fresh data.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidWindowError carries the rejected interval.
type InvalidWindowError struct {
	Start  time.Time
	End    time.Time
	Reason string
}

func (e *InvalidWindowError) Error() string {
	return fmt.Sprintf("invalid window [%s, %s): %s",
		e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339), e.Reason)
}

func (e *InvalidWindowError) Unwrap() error { return ErrInvalidWindow }

// ConflictError identifies the unit and the reservation already holding it.
type ConflictError struct {
	UnitID     UnitID
	Window     Window
	ExistingID ReservationID
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("unit %s already reserved for %s (reservation %s)",
		e.UnitID, e.Window, e.ExistingID)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// IncompatiblePairError identifies the mismatched binding.
type IncompatiblePairError struct {
	PrimaryID   ResourceID
	SecondaryID ResourceID
	BoundTo     ResourceID
}

func (e *IncompatiblePairError) Error() string {
	return fmt.Sprintf("resource %s is bound to %s, not %s",
		e.SecondaryID, e.BoundTo, e.PrimaryID)
}

func (e *IncompatiblePairError) Unwrap() error { return ErrIncompatiblePair }

// StateTransitionError records the rejected move.
type StateTransitionError struct {
	ReservationID ReservationID
	From          State
	To            State
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("reservation %s: cannot transition %s -> %s",
		e.ReservationID, e.From, e.To)
}

func (e *StateTransitionError) Unwrap() error { return ErrInvalidStateTransition }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the caller may succeed by resubmitting with
// fresh availability data.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrStoreUnavailable)
}

// IsClientError returns true if the error is due to invalid client input
// or a normal business outcome rather than a system fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidWindow) ||
		errors.Is(err, ErrNoCandidate) ||
		errors.Is(err, ErrIncompatiblePair) ||
		errors.Is(err, ErrInvalidStateTransition) ||
		errors.Is(err, ErrResourceInUse)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrResourceNotFound) ||
		errors.Is(err, ErrReservationNotFound)
}
