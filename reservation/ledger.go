/*
ledger.go - Reservation lifecycle and the no-overlap invariant

PURPOSE:
  The Ledger owns Reservation records and their lifecycle. The one hard
  rule lives here: two blocking reservations on the same unit never
  overlap in time.

LIFECYCLE:
  draft -> confirmed            exclusivity check committed atomically
  confirmed -> active           unit already held; check re-run excluding self
  non-terminal -> completed     releases the unit
  non-terminal -> cancelled     releases the unit
  terminal -> draft             explicit reopen ONLY; exclusivity is
                                re-validated at the next confirm, not here

CHECK-AND-SET:
  Transitioning into a blocking state reads the overlapping blocking
  reservations for the unit and writes the new state as ONE transaction
  (TxStore.WithTx). Under concurrent attempts on the same unit/window,
  exactly one confirm succeeds; the loser gets ErrConflict and the caller
  decides whether to resubmit with fresh availability data.

WHY NOT A STORED STATUS FLAG:
  A unit's "occupied" bit is never persisted. Occupancy is derived from
  this ledger by the Resolver, so releasing a unit is nothing more than a
  state transition here - immediately visible to the next allocation.

SEE ALSO:
  - engine.go: Creates confirmed reservations through this ledger
  - resolver.go: Derives availability from the blocking set
*/
package reservation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// LEDGER
// =============================================================================

type Ledger struct {
	Store TxStore
}

func NewLedger(store TxStore) *Ledger {
	return &Ledger{Store: store}
}

// CreateInput describes a new reservation. An open-ended window (zero End)
// is the hold-until-released form used by consumables.
type CreateInput struct {
	RequesterID RequesterID
	UnitID      UnitID
	Window      Window
	GroupID     GroupID

	// InitialState is draft or confirmed. Confirmed commits the
	// exclusivity check in the same transaction as the insert.
	InitialState State
}

// Create validates the window and writes a new reservation.
func (l *Ledger) Create(ctx context.Context, in CreateInput) (*Reservation, error) {
	if err := in.Window.Validate(); err != nil {
		return nil, err
	}
	if in.InitialState == "" {
		in.InitialState = StateDraft
	}
	if in.InitialState != StateDraft && in.InitialState != StateConfirmed {
		return nil, fmt.Errorf("initial state must be draft or confirmed, got %s", in.InitialState)
	}

	var created *Reservation
	err := l.Store.WithTx(ctx, func(s Store) error {
		res, err := l.createInTx(ctx, s, in)
		if err != nil {
			return err
		}
		created = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// createInTx writes a reservation inside an existing transaction. The
// engine uses this to commit paired allocations as one atomic group.
func (l *Ledger) createInTx(ctx context.Context, s Store, in CreateInput) (*Reservation, error) {
	unit, err := s.GetUnit(ctx, in.UnitID)
	if err != nil {
		return nil, err
	}
	if unit == nil {
		return nil, fmt.Errorf("unit %s: %w", in.UnitID, ErrResourceNotFound)
	}

	if in.InitialState.Blocks() {
		if err := checkNoOverlap(ctx, s, in.UnitID, in.Window, ""); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	res := &Reservation{
		ID:          ReservationID(uuid.NewString()),
		RequesterID: in.RequesterID,
		ResourceID:  unit.ResourceID,
		UnitID:      in.UnitID,
		GroupID:     in.GroupID,
		Window:      in.Window,
		State:       in.InitialState,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.InsertReservation(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

// Get returns a reservation or ErrReservationNotFound.
func (l *Ledger) Get(ctx context.Context, id ReservationID) (*Reservation, error) {
	res, err := l.Store.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("reservation %s: %w", id, ErrReservationNotFound)
	}
	return res, nil
}

// Transition moves a reservation to newState, enforcing the lifecycle and
// re-checking the no-overlap invariant atomically when entering a blocking
// state. On any error the record is unchanged.
func (l *Ledger) Transition(ctx context.Context, id ReservationID, newState State) (*Reservation, error) {
	var updated *Reservation
	err := l.Store.WithTx(ctx, func(s Store) error {
		res, err := l.transitionInTx(ctx, s, id, newState)
		if err != nil {
			return err
		}
		updated = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (l *Ledger) transitionInTx(ctx context.Context, s Store, id ReservationID, newState State) (*Reservation, error) {
	res, err := s.GetReservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("reservation %s: %w", id, ErrReservationNotFound)
	}

	if err := validateTransition(res, newState); err != nil {
		return nil, err
	}

	if newState.Blocks() {
		if err := checkNoOverlap(ctx, s, res.UnitID, res.Window, res.ID); err != nil {
			return nil, err
		}
	}

	res.State = newState
	res.UpdatedAt = time.Now().UTC()
	if err := s.UpdateReservation(ctx, *res); err != nil {
		return nil, err
	}
	return res, nil
}

// Reopen moves a terminal reservation back to draft. The draft does not
// block its unit; exclusivity is re-validated at the next confirm.
func (l *Ledger) Reopen(ctx context.Context, id ReservationID) (*Reservation, error) {
	return l.Transition(ctx, id, StateDraft)
}

// Query returns reservations matching q, ordered by (CreatedAt, Seq).
func (l *Ledger) Query(ctx context.Context, q ReservationQuery) ([]Reservation, error) {
	out, err := l.Store.QueryReservations(ctx, q)
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

// =============================================================================
// LIFECYCLE RULES
// =============================================================================

func validateTransition(res *Reservation, to State) error {
	from := res.State
	reject := func() error {
		return &StateTransitionError{ReservationID: res.ID, From: from, To: to}
	}

	switch to {
	case StateDraft:
		// Only Reopen re-enters draft, and only from a terminal state.
		// A blocking reservation leaves via complete or cancel.
		if !from.Terminal() {
			return reject()
		}
		return nil
	case StateConfirmed:
		if from != StateDraft {
			return reject()
		}
		return nil
	case StateActive:
		if from != StateConfirmed {
			return reject()
		}
		return nil
	case StateCompleted, StateCancelled:
		if from.Terminal() {
			return reject()
		}
		return nil
	default:
		return reject()
	}
}

// checkNoOverlap enforces the exclusivity invariant for one unit. It must
// run inside the same transaction as the write it guards.
func checkNoOverlap(ctx context.Context, s Store, unitID UnitID, w Window, exclude ReservationID) error {
	blocking, err := s.QueryReservations(ctx, ReservationQuery{
		UnitID:      unitID,
		States:      BlockingStates,
		Overlapping: &w,
	})
	if err != nil {
		return err
	}
	for _, b := range blocking {
		if b.ID == exclude {
			continue
		}
		return &ConflictError{UnitID: unitID, Window: w, ExistingID: b.ID}
	}
	return nil
}
