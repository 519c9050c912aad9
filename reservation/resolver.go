/*
resolver.go - Derived availability over the registry and the ledger

PURPOSE:
  Computes a resource's aggregate state for a window by scanning the
  blocking reservations of each of its units. The result is DERIVED,
  never stored: changing a reservation changes the answer here with no
  separate status write to forget.

TIERED AGGREGATE POLICY:
  occupied units = 0           -> available
  0 < occupied < capacity      -> occupied (partially taken)
  occupied = capacity          -> unavailable

  Capacity-1 resources therefore never report "occupied": a taken single
  room, vehicle, or bag goes straight to unavailable. A double room with
  one booked bed is "occupied"; a seven-bed ward stays "occupied" until
  the last bed is taken. This mirrors the operational meaning the ward
  staff expect and is applied uniformly across every resource kind.

OUT OF SERVICE:
  An out-of-service resource (maintenance-due vehicle, expired bag) is
  unavailable regardless of its reservation set.

SEE ALSO:
  - ledger.go: The blocking set this reads
  - projector.go: Aggregates resolver output into dashboard counters
*/
package reservation

import (
	"context"
	"fmt"
)

// =============================================================================
// RESOLVER
// =============================================================================

type Resolver struct {
	Store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{Store: store}
}

// Resolve computes the aggregate state of a resource for a window.
// For "state right now" pass InstantWindow(time.Now()).
func (rv *Resolver) Resolve(ctx context.Context, resourceID ResourceID, asOf Window) (*Availability, error) {
	res, err := rv.Store.GetResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("resource %s: %w", resourceID, ErrResourceNotFound)
	}

	units, err := rv.Store.ListUnits(ctx, resourceID)
	if err != nil {
		return nil, err
	}

	occupied := 0
	for _, u := range units {
		taken, err := rv.UnitOccupied(ctx, u.ID, asOf)
		if err != nil {
			return nil, err
		}
		if taken {
			occupied++
		}
	}

	av := &Availability{
		ResourceID:     resourceID,
		UnitsTotal:     len(units),
		UnitsAvailable: len(units) - occupied,
		State:          aggregateState(occupied, len(units)),
	}
	if res.OutOfService {
		av.State = Unavailable
		av.UnitsAvailable = 0
	}
	return av, nil
}

// UnitOccupied reports whether any blocking reservation overlaps the
// window on this unit.
func (rv *Resolver) UnitOccupied(ctx context.Context, unitID UnitID, asOf Window) (bool, error) {
	blocking, err := rv.Store.QueryReservations(ctx, ReservationQuery{
		UnitID:      unitID,
		States:      BlockingStates,
		Overlapping: &asOf,
	})
	if err != nil {
		return false, err
	}
	return len(blocking) > 0, nil
}

func aggregateState(occupied, capacity int) AvailabilityState {
	switch {
	case capacity == 0 || occupied >= capacity:
		return Unavailable
	case occupied == 0:
		return Available
	default:
		return Occupied
	}
}
