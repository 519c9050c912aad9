/*
Package reservation provides the core resource reservation engine.

PURPOSE:
  This package contains domain-agnostic types and algorithms for allocating
  scarce, finite resources under concurrent, time-windowed contention.
  Whether the resource is a hospital bed, a blood bag, or an ambulance, the
  same engine handles candidate selection, exclusivity enforcement, and
  derived-status computation.

KEY CONCEPTS IN THIS FILE (types.go):
  - Resource: An allocatable entity with finite capacity (room, vehicle, bag)
  - Unit: The smallest individually-assignable slot (a bed within a room)
  - Reservation: Binds a requester to one unit over a window (or until released)
  - State: Reservation lifecycle (draft -> confirmed -> completed/cancelled)
  - Availability: A resource's derived aggregate state

DESIGN PRINCIPLES:
  1. Derived status: A resource's availability is ALWAYS recomputed from the
     set of active reservations. It is never stored as source of truth.
  2. Exclusivity: Two blocking reservations on the same unit never overlap.
     Enforced transactionally at confirm time, not at read time.
  3. Determinism: Candidate ordering and tie-breaks are total orders so that
     allocation is reproducible and testable.
  4. Type safety: Strong typing for IDs prevents mixing resource/unit/
     reservation identifiers.

USAGE:
  engine := reservation.NewEngine(store)
  res, err := engine.Allocate(ctx, "patient-7", reservation.Criteria{
      Kind:  reservation.KindRoom,
      Attrs: map[string]string{"department": "cardiology"},
  }, window)

SEE ALSO:
  - window.go: Half-open time windows and overlap semantics
  - ledger.go: Reservation lifecycle and the no-overlap invariant
  - engine.go: Candidate selection and atomic allocation
*/
package reservation

import (
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ResourceID string
type UnitID string
type ReservationID string
type RequesterID string

// GroupID links reservations committed together (e.g. ambulance + driver).
// Empty for standalone reservations.
type GroupID string

// =============================================================================
// RESOURCE - Allocatable entity with finite capacity
// =============================================================================

// Kind identifies what sort of resource is being allocated. The engine only
// cares about one distinction: consumable kinds rank candidates by expiry.
type Kind string

const (
	KindRoom    Kind = "room"
	KindVehicle Kind = "vehicle"
	KindCrew    Kind = "crew"
	KindBag     Kind = "consumable-bag"
)

// Consumable reports whether candidates of this kind are ranked by expiry
// and held open-ended until used or released.
func (k Kind) Consumable() bool { return k == KindBag }

// Resource is an allocatable entity. Capacity is the number of Units it
// exposes (1 for singleton resources like vehicles and bags).
//
// The availability state of a Resource is NEVER stored here - it is derived
// by the Resolver from the current reservation set. See resolver.go.
type Resource struct {
	ID       ResourceID
	Kind     Kind
	Capacity int

	// Static attributes used for candidate matching: department for a room,
	// blood_type and rh for a bag, license_plate for a vehicle, vehicle_id
	// for a crew member bound to a specific ambulance.
	Attrs map[string]string

	// ExpiresAt is set for consumables only. Expired resources are taken out
	// of service by the sweeper and never allocated.
	ExpiresAt *time.Time

	// OutOfService removes the resource from the candidate pool regardless
	// of reservations: maintenance-due vehicle, expired or used bag.
	OutOfService bool

	CreatedAt time.Time
}

// Attr returns a static attribute, or "" when absent.
func (r Resource) Attr(key string) string {
	if r.Attrs == nil {
		return ""
	}
	return r.Attrs[key]
}

// Unit is the smallest individually-assignable slot within a Resource,
// e.g. one bed within a room. Singleton resources have exactly one Unit.
type Unit struct {
	ID         UnitID
	ResourceID ResourceID
	Name       string
}

// =============================================================================
// RESERVATION - Binds a requester to a unit over a window
// =============================================================================

type State string

const (
	StateDraft     State = "draft"
	StateConfirmed State = "confirmed"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
)

// Blocks reports whether a reservation in this state holds its unit.
// Draft reservations never block; terminal reservations never block.
func (s State) Blocks() bool { return s == StateConfirmed || s == StateActive }

// Terminal reports whether this state ends the lifecycle. Terminal states
// are only left via an explicit reopen to draft.
func (s State) Terminal() bool { return s == StateCompleted || s == StateCancelled }

// BlockingStates is the set of states that occupy a unit.
var BlockingStates = []State{StateConfirmed, StateActive}

// Reservation binds a requester to a single unit.
//
// INVARIANT: for any two reservations in blocking states bound to the same
// unit, their windows do not overlap. For open-ended holds this means at
// most one blocking reservation per unit at a time.
type Reservation struct {
	ID          ReservationID
	RequesterID RequesterID
	ResourceID  ResourceID
	UnitID      UnitID
	GroupID     GroupID

	// Window is half-open [Start, End). Open-ended (zero End) for resources
	// held until explicitly released, such as a reserved blood bag.
	Window Window

	State State

	// Seq is assigned by the store on insert and is strictly monotonic.
	// It is the tie-break between reservations created at the same instant.
	Seq int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// AVAILABILITY - Derived aggregate state of a resource
// =============================================================================

type AvailabilityState string

const (
	// Available: no unit is occupied.
	Available AvailabilityState = "available"
	// Occupied: some but not all units are occupied. Capacity-1 resources
	// skip this state entirely.
	Occupied AvailabilityState = "occupied"
	// Unavailable: every unit is occupied, or the resource is out of service.
	Unavailable AvailabilityState = "unavailable"
)

// Availability is the resolver's answer for one resource and one window.
type Availability struct {
	ResourceID     ResourceID
	State          AvailabilityState
	UnitsAvailable int
	UnitsTotal     int
}

// =============================================================================
// SNAPSHOT - Denormalized dashboard counters
// =============================================================================

// Snapshot holds the dashboard counters for one scope (a department, or ""
// for global). It is recomputed wholesale from the registry and the ledger
// on every committed mutation - never incrementally maintained - so it is
// always consistent with a full re-scan.
type Snapshot struct {
	Scope   string
	TakenAt time.Time

	ResourcesTotal   int
	ResourcesByState map[AvailabilityState]int

	UnitsTotal    int
	UnitsOccupied int

	ReservationsByState map[State]int
}
