/*
store.go - Persistence interface for resources, reservations, and snapshots

PURPOSE:
  Defines the interface between the engine and the database. Different
  implementations can use SQLite, PostgreSQL, or in-memory storage.

KEY INTERFACES:
  Store:    Resource/unit/reservation/snapshot persistence
  TxStore:  Transactional operations (the check-and-set at confirm time)

ATOMICITY CONTRACT:
  Every mutation the engine commits goes through TxStore.WithTx. The
  function passed to WithTx sees a serializable view of the reservation
  set: reading the overlapping reservations for a unit and writing the new
  confirmed reservation happen as one atomic step. Two concurrent attempts
  on the same unit/window produce exactly one success and one conflict.

SEQUENCE NUMBERS:
  InsertReservation assigns a store-wide monotonic Seq to each reservation.
  Seq is the deterministic tie-break between reservations created at the
  same timestamp.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - reservation/store/memory.go: In-memory for testing

SEE ALSO:
  - ledger.go: Lifecycle logic built on this interface
  - engine.go: Allocation logic built on WithTx
*/
package reservation

import "context"

// =============================================================================
// FILTERS
// =============================================================================

// ResourceFilter selects candidate resources by static attributes.
// Zero-value fields do not constrain the result.
type ResourceFilter struct {
	Kind Kind

	// Attrs must all match exactly (subset match against Resource.Attrs).
	Attrs map[string]string

	// InServiceOnly excludes out-of-service resources.
	InServiceOnly bool
}

// Matches reports whether a resource satisfies the filter. Store
// implementations may use it directly or translate it to SQL.
func (f ResourceFilter) Matches(r Resource) bool {
	if f.Kind != "" && r.Kind != f.Kind {
		return false
	}
	if f.InServiceOnly && r.OutOfService {
		return false
	}
	for k, v := range f.Attrs {
		if r.Attr(k) != v {
			return false
		}
	}
	return true
}

// ReservationQuery selects reservations. Zero-value fields do not constrain
// the result; States nil means all states.
type ReservationQuery struct {
	UnitID      UnitID
	ResourceID  ResourceID
	RequesterID RequesterID
	GroupID     GroupID
	States      []State

	// Overlapping restricts to reservations whose window overlaps this one.
	Overlapping *Window
}

// Matches reports whether a reservation satisfies the query.
func (q ReservationQuery) Matches(r Reservation) bool {
	if q.UnitID != "" && r.UnitID != q.UnitID {
		return false
	}
	if q.ResourceID != "" && r.ResourceID != q.ResourceID {
		return false
	}
	if q.RequesterID != "" && r.RequesterID != q.RequesterID {
		return false
	}
	if q.GroupID != "" && r.GroupID != q.GroupID {
		return false
	}
	if q.States != nil {
		found := false
		for _, s := range q.States {
			if r.State == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.Overlapping != nil && !r.Window.Overlaps(*q.Overlapping) {
		return false
	}
	return true
}

// =============================================================================
// STORE - Persistence for the registry, the ledger, and the dashboard
// =============================================================================

// Store handles persistence. Reads return (nil, nil) for missing records;
// mapping absence to NotFound errors is the caller's concern.
type Store interface {
	// Resources and units (registry state).
	SaveResource(ctx context.Context, r Resource) error
	GetResource(ctx context.Context, id ResourceID) (*Resource, error)
	ListResources(ctx context.Context, f ResourceFilter) ([]Resource, error)
	DeleteResource(ctx context.Context, id ResourceID) error
	SaveUnit(ctx context.Context, u Unit) error
	GetUnit(ctx context.Context, id UnitID) (*Unit, error)
	ListUnits(ctx context.Context, resourceID ResourceID) ([]Unit, error)

	// Reservations (ledger state). InsertReservation assigns res.Seq.
	InsertReservation(ctx context.Context, res *Reservation) error
	UpdateReservation(ctx context.Context, res Reservation) error
	GetReservation(ctx context.Context, id ReservationID) (*Reservation, error)
	QueryReservations(ctx context.Context, q ReservationQuery) ([]Reservation, error)

	// Snapshots (dashboard state). SaveSnapshot keeps the newest snapshot
	// per scope: a save with an older TakenAt than the stored one is a no-op.
	SaveSnapshot(ctx context.Context, s Snapshot) error
	GetSnapshot(ctx context.Context, scope string) (*Snapshot, error)
}

// TxStore wraps Store with transaction support.
//
// WithTx executes fn within a transaction. If fn returns an error, the
// transaction is rolled back and the store is exactly as before the call.
// A store-level timeout or serialization failure surfaces as
// ErrStoreUnavailable.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}
