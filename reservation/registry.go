/*
registry.go - Catalog of allocatable resources and their units

PURPOSE:
  The Registry owns Resources and their ReservationUnits: creation with
  capacity expansion (a double room gets two bed units), lookup, and
  guarded deletion. It holds only STATIC shape - derived availability
  lives in the Resolver.

CAPACITY:
  Capacity may be given explicitly or derived from a kind-level default
  (singleton kinds get 1). Domain packages map their own typed capacities
  on top - e.g. rooms maps single=1, double=2, ward=7.

DELETION GUARD:
  A resource cannot be deleted while any non-terminal reservation
  references one of its units (ErrResourceInUse). Completed and cancelled
  reservations never block deletion.

SEE ALSO:
  - resolver.go: Derived availability over the registry
  - rooms/rooms.go: Typed room capacities layered on top
*/
package reservation

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// REGISTRY
// =============================================================================

type Registry struct {
	Store TxStore
}

func NewRegistry(store TxStore) *Registry {
	return &Registry{Store: store}
}

// CreateResourceInput describes a new resource.
type CreateResourceInput struct {
	ID   ResourceID
	Kind Kind

	// Capacity in units. Zero means 1 (singleton).
	Capacity int

	Attrs     map[string]string
	ExpiresAt *time.Time

	// UnitName prefixes generated unit names ("bed" -> "bed-1", "bed-2").
	// Defaults to "unit".
	UnitName string
}

// Create registers a resource and expands its capacity into units.
// The resource and its units are written atomically.
func (rg *Registry) Create(ctx context.Context, in CreateResourceInput) (*Resource, error) {
	if in.ID == "" {
		return nil, fmt.Errorf("resource id is required")
	}
	capacity := in.Capacity
	if capacity <= 0 {
		capacity = 1
	}
	prefix := in.UnitName
	if prefix == "" {
		prefix = "unit"
	}

	res := Resource{
		ID:        in.ID,
		Kind:      in.Kind,
		Capacity:  capacity,
		Attrs:     in.Attrs,
		ExpiresAt: in.ExpiresAt,
		CreatedAt: time.Now().UTC(),
	}

	err := rg.Store.WithTx(ctx, func(s Store) error {
		if existing, err := s.GetResource(ctx, in.ID); err != nil {
			return err
		} else if existing != nil {
			return fmt.Errorf("resource %s already exists", in.ID)
		}
		if err := s.SaveResource(ctx, res); err != nil {
			return err
		}
		for i := 1; i <= capacity; i++ {
			unit := Unit{
				ID:         UnitID(fmt.Sprintf("%s/%s-%d", in.ID, prefix, i)),
				ResourceID: in.ID,
				Name:       fmt.Sprintf("%s-%d", prefix, i),
			}
			if err := s.SaveUnit(ctx, unit); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Get returns a resource or ErrResourceNotFound.
func (rg *Registry) Get(ctx context.Context, id ResourceID) (*Resource, error) {
	res, err := rg.Store.GetResource(ctx, id)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("resource %s: %w", id, ErrResourceNotFound)
	}
	return res, nil
}

// Units returns the reservation units of a resource, ordered by id.
func (rg *Registry) Units(ctx context.Context, id ResourceID) ([]Unit, error) {
	if _, err := rg.Get(ctx, id); err != nil {
		return nil, err
	}
	return rg.Store.ListUnits(ctx, id)
}

// List returns resources matching the filter.
func (rg *Registry) List(ctx context.Context, f ResourceFilter) ([]Resource, error) {
	return rg.Store.ListResources(ctx, f)
}

// Delete removes a resource and its units. Fails with ErrResourceInUse
// while any non-terminal reservation references the resource.
func (rg *Registry) Delete(ctx context.Context, id ResourceID) error {
	return rg.Store.WithTx(ctx, func(s Store) error {
		res, err := s.GetResource(ctx, id)
		if err != nil {
			return err
		}
		if res == nil {
			return fmt.Errorf("resource %s: %w", id, ErrResourceNotFound)
		}

		open, err := s.QueryReservations(ctx, ReservationQuery{
			ResourceID: id,
			States:     []State{StateDraft, StateConfirmed, StateActive},
		})
		if err != nil {
			return err
		}
		if len(open) > 0 {
			return fmt.Errorf("resource %s has %d open reservations: %w", id, len(open), ErrResourceInUse)
		}

		return s.DeleteResource(ctx, id)
	})
}

// SetOutOfService flips the resource in or out of the candidate pool.
// Existing reservations are untouched; only future allocation is affected.
func (rg *Registry) SetOutOfService(ctx context.Context, id ResourceID, out bool) error {
	return rg.Store.WithTx(ctx, func(s Store) error {
		res, err := s.GetResource(ctx, id)
		if err != nil {
			return err
		}
		if res == nil {
			return fmt.Errorf("resource %s: %w", id, ErrResourceNotFound)
		}
		if res.OutOfService == out {
			return nil
		}
		res.OutOfService = out
		return s.SaveResource(ctx, *res)
	})
}
