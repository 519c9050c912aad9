package reservation_test

import (
	"context"
	"errors"
	"testing"

	"github.com/warp/reservation-engine/reservation"
)

// =============================================================================
// CAPACITY EXPANSION TESTS
// =============================================================================

func TestRegistry_CapacityExpandsIntoUnits(t *testing.T) {
	// GIVEN: A ward registered with capacity 7
	// WHEN: Listing its units
	// THEN: Exactly 7 individually-assignable beds exist

	ctx := context.Background()
	s := newTestStore()
	registry := reservation.NewRegistry(s)

	_, err := registry.Create(ctx, reservation.CreateResourceInput{
		ID:       "ward-3",
		Kind:     reservation.KindRoom,
		Capacity: 7,
		UnitName: "bed",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	units, err := registry.Units(ctx, "ward-3")
	if err != nil {
		t.Fatalf("units: %v", err)
	}
	if len(units) != 7 {
		t.Fatalf("expected 7 beds, got %d", len(units))
	}
	for _, u := range units {
		if u.ResourceID != "ward-3" {
			t.Errorf("unit %s bound to wrong resource %s", u.ID, u.ResourceID)
		}
	}
}

func TestRegistry_ZeroCapacity_DefaultsToSingleton(t *testing.T) {
	ctx := context.Background()
	registry := reservation.NewRegistry(newTestStore())

	_, err := registry.Create(ctx, reservation.CreateResourceInput{
		ID:   "amb-1",
		Kind: reservation.KindVehicle,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	units, err := registry.Units(ctx, "amb-1")
	if err != nil {
		t.Fatalf("units: %v", err)
	}
	if len(units) != 1 {
		t.Fatalf("expected 1 unit for a singleton, got %d", len(units))
	}
}

func TestRegistry_DuplicateID_Rejected(t *testing.T) {
	ctx := context.Background()
	registry := reservation.NewRegistry(newTestStore())

	in := reservation.CreateResourceInput{ID: "room-101", Kind: reservation.KindRoom}
	if _, err := registry.Create(ctx, in); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := registry.Create(ctx, in); err == nil {
		t.Fatal("expected duplicate id to be rejected")
	}
}

// =============================================================================
// DELETION GUARD TESTS
// =============================================================================

func TestRegistry_DeleteWithOpenReservation_Rejected(t *testing.T) {
	// GIVEN: A room with a confirmed reservation
	// WHEN: Deleting the room
	// THEN: ErrResourceInUse, the room survives

	ctx := context.Background()
	s := newTestStore()
	unit := seedResource(t, s, "room-101", 1)
	registry := reservation.NewRegistry(s)
	ledger := reservation.NewLedger(s)

	_, err := ledger.Create(ctx, reservation.CreateInput{
		RequesterID:  "patient-1",
		UnitID:       unit,
		Window:       window(t, 10, 14),
		InitialState: reservation.StateConfirmed,
	})
	if err != nil {
		t.Fatalf("create reservation: %v", err)
	}

	err = registry.Delete(ctx, "room-101")
	if !errors.Is(err, reservation.ErrResourceInUse) {
		t.Fatalf("expected ErrResourceInUse, got %v", err)
	}
	if _, err := registry.Get(ctx, "room-101"); err != nil {
		t.Fatalf("room should survive a refused delete: %v", err)
	}
}

func TestRegistry_DeleteAfterRelease_Succeeds(t *testing.T) {
	// GIVEN: A room whose only reservation is cancelled
	// WHEN: Deleting the room
	// THEN: Accepted - terminal reservations never pin a resource

	ctx := context.Background()
	s := newTestStore()
	unit := seedResource(t, s, "room-101", 1)
	registry := reservation.NewRegistry(s)
	ledger := reservation.NewLedger(s)

	res, err := ledger.Create(ctx, reservation.CreateInput{
		RequesterID:  "patient-1",
		UnitID:       unit,
		Window:       window(t, 10, 14),
		InitialState: reservation.StateConfirmed,
	})
	if err != nil {
		t.Fatalf("create reservation: %v", err)
	}
	if _, err := ledger.Transition(ctx, res.ID, reservation.StateCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if err := registry.Delete(ctx, "room-101"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := registry.Get(ctx, "room-101"); !errors.Is(err, reservation.ErrResourceNotFound) {
		t.Fatalf("expected ErrResourceNotFound after delete, got %v", err)
	}
}

func TestRegistry_DeleteUnknown_NotFound(t *testing.T) {
	registry := reservation.NewRegistry(newTestStore())
	err := registry.Delete(context.Background(), "missing")
	if !errors.Is(err, reservation.ErrResourceNotFound) {
		t.Fatalf("expected ErrResourceNotFound, got %v", err)
	}
}
