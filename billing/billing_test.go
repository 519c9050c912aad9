package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/reservation-engine/billing"
	"github.com/warp/reservation-engine/reservation"
	"github.com/warp/reservation-engine/reservation/store"
	"github.com/warp/reservation-engine/rooms"
)

// =============================================================================
// TEST SETUP
// =============================================================================
// Billing is wired the way the server wires it: engine -> bus -> recorder,
// with room pricing quoting stays.

func newBilledRooms(t *testing.T) (*rooms.Service, *billing.Recorder) {
	t.Helper()
	engine := reservation.NewEngine(store.NewMemory())
	engine.Pricing = rooms.Pricing{}

	bus := reservation.NewBus()
	engine.Events = bus

	recorder := billing.NewRecorder()
	recorder.Attach(bus)
	return rooms.NewService(engine), recorder
}

func stay(t *testing.T, hours int) reservation.Window {
	t.Helper()
	start := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
	w, err := reservation.NewWindow(start, start.Add(time.Duration(hours)*time.Hour))
	if err != nil {
		t.Fatalf("window: %v", err)
	}
	return w
}

// =============================================================================
// CHARGE LIFECYCLE TESTS
// =============================================================================

func TestRecorder_BookingProducesPendingCharge(t *testing.T) {
	// GIVEN: A daily-billed room at 15/day
	// WHEN: A patient books a 2-day stay
	// THEN: One pending charge of 30 appears on their account

	ctx := context.Background()
	svc, recorder := newBilledRooms(t)

	if _, err := svc.RegisterRoom(ctx, rooms.RegisterRoomInput{
		Number: "101", Type: rooms.TypeSingle, Department: "cardiology",
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := svc.Book(ctx, "patient-1", "cardiology", stay(t, 48)); err != nil {
		t.Fatalf("book: %v", err)
	}

	charges := recorder.Charges("patient-1")
	if len(charges) != 1 {
		t.Fatalf("expected 1 charge, got %d", len(charges))
	}
	if charges[0].Status != billing.ChargePending {
		t.Errorf("expected pending, got %s", charges[0].Status)
	}
	if !charges[0].Amount.Equal(decimal.NewFromInt(30)) {
		t.Errorf("expected 30, got %v", charges[0].Amount)
	}
}

func TestRecorder_DischargeFinalizesTheCharge(t *testing.T) {
	ctx := context.Background()
	svc, recorder := newBilledRooms(t)

	if _, err := svc.RegisterRoom(ctx, rooms.RegisterRoomInput{
		Number: "101", Type: rooms.TypeSingle, Department: "cardiology",
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	booking, err := svc.Book(ctx, "patient-1", "cardiology", stay(t, 48))
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, err := svc.Discharge(ctx, booking.ID); err != nil {
		t.Fatalf("discharge: %v", err)
	}

	charges := recorder.Charges("patient-1")
	if len(charges) != 1 {
		t.Fatalf("expected 1 charge line (updated in place), got %d", len(charges))
	}
	if charges[0].Status != billing.ChargeFinalized {
		t.Errorf("expected finalized, got %s", charges[0].Status)
	}
}

func TestRecorder_CancellationVoidsTheCharge(t *testing.T) {
	// GIVEN: A booked stay
	// WHEN: The booking is cancelled
	// THEN: The charge is voided and drops out of the outstanding total

	ctx := context.Background()
	svc, recorder := newBilledRooms(t)

	if _, err := svc.RegisterRoom(ctx, rooms.RegisterRoomInput{
		Number: "101", Type: rooms.TypeSingle, Department: "cardiology",
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	booking, err := svc.Book(ctx, "patient-1", "cardiology", stay(t, 48))
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, err := svc.Cancel(ctx, booking.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	charges := recorder.Charges("patient-1")
	if len(charges) != 1 || charges[0].Status != billing.ChargeVoided {
		t.Fatalf("expected one voided charge, got %+v", charges)
	}
	if !recorder.Outstanding("patient-1").IsZero() {
		t.Errorf("expected zero outstanding, got %v", recorder.Outstanding("patient-1"))
	}
}

func TestRecorder_OutstandingSumsAcrossStays(t *testing.T) {
	ctx := context.Background()
	svc, recorder := newBilledRooms(t)

	if _, err := svc.RegisterRoom(ctx, rooms.RegisterRoomInput{
		Number: "101", Type: rooms.TypeDouble, Department: "cardiology",
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	// Two stays in the same double room: 2 days (30) + 1 day (15).
	if _, err := svc.Book(ctx, "patient-1", "cardiology", stay(t, 48)); err != nil {
		t.Fatalf("first book: %v", err)
	}
	if _, err := svc.Book(ctx, "patient-1", "cardiology", stay(t, 24)); err != nil {
		t.Fatalf("second book: %v", err)
	}

	if got := recorder.Outstanding("patient-1"); !got.Equal(decimal.NewFromInt(45)) {
		t.Errorf("expected 45 outstanding, got %v", got)
	}
}

func TestRecorder_UnpricedEvents_NoCharge(t *testing.T) {
	// GIVEN: The default no-pricing strategy
	// WHEN: A reservation is confirmed
	// THEN: No charge line is recorded

	ctx := context.Background()
	engine := reservation.NewEngine(store.NewMemory())
	bus := reservation.NewBus()
	engine.Events = bus
	recorder := billing.NewRecorder()
	recorder.Attach(bus)

	if _, err := engine.Registry.Create(ctx, reservation.CreateResourceInput{
		ID: "amb-1", Kind: reservation.KindVehicle,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := engine.Allocate(ctx, "patient-1",
		reservation.Criteria{Kind: reservation.KindVehicle},
		reservation.OpenWindow(time.Now().UTC())); err != nil {
		t.Fatalf("allocate: %v", err)
	}

	if got := recorder.Charges("patient-1"); len(got) != 0 {
		t.Fatalf("expected no charges without pricing, got %d", len(got))
	}
}
