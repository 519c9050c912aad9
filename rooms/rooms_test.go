package rooms_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/reservation-engine/reservation"
	"github.com/warp/reservation-engine/reservation/store"
	"github.com/warp/reservation-engine/rooms"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestService(t *testing.T) *rooms.Service {
	t.Helper()
	engine := reservation.NewEngine(store.NewMemory())
	engine.Pricing = rooms.Pricing{}
	return rooms.NewService(engine)
}

func stay(t *testing.T, startHour, endHour int) reservation.Window {
	t.Helper()
	day := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)
	w, err := reservation.NewWindow(day.Add(time.Duration(startHour)*time.Hour), day.Add(time.Duration(endHour)*time.Hour))
	if err != nil {
		t.Fatalf("building stay window: %v", err)
	}
	return w
}

// =============================================================================
// ROOM TYPE TESTS
// =============================================================================

func TestRoomType_Capacities(t *testing.T) {
	for _, tc := range []struct {
		rt   rooms.RoomType
		want int
	}{
		{rooms.TypeSingle, 1},
		{rooms.TypeDouble, 2},
		{rooms.TypeWard, 7},
	} {
		got, err := tc.rt.Capacity()
		if err != nil {
			t.Fatalf("%s: %v", tc.rt, err)
		}
		if got != tc.want {
			t.Errorf("%s: expected %d beds, got %d", tc.rt, tc.want, got)
		}
	}
}

func TestRoomType_Unknown_Rejected(t *testing.T) {
	if _, err := rooms.RoomType("suite").Capacity(); err == nil {
		t.Fatal("expected unknown room type to be rejected")
	}
}

// =============================================================================
// WARD FILL SCENARIO
// =============================================================================

func TestWard_FillsBedByBed(t *testing.T) {
	// GIVEN: A 7-bed ward
	// WHEN: Seven patients book the same window, one at a time
	// THEN: The ward goes available -> occupied after the first booking ->
	//       unavailable after the seventh; the eighth patient is turned away

	ctx := context.Background()
	svc := newTestService(t)

	if _, err := svc.RegisterRoom(ctx, rooms.RegisterRoomInput{
		Number: "ward-3", Type: rooms.TypeWard, Department: "general",
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	w := stay(t, 8, 20)

	av, err := svc.Availability(ctx, "ward-3", w)
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	if av.State != reservation.Available {
		t.Fatalf("expected empty ward available, got %s", av.State)
	}

	for i := 1; i <= 7; i++ {
		patient := reservation.RequesterID("patient-" + string(rune('a'+i-1)))
		if _, err := svc.Book(ctx, patient, "general", w); err != nil {
			t.Fatalf("booking bed %d: %v", i, err)
		}

		av, err := svc.Availability(ctx, "ward-3", w)
		if err != nil {
			t.Fatalf("availability after bed %d: %v", i, err)
		}
		want := reservation.Occupied
		if i == 7 {
			want = reservation.Unavailable
		}
		if av.State != want {
			t.Errorf("after bed %d: expected %s, got %s", i, want, av.State)
		}
		if av.UnitsAvailable != 7-i {
			t.Errorf("after bed %d: expected %d free beds, got %d", i, 7-i, av.UnitsAvailable)
		}
	}

	_, err = svc.Book(ctx, "patient-h", "general", w)
	if !errors.Is(err, reservation.ErrNoCandidate) {
		t.Fatalf("expected the 8th patient to be turned away, got %v", err)
	}
}

func TestDischarge_FreesTheBedImmediately(t *testing.T) {
	// GIVEN: A full single room
	// WHEN: The patient is discharged
	// THEN: The next booking for the same window succeeds

	ctx := context.Background()
	svc := newTestService(t)

	if _, err := svc.RegisterRoom(ctx, rooms.RegisterRoomInput{
		Number: "101", Type: rooms.TypeSingle, Department: "cardiology",
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	w := stay(t, 8, 20)
	booking, err := svc.Book(ctx, "patient-1", "cardiology", w)
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, err := svc.Admit(ctx, booking.ID); err != nil {
		t.Fatalf("admit: %v", err)
	}
	if _, err := svc.Discharge(ctx, booking.ID); err != nil {
		t.Fatalf("discharge: %v", err)
	}

	if _, err := svc.Book(ctx, "patient-2", "cardiology", w); err != nil {
		t.Fatalf("rebooking a discharged bed should succeed, got %v", err)
	}
}

func TestBookRoom_PinsTheRoom(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	for _, n := range []string{"101", "102"} {
		if _, err := svc.RegisterRoom(ctx, rooms.RegisterRoomInput{
			Number: n, Type: rooms.TypeSingle, Department: "cardiology",
		}); err != nil {
			t.Fatalf("register %s: %v", n, err)
		}
	}

	booking, err := svc.BookRoom(ctx, "patient-1", "102", stay(t, 8, 20))
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if booking.ResourceID != rooms.RoomID("102") {
		t.Errorf("expected room/102, got %s", booking.ResourceID)
	}
}

// =============================================================================
// PRICING TESTS
// =============================================================================

func TestPricing_DailyStay_PartialDayRoundsUp(t *testing.T) {
	// GIVEN: A daily-billed room at the default 15/day
	// WHEN: Quoting a 51-hour stay (2 days 3 hours)
	// THEN: 3 days x 15 = 45

	res := reservation.Resource{
		Kind: reservation.KindRoom,
		Attrs: map[string]string{
			"billing":       string(rooms.BillDaily),
			"price_per_day": "15",
		},
	}
	start := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
	w, err := reservation.NewWindow(start, start.Add(51*time.Hour))
	if err != nil {
		t.Fatalf("window: %v", err)
	}

	units, price, ok := rooms.Pricing{}.Quote(res, w)
	if !ok {
		t.Fatal("expected a quote for a room")
	}
	if !units.Equal(decimal.NewFromInt(3)) {
		t.Errorf("expected 3 billable days, got %v", units)
	}
	if !price.Equal(decimal.NewFromInt(45)) {
		t.Errorf("expected price 45, got %v", price)
	}
}

func TestPricing_HourlyStay(t *testing.T) {
	res := reservation.Resource{
		Kind: reservation.KindRoom,
		Attrs: map[string]string{
			"billing":        string(rooms.BillHourly),
			"price_per_hour": "2",
		},
	}
	start := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
	w, err := reservation.NewWindow(start, start.Add(90*time.Minute))
	if err != nil {
		t.Fatalf("window: %v", err)
	}

	_, price, ok := rooms.Pricing{}.Quote(res, w)
	if !ok {
		t.Fatal("expected a quote for a room")
	}
	if !price.Equal(decimal.NewFromFloat(3)) {
		t.Errorf("expected price 3, got %v", price)
	}
}

func TestPricing_MissingRates_UseDefaults(t *testing.T) {
	res := reservation.Resource{Kind: reservation.KindRoom}
	start := time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)
	w, err := reservation.NewWindow(start, start.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("window: %v", err)
	}

	_, price, ok := rooms.Pricing{}.Quote(res, w)
	if !ok {
		t.Fatal("expected a quote")
	}
	if !price.Equal(rooms.DefaultPricePerDay) {
		t.Errorf("expected default daily rate %v, got %v", rooms.DefaultPricePerDay, price)
	}
}

func TestPricing_NonRoom_NotQuoted(t *testing.T) {
	res := reservation.Resource{Kind: reservation.KindVehicle}
	if _, _, ok := (rooms.Pricing{}).Quote(res, reservation.OpenWindow(time.Now())); ok {
		t.Fatal("vehicles must not be priced by room pricing")
	}
}
