/*
handlers_test.go - HTTP handler tests

Tests for:
- Room registration, booking, and discharge over HTTP
- Blood reservation including the "waiting" outcome
- Dispatch pair assignment and completion
- Error status mapping (400/404/409)
- Dashboard and charge endpoints
*/
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/reservation-engine/store/sqlite"
)

func newTestAPI(t *testing.T) (*Handler, *chi.Mux) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	h := NewHandler(store)
	return h, NewRouter(h)
}

// doJSON performs a request against the router and returns the recorder.
func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func rfc(t time.Time) string { return t.Format(time.RFC3339) }

// =============================================================================
// ROOMS OVER HTTP
// =============================================================================

func TestRooms_BookAndDischarge(t *testing.T) {
	// GIVEN: A registered double room
	_, router := newTestAPI(t)

	rec := doJSON(t, router, "POST", "/api/rooms", CreateRoomRequest{
		Number: "101", Type: "double", Department: "cardiology",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	room := decodeJSON[ResourceDTO](t, rec)
	assert.Equal(t, "room/101", room.ID)
	assert.Equal(t, 2, room.Capacity)

	// WHEN: A patient books a bed in the department
	start := time.Date(2026, 9, 10, 10, 0, 0, 0, time.UTC)
	rec = doJSON(t, router, "POST", "/api/rooms/book", BookRoomRequest{
		Patient:    "patient-1",
		Department: "cardiology",
		Window:     WindowDTO{Start: rfc(start), End: rfc(start.Add(48 * time.Hour))},
	})

	// THEN: The booking is confirmed on a bed of that room
	require.Equal(t, http.StatusCreated, rec.Code)
	booking := decodeJSON[ReservationDTO](t, rec)
	assert.Equal(t, "room/101", booking.ResourceID)
	assert.Equal(t, "confirmed", booking.State)

	// WHEN: The patient is admitted, then discharged
	rec = doJSON(t, router, "POST", "/api/rooms/bookings/"+booking.ID+"/admit", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "active", decodeJSON[ReservationDTO](t, rec).State)

	rec = doJSON(t, router, "POST", "/api/rooms/bookings/"+booking.ID+"/discharge", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "completed", decodeJSON[ReservationDTO](t, rec).State)

	// THEN: The room reports both beds free again
	rec = doJSON(t, router, "GET",
		fmt.Sprintf("/api/rooms/101/availability?start=%s&end=%s",
			rfc(start), rfc(start.Add(48*time.Hour))), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	av := decodeJSON[AvailabilityDTO](t, rec)
	assert.Equal(t, "available", av.State)
	assert.Equal(t, 2, av.UnitsAvailable)
}

func TestRooms_FullRoomConflicts(t *testing.T) {
	// GIVEN: A single room with its one bed taken
	_, router := newTestAPI(t)
	doJSON(t, router, "POST", "/api/rooms", CreateRoomRequest{
		Number: "201", Type: "single", Department: "icu",
	})

	start := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	win := WindowDTO{Start: rfc(start), End: rfc(start.Add(24 * time.Hour))}
	rec := doJSON(t, router, "POST", "/api/rooms/book", BookRoomRequest{
		Patient: "patient-1", Department: "icu", Window: win,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	// WHEN: A second patient wants the same window
	rec = doJSON(t, router, "POST", "/api/rooms/book", BookRoomRequest{
		Patient: "patient-2", Department: "icu", Window: win,
	})

	// THEN: 409, no resource can satisfy the request
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRooms_InvalidWindowRejected(t *testing.T) {
	_, router := newTestAPI(t)
	doJSON(t, router, "POST", "/api/rooms", CreateRoomRequest{
		Number: "301", Type: "single", Department: "icu",
	})

	// WHEN: End precedes start
	start := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	rec := doJSON(t, router, "POST", "/api/rooms/book", BookRoomRequest{
		Patient:    "patient-1",
		Department: "icu",
		Window:     WindowDTO{Start: rfc(start), End: rfc(start.Add(-time.Hour))},
	})

	// THEN: 400
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// RESOURCES & RESERVATIONS
// =============================================================================

func TestResources_WildcardRoutes(t *testing.T) {
	// GIVEN: A room whose resource ID contains a slash
	_, router := newTestAPI(t)
	doJSON(t, router, "POST", "/api/rooms", CreateRoomRequest{
		Number: "404", Type: "ward", Department: "general",
	})

	// WHEN: Fetching it through the wildcard route
	rec := doJSON(t, router, "GET", "/api/resources/room/404", nil)

	// THEN: The full resource comes back
	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeJSON[ResourceDTO](t, rec)
	assert.Equal(t, "room/404", res.ID)
	assert.Equal(t, 7, res.Capacity)

	// AND: Availability works through its wildcard too
	start := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	rec = doJSON(t, router, "GET",
		fmt.Sprintf("/api/availability/room/404?start=%s&end=%s",
			rfc(start), rfc(start.Add(time.Hour))), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 7, decodeJSON[AvailabilityDTO](t, rec).UnitsAvailable)
}

func TestReservations_UnknownIs404(t *testing.T) {
	_, router := newTestAPI(t)

	rec := doJSON(t, router, "GET", "/api/reservations/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, "POST", "/api/reservations/nope/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReservations_ListByRequester(t *testing.T) {
	// GIVEN: Two bookings by different patients
	_, router := newTestAPI(t)
	doJSON(t, router, "POST", "/api/rooms", CreateRoomRequest{
		Number: "501", Type: "double", Department: "general",
	})

	start := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	win := WindowDTO{Start: rfc(start), End: rfc(start.Add(24 * time.Hour))}
	for _, p := range []string{"patient-a", "patient-b"} {
		rec := doJSON(t, router, "POST", "/api/rooms/book", BookRoomRequest{
			Patient: p, Department: "general", Window: win,
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	// WHEN: Listing by requester
	rec := doJSON(t, router, "GET", "/api/reservations?requester=patient-a", nil)

	// THEN: Only that patient's booking is returned
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeJSON[[]ReservationDTO](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "patient-a", list[0].RequesterID)
}

// =============================================================================
// BLOOD BANK OVER HTTP
// =============================================================================

func TestBlood_ReserveWaitsWhenEmpty(t *testing.T) {
	// GIVEN: An empty blood bank
	_, router := newTestAPI(t)

	// WHEN: A patient needs A+
	rec := doJSON(t, router, "POST", "/api/blood/reserve", ReserveBloodRequest{
		Patient: "patient-1", BloodType: "A", Rh: "+",
	})

	// THEN: The patient waits; this is not an error
	require.Equal(t, http.StatusAccepted, rec.Code)
	body := decodeJSON[map[string]string](t, rec)
	assert.Equal(t, "waiting", body["status"])
	assert.Equal(t, "A+", body["group"])
}

func TestBlood_RegisterReserveAndUse(t *testing.T) {
	// GIVEN: One A+ bag in stock
	_, router := newTestAPI(t)
	rec := doJSON(t, router, "POST", "/api/blood/bags", RegisterBagRequest{
		Serial: "B-1", BloodType: "A", Rh: "+",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	// WHEN: A matching reservation comes in
	rec = doJSON(t, router, "POST", "/api/blood/reserve", ReserveBloodRequest{
		Patient: "patient-1", BloodType: "A", Rh: "+",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	res := decodeJSON[ReservationDTO](t, rec)
	assert.Equal(t, "bag/B-1", res.ResourceID)
	assert.Empty(t, res.Window.End, "blood holds are open-ended")

	// AND: The bag is transfused
	rec = doJSON(t, router, "POST", "/api/blood/reservations/"+res.ID+"/use", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: The bag is retired and the next request waits
	rec = doJSON(t, router, "POST", "/api/blood/reserve", ReserveBloodRequest{
		Patient: "patient-2", BloodType: "A", Rh: "+",
	})
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestBlood_InvalidGroupRejected(t *testing.T) {
	_, router := newTestAPI(t)

	rec := doJSON(t, router, "POST", "/api/blood/reserve", ReserveBloodRequest{
		Patient: "patient-1", BloodType: "C", Rh: "+",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBlood_StatsEndpoint(t *testing.T) {
	// GIVEN: Two A+ bags and one O- bag
	_, router := newTestAPI(t)
	for _, bag := range []RegisterBagRequest{
		{Serial: "S-1", BloodType: "A", Rh: "+"},
		{Serial: "S-2", BloodType: "A", Rh: "+"},
		{Serial: "S-3", BloodType: "O", Rh: "-"},
	} {
		rec := doJSON(t, router, "POST", "/api/blood/bags", bag)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	// WHEN: Fetching stats
	rec := doJSON(t, router, "GET", "/api/blood/stats", nil)

	// THEN: Counts are per group and a most-needed group is named
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decodeJSON[BloodStatsDTO](t, rec)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.ByGroup["A+"])
	assert.NotEmpty(t, stats.MostNeeded)
}

// =============================================================================
// DISPATCH OVER HTTP
// =============================================================================

func TestDispatch_RunLifecycle(t *testing.T) {
	// GIVEN: One ambulance and one unbound driver
	_, router := newTestAPI(t)
	rec := doJSON(t, router, "POST", "/api/dispatch/ambulances",
		RegisterAmbulanceRequest{Plate: "AMB-1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = doJSON(t, router, "POST", "/api/dispatch/drivers",
		RegisterDriverRequest{ID: "d1", Name: "Driver One"})
	require.Equal(t, http.StatusCreated, rec.Code)

	// WHEN: A run is requested
	rec = doJSON(t, router, "POST", "/api/dispatch/runs", DispatchRequest{
		Patient: "patient-1",
	})

	// THEN: Vehicle and driver come back under one group
	require.Equal(t, http.StatusCreated, rec.Code)
	run := decodeJSON[RunDTO](t, rec)
	assert.Equal(t, "ambulance/AMB-1", run.Vehicle.ResourceID)
	assert.Equal(t, "driver/d1", run.Driver.ResourceID)
	require.NotEmpty(t, run.Vehicle.GroupID)
	assert.Equal(t, run.Vehicle.GroupID, run.Driver.GroupID)

	// WHEN: The run completes via either leg's reservation
	rec = doJSON(t, router, "POST", "/api/dispatch/runs/"+run.Vehicle.ID+"/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: Both are free for the next run
	rec = doJSON(t, router, "POST", "/api/dispatch/runs", DispatchRequest{
		Patient: "patient-2",
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestDispatch_NoFleetConflicts(t *testing.T) {
	_, router := newTestAPI(t)

	rec := doJSON(t, router, "POST", "/api/dispatch/runs", DispatchRequest{
		Patient: "patient-1",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

// =============================================================================
// DASHBOARDS & CHARGES
// =============================================================================

func TestDashboard_ReflectsOccupancy(t *testing.T) {
	// GIVEN: A double room with one bed held open-ended from now
	_, router := newTestAPI(t)
	doJSON(t, router, "POST", "/api/rooms", CreateRoomRequest{
		Number: "601", Type: "double", Department: "cardiology",
	})

	rec := doJSON(t, router, "POST", "/api/rooms/book", BookRoomRequest{
		Patient:    "patient-1",
		Department: "cardiology",
		Window:     WindowDTO{Start: rfc(time.Now().Add(-time.Hour))},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	// WHEN: Reading the department dashboard
	rec = doJSON(t, router, "GET", "/api/dashboards?scope=cardiology", nil)

	// THEN: One of two beds is occupied
	require.Equal(t, http.StatusOK, rec.Code)
	snap := decodeJSON[SnapshotDTO](t, rec)
	assert.Equal(t, 1, snap.ResourcesTotal)
	assert.Equal(t, 2, snap.UnitsTotal)
	assert.Equal(t, 1, snap.UnitsOccupied)
}

func TestCharges_AccrueOverLifecycle(t *testing.T) {
	// GIVEN: A booked 2-day stay at the default daily rate
	_, router := newTestAPI(t)
	doJSON(t, router, "POST", "/api/rooms", CreateRoomRequest{
		Number: "701", Type: "single", Department: "general",
	})

	start := time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC)
	rec := doJSON(t, router, "POST", "/api/rooms/book", BookRoomRequest{
		Patient:    "patient-1",
		Department: "general",
		Window:     WindowDTO{Start: rfc(start), End: rfc(start.Add(48 * time.Hour))},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	booking := decodeJSON[ReservationDTO](t, rec)

	// WHEN: Reading the patient's charges
	rec = doJSON(t, router, "GET", "/api/charges/patient-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: One pending charge of 2 days x 15
	var page struct {
		Charges     []ChargeLineDTO `json:"charges"`
		Outstanding string          `json:"outstanding"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	require.Len(t, page.Charges, 1)
	assert.Equal(t, "pending", page.Charges[0].Status)
	assert.Equal(t, "30", page.Outstanding)

	// WHEN: The stay completes
	rec = doJSON(t, router, "POST", "/api/rooms/bookings/"+booking.ID+"/discharge", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: The charge is finalized, still owed
	rec = doJSON(t, router, "GET", "/api/charges/patient-1", nil)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	require.Len(t, page.Charges, 1)
	assert.Equal(t, "finalized", page.Charges[0].Status)
	assert.Equal(t, "30", page.Outstanding)
}

// =============================================================================
// ADMIN
// =============================================================================

func TestReset_WipesEverything(t *testing.T) {
	// GIVEN: A store with a room in it
	_, router := newTestAPI(t)
	doJSON(t, router, "POST", "/api/rooms", CreateRoomRequest{
		Number: "801", Type: "single", Department: "general",
	})

	// WHEN: Resetting
	rec := doJSON(t, router, "POST", "/api/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: The catalog is empty
	rec = doJSON(t, router, "GET", "/api/resources", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeJSON[[]ResourceDTO](t, rec))
}
