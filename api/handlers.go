/*
handlers.go - HTTP request handlers

PURPOSE:
  Implements all REST API endpoints. Handlers decode requests, call the
  engine or a domain service, and encode responses. No business logic
  lives here.

ERROR MAPPING:
  400 Bad Request        malformed JSON, invalid window, bad blood group
  404 Not Found          unknown resource or reservation
  409 Conflict           overlap lost, no candidate, in-use resource,
                         incompatible pair, bad state transition
  500 Internal Error     store failures

DEPENDENCY INJECTION:
  Handler holds the engine and the domain services built on it. The
  store is injected so tests can use the in-memory implementation.

SEE ALSO:
  - server.go: Route definitions
  - dto.go: Request/response types
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/warp/reservation-engine/billing"
	"github.com/warp/reservation-engine/bloodbank"
	"github.com/warp/reservation-engine/dispatch"
	"github.com/warp/reservation-engine/reservation"
	"github.com/warp/reservation-engine/rooms"
)

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    reservation.TxStore
	Engine   *reservation.Engine
	Rooms    *rooms.Service
	Blood    *bloodbank.Service
	Dispatch *dispatch.Service
	Billing  *billing.Recorder
}

// NewHandler wires the engine, the domain services, and the billing
// recorder on top of the given store. Room pricing is the only pricing
// strategy installed; other kinds produce unpriced events.
func NewHandler(store reservation.TxStore) *Handler {
	engine := reservation.NewEngine(store)
	engine.Pricing = rooms.Pricing{}

	bus := reservation.NewBus()
	engine.Events = bus

	recorder := billing.NewRecorder()
	recorder.Attach(bus)

	return &Handler{
		Store:    store,
		Engine:   engine,
		Rooms:    rooms.NewService(engine),
		Blood:    bloodbank.NewService(engine),
		Dispatch: dispatch.NewService(engine),
		Billing:  recorder,
	}
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps engine errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case reservation.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not found", err)
	case errors.Is(err, reservation.ErrInvalidWindow):
		writeError(w, http.StatusBadRequest, "invalid window", err)
	case reservation.IsClientError(err) || reservation.IsRetryable(err):
		writeError(w, http.StatusConflict, "request cannot be satisfied", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal error", err)
	}
}

func decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// =============================================================================
// RESOURCE ENDPOINTS
// =============================================================================

// ListResources returns resources, optionally filtered by kind.
// GET /api/resources?kind=room&in_service=true
func (h *Handler) ListResources(w http.ResponseWriter, r *http.Request) {
	filter := reservation.ResourceFilter{
		Kind:          reservation.Kind(r.URL.Query().Get("kind")),
		InServiceOnly: r.URL.Query().Get("in_service") == "true",
	}

	resources, err := h.Engine.Registry.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]ResourceDTO, 0, len(resources))
	for _, res := range resources {
		dtos = append(dtos, toResourceDTO(res))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetResource returns a single resource by ID. Resource IDs contain a
// slash ("room/101"), so the route matches a wildcard.
// GET /api/resources/room/101
func (h *Handler) GetResource(w http.ResponseWriter, r *http.Request) {
	id := reservation.ResourceID(chi.URLParam(r, "*"))

	res, err := h.Engine.Registry.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResourceDTO(*res))
}

// DeleteResource removes a resource that holds no blocking reservations.
// DELETE /api/resources/{id}
func (h *Handler) DeleteResource(w http.ResponseWriter, r *http.Request) {
	id := reservation.ResourceID(chi.URLParam(r, "*"))

	if err := h.Engine.Registry.Delete(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResourceAvailability reports the tiered state of a resource for a window.
// GET /api/availability/room/101?start=...&end=...
func (h *Handler) ResourceAvailability(w http.ResponseWriter, r *http.Request) {
	id := reservation.ResourceID(chi.URLParam(r, "*"))

	win, err := parseWindow(WindowDTO{
		Start: r.URL.Query().Get("start"),
		End:   r.URL.Query().Get("end"),
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid window", err)
		return
	}

	av, err := h.Engine.Availability(r.Context(), id, win)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAvailabilityDTO(*av))
}

// =============================================================================
// RESERVATION ENDPOINTS
// =============================================================================

// ListReservations queries the ledger.
// GET /api/reservations?requester=...&resource=...&state=...
func (h *Handler) ListReservations(w http.ResponseWriter, r *http.Request) {
	q := reservation.ReservationQuery{
		RequesterID: reservation.RequesterID(r.URL.Query().Get("requester")),
		ResourceID:  reservation.ResourceID(r.URL.Query().Get("resource")),
		GroupID:     reservation.GroupID(r.URL.Query().Get("group")),
	}
	if s := r.URL.Query().Get("state"); s != "" {
		q.States = []reservation.State{reservation.State(s)}
	}

	records, err := h.Engine.Ledger.Query(r.Context(), q)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]ReservationDTO, 0, len(records))
	for _, res := range records {
		dtos = append(dtos, toReservationDTO(res))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetReservation returns a single reservation.
// GET /api/reservations/{id}
func (h *Handler) GetReservation(w http.ResponseWriter, r *http.Request) {
	id := reservation.ReservationID(chi.URLParam(r, "id"))

	res, err := h.Engine.Ledger.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationDTO(*res))
}

// transition applies a lifecycle operation and writes the updated record.
func (h *Handler) transition(w http.ResponseWriter, r *http.Request,
	op func(context.Context, reservation.ReservationID) (*reservation.Reservation, error)) {

	id := reservation.ReservationID(chi.URLParam(r, "id"))

	res, err := op(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationDTO(*res))
}

// ConfirmReservation promotes a draft to confirmed, re-checking overlap.
// POST /api/reservations/{id}/confirm
func (h *Handler) ConfirmReservation(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Engine.Confirm)
}

// CompleteReservation finishes a reservation and releases its group.
// POST /api/reservations/{id}/complete
func (h *Handler) CompleteReservation(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Engine.Complete)
}

// CancelReservation cancels a reservation and releases its group.
// POST /api/reservations/{id}/cancel
func (h *Handler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Engine.Cancel)
}

// ReopenReservation returns a terminal reservation to draft.
// POST /api/reservations/{id}/reopen
func (h *Handler) ReopenReservation(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Engine.Reopen)
}

// =============================================================================
// ROOM ENDPOINTS
// =============================================================================

// CreateRoom registers a room; beds are derived from the room type.
// POST /api/rooms
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	in := rooms.RegisterRoomInput{
		Number:     req.Number,
		Type:       rooms.RoomType(req.Type),
		Department: req.Department,
		Billing:    rooms.BillingMode(req.Billing),
	}
	if req.PricePerHour != "" {
		p, err := decimal.NewFromString(req.PricePerHour)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid price_per_hour", err)
			return
		}
		in.PricePerHour = p
	}
	if req.PricePerDay != "" {
		p, err := decimal.NewFromString(req.PricePerDay)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid price_per_day", err)
			return
		}
		in.PricePerDay = p
	}

	res, err := h.Rooms.RegisterRoom(r.Context(), in)
	if err != nil {
		writeError(w, http.StatusBadRequest, "cannot register room", err)
		return
	}
	writeJSON(w, http.StatusCreated, toResourceDTO(*res))
}

// BookRoom books a bed, either in a specific room or anywhere in a
// department.
// POST /api/rooms/book
func (h *Handler) BookRoom(w http.ResponseWriter, r *http.Request) {
	var req BookRoomRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	win, err := parseWindow(req.Window)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid window", err)
		return
	}

	patient := reservation.RequesterID(req.Patient)
	var res *reservation.Reservation
	if req.Number != "" {
		res, err = h.Rooms.BookRoom(r.Context(), patient, req.Number, win)
	} else {
		res, err = h.Rooms.Book(r.Context(), patient, req.Department, win)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReservationDTO(*res))
}

// AdmitPatient starts the stay for a confirmed booking.
// POST /api/rooms/bookings/{id}/admit
func (h *Handler) AdmitPatient(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Rooms.Admit)
}

// DischargePatient completes the stay and frees the bed.
// POST /api/rooms/bookings/{id}/discharge
func (h *Handler) DischargePatient(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Rooms.Discharge)
}

// RoomAvailability reports a room's tiered availability state for a window.
// GET /api/rooms/{number}/availability?start=...&end=...
func (h *Handler) RoomAvailability(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")

	win, err := parseWindow(WindowDTO{
		Start: r.URL.Query().Get("start"),
		End:   r.URL.Query().Get("end"),
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid window", err)
		return
	}

	av, err := h.Rooms.Availability(r.Context(), number, win)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAvailabilityDTO(*av))
}

// =============================================================================
// BLOOD BANK ENDPOINTS
// =============================================================================

// RegisterBag adds a donated bag to the inventory.
// POST /api/blood/bags
func (h *Handler) RegisterBag(w http.ResponseWriter, r *http.Request) {
	var req RegisterBagRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	collected := time.Now()
	if req.CollectedAt != "" {
		t, err := time.Parse(time.RFC3339, req.CollectedAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid collected_at", err)
			return
		}
		collected = t
	}

	res, err := h.Blood.RegisterBag(r.Context(), bloodbank.RegisterBagInput{
		Serial: req.Serial,
		Group: bloodbank.Group{
			Type: bloodbank.BloodType(req.BloodType),
			Rh:   bloodbank.Rh(req.Rh),
		},
		CollectedAt: collected,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, "cannot register bag", err)
		return
	}
	writeJSON(w, http.StatusCreated, toResourceDTO(*res))
}

// ReserveBlood matches the earliest-expiring compatible bag and holds it.
// No available bag is a normal outcome: the patient waits.
// POST /api/blood/reserve
func (h *Handler) ReserveBlood(w http.ResponseWriter, r *http.Request) {
	var req ReserveBloodRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	group := bloodbank.Group{
		Type: bloodbank.BloodType(req.BloodType),
		Rh:   bloodbank.Rh(req.Rh),
	}
	if err := group.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid blood group", err)
		return
	}

	res, err := h.Blood.Reserve(r.Context(), reservation.RequesterID(req.Patient), group)
	if errors.Is(err, reservation.ErrNoCandidate) {
		writeJSON(w, http.StatusAccepted, map[string]string{
			"status": "waiting",
			"group":  group.String(),
		})
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReservationDTO(*res))
}

// UseBag consumes a held bag. The bag never returns to the pool.
// POST /api/blood/reservations/{id}/use
func (h *Handler) UseBag(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Blood.Use)
}

// ReleaseBag returns a held bag to the pool.
// POST /api/blood/reservations/{id}/release
func (h *Handler) ReleaseBag(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Blood.Release)
}

// BloodStats reports per-group inventory counts and the most needed group.
// GET /api/blood/stats
func (h *Handler) BloodStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Blood.Stats(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBloodStatsDTO(*stats))
}

// SweepExpiredBags retires out-of-date bags immediately.
// POST /api/blood/sweep
func (h *Handler) SweepExpiredBags(w http.ResponseWriter, r *http.Request) {
	retired, err := h.Blood.SweepExpired(r.Context(), time.Now())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	ids := make([]string, 0, len(retired))
	for _, id := range retired {
		ids = append(ids, string(id))
	}
	writeJSON(w, http.StatusOK, map[string]any{"retired": ids})
}

// =============================================================================
// DISPATCH ENDPOINTS
// =============================================================================

// RegisterAmbulance adds a vehicle to the fleet.
// POST /api/dispatch/ambulances
func (h *Handler) RegisterAmbulance(w http.ResponseWriter, r *http.Request) {
	var req RegisterAmbulanceRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	in := dispatch.RegisterAmbulanceInput{Plate: req.Plate}
	if req.LastMaintenance != "" {
		t, err := time.Parse(time.RFC3339, req.LastMaintenance)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid last_maintenance", err)
			return
		}
		in.LastMaintenance = t
	}

	res, err := h.Dispatch.RegisterAmbulance(r.Context(), in)
	if err != nil {
		writeError(w, http.StatusBadRequest, "cannot register ambulance", err)
		return
	}
	writeJSON(w, http.StatusCreated, toResourceDTO(*res))
}

// RegisterDriver adds a driver, optionally bound to one vehicle.
// POST /api/dispatch/drivers
func (h *Handler) RegisterDriver(w http.ResponseWriter, r *http.Request) {
	var req RegisterDriverRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	res, err := h.Dispatch.RegisterDriver(r.Context(), dispatch.RegisterDriverInput{
		ID:    req.ID,
		Name:  req.Name,
		Plate: req.Plate,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, "cannot register driver", err)
		return
	}
	writeJSON(w, http.StatusCreated, toResourceDTO(*res))
}

// DispatchRun assigns an ambulance and a compatible driver atomically.
// POST /api/dispatch/runs
func (h *Handler) DispatchRun(w http.ResponseWriter, r *http.Request) {
	var req DispatchRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	win, err := parseWindow(req.Window)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid window", err)
		return
	}

	run, err := h.Dispatch.Dispatch(r.Context(), dispatch.Request{
		Patient:  reservation.RequesterID(req.Patient),
		Plate:    req.Plate,
		DriverID: req.DriverID,
		Window:   win,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, RunDTO{
		Vehicle: toReservationDTO(*run.Vehicle),
		Driver:  toReservationDTO(*run.Driver),
	})
}

// CompleteRun finishes a run and frees vehicle and driver together.
// POST /api/dispatch/runs/{id}/complete
func (h *Handler) CompleteRun(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Dispatch.CompleteRun)
}

// CancelRun aborts a run and frees vehicle and driver together.
// POST /api/dispatch/runs/{id}/cancel
func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Dispatch.CancelRun)
}

// SweepMaintenance pulls maintenance-due ambulances out of service.
// POST /api/dispatch/maintenance/sweep
func (h *Handler) SweepMaintenance(w http.ResponseWriter, r *http.Request) {
	pulled, err := h.Dispatch.SweepMaintenance(r.Context(), time.Now())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	ids := make([]string, 0, len(pulled))
	for _, id := range pulled {
		ids = append(ids, string(id))
	}
	writeJSON(w, http.StatusOK, map[string]any{"out_of_service": ids})
}

// AmbulanceServiced returns a serviced ambulance to the fleet.
// POST /api/dispatch/ambulances/{plate}/serviced
func (h *Handler) AmbulanceServiced(w http.ResponseWriter, r *http.Request) {
	plate := chi.URLParam(r, "plate")

	if err := h.Dispatch.ReturnFromMaintenance(r.Context(), plate, time.Now()); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// DASHBOARD & BILLING ENDPOINTS
// =============================================================================

// GetDashboard returns the occupancy snapshot for a scope. An empty scope
// covers the whole installation.
// GET /api/dashboards?scope=cardiology
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	scope := r.URL.Query().Get("scope")

	snap, err := h.Engine.Projector.Snapshot(r.Context(), scope)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSnapshotDTO(*snap))
}

// ListCharges returns a requester's charge lines and open balance.
// GET /api/charges/{requester}
func (h *Handler) ListCharges(w http.ResponseWriter, r *http.Request) {
	requester := reservation.RequesterID(chi.URLParam(r, "requester"))

	lines := h.Billing.Charges(requester)
	dtos := make([]ChargeLineDTO, 0, len(lines))
	for _, line := range lines {
		dtos = append(dtos, toChargeLineDTO(line))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"charges":     dtos,
		"outstanding": h.Billing.Outstanding(requester).String(),
	})
}

// =============================================================================
// ADMIN ENDPOINTS
// =============================================================================

type resetter interface {
	Reset(ctx context.Context) error
}

// ResetDatabase wipes all data. Development only.
// POST /api/reset
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	rs, ok := h.Store.(resetter)
	if !ok {
		writeError(w, http.StatusNotImplemented, "store does not support reset", nil)
		return
	}
	if err := rs.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "reset failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}
