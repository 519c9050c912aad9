/*
scenarios.go - Demo scenario loading

PURPOSE:
  Seeds the store with realistic demo data so the API can be explored
  without hand-crafting every resource. Each scenario resets the store
  first, then registers resources through the same services the real
  endpoints use.

SCENARIOS:
  hospital      Full installation: rooms across two departments, a
                stocked blood bank, and an ambulance fleet with drivers.
  blood-drive   Blood bank only, including bags close to expiry so the
                sweeper has something to do.
  night-shift   Small fleet with one ambulance overdue for maintenance
                and a driver bound to a specific vehicle.

SEE ALSO:
  - server.go: /api/scenarios routes
  - handlers.go: Handler the scenarios seed through
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/reservation-engine/bloodbank"
	"github.com/warp/reservation-engine/dispatch"
	"github.com/warp/reservation-engine/rooms"
)

// ScenarioDTO describes one loadable scenario.
type ScenarioDTO struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

var scenarios = []ScenarioDTO{
	{
		Name:        "hospital",
		Description: "Rooms in two departments, stocked blood bank, ambulance fleet",
	},
	{
		Name:        "blood-drive",
		Description: "Blood bank inventory with bags approaching expiry",
	},
	{
		Name:        "night-shift",
		Description: "Small fleet with a maintenance-due ambulance and a bound driver",
	},
}

// ListScenarios returns the available demo scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario resets the store and seeds the named scenario.
// POST /api/scenarios/{name}
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	ctx := r.Context()

	if rs, ok := h.Store.(resetter); ok {
		if err := rs.Reset(ctx); err != nil {
			writeError(w, http.StatusInternalServerError, "reset failed", err)
			return
		}
	}

	var err error
	switch name {
	case "hospital":
		err = h.loadHospitalScenario(ctx)
	case "blood-drive":
		err = h.loadBloodDriveScenario(ctx)
	case "night-shift":
		err = h.loadNightShiftScenario(ctx)
	default:
		writeError(w, http.StatusNotFound, "unknown scenario", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "scenario load failed", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"loaded": name})
}

// loadHospitalScenario seeds a full installation: cardiology and
// general-medicine rooms, eight blood groups in stock, and a two-vehicle
// fleet with three drivers.
func (h *Handler) loadHospitalScenario(ctx context.Context) error {
	roomSeed := []rooms.RegisterRoomInput{
		{Number: "101", Type: rooms.TypeSingle, Department: "cardiology"},
		{Number: "102", Type: rooms.TypeDouble, Department: "cardiology"},
		{Number: "201", Type: rooms.TypeWard, Department: "general"},
		{Number: "202", Type: rooms.TypeDouble, Department: "general", Billing: rooms.BillHourly},
	}
	for _, in := range roomSeed {
		if _, err := h.Rooms.RegisterRoom(ctx, in); err != nil {
			return fmt.Errorf("seed room %s: %w", in.Number, err)
		}
	}

	// Two bags per group, staggered donation dates.
	now := time.Now()
	serial := 0
	for _, g := range bloodbank.Groups {
		for i := 0; i < 2; i++ {
			serial++
			_, err := h.Blood.RegisterBag(ctx, bloodbank.RegisterBagInput{
				Serial:      fmt.Sprintf("BAG-%03d", serial),
				Group:       g,
				CollectedAt: now.AddDate(0, 0, -(serial % 20)),
			})
			if err != nil {
				return fmt.Errorf("seed bag %d: %w", serial, err)
			}
		}
	}

	fleet := []dispatch.RegisterAmbulanceInput{
		{Plate: "AMB-001", LastMaintenance: now.AddDate(0, -1, 0)},
		{Plate: "AMB-002", LastMaintenance: now.AddDate(0, -4, 0)},
	}
	for _, in := range fleet {
		if _, err := h.Dispatch.RegisterAmbulance(ctx, in); err != nil {
			return fmt.Errorf("seed ambulance %s: %w", in.Plate, err)
		}
	}

	drivers := []dispatch.RegisterDriverInput{
		{ID: "d-ana", Name: "Ana Petrova"},
		{ID: "d-leo", Name: "Leo Martins"},
		{ID: "d-kim", Name: "Kim Osei", Plate: "AMB-002"},
	}
	for _, in := range drivers {
		if _, err := h.Dispatch.RegisterDriver(ctx, in); err != nil {
			return fmt.Errorf("seed driver %s: %w", in.ID, err)
		}
	}

	// Warm the dashboards so a fresh load shows numbers immediately.
	if _, err := h.Engine.Projector.Refresh(ctx, ""); err != nil {
		return err
	}
	for _, dept := range []string{"cardiology", "general"} {
		if _, err := h.Engine.Projector.Refresh(ctx, dept); err != nil {
			return err
		}
	}
	return nil
}

// loadBloodDriveScenario seeds only the blood bank, with several bags a
// day or two from spoiling.
func (h *Handler) loadBloodDriveScenario(ctx context.Context) error {
	now := time.Now()
	seed := []struct {
		serial string
		group  bloodbank.Group
		age    time.Duration
	}{
		{"FRESH-A", bloodbank.Group{Type: bloodbank.TypeA, Rh: bloodbank.RhPositive}, 24 * time.Hour},
		{"FRESH-O", bloodbank.Group{Type: bloodbank.TypeO, Rh: bloodbank.RhNegative}, 48 * time.Hour},
		{"AGING-A", bloodbank.Group{Type: bloodbank.TypeA, Rh: bloodbank.RhPositive}, bloodbank.ShelfLife - 36*time.Hour},
		{"AGING-B", bloodbank.Group{Type: bloodbank.TypeB, Rh: bloodbank.RhPositive}, bloodbank.ShelfLife - 12*time.Hour},
	}
	for _, s := range seed {
		_, err := h.Blood.RegisterBag(ctx, bloodbank.RegisterBagInput{
			Serial:      s.serial,
			Group:       s.group,
			CollectedAt: now.Add(-s.age),
		})
		if err != nil {
			return fmt.Errorf("seed bag %s: %w", s.serial, err)
		}
	}
	_, err := h.Engine.Projector.Refresh(ctx, "")
	return err
}

// loadNightShiftScenario seeds a fleet where AMB-OLD is past its
// maintenance interval. The first sweep pulls it out of service.
func (h *Handler) loadNightShiftScenario(ctx context.Context) error {
	now := time.Now()
	fleet := []dispatch.RegisterAmbulanceInput{
		{Plate: "AMB-OLD", LastMaintenance: now.Add(-dispatch.MaintenanceInterval - 24*time.Hour)},
		{Plate: "AMB-NEW", LastMaintenance: now.AddDate(0, -1, 0)},
	}
	for _, in := range fleet {
		if _, err := h.Dispatch.RegisterAmbulance(ctx, in); err != nil {
			return fmt.Errorf("seed ambulance %s: %w", in.Plate, err)
		}
	}

	drivers := []dispatch.RegisterDriverInput{
		{ID: "d-night", Name: "Night Driver", Plate: "AMB-NEW"},
		{ID: "d-float", Name: "Float Driver"},
	}
	for _, in := range drivers {
		if _, err := h.Dispatch.RegisterDriver(ctx, in); err != nil {
			return fmt.Errorf("seed driver %s: %w", in.ID, err)
		}
	}

	_, err := h.Engine.Projector.Refresh(ctx, "")
	return err
}
