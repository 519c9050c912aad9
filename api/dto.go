/*
dto.go - Data Transfer Objects for the REST API

PURPOSE:
  Defines request/response shapes for JSON serialization.
  Keeps API contracts separate from domain types so the wire format can
  evolve without touching the engine.

CONVENTIONS:
  - *DTO suffix for responses
  - *Request suffix for request bodies
  - Timestamps as RFC3339 strings; open-ended windows omit "end"
  - Money and quantities as decimal strings, never floats

SEE ALSO:
  - handlers.go: Uses these for request/response handling
  - reservation/types.go: Domain types these map to
*/
package api

import (
	"time"

	"github.com/warp/reservation-engine/billing"
	"github.com/warp/reservation-engine/bloodbank"
	"github.com/warp/reservation-engine/reservation"
)

// =============================================================================
// COMMON
// =============================================================================

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// WindowDTO carries a half-open [start, end) interval. A missing end means
// the hold is open-ended.
type WindowDTO struct {
	Start string `json:"start"`
	End   string `json:"end,omitempty"`
}

func toWindowDTO(w reservation.Window) WindowDTO {
	dto := WindowDTO{Start: w.Start.Format(time.RFC3339)}
	if !w.End.IsZero() {
		dto.End = w.End.Format(time.RFC3339)
	}
	return dto
}

// parseWindow builds a domain window from a DTO. An empty end yields an
// open-ended hold; an empty start defaults to now.
func parseWindow(dto WindowDTO) (reservation.Window, error) {
	start := time.Now()
	if dto.Start != "" {
		t, err := time.Parse(time.RFC3339, dto.Start)
		if err != nil {
			return reservation.Window{}, err
		}
		start = t
	}
	if dto.End == "" {
		return reservation.OpenWindow(start), nil
	}
	end, err := time.Parse(time.RFC3339, dto.End)
	if err != nil {
		return reservation.Window{}, err
	}
	return reservation.Window{Start: start, End: end}, nil
}

// =============================================================================
// RESOURCES & RESERVATIONS
// =============================================================================

type ResourceDTO struct {
	ID           string            `json:"id"`
	Kind         string            `json:"kind"`
	Capacity     int               `json:"capacity"`
	Attrs        map[string]string `json:"attrs,omitempty"`
	ExpiresAt    string            `json:"expires_at,omitempty"`
	OutOfService bool              `json:"out_of_service"`
	CreatedAt    string            `json:"created_at"`
}

func toResourceDTO(res reservation.Resource) ResourceDTO {
	dto := ResourceDTO{
		ID:           string(res.ID),
		Kind:         string(res.Kind),
		Capacity:     res.Capacity,
		Attrs:        res.Attrs,
		OutOfService: res.OutOfService,
		CreatedAt:    res.CreatedAt.Format(time.RFC3339),
	}
	if res.ExpiresAt != nil {
		dto.ExpiresAt = res.ExpiresAt.Format(time.RFC3339)
	}
	return dto
}

type ReservationDTO struct {
	ID          string    `json:"id"`
	RequesterID string    `json:"requester_id"`
	ResourceID  string    `json:"resource_id"`
	UnitID      string    `json:"unit_id"`
	GroupID     string    `json:"group_id,omitempty"`
	Window      WindowDTO `json:"window"`
	State       string    `json:"state"`
	CreatedAt   string    `json:"created_at"`
	UpdatedAt   string    `json:"updated_at"`
}

func toReservationDTO(res reservation.Reservation) ReservationDTO {
	return ReservationDTO{
		ID:          string(res.ID),
		RequesterID: string(res.RequesterID),
		ResourceID:  string(res.ResourceID),
		UnitID:      string(res.UnitID),
		GroupID:     string(res.GroupID),
		Window:      toWindowDTO(res.Window),
		State:       string(res.State),
		CreatedAt:   res.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   res.UpdatedAt.Format(time.RFC3339),
	}
}

type AvailabilityDTO struct {
	ResourceID     string `json:"resource_id"`
	State          string `json:"state"`
	UnitsAvailable int    `json:"units_available"`
	UnitsTotal     int    `json:"units_total"`
}

func toAvailabilityDTO(av reservation.Availability) AvailabilityDTO {
	return AvailabilityDTO{
		ResourceID:     string(av.ResourceID),
		State:          string(av.State),
		UnitsAvailable: av.UnitsAvailable,
		UnitsTotal:     av.UnitsTotal,
	}
}

type SnapshotDTO struct {
	Scope               string         `json:"scope"`
	TakenAt             string         `json:"taken_at"`
	ResourcesTotal      int            `json:"resources_total"`
	ResourcesByState    map[string]int `json:"resources_by_state"`
	UnitsTotal          int            `json:"units_total"`
	UnitsOccupied       int            `json:"units_occupied"`
	ReservationsByState map[string]int `json:"reservations_by_state"`
}

func toSnapshotDTO(s reservation.Snapshot) SnapshotDTO {
	dto := SnapshotDTO{
		Scope:               s.Scope,
		TakenAt:             s.TakenAt.Format(time.RFC3339),
		ResourcesTotal:      s.ResourcesTotal,
		ResourcesByState:    map[string]int{},
		UnitsTotal:          s.UnitsTotal,
		UnitsOccupied:       s.UnitsOccupied,
		ReservationsByState: map[string]int{},
	}
	for k, v := range s.ResourcesByState {
		dto.ResourcesByState[string(k)] = v
	}
	for k, v := range s.ReservationsByState {
		dto.ReservationsByState[string(k)] = v
	}
	return dto
}

// =============================================================================
// ROOMS
// =============================================================================

type CreateRoomRequest struct {
	Number       string `json:"number"`
	Type         string `json:"type"`
	Department   string `json:"department"`
	Billing      string `json:"billing,omitempty"`
	PricePerHour string `json:"price_per_hour,omitempty"`
	PricePerDay  string `json:"price_per_day,omitempty"`
}

type BookRoomRequest struct {
	Patient    string    `json:"patient"`
	Department string    `json:"department,omitempty"`
	Number     string    `json:"number,omitempty"`
	Window     WindowDTO `json:"window"`
}

// =============================================================================
// BLOOD BANK
// =============================================================================

type RegisterBagRequest struct {
	Serial      string `json:"serial"`
	BloodType   string `json:"blood_type"`
	Rh          string `json:"rh"`
	CollectedAt string `json:"collected_at,omitempty"`
}

type ReserveBloodRequest struct {
	Patient   string `json:"patient"`
	BloodType string `json:"blood_type"`
	Rh        string `json:"rh"`
}

type BloodStatsDTO struct {
	TakenAt    string             `json:"taken_at"`
	Total      int                `json:"total"`
	ByGroup    map[string]int     `json:"by_group"`
	Percent    map[string]float64 `json:"percent"`
	MostNeeded string             `json:"most_needed"`
}

func toBloodStatsDTO(s bloodbank.Stats) BloodStatsDTO {
	return BloodStatsDTO{
		TakenAt:    s.TakenAt.Format(time.RFC3339),
		Total:      s.Total,
		ByGroup:    s.ByGroup,
		Percent:    s.Percent,
		MostNeeded: s.MostNeeded.String(),
	}
}

// =============================================================================
// DISPATCH
// =============================================================================

type RegisterAmbulanceRequest struct {
	Plate           string `json:"plate"`
	LastMaintenance string `json:"last_maintenance,omitempty"`
}

type RegisterDriverRequest struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Plate string `json:"plate,omitempty"`
}

type DispatchRequest struct {
	Patient  string    `json:"patient"`
	Plate    string    `json:"plate,omitempty"`
	DriverID string    `json:"driver_id,omitempty"`
	Window   WindowDTO `json:"window,omitempty"`
}

type RunDTO struct {
	Vehicle ReservationDTO `json:"vehicle"`
	Driver  ReservationDTO `json:"driver"`
}

// =============================================================================
// BILLING
// =============================================================================

type ChargeLineDTO struct {
	ReservationID string `json:"reservation_id"`
	RequesterID   string `json:"requester_id"`
	ResourceID    string `json:"resource_id"`
	Units         string `json:"units"`
	Amount        string `json:"amount"`
	Status        string `json:"status"`
	UpdatedAt     string `json:"updated_at"`
}

func toChargeLineDTO(c billing.ChargeLine) ChargeLineDTO {
	return ChargeLineDTO{
		ReservationID: string(c.ReservationID),
		RequesterID:   string(c.RequesterID),
		ResourceID:    string(c.ResourceID),
		Units:         c.Units.String(),
		Amount:        c.Amount.String(),
		Status:        string(c.Status),
		UpdatedAt:     c.UpdatedAt.Format(time.RFC3339),
	}
}
