/*
Package dispatch handles ambulance and driver allocation on top of the
reservation engine.

PURPOSE:
  A dispatch needs two resources committed together: a vehicle and a
  driver bound to that vehicle. Either both are reserved under one group
  or neither is - a half-dispatched ambulance is worse than no ambulance.

BINDING:
  Each driver carries a vehicle_id attribute naming the ambulance they
  are licensed on. The engine's paired allocation honors it: an
  explicitly requested driver bound to a different vehicle fails with
  ErrIncompatiblePair instead of being silently reassigned.

MAINTENANCE:
  A vehicle is due for service MaintenanceInterval after its last
  maintenance. The sweep takes due vehicles out of service; ReturnFromMaintenance
  records the service and puts them back.

USAGE:
  svc := dispatch.NewService(engine)
  run, err := svc.Dispatch(ctx, dispatch.Request{Patient: "patient-7"})
  ...
  svc.CompleteRun(ctx, run.Vehicle.ID)   // frees vehicle AND driver
*/
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/reservation-engine/reservation"
)

// MaintenanceInterval is how long a vehicle may run after its last
// maintenance before it is pulled from the fleet.
const MaintenanceInterval = 6 * 30 * 24 * time.Hour

// Attribute keys stored on fleet resources.
const (
	attrPlate           = "license_plate"
	attrVehicleID       = "vehicle_id"
	attrDriverName      = "driver_name"
	attrLastMaintenance = "last_maintenance"
)

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	Engine *reservation.Engine
}

func NewService(engine *reservation.Engine) *Service {
	return &Service{Engine: engine}
}

// RegisterAmbulanceInput describes a fleet vehicle.
type RegisterAmbulanceInput struct {
	Plate           string
	LastMaintenance time.Time
}

// RegisterAmbulance adds a vehicle to the fleet.
func (svc *Service) RegisterAmbulance(ctx context.Context, in RegisterAmbulanceInput) (*reservation.Resource, error) {
	if in.Plate == "" {
		return nil, fmt.Errorf("license plate is required")
	}
	last := in.LastMaintenance
	if last.IsZero() {
		last = time.Now().UTC()
	}
	return svc.Engine.Registry.Create(ctx, reservation.CreateResourceInput{
		ID:   AmbulanceID(in.Plate),
		Kind: reservation.KindVehicle,
		Attrs: map[string]string{
			attrPlate:           in.Plate,
			attrLastMaintenance: last.Format(time.RFC3339),
		},
	})
}

// RegisterDriverInput describes a driver and the vehicle they drive.
type RegisterDriverInput struct {
	ID   string
	Name string

	// Plate of the bound vehicle. Empty means the driver can take any
	// vehicle.
	Plate string
}

// RegisterDriver adds a driver to the fleet.
func (svc *Service) RegisterDriver(ctx context.Context, in RegisterDriverInput) (*reservation.Resource, error) {
	if in.ID == "" {
		return nil, fmt.Errorf("driver id is required")
	}
	attrs := map[string]string{attrDriverName: in.Name}
	if in.Plate != "" {
		attrs[attrVehicleID] = string(AmbulanceID(in.Plate))
	}
	return svc.Engine.Registry.Create(ctx, reservation.CreateResourceInput{
		ID:    DriverID(in.ID),
		Kind:  reservation.KindCrew,
		Attrs: attrs,
	})
}

func AmbulanceID(plate string) reservation.ResourceID {
	return reservation.ResourceID("ambulance/" + plate)
}

func DriverID(id string) reservation.ResourceID {
	return reservation.ResourceID("driver/" + id)
}

// =============================================================================
// DISPATCH
// =============================================================================

// Request describes a dispatch. Empty Plate/DriverID mean "any"; a
// zero Window means an open-ended run released by CompleteRun.
type Request struct {
	Patient  reservation.RequesterID
	Plate    string
	DriverID string
	Window   reservation.Window
}

// Run is a committed dispatch: vehicle and driver reservations sharing
// one group.
type Run struct {
	Vehicle *reservation.Reservation
	Driver  *reservation.Reservation
}

// Dispatch reserves a vehicle and a compatible driver atomically.
func (svc *Service) Dispatch(ctx context.Context, req Request) (*Run, error) {
	w := req.Window
	if w.Start.IsZero() {
		w = reservation.OpenWindow(time.Now().UTC())
	}

	pc := reservation.PairCriteria{
		Primary:   reservation.Criteria{Kind: reservation.KindVehicle},
		Secondary: reservation.Criteria{Kind: reservation.KindCrew},
		BindAttr:  attrVehicleID,
	}
	if req.Plate != "" {
		pc.Primary.ResourceID = AmbulanceID(req.Plate)
	}
	if req.DriverID != "" {
		pc.Secondary.ResourceID = DriverID(req.DriverID)
	}

	vehicle, driver, err := svc.Engine.AllocatePair(ctx, req.Patient, pc, w)
	if err != nil {
		return nil, err
	}
	return &Run{Vehicle: vehicle, Driver: driver}, nil
}

// CompleteRun finishes a dispatch. Completing either half releases the
// whole group, so the driver is freed with the vehicle.
func (svc *Service) CompleteRun(ctx context.Context, id reservation.ReservationID) (*reservation.Reservation, error) {
	return svc.Engine.Complete(ctx, id)
}

// CancelRun aborts a dispatch, releasing both halves.
func (svc *Service) CancelRun(ctx context.Context, id reservation.ReservationID) (*reservation.Reservation, error) {
	return svc.Engine.Cancel(ctx, id)
}

// =============================================================================
// MAINTENANCE
// =============================================================================

// MaintenanceDue returns when the vehicle must next be serviced.
func MaintenanceDue(res reservation.Resource) (time.Time, error) {
	raw := res.Attr(attrLastMaintenance)
	if raw == "" {
		return time.Time{}, fmt.Errorf("vehicle %s has no maintenance record", res.ID)
	}
	last, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("vehicle %s maintenance record: %w", res.ID, err)
	}
	return last.Add(MaintenanceInterval), nil
}

// SweepMaintenance pulls every overdue vehicle from the fleet and
// returns their ids. In-flight dispatches finish normally; the vehicle
// just takes no new runs.
func (svc *Service) SweepMaintenance(ctx context.Context, now time.Time) ([]reservation.ResourceID, error) {
	fleet, err := svc.Engine.Registry.List(ctx, reservation.ResourceFilter{
		Kind:          reservation.KindVehicle,
		InServiceOnly: true,
	})
	if err != nil {
		return nil, err
	}

	var pulled []reservation.ResourceID
	for _, v := range fleet {
		due, err := MaintenanceDue(v)
		if err != nil {
			return pulled, err
		}
		if due.After(now) {
			continue
		}
		if err := svc.Engine.Registry.SetOutOfService(ctx, v.ID, true); err != nil {
			return pulled, err
		}
		pulled = append(pulled, v.ID)
	}
	return pulled, nil
}

// ReturnFromMaintenance records a completed service and puts the vehicle
// back in the fleet.
func (svc *Service) ReturnFromMaintenance(ctx context.Context, plate string, servicedAt time.Time) error {
	id := AmbulanceID(plate)
	res, err := svc.Engine.Registry.Get(ctx, id)
	if err != nil {
		return err
	}

	attrs := make(map[string]string, len(res.Attrs))
	for k, v := range res.Attrs {
		attrs[k] = v
	}
	attrs[attrLastMaintenance] = servicedAt.UTC().Format(time.RFC3339)

	err = svc.Engine.Store.WithTx(ctx, func(s reservation.Store) error {
		updated := *res
		updated.Attrs = attrs
		updated.OutOfService = false
		return s.SaveResource(ctx, updated)
	})
	return err
}
