/*
Package rooms implements ward and room booking on top of the reservation
engine.

PURPOSE:
  Rooms are multi-unit resources: a room's type fixes how many beds it
  exposes, and each bed is booked individually. This package maps room
  types to capacities, layers patient-facing booking operations over the
  engine, and prices stays per hour or per day.

ROOM TYPES:
  single  1 bed
  double  2 beds
  ward    7 beds

  A room is "occupied" while some beds are taken and "unavailable" once
  every bed is - the engine's tiered availability does that for free
  because each bed is its own reservation unit.

BOOKING LIFECYCLE:
  Book      -> confirmed reservation on a free bed
  Admit     -> active (the patient is physically in the bed)
  Discharge -> completed, the bed frees immediately
  Cancel    -> cancelled

USAGE:
  svc := rooms.NewService(engine)
  svc.RegisterRoom(ctx, rooms.RegisterRoomInput{
      Number: "101", Type: rooms.TypeDouble, Department: "cardiology",
  })
  booking, err := svc.Book(ctx, "patient-7", "cardiology", window)
*/
package rooms

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/reservation-engine/reservation"
)

// =============================================================================
// ROOM TYPES
// =============================================================================

type RoomType string

const (
	TypeSingle RoomType = "single"
	TypeDouble RoomType = "double"
	TypeWard   RoomType = "ward"
)

// Capacity returns the number of beds a room of this type exposes.
func (t RoomType) Capacity() (int, error) {
	switch t {
	case TypeSingle:
		return 1, nil
	case TypeDouble:
		return 2, nil
	case TypeWard:
		return 7, nil
	default:
		return 0, fmt.Errorf("unknown room type %q", t)
	}
}

// BillingMode selects how a stay is priced.
type BillingMode string

const (
	BillHourly BillingMode = "hourly"
	BillDaily  BillingMode = "daily"
)

// Attribute keys stored on room resources.
const (
	attrDepartment   = "department"
	attrRoomType     = "room_type"
	attrRoomNumber   = "room_number"
	attrBillingMode  = "billing"
	attrPricePerHour = "price_per_hour"
	attrPricePerDay  = "price_per_day"
)

// Default rates, applied when a room carries no explicit price.
var (
	DefaultPricePerHour = decimal.NewFromInt(1)
	DefaultPricePerDay  = decimal.NewFromInt(15)
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

// RegisterRoomInput describes a new room.
type RegisterRoomInput struct {
	Number     string
	Type       RoomType
	Department string

	// Billing defaults to daily.
	Billing BillingMode

	// Zero-valued prices fall back to the defaults.
	PricePerHour decimal.Decimal
	PricePerDay  decimal.Decimal
}

// RegisterRoom registers a room, expanding its type into bed units.
func (svc *Service) RegisterRoom(ctx context.Context, in RegisterRoomInput) (*reservation.Resource, error) {
	capacity, err := in.Type.Capacity()
	if err != nil {
		return nil, err
	}
	if in.Number == "" {
		return nil, fmt.Errorf("room number is required")
	}

	billing := in.Billing
	if billing == "" {
		billing = BillDaily
	}
	perHour := in.PricePerHour
	if perHour.IsZero() {
		perHour = DefaultPricePerHour
	}
	perDay := in.PricePerDay
	if perDay.IsZero() {
		perDay = DefaultPricePerDay
	}

	return svc.Engine.Registry.Create(ctx, reservation.CreateResourceInput{
		ID:       RoomID(in.Number),
		Kind:     reservation.KindRoom,
		Capacity: capacity,
		UnitName: "bed",
		Attrs: map[string]string{
			attrDepartment:   in.Department,
			attrRoomType:     string(in.Type),
			attrRoomNumber:   in.Number,
			attrBillingMode:  string(billing),
			attrPricePerHour: perHour.String(),
			attrPricePerDay:  perDay.String(),
		},
	})
}

// RoomID maps a room number to its resource id.
func RoomID(number string) reservation.ResourceID {
	return reservation.ResourceID("room/" + number)
}

// Book reserves a free bed in the department for the window. Any room
// with a free bed qualifies; rooms fill in id order.
func (svc *Service) Book(ctx context.Context, patient reservation.RequesterID, department string, w reservation.Window) (*reservation.Reservation, error) {
	attrs := map[string]string{}
	if department != "" {
		attrs[attrDepartment] = department
	}
	return svc.Engine.Allocate(ctx, patient, reservation.Criteria{
		Kind:  reservation.KindRoom,
		Attrs: attrs,
	}, w)
}

// BookRoom reserves a free bed in one specific room.
func (svc *Service) BookRoom(ctx context.Context, patient reservation.RequesterID, number string, w reservation.Window) (*reservation.Reservation, error) {
	return svc.Engine.Allocate(ctx, patient, reservation.Criteria{
		Kind:       reservation.KindRoom,
		ResourceID: RoomID(number),
	}, w)
}

// Admit marks the patient as physically in the bed.
func (svc *Service) Admit(ctx context.Context, id reservation.ReservationID) (*reservation.Reservation, error) {
	return svc.Engine.Ledger.Transition(ctx, id, reservation.StateActive)
}

// Discharge completes the stay, freeing the bed immediately.
func (svc *Service) Discharge(ctx context.Context, id reservation.ReservationID) (*reservation.Reservation, error) {
	return svc.Engine.Complete(ctx, id)
}

// Cancel cancels a booking.
func (svc *Service) Cancel(ctx context.Context, id reservation.ReservationID) (*reservation.Reservation, error) {
	return svc.Engine.Cancel(ctx, id)
}

// Availability answers one room's derived state for a window.
func (svc *Service) Availability(ctx context.Context, number string, w reservation.Window) (*reservation.Availability, error) {
	return svc.Engine.Availability(ctx, RoomID(number), w)
}

// =============================================================================
// PRICING
// =============================================================================

// Pricing prices room stays per the room's billing mode: hourly stays at
// price_per_hour x fractional hours, daily stays at price_per_day x whole
// days with any partial day rounded up. Non-room resources are not quoted.
type Pricing struct{}

var _ reservation.PricingStrategy = Pricing{}

func (Pricing) Quote(res reservation.Resource, w reservation.Window) (decimal.Decimal, decimal.Decimal, bool) {
	if res.Kind != reservation.KindRoom {
		return decimal.Zero, decimal.Zero, false
	}

	if BillingMode(res.Attr(attrBillingMode)) == BillHourly {
		hours := w.BillableHours()
		return hours, hours.Mul(rate(res, attrPricePerHour, DefaultPricePerHour)), true
	}
	days := decimal.NewFromInt(int64(w.BillableDays()))
	return days, days.Mul(rate(res, attrPricePerDay, DefaultPricePerDay)), true
}

func rate(res reservation.Resource, key string, fallback decimal.Decimal) decimal.Decimal {
	raw := res.Attr(key)
	if raw == "" {
		return fallback
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return fallback
	}
	return d
}
