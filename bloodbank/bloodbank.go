/*
Package bloodbank manages the blood bag inventory on top of the
reservation engine.

PURPOSE:
  Blood bags are consumable, singleton resources: a bag is matched by
  blood type and Rh factor, held open-ended for a patient, and either
  used (consumed forever) or released back to the pool. Bags spoil 35
  days after collection; a background sweep retires expired bags.

MATCHING:
  Reserve picks the compatible bag expiring SOONEST - the engine ranks
  consumables earliest-expiry-first, so inventory rotates and the least
  stock is wasted. There is no partial matching across types: an A+
  request only ever gets an A+ bag. No compatible bag in stock means the
  request waits (ErrNoCandidate); nothing is promised.

LIFECYCLE OF A BAG:
  registered -> (reserved <-> released)* -> used | expired

  Used and expired are both modeled as OutOfService: the bag resource
  survives for audit, but never re-enters the candidate pool.

SEE ALSO:
  - reservation/engine.go: Earliest-expiry-first candidate ordering
*/
package bloodbank

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/reservation-engine/reservation"
)

// ShelfLife is how long a bag stays usable after collection.
const ShelfLife = 35 * 24 * time.Hour

// =============================================================================
// BLOOD TYPES
// =============================================================================

type BloodType string

const (
	TypeA  BloodType = "A"
	TypeB  BloodType = "B"
	TypeAB BloodType = "AB"
	TypeO  BloodType = "O"
)

type Rh string

const (
	RhPositive Rh = "+"
	RhNegative Rh = "-"
)

// Group is a full blood group: type plus Rh factor.
type Group struct {
	Type BloodType
	Rh   Rh
}

func (g Group) String() string { return string(g.Type) + string(g.Rh) }

func (g Group) Validate() error {
	switch g.Type {
	case TypeA, TypeB, TypeAB, TypeO:
	default:
		return fmt.Errorf("unknown blood type %q", g.Type)
	}
	switch g.Rh {
	case RhPositive, RhNegative:
	default:
		return fmt.Errorf("unknown rh factor %q", g.Rh)
	}
	return nil
}

// Groups lists every blood group in canonical order.
var Groups = []Group{
	{TypeA, RhPositive}, {TypeA, RhNegative},
	{TypeB, RhPositive}, {TypeB, RhNegative},
	{TypeAB, RhPositive}, {TypeAB, RhNegative},
	{TypeO, RhPositive}, {TypeO, RhNegative},
}

// Attribute keys stored on bag resources.
const (
	attrBloodType = "blood_type"
	attrRh        = "rh"
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

// RegisterBagInput describes a collected bag.
type RegisterBagInput struct {
	Serial      string
	Group       Group
	CollectedAt time.Time
}

// RegisterBag adds a bag to the inventory. Its expiry is fixed at
// collection time plus the shelf life.
func (svc *Service) RegisterBag(ctx context.Context, in RegisterBagInput) (*reservation.Resource, error) {
	if in.Serial == "" {
		return nil, fmt.Errorf("bag serial is required")
	}
	if err := in.Group.Validate(); err != nil {
		return nil, err
	}
	if in.CollectedAt.IsZero() {
		return nil, fmt.Errorf("collection time is required")
	}

	expiry := in.CollectedAt.Add(ShelfLife)
	return svc.Engine.Registry.Create(ctx, reservation.CreateResourceInput{
		ID:        BagID(in.Serial),
		Kind:      reservation.KindBag,
		ExpiresAt: &expiry,
		UnitName:  "bag",
		Attrs: map[string]string{
			attrBloodType: string(in.Group.Type),
			attrRh:        string(in.Group.Rh),
		},
	})
}

// BagID maps a bag serial to its resource id.
func BagID(serial string) reservation.ResourceID {
	return reservation.ResourceID("bag/" + serial)
}

// Reserve holds the soonest-expiring compatible bag for the patient,
// open-ended until Use or Release. No compatible bag -> ErrNoCandidate.
func (svc *Service) Reserve(ctx context.Context, patient reservation.RequesterID, g Group) (*reservation.Reservation, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return svc.Engine.Allocate(ctx, patient, reservation.Criteria{
		Kind: reservation.KindBag,
		Attrs: map[string]string{
			attrBloodType: string(g.Type),
			attrRh:        string(g.Rh),
		},
	}, reservation.OpenWindow(time.Now().UTC()))
}

// Use consumes a reserved bag: the reservation completes and the bag is
// permanently retired from the pool.
func (svc *Service) Use(ctx context.Context, id reservation.ReservationID) (*reservation.Reservation, error) {
	res, err := svc.Engine.Complete(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := svc.Engine.Registry.SetOutOfService(ctx, res.ResourceID, true); err != nil {
		return res, fmt.Errorf("bag used but not retired: %w", err)
	}
	return res, nil
}

// Release returns a reserved bag to the pool.
func (svc *Service) Release(ctx context.Context, id reservation.ReservationID) (*reservation.Reservation, error) {
	return svc.Engine.Cancel(ctx, id)
}

// SweepExpired retires every bag whose expiry has passed. It returns the
// retired bag ids. Bags reserved at expiry keep their reservation; they
// just never match again.
func (svc *Service) SweepExpired(ctx context.Context, now time.Time) ([]reservation.ResourceID, error) {
	bags, err := svc.Engine.Registry.List(ctx, reservation.ResourceFilter{
		Kind:          reservation.KindBag,
		InServiceOnly: true,
	})
	if err != nil {
		return nil, err
	}

	var retired []reservation.ResourceID
	for _, bag := range bags {
		if bag.ExpiresAt == nil || bag.ExpiresAt.After(now) {
			continue
		}
		if err := svc.Engine.Registry.SetOutOfService(ctx, bag.ID, true); err != nil {
			return retired, err
		}
		retired = append(retired, bag.ID)
	}
	return retired, nil
}

// =============================================================================
// INVENTORY STATS
// =============================================================================

// Stats is the blood bank dashboard: usable stock per group, each
// group's share of the total, and the group most in need of donations.
type Stats struct {
	TakenAt    time.Time
	Total      int
	ByGroup    map[string]int
	Percent    map[string]float64
	MostNeeded Group
}

// Stats recounts the usable inventory: in-service, unexpired bags not
// currently held by a blocking reservation. MostNeeded is the group with
// the least stock, ties broken in canonical group order.
func (svc *Service) Stats(ctx context.Context) (*Stats, error) {
	now := time.Now().UTC()
	bags, err := svc.Engine.Registry.List(ctx, reservation.ResourceFilter{
		Kind:          reservation.KindBag,
		InServiceOnly: true,
	})
	if err != nil {
		return nil, err
	}

	st := &Stats{
		TakenAt: now,
		ByGroup: make(map[string]int, len(Groups)),
		Percent: make(map[string]float64, len(Groups)),
	}
	for _, g := range Groups {
		st.ByGroup[g.String()] = 0
	}

	asOf := reservation.InstantWindow(now)
	for _, bag := range bags {
		if bag.ExpiresAt != nil && !bag.ExpiresAt.After(now) {
			continue
		}
		av, err := svc.Engine.Resolver.Resolve(ctx, bag.ID, asOf)
		if err != nil {
			return nil, err
		}
		if av.UnitsAvailable == 0 {
			continue
		}
		key := bag.Attr(attrBloodType) + bag.Attr(attrRh)
		st.ByGroup[key]++
		st.Total++
	}

	st.MostNeeded = Groups[0]
	least := -1
	for _, g := range Groups {
		n := st.ByGroup[g.String()]
		if st.Total > 0 {
			st.Percent[g.String()] = float64(n) / float64(st.Total) * 100
		} else {
			st.Percent[g.String()] = 0
		}
		if least == -1 || n < least {
			least = n
			st.MostNeeded = g
		}
	}
	return st, nil
}
