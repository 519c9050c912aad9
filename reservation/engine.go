/*
engine.go - Candidate selection and atomic allocation

PURPOSE:
  The Allocation Engine is the write path of the system. Given a requester,
  selection criteria, and a window, it picks a concrete unit, commits a
  confirmed reservation, refreshes the dashboard, and emits a domain event.

ALLOCATION FLOW:
  1. Query the registry for in-service resources matching the criteria
  2. Rank candidates deterministically:
       consumables        (expiry asc, id asc)   use the oldest bag first
       everything else    (id asc)
  3. Inside ONE store transaction, take the first unit with no overlapping
     blocking reservation and insert the confirmed reservation
  4. After commit: refresh the affected dashboard scopes, publish the event

  No candidate free for the window -> ErrNoCandidate, nothing committed.
  Lost a race at commit -> ErrConflict, nothing committed. The engine
  never retries; the caller resubmits with fresh availability data.

PAIRED ALLOCATION:
  AllocatePair commits two reservations (e.g. ambulance + driver) under a
  shared group id in one transaction. A pinned secondary that is bound to
  a different primary fails with ErrIncompatiblePair - the engine does not
  silently reassign. Either both parts commit or neither does.

RELEASE:
  Complete and Cancel move the whole group to a terminal state atomically.
  The freed units are immediately re-evaluable by the resolver - there is
  no stored status to flip back.

SEE ALSO:
  - ledger.go: The lifecycle and the exclusivity check
  - projector.go: The write-through dashboard refresh
*/
package reservation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// CRITERIA
// =============================================================================

// Criteria selects candidate resources for an allocation: "any available
// room in cardiology", "any A+ bag", "this specific driver".
type Criteria struct {
	Kind Kind

	// Attrs must all match the resource's static attributes.
	Attrs map[string]string

	// ResourceID pins the allocation to one specific resource.
	ResourceID ResourceID
}

// PairCriteria describes a two-part allocation committed atomically.
type PairCriteria struct {
	Primary   Criteria
	Secondary Criteria

	// BindAttr names the secondary attribute that binds it to a primary
	// resource (e.g. "vehicle_id" on a driver). A secondary bound to a
	// different primary than the chosen one is incompatible.
	BindAttr string
}

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	Store     TxStore
	Registry  *Registry
	Resolver  *Resolver
	Ledger    *Ledger
	Projector *Projector

	Events  Publisher
	Pricing PricingStrategy
}

// NewEngine wires an engine over a transactional store with the default
// no-op publisher and the documented no-pricing strategy. Callers inject
// their own via the exported fields.
func NewEngine(store TxStore) *Engine {
	registry := NewRegistry(store)
	resolver := NewResolver(store)
	return &Engine{
		Store:     store,
		Registry:  registry,
		Resolver:  resolver,
		Ledger:    NewLedger(store),
		Projector: NewProjector(store),
		Events:    NopPublisher{},
		Pricing:   NoPricing{},
	}
}

// =============================================================================
// ALLOCATE
// =============================================================================

// Allocate selects a unit matching the criteria, free for the window, and
// commits a confirmed reservation on it.
func (e *Engine) Allocate(ctx context.Context, requester RequesterID, c Criteria, w Window) (*Reservation, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}

	var created *Reservation
	err := e.Store.WithTx(ctx, func(s Store) error {
		res, err := e.allocateInTx(ctx, s, requester, c, w, "")
		if err != nil {
			return err
		}
		created = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	return created, e.afterCommit(ctx, EventReservationConfirmed, *created)
}

// AllocatePair commits a primary and a compatible secondary reservation
// as one atomic group. On any failure neither part is committed.
func (e *Engine) AllocatePair(ctx context.Context, requester RequesterID, pc PairCriteria, w Window) (*Reservation, *Reservation, error) {
	if err := w.Validate(); err != nil {
		return nil, nil, err
	}

	group := GroupID(uuid.NewString())
	var primary, secondary *Reservation

	err := e.Store.WithTx(ctx, func(s Store) error {
		p, err := e.allocateInTx(ctx, s, requester, pc.Primary, w, group)
		if err != nil {
			return err
		}

		var accept func(Resource) bool
		if pc.BindAttr != "" {
			if err := e.checkPairBinding(ctx, s, pc.Secondary, pc.BindAttr, p.ResourceID); err != nil {
				return err
			}
			// Unpinned secondaries only consider candidates bound to the
			// chosen primary or bound to nothing.
			accept = func(r Resource) bool {
				bound := r.Attr(pc.BindAttr)
				return bound == "" || bound == string(p.ResourceID)
			}
		}

		sr, err := e.allocateFiltered(ctx, s, requester, pc.Secondary, w, group, accept)
		if err != nil {
			return err
		}

		primary, secondary = p, sr
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	if err := e.afterCommit(ctx, EventReservationConfirmed, *primary); err != nil {
		return primary, secondary, err
	}
	return primary, secondary, e.afterCommit(ctx, EventReservationConfirmed, *secondary)
}

// allocateInTx is the shared candidate walk. It must run inside WithTx.
func (e *Engine) allocateInTx(ctx context.Context, s Store, requester RequesterID, c Criteria, w Window, group GroupID) (*Reservation, error) {
	return e.allocateFiltered(ctx, s, requester, c, w, group, nil)
}

func (e *Engine) allocateFiltered(ctx context.Context, s Store, requester RequesterID, c Criteria, w Window, group GroupID, accept func(Resource) bool) (*Reservation, error) {
	candidates, err := s.ListResources(ctx, ResourceFilter{
		Kind:          c.Kind,
		Attrs:         c.Attrs,
		InServiceOnly: true,
	})
	if err != nil {
		return nil, err
	}
	if c.ResourceID != "" {
		candidates = pinTo(candidates, c.ResourceID)
	}
	sortCandidates(candidates)

	now := time.Now().UTC()
	for _, cand := range candidates {
		if cand.ExpiresAt != nil && !cand.ExpiresAt.After(now) {
			continue
		}
		if accept != nil && !accept(cand) {
			continue
		}
		units, err := s.ListUnits(ctx, cand.ID)
		if err != nil {
			return nil, err
		}
		sort.Slice(units, func(i, j int) bool { return units[i].ID < units[j].ID })

		for _, u := range units {
			if err := checkNoOverlap(ctx, s, u.ID, w, ""); err != nil {
				if _, conflict := err.(*ConflictError); conflict {
					continue
				}
				return nil, err
			}
			return e.Ledger.createInTx(ctx, s, CreateInput{
				RequesterID:  requester,
				UnitID:       u.ID,
				Window:       w,
				GroupID:      group,
				InitialState: StateConfirmed,
			})
		}
	}
	return nil, fmt.Errorf("no %s matching criteria is free for %s: %w", c.Kind, w, ErrNoCandidate)
}

// checkPairBinding rejects a pinned secondary bound to a different primary.
func (e *Engine) checkPairBinding(ctx context.Context, s Store, sec Criteria, bindAttr string, primaryID ResourceID) error {
	if sec.ResourceID == "" {
		return nil
	}
	res, err := s.GetResource(ctx, sec.ResourceID)
	if err != nil {
		return err
	}
	if res == nil {
		return fmt.Errorf("resource %s: %w", sec.ResourceID, ErrResourceNotFound)
	}
	if bound := res.Attr(bindAttr); bound != "" && bound != string(primaryID) {
		return &IncompatiblePairError{
			PrimaryID:   primaryID,
			SecondaryID: res.ID,
			BoundTo:     ResourceID(bound),
		}
	}
	return nil
}

// =============================================================================
// LIFECYCLE OPERATIONS
// =============================================================================

// Confirm commits a draft reservation, re-validating exclusivity.
func (e *Engine) Confirm(ctx context.Context, id ReservationID) (*Reservation, error) {
	res, err := e.Ledger.Transition(ctx, id, StateConfirmed)
	if err != nil {
		return nil, err
	}
	return res, e.afterCommit(ctx, EventReservationConfirmed, *res)
}

// Complete releases the reservation - and its whole group - emitting one
// event per released reservation.
func (e *Engine) Complete(ctx context.Context, id ReservationID) (*Reservation, error) {
	return e.release(ctx, id, StateCompleted, EventReservationCompleted)
}

// Cancel releases the reservation and its whole group.
func (e *Engine) Cancel(ctx context.Context, id ReservationID) (*Reservation, error) {
	return e.release(ctx, id, StateCancelled, EventReservationCancelled)
}

// Reopen moves a terminal reservation back to draft. No event: nothing is
// held until the next confirm re-validates exclusivity.
func (e *Engine) Reopen(ctx context.Context, id ReservationID) (*Reservation, error) {
	return e.Ledger.Reopen(ctx, id)
}

// Availability answers the derived state of one resource for a window.
func (e *Engine) Availability(ctx context.Context, resourceID ResourceID, w Window) (*Availability, error) {
	return e.Resolver.Resolve(ctx, resourceID, w)
}

func (e *Engine) release(ctx context.Context, id ReservationID, to State, kind EventKind) (*Reservation, error) {
	var target *Reservation
	var released []Reservation

	err := e.Store.WithTx(ctx, func(s Store) error {
		res, err := e.Ledger.transitionInTx(ctx, s, id, to)
		if err != nil {
			return err
		}
		target = res
		released = append(released, *res)

		if res.GroupID == "" {
			return nil
		}
		mates, err := s.QueryReservations(ctx, ReservationQuery{GroupID: res.GroupID})
		if err != nil {
			return err
		}
		for _, m := range mates {
			if m.ID == res.ID || m.State.Terminal() {
				continue
			}
			freed, err := e.Ledger.transitionInTx(ctx, s, m.ID, to)
			if err != nil {
				return err
			}
			released = append(released, *freed)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, r := range released {
		if err := e.afterCommit(ctx, kind, r); err != nil {
			return target, err
		}
	}
	return target, nil
}

// =============================================================================
// WRITE-THROUGH DASHBOARD + EVENTS
// =============================================================================

// afterCommit runs the post-commit obligations of every successful
// mutation: recompute the affected dashboard scopes and publish the event.
// The mutation itself is already durable; a refresh failure is surfaced
// to the caller but cannot undo the commit.
func (e *Engine) afterCommit(ctx context.Context, kind EventKind, res Reservation) error {
	resource, err := e.Store.GetResource(ctx, res.ResourceID)
	if err != nil {
		return err
	}

	scopes := []string{""}
	if resource != nil {
		if dept := resource.Attr("department"); dept != "" {
			scopes = append(scopes, dept)
		}
	}
	for _, scope := range scopes {
		if _, err := e.Projector.Refresh(ctx, scope); err != nil {
			return fmt.Errorf("reservation %s committed, dashboard refresh failed: %w", res.ID, err)
		}
	}

	event := Event{
		Kind:          kind,
		At:            time.Now().UTC(),
		ReservationID: res.ID,
		GroupID:       res.GroupID,
		RequesterID:   res.RequesterID,
		ResourceID:    res.ResourceID,
		UnitID:        res.UnitID,
		Window:        res.Window,
	}
	if resource != nil {
		units, price, ok := e.Pricing.Quote(*resource, res.Window)
		event.Units = units
		if ok {
			event.Price = &price
		}
	}
	e.Events.Publish(ctx, event)
	return nil
}

// =============================================================================
// CANDIDATE ORDERING
// =============================================================================

// sortCandidates fixes the deterministic allocation order: consumables by
// (expiry asc, id asc) so the oldest bag is used first, everything else
// by id asc.
func sortCandidates(resources []Resource) {
	sort.Slice(resources, func(i, j int) bool {
		a, b := resources[i], resources[j]
		if a.Kind.Consumable() || b.Kind.Consumable() {
			switch {
			case a.ExpiresAt == nil && b.ExpiresAt != nil:
				return false
			case a.ExpiresAt != nil && b.ExpiresAt == nil:
				return true
			case a.ExpiresAt != nil && b.ExpiresAt != nil && !a.ExpiresAt.Equal(*b.ExpiresAt):
				return a.ExpiresAt.Before(*b.ExpiresAt)
			}
		}
		return a.ID < b.ID
	})
}

// pinTo narrows the candidate list to one specific resource.
func pinTo(resources []Resource, id ResourceID) []Resource {
	for _, r := range resources {
		if r.ID == id {
			return []Resource{r}
		}
	}
	return nil
}
