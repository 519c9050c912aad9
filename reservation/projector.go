/*
projector.go - Wholesale dashboard recomputation

PURPOSE:
  Maintains the denormalized counters behind the operational dashboards:
  resources by derived state, beds occupied, reservations by lifecycle
  state, per department or globally.

WHY RECOMPUTE EVERYTHING:
  Refresh is a pure recount over the registry and the ledger, invoked
  synchronously after every committed engine mutation. Incremental
  maintenance would be cheaper per write but needs a correctness argument
  for every mutation path; a full re-scan is trivially consistent and the
  scan cost is acceptable at hospital-department scale.

STALENESS:
  Refresh may race another scope's refresh. The snapshot store keeps the
  newest snapshot per scope (last-writer-wins by TakenAt), so a slow
  refresh can never overwrite a newer state with an older one.

SEE ALSO:
  - resolver.go: Per-resource derived state
  - engine.go: The write-through trigger after each commit
*/
package reservation

import (
	"context"
	"time"
)

// =============================================================================
// PROJECTOR
// =============================================================================

type Projector struct {
	Store    Store
	Resolver *Resolver
}

func NewProjector(store Store) *Projector {
	return &Projector{Store: store, Resolver: NewResolver(store)}
}

// Refresh recounts one scope ("" = global, otherwise a department) and
// persists the snapshot. The returned snapshot equals a from-scratch
// recount at TakenAt by construction.
func (p *Projector) Refresh(ctx context.Context, scope string) (*Snapshot, error) {
	filter := ResourceFilter{}
	if scope != "" {
		filter.Attrs = map[string]string{"department": scope}
	}
	resources, err := p.Store.ListResources(ctx, filter)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	snap := &Snapshot{
		Scope:               scope,
		TakenAt:             now,
		ResourcesTotal:      len(resources),
		ResourcesByState:    make(map[AvailabilityState]int),
		ReservationsByState: make(map[State]int),
	}

	asOf := InstantWindow(now)
	for _, res := range resources {
		av, err := p.Resolver.Resolve(ctx, res.ID, asOf)
		if err != nil {
			return nil, err
		}
		snap.ResourcesByState[av.State]++
		snap.UnitsTotal += av.UnitsTotal
		snap.UnitsOccupied += av.UnitsTotal - av.UnitsAvailable

		reservations, err := p.Store.QueryReservations(ctx, ReservationQuery{ResourceID: res.ID})
		if err != nil {
			return nil, err
		}
		for _, r := range reservations {
			snap.ReservationsByState[r.State]++
		}
	}

	if err := p.Store.SaveSnapshot(ctx, *snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// Snapshot returns the stored snapshot for a scope, or a fresh recount
// when none has been taken yet.
func (p *Projector) Snapshot(ctx context.Context, scope string) (*Snapshot, error) {
	snap, err := p.Store.GetSnapshot(ctx, scope)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return p.Refresh(ctx, scope)
	}
	return snap, nil
}
