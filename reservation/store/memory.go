// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/reservation-engine/reservation"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.Mutex

	resources    map[reservation.ResourceID]reservation.Resource
	units        map[reservation.UnitID]reservation.Unit
	reservations map[reservation.ReservationID]reservation.Reservation
	snapshots    map[string]reservation.Snapshot

	seq int64
}

func NewMemory() *Memory {
	return &Memory{
		resources:    make(map[reservation.ResourceID]reservation.Resource),
		units:        make(map[reservation.UnitID]reservation.Unit),
		reservations: make(map[reservation.ReservationID]reservation.Reservation),
		snapshots:    make(map[string]reservation.Snapshot),
	}
}

// WithTx executes fn under the store lock with snapshot/rollback, which
// gives the serializable check-and-set the ledger requires.
func (m *Memory) WithTx(ctx context.Context, fn func(reservation.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

// =============================================================================
// RESOURCES
// =============================================================================

func (m *Memory) SaveResource(_ context.Context, r reservation.Resource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveResourceLocked(r)
}

func (m *Memory) GetResource(_ context.Context, id reservation.ResourceID) (*reservation.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getResourceLocked(id)
}

func (m *Memory) ListResources(_ context.Context, f reservation.ResourceFilter) ([]reservation.Resource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listResourcesLocked(f)
}

func (m *Memory) DeleteResource(_ context.Context, id reservation.ResourceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteResourceLocked(id)
}

func (m *Memory) SaveUnit(_ context.Context, u reservation.Unit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveUnitLocked(u)
}

func (m *Memory) GetUnit(_ context.Context, id reservation.UnitID) (*reservation.Unit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getUnitLocked(id)
}

func (m *Memory) ListUnits(_ context.Context, resourceID reservation.ResourceID) ([]reservation.Unit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listUnitsLocked(resourceID)
}

// =============================================================================
// RESERVATIONS
// =============================================================================

func (m *Memory) InsertReservation(_ context.Context, res *reservation.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertReservationLocked(res)
}

func (m *Memory) UpdateReservation(_ context.Context, res reservation.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateReservationLocked(res)
}

func (m *Memory) GetReservation(_ context.Context, id reservation.ReservationID) (*reservation.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getReservationLocked(id)
}

func (m *Memory) QueryReservations(_ context.Context, q reservation.ReservationQuery) ([]reservation.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queryReservationsLocked(q)
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

func (m *Memory) SaveSnapshot(_ context.Context, s reservation.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveSnapshotLocked(s)
}

func (m *Memory) GetSnapshot(_ context.Context, scope string) (*reservation.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getSnapshotLocked(scope)
}

// =============================================================================
// LOCKED IMPLEMENTATIONS (shared with the transactional view)
// =============================================================================

func (m *Memory) saveResourceLocked(r reservation.Resource) error {
	m.resources[r.ID] = r
	return nil
}

func (m *Memory) getResourceLocked(id reservation.ResourceID) (*reservation.Resource, error) {
	r, ok := m.resources[id]
	if !ok {
		return nil, nil
	}
	rc := r
	return &rc, nil
}

func (m *Memory) listResourcesLocked(f reservation.ResourceFilter) ([]reservation.Resource, error) {
	var out []reservation.Resource
	for _, r := range m.resources {
		if f.Matches(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) deleteResourceLocked(id reservation.ResourceID) error {
	delete(m.resources, id)
	for uid, u := range m.units {
		if u.ResourceID == id {
			delete(m.units, uid)
		}
	}
	return nil
}

func (m *Memory) saveUnitLocked(u reservation.Unit) error {
	m.units[u.ID] = u
	return nil
}

func (m *Memory) getUnitLocked(id reservation.UnitID) (*reservation.Unit, error) {
	u, ok := m.units[id]
	if !ok {
		return nil, nil
	}
	uc := u
	return &uc, nil
}

func (m *Memory) listUnitsLocked(resourceID reservation.ResourceID) ([]reservation.Unit, error) {
	var out []reservation.Unit
	for _, u := range m.units {
		if u.ResourceID == resourceID {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) insertReservationLocked(res *reservation.Reservation) error {
	m.seq++
	res.Seq = m.seq
	m.reservations[res.ID] = *res
	return nil
}

func (m *Memory) updateReservationLocked(res reservation.Reservation) error {
	m.reservations[res.ID] = res
	return nil
}

func (m *Memory) getReservationLocked(id reservation.ReservationID) (*reservation.Reservation, error) {
	r, ok := m.reservations[id]
	if !ok {
		return nil, nil
	}
	rc := r
	return &rc, nil
}

func (m *Memory) queryReservationsLocked(q reservation.ReservationQuery) ([]reservation.Reservation, error) {
	var out []reservation.Reservation
	for _, r := range m.reservations {
		if q.Matches(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (m *Memory) saveSnapshotLocked(s reservation.Snapshot) error {
	if existing, ok := m.snapshots[s.Scope]; ok && existing.TakenAt.After(s.TakenAt) {
		// Never overwrite a newer snapshot with an older recount.
		return nil
	}
	m.snapshots[s.Scope] = s
	return nil
}

func (m *Memory) getSnapshotLocked(scope string) (*reservation.Snapshot, error) {
	s, ok := m.snapshots[scope]
	if !ok {
		return nil, nil
	}
	sc := s
	return &sc, nil
}

// =============================================================================
// TRANSACTION SUPPORT
// =============================================================================

type memorySnapshot struct {
	resources    map[reservation.ResourceID]reservation.Resource
	units        map[reservation.UnitID]reservation.Unit
	reservations map[reservation.ReservationID]reservation.Reservation
	snapshots    map[string]reservation.Snapshot
	seq          int64
}

func (m *Memory) snapshot() memorySnapshot {
	s := memorySnapshot{
		resources:    make(map[reservation.ResourceID]reservation.Resource, len(m.resources)),
		units:        make(map[reservation.UnitID]reservation.Unit, len(m.units)),
		reservations: make(map[reservation.ReservationID]reservation.Reservation, len(m.reservations)),
		snapshots:    make(map[string]reservation.Snapshot, len(m.snapshots)),
		seq:          m.seq,
	}
	for k, v := range m.resources {
		s.resources[k] = v
	}
	for k, v := range m.units {
		s.units[k] = v
	}
	for k, v := range m.reservations {
		s.reservations[k] = v
	}
	for k, v := range m.snapshots {
		s.snapshots[k] = v
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.resources = s.resources
	m.units = s.units
	m.reservations = s.reservations
	m.snapshots = s.snapshots
	m.seq = s.seq
}

// txView routes store calls back to the already-locked parent. It exists
// so fn inside WithTx cannot deadlock on the parent mutex.
type txView struct {
	parent *Memory
}

func (tv *txView) SaveResource(_ context.Context, r reservation.Resource) error {
	return tv.parent.saveResourceLocked(r)
}

func (tv *txView) GetResource(_ context.Context, id reservation.ResourceID) (*reservation.Resource, error) {
	return tv.parent.getResourceLocked(id)
}

func (tv *txView) ListResources(_ context.Context, f reservation.ResourceFilter) ([]reservation.Resource, error) {
	return tv.parent.listResourcesLocked(f)
}

func (tv *txView) DeleteResource(_ context.Context, id reservation.ResourceID) error {
	return tv.parent.deleteResourceLocked(id)
}

func (tv *txView) SaveUnit(_ context.Context, u reservation.Unit) error {
	return tv.parent.saveUnitLocked(u)
}

func (tv *txView) GetUnit(_ context.Context, id reservation.UnitID) (*reservation.Unit, error) {
	return tv.parent.getUnitLocked(id)
}

func (tv *txView) ListUnits(_ context.Context, resourceID reservation.ResourceID) ([]reservation.Unit, error) {
	return tv.parent.listUnitsLocked(resourceID)
}

func (tv *txView) InsertReservation(_ context.Context, res *reservation.Reservation) error {
	return tv.parent.insertReservationLocked(res)
}

func (tv *txView) UpdateReservation(_ context.Context, res reservation.Reservation) error {
	return tv.parent.updateReservationLocked(res)
}

func (tv *txView) GetReservation(_ context.Context, id reservation.ReservationID) (*reservation.Reservation, error) {
	return tv.parent.getReservationLocked(id)
}

func (tv *txView) QueryReservations(_ context.Context, q reservation.ReservationQuery) ([]reservation.Reservation, error) {
	return tv.parent.queryReservationsLocked(q)
}

func (tv *txView) SaveSnapshot(_ context.Context, s reservation.Snapshot) error {
	return tv.parent.saveSnapshotLocked(s)
}

func (tv *txView) GetSnapshot(_ context.Context, scope string) (*reservation.Snapshot, error) {
	return tv.parent.getSnapshotLocked(scope)
}
