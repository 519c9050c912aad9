/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements reservation.Store and reservation.TxStore using SQLite. In
  production, the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

KEY TABLES:
  resources:    Allocatable entities with their static attributes
  units:        Individually-assignable slots, one row per bed/slot
  reservations: The ledger; seq is an AUTOINCREMENT rowid so tie-breaks
                between same-instant reservations are store-assigned
  snapshots:    Denormalized dashboard counters, one row per scope

EXCLUSIVITY:
  The no-overlap invariant is enforced by the ledger inside WithTx, not
  by a SQL constraint - open-ended windows (NULL window_end) make an
  index-level exclusion constraint impractical in SQLite. WithTx wraps
  the check and the insert in one BEGIN..COMMIT, and the store mutex
  serializes writers on top.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/reservations.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := reservation.NewEngine(store)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - reservation/store.go: Interface definitions
  - reservation/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/warp/reservation-engine/reservation"
)

// Store implements reservation.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Resources (allocatable entities)
	CREATE TABLE IF NOT EXISTS resources (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		capacity INTEGER NOT NULL,
		attrs_json TEXT,
		expires_at TEXT,
		out_of_service BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_resources_kind
		ON resources(kind);

	-- Units (one row per bed/slot)
	CREATE TABLE IF NOT EXISTS units (
		id TEXT PRIMARY KEY,
		resource_id TEXT NOT NULL,
		name TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_units_resource
		ON units(resource_id);

	-- Reservations (the ledger)
	-- seq is AUTOINCREMENT: the store assigns the tie-break order between
	-- reservations created at the same instant.
	CREATE TABLE IF NOT EXISTS reservations (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		requester_id TEXT NOT NULL,
		resource_id TEXT NOT NULL,
		unit_id TEXT NOT NULL,
		group_id TEXT NOT NULL DEFAULT '',
		window_start TEXT NOT NULL,
		window_end TEXT,
		state TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Hot path: overlap checks load the blocking set per unit
	CREATE INDEX IF NOT EXISTS idx_reservations_unit_state
		ON reservations(unit_id, state);
	CREATE INDEX IF NOT EXISTS idx_reservations_resource
		ON reservations(resource_id);
	CREATE INDEX IF NOT EXISTS idx_reservations_group
		ON reservations(group_id) WHERE group_id != '';
	CREATE INDEX IF NOT EXISTS idx_reservations_requester
		ON reservations(requester_id);

	-- Snapshots (dashboard counters, newest per scope)
	CREATE TABLE IF NOT EXISTS snapshots (
		scope TEXT PRIMARY KEY,
		taken_at TEXT NOT NULL,
		payload_json TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is the subset of *sql.DB and *sql.Tx the store uses, so every
// operation runs against either the connection or an open transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// RESOURCES
// =============================================================================

// SaveResource inserts or updates a resource.
func (s *Store) SaveResource(ctx context.Context, r reservation.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveResource(ctx, s.db, r)
}

func saveResource(ctx context.Context, db dbtx, r reservation.Resource) error {
	attrsJSON, _ := json.Marshal(r.Attrs)

	var expiresAt *string
	if r.ExpiresAt != nil {
		t := r.ExpiresAt.UTC().Format(time.RFC3339Nano)
		expiresAt = &t
	}
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO resources (id, kind, capacity, attrs_json, expires_at, out_of_service, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind = excluded.kind,
			capacity = excluded.capacity,
			attrs_json = excluded.attrs_json,
			expires_at = excluded.expires_at,
			out_of_service = excluded.out_of_service
	`

	_, err := db.ExecContext(ctx, query,
		r.ID, r.Kind, r.Capacity, string(attrsJSON), expiresAt,
		r.OutOfService, createdAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save resource: %w", err)
	}
	return nil
}

// GetResource returns a resource, or nil when absent.
func (s *Store) GetResource(ctx context.Context, id reservation.ResourceID) (*reservation.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getResource(ctx, s.db, id)
}

func getResource(ctx context.Context, db dbtx, id reservation.ResourceID) (*reservation.Resource, error) {
	row := db.QueryRowContext(ctx,
		"SELECT id, kind, capacity, attrs_json, expires_at, out_of_service, created_at FROM resources WHERE id = ?",
		id,
	)
	res, err := scanResourceRow(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return res, err
}

// ListResources returns resources matching the filter, ordered by id.
func (s *Store) ListResources(ctx context.Context, f reservation.ResourceFilter) ([]reservation.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listResources(ctx, s.db, f)
}

func listResources(ctx context.Context, db dbtx, f reservation.ResourceFilter) ([]reservation.Resource, error) {
	query := "SELECT id, kind, capacity, attrs_json, expires_at, out_of_service, created_at FROM resources"
	var args []any
	if f.Kind != "" {
		query += " WHERE kind = ?"
		args = append(args, f.Kind)
	}
	query += " ORDER BY id ASC"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query resources: %w", err)
	}
	defer rows.Close()

	var out []reservation.Resource
	for rows.Next() {
		res, err := scanResourceRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		// Attribute and service filtering stays in one place: the filter.
		if f.Matches(*res) {
			out = append(out, *res)
		}
	}
	return out, rows.Err()
}

// DeleteResource removes a resource and its units. Reservation history
// survives for audit.
func (s *Store) DeleteResource(ctx context.Context, id reservation.ResourceID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteResource(ctx, s.db, id)
}

func deleteResource(ctx context.Context, db dbtx, id reservation.ResourceID) error {
	if _, err := db.ExecContext(ctx, "DELETE FROM units WHERE resource_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete units: %w", err)
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM resources WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete resource: %w", err)
	}
	return nil
}

func scanResourceRow(scan func(dest ...any) error) (*reservation.Resource, error) {
	var (
		res       reservation.Resource
		attrsJSON sql.NullString
		expiresAt sql.NullString
		createdAt string
	)
	err := scan(&res.ID, &res.Kind, &res.Capacity, &attrsJSON, &expiresAt, &res.OutOfService, &createdAt)
	if err != nil {
		return nil, err
	}

	if attrsJSON.Valid && attrsJSON.String != "" {
		json.Unmarshal([]byte(attrsJSON.String), &res.Attrs)
	}
	if expiresAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, expiresAt.String)
		res.ExpiresAt = &t
	}
	res.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &res, nil
}

// =============================================================================
// UNITS
// =============================================================================

// SaveUnit inserts or updates a unit.
func (s *Store) SaveUnit(ctx context.Context, u reservation.Unit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveUnit(ctx, s.db, u)
}

func saveUnit(ctx context.Context, db dbtx, u reservation.Unit) error {
	query := `
		INSERT INTO units (id, resource_id, name)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			resource_id = excluded.resource_id,
			name = excluded.name
	`
	_, err := db.ExecContext(ctx, query, u.ID, u.ResourceID, u.Name)
	if err != nil {
		return fmt.Errorf("failed to save unit: %w", err)
	}
	return nil
}

// GetUnit returns a unit, or nil when absent.
func (s *Store) GetUnit(ctx context.Context, id reservation.UnitID) (*reservation.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getUnit(ctx, s.db, id)
}

func getUnit(ctx context.Context, db dbtx, id reservation.UnitID) (*reservation.Unit, error) {
	var u reservation.Unit
	err := db.QueryRowContext(ctx,
		"SELECT id, resource_id, name FROM units WHERE id = ?", id,
	).Scan(&u.ID, &u.ResourceID, &u.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ListUnits returns a resource's units ordered by id.
func (s *Store) ListUnits(ctx context.Context, resourceID reservation.ResourceID) ([]reservation.Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listUnits(ctx, s.db, resourceID)
}

func listUnits(ctx context.Context, db dbtx, resourceID reservation.ResourceID) ([]reservation.Unit, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT id, resource_id, name FROM units WHERE resource_id = ? ORDER BY id ASC", resourceID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query units: %w", err)
	}
	defer rows.Close()

	var out []reservation.Unit
	for rows.Next() {
		var u reservation.Unit
		if err := rows.Scan(&u.ID, &u.ResourceID, &u.Name); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// =============================================================================
// RESERVATIONS
// =============================================================================

// InsertReservation writes a new reservation and assigns its Seq.
func (s *Store) InsertReservation(ctx context.Context, res *reservation.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertReservation(ctx, s.db, res)
}

func insertReservation(ctx context.Context, db dbtx, res *reservation.Reservation) error {
	query := `
		INSERT INTO reservations
		(id, requester_id, resource_id, unit_id, group_id, window_start, window_end, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := db.ExecContext(ctx, query,
		res.ID, res.RequesterID, res.ResourceID, res.UnitID, res.GroupID,
		res.Window.Start.UTC().Format(time.RFC3339Nano),
		nullableTime(res.Window.End),
		res.State,
		res.CreatedAt.Format(time.RFC3339Nano),
		res.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to insert reservation: %w", err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read reservation seq: %w", err)
	}
	res.Seq = seq
	return nil
}

// UpdateReservation rewrites a reservation's mutable fields.
func (s *Store) UpdateReservation(ctx context.Context, res reservation.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateReservation(ctx, s.db, res)
}

func updateReservation(ctx context.Context, db dbtx, res reservation.Reservation) error {
	query := `
		UPDATE reservations
		SET state = ?, window_start = ?, window_end = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := db.ExecContext(ctx, query,
		res.State,
		res.Window.Start.UTC().Format(time.RFC3339Nano),
		nullableTime(res.Window.End),
		res.UpdatedAt.Format(time.RFC3339Nano),
		res.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update reservation: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("reservation %s: %w", res.ID, reservation.ErrReservationNotFound)
	}
	return nil
}

// GetReservation returns a reservation, or nil when absent.
func (s *Store) GetReservation(ctx context.Context, id reservation.ReservationID) (*reservation.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getReservation(ctx, s.db, id)
}

func getReservation(ctx context.Context, db dbtx, id reservation.ReservationID) (*reservation.Reservation, error) {
	row := db.QueryRowContext(ctx,
		reservationColumns+" FROM reservations WHERE id = ?", id,
	)
	res, err := scanReservationRow(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return res, err
}

// QueryReservations returns reservations matching q, ordered by seq.
func (s *Store) QueryReservations(ctx context.Context, q reservation.ReservationQuery) ([]reservation.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryReservations(ctx, s.db, q)
}

func queryReservations(ctx context.Context, db dbtx, q reservation.ReservationQuery) ([]reservation.Reservation, error) {
	query := reservationColumns + " FROM reservations WHERE 1=1"
	var args []any
	if q.UnitID != "" {
		query += " AND unit_id = ?"
		args = append(args, q.UnitID)
	}
	if q.ResourceID != "" {
		query += " AND resource_id = ?"
		args = append(args, q.ResourceID)
	}
	if q.RequesterID != "" {
		query += " AND requester_id = ?"
		args = append(args, q.RequesterID)
	}
	if q.GroupID != "" {
		query += " AND group_id = ?"
		args = append(args, q.GroupID)
	}
	query += " ORDER BY seq ASC"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reservations: %w", err)
	}
	defer rows.Close()

	var out []reservation.Reservation
	for rows.Next() {
		res, err := scanReservationRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		// State and overlap filtering reuses the query's own matcher so
		// SQL and memory stores agree on semantics.
		if q.Matches(*res) {
			out = append(out, *res)
		}
	}
	return out, rows.Err()
}

const reservationColumns = `SELECT seq, id, requester_id, resource_id, unit_id, group_id,
	window_start, window_end, state, created_at, updated_at`

func scanReservationRow(scan func(dest ...any) error) (*reservation.Reservation, error) {
	var (
		res         reservation.Reservation
		windowStart string
		windowEnd   sql.NullString
		createdAt   string
		updatedAt   string
	)
	err := scan(&res.Seq, &res.ID, &res.RequesterID, &res.ResourceID, &res.UnitID,
		&res.GroupID, &windowStart, &windowEnd, &res.State, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	res.Window.Start, _ = time.Parse(time.RFC3339Nano, windowStart)
	if windowEnd.Valid {
		res.Window.End, _ = time.Parse(time.RFC3339Nano, windowEnd.String)
	}
	res.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	res.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &res, nil
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

// SaveSnapshot stores a snapshot, keeping the newest per scope.
func (s *Store) SaveSnapshot(ctx context.Context, snap reservation.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveSnapshot(ctx, s.db, snap)
}

func saveSnapshot(ctx context.Context, db dbtx, snap reservation.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	// Last writer wins per scope; a stale refresh never clobbers a newer
	// snapshot.
	query := `
		INSERT INTO snapshots (scope, taken_at, payload_json)
		VALUES (?, ?, ?)
		ON CONFLICT(scope) DO UPDATE SET
			taken_at = excluded.taken_at,
			payload_json = excluded.payload_json
		WHERE excluded.taken_at >= snapshots.taken_at
	`
	_, err = db.ExecContext(ctx, query,
		snap.Scope, snap.TakenAt.UTC().Format(time.RFC3339Nano), string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// GetSnapshot returns the stored snapshot for a scope, or nil.
func (s *Store) GetSnapshot(ctx context.Context, scope string) (*reservation.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getSnapshot(ctx, s.db, scope)
}

func getSnapshot(ctx context.Context, db dbtx, scope string) (*reservation.Snapshot, error) {
	var payload string
	err := db.QueryRowContext(ctx,
		"SELECT payload_json FROM snapshots WHERE scope = ?", scope,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var snap reservation.Snapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

// =============================================================================
// TRANSACTIONAL STORE (reservation.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction. Reads inside
// the function see the transaction's own uncommitted writes. Timeouts and
// driver busy/locked failures surface as reservation.ErrStoreUnavailable
// so callers know to retry with fresh data.
func (s *Store) WithTx(ctx context.Context, fn func(store reservation.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classifyTxError(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return classifyTxError(err)
	}

	return classifyTxError(sqlTx.Commit())
}

// classifyTxError rewrites store-level contention and timeout failures to
// the retryable sentinel. Domain errors pass through untouched.
func classifyTxError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", reservation.ErrStoreUnavailable, err)
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return fmt.Errorf("%w: %v", reservation.ErrStoreUnavailable, err)
		}
	}
	return err
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) SaveResource(ctx context.Context, r reservation.Resource) error {
	return saveResource(ctx, ts.tx, r)
}

func (ts *txStore) GetResource(ctx context.Context, id reservation.ResourceID) (*reservation.Resource, error) {
	return getResource(ctx, ts.tx, id)
}

func (ts *txStore) ListResources(ctx context.Context, f reservation.ResourceFilter) ([]reservation.Resource, error) {
	return listResources(ctx, ts.tx, f)
}

func (ts *txStore) DeleteResource(ctx context.Context, id reservation.ResourceID) error {
	return deleteResource(ctx, ts.tx, id)
}

func (ts *txStore) SaveUnit(ctx context.Context, u reservation.Unit) error {
	return saveUnit(ctx, ts.tx, u)
}

func (ts *txStore) GetUnit(ctx context.Context, id reservation.UnitID) (*reservation.Unit, error) {
	return getUnit(ctx, ts.tx, id)
}

func (ts *txStore) ListUnits(ctx context.Context, resourceID reservation.ResourceID) ([]reservation.Unit, error) {
	return listUnits(ctx, ts.tx, resourceID)
}

func (ts *txStore) InsertReservation(ctx context.Context, res *reservation.Reservation) error {
	return insertReservation(ctx, ts.tx, res)
}

func (ts *txStore) UpdateReservation(ctx context.Context, res reservation.Reservation) error {
	return updateReservation(ctx, ts.tx, res)
}

func (ts *txStore) GetReservation(ctx context.Context, id reservation.ReservationID) (*reservation.Reservation, error) {
	return getReservation(ctx, ts.tx, id)
}

func (ts *txStore) QueryReservations(ctx context.Context, q reservation.ReservationQuery) ([]reservation.Reservation, error) {
	return queryReservations(ctx, ts.tx, q)
}

func (ts *txStore) SaveSnapshot(ctx context.Context, snap reservation.Snapshot) error {
	return saveSnapshot(ctx, ts.tx, snap)
}

func (ts *txStore) GetSnapshot(ctx context.Context, scope string) (*reservation.Snapshot, error) {
	return getSnapshot(ctx, ts.tx, scope)
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"reservations", "units", "resources", "snapshots"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func nullableTime(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.UTC().Format(time.RFC3339Nano)
	return &s
}
