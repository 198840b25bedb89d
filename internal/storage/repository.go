package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrEventNotFound indicates no tracked event matched the lookup.
	ErrEventNotFound = errors.New("storage: event not found")
)

const (
	insertEventSQL = `INSERT INTO events (name, venue, url)
    VALUES ($1, $2, $3)
    ON CONFLICT (name) DO UPDATE
    SET venue = EXCLUDED.venue,
        url   = EXCLUDED.url
    RETURNING id, name, venue, url, created_at, last_checked_at;`

	listEventsSQL = `SELECT id, name, venue, url, created_at, last_checked_at
    FROM events
    ORDER BY name;`

	getEventByNameSQL = `SELECT id, name, venue, url, created_at, last_checked_at
    FROM events
    WHERE name = $1;`

	latestSnapshotsSQL = `SELECT DISTINCT ON (section)
        id, event_id, section, row_label, price, available, source, observed_at
    FROM price_snapshots
    WHERE event_id = $1
    ORDER BY section, observed_at DESC, id DESC;`

	insertSnapshotSQL = `INSERT INTO price_snapshots (
        event_id, section, row_label, price, available, source, observed_at
    ) VALUES ($1,$2,$3,$4,$5,$6,$7);`

	insertDropSQL = `INSERT INTO price_drops (
        event_id, section, old_price, new_price, drop_pct, detected_at
    ) VALUES ($1,$2,$3,$4,$5,$6);`

	touchEventSQL = `UPDATE events SET last_checked_at = $2 WHERE id = $1;`

	listHistorySQL = `SELECT id, event_id, section, row_label, price, available, source, observed_at
    FROM price_snapshots
    WHERE event_id = $1
      AND ($2 = '' OR section = $2)
    ORDER BY observed_at DESC, id DESC
    LIMIT $3;`

	listSnapshotsBetweenSQL = `SELECT id, event_id, section, row_label, price, available, source, observed_at
    FROM price_snapshots
    WHERE event_id = $1
      AND ($2 = '' OR section = $2)
      AND observed_at >= $3
      AND observed_at < $4
    ORDER BY observed_at;`

	listDropsSinceSQL = `SELECT d.id, d.event_id, d.section, d.old_price, d.new_price, d.drop_pct, d.detected_at, e.name
    FROM price_drops d
    JOIN events e ON e.id = d.event_id
    WHERE d.detected_at >= $1
    ORDER BY d.detected_at DESC;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// EventStore defines operations over the tracked-event registry.
type EventStore interface {
	CreateEvent(ctx context.Context, event TrackedEvent) (TrackedEvent, error)
	ListTrackedEvents(ctx context.Context) ([]TrackedEvent, error)
	GetEventByName(ctx context.Context, name string) (TrackedEvent, error)
}

// HistoryStore defines operations over price snapshots and drop records.
type HistoryStore interface {
	LatestSnapshots(ctx context.Context, eventID int64) (map[string]PriceSnapshot, error)
	CommitCheckResult(ctx context.Context, eventID int64, snapshots []PriceSnapshot, drops []PriceDropRecord, checkedAt time.Time) error
	ListHistory(ctx context.Context, eventID int64, section string, limit int) ([]PriceSnapshot, error)
	ListSnapshotsBetween(ctx context.Context, eventID int64, section string, from, to time.Time) ([]PriceSnapshot, error)
	ListDropsSince(ctx context.Context, since time.Time) ([]EventDrop, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// EventDrop pairs a drop record with the name of its tracked event.
type EventDrop struct {
	PriceDropRecord
	EventName string
}

// Store aggregates access to events, snapshots, and drops.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	return pool.Ping(ctx)
}

// CreateEvent registers an event for monitoring. Re-registering an existing
// name refreshes its URL and venue.
func (s *Store) CreateEvent(ctx context.Context, event TrackedEvent) (TrackedEvent, error) {
	pool, err := s.getPool()
	if err != nil {
		return TrackedEvent{}, err
	}

	row := pool.QueryRow(ctx, insertEventSQL, event.Name, event.Venue, event.URL)
	created, err := scanEvent(row)
	if err != nil {
		return TrackedEvent{}, fmt.Errorf("create event: %w", err)
	}
	return created, nil
}

// ListTrackedEvents returns every monitored event.
func (s *Store) ListTrackedEvents(ctx context.Context) ([]TrackedEvent, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listEventsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list events: %w", queryErr)
	}
	defer rows.Close()

	events := make([]TrackedEvent, 0)
	for rows.Next() {
		event, scanErr := scanEvent(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		events = append(events, event)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return events, nil
}

// GetEventByName resolves a tracked event by its vendor-facing name.
func (s *Store) GetEventByName(ctx context.Context, name string) (TrackedEvent, error) {
	pool, err := s.getPool()
	if err != nil {
		return TrackedEvent{}, err
	}

	event, scanErr := scanEvent(pool.QueryRow(ctx, getEventByNameSQL, name))
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return TrackedEvent{}, ErrEventNotFound
		}
		return TrackedEvent{}, fmt.Errorf("get event by name: %w", scanErr)
	}
	return event, nil
}

// LatestSnapshots returns the most recent snapshot per section for an event.
func (s *Store) LatestSnapshots(ctx context.Context, eventID int64) (map[string]PriceSnapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, latestSnapshotsSQL, eventID)
	if queryErr != nil {
		return nil, fmt.Errorf("latest snapshots: %w", queryErr)
	}
	defer rows.Close()

	latest := make(map[string]PriceSnapshot)
	for rows.Next() {
		snapshot, scanErr := scanSnapshot(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		latest[snapshot.Section] = snapshot
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return latest, nil
}

// CommitCheckResult persists one event's snapshots and drops as a single
// transaction and advances the event's last-checked marker. Either the full
// batch lands or none of it does.
func (s *Store) CommitCheckResult(ctx context.Context, eventID int64, snapshots []PriceSnapshot, drops []PriceDropRecord, checkedAt time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, snapshot := range snapshots {
		var rowLabel interface{}
		if snapshot.Row != nil {
			rowLabel = *snapshot.Row
		}
		if _, execErr := tx.Exec(ctx, insertSnapshotSQL,
			eventID,
			snapshot.Section,
			rowLabel,
			snapshot.Price.String(),
			snapshot.Available,
			snapshot.Source,
			snapshot.ObservedAt,
		); execErr != nil {
			return fmt.Errorf("insert snapshot: %w", execErr)
		}
	}

	for _, drop := range drops {
		if _, execErr := tx.Exec(ctx, insertDropSQL,
			eventID,
			drop.Section,
			drop.OldPrice.String(),
			drop.NewPrice.String(),
			drop.DropPct.String(),
			drop.DetectedAt,
		); execErr != nil {
			return fmt.Errorf("insert drop: %w", execErr)
		}
	}

	if _, execErr := tx.Exec(ctx, touchEventSQL, eventID, checkedAt); execErr != nil {
		return fmt.Errorf("touch event: %w", execErr)
	}

	if commitErr := tx.Commit(ctx); commitErr != nil {
		return fmt.Errorf("commit check result: %w", commitErr)
	}
	return nil
}

// ListHistory lists the most recent snapshots for an event, optionally
// filtered to one section.
func (s *Store) ListHistory(ctx context.Context, eventID int64, section string, limit int) ([]PriceSnapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listHistorySQL, eventID, section, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list history: %w", queryErr)
	}
	defer rows.Close()

	return collectSnapshots(rows)
}

// ListSnapshotsBetween lists snapshots within a time window in ascending
// observation order.
func (s *Store) ListSnapshotsBetween(ctx context.Context, eventID int64, section string, from, to time.Time) ([]PriceSnapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSnapshotsBetweenSQL, eventID, section, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list snapshots between: %w", queryErr)
	}
	defer rows.Close()

	return collectSnapshots(rows)
}

// ListDropsSince lists drop records detected at or after the given time.
func (s *Store) ListDropsSince(ctx context.Context, since time.Time) ([]EventDrop, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listDropsSinceSQL, since)
	if queryErr != nil {
		return nil, fmt.Errorf("list drops since: %w", queryErr)
	}
	defer rows.Close()

	drops := make([]EventDrop, 0)
	for rows.Next() {
		var (
			rec         EventDrop
			oldPriceStr string
			newPriceStr string
			dropPctStr  string
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.EventID,
			&rec.Section,
			&oldPriceStr,
			&newPriceStr,
			&dropPctStr,
			&rec.DetectedAt,
			&rec.EventName,
		); err != nil {
			return nil, err
		}

		var convErr error
		rec.OldPrice, convErr = decimal.NewFromString(oldPriceStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse old price: %w", convErr)
		}
		rec.NewPrice, convErr = decimal.NewFromString(newPriceStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse new price: %w", convErr)
		}
		rec.DropPct, convErr = decimal.NewFromString(dropPctStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse drop pct: %w", convErr)
		}

		drops = append(drops, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return drops, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// best effort; the lock also releases when the session ends
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func collectSnapshots(rows pgx.Rows) ([]PriceSnapshot, error) {
	snapshots := make([]PriceSnapshot, 0)
	for rows.Next() {
		snapshot, scanErr := scanSnapshot(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		snapshots = append(snapshots, snapshot)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return snapshots, nil
}

func scanEvent(row pgx.Row) (TrackedEvent, error) {
	var (
		event       TrackedEvent
		lastChecked sql.NullTime
	)
	if err := row.Scan(
		&event.ID,
		&event.Name,
		&event.Venue,
		&event.URL,
		&event.CreatedAt,
		&lastChecked,
	); err != nil {
		return TrackedEvent{}, err
	}
	if lastChecked.Valid {
		value := lastChecked.Time
		event.LastCheckedAt = &value
	}
	return event, nil
}

func scanSnapshot(rows pgx.Rows) (PriceSnapshot, error) {
	var (
		snapshot PriceSnapshot
		rowLabel sql.NullString
		priceStr string
	)
	if err := rows.Scan(
		&snapshot.ID,
		&snapshot.EventID,
		&snapshot.Section,
		&rowLabel,
		&priceStr,
		&snapshot.Available,
		&snapshot.Source,
		&snapshot.ObservedAt,
	); err != nil {
		return PriceSnapshot{}, err
	}

	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return PriceSnapshot{}, fmt.Errorf("parse price: %w", err)
	}
	snapshot.Price = price

	if rowLabel.Valid {
		value := rowLabel.String
		snapshot.Row = &value
	}
	return snapshot, nil
}
