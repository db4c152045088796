// Package eventdb persists confirmed detection events to sqlite and serves
// the history queries behind the HTTP API and the charts.
package eventdb

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/chambercam/internal/chamber"
)

type DB struct {
	*sql.DB
}

// NewDB opens (creating if needed) the sqlite database at path and runs any
// pending migrations. Use ":memory:" for an ephemeral database in tests.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// modernc sqlite allows one writer; the run loop and the API share this
	// handle, so serialize access rather than surfacing SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy_timeout: %w", err)
	}

	edb := &DB{db}
	if err := edb.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return edb, nil
}

// RecordEvent implements chamber.EventRecorder.
func (db *DB) RecordEvent(ev chamber.Event) error {
	return db.InsertEvent(ev)
}

// InsertEvent stores one confirmed event.
func (db *DB) InsertEvent(ev chamber.Event) error {
	_, err := db.Exec(`
		INSERT INTO events (id, seq, timestamp, score, threshold, saved, image_path)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Seq, ev.Timestamp.UTC().Format(time.RFC3339Nano),
		ev.Score, ev.Threshold, boolToInt(ev.Saved), ev.ImagePath)
	if err != nil {
		return fmt.Errorf("failed to insert event %s: %w", ev.ID, err)
	}
	return nil
}

// ListEvents returns up to limit events, newest first. A non-zero since
// restricts the result to events at or after that time.
func (db *DB) ListEvents(limit int, since time.Time) ([]chamber.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT id, seq, timestamp, score, threshold, saved, image_path
		FROM events
		WHERE timestamp >= ?
		ORDER BY timestamp DESC, seq DESC
		LIMIT ?`,
		since.UTC().Format(time.RFC3339Nano), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []chamber.Event
	for rows.Next() {
		var ev chamber.Event
		var ts string
		var saved int
		if err := rows.Scan(&ev.ID, &ev.Seq, &ts, &ev.Score, &ev.Threshold, &saved, &ev.ImagePath); err != nil {
			return nil, fmt.Errorf("failed to scan event row: %w", err)
		}
		ev.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("failed to parse event timestamp %q: %w", ts, err)
		}
		ev.Saved = saved != 0
		events = append(events, ev)
	}
	return events, rows.Err()
}

// GetEvent fetches a single event by ID. Returns sql.ErrNoRows when absent.
func (db *DB) GetEvent(id string) (chamber.Event, error) {
	var ev chamber.Event
	var ts string
	var saved int
	err := db.QueryRow(`
		SELECT id, seq, timestamp, score, threshold, saved, image_path
		FROM events WHERE id = ?`, id).
		Scan(&ev.ID, &ev.Seq, &ts, &ev.Score, &ev.Threshold, &saved, &ev.ImagePath)
	if err != nil {
		return chamber.Event{}, err
	}
	ev.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return chamber.Event{}, fmt.Errorf("failed to parse event timestamp %q: %w", ts, err)
	}
	ev.Saved = saved != 0
	return ev, nil
}

// CountEvents returns the total number of stored events.
func (db *DB) CountEvents() (int64, error) {
	var n int64
	if err := db.QueryRow("SELECT COUNT(*) FROM events").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

// HourCount is one bucket of the hourly event histogram.
type HourCount struct {
	Hour  time.Time `json:"hour"`
	Count int64     `json:"count"`
}

// EventCountsByHour buckets events at or after since into hourly counts,
// oldest first. Hours with no events are omitted.
func (db *DB) EventCountsByHour(since time.Time) ([]HourCount, error) {
	rows, err := db.Query(`
		SELECT strftime('%Y-%m-%dT%H:00:00Z', timestamp) AS hour, COUNT(*)
		FROM events
		WHERE timestamp >= ?
		GROUP BY hour
		ORDER BY hour ASC`,
		since.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("failed to query hourly counts: %w", err)
	}
	defer rows.Close()

	var out []HourCount
	for rows.Next() {
		var hourStr string
		var hc HourCount
		if err := rows.Scan(&hourStr, &hc.Count); err != nil {
			return nil, fmt.Errorf("failed to scan hourly count: %w", err)
		}
		hc.Hour, err = time.Parse(time.RFC3339, hourStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse hour bucket %q: %w", hourStr, err)
		}
		out = append(out, hc)
	}
	return out, rows.Err()
}

// PruneEventsBefore deletes events older than cutoff and returns how many
// rows were removed. Saved JPEGs are not touched; disk cleanup is a separate
// operator concern.
func (db *DB) PruneEventsBefore(cutoff time.Time) (int64, error) {
	res, err := db.Exec("DELETE FROM events WHERE timestamp < ?",
		cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("failed to prune events: %w", err)
	}
	return res.RowsAffected()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
