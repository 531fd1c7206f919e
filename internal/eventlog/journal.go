// Package eventlog persists a journal of machine events in SQLite. The
// listener appends every event it consumes from the event topics; the history
// command and the history MQTT command read play sessions back out of it.
package eventlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Journal is an append-mostly event log backed by a single SQLite file.
// Use ":memory:" as the path for tests.
type Journal struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens or creates the journal database at path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	j := &Journal{db: db}
	if err := j.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return j, nil
}

func (j *Journal) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event TEXT NOT NULL,
		at INTEGER NOT NULL,
		payload BLOB
	);
	CREATE INDEX IF NOT EXISTS idx_events_at ON events(at);
	CREATE INDEX IF NOT EXISTS idx_events_event ON events(event);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Record is one journaled event.
type Record struct {
	ID      int64
	Event   string
	At      time.Time
	Payload []byte
}

// Append writes one event to the journal.
func (j *Journal) Append(ctx context.Context, event string, at time.Time, payload []byte) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if at.IsZero() {
		at = time.Now()
	}
	_, err := j.db.ExecContext(ctx,
		"INSERT INTO events (event, at, payload) VALUES (?, ?, ?)",
		event, at.Unix(), payload,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Record, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	rows, err := j.db.QueryContext(ctx,
		"SELECT id, event, at, payload FROM events ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Session is one completed play session reconstructed from paired
// game-start and game-end records.
type Session struct {
	Game      string        `json:"game"`
	System    string        `json:"system"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at"`
	Duration  time.Duration `json:"-"`
	Seconds   int64         `json:"duration_seconds"`
}

// RecentSessions pairs game-start and game-end records into completed
// sessions and returns up to limit of them, newest first. A start with no
// matching end (crash or power loss mid-game) is dropped; a start followed
// by another start keeps only the later one.
func (j *Journal) RecentSessions(ctx context.Context, limit int) ([]Session, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	rows, err := j.db.QueryContext(ctx,
		"SELECT id, event, at, payload FROM events WHERE event IN ('game-start', 'game-end') ORDER BY id",
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}

	var sessions []Session
	var pending *Session
	for _, r := range records {
		fields := payloadFields(r.Payload)
		switch r.Event {
		case "game-start":
			pending = &Session{
				Game:      stringField(fields, "game_name"),
				System:    stringField(fields, "system"),
				StartedAt: r.At,
			}
		case "game-end":
			if pending == nil {
				continue
			}
			s := *pending
			s.EndedAt = r.At
			if secs, ok := numberField(fields, "duration_seconds"); ok {
				s.Duration = time.Duration(secs) * time.Second
			} else {
				s.Duration = s.EndedAt.Sub(s.StartedAt)
			}
			s.Seconds = int64(s.Duration / time.Second)
			sessions = append(sessions, s)
			pending = nil
		}
	}

	// Newest first, clipped to limit.
	for i, k := 0, len(sessions)-1; i < k; i, k = i+1, k-1 {
		sessions[i], sessions[k] = sessions[k], sessions[i]
	}
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

// Prune deletes records older than cutoff and reports how many went.
func (j *Journal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	res, err := j.db.ExecContext(ctx, "DELETE FROM events WHERE at < ?", cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.db.Close()
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var r Record
		var atUnix int64
		if err := rows.Scan(&r.ID, &r.Event, &atUnix, &r.Payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		r.At = time.Unix(atUnix, 0)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return records, nil
}

func payloadFields(raw []byte) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil
	}
	return fields
}

func stringField(fields map[string]any, key string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}

func numberField(fields map[string]any, key string) (float64, bool) {
	v, ok := fields[key].(float64)
	return v, ok
}
