// Package queue is the scorer's durable outbox. Every ball is written
// here before any network attempt, so a crash or a dead link never
// loses a scored delivery.
package queue

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/stumpline/cricket-live/internal/events"
	"github.com/stumpline/cricket-live/internal/telemetry"

	_ "modernc.org/sqlite"
)

// Queue is an append-ordered outbox backed by sqlite. Entries leave
// only on server acknowledgement; rejected entries stay flagged for
// the scorer to inspect, and are never retried.
type Queue struct {
	db *sql.DB
	mu sync.Mutex
}

const queueSchema = `CREATE TABLE IF NOT EXISTS outbox (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id    TEXT    NOT NULL UNIQUE,
	match_id    TEXT    NOT NULL,
	payload     TEXT    NOT NULL,
	rejected    INTEGER NOT NULL DEFAULT 0,
	reason      TEXT    NOT NULL DEFAULT '',
	enqueued_at TEXT    NOT NULL
)`

func Open(path string) (*Queue, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create outbox dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)

	if _, err := db.Exec(queueSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init outbox schema: %w", err)
	}

	q := &Queue{db: db}
	depth, err := q.Depth()
	if err != nil {
		db.Close()
		return nil, err
	}
	telemetry.Metrics.QueueDepth.Set(int64(depth))
	telemetry.Plainf("outbox: opened %s  pending=%d", path, depth)
	return q, nil
}

// Enqueue durably records a ball before any push attempt. Re-enqueuing
// the same event id is a no-op, so a scorer retry cannot double-queue.
func (q *Queue) Enqueue(e events.BallEvent) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal ball event: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	_, err = q.db.Exec(
		`INSERT OR IGNORE INTO outbox (event_id, match_id, payload, enqueued_at)
		 VALUES (?, ?, ?, ?)`,
		e.ID, e.MatchID, string(payload),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", e.ID, err)
	}

	q.updateDepth()
	return nil
}

// Pending returns a match's unpushed events in the order they were
// scored. Rejected entries are excluded.
func (q *Queue) Pending(matchID string) ([]events.BallEvent, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	rows, err := q.db.Query(
		`SELECT payload FROM outbox WHERE match_id = ? AND rejected = 0 ORDER BY id ASC`,
		matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []events.BallEvent
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var e events.BallEvent
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			return nil, fmt.Errorf("decode queued event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Matches lists the matches that still have unpushed entries, used to
// resume pushing after a scorer restart.
func (q *Queue) Matches() ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	rows, err := q.db.Query(`SELECT DISTINCT match_id FROM outbox WHERE rejected = 0 ORDER BY match_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Ack removes an acknowledged entry. Acknowledgement covers duplicate
// acks too: the server has the event either way.
func (q *Queue) Ack(eventID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, err := q.db.Exec(`DELETE FROM outbox WHERE event_id = ?`, eventID); err != nil {
		return fmt.Errorf("ack %s: %w", eventID, err)
	}
	q.updateDepth()
	return nil
}

// MarkRejected flags an entry the server refused. The entry stays in
// the outbox so the scorer can see what was refused and why, but it is
// excluded from Pending.
func (q *Queue) MarkRejected(eventID, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, err := q.db.Exec(
		`UPDATE outbox SET rejected = 1, reason = ? WHERE event_id = ?`,
		reason, eventID); err != nil {
		return fmt.Errorf("mark rejected %s: %w", eventID, err)
	}
	q.updateDepth()
	return nil
}

// Rejected returns the flagged entries for a match with their refusal
// reasons.
func (q *Queue) Rejected(matchID string) (map[string]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	rows, err := q.db.Query(
		`SELECT event_id, reason FROM outbox WHERE match_id = ? AND rejected = 1`, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var id, reason string
		if err := rows.Scan(&id, &reason); err != nil {
			return nil, err
		}
		out[id] = reason
	}
	return out, rows.Err()
}

// Depth counts unpushed entries across all matches.
func (q *Queue) Depth() (int, error) {
	var n int
	err := q.db.QueryRow(`SELECT COUNT(*) FROM outbox WHERE rejected = 0`).Scan(&n)
	return n, err
}

// updateDepth refreshes the gauge. Callers hold q.mu; the COUNT runs
// on the same single connection.
func (q *Queue) updateDepth() {
	var n int64
	if err := q.db.QueryRow(`SELECT COUNT(*) FROM outbox WHERE rejected = 0`).Scan(&n); err == nil {
		telemetry.Metrics.QueueDepth.Set(n)
	}
}

func (q *Queue) Close() error {
	if q == nil || q.db == nil {
		return nil
	}
	return q.db.Close()
}
