package ingest

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/stumpline/cricket-live/internal/core/match"
	"github.com/stumpline/cricket-live/internal/events"
	"github.com/stumpline/cricket-live/internal/telemetry"

	_ "modernc.org/sqlite"
)

// Log is the authoritative append-only per-match event log.
//
// Rows are keyed by (match_id, seq); the unique (match_id, event_id) index
// doubles as the durable deduplication set, so a restarted server rebuilds
// exactly the same dedup state the in-memory match contexts held.
type Log struct {
	db *sql.DB
	mu sync.Mutex
}

const logSchema = `CREATE TABLE IF NOT EXISTS ball_events (
	match_id     TEXT    NOT NULL,
	seq          INTEGER NOT NULL,
	event_id     TEXT    NOT NULL,
	innings      INTEGER NOT NULL,
	payload      TEXT    NOT NULL,
	committed_at TEXT    NOT NULL,
	PRIMARY KEY (match_id, seq),
	UNIQUE (match_id, event_id)
);
CREATE TABLE IF NOT EXISTS innings_openings (
	match_id     TEXT    NOT NULL,
	innings      INTEGER NOT NULL,
	batting_team TEXT    NOT NULL,
	striker      TEXT    NOT NULL,
	non_striker  TEXT    NOT NULL,
	bowler       TEXT    NOT NULL,
	target       INTEGER NOT NULL,
	opened_at    TEXT    NOT NULL,
	PRIMARY KEY (match_id, innings)
)`

func OpenLog(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create event log dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)

	if _, err := db.Exec(logSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init event log schema: %w", err)
	}

	var size int64
	db.QueryRow(`SELECT COALESCE(page_count * page_size, 0) FROM pragma_page_count(), pragma_page_size()`).Scan(&size)
	var rows int64
	db.QueryRow(`SELECT COUNT(*) FROM ball_events`).Scan(&rows)

	telemetry.Plainf("event log: opened %s  size=%s  events=%d", path, humanize.Bytes(uint64(size)), rows)
	return &Log{db: db}, nil
}

// Append persists one committed ball event. Called from the match
// goroutine before the event is acknowledged or broadcast.
func (l *Log) Append(e events.BallEvent) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal ball event: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	_, err = l.db.Exec(
		`INSERT INTO ball_events (match_id, seq, event_id, innings, payload, committed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.MatchID, e.Seq, e.ID, e.Innings, string(payload),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append seq %d for match %s: %w", e.Seq, e.MatchID, err)
	}
	return nil
}

// Since returns the ordered events for a match with sequence numbers
// strictly greater than the given value — the catch-up replay contract.
func (l *Log) Since(matchID string, since int64) ([]events.BallEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.db.Query(
		`SELECT payload FROM ball_events WHERE match_id = ? AND seq > ? ORDER BY seq ASC`,
		matchID, since)
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
			return nil, fmt.Errorf("decode logged event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// AppendOpening persists an innings opening. Idempotent: a re-sent
// opening for the same (match, innings) is ignored, matching the
// reconciliation the match context applies.
func (l *Log) AppendOpening(matchID string, op match.InningsOpening) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.Exec(
		`INSERT OR IGNORE INTO innings_openings
		 (match_id, innings, batting_team, striker, non_striker, bowler, target, opened_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		matchID, op.Innings, op.BattingTeam, op.Striker, op.NonStriker, op.Bowler, op.Target,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append opening innings %d for match %s: %w", op.Innings, matchID, err)
	}
	return nil
}

// Openings returns a match's recorded innings openings in innings order.
func (l *Log) Openings(matchID string) ([]match.InningsOpening, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.db.Query(
		`SELECT innings, batting_team, striker, non_striker, bowler, target
		 FROM innings_openings WHERE match_id = ? ORDER BY innings ASC`, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []match.InningsOpening
	for rows.Next() {
		var op match.InningsOpening
		if err := rows.Scan(&op.Innings, &op.BattingTeam, &op.Striker, &op.NonStriker, &op.Bowler, &op.Target); err != nil {
			return nil, err
		}
		out = append(out, op)
	}
	return out, rows.Err()
}

// Recover reads a match's dedup set and highest committed sequence number,
// used to seed a match context after a restart.
func (l *Log) Recover(matchID string) (seen map[string]int64, maxSeq int64, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.db.Query(
		`SELECT event_id, seq FROM ball_events WHERE match_id = ?`, matchID)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	seen = make(map[string]int64)
	for rows.Next() {
		var id string
		var seq int64
		if err := rows.Scan(&id, &seq); err != nil {
			return nil, 0, err
		}
		seen[id] = seq
		if seq > maxSeq {
			maxSeq = seq
		}
	}
	return seen, maxSeq, rows.Err()
}

func (l *Log) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}
