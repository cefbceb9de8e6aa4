// Package history records actuated ringer transitions in sqlite.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite"

	"github.com/relabs-tech/automute/internal/engine"
)

const schema = `
CREATE TABLE IF NOT EXISTS transitions (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id   TEXT    NOT NULL,
	sensor_ts    INTEGER NOT NULL,
	trigger_kind TEXT    NOT NULL,
	classifier   TEXT    NOT NULL,
	from_mode    TEXT    NOT NULL,
	to_mode      TEXT    NOT NULL,
	enclosed     INTEGER NOT NULL,
	err_text     TEXT    NOT NULL DEFAULT '',
	recorded_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transitions_session ON transitions(session_id);
`

// Transition is one stored row.
type Transition struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	SensorTS   int64     `json:"sensor_ts"`
	Trigger    string    `json:"trigger"`
	Classifier string    `json:"classifier"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Enclosed   bool      `json:"enclosed"`
	Error      string    `json:"error,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Store is a sqlite-backed transition log.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the database at path. Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	// One connection keeps ":memory:" databases alive and writes serialized.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores ev if it changed the ringer. Other evaluations are ignored.
func (s *Store) Record(ctx context.Context, ev engine.Evaluation) error {
	if !ev.Changed {
		return nil
	}
	enclosed := 0
	if ev.Enclosed {
		enclosed = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transitions
			(session_id, sensor_ts, trigger_kind, classifier, from_mode, to_mode, enclosed, err_text, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.SessionID, ev.Timestamp, ev.Trigger, ev.Classifier,
		ev.From.String(), ev.To.String(), enclosed, ev.Error, s.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("history: insert: %w", err)
	}
	return nil
}

// OnEvaluation lets the store be registered as an engine listener.
func (s *Store) OnEvaluation(ev engine.Evaluation) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Record(ctx, ev); err != nil {
		log.Printf("history: %v", err)
	}
}

// Recent returns up to limit transitions, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Transition, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, sensor_ts, trigger_kind, classifier, from_mode, to_mode, enclosed, err_text, recorded_at
		 FROM transitions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var (
			t        Transition
			enclosed int
			recorded int64
		)
		if err := rows.Scan(&t.ID, &t.SessionID, &t.SensorTS, &t.Trigger, &t.Classifier,
			&t.From, &t.To, &enclosed, &t.Error, &recorded); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		t.Enclosed = enclosed != 0
		t.RecordedAt = time.Unix(0, recorded)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: rows: %w", err)
	}
	return out, nil
}

// CountBySession returns how many transitions a session produced.
func (s *Store) CountBySession(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transitions WHERE session_id = ?`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("history: count: %w", err)
	}
	return n, nil
}
