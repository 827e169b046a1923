// Package store provides SQLite-backed persistence for attempts, phase
// responses, grid action traces and the ARC task cache.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// schemaV1 defines the initial database schema.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS attempts (
	attempt_id      TEXT PRIMARY KEY,
	participant_id  TEXT NOT NULL,
	task_id         TEXT NOT NULL,
	current_phase   TEXT NOT NULL DEFAULT 'viewing',
	status          TEXT NOT NULL DEFAULT 'running',
	state_version   INTEGER NOT NULL DEFAULT 1,
	action_count    INTEGER NOT NULL DEFAULT 0,
	last_event_seq  INTEGER NOT NULL DEFAULT 0,
	is_correct      INTEGER,
	solution_json   TEXT NOT NULL DEFAULT '',
	started_at_ms   INTEGER NOT NULL DEFAULT 0,
	updated_at_unix INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_attempts_participant ON attempts(participant_id);
CREATE INDEX IF NOT EXISTS idx_attempts_task ON attempts(task_id);

CREATE TABLE IF NOT EXISTS phase_events (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	attempt_id   TEXT NOT NULL,
	seq_no       INTEGER NOT NULL,
	phase        TEXT NOT NULL,
	event_type   TEXT NOT NULL,
	payload_json TEXT NOT NULL DEFAULT '{}',
	created_at   INTEGER NOT NULL,
	UNIQUE(attempt_id, seq_no)
);
CREATE INDEX IF NOT EXISTS idx_phase_events_attempt_seq ON phase_events(attempt_id, seq_no);

CREATE TABLE IF NOT EXISTS phase_responses (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	attempt_id   TEXT NOT NULL,
	phase        TEXT NOT NULL,
	payload_json TEXT NOT NULL DEFAULT '{}',
	created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_phase_responses_attempt_phase ON phase_responses(attempt_id, phase);

CREATE TABLE IF NOT EXISTS action_traces (
	action_id          TEXT PRIMARY KEY,
	attempt_id         TEXT NOT NULL,
	sequence_number    INTEGER NOT NULL,
	action_type        TEXT NOT NULL,
	cell_row           INTEGER,
	cell_column        INTEGER,
	color_value_before INTEGER,
	color_value_after  INTEGER,
	timestamp_ms       INTEGER NOT NULL,
	offset_ms          INTEGER NOT NULL DEFAULT 0,
	payload_json       TEXT NOT NULL DEFAULT '{}',
	UNIQUE(attempt_id, sequence_number)
);
CREATE INDEX IF NOT EXISTS idx_action_traces_attempt_seq ON action_traces(attempt_id, sequence_number);

CREATE TABLE IF NOT EXISTS session_signals (
	id           TEXT PRIMARY KEY,
	attempt_id   TEXT NOT NULL,
	kind         TEXT NOT NULL,
	action_count INTEGER NOT NULL,
	action_limit INTEGER NOT NULL,
	created_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_session_signals_attempt ON session_signals(attempt_id);

CREATE TABLE IF NOT EXISTS tasks (
	task_id    TEXT PRIMARY KEY,
	task_name  TEXT NOT NULL DEFAULT '',
	task_type  TEXT NOT NULL DEFAULT '',
	task_json  TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
`

// NewDB opens a SQLite database at the given path with recommended pragmas
// and runs the V1 schema migration.
func NewDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One writer; WAL still lets the SSE poller read between writes.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return db, nil
}

func migrate(db *sql.DB) error {
	_, err := db.ExecContext(context.Background(), schemaV1)
	return err
}
