package store

import (
	"database/sql"
	"fmt"
)

// Schema for the sessions table. One row per session id; location updates
// rewrite the row in place, they never insert.
const sessionsSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id                 TEXT PRIMARY KEY,
	reporter_id        TEXT NOT NULL,
	status             TEXT NOT NULL CHECK (status IN ('active', 'responding', 'resolved', 'false_alarm')),
	initial_latitude   REAL NOT NULL,
	initial_longitude  REAL NOT NULL,
	initial_timestamp  TIMESTAMP NOT NULL,
	last_latitude      REAL NOT NULL,
	last_longitude     REAL NOT NULL,
	last_timestamp     TIMESTAMP NOT NULL,
	created_at         TIMESTAMP NOT NULL,
	responded_by       TEXT,
	responded_at       TIMESTAMP,
	ended_at           TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_sessions_reporter ON sessions(reporter_id);
CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at);
`

// initSchema creates tables and indexes if they do not exist yet.
func initSchema(db *sql.DB) error {
	if _, err := db.Exec(sessionsSchema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// applySQLitePragmas tunes SQLite for one writer and concurrent readers.
func applySQLitePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}
	return nil
}
