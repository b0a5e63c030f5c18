// Package store persists the engine's durable rows (operations, sync state,
// conflicts, integrity records) in SQLite. Timestamps are stored as unix
// milliseconds so scheduling comparisons stay in SQL.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS operations (
	id                  TEXT PRIMARY KEY,
	kind                TEXT NOT NULL,
	entity_type         TEXT NOT NULL,
	entity_id           TEXT NOT NULL DEFAULT '',
	status              TEXT NOT NULL,
	priority            INTEGER NOT NULL DEFAULT 1,
	created_at          INTEGER NOT NULL,
	scheduled_at        INTEGER NOT NULL,
	last_attempt_at     INTEGER,
	retry_count         INTEGER NOT NULL DEFAULT 0,
	max_retries         INTEGER NOT NULL DEFAULT 3,
	network_requirement TEXT NOT NULL DEFAULT 'ANY',
	estimated_size      INTEGER NOT NULL DEFAULT 0,
	payload             TEXT NOT NULL,
	depends_on          TEXT NOT NULL DEFAULT '[]',
	last_error          TEXT NOT NULL DEFAULT '',
	resolution_hint     TEXT NOT NULL DEFAULT '',
	metadata            TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_operations_executable
	ON operations (status, network_requirement, scheduled_at, priority, created_at);

CREATE TABLE IF NOT EXISTS sync_states (
	entity_type      TEXT NOT NULL,
	entity_id        TEXT NOT NULL,
	local_version    INTEGER NOT NULL DEFAULT 0,
	remote_version   INTEGER NOT NULL DEFAULT 0,
	last_synced_at   INTEGER,
	status           TEXT NOT NULL,
	conflict_payload TEXT NOT NULL DEFAULT '',
	checksum         TEXT NOT NULL DEFAULT '',
	attempt_count    INTEGER NOT NULL DEFAULT 0,
	last_error       TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (entity_type, entity_id)
);

CREATE TABLE IF NOT EXISTS conflict_records (
	id               TEXT PRIMARY KEY,
	entity_type      TEXT NOT NULL,
	entity_id        TEXT NOT NULL,
	kind             TEXT NOT NULL,
	detail           TEXT NOT NULL DEFAULT '',
	local_payload    TEXT NOT NULL DEFAULT '',
	remote_payload   TEXT NOT NULL DEFAULT '',
	merged_payload   TEXT NOT NULL DEFAULT '',
	strategy         TEXT NOT NULL,
	resolved_at      INTEGER,
	resolved_by      TEXT NOT NULL DEFAULT '',
	confidence       REAL NOT NULL DEFAULT 0,
	resolved         INTEGER NOT NULL DEFAULT 0,
	notes            TEXT NOT NULL DEFAULT '',
	affected_fields  TEXT NOT NULL DEFAULT '[]',
	field_strategies TEXT NOT NULL DEFAULT '{}',
	detected_at      INTEGER NOT NULL,
	operation_id     TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_conflicts_unresolved ON conflict_records (resolved, detected_at);

CREATE TABLE IF NOT EXISTS integrity_records (
	id                 TEXT PRIMARY KEY,
	entity_type        TEXT NOT NULL,
	entity_id          TEXT NOT NULL,
	validated_at       INTEGER NOT NULL,
	valid              INTEGER NOT NULL,
	rules_checked      TEXT NOT NULL DEFAULT '[]',
	failed_rules       TEXT NOT NULL DEFAULT '[]',
	details            TEXT NOT NULL DEFAULT '{}',
	correction_applied INTEGER NOT NULL DEFAULT 0,
	correction_note    TEXT NOT NULL DEFAULT '',
	checksum           TEXT NOT NULL DEFAULT '',
	schema_version     INTEGER NOT NULL DEFAULT 1,
	severity           TEXT NOT NULL DEFAULT 'info',
	auto_fixable       INTEGER NOT NULL DEFAULT 0,
	fix_description    TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_integrity_entity ON integrity_records (entity_type, entity_id, validated_at);
`

// Open opens (or creates) the database and applies the schema. busy_timeout
// lets the enqueue path and the processing loop share the file.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return db, nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func toMillisPtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func fromMillisPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}
