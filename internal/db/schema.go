package db

// SchemaSQL is the complete schema for fresh installs.
// This schema reflects the current state after all migrations.
//
// # Schema Drift Protection
//
// This is the SINGLE SOURCE OF TRUTH for the database schema. All tests use
// this schema via GetSchemaSQL(). If repository code references a column
// that doesn't exist here, tests fail immediately with "no such column".
//
// # Timestamps
//
// Timestamps are stored as TEXT in fixed-width UTC form (see TimeLayout) so
// that lexical order equals chronological order in range predicates.
//
// # Live table vs archive
//
// case_notes has no soft-delete flag. Destructive mutations snapshot the
// note into deleted_case_notes and then hard-delete or overwrite the row,
// which keeps legacy_id unique among live notes.
const SchemaSQL = `
-- Category registry: parent types
CREATE TABLE IF NOT EXISTS note_types (
	code TEXT PRIMARY KEY,
	description TEXT NOT NULL,
	active INTEGER NOT NULL DEFAULT 1
);

-- Category registry: sub-types with their behaviour flags
CREATE TABLE IF NOT EXISTS note_sub_types (
	type_code TEXT NOT NULL,
	code TEXT NOT NULL,
	description TEXT NOT NULL,
	active INTEGER NOT NULL DEFAULT 1,
	sync_to_legacy INTEGER NOT NULL DEFAULT 0,
	restricted_use INTEGER NOT NULL DEFAULT 0,
	sensitive INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (type_code, code),
	FOREIGN KEY (type_code) REFERENCES note_types(code)
);

-- Case notes
CREATE TABLE IF NOT EXISTS case_notes (
	id TEXT PRIMARY KEY,
	legacy_id INTEGER UNIQUE,
	person_identifier TEXT NOT NULL,
	type_code TEXT NOT NULL,
	sub_type_code TEXT NOT NULL,
	occurred_at TEXT NOT NULL,
	location_code TEXT NOT NULL DEFAULT '',
	author_username TEXT NOT NULL,
	author_id TEXT NOT NULL,
	author_name TEXT NOT NULL,
	text TEXT NOT NULL,
	system_generated INTEGER NOT NULL DEFAULT 0,
	origin TEXT NOT NULL CHECK(origin IN ('DPS', 'LEGACY')),
	created_at TEXT NOT NULL,
	created_by TEXT NOT NULL,
	last_modified_at TEXT,
	last_modified_by TEXT,
	version INTEGER NOT NULL DEFAULT 1,
	FOREIGN KEY (type_code, sub_type_code) REFERENCES note_sub_types(type_code, code)
);

CREATE INDEX IF NOT EXISTS idx_case_notes_person ON case_notes(person_identifier, type_code, sub_type_code);
CREATE INDEX IF NOT EXISTS idx_case_notes_occurred ON case_notes(person_identifier, occurred_at);

-- Amendments
CREATE TABLE IF NOT EXISTS case_note_amendments (
	id TEXT PRIMARY KEY,
	case_note_id TEXT NOT NULL,
	author_username TEXT NOT NULL,
	author_id TEXT NOT NULL,
	author_name TEXT NOT NULL,
	text TEXT NOT NULL,
	created_at TEXT NOT NULL,
	created_by TEXT NOT NULL,
	FOREIGN KEY (case_note_id) REFERENCES case_notes(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_amendments_note ON case_note_amendments(case_note_id, created_at);

-- Audit archive (append-only)
CREATE TABLE IF NOT EXISTS deleted_case_notes (
	id TEXT PRIMARY KEY,
	case_note_id TEXT NOT NULL,
	legacy_id INTEGER,
	person_identifier TEXT NOT NULL,
	cause TEXT NOT NULL CHECK(cause IN ('DELETE', 'UPDATE', 'MOVE')),
	origin TEXT NOT NULL,
	deleted_by TEXT NOT NULL,
	deleted_at TEXT NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	snapshot TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_deleted_case_notes_note ON deleted_case_notes(case_note_id, deleted_at);
CREATE INDEX IF NOT EXISTS idx_deleted_case_notes_person ON deleted_case_notes(person_identifier);

-- Legacy id sequence (single row). Starts above the legacy system's own range.
CREATE TABLE IF NOT EXISTS legacy_id_sequence (
	id INTEGER PRIMARY KEY CHECK(id = 1),
	next_value INTEGER NOT NULL
);

INSERT OR IGNORE INTO legacy_id_sequence (id, next_value) VALUES (1, 1000000000);

-- Transactional outbox for domain events
CREATE TABLE IF NOT EXISTS case_note_events (
	id TEXT PRIMARY KEY,
	event_type TEXT NOT NULL,
	case_note_id TEXT NOT NULL,
	person_identifier TEXT NOT NULL,
	previous_person_identifier TEXT NOT NULL DEFAULT '',
	type_code TEXT NOT NULL,
	sub_type_code TEXT NOT NULL,
	source TEXT NOT NULL,
	occurred_at TEXT NOT NULL,
	published_at TEXT,
	attempts INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT '',
	dead_lettered_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_case_note_events_pending ON case_note_events(published_at, occurred_at);
`

// GetSchemaSQL returns the authoritative schema SQL for use by tests.
// Tests should use this instead of hardcoding their own schema to prevent drift.
func GetSchemaSQL() string {
	return SchemaSQL
}
