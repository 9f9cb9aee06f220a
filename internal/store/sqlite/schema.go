// SPDX-License-Identifier: MIT

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// Timestamps are stored as unix seconds (UTC); nullable columns mean
// "not set". status_log is append-only: rows are never updated or
// deleted after insert.
const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id                    TEXT PRIMARY KEY,
	status                TEXT NOT NULL DEFAULT 'draft',
	title                 TEXT NOT NULL DEFAULT '',
	objective             TEXT NOT NULL DEFAULT '',
	description           TEXT NOT NULL DEFAULT '',
	starts_at             INTEGER,
	ends_at               INTEGER,
	location_id           TEXT NOT NULL DEFAULT '',
	trainer_id            TEXT NOT NULL DEFAULT '',
	topic_id              TEXT NOT NULL DEFAULT '',
	headline              TEXT NOT NULL DEFAULT '',
	summary               TEXT NOT NULL DEFAULT '',
	key_benefits          TEXT NOT NULL DEFAULT '',
	call_to_action        TEXT NOT NULL DEFAULT '',
	landing_page_url      TEXT NOT NULL DEFAULT '',
	registration_url      TEXT NOT NULL DEFAULT '',
	readiness             INTEGER NOT NULL DEFAULT 0,
	published_at          INTEGER,
	validation_valid      INTEGER NOT NULL DEFAULT 0,
	validation_messages   TEXT NOT NULL DEFAULT '[]',
	validation_checked_at INTEGER,
	version               INTEGER NOT NULL DEFAULT 1,
	created_at            INTEGER NOT NULL,
	updated_at            INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);
CREATE INDEX IF NOT EXISTS idx_sessions_window ON sessions(status, starts_at, ends_at);

CREATE TABLE IF NOT EXISTS status_log (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	from_status TEXT NOT NULL,
	to_status   TEXT NOT NULL,
	actor      TEXT NOT NULL DEFAULT '',
	automated  INTEGER NOT NULL DEFAULT 0,
	remark     TEXT NOT NULL DEFAULT '',
	readiness  INTEGER NOT NULL DEFAULT 0,
	snapshot   TEXT NOT NULL DEFAULT '{}',
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_status_log_session ON status_log(session_id, created_at);
CREATE INDEX IF NOT EXISTS idx_status_log_created ON status_log(created_at);

CREATE TABLE IF NOT EXISTS registrations (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_registrations_session ON registrations(session_id);

CREATE TABLE IF NOT EXISTS content_versions (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL REFERENCES sessions(id),
	kind       TEXT NOT NULL,
	accepted   INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_content_versions_session ON content_versions(session_id, accepted);

CREATE TABLE IF NOT EXISTS incentives (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL DEFAULT '',
	name       TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL DEFAULT 'active',
	ends_at    INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_incentives_status ON incentives(status, ends_at);
`

// Migrate creates the workflow schema if it does not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sqlite: migrate failed: %w", err)
	}
	return nil
}
