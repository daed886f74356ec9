// Package sqlitestore implements the repository contracts on SQLite.
//
// Every partitioned table carries a sandbox_id column ('' for production)
// and a sandbox_expires_at column; all queries filter on sandbox_id so the
// two partitions are never joined or cross-read.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/reputor/reputor/internal/adapters/repository"
	"github.com/reputor/reputor/pkg/logger"

	_ "modernc.org/sqlite" // database/sql driver
)

const schema = `
CREATE TABLE IF NOT EXISTS employment_records (
	id                 TEXT PRIMARY KEY,
	subject_id         TEXT NOT NULL,
	employer_id        TEXT NOT NULL,
	start_at           TEXT NOT NULL,
	end_at             TEXT,
	verified           INTEGER NOT NULL DEFAULT 0,
	sandbox_id         TEXT NOT NULL DEFAULT '',
	sandbox_expires_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_employment_subject ON employment_records(subject_id, sandbox_id);

CREATE TABLE IF NOT EXISTS reference_records (
	id                 TEXT PRIMARY KEY,
	subject_id         TEXT NOT NULL,
	source_id          TEXT NOT NULL,
	rating             REAL NOT NULL,
	sandbox_id         TEXT NOT NULL DEFAULT '',
	sandbox_expires_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_reference_subject ON reference_records(subject_id, sandbox_id);

CREATE TABLE IF NOT EXISTS dispute_records (
	id                 TEXT PRIMARY KEY,
	subject_id         TEXT NOT NULL,
	resolved           INTEGER NOT NULL DEFAULT 0,
	sandbox_id         TEXT NOT NULL DEFAULT '',
	sandbox_expires_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_dispute_subject ON dispute_records(subject_id, sandbox_id);

CREATE TABLE IF NOT EXISTS rehire_flags (
	subject_id         TEXT NOT NULL,
	employer_id        TEXT NOT NULL,
	eligible           INTEGER NOT NULL DEFAULT 0,
	sandbox_id         TEXT NOT NULL DEFAULT '',
	sandbox_expires_at TEXT,
	PRIMARY KEY (subject_id, employer_id, sandbox_id)
);

CREATE TABLE IF NOT EXISTS fraud_flags (
	id                 TEXT PRIMARY KEY,
	subject_id         TEXT NOT NULL,
	sandbox_id         TEXT NOT NULL DEFAULT '',
	sandbox_expires_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_fraud_subject ON fraud_flags(subject_id, sandbox_id);

CREATE TABLE IF NOT EXISTS behavioral_vectors (
	subject_id         TEXT NOT NULL,
	dims_json          TEXT NOT NULL,
	role               TEXT NOT NULL DEFAULT '',
	sub_industry       TEXT NOT NULL DEFAULT '',
	industry           TEXT NOT NULL DEFAULT '',
	employer_id        TEXT NOT NULL DEFAULT '',
	sandbox_id         TEXT NOT NULL DEFAULT '',
	sandbox_expires_at TEXT,
	PRIMARY KEY (subject_id, sandbox_id)
);

CREATE TABLE IF NOT EXISTS rule_set_versions (
	id                TEXT PRIMARY KEY,
	name              TEXT NOT NULL,
	tag               TEXT NOT NULL,
	config_json       TEXT NOT NULL,
	active_sandbox    INTEGER NOT NULL DEFAULT 0,
	active_production INTEGER NOT NULL DEFAULT 0,
	created_at        TEXT NOT NULL,
	UNIQUE (name, tag)
);

CREATE TABLE IF NOT EXISTS score_snapshots (
	subject_id         TEXT NOT NULL,
	kind               TEXT NOT NULL,
	counterparty_id    TEXT NOT NULL DEFAULT '',
	composite          REAL NOT NULL,
	breakdown_json     TEXT NOT NULL,
	model_version      TEXT NOT NULL,
	degraded           INTEGER NOT NULL DEFAULT 0,
	computed_at        TEXT NOT NULL,
	sandbox_id         TEXT NOT NULL DEFAULT '',
	sandbox_expires_at TEXT,
	PRIMARY KEY (subject_id, kind, counterparty_id, sandbox_id)
);

CREATE TABLE IF NOT EXISTS score_history (
	id              TEXT PRIMARY KEY,
	subject_id      TEXT NOT NULL,
	kind            TEXT NOT NULL,
	counterparty_id TEXT NOT NULL DEFAULT '',
	previous_value  REAL NOT NULL,
	new_value       REAL NOT NULL,
	delta           REAL NOT NULL,
	reason          TEXT NOT NULL,
	triggered_by    TEXT NOT NULL,
	trigger_type    TEXT NOT NULL,
	sandbox_id      TEXT NOT NULL DEFAULT '',
	created_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_history_subject ON score_history(subject_id, kind, sandbox_id);

CREATE TABLE IF NOT EXISTS behavioral_baselines (
	scope              TEXT NOT NULL,
	scope_id           TEXT NOT NULL,
	dims_json          TEXT NOT NULL,
	sample_count       INTEGER NOT NULL,
	computed_at        TEXT NOT NULL,
	sandbox_id         TEXT NOT NULL DEFAULT '',
	sandbox_expires_at TEXT,
	PRIMARY KEY (scope, scope_id, sandbox_id)
);
`

// Store implements repository.Store on a SQLite database.
type Store struct {
	db     *sql.DB
	logger logger.Logger
	clock  func() time.Time
}

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source, for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// New opens (or creates) the database at path and runs migrations.
// Use ":memory:" for an ephemeral store.
func New(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite allows one writer; a single pooled connection also keeps
	// ":memory:" databases from splitting across connections.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("%w: %w", repository.ErrUnavailable, err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger.Get().Named("sqlitestore"),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}
	return nil
}

// tableExists is the capability-detection step: signal families whose table
// is absent fall back to their declared zero value instead of erroring.
func (s *Store) tableExists(ctx context.Context, name string) bool {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name=?`, name).Scan(&n)
	return err == nil && n > 0
}

// expiryValue renders the sandbox expiry column value for a partition.
func expiryValue(expires time.Time) any {
	if expires.IsZero() {
		return nil
	}
	return expires.UTC().Format(time.RFC3339Nano)
}
