// Package store is Fold's metadata store (C1): relational persistence for
// projects, memories, chunks, links, jobs, and providers, backed by
// modernc.org/sqlite the same way internal/vectorstore/sqlite is. WAL mode
// and foreign keys are turned on at connection time; every mutation is
// visible to a subsequent read in the same process.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver

	"github.com/ferg-cod3s/fold/internal/ferrors"
)

// Store is the SQLite-backed metadata store.
type Store struct {
	db *sql.DB
}

// Open creates (or opens) the metadata database at path, applying the
// schema idempotently. path may be ":memory:" for an in-process store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open metadata db: %w", err)
	}

	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.applySchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	slug TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	root_path TEXT,
	remote_url TEXT,
	include_globs TEXT NOT NULL DEFAULT '[]',
	exclude_globs TEXT NOT NULL DEFAULT '[]',
	auto_commit INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS memories (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	kind TEXT NOT NULL,
	source TEXT NOT NULL,
	title TEXT,
	author TEXT,
	keywords TEXT NOT NULL DEFAULT '[]',
	tags TEXT NOT NULL DEFAULT '[]',
	context TEXT,
	file_path TEXT,
	language TEXT,
	start_line INTEGER,
	end_line INTEGER,
	body TEXT,
	content_hash TEXT,
	original_date INTEGER,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	retrieval_count INTEGER NOT NULL DEFAULT 0,
	last_accessed INTEGER
);
CREATE INDEX IF NOT EXISTS idx_memories_project ON memories(project_id);
CREATE INDEX IF NOT EXISTS idx_memories_file_path ON memories(project_id, file_path);

CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	memory_id TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	node_type TEXT NOT NULL,
	node_name TEXT,
	content TEXT NOT NULL,
	start_line INTEGER NOT NULL,
	end_line INTEGER NOT NULL,
	start_byte INTEGER NOT NULL,
	end_byte INTEGER NOT NULL,
	language TEXT,
	content_hash TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_memory ON chunks(memory_id);
CREATE INDEX IF NOT EXISTS idx_chunks_project ON chunks(project_id);

CREATE TABLE IF NOT EXISTS links (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	source_id TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	target_id TEXT NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
	type TEXT NOT NULL,
	provenance TEXT NOT NULL,
	confidence REAL NOT NULL DEFAULT 1.0,
	created_at INTEGER NOT NULL,
	UNIQUE(project_id, source_id, target_id, type)
);
CREATE INDEX IF NOT EXISTS idx_links_source ON links(source_id);
CREATE INDEX IF NOT EXISTS idx_links_target ON links(target_id);

CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	status TEXT NOT NULL,
	priority INTEGER NOT NULL DEFAULT 0,
	project_id TEXT REFERENCES projects(id) ON DELETE CASCADE,
	total INTEGER NOT NULL DEFAULT 0,
	processed INTEGER NOT NULL DEFAULT 0,
	failed INTEGER NOT NULL DEFAULT 0,
	lease_owner TEXT,
	lease_expires INTEGER,
	retry_count INTEGER NOT NULL DEFAULT 0,
	scheduled_at INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	started_at INTEGER,
	finished_at INTEGER,
	result TEXT,
	error TEXT
);
CREATE INDEX IF NOT EXISTS idx_jobs_claim ON jobs(status, scheduled_at, priority, created_at);

CREATE TABLE IF NOT EXISTS job_logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
	level TEXT NOT NULL,
	message TEXT NOT NULL,
	metadata TEXT,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_job_logs_job ON job_logs(job_id);

CREATE TABLE IF NOT EXISTS providers (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	name TEXT NOT NULL,
	endpoint TEXT,
	model TEXT,
	priority INTEGER NOT NULL DEFAULT 0,
	api_key TEXT,
	oauth_token TEXT,
	enabled INTEGER NOT NULL DEFAULT 1,
	last_used INTEGER,
	consecutive_errs INTEGER NOT NULL DEFAULT 0,
	last_error TEXT,
	last_error_at INTEGER,
	usage_count INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_providers_kind_priority ON providers(kind, priority);
`

func (s *Store) applySchema() error {
	_, err := s.db.Exec(schema)
	return err
}

func unixOrNil(t *time.Time) interface{} {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.Unix()
}

func timePtrFromNull(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(n.Int64, 0).UTC()
	return &t
}

// classify turns a raw sql error into the Fold error taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if err == sql.ErrNoRows {
		return ferrors.New(ferrors.NotFound, op, "not found")
	}
	msg := err.Error()
	if containsAny(msg, "UNIQUE constraint failed", "constraint failed: UNIQUE") {
		return ferrors.Wrap(ferrors.Conflict, op, "unique constraint violation", err)
	}
	if containsAny(msg, "database is locked", "busy") {
		return ferrors.Wrap(ferrors.Transient, op, "store busy", err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if len(s) >= len(sub) && indexOf(s, sub) >= 0 {
			return true
		}
	}
	return false
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back otherwise. Used by the job queue's atomic claim protocol (§4.11).
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify("store.WithTx", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return classify("store.WithTx", err)
	}
	return nil
}
