package store

import (
	"context"
	"errors"
	"fmt"
)

// schemaVersion is bumped whenever the recordings schema changes.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database was written by another schema version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

const schemaSQL = `
CREATE TABLE IF NOT EXISTS recordings (
	id            TEXT PRIMARY KEY,
	program       TEXT NOT NULL,
	instance      TEXT NOT NULL,
	prompt_order  INTEGER NOT NULL,
	created_at    INTEGER NOT NULL,
	payload       BLOB,
	remote_ref    TEXT,
	upload_status TEXT NOT NULL DEFAULT 'pending',
	size_bytes    INTEGER NOT NULL DEFAULT 0,
	updated_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_recordings_prompt ON recordings(program, instance, prompt_order, created_at);
CREATE INDEX IF NOT EXISTS idx_recordings_status ON recordings(program, instance, upload_status);

CREATE TABLE IF NOT EXISTS scopes (
	program       TEXT NOT NULL,
	instance      TEXT NOT NULL,
	first_seen_at TEXT NOT NULL,
	PRIMARY KEY (program, instance)
);
`

func (s *SQLiteStore) migrate(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists > 0 {
		var version int
		if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
			return fmt.Errorf("read schema version: %w", err)
		}
		if version != schemaVersion {
			return fmt.Errorf("%w: database has version %d, expected %d", ErrSchemaMismatch, version, schemaVersion)
		}
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "CREATE TABLE schema_version (version INTEGER NOT NULL)"); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}
