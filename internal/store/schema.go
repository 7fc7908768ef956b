package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SchemaVersion is the current supported schema version. Opening a
// database with a newer version fails rather than risking data loss.
const SchemaVersion = 1

// ErrSchemaVersionTooNew is returned when the database was created by a
// newer release.
var ErrSchemaVersionTooNew = errors.New("database schema version is newer than supported")

const schemaV1 = `
-- Issued recommendations
CREATE TABLE IF NOT EXISTS recommendation (
  id               TEXT PRIMARY KEY,
  session_id       TEXT NOT NULL,
  item_id          TEXT NOT NULL,
  type             TEXT NOT NULL,            -- 'agent' or 'skill'
  slug             TEXT NOT NULL,
  name             TEXT NOT NULL,
  confidence       REAL NOT NULL,
  source           TEXT NOT NULL,
  matched_keywords TEXT NOT NULL DEFAULT '', -- pipe-separated
  project_path     TEXT,
  created_ms       INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_recommendation_session
  ON recommendation(session_id, created_ms DESC);
CREATE INDEX IF NOT EXISTS idx_recommendation_item
  ON recommendation(type, item_id);

-- User actions against recommendations
CREATE TABLE IF NOT EXISTS recommendation_action (
  id                INTEGER PRIMARY KEY AUTOINCREMENT,
  recommendation_id TEXT NOT NULL REFERENCES recommendation(id),
  action            TEXT NOT NULL,           -- 'accepted', 'dismissed', 'used'
  created_ms        INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_action_recommendation
  ON recommendation_action(recommendation_id);

-- Schema migrations tracking
CREATE TABLE IF NOT EXISTS schema_migrations (
  version    INTEGER PRIMARY KEY,
  applied_ms INTEGER NOT NULL
);
`

// Migration is a single schema migration.
type Migration struct {
	Version int
	SQL     string
}

// Migrations returns all known migrations in order.
func Migrations() []Migration {
	return []Migration{
		{Version: 1, SQL: schemaV1},
	}
}

// GetSchemaVersion returns the highest applied migration version, or 0
// for a fresh database.
func GetSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var tableName string
	err := db.QueryRowContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type='table' AND name='schema_migrations'
	`).Scan(&tableName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to check for schema_migrations table: %w", err)
	}

	var version int
	err = db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0) FROM schema_migrations
	`).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

// RunMigrations applies all pending migrations, each in its own
// transaction for atomicity.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	currentVersion, err := GetSchemaVersion(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	if currentVersion > SchemaVersion {
		return fmt.Errorf("%w: database version %d, supported version %d",
			ErrSchemaVersionTooNew, currentVersion, SchemaVersion)
	}

	for _, m := range Migrations() {
		if m.Version <= currentVersion {
			continue
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return fmt.Errorf("migration v%d failed: %w", m.Version, err)
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Best effort rollback on error

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO schema_migrations (version, applied_ms)
		VALUES (?, ?)
	`, m.Version, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}
