package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// CurrentSchemaVersion is the schema version produced by AllMigrations.
const CurrentSchemaVersion = "1.1.0"

// Migration is a forward schema change identified by a semantic version.
type Migration struct {
	Version string
	Up      string
}

// AllMigrations lists schema migrations in ascending version order.
var AllMigrations = []Migration{
	{Version: "1.0.0", Up: migrationV1},
	{Version: "1.1.0", Up: migrationV1_1},
}

const migrationV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
    version TEXT PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS harvested_repositories (
    name TEXT PRIMARY KEY,
    harvested_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS harvest_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    total_commits INTEGER NOT NULL,
    total_results INTEGER NOT NULL,
    started_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_harvest_runs_name ON harvest_runs(name);

CREATE TABLE IF NOT EXISTS cherry_picks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id INTEGER NOT NULL,
    search_method TEXT NOT NULL,
    repository TEXT NOT NULL,
    similarity REAL NOT NULL,
    source_id TEXT NOT NULL,
    source_time TIMESTAMP NOT NULL,
    target_id TEXT NOT NULL,
    target_time TIMESTAMP NOT NULL,
    FOREIGN KEY (run_id) REFERENCES harvest_runs(id) ON DELETE CASCADE,
    UNIQUE(run_id, search_method, source_id, target_id)
);

CREATE INDEX IF NOT EXISTS idx_cherry_picks_source ON cherry_picks(source_id);
CREATE INDEX IF NOT EXISTS idx_cherry_picks_target ON cherry_picks(target_id);
`

const migrationV1_1 = `
ALTER TABLE cherry_picks ADD COLUMN source_message TEXT NOT NULL DEFAULT '';
ALTER TABLE cherry_picks ADD COLUMN target_message TEXT NOT NULL DEFAULT '';

CREATE TABLE IF NOT EXISTS run_repositories (
    run_id INTEGER NOT NULL,
    location TEXT NOT NULL,
    FOREIGN KEY (run_id) REFERENCES harvest_runs(id) ON DELETE CASCADE,
    PRIMARY KEY (run_id, location)
);
`

// SchemaVersion returns the highest applied schema version, or 0.0.0 on an empty database.
func SchemaVersion(ctx context.Context, db *sql.DB) (*semver.Version, error) {
	var tableName string
	err := db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&tableName)
	if err == sql.ErrNoRows {
		return semver.MustParse("0.0.0"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check schema_version table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_version")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema_version: %w", err)
	}
	defer rows.Close()

	current := semver.MustParse("0.0.0")
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan schema_version: %w", err)
		}
		v, err := semver.NewVersion(s)
		if err != nil {
			return nil, fmt.Errorf("invalid schema version %s: %w", s, err)
		}
		if v.GreaterThan(current) {
			current = v
		}
	}
	return current, rows.Err()
}

// ApplyMigrations runs every migration newer than the database's schema version.
func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	current, err := SchemaVersion(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range AllMigrations {
		v, err := semver.NewVersion(m.Version)
		if err != nil {
			return fmt.Errorf("invalid migration version %s: %w", m.Version, err)
		}
		if !current.LessThan(v) {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %s: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, m.Up); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to apply migration %s: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", m.Version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record migration %s: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", m.Version, err)
		}
		current = v
	}
	return nil
}
