// Package store provides storage backends for harvest results and the
// harvest tracker.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Pure Go SQLite driver registered as "sqlite".
	_ "modernc.org/sqlite"

	"github.com/MyCarrier-DevOps/cherry-harvest/internal/domain"
)

// DriverName is the database/sql driver used for the local store.
const DriverName = "sqlite"

// SQLiteStore keeps harvest results and harvested repositories in a local
// SQLite database. It implements domain.ResultSink and domain.HarvestTracker.
type SQLiteStore struct {
	db *sql.DB
}

func openDatabase(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
			}
		}
	}

	db, err := sql.Open(DriverName, path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	return db, nil
}

// NewSQLiteStore opens (or creates) the database at path and applies migrations.
// Use ":memory:" for a throwaway store.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := openDatabase(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := ApplyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Contains reports whether repo was recorded as harvested.
func (s *SQLiteStore) Contains(ctx context.Context, repo string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM harvested_repositories WHERE name = ?", repo).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to query harvested repository %s: %w", repo, err)
	}
	return n > 0, nil
}

// Add records repo as harvested. Adding it again refreshes the timestamp.
func (s *SQLiteStore) Add(ctx context.Context, repo string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO harvested_repositories (name, harvested_at) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET harvested_at = excluded.harvested_at
	`, repo, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record harvested repository %s: %w", repo, err)
	}
	return nil
}

// Save stores one run and its results in a single transaction.
func (s *SQLiteStore) Save(ctx context.Context, run domain.RunInfo, results []domain.SearchResult) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO harvest_runs (name, total_commits, total_results, started_at)
		VALUES (?, ?, ?, ?)
	`, run.Name, run.TotalCommits, len(results), run.StartedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.Name, err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return err
	}

	for _, loc := range run.Repositories {
		if _, err = tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO run_repositories (run_id, location) VALUES (?, ?)", runID, loc); err != nil {
			return fmt.Errorf("failed to insert run repository %s: %w", loc, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO cherry_picks (
			run_id, search_method, repository, similarity,
			source_id, source_time, target_id, target_time,
			source_message, target_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare result insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range results {
		src, tgt := r.CherryPick.Source.Commit, r.CherryPick.Target.Commit
		if _, err = stmt.ExecContext(ctx,
			runID, r.Method, r.Repository, r.Similarity,
			src.ID, src.Time.UTC(), tgt.ID, tgt.Time.UTC(),
			src.Message, tgt.Message,
		); err != nil {
			return fmt.Errorf("failed to insert result %s: %w", r.CherryPick.Key(), err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", run.Name, err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
