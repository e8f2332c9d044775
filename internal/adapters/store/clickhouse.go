package store

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"regexp"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/MyCarrier-DevOps/cherry-harvest/internal/domain"
)

// DefaultClickHouseDatabase is used when no database is configured.
const DefaultClickHouseDatabase = "ci"

// ErrInvalidDatabaseName indicates a database name that is not a plain identifier.
var ErrInvalidDatabaseName = errors.New("invalid ClickHouse database name")

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ClickHouseConfig holds connection settings for the results warehouse.
type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
	TLS      bool
}

// chBatch is the part of driver.Batch the store uses.
type chBatch interface {
	Append(v ...any) error
	Send() error
	Abort() error
}

// chConn is the part of driver.Conn the store uses.
type chConn interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, query string, args ...any) error
	PrepareBatch(ctx context.Context, query string) (chBatch, error)
	Close() error
}

// driverConn adapts driver.Conn to chConn.
type driverConn struct {
	conn driver.Conn
}

func (d driverConn) Ping(ctx context.Context) error { return d.conn.Ping(ctx) }

func (d driverConn) Exec(ctx context.Context, query string, args ...any) error {
	return d.conn.Exec(ctx, query, args...)
}

func (d driverConn) PrepareBatch(ctx context.Context, query string) (chBatch, error) {
	return d.conn.PrepareBatch(ctx, query)
}

func (d driverConn) Close() error { return d.conn.Close() }

// ClickHouseStore writes harvest results to a shared ClickHouse table.
// It implements domain.ResultSink.
type ClickHouseStore struct {
	conn     chConn
	database string
}

// NewClickHouseStore connects to ClickHouse and ensures the results table exists.
func NewClickHouseStore(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseStore, error) {
	if cfg.Database == "" {
		cfg.Database = DefaultClickHouseDatabase
	}
	if !identifierPattern.MatchString(cfg.Database) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDatabaseName, cfg.Database)
	}

	opts := &clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	}
	if cfg.TLS {
		opts.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open ClickHouse connection: %w", err)
	}
	return newClickHouseStore(ctx, driverConn{conn: conn}, cfg.Database)
}

func newClickHouseStore(ctx context.Context, conn chConn, database string) (*ClickHouseStore, error) {
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}
	s := &ClickHouseStore{conn: conn, database: database}
	if err := conn.Exec(ctx, s.createTableQuery()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create results table: %w", err)
	}
	return s, nil
}

func (s *ClickHouseStore) table() string {
	return s.database + ".cherry_picks"
}

func (s *ClickHouseStore) createTableQuery() string {
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			run_name String,
			started_at DateTime64(3, 'UTC'),
			search_method LowCardinality(String),
			repository String,
			similarity Float64,
			source_id String,
			source_time DateTime64(3, 'UTC'),
			source_message String,
			target_id String,
			target_time DateTime64(3, 'UTC'),
			target_message String
		) ENGINE = ReplacingMergeTree
		ORDER BY (run_name, search_method, source_id, target_id)
	`, s.table())
}

// Save appends all results of a run as one batch. Empty runs are skipped.
func (s *ClickHouseStore) Save(ctx context.Context, run domain.RunInfo, results []domain.SearchResult) error {
	if len(results) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO "+s.table())
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	started := run.StartedAt.UTC()
	for _, r := range results {
		src, tgt := r.CherryPick.Source.Commit, r.CherryPick.Target.Commit
		err := batch.Append(
			run.Name, started, r.Method, r.Repository, r.Similarity,
			src.ID, src.Time.UTC(), src.Message,
			tgt.ID, tgt.Time.UTC(), tgt.Message,
		)
		if err != nil {
			_ = batch.Abort()
			return fmt.Errorf("failed to append result %s: %w", r.CherryPick.Key(), err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch for run %s: %w", run.Name, err)
	}
	return nil
}

// Close releases the connection.
func (s *ClickHouseStore) Close() error {
	return s.conn.Close()
}
