// Package history keeps the results of past runs in a DuckDB database.
//
// Each run stores its segmentation counts, reading-count histograms and
// monthly consumption, so consumption trends can be compared across input
// files. Monthly Parquet exports can be loaded back with ImportMonthlyParquet.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/xtxerr/billstats/internal/errors"
)

// =============================================================================
// Store Configuration
// =============================================================================

// Config holds store configuration options.
type Config struct {
	// DSN is the database path. Empty means an in-memory database.
	DSN string

	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int

	// QueryTimeout is the default timeout for queries.
	QueryTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxOpenConns: 4,
		QueryTimeout: 30 * time.Second,
	}
}

// =============================================================================
// Store
// =============================================================================

// Store provides run history operations.
//
// Store is safe for concurrent use.
type Store struct {
	db     *sql.DB
	config Config
	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) the history database and ensures the schema.
func Open(cfg Config) (*Store, error) {
	db, err := sql.Open("duckdb", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = DefaultConfig().QueryTimeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{
		db:     db,
		config: cfg,
	}

	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	return s.db.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		run_id           VARCHAR PRIMARY KEY,
		input            VARCHAR NOT NULL,
		started_at       TIMESTAMP NOT NULL,
		finished_at      TIMESTAMP NOT NULL,
		lines_read       BIGINT NOT NULL,
		records_accepted BIGINT NOT NULL,
		records_rejected BIGINT NOT NULL,
		source_error     VARCHAR,
		unique_customers BIGINT NOT NULL,
		electricity_only BIGINT NOT NULL,
		gas_only         BIGINT NOT NULL,
		both_services    BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS monthly (
		run_id  VARCHAR NOT NULL,
		service VARCHAR NOT NULL,
		month   INTEGER NOT NULL,
		count   BIGINT NOT NULL,
		total   DOUBLE NOT NULL,
		avg     DOUBLE NOT NULL,
		min     DOUBLE NOT NULL,
		max     DOUBLE NOT NULL,
		p50     DOUBLE,
		p90     DOUBLE,
		p99     DOUBLE,
		PRIMARY KEY (run_id, service, month)
	)`,
	`CREATE TABLE IF NOT EXISTS histogram (
		run_id    VARCHAR NOT NULL,
		service   VARCHAR NOT NULL,
		readings  INTEGER NOT NULL,
		customers INTEGER NOT NULL,
		PRIMARY KEY (run_id, service, readings)
	)`,
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %v: %w", err, errors.ErrDatabase)
		}
	}
	return nil
}

// =============================================================================
// Transaction Support
// =============================================================================

// TransactionContext executes a function within a database transaction.
//
// If the function returns an error, the transaction is rolled back.
// If the function returns nil, the transaction is committed.
func (s *Store) TransactionContext(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.config.QueryTimeout)
}

// quoteLiteral quotes s as a SQL string literal.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
