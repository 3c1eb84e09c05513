package runtime

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is a pooled PostgreSQL connection to the Thermos database.
type DB struct {
	pool   *pgxpool.Pool
	schema string
}

// Config represents database configuration.
type Config struct {
	// URL is a postgres:// URL or a key=value DSN.
	URL string

	// Schema is put first on the search_path of every connection.
	Schema string

	MaxConns int32
}

// poolConfig turns config into a pgxpool configuration.
func poolConfig(config *Config) (*pgxpool.Config, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("%w: empty database URL", ErrNoConnection)
	}

	poolConfig, err := pgxpool.ParseConfig(config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.Schema != "" {
		poolConfig.ConnConfig.RuntimeParams["search_path"] = pgx.Identifier{config.Schema}.Sanitize() + ", public"
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "thermos-console"

	return poolConfig, nil
}

// Connect opens a pool and verifies it with a ping.
func Connect(ctx context.Context, config *Config) (*DB, error) {
	pc, err := poolConfig(config)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test the connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool, schema: config.Schema}, nil
}

// ConnectWithURL opens a pool from a connection URL.
func ConnectWithURL(ctx context.Context, url string) (*DB, error) {
	return Connect(ctx, &Config{URL: url})
}

// Schema returns the configured schema, "public" when none was set.
func (db *DB) Schema() string {
	if db == nil || db.schema == "" {
		return "public"
	}
	return db.schema
}

// Close closes the database connection pool.
func (db *DB) Close() {
	if db != nil && db.pool != nil {
		db.pool.Close()
	}
}

// Ping verifies the database connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	if db == nil || db.pool == nil {
		return ErrNoConnection
	}
	return db.pool.Ping(ctx)
}

// Exec executes a statement and returns the number of affected rows.
func (db *DB) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	if db == nil || db.pool == nil {
		return 0, ErrNoConnection
	}
	result, err := db.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, &QueryError{Query: sql, Err: err}
	}
	return result.RowsAffected(), nil
}

// Query executes a query that returns rows.
func (db *DB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if db == nil || db.pool == nil {
		return nil, ErrNoConnection
	}
	rows, err := db.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, &QueryError{Query: sql, Err: err}
	}
	return rows, nil
}

// QueryRow executes a query that returns at most one row.
func (db *DB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if db == nil || db.pool == nil {
		return errRow{ErrNoConnection}
	}
	return db.pool.QueryRow(ctx, sql, args...)
}

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }
