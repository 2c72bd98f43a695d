// Package database provides the PostgreSQL plumbing of testdb-kit: connection
// settings, admin and pooled connections, goose migrations, catalog
// introspection and the structured errors every operation returns.
package database

import (
	"context"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const driverName = "postgres"

// DB represents a single connection to a PostgreSQL server, either bound to a
// database or to the server only (an admin connection)
type DB struct {
	db     *sqlx.DB
	url    string
	logger *slog.Logger
}

// Connect opens a connection to rawURL using the driver options and logger of
// config. The underlying pool is capped at one connection so every statement
// runs in the same backend session.
func Connect(ctx context.Context, config Config, rawURL string) (*DB, error) {
	config = config.WithDefaults()

	sqlxConn, err := sqlx.ConnectContext(ctx, driverName, config.ConnString(rawURL))
	if err != nil {
		return nil, NewConnectionError("failed to establish database connection", err).
			WithContext("host", config.Host).
			WithContext("port", config.Port)
	}
	sqlxConn.SetMaxOpenConns(1)
	sqlxConn.SetMaxIdleConns(1)

	config.Logger.Debug("database connection established",
		slog.String("host", config.Host),
		slog.Int("port", config.Port),
	)

	return &DB{
		db:     sqlxConn,
		url:    rawURL,
		logger: config.Logger,
	}, nil
}

// OpenPool opens a connection pool to rawURL bounded by config.MaxOpenConns and
// verifies it with a ping
func OpenPool(ctx context.Context, config Config, rawURL string) (*sqlx.DB, error) {
	config = config.WithDefaults()

	pool, err := sqlx.Open(driverName, config.ConnString(rawURL))
	if err != nil {
		return nil, NewPoolCreationError("failed to open connection pool", err)
	}
	pool.SetMaxOpenConns(config.MaxOpenConns)
	pool.SetMaxIdleConns(config.MaxOpenConns)

	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, NewPoolCreationError("failed to reach database through pool", err).
			WithContext("max_open_conns", config.MaxOpenConns)
	}
	return pool, nil
}

// Close should be called once the connection is no longer needed.
func (d *DB) Close() error {
	return d.db.Close()
}

// DB returns the underlying *sqlx.DB instance
func (d *DB) DB() *sqlx.DB {
	return d.db
}

// URL returns the canonical URL the connection was opened against
func (d *DB) URL() string {
	return d.url
}

// Exec runs a statement that returns no rows
func (d *DB) Exec(ctx context.Context, query string) error {
	d.logger.Debug("executing statement", slog.String("query", query))
	_, err := d.db.ExecContext(ctx, query)
	return err
}

// Migrator returns a goose-backed migrator applying migrations from source
// over this connection
func (d *DB) Migrator(source MigrationSource) *GooseMigrator {
	return NewGooseMigrator(d.db, source, d.logger)
}

// Introspection returns a new introspection service for this database
func (d *DB) Introspection() *IntrospectionService {
	return NewIntrospectionService(d)
}
