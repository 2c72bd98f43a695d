package testdb

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/b87/testdb-kit/database"
)

// TestDB is a handle to one ephemeral database. It is created fully migrated
// by New and destroyed by Close.
//
// Go has no destructors: a TestDB that is never closed leaves its database on
// the server. Use NewT, With, or defer Close to bind teardown to a scope.
type TestDB struct {
	config database.Config
	name   string
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// New creates a uniquely named database on the server described by config,
// applies the configured migrations to it and returns a handle to it. It
// blocks until provisioning has fully completed. No handle is returned unless
// the database exists and every migration was applied.
//
// When migrating fails after the database was created, the database is
// dropped again unless config.KeepOnFailure is set.
func New(ctx context.Context, config database.Config) (*TestDB, error) {
	config = config.WithDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	name := GenerateName(config.Prefix)
	tdb := &TestDB{
		config: config,
		name:   name,
		logger: config.Logger.With(slog.String("database", name)),
	}

	if err := run(ctx, "provision", tdb.provision); err != nil {
		return nil, err
	}
	return tdb, nil
}

func (tdb *TestDB) provision(ctx context.Context) error {
	admin, err := database.Connect(ctx, tdb.config, tdb.AdminURL())
	if err != nil {
		return database.WrapError(err, database.ErrCodeConnectionFailed, "provision", "failed to connect as admin")
	}
	defer admin.Close()

	if err := admin.Exec(ctx, database.CreateDatabaseStatement(tdb.name)); err != nil {
		return database.NewCreateDatabaseError("failed to create database", err).
			WithOperation("provision").
			WithContext("database", tdb.name)
	}
	tdb.logger.Debug("database created")

	if err := tdb.migrate(ctx); err != nil {
		return tdb.discard(ctx, admin, err)
	}

	tdb.logger.Info("test database ready",
		slog.String("host", tdb.config.Host),
		slog.Int("port", tdb.config.Port),
		slog.String("migrations", tdb.config.MigrationSource().String()),
	)
	return nil
}

func (tdb *TestDB) migrate(ctx context.Context) error {
	conn, err := database.Connect(ctx, tdb.config, tdb.URL())
	if err != nil {
		return database.WrapError(err, database.ErrCodeConnectionFailed, "provision", "failed to connect to test database")
	}
	defer conn.Close()

	if err := conn.Migrator(tdb.config.MigrationSource()).Up(ctx); err != nil {
		return database.WrapError(err, database.ErrCodeMigrationFailed, "provision", "failed to migrate test database")
	}
	return nil
}

// discard removes a database whose provisioning failed after it was created.
// cause is returned, annotated with the orphan when the database stays behind.
func (tdb *TestDB) discard(ctx context.Context, admin *database.DB, cause error) error {
	if tdb.config.KeepOnFailure {
		tdb.logger.Warn("keeping database after failed provisioning", slog.Any("error", cause))
		return withOrphan(cause, tdb.name)
	}

	// The failure may be the cancellation of ctx itself.
	if err := dropDatabase(context.WithoutCancel(ctx), admin, tdb.name); err != nil {
		tdb.logger.Error("failed to drop database after failed provisioning",
			slog.Any("error", err),
			slog.Any("cause", cause),
		)
		return withOrphan(cause, tdb.name)
	}
	tdb.logger.Debug("database dropped after failed provisioning")
	return cause
}

// Close drops the database, forcibly terminating any other session still
// connected to it. It blocks until the database is gone. After a successful
// Close further calls return nil. On failure the database is left on the
// server, the handle stays open and the error names the orphan.
func (tdb *TestDB) Close() error {
	return tdb.CloseContext(context.Background())
}

// CloseContext is Close with a caller supplied context.
func (tdb *TestDB) CloseContext(ctx context.Context) error {
	tdb.mu.Lock()
	defer tdb.mu.Unlock()

	if tdb.closed {
		return nil
	}

	err := run(ctx, "teardown", func(ctx context.Context) error {
		return teardown(ctx, tdb.config, tdb.name)
	})
	if err != nil {
		tdb.logger.Error("test database left on server", slog.Any("error", err))
		return withOrphan(err, tdb.name)
	}

	tdb.closed = true
	tdb.logger.Info("test database dropped")
	return nil
}

// Pool opens a new connection pool to the database, bounded by the configured
// maximum number of open connections. Every call returns a distinct pool that
// the caller must close before or independently of Close.
func (tdb *TestDB) Pool(ctx context.Context) (*sqlx.DB, error) {
	if err := tdb.checkOpen("pool"); err != nil {
		return nil, err
	}

	pool, err := database.OpenPool(ctx, tdb.config, tdb.URL())
	if err != nil {
		return nil, database.WrapError(err, database.ErrCodePoolCreationFailed, "pool", "failed to create pool").
			WithContext("database", tdb.name)
	}
	return pool, nil
}

// PgxPool is Pool for callers using pgx directly.
func (tdb *TestDB) PgxPool(ctx context.Context) (*pgxpool.Pool, error) {
	if err := tdb.checkOpen("pgx_pool"); err != nil {
		return nil, err
	}

	cfg, err := pgxpool.ParseConfig(tdb.config.ConnString(tdb.URL()))
	if err != nil {
		return nil, database.NewPoolCreationError("failed to parse pool config", err).
			WithOperation("pgx_pool").
			WithContext("database", tdb.name)
	}
	// Validate bounds MaxOpenConns to int32.
	cfg.MaxConns = int32(tdb.config.MaxOpenConns)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, database.NewPoolCreationError("failed to open connection pool", err).
			WithOperation("pgx_pool").
			WithContext("database", tdb.name)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, database.NewPoolCreationError("failed to reach database through pool", err).
			WithOperation("pgx_pool").
			WithContext("database", tdb.name)
	}
	return pool, nil
}

func (tdb *TestDB) checkOpen(operation string) error {
	tdb.mu.Lock()
	defer tdb.mu.Unlock()

	if tdb.closed {
		return database.NewPoolCreationError("test database was already dropped", nil).
			WithOperation(operation).
			WithContext("database", tdb.name)
	}
	return nil
}

// Name returns the generated database name.
func (tdb *TestDB) Name() string {
	return tdb.name
}

// AdminURL returns the URL of the server, without a database.
func (tdb *TestDB) AdminURL() string {
	return tdb.config.AdminURL()
}

// URL returns the URL of the test database: AdminURL() + "/" + Name().
func (tdb *TestDB) URL() string {
	return tdb.config.URL(tdb.name)
}

// ConnString returns URL() with the configured driver options, suitable for
// sql.Open or pgx.Connect.
func (tdb *TestDB) ConnString() string {
	return tdb.config.ConnString(tdb.URL())
}

// Config returns the configuration the database was provisioned with.
func (tdb *TestDB) Config() database.Config {
	return tdb.config
}

func withOrphan(err error, name string) error {
	var dbErr *database.DBError
	if errors.As(err, &dbErr) {
		dbErr.WithContext("orphaned_database", name)
	}
	return err
}
