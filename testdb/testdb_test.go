package testdb_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/b87/testdb-kit/database"
	"github.com/b87/testdb-kit/internal/pgtest"
	"github.com/b87/testdb-kit/testdb"
)

const (
	migrationsDir = "../testdata/migrations"
	brokenDir     = "../testdata/broken"
)

// migratedConfig returns the server config with the todos migrations.
func migratedConfig(t *testing.T) database.Config {
	t.Helper()
	config := pgtest.Require(t, server)
	config.MigrationsDir = migrationsDir
	return config
}

// databaseExists asks the server directly whether name exists.
func databaseExists(t *testing.T, config database.Config, name string) bool {
	t.Helper()

	admin, err := database.Connect(context.Background(), config.WithDefaults(), config.AdminURL())
	require.NoError(t, err)
	defer admin.Close()

	exists, err := admin.Introspection().DatabaseExists(context.Background(), name)
	require.NoError(t, err)
	return exists
}

func TestEndToEnd(t *testing.T) {
	ctx := context.Background()
	config := migratedConfig(t)

	tdb, err := testdb.New(ctx, config)
	require.NoError(t, err)
	require.True(t, databaseExists(t, config, tdb.Name()))

	pool, err := tdb.Pool(ctx)
	require.NoError(t, err)

	_, err = pool.ExecContext(ctx, "INSERT INTO todos (title) VALUES ($1)", "test")
	require.NoError(t, err)

	var todo struct {
		ID    int    `db:"id"`
		Title string `db:"title"`
	}
	require.NoError(t, pool.GetContext(ctx, &todo, "SELECT id, title FROM todos"))
	assert.Equal(t, 1, todo.ID)
	assert.Equal(t, "test", todo.Title)

	require.NoError(t, pool.Close())
	require.NoError(t, tdb.Close())

	assert.False(t, databaseExists(t, config, tdb.Name()))

	_, err = sqlx.ConnectContext(ctx, "postgres", tdb.ConnString())
	require.Error(t, err)
	assert.True(t, database.IsDatabaseNotExist(err), "unexpected error: %v", err)

	_, err = pgx.Connect(ctx, tdb.ConnString())
	require.Error(t, err)
	assert.True(t, database.IsDatabaseNotExist(err), "unexpected error: %v", err)
}

func TestSchemaMatchesMigrations(t *testing.T) {
	ctx := context.Background()
	config := migratedConfig(t)
	tdb := testdb.NewT(t, config)

	conn, err := database.Connect(ctx, tdb.Config(), tdb.URL())
	require.NoError(t, err)
	defer conn.Close()

	tables, err := conn.Introspection().GetTables(ctx)
	require.NoError(t, err)

	var names []string
	for _, table := range tables {
		names = append(names, table.Name)
	}
	assert.ElementsMatch(t, []string{"todos", "tags"}, names)

	version, err := conn.Migrator(tdb.Config().MigrationSource()).Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)
}

func TestMigrationsFromFS(t *testing.T) {
	ctx := context.Background()
	config := pgtest.Require(t, server)
	config.Migrations = fstest.MapFS{
		"00001_create_notes.sql": &fstest.MapFile{Data: []byte(
			"-- +goose Up\nCREATE TABLE notes (id SERIAL PRIMARY KEY, body TEXT NOT NULL);\n" +
				"-- +goose Down\nDROP TABLE notes;\n",
		)},
	}
	tdb := testdb.NewT(t, config)
	pool := testdb.PoolT(t, tdb)

	var count int
	require.NoError(t, pool.GetContext(ctx, &count, "SELECT count(*) FROM notes"))
	assert.Zero(t, count)
}

func TestNoMigrations(t *testing.T) {
	ctx := context.Background()
	config := pgtest.Require(t, server)
	tdb := testdb.NewT(t, config)

	conn, err := database.Connect(ctx, tdb.Config(), tdb.URL())
	require.NoError(t, err)
	defer conn.Close()

	tables, err := conn.Introspection().GetTables(ctx)
	require.NoError(t, err)
	assert.Empty(t, tables)
}

func TestURLs(t *testing.T) {
	config := migratedConfig(t)
	tdb := testdb.NewT(t, config)

	assert.Equal(t, tdb.AdminURL()+"/"+tdb.Name(), tdb.URL())
	assert.Equal(t, tdb.URL(), tdb.URL())
	assert.True(t, strings.HasPrefix(tdb.ConnString(), tdb.URL()))
	assert.True(t, strings.HasPrefix(tdb.Name(), database.DefaultPrefix))
}

func TestTeardownTerminatesSessions(t *testing.T) {
	ctx := context.Background()
	config := migratedConfig(t)

	tdb, err := testdb.New(ctx, config)
	require.NoError(t, err)

	pool, err := tdb.Pool(ctx)
	require.NoError(t, err)
	defer pool.Close()

	held, err := pool.Conn(ctx)
	require.NoError(t, err)
	defer held.Close()

	pgxPool, err := tdb.PgxPool(ctx)
	require.NoError(t, err)
	defer pgxPool.Close()
	require.NoError(t, pgxPool.Ping(ctx))

	admin, err := database.Connect(ctx, tdb.Config(), tdb.AdminURL())
	require.NoError(t, err)
	sessions, err := admin.Introspection().CountSessions(ctx, tdb.Name())
	require.NoError(t, err)
	admin.Close()
	assert.GreaterOrEqual(t, sessions, 2)

	require.NoError(t, tdb.Close())
	assert.False(t, databaseExists(t, config, tdb.Name()))

	assert.Error(t, held.PingContext(ctx))
}

func TestCloseIsIdempotent(t *testing.T) {
	config := migratedConfig(t)

	tdb, err := testdb.New(context.Background(), config)
	require.NoError(t, err)

	require.NoError(t, tdb.Close())
	require.NoError(t, tdb.Close())

	_, err = tdb.Pool(context.Background())
	assert.Equal(t, database.ErrCodePoolCreationFailed, database.GetErrorCode(err))

	_, err = tdb.PgxPool(context.Background())
	assert.Equal(t, database.ErrCodePoolCreationFailed, database.GetErrorCode(err))
}

func TestFailedCloseKeepsHandleOpen(t *testing.T) {
	config := migratedConfig(t)

	tdb, err := testdb.New(context.Background(), config)
	require.NoError(t, err)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	err = tdb.CloseContext(cancelled)
	require.Error(t, err)

	var dbErr *database.DBError
	require.ErrorAs(t, err, &dbErr)
	assert.Equal(t, tdb.Name(), dbErr.Context["orphaned_database"])
	assert.True(t, databaseExists(t, config, tdb.Name()))

	// The handle stays usable until a teardown succeeds.
	pool, err := tdb.Pool(context.Background())
	require.NoError(t, err)
	require.NoError(t, pool.Close())

	require.NoError(t, tdb.Close())
	assert.False(t, databaseExists(t, config, tdb.Name()))
}

func TestPoolsAreBoundedAndDistinct(t *testing.T) {
	ctx := context.Background()
	config := migratedConfig(t)
	tdb := testdb.NewT(t, config)

	first := testdb.PoolT(t, tdb)
	second := testdb.PoolT(t, tdb)

	assert.NotSame(t, first, second)
	assert.Equal(t, database.DefaultMaxOpenConns, first.Stats().MaxOpenConnections)

	pgxPool, err := tdb.PgxPool(ctx)
	require.NoError(t, err)
	defer pgxPool.Close()
	assert.Equal(t, int32(database.DefaultMaxOpenConns), pgxPool.Config().MaxConns)

	config.MaxOpenConns = 2
	small := testdb.NewT(t, config)
	assert.Equal(t, 2, testdb.PoolT(t, small).Stats().MaxOpenConnections)
}

func TestConcurrentProvisioning(t *testing.T) {
	config := migratedConfig(t)

	const n = 4
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		names = make(map[string]struct{}, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tdb, err := testdb.New(context.Background(), config)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			names[tdb.Name()] = struct{}{}
			mu.Unlock()
			assert.NoError(t, tdb.Close())
		}()
	}
	wg.Wait()

	assert.Len(t, names, n)
}

func TestMigrationFailureDropsDatabase(t *testing.T) {
	ctx := context.Background()
	config := pgtest.Require(t, server)
	config.MigrationsDir = brokenDir
	config.Prefix = "broken_"

	tdb, err := testdb.New(ctx, config)
	require.Error(t, err)
	assert.Nil(t, tdb)
	assert.Equal(t, database.ErrCodeMigrationFailed, database.GetErrorCode(err))

	var dbErr *database.DBError
	require.ErrorAs(t, err, &dbErr)
	assert.NotContains(t, dbErr.Context, "orphaned_database")

	names, err := testdb.List(ctx, config)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestMigrationFailureKeepsDatabase(t *testing.T) {
	ctx := context.Background()
	config := pgtest.Require(t, server)
	config.MigrationsDir = brokenDir
	config.Prefix = "kept_"
	config.KeepOnFailure = true

	_, err := testdb.New(ctx, config)
	require.Error(t, err)
	assert.Equal(t, database.ErrCodeMigrationFailed, database.GetErrorCode(err))

	var dbErr *database.DBError
	require.ErrorAs(t, err, &dbErr)
	name, ok := dbErr.Context["orphaned_database"].(string)
	require.True(t, ok, "error does not name the kept database: %v", err)
	assert.Equal(t, int64(2), dbErr.Context["failed_version"])

	assert.True(t, databaseExists(t, config, name))
	require.NoError(t, testdb.Drop(ctx, config, name))
	assert.False(t, databaseExists(t, config, name))
}

func TestCancelledMigrationDropsDatabase(t *testing.T) {
	config := pgtest.Require(t, server)
	config.Prefix = "slow_"
	config.Migrations = fstest.MapFS{
		"00001_slow.sql": &fstest.MapFile{Data: []byte(
			"-- +goose Up\nSELECT pg_sleep(30);\n-- +goose Down\nSELECT 1;\n",
		)},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err := testdb.New(ctx, config)
	require.Error(t, err)

	var dbErr *database.DBError
	require.ErrorAs(t, err, &dbErr)
	assert.NotContains(t, dbErr.Context, "orphaned_database")

	names, err := testdb.List(context.Background(), config)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestMissingMigrationsDir(t *testing.T) {
	ctx := context.Background()
	config := pgtest.Require(t, server)
	config.MigrationsDir = "../testdata/does-not-exist"
	config.Prefix = "missing_"

	_, err := testdb.New(ctx, config)
	assert.Equal(t, database.ErrCodeMigrationFailed, database.GetErrorCode(err))

	names, err := testdb.List(ctx, config)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestConnectionFailure(t *testing.T) {
	config := database.Config{
		Host:     "127.0.0.1",
		Port:     1,
		User:     "postgres",
		Password: "postgres",
	}

	tdb, err := testdb.New(context.Background(), config)
	require.Error(t, err)
	assert.Nil(t, tdb)
	assert.Equal(t, database.ErrCodeConnectionFailed, database.GetErrorCode(err))
}

func TestInvalidConfig(t *testing.T) {
	_, err := testdb.New(context.Background(), database.Config{Prefix: "Bad-Prefix"})
	assert.Equal(t, database.ErrCodeInvalidConfig, database.GetErrorCode(err))
}
