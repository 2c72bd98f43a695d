package testdb

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"go.uber.org/multierr"

	"github.com/b87/testdb-kit/database"
)

// NewT provisions a test database for t and drops it when t and its subtests
// complete. Any failure fails the test.
func NewT(t testing.TB, config database.Config) *TestDB {
	t.Helper()

	tdb, err := New(context.Background(), config)
	if err != nil {
		t.Fatalf("failed to provision test database: %v", err)
	}

	t.Cleanup(func() {
		if err := tdb.Close(); err != nil {
			t.Errorf("failed to drop test database %s: %v", tdb.Name(), err)
		}
	})
	return tdb
}

// PoolT opens a pool on tdb that is closed when t completes, before the
// database itself is dropped.
func PoolT(t testing.TB, tdb *TestDB) *sqlx.DB {
	t.Helper()

	pool, err := tdb.Pool(context.Background())
	if err != nil {
		t.Fatalf("failed to open pool on test database %s: %v", tdb.Name(), err)
	}
	t.Cleanup(func() { _ = pool.Close() })
	return pool
}

// Must is New for harness code that cannot handle an error: it panics instead.
func Must(ctx context.Context, config database.Config) *TestDB {
	tdb, err := New(ctx, config)
	if err != nil {
		panic(err)
	}
	return tdb
}

// With provisions a test database, calls fn with it and drops the database
// when fn returns or panics. Errors from fn and from the teardown are both
// returned.
func With(ctx context.Context, config database.Config, fn func(tdb *TestDB) error) (err error) {
	tdb, err := New(ctx, config)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, tdb.CloseContext(ctx))
	}()

	return fn(tdb)
}
