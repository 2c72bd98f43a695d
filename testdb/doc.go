// Package testdb provisions ephemeral PostgreSQL databases for tests.
//
// New creates a uniquely named database, applies the configured goose
// migrations to it and returns a handle; Close drops it again, terminating
// any session still connected. Both block until the server has finished.
//
//	func TestTodos(t *testing.T) {
//		tdb := testdb.NewT(t, database.Config{
//			User:          "postgres",
//			MigrationsDir: "testdata/migrations",
//		})
//		pool := testdb.PoolT(t, tdb)
//		// ...
//	}
//
// Databases left behind by crashed runs, or kept with KeepOnFailure, are
// found with List and removed with Drop or Prune.
package testdb
