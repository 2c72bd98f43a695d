package testdb

import (
	"context"
	"log/slog"

	"go.uber.org/multierr"

	"github.com/b87/testdb-kit/database"
)

// teardown connects to the server of config and drops the named database.
func teardown(ctx context.Context, config database.Config, name string) error {
	admin, err := database.Connect(ctx, config, config.AdminURL())
	if err != nil {
		return database.WrapError(err, database.ErrCodeConnectionFailed, "teardown", "failed to connect as admin").
			WithContext("database", name)
	}
	defer admin.Close()

	return dropDatabase(ctx, admin, name)
}

// dropDatabase terminates every other session bound to name and then drops
// it, both over the admin connection.
func dropDatabase(ctx context.Context, admin *database.DB, name string) error {
	if err := admin.Exec(ctx, database.TerminateSessionsStatement(name)); err != nil {
		return database.NewTerminateSessionsError("failed to terminate sessions", err).
			WithOperation("teardown").
			WithContext("database", name)
	}

	if err := admin.Exec(ctx, database.DropDatabaseStatement(name)); err != nil {
		return database.NewDropDatabaseError("failed to drop database", err).
			WithOperation("teardown").
			WithContext("database", name)
	}
	return nil
}

// Drop runs the teardown of a database that is not owned by a live TestDB,
// typically one left behind by a crashed or failed test run.
func Drop(ctx context.Context, config database.Config, name string) error {
	config = config.WithDefaults()
	if err := config.Validate(); err != nil {
		return err
	}

	err := run(ctx, "teardown", func(ctx context.Context) error {
		return teardown(ctx, config, name)
	})
	if err != nil {
		return withOrphan(err, name)
	}
	config.Logger.Info("test database dropped", slog.String("database", name))
	return nil
}

// List returns the databases on the server whose name starts with the
// configured prefix, ordered by name.
func List(ctx context.Context, config database.Config) ([]string, error) {
	config = config.WithDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	admin, err := database.Connect(ctx, config, config.AdminURL())
	if err != nil {
		return nil, database.WrapError(err, database.ErrCodeConnectionFailed, "list", "failed to connect as admin")
	}
	defer admin.Close()

	return admin.Introspection().ListDatabases(ctx, config.Prefix)
}

// Prune drops every database List reports. It keeps going past failures and
// returns the names it dropped along with every error it met.
func Prune(ctx context.Context, config database.Config) ([]string, error) {
	config = config.WithDefaults()

	names, err := List(ctx, config)
	if err != nil {
		return nil, err
	}

	var (
		dropped []string
		errs    error
	)
	for _, name := range names {
		if err := Drop(ctx, config, name); err != nil {
			config.Logger.Warn("failed to prune test database",
				slog.String("database", name),
				slog.Any("error", err),
			)
			errs = multierr.Append(errs, err)
			continue
		}
		dropped = append(dropped, name)
	}
	return dropped, errs
}
