package database

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
)

// MigrationSource identifies an ordered set of goose migrations, either as a
// filesystem or as a directory path. FS takes precedence over Dir.
type MigrationSource struct {
	FS  fs.FS
	Dir string
}

// MigrationSource returns the migration set configured in c
func (c Config) MigrationSource() MigrationSource {
	return MigrationSource{FS: c.Migrations, Dir: c.MigrationsDir}
}

// IsEmpty reports whether no migrations were configured
func (s MigrationSource) IsEmpty() bool {
	return s.FS == nil && s.Dir == ""
}

func (s MigrationSource) String() string {
	switch {
	case s.FS != nil:
		return "fs"
	case s.Dir != "":
		return s.Dir
	default:
		return "none"
	}
}

func (s MigrationSource) open() (fs.FS, error) {
	if s.FS != nil {
		return s.FS, nil
	}
	info, err := os.Stat(s.Dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, &fs.PathError{Op: "open", Path: s.Dir, Err: errors.New("not a directory")}
	}
	return os.DirFS(s.Dir), nil
}

// MigrationStatus represents the status of a single migration
type MigrationStatus struct {
	Version   int64     `json:"version"`
	AppliedAt time.Time `json:"applied_at"`
	Source    string    `json:"source"`
	IsApplied bool      `json:"is_applied"`
}

// MigrationStatusResult represents the complete migration status
type MigrationStatusResult struct {
	Migrations []MigrationStatus `json:"migrations"`
	Current    int64             `json:"current_version"`
	Latest     int64             `json:"latest_version"`
	Pending    int               `json:"pending_count"`
	Applied    int               `json:"applied_count"`
}

// Migrator applies an ordered migration set to a database
type Migrator interface {
	// Apply all pending migrations, in order
	Up(ctx context.Context) error
	// Get the status of the migrations
	Status(ctx context.Context) (*MigrationStatusResult, error)
	// Get the current migration version
	Version(ctx context.Context) (int64, error)
	// Get the source of the migrations
	Source() string
}

// GooseMigrator is a concrete implementation of the Migrator interface
type GooseMigrator struct {
	db     *sqlx.DB
	source MigrationSource
	logger *slog.Logger
}

// NewGooseMigrator creates a new GooseMigrator
func NewGooseMigrator(db *sqlx.DB, source MigrationSource, logger *slog.Logger) *GooseMigrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &GooseMigrator{db: db, source: source, logger: logger}
}

// provider returns nil when there is nothing to migrate
func (migrator *GooseMigrator) provider() (*goose.Provider, error) {
	if migrator.source.IsEmpty() {
		return nil, nil
	}

	fsys, err := migrator.source.open()
	if err != nil {
		return nil, NewMigrationError("failed to open migration source", err).
			WithContext("migrations", migrator.source.String())
	}

	p, err := goose.NewProvider(goose.DialectPostgres, migrator.db.DB, fsys)
	if errors.Is(err, goose.ErrNoMigrations) {
		return nil, nil
	}
	if err != nil {
		return nil, NewMigrationError("failed to load migrations", err).
			WithContext("migrations", migrator.source.String())
	}
	return p, nil
}

// Up applies every pending migration in version order
func (migrator *GooseMigrator) Up(ctx context.Context) error {
	p, err := migrator.provider()
	if err != nil {
		return err
	}
	if p == nil {
		migrator.logger.Debug("no migrations to apply", slog.String("migrations", migrator.source.String()))
		return nil
	}

	results, err := p.Up(ctx)
	for _, result := range results {
		migrator.logger.Debug("migration applied",
			slog.Int64("version", result.Source.Version),
			slog.String("source", result.Source.Path),
			slog.Duration("duration", result.Duration),
		)
	}
	if err != nil {
		dbErr := NewMigrationError("failed to apply migrations", err).
			WithOperation("migrate_up").
			WithContext("migrations", migrator.source.String())
		var partial *goose.PartialError
		if errors.As(err, &partial) && partial.Failed != nil && partial.Failed.Source != nil {
			dbErr = dbErr.WithContext("failed_version", partial.Failed.Source.Version)
		}
		return dbErr
	}
	return nil
}

// Status gets the status of the migrations
func (migrator *GooseMigrator) Status(ctx context.Context) (*MigrationStatusResult, error) {
	result := &MigrationStatusResult{Migrations: []MigrationStatus{}}

	p, err := migrator.provider()
	if err != nil {
		return nil, err
	}
	if p == nil {
		return result, nil
	}

	statuses, err := p.Status(ctx)
	if err != nil {
		return nil, NewMigrationError("failed to get migration status", err).
			WithOperation("get_status")
	}

	for _, s := range statuses {
		status := MigrationStatus{
			Version:   s.Source.Version,
			AppliedAt: s.AppliedAt,
			Source:    s.Source.Path,
			IsApplied: s.State == goose.StateApplied,
		}
		if status.IsApplied {
			result.Applied++
		} else {
			result.Pending++
		}
		if status.Version > result.Latest {
			result.Latest = status.Version
		}
		result.Migrations = append(result.Migrations, status)
	}

	current, err := p.GetDBVersion(ctx)
	if err != nil {
		return nil, NewMigrationError("failed to get current version", err).
			WithOperation("get_status")
	}
	result.Current = current

	return result, nil
}

// Version gets the current migration version
func (migrator *GooseMigrator) Version(ctx context.Context) (int64, error) {
	p, err := migrator.provider()
	if err != nil || p == nil {
		return 0, err
	}
	version, err := p.GetDBVersion(ctx)
	if err != nil {
		return 0, NewMigrationError("failed to get database version", err).
			WithOperation("get_version")
	}
	return version, nil
}

// Source gets the source of the migrations
func (migrator *GooseMigrator) Source() string {
	return migrator.source.String()
}
