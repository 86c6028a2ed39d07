package persistence

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationFS embed.FS

// Migrator applies the embedded schema for one dialect.
// File naming follows golang-migrate: {version}_{name}.up.sql / .down.sql
type Migrator struct {
	m   *migrate.Migrate
	log zerolog.Logger
}

// NewMigrator binds the embedded migrations to db. The Migrator does not
// own db; closing it is the caller's job.
func NewMigrator(db *sql.DB, dialect Dialect, log zerolog.Logger) (*Migrator, error) {
	src, err := iofs.New(migrationFS, "migrations/"+string(dialect))
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}

	var driver database.Driver
	switch dialect {
	case DialectPostgres:
		driver, err = postgres.WithInstance(db, &postgres.Config{})
	case DialectSQLite:
		driver, err = sqlite.WithInstance(db, &sqlite.Config{})
	default:
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
	if err != nil {
		return nil, fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, string(dialect), driver)
	if err != nil {
		return nil, fmt.Errorf("migrate instance: %w", err)
	}
	m.Log = migrateLogger{log: log}
	return &Migrator{m: m, log: log}, nil
}

// Up applies all pending up-migrations in order.
func (m *Migrator) Up() error {
	err := m.m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		m.log.Info().Msg("schema up to date")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	m.log.Info().Msg("all migrations applied")
	return nil
}

// Down rolls back the last applied migration.
func (m *Migrator) Down() error {
	err := m.m.Steps(-1)
	if errors.Is(err, migrate.ErrNoChange) || errors.Is(err, migrate.ErrNilVersion) {
		m.log.Info().Msg("no migrations to roll back")
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrate down: %w", err)
	}
	m.log.Info().Msg("last migration rolled back")
	return nil
}

// Version reports the applied schema version. ok is false on an empty
// database.
func (m *Migrator) Version() (version uint, dirty, ok bool, err error) {
	version, dirty, err = m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, false, nil
	}
	if err != nil {
		return 0, false, false, fmt.Errorf("migrate version: %w", err)
	}
	return version, dirty, true, nil
}

type migrateLogger struct {
	log zerolog.Logger
}

func (l migrateLogger) Printf(format string, v ...any) {
	l.log.Debug().Msgf(format, v...)
}

func (l migrateLogger) Verbose() bool {
	return l.log.GetLevel() <= zerolog.DebugLevel
}
