package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// MigrationStatus describes the schema version of a database.
type MigrationStatus struct {
	Version uint
	Dirty   bool
	Latest  uint
}

// Pending reports whether migrations are waiting to be applied.
func (m MigrationStatus) Pending() bool {
	return m.Version < m.Latest
}

// migrator builds a migrate instance and the func that releases it.
//
// The PostgreSQL and MySQL drivers pin one connection for the lifetime of
// the instance and close the pool they were given, so they run on a
// dedicated pool that release closes. The SQLite driver pins nothing and
// migrates over the store's own pool, which release leaves open.
func (s *Store) migrator() (*migrate.Migrate, uint, func(), error) {
	source, err := iofs.New(migrationsFS, "migrations/"+string(s.backend))
	if err != nil {
		return nil, 0, nil, fmt.Errorf("open migrations: %w", err)
	}
	latest, err := latestVersion(source)
	if err != nil {
		return nil, 0, nil, err
	}

	db := s.db
	if s.backend != SQLite {
		if db, err = openDB(context.Background(), s.backend, s.dsn); err != nil {
			return nil, 0, nil, fmt.Errorf("open migration connection: %w", err)
		}
	}

	var driver database.Driver
	switch s.backend {
	case SQLite:
		driver, err = sqlite.WithInstance(db, &sqlite.Config{})
	case Postgres:
		driver, err = postgres.WithInstance(db, &postgres.Config{})
	case MySQL:
		driver, err = mysql.WithInstance(db, &mysql.Config{})
	default:
		err = fmt.Errorf("unsupported database backend: %q", s.backend)
	}
	if err != nil {
		s.closeMigrationDB(db)
		return nil, 0, nil, fmt.Errorf("create %s migrate driver: %w", s.backend, err)
	}

	m, err := migrate.NewWithInstance("iofs", source, string(s.backend), driver)
	if err != nil {
		s.closeMigrationDB(db)
		return nil, 0, nil, fmt.Errorf("create migrate instance: %w", err)
	}

	release := func() {}
	if s.backend != SQLite {
		release = func() {
			if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
				slog.Warn("close migrator", "backend", s.backend, "source_error", srcErr, "database_error", dbErr)
			}
		}
	}
	return m, latest, release, nil
}

func (s *Store) closeMigrationDB(db *sql.DB) {
	if db != s.db {
		_ = db.Close()
	}
}

func latestVersion(src interface {
	First() (uint, error)
	Next(uint) (uint, error)
}) (uint, error) {
	v, err := src.First()
	if err != nil {
		return 0, fmt.Errorf("read first migration: %w", err)
	}
	for {
		next, err := src.Next(v)
		if err != nil {
			return v, nil
		}
		v = next
	}
}

// Migrate brings the schema to the latest version.
func (s *Store) Migrate() error {
	m, _, release, err := s.migrator()
	if err != nil {
		return err
	}
	defer release()

	before, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database is dirty at version %d; fix it manually and force the version", before)
	}

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		slog.Debug("schema up to date", "backend", s.backend, "version", before)
		return nil
	}
	if err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}

	after, _, _ := m.Version()
	slog.Info("schema migrated", "backend", s.backend, "from", before, "to", after)
	return nil
}

// MigrateDown rolls back every migration.
func (s *Store) MigrateDown() error {
	m, _, release, err := s.migrator()
	if err != nil {
		return err
	}
	defer release()
	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

// MigrationStatus reports the applied and latest schema versions.
func (s *Store) MigrationStatus() (MigrationStatus, error) {
	m, latest, release, err := s.migrator()
	if err != nil {
		return MigrationStatus{}, err
	}
	defer release()
	v, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return MigrationStatus{}, fmt.Errorf("read migration version: %w", err)
	}
	return MigrationStatus{Version: v, Dirty: dirty, Latest: latest}, nil
}
