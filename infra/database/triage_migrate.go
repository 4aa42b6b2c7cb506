package database

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// MigrationResult describes the schema after a migration run.
type MigrationResult struct {
	Version uint
	Dirty   bool
	Changed bool
}

func newMigrator(dir, dsn string) (*migrate.Migrate, error) {
	m, err := migrate.New("file://"+dir, dsn)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}

// MigrateUp applies every pending migration in dir.
func MigrateUp(dir, dsn string) (*MigrationResult, error) {
	m, err := newMigrator(dir, dsn)
	if err != nil {
		return nil, err
	}
	defer m.Close()

	changed := true
	if err := m.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return nil, fmt.Errorf("migrate up: %w", err)
		}
		changed = false
	}
	return version(m, changed)
}

// MigrateDown rolls back steps migrations.
func MigrateDown(dir, dsn string, steps int) (*MigrationResult, error) {
	if steps <= 0 {
		steps = 1
	}
	m, err := newMigrator(dir, dsn)
	if err != nil {
		return nil, err
	}
	defer m.Close()

	changed := true
	if err := m.Steps(-steps); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return nil, fmt.Errorf("migrate down: %w", err)
		}
		changed = false
	}
	return version(m, changed)
}

func version(m *migrate.Migrate, changed bool) (*MigrationResult, error) {
	v, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return nil, fmt.Errorf("read migration version: %w", err)
	}
	return &MigrationResult{Version: v, Dirty: dirty, Changed: changed}, nil
}
