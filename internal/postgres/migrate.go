package postgres

import (
	"errors"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// NewMigrate opens the migrations at sourceURL (file://...) against dsn.
func NewMigrate(sourceURL, dsn string) (*migrate.Migrate, error) {
	return migrate.New(sourceURL, MigrateURL(dsn))
}

// MigrateUp applies every pending migration.
func MigrateUp(sourceURL, dsn string) error {
	m, err := NewMigrate(sourceURL, dsn)
	if err != nil {
		return err
	}
	defer func() { _, _ = m.Close() }()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// MigrateURL rewrites a postgres DSN to the pgx/v5 migrate driver scheme.
func MigrateURL(dsn string) string {
	for _, p := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, p) {
			return "pgx5://" + strings.TrimPrefix(dsn, p)
		}
	}
	return dsn
}
