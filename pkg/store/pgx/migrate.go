package pgx

import (
	"embed"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/amphora/backend/pkg/logger"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate brings the database at databaseURL up to the latest schema version.
func Migrate(databaseURL string) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Debug("[Migrate] Schema is up to date")
			return nil
		}
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	version, _, _ := m.Version()
	logger.Info("[Migrate] Applied migrations", "version", version)
	return nil
}
