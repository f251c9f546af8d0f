package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"sanjeevani-backend/pkg/logging"
)

// Migration directions
const (
	MigrateUp   = "up"
	MigrateDown = "down"
)

// Migrate applies or rolls back every migration found at the root of source.
// It opens a dedicated connection because the migrate driver closes the
// database it is given.
func Migrate(ctx context.Context, cfg *Config, source fs.FS, direction string, logger *logging.StructuredLogger) error {
	if direction != MigrateUp && direction != MigrateDown {
		return fmt.Errorf("invalid migration direction %q, expected %q or %q", direction, MigrateUp, MigrateDown)
	}

	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{DatabaseName: cfg.Database})
	if err != nil {
		db.Close()
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	src, err := iofs.New(source, ".")
	if err != nil {
		driver.Close()
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		driver.Close()
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer m.Close()

	logger.Info(ctx, "[MIGRATE_START] Running migrations", logging.Fields{
		"direction": direction,
		"database":  cfg.Database,
	})

	if direction == MigrateUp {
		err = m.Up()
	} else {
		err = m.Down()
	}
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info(ctx, "[MIGRATE_NOOP] Schema already current", nil)
		return nil
	}
	if err != nil {
		return fmt.Errorf("migration %s failed: %w", direction, err)
	}

	version, dirty, verr := m.Version()
	fields := logging.Fields{"direction": direction, "dirty": dirty}
	if verr == nil {
		fields["version"] = version
	}
	logger.Info(ctx, "[MIGRATE_COMPLETE] Migrations applied", fields)

	return nil
}
