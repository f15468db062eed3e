package database

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/sqlite"

	// File source driver for reading migration files from disk.
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/keyxmakerx/tessera/internal/config"
)

// RunMigrations applies all pending migrations for the given store driver.
// Migrations live in <migrationsRoot>/<driver>/ since MariaDB and SQLite DDL
// differ. Already-applied migrations are skipped, so this is safe to call on
// every startup.
func RunMigrations(db *sql.DB, driverName, migrationsRoot string) error {
	var (
		driver database.Driver
		err    error
	)
	switch driverName {
	case config.StoreMariaDB:
		driver, err = mysql.WithInstance(db, &mysql.Config{})
	case config.StoreSQLite:
		driver, err = sqlite.WithInstance(db, &sqlite.Config{})
	default:
		return fmt.Errorf("no migrations for store driver %q", driverName)
	}
	if err != nil {
		return fmt.Errorf("creating migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://"+filepath.Join(migrationsRoot, driverName),
		driverName,
		driver,
	)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	slog.Info("migrations applied",
		slog.String("driver", driverName),
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)

	return nil
}
