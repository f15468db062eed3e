// Package database opens the shared connections: the SQL user record store
// (MariaDB or SQLite), Redis, and the migrations that shape the SQL schema.
// Connections are created once at startup and handed to the plugins by
// dependency injection; this package owns their lifecycle (open, configure
// pool, ping, close).
package database

import (
	"database/sql"
	"fmt"

	// MariaDB driver -- imported for the side effect of registering "mysql".
	_ "github.com/go-sql-driver/mysql"

	"github.com/keyxmakerx/tessera/internal/config"
)

// NewMariaDB creates a MariaDB connection pool from cfg and waits for the
// server to answer a ping before returning it.
func NewMariaDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening mariadb connection: %w", err)
	}

	// Bound the pool so a burst of logins cannot exhaust server connections,
	// and recycle connections before the server's idle timeout drops them.
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	// MariaDB may still be starting when the app container launches, so
	// retry with backoff instead of crash-looping on a cold start.
	if err := waitReady("mariadb", db.PingContext); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
