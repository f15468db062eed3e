// Package config handles loading application configuration from environment
// variables. All config is centralized here so no other package reads env
// vars directly. Sensible defaults are provided for development.
package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-sql-driver/mysql"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreMariaDB = "mariadb"
	StoreSQLite  = "sqlite"
	StoreMemory  = "memory"
)

// Config holds all application configuration. Populated from environment
// variables at startup. Passed to other packages via dependency injection.
type Config struct {
	// Env is the runtime environment: "development" or "production".
	Env string `env:"ENV" envDefault:"development"`

	// Port is the HTTP listen port (default: 8501).
	Port int `env:"PORT" envDefault:"8501"`

	// BaseURL is the public-facing URL used for links and CORS-free origin checks.
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8501"`

	// LogLevel controls log verbosity: "debug", "info", "warn", "error".
	LogLevel string `env:"LOG_LEVEL" envDefault:"debug"`

	// TrustedProxies lists the CIDRs whose forwarding headers are believed
	// when resolving the client IP.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:"," envDefault:"127.0.0.0/8,10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,fd00::/8"`

	// Store selects the user record backend: mariadb, sqlite or memory.
	Store StoreConfig

	// Database holds MariaDB connection settings.
	Database DatabaseConfig

	// Redis holds Redis connection settings.
	Redis RedisConfig

	// Auth holds session lifetime settings.
	Auth AuthConfig

	// WebAuthn holds relying party settings for the biometric ceremony.
	WebAuthn WebAuthnConfig
}

// StoreConfig selects and locates the user record store.
type StoreConfig struct {
	// Driver is one of StoreMariaDB, StoreSQLite, StoreMemory.
	Driver string `env:"STORE_DRIVER" envDefault:"mariadb"`

	// SQLitePath is the database file used when Driver is sqlite.
	SQLitePath string `env:"SQLITE_PATH" envDefault:"./data/tessera.db"`

	// MigrationsPath is the root directory holding one sub-directory of
	// migrations per SQL driver (db/migrations/mariadb, db/migrations/sqlite).
	MigrationsPath string `env:"MIGRATIONS_PATH" envDefault:"db/migrations"`
}

// DatabaseConfig holds MariaDB connection parameters. Individual fields
// (Host, User, Password, Name) are read from separate env vars so
// container orchestrators can manage each independently.
// If DATABASE_URL is set, it takes precedence over the individual fields.
type DatabaseConfig struct {
	// Host is the MariaDB address in host:port format (default: "localhost:3306").
	// If no port is specified, 3306 is appended automatically.
	Host     string `env:"DB_HOST" envDefault:"localhost:3306"`
	User     string `env:"DB_USER" envDefault:"tessera"`
	Password string `env:"DB_PASSWORD" envDefault:"tessera"`
	Name     string `env:"DB_NAME" envDefault:"tessera"`

	// URL is a full DSN that bypasses the individual fields.
	URL string `env:"DATABASE_URL"`

	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"5m"`
}

// DSN returns the go-sql-driver/mysql connection string. If DATABASE_URL was
// set, it is returned as-is. Otherwise the DSN is built from the individual
// fields using the driver's Config.FormatDSN() to safely handle special
// characters in passwords.
//
// ClientFoundRows makes UPDATE report matched rows instead of changed rows,
// so rewriting a field with its current value is not mistaken for a missing record.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	cfg := mysql.NewConfig()
	cfg.User = d.User
	cfg.Passwd = d.Password
	cfg.Net = "tcp"
	cfg.Addr = ensurePort(d.Host, "3306")
	cfg.DBName = d.Name
	cfg.ParseTime = true
	cfg.ClientFoundRows = true
	return cfg.FormatDSN()
}

// ensurePort appends the default port if the host string doesn't include one.
func ensurePort(host, defaultPort string) string {
	_, _, err := net.SplitHostPort(host)
	if err != nil {
		return net.JoinHostPort(host, defaultPort)
	}
	return host
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	// URL is the Redis connection URL (e.g., "redis://localhost:6379").
	URL string `env:"REDIS_URL" envDefault:"redis://localhost:6379"`
}

// AuthConfig holds session lifetimes.
type AuthConfig struct {
	// SessionTTL is how long an authenticated session lasts.
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"720h"`

	// FlowTTL is how long an unauthenticated registration/login flow may
	// sit idle before its state expires.
	FlowTTL time.Duration `env:"FLOW_TTL" envDefault:"30m"`
}

// WebAuthnConfig controls the relying party identity presented to the
// platform authenticator.
type WebAuthnConfig struct {
	RPID          string        `env:"WEBAUTHN_RP_ID" envDefault:"localhost"`
	RPDisplayName string        `env:"WEBAUTHN_RP_DISPLAY_NAME" envDefault:"Tessera"`
	RPOrigins     []string      `env:"WEBAUTHN_RP_ORIGINS" envSeparator:","`
	Timeout       time.Duration `env:"WEBAUTHN_TIMEOUT" envDefault:"60s"`
}

// Load reads configuration from environment variables with sensible defaults.
// Returns an error if required variables are missing or inconsistent.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	// Origins default to the public base URL so local dev works without .env.
	if len(cfg.WebAuthn.RPOrigins) == 0 {
		cfg.WebAuthn.RPOrigins = []string{cfg.BaseURL}
	}

	switch cfg.Store.Driver {
	case StoreMariaDB, StoreSQLite, StoreMemory:
	default:
		return nil, fmt.Errorf("STORE_DRIVER must be one of %s, %s, %s (got %q)",
			StoreMariaDB, StoreSQLite, StoreMemory, cfg.Store.Driver)
	}

	if cfg.WebAuthn.Timeout <= 0 {
		return nil, fmt.Errorf("WEBAUTHN_TIMEOUT must be positive")
	}

	// Case-insensitive check catches common variants like "Production", "prod".
	if cfg.IsProduction() {
		if cfg.Store.Driver == StoreMemory {
			return nil, fmt.Errorf("STORE_DRIVER=memory is not allowed in production")
		}
		if cfg.WebAuthn.RPID == "localhost" {
			return nil, fmt.Errorf("WEBAUTHN_RP_ID must be set in production")
		}
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	env := strings.ToLower(c.Env)
	return env == "development" || env == "dev"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.Env)
	return env == "production" || env == "prod"
}
