// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"net"
	"strconv"
	"time"

	"github.com/JonMunkholm/exportappend/internal/store"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Database DatabaseConfig
	Import   ImportConfig
	Server   ServerConfig
	Security SecurityConfig
	Logging  LoggingConfig
	Metrics  MetricsConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Driver selects the backend: mysql, postgres or sqlserver (default: mysql)
	Driver string `env:"DB_DRIVER" envDefault:"mysql"`

	Host string `env:"DB_HOST" envDefault:"localhost"`

	// Port defaults to the driver's well-known port when unset
	Port int `env:"DB_PORT"`

	User     string `env:"DB_USER"`
	Password string `env:"DB_PASSWORD"`
	Name     string `env:"DB_NAME"`

	// SSL enables TLS without certificate verification (default: false)
	SSL bool `env:"DB_SSL" envDefault:"false"`

	// MaxConns is the maximum number of open connections (default: 4)
	MaxConns int `env:"DB_MAX_CONNS" envDefault:"4"`

	ConnectTimeout  time.Duration `env:"DB_CONNECT_TIMEOUT" envDefault:"5s"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"30m"`
}

// ImportConfig holds CSV import settings.
type ImportConfig struct {
	// MaxFileSize is the largest CSV accepted, in bytes (default: 256MiB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" envDefault:"268435456"`

	// BatchSize is the number of rows per INSERT statement (default: 250)
	BatchSize int `env:"IMPORT_BATCH_SIZE" envDefault:"250"`

	// MaxConcurrent is the number of imports allowed to run at once (default: 2)
	MaxConcurrent int `env:"IMPORT_MAX_CONCURRENT" envDefault:"2"`

	// Encoding is a WHATWG label for the source files (default: utf-8)
	Encoding string `env:"IMPORT_ENCODING" envDefault:"utf-8"`

	// TableSuffix filters the tables offered as import targets (default: _export)
	TableSuffix string `env:"IMPORT_TABLE_SUFFIX" envDefault:"_export"`

	// ResultTTL is how long a finished import stays queryable (default: 5m)
	ResultTTL time.Duration `env:"IMPORT_RESULT_TTL" envDefault:"5m"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" envDefault:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" envDefault:"8080"`

	// ReadTimeout is the maximum duration for reading a request (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"15s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// SecurityConfig holds API authentication settings.
type SecurityConfig struct {
	// RequireAPIKey enables X-API-Key checks on /api routes (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" envDefault:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" envDefault:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" envDefault:"text"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `env:"METRICS_ENABLED" envDefault:"true"`
	Path    string `env:"METRICS_PATH" envDefault:"/metrics"`
}

var defaultPorts = map[string]int{
	"mysql":     3306,
	"postgres":  5432,
	"sqlserver": 1433,
}

// Configured reports whether enough database settings are present to connect.
func (d *DatabaseConfig) Configured() bool {
	return d.Name != "" && d.User != ""
}

// EffectivePort returns Port, or the driver's default port when unset.
func (d *DatabaseConfig) EffectivePort() int {
	if d.Port > 0 {
		return d.Port
	}
	return defaultPorts[d.Driver]
}

// StoreConfig converts the settings into the form store.Open expects.
func (d *DatabaseConfig) StoreConfig() store.Config {
	return store.Config{
		Driver:          d.Driver,
		Host:            d.Host,
		Port:            d.EffectivePort(),
		User:            d.User,
		Password:        d.Password,
		Database:        d.Name,
		SSL:             d.SSL,
		MaxConns:        d.MaxConns,
		ConnectTimeout:  d.ConnectTimeout,
		MaxConnLifetime: d.MaxConnLifetime,
	}
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
