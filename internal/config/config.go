// Package config loads and validates the daemon configuration from
// YAML or JSON5 files, with environment variable expansion and
// $include resolution.
package config

import (
	"fmt"
	"time"

	"github.com/craftdeck/craftdeck/internal/catalog"
	"github.com/craftdeck/craftdeck/internal/observability"
)

// Config is the top-level daemon configuration.
type Config struct {
	Server  ServerConfig              `yaml:"server"`
	Storage StorageConfig             `yaml:"storage"`
	Scan    ScanConfig                `yaml:"scan"`
	Rcon    RconConfig                `yaml:"rcon"`
	Rules   RulesConfig               `yaml:"rules"`
	Catalog catalog.Config            `yaml:"catalog"`
	Logging observability.LogConfig   `yaml:"logging"`
	Tracing observability.TraceConfig `yaml:"tracing"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host        string `yaml:"host"`
	HTTPPort    int    `yaml:"http_port"`
	MetricsPort int    `yaml:"metrics_port"`
}

// StorageConfig selects and configures the configuration store backend.
type StorageConfig struct {
	// Driver is "sqlite" or "memory".
	Driver string `yaml:"driver"`
	// Path is the sqlite database file. Ignored for memory.
	Path string `yaml:"path"`
	// BusyTimeout is passed to sqlite's busy_timeout pragma.
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// ScanConfig controls the scan coordinator and worker pool.
type ScanConfig struct {
	// Workers bounds how many servers are scanned concurrently.
	Workers int `yaml:"workers"`
	// Schedule is a cron expression for periodic full rescans.
	// Empty disables the periodic scan.
	Schedule string `yaml:"schedule"`
	// WatchDebounce coalesces file watcher events per server.
	WatchDebounce time.Duration `yaml:"watch_debounce"`
	// BaseDir is the root under which each server's config files live,
	// one subdirectory per server ID.
	BaseDir string `yaml:"base_dir"`
}

// RconConfig controls the remote console client.
type RconConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	// LockTTL bounds how long a sync or scan may hold a server lock.
	LockTTL time.Duration `yaml:"lock_ttl"`
}

// RulesConfig points at classifier rule documents loaded at startup.
type RulesConfig struct {
	// Files are YAML rule documents, applied in order. Later files
	// shadow earlier ones per key.
	Files []string `yaml:"files"`
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.HTTPPort == 0 {
		c.Server.HTTPPort = 8080
	}
	if c.Server.MetricsPort == 0 {
		c.Server.MetricsPort = 9090
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "craftdeck.db"
	}
	if c.Storage.BusyTimeout == 0 {
		c.Storage.BusyTimeout = 5 * time.Second
	}
	if c.Scan.Workers == 0 {
		c.Scan.Workers = 4
	}
	if c.Scan.WatchDebounce == 0 {
		c.Scan.WatchDebounce = 2 * time.Second
	}
	if c.Scan.BaseDir == "" {
		c.Scan.BaseDir = "servers"
	}
	if c.Rcon.Timeout == 0 {
		c.Rcon.Timeout = 5 * time.Second
	}
	if c.Rcon.LockTTL == 0 {
		c.Rcon.LockTTL = 30 * time.Second
	}
	if c.Catalog.BaseURL == "" {
		defaults := catalog.DefaultConfig()
		c.Catalog.BaseURL = defaults.BaseURL
	}
	if c.Catalog.Timeout == 0 {
		c.Catalog.Timeout = 30 * time.Second
	}
	if c.Catalog.CacheTTL == 0 {
		c.Catalog.CacheTTL = 5 * time.Minute
	}
	if c.Catalog.RateLimit.RequestsPerSecond == 0 {
		c.Catalog.RateLimit = catalog.DefaultConfig().RateLimit
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	if c.Server.HTTPPort < 1 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port out of range: %d", c.Server.HTTPPort)
	}
	if c.Server.MetricsPort < 1 || c.Server.MetricsPort > 65535 {
		return fmt.Errorf("server.metrics_port out of range: %d", c.Server.MetricsPort)
	}
	if c.Server.HTTPPort == c.Server.MetricsPort {
		return fmt.Errorf("server.http_port and server.metrics_port must differ")
	}
	switch c.Storage.Driver {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("storage.driver must be sqlite or memory, got %q", c.Storage.Driver)
	}
	if c.Storage.Driver == "sqlite" && c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required for the sqlite driver")
	}
	if c.Scan.Workers < 1 {
		return fmt.Errorf("scan.workers must be at least 1, got %d", c.Scan.Workers)
	}
	if c.Scan.BaseDir == "" {
		return fmt.Errorf("scan.base_dir is required")
	}
	if c.Rcon.Timeout <= 0 {
		return fmt.Errorf("rcon.timeout must be positive")
	}
	if c.Rcon.LockTTL <= 0 {
		return fmt.Errorf("rcon.lock_ttl must be positive")
	}
	return nil
}
