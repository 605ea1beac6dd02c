// Package config loads phasegate's application configuration.
//
// Precedence, highest first: PHASEGATE_* environment variables, the YAML
// config file, then Default().
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Store backends.
const (
	BackendAuto   = "auto"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config is the full application configuration.
type Config struct {
	DataDir   string          `koanf:"data_dir"`
	Store     StoreConfig     `koanf:"store"`
	Lifecycle LifecycleConfig `koanf:"lifecycle"`
	Catalog   CatalogConfig   `koanf:"catalog"`
	Tasks     TasksConfig     `koanf:"tasks"`
	Log       LogConfig       `koanf:"log"`
	Metrics   MetricsConfig   `koanf:"metrics"`
}

// StoreConfig selects and tunes the project store.
type StoreConfig struct {
	// Backend is auto (sqlite with file fallback), file or sqlite.
	Backend        string        `koanf:"backend"`
	SQLitePath     string        `koanf:"sqlite_path"`
	LockTimeout    time.Duration `koanf:"lock_timeout"`
	StaleLockAfter time.Duration `koanf:"stale_lock_after"`
}

// LifecycleConfig holds the defaults applied to new projects.
type LifecycleConfig struct {
	StalenessThresholdMinutes int    `koanf:"staleness_threshold_minutes"`
	RecoveryMode              string `koanf:"recovery_mode"`
}

// CatalogConfig points at a custom phase catalog. Empty uses the built-in.
type CatalogConfig struct {
	Path string `koanf:"path"`
}

// TasksConfig points at the task board file. Empty means no board.
type TasksConfig struct {
	Path string `koanf:"path"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// MetricsConfig configures the Prometheus endpoint. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	dataDir := ".phasegate"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".phasegate")
	}
	return Config{
		DataDir: dataDir,
		Store: StoreConfig{
			Backend:        BackendAuto,
			LockTimeout:    5 * time.Second,
			StaleLockAfter: 10 * time.Second,
		},
		Lifecycle: LifecycleConfig{
			StalenessThresholdMinutes: 60,
			RecoveryMode:              "manual",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// SQLiteFile returns the configured database path, defaulting into DataDir.
func (c *Config) SQLiteFile() string {
	if c.Store.SQLitePath != "" {
		return c.Store.SQLitePath
	}
	return filepath.Join(c.DataDir, "phasegate.db")
}

// Validate checks value ranges and enums.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	switch c.Store.Backend {
	case BackendAuto, BackendFile, BackendSQLite:
	default:
		return fmt.Errorf("store.backend %q: must be one of: auto, file, sqlite", c.Store.Backend)
	}
	if c.Store.LockTimeout <= 0 {
		return fmt.Errorf("store.lock_timeout must be positive")
	}
	if c.Store.StaleLockAfter <= 0 {
		return fmt.Errorf("store.stale_lock_after must be positive")
	}
	if c.Lifecycle.StalenessThresholdMinutes <= 0 {
		return fmt.Errorf("lifecycle.staleness_threshold_minutes must be positive")
	}
	switch c.Lifecycle.RecoveryMode {
	case "manual", "auto":
	default:
		return fmt.Errorf("lifecycle.recovery_mode %q: must be one of: manual, auto", c.Lifecycle.RecoveryMode)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format %q: must be one of: json, console", c.Log.Format)
	}
	return nil
}
