// Package config loads the client configuration from a TOML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/iudanet/lexisync/internal/client/health"
	"github.com/iudanet/lexisync/internal/client/netprobe"
	clientsync "github.com/iudanet/lexisync/internal/client/sync"
	"github.com/iudanet/lexisync/internal/logging"
	"github.com/iudanet/lexisync/internal/models"
)

// ErrInvalidConfig indicates a configuration that fails validation
var ErrInvalidConfig = errors.New("invalid configuration")

// Config represents the client configuration
type Config struct {
	Tables      map[string]TableConfig `toml:"tables"`
	ServerURL   string                 `toml:"server_url"`
	DBPath      string                 `toml:"db_path"`
	Token       string                 `toml:"token"`
	Logging     LoggingConfig          `toml:"logging"`
	Diagnostics DiagnosticsConfig      `toml:"diagnostics"`
	Probe       ProbeConfig            `toml:"probe"`
	Sync        SyncConfig             `toml:"sync"`
	Health      HealthConfig           `toml:"health"`
}

// SyncConfig holds the orchestrator tunables
type SyncConfig struct {
	ConflictMode              string        `toml:"conflict_mode"`
	AutoSyncInterval          time.Duration `toml:"auto_sync_interval"`
	RetryDelay                time.Duration `toml:"retry_delay"`
	ConflictResolutionTimeout time.Duration `toml:"conflict_resolution_timeout"`
	MaxDuration               time.Duration `toml:"max_duration"`
	ReconnectDelay            time.Duration `toml:"reconnect_delay"`
	ForegroundDelay           time.Duration `toml:"foreground_delay"`
	BatchSize                 int           `toml:"batch_size"`
	MaxRetries                int           `toml:"max_retries"`
	OfflineQueueMaxSize       int           `toml:"offline_queue_max_size"`
}

// TableConfig overrides the conflict strategy of one table
type TableConfig struct {
	Strategy string `toml:"strategy"`
}

// HealthConfig holds health monitor settings
type HealthConfig struct {
	Interval            time.Duration `toml:"interval"`
	MaxRecoveryAttempts int           `toml:"max_recovery_attempts"`
}

// ProbeConfig holds connectivity probe settings
type ProbeConfig struct {
	ConnectionType string        `toml:"connection_type"`
	Interval       time.Duration `toml:"interval"`
	Timeout        time.Duration `toml:"timeout"`
}

// DiagnosticsConfig holds local diagnostics HTTP server settings
type DiagnosticsConfig struct {
	Address string `toml:"address"`
	Enabled bool   `toml:"enabled"`
}

// LoggingConfig holds logging settings
type LoggingConfig = logging.Config

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	settings := clientsync.DefaultSettings()
	monitor := health.DefaultConfig()
	probe := netprobe.DefaultConfig()

	return &Config{
		ServerURL: "http://localhost:8080",
		DBPath:    "lexisync.db",
		Tables:    map[string]TableConfig{},
		Sync: SyncConfig{
			AutoSyncInterval:          settings.AutoSyncInterval,
			RetryDelay:                settings.RetryDelay,
			ConflictResolutionTimeout: settings.ConflictResolutionTimeout,
			MaxDuration:               settings.MaxDuration,
			ReconnectDelay:            settings.ReconnectDelay,
			ForegroundDelay:           settings.ForegroundDelay,
			BatchSize:                 settings.BatchSize,
			MaxRetries:                settings.MaxRetries,
			OfflineQueueMaxSize:       settings.OfflineQueueMaxSize,
			ConflictMode:              string(settings.ConflictMode),
		},
		Health: HealthConfig{
			Interval:            monitor.Interval,
			MaxRecoveryAttempts: monitor.MaxRecoveryAttempts,
		},
		Probe: ProbeConfig{
			Interval:       probe.Interval,
			Timeout:        probe.Timeout,
			ConnectionType: probe.ConnectionType,
		},
		Diagnostics: DiagnosticsConfig{
			Enabled: true,
			Address: "127.0.0.1:7070",
		},
		Logging: logging.Default(),
	}
}

// LoadFromFile loads configuration from a TOML file on top of the defaults
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", path)
	}

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("%w: unknown keys: %s", ErrInvalidConfig, strings.Join(keys, ", "))
	}

	return cfg, nil
}

// LoadConfig loads the file if a path is given, defaults otherwise
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	return LoadFromFile(path)
}

// Validate checks if the configuration is valid
func (c *Config) Validate(tables *models.TableRegistry) error {
	if c.ServerURL == "" {
		return fmt.Errorf("%w: server_url must be specified", ErrInvalidConfig)
	}
	if c.DBPath == "" {
		return fmt.Errorf("%w: db_path must be specified", ErrInvalidConfig)
	}

	if err := c.Settings().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	for name, t := range c.Tables {
		if !tables.Has(name) {
			return fmt.Errorf("%w: unknown table %q", ErrInvalidConfig, name)
		}
		if !models.ConflictStrategy(t.Strategy).Valid() {
			return fmt.Errorf("%w: table %s: unknown strategy %q", ErrInvalidConfig, name, t.Strategy)
		}
	}

	if c.Health.Interval < time.Second {
		return fmt.Errorf("%w: health interval must be at least 1s", ErrInvalidConfig)
	}
	if c.Health.MaxRecoveryAttempts < 0 {
		return fmt.Errorf("%w: max_recovery_attempts must not be negative", ErrInvalidConfig)
	}
	if c.Probe.Interval <= 0 || c.Probe.Timeout <= 0 {
		return fmt.Errorf("%w: probe interval and timeout must be positive", ErrInvalidConfig)
	}
	if c.Diagnostics.Enabled && c.Diagnostics.Address == "" {
		return fmt.Errorf("%w: diagnostics address must be specified", ErrInvalidConfig)
	}

	switch c.Logging.Format {
	case "", "auto", "text", "json":
	default:
		return fmt.Errorf("%w: unsupported log format %q (must be auto, text, or json)", ErrInvalidConfig, c.Logging.Format)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return nil
}

// Settings returns the orchestrator tunables
func (c *Config) Settings() clientsync.Settings {
	return clientsync.Settings{
		AutoSyncInterval:          c.Sync.AutoSyncInterval,
		RetryDelay:                c.Sync.RetryDelay,
		ConflictResolutionTimeout: c.Sync.ConflictResolutionTimeout,
		MaxDuration:               c.Sync.MaxDuration,
		ReconnectDelay:            c.Sync.ReconnectDelay,
		ForegroundDelay:           c.Sync.ForegroundDelay,
		BatchSize:                 c.Sync.BatchSize,
		MaxRetries:                c.Sync.MaxRetries,
		OfflineQueueMaxSize:       c.Sync.OfflineQueueMaxSize,
		ConflictMode:              models.ResolutionMode(c.Sync.ConflictMode),
	}
}

// Strategies returns the per-table conflict strategies with overrides applied
func (c *Config) Strategies(tables *models.TableRegistry) map[string]models.ConflictStrategy {
	out := make(map[string]models.ConflictStrategy)
	for _, spec := range tables.Specs() {
		out[spec.Name] = spec.Strategy
		if t, ok := c.Tables[spec.Name]; ok && t.Strategy != "" {
			out[spec.Name] = models.ConflictStrategy(t.Strategy)
		}
	}
	return out
}

// MonitorConfig returns the health monitor settings
func (c *Config) MonitorConfig() health.Config {
	cfg := health.DefaultConfig()
	cfg.Interval = c.Health.Interval
	cfg.MaxRecoveryAttempts = c.Health.MaxRecoveryAttempts
	cfg.QueueCeiling = c.Sync.OfflineQueueMaxSize
	return cfg
}

// ProbeSettings returns the connectivity probe settings
func (c *Config) ProbeSettings() netprobe.Config {
	return netprobe.Config{
		Interval:       c.Probe.Interval,
		Timeout:        c.Probe.Timeout,
		ConnectionType: c.Probe.ConnectionType,
	}
}
