// Package config loads the sync server configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/iudanet/lexisync/internal/logging"
)

// SecretEnv overrides jwt_secret so it can stay out of the config file
const SecretEnv = "LEXISYNC_JWT_SECRET"

// ErrInvalidConfig indicates a configuration that fails validation
var ErrInvalidConfig = errors.New("invalid configuration")

// Config represents the server configuration
type Config struct {
	Address         string          `toml:"address"`
	DBPath          string          `toml:"db_path"`
	JWTSecret       string          `toml:"jwt_secret"`
	Logging         logging.Config  `toml:"logging"`
	RateLimit       RateLimitConfig `toml:"rate_limit"`
	TokenTTL        time.Duration   `toml:"token_ttl"`
	ShutdownTimeout time.Duration   `toml:"shutdown_timeout"`
}

// RateLimitConfig limits requests per authenticated user.
// Requests = 0 disables the limiter.
type RateLimitConfig struct {
	Requests int           `toml:"requests"`
	Window   time.Duration `toml:"window"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Address:         ":8080",
		DBPath:          "lexisync-server.db",
		TokenTTL:        30 * 24 * time.Hour,
		ShutdownTimeout: 10 * time.Second,
		RateLimit: RateLimitConfig{
			Requests: 600,
			Window:   time.Minute,
		},
		Logging: logging.Default(),
	}
}

// LoadConfig loads the TOML file on top of the defaults (if a path is given)
// and applies the environment override for the secret
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
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
	}

	if secret := os.Getenv(SecretEnv); secret != "" {
		cfg.JWTSecret = secret
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("%w: address must be specified", ErrInvalidConfig)
	}
	if c.DBPath == "" {
		return fmt.Errorf("%w: db_path must be specified", ErrInvalidConfig)
	}
	if len(c.JWTSecret) < 16 {
		return fmt.Errorf("%w: jwt_secret (or %s) must be at least 16 characters", ErrInvalidConfig, SecretEnv)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("%w: token_ttl must be positive", ErrInvalidConfig)
	}
	if c.RateLimit.Requests < 0 {
		return fmt.Errorf("%w: rate_limit.requests cannot be negative", ErrInvalidConfig)
	}
	if c.RateLimit.Requests > 0 && c.RateLimit.Window <= 0 {
		return fmt.Errorf("%w: rate_limit.window must be positive", ErrInvalidConfig)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: shutdown_timeout must be positive", ErrInvalidConfig)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
