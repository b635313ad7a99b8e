package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/lexisync/internal/models"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "lexisync.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	tables := models.NewTableRegistry(models.DefaultTables())
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate(tables))

	settings := cfg.Settings()
	assert.Equal(t, 30*time.Minute, settings.AutoSyncInterval)
	assert.Equal(t, 50, settings.BatchSize)
	assert.Equal(t, models.ResolutionAutomatic, settings.ConflictMode)
	assert.Equal(t, time.Minute, cfg.MonitorConfig().Interval)
	assert.Equal(t, 100, cfg.MonitorConfig().MaxAlerts)
	assert.Equal(t, settings.OfflineQueueMaxSize, cfg.MonitorConfig().QueueCeiling)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
server_url = "https://sync.example.com"
db_path = "/var/lib/lexisync/client.db"

[sync]
auto_sync_interval = "10m"
retry_delay = "2s"
batch_size = 20
max_retries = 5
conflict_mode = "manual"

[tables.cards]
strategy = "server_wins"

[health]
interval = "2m"

[probe]
connection_type = "wifi"

[logging]
level = "debug"
format = "json"
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	tables := models.NewTableRegistry(models.DefaultTables())
	require.NoError(t, cfg.Validate(tables))

	assert.Equal(t, "https://sync.example.com", cfg.ServerURL)
	settings := cfg.Settings()
	assert.Equal(t, 10*time.Minute, settings.AutoSyncInterval)
	assert.Equal(t, 2*time.Second, settings.RetryDelay)
	assert.Equal(t, 20, settings.BatchSize)
	assert.Equal(t, 5, settings.MaxRetries)
	assert.Equal(t, models.ResolutionManual, settings.ConflictMode)
	// не указанные в файле значения берутся из defaults
	assert.Equal(t, 30*time.Second, settings.ConflictResolutionTimeout)

	strategies := cfg.Strategies(tables)
	assert.Equal(t, models.StrategyServerWins, strategies[models.TableCards])
	assert.Equal(t, models.StrategyMerge, strategies[models.TableVocabularies])

	assert.Equal(t, 2*time.Minute, cfg.MonitorConfig().Interval)
	assert.Equal(t, "wifi", cfg.ProbeSettings().ConnectionType)
}

func TestLoadFromFile_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadFromFile(filepath.Join(dir, "missing.toml"))
	assert.ErrorContains(t, err, "does not exist")

	_, err = LoadFromFile(writeConfig(t, dir, `server_url = `))
	assert.ErrorContains(t, err, "failed to parse")

	_, err = LoadFromFile(writeConfig(t, dir, "sevrer_url = \"typo\"\n"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestValidate(t *testing.T) {
	tables := models.NewTableRegistry(models.DefaultTables())

	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{name: "empty server url", mutate: func(c *Config) { c.ServerURL = "" }, errMsg: "server_url"},
		{name: "zero batch size", mutate: func(c *Config) { c.Sync.BatchSize = 0 }, errMsg: "batch size"},
		{name: "unknown conflict mode", mutate: func(c *Config) { c.Sync.ConflictMode = "later" }, errMsg: "conflict mode"},
		{name: "unknown table", mutate: func(c *Config) { c.Tables["passwords"] = TableConfig{Strategy: "merge"} }, errMsg: "unknown table"},
		{name: "unknown strategy", mutate: func(c *Config) { c.Tables["cards"] = TableConfig{Strategy: "newest"} }, errMsg: "unknown strategy"},
		{name: "health interval too short", mutate: func(c *Config) { c.Health.Interval = time.Millisecond }, errMsg: "health interval"},
		{name: "zero probe timeout", mutate: func(c *Config) { c.Probe.Timeout = 0 }, errMsg: "probe"},
		{name: "bad log format", mutate: func(c *Config) { c.Logging.Format = "xml" }, errMsg: "log format"},
		{name: "bad log level", mutate: func(c *Config) { c.Logging.Level = "loud" }, errMsg: "log level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate(tables)
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

