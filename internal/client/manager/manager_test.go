package manager

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/lexisync/internal/client/conflict"
	"github.com/iudanet/lexisync/internal/client/health"
	"github.com/iudanet/lexisync/internal/client/mode"
	"github.com/iudanet/lexisync/internal/client/queue"
	"github.com/iudanet/lexisync/internal/client/storage/boltdb"
	clientsync "github.com/iudanet/lexisync/internal/client/sync"
	"github.com/iudanet/lexisync/internal/models"
	"github.com/iudanet/lexisync/pkg/api"
)

type fixture struct {
	manager *Manager
	orch    *clientsync.Orchestrator
	monitor *health.Monitor
	store   *boltdb.Storage
	api     *clientsync.APIClientMock
}

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newFixture(t *testing.T, sig mode.Signal) *fixture {
	t.Helper()
	ctx := context.Background()

	store, err := boltdb.New(ctx, filepath.Join(t.TempDir(), "manager.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	logger := setupTestLogger()
	tables := models.NewTableRegistry(models.DefaultTables())
	strategies := make(map[string]models.ConflictStrategy)
	for _, spec := range tables.Specs() {
		strategies[spec.Name] = spec.Strategy
	}

	mock := &clientsync.APIClientMock{
		DownloadFunc: func(ctx context.Context, table string, req api.DownloadRequest) (*api.DownloadResponse, error) {
			return &api.DownloadResponse{Success: true, Records: []api.Record{}}, nil
		},
	}

	settings := clientsync.DefaultSettings()
	q := queue.NewService(store, store, store, tables, queue.Config{MaxRetries: settings.MaxRetries}, logger)
	resolver := conflict.NewResolver(store, strategies, logger)

	orch, err := clientsync.New(clientsync.Dependencies{
		API:      mock,
		Signals:  clientsync.StaticSignal(sig),
		Records:  store,
		Metadata: store,
		Sessions: store,
		Reviews:  store,
		Queue:    q,
		Resolver: resolver,
		Tables:   tables,
		Logger:   logger,
	}, settings)
	require.NoError(t, err)

	monitor, err := health.New(ctx, health.Dependencies{
		Orchestrator: orch,
		Queue:        q,
		Sessions:     store,
		Records:      store,
		Alerts:       store,
		Tables:       tables,
		Logger:       logger,
	}, health.DefaultConfig())
	require.NoError(t, err)

	return &fixture{
		manager: New(orch, monitor, resolver, logger),
		orch:    orch,
		monitor: monitor,
		store:   store,
		api:     mock,
	}
}

func TestManager_State(t *testing.T) {
	f := newFixture(t, mode.Signal{IsConnected: true, ConnectionType: "wifi"})

	state := f.manager.State()
	assert.True(t, state.Online)
	assert.Equal(t, models.ModeOnline, state.Mode.Mode)
	assert.False(t, state.IsSyncing)
	assert.Nil(t, state.CurrentSession)
	assert.Nil(t, state.LastSyncResult)
	assert.Equal(t, models.StatusHealthy, state.SystemStatus)
}

func TestManager_PerformFullSync(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, mode.Signal{IsConnected: true, ConnectionType: "wifi"})

	res, err := f.manager.PerformFullSync(ctx)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, models.ModeOnline, res.Mode)

	// user_progress идет первым
	calls := f.api.DownloadCalls()
	require.NotEmpty(t, calls)
	assert.Equal(t, models.TableUserProgress, calls[0].Table)

	state := f.manager.State()
	require.NotNil(t, state.LastSyncResult)
	assert.Equal(t, res.SessionID, state.LastSyncResult.SessionID)
}

func TestManager_PerformQuickSyncOffline(t *testing.T) {
	f := newFixture(t, mode.Signal{})

	res, err := f.manager.PerformQuickSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.ModeOffline, res.Mode)
	assert.Contains(t, res.Warnings, "Operating in offline mode - server sync deferred")
	assert.False(t, f.manager.State().Online)
	assert.False(t, f.manager.CancelCurrentSync())
}

func TestManager_UpdateSyncSettings(t *testing.T) {
	f := newFixture(t, mode.Signal{})

	disabled := false
	require.NoError(t, f.manager.UpdateSyncSettings(SettingsUpdate{AutoSyncEnabled: &disabled}))
	assert.Zero(t, f.orch.Settings().AutoSyncInterval)

	// интервал запоминается, но таймер остается выключенным
	interval := 10 * time.Minute
	require.NoError(t, f.manager.UpdateSyncSettings(SettingsUpdate{SyncInterval: &interval}))
	assert.Zero(t, f.orch.Settings().AutoSyncInterval)

	enabled := true
	manual := models.ResolutionManual
	require.NoError(t, f.manager.UpdateSyncSettings(SettingsUpdate{AutoSyncEnabled: &enabled, ConflictMode: &manual}))
	assert.Equal(t, interval, f.orch.Settings().AutoSyncInterval)
	assert.Equal(t, models.ResolutionManual, f.orch.Settings().ConflictMode)

	bad := -time.Second
	assert.ErrorIs(t, f.manager.UpdateSyncSettings(SettingsUpdate{SyncInterval: &bad}), clientsync.ErrInvalidSettings)

	unknown := models.ResolutionMode("later")
	assert.ErrorIs(t, f.manager.UpdateSyncSettings(SettingsUpdate{ConflictMode: &unknown}), clientsync.ErrInvalidSettings)
}

func TestManager_RecoveryAndAlerts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, mode.Signal{})

	ok, err := f.manager.ExecuteRecoveryAction(ctx, "clear_sync_queue")
	require.NoError(t, err)
	assert.True(t, ok)

	alerts := f.manager.State().ActiveAlerts
	require.Len(t, alerts, 1)
	assert.Equal(t, "RECOVERY_CLEAR_SYNC_QUEUE", alerts[0].Metadata.ErrorCode)

	require.NoError(t, f.manager.ResolveAlert(ctx, alerts[0].ID))
	assert.Empty(t, f.manager.State().ActiveAlerts)

	assert.ErrorIs(t, f.manager.ResolveAlert(ctx, "alert_missing"), health.ErrAlertNotFound)
	_, err = f.manager.ExecuteRecoveryAction(ctx, "unknown")
	assert.ErrorIs(t, err, health.ErrUnknownRecoveryAction)
}

func TestManager_ExportSyncLogs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, mode.Signal{})

	data, err := f.manager.ExportSyncLogs(ctx)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	for _, key := range []string{"timestamp", "syncMode", "healthMetrics", "activeAlerts", "systemStatus", "resolutionStats", "diagnostics"} {
		assert.Contains(t, decoded, key)
	}
	assert.Equal(t, "healthy", decoded["systemStatus"])
}

func TestManager_ResetSyncState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, mode.Signal{})

	_, err := f.manager.PerformQuickSync(ctx)
	require.NoError(t, err)
	_, err = f.manager.ExecuteRecoveryAction(ctx, "clear_sync_queue")
	require.NoError(t, err)

	require.NoError(t, f.manager.ResetSyncState(ctx))

	state := f.manager.State()
	assert.Nil(t, state.LastSyncResult)
	assert.Empty(t, state.ActiveAlerts)

	sessions, err := f.store.ListSessionsSince(ctx, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, sessions)
}
