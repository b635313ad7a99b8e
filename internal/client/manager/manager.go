// Package manager aggregates the orchestrator and the health monitor into
// a single state and action surface for the CLI and the diagnostics server.
package manager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	clientsync "github.com/iudanet/lexisync/internal/client/sync"
	"github.com/iudanet/lexisync/internal/models"
)

const (
	quickSyncBudget = 30 * time.Second
	resetPoll       = 50 * time.Millisecond
)

var (
	fullSyncPriority = []string{
		models.TableUserProgress,
		models.TableStudySessions,
		models.TableVocabularies,
		models.TableAudioFiles,
	}
	quickSyncPriority = []string{models.TableUserProgress}
)

// State is a snapshot of the sync subsystem.
type State struct {
	CurrentSession *models.SyncSession      `json:"current_session,omitempty"`
	LastSyncResult *models.SyncResult       `json:"last_sync_result,omitempty"`
	ActiveAlerts   []*models.SyncAlert      `json:"active_alerts"`
	Mode           models.SyncMode          `json:"mode"`
	SystemStatus   models.SystemStatus      `json:"system_status"`
	HealthMetrics  models.SyncHealthMetrics `json:"health_metrics"`
	Online         bool                     `json:"online"`
	IsSyncing      bool                     `json:"is_syncing"`
}

// SettingsUpdate changes a subset of the sync settings; nil fields are kept.
type SettingsUpdate struct {
	AutoSyncEnabled *bool
	SyncInterval    *time.Duration
	ConflictMode    *models.ResolutionMode
}

// SyncLogs is the support export.
type SyncLogs struct {
	Timestamp       time.Time                `json:"timestamp"`
	ResolutionStats *models.ResolutionStats  `json:"resolutionStats"`
	Diagnostics     *models.Diagnostics      `json:"diagnostics"`
	SyncMode        models.SyncMode          `json:"syncMode"`
	SystemStatus    models.SystemStatus      `json:"systemStatus"`
	ActiveAlerts    []*models.SyncAlert      `json:"activeAlerts"`
	HealthMetrics   models.SyncHealthMetrics `json:"healthMetrics"`
}

// Manager is the façade over the sync subsystem.
type Manager struct {
	engine   Engine
	monitor  Monitor
	stats    StatsSource
	logger   *slog.Logger
	interval time.Duration // последний ненулевой интервал автосинхронизации
	mu       sync.Mutex
}

// New creates a manager.
func New(engine Engine, monitor Monitor, stats StatsSource, logger *slog.Logger) *Manager {
	interval := engine.Settings().AutoSyncInterval
	if interval == 0 {
		interval = clientsync.DefaultSettings().AutoSyncInterval
	}
	return &Manager{
		engine:   engine,
		monitor:  monitor,
		stats:    stats,
		logger:   logger,
		interval: interval,
	}
}

// State returns a snapshot of the current sync state.
func (m *Manager) State() State {
	mode := m.engine.CurrentMode()
	return State{
		Online:         mode.Mode != models.ModeOffline,
		Mode:           mode,
		IsSyncing:      m.engine.IsSyncing(),
		CurrentSession: m.engine.CurrentSession(),
		LastSyncResult: m.engine.LastResult(),
		HealthMetrics:  m.monitor.HealthMetrics(),
		ActiveAlerts:   m.monitor.ActiveAlerts(),
		SystemStatus:   m.monitor.Status(),
	}
}

// PerformFullSync forces a session over every table, progress first.
func (m *Manager) PerformFullSync(ctx context.Context) (*models.SyncResult, error) {
	m.logger.Info("Performing full sync")
	return m.engine.PerformSync(ctx, clientsync.Options{
		Trigger:  models.TriggerManual,
		Forced:   true,
		Priority: fullSyncPriority,
	})
}

// PerformQuickSync runs a short session that pushes user progress first.
// It does not preempt a running session.
func (m *Manager) PerformQuickSync(ctx context.Context) (*models.SyncResult, error) {
	m.logger.Info("Performing quick sync")
	return m.engine.PerformSync(ctx, clientsync.Options{
		Trigger:     models.TriggerManual,
		Priority:    quickSyncPriority,
		MaxDuration: quickSyncBudget,
	})
}

// CancelCurrentSync aborts the active session. Returns false if none is running.
func (m *Manager) CancelCurrentSync() bool {
	return m.engine.CancelCurrentSync()
}

// ExecuteRecoveryAction runs a registered recovery action by id.
func (m *Manager) ExecuteRecoveryAction(ctx context.Context, id string) (bool, error) {
	return m.monitor.ExecuteManualRecovery(ctx, id)
}

// ResolveAlert marks an alert resolved.
func (m *Manager) ResolveAlert(ctx context.Context, id string) error {
	return m.monitor.ResolveAlert(ctx, id)
}

// ResolveManualReview settles a conflict parked for manual review.
func (m *Manager) ResolveManualReview(ctx context.Context, table, recordID string, strategy models.ConflictStrategy) error {
	return m.engine.ResolveManualReview(ctx, table, recordID, strategy)
}

// UpdateSyncSettings applies a partial settings change.
func (m *Manager) UpdateSyncSettings(update SettingsUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	settings := m.engine.Settings()
	interval := m.interval
	if update.SyncInterval != nil {
		if *update.SyncInterval <= 0 {
			return fmt.Errorf("%w: sync interval must be positive", clientsync.ErrInvalidSettings)
		}
		interval = *update.SyncInterval
		if settings.AutoSyncInterval != 0 {
			settings.AutoSyncInterval = interval
		}
	}
	if update.AutoSyncEnabled != nil {
		if *update.AutoSyncEnabled {
			settings.AutoSyncInterval = interval
		} else {
			settings.AutoSyncInterval = 0
		}
	}
	if update.ConflictMode != nil {
		settings.ConflictMode = *update.ConflictMode
	}

	if err := m.engine.UpdateConfig(settings); err != nil {
		return err
	}
	m.interval = interval
	return nil
}

// RefreshDiagnostics recomputes the health snapshot.
func (m *Manager) RefreshDiagnostics(ctx context.Context) (*models.Diagnostics, error) {
	return m.monitor.Diagnostics(ctx)
}

// ExportSyncLogs returns an indented JSON snapshot for support.
// A failing section is logged and left empty.
func (m *Manager) ExportSyncLogs(ctx context.Context) ([]byte, error) {
	logs := SyncLogs{
		Timestamp:     time.Now().UTC(),
		SyncMode:      m.engine.CurrentMode(),
		HealthMetrics: m.monitor.HealthMetrics(),
		ActiveAlerts:  m.monitor.ActiveAlerts(),
		SystemStatus:  m.monitor.Status(),
	}

	if stats, err := m.stats.Stats(ctx); err != nil {
		m.logger.Error("Failed to read resolution stats", "error", err)
	} else {
		logs.ResolutionStats = &stats
	}

	if diag, err := m.monitor.Diagnostics(ctx); err != nil {
		m.logger.Error("Failed to collect diagnostics", "error", err)
	} else {
		logs.Diagnostics = diag
	}

	data, err := json.MarshalIndent(logs, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sync logs: %w", err)
	}
	return data, nil
}

// ResetSyncState cancels the active session, waits for it to finish and
// drops the session history and alerts. Queued mutations are kept.
func (m *Manager) ResetSyncState(ctx context.Context) error {
	m.logger.Info("Resetting sync state")
	m.engine.CancelCurrentSync()

	for m.engine.IsSyncing() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(resetPoll):
		}
	}

	var errs []error
	if err := m.engine.ResetHistory(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := m.monitor.Reset(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to reset health monitor: %w", err))
	}
	return errors.Join(errs...)
}
