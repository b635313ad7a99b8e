// Package health computes sync health metrics, raises alerts and runs
// recovery actions through the orchestrator API.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/iudanet/lexisync/internal/client/storage"
	"github.com/iudanet/lexisync/internal/models"
)

// Config holds the monitor tunables.
type Config struct {
	Interval            time.Duration
	Window              time.Duration
	MaxAlerts           int
	MaxRecoveryAttempts int
	// QueueCeiling - настроенный предел офлайн-очереди, 0 отключает проверку
	QueueCeiling int
}

// DefaultConfig returns the built-in monitor settings.
func DefaultConfig() Config {
	return Config{
		Interval:            time.Minute,
		Window:              24 * time.Hour,
		MaxAlerts:           100,
		MaxRecoveryAttempts: 3,
	}
}

// Dependencies are the monitor collaborators. Registerer may be nil.
type Dependencies struct {
	Orchestrator Orchestrator
	Queue        QueueSizer
	Sessions     storage.SessionStorage
	Records      storage.RecordStorage
	Alerts       storage.AlertStorage
	Tables       *models.TableRegistry
	Registerer   prometheus.Registerer
	Logger       *slog.Logger
	// Actions overrides the default recovery registry.
	Actions []*RecoveryAction
}

// Monitor runs the periodic health cycle.
type Monitor struct {
	orch     Orchestrator
	queue    QueueSizer
	sessions storage.SessionStorage
	records  storage.RecordStorage
	store    storage.AlertStorage
	tables   *models.TableRegistry
	gauges   *gauges
	logger   *slog.Logger
	now      func() time.Time
	cron     *cron.Cron
	attempts map[string]int
	book     alertBook
	actions  []*RecoveryAction
	status   models.SystemStatus
	metrics  models.SyncHealthMetrics
	cfg      Config
	mu       sync.RWMutex
	cycleMu  sync.Mutex
}

// New creates a monitor and restores persisted alerts.
func New(ctx context.Context, deps Dependencies, cfg Config) (*Monitor, error) {
	m := &Monitor{
		orch:     deps.Orchestrator,
		queue:    deps.Queue,
		sessions: deps.Sessions,
		records:  deps.Records,
		store:    deps.Alerts,
		tables:   deps.Tables,
		logger:   deps.Logger,
		now:      func() time.Time { return time.Now().UTC() },
		attempts: make(map[string]int),
		book:     alertBook{max: cfg.MaxAlerts},
		actions:  deps.Actions,
		status:   models.StatusHealthy,
		metrics:  models.SyncHealthMetrics{SuccessRate: 1, DataIntegrityScore: 1},
		cfg:      cfg,
	}
	if m.actions == nil {
		m.actions = DefaultRecoveryActions(deps.Orchestrator)
	}

	if deps.Registerer != nil {
		g, err := newGauges(deps.Registerer)
		if err != nil {
			return nil, err
		}
		m.gauges = g
	}

	alerts, err := m.store.LoadAlerts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load alerts: %w", err)
	}
	m.book.alerts = alerts

	return m, nil
}

// SetQueueCeiling updates the offline queue limit checked on the next cycle.
func (m *Monitor) SetQueueCeiling(n int) {
	m.mu.Lock()
	m.cfg.QueueCeiling = n
	m.mu.Unlock()
}

// Start schedules the monitoring cycle.
func (m *Monitor) Start(ctx context.Context) error {
	m.cron = cron.New()
	_, err := m.cron.AddFunc(fmt.Sprintf("@every %s", m.cfg.Interval), func() {
		if err := m.RunCycle(ctx); err != nil {
			m.logger.Error("Health monitoring cycle failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule health cycle: %w", err)
	}
	m.cron.Start()
	m.logger.Info("Health monitor started", "interval", m.cfg.Interval)
	return nil
}

// Stop stops the schedule and waits for a running cycle.
func (m *Monitor) Stop() {
	if m.cron == nil {
		return
	}
	<-m.cron.Stop().Done()
	m.logger.Info("Health monitor stopped")
}

// RunCycle recomputes metrics, raises alerts, collects resolved alerts and
// executes automated recovery actions whose conditions all hold.
func (m *Monitor) RunCycle(ctx context.Context) error {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	metrics, _, err := m.collect(ctx)
	if err != nil {
		return err
	}
	now := m.now()
	status := EvaluateStatus(metrics)

	m.mu.Lock()
	m.metrics = metrics
	m.status = status
	for _, a := range thresholdAlerts(metrics, status, m.cfg.QueueCeiling, now) {
		if m.book.raise(a) {
			m.logger.Warn("Alert raised", "severity", a.Severity, "title", a.Title, "code", a.Metadata.ErrorCode)
		}
	}
	m.book.gc(now.Add(-resolvedAlertTTL))
	m.mu.Unlock()

	m.runRecovery(ctx, metrics, now)

	m.mu.Lock()
	active := len(m.book.active())
	snapshot := m.book.all()
	m.mu.Unlock()

	m.gauges.update(metrics, status, active)
	if err := m.store.SaveAlerts(ctx, snapshot); err != nil {
		return fmt.Errorf("failed to persist alerts: %w", err)
	}

	m.logger.Debug("Health cycle completed",
		"status", status,
		"success_rate", metrics.SuccessRate,
		"queue_size", metrics.QueueSize,
		"integrity", metrics.DataIntegrityScore,
		"active_alerts", active)
	return nil
}

// runRecovery: автоматическое действие выполняется не более MaxRecoveryAttempts
// раз подряд, пока его условия продолжают выполняться
func (m *Monitor) runRecovery(ctx context.Context, metrics models.SyncHealthMetrics, now time.Time) {
	for _, a := range m.sortedActions() {
		if !a.Info.Automated {
			continue
		}
		if !allConditions(a, metrics, now) {
			m.attempts[a.Info.ID] = 0
			continue
		}
		if m.cfg.MaxRecoveryAttempts > 0 && m.attempts[a.Info.ID] >= m.cfg.MaxRecoveryAttempts {
			m.logger.Warn("Recovery action attempts exhausted", "action", a.Info.ID, "attempts", m.attempts[a.Info.ID])
			continue
		}
		m.attempts[a.Info.ID]++
		m.execute(ctx, a)
	}
}

func (m *Monitor) sortedActions() []*RecoveryAction {
	out := slices.Clone(m.actions)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Info.Priority < out[j].Info.Priority })
	return out
}

func (m *Monitor) execute(ctx context.Context, a *RecoveryAction) (bool, error) {
	m.logger.Info("Executing recovery action", "action", a.Info.ID, "description", a.Info.Description)

	ok, err := runAction(ctx, a)
	if err != nil {
		m.logger.Error("Recovery action failed", "action", a.Info.ID, "error", err)
	}

	m.mu.Lock()
	m.book.raise(recoveryAlert(a.Info, ok, err, m.now()))
	m.mu.Unlock()
	return ok, err
}

// collect читает историю сессий, размер очереди и результат проверки целостности
func (m *Monitor) collect(ctx context.Context) (models.SyncHealthMetrics, []models.IntegrityIssue, error) {
	now := m.now()

	sessions, err := m.sessions.ListSessionsSince(ctx, now.Add(-m.cfg.Window))
	if err != nil {
		return models.SyncHealthMetrics{}, nil, fmt.Errorf("failed to read session history: %w", err)
	}

	var lastSuccess *time.Time
	last, err := m.sessions.LastSuccessfulSession(ctx)
	switch {
	case err == nil && last.CompletedAt != nil:
		t := *last.CompletedAt
		lastSuccess = &t
	case err != nil && !errors.Is(err, storage.ErrSessionNotFound):
		return models.SyncHealthMetrics{}, nil, fmt.Errorf("failed to read last successful session: %w", err)
	}

	queueSize, err := m.queue.Size(ctx)
	if err != nil {
		return models.SyncHealthMetrics{}, nil, fmt.Errorf("failed to read queue size: %w", err)
	}

	issues, err := CheckIntegrity(ctx, m.records, m.tables)
	if err != nil {
		m.logger.Error("Data integrity scan failed", "error", err)
		issues = append(issues, models.IntegrityIssue{
			Kind:   models.IssueScanFailed,
			Detail: "Unable to perform data integrity check",
		})
	}

	return ComputeMetrics(sessions, lastSuccess, queueSize, IntegrityScore(issues)), issues, nil
}

// HealthMetrics returns the metrics of the latest cycle.
func (m *Monitor) HealthMetrics() models.SyncHealthMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metrics
}

// Status returns the status of the latest cycle.
func (m *Monitor) Status() models.SystemStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// ActiveAlerts returns copies of unresolved alerts.
func (m *Monitor) ActiveAlerts() []*models.SyncAlert {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.book.active()
}

// ResolveAlert marks an alert resolved; it is collected 24h later.
func (m *Monitor) ResolveAlert(ctx context.Context, id string) error {
	m.mu.Lock()
	found := m.book.resolve(id, m.now())
	snapshot := m.book.all()
	m.mu.Unlock()

	if !found {
		return ErrAlertNotFound
	}
	if err := m.store.SaveAlerts(ctx, snapshot); err != nil {
		return fmt.Errorf("failed to persist alerts: %w", err)
	}
	return nil
}

// RecoveryActions lists the registry.
func (m *Monitor) RecoveryActions() []models.RecoveryActionInfo {
	out := make([]models.RecoveryActionInfo, 0, len(m.actions))
	for _, a := range m.sortedActions() {
		out = append(out, a.Info)
	}
	return out
}

// ExecuteManualRecovery runs any registered action on request, automated or not.
func (m *Monitor) ExecuteManualRecovery(ctx context.Context, id string) (bool, error) {
	var action *RecoveryAction
	for _, a := range m.actions {
		if a.Info.ID == id {
			action = a
			break
		}
	}
	if action == nil {
		return false, fmt.Errorf("%w: %s", ErrUnknownRecoveryAction, id)
	}

	ok, err := m.execute(ctx, action)

	m.mu.RLock()
	snapshot := m.book.all()
	m.mu.RUnlock()
	if serr := m.store.SaveAlerts(ctx, snapshot); serr != nil {
		m.logger.Error("Failed to persist alerts", "error", serr)
	}
	return ok, err
}

// Diagnostics recomputes metrics and returns a full health snapshot.
// It raises no alerts and runs no actions.
func (m *Monitor) Diagnostics(ctx context.Context) (*models.Diagnostics, error) {
	metrics, issues, err := m.collect(ctx)
	if err != nil {
		return nil, err
	}
	now := m.now()
	status := EvaluateStatus(metrics)

	m.mu.Lock()
	m.metrics = metrics
	m.status = status
	active := m.book.active()
	m.mu.Unlock()
	m.gauges.update(metrics, status, len(active))

	return &models.Diagnostics{
		GeneratedAt:        now,
		Metrics:            metrics,
		ActiveAlerts:       active,
		RecommendedActions: RecommendedActions(m.actions, metrics, now),
		Status:             status,
		IntegrityIssues:    issues,
		PerformanceIssues:  PerformanceIssues(metrics),
	}, nil
}

// Reset drops every alert and recovery attempt counter.
func (m *Monitor) Reset(ctx context.Context) error {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	m.mu.Lock()
	m.book.alerts = nil
	m.attempts = make(map[string]int)
	m.metrics = models.SyncHealthMetrics{SuccessRate: 1, DataIntegrityScore: 1}
	m.status = models.StatusHealthy
	m.mu.Unlock()

	return m.store.SaveAlerts(ctx, []*models.SyncAlert{})
}
