// Package sync runs synchronization sessions between the local store and the server.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	stdsync "sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/iudanet/lexisync/internal/client/conflict"
	"github.com/iudanet/lexisync/internal/client/mode"
	"github.com/iudanet/lexisync/internal/client/queue"
	"github.com/iudanet/lexisync/internal/client/storage"
	"github.com/iudanet/lexisync/internal/models"
)

const persistTimeout = 5 * time.Second

// Dependencies are the collaborators wired by the composition root.
type Dependencies struct {
	API      APIClient
	Signals  SignalSource
	Records  storage.RecordStorage
	Metadata storage.MetadataStorage
	Sessions storage.SessionStorage
	Reviews  storage.ConflictStorage
	Queue    *queue.Service
	Resolver *conflict.Resolver
	Tables   *models.TableRegistry
	Logger   *slog.Logger
}

// Orchestrator owns the single-active-session guard and runs sync programs.
type Orchestrator struct {
	api      APIClient
	signals  SignalSource
	records  storage.RecordStorage
	metadata storage.MetadataStorage
	sessions storage.SessionStorage
	reviews  storage.ConflictStorage
	queue    *queue.Service
	resolver *conflict.Resolver
	tables   *models.TableRegistry
	logger   *slog.Logger
	now      func() time.Time

	// состояние, защищенное mu
	current    *run
	rebuilding bool
	lastResult *models.SyncResult
	retryTimer *time.Timer
	scheduler  *cron.Cron
	lastMode   models.SyncMode
	settings   Settings
	cronEntry  cron.EntryID
	mu         stdsync.RWMutex

	ticks   chan struct{}
	retryCh chan struct{}
	wg      stdsync.WaitGroup
}

// New creates an orchestrator with the given tunables.
func New(deps Dependencies, settings Settings) (*Orchestrator, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		api:      deps.API,
		signals:  deps.Signals,
		records:  deps.Records,
		metadata: deps.Metadata,
		sessions: deps.Sessions,
		reviews:  deps.Reviews,
		queue:    deps.Queue,
		resolver: deps.Resolver,
		tables:   deps.Tables,
		logger:   deps.Logger,
		now:      func() time.Time { return time.Now().UTC() },
		settings: settings,
		ticks:    make(chan struct{}, 1),
		retryCh:  make(chan struct{}, 1),
	}
	o.lastMode = mode.Select(o.signals.Current())
	o.queue.SetConfig(queue.Config{MaxRetries: settings.MaxRetries, MaxSize: settings.OfflineQueueMaxSize})
	return o, nil
}

// PerformSync runs one session in the mode selected from the current signal.
// A non-forced call while another session is active returns ErrSyncInProgress,
// as does any call while the queue is being rebuilt.
// Failures inside the session are reported through the result, not the error.
func (o *Orchestrator) PerformSync(ctx context.Context, opts Options) (result *models.SyncResult, err error) {
	if opts.Trigger == "" {
		opts.Trigger = models.TriggerManual
	}

	o.mu.Lock()
	if o.rebuilding || (o.current != nil && !opts.Forced) {
		o.mu.Unlock()
		return nil, ErrSyncInProgress
	}
	settings := o.settings
	if opts.ConflictStrategy == "" {
		opts.ConflictStrategy = settings.ConflictMode
	}
	if opts.ConflictStrategy == "" {
		opts.ConflictStrategy = models.ResolutionAutomatic
	}
	budget := opts.MaxDuration
	if budget <= 0 {
		budget = settings.MaxDuration
	}
	m := mode.Select(o.signals.Current())
	sessionCtx, cancel := context.WithCancel(ctx)
	r := newRun(opts, m, o.now(), budget, cancel)
	o.current = r
	o.lastMode = m
	o.mu.Unlock()

	o.logger.Info("Sync session started",
		"session_id", r.session.ID,
		"mode", m.Mode,
		"reason", m.Reason,
		"trigger", opts.Trigger,
		"forced", opts.Forced)

	// Единственная точка выхода: сессия завершается и сохраняется при любом исходе
	defer func() {
		if p := recover(); p != nil {
			o.logger.Error("Sync session panicked", "session_id", r.session.ID, "panic", p)
			r.addError("sync session failed: %v", p)
		}
		result = o.finalize(ctx, r, sessionCtx.Err() != nil)
		cancel()
	}()

	switch m.Mode {
	case models.ModeOnline:
		o.runOnline(sessionCtx, r, settings)
	case models.ModeHybrid:
		o.runHybrid(sessionCtx, r, settings)
	default:
		o.runOffline(sessionCtx, r, settings)
	}

	return nil, nil
}

// finalize freezes the session, persists it and clears the in-progress guard
// if it still points at this run.
func (o *Orchestrator) finalize(ctx context.Context, r *run, cancelled bool) *models.SyncResult {
	session, res, retry := r.finish(o.now(), cancelled)

	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := o.sessions.SaveSession(persistCtx, session); err != nil {
		o.logger.Error("Failed to persist sync session", "session_id", session.ID, "error", err)
	}

	o.mu.Lock()
	if o.current == r {
		o.current = nil
	}
	o.lastResult = res.Clone()
	if retry {
		o.scheduleRetryLocked()
	}
	o.mu.Unlock()

	totals := res.Totals()
	o.logger.Info("Sync session completed",
		"session_id", session.ID,
		"mode", session.Mode.Mode,
		"success", res.Success,
		"cancelled", res.Cancelled,
		"uploaded", totals.Uploaded,
		"downloaded", totals.Downloaded,
		"conflicts", totals.Conflicts,
		"errors", len(res.Errors),
		"warnings", len(res.Warnings),
		"duration", res.TotalTime)

	return res
}

// scheduleRetryLocked ставит одну повторную попытку через retryDelay; вызывать под mu
func (o *Orchestrator) scheduleRetryLocked() {
	if o.retryTimer != nil {
		o.retryTimer.Stop()
	}
	o.retryTimer = time.AfterFunc(o.settings.RetryDelay, func() {
		select {
		case o.retryCh <- struct{}{}:
		default:
		}
	})
}

// CancelCurrentSync aborts the active session including in-flight requests.
// Returns false when nothing is running.
func (o *Orchestrator) CancelCurrentSync() bool {
	o.mu.RLock()
	r := o.current
	o.mu.RUnlock()
	if r == nil {
		return false
	}
	r.cancel()
	o.logger.Info("Sync session cancellation requested", "session_id", r.session.ID)
	return true
}

// RebuildQueue clears the queue and re-derives it from dirty local records.
// Sessions cannot start until the rebuild returns.
func (o *Orchestrator) RebuildQueue(ctx context.Context) (int, error) {
	o.mu.Lock()
	if o.current != nil || o.rebuilding {
		o.mu.Unlock()
		return 0, ErrSyncInProgress
	}
	o.rebuilding = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.rebuilding = false
		o.mu.Unlock()
	}()
	return o.queue.Rebuild(ctx)
}

// CurrentMode returns the mode of the latest session or mode probe.
func (o *Orchestrator) CurrentMode() models.SyncMode {
	m := mode.Select(o.signals.Current())
	o.mu.Lock()
	o.lastMode = m
	o.mu.Unlock()
	return m
}

// CurrentSession returns a copy of the active session, or nil.
func (o *Orchestrator) CurrentSession() *models.SyncSession {
	o.mu.RLock()
	r := o.current
	o.mu.RUnlock()
	if r == nil {
		return nil
	}
	return r.snapshot()
}

// IsSyncing reports whether a session is active.
func (o *Orchestrator) IsSyncing() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.current != nil
}

// LastResult returns a copy of the most recent session result.
func (o *Orchestrator) LastResult() *models.SyncResult {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.lastResult.Clone()
}

// Settings returns the active tunables.
func (o *Orchestrator) Settings() Settings {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.settings
}

// UpdateConfig replaces the tunables; the auto-sync schedule is adjusted
// if the event loop is running.
func (o *Orchestrator) UpdateConfig(settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	o.mu.Lock()
	prev := o.settings
	o.settings = settings
	if o.scheduler != nil && prev.AutoSyncInterval != settings.AutoSyncInterval {
		if err := o.scheduleTicksLocked(); err != nil {
			o.mu.Unlock()
			return err
		}
	}
	o.mu.Unlock()

	o.queue.SetConfig(queue.Config{MaxRetries: settings.MaxRetries, MaxSize: settings.OfflineQueueMaxSize})
	o.logger.Info("Sync settings updated",
		"auto_sync_interval", settings.AutoSyncInterval,
		"batch_size", settings.BatchSize,
		"max_retries", settings.MaxRetries)
	return nil
}

// ResetHistory drops the session history, the last result and a pending retry.
// Queued mutations and local records are kept.
func (o *Orchestrator) ResetHistory(ctx context.Context) error {
	o.mu.Lock()
	if o.current != nil {
		o.mu.Unlock()
		return ErrSyncInProgress
	}
	o.lastResult = nil
	if o.retryTimer != nil {
		o.retryTimer.Stop()
		o.retryTimer = nil
	}
	o.mu.Unlock()

	if err := o.sessions.ClearSessions(ctx); err != nil {
		return fmt.Errorf("failed to clear session history: %w", err)
	}
	o.logger.Info("Sync history reset")
	return nil
}

// ResolveManualReview applies the chosen strategy to a record parked for manual review.
// The current local record is used, so edits made since the review started are kept.
func (o *Orchestrator) ResolveManualReview(ctx context.Context, table, recordID string, strategy models.ConflictStrategy) error {
	if !strategy.Valid() {
		return fmt.Errorf("unknown conflict strategy %q", strategy)
	}

	review, err := o.reviews.GetManualReview(ctx, table, recordID)
	if err != nil {
		return fmt.Errorf("failed to load manual review: %w", err)
	}

	local, err := o.records.GetRecord(ctx, table, recordID)
	if err != nil && !errors.Is(err, storage.ErrRecordNotFound) {
		return fmt.Errorf("failed to load local record: %w", err)
	}
	if local == nil {
		local = review.ClientRecord
	}
	server := review.ServerRecord

	var resolved *models.Record
	switch strategy {
	case models.StrategyServerWins:
		resolved = server.Clone()
		resolved.LocalID = local.LocalID
		resolved.Dirty = false
	case models.StrategyClientWins:
		resolved = local.Clone()
		resolved.Dirty = true
	default:
		resolved, _, _ = conflict.Merge(local, server)
		resolved.UpdatedAt = o.now()
		resolved.Dirty = true
	}
	resolved.ServerID = server.ServerID
	resolved.LastSyncedAt = server.UpdatedAt

	if err := o.records.SaveRecord(ctx, resolved); err != nil {
		return fmt.Errorf("failed to save resolved record: %w", err)
	}
	if err := o.queue.RemoveRecord(ctx, table, recordID); err != nil {
		return fmt.Errorf("failed to clear queued items: %w", err)
	}
	if resolved.Dirty {
		if _, err := o.queue.Enqueue(ctx, table, recordID, queue.ActionFor(resolved)); err != nil {
			return fmt.Errorf("failed to enqueue resolved record: %w", err)
		}
	}
	if err := o.reviews.DeleteManualReview(ctx, table, recordID); err != nil {
		return fmt.Errorf("failed to close manual review: %w", err)
	}

	o.logger.Info("Manual review resolved",
		"table", table,
		"record_id", recordID,
		"strategy", strategy)
	return nil
}
