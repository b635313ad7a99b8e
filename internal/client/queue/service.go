// Package queue manages the durable log of local mutations awaiting upload.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/iudanet/lexisync/internal/client/storage"
	"github.com/iudanet/lexisync/internal/models"
)

// Config holds queue limits.
type Config struct {
	MaxRetries int
	// MaxSize is the offlineQueueMaxSize ceiling; exceeding it is reported, never truncated.
	MaxSize int
}

// Service wraps queue storage with the bookkeeping the orchestrator needs.
type Service struct {
	store   storage.QueueStorage
	records storage.RecordStorage
	reviews storage.ConflictStorage
	tables  *models.TableRegistry
	logger  *slog.Logger
	mu      sync.RWMutex
	cfg     Config
}

// NewService creates a queue service
func NewService(store storage.QueueStorage, records storage.RecordStorage, reviews storage.ConflictStorage, tables *models.TableRegistry, cfg Config, logger *slog.Logger) *Service {
	return &Service{
		store:   store,
		records: records,
		reviews: reviews,
		tables:  tables,
		cfg:     cfg,
		logger:  logger,
	}
}

// SetConfig replaces queue limits (used on config reload).
func (s *Service) SetConfig(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

func (s *Service) config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// ActionFor derives the upload action from the current state of a record.
func ActionFor(rec *models.Record) models.QueueAction {
	switch {
	case rec.Deleted:
		return models.ActionDelete
	case rec.ServerID == "":
		return models.ActionInsert
	default:
		return models.ActionUpdate
	}
}

// Enqueue appends a mutation of a record to the queue.
func (s *Service) Enqueue(ctx context.Context, table, recordID string, action models.QueueAction) (*models.SyncQueueItem, error) {
	cfg := s.config()
	spec, _ := s.tables.Get(table)

	item := &models.SyncQueueItem{
		TableName:  table,
		RecordID:   recordID,
		Action:     action,
		Priority:   spec.Priority,
		MaxRetries: cfg.MaxRetries,
	}
	if err := s.store.Enqueue(ctx, item); err != nil {
		return nil, err
	}

	s.checkCeiling(ctx, cfg)
	return item, nil
}

// checkCeiling логирует превышение offlineQueueMaxSize; очередь не обрезается
func (s *Service) checkCeiling(ctx context.Context, cfg Config) {
	if cfg.MaxSize <= 0 {
		return
	}
	size, err := s.store.QueueSize(ctx)
	if err != nil {
		s.logger.Warn("Failed to read queue size", "error", err)
		return
	}
	if size > cfg.MaxSize {
		s.logger.Warn("Sync queue exceeds configured ceiling",
			"size", size,
			"max_size", cfg.MaxSize)
	}
}

// Dequeue returns up to batchSize items of a table in upload order.
func (s *Service) Dequeue(ctx context.Context, table string, batchSize int) ([]*models.SyncQueueItem, error) {
	return s.store.Dequeue(ctx, table, batchSize)
}

// Remove drops an item after a confirmed upload.
func (s *Service) Remove(ctx context.Context, id string) error {
	return s.store.Remove(ctx, id)
}

// IncrementRetry records a failed attempt; true means the item was dead-lettered.
func (s *Service) IncrementRetry(ctx context.Context, id string, cause error) (bool, error) {
	return s.store.IncrementRetry(ctx, id, errString(cause))
}

// DeadLetter moves an item out of the queue after a permanent failure.
func (s *Service) DeadLetter(ctx context.Context, id string, cause error) error {
	return s.store.DeadLetter(ctx, id, errString(cause))
}

// RemoveRecord drops every queued item of a record.
func (s *Service) RemoveRecord(ctx context.Context, table, recordID string) error {
	items, err := s.store.Dequeue(ctx, table, 0)
	if err != nil {
		return err
	}
	for _, item := range items {
		if item.RecordID != recordID {
			continue
		}
		if err := s.store.Remove(ctx, item.ID); err != nil && !errors.Is(err, storage.ErrQueueItemNotFound) {
			return err
		}
	}
	return nil
}

// Size returns the number of active items.
func (s *Service) Size(ctx context.Context) (int, error) {
	return s.store.QueueSize(ctx)
}

// Items returns all active items in upload order.
func (s *Service) Items(ctx context.Context) ([]*models.SyncQueueItem, error) {
	return s.store.ListQueue(ctx)
}

// DeadLetters returns items that exhausted their retries.
func (s *Service) DeadLetters(ctx context.Context) ([]*models.SyncQueueItem, error) {
	return s.store.ListDeadLetters(ctx)
}

// Requeue returns a dead letter to the active queue.
func (s *Service) Requeue(ctx context.Context, id string) error {
	if err := s.store.RequeueDeadLetter(ctx, id); err != nil {
		return fmt.Errorf("failed to requeue %s: %w", id, err)
	}
	return nil
}

// EnqueueMissing queues dirty records that have no pending item.
// Returns the number of items added.
func (s *Service) EnqueueMissing(ctx context.Context) (int, error) {
	items, err := s.store.ListQueue(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list queue: %w", err)
	}
	queued := make(map[string]bool, len(items))
	for _, item := range items {
		queued[item.TableName+"/"+item.RecordID] = true
	}

	added := 0
	err = s.forEachPending(ctx, func(rec *models.Record) error {
		if queued[rec.Table+"/"+rec.LocalID] {
			return nil
		}
		if _, err := s.Enqueue(ctx, rec.Table, rec.LocalID, ActionFor(rec)); err != nil {
			return err
		}
		added++
		return nil
	})
	return added, err
}

// Rebuild clears the active queue and re-derives it from dirty local records,
// which are the authoritative set of unsynced mutations.
func (s *Service) Rebuild(ctx context.Context) (int, error) {
	if err := s.store.ClearQueue(ctx); err != nil {
		return 0, fmt.Errorf("failed to clear queue: %w", err)
	}

	added := 0
	err := s.forEachPending(ctx, func(rec *models.Record) error {
		if _, err := s.Enqueue(ctx, rec.Table, rec.LocalID, ActionFor(rec)); err != nil {
			return err
		}
		added++
		return nil
	})
	if err != nil {
		return added, fmt.Errorf("failed to rebuild queue: %w", err)
	}

	s.logger.Info("Sync queue rebuilt", "items", added)
	return added, nil
}

// forEachPending обходит грязные записи, которым нужна выгрузка.
// Записи на ручном разборе, записи в dead letters и никогда не выгружавшиеся
// удаленные записи пропускаются: dead letter возвращается только через Requeue.
func (s *Service) forEachPending(ctx context.Context, fn func(*models.Record) error) error {
	dead, err := s.store.ListDeadLetters(ctx)
	if err != nil {
		return fmt.Errorf("failed to list dead letters: %w", err)
	}
	parked := make(map[string]bool, len(dead))
	for _, item := range dead {
		parked[item.TableName+"/"+item.RecordID] = true
	}

	for _, table := range s.tables.Names() {
		dirty, err := s.records.ListDirtyRecords(ctx, table)
		if err != nil {
			return fmt.Errorf("failed to list dirty records of %s: %w", table, err)
		}

		for _, rec := range dirty {
			if rec.Deleted && rec.ServerID == "" {
				continue
			}
			if parked[rec.Table+"/"+rec.LocalID] {
				continue
			}
			if s.reviews != nil {
				_, err := s.reviews.GetManualReview(ctx, rec.Table, rec.LocalID)
				if err == nil {
					continue
				}
				if !errors.Is(err, storage.ErrReviewNotFound) {
					return err
				}
			}
			if err := fn(rec); err != nil {
				return err
			}
		}
	}
	return nil
}

// Compact coalesces several queued items of the same record into one.
// The surviving action is derived from the record state. Returns the number of removed items.
func (s *Service) Compact(ctx context.Context) (int, error) {
	items, err := s.store.ListQueue(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list queue: %w", err)
	}

	groups := make(map[string][]*models.SyncQueueItem)
	order := make([]string, 0)
	for _, item := range items {
		key := item.TableName + "/" + item.RecordID
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], item)
	}

	removed := 0
	for _, key := range order {
		group := groups[key]
		first := group[0]

		rec, err := s.records.GetRecord(ctx, first.TableName, first.RecordID)
		if err != nil && !errors.Is(err, storage.ErrRecordNotFound) {
			return removed, err
		}

		// Нечего выгружать: запись пропала или удалена до первой выгрузки
		drop := rec == nil || (rec.Deleted && rec.ServerID == "")
		if !drop && len(group) == 1 {
			continue
		}

		merged := coalesce(group)
		for _, item := range group {
			if err := s.store.Remove(ctx, item.ID); err != nil && !errors.Is(err, storage.ErrQueueItemNotFound) {
				return removed, err
			}
		}
		removed += len(group)

		if drop {
			continue
		}
		merged.Action = ActionFor(rec)
		if err := s.store.Enqueue(ctx, merged); err != nil {
			return removed, err
		}
		removed--
	}

	if removed > 0 {
		s.logger.Info("Sync queue compacted", "removed", removed)
	}
	return removed, nil
}

// coalesce оставляет самую раннюю дату создания и максимальный приоритет группы
func coalesce(group []*models.SyncQueueItem) *models.SyncQueueItem {
	merged := &models.SyncQueueItem{
		TableName:  group[0].TableName,
		RecordID:   group[0].RecordID,
		CreatedAt:  group[0].CreatedAt,
		MaxRetries: group[0].MaxRetries,
	}
	for _, item := range group {
		if item.CreatedAt.Before(merged.CreatedAt) {
			merged.CreatedAt = item.CreatedAt
		}
		merged.Priority = max(merged.Priority, item.Priority)
		merged.RetryCount = max(merged.RetryCount, item.RetryCount)
		merged.MaxRetries = max(merged.MaxRetries, item.MaxRetries)
	}
	return merged
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
