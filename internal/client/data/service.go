package data

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/lexisync/internal/client/queue"
	"github.com/iudanet/lexisync/internal/client/storage"
	"github.com/iudanet/lexisync/internal/models"
	"github.com/iudanet/lexisync/internal/validation"
)

// Service определяет интерфейс локальных изменений таблиц.
// Каждое изменение помечает запись dirty и ставит ее в очередь синхронизации.
type Service interface {
	Put(ctx context.Context, table, localID string, fields map[string]any, cleared []string) (*models.Record, error)
	Get(ctx context.Context, table, localID string) (*models.Record, error)
	List(ctx context.Context, table string) ([]*models.Record, error)
	Delete(ctx context.Context, table, localID string) error
}

// Enqueuer appends record mutations to the sync queue
type Enqueuer interface {
	Enqueue(ctx context.Context, table, recordID string, action models.QueueAction) (*models.SyncQueueItem, error)
}

type service struct {
	records storage.RecordStorage
	queue   Enqueuer
	tables  *models.TableRegistry
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates a new data service
func NewService(records storage.RecordStorage, q Enqueuer, tables *models.TableRegistry, logger *slog.Logger) Service {
	return &service{
		records: records,
		queue:   q,
		tables:  tables,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Put creates a record or patches the given fields of an existing one.
// An empty localID creates a new record with a generated id.
func (s *service) Put(ctx context.Context, table, localID string, fields map[string]any, cleared []string) (*models.Record, error) {
	if err := validation.ValidateTableName(table, s.tables); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	if localID == "" {
		localID = uuid.New().String()
	}
	if err := validation.ValidateRecordID(localID); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	if len(fields) == 0 && len(cleared) == 0 {
		return nil, fmt.Errorf("%w: no fields to write", ErrInvalidRecord)
	}

	rec, err := s.records.GetRecord(ctx, table, localID)
	switch {
	case errors.Is(err, storage.ErrRecordNotFound):
		rec = &models.Record{
			Table:   table,
			LocalID: localID,
			Fields:  make(map[string]any, len(fields)),
		}
	case err != nil:
		return nil, fmt.Errorf("failed to get record: %w", err)
	case rec.Deleted:
		return nil, fmt.Errorf("%s/%s: %w", table, localID, ErrRecordDeleted)
	}

	for name, value := range fields {
		rec.SetField(name, value)
	}
	for _, name := range cleared {
		rec.ClearField(name)
	}

	if err := s.save(ctx, rec); err != nil {
		return nil, err
	}

	s.logger.Debug("Record saved",
		"table", table,
		"local_id", localID,
		"fields", len(fields),
		"cleared", len(cleared))
	return rec, nil
}

// Get returns a live record
func (s *service) Get(ctx context.Context, table, localID string) (*models.Record, error) {
	rec, err := s.records.GetRecord(ctx, table, localID)
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	if rec.Deleted {
		return nil, fmt.Errorf("%s/%s: %w", table, localID, ErrRecordDeleted)
	}
	return rec, nil
}

// List returns live records of a table
func (s *service) List(ctx context.Context, table string) ([]*models.Record, error) {
	if err := validation.ValidateTableName(table, s.tables); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}

	all, err := s.records.ListRecords(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	live := make([]*models.Record, 0, len(all))
	for _, rec := range all {
		if !rec.Deleted {
			live = append(live, rec)
		}
	}
	return live, nil
}

// Delete marks record as deleted (soft delete)
func (s *service) Delete(ctx context.Context, table, localID string) error {
	rec, err := s.records.GetRecord(ctx, table, localID)
	if err != nil {
		return fmt.Errorf("failed to get record: %w", err)
	}
	if rec.Deleted {
		return nil
	}

	rec.Deleted = true
	if err := s.save(ctx, rec); err != nil {
		return err
	}

	s.logger.Debug("Record deleted", "table", table, "local_id", localID)
	return nil
}

// save сохраняет локальное изменение и добавляет его в очередь
func (s *service) save(ctx context.Context, rec *models.Record) error {
	rec.UpdatedAt = s.now()
	rec.Dirty = true

	if err := s.records.SaveRecord(ctx, rec); err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}

	if _, err := s.queue.Enqueue(ctx, rec.Table, rec.LocalID, queue.ActionFor(rec)); err != nil {
		// запись уже dirty: EnqueueMissing восстановит элемент очереди
		s.logger.Error("Failed to enqueue record",
			"table", rec.Table,
			"local_id", rec.LocalID,
			"error", err)
		return fmt.Errorf("failed to enqueue record: %w", err)
	}
	return nil
}
