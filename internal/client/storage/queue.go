package storage

import (
	"context"

	"github.com/iudanet/lexisync/internal/models"
)

//go:generate moq -out queuestorage_mock.go . QueueStorage

// QueueStorage defines the durable sync queue and its dead-letter bucket
type QueueStorage interface {
	// Enqueue appends an item; ID and CreatedAt are assigned when empty
	Enqueue(ctx context.Context, item *models.SyncQueueItem) error

	// Dequeue returns up to limit items of a table ordered by
	// priority descending, then creation time ascending. Items stay queued.
	Dequeue(ctx context.Context, table string, limit int) ([]*models.SyncQueueItem, error)

	// Remove deletes an item after a confirmed upload
	// Returns ErrQueueItemNotFound if item doesn't exist
	Remove(ctx context.Context, id string) error

	// IncrementRetry bumps the retry counter; an item that would exceed
	// MaxRetries is moved to the dead-letter bucket instead.
	IncrementRetry(ctx context.Context, id string, lastErr string) (deadLettered bool, err error)

	// DeadLetter moves an item to the dead-letter bucket immediately
	DeadLetter(ctx context.Context, id string, reason string) error

	// ListQueue returns all active items in dequeue order
	ListQueue(ctx context.Context) ([]*models.SyncQueueItem, error)

	// QueueSize returns the number of active items
	QueueSize(ctx context.Context) (int, error)

	// ClearQueue removes all active items (dead letters are kept)
	ClearQueue(ctx context.Context) error

	// ListDeadLetters returns items that exhausted their retries
	ListDeadLetters(ctx context.Context) ([]*models.SyncQueueItem, error)

	// RequeueDeadLetter moves a dead letter back into the active queue with a reset counter
	RequeueDeadLetter(ctx context.Context, id string) error
}
