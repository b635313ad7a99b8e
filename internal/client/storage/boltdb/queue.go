package boltdb

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"go.etcd.io/bbolt"

	"github.com/iudanet/lexisync/internal/client/storage"
	"github.com/iudanet/lexisync/internal/models"
)

// queueKey переводит строковый ID элемента очереди в ключ bucket
func queueKey(id string) ([]byte, error) {
	seq, err := strconv.ParseUint(id, 10, 64)
	if err != nil {
		return nil, storage.ErrQueueItemNotFound
	}
	return itob(seq), nil
}

// Enqueue appends an item to the sync queue
func (s *Storage) Enqueue(ctx context.Context, item *models.SyncQueueItem) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketQueue)

		// NextSequence дает монотонный ID, он же разрешает равенство created_at
		seq, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to allocate queue id: %w", err)
		}
		item.ID = strconv.FormatUint(seq, 10)
		if item.CreatedAt.IsZero() {
			item.CreatedAt = time.Now().UTC()
		}

		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("failed to marshal queue item: %w", err)
		}
		return bucket.Put(itob(seq), data)
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue: %w", err)
	}

	return nil
}

// Dequeue returns up to limit items of a table in upload order
func (s *Storage) Dequeue(ctx context.Context, table string, limit int) ([]*models.SyncQueueItem, error) {
	items, err := s.ListQueue(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*models.SyncQueueItem, 0, limit)
	for _, item := range items {
		if item.TableName != table {
			continue
		}
		out = append(out, item)
		if limit > 0 && len(out) == limit {
			break
		}
	}

	return out, nil
}

// ListQueue returns all active items ordered by priority desc, created_at asc
func (s *Storage) ListQueue(ctx context.Context) ([]*models.SyncQueueItem, error) {
	items, err := s.listItems(bucketQueue)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})

	return items, nil
}

// ListDeadLetters returns items moved out of the active queue
func (s *Storage) ListDeadLetters(ctx context.Context) ([]*models.SyncQueueItem, error) {
	return s.listItems(bucketDeadLetter)
}

// listItems читает bucket в порядке ключей (порядок постановки в очередь)
func (s *Storage) listItems(name []byte) ([]*models.SyncQueueItem, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	items := make([]*models.SyncQueueItem, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(name).ForEach(func(k, v []byte) error {
			item := &models.SyncQueueItem{}
			if err := json.Unmarshal(v, item); err != nil {
				return fmt.Errorf("failed to unmarshal queue item: %w", err)
			}
			items = append(items, item)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", name, err)
	}

	return items, nil
}

// QueueSize returns the number of active items
func (s *Storage) QueueSize(ctx context.Context) (int, error) {
	if s.db == nil {
		return 0, storage.ErrStorageClosed
	}

	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketQueue).Stats().KeyN
		return nil
	})
	return n, err
}

// Remove deletes an item from the active queue
func (s *Storage) Remove(ctx context.Context, id string) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}
	key, err := queueKey(id)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketQueue)
		if bucket.Get(key) == nil {
			return storage.ErrQueueItemNotFound
		}
		return bucket.Delete(key)
	})
}

// IncrementRetry bumps the retry counter or moves the item to dead letters
func (s *Storage) IncrementRetry(ctx context.Context, id string, lastErr string) (bool, error) {
	if s.db == nil {
		return false, storage.ErrStorageClosed
	}
	key, err := queueKey(id)
	if err != nil {
		return false, err
	}

	deadLettered := false
	err = s.db.Update(func(tx *bbolt.Tx) error {
		item, err := getItem(tx.Bucket(bucketQueue), key)
		if err != nil {
			return err
		}

		item.LastError = lastErr
		if item.RetryCount+1 > item.MaxRetries {
			deadLettered = true
			return moveToDeadLetter(tx, key, item)
		}

		item.RetryCount++
		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("failed to marshal queue item: %w", err)
		}
		return tx.Bucket(bucketQueue).Put(key, data)
	})
	if err != nil {
		return false, err
	}

	return deadLettered, nil
}

// DeadLetter moves an item to the dead-letter bucket without further retries
func (s *Storage) DeadLetter(ctx context.Context, id string, reason string) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}
	key, err := queueKey(id)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		item, err := getItem(tx.Bucket(bucketQueue), key)
		if err != nil {
			return err
		}
		item.LastError = reason
		return moveToDeadLetter(tx, key, item)
	})
}

// RequeueDeadLetter returns a dead letter to the active queue with a fresh retry budget
func (s *Storage) RequeueDeadLetter(ctx context.Context, id string) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}
	key, err := queueKey(id)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		dead := tx.Bucket(bucketDeadLetter)
		item, err := getItem(dead, key)
		if err != nil {
			return err
		}

		item.RetryCount = 0
		item.DeadLetteredAt = nil
		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("failed to marshal queue item: %w", err)
		}
		if err := tx.Bucket(bucketQueue).Put(key, data); err != nil {
			return err
		}
		return dead.Delete(key)
	})
}

// ClearQueue drops all active items
func (s *Storage) ClearQueue(ctx context.Context) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketQueue)
		// Сохраняем sequence, чтобы новые ID не пересеклись с dead letters
		seq := bucket.Sequence()
		if err := tx.DeleteBucket(bucketQueue); err != nil {
			return fmt.Errorf("failed to drop queue bucket: %w", err)
		}
		bucket, err := tx.CreateBucket(bucketQueue)
		if err != nil {
			return fmt.Errorf("failed to recreate queue bucket: %w", err)
		}
		return bucket.SetSequence(seq)
	})
}

func getItem(bucket *bbolt.Bucket, key []byte) (*models.SyncQueueItem, error) {
	data := bucket.Get(key)
	if data == nil {
		return nil, storage.ErrQueueItemNotFound
	}

	item := &models.SyncQueueItem{}
	if err := json.Unmarshal(data, item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal queue item: %w", err)
	}
	return item, nil
}

func moveToDeadLetter(tx *bbolt.Tx, key []byte, item *models.SyncQueueItem) error {
	now := time.Now().UTC()
	item.DeadLetteredAt = &now

	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter: %w", err)
	}
	if err := tx.Bucket(bucketDeadLetter).Put(key, data); err != nil {
		return fmt.Errorf("failed to save dead letter: %w", err)
	}
	return tx.Bucket(bucketQueue).Delete(key)
}
