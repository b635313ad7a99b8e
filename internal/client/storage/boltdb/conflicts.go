package boltdb

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/lexisync/internal/client/storage"
	"github.com/iudanet/lexisync/internal/models"
)

func reviewKey(table, recordID string) []byte {
	return []byte(table + "/" + recordID)
}

// AppendResolution appends an entry to the resolution audit log
func (s *Storage) AppendResolution(ctx context.Context, entry models.ResolutionLogEntry) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal resolution: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketConflictLog)
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		return bucket.Put(itob(seq), data)
	})
}

// ListResolutions returns the audit log, oldest first
func (s *Storage) ListResolutions(ctx context.Context) ([]models.ResolutionLogEntry, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	entries := make([]models.ResolutionLogEntry, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketConflictLog).ForEach(func(k, v []byte) error {
			var entry models.ResolutionLogEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("failed to unmarshal resolution: %w", err)
			}
			entries = append(entries, entry)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list resolutions: %w", err)
	}

	return entries, nil
}

// SaveManualReview queues a conflict for a human decision, replacing an older one for the same record
func (s *Storage) SaveManualReview(ctx context.Context, conflict *models.DataConflict) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	data, err := json.Marshal(conflict)
	if err != nil {
		return fmt.Errorf("failed to marshal conflict: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketManualReview).Put(reviewKey(conflict.TableName, conflict.RecordID), data)
	})
}

// GetManualReview returns the pending review for a record
func (s *Storage) GetManualReview(ctx context.Context, table, recordID string) (*models.DataConflict, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var conflict *models.DataConflict
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketManualReview).Get(reviewKey(table, recordID))
		if data == nil {
			return storage.ErrReviewNotFound
		}
		conflict = &models.DataConflict{}
		return json.Unmarshal(data, conflict)
	})
	if err != nil {
		return nil, err
	}

	return conflict, nil
}

// ListManualReviews returns all pending reviews
func (s *Storage) ListManualReviews(ctx context.Context) ([]*models.DataConflict, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	conflicts := make([]*models.DataConflict, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketManualReview).ForEach(func(k, v []byte) error {
			conflict := &models.DataConflict{}
			if err := json.Unmarshal(v, conflict); err != nil {
				return fmt.Errorf("failed to unmarshal conflict: %w", err)
			}
			conflicts = append(conflicts, conflict)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list manual reviews: %w", err)
	}

	return conflicts, nil
}

// DeleteManualReview removes a decided review
func (s *Storage) DeleteManualReview(ctx context.Context, table, recordID string) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketManualReview)
		key := reviewKey(table, recordID)
		if bucket.Get(key) == nil {
			return storage.ErrReviewNotFound
		}
		return bucket.Delete(key)
	})
}
