package boltdb

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/iudanet/lexisync/internal/client/storage"
)

// SaveWatermark saves the last confirmed server timestamp of a table
func (s *Storage) SaveWatermark(ctx context.Context, table string, ts time.Time) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketWatermarks)
		if bucket == nil {
			return fmt.Errorf("watermarks bucket not found")
		}

		// Конвертируем время в int64 наносекунд
		tsBytes := make([]byte, 8)
		binary.BigEndian.PutUint64(tsBytes, uint64(ts.UnixNano()))

		if err := bucket.Put([]byte(table), tsBytes); err != nil {
			return fmt.Errorf("failed to save watermark: %w", err)
		}

		return nil
	})
}

// GetWatermark retrieves the table watermark
// Returns zero time if the table has never been synced
func (s *Storage) GetWatermark(ctx context.Context, table string) (time.Time, error) {
	if s.db == nil {
		return time.Time{}, storage.ErrStorageClosed
	}

	var ts time.Time
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketWatermarks)
		if bucket == nil {
			return fmt.Errorf("watermarks bucket not found")
		}

		tsBytes := bucket.Get([]byte(table))
		if tsBytes == nil {
			// Таблица еще не синхронизировалась
			return nil
		}

		ts = time.Unix(0, int64(binary.BigEndian.Uint64(tsBytes))).UTC()
		return nil
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get watermark: %w", err)
	}

	return ts, nil
}

// ResetWatermarks drops all watermarks so the next sync downloads everything
func (s *Storage) ResetWatermarks(ctx context.Context) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketWatermarks); err != nil {
			return fmt.Errorf("failed to drop watermarks: %w", err)
		}
		_, err := tx.CreateBucket(bucketWatermarks)
		return err
	})
}
