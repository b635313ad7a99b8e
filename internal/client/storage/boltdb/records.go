package boltdb

import (
	"context"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/iudanet/lexisync/internal/client/storage"
	"github.com/iudanet/lexisync/internal/models"
)

func recordsBucket(table string) []byte {
	return []byte("records_" + table)
}

func serverIDsBucket(table string) []byte {
	return []byte("server_ids_" + table)
}

// SaveRecord stores or replaces a record in its table bucket
func (s *Storage) SaveRecord(ctx context.Context, rec *models.Record) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}
	if rec.Table == "" || rec.LocalID == "" {
		return fmt.Errorf("record table and local id are required")
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		return putRecord(tx, rec)
	})
	if err != nil {
		return fmt.Errorf("transaction failed: %w", err)
	}

	return nil
}

// putRecord сохраняет запись и индекс server_id -> local_id в одной транзакции
func putRecord(tx *bbolt.Tx, rec *models.Record) error {
	data, err := models.EncodeRecord(rec)
	if err != nil {
		return err
	}

	bucket, err := tx.CreateBucketIfNotExists(recordsBucket(rec.Table))
	if err != nil {
		return fmt.Errorf("failed to create records bucket: %w", err)
	}
	if err := bucket.Put([]byte(rec.LocalID), data); err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}

	if rec.ServerID == "" {
		return nil
	}

	index, err := tx.CreateBucketIfNotExists(serverIDsBucket(rec.Table))
	if err != nil {
		return fmt.Errorf("failed to create server id index: %w", err)
	}
	if err := index.Put([]byte(rec.ServerID), []byte(rec.LocalID)); err != nil {
		return fmt.Errorf("failed to save server id mapping: %w", err)
	}

	return nil
}

func getRecord(tx *bbolt.Tx, table, localID string) (*models.Record, error) {
	bucket := tx.Bucket(recordsBucket(table))
	if bucket == nil {
		return nil, storage.ErrRecordNotFound
	}

	data := bucket.Get([]byte(localID))
	if data == nil {
		return nil, storage.ErrRecordNotFound
	}

	return models.DecodeRecord(data)
}

// GetRecord retrieves a record by local ID
func (s *Storage) GetRecord(ctx context.Context, table, localID string) (*models.Record, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var rec *models.Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		rec, err = getRecord(tx, table, localID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return rec, nil
}

// GetRecordByServerID resolves a record through the server_id index
func (s *Storage) GetRecordByServerID(ctx context.Context, table, serverID string) (*models.Record, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var rec *models.Record
	err := s.db.View(func(tx *bbolt.Tx) error {
		index := tx.Bucket(serverIDsBucket(table))
		if index == nil {
			return storage.ErrRecordNotFound
		}
		localID := index.Get([]byte(serverID))
		if localID == nil {
			return storage.ErrRecordNotFound
		}

		var err error
		rec, err = getRecord(tx, table, string(localID))
		return err
	})
	if err != nil {
		return nil, err
	}

	return rec, nil
}

// ListRecords returns all records of a table
func (s *Storage) ListRecords(ctx context.Context, table string) ([]*models.Record, error) {
	return s.listRecords(table, func(*models.Record) bool { return true })
}

// ListDirtyRecords returns records with unsynced local changes
func (s *Storage) ListDirtyRecords(ctx context.Context, table string) ([]*models.Record, error) {
	return s.listRecords(table, func(r *models.Record) bool { return r.Dirty })
}

func (s *Storage) listRecords(table string, keep func(*models.Record) bool) ([]*models.Record, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	records := make([]*models.Record, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(recordsBucket(table))
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			rec, err := models.DecodeRecord(v)
			if err != nil {
				return fmt.Errorf("failed to decode record %s: %w", k, err)
			}
			if keep(rec) {
				records = append(records, rec)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	return records, nil
}

// MarkSynced stores the confirmed server state of a record.
// If the record was edited after expectedUpdatedAt it stays dirty but gets the new base.
func (s *Storage) MarkSynced(ctx context.Context, table, localID string, expectedUpdatedAt time.Time, serverID string, syncedAt time.Time) (bool, error) {
	if s.db == nil {
		return false, storage.ErrStorageClosed
	}

	clean := false
	err := s.db.Update(func(tx *bbolt.Tx) error {
		rec, err := getRecord(tx, table, localID)
		if err != nil {
			return err
		}

		rec.ServerID = serverID
		rec.LastSyncedAt = syncedAt
		if rec.UpdatedAt.Equal(expectedUpdatedAt) {
			// Локальных правок после чтения не было - запись совпадает с серверной
			rec.UpdatedAt = syncedAt
			rec.Dirty = false
			clean = true
		}

		return putRecord(tx, rec)
	})
	if err != nil {
		return false, fmt.Errorf("failed to mark record synced: %w", err)
	}

	return clean, nil
}
