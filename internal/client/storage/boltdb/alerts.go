package boltdb

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/lexisync/internal/client/storage"
	"github.com/iudanet/lexisync/internal/models"
)

var keyAlerts = []byte("alerts")

// SaveAlerts replaces the persisted alert list
func (s *Storage) SaveAlerts(ctx context.Context, alerts []*models.SyncAlert) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	data, err := json.Marshal(alerts)
	if err != nil {
		return fmt.Errorf("failed to marshal alerts: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketAlerts).Put(keyAlerts, data)
	})
}

// LoadAlerts returns the persisted alert list
func (s *Storage) LoadAlerts(ctx context.Context) ([]*models.SyncAlert, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	alerts := make([]*models.SyncAlert, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketAlerts).Get(keyAlerts)
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &alerts)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load alerts: %w", err)
	}

	return alerts, nil
}
