package boltdb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/iudanet/lexisync/internal/client/storage"
	"github.com/iudanet/lexisync/internal/models"
)

// sessionKey: started_at (big-endian nanos) + id, чтобы курсор шел по времени
func sessionKey(session *models.SyncSession) []byte {
	return append(timeKey(session.StartedAt), []byte(session.ID)...)
}

// SaveSession persists a completed session
func (s *Storage) SaveSession(ctx context.Context, session *models.SyncSession) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketSessions).Put(sessionKey(session), data); err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}
		return nil
	})
}

// ListSessionsSince returns sessions started at or after since, oldest first
func (s *Storage) ListSessionsSince(ctx context.Context, since time.Time) ([]*models.SyncSession, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	sessions := make([]*models.SyncSession, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketSessions).Cursor()
		for k, v := c.Seek(timeKey(since)); k != nil; k, v = c.Next() {
			session := &models.SyncSession{}
			if err := json.Unmarshal(v, session); err != nil {
				return fmt.Errorf("failed to unmarshal session: %w", err)
			}
			sessions = append(sessions, session)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	return sessions, nil
}

// LastSuccessfulSession walks the history backwards to the newest successful session
func (s *Storage) LastSuccessfulSession(ctx context.Context) (*models.SyncSession, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var found *models.SyncSession
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketSessions).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			session := &models.SyncSession{}
			if err := json.Unmarshal(v, session); err != nil {
				return fmt.Errorf("failed to unmarshal session: %w", err)
			}
			if session.Succeeded() {
				found = session
				return nil
			}
		}
		return storage.ErrSessionNotFound
	})
	if err != nil {
		return nil, err
	}

	return found, nil
}

// PruneSessions removes sessions started before the cutoff
func (s *Storage) PruneSessions(ctx context.Context, before time.Time) (int, error) {
	if s.db == nil {
		return 0, storage.ErrStorageClosed
	}

	removed := 0
	cutoff := timeKey(before)
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketSessions)
		// Удаление через курсор во время обхода пропускает ключи, поэтому сначала собираем
		var stale [][]byte
		c := bucket.Cursor()
		for k, _ := c.First(); k != nil && bytes.Compare(k[:8], cutoff) < 0; k, _ = c.Next() {
			stale = append(stale, append([]byte(nil), k...))
		}
		for _, k := range stale {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to prune sessions: %w", err)
	}

	return removed, nil
}

// ClearSessions removes the whole session history
func (s *Storage) ClearSessions(ctx context.Context) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketSessions); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketSessions)
		return err
	})
}
