package boltdb

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var (
	// BoltDB bucket names
	bucketQueue        = []byte("sync_queue")
	bucketDeadLetter   = []byte("sync_dead_letter")
	bucketSessions     = []byte("sync_sessions")
	bucketMetadata     = []byte("metadata")
	bucketWatermarks   = []byte("watermarks")
	bucketAlerts       = []byte("alerts")
	bucketConflictLog  = []byte("conflict_log")
	bucketManualReview = []byte("manual_review")
)

// Storage represents BoltDB storage implementation for client
type Storage struct {
	db *bbolt.DB
}

// New creates a new BoltDB storage instance
// dbPath is the path to the BoltDB database file
func New(ctx context.Context, dbPath string) (*Storage, error) {
	// Открываем BoltDB
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	storage := &Storage{db: db}

	// Инициализируем buckets
	if err := storage.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return storage, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// initBuckets создает необходимые buckets если они не существуют
func (s *Storage) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{
			bucketQueue,
			bucketDeadLetter,
			bucketSessions,
			bucketMetadata,
			bucketWatermarks,
			bucketAlerts,
			bucketConflictLog,
			bucketManualReview,
		} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

// itob кодирует uint64 в big-endian, чтобы порядок ключей совпадал с числовым
func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func timeKey(t time.Time) []byte {
	n := t.UnixNano()
	if n < 0 {
		n = 0
	}
	return itob(uint64(n))
}
