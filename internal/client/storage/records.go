package storage

import (
	"context"
	"time"

	"github.com/iudanet/lexisync/internal/models"
)

//go:generate moq -out recordstorage_mock.go . RecordStorage

// RecordStorage defines interface for local table records
type RecordStorage interface {
	// SaveRecord stores or replaces a record and keeps the server_id index current
	SaveRecord(ctx context.Context, rec *models.Record) error

	// GetRecord retrieves a record by local ID
	// Returns ErrRecordNotFound if record doesn't exist
	GetRecord(ctx context.Context, table, localID string) (*models.Record, error)

	// GetRecordByServerID resolves the local record mapped to a server ID
	// Returns ErrRecordNotFound if no mapping exists
	GetRecordByServerID(ctx context.Context, table, serverID string) (*models.Record, error)

	// ListRecords returns all records of a table (including deleted ones)
	ListRecords(ctx context.Context, table string) ([]*models.Record, error)

	// ListDirtyRecords returns records with unsynced local changes
	ListDirtyRecords(ctx context.Context, table string) ([]*models.Record, error)

	// MarkSynced atomically stores the server mapping and clears the dirty flag
	// if the record was not modified after expectedUpdatedAt.
	// Returns true if the record is clean after the call.
	MarkSynced(ctx context.Context, table, localID string, expectedUpdatedAt time.Time, serverID string, syncedAt time.Time) (bool, error)
}
