package storage

import (
	"context"
	"time"
)

// Record is the server copy of a syncable row.
// UpdatedAt is assigned by the store and strictly increases across writes,
// so it doubles as the download watermark.
type Record struct {
	UpdatedAt       time.Time
	ClientUpdatedAt time.Time // время изменения на устройстве
	Fields          map[string]any
	UserID          string
	Table           string
	ServerID        string
	ClientRef       string
	ClearedFields   []string
	Deleted         bool
}

// RecordStorage defines the persistence of synchronized records.
type RecordStorage interface {
	// ListSince returns records (including deleted) of a table changed after
	// since, oldest first. A zero since returns everything.
	ListSince(ctx context.Context, userID, table string, since time.Time, limit int) ([]*Record, error)

	// Get returns a record including a soft deleted one.
	// Returns ErrRecordNotFound if it doesn't exist.
	Get(ctx context.Context, userID, table, serverID string) (*Record, error)

	// Create stores a new record. A repeated call with the same ClientRef
	// returns the existing record and created=false.
	Create(ctx context.Context, rec *Record) (stored *Record, created bool, err error)

	// Upsert replaces the record if it was not changed after base.
	// A missing record is created under the given ServerID.
	// Returns *ConflictError when the stored version is newer than base.
	Upsert(ctx context.Context, rec *Record, base time.Time) (*Record, error)

	// Delete marks the record deleted if it was not changed after base.
	// Deleting an already deleted record returns it unchanged.
	Delete(ctx context.Context, userID, table, serverID string, base, clientUpdatedAt time.Time) (*Record, error)

	// Ping checks that the database is reachable
	Ping(ctx context.Context) error
}
