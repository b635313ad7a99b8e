package storage

import (
	"context"
	"time"
)

//go:generate moq -out metadata_mock.go . MetadataStorage

// MetadataStorage defines interface for storing client sync metadata
type MetadataStorage interface {
	// SaveWatermark saves the last confirmed server timestamp for a table
	SaveWatermark(ctx context.Context, table string, ts time.Time) error

	// GetWatermark retrieves the table watermark
	// Returns zero time if the table has never been synced
	GetWatermark(ctx context.Context, table string) (time.Time, error)

	// ResetWatermarks drops all table watermarks (forces a full re-download)
	ResetWatermarks(ctx context.Context) error
}
