package storage

import (
	"context"

	"github.com/iudanet/lexisync/internal/models"
)

//go:generate moq -out conflictstorage_mock.go . ConflictStorage

// ConflictStorage defines the resolution audit log and the manual review queue
type ConflictStorage interface {
	// AppendResolution records a resolution outcome
	AppendResolution(ctx context.Context, entry models.ResolutionLogEntry) error

	// ListResolutions returns the audit log, oldest first
	ListResolutions(ctx context.Context) ([]models.ResolutionLogEntry, error)

	// SaveManualReview queues a conflict for a human decision
	SaveManualReview(ctx context.Context, conflict *models.DataConflict) error

	// GetManualReview returns the pending review for a record
	// Returns ErrReviewNotFound if there is none
	GetManualReview(ctx context.Context, table, recordID string) (*models.DataConflict, error)

	// ListManualReviews returns all pending reviews
	ListManualReviews(ctx context.Context) ([]*models.DataConflict, error)

	// DeleteManualReview removes a review once decided
	DeleteManualReview(ctx context.Context, table, recordID string) error
}
