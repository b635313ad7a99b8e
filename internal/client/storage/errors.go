package storage

import "errors"

// Common client storage errors
var (
	// ErrRecordNotFound indicates that local record was not found
	ErrRecordNotFound = errors.New("record not found")

	// ErrQueueItemNotFound indicates that sync queue item was not found
	ErrQueueItemNotFound = errors.New("sync queue item not found")

	// ErrSessionNotFound indicates that sync session was not found
	ErrSessionNotFound = errors.New("sync session not found")

	// ErrReviewNotFound indicates that manual review entry was not found
	ErrReviewNotFound = errors.New("manual review entry not found")

	// ErrStaleRecord indicates that record changed after it was read
	ErrStaleRecord = errors.New("record was modified concurrently")

	// ErrStorageClosed indicates that storage is closed
	ErrStorageClosed = errors.New("storage is closed")
)
