package storage

import (
	"context"
	"time"

	"github.com/iudanet/lexisync/internal/models"
)

//go:generate moq -out sessionstorage_mock.go . SessionStorage

// SessionStorage defines the audit history of completed sync sessions
type SessionStorage interface {
	// SaveSession persists a completed session
	SaveSession(ctx context.Context, session *models.SyncSession) error

	// ListSessionsSince returns sessions started at or after since, oldest first
	ListSessionsSince(ctx context.Context, since time.Time) ([]*models.SyncSession, error)

	// LastSuccessfulSession returns the most recent session without errors
	// Returns ErrSessionNotFound if there is none
	LastSuccessfulSession(ctx context.Context) (*models.SyncSession, error)

	// PruneSessions removes sessions started before the cutoff
	PruneSessions(ctx context.Context, before time.Time) (int, error)

	// ClearSessions removes the whole history
	ClearSessions(ctx context.Context) error
}
