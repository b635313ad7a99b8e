package health

import (
	"context"

	clientsync "github.com/iudanet/lexisync/internal/client/sync"
	"github.com/iudanet/lexisync/internal/models"
)

//go:generate moq -out orchestrator_mock.go . Orchestrator

// Orchestrator is the public sync API recovery actions act through.
// The monitor never touches the queue or sessions directly.
type Orchestrator interface {
	PerformSync(ctx context.Context, opts clientsync.Options) (*models.SyncResult, error)
	RebuildQueue(ctx context.Context) (int, error)
}

// QueueSizer reports the number of pending queue items.
type QueueSizer interface {
	Size(ctx context.Context) (int, error)
}
