package manager

import (
	"context"

	clientsync "github.com/iudanet/lexisync/internal/client/sync"
	"github.com/iudanet/lexisync/internal/models"
)

// Engine is the orchestrator surface the manager drives.
type Engine interface {
	PerformSync(ctx context.Context, opts clientsync.Options) (*models.SyncResult, error)
	CancelCurrentSync() bool
	CurrentMode() models.SyncMode
	CurrentSession() *models.SyncSession
	IsSyncing() bool
	LastResult() *models.SyncResult
	Settings() clientsync.Settings
	UpdateConfig(settings clientsync.Settings) error
	ResetHistory(ctx context.Context) error
	ResolveManualReview(ctx context.Context, table, recordID string, strategy models.ConflictStrategy) error
}

// Monitor is the health monitor surface.
type Monitor interface {
	HealthMetrics() models.SyncHealthMetrics
	Status() models.SystemStatus
	ActiveAlerts() []*models.SyncAlert
	ResolveAlert(ctx context.Context, id string) error
	ExecuteManualRecovery(ctx context.Context, id string) (bool, error)
	Diagnostics(ctx context.Context) (*models.Diagnostics, error)
	Reset(ctx context.Context) error
}

// StatsSource provides the conflict resolution audit summary.
type StatsSource interface {
	Stats(ctx context.Context) (models.ResolutionStats, error)
}
