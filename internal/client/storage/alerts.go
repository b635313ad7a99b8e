package storage

import (
	"context"

	"github.com/iudanet/lexisync/internal/models"
)

// AlertStorage persists health monitor alerts between restarts
type AlertStorage interface {
	SaveAlerts(ctx context.Context, alerts []*models.SyncAlert) error
	LoadAlerts(ctx context.Context) ([]*models.SyncAlert, error)
}
