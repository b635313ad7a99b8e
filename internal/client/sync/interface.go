package sync

import (
	"context"

	"github.com/iudanet/lexisync/internal/client/mode"
	"github.com/iudanet/lexisync/pkg/api"
)

//go:generate moq -out apiclient_mock.go . APIClient

// APIClient is the part of the HTTP client the orchestrator talks to.
type APIClient interface {
	Download(ctx context.Context, table string, req api.DownloadRequest) (*api.DownloadResponse, error)
	CreateRecord(ctx context.Context, table string, req api.CreateRecordRequest) (*api.Record, error)
	UpsertRecord(ctx context.Context, table, serverID string, req api.UpsertRecordRequest) (*api.Record, error)
	DeleteRecord(ctx context.Context, table, serverID string, req api.DeleteRecordRequest) (*api.Record, error)
}

// SignalSource returns the latest observed connectivity signal.
type SignalSource interface {
	Current() mode.Signal
}

// StaticSignal is a SignalSource with a fixed value (one-shot CLI runs, tests).
type StaticSignal mode.Signal

// Current implements SignalSource.
func (s StaticSignal) Current() mode.Signal {
	return mode.Signal(s)
}
