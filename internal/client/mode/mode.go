// Package mode classifies connectivity signals into sync operating modes.
package mode

import (
	"fmt"
	"strings"

	"github.com/iudanet/lexisync/internal/models"
)

// Quality is the classified quality of a network connection.
type Quality string

const (
	QualityExcellent Quality = "excellent"
	QualityGood      Quality = "good"
	QualityPoor      Quality = "poor"
)

// Reasons reported in SyncMode.Reason.
const (
	ReasonNoConnection        = "no_connection"
	ReasonInternetUnreachable = "internet_unreachable"
	ReasonPoorConnection      = "poor_connection"
	ReasonGoodConnection      = "good_connection"
	ReasonExcellentConnection = "excellent_connection"
	ReasonErrorFallback       = "error_fallback"
)

// Signal is a snapshot of device connectivity.
type Signal struct {
	// IsInternetReachable is nil when reachability is not known yet.
	IsInternetReachable *bool
	// Err is set when the connectivity probe itself failed.
	Err            error
	ConnectionType string
	IsConnected    bool
}

// Reachable returns a pointer for Signal.IsInternetReachable.
func Reachable(v bool) *bool {
	return &v
}

var (
	offlineCaps = []models.Capability{
		models.CapLocalStorage,
		models.CapOfflineQueries,
		models.CapQueueOperations,
		models.CapLocalProgressTracking,
	}
	hybridCaps = []models.Capability{
		models.CapLocalStorage,
		models.CapLimitedSync,
		models.CapPriorityUploads,
		models.CapBackgroundDownloads,
	}
	onlineCaps = []models.Capability{
		models.CapFullSync,
		models.CapRealTimeUpdates,
		models.CapBulkOperations,
		models.CapConflictResolution,
		models.CapMediaDownloads,
	}
)

// ClassifyConnection maps a connection type to its quality.
// Unrecognised named types are assumed good.
func ClassifyConnection(connectionType string) (Quality, error) {
	t := strings.ToLower(strings.TrimSpace(connectionType))
	if len(t) > 32 {
		return "", fmt.Errorf("malformed connection type %q", connectionType)
	}

	switch t {
	case "wifi":
		return QualityExcellent, nil
	case "5g", "4g", "ethernet", "cellular":
		return QualityGood, nil
	case "", "unknown", "3g", "2g", "edge", "gprs", "none":
		return QualityPoor, nil
	default:
		return QualityGood, nil
	}
}

// Select classifies a connectivity signal into an operating mode.
// It is a pure function of its input; any classification failure falls back to offline.
func Select(sig Signal) (m models.SyncMode) {
	defer func() {
		if r := recover(); r != nil {
			m = fallback()
		}
	}()

	if sig.Err != nil {
		return fallback()
	}

	if !sig.IsConnected {
		return offline(ReasonNoConnection)
	}
	if sig.IsInternetReachable != nil && !*sig.IsInternetReachable {
		return offline(ReasonInternetUnreachable)
	}

	quality, err := ClassifyConnection(sig.ConnectionType)
	if err != nil {
		return fallback()
	}

	switch quality {
	case QualityPoor:
		return newMode(models.ModeHybrid, ReasonPoorConnection, hybridCaps)
	case QualityExcellent:
		return newMode(models.ModeOnline, ReasonExcellentConnection, onlineCaps)
	default:
		return newMode(models.ModeOnline, ReasonGoodConnection, onlineCaps)
	}
}

func offline(reason string) models.SyncMode {
	return newMode(models.ModeOffline, reason, offlineCaps)
}

// fallback - безопасный режим: только локальное хранилище
func fallback() models.SyncMode {
	return newMode(models.ModeOffline, ReasonErrorFallback, []models.Capability{models.CapLocalStorage})
}

func newMode(name models.ModeName, reason string, caps []models.Capability) models.SyncMode {
	c := make([]models.Capability, len(caps))
	copy(c, caps)
	return models.SyncMode{Mode: name, Reason: reason, Capabilities: c}
}
