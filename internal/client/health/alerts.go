package health

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/lexisync/internal/models"
)

// Коды ошибок алертов
const (
	CodeStale            = "SYNC_STALE"
	CodeHighFailureRate  = "SYNC_HIGH_FAILURE_RATE"
	CodeLargeQueue       = "SYNC_LARGE_QUEUE"
	CodeQueueCeiling     = "SYNC_QUEUE_CEILING"
	CodeHighConflictRate = "SYNC_HIGH_CONFLICT_RATE"
	CodeIntegrityLow     = "DATA_INTEGRITY_LOW"
	CodeCritical         = "SYNC_CRITICAL_FAILURE"
	CodeDegraded         = "SYNC_PERFORMANCE_DEGRADED"
)

const (
	staleAfter          = time.Hour
	alertFailureRate    = 0.5
	alertQueueSize      = 500
	alertConflictRate   = 0.1
	alertIntegrityScore = 0.9
	resolvedAlertTTL    = 24 * time.Hour
)

// alertBook is the bounded, deduplicated alert list. Callers hold the monitor lock.
type alertBook struct {
	alerts []*models.SyncAlert
	max    int
}

// raise adds the alert unless an unresolved one with the same title and
// error code exists. Returns false for duplicates.
func (b *alertBook) raise(a *models.SyncAlert) bool {
	key := a.DedupKey()
	for _, existing := range b.alerts {
		if !existing.Resolved && existing.DedupKey() == key {
			return false
		}
	}
	if a.ID == "" {
		a.ID = "alert_" + uuid.NewString()
	}
	b.alerts = append(b.alerts, a)
	if b.max > 0 && len(b.alerts) > b.max {
		b.alerts = b.alerts[len(b.alerts)-b.max:]
	}
	return true
}

func (b *alertBook) resolve(id string, at time.Time) bool {
	for _, a := range b.alerts {
		if a.ID != id {
			continue
		}
		if !a.Resolved {
			t := at
			a.Resolved = true
			a.ResolvedAt = &t
		}
		return true
	}
	return false
}

// gc drops alerts resolved before the cutoff.
func (b *alertBook) gc(cutoff time.Time) int {
	kept := b.alerts[:0]
	removed := 0
	for _, a := range b.alerts {
		if a.Resolved && a.ResolvedAt != nil && !a.ResolvedAt.After(cutoff) {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	b.alerts = kept
	return removed
}

func (b *alertBook) active() []*models.SyncAlert {
	out := make([]*models.SyncAlert, 0)
	for _, a := range b.alerts {
		if !a.Resolved {
			out = append(out, a.Clone())
		}
	}
	return out
}

func (b *alertBook) all() []*models.SyncAlert {
	out := make([]*models.SyncAlert, 0, len(b.alerts))
	for _, a := range b.alerts {
		out = append(out, a.Clone())
	}
	return out
}

func newAlert(typ models.AlertType, sev models.AlertSeverity, title, message, code string, at time.Time) *models.SyncAlert {
	return &models.SyncAlert{
		Timestamp: at,
		Type:      typ,
		Severity:  sev,
		Title:     title,
		Message:   message,
		Metadata:  models.AlertMetadata{ErrorCode: code},
	}
}

// thresholdAlerts returns the alerts the metrics and status call for.
// queueCeiling <= 0 disables the offline queue limit check.
func thresholdAlerts(m models.SyncHealthMetrics, status models.SystemStatus, queueCeiling int, now time.Time) []*models.SyncAlert {
	out := make([]*models.SyncAlert, 0)

	if m.LastSuccessfulSync != nil && now.Sub(*m.LastSuccessfulSync) > staleAfter {
		out = append(out, newAlert(models.AlertWarning, models.SeverityMedium,
			"Stale Sync Detected", "No successful sync in over 1 hour", CodeStale, now))
	}
	if m.SuccessRate < alertFailureRate {
		out = append(out, newAlert(models.AlertError, models.SeverityHigh,
			"High Failure Rate", fmt.Sprintf("Sync success rate is %.1f%%", m.SuccessRate*100), CodeHighFailureRate, now))
	}
	if m.QueueSize > alertQueueSize {
		out = append(out, newAlert(models.AlertWarning, models.SeverityMedium,
			"Large Sync Queue", fmt.Sprintf("%d items in sync queue", m.QueueSize), CodeLargeQueue, now))
	}
	if queueCeiling > 0 && m.QueueSize > queueCeiling {
		out = append(out, newAlert(models.AlertWarning, models.SeverityHigh,
			"Sync Queue Over Limit",
			fmt.Sprintf("%d items in sync queue exceed the offline limit of %d; nothing is dropped", m.QueueSize, queueCeiling),
			CodeQueueCeiling, now))
	}
	if m.ConflictRate > alertConflictRate {
		out = append(out, newAlert(models.AlertWarning, models.SeverityMedium,
			"High Conflict Rate", fmt.Sprintf("%.1f%% of operations result in conflicts", m.ConflictRate*100), CodeHighConflictRate, now))
	}
	if m.DataIntegrityScore < alertIntegrityScore {
		out = append(out, newAlert(models.AlertError, models.SeverityHigh,
			"Data Integrity Issues", fmt.Sprintf("Data integrity score: %.1f%%", m.DataIntegrityScore*100), CodeIntegrityLow, now))
	}

	switch status {
	case models.StatusCritical:
		out = append(out, newAlert(models.AlertError, models.SeverityCritical,
			"Critical Sync Issues Detected",
			fmt.Sprintf("Multiple sync failures detected (%d of %d sessions failed in the last 24h). System requires immediate attention.",
				m.FailureCount, m.TotalSessions),
			CodeCritical, now))
	case models.StatusDegraded:
		out = append(out, newAlert(models.AlertWarning, models.SeverityMedium,
			"Sync Performance Degraded", "Sync performance is below normal levels.", CodeDegraded, now))
	}

	return out
}

// recoveryAlert описывает результат выполнения действия восстановления
func recoveryAlert(action models.RecoveryActionInfo, ok bool, err error, now time.Time) *models.SyncAlert {
	code := "RECOVERY_" + strings.ToUpper(action.ID)

	var a *models.SyncAlert
	switch {
	case err != nil:
		a = newAlert(models.AlertError, models.SeverityHigh,
			"Recovery Action Error", "Error executing: "+action.Description, code, now)
		a.Metadata.Extra = map[string]string{"error_message": err.Error()}
	case ok:
		a = newAlert(models.AlertInfo, models.SeverityLow,
			"Recovery Action Successful", "Successfully executed: "+action.Description, code, now)
	default:
		a = newAlert(models.AlertWarning, models.SeverityMedium,
			"Recovery Action Failed", "Failed to execute: "+action.Description, code, now)
	}

	a.Metadata.ActionID = action.ID
	if a.Metadata.Extra == nil {
		a.Metadata.Extra = map[string]string{}
	}
	a.Metadata.Extra["action_type"] = string(action.Type)
	return a
}
