package health

import (
	"time"

	"github.com/iudanet/lexisync/internal/models"
)

// Пороги статуса системы
const (
	criticalSuccessRate   = 0.3
	criticalIntegrity     = 0.8
	criticalFailureCount  = 10
	degradedSuccessRate   = 0.7
	degradedResponseTime  = 30 * time.Second
	degradedConflictRate  = 0.15
	degradedQueueSize     = 200
	degradedMinIssueCount = 2
)

// ComputeMetrics derives health metrics from the sessions of the rolling window.
// An empty window counts as fully successful.
func ComputeMetrics(sessions []*models.SyncSession, lastSuccess *time.Time, queueSize int, integrity float64) models.SyncHealthMetrics {
	m := models.SyncHealthMetrics{
		LastSuccessfulSync: lastSuccess,
		QueueSize:          queueSize,
		DataIntegrityScore: clamp(integrity),
		TotalSessions:      len(sessions),
		SuccessRate:        1,
	}
	if len(sessions) == 0 {
		return m
	}

	var (
		succeeded int
		completed int
		elapsed   time.Duration
		conflicts int
		synced    int
	)
	for _, s := range sessions {
		if s.Succeeded() {
			succeeded++
		}
		if s.CompletedAt != nil {
			completed++
			elapsed += s.Duration()
		}
		totals := s.Result.Totals()
		conflicts += totals.Conflicts
		synced += totals.Uploaded + totals.Downloaded
	}

	m.SuccessRate = clamp(float64(succeeded) / float64(len(sessions)))
	m.FailureCount = len(sessions) - succeeded
	if completed > 0 {
		m.AverageResponseTime = elapsed / time.Duration(completed)
	}
	if synced > 0 {
		m.ConflictRate = clamp(float64(conflicts) / float64(synced))
	} else if conflicts > 0 {
		m.ConflictRate = 1
	}
	return m
}

// EvaluateStatus classifies the metrics: any critical rule wins, otherwise
// at least two degraded rules are needed for Degraded.
func EvaluateStatus(m models.SyncHealthMetrics) models.SystemStatus {
	if m.SuccessRate < criticalSuccessRate ||
		m.DataIntegrityScore < criticalIntegrity ||
		m.FailureCount > criticalFailureCount {
		return models.StatusCritical
	}

	degraded := 0
	for _, hit := range []bool{
		m.SuccessRate < degradedSuccessRate,
		m.AverageResponseTime > degradedResponseTime,
		m.ConflictRate > degradedConflictRate,
		m.QueueSize > degradedQueueSize,
	} {
		if hit {
			degraded++
		}
	}
	if degraded >= degradedMinIssueCount {
		return models.StatusDegraded
	}
	return models.StatusHealthy
}

// PerformanceIssues lists human-readable performance findings.
func PerformanceIssues(m models.SyncHealthMetrics) []string {
	issues := make([]string, 0)
	if m.AverageResponseTime > degradedResponseTime {
		issues = append(issues, "Slow sync response times detected")
	}
	if m.QueueSize > 100 {
		issues = append(issues, "Large sync queue may cause delays")
	}
	if m.ConflictRate > 0.1 {
		issues = append(issues, "High conflict rate may impact performance")
	}
	return issues
}

// IntegrityScore: 1 - 0.1 за каждую найденную проблему, не ниже 0
func IntegrityScore(issues []models.IntegrityIssue) float64 {
	return clamp(1 - 0.1*float64(len(issues)))
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
