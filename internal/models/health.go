package models

import (
	"maps"
	"time"
)

// SyncHealthMetrics is recomputed by the health monitor each cycle.
// All rate fields are within [0,1].
type SyncHealthMetrics struct {
	LastSuccessfulSync  *time.Time    `json:"last_successful_sync,omitempty"`
	AverageResponseTime time.Duration `json:"average_response_time"`
	SuccessRate         float64       `json:"success_rate"`
	ConflictRate        float64       `json:"conflict_rate"`
	DataIntegrityScore  float64       `json:"data_integrity_score"`
	FailureCount        int           `json:"failure_count"`
	QueueSize           int           `json:"queue_size"`
	TotalSessions       int           `json:"total_sessions"`
}

// SystemStatus is the overall health classification.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// AlertType classifies an alert.
type AlertType string

const (
	AlertError   AlertType = "error"
	AlertWarning AlertType = "warning"
	AlertInfo    AlertType = "info"
)

// AlertSeverity ranks an alert.
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

// AlertMetadata carries the dedup code and optional context.
type AlertMetadata struct {
	Extra     map[string]string `json:"extra,omitempty"`
	ErrorCode string            `json:"error_code"`
	SessionID string            `json:"session_id,omitempty"`
	TableName string            `json:"table_name,omitempty"`
	ActionID  string            `json:"action_id,omitempty"`
}

// SyncAlert is raised by the health monitor when a threshold rule fires.
type SyncAlert struct {
	Timestamp  time.Time     `json:"timestamp"`
	ResolvedAt *time.Time    `json:"resolved_at,omitempty"`
	ID         string        `json:"id"`
	Type       AlertType     `json:"type"`
	Severity   AlertSeverity `json:"severity"`
	Title      string        `json:"title"`
	Message    string        `json:"message"`
	Metadata   AlertMetadata `json:"metadata"`
	Resolved   bool          `json:"resolved"`
}

// DedupKey returns the (title, error code) pair alerts are deduplicated by.
func (a *SyncAlert) DedupKey() string {
	return a.Title + "\x00" + a.Metadata.ErrorCode
}

// Clone returns a copy of the alert.
func (a *SyncAlert) Clone() *SyncAlert {
	c := *a
	if a.ResolvedAt != nil {
		t := *a.ResolvedAt
		c.ResolvedAt = &t
	}
	c.Metadata.Extra = maps.Clone(a.Metadata.Extra)
	return &c
}

// RecoveryActionType classifies a recovery action.
type RecoveryActionType string

const (
	RecoveryRetry              RecoveryActionType = "retry"
	RecoveryReset              RecoveryActionType = "reset"
	RecoveryManualIntervention RecoveryActionType = "manual_intervention"
	RecoveryDataRepair         RecoveryActionType = "data_repair"
)

// Condition names evaluated against health metrics.
const (
	ConditionHighFailureRate  = "high_failure_rate"
	ConditionLargeQueue       = "large_queue"
	ConditionStaleSync        = "stale_sync"
	ConditionDataIntegrityLow = "data_integrity_low"
)

// RecoveryActionInfo is the serializable description of a registered recovery action.
type RecoveryActionInfo struct {
	ID          string             `json:"id"`
	Type        RecoveryActionType `json:"type"`
	Description string             `json:"description"`
	Conditions  []string           `json:"conditions"`
	Priority    int                `json:"priority"`
	Automated   bool               `json:"automated"`
}

// Integrity issue kinds.
const (
	IssueOrphanedRecord = "orphaned_record"
	IssueMissingFields  = "missing_required_fields"
	IssueScanFailed     = "scan_failed"
)

// IntegrityIssue is one finding of the data integrity scan: all records of a
// table with the same kind of problem.
type IntegrityIssue struct {
	TableName string   `json:"table_name"`
	Kind      string   `json:"kind"`
	Detail    string   `json:"detail"`
	RecordIDs []string `json:"record_ids,omitempty"`
}

// Diagnostics is a point-in-time snapshot of the sync subsystem health.
type Diagnostics struct {
	GeneratedAt        time.Time            `json:"generated_at"`
	ActiveAlerts       []*SyncAlert         `json:"active_alerts"`
	RecommendedActions []RecoveryActionInfo `json:"recommended_actions"`
	IntegrityIssues    []IntegrityIssue     `json:"integrity_issues"`
	PerformanceIssues  []string             `json:"performance_issues"`
	Status             SystemStatus         `json:"status"`
	Metrics            SyncHealthMetrics    `json:"metrics"`
}
