package models

import "time"

// ConflictStrategy is an automatic conflict resolution policy.
type ConflictStrategy string

const (
	StrategyServerWins ConflictStrategy = "server_wins"
	StrategyClientWins ConflictStrategy = "client_wins"
	StrategyMerge      ConflictStrategy = "merge"
)

// Valid reports whether the strategy is known.
func (s ConflictStrategy) Valid() bool {
	switch s {
	case StrategyServerWins, StrategyClientWins, StrategyMerge:
		return true
	}
	return false
}

// ResolutionMode selects automatic resolution or routing everything to manual review.
type ResolutionMode string

const (
	ResolutionAutomatic ResolutionMode = "automatic"
	ResolutionManual    ResolutionMode = "manual"
)

// DataConflict is a record both sides changed since the last synchronization point.
type DataConflict struct {
	DetectedAt   time.Time `json:"detected_at"`
	ClientRecord *Record   `json:"client_record"`
	ServerRecord *Record   `json:"server_record"`
	TableName    string    `json:"table_name"`
	RecordID     string    `json:"record_id"`
}

// ConflictResolution is the outcome of applying a strategy to a conflict.
type ConflictResolution struct {
	ResolvedRecord       *Record          `json:"resolved_record,omitempty"`
	Conflict             DataConflict     `json:"conflict"`
	Strategy             ConflictStrategy `json:"strategy"`
	Reason               string           `json:"reason,omitempty"`
	Confidence           float64          `json:"confidence"`
	Resolved             bool             `json:"resolved"`
	RequiresManualReview bool             `json:"requires_manual_review"`
}

// ResolutionLogEntry is the persisted audit trail of one resolution.
type ResolutionLogEntry struct {
	ResolvedAt           time.Time        `json:"resolved_at"`
	TableName            string           `json:"table_name"`
	RecordID             string           `json:"record_id"`
	Strategy             ConflictStrategy `json:"strategy"`
	Confidence           float64          `json:"confidence"`
	Resolved             bool             `json:"resolved"`
	RequiresManualReview bool             `json:"requires_manual_review"`
}

// ResolutionStats summarizes the resolution audit log.
type ResolutionStats struct {
	StrategyCounts    map[ConflictStrategy]int `json:"strategy_counts"`
	TotalResolutions  int                      `json:"total_resolutions"`
	SuccessRate       float64                  `json:"success_rate"`
	AverageConfidence float64                  `json:"average_confidence"`
	ManualReviewRate  float64                  `json:"manual_review_rate"`
}
