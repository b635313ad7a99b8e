package models

import (
	"fmt"
	"slices"
	"time"
)

// ModeName is the operating mode of the sync subsystem.
type ModeName string

const (
	ModeOnline  ModeName = "online"
	ModeOffline ModeName = "offline"
	ModeHybrid  ModeName = "hybrid"
)

// Capability is a feature enabled in a particular mode.
type Capability string

const (
	CapLocalStorage          Capability = "local_storage"
	CapOfflineQueries        Capability = "offline_queries"
	CapQueueOperations       Capability = "queue_operations"
	CapLocalProgressTracking Capability = "local_progress_tracking"
	CapLimitedSync           Capability = "limited_sync"
	CapPriorityUploads       Capability = "priority_uploads"
	CapBackgroundDownloads   Capability = "background_downloads"
	CapFullSync              Capability = "full_sync"
	CapRealTimeUpdates       Capability = "real_time_updates"
	CapBulkOperations        Capability = "bulk_operations"
	CapConflictResolution    Capability = "conflict_resolution"
	CapMediaDownloads        Capability = "media_downloads"
)

// SyncMode is the result of classifying a connectivity signal.
type SyncMode struct {
	Mode         ModeName     `json:"mode"`
	Reason       string       `json:"reason"`
	Capabilities []Capability `json:"capabilities"`
}

// Has reports whether the mode carries the capability.
func (m SyncMode) Has(c Capability) bool {
	return slices.Contains(m.Capabilities, c)
}

// Trigger identifies what started a sync session.
type Trigger string

const (
	TriggerManual     Trigger = "manual"
	TriggerTimer      Trigger = "timer"
	TriggerReconnect  Trigger = "reconnect"
	TriggerForeground Trigger = "foreground"
	TriggerRetry      Trigger = "retry"
	TriggerRecovery   Trigger = "recovery"
)

// QueueAction is the kind of local mutation waiting for upload.
type QueueAction string

const (
	ActionInsert QueueAction = "insert"
	ActionUpdate QueueAction = "update"
	ActionDelete QueueAction = "delete"
)

// SyncQueueItem is one pending local mutation.
type SyncQueueItem struct {
	CreatedAt      time.Time   `json:"created_at"`
	DeadLetteredAt *time.Time  `json:"dead_lettered_at,omitempty"`
	ID             string      `json:"id"`
	TableName      string      `json:"table_name"`
	RecordID       string      `json:"record_id"`
	Action         QueueAction `json:"action"`
	LastError      string      `json:"last_error,omitempty"`
	Priority       int         `json:"priority"`
	RetryCount     int         `json:"retry_count"`
	MaxRetries     int         `json:"max_retries"`
}

// OperationType is the kind of work a session operation performs.
type OperationType string

const (
	OpUpload             OperationType = "upload"
	OpDownload           OperationType = "download"
	OpConflictResolution OperationType = "conflict_resolution"
	OpMedia              OperationType = "media"
	OpLocal              OperationType = "local"
)

// OperationStatus is the lifecycle state of a SyncOperation.
type OperationStatus string

const (
	StatusPending    OperationStatus = "pending"
	StatusInProgress OperationStatus = "in_progress"
	StatusCompleted  OperationStatus = "completed"
	StatusFailed     OperationStatus = "failed"
	StatusCancelled  OperationStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are allowed.
func (s OperationStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// canTransition описывает допустимые (только прямые) переходы статусов
func canTransition(from, to OperationStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusInProgress || to == StatusCancelled
	case StatusInProgress:
		return to == StatusCompleted || to == StatusFailed || to == StatusCancelled
	default:
		return false
	}
}

// SyncOperation is one unit of work inside a session.
type SyncOperation struct {
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	ID            string          `json:"id"`
	Type          OperationType   `json:"type"`
	TableName     string          `json:"table_name"`
	Status        OperationStatus `json:"status"`
	Error         string          `json:"error,omitempty"`
	Priority      int             `json:"priority"`
	RetryCount    int             `json:"retry_count"`
	MaxRetries    int             `json:"max_retries"`
	RecordCount   int             `json:"record_count"`
	ConflictCount int             `json:"conflict_count"`
}

// Transition moves the operation to a new status.
// Backward or repeated transitions are rejected.
func (op *SyncOperation) Transition(to OperationStatus, at time.Time) error {
	if !canTransition(op.Status, to) {
		return fmt.Errorf("invalid operation transition %s -> %s", op.Status, to)
	}
	op.Status = to
	t := at
	if to == StatusInProgress {
		op.StartedAt = &t
	} else {
		op.CompletedAt = &t
	}
	return nil
}

// TableStats counts records moved for one table.
type TableStats struct {
	Uploaded   int `json:"uploaded"`
	Downloaded int `json:"downloaded"`
	Conflicts  int `json:"conflicts"`
}

// SyncResult is the outcome of a single session.
type SyncResult struct {
	SyncedItems map[string]*TableStats `json:"synced_items"`
	SessionID   string                 `json:"session_id"`
	Mode        ModeName               `json:"mode"`
	Errors      []string               `json:"errors"`
	Warnings    []string               `json:"warnings"`
	TotalTime   time.Duration          `json:"total_time"`
	Success     bool                   `json:"success"`
	Cancelled   bool                   `json:"cancelled"`
}

// Totals sums all per-table counters.
func (r *SyncResult) Totals() TableStats {
	var t TableStats
	if r == nil {
		return t
	}
	for _, s := range r.SyncedItems {
		t.Uploaded += s.Uploaded
		t.Downloaded += s.Downloaded
		t.Conflicts += s.Conflicts
	}
	return t
}

// Clone returns a deep copy of the result.
func (r *SyncResult) Clone() *SyncResult {
	if r == nil {
		return nil
	}
	c := *r
	c.Errors = slices.Clone(r.Errors)
	c.Warnings = slices.Clone(r.Warnings)
	c.SyncedItems = make(map[string]*TableStats, len(r.SyncedItems))
	for k, v := range r.SyncedItems {
		s := *v
		c.SyncedItems[k] = &s
	}
	return &c
}

// SyncSession is one bounded attempt to reconcile local and remote state.
type SyncSession struct {
	StartedAt        time.Time        `json:"started_at"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
	Result           *SyncResult      `json:"result,omitempty"`
	ID               string           `json:"id"`
	Trigger          Trigger          `json:"trigger"`
	Mode             SyncMode         `json:"mode"`
	Operations       []*SyncOperation `json:"operations"`
	Errors           []string         `json:"errors"`
	Warnings         []string         `json:"warnings"`
	TotalRecords     int              `json:"total_records"`
	ProcessedRecords int              `json:"processed_records"`
}

// Duration returns the wall-clock duration of a completed session.
func (s *SyncSession) Duration() time.Duration {
	if s.CompletedAt == nil {
		return 0
	}
	return s.CompletedAt.Sub(s.StartedAt)
}

// Succeeded reports whether the session completed without errors.
func (s *SyncSession) Succeeded() bool {
	return s.CompletedAt != nil && s.Result != nil && s.Result.Success
}

// Clone returns a deep copy suitable for handing to readers.
func (s *SyncSession) Clone() *SyncSession {
	if s == nil {
		return nil
	}
	c := *s
	c.Mode.Capabilities = slices.Clone(s.Mode.Capabilities)
	c.Errors = slices.Clone(s.Errors)
	c.Warnings = slices.Clone(s.Warnings)
	c.Result = s.Result.Clone()
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	c.Operations = make([]*SyncOperation, 0, len(s.Operations))
	for _, op := range s.Operations {
		o := *op
		c.Operations = append(c.Operations, &o)
	}
	return &c
}
