package sync

import (
	"context"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/lexisync/internal/models"
)

// run is the mutable state of one session. The session is only touched under mu
// and readers get deep copies.
type run struct {
	deadline  time.Time
	session   *models.SyncSession
	result    *models.SyncResult
	conflicts map[string][]models.DataConflict
	cancel    context.CancelFunc
	opts      Options
	mu        stdsync.Mutex
	transient bool
	overtime  bool
}

func newRun(opts Options, m models.SyncMode, started time.Time, budget time.Duration, cancel context.CancelFunc) *run {
	id := uuid.NewString()
	return &run{
		opts:     opts,
		cancel:   cancel,
		deadline: started.Add(budget),
		session: &models.SyncSession{
			ID:         id,
			StartedAt:  started,
			Trigger:    opts.Trigger,
			Mode:       m,
			Operations: make([]*models.SyncOperation, 0),
			Errors:     make([]string, 0),
			Warnings:   make([]string, 0),
		},
		result: &models.SyncResult{
			SessionID:   id,
			Mode:        m.Mode,
			SyncedItems: make(map[string]*models.TableStats),
			Errors:      make([]string, 0),
			Warnings:    make([]string, 0),
		},
		conflicts: make(map[string][]models.DataConflict),
	}
}

func (r *run) addError(format string, args ...any) {
	r.mu.Lock()
	r.session.Errors = append(r.session.Errors, fmt.Sprintf(format, args...))
	r.mu.Unlock()
}

func (r *run) addWarning(format string, args ...any) {
	r.mu.Lock()
	r.session.Warnings = append(r.session.Warnings, fmt.Sprintf(format, args...))
	r.mu.Unlock()
}

func (r *run) markTransient() {
	r.mu.Lock()
	r.transient = true
	r.mu.Unlock()
}

// stats возвращает счетчики таблицы; вызывать под mu
func (r *run) stats(table string) *models.TableStats {
	s, ok := r.result.SyncedItems[table]
	if !ok {
		s = &models.TableStats{}
		r.result.SyncedItems[table] = s
	}
	return s
}

func (r *run) countUploaded(table string) {
	r.mu.Lock()
	r.stats(table).Uploaded++
	r.session.ProcessedRecords++
	r.mu.Unlock()
}

func (r *run) countDownloaded(table string) {
	r.mu.Lock()
	r.stats(table).Downloaded++
	r.session.ProcessedRecords++
	r.mu.Unlock()
}

func (r *run) countConflict(table string) {
	r.mu.Lock()
	r.stats(table).Conflicts++
	r.mu.Unlock()
}

func (r *run) addTotal(n int) {
	r.mu.Lock()
	r.session.TotalRecords += n
	r.mu.Unlock()
}

// newOp appends a pending operation to the session.
func (r *run) newOp(typ models.OperationType, spec models.TableSpec, maxRetries int) *models.SyncOperation {
	op := &models.SyncOperation{
		ID:         uuid.NewString(),
		Type:       typ,
		TableName:  spec.Name,
		Priority:   spec.Priority,
		Status:     models.StatusPending,
		MaxRetries: maxRetries,
	}
	r.mu.Lock()
	r.session.Operations = append(r.session.Operations, op)
	r.mu.Unlock()
	return op
}

// transition moves an operation under the session lock; errors mean a bug
// in the phase code and are recorded on the session.
func (r *run) transition(op *models.SyncOperation, to models.OperationStatus, at time.Time, errMsg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := op.Transition(to, at); err != nil {
		r.session.Errors = append(r.session.Errors, err.Error())
		return
	}
	if errMsg != "" {
		op.Error = errMsg
	}
}

func (r *run) opRecords(op *models.SyncOperation, records, conflicts int) {
	r.mu.Lock()
	op.RecordCount += records
	op.ConflictCount += conflicts
	r.mu.Unlock()
}

// deferOp records work that was skipped in this session.
func (r *run) deferOp(typ models.OperationType, spec models.TableSpec, at time.Time, reason string) {
	op := r.newOp(typ, spec, 0)
	r.transition(op, models.StatusCancelled, at, reason)
}

// overBudget reports whether the soft time budget is exhausted; the first
// time it is noticed a warning is added.
func (r *run) overBudget(now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.overtime {
		return true
	}
	if now.Before(r.deadline) {
		return false
	}
	r.overtime = true
	r.session.Warnings = append(r.session.Warnings,
		"Sync time budget exceeded, remaining work deferred to the next session")
	return true
}

// addConflict запоминает конфликт, найденный при выгрузке (409) или скачивании
func (r *run) addConflict(c models.DataConflict) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.conflicts[c.TableName]
	for i := range list {
		if list[i].RecordID == c.RecordID {
			// более свежая серверная версия заменяет найденную раньше
			if c.ServerRecord.UpdatedAt.After(list[i].ServerRecord.UpdatedAt) {
				list[i] = c
			}
			return
		}
	}
	r.conflicts[c.TableName] = append(list, c)
}

func (r *run) takeConflicts(table string) []models.DataConflict {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.conflicts[table]
	delete(r.conflicts, table)
	return list
}

func (r *run) snapshot() *models.SyncSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.Clone()
}

// finish closes every open operation, freezes the session and builds the result.
func (r *run) finish(at time.Time, cancelled bool) (*models.SyncSession, *models.SyncResult, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, op := range r.session.Operations {
		if op.Status.IsTerminal() {
			continue
		}
		to := models.StatusCancelled
		if op.Status == models.StatusInProgress && !cancelled {
			to = models.StatusFailed
			op.Error = "operation interrupted"
		}
		_ = op.Transition(to, at)
	}

	if cancelled {
		r.session.Errors = append(r.session.Errors, "sync session cancelled")
	}

	completed := at
	r.session.CompletedAt = &completed

	res := r.result
	res.Cancelled = cancelled
	res.Errors = append(res.Errors[:0], r.session.Errors...)
	res.Warnings = append(res.Warnings[:0], r.session.Warnings...)
	res.TotalTime = at.Sub(r.session.StartedAt)
	res.Success = len(res.Errors) == 0
	r.session.Result = res

	return r.session.Clone(), res.Clone(), r.transient && !cancelled
}
