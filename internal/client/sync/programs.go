package sync

import (
	"context"
	"fmt"
	"strings"

	"github.com/iudanet/lexisync/internal/models"
)

const (
	warnOfflineMode = "Operating in offline mode - server sync deferred"
	warnHybridMode  = "Operating in hybrid mode - limited sync performed"
	reasonDeferred  = "deferred until full connectivity"
	reasonBudget    = "skipped: sync time budget exceeded"
	reasonNoMedia   = "skipped: media downloads not available in current mode"
)

// runOnline: для каждой таблицы строго upload -> download -> разрешение конфликтов
func (o *Orchestrator) runOnline(ctx context.Context, r *run, settings Settings) {
	for _, spec := range o.tables.Ordered(r.opts.Priority) {
		if ctx.Err() != nil {
			return
		}
		if r.overBudget(o.now()) {
			o.deferTable(r, spec, reasonBudget)
			continue
		}

		o.contain(r, spec.Name, func() {
			o.uploadTable(ctx, r, spec, settings)
			if spec.Media && !r.session.Mode.Has(models.CapMediaDownloads) {
				r.deferOp(models.OpMedia, spec, o.now(), reasonNoMedia)
			} else {
				o.downloadTable(ctx, r, spec, settings)
			}
			o.resolveConflicts(ctx, r, spec, settings)
		})
	}
}

// runHybrid uploads only high-priority tables and downloads only critical ones.
func (o *Orchestrator) runHybrid(ctx context.Context, r *run, settings Settings) {
	uploads := make(map[string]bool)
	if len(r.opts.Priority) > 0 {
		for _, name := range r.opts.Priority {
			uploads[name] = true
		}
	} else {
		for _, spec := range o.tables.Specs() {
			if spec.HighPriority {
				uploads[spec.Name] = true
			}
		}
	}

	var deferred []string
	for _, spec := range o.tables.Ordered(r.opts.Priority) {
		if ctx.Err() != nil {
			return
		}
		if r.overBudget(o.now()) {
			o.deferTable(r, spec, reasonBudget)
			continue
		}

		o.contain(r, spec.Name, func() {
			if uploads[spec.Name] {
				o.uploadTable(ctx, r, spec, settings)
			} else {
				r.deferOp(models.OpUpload, spec, o.now(), reasonDeferred)
			}

			if spec.Critical {
				o.downloadTable(ctx, r, spec, settings)
				o.resolveConflicts(ctx, r, spec, settings)
			} else {
				r.deferOp(downloadOpType(spec), spec, o.now(), reasonDeferred)
			}
		})

		if !uploads[spec.Name] || !spec.Critical {
			deferred = append(deferred, spec.Name)
		}
	}

	if len(deferred) > 0 {
		r.addWarning("Deferred until online: %s", strings.Join(deferred, ", "))
	}
	r.addWarning(warnHybridMode)
}

// runOffline делает только локальную работу с очередью
func (o *Orchestrator) runOffline(ctx context.Context, r *run, settings Settings) {
	op := r.newOp(models.OpLocal, models.TableSpec{}, 0)
	r.transition(op, models.StatusInProgress, o.now(), "")

	added, err := o.queue.EnqueueMissing(ctx)
	if err != nil {
		r.addError("failed to enqueue pending records: %v", err)
		r.transition(op, models.StatusFailed, o.now(), err.Error())
		return
	}
	removed, err := o.queue.Compact(ctx)
	if err != nil {
		r.addError("failed to compact sync queue: %v", err)
		r.transition(op, models.StatusFailed, o.now(), err.Error())
		return
	}

	r.opRecords(op, added+removed, 0)
	r.transition(op, models.StatusCompleted, o.now(), "")
	r.addWarning(warnOfflineMode)

	o.logger.Debug("Offline bookkeeping done",
		"session_id", r.session.ID,
		"enqueued", added,
		"coalesced", removed)
}

// contain изолирует сбой одной таблицы, включая panic, от остальных
func (o *Orchestrator) contain(r *run, table string, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			o.logger.Error("Table sync panicked", "session_id", r.session.ID, "table", table, "panic", p)
			r.addError("%s: sync failed: %v", table, p)
		}
	}()
	fn()
}

func (o *Orchestrator) deferTable(r *run, spec models.TableSpec, reason string) {
	now := o.now()
	r.deferOp(models.OpUpload, spec, now, reason)
	r.deferOp(downloadOpType(spec), spec, now, reason)
}

func downloadOpType(spec models.TableSpec) models.OperationType {
	if spec.Media {
		return models.OpMedia
	}
	return models.OpDownload
}

func tableErr(table, phase string, err error) string {
	return fmt.Sprintf("%s: %s failed: %v", table, phase, err)
}
