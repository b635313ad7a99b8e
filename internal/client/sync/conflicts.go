package sync

import (
	"context"
	"errors"
	"fmt"

	httpClient "github.com/iudanet/lexisync/internal/client/api"
	"github.com/iudanet/lexisync/internal/models"
	"github.com/iudanet/lexisync/pkg/api"
)

// resolveConflicts runs the conflict phase of one table under conflictResolutionTimeout.
// Conflicts left when the budget runs out stay queued for the next session.
func (o *Orchestrator) resolveConflicts(ctx context.Context, r *run, spec models.TableSpec, settings Settings) {
	conflicts := r.takeConflicts(spec.Name)
	if len(conflicts) == 0 {
		return
	}

	op := r.newOp(models.OpConflictResolution, spec, 0)
	r.transition(op, models.StatusInProgress, o.now(), "")

	cctx, cancel := context.WithTimeout(ctx, settings.ConflictResolutionTimeout)
	defer cancel()

	handled, failed := 0, 0
	for i, c := range conflicts {
		if cctx.Err() != nil {
			if ctx.Err() == nil {
				r.addWarning("%s: conflict resolution timed out, %d conflicts deferred", spec.Name, len(conflicts)-i)
			}
			break
		}

		r.countConflict(spec.Name)
		res := o.resolver.Resolve(cctx, c, r.opts.ConflictStrategy)
		if err := o.applyResolution(cctx, r, spec, res); err != nil {
			failed++
			r.addError("%s", tableErr(spec.Name, "conflict resolution of "+c.RecordID, err))
			continue
		}
		handled++
	}

	r.opRecords(op, handled, len(conflicts))
	switch {
	case ctx.Err() != nil:
		r.transition(op, models.StatusCancelled, o.now(), ctx.Err().Error())
	case failed > 0:
		r.transition(op, models.StatusFailed, o.now(), "some conflicts could not be applied")
	default:
		r.transition(op, models.StatusCompleted, o.now(), "")
	}
}

// applyResolution stores the outcome of a resolution and pushes it when the
// local side contributed to the result.
func (o *Orchestrator) applyResolution(ctx context.Context, r *run, spec models.TableSpec, res models.ConflictResolution) error {
	c := res.Conflict

	if res.RequiresManualReview {
		// Запись остается грязной, но выходит из очереди до решения пользователя
		if err := o.queue.RemoveRecord(ctx, spec.Name, c.RecordID); err != nil {
			return err
		}
		r.addWarning("%s/%s requires manual review: %s", spec.Name, c.RecordID, res.Reason)
		return nil
	}

	resolved := res.ResolvedRecord.Clone()
	resolved.LocalID = c.RecordID
	resolved.ServerID = c.ServerRecord.ServerID
	resolved.LastSyncedAt = c.ServerRecord.UpdatedAt

	if res.Strategy == models.StrategyServerWins {
		resolved.Dirty = false
		if err := o.records.SaveRecord(ctx, resolved); err != nil {
			return fmt.Errorf("failed to save server version: %w", err)
		}
		return o.queue.RemoveRecord(ctx, spec.Name, c.RecordID)
	}

	resolved.Dirty = true
	if err := o.records.SaveRecord(ctx, resolved); err != nil {
		return fmt.Errorf("failed to save resolved record: %w", err)
	}

	confirmed, err := o.pushResolved(ctx, spec.Name, resolved)
	if err != nil {
		var conflictErr *httpClient.ConflictError
		if errors.As(err, &conflictErr) {
			// сервер снова изменился; элемент очереди остается для следующей сессии
			r.addWarning("%s/%s changed on server again, resolution retried next session", spec.Name, c.RecordID)
			return nil
		}
		if httpClient.IsTransient(err) {
			r.markTransient()
		}
		return err
	}

	if err := o.confirmUpload(ctx, resolved, confirmed); err != nil {
		return err
	}
	if err := o.queue.RemoveRecord(ctx, spec.Name, c.RecordID); err != nil {
		return err
	}
	r.countUploaded(spec.Name)
	return nil
}

func (o *Orchestrator) pushResolved(ctx context.Context, table string, rec *models.Record) (*api.Record, error) {
	if rec.Deleted {
		return o.api.DeleteRecord(ctx, table, rec.ServerID, api.DeleteRecordRequest{
			UpdatedAt:     rec.UpdatedAt,
			BaseUpdatedAt: rec.LastSyncedAt,
		})
	}
	return o.api.UpsertRecord(ctx, table, rec.ServerID, api.UpsertRecordRequest{
		UpdatedAt:     rec.UpdatedAt,
		BaseUpdatedAt: rec.LastSyncedAt,
		Fields:        rec.Fields,
		ClearedFields: rec.ClearedFields,
	})
}
