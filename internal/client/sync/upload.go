package sync

import (
	"context"
	"errors"

	httpClient "github.com/iudanet/lexisync/internal/client/api"
	"github.com/iudanet/lexisync/internal/client/storage"
	"github.com/iudanet/lexisync/internal/models"
	"github.com/iudanet/lexisync/pkg/api"
)

// uploadTable pushes queued mutations of one table batch by batch.
// The next batch is taken only when the whole previous one left the queue.
func (o *Orchestrator) uploadTable(ctx context.Context, r *run, spec models.TableSpec, settings Settings) {
	op := r.newOp(models.OpUpload, spec, settings.MaxRetries)
	r.transition(op, models.StatusInProgress, o.now(), "")

	uploaded, failed := 0, 0
	for ctx.Err() == nil && !r.overBudget(o.now()) {
		items, err := o.queue.Dequeue(ctx, spec.Name, settings.BatchSize)
		if err != nil {
			r.addError("%s", tableErr(spec.Name, "upload", err))
			r.transition(op, models.StatusFailed, o.now(), err.Error())
			return
		}
		if len(items) == 0 {
			break
		}
		r.addTotal(len(items))

		drained := true
		for _, item := range items {
			if ctx.Err() != nil {
				drained = false
				break
			}
			ok, err := o.uploadItem(ctx, r, spec, item)
			if err != nil {
				failed++
			}
			if ok {
				uploaded++
			} else {
				drained = false
			}
		}

		if !drained || len(items) < settings.BatchSize {
			break
		}
	}

	r.opRecords(op, uploaded, 0)
	switch {
	case ctx.Err() != nil:
		r.transition(op, models.StatusCancelled, o.now(), ctx.Err().Error())
	case failed > 0:
		r.transition(op, models.StatusFailed, o.now(), "some items failed to upload")
	default:
		r.transition(op, models.StatusCompleted, o.now(), "")
	}
}

// uploadItem sends one queue item. ok means the item left the queue;
// a non-nil error means the upload failed (conflicts are not failures).
func (o *Orchestrator) uploadItem(ctx context.Context, r *run, spec models.TableSpec, item *models.SyncQueueItem) (ok bool, err error) {
	rec, err := o.records.GetRecord(ctx, spec.Name, item.RecordID)
	if errors.Is(err, storage.ErrRecordNotFound) {
		// запись исчезла локально - выгружать нечего
		return o.dropItem(ctx, r, item), nil
	}
	if err != nil {
		r.addError("%s", tableErr(spec.Name, "upload", err))
		return false, err
	}

	var confirmed *api.Record
	switch {
	case rec.Deleted && rec.ServerID == "":
		return o.dropItem(ctx, r, item), nil
	case rec.Deleted:
		confirmed, err = o.api.DeleteRecord(ctx, spec.Name, rec.ServerID, api.DeleteRecordRequest{
			UpdatedAt:     rec.UpdatedAt,
			BaseUpdatedAt: rec.LastSyncedAt,
		})
	case rec.ServerID == "":
		confirmed, err = o.api.CreateRecord(ctx, spec.Name, api.CreateRecordRequest{
			UpdatedAt:     rec.UpdatedAt,
			Fields:        rec.Fields,
			ClientRef:     rec.LocalID,
			ClearedFields: rec.ClearedFields,
		})
	default:
		confirmed, err = o.api.UpsertRecord(ctx, spec.Name, rec.ServerID, api.UpsertRecordRequest{
			UpdatedAt:     rec.UpdatedAt,
			BaseUpdatedAt: rec.LastSyncedAt,
			Fields:        rec.Fields,
			ClearedFields: rec.ClearedFields,
		})
	}
	if err != nil {
		return false, o.handleUploadError(ctx, r, spec, item, rec, err)
	}

	if err := o.confirmUpload(ctx, rec, confirmed); err != nil {
		r.addError("%s", tableErr(spec.Name, "upload", err))
		return false, err
	}
	if err := o.queue.Remove(ctx, item.ID); err != nil && !errors.Is(err, storage.ErrQueueItemNotFound) {
		r.addError("%s", tableErr(spec.Name, "upload", err))
		return false, err
	}

	r.countUploaded(spec.Name)
	return true, nil
}

// confirmUpload stores the server-assigned id and timestamp. If the record
// was edited during the request it stays dirty and keeps its newer queue item.
func (o *Orchestrator) confirmUpload(ctx context.Context, rec *models.Record, confirmed *api.Record) error {
	_, err := o.records.MarkSynced(ctx, rec.Table, rec.LocalID, rec.UpdatedAt, confirmed.ServerID, confirmed.UpdatedAt)
	return err
}

func (o *Orchestrator) handleUploadError(ctx context.Context, r *run, spec models.TableSpec, item *models.SyncQueueItem, rec *models.Record, err error) error {
	var conflictErr *httpClient.ConflictError
	switch {
	case errors.As(err, &conflictErr):
		r.addConflict(models.DataConflict{
			DetectedAt:   o.now(),
			ClientRecord: rec,
			ServerRecord: fromAPI(spec.Name, rec.LocalID, conflictErr.Current),
			TableName:    spec.Name,
			RecordID:     rec.LocalID,
		})
		return nil

	case ctx.Err() != nil:
		// отмена сессии: элемент остается в очереди без увеличения счетчика
		return nil

	case httpClient.IsTransient(err):
		r.markTransient()
		r.addError("%s", tableErr(spec.Name, "upload of "+rec.LocalID, err))
		deadLettered, ierr := o.queue.IncrementRetry(ctx, item.ID, err)
		if ierr != nil {
			r.addError("%s", tableErr(spec.Name, "retry bookkeeping", ierr))
			return err
		}
		if deadLettered {
			r.addWarning("%s/%s moved to dead letters after %d retries", spec.Name, rec.LocalID, item.MaxRetries)
		}
		return err

	default:
		// постоянная ошибка (4xx) - повтор не поможет
		r.addError("%s", tableErr(spec.Name, "upload of "+rec.LocalID, err))
		if derr := o.queue.DeadLetter(ctx, item.ID, err); derr != nil {
			r.addError("%s", tableErr(spec.Name, "dead letter", derr))
			return err
		}
		r.addWarning("%s/%s rejected by server and moved to dead letters", spec.Name, rec.LocalID)
		return err
	}
}

func (o *Orchestrator) dropItem(ctx context.Context, r *run, item *models.SyncQueueItem) bool {
	if err := o.queue.Remove(ctx, item.ID); err != nil && !errors.Is(err, storage.ErrQueueItemNotFound) {
		r.addError("%s", tableErr(item.TableName, "queue cleanup", err))
		return false
	}
	return true
}

// fromAPI converts a server record into a clean local record.
func fromAPI(table, localID string, rec api.Record) *models.Record {
	fields := make(map[string]any, len(rec.Fields))
	for k, v := range rec.Fields {
		fields[k] = v
	}
	return &models.Record{
		Table:         table,
		LocalID:       localID,
		ServerID:      rec.ServerID,
		Fields:        fields,
		ClearedFields: append([]string(nil), rec.ClearedFields...),
		UpdatedAt:     rec.UpdatedAt,
		LastSyncedAt:  rec.UpdatedAt,
		Deleted:       rec.Deleted,
	}
}
