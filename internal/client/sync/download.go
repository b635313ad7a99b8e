package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	httpClient "github.com/iudanet/lexisync/internal/client/api"
	"github.com/iudanet/lexisync/internal/client/conflict"
	"github.com/iudanet/lexisync/internal/client/storage"
	"github.com/iudanet/lexisync/internal/models"
	"github.com/iudanet/lexisync/pkg/api"
)

// downloadTable pulls server changes newer than the table watermark page by page.
// The watermark advances only past pages that were fully applied.
func (o *Orchestrator) downloadTable(ctx context.Context, r *run, spec models.TableSpec, settings Settings) {
	op := r.newOp(downloadOpType(spec), spec, settings.MaxRetries)
	r.transition(op, models.StatusInProgress, o.now(), "")

	fail := func(err error) {
		if httpClient.IsTransient(err) {
			r.markTransient()
		}
		r.addError("%s", tableErr(spec.Name, "download", err))
		r.transition(op, models.StatusFailed, o.now(), err.Error())
	}

	since, err := o.metadata.GetWatermark(ctx, spec.Name)
	if err != nil {
		fail(fmt.Errorf("failed to read watermark: %w", err))
		return
	}

	applied, conflicts := 0, 0
	for ctx.Err() == nil && !r.overBudget(o.now()) {
		req := api.DownloadRequest{Limit: settings.BatchSize}
		if !since.IsZero() {
			s := since
			req.Since = &s
		}

		resp, err := o.api.Download(ctx, spec.Name, req)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			fail(err)
			return
		}
		if !resp.Success {
			fail(fmt.Errorf("server rejected download: %s", resp.Message))
			return
		}
		r.addTotal(len(resp.Records))

		next := since
		for _, rec := range resp.Records {
			c, wrote, err := o.applyServerRecord(ctx, spec, rec, since)
			if err != nil {
				fail(err)
				return
			}
			switch {
			case c != nil:
				r.addConflict(*c)
				conflicts++
			case wrote:
				applied++
				r.countDownloaded(spec.Name)
			}
			if rec.UpdatedAt.After(next) {
				next = rec.UpdatedAt
			}
		}

		if next.After(since) {
			if err := o.metadata.SaveWatermark(ctx, spec.Name, next); err != nil {
				fail(fmt.Errorf("failed to save watermark: %w", err))
				return
			}
			since = next
		}

		if len(resp.Records) < settings.BatchSize {
			break
		}
	}

	r.opRecords(op, applied, conflicts)
	if ctx.Err() != nil {
		r.transition(op, models.StatusCancelled, o.now(), ctx.Err().Error())
		return
	}
	r.transition(op, models.StatusCompleted, o.now(), "")
}

// applyServerRecord merges one downloaded record into the local store.
// A conflict is returned instead of being applied when both sides changed;
// wrote reports whether the server version actually replaced local data.
func (o *Orchestrator) applyServerRecord(ctx context.Context, spec models.TableSpec, rec api.Record, watermark time.Time) (c *models.DataConflict, wrote bool, err error) {
	local, err := o.findLocal(ctx, spec.Name, rec)
	if err != nil {
		return nil, false, err
	}

	if local == nil {
		server := fromAPI(spec.Name, rec.ServerID, rec)
		if err := o.records.SaveRecord(ctx, server); err != nil {
			return nil, false, fmt.Errorf("failed to save downloaded record: %w", err)
		}
		return nil, true, nil
	}

	server := fromAPI(spec.Name, local.LocalID, rec)
	if !local.Dirty {
		if err := o.records.SaveRecord(ctx, server); err != nil {
			return nil, false, fmt.Errorf("failed to save downloaded record: %w", err)
		}
		return nil, true, nil
	}

	if local.ServerID == "" {
		// Сервер уже принял вставку этой записи, но ответ до нас не дошел:
		// связываем id и оставляем локальные правки в очереди
		local.ServerID = rec.ServerID
		local.LastSyncedAt = rec.UpdatedAt
		if err := o.records.SaveRecord(ctx, local); err != nil {
			return nil, false, fmt.Errorf("failed to link record %s: %w", local.LocalID, err)
		}
		return nil, false, nil
	}

	base := local.LastSyncedAt
	if base.IsZero() {
		base = watermark
	}
	if conflict.Detect(local, server, base) {
		return &models.DataConflict{
			DetectedAt:   o.now(),
			ClientRecord: local,
			ServerRecord: server,
			TableName:    spec.Name,
			RecordID:     local.LocalID,
		}, false, nil
	}

	// Локальная версия новее и еще не выгружена - серверная не применяется
	return nil, false, nil
}

// findLocal ищет локальную запись по server_id, затем по client_ref еще не выгруженной записи
func (o *Orchestrator) findLocal(ctx context.Context, table string, rec api.Record) (*models.Record, error) {
	local, err := o.records.GetRecordByServerID(ctx, table, rec.ServerID)
	if err == nil {
		return local, nil
	}
	if !errors.Is(err, storage.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up record %s: %w", rec.ServerID, err)
	}
	if rec.ClientRef == "" {
		return nil, nil
	}

	local, err = o.records.GetRecord(ctx, table, rec.ClientRef)
	if errors.Is(err, storage.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up record %s: %w", rec.ClientRef, err)
	}
	if local.ServerID != "" && local.ServerID != rec.ServerID {
		return nil, nil
	}
	return local, nil
}
