// Package conflict detects and resolves divergent edits of a record.
package conflict

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/spf13/cast"

	"github.com/iudanet/lexisync/internal/client/storage"
	"github.com/iudanet/lexisync/internal/models"
)

// Detect reports whether both sides changed the record since lastSyncedAt.
func Detect(local, server *models.Record, lastSyncedAt time.Time) bool {
	if local == nil || server == nil {
		return false
	}
	return local.UpdatedAt.After(lastSyncedAt) && server.UpdatedAt.After(lastSyncedAt)
}

// Resolver applies per-table strategies and keeps the resolution audit log.
type Resolver struct {
	store      storage.ConflictStorage
	strategies map[string]models.ConflictStrategy
	logger     *slog.Logger
	now        func() time.Time
	mu         sync.RWMutex
}

// NewResolver creates a resolver. Tables without a strategy fall back to ServerWins.
func NewResolver(store storage.ConflictStorage, strategies map[string]models.ConflictStrategy, logger *slog.Logger) *Resolver {
	r := &Resolver{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	r.SetStrategies(strategies)
	return r
}

// SetStrategies replaces the per-table strategy map.
func (r *Resolver) SetStrategies(strategies map[string]models.ConflictStrategy) {
	m := make(map[string]models.ConflictStrategy, len(strategies))
	for k, v := range strategies {
		m[k] = v
	}
	r.mu.Lock()
	r.strategies = m
	r.mu.Unlock()
}

// StrategyFor returns the configured strategy of a table.
func (r *Resolver) StrategyFor(table string) models.ConflictStrategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.strategies[table]; ok && s.Valid() {
		return s
	}
	return models.StrategyServerWins
}

// Resolve applies the table strategy to a conflict and records the outcome.
// With ResolutionManual every conflict is routed to manual review.
func (r *Resolver) Resolve(ctx context.Context, c models.DataConflict, mode models.ResolutionMode) models.ConflictResolution {
	strategy := r.StrategyFor(c.TableName)
	res := models.ConflictResolution{Conflict: c, Strategy: strategy}

	switch {
	case mode == models.ResolutionManual:
		res.RequiresManualReview = true
		res.Reason = "manual conflict strategy requested"
	case c.ClientRecord.Deleted != c.ServerRecord.Deleted:
		// Одна сторона удалила запись, другая изменила - автоматически не решаем
		res.RequiresManualReview = true
		res.Reason = "record deleted on one side and edited on the other"
	default:
		r.apply(&res)
	}

	if res.RequiresManualReview {
		res.Resolved = false
		if err := r.store.SaveManualReview(ctx, &c); err != nil {
			r.logger.Error("Failed to queue conflict for manual review",
				"table", c.TableName,
				"record_id", c.RecordID,
				"error", err)
		}
	}

	r.record(ctx, res)
	return res
}

func (r *Resolver) apply(res *models.ConflictResolution) {
	local, server := res.Conflict.ClientRecord, res.Conflict.ServerRecord

	switch res.Strategy {
	case models.StrategyClientWins:
		resolved := local.Clone()
		resolved.ServerID = server.ServerID
		res.ResolvedRecord = resolved
		res.Confidence = 1
	case models.StrategyMerge:
		merged, resurrected, confidence := Merge(local, server)
		if len(resurrected) > 0 {
			res.RequiresManualReview = true
			res.Reason = fmt.Sprintf("merge would restore fields cleared on server: %v", resurrected)
			return
		}
		merged.UpdatedAt = r.now()
		res.ResolvedRecord = merged
		res.Confidence = confidence
	default:
		resolved := server.Clone()
		resolved.LocalID = local.LocalID
		res.ResolvedRecord = resolved
		res.Confidence = 1
	}
	res.Resolved = true
}

// Merge keeps local values and takes the server value only where the local one is empty.
// Fields the local side cleared on purpose stay cleared. It returns the fields where
// a local value would overwrite an explicit server clear, and the share of fields both
// sides agree on.
func Merge(local, server *models.Record) (*models.Record, []string, float64) {
	merged := local.Clone()
	merged.ServerID = server.ServerID

	keys := make(map[string]bool, len(local.Fields)+len(server.Fields))
	for k := range local.Fields {
		keys[k] = true
	}
	for k := range server.Fields {
		keys[k] = true
	}

	var resurrected []string
	disagreements := 0
	for k := range keys {
		lv, lok := local.Fields[k]
		sv, sok := server.Fields[k]

		if sok && lok && !isEmpty(lv) && !isEmpty(sv) && cast.ToString(lv) != cast.ToString(sv) {
			disagreements++
		}

		switch {
		case !isEmpty(lv) && server.IsCleared(k):
			resurrected = append(resurrected, k)
		case isEmpty(lv) && local.IsCleared(k):
			// локальная очистка поля сохраняется
		case isEmpty(lv) && sok && !isEmpty(sv):
			merged.SetField(k, sv)
		}
	}
	sort.Strings(resurrected)

	confidence := 1.0
	if len(keys) > 0 {
		confidence = 1 - float64(disagreements)/float64(len(keys))
	}
	return merged, resurrected, confidence
}

// isEmpty: null, пустая строка или пустая коллекция
func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		s, err := cast.ToStringE(v)
		return err == nil && s == ""
	}
}

func (r *Resolver) record(ctx context.Context, res models.ConflictResolution) {
	entry := models.ResolutionLogEntry{
		ResolvedAt:           r.now(),
		TableName:            res.Conflict.TableName,
		RecordID:             res.Conflict.RecordID,
		Strategy:             res.Strategy,
		Confidence:           res.Confidence,
		Resolved:             res.Resolved,
		RequiresManualReview: res.RequiresManualReview,
	}
	if err := r.store.AppendResolution(ctx, entry); err != nil {
		r.logger.Warn("Failed to append resolution log", "error", err)
	}

	r.logger.Debug("Conflict resolved",
		"table", entry.TableName,
		"record_id", entry.RecordID,
		"strategy", entry.Strategy,
		"manual_review", entry.RequiresManualReview)
}

// Stats summarizes the resolution audit log.
func (r *Resolver) Stats(ctx context.Context) (models.ResolutionStats, error) {
	stats := models.ResolutionStats{StrategyCounts: map[models.ConflictStrategy]int{}}

	entries, err := r.store.ListResolutions(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to read resolution log: %w", err)
	}
	if len(entries) == 0 {
		return stats, nil
	}

	var resolved, manual int
	var confidence float64
	for _, e := range entries {
		stats.StrategyCounts[e.Strategy]++
		if e.Resolved {
			resolved++
			confidence += e.Confidence
		}
		if e.RequiresManualReview {
			manual++
		}
	}

	total := float64(len(entries))
	stats.TotalResolutions = len(entries)
	stats.SuccessRate = float64(resolved) / total
	stats.ManualReviewRate = float64(manual) / total
	if resolved > 0 {
		stats.AverageConfidence = confidence / float64(resolved)
	}
	return stats, nil
}
