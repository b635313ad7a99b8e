package health

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	clientsync "github.com/iudanet/lexisync/internal/client/sync"
	"github.com/iudanet/lexisync/internal/models"
)

const staleSyncCondition = 2 * time.Hour

// RecoveryAction is a registered self-healing step.
type RecoveryAction struct {
	Action func(ctx context.Context) (bool, error)
	Info   models.RecoveryActionInfo
}

// DefaultRecoveryActions builds the built-in registry on top of the orchestrator API.
func DefaultRecoveryActions(orch Orchestrator) []*RecoveryAction {
	return []*RecoveryAction{
		{
			Info: models.RecoveryActionInfo{
				ID:          "retry_failed_sync",
				Type:        models.RecoveryRetry,
				Description: "Retry failed synchronization",
				Automated:   true,
				Priority:    1,
				Conditions:  []string{models.ConditionHighFailureRate},
			},
			Action: func(ctx context.Context) (bool, error) {
				res, err := orch.PerformSync(ctx, clientsync.Options{Forced: true, Trigger: models.TriggerRecovery})
				if err != nil {
					return false, err
				}
				return res.Success, nil
			},
		},
		{
			Info: models.RecoveryActionInfo{
				ID:          "clear_sync_queue",
				Type:        models.RecoveryReset,
				Description: "Clear and rebuild sync queue",
				Automated:   true,
				Priority:    2,
				Conditions:  []string{models.ConditionLargeQueue},
			},
			Action: func(ctx context.Context) (bool, error) {
				if _, err := orch.RebuildQueue(ctx); err != nil {
					return false, err
				}
				return true, nil
			},
		},
		{
			Info: models.RecoveryActionInfo{
				ID:          "force_full_sync",
				Type:        models.RecoveryRetry,
				Description: "Force full data synchronization",
				Automated:   false,
				Priority:    3,
				Conditions:  []string{models.ConditionStaleSync, models.ConditionDataIntegrityLow},
			},
			Action: func(ctx context.Context) (bool, error) {
				res, err := orch.PerformSync(ctx, clientsync.Options{
					Forced:   true,
					Trigger:  models.TriggerRecovery,
					Priority: []string{models.TableUserProgress, models.TableVocabularies, models.TableStudySessions},
				})
				if err != nil {
					return false, err
				}
				return res.Success, nil
			},
		},
	}
}

// EvaluateCondition checks a named recovery condition against the metrics.
// Unknown conditions never hold.
func EvaluateCondition(name string, m models.SyncHealthMetrics, now time.Time) bool {
	switch name {
	case models.ConditionHighFailureRate:
		return m.SuccessRate < alertFailureRate
	case models.ConditionLargeQueue:
		return m.QueueSize > alertQueueSize
	case models.ConditionStaleSync:
		return m.LastSuccessfulSync == nil || now.Sub(*m.LastSuccessfulSync) > staleSyncCondition
	case models.ConditionDataIntegrityLow:
		return m.DataIntegrityScore < alertIntegrityScore
	}
	return false
}

func allConditions(a *RecoveryAction, m models.SyncHealthMetrics, now time.Time) bool {
	for _, c := range a.Info.Conditions {
		if !EvaluateCondition(c, m, now) {
			return false
		}
	}
	return len(a.Info.Conditions) > 0
}

func anyCondition(a *RecoveryAction, m models.SyncHealthMetrics, now time.Time) bool {
	return slices.ContainsFunc(a.Info.Conditions, func(c string) bool {
		return EvaluateCondition(c, m, now)
	})
}

// RecommendedActions returns actions with at least one holding condition, by priority.
func RecommendedActions(actions []*RecoveryAction, m models.SyncHealthMetrics, now time.Time) []models.RecoveryActionInfo {
	out := make([]models.RecoveryActionInfo, 0)
	for _, a := range actions {
		if anyCondition(a, m, now) {
			info := a.Info
			info.Conditions = slices.Clone(a.Info.Conditions)
			out = append(out, info)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// runAction выполняет действие, превращая panic в ошибку
func runAction(ctx context.Context, a *RecoveryAction) (ok bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			ok = false
			err = fmt.Errorf("recovery action panicked: %v", p)
		}
	}()
	return a.Action(ctx)
}
