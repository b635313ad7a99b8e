package health

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/iudanet/lexisync/internal/models"
)

func session(start time.Time, d time.Duration, success bool, stats models.TableStats) *models.SyncSession {
	end := start.Add(d)
	return &models.SyncSession{
		ID:          start.Format(time.RFC3339Nano),
		StartedAt:   start,
		CompletedAt: &end,
		Result: &models.SyncResult{
			Success:     success,
			SyncedItems: map[string]*models.TableStats{models.TableVocabularies: &stats},
		},
	}
}

func TestComputeMetrics(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("empty window", func(t *testing.T) {
		m := ComputeMetrics(nil, nil, 4, 1)
		assert.Equal(t, 1.0, m.SuccessRate)
		assert.Equal(t, 0, m.FailureCount)
		assert.Equal(t, 4, m.QueueSize)
		assert.Zero(t, m.AverageResponseTime)
	})

	t.Run("ten sessions three failed", func(t *testing.T) {
		sessions := make([]*models.SyncSession, 0, 10)
		for i := range 10 {
			sessions = append(sessions, session(now.Add(time.Duration(i)*time.Minute), 2*time.Second, i >= 3,
				models.TableStats{Uploaded: 1}))
		}
		m := ComputeMetrics(sessions, &now, 0, 1)
		assert.InDelta(t, 0.7, m.SuccessRate, 1e-9)
		assert.Equal(t, 3, m.FailureCount)
		assert.Equal(t, 10, m.TotalSessions)
		assert.Equal(t, 2*time.Second, m.AverageResponseTime)
		assert.Equal(t, models.StatusHealthy, EvaluateStatus(m))
	})

	t.Run("conflict rate", func(t *testing.T) {
		sessions := []*models.SyncSession{
			session(now, time.Second, true, models.TableStats{Uploaded: 6, Downloaded: 4, Conflicts: 2}),
		}
		m := ComputeMetrics(sessions, nil, 0, 1)
		assert.InDelta(t, 0.2, m.ConflictRate, 1e-9)

		sessions = []*models.SyncSession{session(now, time.Second, true, models.TableStats{Conflicts: 1})}
		assert.Equal(t, 1.0, ComputeMetrics(sessions, nil, 0, 1).ConflictRate)
	})

	t.Run("integrity is clamped", func(t *testing.T) {
		assert.Equal(t, 0.0, ComputeMetrics(nil, nil, 0, -0.4).DataIntegrityScore)
	})
}

func TestEvaluateStatus(t *testing.T) {
	tests := []struct {
		name    string
		metrics models.SyncHealthMetrics
		want    models.SystemStatus
	}{
		{
			name:    "healthy",
			metrics: models.SyncHealthMetrics{SuccessRate: 1, DataIntegrityScore: 1},
			want:    models.StatusHealthy,
		},
		{
			name:    "low success rate is critical",
			metrics: models.SyncHealthMetrics{SuccessRate: 0.2, DataIntegrityScore: 1},
			want:    models.StatusCritical,
		},
		{
			name:    "low integrity is critical",
			metrics: models.SyncHealthMetrics{SuccessRate: 1, DataIntegrityScore: 0.7},
			want:    models.StatusCritical,
		},
		{
			name:    "many failures is critical",
			metrics: models.SyncHealthMetrics{SuccessRate: 0.9, DataIntegrityScore: 1, FailureCount: 11},
			want:    models.StatusCritical,
		},
		{
			name:    "single degraded rule stays healthy",
			metrics: models.SyncHealthMetrics{SuccessRate: 0.6, DataIntegrityScore: 1},
			want:    models.StatusHealthy,
		},
		{
			name: "two degraded rules",
			metrics: models.SyncHealthMetrics{
				SuccessRate:         1,
				DataIntegrityScore:  1,
				AverageResponseTime: 45 * time.Second,
				QueueSize:           250,
			},
			want: models.StatusDegraded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EvaluateStatus(tt.metrics))
		})
	}
}

func TestPerformanceIssues(t *testing.T) {
	assert.Empty(t, PerformanceIssues(models.SyncHealthMetrics{SuccessRate: 1}))

	issues := PerformanceIssues(models.SyncHealthMetrics{
		AverageResponseTime: time.Minute,
		QueueSize:           101,
		ConflictRate:        0.2,
	})
	assert.Equal(t, []string{
		"Slow sync response times detected",
		"Large sync queue may cause delays",
		"High conflict rate may impact performance",
	}, issues)
}

func TestIntegrityScore(t *testing.T) {
	assert.Equal(t, 1.0, IntegrityScore(nil))
	assert.InDelta(t, 0.8, IntegrityScore(make([]models.IntegrityIssue, 2)), 1e-9)
	assert.Equal(t, 0.0, IntegrityScore(make([]models.IntegrityIssue, 12)))
}
