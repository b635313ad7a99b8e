package health

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/iudanet/lexisync/internal/models"
)

const namespace = "lexisync"

// gauges exports the health metrics to Prometheus.
type gauges struct {
	successRate     prometheus.Gauge
	responseSeconds prometheus.Gauge
	failureCount    prometheus.Gauge
	conflictRate    prometheus.Gauge
	queueSize       prometheus.Gauge
	integrityScore  prometheus.Gauge
	lastSuccess     prometheus.Gauge
	activeAlerts    prometheus.Gauge
	status          *prometheus.GaugeVec
}

func newGauges(reg prometheus.Registerer) (*gauges, error) {
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      name,
			Help:      help,
		})
	}

	g := &gauges{
		successRate:     gauge("success_rate", "Share of successful sync sessions in the last 24h."),
		responseSeconds: gauge("average_response_seconds", "Mean duration of completed sync sessions."),
		failureCount:    gauge("failure_count", "Failed sync sessions in the last 24h."),
		conflictRate:    gauge("conflict_rate", "Conflicts per synced record in the last 24h."),
		queueSize:       gauge("queue_size", "Pending items in the sync queue."),
		integrityScore:  gauge("data_integrity_score", "Local data integrity score."),
		lastSuccess:     gauge("last_success_timestamp_seconds", "Unix time of the last successful sync session."),
		activeAlerts:    gauge("active_alerts", "Unresolved health alerts."),
		status: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "status",
			Help:      "Current system status (1 for the active status).",
		}, []string{"status"}),
	}

	for _, c := range []prometheus.Collector{
		g.successRate, g.responseSeconds, g.failureCount, g.conflictRate,
		g.queueSize, g.integrityScore, g.lastSuccess, g.activeAlerts, g.status,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register health metric: %w", err)
		}
	}
	return g, nil
}

func (g *gauges) update(m models.SyncHealthMetrics, status models.SystemStatus, activeAlerts int) {
	if g == nil {
		return
	}
	g.successRate.Set(m.SuccessRate)
	g.responseSeconds.Set(m.AverageResponseTime.Seconds())
	g.failureCount.Set(float64(m.FailureCount))
	g.conflictRate.Set(m.ConflictRate)
	g.queueSize.Set(float64(m.QueueSize))
	g.integrityScore.Set(m.DataIntegrityScore)
	if m.LastSuccessfulSync != nil {
		g.lastSuccess.Set(float64(m.LastSuccessfulSync.Unix()))
	}
	g.activeAlerts.Set(float64(activeAlerts))
	for _, s := range []models.SystemStatus{models.StatusHealthy, models.StatusDegraded, models.StatusCritical} {
		v := 0.0
		if s == status {
			v = 1
		}
		g.status.WithLabelValues(string(s)).Set(v)
	}
}
