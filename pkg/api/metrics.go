package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ExclusiveAccount/wifi-auditor/pkg/attack"
	"github.com/ExclusiveAccount/wifi-auditor/pkg/models"
)

// Compile-time interface check.
var _ attack.Observer = (*Metrics)(nil)

// Metrics records attack progress for Prometheus scraping. It keeps its own
// registry so tests and multiple instances never collide.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal      prometheus.Counter
	attemptsTotal  *prometheus.CounterVec
	successesTotal *prometheus.CounterVec
	targetsTotal   *prometheus.CounterVec
	attackDuration *prometheus.HistogramVec
	visibleTargets prometheus.Gauge
}

// NewMetrics creates and registers all collectors
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.runsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "wifi_auditor_runs_total",
		Help: "Total number of attack runs started",
	})

	m.attemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wifi_auditor_attack_attempts_total",
			Help: "Total number of attack techniques that finished, by technique and outcome",
		},
		[]string{"attack", "outcome"},
	)

	m.successesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wifi_auditor_attack_successes_total",
			Help: "Total number of techniques that produced an artifact",
		},
		[]string{"attack"},
	)

	m.targetsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wifi_auditor_targets_total",
			Help: "Total number of targets attacked, by outcome",
		},
		[]string{"outcome"},
	)

	m.attackDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wifi_auditor_attack_duration_seconds",
			Help:    "Time spent per attack technique",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"attack"},
	)

	m.visibleTargets = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "wifi_auditor_visible_targets",
		Help: "Number of access points in the latest scan",
	})

	m.registry.MustRegister(
		m.runsTotal,
		m.attemptsTotal,
		m.successesTotal,
		m.targetsTotal,
		m.attackDuration,
		m.visibleTargets,
	)
	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// SetVisibleTargets records the size of the latest scan
func (m *Metrics) SetVisibleTargets(n int) {
	m.visibleTargets.Set(float64(n))
}

// RunStarted implements attack.Observer
func (m *Metrics) RunStarted(runID string, targets []models.Target) {
	m.runsTotal.Inc()
}

// TargetStarted implements attack.Observer
func (m *Metrics) TargetStarted(runID string, plan models.AttackPlan) {}

// AttackFinished implements attack.Observer
func (m *Metrics) AttackFinished(runID string, target models.Target, out attack.Outcome) {
	kind := string(out.Kind)
	m.attemptsTotal.WithLabelValues(kind, outcomeLabel(out)).Inc()
	m.attackDuration.WithLabelValues(kind).Observe(out.Duration.Seconds())
	if out.Success() {
		m.successesTotal.WithLabelValues(kind).Inc()
	}
}

// TargetFinished implements attack.Observer
func (m *Metrics) TargetFinished(runID string, target models.Target, result *models.CrackResult) {
	switch {
	case result == nil:
		m.targetsTotal.WithLabelValues("failed").Inc()
	case result.Cracked():
		m.targetsTotal.WithLabelValues("cracked").Inc()
	default:
		m.targetsTotal.WithLabelValues("captured").Inc()
	}
}

// RunFinished implements attack.Observer
func (m *Metrics) RunFinished(summary attack.Summary) {}

func outcomeLabel(out attack.Outcome) string {
	switch {
	case out.Success():
		return "success"
	case out.Err != nil:
		return "error"
	default:
		return "no_result"
	}
}
