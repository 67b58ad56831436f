// Package telemetry exposes Prometheus metrics for evaluation runs and the
// HTTP service.
package telemetry

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rawblock/shuffle-linkage/pkg/models"
)

const (
	metricsNamespace = "linkeval"
	runSubsystem     = "run"
	httpSubsystem    = "http"
)

// Outcome labels for RunsTotal.
const (
	OutcomeSuccess      = "success"
	OutcomeInsufficient = "insufficient_labels"
	OutcomeError        = "error"
)

// Metrics holds every collector. All methods are safe on a nil receiver so
// library callers may run without telemetry.
type Metrics struct {
	// RunsTotal counts evaluation runs.
	// Labels: strategy (kmeans, dbscan, external), outcome
	RunsTotal *prometheus.CounterVec

	// StageDurationSeconds measures pipeline stage latency.
	// Labels: stage (load_features, load_ground_truth, cluster, align, evaluate, persist)
	StageDurationSeconds *prometheus.HistogramVec

	// LastScore holds the most recent score of each kind.
	// Labels: metric (ari, nmi, coverage)
	LastScore *prometheus.GaugeVec

	// ConflictsTotal counts ground-truth conflicts met while resolving.
	// Labels: source
	ConflictsTotal *prometheus.CounterVec

	// SweepCandidatesTotal counts evaluated k values.
	// Labels: status (scored, failed)
	SweepCandidatesTotal *prometheus.CounterVec

	// RequestsTotal counts HTTP requests.
	// Labels: route, code
	RequestsTotal *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	auto := promauto.With(reg)
	return &Metrics{
		RunsTotal: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: runSubsystem,
			Name:      "total",
			Help:      "Evaluation runs by clustering strategy and outcome",
		}, []string{"strategy", "outcome"}),
		StageDurationSeconds: auto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: runSubsystem,
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}, []string{"stage"}),
		LastScore: auto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: runSubsystem,
			Name:      "last_score",
			Help:      "Most recent agreement and coverage scores",
		}, []string{"metric"}),
		ConflictsTotal: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: runSubsystem,
			Name:      "ground_truth_conflicts_total",
			Help:      "Ground-truth conflicts withdrawn from evaluation",
		}, []string{"source"}),
		SweepCandidatesTotal: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: runSubsystem,
			Name:      "sweep_candidates_total",
			Help:      "k values evaluated by sweeps",
		}, []string{"status"}),
		RequestsTotal: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: httpSubsystem,
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"route", "code"}),
	}
}

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDurationSeconds.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordRun counts a finished run, classifying err.
func (m *Metrics) RecordRun(strategy string, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	var insufficient *models.InsufficientLabelsError
	switch {
	case errors.As(err, &insufficient):
		outcome = OutcomeInsufficient
	case err != nil:
		outcome = OutcomeError
	}
	m.RunsTotal.WithLabelValues(strategy, outcome).Inc()
}

// RecordReport publishes the scores of a finished report.
func (m *Metrics) RecordReport(r *models.EvaluationReport) {
	if m == nil || r == nil {
		return
	}
	m.LastScore.WithLabelValues("ari").Set(r.ARI)
	m.LastScore.WithLabelValues("nmi").Set(r.NMI)
	if !r.Coverage.Undefined {
		m.LastScore.WithLabelValues("coverage").Set(r.Coverage.Overall)
	}
}

// RecordConflicts counts conflicts by the derivation that found them.
func (m *Metrics) RecordConflicts(conflicts []models.ConflictError) {
	if m == nil {
		return
	}
	for _, c := range conflicts {
		m.ConflictsTotal.WithLabelValues(c.Source).Inc()
	}
}

// RecordCandidate counts one evaluated sweep candidate.
func (m *Metrics) RecordCandidate(c models.SweepCandidate) {
	if m == nil {
		return
	}
	status := "scored"
	if !c.Valid() {
		status = "failed"
	}
	m.SweepCandidatesTotal.WithLabelValues(status).Inc()
}

// RecordRequest counts one HTTP request.
func (m *Metrics) RecordRequest(route string, code int) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
}
