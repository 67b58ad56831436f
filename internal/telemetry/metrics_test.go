package telemetry

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/rawblock/shuffle-linkage/pkg/models"
)

func newTestMetrics(t *testing.T) *Metrics {
	t.Helper()
	return NewMetrics(prometheus.NewRegistry())
}

func TestRecordRun_Outcomes(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordRun("kmeans", nil)
	m.RecordRun("kmeans", &models.InsufficientLabelsError{TrueClasses: 1, PredClasses: 3})
	m.RecordRun("dbscan", errors.New("boom"))

	tests := []struct {
		strategy, outcome string
	}{
		{"kmeans", OutcomeSuccess},
		{"kmeans", OutcomeInsufficient},
		{"dbscan", OutcomeError},
	}
	for _, tt := range tests {
		if got := testutil.ToFloat64(m.RunsTotal.WithLabelValues(tt.strategy, tt.outcome)); got != 1 {
			t.Errorf("RunsTotal[%s,%s] = %f, want 1", tt.strategy, tt.outcome, got)
		}
	}
}

func TestRecordReport_SkipsUndefinedCoverage(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordReport(&models.EvaluationReport{ARI: 0.5, NMI: 0.7, Coverage: models.CoverageReport{Overall: 0.9}})
	m.RecordReport(&models.EvaluationReport{ARI: 0.6, NMI: 0.8, Coverage: models.CoverageReport{Undefined: true}})

	if got := testutil.ToFloat64(m.LastScore.WithLabelValues("ari")); got != 0.6 {
		t.Errorf("ari = %f, want 0.6", got)
	}
	if got := testutil.ToFloat64(m.LastScore.WithLabelValues("coverage")); got != 0.9 {
		t.Errorf("coverage = %f, want 0.9 (undefined must not overwrite)", got)
	}
}

func TestRecordConflictsAndCandidates(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordConflicts([]models.ConflictError{
		{Address: "0xaa", Source: "uid->role chain"},
		{Address: "0xbb", Source: "uid->role chain"},
		{Address: "0xcc", Source: "cross-validation"},
	})
	m.RecordCandidate(models.SweepCandidate{K: 2, ARI: 0.1})
	m.RecordCandidate(models.SweepCandidate{K: 3, Error: "x"})

	if got := testutil.ToFloat64(m.ConflictsTotal.WithLabelValues("uid->role chain")); got != 2 {
		t.Errorf("conflicts = %f, want 2", got)
	}
	if got := testutil.ToFloat64(m.SweepCandidatesTotal.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed candidates = %f, want 1", got)
	}
}

func TestObserveStageAndRequests(t *testing.T) {
	m := newTestMetrics(t)

	m.ObserveStage("cluster", 20*time.Millisecond)
	m.RecordRequest("/api/v1/health", 200)

	if got := testutil.CollectAndCount(m.StageDurationSeconds); got != 1 {
		t.Errorf("stage series = %d, want 1", got)
	}
	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("/api/v1/health", "200")); got != 1 {
		t.Errorf("requests = %f, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveStage("cluster", time.Second)
	m.RecordRun("kmeans", nil)
	m.RecordReport(&models.EvaluationReport{})
	m.RecordConflicts([]models.ConflictError{{}})
	m.RecordCandidate(models.SweepCandidate{})
	m.RecordRequest("/", 200)
}
