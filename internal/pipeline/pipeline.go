// Package pipeline wires feature store, ground truth, clustering,
// alignment and metrics into evaluation runs and k sweeps.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rawblock/shuffle-linkage/internal/alignment"
	"github.com/rawblock/shuffle-linkage/internal/clustering"
	"github.com/rawblock/shuffle-linkage/internal/groundtruth"
	"github.com/rawblock/shuffle-linkage/internal/metrics"
	"github.com/rawblock/shuffle-linkage/internal/telemetry"
	"github.com/rawblock/shuffle-linkage/pkg/models"
)

// Stage names carried by *models.StageError.
const (
	StageLoadFeatures    = "load_features"
	StageLoadGroundTruth = "load_ground_truth"
	StageCluster         = "cluster"
	StageAlign           = "align"
	StageEvaluate        = "evaluate"
	StagePersist         = "persist"
)

// StrategyExternal tags reports scored on a partition loaded from a file.
const StrategyExternal = "external"

// SourceFeatureTable tags report conflicts raised by duplicate feature keys.
const SourceFeatureTable = "feature table"

// Options are the evaluation choices every run must make explicitly.
type Options struct {
	GroundTruth groundtruth.Strategy
	Domain      alignment.Domain
	NoisePolicy metrics.NoisePolicy
}

// Validate rejects unset choices.
func (o Options) Validate() error {
	if _, err := groundtruth.ParseStrategy(string(o.GroundTruth)); err != nil {
		return err
	}
	if o.Domain != alignment.DomainIntersection && o.Domain != alignment.DomainUnion {
		return alignment.ErrDomainRequired
	}
	_, err := metrics.ParseNoisePolicy(string(o.NoisePolicy))
	return err
}

// Pipeline runs evaluations. It holds no per-run state and is safe for
// concurrent use.
type Pipeline struct {
	engine  *clustering.Engine
	metrics *telemetry.Metrics
	log     *slog.Logger
	now     func() time.Time
}

// New creates a pipeline. m may be nil.
func New(log *slog.Logger, m *telemetry.Metrics) *Pipeline {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{
		engine:  clustering.NewEngine(log),
		metrics: m,
		log:     log.With("component", "Pipeline"),
		now:     time.Now,
	}
}

// Result is one finished run: the report plus the assignments it scored.
type Result struct {
	Report      *models.EvaluationReport
	Assignments *clustering.Assignments
}

// Run clusters the dataset with params and scores the result.
func (p *Pipeline) Run(ctx context.Context, ds *Dataset, params clustering.Params, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	res, err := p.resolve(ds, opts)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var assign *clustering.Assignments
	err = p.stage(StageCluster, func() error {
		a, err := p.engine.Run(ds.Store, params)
		assign = a
		return err
	})
	if err != nil {
		p.metrics.RecordRun(string(params.Strategy), err)
		return nil, err
	}

	report, err := p.score(assign, res, ds, opts)
	p.metrics.RecordRun(string(params.Strategy), err)
	if err != nil {
		return nil, err
	}
	p.log.Info("evaluation finished", "run", report.RunID, "strategy", params.Strategy,
		"ari", report.ARI, "nmi", report.NMI, "coverage", report.Coverage.Overall, "clusters", report.Clusters)
	return &Result{Report: report, Assignments: assign}, nil
}

// EvaluatePartition scores a partition produced elsewhere (for example the
// heuristic sender grouping) against the dataset's ground truth.
func (p *Pipeline) EvaluatePartition(ds *Dataset, assign *clustering.Assignments, opts Options) (*models.EvaluationReport, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	res, err := p.resolve(ds, opts)
	if err != nil {
		return nil, err
	}
	report, err := p.score(assign, res, ds, opts)
	p.metrics.RecordRun(StrategyExternal, err)
	return report, err
}

// Coverage computes coverage only, without agreement metrics. Useful for
// partitions too degenerate for ARI/NMI.
func (p *Pipeline) Coverage(ds *Dataset, pred map[string]int, opts Options) (models.CoverageReport, error) {
	res, err := p.resolve(ds, opts)
	if err != nil {
		return models.CoverageReport{}, err
	}
	var out models.CoverageReport
	err = p.stage(StageEvaluate, func() error {
		cov, err := metrics.Coverage(pred, res.Mapping.GroupMembers(), opts.NoisePolicy)
		out = cov
		return err
	})
	return out, err
}

func (p *Pipeline) resolve(ds *Dataset, opts Options) (*groundtruth.Resolution, error) {
	if ds == nil || ds.Store == nil || ds.Resolver == nil {
		return nil, &models.StageError{Stage: StageLoadGroundTruth, Err: errors.New("dataset not loaded")}
	}
	p.log.Info("evaluation options",
		"groundTruth", string(opts.GroundTruth), "domain", opts.Domain.String(), "noisePolicy", string(opts.NoisePolicy))

	var res *groundtruth.Resolution
	err := p.stage(StageLoadGroundTruth, func() error {
		r, err := ds.Resolver.Resolve(opts.GroundTruth)
		res = r
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(res.Conflicts) > 0 {
		p.log.Warn("ground truth conflicts withdrawn", "strategy", res.Strategy, "conflicts", len(res.Conflicts))
	}
	if len(res.Unresolved) > 0 {
		p.log.Debug("wallets without a role", "addresses", len(res.Unresolved))
	}
	return res, nil
}

func (p *Pipeline) score(assign *clustering.Assignments, res *groundtruth.Resolution, ds *Dataset, opts Options) (*models.EvaluationReport, error) {
	pred := assign.Labels()

	var aligned alignment.Aligned
	err := p.stage(StageAlign, func() error {
		a, err := alignment.Align(pred, res.Mapping, opts.Domain)
		aligned = a
		return err
	})
	if err != nil {
		return nil, err
	}

	var agreement metrics.Agreement
	var coverage models.CoverageReport
	err = p.stage(StageEvaluate, func() error {
		ag, err := metrics.Evaluate(aligned.True, aligned.Pred)
		if err != nil {
			return err
		}
		cov, err := metrics.Coverage(pred, res.Mapping.GroupMembers(), opts.NoisePolicy)
		if err != nil {
			return err
		}
		agreement, coverage = ag, cov
		return nil
	})
	if err != nil {
		return nil, err
	}

	conflicts := append([]models.ConflictError(nil), res.Conflicts...)
	conflicts = append(conflicts, ds.Validation...)
	for _, d := range ds.Store.Duplicates() {
		conflicts = append(conflicts, models.ConflictError{
			Address: d.Address,
			First:   fmt.Sprintf("%s (%s)", d.First, d.Field),
			Second:  fmt.Sprintf("%s (%s)", d.Second, d.Field),
			Source:  SourceFeatureTable,
		})
	}
	p.metrics.RecordConflicts(conflicts)

	params := assign.Params().Summary()
	if assign.External() {
		params = models.ClusterParams{Strategy: StrategyExternal}
	}
	snapshot := assign.SnapshotID()
	if snapshot == "" {
		snapshot = ds.Store.Fingerprint().String()
	}

	report := &models.EvaluationReport{
		RunID:       uuid.NewString(),
		SnapshotID:  snapshot,
		GroundTruth: string(res.Strategy),
		Domain:      opts.Domain.String(),
		Params:      params,
		Aligned:     aligned.Len(),
		Clusters:    assign.ClusterCount(),
		Noise:       assign.NoiseCount(),
		ARI:         agreement.ARI,
		NMI:         agreement.NMI,
		VI:          agreement.VI,
		Coverage:    coverage,
		Conflicts:   conflicts,
		CreatedAt:   p.now().UTC(),
	}
	p.metrics.RecordReport(report)
	return report, nil
}

// KRange returns every k in [lo, hi].
func KRange(lo, hi int) ([]int, error) {
	if lo < 1 || hi < lo {
		return nil, fmt.Errorf("invalid k range [%d, %d]", lo, hi)
	}
	ks := make([]int, 0, hi-lo+1)
	for k := lo; k <= hi; k++ {
		ks = append(ks, k)
	}
	return ks, nil
}
