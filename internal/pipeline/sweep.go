package pipeline

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/rawblock/shuffle-linkage/internal/alignment"
	"github.com/rawblock/shuffle-linkage/internal/clustering"
	"github.com/rawblock/shuffle-linkage/internal/groundtruth"
	"github.com/rawblock/shuffle-linkage/internal/metrics"
	"github.com/rawblock/shuffle-linkage/pkg/models"
)

// SweepRequest describes a partition-based search over k.
type SweepRequest struct {
	Base        clustering.Params // Strategy is forced to k-means; K is replaced per candidate
	Ks          []int
	Concurrency int // goroutines clustering at once; <= 0 means one

	// OnCandidate, if set, is called once per finished k. It may be called
	// from several goroutines at once.
	OnCandidate func(models.SweepCandidate)
}

// SweepResult carries the best run and every candidate in k order.
type SweepResult struct {
	Best       *Result
	Candidates []models.SweepCandidate
}

// Sweep clusters the shared read-only dataset once per k, scores each run
// by ARI and selects the best with metrics.BestOf (max ARI, smallest k on
// ties). A k that cannot be clustered or scored is recorded as a failed
// candidate and does not abort the sweep.
//
// Each goroutine writes only its own slot of the candidate slice; the slice
// is read after Wait.
func (p *Pipeline) Sweep(ctx context.Context, ds *Dataset, req SweepRequest, opts Options) (*SweepResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if len(req.Ks) == 0 {
		return nil, errors.New("sweep needs at least one k")
	}
	res, err := p.resolve(ds, opts)
	if err != nil {
		return nil, err
	}

	base := req.Base
	base.Strategy = clustering.StrategyKMeans
	limit := req.Concurrency
	if limit <= 0 {
		limit = 1
	}

	candidates := make([]models.SweepCandidate, len(req.Ks))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, k := range req.Ks {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			c := p.scoreK(ds, base, k, res.Mapping, opts)
			candidates[i] = c
			p.metrics.RecordCandidate(c)
			if req.OnCandidate != nil {
				req.OnCandidate(c)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	best, err := metrics.BestOf(candidates)
	if err != nil {
		return nil, &models.StageError{Stage: StageEvaluate, Err: err}
	}
	p.log.Info("sweep finished", "candidates", len(candidates), "bestK", best.K, "ari", best.ARI)

	params := base
	params.K = best.K
	run, err := p.Run(ctx, ds, params, opts)
	if err != nil {
		return nil, err
	}
	run.Report.Candidates = candidates
	return &SweepResult{Best: run, Candidates: candidates}, nil
}

// scoreK clusters with one k and computes ARI/NMI over the aligned labels.
func (p *Pipeline) scoreK(ds *Dataset, base clustering.Params, k int, truth *groundtruth.Mapping, opts Options) models.SweepCandidate {
	c := models.SweepCandidate{K: k}
	params := base
	params.K = k

	var assign *clustering.Assignments
	err := p.stage(StageCluster, func() error {
		a, err := p.engine.Run(ds.Store, params)
		assign = a
		return err
	})
	if err != nil {
		c.Error = err.Error()
		return c
	}
	c.Clusters = assign.ClusterCount()

	aligned, err := alignment.Align(assign.Labels(), truth, opts.Domain)
	if err != nil {
		c.Error = err.Error()
		return c
	}
	ag, err := metrics.Evaluate(aligned.True, aligned.Pred)
	if err != nil {
		c.Error = err.Error()
		return c
	}
	c.ARI, c.NMI = ag.ARI, ag.NMI
	return c
}
