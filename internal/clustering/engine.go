package clustering

import (
	"fmt"
	"log/slog"

	"github.com/rawblock/shuffle-linkage/internal/features"
	"github.com/rawblock/shuffle-linkage/pkg/models"
)

// Engine runs a clustering strategy over a feature snapshot.
type Engine struct {
	log *slog.Logger
}

// NewEngine creates an engine logging through log (nil discards).
func NewEngine(log *slog.Logger) *Engine {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Engine{log: log.With("component", "ClusterEngine")}
}

// Run clusters every address of store. It fails with
// *models.ConvergenceError only when the algorithm cannot produce a
// labeling for the input and parameters.
//
// Vectors are used exactly as stored unless p.Normalize is set.
func (e *Engine) Run(store *features.Store, p Params) (*Assignments, error) {
	p = p.withDefaults()
	if store == nil || store.Len() == 0 {
		return nil, &models.ConvergenceError{Strategy: string(p.Strategy), Reason: "empty feature store"}
	}
	if p.Normalize && !store.Scaled() {
		store = store.Normalized()
	}
	snapshot := store.Fingerprint().String()

	points := make([][]float64, store.Len())
	for i := range points {
		points[i] = store.Row(i)
	}

	var labels []int
	switch p.Strategy {
	case StrategyKMeans:
		res, err := runKMeans(points, p)
		if err != nil {
			return nil, err
		}
		labels = res.labels
		e.log.Debug("kmeans finished", "k", p.K, "seed", p.Seed, "inertia", res.inertia, "iterations", res.iters)
	case StrategyDBSCAN:
		res, err := runDBSCAN(points, p)
		if err != nil {
			return nil, err
		}
		labels = res.labels
		e.log.Debug("dbscan finished", "eps", p.Eps, "minPts", p.MinPts,
			"clusters", res.clusters, "noise", res.noise, "largestCore", res.largestCore)
	default:
		return nil, &models.ConvergenceError{Strategy: string(p.Strategy), Reason: fmt.Sprintf("unknown strategy %q", p.Strategy)}
	}

	vectors := make([][]float64, len(points))
	for i, pt := range points {
		vectors[i] = clone(pt)
	}
	return newAssignments(p, snapshot, store.Addresses(), labels, vectors), nil
}
