package clustering

import (
	"fmt"

	"github.com/rawblock/shuffle-linkage/pkg/models"
)

// Noise is the cluster id of addresses a density-based run leaves unassigned.
const Noise = -1

// Strategy selects the clustering algorithm.
type Strategy string

const (
	StrategyKMeans Strategy = "kmeans" // partition-based, fixed k
	StrategyDBSCAN Strategy = "dbscan" // density-based, may leave noise
)

// Defaults mirror the reference analysis scripts (k=10, seed 42, eps 5, minPts 2).
const (
	DefaultK         = 10
	DefaultSeed      = 42
	DefaultNInit     = 10
	DefaultMaxIter   = 300
	DefaultTolerance = 1e-4
	DefaultEps       = 5.0
	DefaultMinPts    = 2
)

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyKMeans, StrategyDBSCAN:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("unknown clustering strategy %q", s)
}

// Params configures one clustering run. The seed is part of the contract:
// identical input, params and seed give bit-identical assignments.
type Params struct {
	Strategy Strategy

	// Partition-based
	K         int
	Seed      int64
	NInit     int     // restarts, best inertia kept
	MaxIter   int     // Lloyd iterations per restart
	Tolerance float64 // stop when total squared centroid shift falls below

	// Density-based
	Eps    float64 // neighborhood radius (Euclidean)
	MinPts int     // neighbors within Eps, the point itself included

	// Normalize applies z-score scaling to the features before clustering.
	// Off unless asked for: distances are otherwise computed on raw values.
	Normalize bool
}

// DefaultParams returns parameters for s with the reference defaults.
func DefaultParams(s Strategy) Params {
	return Params{
		Strategy:  s,
		K:         DefaultK,
		Seed:      DefaultSeed,
		NInit:     DefaultNInit,
		MaxIter:   DefaultMaxIter,
		Tolerance: DefaultTolerance,
		Eps:       DefaultEps,
		MinPts:    DefaultMinPts,
	}
}

func (p Params) withDefaults() Params {
	if p.NInit <= 0 {
		p.NInit = DefaultNInit
	}
	if p.MaxIter <= 0 {
		p.MaxIter = DefaultMaxIter
	}
	if p.Tolerance <= 0 {
		p.Tolerance = DefaultTolerance
	}
	return p
}

// Summary converts the params into their report form.
func (p Params) Summary() models.ClusterParams {
	out := models.ClusterParams{Strategy: string(p.Strategy), Seed: p.Seed, Normalize: p.Normalize}
	switch p.Strategy {
	case StrategyKMeans:
		out.K = p.K
	case StrategyDBSCAN:
		out.Eps = p.Eps
		out.MinPts = p.MinPts
	}
	return out
}
