// Package config defines the linkage evaluator's configuration and loader.
//
// Keys are flat snake_case so every one of them can be overridden from the
// environment (LINKEVAL_<KEY>).
package config

import (
	"fmt"
	"runtime"

	"github.com/rawblock/shuffle-linkage/internal/alignment"
	"github.com/rawblock/shuffle-linkage/internal/clustering"
	"github.com/rawblock/shuffle-linkage/internal/features"
	"github.com/rawblock/shuffle-linkage/internal/groundtruth"
	"github.com/rawblock/shuffle-linkage/internal/logging"
	"github.com/rawblock/shuffle-linkage/internal/metrics"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogText switches from JSON to logfmt-style text output.
	LogText bool `koanf:"log_text"`

	// Addr configures the HTTP listen address, e.g. ":8090".
	Addr string `koanf:"addr"`
	// AuthToken enables bearer auth on /api/v1 when non-empty.
	AuthToken string `koanf:"auth_token"`
	// RateLimit is the sustained per-IP request rate (req/s); 0 disables limiting.
	RateLimit float64 `koanf:"rate_limit"`
	RateBurst int     `koanf:"rate_burst"`

	// DatabaseURL enables report persistence when non-empty.
	DatabaseURL string `koanf:"database_url"`

	// Input files
	FeaturesPath  string `koanf:"features_path"`  // addressFeatures.json
	EnrichedPath  string `koanf:"enriched_path"`  // enrichedTransactions.json (used when FeaturesPath is empty)
	RolesPath     string `koanf:"roles_path"`     // trace_features.jsonl
	WalletsPath   string `koanf:"wallets_path"`   // wallets_with_shuffling.json
	GroupsPath    string `koanf:"groups_path"`    // merged role groups
	HeuristicPath string `koanf:"heuristic_path"` // {group: [addresses]} comparator output
	ArtifactDir   string `koanf:"artifact_dir"`   // where cluster artifacts are written; empty disables

	// Feature extraction
	HistogramMode    string `koanf:"histogram_mode"`
	HistogramBuckets int    `koanf:"histogram_buckets"`

	// Clustering
	Strategy  string  `koanf:"strategy"`
	K         int     `koanf:"k"`
	KMin      int     `koanf:"k_min"`
	KMax      int     `koanf:"k_max"`
	Seed      int64   `koanf:"seed"`
	NInit     int     `koanf:"n_init"`
	MaxIter   int     `koanf:"max_iter"`
	Eps       float64 `koanf:"eps"`
	MinPts    int     `koanf:"min_pts"`
	Normalize bool    `koanf:"normalize"`

	// Evaluation
	GroundTruth string `koanf:"ground_truth"` // role, wallet or explicit
	Domain      string `koanf:"domain"`       // intersection or union
	NoisePolicy string `koanf:"noise_policy"` // noise_counts or noise_excluded

	// SweepConcurrency bounds the number of k values clustered at once.
	SweepConcurrency int `koanf:"sweep_concurrency"`
}

// New returns a Config holding the defaults.
func New() *Config {
	return &Config{
		LogLevel:         "info",
		Addr:             ":8090",
		RateLimit:        5,
		RateBurst:        10,
		HistogramMode:    string(features.HistogramDuration),
		HistogramBuckets: features.DefaultBuckets,
		Strategy:         string(clustering.StrategyKMeans),
		K:                clustering.DefaultK,
		KMin:             2,
		KMax:             20,
		Seed:             clustering.DefaultSeed,
		NInit:            clustering.DefaultNInit,
		MaxIter:          clustering.DefaultMaxIter,
		Eps:              clustering.DefaultEps,
		MinPts:           clustering.DefaultMinPts,
		GroundTruth:      string(groundtruth.StrategyRole),
		Domain:           alignment.DomainIntersection.String(),
		NoisePolicy:      string(metrics.NoiseCounts),
		SweepConcurrency: runtime.NumCPU(),
	}
}

// Validate checks every enumerated and numeric setting.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if c.RateLimit < 0 || (c.RateLimit > 0 && c.RateBurst < 1) {
		return fmt.Errorf("%w: rate_limit %g with burst %d", ErrInvalidConfig, c.RateLimit, c.RateBurst)
	}
	if _, err := features.ParseHistogramMode(c.HistogramMode); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := clustering.ParseStrategy(c.Strategy); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.K < 1 {
		return fmt.Errorf("%w: k must be >= 1, got %d", ErrInvalidConfig, c.K)
	}
	if c.KMin < 1 || c.KMax < c.KMin {
		return fmt.Errorf("%w: k range [%d, %d]", ErrInvalidConfig, c.KMin, c.KMax)
	}
	if c.Eps <= 0 || c.MinPts < 1 {
		return fmt.Errorf("%w: eps %g / min_pts %d", ErrInvalidConfig, c.Eps, c.MinPts)
	}
	if _, err := groundtruth.ParseStrategy(c.GroundTruth); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := alignment.ParseDomain(c.Domain); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := metrics.ParseNoisePolicy(c.NoisePolicy); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.SweepConcurrency < 1 {
		return fmt.Errorf("%w: sweep_concurrency must be >= 1", ErrInvalidConfig)
	}
	return nil
}

// ClusterParams builds clustering parameters from the configured defaults.
func (c *Config) ClusterParams() clustering.Params {
	return clustering.Params{
		Strategy:  clustering.Strategy(c.Strategy),
		K:         c.K,
		Seed:      c.Seed,
		NInit:     c.NInit,
		MaxIter:   c.MaxIter,
		Eps:       c.Eps,
		MinPts:    c.MinPts,
		Normalize: c.Normalize,
	}
}

// ExtractOptions builds feature extraction options.
func (c *Config) ExtractOptions() features.ExtractOptions {
	return features.ExtractOptions{Mode: features.HistogramMode(c.HistogramMode), Buckets: c.HistogramBuckets}
}
