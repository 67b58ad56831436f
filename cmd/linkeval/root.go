package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rawblock/shuffle-linkage/internal/alignment"
	"github.com/rawblock/shuffle-linkage/internal/config"
	"github.com/rawblock/shuffle-linkage/internal/db"
	"github.com/rawblock/shuffle-linkage/internal/groundtruth"
	"github.com/rawblock/shuffle-linkage/internal/logging"
	"github.com/rawblock/shuffle-linkage/internal/metrics"
	"github.com/rawblock/shuffle-linkage/internal/pipeline"
	"github.com/rawblock/shuffle-linkage/internal/telemetry"
	"github.com/rawblock/shuffle-linkage/pkg/models"
)

// cli carries state shared by every subcommand once the config is loaded.
type cli struct {
	cfgPath string
	cfg     *config.Config
	log     *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "linkeval",
		Short: "Evaluate address-linkage clustering against shuffling ground truth",
		Long: `linkeval builds per-address behavioral features, clusters them and
scores the clusters against role, wallet or explicit ground truth.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.cfgPath, "config", "", "YAML config file (or LINKEVAL_CONFIG)")
	pf.String("log-level", "", "debug, info, warn or error")
	pf.String("features", "", "per-address feature table (addressFeatures.json)")
	pf.String("enriched", "", "enriched transactions, used when --features is empty")
	pf.String("histogram-mode", "", "activity histogram: duration or hour_of_day")
	pf.String("roles", "", "uid -> role JSONL")
	pf.String("wallets", "", "wallet table with shuffled accounts")
	pf.String("groups", "", "explicit role groups")
	pf.String("ground-truth", "", "role, wallet or explicit")
	pf.String("domain", "", "alignment domain: intersection or union")
	pf.String("noise-policy", "", "coverage noise policy: noise_counts or noise_excluded")
	pf.String("strategy", "", "clustering strategy: kmeans or dbscan")
	pf.Int("k", 0, "clusters for kmeans")
	pf.Int64("seed", 0, "random seed for kmeans")
	pf.Float64("eps", 0, "dbscan neighborhood radius")
	pf.Int("min-pts", 0, "dbscan core point threshold")
	pf.Bool("normalize", false, "z-score features before clustering")
	pf.String("artifact-dir", "", "write cluster and report artifacts here")
	pf.String("database-url", "", "persist reports to PostgreSQL")

	root.AddCommand(
		c.featuresCmd(),
		c.clusterCmd(),
		c.evaluateCmd(),
		c.sweepCmd(),
		c.coverageCmd(),
		c.serveCmd(),
	)
	return root
}

func (c *cli) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(cmd.Context(), c.cfgPath)
	if err != nil {
		return err
	}
	if err := applyFlags(cmd, cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := logging.Configure(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogText); err != nil {
		return err
	}
	c.cfg = cfg
	c.log = logging.Component("cli")
	return nil
}

// applyFlags copies every flag set on the command line over the loaded
// config, so flags win over env and file.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	fs := cmd.Flags()
	strs := map[string]*string{
		"log-level":      &cfg.LogLevel,
		"features":       &cfg.FeaturesPath,
		"enriched":       &cfg.EnrichedPath,
		"histogram-mode": &cfg.HistogramMode,
		"roles":          &cfg.RolesPath,
		"wallets":        &cfg.WalletsPath,
		"groups":         &cfg.GroupsPath,
		"partition":      &cfg.HeuristicPath,
		"ground-truth":   &cfg.GroundTruth,
		"domain":         &cfg.Domain,
		"noise-policy":   &cfg.NoisePolicy,
		"strategy":       &cfg.Strategy,
		"artifact-dir":   &cfg.ArtifactDir,
		"database-url":   &cfg.DatabaseURL,
		"addr":           &cfg.Addr,
	}
	ints := map[string]*int{
		"k":                 &cfg.K,
		"k-min":             &cfg.KMin,
		"k-max":             &cfg.KMax,
		"min-pts":           &cfg.MinPts,
		"sweep-concurrency": &cfg.SweepConcurrency,
	}

	var err error
	for name, dst := range strs {
		if fs.Changed(name) {
			if *dst, err = fs.GetString(name); err != nil {
				return err
			}
		}
	}
	for name, dst := range ints {
		if fs.Changed(name) {
			if *dst, err = fs.GetInt(name); err != nil {
				return err
			}
		}
	}
	if fs.Changed("seed") {
		if cfg.Seed, err = fs.GetInt64("seed"); err != nil {
			return err
		}
	}
	if fs.Changed("eps") {
		if cfg.Eps, err = fs.GetFloat64("eps"); err != nil {
			return err
		}
	}
	if fs.Changed("normalize") {
		if cfg.Normalize, err = fs.GetBool("normalize"); err != nil {
			return err
		}
	}
	return nil
}

func (c *cli) inputs() pipeline.Inputs {
	return pipeline.Inputs{
		FeaturesPath: c.cfg.FeaturesPath,
		EnrichedPath: c.cfg.EnrichedPath,
		Extract:      c.cfg.ExtractOptions(),
		RolesPath:    c.cfg.RolesPath,
		WalletsPath:  c.cfg.WalletsPath,
		GroupsPath:   c.cfg.GroupsPath,
	}
}

// options converts the evaluation choices. Validate has already parsed them.
func (c *cli) options() pipeline.Options {
	domain, _ := alignment.ParseDomain(c.cfg.Domain)
	return pipeline.Options{
		GroundTruth: groundtruth.Strategy(c.cfg.GroundTruth),
		Domain:      domain,
		NoisePolicy: metrics.NoisePolicy(c.cfg.NoisePolicy),
	}
}

// newPipeline builds a pipeline for a one-shot command. Metrics are only
// collected by serve.
func (c *cli) newPipeline(m *telemetry.Metrics) *pipeline.Pipeline {
	return pipeline.New(logging.Component("pipeline"), m)
}

// persist saves report when a database is configured.
func (c *cli) persist(ctx context.Context, report *models.EvaluationReport) error {
	if c.cfg.DatabaseURL == "" {
		return nil
	}
	store, err := db.Connect(ctx, c.cfg.DatabaseURL, logging.Component("db"))
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.InitSchema(ctx); err != nil {
		return err
	}
	if err := store.SaveReport(ctx, report); err != nil {
		return &models.StageError{Stage: pipeline.StagePersist, Err: err}
	}
	c.log.Info("report persisted", "run", report.RunID)
	return nil
}

// writeOut runs write against the file at path, or against std when path
// is empty.
func writeOut(path string, std io.Writer, write func(io.Writer) error) error {
	if path == "" {
		return write(std)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// loadFile opens path and decodes it with load.
func loadFile[T any](path string, load func(io.Reader) (T, error)) (T, error) {
	f, err := os.Open(path)
	if err != nil {
		var zero T
		return zero, err
	}
	defer f.Close()
	return load(f)
}
