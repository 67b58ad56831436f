package main

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/rawblock/shuffle-linkage/internal/clustering"
	"github.com/rawblock/shuffle-linkage/internal/features"
	"github.com/rawblock/shuffle-linkage/internal/logging"
	"github.com/rawblock/shuffle-linkage/internal/pipeline"
	"github.com/rawblock/shuffle-linkage/pkg/models"
)

var errNoPartition = errors.New("a partition is required: pass --partition or --artifact")

func (c *cli) featuresCmd() *cobra.Command {
	var (
		out string
		raw bool
	)
	cmd := &cobra.Command{
		Use:   "features",
		Short: "Build the per-address feature table",
		Long: `Loads the feature table (or extracts it from enriched transactions) and
writes the fixed-layout vectors. With --raw the extracted statistics are
written in the input feature-table format instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if raw {
				if c.cfg.EnrichedPath == "" {
					return errors.New("--raw needs --enriched")
				}
				txs, err := features.LoadEnrichedFile(c.cfg.EnrichedPath)
				if err != nil {
					return err
				}
				stats, err := features.Extract(txs, c.cfg.ExtractOptions())
				if err != nil {
					return err
				}
				return writeOut(out, cmd.OutOrStdout(), func(w io.Writer) error {
					return features.ExportRaw(w, stats)
				})
			}

			in := c.inputs()
			in.RolesPath, in.WalletsPath, in.GroupsPath = "", "", ""
			ds, err := c.newPipeline(nil).LoadDataset(in)
			if err != nil {
				return err
			}
			return writeOut(out, cmd.OutOrStdout(), ds.Store.Export)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	cmd.Flags().BoolVar(&raw, "raw", false, "write extracted statistics instead of vectors")
	return cmd
}

func (c *cli) clusterCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "cluster",
		Short: "Cluster addresses and write the assignment artifact",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := c.inputs()
			in.RolesPath, in.WalletsPath, in.GroupsPath = "", "", ""
			ds, err := c.newPipeline(nil).LoadDataset(in)
			if err != nil {
				return err
			}
			assign, err := clustering.NewEngine(logging.Component("clustering")).Run(ds.Store, c.cfg.ClusterParams())
			if err != nil {
				return &models.StageError{Stage: pipeline.StageCluster, Err: err}
			}
			c.log.Info("clustering finished", "strategy", c.cfg.Strategy,
				"clusters", assign.ClusterCount(), "noise", assign.NoiseCount(), "snapshot", assign.SnapshotID())
			return writeOut(out, cmd.OutOrStdout(), assign.WriteArtifact)
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}

// partitionFlags are shared by evaluate and coverage.
type partitionFlags struct {
	artifact string
}

func (pf *partitionFlags) register(cmd *cobra.Command) {
	cmd.Flags().String("partition", "", "score a {group: [addresses]} partition instead of clustering")
	cmd.Flags().StringVar(&pf.artifact, "artifact", "", "score a cluster artifact written by the cluster command")
}

// load returns the partition named on the command line, or nil.
func (pf *partitionFlags) load(c *cli) (*clustering.Assignments, error) {
	switch {
	case c.cfg.HeuristicPath != "":
		return loadFile(c.cfg.HeuristicPath, clustering.LoadGroups)
	case pf.artifact != "":
		return loadFile(pf.artifact, clustering.LoadArtifact)
	}
	return nil, nil
}

func (c *cli) evaluateCmd() *cobra.Command {
	var (
		out string
		pf  partitionFlags
	)
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Cluster (or load a partition) and score it against ground truth",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			pipe := c.newPipeline(nil)
			ds, err := pipe.LoadDataset(c.inputs())
			if err != nil {
				return err
			}
			assign, err := pf.load(c)
			if err != nil {
				return err
			}

			var report *models.EvaluationReport
			if assign != nil {
				report, err = pipe.EvaluatePartition(ds, assign, c.options())
				if err != nil {
					return err
				}
			} else {
				res, err := pipe.Run(ctx, ds, c.cfg.ClusterParams(), c.options())
				if err != nil {
					return err
				}
				report = res.Report
				if c.cfg.ArtifactDir != "" {
					paths, err := pipeline.WriteArtifacts(c.cfg.ArtifactDir, res)
					if err != nil {
						return err
					}
					c.log.Info("artifacts written", "paths", paths)
				}
			}

			if err := c.persist(ctx, report); err != nil {
				return err
			}
			return writeOut(out, cmd.OutOrStdout(), func(w io.Writer) error {
				return pipeline.WriteReport(w, report)
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "report file (default stdout)")
	pf.register(cmd)
	return cmd
}

func (c *cli) sweepCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run kmeans over a range of k and report the best by ARI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			ks, err := pipeline.KRange(c.cfg.KMin, c.cfg.KMax)
			if err != nil {
				return err
			}
			pipe := c.newPipeline(nil)
			ds, err := pipe.LoadDataset(c.inputs())
			if err != nil {
				return err
			}

			res, err := pipe.Sweep(ctx, ds, pipeline.SweepRequest{
				Base:        c.cfg.ClusterParams(),
				Ks:          ks,
				Concurrency: c.cfg.SweepConcurrency,
				OnCandidate: func(cand models.SweepCandidate) {
					c.log.Debug("candidate scored", "k", cand.K, "ari", cand.ARI, "nmi", cand.NMI, "error", cand.Error)
				},
			}, c.options())
			if err != nil {
				return err
			}
			if c.cfg.ArtifactDir != "" {
				paths, err := pipeline.WriteArtifacts(c.cfg.ArtifactDir, res.Best)
				if err != nil {
					return err
				}
				c.log.Info("artifacts written", "paths", paths)
			}
			if err := c.persist(ctx, res.Best.Report); err != nil {
				return err
			}
			return writeOut(out, cmd.OutOrStdout(), func(w io.Writer) error {
				return pipeline.WriteReport(w, res.Best.Report)
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "report file (default stdout)")
	cmd.Flags().Int("k-min", 0, "smallest k")
	cmd.Flags().Int("k-max", 0, "largest k")
	cmd.Flags().Int("sweep-concurrency", 0, "k values clustered at once")
	return cmd
}

func (c *cli) coverageCmd() *cobra.Command {
	var pf partitionFlags
	cmd := &cobra.Command{
		Use:   "coverage",
		Short: "Report how much of the ground truth a partition covers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			assign, err := pf.load(c)
			if err != nil {
				return err
			}
			if assign == nil {
				return errNoPartition
			}
			pipe := c.newPipeline(nil)
			ds, err := pipe.LoadDataset(c.inputs())
			if err != nil {
				return err
			}
			cov, err := pipe.Coverage(ds, assign.Labels(), c.options())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(cov)
		},
	}
	pf.register(cmd)
	return cmd
}
