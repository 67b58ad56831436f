package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/rawblock/shuffle-linkage/internal/api"
	"github.com/rawblock/shuffle-linkage/internal/db"
	"github.com/rawblock/shuffle-linkage/internal/logging"
	"github.com/rawblock/shuffle-linkage/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

func (c *cli) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve evaluations, sweeps and stored reports over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return c.serve(ctx)
		},
	}
	cmd.Flags().String("addr", "", "listen address (default :8090)")
	return cmd
}

func (c *cli) serve(ctx context.Context) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := telemetry.NewMetrics(reg)

	pipe := c.newPipeline(m)
	ds, err := pipe.LoadDataset(c.inputs())
	if err != nil {
		return err
	}

	// Persistence is optional: without a database the service still
	// evaluates, it just cannot list past reports.
	var store api.ReportStore
	if c.cfg.DatabaseURL != "" {
		pg, err := db.Connect(ctx, c.cfg.DatabaseURL, logging.Component("db"))
		if err != nil {
			c.log.Warn("failed to connect to PostgreSQL, continuing without persisting reports", "error", err)
		} else {
			defer pg.Close()
			if err := pg.InitSchema(ctx); err != nil {
				c.log.Warn("DB schema init failed", "error", err)
			}
			store = pg
		}
	}

	hub := api.NewHub(logging.Component("ws"))
	go hub.Run()
	defer hub.Close()

	// Deferred after the hub so the sweep stops publishing before the hub
	// closes.
	sweeps := api.NewSweepRunner(pipe, ds, store, hub, logging.Component("sweep"))
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := sweeps.Shutdown(stopCtx); err != nil {
			c.log.Warn("sweep did not stop in time", "error", err)
		}
	}()

	var limiter *api.RateLimiter
	if c.cfg.RateLimit > 0 {
		limiter = api.NewRateLimiter(ctx, c.cfg.RateLimit, c.cfg.RateBurst)
	}

	gin.SetMode(gin.ReleaseMode)
	router := api.SetupRouter(api.RouterConfig{
		Pipeline: pipe,
		Dataset:  ds,
		Defaults: api.Defaults{
			Params:      c.cfg.ClusterParams(),
			Options:     c.options(),
			KMin:        c.cfg.KMin,
			KMax:        c.cfg.KMax,
			Concurrency: c.cfg.SweepConcurrency,
		},
		Store:          store,
		Hub:            hub,
		Sweeps:         sweeps,
		Metrics:        m,
		Gatherer:       reg,
		Limiter:        limiter,
		AuthToken:      c.cfg.AuthToken,
		AllowedOrigins: os.Getenv("ALLOWED_ORIGINS"),
		Log:            logging.Component("api"),
	})

	srv := &http.Server{
		Addr:              c.cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		c.log.Info("linkage evaluator listening", "addr", c.cfg.Addr, "addresses", ds.Store.Len())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	c.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
