package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rawblock/shuffle-linkage/internal/alignment"
	"github.com/rawblock/shuffle-linkage/internal/clustering"
	"github.com/rawblock/shuffle-linkage/internal/db"
	"github.com/rawblock/shuffle-linkage/internal/groundtruth"
	"github.com/rawblock/shuffle-linkage/internal/metrics"
	"github.com/rawblock/shuffle-linkage/internal/pipeline"
	"github.com/rawblock/shuffle-linkage/internal/telemetry"
	"github.com/rawblock/shuffle-linkage/pkg/models"
)

// ReportStore persists evaluation reports. *db.PostgresStore satisfies it.
type ReportStore interface {
	SaveReport(ctx context.Context, r *models.EvaluationReport) error
	GetReport(ctx context.Context, runID string) (*models.EvaluationReport, error)
	ListReports(ctx context.Context, page, limit int) ([]models.EvaluationReport, int, error)
}

// Defaults are applied to every request field the caller leaves out.
type Defaults struct {
	Params      clustering.Params
	Options     pipeline.Options
	KMin, KMax  int
	Concurrency int
}

// RouterConfig collects the server's collaborators. Store, Hub, Metrics,
// Gatherer and Limiter are optional.
type RouterConfig struct {
	Pipeline *pipeline.Pipeline
	Dataset  *pipeline.Dataset
	Defaults Defaults

	Store    ReportStore
	Hub      *Hub
	Sweeps   *SweepRunner // built from the fields above when nil
	Metrics  *telemetry.Metrics
	Gatherer prometheus.Gatherer
	Limiter  *RateLimiter

	AuthToken      string
	AllowedOrigins string // comma separated; empty or "*" allows any origin
	Log            *slog.Logger
}

type APIHandler struct {
	pipe     *pipeline.Pipeline
	ds       *pipeline.Dataset
	defaults Defaults
	store    ReportStore
	hub      *Hub
	sweeps   *SweepRunner
	log      *slog.Logger
}

func SetupRouter(cfg RouterConfig) *gin.Engine {
	log := cfg.Log
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	log = log.With("component", "API")

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(corsMiddleware(cfg.AllowedOrigins))
	r.Use(requestMetrics(cfg.Metrics))
	if cfg.Limiter != nil {
		r.Use(cfg.Limiter.Middleware())
	}

	sweeps := cfg.Sweeps
	if sweeps == nil {
		sweeps = NewSweepRunner(cfg.Pipeline, cfg.Dataset, cfg.Store, cfg.Hub, log)
	}
	handler := &APIHandler{
		pipe:     cfg.Pipeline,
		ds:       cfg.Dataset,
		defaults: cfg.Defaults,
		store:    cfg.Store,
		hub:      cfg.Hub,
		sweeps:   sweeps,
		log:      log,
	}

	api := r.Group("/api/v1")
	{
		api.GET("/health", handler.handleHealth)
		api.GET("/sweep/progress", handler.handleSweepProgress)
		if cfg.Hub != nil {
			api.GET("/stream", cfg.Hub.Subscribe)
		}

		protected := api.Group("")
		protected.Use(AuthMiddleware(cfg.AuthToken, log))
		protected.POST("/evaluate", handler.handleEvaluate)
		protected.POST("/coverage", handler.handleCoverage)
		protected.POST("/sweep", handler.handleStartSweep)
		protected.GET("/reports", handler.handleListReports)
		protected.GET("/reports/:id", handler.handleGetReport)
	}

	if cfg.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}
	return r
}

func corsMiddleware(allowedOrigins string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// requestMetrics counts requests by matched route and status code.
func requestMetrics(m *telemetry.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.RecordRequest(route, c.Writer.Status())
	}
}

// evaluateRequest overrides the configured defaults. Zero values keep the
// default. Groups, when present, replaces clustering with a partition
// computed elsewhere.
type evaluateRequest struct {
	Strategy    string              `json:"strategy"`
	K           int                 `json:"k"`
	Seed        *int64              `json:"seed"`
	Eps         float64             `json:"eps"`
	MinPts      int                 `json:"minPts"`
	Normalize   *bool               `json:"normalize"`
	GroundTruth string              `json:"groundTruth"`
	Domain      string              `json:"domain"`
	NoisePolicy string              `json:"noisePolicy"`
	Groups      map[string][]string `json:"groups"`

	// Sweep only
	KMin        int `json:"kMin"`
	KMax        int `json:"kMax"`
	Concurrency int `json:"concurrency"`
}

type badRequest struct{ err error }

func (e badRequest) Error() string { return e.err.Error() }
func (e badRequest) Unwrap() error { return e.err }

func (req evaluateRequest) params(d Defaults) (clustering.Params, error) {
	p := d.Params
	if req.Strategy != "" {
		s, err := clustering.ParseStrategy(req.Strategy)
		if err != nil {
			return p, badRequest{err}
		}
		p.Strategy = s
	}
	if req.K != 0 {
		p.K = req.K
	}
	if req.Seed != nil {
		p.Seed = *req.Seed
	}
	if req.Eps != 0 {
		p.Eps = req.Eps
	}
	if req.MinPts != 0 {
		p.MinPts = req.MinPts
	}
	if req.Normalize != nil {
		p.Normalize = *req.Normalize
	}
	return p, nil
}

func (req evaluateRequest) options(d Defaults) (pipeline.Options, error) {
	o := d.Options
	if req.GroundTruth != "" {
		s, err := groundtruth.ParseStrategy(req.GroundTruth)
		if err != nil {
			return o, badRequest{err}
		}
		o.GroundTruth = s
	}
	if req.Domain != "" {
		dom, err := alignment.ParseDomain(req.Domain)
		if err != nil {
			return o, badRequest{err}
		}
		o.Domain = dom
	}
	if req.NoisePolicy != "" {
		np, err := metrics.ParseNoisePolicy(req.NoisePolicy)
		if err != nil {
			return o, badRequest{err}
		}
		o.NoisePolicy = np
	}
	return o, nil
}

// bindOptional decodes a JSON body if one was sent.
func bindOptional(c *gin.Context, req *evaluateRequest) error {
	if err := c.ShouldBindJSON(req); err != nil && !errors.Is(err, io.EOF) {
		return badRequest{err}
	}
	return nil
}

// POST /api/v1/evaluate
func (h *APIHandler) handleEvaluate(c *gin.Context) {
	var req evaluateRequest
	if err := bindOptional(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	opts, err := req.options(h.defaults)
	if err != nil {
		h.fail(c, err)
		return
	}

	var report *models.EvaluationReport
	if req.Groups != nil {
		assign, err := clustering.FromGroups(req.Groups)
		if err != nil {
			h.fail(c, badRequest{err})
			return
		}
		report, err = h.pipe.EvaluatePartition(h.ds, assign, opts)
		if err != nil {
			h.fail(c, err)
			return
		}
	} else {
		params, err := req.params(h.defaults)
		if err != nil {
			h.fail(c, err)
			return
		}
		res, err := h.pipe.Run(c.Request.Context(), h.ds, params, opts)
		if err != nil {
			h.fail(c, err)
			return
		}
		report = res.Report
	}

	if h.store != nil {
		if err := h.store.SaveReport(c.Request.Context(), report); err != nil {
			// The report is still returned; persistence is best effort here.
			h.log.Error("failed to persist report", "run", report.RunID, "error", err)
		}
	}
	h.hub.Publish(EventEvaluation, report)
	c.JSON(http.StatusOK, report)
}

// POST /api/v1/coverage { "groups": {...} }
func (h *APIHandler) handleCoverage(c *gin.Context) {
	var req evaluateRequest
	if err := bindOptional(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	if req.Groups == nil {
		h.fail(c, badRequest{errors.New("groups is required")})
		return
	}
	opts, err := req.options(h.defaults)
	if err != nil {
		h.fail(c, err)
		return
	}
	assign, err := clustering.FromGroups(req.Groups)
	if err != nil {
		h.fail(c, badRequest{err})
		return
	}
	cov, err := h.pipe.Coverage(h.ds, assign.Labels(), opts)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cov)
}

// POST /api/v1/sweep { "kMin": 2, "kMax": 20 }
func (h *APIHandler) handleStartSweep(c *gin.Context) {
	var req evaluateRequest
	if err := bindOptional(c, &req); err != nil {
		h.fail(c, err)
		return
	}
	params, err := req.params(h.defaults)
	if err != nil {
		h.fail(c, err)
		return
	}
	opts, err := req.options(h.defaults)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := opts.Validate(); err != nil {
		h.fail(c, badRequest{err})
		return
	}

	lo, hi := h.defaults.KMin, h.defaults.KMax
	if req.KMin != 0 {
		lo = req.KMin
	}
	if req.KMax != 0 {
		hi = req.KMax
	}
	ks, err := pipeline.KRange(lo, hi)
	if err != nil {
		h.fail(c, badRequest{err})
		return
	}
	conc := h.defaults.Concurrency
	if req.Concurrency > 0 {
		conc = req.Concurrency
	}

	// The sweep outlives the request.
	runID, err := h.sweeps.Start(context.WithoutCancel(c.Request.Context()),
		pipeline.SweepRequest{Base: params, Ks: ks, Concurrency: conc}, opts)
	if errors.Is(err, ErrSweepRunning) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "progress": h.sweeps.GetProgress()})
		return
	}
	if errors.Is(err, ErrRunnerClosed) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status": "sweep_started",
		"runId":  runID,
		"kMin":   lo,
		"kMax":   hi,
	})
}

// GET /api/v1/sweep/progress
func (h *APIHandler) handleSweepProgress(c *gin.Context) {
	c.JSON(http.StatusOK, h.sweeps.GetProgress())
}

// GET /api/v1/reports?page=1&limit=50
func (h *APIHandler) handleListReports(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Database not connected"})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	reports, totalCount, err := h.store.ListReports(c.Request.Context(), page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch reports", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":       reports,
		"totalCount": totalCount,
		"page":       page,
		"limit":      limit,
	})
}

// GET /api/v1/reports/:id
func (h *APIHandler) handleGetReport(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Database not connected"})
		return
	}
	report, err := h.store.GetReport(c.Request.Context(), c.Param("id"))
	if errors.Is(err, db.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Report not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch report", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

// handleHealth returns service status and which ground truths are loaded.
func (h *APIHandler) handleHealth(c *gin.Context) {
	strategies := gin.H{}
	addresses := 0
	snapshot := ""
	if h.ds != nil && h.ds.Resolver != nil {
		for _, s := range []groundtruth.Strategy{groundtruth.StrategyRole, groundtruth.StrategyWallet, groundtruth.StrategyExplicit} {
			strategies[string(s)] = h.ds.Resolver.Has(s)
		}
	}
	if h.ds != nil && h.ds.Store != nil {
		addresses = h.ds.Store.Len()
		snapshot = h.ds.Store.Fingerprint().String()
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "operational",
		"snapshotId":   snapshot,
		"addresses":    addresses,
		"groundTruth":  strategies,
		"dbConnected":  h.store != nil,
		"sweepRunning": h.sweeps.GetProgress().IsRunning,
	})
}

// fail maps pipeline errors to HTTP status codes.
func (h *APIHandler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	body := gin.H{"error": err.Error()}
	var stageErr *models.StageError
	if errors.As(err, &stageErr) {
		body["stage"] = stageErr.Stage
	}
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, body)
}

func statusFor(err error) int {
	var (
		bad         badRequest
		convergence *models.ConvergenceError
		schema      *models.SchemaError
	)
	switch {
	case errors.As(err, &bad),
		errors.Is(err, groundtruth.ErrMissingInput),
		errors.Is(err, alignment.ErrDomainRequired),
		errors.Is(err, metrics.ErrNoisePolicyRequired):
		return http.StatusBadRequest
	case models.IsInsufficientLabels(err), errors.As(err, &convergence):
		return http.StatusUnprocessableEntity
	case errors.As(err, &schema):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
