package api

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rawblock/shuffle-linkage/internal/pipeline"
	"github.com/rawblock/shuffle-linkage/pkg/models"
)

// ErrSweepRunning is returned when a sweep is requested while one runs.
var ErrSweepRunning = errors.New("a sweep is already in progress")

// ErrRunnerClosed is returned by Start after Shutdown.
var ErrRunnerClosed = errors.New("sweep runner is shut down")

// SweepRunner runs one k sweep at a time in the background, exposing
// progress through atomics and pushing each finished k to the hub.
type SweepRunner struct {
	pipe  *pipeline.Pipeline
	ds    *pipeline.Dataset
	store ReportStore // optional
	hub   *Hub        // optional
	log   *slog.Logger

	// Progress tracking (atomic for safe concurrent reads)
	isRunning atomic.Bool
	total     atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64

	mu       sync.Mutex
	runID    string
	bestK    int
	bestARI  float64
	lastErr  string
	lastDone *models.EvaluationReport

	// ctx is the parent of every sweep; Shutdown cancels it.
	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
}

// SweepProgress is the runner's current state for the API.
type SweepProgress struct {
	RunID     string  `json:"runId,omitempty"`
	IsRunning bool    `json:"isRunning"`
	Total     int64   `json:"total"`
	Completed int64   `json:"completed"`
	Failed    int64   `json:"failed"`
	BestK     int     `json:"bestK,omitempty"`
	BestARI   float64 `json:"bestAri,omitempty"`
	Error     string  `json:"error,omitempty"`
}

func NewSweepRunner(pipe *pipeline.Pipeline, ds *pipeline.Dataset, store ReportStore, hub *Hub, log *slog.Logger) *SweepRunner {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	ctx, stop := context.WithCancel(context.Background())
	return &SweepRunner{
		pipe:  pipe,
		ds:    ds,
		store: store,
		hub:   hub,
		log:   log.With("component", "SweepRunner"),
		ctx:   ctx,
		stop:  stop,
	}
}

// GetProgress returns the current sweep progress (thread-safe)
func (s *SweepRunner) GetProgress() SweepProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SweepProgress{
		RunID:     s.runID,
		IsRunning: s.isRunning.Load(),
		Total:     s.total.Load(),
		Completed: s.completed.Load(),
		Failed:    s.failed.Load(),
		BestK:     s.bestK,
		BestARI:   s.bestARI,
		Error:     s.lastErr,
	}
}

// Last returns the report of the most recent successful sweep.
func (s *SweepRunner) Last() *models.EvaluationReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastDone
}

// Start launches a sweep asynchronously and returns the sweep id. The
// final report keeps the id as its RunID. The sweep ends early when ctx
// is cancelled or the runner is shut down.
func (s *SweepRunner) Start(ctx context.Context, req pipeline.SweepRequest, opts pipeline.Options) (string, error) {
	if s.ctx.Err() != nil {
		return "", ErrRunnerClosed
	}
	if !s.isRunning.CompareAndSwap(false, true) {
		return "", ErrSweepRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	unlink := context.AfterFunc(s.ctx, cancel)

	runID := uuid.NewString()
	s.total.Store(int64(len(req.Ks)))
	s.completed.Store(0)
	s.failed.Store(0)
	s.mu.Lock()
	s.runID, s.bestK, s.bestARI, s.lastErr = runID, 0, 0, ""
	s.mu.Unlock()

	req.OnCandidate = s.onCandidate
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.isRunning.Store(false)
		defer unlink()
		defer cancel()

		s.log.Info("sweep started", "run", runID, "ks", len(req.Ks))
		res, err := s.pipe.Sweep(ctx, s.ds, req, opts)
		if err != nil {
			s.fail(runID, err)
			return
		}

		report := res.Best.Report
		report.RunID = runID
		if s.store != nil {
			if err := s.store.SaveReport(ctx, report); err != nil {
				s.fail(runID, &models.StageError{Stage: pipeline.StagePersist, Err: err})
				return
			}
		}
		s.mu.Lock()
		s.lastDone = report
		s.mu.Unlock()
		s.hub.Publish(EventSweepComplete, report)
		s.log.Info("sweep complete", "run", runID, "bestK", report.Params.K, "ari", report.ARI)
	}()
	return runID, nil
}

// Wait blocks until the running sweep, if any, has finished.
func (s *SweepRunner) Wait() { s.wg.Wait() }

// Shutdown cancels the running sweep, refuses new ones and waits for the
// sweep goroutine to return or ctx to expire. Call it before closing the
// hub the runner publishes to.
func (s *SweepRunner) Shutdown(ctx context.Context) error {
	s.stop()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SweepRunner) onCandidate(c models.SweepCandidate) {
	s.completed.Add(1)
	if !c.Valid() {
		s.failed.Add(1)
	} else {
		s.mu.Lock()
		if s.bestK == 0 || c.ARI > s.bestARI || (c.ARI == s.bestARI && c.K < s.bestK) {
			s.bestK, s.bestARI = c.K, c.ARI
		}
		s.mu.Unlock()
	}
	s.hub.Publish(EventSweepCandidate, c)
}

func (s *SweepRunner) fail(runID string, err error) {
	s.mu.Lock()
	s.lastErr = err.Error()
	s.mu.Unlock()
	s.log.Error("sweep failed", "run", runID, "error", err)
	s.hub.Publish(EventSweepFailed, gin.H{"runId": runID, "error": err.Error()})
}
