package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rawblock/shuffle-linkage/pkg/models"
)

// schemaSQL is compiled into the binary at build time so schema init works
// from any working directory.
//
//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned when a run id has no stored report.
var ErrNotFound = errors.New("report not found")

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// PostgresStore persists finished evaluation reports. Reports are derived
// data: a lost row is recomputed from the inputs, never repaired.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// Connect initializes the connection pool to PostgreSQL using pgx
func Connect(ctx context.Context, connStr string, log *slog.Logger) (*PostgresStore, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping failed: %w", err)
	}

	log = log.With("component", "ReportStore")
	log.Info("connected to PostgreSQL")
	return &PostgresStore{pool: pool, log: log}, nil
}

// Close gracefully closes the connection pool
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema executes the embedded schema.sql DDL statements.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema migrations: %w", err)
	}
	s.log.Info("report schema initialized")
	return nil
}

// Ping checks the pool is alive.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// SaveReport stores a report and its per-group, per-k and conflict rows in
// one transaction. Saving the same run id twice replaces the earlier rows.
func (s *PostgresStore) SaveReport(ctx context.Context, r *models.EvaluationReport) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Children cascade.
	if _, err := tx.Exec(ctx, `DELETE FROM evaluation_runs WHERE run_id = $1`, r.RunID); err != nil {
		return fmt.Errorf("failed to clear previous report: %w", err)
	}

	insertRunSQL := `
		INSERT INTO evaluation_runs
			(run_id, snapshot_id, ground_truth, domain, strategy, k, seed, eps, min_pts, normalize,
			 aligned, clusters, noise, ari, nmi, vi,
			 coverage_overall, coverage_covered, coverage_total, coverage_undefined, noise_policy, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22);
	`
	_, err = tx.Exec(ctx, insertRunSQL,
		r.RunID, r.SnapshotID, r.GroundTruth, r.Domain,
		r.Params.Strategy, r.Params.K, r.Params.Seed, r.Params.Eps, r.Params.MinPts, r.Params.Normalize,
		r.Aligned, r.Clusters, r.Noise, r.ARI, r.NMI, r.VI,
		r.Coverage.Overall, r.Coverage.Covered, r.Coverage.Total, r.Coverage.Undefined, r.Coverage.NoisePolicy,
		r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert evaluation_runs: %w", err)
	}

	batch := buildChildBatch(r)
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert report rows: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}
	s.log.Debug("report saved", "run", r.RunID, "groups", len(r.Coverage.PerGroup),
		"candidates", len(r.Candidates), "conflicts", len(r.Conflicts))
	return nil
}

const (
	insertCandidateSQL = `INSERT INTO sweep_candidates (run_id, k, ari, nmi, clusters, error) VALUES ($1, $2, $3, $4, $5, $6)`
	insertCoverageSQL  = `INSERT INTO group_coverage (run_id, position, group_kind, group_value, covered, total, undefined) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	insertConflictSQL  = `INSERT INTO ground_truth_conflicts (run_id, position, address, first_value, second_value, source) VALUES ($1, $2, $3, $4, $5, $6)`
)

func buildChildBatch(r *models.EvaluationReport) *pgx.Batch {
	batch := &pgx.Batch{}
	for _, c := range r.Candidates {
		batch.Queue(insertCandidateSQL, r.RunID, c.K, c.ARI, c.NMI, c.Clusters, c.Error)
	}
	for i, g := range r.Coverage.PerGroup {
		batch.Queue(insertCoverageSQL, r.RunID, i, string(g.Group.Kind), g.Group.Value, g.Covered, g.Total, g.Undefined)
	}
	for i, c := range r.Conflicts {
		batch.Queue(insertConflictSQL, r.RunID, i, c.Address, c.First, c.Second, c.Source)
	}
	return batch
}

const selectRunColumns = `
	run_id, snapshot_id, ground_truth, domain, strategy, k, seed, eps, min_pts, normalize,
	aligned, clusters, noise, ari, nmi, vi,
	coverage_overall, coverage_covered, coverage_total, coverage_undefined, noise_policy, created_at`

func scanRun(row pgx.Row) (*models.EvaluationReport, error) {
	var r models.EvaluationReport
	err := row.Scan(
		&r.RunID, &r.SnapshotID, &r.GroundTruth, &r.Domain,
		&r.Params.Strategy, &r.Params.K, &r.Params.Seed, &r.Params.Eps, &r.Params.MinPts, &r.Params.Normalize,
		&r.Aligned, &r.Clusters, &r.Noise, &r.ARI, &r.NMI, &r.VI,
		&r.Coverage.Overall, &r.Coverage.Covered, &r.Coverage.Total, &r.Coverage.Undefined, &r.Coverage.NoisePolicy,
		&r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetReport loads a full report with its child rows.
func (s *PostgresStore) GetReport(ctx context.Context, runID string) (*models.EvaluationReport, error) {
	r, err := scanRun(s.pool.QueryRow(ctx, `SELECT `+selectRunColumns+` FROM evaluation_runs WHERE run_id = $1`, runID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `SELECT k, ari, nmi, clusters, error FROM sweep_candidates WHERE run_id = $1 ORDER BY k`, runID)
	if err != nil {
		return nil, err
	}
	r.Candidates, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.SweepCandidate, error) {
		var c models.SweepCandidate
		err := row.Scan(&c.K, &c.ARI, &c.NMI, &c.Clusters, &c.Error)
		return c, err
	})
	if err != nil {
		return nil, err
	}

	rows, err = s.pool.Query(ctx, `SELECT group_kind, group_value, covered, total, undefined FROM group_coverage WHERE run_id = $1 ORDER BY position`, runID)
	if err != nil {
		return nil, err
	}
	r.Coverage.PerGroup, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.GroupCoverage, error) {
		var g models.GroupCoverage
		var kind string
		err := row.Scan(&kind, &g.Group.Value, &g.Covered, &g.Total, &g.Undefined)
		g.Group.Kind = models.GroupKind(kind)
		return g, err
	})
	if err != nil {
		return nil, err
	}

	rows, err = s.pool.Query(ctx, `SELECT address, first_value, second_value, source FROM ground_truth_conflicts WHERE run_id = $1 ORDER BY position`, runID)
	if err != nil {
		return nil, err
	}
	r.Conflicts, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.ConflictError, error) {
		var c models.ConflictError
		err := row.Scan(&c.Address, &c.First, &c.Second, &c.Source)
		return c, err
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListReports returns one page of report headers (no child rows), newest
// first, plus the total number of stored reports.
func (s *PostgresStore) ListReports(ctx context.Context, page, limit int) ([]models.EvaluationReport, int, error) {
	limit, offset := pageBounds(page, limit)

	var totalCount int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM evaluation_runs`).Scan(&totalCount); err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+selectRunColumns+` FROM evaluation_runs ORDER BY created_at DESC, run_id LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	reports := make([]models.EvaluationReport, 0, limit)
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		reports = append(reports, *r)
	}
	if rows.Err() != nil {
		return nil, 0, rows.Err()
	}
	return reports, totalCount, nil
}

func pageBounds(page, limit int) (int, int) {
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	if page < 1 {
		page = 1
	}
	return limit, (page - 1) * limit
}
