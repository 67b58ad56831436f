package models

import "time"

// GroupCoverage is the per-group coverage line of a report
type GroupCoverage struct {
	Group     Group `json:"group"`
	Covered   int   `json:"covered"`
	Total     int   `json:"total"`
	Undefined bool  `json:"undefined"` // Total == 0: coverage is 0/0, not a number
}

// CoverageReport holds the overall and per-group coverage of ground truth
// by a predicted partition.
type CoverageReport struct {
	Overall     float64         `json:"overall"`
	Covered     int             `json:"covered"`
	Total       int             `json:"total"`
	Undefined   bool            `json:"undefined"`
	NoisePolicy string          `json:"noisePolicy"`
	PerGroup    []GroupCoverage `json:"perGroup"`
}

// SweepCandidate is the outcome of evaluating one k in a parameter sweep.
type SweepCandidate struct {
	K        int     `json:"k"`
	ARI      float64 `json:"ari"`
	NMI      float64 `json:"nmi"`
	Clusters int     `json:"clusters"`
	Error    string  `json:"error,omitempty"` // Non-empty when this k produced no score
}

// Valid reports whether the candidate carries a usable score.
func (c SweepCandidate) Valid() bool { return c.Error == "" }

// ClusterParams records the clustering configuration a report was produced with.
type ClusterParams struct {
	Strategy  string  `json:"strategy"` // "kmeans" / "dbscan" / "external"
	K         int     `json:"k,omitempty"`
	Seed      int64   `json:"seed"`
	Eps       float64 `json:"eps,omitempty"`
	MinPts    int     `json:"minPts,omitempty"`
	Normalize bool    `json:"normalize"`
}

// EvaluationReport is the externally meaningful output of one pipeline run.
// It is derived data and never the source of truth.
type EvaluationReport struct {
	RunID       string           `json:"runId"`
	SnapshotID  string           `json:"snapshotId"`  // FeatureStore fingerprint
	GroundTruth string           `json:"groundTruth"` // Resolution strategy used
	Domain      string           `json:"domain"`      // "intersection" / "union"
	Params      ClusterParams    `json:"params"`
	Aligned     int              `json:"aligned"`  // Length of the label vectors
	Clusters    int              `json:"clusters"` // Predicted clusters, noise excluded
	Noise       int              `json:"noise"`
	ARI         float64          `json:"ari"`
	NMI         float64          `json:"nmi"`
	VI          float64          `json:"vi"`
	Coverage    CoverageReport   `json:"coverage"`
	Conflicts   []ConflictError  `json:"conflicts,omitempty"`
	Candidates  []SweepCandidate `json:"candidates,omitempty"` // Present for sweeps
	CreatedAt   time.Time        `json:"createdAt"`
}
