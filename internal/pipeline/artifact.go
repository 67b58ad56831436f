package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rawblock/shuffle-linkage/pkg/models"
)

// WriteArtifacts stores the [{address, cluster, vector}] artifact and the
// report of r under dir as cluster_<run>.json and report_<run>.json. It
// returns the paths written.
func WriteArtifacts(dir string, r *Result) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	clusterPath := filepath.Join(dir, "cluster_"+r.Report.RunID+".json")
	if err := writeFile(clusterPath, r.Assignments.WriteArtifact); err != nil {
		return nil, err
	}
	reportPath := filepath.Join(dir, "report_"+r.Report.RunID+".json")
	if err := writeFile(reportPath, func(w io.Writer) error { return WriteReport(w, r.Report) }); err != nil {
		return nil, err
	}
	return []string{clusterPath, reportPath}, nil
}

// WriteReport encodes a report as indented JSON.
func WriteReport(w io.Writer, report *models.EvaluationReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func writeFile(path string, write func(io.Writer) error) error {
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
