package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rawblock/shuffle-linkage/internal/config"
	"github.com/rawblock/shuffle-linkage/pkg/models"
)

type fixture struct {
	dir, features, roles, wallets string
}

func writeFixture(t *testing.T) fixture {
	t.Helper()
	t.Setenv("LINKEVAL_CONFIG", "")
	dir := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
		return path
	}

	var feats []string
	for i, d := range []int{0, 1, 2, 100, 101, 102} {
		prefix := "a"
		if i >= 3 {
			prefix = "b"
		}
		feats = append(feats, fmt.Sprintf(`"0x%s%d": {"n_tx": 1, "duration": %d, "mean_time_gap": 0, "std_time_gap": 0, "activity_vector": [1]}`, prefix, i%3+1, d))
	}

	return fixture{
		dir:      dir,
		features: write("addressFeatures.json", "{"+strings.Join(feats, ",")+"}"),
		roles:    write("trace_features.jsonl", "{\"uid\":1,\"role\":\"attacker\"}\n{\"uid\":2,\"role\":\"victim\"}\n"),
		wallets: write("wallets.json", `[
			{"index": 1, "smartAccountAddress": "0xa1", "accountShuffling": [{"smartAccountAddress": "0xa2"}, {"smartAccountAddress": "0xA3"}]},
			{"index": 2, "smartAccountAddress": "0xb1", "accountShuffling": [{"smartAccountAddress": "0xb2"}, {"smartAccountAddress": "0xb3"}]}
		]`),
	}
}

func (fx fixture) args(cmd string, extra ...string) []string {
	return append([]string{cmd, "--features", fx.features, "--roles", fx.roles, "--wallets", fx.wallets}, extra...)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestEvaluateCommand(t *testing.T) {
	fx := writeFixture(t)

	out, err := execute(t, fx.args("evaluate", "--k", "2", "--artifact-dir", filepath.Join(fx.dir, "artifacts"))...)
	require.NoError(t, err)

	var report models.EvaluationReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.InDelta(t, 1.0, report.ARI, 1e-9)
	assert.Equal(t, 2, report.Params.K)
	assert.Equal(t, "role", report.GroundTruth)

	entries, err := os.ReadDir(filepath.Join(fx.dir, "artifacts"))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestEvaluateCommand_Partition(t *testing.T) {
	fx := writeFixture(t)
	partition := filepath.Join(fx.dir, "heuristic.json")
	require.NoError(t, os.WriteFile(partition, []byte(`{"s1": ["0xa1", "0xa2"], "s2": ["0xa3", "0xb1", "0xb2", "0xb3"]}`), 0o600))

	out, err := execute(t, fx.args("evaluate", "--partition", partition, "--ground-truth", "wallet")...)
	require.NoError(t, err)

	var report models.EvaluationReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "external", report.Params.Strategy)
	assert.Equal(t, "wallet", report.GroundTruth)
	assert.Less(t, report.ARI, 1.0)
}

func TestClusterThenCoverage(t *testing.T) {
	fx := writeFixture(t)
	artifact := filepath.Join(fx.dir, "cluster.json")

	_, err := execute(t, "cluster", "--features", fx.features, "--k", "2", "--out", artifact)
	require.NoError(t, err)

	var records []models.ClusterRecord
	data, err := os.ReadFile(artifact)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &records))
	assert.Len(t, records, 6)

	out, err := execute(t, fx.args("coverage", "--artifact", artifact, "--noise-policy", "noise_excluded")...)
	require.NoError(t, err)
	var cov models.CoverageReport
	require.NoError(t, json.Unmarshal([]byte(out), &cov))
	assert.Equal(t, 6, cov.Covered)
	assert.Equal(t, "noise_excluded", cov.NoisePolicy)
}

func TestCoverageCommand_NeedsPartition(t *testing.T) {
	fx := writeFixture(t)

	_, err := execute(t, fx.args("coverage")...)
	assert.ErrorIs(t, err, errNoPartition)
}

func TestSweepCommand(t *testing.T) {
	fx := writeFixture(t)

	out, err := execute(t, fx.args("sweep", "--k-min", "2", "--k-max", "4", "--sweep-concurrency", "2")...)
	require.NoError(t, err)

	var report models.EvaluationReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 2, report.Params.K)
	require.Len(t, report.Candidates, 3)
	assert.Equal(t, []int{2, 3, 4}, []int{report.Candidates[0].K, report.Candidates[1].K, report.Candidates[2].K})
}

func TestFeaturesCommand(t *testing.T) {
	fx := writeFixture(t)

	out, err := execute(t, "features", "--features", fx.features)
	require.NoError(t, err)
	assert.Contains(t, out, "0xa1")
}

func TestInvalidFlagValueRejected(t *testing.T) {
	fx := writeFixture(t)

	_, err := execute(t, fx.args("evaluate", "--domain", "everything")...)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestRun_ReportsFailureOnStderr(t *testing.T) {
	fx := writeFixture(t)
	broken := filepath.Join(fx.dir, "broken.json")
	require.NoError(t, os.WriteFile(broken, []byte(
		`{"0xa1": {"n_tx": 1, "duration": 0, "std_time_gap": 0, "activity_vector": [1]}}`), 0o600))

	var stdout, stderr bytes.Buffer
	code := run([]string{"evaluate", "--features", broken, "--roles", fx.roles, "--wallets", fx.wallets}, &stdout, &stderr)

	assert.Equal(t, 1, code)
	msg := stderr.String()
	assert.Contains(t, msg, "linkeval:")
	assert.Contains(t, msg, "stage load_features")
	assert.Contains(t, msg, "0xa1")
	assert.Contains(t, msg, `"mean_time_gap"`)
	assert.Empty(t, stdout.String())
}

func TestRun_Success(t *testing.T) {
	fx := writeFixture(t)

	var stdout, stderr bytes.Buffer
	code := run(fx.args("features"), &stdout, &stderr)

	assert.Equal(t, 0, code)
	assert.NotEmpty(t, stdout.String())
}
