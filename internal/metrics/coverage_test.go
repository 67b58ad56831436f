package metrics

import (
	"errors"
	"math"
	"testing"

	"github.com/rawblock/shuffle-linkage/pkg/models"
)

func TestCoverage_PartialGroup(t *testing.T) {
	truth := []models.GroupMembers{
		{Group: models.RoleGroup("groupA"), Addresses: []string{"x", "y", "z"}},
	}
	pred := map[string]int{"x": 0, "y": 1}

	got, err := Coverage(pred, truth, NoiseCounts)
	if err != nil {
		t.Fatalf("Coverage: %v", err)
	}

	if math.Abs(got.Overall-2.0/3.0) > 1e-12 {
		t.Errorf("Overall = %f, want 2/3", got.Overall)
	}
	if len(got.PerGroup) != 1 {
		t.Fatalf("PerGroup len = %d, want 1", len(got.PerGroup))
	}
	line := got.PerGroup[0]
	if line.Group.Value != "groupA" || line.Covered != 2 || line.Total != 3 {
		t.Errorf("PerGroup[0] = %+v, want (groupA, 2, 3)", line)
	}
}

func TestCoverage_NoisePolicy(t *testing.T) {
	truth := []models.GroupMembers{
		{Group: models.RoleGroup("a"), Addresses: []string{"0x01", "0x02"}},
	}
	pred := map[string]int{"0x01": 0, "0x02": -1}

	tests := []struct {
		policy  NoisePolicy
		covered int
	}{
		{NoiseCounts, 2},
		{NoiseExcluded, 1},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			got, err := Coverage(pred, truth, tt.policy)
			if err != nil {
				t.Fatalf("Coverage: %v", err)
			}
			if got.Covered != tt.covered {
				t.Errorf("Covered = %d, want %d", got.Covered, tt.covered)
			}
			if got.NoisePolicy != string(tt.policy) {
				t.Errorf("NoisePolicy = %q", got.NoisePolicy)
			}
		})
	}
}

func TestCoverage_EmptyGroupIsUndefined(t *testing.T) {
	truth := []models.GroupMembers{
		{Group: models.RoleGroup("a"), Addresses: []string{"0x01"}},
		{Group: models.RoleGroup("empty")},
	}

	got, err := Coverage(map[string]int{"0x01": 3}, truth, NoiseExcluded)
	if err != nil {
		t.Fatalf("Coverage: %v", err)
	}
	if got.PerGroup[0].Undefined || !got.PerGroup[1].Undefined {
		t.Errorf("Undefined flags = %v/%v", got.PerGroup[0].Undefined, got.PerGroup[1].Undefined)
	}
	if got.PerGroup[1].Covered != 0 || got.PerGroup[1].Total != 0 {
		t.Errorf("empty group = %+v, want 0/0", got.PerGroup[1])
	}
	if got.Overall != 1 {
		t.Errorf("Overall = %f, want 1", got.Overall)
	}
}

func TestCoverage_NoGroundTruth(t *testing.T) {
	got, err := Coverage(map[string]int{"0x01": 0}, nil, NoiseCounts)
	if err != nil {
		t.Fatalf("Coverage: %v", err)
	}
	if !got.Undefined || got.Overall != 0 || math.IsNaN(got.Overall) {
		t.Errorf("got %+v, want undefined 0/0", got)
	}
}

func TestCoverage_CaseInsensitive(t *testing.T) {
	truth := []models.GroupMembers{
		{Group: models.WalletGroup(7), Addresses: []string{"0xAA"}},
	}

	got, err := Coverage(map[string]int{"0xaa": 0}, truth, NoiseCounts)
	if err != nil {
		t.Fatalf("Coverage: %v", err)
	}
	if got.Covered != 1 {
		t.Errorf("Covered = %d, want 1", got.Covered)
	}

	// Mixed-case predicted keys against lower-case ground truth
	truth = []models.GroupMembers{
		{Group: models.WalletGroup(1), Addresses: []string{"0xaa", "0xbb", "0xcc"}},
	}
	got, err = Coverage(map[string]int{"0xAA": 0, "0xBB": 1}, truth, NoiseCounts)
	if err != nil {
		t.Fatalf("Coverage: %v", err)
	}
	if got.Covered != 2 || got.Total != 3 {
		t.Errorf("Covered/Total = %d/%d, want 2/3", got.Covered, got.Total)
	}
	if math.Abs(got.Overall-2.0/3.0) > 1e-9 {
		t.Errorf("Overall = %v, want 2/3", got.Overall)
	}
	if got.PerGroup[0].Covered != 2 {
		t.Errorf("PerGroup[0].Covered = %d, want 2", got.PerGroup[0].Covered)
	}

	// A noise label folded together with a real cluster id still counts
	got, err = Coverage(map[string]int{"0xAA": -1, "0xaa": 3}, truth[:1], NoiseExcluded)
	if err != nil {
		t.Fatalf("Coverage: %v", err)
	}
	if got.Covered != 1 {
		t.Errorf("Covered = %d, want 1", got.Covered)
	}
}

func TestCoverage_PolicyRequired(t *testing.T) {
	_, err := Coverage(nil, nil, "")
	if !errors.Is(err, ErrNoisePolicyRequired) {
		t.Errorf("Expected ErrNoisePolicyRequired, got %v", err)
	}
	if _, err := ParseNoisePolicy("sometimes"); err == nil {
		t.Error("Expected error for unknown policy")
	}
}

func TestBestOf_TieBreaksOnSmallestK(t *testing.T) {
	candidates := []models.SweepCandidate{
		{K: 5, ARI: 0.4},
		{K: 4, ARI: 0.5},
		{K: 3, ARI: 0.5},
	}

	got, err := BestOf(candidates)
	if err != nil {
		t.Fatalf("BestOf: %v", err)
	}
	if got.K != 3 {
		t.Errorf("BestOf picked k=%d, want 3", got.K)
	}
}

func TestBestOf_SkipsFailedCandidates(t *testing.T) {
	candidates := []models.SweepCandidate{
		{K: 2, ARI: 0.9, Error: "insufficient labels"},
		{K: 6, ARI: 0.1},
	}

	got, err := BestOf(candidates)
	if err != nil {
		t.Fatalf("BestOf: %v", err)
	}
	if got.K != 6 {
		t.Errorf("BestOf picked k=%d, want 6", got.K)
	}

	if _, err := BestOf(candidates[:1]); !errors.Is(err, ErrNoCandidates) {
		t.Errorf("Expected ErrNoCandidates, got %v", err)
	}
}
