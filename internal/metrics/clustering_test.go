package metrics

import (
	"errors"
	"math"
	"testing"

	"github.com/rawblock/shuffle-linkage/pkg/models"
)

func TestAdjustedRandIndex_PerfectAgreement(t *testing.T) {
	predicted := []int{0, 0, 1, 1, 2, 2}
	groundTruth := []int{0, 0, 1, 1, 2, 2}

	ari := AdjustedRandIndex(predicted, groundTruth)

	if math.Abs(ari-1.0) > 0.01 {
		t.Errorf("Expected ARI=1.0 for perfect agreement. Got: %f", ari)
	}
}

func TestAdjustedRandIndex_RandomPartition(t *testing.T) {
	// Two very different partitions should yield ARI near 0
	predicted := []int{0, 0, 0, 1, 1, 1}
	groundTruth := []int{0, 1, 0, 1, 0, 1}

	ari := AdjustedRandIndex(predicted, groundTruth)

	if ari > 0.5 {
		t.Errorf("Expected ARI near 0 for dissimilar partitions. Got: %f", ari)
	}
}

func TestAdjustedRandIndex_KnownValue(t *testing.T) {
	// sum C(nij,2)=2, sum C(ai,2)=6, sum C(bj,2)=3, C(6,2)=15
	// expected=1.2, max=4.5 -> (2-1.2)/3.3
	predicted := []int{0, 0, 0, 1, 1, 1}
	groundTruth := []int{0, 0, 1, 1, 2, 2}

	ari := AdjustedRandIndex(predicted, groundTruth)

	want := 0.8 / 3.3
	if math.Abs(ari-want) > 1e-9 {
		t.Errorf("ARI = %f, want %f", ari, want)
	}
}

func TestNormalizedMutualInfo_Identical(t *testing.T) {
	labels := []int{0, 0, 1, 1, 2, 2, 2}

	nmi := NormalizedMutualInfo(labels, labels)

	if math.Abs(nmi-1.0) > 1e-9 {
		t.Errorf("Expected NMI=1.0 for identical partitions. Got: %f", nmi)
	}
}

func TestNormalizedMutualInfo_Independent(t *testing.T) {
	predicted := []int{0, 0, 1, 1}
	groundTruth := []int{0, 1, 0, 1}

	nmi := NormalizedMutualInfo(predicted, groundTruth)

	if math.Abs(nmi) > 1e-9 {
		t.Errorf("Expected NMI=0 for independent partitions. Got: %f", nmi)
	}
}

func TestVariationOfInformation_Identical(t *testing.T) {
	predicted := []int{0, 0, 1, 1, 2, 2}
	groundTruth := []int{0, 0, 1, 1, 2, 2}

	vi := VariationOfInformation(predicted, groundTruth)

	if vi > 0.01 {
		t.Errorf("Expected VI=0.0 for identical partitions. Got: %f", vi)
	}
}

func TestVariationOfInformation_Different(t *testing.T) {
	predicted := []int{0, 0, 0, 1, 1, 1}
	groundTruth := []int{0, 1, 0, 1, 0, 1}

	vi := VariationOfInformation(predicted, groundTruth)

	if vi < 0.1 {
		t.Errorf("Expected VI > 0 for different partitions. Got: %f", vi)
	}
}

func TestEvaluate_PermutationInvariance(t *testing.T) {
	truth := []int{0, 0, 1, 1, 1, 2, 2, 3}
	pred := []int{0, 0, 0, 1, 1, 2, 2, 2}
	// cluster 0 -> 5, 1 -> 2, 2 -> 9
	relabeled := []int{5, 5, 5, 2, 2, 9, 9, 9}

	base, err := Evaluate(truth, pred)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	got, err := Evaluate(truth, relabeled)
	if err != nil {
		t.Fatalf("Evaluate relabeled: %v", err)
	}

	if math.Abs(base.ARI-got.ARI) > 1e-12 || math.Abs(base.NMI-got.NMI) > 1e-12 || math.Abs(base.VI-got.VI) > 1e-12 {
		t.Errorf("metrics changed under relabeling: %+v vs %+v", base, got)
	}
}

func TestEvaluate_IdenticalUpToPermutation(t *testing.T) {
	truth := []int{0, 0, 1, 1, 2, 2}
	pred := []int{7, 7, 3, 3, 1, 1}

	got, err := Evaluate(truth, pred)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if math.Abs(got.ARI-1) > 1e-9 || math.Abs(got.NMI-1) > 1e-9 {
		t.Errorf("Expected ARI=NMI=1. Got: %+v", got)
	}
	if got.VI > 1e-9 {
		t.Errorf("Expected VI=0. Got: %f", got.VI)
	}
}

func TestEvaluate_Degenerate(t *testing.T) {
	tests := []struct {
		name       string
		truth      []int
		pred       []int
		trueLabels int
		predLabels int
	}{
		{"single true class", []int{1, 1, 1}, []int{0, 1, 2}, 1, 3},
		{"single predicted class", []int{0, 1, 2}, []int{4, 4, 4}, 3, 1},
		{"empty", nil, nil, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Evaluate(tt.truth, tt.pred)
			var target *models.InsufficientLabelsError
			if !errors.As(err, &target) {
				t.Fatalf("Expected InsufficientLabelsError, got %v", err)
			}
			if target.TrueClasses != tt.trueLabels || target.PredClasses != tt.predLabels {
				t.Errorf("classes = %d/%d, want %d/%d", target.TrueClasses, target.PredClasses, tt.trueLabels, tt.predLabels)
			}
		})
	}
}

func TestEvaluate_LengthMismatch(t *testing.T) {
	_, err := Evaluate([]int{0, 1}, []int{0, 1, 1})
	if !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("Expected ErrLengthMismatch, got %v", err)
	}
}
