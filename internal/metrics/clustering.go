package metrics

import (
	"errors"
	"fmt"
	"math"

	"github.com/rawblock/shuffle-linkage/pkg/models"
)

// ErrLengthMismatch is returned when the two label sequences differ in length.
var ErrLengthMismatch = errors.New("label sequences differ in length")

// Agreement holds the partition-agreement statistics of one aligned run.
type Agreement struct {
	ARI float64 `json:"ari"`
	NMI float64 `json:"nmi"`
	VI  float64 `json:"vi"`
}

// Evaluate scores predicted labels against true labels. Both sequences are
// compared as partitions only, so any consistent relabeling of either side
// leaves the result unchanged.
//
// Fails with *models.InsufficientLabelsError when either side has fewer than
// two distinct labels: ARI and NMI are undefined there.
func Evaluate(trueLabels, predLabels []int) (Agreement, error) {
	if len(trueLabels) != len(predLabels) {
		return Agreement{}, fmt.Errorf("%w: %d true vs %d predicted", ErrLengthMismatch, len(trueLabels), len(predLabels))
	}
	tc, pc := len(uniqueLabels(trueLabels)), len(uniqueLabels(predLabels))
	if tc < 2 || pc < 2 {
		return Agreement{}, &models.InsufficientLabelsError{TrueClasses: tc, PredClasses: pc}
	}
	return Agreement{
		ARI: AdjustedRandIndex(predLabels, trueLabels),
		NMI: NormalizedMutualInfo(predLabels, trueLabels),
		VI:  VariationOfInformation(predLabels, trueLabels),
	}, nil
}

// contingency is the n_ij table of two partitions with its marginals.
type contingency struct {
	n       int
	nij     [][]int
	rowSums []int // predicted cluster sizes (a_i)
	colSums []int // ground-truth group sizes (b_j)
}

func newContingency(predicted, groundTruth []int) contingency {
	predLabels := uniqueLabels(predicted)
	gtLabels := uniqueLabels(groundTruth)

	predMap := make(map[int]int, len(predLabels))
	for i, l := range predLabels {
		predMap[l] = i
	}
	gtMap := make(map[int]int, len(gtLabels))
	for i, l := range gtLabels {
		gtMap[l] = i
	}

	c := contingency{
		n:       len(predicted),
		nij:     make([][]int, len(predLabels)),
		rowSums: make([]int, len(predLabels)),
		colSums: make([]int, len(gtLabels)),
	}
	for i := range c.nij {
		c.nij[i] = make([]int, len(gtLabels))
	}
	for k := range predicted {
		pi, gi := predMap[predicted[k]], gtMap[groundTruth[k]]
		c.nij[pi][gi]++
		c.rowSums[pi]++
		c.colSums[gi]++
	}
	return c
}

// AdjustedRandIndex computes the Adjusted Rand Index (ARI) between two partitions.
//
// ARI = (Index - Expected) / (Max - Expected)
// where Index = sum_ij C(n_ij, 2), Expected = sum_i C(a_i, 2) * sum_j C(b_j, 2) / C(n, 2)
// and Max = (sum_i C(a_i, 2) + sum_j C(b_j, 2)) / 2.
//
// Values range from -1 (worse than random) to 1 (perfect agreement). 0 = random.
func AdjustedRandIndex(predicted, groundTruth []int) float64 {
	n := len(predicted)
	if n != len(groundTruth) || n < 2 {
		return 0.0
	}
	c := newContingency(predicted, groundTruth)

	sumNijC2 := 0.0
	for i := range c.nij {
		for j := range c.nij[i] {
			sumNijC2 += comb2(c.nij[i][j])
		}
	}
	sumAiC2 := 0.0
	for _, a := range c.rowSums {
		sumAiC2 += comb2(a)
	}
	sumBjC2 := 0.0
	for _, b := range c.colSums {
		sumBjC2 += comb2(b)
	}

	nC2 := comb2(n)
	expectedIndex := (sumAiC2 * sumBjC2) / nC2
	maxIndex := 0.5 * (sumAiC2 + sumBjC2)

	denominator := maxIndex - expectedIndex
	if math.Abs(denominator) < 1e-12 {
		return 1.0 // Perfect agreement (both are 0)
	}
	return (sumNijC2 - expectedIndex) / denominator
}

// NormalizedMutualInfo computes NMI with arithmetic-mean normalization:
//
// NMI(U, V) = I(U; V) / ((H(U) + H(V)) / 2)
//
// using natural logarithms. 1 = identical partitions, 0 = independent.
func NormalizedMutualInfo(predicted, groundTruth []int) float64 {
	n := len(predicted)
	if n != len(groundTruth) || n == 0 {
		return 0.0
	}
	c := newContingency(predicted, groundTruth)
	nf := float64(n)

	mi := 0.0
	for i := range c.nij {
		for j := range c.nij[i] {
			if c.nij[i][j] == 0 {
				continue
			}
			nij := float64(c.nij[i][j])
			mi += nij / nf * math.Log(nf*nij/(float64(c.rowSums[i])*float64(c.colSums[j])))
		}
	}
	hPred, hTrue := entropy(c.rowSums, nf), entropy(c.colSums, nf)

	norm := (hPred + hTrue) / 2
	if norm < 1e-15 {
		return 1.0 // both single-class
	}
	// Rounding can push MI a hair past the bound.
	return math.Max(0, math.Min(1, mi/norm))
}

// VariationOfInformation computes the VI distance between two partitions.
//
// VI(C, C') = H(C|C') + H(C'|C)
// where H is the conditional entropy (bits).
//
// Lower is better. 0 = identical partitions.
func VariationOfInformation(predicted, groundTruth []int) float64 {
	n := len(predicted)
	if n != len(groundTruth) || n < 2 {
		return 0.0
	}
	c := newContingency(predicted, groundTruth)
	nf := float64(n)

	vi := 0.0
	for i := range c.nij {
		for j := range c.nij[i] {
			if c.nij[i][j] == 0 {
				continue
			}
			nij := float64(c.nij[i][j])
			pij := nij / nf
			// H(C|C') term and H(C'|C) term
			vi -= pij * math.Log2(nij/float64(c.colSums[j]))
			vi -= pij * math.Log2(nij/float64(c.rowSums[i]))
		}
	}
	return vi
}

func entropy(sizes []int, n float64) float64 {
	h := 0.0
	for _, s := range sizes {
		if s == 0 {
			continue
		}
		p := float64(s) / n
		h -= p * math.Log(p)
	}
	return h
}

// comb2 computes C(n, 2) = n*(n-1)/2
func comb2(n int) float64 {
	if n < 2 {
		return 0
	}
	return float64(n) * float64(n-1) / 2.0
}

// uniqueLabels returns unique labels in first-seen order
func uniqueLabels(labels []int) []int {
	seen := make(map[int]bool)
	var result []int
	for _, l := range labels {
		if !seen[l] {
			seen[l] = true
			result = append(result, l)
		}
	}
	return result
}
