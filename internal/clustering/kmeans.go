package clustering

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/rawblock/shuffle-linkage/pkg/models"
)

// k-means (Lloyd) with k-means++ seeding.
//
// All randomness comes from one rand.Source seeded with Params.Seed and is
// consumed in a fixed order (restart by restart), so a run is reproducible
// bit for bit. Of NInit restarts the one with the lowest inertia wins; ties
// keep the earlier restart.

type kmeansResult struct {
	labels  []int
	inertia float64
	iters   int
}

func runKMeans(points [][]float64, p Params) (kmeansResult, error) {
	n := len(points)
	if p.K < 1 {
		return kmeansResult{}, &models.ConvergenceError{Strategy: string(StrategyKMeans), Reason: fmt.Sprintf("k must be >= 1, got %d", p.K)}
	}
	if n < p.K {
		return kmeansResult{}, &models.ConvergenceError{
			Strategy: string(StrategyKMeans),
			Reason:   fmt.Sprintf("%d points cannot form %d clusters", n, p.K),
		}
	}

	rng := rand.New(rand.NewSource(p.Seed))
	best := kmeansResult{inertia: math.Inf(1)}
	for restart := 0; restart < p.NInit; restart++ {
		centers := seedPlusPlus(points, p.K, rng)
		res := lloyd(points, centers, p.MaxIter, p.Tolerance)
		if res.inertia < best.inertia {
			best = res
		}
	}
	if best.labels == nil {
		return kmeansResult{}, &models.ConvergenceError{Strategy: string(StrategyKMeans), Reason: "no restart produced a finite inertia"}
	}
	return best, nil
}

// seedPlusPlus picks k initial centers: the first uniformly, each next one
// with probability proportional to its squared distance from the nearest
// chosen center.
func seedPlusPlus(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(points)
	centers := make([][]float64, 0, k)
	centers = append(centers, clone(points[rng.Intn(n)]))

	d2 := make([]float64, n)
	for i := range points {
		d2[i] = sqDist(points[i], centers[0])
	}
	for len(centers) < k {
		total := floats.Sum(d2)
		next := 0
		if total == 0 {
			// Every point coincides with a chosen center.
			next = rng.Intn(n)
		} else {
			target := rng.Float64() * total
			acc := 0.0
			next = n - 1
			for i, v := range d2 {
				acc += v
				if acc >= target && v > 0 {
					next = i
					break
				}
			}
		}
		c := clone(points[next])
		centers = append(centers, c)
		for i := range points {
			if d := sqDist(points[i], c); d < d2[i] {
				d2[i] = d
			}
		}
	}
	return centers
}

func lloyd(points [][]float64, centers [][]float64, maxIter int, tol float64) kmeansResult {
	n, k := len(points), len(centers)
	dim := len(points[0])
	labels := make([]int, n)
	counts := make([]int, k)
	sums := make([][]float64, k)
	for c := range sums {
		sums[c] = make([]float64, dim)
	}

	iters := 0
	for iters < maxIter {
		iters++
		assign(points, centers, labels)

		for c := range sums {
			counts[c] = 0
			for j := range sums[c] {
				sums[c][j] = 0
			}
		}
		for i, l := range labels {
			counts[l]++
			floats.Add(sums[l], points[i])
		}

		shift := 0.0
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				// Empty cluster: re-seed with the point farthest from its center.
				far := farthestPoint(points, centers, labels)
				shift += sqDist(centers[c], points[far])
				copy(centers[c], points[far])
				labels[far] = c
				continue
			}
			floats.Scale(1/float64(counts[c]), sums[c])
			shift += sqDist(centers[c], sums[c])
			copy(centers[c], sums[c])
		}
		if shift <= tol {
			break
		}
	}

	assign(points, centers, labels)
	inertia := 0.0
	for i, l := range labels {
		inertia += sqDist(points[i], centers[l])
	}
	return kmeansResult{labels: labels, inertia: inertia, iters: iters}
}

// assign labels every point with its nearest center; ties go to the lower id.
func assign(points, centers [][]float64, labels []int) {
	for i, pt := range points {
		best, bestD := 0, math.Inf(1)
		for c, ctr := range centers {
			if d := sqDist(pt, ctr); d < bestD {
				best, bestD = c, d
			}
		}
		labels[i] = best
	}
}

func farthestPoint(points, centers [][]float64, labels []int) int {
	far, farD := 0, -1.0
	for i, pt := range points {
		if d := sqDist(pt, centers[labels[i]]); d > farD {
			far, farD = i, d
		}
	}
	return far
}

func sqDist(a, b []float64) float64 {
	d := floats.Distance(a, b, 2)
	return d * d
}

func clone(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
