package clustering

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/rawblock/shuffle-linkage/pkg/models"
)

// DBSCAN
//
// A point is core when at least MinPts points (itself included) lie within
// Eps. Core points within Eps of each other are density-connected; the
// union-find joins them into components. A non-core point within Eps of a
// core point is a border point and joins the component of the first such
// core point in index order. Everything else is Noise: sparse or ambiguous
// addresses are not forced into a cluster.
//
// Cluster ids are dense and numbered by the index of each component's first
// core point, so the labeling depends only on the input order.

type dbscanResult struct {
	labels      []int
	clusters    int
	noise       int
	largestCore int
}

func runDBSCAN(points [][]float64, p Params) (dbscanResult, error) {
	if p.Eps <= 0 {
		return dbscanResult{}, &models.ConvergenceError{Strategy: string(StrategyDBSCAN), Reason: fmt.Sprintf("eps must be > 0, got %g", p.Eps)}
	}
	if p.MinPts < 1 {
		return dbscanResult{}, &models.ConvergenceError{Strategy: string(StrategyDBSCAN), Reason: fmt.Sprintf("minPts must be >= 1, got %d", p.MinPts)}
	}
	n := len(points)
	if n == 0 {
		return dbscanResult{}, &models.ConvergenceError{Strategy: string(StrategyDBSCAN), Reason: "no points"}
	}

	neighbors := make([][]int, n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if floats.Distance(points[i], points[j], 2) <= p.Eps {
				neighbors[i] = append(neighbors[i], j)
			}
		}
	}

	core := make([]bool, n)
	for i := range neighbors {
		core[i] = len(neighbors[i]) >= p.MinPts
	}

	ds := newDisjointSet(n)
	for i := 0; i < n; i++ {
		if !core[i] {
			continue
		}
		for _, j := range neighbors[i] {
			if core[j] {
				ds.union(i, j)
			}
		}
	}

	res := dbscanResult{labels: make([]int, n)}
	idOfRoot := make(map[int]int)
	for i := 0; i < n; i++ {
		if !core[i] {
			continue
		}
		root := ds.find(i)
		if _, ok := idOfRoot[root]; !ok {
			idOfRoot[root] = len(idOfRoot)
			if sz := ds.componentSize(i); sz > res.largestCore {
				res.largestCore = sz
			}
		}
	}

	for i := 0; i < n; i++ {
		res.labels[i] = Noise
		if core[i] {
			res.labels[i] = idOfRoot[ds.find(i)]
			continue
		}
		for _, j := range neighbors[i] {
			if core[j] {
				res.labels[i] = idOfRoot[ds.find(j)]
				break
			}
		}
		if res.labels[i] == Noise {
			res.noise++
		}
	}
	res.clusters = len(idOfRoot)
	return res, nil
}
