package clustering

// disjointSet is a weighted Union-Find with path compression over point
// indices. DBSCAN uses it to join core points that lie within eps of each
// other into one density-connected component.
//   - find:  O(α(n)) amortized
//   - union: O(α(n)) amortized
type disjointSet struct {
	parent []int
	rank   []int
	size   []int
}

func newDisjointSet(n int) *disjointSet {
	ds := &disjointSet{
		parent: make([]int, n),
		rank:   make([]int, n),
		size:   make([]int, n),
	}
	for i := range ds.parent {
		ds.parent[i] = i
		ds.size[i] = 1
	}
	return ds
}

// find returns the root of i, compressing the path on the way back.
func (ds *disjointSet) find(i int) int {
	if ds.parent[i] != i {
		ds.parent[i] = ds.find(ds.parent[i])
	}
	return ds.parent[i]
}

// union merges the sets of a and b by rank. Returns true if a merge happened.
func (ds *disjointSet) union(a, b int) bool {
	ra, rb := ds.find(a), ds.find(b)
	if ra == rb {
		return false
	}
	switch {
	case ds.rank[ra] < ds.rank[rb]:
		ds.parent[ra] = rb
		ds.size[rb] += ds.size[ra]
	case ds.rank[ra] > ds.rank[rb]:
		ds.parent[rb] = ra
		ds.size[ra] += ds.size[rb]
	default:
		ds.parent[rb] = ra
		ds.size[ra] += ds.size[rb]
		ds.rank[ra]++
	}
	return true
}

// componentSize returns the number of points sharing i's root.
func (ds *disjointSet) componentSize(i int) int {
	return ds.size[ds.find(i)]
}
