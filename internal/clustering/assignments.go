package clustering

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/rawblock/shuffle-linkage/pkg/models"
)

// Assignments is the immutable result of one clustering run over one
// feature snapshot: address -> cluster id (or Noise). A new run produces a
// new Assignments; accessors hand out copies.
type Assignments struct {
	params     Params
	external   bool
	snapshotID string
	addresses  []string
	labels     []int
	vectors    [][]float64 // nil for external partitions
	index      map[string]int
}

func newAssignments(params Params, snapshotID string, addresses []string, labels []int, vectors [][]float64) *Assignments {
	a := &Assignments{
		params:     params,
		snapshotID: snapshotID,
		addresses:  addresses,
		labels:     labels,
		vectors:    vectors,
		index:      make(map[string]int, len(addresses)),
	}
	for i, addr := range addresses {
		a.index[addr] = i
	}
	return a
}

// FromGroups turns a {group_name: [addresses]} partition (for example the
// heuristic sender-grouping output) into Assignments. Cluster ids follow
// sorted group names. An address listed under two groups is a
// *models.ConflictError.
func FromGroups(groups map[string][]string) (*Assignments, error) {
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	byAddr := make(map[string]int)
	for id, name := range names {
		for _, raw := range groups[name] {
			addr := models.NormalizeAddress(raw)
			if addr == "" {
				continue
			}
			if prev, ok := byAddr[addr]; ok && prev != id {
				return nil, &models.ConflictError{Address: addr, First: names[prev], Second: name, Source: "predicted groups"}
			}
			byAddr[addr] = id
		}
	}
	return fromLabelMap(byAddr), nil
}

// LoadGroups decodes a {group_name: [addresses]} document into Assignments.
func LoadGroups(r io.Reader) (*Assignments, error) {
	var groups map[string][]string
	if err := json.NewDecoder(r).Decode(&groups); err != nil {
		return nil, &models.SchemaError{Source: "predicted groups", Record: "(document)", Reason: err.Error()}
	}
	return FromGroups(groups)
}

// LoadArtifact decodes a [{address, cluster, vector}] clustering artifact
// produced by an earlier run.
func LoadArtifact(r io.Reader) (*Assignments, error) {
	var records []models.ClusterRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, &models.SchemaError{Source: "cluster artifact", Record: "(document)", Reason: err.Error()}
	}
	byAddr := make(map[string]int, len(records))
	for i, rec := range records {
		addr := models.NormalizeAddress(rec.Address)
		if addr == "" {
			return nil, &models.SchemaError{Source: "cluster artifact", Record: fmt.Sprintf("[%d]", i), Field: "address", Reason: "missing"}
		}
		if rec.Cluster < Noise {
			return nil, &models.SchemaError{Source: "cluster artifact", Record: addr, Field: "cluster", Reason: fmt.Sprintf("invalid cluster id %d", rec.Cluster)}
		}
		if prev, ok := byAddr[addr]; ok && prev != rec.Cluster {
			return nil, &models.ConflictError{Address: addr, First: fmt.Sprint(prev), Second: fmt.Sprint(rec.Cluster), Source: "cluster artifact"}
		}
		byAddr[addr] = rec.Cluster
	}
	return fromLabelMap(byAddr), nil
}

func fromLabelMap(byAddr map[string]int) *Assignments {
	addrs := make([]string, 0, len(byAddr))
	for a := range byAddr {
		addrs = append(addrs, a)
	}
	sort.Strings(addrs)
	labels := make([]int, len(addrs))
	for i, a := range addrs {
		labels[i] = byAddr[a]
	}
	a := newAssignments(Params{}, "", addrs, labels, nil)
	a.external = true
	return a
}

// Params returns the parameters of the run that produced the assignments.
func (a *Assignments) Params() Params { return a.params }

// External reports whether the partition was loaded rather than computed.
func (a *Assignments) External() bool { return a.external }

// SnapshotID is the fingerprint of the feature snapshot clustered.
func (a *Assignments) SnapshotID() string { return a.snapshotID }

// Len returns the number of assigned addresses, noise included.
func (a *Assignments) Len() int { return len(a.addresses) }

// Lookup returns the cluster of addr (normalized first).
func (a *Assignments) Lookup(addr string) (int, bool) {
	i, ok := a.index[models.NormalizeAddress(addr)]
	if !ok {
		return 0, false
	}
	return a.labels[i], true
}

// Labels returns a fresh address -> cluster map.
func (a *Assignments) Labels() map[string]int {
	out := make(map[string]int, len(a.addresses))
	for i, addr := range a.addresses {
		out[addr] = a.labels[i]
	}
	return out
}

// Clusters groups addresses by cluster id, noise excluded.
func (a *Assignments) Clusters() map[int][]string {
	out := make(map[int][]string)
	for i, addr := range a.addresses {
		if a.labels[i] == Noise {
			continue
		}
		out[a.labels[i]] = append(out[a.labels[i]], addr)
	}
	return out
}

// ClusterCount returns the number of genuine clusters.
func (a *Assignments) ClusterCount() int { return len(a.Clusters()) }

// NoiseCount returns the number of addresses labeled Noise.
func (a *Assignments) NoiseCount() int {
	n := 0
	for _, l := range a.labels {
		if l == Noise {
			n++
		}
	}
	return n
}

// Artifact renders the [{address, cluster, vector}] export consumed by
// the plotting tools.
func (a *Assignments) Artifact() []models.ClusterRecord {
	out := make([]models.ClusterRecord, len(a.addresses))
	for i, addr := range a.addresses {
		rec := models.ClusterRecord{Address: addr, Cluster: a.labels[i], Vector: []float64{}}
		if a.vectors != nil {
			rec.Vector = clone(a.vectors[i])
		}
		out[i] = rec
	}
	return out
}

// WriteArtifact encodes Artifact as indented JSON.
func (a *Assignments) WriteArtifact(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(a.Artifact())
}
