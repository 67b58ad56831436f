// Package alignment turns a predicted partition and a ground-truth mapping
// into two parallel dense label sequences the agreement metrics can score.
package alignment

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/rawblock/shuffle-linkage/internal/groundtruth"
	"github.com/rawblock/shuffle-linkage/pkg/models"
)

// Sentinel marks "no ground truth" or "no prediction" in union alignment.
// Predicted noise carries the same value.
const Sentinel = -1

// Domain selects which addresses take part in an alignment.
type Domain int

const (
	// DomainUnset is invalid: callers must choose a domain.
	DomainUnset Domain = iota
	// DomainIntersection keeps addresses that have both a prediction and a group.
	DomainIntersection
	// DomainUnion keeps every address from either side; the missing side is Sentinel.
	DomainUnion
)

var ErrDomainRequired = errors.New("alignment domain must be chosen explicitly")

func (d Domain) String() string {
	switch d {
	case DomainIntersection:
		return "intersection"
	case DomainUnion:
		return "union"
	}
	return "unset"
}

// ParseDomain accepts "intersection" or "union".
func ParseDomain(s string) (Domain, error) {
	switch s {
	case "intersection":
		return DomainIntersection, nil
	case "union":
		return DomainUnion, nil
	case "":
		return DomainUnset, ErrDomainRequired
	}
	return DomainUnset, fmt.Errorf("unknown alignment domain %q", s)
}

// Aligned holds one entry per address of the domain. True[i] and Pred[i]
// both describe Addresses[i].
type Aligned struct {
	Domain    Domain
	Addresses []string
	True      []int
	Pred      []int
}

// Len returns the number of aligned addresses.
func (a Aligned) Len() int { return len(a.Addresses) }

// Align builds the label sequences for pred (address -> cluster id, Noise
// allowed) against truth. Addresses are visited in sorted order; group
// values and cluster ids are renumbered densely in first-seen order within
// this call only. Fails with *models.ConflictError when two keys of pred
// fold to the same address with different cluster ids.
func Align(pred map[string]int, truth *groundtruth.Mapping, domain Domain) (Aligned, error) {
	if domain != DomainIntersection && domain != DomainUnion {
		return Aligned{}, ErrDomainRequired
	}
	if truth == nil {
		return Aligned{}, errors.New("alignment: nil ground-truth mapping")
	}

	predicted := make(map[string]int, len(pred))
	for addr, c := range pred {
		norm := models.NormalizeAddress(addr)
		if prev, ok := predicted[norm]; ok && prev != c {
			lo, hi := min(prev, c), max(prev, c)
			return Aligned{}, &models.ConflictError{
				Address: norm,
				First:   "cluster " + strconv.Itoa(lo),
				Second:  "cluster " + strconv.Itoa(hi),
				Source:  "predicted assignments",
			}
		}
		predicted[norm] = c
	}

	seen := make(map[string]struct{}, len(predicted)+truth.Len())
	var addrs []string
	for addr := range predicted {
		seen[addr] = struct{}{}
		addrs = append(addrs, addr)
	}
	if domain == DomainUnion {
		for _, addr := range truth.Addresses() {
			if _, ok := seen[addr]; !ok {
				addrs = append(addrs, addr)
			}
		}
	}
	sort.Strings(addrs)

	out := Aligned{Domain: domain}
	groupIDs := make(map[models.Group]int)
	clusterIDs := make(map[int]int)
	for _, addr := range addrs {
		g, hasTruth := truth.Lookup(addr)
		c, hasPred := predicted[addr]
		if domain == DomainIntersection && !hasTruth {
			continue
		}

		trueLabel := Sentinel
		if hasTruth {
			id, ok := groupIDs[g]
			if !ok {
				id = len(groupIDs)
				groupIDs[g] = id
			}
			trueLabel = id
		}

		predLabel := Sentinel
		if hasPred && c != Sentinel {
			id, ok := clusterIDs[c]
			if !ok {
				id = len(clusterIDs)
				clusterIDs[c] = id
			}
			predLabel = id
		}

		out.Addresses = append(out.Addresses, addr)
		out.True = append(out.True, trueLabel)
		out.Pred = append(out.Pred, predLabel)
	}
	return out, nil
}
