package groundtruth

import (
	"sort"

	"github.com/rawblock/shuffle-linkage/pkg/models"
)

// Mapping is the canonical address -> group ground truth. It is built once
// per run by a Resolver and read by alignment and coverage; it is never
// mutated after construction.
type Mapping struct {
	kind    models.GroupKind
	groups  []models.Group // definition order
	members map[models.Group][]string
	byAddr  map[string]models.Group
}

// Kind returns the group kind every entry of this mapping carries.
func (m *Mapping) Kind() models.GroupKind { return m.kind }

// Lookup resolves an address (normalized first). ok is false when the
// address has no ground truth; that is distinct from any group value.
func (m *Mapping) Lookup(addr string) (models.Group, bool) {
	g, ok := m.byAddr[models.NormalizeAddress(addr)]
	return g, ok
}

// Len returns the number of addresses with a group.
func (m *Mapping) Len() int { return len(m.byAddr) }

// Groups returns groups in definition order. Groups whose every member was
// dropped for conflicts are still listed, with no members.
func (m *Mapping) Groups() []models.Group {
	out := make([]models.Group, len(m.groups))
	copy(out, m.groups)
	return out
}

// Members returns the addresses of a group in insertion order.
func (m *Mapping) Members(g models.Group) []string {
	src := m.members[g]
	out := make([]string, len(src))
	copy(out, src)
	return out
}

// GroupMembers returns every group with its members, in definition order.
func (m *Mapping) GroupMembers() []models.GroupMembers {
	out := make([]models.GroupMembers, 0, len(m.groups))
	for _, g := range m.groups {
		out = append(out, models.GroupMembers{Group: g, Addresses: m.Members(g)})
	}
	return out
}

// Addresses returns every address with a group, sorted.
func (m *Mapping) Addresses() []string {
	out := make([]string, 0, len(m.byAddr))
	for a := range m.byAddr {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// mappingBuilder accumulates assignments and detects conflicting ones.
// A conflicted address is removed entirely: it takes no part in the run
// and later assignments of it are ignored.
type mappingBuilder struct {
	m          *Mapping
	source     string
	conflicted map[string]bool
	conflicts  []models.ConflictError
}

func newMappingBuilder(kind models.GroupKind, source string) *mappingBuilder {
	return &mappingBuilder{
		m: &Mapping{
			kind:    kind,
			members: make(map[models.Group][]string),
			byAddr:  make(map[string]models.Group),
		},
		source:     source,
		conflicted: make(map[string]bool),
	}
}

// define registers a group so it keeps its position even without members.
func (b *mappingBuilder) define(g models.Group) {
	if _, ok := b.m.members[g]; !ok {
		b.m.groups = append(b.m.groups, g)
		b.m.members[g] = nil
	}
}

func (b *mappingBuilder) assign(addr string, g models.Group) {
	addr = models.NormalizeAddress(addr)
	if addr == "" || b.conflicted[addr] {
		return
	}
	b.define(g)
	prev, ok := b.m.byAddr[addr]
	if ok {
		if prev != g {
			b.conflicts = append(b.conflicts, models.ConflictError{
				Address: addr, First: prev.Value, Second: g.Value, Source: b.source,
			})
			b.conflicted[addr] = true
			delete(b.m.byAddr, addr)
			b.m.members[prev] = removeString(b.m.members[prev], addr)
		}
		return
	}
	b.m.byAddr[addr] = g
	b.m.members[g] = append(b.m.members[g], addr)
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
