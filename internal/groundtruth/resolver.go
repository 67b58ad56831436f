package groundtruth

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rawblock/shuffle-linkage/pkg/models"
)

// Ground Truth Resolution
//
// Three source representations describe who controls which address:
//
//	(a) uid -> role  +  wallet.index == uid  +  wallet addresses -> wallet.index
//	(b) wallet.index alone, when no role table exists
//	(c) an explicit [{role, addresses:[...]}] table
//
// Each is a distinct Strategy producing the same canonical Mapping type, so
// evaluation code never consults the raw tables. Conflicting derivations
// for one address are collected as models.ConflictError and the address is
// withdrawn from the mapping instead of being tie-broken.

// Strategy selects a resolution branch.
type Strategy string

const (
	StrategyRole     Strategy = "role"     // uid -> role chaining
	StrategyWallet   Strategy = "wallet"   // wallet index as group id
	StrategyExplicit Strategy = "explicit" // explicit role-merged table
)

var (
	ErrMissingInput = errors.New("ground truth input not supplied")
	ErrKindMismatch = errors.New("mappings of different group kinds cannot be cross-validated")
)

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyRole, StrategyWallet, StrategyExplicit:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("unknown ground truth strategy %q", s)
}

// Resolution is one resolved mapping plus the data-quality findings met
// while building it.
type Resolution struct {
	Strategy   Strategy
	Mapping    *Mapping
	Conflicts  []models.ConflictError
	Unresolved []string // addresses of wallets whose uid has no role (StrategyRole only)
}

// Resolver holds the raw ground-truth tables of one run. Build it once and
// hand it to every consumer.
type Resolver struct {
	roles         RoleTable
	roleConflicts []models.ConflictError
	wallets       []models.WalletRecord
	groups        []models.RoleGroupRecord

	walletOf map[string]int // address -> wallet index
}

// Sources bundles the optional inputs of a Resolver.
type Sources struct {
	Roles         RoleTable
	RoleConflicts []models.ConflictError // as returned by LoadRoleTable
	Wallets       []models.WalletRecord
	Groups        []models.RoleGroupRecord
}

// NewResolver builds a resolver over whichever tables were supplied.
func NewResolver(src Sources) *Resolver {
	r := &Resolver{
		roles:         src.Roles,
		roleConflicts: src.RoleConflicts,
		wallets:       src.Wallets,
		groups:        src.Groups,
		walletOf:      make(map[string]int),
	}
	for _, w := range src.Wallets {
		if w.Index == nil {
			continue
		}
		for _, a := range w.Addresses() {
			if _, seen := r.walletOf[a]; !seen {
				r.walletOf[a] = *w.Index
			}
		}
	}
	return r
}

// Has reports whether the inputs required by s were supplied.
func (r *Resolver) Has(s Strategy) bool {
	switch s {
	case StrategyRole:
		return r.roles != nil && r.wallets != nil
	case StrategyWallet:
		return r.wallets != nil
	case StrategyExplicit:
		return r.groups != nil
	}
	return false
}

// WalletIndex returns the wallet an address was derived from.
func (r *Resolver) WalletIndex(addr string) (int, bool) {
	i, ok := r.walletOf[models.NormalizeAddress(addr)]
	return i, ok
}

// Resolve dispatches to the branch named by s.
func (r *Resolver) Resolve(s Strategy) (*Resolution, error) {
	if !r.Has(s) {
		return nil, fmt.Errorf("%w: strategy %q", ErrMissingInput, s)
	}
	switch s {
	case StrategyRole:
		return r.ResolveByRole(), nil
	case StrategyWallet:
		return r.ResolveByWallet(), nil
	default:
		return r.ResolveExplicit(), nil
	}
}

// ResolveByRole chains wallet.index -> uid -> role. Wallets whose uid has
// no role contribute no ground truth; their addresses are listed as
// Unresolved rather than mapped to an empty role.
func (r *Resolver) ResolveByRole() *Resolution {
	b := newMappingBuilder(models.GroupKindRole, "uid->role chain")
	var unresolved []string
	for _, w := range r.wallets {
		if w.Index == nil {
			continue
		}
		role, ok := r.roles[*w.Index]
		if !ok {
			unresolved = append(unresolved, w.Addresses()...)
			continue
		}
		for _, a := range w.Addresses() {
			b.assign(a, models.RoleGroup(role))
		}
	}
	sort.Strings(unresolved)

	conflicts := append([]models.ConflictError(nil), r.roleConflicts...)
	conflicts = append(conflicts, b.conflicts...)
	return &Resolution{Strategy: StrategyRole, Mapping: b.m, Conflicts: conflicts, Unresolved: unresolved}
}

// ResolveByWallet uses the wallet index itself as the group.
func (r *Resolver) ResolveByWallet() *Resolution {
	b := newMappingBuilder(models.GroupKindWallet, "wallet index")
	for _, w := range r.wallets {
		if w.Index == nil {
			continue
		}
		g := models.WalletGroup(*w.Index)
		b.define(g)
		for _, a := range w.Addresses() {
			b.assign(a, g)
		}
	}
	return &Resolution{Strategy: StrategyWallet, Mapping: b.m, Conflicts: b.conflicts}
}

// ResolveExplicit assigns each listed address the role of its record,
// bypassing uid chaining. Records sharing a role merge into one group.
func (r *Resolver) ResolveExplicit() *Resolution {
	b := newMappingBuilder(models.GroupKindRole, "explicit group table")
	for _, rec := range r.groups {
		g := models.RoleGroup(rec.Role)
		b.define(g)
		for _, a := range rec.Addresses {
			b.assign(a.SmartAccountAddress, g)
		}
	}
	return &Resolution{Strategy: StrategyExplicit, Mapping: b.m, Conflicts: b.conflicts}
}

// CrossValidate compares two mappings over the addresses present in both
// and reports every disagreement. Nothing is chosen or repaired.
func CrossValidate(a, b *Mapping) ([]models.ConflictError, error) {
	if a.Kind() != b.Kind() {
		return nil, fmt.Errorf("%w: %s vs %s", ErrKindMismatch, a.Kind(), b.Kind())
	}
	var out []models.ConflictError
	for _, addr := range a.Addresses() {
		ga, _ := a.Lookup(addr)
		gb, ok := b.Lookup(addr)
		if ok && ga != gb {
			out = append(out, models.ConflictError{
				Address: addr, First: ga.Value, Second: gb.Value, Source: "cross-validation",
			})
		}
	}
	return out, nil
}

// Validate cross-checks the chained role mapping against the explicit table
// when both are available. It returns nil, nil when either is missing.
func (r *Resolver) Validate() ([]models.ConflictError, error) {
	if !r.Has(StrategyRole) || !r.Has(StrategyExplicit) {
		return nil, nil
	}
	return CrossValidate(r.ResolveByRole().Mapping, r.ResolveExplicit().Mapping)
}
