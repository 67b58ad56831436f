package models

import "strconv"

// GroupKind says which ground-truth representation produced a group id.
type GroupKind string

const (
	GroupKindRole   GroupKind = "role"   // uid -> role chaining, or an explicit role table
	GroupKindWallet GroupKind = "wallet" // wallet index used directly
	GroupKindGroup  GroupKind = "group"  // positional index in an explicit table
)

// Group identifies the real-world actor a set of addresses belongs to.
// Two groups are equal when both kind and value match.
type Group struct {
	Kind  GroupKind `json:"kind"`
	Value string    `json:"value"`
}

// RoleGroup builds a role-named group.
func RoleGroup(role string) Group { return Group{Kind: GroupKindRole, Value: role} }

// WalletGroup builds a group keyed by wallet index.
func WalletGroup(index int) Group { return Group{Kind: GroupKindWallet, Value: strconv.Itoa(index)} }

// IndexGroup builds a group keyed by its position in an explicit table.
func IndexGroup(i int) Group { return Group{Kind: GroupKindGroup, Value: strconv.Itoa(i)} }

func (g Group) String() string {
	return string(g.Kind) + ":" + g.Value
}

// GroupMembers is one ground-truth group with its member addresses,
// in the order the group was first defined.
type GroupMembers struct {
	Group     Group    `json:"group"`
	Addresses []string `json:"addresses"`
}

// RoleRecord is one line of trace_features.jsonl. Lines lacking either
// uid or role are skipped by the loader.
type RoleRecord struct {
	UID  *int   `json:"uid"`
	Role string `json:"role"`
}

// ShuffledAccount is a smart account an actor rotated into.
type ShuffledAccount struct {
	SmartAccountAddress string `json:"smartAccountAddress"`
}

// WalletRecord is one entry of wallets_with_shuffling.json.
type WalletRecord struct {
	Index               *int              `json:"index"`
	SmartAccountAddress string            `json:"smartAccountAddress,omitempty"` // Primary address
	AccountShuffling    []ShuffledAccount `json:"accountShuffling,omitempty"`    // Rotated addresses
}

// Addresses returns the normalized primary and shuffled addresses of a wallet.
func (w WalletRecord) Addresses() []string {
	var out []string
	if w.SmartAccountAddress != "" {
		out = append(out, NormalizeAddress(w.SmartAccountAddress))
	}
	for _, s := range w.AccountShuffling {
		if s.SmartAccountAddress != "" {
			out = append(out, NormalizeAddress(s.SmartAccountAddress))
		}
	}
	return out
}

// RoleGroupRecord is one entry of role_merged_wallets.json.
type RoleGroupRecord struct {
	Role      string            `json:"role"`
	Addresses []ShuffledAccount `json:"addresses"`
}
