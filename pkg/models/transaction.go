package models

import "strings"

// NormalizeAddress folds an address to its canonical form (trimmed, lowercase).
// Two addresses that differ only in case are the same entity, so every lookup
// and every loader passes through here.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// CallTrace is one frame of a debug_traceTransaction call tree
type CallTrace struct {
	From  string      `json:"from"`
	To    string      `json:"to,omitempty"`
	Type  string      `json:"type,omitempty"`  // CALL / DELEGATECALL / STATICCALL ...
	Calls []CallTrace `json:"calls,omitempty"` // Internal calls, arbitrarily nested
}

// EnrichedTransaction is a traced transaction with its block timestamp attached.
// Timestamp is a pointer so a missing field is distinguishable from epoch 0.
type EnrichedTransaction struct {
	Hash        string     `json:"hash"`
	Timestamp   *int64     `json:"timestamp"`             // Unix seconds
	BlockNumber int64      `json:"blockNumber,omitempty"` // Block height of inclusion
	Result      *CallTrace `json:"result"`                // Top-level call frame
}

// RawStats is one record of the per-address feature table
// (addressFeatures.json). Every field is required; pointers and a nil slice
// mark absence.
type RawStats struct {
	NTx            *float64  `json:"n_tx"`
	Duration       *float64  `json:"duration"`
	MeanTimeGap    *float64  `json:"mean_time_gap"`
	StdTimeGap     *float64  `json:"std_time_gap"`
	ActivityVector []float64 `json:"activity_vector"`
}

// ClusterRecord is one entry of the per-run clustering artifact
// consumed by the plotting tools: [{address, cluster, vector}].
type ClusterRecord struct {
	Address string    `json:"address"`
	Cluster int       `json:"cluster"` // -1 = noise
	Vector  []float64 `json:"vector"`
}
