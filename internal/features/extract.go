package features

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/rawblock/shuffle-linkage/pkg/models"
)

// Temporal feature extraction
//
// Every address that appears as a sender, either as the top-level `from`
// of a traced transaction or as the `from` of any nested internal call,
// accumulates the block timestamps of those transactions. From the sorted
// timestamps we derive:
//
//   - n_tx: number of observations
//   - duration: last - first (seconds)
//   - mean / population std of inter-transaction gaps
//   - an activity histogram, either over the address's own active window
//     (HistogramDuration) or over the UTC hour of day (HistogramHourOfDay)
//
// Addresses never seen as a sender get no record at all.

// HistogramMode selects how the activity histogram is binned.
type HistogramMode string

const (
	HistogramDuration  HistogramMode = "duration"    // B equal bins over [first, last]
	HistogramHourOfDay HistogramMode = "hour_of_day" // 24 UTC hour bins
)

// DefaultBuckets is the histogram size used for HistogramDuration.
const DefaultBuckets = 10

const sourceEnriched = "enrichedTransactions.json"

// ExtractOptions configures Extract.
type ExtractOptions struct {
	Mode    HistogramMode
	Buckets int // Only for HistogramDuration; defaults to DefaultBuckets
}

func (o ExtractOptions) withDefaults() ExtractOptions {
	if o.Mode == "" {
		o.Mode = HistogramDuration
	}
	if o.Buckets <= 0 {
		o.Buckets = DefaultBuckets
	}
	return o
}

// ParseHistogramMode validates a histogram mode name.
func ParseHistogramMode(s string) (HistogramMode, error) {
	switch HistogramMode(s) {
	case "", HistogramDuration:
		return HistogramDuration, nil
	case HistogramHourOfDay:
		return HistogramHourOfDay, nil
	}
	return "", fmt.Errorf("unknown histogram mode %q", s)
}

// Extract computes raw per-address statistics from enriched transactions.
// A transaction without a timestamp or without a top-level sender is a
// *models.SchemaError.
func Extract(txs []models.EnrichedTransaction, opts ExtractOptions) (map[string]models.RawStats, error) {
	opts = opts.withDefaults()
	stamps := make(map[string][]int64)

	for i, tx := range txs {
		record := tx.Hash
		if record == "" {
			record = fmt.Sprintf("#%d", i)
		}
		if tx.Timestamp == nil {
			return nil, &models.SchemaError{Source: sourceEnriched, Record: record, Field: "timestamp", Reason: "missing"}
		}
		if tx.Result == nil || models.NormalizeAddress(tx.Result.From) == "" {
			return nil, &models.SchemaError{Source: sourceEnriched, Record: record, Field: "result.from", Reason: "missing"}
		}
		ts := *tx.Timestamp
		from := models.NormalizeAddress(tx.Result.From)
		stamps[from] = append(stamps[from], ts)
		collectInternalSenders(tx.Result.Calls, ts, stamps)
	}

	out := make(map[string]models.RawStats, len(stamps))
	for addr, ts := range stamps {
		out[addr] = computeStats(ts, opts)
	}
	return out, nil
}

// collectInternalSenders walks nested call frames, recording each non-empty sender.
func collectInternalSenders(calls []models.CallTrace, ts int64, stamps map[string][]int64) {
	for _, call := range calls {
		if from := models.NormalizeAddress(call.From); from != "" {
			stamps[from] = append(stamps[from], ts)
		}
		if len(call.Calls) > 0 {
			collectInternalSenders(call.Calls, ts, stamps)
		}
	}
}

func computeStats(timestamps []int64, opts ExtractOptions) models.RawStats {
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i] < timestamps[j] })
	n := len(timestamps)
	first, last := timestamps[0], timestamps[n-1]

	nTx := float64(n)
	duration := float64(last - first)
	var meanGap, stdGap float64
	if n > 1 {
		gaps := make([]float64, n-1)
		for i := 1; i < n; i++ {
			gaps[i-1] = float64(timestamps[i] - timestamps[i-1])
		}
		meanGap, stdGap = stat.PopMeanStdDev(gaps, nil)
	}

	var hist []float64
	switch opts.Mode {
	case HistogramHourOfDay:
		hist = make([]float64, 24)
		for _, ts := range timestamps {
			hist[time.Unix(ts, 0).UTC().Hour()]++
		}
	default:
		hist = make([]float64, opts.Buckets)
		interval := duration / float64(opts.Buckets)
		if interval == 0 {
			interval = 1
		}
		for _, ts := range timestamps {
			idx := int(math.Floor(float64(ts-first) / interval))
			if idx > opts.Buckets-1 {
				idx = opts.Buckets - 1
			}
			hist[idx]++
		}
	}

	return models.RawStats{
		NTx:            &nTx,
		Duration:       &duration,
		MeanTimeGap:    &meanGap,
		StdTimeGap:     &stdGap,
		ActivityVector: hist,
	}
}
