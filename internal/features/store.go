package features

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/rawblock/shuffle-linkage/pkg/models"
)

// Feature Store
//
// Every address becomes one fixed-length vector:
//
//	[n_tx, duration, mean_time_gap, std_time_gap, activity_0 .. activity_{B-1}]
//
// All vectors in one store share the same length and field order. The
// store is a read-only snapshot: clustering runs and sweeps share it without
// locking.

// BaseFeatures is the number of scalar features preceding the histogram.
const BaseFeatures = 4

const histogramSumTolerance = 1e-6

// FieldNames lists the scalar feature names in vector order.
var FieldNames = [BaseFeatures]string{"n_tx", "duration", "mean_time_gap", "std_time_gap"}

const sourceStats = "addressFeatures.json"

// Store maps normalized addresses to feature vectors.
type Store struct {
	addresses []string       // sorted
	index     map[string]int // address -> row
	vectors   [][]float64
	histLen   int
	excluded  []string // addresses with no observed transactions
	dups      []models.DuplicateKeyError
	scaled    bool
}

// Build validates raw per-address statistics and assembles a Store.
//
// Fails with *models.SchemaError when a record is missing a field, carries
// a non-finite value, or has a histogram whose length differs from the rest.
// Raw keys that fold to the same address and agree collapse into one row.
// When they disagree on any field the address is left out of the store and
// the disagreement is recorded in Duplicates; the rest of the table still
// loads.
func Build(records map[string]models.RawStats) (*Store, error) {
	// Deterministic visiting order: error reports and duplicate resolution
	// must not depend on map iteration.
	rawKeys := make([]string, 0, len(records))
	for k := range records {
		rawKeys = append(rawKeys, k)
	}
	sort.Strings(rawKeys)

	s := &Store{index: make(map[string]int), histLen: -1}
	seenRaw := make(map[string]string)  // normalized -> first raw key
	rows := make(map[string][]float64) // normalized -> vector
	conflicted := make(map[string]bool)

	for _, raw := range rawKeys {
		addr := models.NormalizeAddress(raw)
		if addr == "" {
			return nil, &models.SchemaError{Source: sourceStats, Record: fmt.Sprintf("%q", raw), Reason: "empty address"}
		}
		vec, err := vectorFromStats(raw, records[raw])
		if err != nil {
			return nil, err
		}

		hist := len(vec) - BaseFeatures
		if s.histLen < 0 {
			s.histLen = hist
		} else if hist != s.histLen {
			return nil, &models.SchemaError{
				Source: sourceStats, Record: raw, Field: "activity_vector",
				Reason: fmt.Sprintf("length %d, expected %d", hist, s.histLen),
			}
		}

		if first, dup := seenRaw[addr]; dup {
			if field := firstDifference(rows[addr], vec); field != "" {
				s.dups = append(s.dups, models.DuplicateKeyError{Address: addr, First: first, Second: raw, Field: field})
				conflicted[addr] = true
			}
			continue
		}
		seenRaw[addr] = raw
		rows[addr] = vec
	}

	for addr, vec := range rows {
		if conflicted[addr] {
			continue
		}
		if vec[0] == 0 {
			s.excluded = append(s.excluded, addr)
			continue
		}
		s.addresses = append(s.addresses, addr)
	}
	sort.Strings(s.addresses)
	sort.Strings(s.excluded)

	s.vectors = make([][]float64, len(s.addresses))
	for i, addr := range s.addresses {
		s.index[addr] = i
		s.vectors[i] = rows[addr]
	}
	if s.histLen < 0 {
		s.histLen = 0
	}
	return s, nil
}

// vectorFromStats flattens one record, checking presence and finiteness.
func vectorFromStats(raw string, r models.RawStats) ([]float64, error) {
	scalars := [BaseFeatures]*float64{r.NTx, r.Duration, r.MeanTimeGap, r.StdTimeGap}
	vec := make([]float64, 0, BaseFeatures+len(r.ActivityVector))
	for i, p := range scalars {
		if p == nil {
			return nil, &models.SchemaError{Source: sourceStats, Record: raw, Field: FieldNames[i], Reason: "missing"}
		}
		vec = append(vec, *p)
	}
	if r.ActivityVector == nil {
		return nil, &models.SchemaError{Source: sourceStats, Record: raw, Field: "activity_vector", Reason: "missing"}
	}
	vec = append(vec, r.ActivityVector...)

	for i, v := range vec {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &models.SchemaError{Source: sourceStats, Record: raw, Field: fieldName(i), Reason: "not a finite number"}
		}
	}
	if vec[0] < 0 {
		return nil, &models.SchemaError{Source: sourceStats, Record: raw, Field: "n_tx", Reason: "negative transaction count"}
	}

	// The histogram sums to n_tx, or to 1 when it was normalized upstream.
	if vec[0] > 0 && len(r.ActivityVector) > 0 {
		sum := floats.Sum(r.ActivityVector)
		if math.Abs(sum-vec[0]) > histogramSumTolerance && math.Abs(sum-1) > histogramSumTolerance {
			return nil, &models.SchemaError{
				Source: sourceStats, Record: raw, Field: "activity_vector",
				Reason: fmt.Sprintf("sums to %g, expected n_tx (%g) or 1", sum, vec[0]),
			}
		}
	}
	return vec, nil
}

func fieldName(i int) string {
	if i < BaseFeatures {
		return FieldNames[i]
	}
	return fmt.Sprintf("activity_vector[%d]", i-BaseFeatures)
}

// firstDifference names the first field where a and b differ, or "".
func firstDifference(a, b []float64) string {
	if len(a) != len(b) {
		return "activity_vector"
	}
	for i := range a {
		if a[i] != b[i] {
			return fieldName(i)
		}
	}
	return ""
}

// Len returns the number of addresses holding a vector.
func (s *Store) Len() int { return len(s.addresses) }

// Dim returns the vector length.
func (s *Store) Dim() int { return BaseFeatures + s.histLen }

// HistogramLen returns the number of activity bins.
func (s *Store) HistogramLen() int { return s.histLen }

// Scaled reports whether the store went through Normalized.
func (s *Store) Scaled() bool { return s.scaled }

// Addresses returns the addresses in vector order (sorted).
func (s *Store) Addresses() []string {
	out := make([]string, len(s.addresses))
	copy(out, s.addresses)
	return out
}

// Excluded returns addresses dropped because they had no transactions.
func (s *Store) Excluded() []string {
	out := make([]string, len(s.excluded))
	copy(out, s.excluded)
	return out
}

// Duplicates returns the disagreeing duplicate keys found by Build, in raw
// key order. Their addresses are absent from the store.
func (s *Store) Duplicates() []models.DuplicateKeyError {
	out := make([]models.DuplicateKeyError, len(s.dups))
	copy(out, s.dups)
	return out
}

// Get returns a copy of the vector for addr. The address is normalized first.
func (s *Store) Get(addr string) ([]float64, bool) {
	i, ok := s.index[models.NormalizeAddress(addr)]
	if !ok {
		return nil, false
	}
	out := make([]float64, len(s.vectors[i]))
	copy(out, s.vectors[i])
	return out, true
}

// Row returns the vector at position i without copying. Callers must not
// modify it.
func (s *Store) Row(i int) []float64 { return s.vectors[i] }

// Matrix returns the vectors as an n×d dense matrix (a copy).
func (s *Store) Matrix() *mat.Dense {
	if len(s.vectors) == 0 {
		return nil
	}
	d := s.Dim()
	data := make([]float64, 0, len(s.vectors)*d)
	for _, v := range s.vectors {
		data = append(data, v...)
	}
	return mat.NewDense(len(s.vectors), d, data)
}
