package features

import (
	"encoding/binary"
	"math"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Normalized returns a new Store whose columns are z-scored with the
// population standard deviation. Constant columns map to 0. The receiver
// is not modified.
//
// Scaling is never applied implicitly: transaction counts and durations live
// on scales many orders of magnitude apart, and callers must opt in.
func (s *Store) Normalized() *Store {
	out := &Store{
		addresses: s.Addresses(),
		index:     make(map[string]int, len(s.index)),
		excluded:  s.Excluded(),
		dups:      s.Duplicates(),
		histLen:   s.histLen,
		scaled:    true,
	}
	for addr, i := range s.index {
		out.index[addr] = i
	}

	m := s.Matrix()
	if m == nil {
		return out
	}
	rows, cols := m.Dims()
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, m)
		mean, std := stat.PopMeanStdDev(col, nil)
		for i := range col {
			if std == 0 || math.IsNaN(std) {
				col[i] = 0
			} else {
				col[i] = (col[i] - mean) / std
			}
		}
		m.SetCol(j, col)
	}

	out.vectors = make([][]float64, rows)
	for i := 0; i < rows; i++ {
		out.vectors[i] = mat.Row(nil, i, m)
	}
	return out
}

// Fingerprint identifies the snapshot content: double-SHA256 over the
// ordered addresses and the IEEE-754 bits of every vector component.
// Identical stores produce identical fingerprints, which ties a report to
// the exact feature data it was computed from.
func (s *Store) Fingerprint() chainhash.Hash {
	buf := make([]byte, 0, len(s.addresses)*(48+8*s.Dim()))
	var scratch [8]byte
	for i, addr := range s.addresses {
		buf = append(buf, addr...)
		buf = append(buf, 0)
		for _, v := range s.vectors[i] {
			binary.LittleEndian.PutUint64(scratch[:], math.Float64bits(v))
			buf = append(buf, scratch[:]...)
		}
	}
	if s.scaled {
		buf = append(buf, "zscore"...)
	}
	return chainhash.DoubleHashH(buf)
}
