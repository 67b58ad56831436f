package features

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rawblock/shuffle-linkage/pkg/models"
)

// LoadStats decodes a per-address feature table: a JSON object keyed by
// address. Presence of each field is preserved so Build can reject
// incomplete records.
func LoadStats(r io.Reader) (map[string]models.RawStats, error) {
	var records map[string]models.RawStats
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, &models.SchemaError{Source: sourceStats, Record: "(document)", Reason: err.Error()}
	}
	return records, nil
}

// LoadEnriched decodes the enriched transaction array.
func LoadEnriched(r io.Reader) ([]models.EnrichedTransaction, error) {
	var txs []models.EnrichedTransaction
	if err := json.NewDecoder(r).Decode(&txs); err != nil {
		return nil, &models.SchemaError{Source: sourceEnriched, Record: "(document)", Reason: err.Error()}
	}
	return txs, nil
}

// LoadStatsFile opens path and decodes it with LoadStats.
func LoadStatsFile(path string) (map[string]models.RawStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open feature table: %w", err)
	}
	defer f.Close()
	return LoadStats(f)
}

// LoadEnrichedFile opens path and decodes it with LoadEnriched.
func LoadEnrichedFile(path string) ([]models.EnrichedTransaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open enriched transactions: %w", err)
	}
	defer f.Close()
	return LoadEnriched(f)
}

// Export writes the store back as a feature table. It is a pure
// serialization of the in-memory mapping; excluded addresses are omitted.
func (s *Store) Export(w io.Writer) error {
	out := make(map[string]models.RawStats, len(s.addresses))
	for i, addr := range s.addresses {
		v := s.vectors[i]
		out[addr] = models.RawStats{
			NTx:            &v[0],
			Duration:       &v[1],
			MeanTimeGap:    &v[2],
			StdTimeGap:     &v[3],
			ActivityVector: v[BaseFeatures:],
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// ExportRaw writes raw statistics (as produced by Extract) in the same format.
func ExportRaw(w io.Writer, stats map[string]models.RawStats) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(stats)
}
