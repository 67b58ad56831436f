package metrics

import (
	"errors"

	"github.com/rawblock/shuffle-linkage/pkg/models"
)

var ErrNoCandidates = errors.New("no scored candidates to choose from")

// BestOf selects the sweep candidate with the highest ARI. Ties go to the
// smallest k. Candidates that failed to score are ignored.
func BestOf(candidates []models.SweepCandidate) (models.SweepCandidate, error) {
	var best models.SweepCandidate
	found := false
	for _, c := range candidates {
		if !c.Valid() {
			continue
		}
		if !found || c.ARI > best.ARI || (c.ARI == best.ARI && c.K < best.K) {
			best, found = c, true
		}
	}
	if !found {
		return models.SweepCandidate{}, ErrNoCandidates
	}
	return best, nil
}
