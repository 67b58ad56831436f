package metrics

import (
	"errors"
	"fmt"

	"github.com/rawblock/shuffle-linkage/pkg/models"
)

// NoisePolicy decides whether an address a density-based run labeled as
// noise counts as covered. There is no default: the two policies give
// non-comparable coverage figures.
type NoisePolicy string

const (
	// NoiseCounts treats any predicted address, noise included, as covered.
	NoiseCounts NoisePolicy = "noise_counts"
	// NoiseExcluded counts only addresses placed in a genuine cluster.
	NoiseExcluded NoisePolicy = "noise_excluded"
)

const noiseLabel = -1

var ErrNoisePolicyRequired = errors.New("coverage noise policy must be chosen explicitly")

// ParseNoisePolicy validates a noise policy name.
func ParseNoisePolicy(s string) (NoisePolicy, error) {
	switch NoisePolicy(s) {
	case NoiseCounts, NoiseExcluded:
		return NoisePolicy(s), nil
	case "":
		return "", ErrNoisePolicyRequired
	}
	return "", fmt.Errorf("unknown noise policy %q", s)
}

// Coverage measures how much of the ground truth appears in any predicted
// cluster, regardless of whether that cluster is correct.
//
// pred maps addresses to cluster ids; keys are compared case-insensitively.
// When two keys fold to the same address the non-noise id wins. truth lists ground-truth
// groups in definition order; per-group lines keep that order. A group (or
// the whole ground truth) with no members reports 0/0 with Undefined set.
func Coverage(pred map[string]int, truth []models.GroupMembers, policy NoisePolicy) (models.CoverageReport, error) {
	if policy != NoiseCounts && policy != NoiseExcluded {
		if policy == "" {
			return models.CoverageReport{}, ErrNoisePolicyRequired
		}
		return models.CoverageReport{}, fmt.Errorf("unknown noise policy %q", policy)
	}

	folded := make(map[string]int, len(pred))
	for addr, c := range pred {
		norm := models.NormalizeAddress(addr)
		if prev, ok := folded[norm]; ok && prev != noiseLabel {
			continue
		}
		folded[norm] = c
	}

	covers := func(addr string) bool {
		c, ok := folded[models.NormalizeAddress(addr)]
		if !ok {
			return false
		}
		return c != noiseLabel || policy == NoiseCounts
	}

	report := models.CoverageReport{
		NoisePolicy: string(policy),
		PerGroup:    make([]models.GroupCoverage, 0, len(truth)),
	}
	seen := make(map[string]bool)
	for _, gm := range truth {
		line := models.GroupCoverage{Group: gm.Group, Total: len(gm.Addresses)}
		for _, addr := range gm.Addresses {
			hit := covers(addr)
			if hit {
				line.Covered++
			}
			norm := models.NormalizeAddress(addr)
			if _, dup := seen[norm]; dup {
				continue
			}
			seen[norm] = hit
			report.Total++
			if hit {
				report.Covered++
			}
		}
		line.Undefined = line.Total == 0
		report.PerGroup = append(report.PerGroup, line)
	}

	if report.Total == 0 {
		report.Undefined = true
		return report, nil
	}
	report.Overall = float64(report.Covered) / float64(report.Total)
	return report, nil
}
