package alignment

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rawblock/shuffle-linkage/internal/groundtruth"
	"github.com/rawblock/shuffle-linkage/pkg/models"
)

func truthOf(t *testing.T, groups map[string][]string, order ...string) *groundtruth.Mapping {
	t.Helper()
	var recs []models.RoleGroupRecord
	for _, role := range order {
		rec := models.RoleGroupRecord{Role: role}
		for _, a := range groups[role] {
			rec.Addresses = append(rec.Addresses, models.ShuffledAccount{SmartAccountAddress: a})
		}
		recs = append(recs, rec)
	}
	res, err := groundtruth.NewResolver(groundtruth.Sources{Groups: recs}).Resolve(groundtruth.StrategyExplicit)
	require.NoError(t, err)
	return res.Mapping
}

func TestAlign_Intersection(t *testing.T) {
	truth := truthOf(t, map[string][]string{
		"attacker": {"0xAA", "0xbb"},
		"victim":   {"0xcc", "0xdd"},
	}, "attacker", "victim")
	pred := map[string]int{"0xaa": 7, "0xBB": 7, "0xcc": 3, "0xee": 3}

	got, err := Align(pred, truth, DomainIntersection)
	require.NoError(t, err)

	assert.Equal(t, []string{"0xaa", "0xbb", "0xcc"}, got.Addresses)
	assert.Equal(t, []int{0, 0, 1}, got.True)
	assert.Equal(t, []int{0, 0, 1}, got.Pred)
	assert.Equal(t, len(got.True), len(got.Pred))
	for i, addr := range got.Addresses {
		_, hasTruth := truth.Lookup(addr)
		_, hasPred := pred[addr]
		assert.True(t, hasTruth, addr)
		if addr != "0xbb" {
			assert.True(t, hasPred, addr)
		}
		assert.NotEqual(t, Sentinel, got.True[i])
	}
}

func TestAlign_UnionUsesSentinel(t *testing.T) {
	truth := truthOf(t, map[string][]string{
		"attacker": {"0xaa", "0xbb"},
		"victim":   {"0xcc", "0xdd"},
	}, "attacker", "victim")
	pred := map[string]int{"0xaa": 4, "0xbb": -1, "0xcc": 9, "0xee": 4}

	got, err := Align(pred, truth, DomainUnion)
	require.NoError(t, err)

	assert.Equal(t, []string{"0xaa", "0xbb", "0xcc", "0xdd", "0xee"}, got.Addresses)
	assert.Equal(t, []int{0, 0, 1, 1, Sentinel}, got.True)
	assert.Equal(t, []int{0, Sentinel, 1, Sentinel, 0}, got.Pred)
	assert.Equal(t, 5, got.Len())
}

func TestAlign_IntersectionKeepsNoise(t *testing.T) {
	truth := truthOf(t, map[string][]string{"a": {"0x01", "0x02"}}, "a")

	got, err := Align(map[string]int{"0x01": -1, "0x02": 5}, truth, DomainIntersection)
	require.NoError(t, err)

	assert.Equal(t, []int{Sentinel, 0}, got.Pred)
}

func TestAlign_DenseFirstSeenRelabeling(t *testing.T) {
	// "victim" is defined first but "attacker" is seen first in address order.
	truth := truthOf(t, map[string][]string{
		"victim":   {"0xff"},
		"attacker": {"0x01"},
	}, "victim", "attacker")

	got, err := Align(map[string]int{"0x01": 42, "0xff": 17}, truth, DomainIntersection)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1}, got.True)
	assert.Equal(t, []int{0, 1}, got.Pred)
}

func TestAlign_DomainRequired(t *testing.T) {
	truth := truthOf(t, map[string][]string{"a": {"0x01"}}, "a")

	_, err := Align(map[string]int{"0x01": 0}, truth, DomainUnset)
	assert.True(t, errors.Is(err, ErrDomainRequired))

	_, err = ParseDomain("")
	assert.True(t, errors.Is(err, ErrDomainRequired))
	d, err := ParseDomain("union")
	require.NoError(t, err)
	assert.Equal(t, "union", d.String())
	_, err = ParseDomain("outer")
	assert.Error(t, err)
}

func TestAlign_FoldedPredictionConflict(t *testing.T) {
	truth := truthOf(t, map[string][]string{"attacker": {"0xaa"}}, "attacker")

	t.Run("same id collapses", func(t *testing.T) {
		got, err := Align(map[string]int{"0xAA": 4, "0xaa": 4}, truth, DomainIntersection)
		require.NoError(t, err)
		assert.Equal(t, []string{"0xaa"}, got.Addresses)
	})

	t.Run("different ids fail", func(t *testing.T) {
		_, err := Align(map[string]int{"0xAA": 4, "0xaa": 1}, truth, DomainIntersection)
		var conflict *models.ConflictError
		require.True(t, errors.As(err, &conflict))
		assert.Equal(t, "0xaa", conflict.Address)
		assert.Equal(t, "cluster 1", conflict.First)
		assert.Equal(t, "cluster 4", conflict.Second)
	})
}
