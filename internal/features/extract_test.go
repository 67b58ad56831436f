package features

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rawblock/shuffle-linkage/pkg/models"
)

func ts(v int64) *int64 { return &v }

func TestExtract_TopLevelAndInternalSenders(t *testing.T) {
	txs := []models.EnrichedTransaction{
		{Hash: "0x1", Timestamp: ts(100), Result: &models.CallTrace{From: "0xAA", Calls: []models.CallTrace{
			{From: "0xBB", Calls: []models.CallTrace{{From: "0xCC"}}},
			{From: ""},
		}}},
		{Hash: "0x2", Timestamp: ts(130), Result: &models.CallTrace{From: "0xaa"}},
		{Hash: "0x3", Timestamp: ts(110), Result: &models.CallTrace{From: "0xaa"}},
	}

	raw, err := Extract(txs, ExtractOptions{})
	require.NoError(t, err)
	require.Len(t, raw, 3)

	aa := raw["0xaa"]
	assert.Equal(t, 3.0, *aa.NTx)
	assert.Equal(t, 30.0, *aa.Duration)
	assert.Equal(t, 15.0, *aa.MeanTimeGap) // gaps 10, 20
	assert.Equal(t, 5.0, *aa.StdTimeGap)   // population std
	require.Len(t, aa.ActivityVector, DefaultBuckets)
	assert.Equal(t, 1.0, aa.ActivityVector[0])
	assert.Equal(t, 1.0, aa.ActivityVector[3])
	assert.Equal(t, 1.0, aa.ActivityVector[9], "last timestamp clamps into the final bucket")

	cc := raw["0xcc"]
	assert.Equal(t, 1.0, *cc.NTx)
	assert.Equal(t, 0.0, *cc.Duration)
	assert.Equal(t, 0.0, *cc.StdTimeGap)
	assert.Equal(t, 1.0, cc.ActivityVector[0])

	// Extracted stats feed straight into Build.
	store, err := Build(raw)
	require.NoError(t, err)
	assert.Equal(t, 3, store.Len())
}

func TestExtract_HourOfDay(t *testing.T) {
	txs := []models.EnrichedTransaction{
		{Timestamp: ts(3600*5 + 10), Result: &models.CallTrace{From: "0xaa"}},
		{Timestamp: ts(86400 + 3600*5), Result: &models.CallTrace{From: "0xaa"}},
		{Timestamp: ts(3600 * 23), Result: &models.CallTrace{From: "0xaa"}},
	}
	raw, err := Extract(txs, ExtractOptions{Mode: HistogramHourOfDay})
	require.NoError(t, err)

	hist := raw["0xaa"].ActivityVector
	require.Len(t, hist, 24)
	assert.Equal(t, 2.0, hist[5])
	assert.Equal(t, 1.0, hist[23])
}

func TestExtract_SchemaErrors(t *testing.T) {
	_, err := Extract([]models.EnrichedTransaction{{Hash: "0x1", Result: &models.CallTrace{From: "0xaa"}}}, ExtractOptions{})
	var schemaErr *models.SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, "timestamp", schemaErr.Field)

	_, err = Extract([]models.EnrichedTransaction{{Timestamp: ts(1)}}, ExtractOptions{})
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, "result.from", schemaErr.Field)
	assert.Equal(t, "#0", schemaErr.Record)
}

func TestLoadEnriched(t *testing.T) {
	doc := `[{"hash":"0x1","timestamp":1700000000,"blockNumber":5,"result":{"from":"0xAA","calls":[{"from":"0xBB"}]}}]`
	txs, err := LoadEnriched(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, int64(1700000000), *txs[0].Timestamp)
	assert.Equal(t, "0xBB", txs[0].Result.Calls[0].From)
}

func TestParseHistogramMode(t *testing.T) {
	m, err := ParseHistogramMode("")
	require.NoError(t, err)
	assert.Equal(t, HistogramDuration, m)

	_, err = ParseHistogramMode("weekly")
	assert.Error(t, err)
}
