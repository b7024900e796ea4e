package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrapeforge/scrapeforge/pkg/models"
)

func TestGenerateStatisticsNumeric(t *testing.T) {
	records := []models.ProcessedRecord{
		{Fields: map[string]any{"price": 10.0}},
		{Fields: map[string]any{"price": 20.0}},
		{Fields: map[string]any{"price": 30.0}},
		{Fields: map[string]any{"price": 40.0}},
	}

	stats := GenerateStatistics(records)

	require.Contains(t, stats.NumericFields, "price")
	price := stats.NumericFields["price"]
	assert.Equal(t, 4, price.Count)
	assert.Equal(t, 10.0, price.Min)
	assert.Equal(t, 40.0, price.Max)
	assert.Equal(t, 25.0, price.Mean)
	// even-length median takes the lower-middle element
	assert.Equal(t, 20.0, price.Median)
	// population stddev of {10,20,30,40} divides by N
	assert.InDelta(t, 11.180339887, price.StdDev, 1e-6)
}

func TestGenerateStatisticsSkipsNumericStrings(t *testing.T) {
	records := []models.ProcessedRecord{
		{Fields: map[string]any{"price": "10"}},
		{Fields: map[string]any{"price": 20}},
	}

	stats := GenerateStatistics(records)

	// only actual number types feed the distribution
	require.Contains(t, stats.NumericFields, "price")
	assert.Equal(t, 1, stats.NumericFields["price"].Count)
}

func TestGenerateStatisticsDuplicates(t *testing.T) {
	records := []models.ProcessedRecord{
		{ID: "a", Fields: map[string]any{"x": 1.0, "y": "same"}},
		{ID: "b", Fields: map[string]any{"y": "same", "x": 1.0}},
		{ID: "c", Fields: map[string]any{"x": 2.0, "y": "other"}},
	}

	stats := GenerateStatistics(records)

	// duplicates compare field content, not ids or key order
	assert.Equal(t, 1, stats.DuplicateCount)
}

func TestGenerateStatisticsCompleteness(t *testing.T) {
	records := []models.ProcessedRecord{
		{Fields: map[string]any{"a": "x", "b": ""}},
		{Fields: map[string]any{"a": "y"}},
	}

	stats := GenerateStatistics(records)

	// three cells total, two filled; the ratio is over actual cells,
	// not the union of fields times record count
	assert.InDelta(t, 2.0/3.0, stats.CompletenessRatio, 1e-9)
}

func TestGenerateStatisticsEmpty(t *testing.T) {
	stats := GenerateStatistics(nil)
	assert.Zero(t, stats.RecordCount)
	assert.Zero(t, stats.DuplicateCount)
	assert.Zero(t, stats.CompletenessRatio)
	assert.Empty(t, stats.NumericFields)
}

func TestSummarizeSingleValue(t *testing.T) {
	s := summarize([]float64{7})
	assert.Equal(t, 7.0, s.Min)
	assert.Equal(t, 7.0, s.Max)
	assert.Equal(t, 7.0, s.Mean)
	assert.Equal(t, 7.0, s.Median)
	assert.Equal(t, 0.0, s.StdDev)
}
