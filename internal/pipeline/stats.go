package pipeline

import (
	"encoding/json"
	"math"
	"sort"
	"time"

	"github.com/scrapeforge/scrapeforge/pkg/models"
)

// GenerateStatistics summarizes a batch of processed records: per-numeric-
// field distribution, duplicate count via canonical serialization, and a
// flattened completeness ratio over the whole field×record matrix.
func GenerateStatistics(records []models.ProcessedRecord) models.DataStatistics {
	stats := models.DataStatistics{
		RecordCount:   len(records),
		NumericFields: make(map[string]models.NumericStats),
		GeneratedAt:   time.Now(),
	}

	numeric := make(map[string][]float64)
	distinct := make(map[string]struct{})
	var cells, filled int

	for _, rec := range records {
		for name, value := range rec.Fields {
			cells++
			if hasValue(value) {
				filled++
			}
			switch value.(type) {
			case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
				if f, ok := toFloat(value); ok {
					numeric[name] = append(numeric[name], f)
				}
			}
		}
		distinct[canonical(rec.Fields)] = struct{}{}
	}

	for name, values := range numeric {
		stats.NumericFields[name] = summarize(values)
	}
	if len(records) > 0 {
		stats.DuplicateCount = len(records) - len(distinct)
	}
	if cells > 0 {
		stats.CompletenessRatio = float64(filled) / float64(cells)
	}

	return stats
}

// canonical serializes a field-map to a stable string. encoding/json sorts
// map keys, so equal maps always serialize identically.
func canonical(fields map[string]any) string {
	b, err := json.Marshal(fields)
	if err != nil {
		return ""
	}
	return string(b)
}

// summarize computes min, max, mean, median, and population standard
// deviation for one numeric field. Median takes the lower-middle element on
// even-length input, and stddev divides by N. Both are deliberate, simple
// definitions.
func summarize(values []float64) models.NumericStats {
	s := models.NumericStats{Count: len(values)}
	if len(values) == 0 {
		return s
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	s.Min = sorted[0]
	s.Max = sorted[len(sorted)-1]
	s.Median = sorted[(len(sorted)-1)/2]

	var sum float64
	for _, v := range values {
		sum += v
	}
	s.Mean = sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := v - s.Mean
		sq += d * d
	}
	s.StdDev = math.Sqrt(sq / float64(len(values)))

	return s
}
