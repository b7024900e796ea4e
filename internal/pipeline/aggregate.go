package pipeline

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/scrapeforge/scrapeforge/pkg/models"
)

// defaultGroup collects records that lack the grouping field.
const defaultGroup = "default"

// Aggregate groups processed records and reduces grouped values per rule.
// The grouping key is the stringified value of the first field referenced
// by the first rule; grouping is single-key by design. Output rows appear
// in first-seen group order and remember their source record ids.
func Aggregate(records []models.ProcessedRecord, rules []models.AggregationRule) []models.AggregatedData {
	if len(records) == 0 || len(rules) == 0 {
		return nil
	}

	groupField := ""
	if len(rules[0].Fields) > 0 {
		groupField = rules[0].Fields[0]
	}

	groups := make(map[string][]models.ProcessedRecord)
	var order []string
	for _, rec := range records {
		key := defaultGroup
		if groupField != "" {
			if v := lookupPath(rec.Fields, groupField); v != nil {
				key = stringify(v)
			}
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], rec)
	}

	out := make([]models.AggregatedData, 0, len(order))
	for _, key := range order {
		members := groups[key]

		row := models.AggregatedData{
			ID:        uuid.New().String(),
			Fields:    map[string]any{"group": key},
			Rules:     rules,
			CreatedAt: time.Now(),
		}
		for _, rec := range members {
			row.SourceIDs = append(row.SourceIDs, rec.ID)
		}

		for _, rule := range rules {
			if len(rule.Fields) == 0 {
				continue
			}
			field := rule.Fields[0]

			values := make([]any, 0, len(members))
			for _, rec := range members {
				if v := lookupPath(rec.Fields, field); v != nil {
					values = append(values, v)
				}
			}
			row.Fields[field] = reduce(values, rule)
		}

		out = append(out, row)
	}

	return out
}

// reduce applies one aggregation operation to the non-null values of a
// group.
func reduce(values []any, rule models.AggregationRule) any {
	switch rule.Operation {
	case models.AggSum:
		var sum float64
		for _, f := range numericOnly(values) {
			sum += f
		}
		return sum
	case models.AggAverage:
		nums := numericOnly(values)
		if len(nums) == 0 {
			return nil
		}
		var sum float64
		for _, f := range nums {
			sum += f
		}
		return sum / float64(len(nums))
	case models.AggMin:
		nums := numericOnly(values)
		if len(nums) == 0 {
			return nil
		}
		min := nums[0]
		for _, f := range nums[1:] {
			if f < min {
				min = f
			}
		}
		return min
	case models.AggMax:
		nums := numericOnly(values)
		if len(nums) == 0 {
			return nil
		}
		max := nums[0]
		for _, f := range nums[1:] {
			if f > max {
				max = f
			}
		}
		return max
	case models.AggCount:
		return len(values)
	case models.AggConcat:
		sep := ","
		if s := stringify(rule.Params["separator"]); s != "" {
			sep = s
		}
		parts := make([]string, 0, len(values))
		for _, v := range values {
			parts = append(parts, stringify(v))
		}
		return strings.Join(parts, sep)
	case models.AggFirst:
		if len(values) == 0 {
			return nil
		}
		return values[0]
	case models.AggLast:
		if len(values) == 0 {
			return nil
		}
		return values[len(values)-1]
	case models.AggMerge:
		// shallow object merge, later values win
		merged := make(map[string]any)
		for _, v := range values {
			if m, ok := v.(map[string]any); ok {
				for k, mv := range m {
					merged[k] = mv
				}
			}
		}
		return merged
	default:
		return nil
	}
}

// numericOnly filters a value list down to its numeric members.
func numericOnly(values []any) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if f, ok := toFloat(v); ok {
			out = append(out, f)
		}
	}
	return out
}

// lookupPath resolves a dotted path against a field-map, returning nil on
// any missing intermediate segment.
func lookupPath(fields map[string]any, path string) any {
	current := any(fields)
	for _, segment := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current, ok = m[segment]
		if !ok {
			return nil
		}
	}
	return current
}
