package pipeline

import (
	"fmt"
	"regexp"

	"github.com/scrapeforge/scrapeforge/pkg/models"
)

// Issue severities.
const (
	severityLow    = "low"
	severityMedium = "medium"
	severityHigh   = "high"
)

// Assess scores a cleaned field-map along four dimensions. All four ratios
// share the same denominator: the record's field count.
//
// completeness counts non-empty fields; accuracy counts passed validation
// rule evaluations (a rule applies to the field it names, or to every field
// when its Field is empty); consistency is the deliberately weak non-null
// heuristic kept for compatibility; timeliness is fixed at 1.0 absent
// caller-supplied freshness data.
func Assess(fields map[string]any, rules []models.ValidationRule) models.DataQuality {
	quality := models.DataQuality{Timeliness: 1.0}
	total := len(fields)
	if total == 0 {
		quality.Score = quality.Timeliness / 4
		return quality
	}

	var complete, passed, consistent int
	for name, value := range fields {
		if hasValue(value) {
			complete++
		} else {
			quality.Issues = append(quality.Issues, models.QualityIssue{
				Type:        "missing",
				Field:       name,
				Description: fmt.Sprintf("field %q has no value", name),
				Severity:    severityMedium,
			})
		}

		for _, rule := range rules {
			if rule.Field != "" && rule.Field != name {
				continue
			}
			if evaluateRule(value, rule) {
				passed++
			} else {
				quality.Issues = append(quality.Issues, models.QualityIssue{
					Type:        "invalid",
					Field:       name,
					Description: fmt.Sprintf("field %q failed %s check", name, rule.Type),
					Severity:    severityHigh,
				})
			}
		}

		// Non-null means type-stable. A weak placeholder heuristic, kept
		// as-is for compatibility; see the consistency extension point.
		if value != nil {
			consistent++
		} else {
			quality.Issues = append(quality.Issues, models.QualityIssue{
				Type:        "inconsistent",
				Field:       name,
				Description: fmt.Sprintf("field %q has no stable type", name),
				Severity:    severityLow,
			})
		}
	}

	quality.Completeness = float64(complete) / float64(total)
	quality.Accuracy = float64(passed) / float64(total)
	quality.Consistency = float64(consistent) / float64(total)
	quality.Score = (quality.Completeness + quality.Accuracy + quality.Consistency + quality.Timeliness) / 4
	return quality
}

// evaluateRule applies one validation rule to one value.
func evaluateRule(value any, rule models.ValidationRule) bool {
	switch rule.Type {
	case models.ValidationRequired:
		return hasValue(value)
	case models.ValidationFormat, models.ValidationPattern:
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return false
		}
		return re.MatchString(stringify(value))
	case models.ValidationRange:
		f, ok := toFloat(value)
		return ok && f >= rule.Min && f <= rule.Max
	case models.ValidationLength:
		s, ok := value.(string)
		return ok && len(s) <= rule.MaxLength
	default:
		return false
	}
}

// hasValue reports whether a field counts as filled: not nil and not an
// empty string.
func hasValue(v any) bool {
	if v == nil {
		return false
	}
	if s, ok := v.(string); ok && s == "" {
		return false
	}
	return true
}
