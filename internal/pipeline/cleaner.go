package pipeline

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/scrapeforge/scrapeforge/internal/errs"
	"github.com/scrapeforge/scrapeforge/pkg/models"
)

// Cleaner applies conditional field-level rules to a raw field-map,
// producing a cleaned copy plus an ordered transformation audit trail.
type Cleaner struct {
	registry *Registry
	log      *zap.SugaredLogger
}

// NewCleaner creates a cleaning engine backed by the given registry.
func NewCleaner(registry *Registry, log *zap.SugaredLogger) *Cleaner {
	return &Cleaner{
		registry: registry,
		log:      log.With("component", "cleaner"),
	}
}

// operationFunc applies one cleaning operation to the current value of a
// field. It returns the new value and whether the step succeeded; errText
// explains a failure. A failed step never removes the field.
type operationFunc func(c *Cleaner, value any, params map[string]any) (after any, ok bool, errText string)

// operationTable is the closed dispatch table for cleaning operations.
// Rule content arrives from user-authored configs, so an operation kind
// missing from this table degrades to a soft failure at apply time.
var operationTable = map[models.OperationKind]operationFunc{
	models.OpTrim:      opTrim,
	models.OpNormalize: opNormalize,
	models.OpFormat:    opFormat,
	models.OpValidate:  opValidate,
	models.OpTransform: opTransform,
	models.OpFilter:    opFilter,
	models.OpReplace:   opReplace,
}

// Clean applies the rules to the raw field-map and returns a cleaned copy
// plus the transformations applied, in rule order. Only rules whose
// conditions all match the record fire; a rule targeting an absent field is
// skipped silently.
func (c *Cleaner) Clean(raw map[string]any, rules []models.CleaningRule) (map[string]any, []models.DataTransformation) {
	cleaned := make(map[string]any, len(raw))
	for k, v := range raw {
		cleaned[k] = v
	}

	var trail []models.DataTransformation
	for _, rule := range rules {
		before, present := cleaned[rule.Field]
		if !present {
			continue
		}
		if !conditionsMatch(cleaned, rule.Conditions) {
			continue
		}

		tr := models.DataTransformation{
			Field:     rule.Field,
			Operation: string(rule.Operation),
			Before:    before,
			After:     before,
		}

		handler, known := operationTable[rule.Operation]
		if !known {
			tr.Success = false
			tr.Error = errs.Wrapf(errs.ErrRule, "unknown operation %q", rule.Operation).Error()
			trail = append(trail, tr)
			continue
		}

		after, ok, errText := handler(c, before, rule.Params)
		tr.After = after
		tr.Success = ok
		tr.Error = errText
		if ok {
			cleaned[rule.Field] = after
		}
		trail = append(trail, tr)
	}

	return cleaned, trail
}

// conditionsMatch evaluates rule preconditions with AND semantics.
func conditionsMatch(fields map[string]any, conds []models.RuleCondition) bool {
	for _, cond := range conds {
		matched := conditionMatches(fields, cond)
		if cond.Negate {
			matched = !matched
		}
		if !matched {
			return false
		}
	}
	return true
}

func conditionMatches(fields map[string]any, cond models.RuleCondition) bool {
	value, present := fields[cond.Field]
	if !present {
		return false
	}

	switch cond.Operator {
	case models.CondEquals:
		return stringify(value) == stringify(cond.Value)
	case models.CondContains:
		return strings.Contains(stringify(value), stringify(cond.Value))
	case models.CondStartsWith:
		return strings.HasPrefix(stringify(value), stringify(cond.Value))
	case models.CondEndsWith:
		return strings.HasSuffix(stringify(value), stringify(cond.Value))
	case models.CondMatches:
		re, err := regexp.Compile(stringify(cond.Value))
		if err != nil {
			return false
		}
		return re.MatchString(stringify(value))
	case models.CondGT:
		v, ok1 := toFloat(value)
		t, ok2 := toFloat(cond.Value)
		return ok1 && ok2 && v > t
	case models.CondLT:
		v, ok1 := toFloat(value)
		t, ok2 := toFloat(cond.Value)
		return ok1 && ok2 && v < t
	case models.CondBetween:
		v, ok1 := toFloat(value)
		lo, ok2 := toFloat(cond.Value)
		hi, ok3 := toFloat(cond.Max)
		return ok1 && ok2 && ok3 && v >= lo && v <= hi
	default:
		return false
	}
}

func opTrim(_ *Cleaner, value any, _ map[string]any) (any, bool, string) {
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s), true, ""
	}
	// no-op on non-strings
	return value, true, ""
}

func opNormalize(_ *Cleaner, value any, params map[string]any) (any, bool, string) {
	s, ok := value.(string)
	if !ok {
		return value, true, ""
	}
	if trim, _ := params["trim"].(bool); trim {
		s = strings.TrimSpace(s)
	}
	switch stringify(params["case"]) {
	case "upper":
		s = strings.ToUpper(s)
	case "lower":
		s = strings.ToLower(s)
	}
	return s, true, ""
}

// opFormat currently supports date reformatting only.
func opFormat(_ *Cleaner, value any, params map[string]any) (any, bool, string) {
	kind := stringify(params["type"])
	if kind != "date" {
		return value, false, fmt.Sprintf("unsupported format type %q", kind)
	}
	s, ok := value.(string)
	if !ok {
		return value, false, "format: value is not a string"
	}
	t, err := parseDate(s)
	if err != nil {
		return value, false, err.Error()
	}
	layout := stringify(params["layout"])
	if layout == "" {
		layout = "2006-01-02"
	}
	return t.Format(layout), true, ""
}

// opValidate runs a named validator; on failure the transformation is
// marked unsuccessful but the field value is left in place.
func opValidate(c *Cleaner, value any, params map[string]any) (any, bool, string) {
	name := stringify(params["validator"])
	fn, ok := c.registry.Validator(name)
	if !ok {
		return value, false, errs.Wrapf(errs.ErrRule, "unknown validator %q", name).Error()
	}
	if !fn(value) {
		return value, false, fmt.Sprintf("validation %q failed", name)
	}
	return value, true, ""
}

func opTransform(c *Cleaner, value any, params map[string]any) (any, bool, string) {
	name := stringify(params["transformer"])
	fn, ok := c.registry.Transformer(name)
	if !ok {
		return value, false, errs.Wrapf(errs.ErrRule, "unknown transformer %q", name).Error()
	}
	return fn(value), true, ""
}

// opFilter marks the record for exclusion without mutating the value; the
// caller decides exclusion policy from the audit trail.
func opFilter(_ *Cleaner, value any, _ map[string]any) (any, bool, string) {
	return value, true, ""
}

func opReplace(_ *Cleaner, value any, params map[string]any) (any, bool, string) {
	s, ok := value.(string)
	if !ok {
		return value, false, "replace: value is not a string"
	}
	re, err := regexp.Compile(stringify(params["pattern"]))
	if err != nil {
		return value, false, fmt.Sprintf("replace: bad pattern: %v", err)
	}
	return re.ReplaceAllString(s, stringify(params["replacement"])), true, ""
}

// stringify renders a value the way rule comparisons expect: numbers
// without a trailing .0, everything else via fmt.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// toFloat coerces numeric values (and numeric strings) to float64.
func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
