package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scrapeforge/scrapeforge/pkg/models"
)

func newTestCleaner(t *testing.T) *Cleaner {
	t.Helper()
	return NewCleaner(NewRegistry(), zap.NewNop().Sugar())
}

func TestCleanTrim(t *testing.T) {
	c := newTestCleaner(t)

	cleaned, trail := c.Clean(
		map[string]any{"name": "  Ada Lovelace  ", "age": 36},
		[]models.CleaningRule{
			{Field: "name", Operation: models.OpTrim},
			{Field: "age", Operation: models.OpTrim}, // no-op on non-strings
		},
	)

	assert.Equal(t, "Ada Lovelace", cleaned["name"])
	assert.Equal(t, 36, cleaned["age"])
	require.Len(t, trail, 2)
	assert.True(t, trail[0].Success)
	assert.True(t, trail[1].Success)
}

func TestCleanConditionGating(t *testing.T) {
	c := newTestCleaner(t)

	rules := []models.CleaningRule{{
		Field:     "name",
		Operation: models.OpTransform,
		Params:    map[string]any{"transformer": "uppercase"},
		Conditions: []models.RuleCondition{
			{Field: "status", Operator: models.CondEquals, Value: "active"},
		},
	}}

	// condition does not match: rule must not fire, no transformation recorded
	cleaned, trail := c.Clean(map[string]any{"name": "ada", "status": "inactive"}, rules)
	assert.Equal(t, "ada", cleaned["name"])
	assert.Empty(t, trail)

	// condition matches: rule fires
	cleaned, trail = c.Clean(map[string]any{"name": "ada", "status": "active"}, rules)
	assert.Equal(t, "ADA", cleaned["name"])
	require.Len(t, trail, 1)
	assert.True(t, trail[0].Success)
}

func TestCleanConditionOperators(t *testing.T) {
	tests := []struct {
		name   string
		cond   models.RuleCondition
		fields map[string]any
		want   bool
	}{
		{"contains", models.RuleCondition{Field: "s", Operator: models.CondContains, Value: "lo"}, map[string]any{"s": "hello"}, true},
		{"startsWith", models.RuleCondition{Field: "s", Operator: models.CondStartsWith, Value: "he"}, map[string]any{"s": "hello"}, true},
		{"endsWith miss", models.RuleCondition{Field: "s", Operator: models.CondEndsWith, Value: "he"}, map[string]any{"s": "hello"}, false},
		{"matches", models.RuleCondition{Field: "s", Operator: models.CondMatches, Value: `^h.*o$`}, map[string]any{"s": "hello"}, true},
		{"gt", models.RuleCondition{Field: "n", Operator: models.CondGT, Value: 5}, map[string]any{"n": 10}, true},
		{"lt miss", models.RuleCondition{Field: "n", Operator: models.CondLT, Value: 5}, map[string]any{"n": 10}, false},
		{"between", models.RuleCondition{Field: "n", Operator: models.CondBetween, Value: 5, Max: 15}, map[string]any{"n": 10}, true},
		{"between outside", models.RuleCondition{Field: "n", Operator: models.CondBetween, Value: 5, Max: 9}, map[string]any{"n": 10}, false},
		{"negated equals", models.RuleCondition{Field: "s", Operator: models.CondEquals, Value: "x", Negate: true}, map[string]any{"s": "y"}, true},
		{"absent field", models.RuleCondition{Field: "missing", Operator: models.CondEquals, Value: "x"}, map[string]any{"s": "y"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, conditionsMatch(tt.fields, []models.RuleCondition{tt.cond}))
		})
	}
}

func TestCleanUnknownOperationSoftFailure(t *testing.T) {
	c := newTestCleaner(t)

	cleaned, trail := c.Clean(
		map[string]any{"name": "ada", "city": "london"},
		[]models.CleaningRule{
			{Field: "name", Operation: models.OperationKind("explode")},
			{Field: "city", Operation: models.OpTransform, Params: map[string]any{"transformer": "uppercase"}},
		},
	)

	// unknown op marks the transformation unsuccessful but processing continues
	require.Len(t, trail, 2)
	assert.False(t, trail[0].Success)
	assert.Contains(t, trail[0].Error, "unknown operation")
	assert.Equal(t, "ada", cleaned["name"])
	assert.Equal(t, "LONDON", cleaned["city"])
}

func TestCleanValidateKeepsFieldOnFailure(t *testing.T) {
	c := newTestCleaner(t)

	cleaned, trail := c.Clean(
		map[string]any{"email": "not-an-email"},
		[]models.CleaningRule{
			{Field: "email", Operation: models.OpValidate, Params: map[string]any{"validator": "email"}},
		},
	)

	require.Len(t, trail, 1)
	assert.False(t, trail[0].Success)
	assert.Equal(t, "not-an-email", cleaned["email"])
}

func TestCleanMissingValidatorIsSoftFailure(t *testing.T) {
	c := newTestCleaner(t)

	_, trail := c.Clean(
		map[string]any{"email": "a@b.co"},
		[]models.CleaningRule{
			{Field: "email", Operation: models.OpValidate, Params: map[string]any{"validator": "nope"}},
		},
	)

	require.Len(t, trail, 1)
	assert.False(t, trail[0].Success)
	assert.Contains(t, trail[0].Error, "unknown validator")
}

func TestCleanReplace(t *testing.T) {
	c := newTestCleaner(t)

	cleaned, trail := c.Clean(
		map[string]any{"price": "$1,299.00"},
		[]models.CleaningRule{
			{Field: "price", Operation: models.OpReplace, Params: map[string]any{"pattern": `[$,]`, "replacement": ""}},
		},
	)

	require.Len(t, trail, 1)
	assert.True(t, trail[0].Success)
	assert.Equal(t, "1299.00", cleaned["price"])
}

func TestCleanNormalize(t *testing.T) {
	c := newTestCleaner(t)

	cleaned, _ := c.Clean(
		map[string]any{"code": "  AbC  "},
		[]models.CleaningRule{
			{Field: "code", Operation: models.OpNormalize, Params: map[string]any{"case": "lower", "trim": true}},
		},
	)

	assert.Equal(t, "abc", cleaned["code"])
}

func TestCleanFormatDate(t *testing.T) {
	c := newTestCleaner(t)

	cleaned, trail := c.Clean(
		map[string]any{"published": "01/02/2024"},
		[]models.CleaningRule{
			{Field: "published", Operation: models.OpFormat, Params: map[string]any{"type": "date"}},
		},
	)

	require.Len(t, trail, 1)
	assert.True(t, trail[0].Success)
	assert.Equal(t, "2024-01-02", cleaned["published"])
}

func TestCleanFilterDoesNotMutate(t *testing.T) {
	c := newTestCleaner(t)

	cleaned, trail := c.Clean(
		map[string]any{"spam": "yes"},
		[]models.CleaningRule{{Field: "spam", Operation: models.OpFilter}},
	)

	require.Len(t, trail, 1)
	assert.True(t, trail[0].Success)
	assert.Equal(t, "yes", cleaned["spam"])
	assert.Equal(t, trail[0].Before, trail[0].After)
}

func TestCleanDoesNotMutateInput(t *testing.T) {
	c := newTestCleaner(t)

	raw := map[string]any{"name": "  ada  "}
	cleaned, _ := c.Clean(raw, []models.CleaningRule{{Field: "name", Operation: models.OpTrim}})

	assert.Equal(t, "  ada  ", raw["name"])
	assert.Equal(t, "ada", cleaned["name"])
}
