package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrapeforge/scrapeforge/pkg/models"
)

func TestInferFieldType(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  models.FieldType
	}{
		{"nil", nil, models.TypeString},
		{"bool", true, models.TypeBoolean},
		{"int", 42, models.TypeNumber},
		{"float", 3.14, models.TypeNumber},
		{"email", "ada@example.com", models.TypeEmail},
		{"url", "https://example.com/page", models.TypeURL},
		{"phone", "+1 555 123 4567", models.TypePhone},
		{"date", "01 Jun 2024", models.TypeDate},
		// all-digit dates satisfy the phone probe first
		{"numeric date", "2024-06-01", models.TypePhone},
		{"plain string", "hello world", models.TypeString},
		{"object", map[string]any{"k": 1}, models.TypeObject},
		{"array", []any{1, 2}, models.TypeArray},
		{"typed slice", []string{"a"}, models.TypeArray},
		{"struct", struct{ X int }{1}, models.TypeObject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InferFieldType(tt.value))
		})
	}
}

func TestInferSchemaWidening(t *testing.T) {
	records := []models.ProcessedRecord{
		{Fields: map[string]any{"contact": "ada@example.com"}},
		{Fields: map[string]any{"contact": "not an email"}},
	}

	schema := InferSchema(records)

	// email outranks plain string, so the field never downgrades
	require.Contains(t, schema.Fields, "contact")
	assert.Equal(t, models.TypeEmail, schema.Fields["contact"].Type)
	assert.Equal(t, 2, schema.RecordCount)

	// reverse order widens the same way
	schema = InferSchema([]models.ProcessedRecord{records[1], records[0]})
	assert.Equal(t, models.TypeEmail, schema.Fields["contact"].Type)
}

func TestInferSchemaRequired(t *testing.T) {
	records := make([]models.ProcessedRecord, 0, 10)
	for i := 0; i < 10; i++ {
		fields := map[string]any{"always": "x"}
		if i < 9 {
			fields["mostly"] = "y"
		} else {
			fields["mostly"] = ""
		}
		records = append(records, models.ProcessedRecord{Fields: fields})
	}

	schema := InferSchema(records)

	// present in 100% of records: required
	assert.True(t, schema.Fields["always"].Required)
	// present in exactly 90%: not strictly above the threshold
	assert.False(t, schema.Fields["mostly"].Required)
}

func TestInferSchemaEmptyBatch(t *testing.T) {
	schema := InferSchema(nil)
	assert.Empty(t, schema.Fields)
	assert.Zero(t, schema.RecordCount)
}
