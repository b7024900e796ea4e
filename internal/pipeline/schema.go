package pipeline

import (
	"reflect"
	"time"

	"github.com/scrapeforge/scrapeforge/pkg/models"
)

// requiredThreshold is the presence ratio above which a field is marked
// required in the inferred schema.
const requiredThreshold = 0.9

// typeRank orders the field-type taxonomy by specificity. When a field
// shows two inferred types across records, the higher-ranked type wins:
// a monotonic widening rule, not a union type.
var typeRank = map[models.FieldType]int{
	models.TypeString:  0,
	models.TypeDate:    1,
	models.TypePhone:   2,
	models.TypeEmail:   3,
	models.TypeURL:     4,
	models.TypeNumber:  5,
	models.TypeBoolean: 6,
	models.TypeArray:   7,
	models.TypeObject:  8,
}

// InferFieldType classifies one value into the field-type taxonomy.
// Strings are probed in specificity order: email, url, phone, then date.
func InferFieldType(value any) models.FieldType {
	switch v := value.(type) {
	case nil:
		return models.TypeString
	case bool:
		return models.TypeBoolean
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return models.TypeNumber
	case string:
		switch {
		case emailPattern.MatchString(v):
			return models.TypeEmail
		case urlPattern.MatchString(v):
			return models.TypeURL
		case phonePattern.MatchString(v):
			return models.TypePhone
		default:
			if _, err := parseDate(v); err == nil {
				return models.TypeDate
			}
			return models.TypeString
		}
	case map[string]any:
		return models.TypeObject
	case []any:
		return models.TypeArray
	}

	switch reflect.TypeOf(value).Kind() {
	case reflect.Slice, reflect.Array:
		return models.TypeArray
	case reflect.Map, reflect.Struct:
		return models.TypeObject
	default:
		return models.TypeString
	}
}

// InferSchema derives a per-field schema across a batch of processed
// records. Types widen monotonically by specificity and never downgrade;
// a field is required iff present and non-empty in more than 90% of the
// batch.
func InferSchema(records []models.ProcessedRecord) models.DataSchema {
	schema := models.DataSchema{
		Fields:      make(map[string]models.SchemaField),
		RecordCount: len(records),
		InferredAt:  time.Now(),
	}

	presence := make(map[string]int)
	for _, rec := range records {
		for name, value := range rec.Fields {
			inferred := InferFieldType(value)
			existing, seen := schema.Fields[name]
			if !seen || typeRank[inferred] > typeRank[existing.Type] {
				schema.Fields[name] = models.SchemaField{Name: name, Type: inferred}
			}
			if hasValue(value) {
				presence[name]++
			}
		}
	}

	if len(records) > 0 {
		for name, field := range schema.Fields {
			ratio := float64(presence[name]) / float64(len(records))
			field.Required = ratio > requiredThreshold
			schema.Fields[name] = field
		}
	}

	return schema
}
