package models

import "time"

// ExtractionMeta describes how a raw record was captured.
type ExtractionMeta struct {
	StatusCode int    `json:"statusCode,omitempty"`
	LoadTimeMS int64  `json:"loadTimeMs,omitempty"`
	Method     string `json:"method,omitempty"`
}

// RawRecord is one record captured from one page. Immutable once captured.
type RawRecord struct {
	ID         string         `json:"id"`
	SourceURL  string         `json:"sourceUrl,omitempty"`
	CapturedAt time.Time      `json:"capturedAt"`
	Fields     map[string]any `json:"fields"`
	Meta       ExtractionMeta `json:"meta,omitempty"`
}

// DataTransformation is one audit-trail entry for a cleaning rule applied
// to one field. Success=false means the step was a no-op (unknown operation,
// missing validator, failed validation) and Error carries the reason.
type DataTransformation struct {
	Field     string `json:"field"`
	Operation string `json:"operation"`
	Before    any    `json:"before"`
	After     any    `json:"after"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// QualityIssue is one itemized finding from quality assessment.
type QualityIssue struct {
	Type        string `json:"type"`
	Field       string `json:"field"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
}

// DataQuality scores one cleaned record along four independent dimensions,
// each a ratio in [0,1] computed over the same field denominator. Score is
// the arithmetic mean of the four.
type DataQuality struct {
	Completeness float64        `json:"completeness"`
	Accuracy     float64        `json:"accuracy"`
	Consistency  float64        `json:"consistency"`
	Timeliness   float64        `json:"timeliness"`
	Issues       []QualityIssue `json:"issues,omitempty"`
	Score        float64        `json:"score"`
}

// ProcessedRecord is the output of the cleaning engine for one raw record.
// Never mutated after creation; a re-run produces a new ProcessedRecord.
type ProcessedRecord struct {
	ID              string               `json:"id"`
	RawID           string               `json:"rawId"`
	Fields          map[string]any       `json:"fields"`
	Transformations []DataTransformation `json:"transformations,omitempty"`
	Quality         DataQuality          `json:"quality"`
	ProcessedAt     time.Time            `json:"processedAt"`
}

// AggregatedData is one reduced row, one per distinct group key. SourceIDs
// lists the ProcessedRecord ids that fed the row.
type AggregatedData struct {
	ID        string            `json:"id"`
	SourceIDs []string          `json:"sourceIds"`
	Fields    map[string]any    `json:"fields"`
	Rules     []AggregationRule `json:"rules"`
	CreatedAt time.Time         `json:"createdAt"`
}

// FieldType is the inferred type taxonomy for schema inference, ordered by
// specificity: string < date < phone < email < url < number < boolean <
// array < object.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeDate    FieldType = "date"
	TypePhone   FieldType = "phone"
	TypeEmail   FieldType = "email"
	TypeURL     FieldType = "url"
	TypeNumber  FieldType = "number"
	TypeBoolean FieldType = "boolean"
	TypeArray   FieldType = "array"
	TypeObject  FieldType = "object"
)

// SchemaField is one inferred field entry. Required is set when the field's
// presence ratio across the batch exceeds 0.9.
type SchemaField struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
}

// DataSchema is the schema inferred across a batch of processed records.
type DataSchema struct {
	Fields      map[string]SchemaField `json:"fields"`
	RecordCount int                    `json:"recordCount"`
	InferredAt  time.Time              `json:"inferredAt"`
}

// NumericStats are distributional statistics for one numeric field.
// Median is the lower-middle element on even-length input and StdDev is the
// population deviation (divide by N).
type NumericStats struct {
	Count  int     `json:"count"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"stdDev"`
}

// DataStatistics summarizes a batch of processed records.
type DataStatistics struct {
	RecordCount       int                     `json:"recordCount"`
	NumericFields     map[string]NumericStats `json:"numericFields,omitempty"`
	DuplicateCount    int                     `json:"duplicateCount"`
	CompletenessRatio float64                 `json:"completenessRatio"`
	GeneratedAt       time.Time               `json:"generatedAt"`
}
