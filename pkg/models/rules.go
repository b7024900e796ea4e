package models

// OperationKind enumerates the cleaning operations. Rule content arrives
// from user-authored configs, so unknown kinds survive parsing; the cleaner
// degrades them to an unsuccessful transformation at apply time.
type OperationKind string

const (
	OpTrim      OperationKind = "trim"
	OpNormalize OperationKind = "normalize"
	OpFormat    OperationKind = "format"
	OpValidate  OperationKind = "validate"
	OpTransform OperationKind = "transform"
	OpFilter    OperationKind = "filter"
	OpReplace   OperationKind = "replace"
)

// ConditionOperator enumerates the precondition comparators.
type ConditionOperator string

const (
	CondEquals     ConditionOperator = "equals"
	CondContains   ConditionOperator = "contains"
	CondStartsWith ConditionOperator = "startsWith"
	CondEndsWith   ConditionOperator = "endsWith"
	CondMatches    ConditionOperator = "matches"
	CondGT         ConditionOperator = "gt"
	CondLT         ConditionOperator = "lt"
	CondBetween    ConditionOperator = "between"
)

// RuleCondition is one precondition on a cleaning rule. For the between
// operator Value is the lower bound and Max the upper. Negate inverts the
// outcome.
type RuleCondition struct {
	Field    string            `json:"field" yaml:"field"`
	Operator ConditionOperator `json:"operator" yaml:"operator"`
	Value    any               `json:"value,omitempty" yaml:"value,omitempty"`
	Max      any               `json:"max,omitempty" yaml:"max,omitempty"`
	Negate   bool              `json:"negate,omitempty" yaml:"negate,omitempty"`
}

// CleaningRule is a conditional field-level transformation. The rule fires
// only when every condition matches (AND semantics).
type CleaningRule struct {
	Field      string          `json:"field" yaml:"field"`
	Operation  OperationKind   `json:"operation" yaml:"operation"`
	Params     map[string]any  `json:"params,omitempty" yaml:"params,omitempty"`
	Conditions []RuleCondition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// ValidationRuleType enumerates the quality-assessment rule kinds.
type ValidationRuleType string

const (
	ValidationRequired ValidationRuleType = "required"
	ValidationFormat   ValidationRuleType = "format"
	ValidationPattern  ValidationRuleType = "pattern"
	ValidationRange    ValidationRuleType = "range"
	ValidationLength   ValidationRuleType = "length"
)

// ValidationRule is one accuracy check evaluated by the quality assessor.
// An empty Field applies the rule to every field of the record.
type ValidationRule struct {
	Field     string             `json:"field,omitempty" yaml:"field,omitempty"`
	Type      ValidationRuleType `json:"type" yaml:"type"`
	Pattern   string             `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Min       float64            `json:"min,omitempty" yaml:"min,omitempty"`
	Max       float64            `json:"max,omitempty" yaml:"max,omitempty"`
	MaxLength int                `json:"maxLength,omitempty" yaml:"maxLength,omitempty"`
}

// AggregationOp enumerates the reduction operations.
type AggregationOp string

const (
	AggSum     AggregationOp = "sum"
	AggAverage AggregationOp = "average"
	AggMin     AggregationOp = "min"
	AggMax     AggregationOp = "max"
	AggCount   AggregationOp = "count"
	AggConcat  AggregationOp = "concat"
	AggFirst   AggregationOp = "first"
	AggLast    AggregationOp = "last"
	AggMerge   AggregationOp = "merge"
)

// AggregationRule is one grouping+reduction instruction. Fields are looked
// up by dotted path; the first field of the first rule in a set doubles as
// the grouping key.
type AggregationRule struct {
	Fields    []string       `json:"fields" yaml:"fields"`
	Operation AggregationOp  `json:"operation" yaml:"operation"`
	Params    map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}
