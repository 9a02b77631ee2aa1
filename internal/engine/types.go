package engine

import "github.com/google/uuid"

// Record is one flat parsed row. All values are strings regardless of the
// source format; the original scalar can be recovered by re-parsing.
type Record map[string]string

// Format identifies the declared encoding of a raw batch.
type Format string

const (
	FormatCSV       Format = "csv"
	FormatJSON      Format = "json"
	FormatJSONLines Format = "jsonl"
)

// FieldType is the semantic type of a source field, either inferred from a
// sample or declared by an operator override.
type FieldType string

const (
	TypeString    FieldType = "string"
	TypeNumber    FieldType = "number"
	TypeInteger   FieldType = "integer"
	TypeBoolean   FieldType = "boolean"
	TypeDate      FieldType = "date"
	TypeDateTime  FieldType = "datetime"
	TypeTimestamp FieldType = "timestamp"
	TypeEmail     FieldType = "email"
	TypeURL       FieldType = "url"
	TypePhone     FieldType = "phone"
	TypeCurrency  FieldType = "currency"
	TypeEmpty     FieldType = "empty"
)

// DetectedField is the inference result for one source field. Detected
// fields are ephemeral: they are regenerated wholesale on every re-sample
// and never merged with a previous detection.
type DetectedField struct {
	Name           string    `json:"name"`
	Type           FieldType `json:"inferredType"`
	Confidence     float64   `json:"typeConfidence"`
	Required       bool      `json:"isRequired"`
	UniqueValues   int       `json:"uniqueValueCount"`
	NonEmpty       int       `json:"nonEmptyCount"`
	Samples        []string  `json:"sampleValues"`
	LooksLikeID    bool      `json:"looksLikeId"`
	SuggestedLabel string    `json:"suggestedLabel"`
}

// FieldMapping binds a source field to a canonical target attribute.
// Mappings are created from DetectedFields and then independently editable:
// the operator may override the type, the required flag, and the default.
type FieldMapping struct {
	SourceField string    `json:"sourceField"`
	TargetField string    `json:"targetField"`
	PrimaryID   bool      `json:"isPrimaryId"`
	Required    bool      `json:"required"`
	Type        FieldType `json:"detectedType"`
	Default     string    `json:"default,omitempty"`
}

// Operator is a typed comparison used in routing conditions. Which
// operators are legal depends on the field's current declared type; see
// OperatorsForType.
type Operator string

const (
	OpEquals         Operator = "equals"
	OpNotEquals      Operator = "not_equals"
	OpContains       Operator = "contains"
	OpStartsWith     Operator = "starts_with"
	OpEndsWith       Operator = "ends_with"
	OpGreaterThan    Operator = "greater_than"
	OpLessThan       Operator = "less_than"
	OpGreaterOrEqual Operator = "greater_or_equal"
	OpLessOrEqual    Operator = "less_or_equal"
	OpBefore         Operator = "before"
	OpAfter          Operator = "after"
	OpIn             Operator = "in"
	OpNotIn          Operator = "not_in"
)

// Combinator joins the conditions of a group.
type Combinator string

const (
	CombineAll Combinator = "and"
	CombineAny Combinator = "or"
)

// Condition is a single field/operator/value test. Values holds the array
// operand for the set operators (in, not_in); Value holds the scalar operand
// for everything else.
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    string   `json:"value,omitempty"`
	Values   []string `json:"values,omitempty"`
}

// ConditionGroup combines conditions with a logical combinator. An empty
// condition list evaluates to true, which is how catch-all rules are built.
type ConditionGroup struct {
	Combinator Combinator  `json:"combinator"`
	Conditions []Condition `json:"conditions"`
}

// RoutingRule maps records matching its condition group to a target queue.
// Rules are evaluated in ascending priority order; ties preserve the
// configured list order.
type RoutingRule struct {
	ID          uuid.UUID      `json:"id"`
	Name        string         `json:"name"`
	Priority    int            `json:"priority"`
	Group       ConditionGroup `json:"conditions"`
	TargetQueue uuid.UUID      `json:"targetQueueId"`
}

// Outcome is the routing result for one record. A nil TargetQueueID with a
// nil Err means the record was evaluated and no rule matched (unrouted),
// which is a valid result, not an error.
type Outcome struct {
	Row           int        `json:"row"`
	MatchedRuleID *uuid.UUID `json:"matchedRuleId,omitempty"`
	TargetQueueID *uuid.UUID `json:"targetQueueId,omitempty"`
	Skipped       bool       `json:"skipped,omitempty"`
	SkipReason    string     `json:"skipReason,omitempty"`
	Err           *RowError  `json:"error,omitempty"`
}

// TaskRequest is the creation request emitted for one successfully mapped
// and routed record in commit mode. Turning requests into actual tasks is
// the caller's responsibility.
type TaskRequest struct {
	Row       int               `json:"row"`
	QueueID   uuid.UUID         `json:"queueId"`
	PrimaryID string            `json:"primaryId"`
	Fields    map[string]string `json:"fields"`
}

// BatchCounts aggregates per-record results for one ingestion run.
type BatchCounts struct {
	Found    int `json:"found"`
	Mapped   int `json:"mapped"`
	Routed   int `json:"routed"`
	Unrouted int `json:"unrouted"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
}

// BatchStatus is the terminal state of an ingestion run.
type BatchStatus string

const (
	// BatchCompleted means every found record mapped and evaluated cleanly.
	BatchCompleted BatchStatus = "completed"
	// BatchPartial means some rows failed but the batch ran to the end.
	BatchPartial BatchStatus = "partial"
)

// BatchResult is the full outcome of one ingestion run. QueueVolumes is the
// projected per-queue histogram, keyed by queue ID.
type BatchResult struct {
	Status       BatchStatus          `json:"status"`
	DryRun       bool                 `json:"dryRun"`
	Counts       BatchCounts          `json:"counts"`
	Outcomes     []Outcome            `json:"outcomes"`
	QueueVolumes map[uuid.UUID]int    `json:"queueVolumes"`
	Tasks        []TaskRequest        `json:"tasks,omitempty"`
}

// SchemaReport is the result of inferring structure from a raw sample.
type SchemaReport struct {
	Fields             []DetectedField `json:"detectedFields"`
	SampleRows         []Record        `json:"sampleRows"`
	TotalRows          int             `json:"totalRows"`
	FailedRows         int             `json:"failedRows"`
	SuggestedPrimaryID string          `json:"suggestedPrimaryIdField,omitempty"`
}
