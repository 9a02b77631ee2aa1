package engine

import (
	"testing"

	"github.com/google/uuid"
)

var (
	queueA = uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	queueB = uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	queueC = uuid.MustParse("00000000-0000-0000-0000-00000000000c")
)

func stringTypes(fields ...string) map[string]FieldType {
	types := make(map[string]FieldType, len(fields))
	for _, f := range fields {
		types[f] = TypeString
	}
	return types
}

func rule(name string, priority int, queue uuid.UUID, conds ...Condition) RoutingRule {
	return RoutingRule{
		ID:          uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)),
		Name:        name,
		Priority:    priority,
		Group:       ConditionGroup{Combinator: CombineAll, Conditions: conds},
		TargetQueue: queue,
	}
}

func TestEvaluateRulesCatchAll(t *testing.T) {
	rules := []RoutingRule{
		rule("california", 1, queueA, Condition{Field: "state", Operator: OpEquals, Value: "CA"}),
		rule("everything else", 2, queueB),
	}
	types := stringTypes("state")

	ca := EvaluateRules(Record{"state": "CA"}, rules, types)
	if ca.TargetQueueID == nil || *ca.TargetQueueID != queueA {
		t.Errorf("CA record routed to %v, want queue A", ca.TargetQueueID)
	}

	ny := EvaluateRules(Record{"state": "NY"}, rules, types)
	if ny.TargetQueueID == nil || *ny.TargetQueueID != queueB {
		t.Errorf("NY record routed to %v, want catch-all queue B", ny.TargetQueueID)
	}
}

func TestEvaluateRulesUnrouted(t *testing.T) {
	rules := []RoutingRule{
		rule("california", 1, queueA, Condition{Field: "state", Operator: OpEquals, Value: "CA"}),
	}
	out := EvaluateRules(Record{"state": "TX"}, rules, stringTypes("state"))
	if out.TargetQueueID != nil || out.MatchedRuleID != nil {
		t.Errorf("unrouted record got %+v", out)
	}
	if out.Err != nil {
		t.Error("unrouted is a valid outcome, not an error")
	}
}

func TestEvaluateRulesPriorityOrder(t *testing.T) {
	// Lower priority evaluates first even when configured later in the list.
	rules := []RoutingRule{
		rule("broad", 10, queueB),
		rule("narrow", 1, queueA, Condition{Field: "state", Operator: OpEquals, Value: "CA"}),
	}
	out := EvaluateRules(Record{"state": "CA"}, rules, stringTypes("state"))
	if out.TargetQueueID == nil || *out.TargetQueueID != queueA {
		t.Errorf("routed to %v, want the priority-1 queue", out.TargetQueueID)
	}
}

// Equal priorities preserve configured list order: the earlier rule wins,
// deterministically, across repeated evaluations.
func TestEvaluateRulesStableTieBreak(t *testing.T) {
	rules := []RoutingRule{
		rule("first", 5, queueA),
		rule("second", 5, queueB),
		rule("third", 5, queueC),
	}
	rec := Record{"state": "CA"}
	types := stringTypes("state")

	for i := 0; i < 20; i++ {
		out := EvaluateRules(rec, rules, types)
		if out.TargetQueueID == nil || *out.TargetQueueID != queueA {
			t.Fatalf("iteration %d: routed to %v, want the first-listed rule's queue", i, out.TargetQueueID)
		}
	}
}

func TestEvalGroupCombinators(t *testing.T) {
	rec := Record{"state": "CA", "tier": "gold"}
	types := stringTypes("state", "tier")

	tests := []struct {
		name  string
		group ConditionGroup
		want  bool
	}{
		{
			name: "and requires all",
			group: ConditionGroup{Combinator: CombineAll, Conditions: []Condition{
				{Field: "state", Operator: OpEquals, Value: "CA"},
				{Field: "tier", Operator: OpEquals, Value: "gold"},
			}},
			want: true,
		},
		{
			name: "and fails on one false",
			group: ConditionGroup{Combinator: CombineAll, Conditions: []Condition{
				{Field: "state", Operator: OpEquals, Value: "CA"},
				{Field: "tier", Operator: OpEquals, Value: "silver"},
			}},
			want: false,
		},
		{
			name: "or needs one true",
			group: ConditionGroup{Combinator: CombineAny, Conditions: []Condition{
				{Field: "state", Operator: OpEquals, Value: "TX"},
				{Field: "tier", Operator: OpEquals, Value: "gold"},
			}},
			want: true,
		},
		{
			name: "or with all false",
			group: ConditionGroup{Combinator: CombineAny, Conditions: []Condition{
				{Field: "state", Operator: OpEquals, Value: "TX"},
				{Field: "tier", Operator: OpEquals, Value: "silver"},
			}},
			want: false,
		},
		{
			name:  "empty group is trivially true",
			group: ConditionGroup{Combinator: CombineAll},
			want:  true,
		},
		{
			name:  "empty or group is also true",
			group: ConditionGroup{Combinator: CombineAny},
			want:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EvalGroup(rec, tt.group, types); got != tt.want {
				t.Errorf("EvalGroup = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTypedConditions(t *testing.T) {
	tests := []struct {
		name  string
		rec   Record
		cond  Condition
		types map[string]FieldType
		want  bool
	}{
		{
			name:  "numeric equals ignores formatting",
			rec:   Record{"amount": "01"},
			cond:  Condition{Field: "amount", Operator: OpEquals, Value: "1"},
			types: map[string]FieldType{"amount": TypeInteger},
			want:  true,
		},
		{
			name:  "string equals is exact",
			rec:   Record{"code": "01"},
			cond:  Condition{Field: "code", Operator: OpEquals, Value: "1"},
			types: map[string]FieldType{"code": TypeString},
			want:  false,
		},
		{
			name:  "greater_than parses both sides",
			rec:   Record{"amount": "100.5"},
			cond:  Condition{Field: "amount", Operator: OpGreaterThan, Value: "100"},
			types: map[string]FieldType{"amount": TypeNumber},
			want:  true,
		},
		{
			name:  "greater_than parse failure is false, not an error",
			rec:   Record{"amount": "not a number"},
			cond:  Condition{Field: "amount", Operator: OpGreaterThan, Value: "100"},
			types: map[string]FieldType{"amount": TypeNumber},
			want:  false,
		},
		{
			name:  "before on dates",
			rec:   Record{"due": "2024-01-15"},
			cond:  Condition{Field: "due", Operator: OpBefore, Value: "2024-02-01"},
			types: map[string]FieldType{"due": TypeDate},
			want:  true,
		},
		{
			name:  "after with unparseable date is false",
			rec:   Record{"due": "soon"},
			cond:  Condition{Field: "due", Operator: OpAfter, Value: "2024-01-01"},
			types: map[string]FieldType{"due": TypeDate},
			want:  false,
		},
		{
			name:  "contains is a raw substring test",
			rec:   Record{"sku": "AB-1234-X"},
			cond:  Condition{Field: "sku", Operator: OpContains, Value: "1234"},
			types: map[string]FieldType{"sku": TypeString},
			want:  true,
		},
		{
			name:  "starts_with",
			rec:   Record{"sku": "AB-1234"},
			cond:  Condition{Field: "sku", Operator: OpStartsWith, Value: "AB"},
			types: map[string]FieldType{"sku": TypeString},
			want:  true,
		},
		{
			name:  "ends_with",
			rec:   Record{"email": "a@example.com"},
			cond:  Condition{Field: "email", Operator: OpEndsWith, Value: "@example.com"},
			types: map[string]FieldType{"email": TypeEmail},
			want:  true,
		},
		{
			name:  "in with string members is case-sensitive",
			rec:   Record{"state": "ca"},
			cond:  Condition{Field: "state", Operator: OpIn, Values: []string{"CA", "OR"}},
			types: map[string]FieldType{"state": TypeString},
			want:  false,
		},
		{
			name:  "in with numeric members parses values",
			rec:   Record{"amount": "10.0"},
			cond:  Condition{Field: "amount", Operator: OpIn, Values: []string{"10", "20"}},
			types: map[string]FieldType{"amount": TypeNumber},
			want:  true,
		},
		{
			name:  "not_in",
			rec:   Record{"state": "TX"},
			cond:  Condition{Field: "state", Operator: OpNotIn, Values: []string{"CA", "OR"}},
			types: map[string]FieldType{"state": TypeString},
			want:  true,
		},
		{
			name:  "boolean equals normalizes tokens",
			rec:   Record{"active": "Yes"},
			cond:  Condition{Field: "active", Operator: OpEquals, Value: "true"},
			types: map[string]FieldType{"active": TypeBoolean},
			want:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			group := ConditionGroup{Combinator: CombineAll, Conditions: []Condition{tt.cond}}
			if got := EvalGroup(tt.rec, group, tt.types); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidateRule(t *testing.T) {
	types := map[string]FieldType{"state": TypeString, "amount": TypeInteger}

	tests := []struct {
		name   string
		rule   RoutingRule
		wantOK bool
	}{
		{
			name:   "valid rule",
			rule:   rule("ok", 1, queueA, Condition{Field: "state", Operator: OpEquals, Value: "CA"}),
			wantOK: true,
		},
		{
			name:   "unknown field",
			rule:   rule("bad field", 1, queueA, Condition{Field: "ghost", Operator: OpEquals, Value: "x"}),
			wantOK: false,
		},
		{
			name:   "operator illegal for type",
			rule:   rule("bad op", 1, queueA, Condition{Field: "amount", Operator: OpContains, Value: "5"}),
			wantOK: false,
		},
		{
			name:   "set operator without values",
			rule:   rule("no members", 1, queueA, Condition{Field: "state", Operator: OpIn}),
			wantOK: false,
		},
		{
			name:   "scalar operator with a value list",
			rule:   rule("list on equals", 1, queueA, Condition{Field: "state", Operator: OpEquals, Values: []string{"CA"}}),
			wantOK: false,
		},
		{
			name: "unknown combinator",
			rule: RoutingRule{
				Name:        "bad combinator",
				Group:       ConditionGroup{Combinator: "xor"},
				TargetQueue: queueA,
			},
			wantOK: false,
		},
		{
			name:   "catch-all with no conditions",
			rule:   rule("catch all", 99, queueB),
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ValidateRule(types, tt.rule)
			if res.Valid != tt.wantOK {
				t.Errorf("Valid = %v, want %v (errors: %v)", res.Valid, tt.wantOK, res.Errors)
			}
		})
	}
}

func TestFirstMatchGenericOutcome(t *testing.T) {
	// The evaluator is generic over the outcome type; here rules produce
	// action lists instead of queues.
	rules := []Rule[[]string]{
		{Priority: 1, Group: ConditionGroup{Combinator: CombineAll, Conditions: []Condition{
			{Field: "tier", Operator: OpEquals, Value: "gold"},
		}}, Outcome: []string{"notify", "escalate"}},
		{Priority: 2, Group: ConditionGroup{}, Outcome: []string{"archive"}},
	}
	types := stringTypes("tier")

	actions, ok := FirstMatch(Record{"tier": "gold"}, rules, types)
	if !ok || len(actions) != 2 || actions[0] != "notify" {
		t.Errorf("gold actions = %v, %v", actions, ok)
	}

	actions, ok = FirstMatch(Record{"tier": "basic"}, rules, types)
	if !ok || len(actions) != 1 || actions[0] != "archive" {
		t.Errorf("fallback actions = %v, %v", actions, ok)
	}
}
