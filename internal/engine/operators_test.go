package engine

import "testing"

func TestOperatorsForType(t *testing.T) {
	tests := []struct {
		fieldType FieldType
		legal     []Operator
		illegal   []Operator
	}{
		{
			fieldType: TypeString,
			legal:     []Operator{OpEquals, OpContains, OpStartsWith, OpEndsWith, OpIn},
			illegal:   []Operator{OpGreaterThan, OpBefore},
		},
		{
			fieldType: TypeInteger,
			legal:     []Operator{OpEquals, OpGreaterThan, OpLessOrEqual, OpNotIn},
			illegal:   []Operator{OpContains, OpStartsWith, OpBefore},
		},
		{
			fieldType: TypeCurrency,
			legal:     []Operator{OpGreaterOrEqual},
			illegal:   []Operator{OpEndsWith},
		},
		{
			fieldType: TypeBoolean,
			legal:     []Operator{OpEquals, OpNotEquals},
			illegal:   []Operator{OpIn, OpContains, OpGreaterThan},
		},
		{
			fieldType: TypeDate,
			legal:     []Operator{OpBefore, OpAfter, OpIn},
			illegal:   []Operator{OpGreaterThan, OpContains},
		},
		{
			fieldType: TypeTimestamp,
			legal:     []Operator{OpBefore},
			illegal:   []Operator{OpStartsWith},
		},
		{
			fieldType: TypeEmail,
			legal:     []Operator{OpEndsWith},
			illegal:   []Operator{OpAfter},
		},
	}

	for _, tt := range tests {
		for _, op := range tt.legal {
			if !OperatorLegal(tt.fieldType, op) {
				t.Errorf("%s: %s should be legal", tt.fieldType, op)
			}
		}
		for _, op := range tt.illegal {
			if OperatorLegal(tt.fieldType, op) {
				t.Errorf("%s: %s should be illegal", tt.fieldType, op)
			}
		}
	}
}

// Changing a field's declared type from string to integer makes contains
// illegal; the condition is repaired to the first legal operator rather than
// the type change being rejected.
func TestRepairConditionsOnTypeChange(t *testing.T) {
	group := ConditionGroup{
		Combinator: CombineAll,
		Conditions: []Condition{
			{Field: "sku", Operator: OpContains, Value: "ABC"},
			{Field: "sku", Operator: OpEquals, Value: "42"},
		},
	}

	repaired := RepairConditions(&group, map[string]FieldType{"sku": TypeInteger})
	if repaired != 1 {
		t.Fatalf("repaired = %d, want 1", repaired)
	}
	if group.Conditions[0].Operator != OpEquals {
		t.Errorf("repaired operator = %q, want equals", group.Conditions[0].Operator)
	}
	if group.Conditions[1].Operator != OpEquals {
		t.Errorf("legal condition was touched: %q", group.Conditions[1].Operator)
	}
}

func TestRepairConditionsSetCollapse(t *testing.T) {
	group := ConditionGroup{
		Combinator: CombineAll,
		Conditions: []Condition{
			{Field: "active", Operator: OpIn, Values: []string{"yes", "no"}},
		},
	}

	// Boolean only offers equals/not_equals, so the set operator collapses
	// to equals with the first member.
	repaired := RepairConditions(&group, map[string]FieldType{"active": TypeBoolean})
	if repaired != 1 {
		t.Fatalf("repaired = %d, want 1", repaired)
	}
	cond := group.Conditions[0]
	if cond.Operator != OpEquals || cond.Value != "yes" || cond.Values != nil {
		t.Errorf("collapsed condition = %+v", cond)
	}
}

func TestRepairConditionsUnknownFieldUntouched(t *testing.T) {
	group := ConditionGroup{
		Conditions: []Condition{{Field: "ghost", Operator: OpContains, Value: "x"}},
	}
	if repaired := RepairConditions(&group, map[string]FieldType{"real": TypeInteger}); repaired != 0 {
		t.Errorf("repaired = %d, want 0 (unknown fields are a validation problem, not a repair)", repaired)
	}
}
