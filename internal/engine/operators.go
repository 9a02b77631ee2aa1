package engine

// operators.go defines which condition operators are legal for each field
// type. The catalog is keyed by the field's *current* declared type, so an
// operator that was legal when a condition was written can become illegal
// after the operator edits the field's type. RepairConditions resets such
// conditions to the first legal operator instead of rejecting the type
// change.

// typeClass groups field types by comparison semantics.
type typeClass int

const (
	classString typeClass = iota
	classNumeric
	classBoolean
	classDate
)

func classOf(t FieldType) typeClass {
	switch t {
	case TypeNumber, TypeInteger, TypeCurrency:
		return classNumeric
	case TypeBoolean:
		return classBoolean
	case TypeDate, TypeDateTime, TypeTimestamp:
		return classDate
	default:
		// string, email, url, phone, empty
		return classString
	}
}

var operatorsByClass = map[typeClass][]Operator{
	classString: {
		OpEquals, OpNotEquals, OpContains, OpStartsWith, OpEndsWith, OpIn, OpNotIn,
	},
	classNumeric: {
		OpEquals, OpNotEquals, OpGreaterThan, OpLessThan, OpGreaterOrEqual, OpLessOrEqual, OpIn, OpNotIn,
	},
	classBoolean: {
		OpEquals, OpNotEquals,
	},
	classDate: {
		OpEquals, OpNotEquals, OpBefore, OpAfter, OpIn, OpNotIn,
	},
}

// OperatorsForType returns the operators legal for a field of the given
// type, in catalog order. The first entry is the repair default.
func OperatorsForType(t FieldType) []Operator {
	ops := operatorsByClass[classOf(t)]
	out := make([]Operator, len(ops))
	copy(out, ops)
	return out
}

// OperatorLegal reports whether op may be used on a field of type t.
func OperatorLegal(t FieldType, op Operator) bool {
	for _, legal := range operatorsByClass[classOf(t)] {
		if legal == op {
			return true
		}
	}
	return false
}

// isSetOperator reports whether op compares against an array of values.
func isSetOperator(op Operator) bool {
	return op == OpIn || op == OpNotIn
}

// RepairConditions walks a rule's conditions and resets any operator that is
// no longer legal for its field's current type to the first legal operator.
// When a set operator collapses to a scalar one, the first array value
// becomes the scalar operand. Returns the number of conditions repaired.
func RepairConditions(group *ConditionGroup, fieldTypes map[string]FieldType) int {
	repaired := 0
	for i := range group.Conditions {
		cond := &group.Conditions[i]
		t, ok := fieldTypes[cond.Field]
		if !ok {
			continue
		}
		if OperatorLegal(t, cond.Operator) {
			continue
		}
		wasSet := isSetOperator(cond.Operator)
		cond.Operator = OperatorsForType(t)[0]
		if wasSet && !isSetOperator(cond.Operator) {
			if len(cond.Values) > 0 {
				cond.Value = cond.Values[0]
			}
			cond.Values = nil
		}
		repaired++
	}
	return repaired
}
