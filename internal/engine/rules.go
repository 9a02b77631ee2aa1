package engine

// rules.go implements typed condition evaluation and deterministic rule
// precedence.
//
// The evaluator is generic over the outcome type: routing rules produce a
// target queue, but any ordered rule set built from condition groups (an
// action list, a tag set) evaluates through the same FirstMatch. Rules are
// ordered by ascending priority; equal priorities keep their configured list
// position, so the earlier rule deterministically wins ties.
//
// Evaluation assumes a previously validated rule set: unknown fields and
// type-illegal operators are configuration errors caught at save time by
// ValidateRule, never discovered here.

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Rule pairs a condition group with an arbitrary outcome, ordered by
// Priority. RoutingRule is the queue-producing specialization.
type Rule[T any] struct {
	Priority int
	Group    ConditionGroup
	Outcome  T
}

// FirstMatch evaluates rules in ascending priority order (stable on ties)
// and returns the outcome of the first rule whose group matches. The false
// return means no rule matched, which is a valid result.
func FirstMatch[T any](rec Record, rules []Rule[T], fieldTypes map[string]FieldType) (T, bool) {
	ordered := make([]Rule[T], len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	for _, r := range ordered {
		if EvalGroup(rec, r.Group, fieldTypes) {
			return r.Outcome, true
		}
	}
	var zero T
	return zero, false
}

// EvaluateRules resolves the single matching routing rule for a record.
// The returned outcome carries the matched rule and queue, or neither when
// the record is unrouted.
func EvaluateRules(rec Record, rules []RoutingRule, fieldTypes map[string]FieldType) Outcome {
	generic := make([]Rule[*RoutingRule], len(rules))
	for i := range rules {
		generic[i] = Rule[*RoutingRule]{
			Priority: rules[i].Priority,
			Group:    rules[i].Group,
			Outcome:  &rules[i],
		}
	}

	matched, ok := FirstMatch(rec, generic, fieldTypes)
	if !ok {
		return Outcome{}
	}
	ruleID := matched.ID
	queueID := matched.TargetQueue
	return Outcome{MatchedRuleID: &ruleID, TargetQueueID: &queueID}
}

// EvalGroup evaluates a condition group: AND requires every condition true,
// OR at least one. An empty condition list is trivially true, the affordance
// catch-all rules rely on.
func EvalGroup(rec Record, group ConditionGroup, fieldTypes map[string]FieldType) bool {
	if len(group.Conditions) == 0 {
		return true
	}
	for _, cond := range group.Conditions {
		ok := evalCondition(rec, cond, fieldTypes[cond.Field])
		if group.Combinator == CombineAny {
			if ok {
				return true
			}
		} else if !ok {
			return false
		}
	}
	return group.Combinator != CombineAny
}

func evalCondition(rec Record, cond Condition, t FieldType) bool {
	value := strings.TrimSpace(rec[cond.Field])

	switch cond.Operator {
	case OpEquals:
		return typedEqual(value, cond.Value, t)
	case OpNotEquals:
		return !typedEqual(value, cond.Value, t)
	case OpContains:
		return strings.Contains(value, cond.Value)
	case OpStartsWith:
		return strings.HasPrefix(value, cond.Value)
	case OpEndsWith:
		return strings.HasSuffix(value, cond.Value)
	case OpGreaterThan, OpLessThan, OpGreaterOrEqual, OpLessOrEqual:
		return compareNumeric(value, cond.Value, cond.Operator)
	case OpBefore, OpAfter:
		return compareTemporal(value, cond.Value, cond.Operator)
	case OpIn:
		return inSet(value, cond.Values, t)
	case OpNotIn:
		return !inSet(value, cond.Values, t)
	default:
		return false
	}
}

// typedEqual compares two raw strings under the field's resolved type.
// Numeric and temporal values are parsed first so "01" equals "1" and
// "2024-01-02" equals "01/02/2024"; a parse failure on either side falls
// back to exact string comparison.
func typedEqual(a, b string, t FieldType) bool {
	switch classOf(t) {
	case classNumeric:
		fa, oka := parseNumeric(a)
		fb, okb := parseNumeric(b)
		if oka && okb {
			return fa == fb
		}
	case classDate:
		ta, oka := parseTemporal(a)
		tb, okb := parseTemporal(b)
		if oka && okb {
			return ta.Equal(tb)
		}
	case classBoolean:
		ba, oka := parseBoolToken(a)
		bb, okb := parseBoolToken(b)
		if oka && okb {
			return ba == bb
		}
	}
	return a == b
}

// compareNumeric implements the ordering operators. Both sides must parse as
// numbers; a parse failure makes the condition false, not an error.
func compareNumeric(a, b string, op Operator) bool {
	fa, oka := parseNumeric(a)
	fb, okb := parseNumeric(b)
	if !oka || !okb {
		return false
	}
	switch op {
	case OpGreaterThan:
		return fa > fb
	case OpLessThan:
		return fa < fb
	case OpGreaterOrEqual:
		return fa >= fb
	case OpLessOrEqual:
		return fa <= fb
	}
	return false
}

// compareTemporal implements before/after. Both sides must parse as dates or
// timestamps; a parse failure makes the condition false.
func compareTemporal(a, b string, op Operator) bool {
	ta, oka := parseTemporal(a)
	tb, okb := parseTemporal(b)
	if !oka || !okb {
		return false
	}
	if op == OpBefore {
		return ta.Before(tb)
	}
	return ta.After(tb)
}

// parseTemporal parses a value as a datetime, date, or epoch timestamp.
func parseTemporal(s string) (time.Time, bool) {
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if epochRegex.MatchString(s) {
		var sec int64
		if _, err := fmt.Sscanf(s, "%d", &sec); err == nil {
			if len(s) == 13 {
				return time.UnixMilli(sec).UTC(), true
			}
			return time.Unix(sec, 0).UTC(), true
		}
	}
	return time.Time{}, false
}

func parseBoolToken(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y", "1":
		return true, true
	case "false", "no", "n", "0":
		return false, true
	}
	return false, false
}

// inSet tests membership under the field's resolved type: numeric and
// temporal members are parsed before comparison, everything else compares as
// case-sensitive normalized strings.
func inSet(value string, members []string, t FieldType) bool {
	for _, m := range members {
		if typedEqual(value, strings.TrimSpace(m), t) {
			return true
		}
	}
	return false
}

// ValidateRule checks a routing rule against the pipeline schema: every
// condition must reference a known field, use an operator legal for the
// field's current type, and carry the operand shape its operator expects.
// Called at configuration-save time so evaluation never sees a bad rule.
func ValidateRule(fieldTypes map[string]FieldType, rule RoutingRule) ValidationResult {
	var errs []ValidationError

	if strings.TrimSpace(rule.Name) == "" {
		errs = append(errs, ValidationError{Message: "rule name must not be empty"})
	}
	if rule.Group.Combinator != CombineAll && rule.Group.Combinator != CombineAny {
		errs = append(errs, ValidationError{
			Message: fmt.Sprintf("unknown combinator %q", rule.Group.Combinator),
		})
	}

	for _, cond := range rule.Group.Conditions {
		t, known := fieldTypes[cond.Field]
		if !known {
			errs = append(errs, ValidationError{
				Field:   cond.Field,
				Message: "unknown field",
			})
			continue
		}
		if !OperatorLegal(t, cond.Operator) {
			errs = append(errs, ValidationError{
				Field:   cond.Field,
				Message: fmt.Sprintf("operator %q is not legal for type %q", cond.Operator, t),
			})
		}
		if isSetOperator(cond.Operator) && len(cond.Values) == 0 {
			errs = append(errs, ValidationError{
				Field:   cond.Field,
				Message: fmt.Sprintf("operator %q requires a list of values", cond.Operator),
			})
		}
		if !isSetOperator(cond.Operator) && len(cond.Values) > 0 {
			errs = append(errs, ValidationError{
				Field:   cond.Field,
				Message: fmt.Sprintf("operator %q takes a single value, not a list", cond.Operator),
			})
		}
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}
