package automation

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Evaluate resolves a condition tree against a trigger context to a boolean.
// An empty tree always matches. Evaluation is fail-closed: unresolvable field
// references and type-incompatible comparisons yield false rather than an
// error, so a single malformed condition cannot crash a run.
func Evaluate(tree *FilterNode, ctx *TriggerContext, schema TableSchema) bool {
	t := Normalize(tree)
	if len(t.Children) == 0 {
		return true
	}
	return evalNode(t, ctx, schema)
}

func evalNode(n *FilterNode, ctx *TriggerContext, schema TableSchema) bool {
	if n == nil {
		return false
	}
	if n.IsGroup() {
		return evalGroup(n, ctx, schema)
	}
	return evalLeaf(n, ctx, schema)
}

// evalGroup folds children over the and/or identity: an empty nested AND is
// true, an empty nested OR is false.
func evalGroup(g *FilterNode, ctx *TriggerContext, schema TableSchema) bool {
	if g.Operator == GroupOr {
		for _, child := range g.Children {
			if evalNode(child, ctx, schema) {
				return true
			}
		}
		return false
	}
	for _, child := range g.Children {
		if !evalNode(child, ctx, schema) {
			return false
		}
	}
	return true
}

func evalLeaf(n *FilterNode, ctx *TriggerContext, schema TableSchema) bool {
	def, ok := schema[n.FieldRef]
	if !ok {
		return false
	}

	var actual any
	var present bool
	if ctx != nil && ctx.Record != nil {
		actual, present = ctx.Record[n.FieldRef]
	}

	op := Operator(n.Operator)
	switch op {
	case OpIsEmpty:
		return !present || isBlank(actual)
	case OpIsNotEmpty:
		return present && !isBlank(actual)
	}

	if !present {
		return false
	}

	switch def.Type {
	case FieldNumber:
		return compareNumbers(op, actual, n.Value)
	case FieldDate:
		return compareTimes(op, actual, n.Value)
	case FieldCheckbox:
		return compareBools(op, actual, n.Value)
	case FieldMultiSelect:
		return compareList(op, actual, n.Value)
	default:
		return compareStrings(op, actual, n.Value)
	}
}

func compareNumbers(op Operator, actual, expected any) bool {
	a, ok := coerceNumber(actual)
	if !ok {
		return false
	}
	b, ok := coerceNumber(expected)
	if !ok {
		return false
	}
	switch op {
	case OpEqual:
		return a == b
	case OpNotEqual:
		return a != b
	case OpGreaterThan:
		return a > b
	case OpGreaterEqual:
		return a >= b
	case OpLessThan:
		return a < b
	case OpLessEqual:
		return a <= b
	default:
		return false
	}
}

func compareTimes(op Operator, actual, expected any) bool {
	a, ok := coerceTime(actual)
	if !ok {
		return false
	}
	b, ok := coerceTime(expected)
	if !ok {
		return false
	}
	switch op {
	case OpEqual:
		return a.Equal(b)
	case OpNotEqual:
		return !a.Equal(b)
	case OpBefore:
		return a.Before(b)
	case OpAfter:
		return a.After(b)
	case OpOnOrBefore:
		return !a.After(b)
	case OpOnOrAfter:
		return !a.Before(b)
	default:
		return false
	}
}

func compareBools(op Operator, actual, expected any) bool {
	a, ok := coerceBool(actual)
	if !ok {
		return false
	}
	b, ok := coerceBool(expected)
	if !ok {
		return false
	}
	switch op {
	case OpEqual:
		return a == b
	case OpNotEqual:
		return a != b
	default:
		return false
	}
}

// compareStrings compares case-sensitively for equal/not_equal; contains and
// not_contains are case-insensitive.
func compareStrings(op Operator, actual, expected any) bool {
	a := Stringify(actual)
	b := Stringify(expected)
	switch op {
	case OpEqual:
		return a == b
	case OpNotEqual:
		return a != b
	case OpContains:
		return strings.Contains(strings.ToLower(a), strings.ToLower(b))
	case OpNotContains:
		return !strings.Contains(strings.ToLower(a), strings.ToLower(b))
	default:
		return false
	}
}

// compareList treats contains/not_contains as membership over multi-select
// values.
func compareList(op Operator, actual, expected any) bool {
	items := coerceList(actual)
	want := Stringify(expected)
	found := false
	for _, item := range items {
		if Stringify(item) == want {
			found = true
			break
		}
	}
	switch op {
	case OpContains:
		return found
	case OpNotContains:
		return !found
	default:
		return false
	}
}

func isBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	default:
		return false
	}
}

func coerceNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// coerceTime accepts time.Time values and RFC 3339 or date-only strings.
func coerceTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"} {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, true
			}
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

func coerceBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "yes", "checked":
			return true, true
		case "false", "0", "no", "unchecked", "":
			return false, true
		}
		return false, false
	case float64:
		return t != 0, true
	case int:
		return t != 0, true
	default:
		return false, false
	}
}

func coerceList(v any) []any {
	switch t := v.(type) {
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case nil:
		return nil
	default:
		return []any{t}
	}
}

// Stringify renders a field value the way templates and formulas display it:
// floats without trailing zeros, times as RFC 3339, lists comma-joined.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	case time.Time:
		return t.Format(time.RFC3339)
	case []any:
		parts := make([]string, len(t))
		for i, item := range t {
			parts[i] = Stringify(item)
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(t, ", ")
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
