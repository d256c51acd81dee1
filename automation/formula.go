package automation

import (
	"fmt"
	"strings"
)

// ToFormula renders a canonical tree as an infix boolean expression using
// field display names, e.g. `{Status} = "Done" AND {Priority} > 3`. It is
// total over any tree: an empty tree renders as the empty string and
// malformed leaves degrade to a best-effort rendering. The compiler is
// one-directional; formulas are never parsed back into trees.
func ToFormula(tree *FilterNode, schema TableSchema) string {
	t := Normalize(tree)
	if len(t.Children) == 0 {
		return ""
	}
	return formulaGroup(t, schema, false)
}

func formulaGroup(g *FilterNode, schema TableSchema, nested bool) string {
	joiner := " AND "
	if g.Operator == GroupOr {
		joiner = " OR "
	}
	parts := make([]string, 0, len(g.Children))
	for _, child := range g.Children {
		if child == nil {
			continue
		}
		if child.IsGroup() {
			if len(child.Children) == 0 {
				continue
			}
			parts = append(parts, formulaGroup(child, schema, true))
			continue
		}
		parts = append(parts, formulaLeaf(child, schema))
	}
	expr := strings.Join(parts, joiner)
	if nested && len(parts) > 1 {
		return "(" + expr + ")"
	}
	return expr
}

func formulaLeaf(n *FilterNode, schema TableSchema) string {
	def, ok := schema[n.FieldRef]
	name := n.FieldRef
	if ok && def.Name != "" {
		name = def.Name
	}
	field := "{" + name + "}"

	switch Operator(n.Operator) {
	case OpEqual:
		return fmt.Sprintf("%s = %s", field, formulaLiteral(n.Value, def.Type))
	case OpNotEqual:
		return fmt.Sprintf("%s != %s", field, formulaLiteral(n.Value, def.Type))
	case OpGreaterThan:
		return fmt.Sprintf("%s > %s", field, formulaLiteral(n.Value, def.Type))
	case OpGreaterEqual:
		return fmt.Sprintf("%s >= %s", field, formulaLiteral(n.Value, def.Type))
	case OpLessThan:
		return fmt.Sprintf("%s < %s", field, formulaLiteral(n.Value, def.Type))
	case OpLessEqual:
		return fmt.Sprintf("%s <= %s", field, formulaLiteral(n.Value, def.Type))
	case OpContains:
		return fmt.Sprintf("CONTAINS(%s, %s)", field, formulaLiteral(n.Value, FieldText))
	case OpNotContains:
		return fmt.Sprintf("NOT(CONTAINS(%s, %s))", field, formulaLiteral(n.Value, FieldText))
	case OpIsEmpty:
		return fmt.Sprintf("%s = BLANK()", field)
	case OpIsNotEmpty:
		return fmt.Sprintf("%s != BLANK()", field)
	case OpBefore:
		return fmt.Sprintf("IS_BEFORE(%s, %s)", field, formulaLiteral(n.Value, FieldDate))
	case OpAfter:
		return fmt.Sprintf("IS_AFTER(%s, %s)", field, formulaLiteral(n.Value, FieldDate))
	case OpOnOrBefore:
		return fmt.Sprintf("NOT(IS_AFTER(%s, %s))", field, formulaLiteral(n.Value, FieldDate))
	case OpOnOrAfter:
		return fmt.Sprintf("NOT(IS_BEFORE(%s, %s))", field, formulaLiteral(n.Value, FieldDate))
	default:
		return fmt.Sprintf("%s %s %s", field, n.Operator, formulaLiteral(n.Value, def.Type))
	}
}

// formulaLiteral quotes a literal per its field type: numbers bare, checkbox
// as TRUE()/FALSE(), everything else double-quoted.
func formulaLiteral(v any, ft FieldType) string {
	switch ft {
	case FieldNumber:
		if f, ok := coerceNumber(v); ok {
			return Stringify(f)
		}
	case FieldCheckbox:
		if b, ok := coerceBool(v); ok {
			if b {
				return "TRUE()"
			}
			return "FALSE()"
		}
	}
	return `"` + strings.ReplaceAll(Stringify(v), `"`, `\"`) + `"`
}

// ToSummary renders a short natural-language sentence for display, e.g.
// "status is 'Done' and priority is greater than 3". Like ToFormula it is
// total and returns "" for an empty tree.
func ToSummary(tree *FilterNode, schema TableSchema) string {
	t := Normalize(tree)
	if len(t.Children) == 0 {
		return ""
	}
	return summaryGroup(t, schema, false)
}

func summaryGroup(g *FilterNode, schema TableSchema, nested bool) string {
	joiner := " and "
	if g.Operator == GroupOr {
		joiner = " or "
	}
	parts := make([]string, 0, len(g.Children))
	for _, child := range g.Children {
		if child == nil {
			continue
		}
		if child.IsGroup() {
			if len(child.Children) == 0 {
				continue
			}
			parts = append(parts, summaryGroup(child, schema, true))
			continue
		}
		parts = append(parts, summaryLeaf(child, schema))
	}
	s := strings.Join(parts, joiner)
	if nested && len(parts) > 1 {
		return "(" + s + ")"
	}
	return s
}

func summaryLeaf(n *FilterNode, schema TableSchema) string {
	def, ok := schema[n.FieldRef]
	name := n.FieldRef
	if ok && def.Name != "" {
		name = def.Name
	}

	value := "'" + Stringify(n.Value) + "'"
	if def.Type == FieldNumber {
		value = Stringify(n.Value)
	}

	switch Operator(n.Operator) {
	case OpEqual:
		return fmt.Sprintf("%s is %s", name, value)
	case OpNotEqual:
		return fmt.Sprintf("%s is not %s", name, value)
	case OpContains:
		return fmt.Sprintf("%s contains %s", name, value)
	case OpNotContains:
		return fmt.Sprintf("%s does not contain %s", name, value)
	case OpGreaterThan:
		return fmt.Sprintf("%s is greater than %s", name, value)
	case OpGreaterEqual:
		return fmt.Sprintf("%s is at least %s", name, value)
	case OpLessThan:
		return fmt.Sprintf("%s is less than %s", name, value)
	case OpLessEqual:
		return fmt.Sprintf("%s is at most %s", name, value)
	case OpIsEmpty:
		return fmt.Sprintf("%s is empty", name)
	case OpIsNotEmpty:
		return fmt.Sprintf("%s is not empty", name)
	case OpBefore:
		return fmt.Sprintf("%s is before %s", name, value)
	case OpAfter:
		return fmt.Sprintf("%s is after %s", name, value)
	case OpOnOrBefore:
		return fmt.Sprintf("%s is on or before %s", name, value)
	case OpOnOrAfter:
		return fmt.Sprintf("%s is on or after %s", name, value)
	default:
		return fmt.Sprintf("%s %s %s", name, n.Operator, value)
	}
}
