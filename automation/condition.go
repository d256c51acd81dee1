package automation

// GroupAnd and GroupOr are the connectives for filter groups; everything else
// in the Operator position of a node marks it as a leaf condition.
const (
	GroupAnd = "and"
	GroupOr  = "or"
)

// Operator is a leaf comparison operator. The valid set depends on the field
// type; OperatorsForType is the authority.
type Operator string

const (
	OpEqual        Operator = "equal"
	OpNotEqual     Operator = "not_equal"
	OpContains     Operator = "contains"
	OpNotContains  Operator = "not_contains"
	OpGreaterThan  Operator = "greater_than"
	OpGreaterEqual Operator = "greater_equal"
	OpLessThan     Operator = "less_than"
	OpLessEqual    Operator = "less_equal"
	OpIsEmpty      Operator = "is_empty"
	OpIsNotEmpty   Operator = "is_not_empty"
	OpBefore       Operator = "before"
	OpAfter        Operator = "after"
	OpOnOrBefore   Operator = "on_or_before"
	OpOnOrAfter    Operator = "on_or_after"
)

// FilterNode is one node of a canonical condition tree. A node is a group
// when Operator is "and"/"or" (Children may be empty); otherwise it is a leaf
// condition on FieldRef. This single-struct shape mirrors the JSON contract
// with the builder UI, where both variants share the "operator" key.
type FilterNode struct {
	Operator string        `json:"operator"`
	Children []*FilterNode `json:"children,omitempty"`

	FieldRef string `json:"fieldRef,omitempty"`
	Value    any    `json:"value,omitempty"`
}

// IsGroup reports whether the node is an and/or group rather than a leaf.
func (n *FilterNode) IsGroup() bool {
	return n != nil && (n.Operator == GroupAnd || n.Operator == GroupOr)
}

// Normalize converts any tree to canonical form: nil becomes an empty AND
// group, nil children are dropped recursively, and a leaf in the root
// position is wrapped in an AND group. The input is never mutated.
func Normalize(tree *FilterNode) *FilterNode {
	if tree == nil {
		return &FilterNode{Operator: GroupAnd}
	}
	if !tree.IsGroup() {
		return &FilterNode{Operator: GroupAnd, Children: []*FilterNode{copyNode(tree)}}
	}
	return copyNode(tree)
}

// IsEmpty reports whether the tree means "no condition" (always match). Both
// nil and a group with no children are empty; this is the only sanctioned
// emptiness check.
func IsEmpty(tree *FilterNode) bool {
	return len(Normalize(tree).Children) == 0
}

func copyNode(n *FilterNode) *FilterNode {
	if n == nil {
		return nil
	}
	out := &FilterNode{
		Operator: n.Operator,
		FieldRef: n.FieldRef,
		Value:    n.Value,
	}
	if n.IsGroup() {
		for _, child := range n.Children {
			if child == nil {
				continue
			}
			out.Children = append(out.Children, copyNode(child))
		}
	}
	return out
}

// OperatorsForType returns the operators valid for a field type.
func OperatorsForType(ft FieldType) []Operator {
	switch ft {
	case FieldNumber:
		return []Operator{
			OpEqual, OpNotEqual,
			OpGreaterThan, OpGreaterEqual, OpLessThan, OpLessEqual,
			OpIsEmpty, OpIsNotEmpty,
		}
	case FieldDate:
		return []Operator{
			OpEqual, OpNotEqual,
			OpBefore, OpAfter, OpOnOrBefore, OpOnOrAfter,
			OpIsEmpty, OpIsNotEmpty,
		}
	case FieldCheckbox:
		return []Operator{OpEqual, OpNotEqual}
	case FieldSelect, FieldUser:
		return []Operator{OpEqual, OpNotEqual, OpIsEmpty, OpIsNotEmpty}
	case FieldMultiSelect:
		return []Operator{OpContains, OpNotContains, OpIsEmpty, OpIsNotEmpty}
	default:
		// Text-like fields: text, long_text, email, url.
		return []Operator{
			OpEqual, OpNotEqual, OpContains, OpNotContains,
			OpIsEmpty, OpIsNotEmpty,
		}
	}
}

// IsUnary reports whether the operator ignores the condition value.
func (op Operator) IsUnary() bool {
	return op == OpIsEmpty || op == OpIsNotEmpty
}
