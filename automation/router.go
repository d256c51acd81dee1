package automation

import "sort"

// Route selects the action group that should run for this trigger occurrence.
// Groups are considered in ascending Order and the first whose condition
// matches wins; the builder presents groups as an If / Otherwise-if chain and
// execution enforces the same exclusivity. A group with an empty condition
// always matches. Returns nil when no group matches.
func Route(groups []*ActionGroup, ctx *TriggerContext, schema TableSchema) *ActionGroup {
	for _, g := range sortGroups(groups) {
		if Evaluate(g.Condition, ctx, schema) {
			return g
		}
	}
	return nil
}

// sortGroups returns the groups ordered by Order ascending without mutating
// the input slice. The sort is stable so duplicate Order values keep their
// definition order, though validation rejects duplicates up front.
func sortGroups(groups []*ActionGroup) []*ActionGroup {
	sorted := make([]*ActionGroup, len(groups))
	copy(sorted, groups)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Order < sorted[j].Order
	})
	return sorted
}
