package automation

import "testing"

func TestRouteFirstMatchWins(t *testing.T) {
	ctx := taskCtx(map[string]any{"status": "Done", "priority": 5.0})

	groups := []*ActionGroup{
		{ID: "g1", Order: 0, Condition: leaf(OpEqual, "status", "Done")},
		{ID: "g2", Order: 1, Condition: leaf(OpGreaterThan, "priority", 3)},
	}

	got := Route(groups, ctx, taskSchema)
	if got == nil || got.ID != "g1" {
		t.Fatalf("Route() = %v, want g1 even though both groups match", got)
	}
}

func TestRouteRespectsOrderNotSlicePosition(t *testing.T) {
	ctx := taskCtx(map[string]any{"status": "Done"})

	groups := []*ActionGroup{
		{ID: "late", Order: 5, Condition: leaf(OpEqual, "status", "Done")},
		{ID: "early", Order: 1, Condition: leaf(OpEqual, "status", "Done")},
	}

	got := Route(groups, ctx, taskSchema)
	if got == nil || got.ID != "early" {
		t.Fatalf("Route() should pick the lowest Order, got %v", got)
	}

	// The caller's slice keeps its original arrangement.
	if groups[0].ID != "late" {
		t.Error("Route() mutated the input slice order")
	}
}

func TestRouteSkipsNonMatchingGroups(t *testing.T) {
	ctx := taskCtx(map[string]any{"status": "Todo", "priority": 5.0})

	groups := []*ActionGroup{
		{ID: "a", Order: 0, Condition: leaf(OpEqual, "status", "Done")},
		{ID: "b", Order: 1, Condition: leaf(OpGreaterThan, "priority", 3)},
	}

	got := Route(groups, ctx, taskSchema)
	if got == nil || got.ID != "b" {
		t.Fatalf("Route() = %v, want b", got)
	}
}

// An empty group condition is a catch-all, typically the trailing Otherwise
// branch.
func TestRouteEmptyConditionMatches(t *testing.T) {
	ctx := taskCtx(map[string]any{"status": "Todo"})

	groups := []*ActionGroup{
		{ID: "specific", Order: 0, Condition: leaf(OpEqual, "status", "Done")},
		{ID: "fallback", Order: 1},
	}

	got := Route(groups, ctx, taskSchema)
	if got == nil || got.ID != "fallback" {
		t.Fatalf("Route() = %v, want fallback", got)
	}
}

func TestRouteNoMatch(t *testing.T) {
	ctx := taskCtx(map[string]any{"status": "Todo"})

	groups := []*ActionGroup{
		{ID: "g1", Order: 0, Condition: leaf(OpEqual, "status", "Done")},
	}

	if got := Route(groups, ctx, taskSchema); got != nil {
		t.Fatalf("Route() = %v, want nil", got)
	}
	if got := Route(nil, ctx, taskSchema); got != nil {
		t.Fatalf("Route(nil groups) = %v, want nil", got)
	}
}
