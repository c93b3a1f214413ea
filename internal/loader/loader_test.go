package loader

import (
	"testing"

	"github.com/trellishq/trellis/internal/types"
)

func TestStateDefaultsToInit(t *testing.T) {
	tr := New()
	if got := tr.State("s1", "backlog", ""); got != types.LoaderInit {
		t.Errorf("unfetched cell state = %s, want init-loader", got)
	}
}

func TestStateTransitions(t *testing.T) {
	tr := New()

	tr.Set("s1", "backlog", "", types.LoaderInit)
	tr.MarkMerged("s1", "backlog", "", false)
	if got := tr.State("s1", "backlog", ""); got != types.LoaderLoaded {
		t.Fatalf("state after merge = %s, want loaded", got)
	}

	// loaded <-> pagination
	tr.Set("s1", "backlog", "", types.LoaderPagination)
	if got := tr.State("s1", "backlog", ""); got != types.LoaderPagination {
		t.Fatalf("state = %s, want pagination", got)
	}
	tr.MarkMerged("s1", "backlog", "", false)

	// loaded <-> mutation
	tr.Set("s1", "backlog", "", types.LoaderMutation)
	if got := tr.State("s1", "backlog", ""); got != types.LoaderMutation {
		t.Fatalf("state = %s, want mutation", got)
	}
}

func TestUndefinedNeverRevertsToInit(t *testing.T) {
	tr := New()
	tr.MarkMerged("s1", "backlog", "", true)
	if got := tr.State("s1", "backlog", ""); got != types.LoaderUndefined {
		t.Fatalf("empty merge should mark undefined, got %s", got)
	}

	// A re-derivation from the same empty page set must not coerce the
	// cell back to init-loader.
	tr.Set("s1", "backlog", "", types.LoaderInit)
	if got := tr.State("s1", "backlog", ""); got != types.LoaderUndefined {
		t.Errorf("undefined cell reverted to %s", got)
	}

	// But a later fetch that finds content may still load it.
	tr.MarkMerged("s1", "backlog", "", false)
	if got := tr.State("s1", "backlog", ""); got != types.LoaderLoaded {
		t.Errorf("undefined cell should accept loaded, got %s", got)
	}
}

func TestCellsAreIndependent(t *testing.T) {
	tr := New()
	tr.MarkMerged("s1", "backlog", "u1", false)
	if got := tr.State("s1", "backlog", "u2"); got != types.LoaderInit {
		t.Errorf("sibling subgroup state = %s, want init-loader", got)
	}
	if got := tr.State("s2", "backlog", "u1"); got != types.LoaderInit {
		t.Errorf("other scope state = %s, want init-loader", got)
	}
}

func TestCountSummation(t *testing.T) {
	tr := New()
	tr.SetCounts("s1", map[string]types.GroupCount{
		"A": {Subgroups: map[string]int{"x": 3, "y": 2}},
		"B": {Total: 5},
	})

	if got := tr.Count("s1", "A", "", true); got != 5 {
		t.Errorf("cumulative count for A = %d, want 5", got)
	}
	if got := tr.Count("s1", "B", "", false); got != 5 {
		t.Errorf("direct count for B = %d, want 5", got)
	}
	// Non-cumulative read of a nested value falls back to the sum.
	if got := tr.Count("s1", "A", "", false); got != 5 {
		t.Errorf("nested fallback count for A = %d, want 5", got)
	}
	if got := tr.Count("s1", "A", "x", false); got != 3 {
		t.Errorf("subgroup count A/x = %d, want 3", got)
	}
	if got := tr.Count("s1", "missing", "", false); got != 0 {
		t.Errorf("missing group count = %d, want 0", got)
	}
}

func TestTotalWithoutAllIssuesKeySumsLeaves(t *testing.T) {
	tr := New()
	tr.SetCounts("s1", map[string]types.GroupCount{
		"A": {Subgroups: map[string]int{"x": 3, "y": 2}},
		"B": {Total: 5},
	})
	if got := tr.Total("s1"); got != 10 {
		t.Errorf("total = %d, want 10", got)
	}
}

func TestTotalPrefersAllIssuesKey(t *testing.T) {
	tr := New()
	tr.SetCounts("s1", map[string]types.GroupCount{
		types.AllIssuesKey: {Total: 7},
		"B":                {Total: 5},
	})
	if got := tr.Total("s1"); got != 7 {
		t.Errorf("total = %d, want the all-issues count 7", got)
	}
}

func TestSetCountsReplaces(t *testing.T) {
	tr := New()
	tr.SetCounts("s1", map[string]types.GroupCount{"A": {Total: 3}})
	tr.SetCounts("s1", map[string]types.GroupCount{"B": {Total: 5}})
	if got := tr.Count("s1", "A", "", false); got != 0 {
		t.Errorf("stale count survived replacement: %d", got)
	}
	if got := tr.Total("s1"); got != 5 {
		t.Errorf("total after replacement = %d, want 5", got)
	}
}

func TestDropScope(t *testing.T) {
	tr := New()
	tr.MarkMerged("s1", "backlog", "", false)
	tr.MarkMerged("s2", "backlog", "", false)
	tr.SetCounts("s1", map[string]types.GroupCount{"A": {Total: 3}})

	tr.DropScope("s1")

	if got := tr.State("s1", "backlog", ""); got != types.LoaderInit {
		t.Errorf("dropped scope state = %s, want init-loader", got)
	}
	if got := tr.Total("s1"); got != 0 {
		t.Errorf("dropped scope total = %d, want 0", got)
	}
	if got := tr.State("s2", "backlog", ""); got != types.LoaderLoaded {
		t.Errorf("unrelated scope state = %s, want loaded", got)
	}
}
