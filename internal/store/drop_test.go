package store

import (
	"context"
	"reflect"
	"testing"

	"github.com/trellishq/trellis/internal/types"
)

func TestHandleDropIdenticalLocationNoOp(t *testing.T) {
	fetch := &fakeFetch{}
	svc := &fakeSvc{}
	st := newTestStore(t, fetch, svc)
	scope := setupBoard(t, st, boardPage(), fetch)

	loc := DropLocation{Group: "todo", Index: 0}
	if err := st.HandleDrop(context.Background(), scope, "I1", loc, loc); err != nil {
		t.Fatalf("HandleDrop: %v", err)
	}
	if got := svc.callLog(); len(got) != 0 {
		t.Fatalf("call log = %v, want none for an identical drop", got)
	}
}

func TestHandleDropReorderWithinGroup(t *testing.T) {
	fetch := &fakeFetch{}
	svc := &fakeSvc{}
	st := newTestStore(t, fetch, svc)
	scope := setupBoard(t, st, boardPage(), fetch)

	// Drag I1 (sort 100) below I2 (sort 200) in the todo column.
	err := st.HandleDrop(context.Background(), scope, "I1",
		DropLocation{Group: "todo", Index: 0},
		DropLocation{Group: "todo", Index: 1})
	if err != nil {
		t.Fatalf("HandleDrop: %v", err)
	}

	if got := st.Issue("I1").SortOrder; got != 200+sortStep {
		t.Errorf("sort order = %v, want %v (past the last neighbor)", got, 200+sortStep)
	}
	if got := st.GroupedIDs(scope).IDsFor("todo", ""); !reflect.DeepEqual(got, []string{"I2", "I1"}) {
		t.Errorf("todo bucket = %v, want [I2 I1]", got)
	}
	// A reorder is a scalar update only.
	want := []string{"update:I1:1"}
	if got := svc.callLog(); !reflect.DeepEqual(got, want) {
		t.Errorf("call log = %v, want %v", got, want)
	}
}

func TestHandleDropBetweenNeighborsUsesMidpoint(t *testing.T) {
	fetch := &fakeFetch{}
	svc := &fakeSvc{}
	st := newTestStore(t, fetch, svc)
	scope := setupBoard(t, st, boardPage(), fetch)

	// Drop I3 between I1 (100) and I2 (200).
	err := st.HandleDrop(context.Background(), scope, "I3",
		DropLocation{Group: "started", Index: 0},
		DropLocation{Group: "todo", Index: 1})
	if err != nil {
		t.Fatalf("HandleDrop: %v", err)
	}
	if got := st.Issue("I3").SortOrder; got != 150 {
		t.Errorf("sort order = %v, want midpoint 150", got)
	}
	if got := st.Issue("I3").State; got != "todo" {
		t.Errorf("state = %q, want todo", got)
	}
	if got := st.GroupedIDs(scope).IDsFor("todo", ""); !reflect.DeepEqual(got, []string{"I1", "I3", "I2"}) {
		t.Errorf("todo bucket = %v, want [I1 I3 I2]", got)
	}
	if got := st.GroupedIDs(scope).IDsFor("started", ""); containsString(got, "I3") {
		t.Error("I3 still present in started column")
	}
}

func TestHandleDropEmptyColumn(t *testing.T) {
	fetch := &fakeFetch{}
	svc := &fakeSvc{}
	st := newTestStore(t, fetch, svc)
	page := boardPage()
	page.Grouped["done"] = nil
	scope := setupBoard(t, st, page, fetch)

	err := st.HandleDrop(context.Background(), scope, "I1",
		DropLocation{Group: "todo", Index: 0},
		DropLocation{Group: "done", Index: 0})
	if err != nil {
		t.Fatalf("HandleDrop: %v", err)
	}
	if got := st.Issue("I1").SortOrder; got != sortStep {
		t.Errorf("sort order = %v, want the base step for an empty column", got)
	}
	if got := st.GroupedIDs(scope).IDsFor("done", ""); !reflect.DeepEqual(got, []string{"I1"}) {
		t.Errorf("done bucket = %v, want [I1]", got)
	}
}

func TestHandleDropAcrossSprintColumns(t *testing.T) {
	fetch := &fakeFetch{}
	svc := &fakeSvc{}
	st := newTestStore(t, fetch, svc)

	i1 := testIssue("I1", "todo", 100)
	i1.SprintID = strPtr("s1")
	page := &types.Page{Grouped: map[string][]*types.Issue{
		"s1": {i1},
		"s2": {},
	}}
	scope := projectScope()
	if err := st.InitScope(scope); err != nil {
		t.Fatalf("InitScope: %v", err)
	}
	f := boardFilter()
	f.Display.GroupBy = types.DimensionSprint
	if err := st.UpdateFilter(scope, f); err != nil {
		t.Fatalf("UpdateFilter: %v", err)
	}
	fetch.mu.Lock()
	fetch.pages = map[string]*types.Page{"": page}
	fetch.mu.Unlock()
	if err := st.Fetch(context.Background(), scope); err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	err := st.HandleDrop(context.Background(), scope, "I1",
		DropLocation{Group: "s1", Index: 0},
		DropLocation{Group: "s2", Index: 0})
	if err != nil {
		t.Fatalf("HandleDrop: %v", err)
	}

	// A sprint crossing is two membership calls plus the sort order update.
	want := []string{"update:I1:1", "remove-sprint:s1:I1", "add-sprint:s2:I1"}
	if got := svc.callLog(); !reflect.DeepEqual(got, want) {
		t.Fatalf("call log = %v, want %v", got, want)
	}
	if got := st.GroupedIDs(scope).IDsFor("s2", ""); !containsString(got, "I1") {
		t.Errorf("s2 bucket = %v, missing I1", got)
	}
}

func TestHandleDropAcrossEpicColumnsIsSymmetricDiff(t *testing.T) {
	fetch := &fakeFetch{}
	svc := &fakeSvc{}
	st := newTestStore(t, fetch, svc)

	i1 := testIssue("I1", "todo", 100)
	i1.EpicIDs = []string{"e1", "e2"}
	page := &types.Page{Grouped: map[string][]*types.Issue{
		"e1": {i1},
		"e2": {i1},
		"e3": {},
	}}
	scope := projectScope()
	if err := st.InitScope(scope); err != nil {
		t.Fatalf("InitScope: %v", err)
	}
	f := boardFilter()
	f.Display.GroupBy = types.DimensionEpic
	if err := st.UpdateFilter(scope, f); err != nil {
		t.Fatalf("UpdateFilter: %v", err)
	}
	fetch.mu.Lock()
	fetch.pages = map[string]*types.Page{"": page}
	fetch.mu.Unlock()
	if err := st.Fetch(context.Background(), scope); err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	err := st.HandleDrop(context.Background(), scope, "I1",
		DropLocation{Group: "e1", Index: 0},
		DropLocation{Group: "e3", Index: 0})
	if err != nil {
		t.Fatalf("HandleDrop: %v", err)
	}

	want := []string{"update:I1:1", "change-epics:I1:+[e3]:-[e1]"}
	if got := svc.callLog(); !reflect.DeepEqual(got, want) {
		t.Fatalf("call log = %v, want %v", got, want)
	}
	issue := st.Issue("I1")
	if !reflect.DeepEqual(issue.EpicIDs, []string{"e2", "e3"}) {
		t.Errorf("epics = %v, want [e2 e3] (e2 untouched)", issue.EpicIDs)
	}
	idx := st.GroupedIDs(scope)
	if containsString(idx.IDsFor("e1", ""), "I1") {
		t.Error("I1 still in e1 column")
	}
	if !containsString(idx.IDsFor("e2", ""), "I1") {
		t.Error("I1 dropped from e2 column it never left")
	}
	if !containsString(idx.IDsFor("e3", ""), "I1") {
		t.Error("I1 missing from e3 column")
	}
}

func TestHandleDropUnsupportedDimension(t *testing.T) {
	fetch := &fakeFetch{}
	svc := &fakeSvc{}
	st := newTestStore(t, fetch, svc)

	scope := projectScope()
	if err := st.InitScope(scope); err != nil {
		t.Fatalf("InitScope: %v", err)
	}
	f := boardFilter()
	f.Display.GroupBy = types.DimensionCreated
	if err := st.UpdateFilter(scope, f); err != nil {
		t.Fatalf("UpdateFilter: %v", err)
	}
	fetch.mu.Lock()
	fetch.pages = map[string]*types.Page{"": {Grouped: map[string][]*types.Issue{
		"u1": {testIssue("I1", "todo", 100)},
	}}}
	fetch.mu.Unlock()
	if err := st.Fetch(context.Background(), scope); err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	err := st.HandleDrop(context.Background(), scope, "I1",
		DropLocation{Group: "u1", Index: 0},
		DropLocation{Group: "u2", Index: 0})
	if err == nil {
		t.Fatal("expected an error for a non-movable dimension")
	}
	if got := svc.callLog(); len(got) != 0 {
		t.Errorf("call log = %v, want none", got)
	}
}

func TestHandleDropSubgroupCrossing(t *testing.T) {
	fetch := &fakeFetch{}
	svc := &fakeSvc{}
	st := newTestStore(t, fetch, svc)

	i1 := testIssue("I1", "todo", 100)
	i1.Priority = "low"
	page := &types.Page{SubGrouped: map[string]map[string][]*types.Issue{
		"todo": {"low": {i1}, "high": {}},
	}}
	scope := projectScope()
	if err := st.InitScope(scope); err != nil {
		t.Fatalf("InitScope: %v", err)
	}
	f := boardFilter()
	f.Display.SubGroupBy = types.DimensionPriority
	if err := st.UpdateFilter(scope, f); err != nil {
		t.Fatalf("UpdateFilter: %v", err)
	}
	fetch.mu.Lock()
	fetch.pages = map[string]*types.Page{"": page}
	fetch.mu.Unlock()
	if err := st.Fetch(context.Background(), scope); err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	err := st.HandleDrop(context.Background(), scope, "I1",
		DropLocation{Group: "todo", Subgroup: "low", Index: 0},
		DropLocation{Group: "todo", Subgroup: "high", Index: 0})
	if err != nil {
		t.Fatalf("HandleDrop: %v", err)
	}
	if got := st.Issue("I1").Priority; got != "high" {
		t.Errorf("priority = %q, want high", got)
	}
	idx := st.GroupedIDs(scope)
	if !containsString(idx.IDsFor("todo", "high"), "I1") {
		t.Error("I1 missing from high subgroup")
	}
	if containsString(idx.IDsFor("todo", "low"), "I1") {
		t.Error("I1 still in low subgroup")
	}
}
