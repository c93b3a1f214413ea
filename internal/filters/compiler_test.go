package filters

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/trellishq/trellis/internal/rfilter"
	"github.com/trellishq/trellis/internal/types"
)

func boolPtr(b bool) *bool { return &b }

func TestCompileDeterministic(t *testing.T) {
	rich, err := rfilter.Parse("state=backlog AND priority=urgent")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	f := &Filter{
		Display: types.DisplayFilters{
			GroupBy: types.DimensionState,
			OrderBy: "-priority",
			Layout:  types.LayoutBoard,
		},
		Rich: rich,
	}

	first := Compile(f, Flags{}).Encode()
	second := Compile(f, Flags{}).Encode()
	if first != second {
		t.Errorf("compilation not deterministic:\n%s\n%s", first, second)
	}
	if first == "" {
		t.Error("expected non-empty encoded params")
	}
}

func TestCompileLayoutPrunesParams(t *testing.T) {
	f := &Filter{
		Display: types.DisplayFilters{
			GroupBy:    types.DimensionState,
			SubGroupBy: types.DimensionAssignee,
			OrderBy:    "-priority",
			Layout:     types.LayoutBoard,
		},
	}

	board := Compile(f, Flags{})
	if board[ParamSubGroupBy] == "" {
		t.Fatal("board layout should keep sub_group_by")
	}

	// Same filter, spreadsheet layout: grouping params must be dropped
	// entirely, not blanked.
	f.Display.Layout = types.LayoutSpreadsheet
	sheet := Compile(f, Flags{})
	if _, present := sheet[ParamGroupBy]; present {
		t.Error("spreadsheet layout should drop group_by")
	}
	if _, present := sheet[ParamSubGroupBy]; present {
		t.Error("spreadsheet layout should drop sub_group_by")
	}
	if sheet.Encode() == board.Encode() {
		t.Error("changing layout alone must change the encoded parameter set")
	}
}

func TestCompileDimensionTranslation(t *testing.T) {
	tests := []struct {
		dim  string
		want string
	}{
		{types.DimensionState, "state_id"},
		{types.DimensionAssignee, "assignee_ids"},
		{types.DimensionSprint, "sprint_id"},
		{types.DimensionEpic, "epic_ids"},
		{types.DimensionPriority, "priority"},
		{"custom_dimension", "custom_dimension"}, // open set: unknown passes through
	}
	for _, tt := range tests {
		f := &Filter{Display: types.DisplayFilters{GroupBy: tt.dim, Layout: types.LayoutList}}
		got := Compile(f, Flags{})[ParamGroupBy]
		if got != tt.want {
			t.Errorf("group_by %q compiled to %q, want %q", tt.dim, got, tt.want)
		}
	}
}

func TestCompileDefaults(t *testing.T) {
	params := Compile(&Filter{Display: types.DisplayFilters{Layout: types.LayoutList}}, Flags{})

	if params[ParamSubIssue] != "true" {
		t.Errorf("sub_issue = %q, want default true", params[ParamSubIssue])
	}
	if params[ParamOrderBy] != "sort_order" {
		t.Errorf("order_by = %q, want default sort_order", params[ParamOrderBy])
	}
	if _, present := params[ParamRichFilters]; present {
		t.Error("empty rich filter should be omitted, not sent blank")
	}
}

func TestCompileSubIssueToggle(t *testing.T) {
	f := &Filter{Display: types.DisplayFilters{Layout: types.LayoutList, SubIssue: boolPtr(false)}}
	if got := Compile(f, Flags{})[ParamSubIssue]; got != "false" {
		t.Errorf("sub_issue = %q, want false", got)
	}
}

func TestCompileNilFilter(t *testing.T) {
	// Malformed/absent filter state compiles to the empty-filter set.
	params := Compile(nil, Flags{})
	if params[ParamSubIssue] != "true" {
		t.Errorf("nil filter sub_issue = %q, want true", params[ParamSubIssue])
	}
}

func TestCompileInvalidLayoutFallsBack(t *testing.T) {
	f := &Filter{Display: types.DisplayFilters{Layout: "bogus", GroupBy: types.DimensionState}}
	params := Compile(f, Flags{})
	if params[ParamGroupBy] != "state_id" {
		t.Errorf("invalid layout should compile with list semantics, got %v", params)
	}
}

func TestCompileGanttExpansion(t *testing.T) {
	f := &Filter{Display: types.DisplayFilters{Layout: types.LayoutGantt}}

	withFlag := Compile(f, Flags{DependencyTracking: true})
	if withFlag[ParamExpand] != ExpandRelations {
		t.Errorf("expand = %q, want %q under gantt with dependency tracking", withFlag[ParamExpand], ExpandRelations)
	}

	withoutFlag := Compile(f, Flags{})
	if _, present := withoutFlag[ParamExpand]; present {
		t.Error("expand should be absent without the dependency flag")
	}

	// Flag on, but a non-gantt layout: no expansion.
	f.Display.Layout = types.LayoutBoard
	board := Compile(f, Flags{DependencyTracking: true})
	if _, present := board[ParamExpand]; present {
		t.Error("expand should be absent outside the gantt layout")
	}
}

func TestCompileRichFilterBlob(t *testing.T) {
	rich, err := rfilter.Parse("assignee=u1,u2")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	params := Compile(&Filter{Display: types.DisplayFilters{Layout: types.LayoutList}, Rich: rich}, Flags{})

	blob := params[ParamRichFilters]
	if blob == "" {
		t.Fatal("rich filter should compile to a non-empty blob")
	}
	decoded, err := base64.RawURLEncoding.DecodeString(blob)
	if err != nil {
		t.Fatalf("blob is not valid base64url: %v", err)
	}
	if string(decoded) != rfilter.Encode(rich) {
		t.Errorf("decoded blob %q does not match canonical form %q", decoded, rfilter.Encode(rich))
	}
}

func TestParamsEncodeSorted(t *testing.T) {
	p := Params{"b": "2", "a": "1", "c": "3"}
	if got := p.Encode(); got != "a=1&b=2&c=3" {
		t.Errorf("Encode() = %q, want key-sorted form", got)
	}
	if Params(nil).Encode() != "" {
		t.Error("empty params should encode to empty string")
	}
}

func TestJoinValues(t *testing.T) {
	if got := JoinValues([]string{"a", "", "b"}); got != "a,b" {
		t.Errorf("JoinValues = %q, want a,b", got)
	}
	if got := JoinValues(nil); got != "" {
		t.Errorf("JoinValues(nil) = %q, want empty", got)
	}
}

func TestFilterPersistRoundTrip(t *testing.T) {
	rich, err := rfilter.Parse("state=backlog OR state=started")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	orig := &Filter{
		Display: types.DisplayFilters{GroupBy: types.DimensionState, Layout: types.LayoutBoard},
		Rich:    rich,
	}

	data, err := json.Marshal(orig)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var restored Filter
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if restored.Display.GroupBy != orig.Display.GroupBy || restored.Display.Layout != orig.Display.Layout {
		t.Errorf("display filters did not round-trip: %+v", restored.Display)
	}
	if rfilter.Encode(restored.Rich) != rfilter.Encode(orig.Rich) {
		t.Errorf("rich filter did not round-trip: %q vs %q", rfilter.Encode(restored.Rich), rfilter.Encode(orig.Rich))
	}
}

func TestFilterPersistMalformedRichTreatedAsEmpty(t *testing.T) {
	data := []byte(`{"display_filters":{"layout":"list"},"rich_filters":"state=("}`)
	var f Filter
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("Unmarshal should tolerate malformed rich expression: %v", err)
	}
	if f.Rich != nil {
		t.Error("malformed rich expression should load as empty")
	}
	if !strings.Contains(string(data), "state=(") {
		t.Fatal("test fixture corrupted")
	}
}
