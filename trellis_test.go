package trellis

import "testing"

func TestNewStoreInitializesScopes(t *testing.T) {
	st := New(Options{BaseURL: "http://localhost:0", WorkspaceID: "ws"})
	scope := Scope{Kind: ScopeProject, WorkspaceID: "ws", ProjectID: "p1"}
	if err := st.InitScope(scope); err != nil {
		t.Fatalf("InitScope: %v", err)
	}
	f := st.Filter(scope)
	if f == nil {
		t.Fatal("no default filter after init")
	}
	if f.Display.Layout != LayoutList {
		t.Errorf("default layout = %q, want list", f.Display.Layout)
	}
}

func TestParseRichFilter(t *testing.T) {
	node, err := ParseRichFilter(`state != done AND (priority = urgent OR updated > 7d)`)
	if err != nil {
		t.Fatalf("ParseRichFilter: %v", err)
	}
	if node == nil {
		t.Fatal("nil node for valid expression")
	}
	if _, err := ParseRichFilter("state ="); err == nil {
		t.Error("expected parse error for dangling operator")
	}
}
