package rfilter

import (
	"strings"
	"testing"
)

func TestParseSimpleComparison(t *testing.T) {
	node, err := Parse("state=backlog")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	cmp, ok := node.(*Comparison)
	if !ok {
		t.Fatalf("expected *Comparison, got %T", node)
	}
	if cmp.Field != "state" || cmp.Op != OpEquals || len(cmp.Values) != 1 || cmp.Values[0] != "backlog" {
		t.Errorf("unexpected comparison %+v", cmp)
	}
}

func TestParsePrecedence(t *testing.T) {
	// AND binds tighter than OR: a OR b AND c == a OR (b AND c)
	node, err := Parse("state=done OR state=started AND priority=urgent")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	or, ok := node.(*Or)
	if !ok {
		t.Fatalf("expected *Or at root, got %T", node)
	}
	if _, ok := or.Right.(*And); !ok {
		t.Errorf("expected AND on right of OR, got %T", or.Right)
	}
}

func TestParseParentheses(t *testing.T) {
	node, err := Parse("(state=backlog OR state=started) AND priority=urgent")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	and, ok := node.(*And)
	if !ok {
		t.Fatalf("expected *And at root, got %T", node)
	}
	if _, ok := and.Left.(*Or); !ok {
		t.Errorf("expected OR on left of AND, got %T", and.Left)
	}
}

func TestParseNotRightAssociative(t *testing.T) {
	node, err := Parse("NOT NOT state=done")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	outer, ok := node.(*Not)
	if !ok {
		t.Fatalf("expected *Not, got %T", node)
	}
	if _, ok := outer.Operand.(*Not); !ok {
		t.Errorf("expected nested NOT, got %T", outer.Operand)
	}
}

func TestParseValueList(t *testing.T) {
	node, err := Parse("assignee=u1,u2,u3")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	cmp := node.(*Comparison)
	if len(cmp.Values) != 3 {
		t.Fatalf("expected 3 values, got %v", cmp.Values)
	}
}

func TestParseValueListRequiresEquality(t *testing.T) {
	if _, err := Parse("priority<1,2"); err == nil {
		t.Fatal("expected error for value list with '<'")
	}
}

func TestParseDuration(t *testing.T) {
	node, err := Parse("updated>7d")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	cmp := node.(*Comparison)
	if !cmp.Duration || cmp.Values[0] != "7d" {
		t.Errorf("expected duration value 7d, got %+v", cmp)
	}
}

func TestParseQuotedString(t *testing.T) {
	node, err := Parse(`label="needs design"`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	cmp := node.(*Comparison)
	if cmp.Values[0] != "needs design" {
		t.Errorf("expected quoted value, got %q", cmp.Values[0])
	}
}

func TestParseErrors(t *testing.T) {
	tests := []string{
		"",
		"   ",
		"state=",
		"=backlog",
		"state==backlog",
		"(state=backlog",
		"state=backlog extra",
		"state ! backlog",
	}
	for _, input := range tests {
		if _, err := Parse(input); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", input)
		}
	}
}

func TestEncodeDeterministic(t *testing.T) {
	a, err := Parse("assignee=u2,u1 AND state=backlog")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	b, err := Parse("assignee=u1,u2 AND state=backlog")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if Encode(a) != Encode(b) {
		t.Errorf("value order changed encoding: %q vs %q", Encode(a), Encode(b))
	}
	if Encode(a) != Encode(a) {
		t.Error("encoding is not stable")
	}
}

func TestEncodeNil(t *testing.T) {
	if Encode(nil) != "" {
		t.Error("Encode(nil) should be empty")
	}
}

func TestEncodeShape(t *testing.T) {
	node, err := Parse("NOT (state=done OR state=cancelled)")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	encoded := Encode(node)
	if !strings.HasPrefix(encoded, "NOT (") {
		t.Errorf("unexpected encoding %q", encoded)
	}
}
