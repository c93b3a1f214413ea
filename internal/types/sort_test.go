package types

import "testing"

func TestParseOrderBy(t *testing.T) {
	opts := ParseOrderBy("-priority,created_at,sort_order")
	if len(opts) != 3 {
		t.Fatalf("expected 3 options, got %d", len(opts))
	}
	if opts[0].Field != "priority" || opts[0].Direction != SortDesc {
		t.Fatalf("unexpected first option %+v", opts[0])
	}
	if opts[1].Field != "created_at" || opts[1].Direction != SortAsc {
		t.Fatalf("unexpected second option %+v", opts[1])
	}
	if opts[2].Field != "sort_order" || opts[2].Direction != SortAsc {
		t.Fatalf("unexpected third option %+v", opts[2])
	}
}

func TestParseOrderBySkipsEmptyAndDuplicates(t *testing.T) {
	opts := ParseOrderBy("priority,,  ,-priority,created_at")
	if len(opts) != 2 {
		t.Fatalf("expected 2 options, got %d: %+v", len(opts), opts)
	}
	if opts[0].Field != "priority" || opts[0].Direction != SortAsc {
		t.Fatalf("unexpected priority option %+v", opts[0])
	}
}

func TestEncodeOrderBy(t *testing.T) {
	encoded := EncodeOrderBy([]OrderByOption{
		{Field: "priority", Direction: SortDesc},
		{Field: "created_at", Direction: SortAsc},
	})
	if encoded != "-priority,created_at" {
		t.Fatalf("unexpected encoded order %q", encoded)
	}
}

func TestEncodeOrderByEmpty(t *testing.T) {
	if got := EncodeOrderBy(nil); got != "" {
		t.Fatalf("EncodeOrderBy(nil) = %q, want empty", got)
	}
}

func TestDefaultOrderBy(t *testing.T) {
	defaults := DefaultOrderBy()
	if len(defaults) != 1 {
		t.Fatalf("expected 1 default, got %d", len(defaults))
	}
	if defaults[0].Field != OrderByManual || defaults[0].Direction != SortAsc {
		t.Fatalf("unexpected default %+v", defaults[0])
	}
}
