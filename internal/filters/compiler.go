// Package filters compiles user-selected display and rich filters into the
// exact wire-level query parameter set for a fetch. Compilation is
// deterministic: equal filter state always yields byte-identical parameter
// encodings, so compiled parameters double as fetch cache keys.
package filters

import (
	"encoding/base64"
	"sort"
	"strings"

	"github.com/trellishq/trellis/internal/rfilter"
	"github.com/trellishq/trellis/internal/types"
)

// Wire parameter names.
const (
	ParamGroupBy     = "group_by"
	ParamSubGroupBy  = "sub_group_by"
	ParamOrderBy     = "order_by"
	ParamSubIssue    = "sub_issue"
	ParamRichFilters = "rich_filters"
	ParamExpand      = "expand"
	ParamCursor      = "cursor"
	ParamPerPage     = "per_page"
)

// ExpandRelations is the expansion injected for the gantt layout when
// dependency tracking is enabled, so the timeline can draw relation arrows
// without a second round trip.
const ExpandRelations = "relations"

// Filter couples the display filter toggles with the rich-filter expression
// for one scope. Exactly one Filter exists per scope key; a nil *Filter means
// the scope has not been initialized yet, which is distinct from an empty
// filter.
type Filter struct {
	Display types.DisplayFilters
	Rich    rfilter.Node
}

// Flags are feature toggles that influence compilation.
type Flags struct {
	// DependencyTracking injects the relations expansion under the gantt
	// layout.
	DependencyTracking bool
}

// dimensionParam translates display group dimension names to server-side
// query values. Unknown dimensions pass through unchanged (dimensions are an
// open set; the server rejects what it does not know).
var dimensionParam = map[string]string{
	types.DimensionState:    "state_id",
	types.DimensionPriority: "priority",
	types.DimensionAssignee: "assignee_ids",
	types.DimensionLabel:    "label_ids",
	types.DimensionSprint:   "sprint_id",
	types.DimensionEpic:     "epic_ids",
	types.DimensionCreated:  "created_by",
}

// acceptableParams lists, per layout, the wire parameters the layout can
// consume. Parameters outside the active layout's list are dropped entirely
// (not left empty) so that changing layout always changes the compiled
// parameter set and stale cached pages cannot be reused.
var acceptableParams = map[types.Layout][]string{
	types.LayoutList: {
		ParamGroupBy, ParamOrderBy, ParamSubIssue, ParamRichFilters, ParamCursor, ParamPerPage,
	},
	types.LayoutBoard: {
		ParamGroupBy, ParamSubGroupBy, ParamOrderBy, ParamSubIssue, ParamRichFilters, ParamCursor, ParamPerPage,
	},
	types.LayoutCalendar: {
		ParamSubIssue, ParamRichFilters, ParamCursor, ParamPerPage,
	},
	types.LayoutSpreadsheet: {
		ParamOrderBy, ParamSubIssue, ParamRichFilters, ParamCursor, ParamPerPage,
	},
	types.LayoutGantt: {
		ParamOrderBy, ParamSubIssue, ParamRichFilters, ParamExpand, ParamCursor, ParamPerPage,
	},
}

// AcceptableParams returns the parameter names the given layout consumes.
// An unknown layout gets the list layout's set; compilation never fails.
func AcceptableParams(layout types.Layout) []string {
	params, ok := acceptableParams[layout]
	if !ok {
		params = acceptableParams[types.LayoutList]
	}
	out := make([]string, len(params))
	copy(out, params)
	return out
}

// Params is a compiled wire parameter set.
type Params map[string]string

// Encode renders the parameter set in canonical key-sorted form. Two equal
// parameter sets always encode identically; the store keys in-flight fetches
// on this string.
func (p Params) Encode() string {
	if len(p) == 0 {
		return ""
	}
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(p[k])
	}
	return sb.String()
}

// Clone returns a copy of the parameter set.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Compile maps a filter to its wire parameter set under the filter's active
// layout. A nil filter compiles to the empty-filter parameter set.
func Compile(f *Filter, flags Flags) Params {
	var display types.DisplayFilters
	var rich rfilter.Node
	if f != nil {
		display = f.Display
		rich = f.Rich
	}

	layout := display.Layout
	if !layout.IsValid() {
		layout = types.LayoutList
	}

	full := make(Params)

	if display.GroupBy != "" {
		full[ParamGroupBy] = translateDimension(display.GroupBy)
	}
	if display.SubGroupBy != "" {
		full[ParamSubGroupBy] = translateDimension(display.SubGroupBy)
	}

	if display.OrderBy != "" {
		full[ParamOrderBy] = display.OrderBy
	} else {
		full[ParamOrderBy] = types.EncodeOrderBy(types.DefaultOrderBy())
	}

	if display.IncludeSubIssues() {
		full[ParamSubIssue] = "true"
	} else {
		full[ParamSubIssue] = "false"
	}

	if encoded := rfilter.Encode(rich); encoded != "" {
		full[ParamRichFilters] = base64.RawURLEncoding.EncodeToString([]byte(encoded))
	}

	if flags.DependencyTracking && layout == types.LayoutGantt {
		full[ParamExpand] = ExpandRelations
	}

	// Prune to the layout's acceptable set. Dropping (rather than blanking)
	// is load-bearing: the fetch key must change deterministically when the
	// layout changes.
	allowed := make(map[string]bool)
	for _, name := range AcceptableParams(layout) {
		allowed[name] = true
	}
	out := make(Params, len(full))
	for k, v := range full {
		if allowed[k] {
			out[k] = v
		}
	}
	return out
}

// JoinValues renders an array-valued filter as the comma-joined wire form;
// empty slices yield the empty string, which callers must omit.
func JoinValues(values []string) string {
	nonEmpty := values[:0:0]
	for _, v := range values {
		if v != "" {
			nonEmpty = append(nonEmpty, v)
		}
	}
	return strings.Join(nonEmpty, ",")
}

func translateDimension(dim string) string {
	if v, ok := dimensionParam[dim]; ok {
		return v
	}
	return dim
}
