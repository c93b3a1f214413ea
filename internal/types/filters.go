package types

// Layout identifies the active display layout. The filter compiler prunes
// wire parameters that the layout cannot consume.
type Layout string

// Supported layouts.
const (
	LayoutList        Layout = "list"
	LayoutBoard       Layout = "board"
	LayoutCalendar    Layout = "calendar"
	LayoutSpreadsheet Layout = "spreadsheet"
	LayoutGantt       Layout = "gantt"
)

// IsValid checks if the layout value is one of the supported layouts.
func (l Layout) IsValid() bool {
	switch l {
	case LayoutList, LayoutBoard, LayoutCalendar, LayoutSpreadsheet, LayoutGantt:
		return true
	}
	return false
}

// DisplayFilters are the user-selected view toggles for one scope: the
// grouping dimensions, ordering, layout, and simple booleans. Rich filters
// (the boolean expression over issue attributes) are carried separately.
type DisplayFilters struct {
	GroupBy         string `json:"group_by,omitempty"`
	SubGroupBy      string `json:"sub_group_by,omitempty"`
	OrderBy         string `json:"order_by,omitempty"`
	Layout          Layout `json:"layout,omitempty"`
	SubIssue        *bool  `json:"sub_issue,omitempty"` // nil defaults to true
	ShowEmptyGroups bool   `json:"show_empty_groups,omitempty"`
}

// IncludeSubIssues resolves the SubIssue toggle, defaulting to true when
// unset.
func (d DisplayFilters) IncludeSubIssues() bool {
	if d.SubIssue == nil {
		return true
	}
	return *d.SubIssue
}

// Group dimension names. Dimensions are open string keys, not a closed enum:
// the grouping engine treats any server-stated key as valid, these constants
// only name the dimensions the move resolver special-cases.
const (
	DimensionState    = "state"
	DimensionPriority = "priority"
	DimensionAssignee = "assignees"
	DimensionLabel    = "labels"
	DimensionSprint   = "sprint"
	DimensionEpic     = "epic"
	DimensionCreated  = "created_by"
)

// OrderByManual is the order_by value under which drag-and-drop recomputes
// sort positions. Any other ordering leaves position to the server.
const OrderByManual = "sort_order"
