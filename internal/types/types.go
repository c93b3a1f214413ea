// Package types defines core data structures for the trellis client data layer.
package types

import (
	"fmt"
	"time"
)

// Issue represents the client-visible view of a work item. The canonical
// server-side representation is owned by the remote service; this struct only
// carries the fields the collection layer groups, sorts, and mutates.
type Issue struct {
	ID          string     `json:"id"`
	WorkspaceID string     `json:"workspace_id,omitempty"`
	ProjectID   string     `json:"project_id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	State       string     `json:"state,omitempty"`
	Priority    string     `json:"priority,omitempty"`
	AssigneeIDs []string   `json:"assignee_ids,omitempty"`
	LabelIDs    []string   `json:"label_ids,omitempty"`
	SprintID    *string    `json:"sprint_id,omitempty"`
	EpicIDs     []string   `json:"epic_ids,omitempty"`
	ParentID    *string    `json:"parent_id,omitempty"`
	SortOrder   float64    `json:"sort_order"`
	CreatedByID string     `json:"created_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ArchivedAt  *time.Time `json:"archived_at,omitempty"`
}

// Clone returns a deep copy of the issue. The mutation engine snapshots
// issues before applying optimistic writes; the copy must not share any
// mutable state with the original.
func (i *Issue) Clone() *Issue {
	if i == nil {
		return nil
	}
	out := *i
	out.AssigneeIDs = append([]string(nil), i.AssigneeIDs...)
	out.LabelIDs = append([]string(nil), i.LabelIDs...)
	out.EpicIDs = append([]string(nil), i.EpicIDs...)
	if i.SprintID != nil {
		v := *i.SprintID
		out.SprintID = &v
	}
	if i.ParentID != nil {
		v := *i.ParentID
		out.ParentID = &v
	}
	if i.ArchivedAt != nil {
		v := *i.ArchivedAt
		out.ArchivedAt = &v
	}
	return &out
}

// IsArchived reports whether the issue has been archived.
func (i *Issue) IsArchived() bool {
	return i.ArchivedAt != nil
}

// Validate checks the fields the client layer depends on. The server is the
// authority on full validation; this only rejects records the grouping and
// mutation engines cannot handle.
func (i *Issue) Validate() error {
	if i.ID == "" {
		return fmt.Errorf("issue id is required")
	}
	if i.ProjectID == "" {
		return fmt.Errorf("project id is required for issue %s", i.ID)
	}
	return nil
}

// AllIssuesKey is the reserved group key holding the flat (ungrouped) id
// list. It is also the key consumers read when no group_by is active.
const AllIssuesKey = "all-issues"

// NoneKey buckets issues whose value for the active group dimension is
// absent (no sprint, no assignee, and so on).
const NoneKey = "none"

// GroupedIssueIDs is the derived id-membership index for one scope. Exactly
// one of Groups or Subgroups is populated: Groups for flat (keyed under
// AllIssuesKey) and single-level grouping, Subgroups when a sub_group_by
// dimension is active. Values hold ids only; the issues themselves live in
// the canonical issue map.
type GroupedIssueIDs struct {
	Groups    map[string][]string
	Subgroups map[string]map[string][]string
}

// IDsFor returns the id list for a group (and subgroup, when two-level).
// Missing keys yield nil.
func (g *GroupedIssueIDs) IDsFor(group, subgroup string) []string {
	if g == nil {
		return nil
	}
	if g.Subgroups != nil {
		return g.Subgroups[group][subgroup]
	}
	return g.Groups[group]
}

// GroupKeys returns the group keys present in the index.
func (g *GroupedIssueIDs) GroupKeys() []string {
	if g == nil {
		return nil
	}
	if g.Subgroups != nil {
		keys := make([]string, 0, len(g.Subgroups))
		for k := range g.Subgroups {
			keys = append(keys, k)
		}
		return keys
	}
	keys := make([]string, 0, len(g.Groups))
	for k := range g.Groups {
		keys = append(keys, k)
	}
	return keys
}

// AllIDs returns the deduplicated union of every (sub)group id list, in
// first-seen order.
func (g *GroupedIssueIDs) AllIDs() []string {
	if g == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	appendIDs := func(ids []string) {
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	if g.Subgroups != nil {
		for _, subs := range g.Subgroups {
			for _, ids := range subs {
				appendIDs(ids)
			}
		}
		return out
	}
	for _, ids := range g.Groups {
		appendIDs(ids)
	}
	return out
}

// IsEmpty reports whether the index contains no ids at all.
func (g *GroupedIssueIDs) IsEmpty() bool {
	return g == nil || len(g.AllIDs()) == 0
}

// LoaderState is the loading phase of a (scope, group, subgroup) cell.
type LoaderState string

// Loader phases. LoaderUndefined is terminal: it marks a cell that was
// fetched and found genuinely empty, which is distinct from "not fetched
// yet" (LoaderInit).
const (
	LoaderInit       LoaderState = "init-loader"
	LoaderPagination LoaderState = "pagination"
	LoaderMutation   LoaderState = "mutation"
	LoaderLoaded     LoaderState = "loaded"
	LoaderUndefined  LoaderState = "undefined"
)

// IsLoading reports whether the state represents an in-flight fetch of any
// kind.
func (s LoaderState) IsLoading() bool {
	switch s {
	case LoaderInit, LoaderPagination, LoaderMutation:
		return true
	}
	return false
}

// PaginationInfo is the cursor state for one scope. It is replaced, not
// merged, on every successful fetch.
type PaginationInfo struct {
	NextCursor   string `json:"next_cursor,omitempty"`
	PrevCursor   string `json:"prev_cursor,omitempty"`
	HasNextPage  bool   `json:"has_next_page"`
	HasPrevPage  bool   `json:"has_previous_page"`
	TotalResults int    `json:"total_results"`
}

// GroupCount is the issue count reported by the server for one group. When
// the response is sub-grouped the server reports a per-subgroup breakdown
// instead of a scalar; Subgroups is non-nil in that case and Total may be
// zero.
type GroupCount struct {
	Total     int            `json:"total_results"`
	Subgroups map[string]int `json:"subgroups,omitempty"`
}

// Page is one fetched page of results. Exactly one of Results, Grouped, or
// SubGrouped is populated depending on the grouping the server applied.
// Pages are immutable once received.
type Page struct {
	Results    []*Issue                       `json:"results,omitempty"`
	Grouped    map[string][]*Issue            `json:"grouped_results,omitempty"`
	SubGrouped map[string]map[string][]*Issue `json:"sub_grouped_results,omitempty"`

	Counts map[string]GroupCount `json:"counts,omitempty"`

	NextCursor   string `json:"next_cursor,omitempty"`
	PrevCursor   string `json:"prev_cursor,omitempty"`
	HasNextPage  bool   `json:"has_next_page"`
	HasPrevPage  bool   `json:"has_previous_page"`
	TotalResults int    `json:"total_results"`
	TotalCount   int    `json:"total_count"`
}

// Pagination extracts the replaceable pagination state from the page.
func (p *Page) Pagination() PaginationInfo {
	if p == nil {
		return PaginationInfo{}
	}
	return PaginationInfo{
		NextCursor:   p.NextCursor,
		PrevCursor:   p.PrevCursor,
		HasNextPage:  p.HasNextPage,
		HasPrevPage:  p.HasPrevPage,
		TotalResults: p.TotalResults,
	}
}

// Issues returns every issue present in the page, regardless of shape.
func (p *Page) Issues() []*Issue {
	if p == nil {
		return nil
	}
	if p.SubGrouped != nil {
		var out []*Issue
		for _, subs := range p.SubGrouped {
			for _, issues := range subs {
				out = append(out, issues...)
			}
		}
		return out
	}
	if p.Grouped != nil {
		var out []*Issue
		for _, issues := range p.Grouped {
			out = append(out, issues...)
		}
		return out
	}
	return p.Results
}
