// Package grouper derives the grouped-id index for a scope from its fetched
// page set. Derivation is a pure fold: it never errors, it re-runs from the
// complete page set on every pass (idempotent by construction), and malformed
// page shapes degrade to empty structures rather than failing, because a
// rendering layer must never crash on transient bad data.
package grouper

import "github.com/trellishq/trellis/internal/types"

// emptyIndex is the canonical empty value. Sharing one instance keeps
// snapshots referentially stable across scopes that have nothing loaded.
var emptyIndex = &types.GroupedIssueIDs{Groups: map[string][]string{}}

// Empty returns the canonical empty index.
func Empty() *types.GroupedIssueIDs {
	return emptyIndex
}

// Derive folds the ordered page set into a grouped-id index. Flat pages
// concatenate into the reserved AllIssuesKey bucket; grouped pages
// concatenate per group key; sub-grouped pages per (group, subgroup) pair
// with buckets initialized lazily. The first page with results fixes the
// shape; pages of a different shape are skipped. A page with zero results
// for a key that already has entries never erases that key: the fold is
// append-only within a pass.
func Derive(pages []*types.Page) *types.GroupedIssueIDs {
	if len(pages) == 0 {
		return emptyIndex
	}

	shape := pageShape(pages)
	if shape == shapeNone {
		return emptyIndex
	}

	if shape == shapeSubGrouped {
		out := &types.GroupedIssueIDs{Subgroups: map[string]map[string][]string{}}
		seen := map[string]map[string]map[string]bool{}
		for _, p := range pages {
			if p == nil || p.SubGrouped == nil {
				continue
			}
			for group, subs := range p.SubGrouped {
				if out.Subgroups[group] == nil {
					out.Subgroups[group] = map[string][]string{}
					seen[group] = map[string]map[string]bool{}
				}
				for sub, issues := range subs {
					if seen[group][sub] == nil {
						seen[group][sub] = map[string]bool{}
						if out.Subgroups[group][sub] == nil {
							out.Subgroups[group][sub] = []string{}
						}
					}
					for _, issue := range issues {
						if issue == nil || issue.ID == "" || seen[group][sub][issue.ID] {
							continue
						}
						seen[group][sub][issue.ID] = true
						out.Subgroups[group][sub] = append(out.Subgroups[group][sub], issue.ID)
					}
				}
			}
		}
		return out
	}

	out := &types.GroupedIssueIDs{Groups: map[string][]string{}}
	seen := map[string]map[string]bool{}
	appendTo := func(group string, issues []*types.Issue) {
		if seen[group] == nil {
			seen[group] = map[string]bool{}
			if out.Groups[group] == nil {
				out.Groups[group] = []string{}
			}
		}
		for _, issue := range issues {
			if issue == nil || issue.ID == "" || seen[group][issue.ID] {
				continue
			}
			seen[group][issue.ID] = true
			out.Groups[group] = append(out.Groups[group], issue.ID)
		}
	}

	for _, p := range pages {
		if p == nil {
			continue
		}
		switch shape {
		case shapeGrouped:
			for group, issues := range p.Grouped {
				appendTo(group, issues)
			}
		case shapeFlat:
			appendTo(types.AllIssuesKey, p.Results)
		}
	}
	return out
}

type shapeKind int

const (
	shapeNone shapeKind = iota
	shapeFlat
	shapeGrouped
	shapeSubGrouped
)

// pageShape picks the fold shape from the first page that declares one.
func pageShape(pages []*types.Page) shapeKind {
	for _, p := range pages {
		if p == nil {
			continue
		}
		if p.SubGrouped != nil {
			return shapeSubGrouped
		}
		if p.Grouped != nil {
			return shapeGrouped
		}
		if p.Results != nil {
			return shapeFlat
		}
	}
	return shapeNone
}

// Equal reports structural equality: same shape, same keys, and leaf id
// arrays equal element-wise (or by reference).
func Equal(a, b *types.GroupedIssueIDs) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if (a.Subgroups != nil) != (b.Subgroups != nil) {
		return false
	}
	if a.Subgroups != nil {
		if len(a.Subgroups) != len(b.Subgroups) {
			return false
		}
		for group, asubs := range a.Subgroups {
			bsubs, ok := b.Subgroups[group]
			if !ok || len(asubs) != len(bsubs) {
				return false
			}
			for sub, aids := range asubs {
				bids, ok := bsubs[sub]
				if !ok || !equalIDs(aids, bids) {
					return false
				}
			}
		}
		return true
	}
	if len(a.Groups) != len(b.Groups) {
		return false
	}
	for group, aids := range a.Groups {
		bids, ok := b.Groups[group]
		if !ok || !equalIDs(aids, bids) {
			return false
		}
	}
	return true
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Deriver memoizes Derive so consumers get a referentially stable snapshot:
// the same object identity is returned as long as content is unchanged,
// which is what keeps subscription-driven renderers from looping.
type Deriver struct {
	last *types.GroupedIssueIDs
}

// Derive folds the page set, returning the previous value when the result is
// structurally unchanged.
func (d *Deriver) Derive(pages []*types.Page) *types.GroupedIssueIDs {
	next := Derive(pages)
	if d.last != nil && Equal(d.last, next) {
		return d.last
	}
	d.last = next
	return next
}

// Set replaces the memoized value directly. The mutation engine calls this
// after an optimistic relocation so subscribers observe the moved id without
// a refetch.
func (d *Deriver) Set(g *types.GroupedIssueIDs) {
	d.last = g
}

// Current returns the memoized value, or the canonical empty index when
// nothing has been derived yet.
func (d *Deriver) Current() *types.GroupedIssueIDs {
	if d.last == nil {
		return emptyIndex
	}
	return d.last
}
