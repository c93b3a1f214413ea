package store

import (
	"context"
	"fmt"

	"github.com/trellishq/trellis/internal/types"
)

// DropLocation is where a dragged card started or landed: a bucket in the
// scope's grouped index plus a position within it.
type DropLocation struct {
	Group    string
	Subgroup string
	Index    int
}

// sortStep is the spacing left between sort positions so later drops can
// land between neighbors without renumbering the whole bucket.
const sortStep = 65535

// HandleDrop translates a drag-and-drop gesture into field updates and runs
// them through the optimistic update path. Dropping a card exactly where it
// was picked up is a no-op. Under manual ordering the dragged issue gets a
// sort position midway between its destination neighbors; crossing a group
// or subgroup boundary additionally rewrites the dimension value, which for
// the sprint dimension becomes a remove-then-add membership pair and for the
// epic dimension a membership diff.
func (s *Store) HandleDrop(ctx context.Context, scope types.Scope, issueID string, src, dst DropLocation) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	if src == dst {
		return nil
	}

	s.mu.Lock()
	col, ok := s.collections[scope.Key()]
	if !ok {
		s.mu.Unlock()
		return ErrScopeNotInitialized
	}
	cur, ok := s.issues[issueID]
	if !ok {
		s.mu.Unlock()
		return ErrIssueNotFound
	}
	display := col.filter.Display

	payload := map[string]any{}
	if display.OrderBy == "" || display.OrderBy == types.OrderByManual {
		payload[FieldSortOrder] = s.dropSortOrderLocked(col, dst, issueID)
	}
	if src.Group != dst.Group {
		if err := dimensionDelta(display.GroupBy, cur, src.Group, dst.Group, payload); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	if display.SubGroupBy != "" && src.Subgroup != dst.Subgroup {
		if err := dimensionDelta(display.SubGroupBy, cur, src.Subgroup, dst.Subgroup, payload); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.mu.Unlock()

	if len(payload) == 0 {
		return nil
	}
	return s.UpdateIssue(ctx, scope, issueID, payload)
}

// dimensionDelta writes the payload field change that moves an issue from
// one bucket to another along the given dimension. Scalar dimensions are a
// plain field write; multi-value dimensions replace the source value with
// the destination in the membership list.
func dimensionDelta(dim string, issue *types.Issue, from, to string, payload map[string]any) error {
	switch dim {
	case types.DimensionState:
		payload[FieldState] = bucketValue(to)
	case types.DimensionPriority:
		payload[FieldPriority] = bucketValue(to)
	case types.DimensionSprint:
		if to == types.NoneKey {
			payload[FieldSprintID] = nil
		} else {
			payload[FieldSprintID] = to
		}
	case types.DimensionEpic:
		payload[FieldEpicIDs] = replaceMembership(issue.EpicIDs, from, to)
	case types.DimensionAssignee:
		payload[FieldAssigneeIDs] = replaceMembership(issue.AssigneeIDs, from, to)
	case types.DimensionLabel:
		payload[FieldLabelIDs] = replaceMembership(issue.LabelIDs, from, to)
	default:
		return fmt.Errorf("cannot move issues across the %q dimension", dim)
	}
	return nil
}

func bucketValue(key string) string {
	if key == types.NoneKey {
		return ""
	}
	return key
}

// replaceMembership swaps from for to in a multi-value membership list.
// NoneKey as the source means the issue had no membership (nothing to
// remove); as the destination it means drop all remaining membership of the
// source only.
func replaceMembership(current []string, from, to string) []string {
	out := make([]string, 0, len(current)+1)
	for _, v := range current {
		if from != types.NoneKey && v == from {
			continue
		}
		out = append(out, v)
	}
	if to != types.NoneKey && !containsString(out, to) {
		out = append(out, to)
	}
	return out
}

// dropSortOrderLocked computes the sort position for a card landing at
// dst.Index, midway between the destination neighbors. The dragged issue is
// excluded from the neighbor list so indexes refer to the bucket as the user
// sees it after the card lifts.
func (s *Store) dropSortOrderLocked(col *collection, dst DropLocation, issueID string) float64 {
	raw := col.currentIndex().IDsFor(dst.Group, dst.Subgroup)
	orders := make([]float64, 0, len(raw))
	for _, id := range raw {
		if id == issueID {
			continue
		}
		if other, ok := s.issues[id]; ok {
			orders = append(orders, other.SortOrder)
		}
	}
	if len(orders) == 0 {
		return sortStep
	}
	idx := dst.Index
	if idx < 0 {
		idx = 0
	}
	if idx > len(orders) {
		idx = len(orders)
	}
	switch {
	case idx == 0:
		return orders[0] - sortStep
	case idx == len(orders):
		return orders[len(orders)-1] + sortStep
	default:
		return (orders[idx-1] + orders[idx]) / 2
	}
}
