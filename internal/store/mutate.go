package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/trellishq/trellis/internal/grouper"
	"github.com/trellishq/trellis/internal/rfilter"
	"github.com/trellishq/trellis/internal/types"
)

// Payload field keys accepted by Create and Update.
const (
	FieldName        = "name"
	FieldDescription = "description"
	FieldState       = "state"
	FieldPriority    = "priority"
	FieldAssigneeIDs = "assignee_ids"
	FieldLabelIDs    = "label_ids"
	FieldSortOrder   = "sort_order"
	FieldParentID    = "parent_id"
	FieldSprintID    = "sprint_id"
	FieldEpicIDs     = "epic_ids"
)

// relationFields are not scalar columns on the issue record server-side;
// they are memberships maintained through dedicated endpoints. The update
// path strips them from the scalar payload and issues the membership calls
// separately.
var relationFields = map[string]bool{
	FieldSprintID: true,
	FieldEpicIDs:  true,
}

// splitPayload separates the scalar column updates from the relation
// memberships.
func splitPayload(payload map[string]any) (scalars, relations map[string]any) {
	scalars = make(map[string]any, len(payload))
	relations = make(map[string]any, 2)
	for k, v := range payload {
		if relationFields[k] {
			relations[k] = v
		} else {
			scalars[k] = v
		}
	}
	return scalars, relations
}

// applyPayload writes every recognized payload field onto the issue.
// Unrecognized keys are ignored; the server is the authority on them.
func applyPayload(issue *types.Issue, payload map[string]any) {
	for k, v := range payload {
		switch k {
		case FieldName:
			issue.Name = asString(v)
		case FieldDescription:
			issue.Description = asString(v)
		case FieldState:
			issue.State = asString(v)
		case FieldPriority:
			issue.Priority = asString(v)
		case FieldAssigneeIDs:
			issue.AssigneeIDs = asStringSlice(v)
		case FieldLabelIDs:
			issue.LabelIDs = asStringSlice(v)
		case FieldSortOrder:
			issue.SortOrder = asFloat(v)
		case FieldParentID:
			issue.ParentID = asStringPtr(v)
		case FieldSprintID:
			issue.SprintID = asStringPtr(v)
		case FieldEpicIDs:
			issue.EpicIDs = asStringSlice(v)
		}
	}
}

// copyFields restores the named payload fields on dst from src, leaving
// every other field as dst has it. This is the rollback primitive for one
// facet of a composite mutation: reverting a failed scalar update must not
// undo a sprint move that already succeeded.
func copyFields(dst, src *types.Issue, fields []string) {
	for _, f := range fields {
		switch f {
		case FieldName:
			dst.Name = src.Name
		case FieldDescription:
			dst.Description = src.Description
		case FieldState:
			dst.State = src.State
		case FieldPriority:
			dst.Priority = src.Priority
		case FieldAssigneeIDs:
			dst.AssigneeIDs = append([]string(nil), src.AssigneeIDs...)
		case FieldLabelIDs:
			dst.LabelIDs = append([]string(nil), src.LabelIDs...)
		case FieldSortOrder:
			dst.SortOrder = src.SortOrder
		case FieldParentID:
			dst.ParentID = clonePtr(src.ParentID)
		case FieldSprintID:
			dst.SprintID = clonePtr(src.SprintID)
		case FieldEpicIDs:
			dst.EpicIDs = append([]string(nil), src.EpicIDs...)
		case "archived_at":
			if src.ArchivedAt == nil {
				dst.ArchivedAt = nil
			} else {
				v := *src.ArchivedAt
				dst.ArchivedAt = &v
			}
		case "updated_at":
			dst.UpdatedAt = src.UpdatedAt
		}
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asStringPtr(v any) *string {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		if t == "" {
			return nil
		}
		s := t
		return &s
	case *string:
		return clonePtr(t)
	}
	return nil
}

func asStringSlice(v any) []string {
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...)
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func asFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	}
	return 0
}

func clonePtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func containsString(ids []string, id string) bool {
	for _, existing := range ids {
		if existing == id {
			return true
		}
	}
	return false
}

// diffStrings returns the elements of a not present in b.
func diffStrings(a, b []string) []string {
	var out []string
	for _, v := range a {
		if !containsString(b, v) {
			out = append(out, v)
		}
	}
	return out
}

// CreateIssue inserts an issue optimistically under a temporary id, calls
// the remote create, and reconciles the temporary id with the
// server-assigned one. Sprint and epic memberships in the payload are
// applied through their dedicated endpoints after the create succeeds; each
// membership failure rolls back only its own facet. The returned issue is
// the canonical record (server-assigned id) when the create succeeded.
func (s *Store) CreateIssue(ctx context.Context, scope types.Scope, payload map[string]any) (*types.Issue, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.inRollback {
		s.mu.Unlock()
		return nil, ErrReentrantMutation
	}
	now := s.now()
	s.tempSeq++
	tmp := &types.Issue{
		ID:          fmt.Sprintf("tmp-issue-%d", s.tempSeq),
		WorkspaceID: scope.WorkspaceID,
		ProjectID:   scope.ProjectID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	applyPayload(tmp, payload)
	if tmp.ProjectID == "" {
		tmp.ProjectID = scope.ProjectID
	}
	s.issues[tmp.ID] = tmp
	s.relocateLocked(nil, tmp)
	s.mu.Unlock()
	s.notify()
	s.inst.RecordMutation(ctx, "create")

	scalars, relations := splitPayload(payload)
	created, err := s.svc.Create(ctx, scope.ProjectID, scalars)
	if err != nil || created == nil || created.ID == "" {
		s.mu.Lock()
		s.inRollback = true
		delete(s.issues, tmp.ID)
		for _, col := range s.collections {
			s.replaceIndexLocked(col, grouper.RemoveEverywhere(col.currentIndex(), tmp.ID))
		}
		s.mu.Unlock()
		s.notify()
		s.clearRollbackFlag()
		s.inst.RecordRollback(ctx, "create")
		if err == nil {
			err = errors.New("create returned no issue")
		}
		return nil, err
	}

	// The server response is authoritative for the scalar columns, but the
	// membership fields keep their optimistic values until their own calls
	// settle below.
	s.mu.Lock()
	merged := created.Clone()
	merged.SprintID = clonePtr(tmp.SprintID)
	merged.EpicIDs = append([]string(nil), tmp.EpicIDs...)
	delete(s.issues, tmp.ID)
	s.issues[merged.ID] = merged
	for _, col := range s.collections {
		s.replaceIndexLocked(col, grouper.ReplaceID(col.currentIndex(), tmp.ID, merged.ID))
	}
	s.mu.Unlock()
	s.notify()

	var errs []error
	authoritative := created.Clone()
	if raw, ok := relations[FieldSprintID]; ok {
		if sprint := asStringPtr(raw); sprint != nil {
			if err := s.svc.AddToSprint(ctx, *sprint, []string{merged.ID}); err != nil {
				s.rollbackFields(ctx, "create", merged.ID, authoritative, []string{FieldSprintID})
				errs = append(errs, fmt.Errorf("add to sprint %s: %w", *sprint, err))
			}
		}
	}
	if raw, ok := relations[FieldEpicIDs]; ok {
		if epics := asStringSlice(raw); len(epics) > 0 {
			if err := s.svc.ChangeEpics(ctx, merged.ID, epics, nil); err != nil {
				s.rollbackFields(ctx, "create", merged.ID, authoritative, []string{FieldEpicIDs})
				errs = append(errs, fmt.Errorf("change epics: %w", err))
			}
		}
	}
	return s.Issue(merged.ID), errors.Join(errs...)
}

// UpdateIssue applies a (possibly composite) field update. The whole payload
// lands optimistically in one synchronous write; the remote work is then
// decomposed into at most three independent calls: the scalar column update,
// the sprint membership change, and the epic membership change. Each call
// that fails rolls back only the fields it owns, so a succeeded sibling is
// never undone. The returned error joins every sub-operation failure.
func (s *Store) UpdateIssue(ctx context.Context, scope types.Scope, issueID string, payload map[string]any) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	if issueID == "" {
		return ErrIssueNotFound
	}

	s.mu.Lock()
	if s.inRollback {
		s.mu.Unlock()
		return ErrReentrantMutation
	}
	cur, ok := s.issues[issueID]
	if !ok {
		s.mu.Unlock()
		return ErrIssueNotFound
	}
	before := cur.Clone()
	after := cur.Clone()
	applyPayload(after, payload)
	after.UpdatedAt = s.now()
	s.issues[issueID] = after
	s.relocateLocked(before, after)
	s.mu.Unlock()
	s.notify()
	s.inst.RecordMutation(ctx, "update")

	scalars, relations := splitPayload(payload)
	var errs []error

	if len(scalars) > 0 {
		if _, err := s.svc.Update(ctx, before.ProjectID, issueID, scalars); err != nil {
			fields := make([]string, 0, len(scalars)+1)
			for k := range scalars {
				fields = append(fields, k)
			}
			fields = append(fields, "updated_at")
			s.rollbackFields(ctx, "update", issueID, before, fields)
			errs = append(errs, fmt.Errorf("update issue %s: %w", issueID, err))
		}
	}

	if raw, ok := relations[FieldSprintID]; ok {
		errs = append(errs, s.settleSprintChange(ctx, issueID, before, asStringPtr(raw))...)
	}

	if raw, ok := relations[FieldEpicIDs]; ok {
		target := asStringSlice(raw)
		add := diffStrings(target, before.EpicIDs)
		remove := diffStrings(before.EpicIDs, target)
		if len(add) > 0 || len(remove) > 0 {
			if err := s.svc.ChangeEpics(ctx, issueID, add, remove); err != nil {
				s.rollbackFields(ctx, "update", issueID, before, []string{FieldEpicIDs})
				errs = append(errs, fmt.Errorf("change epics for %s: %w", issueID, err))
			}
		}
	}

	return errors.Join(errs...)
}

// settleSprintChange performs the remote half of a sprint move: removal from
// the old sprint, then addition to the new one, as two distinct calls. A
// removal failure skips the addition, since adding while the removal is
// still in effect would leave the issue in two sprints server-side. Either
// failure rolls the local sprint membership back.
func (s *Store) settleSprintChange(ctx context.Context, issueID string, before *types.Issue, target *string) []error {
	old := before.SprintID
	if old == nil && target == nil {
		return nil
	}
	if old != nil && target != nil && *old == *target {
		return nil
	}
	var errs []error
	if old != nil {
		if err := s.svc.RemoveFromSprint(ctx, *old, issueID); err != nil {
			s.rollbackFields(ctx, "update", issueID, before, []string{FieldSprintID})
			return append(errs, fmt.Errorf("remove from sprint %s: %w", *old, err))
		}
	}
	if target != nil {
		if err := s.svc.AddToSprint(ctx, *target, []string{issueID}); err != nil {
			s.rollbackFields(ctx, "update", issueID, before, []string{FieldSprintID})
			errs = append(errs, fmt.Errorf("add to sprint %s: %w", *target, err))
		}
	}
	return errs
}

// MoveToSprint moves the issue to the given sprint (nil removes it from any
// sprint). It is the explicit form of an update carrying only sprint_id.
func (s *Store) MoveToSprint(ctx context.Context, scope types.Scope, issueID string, sprintID *string) error {
	return s.UpdateIssue(ctx, scope, issueID, map[string]any{FieldSprintID: sprintID})
}

// DeleteIssue removes the issue optimistically from the canonical map and
// every collection, then confirms with the server. A remote failure restores
// both the record and every index snapshot exactly.
func (s *Store) DeleteIssue(ctx context.Context, scope types.Scope, issueID string) error {
	if err := scope.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.inRollback {
		s.mu.Unlock()
		return ErrReentrantMutation
	}
	cur, ok := s.issues[issueID]
	if !ok {
		s.mu.Unlock()
		return ErrIssueNotFound
	}
	snap := s.snapshotLocked(cur)
	delete(s.issues, issueID)
	for _, col := range s.collections {
		s.replaceIndexLocked(col, grouper.RemoveEverywhere(col.currentIndex(), issueID))
	}
	s.mu.Unlock()
	s.notify()
	s.inst.RecordMutation(ctx, "delete")

	if err := s.svc.Delete(ctx, cur.ProjectID, issueID); err != nil {
		s.restoreSnapshot(ctx, "delete", issueID, snap)
		return fmt.Errorf("delete issue %s: %w", issueID, err)
	}
	return nil
}

// ArchiveIssue stamps the issue archived, which relocates it out of live
// collections and into any archive collection, then confirms remotely.
func (s *Store) ArchiveIssue(ctx context.Context, scope types.Scope, issueID string) error {
	return s.setArchived(ctx, scope, issueID, true)
}

// RestoreIssue clears the archived stamp and confirms remotely.
func (s *Store) RestoreIssue(ctx context.Context, scope types.Scope, issueID string) error {
	return s.setArchived(ctx, scope, issueID, false)
}

func (s *Store) setArchived(ctx context.Context, scope types.Scope, issueID string, archived bool) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	op := "archive"
	if !archived {
		op = "restore"
	}

	s.mu.Lock()
	if s.inRollback {
		s.mu.Unlock()
		return ErrReentrantMutation
	}
	cur, ok := s.issues[issueID]
	if !ok {
		s.mu.Unlock()
		return ErrIssueNotFound
	}
	if cur.IsArchived() == archived {
		s.mu.Unlock()
		return nil
	}
	before := cur.Clone()
	after := cur.Clone()
	if archived {
		now := s.now()
		after.ArchivedAt = &now
	} else {
		after.ArchivedAt = nil
	}
	after.UpdatedAt = s.now()
	s.issues[issueID] = after
	s.relocateLocked(before, after)
	s.mu.Unlock()
	s.notify()
	s.inst.RecordMutation(ctx, op)

	var err error
	if archived {
		err = s.svc.Archive(ctx, cur.ProjectID, issueID)
	} else {
		err = s.svc.Restore(ctx, cur.ProjectID, issueID)
	}
	if err != nil {
		s.rollbackFields(ctx, op, issueID, before, []string{"archived_at", "updated_at"})
		return fmt.Errorf("%s issue %s: %w", op, issueID, err)
	}
	return nil
}

// snapshot captures the state a failed delete must restore: the issue record
// and each collection's index pointer. Indexes are copy-on-write, so holding
// the old pointers is enough; the generation guards against restoring into a
// collection whose fetch key changed while the delete was in flight.
type snapshot struct {
	issue   *types.Issue
	indexes map[string]indexSnapshot
}

type indexSnapshot struct {
	idx *types.GroupedIssueIDs
	gen int
}

func (s *Store) snapshotLocked(issue *types.Issue) snapshot {
	snap := snapshot{
		issue:   issue.Clone(),
		indexes: make(map[string]indexSnapshot, len(s.collections)),
	}
	for key, col := range s.collections {
		snap.indexes[key] = indexSnapshot{idx: col.currentIndex(), gen: col.generation}
	}
	return snap
}

func (s *Store) restoreSnapshot(ctx context.Context, op, issueID string, snap snapshot) {
	s.mu.Lock()
	s.inRollback = true
	s.issues[issueID] = snap.issue
	for key, saved := range snap.indexes {
		col, ok := s.collections[key]
		if !ok || col.generation != saved.gen {
			continue
		}
		s.replaceIndexLocked(col, saved.idx)
	}
	s.mu.Unlock()
	s.notify()
	s.clearRollbackFlag()
	s.inst.RecordRollback(ctx, op)
}

// rollbackFields reverts only the named fields to their pre-mutation values
// and recomputes placement from the resulting record. Placement is derived
// from current collection state rather than restored from a snapshot, so
// sibling facets that already settled keep their effect.
func (s *Store) rollbackFields(ctx context.Context, op, issueID string, before *types.Issue, fields []string) {
	s.mu.Lock()
	s.inRollback = true
	if cur, ok := s.issues[issueID]; ok {
		restored := cur.Clone()
		copyFields(restored, before, fields)
		s.issues[issueID] = restored
		s.relocateLocked(cur, restored)
	}
	s.mu.Unlock()
	s.notify()
	s.clearRollbackFlag()
	s.inst.RecordRollback(ctx, op)
}

func (s *Store) clearRollbackFlag() {
	s.mu.Lock()
	s.inRollback = false
	s.mu.Unlock()
}

// relocateLocked recomputes the placement of one issue across every
// collection after its record changed from before to after. A nil before is
// a pure insertion (create); relocation removes the id from buckets it left
// and inserts it into buckets it entered, leaving untouched buckets alone so
// unrelated positions never churn. The index pointer is only swapped when
// content actually changed.
func (s *Store) relocateLocked(before, after *types.Issue) {
	ev := rfilter.NewEvaluator(s.now())
	for _, col := range s.collections {
		s.relocateInCollectionLocked(col, ev, before, after)
	}
}

func (s *Store) relocateInCollectionLocked(col *collection, ev *rfilter.Evaluator, before, after *types.Issue) {
	wasIn := before != nil && s.issueInCollection(col, ev, before)
	isIn := after != nil && s.issueInCollection(col, ev, after)
	if !wasIn && !isIn {
		return
	}

	var id string
	if after != nil {
		id = after.ID
	} else {
		id = before.ID
	}
	idx := col.currentIndex()

	if wasIn && !isIn {
		s.replaceIndexLocked(col, grouper.RemoveEverywhere(idx, id))
		return
	}

	display := col.filter.Display
	var oldLocs, newLocs []grouper.Location
	if wasIn {
		oldLocs = locationsFor(display, before)
	}
	newLocs = locationsFor(display, after)

	manual := display.OrderBy == "" || display.OrderBy == types.OrderByManual
	repositioned := manual && wasIn && before.SortOrder != after.SortOrder

	next := idx
	for _, loc := range oldLocs {
		if !repositioned && containsLocation(newLocs, loc) {
			continue
		}
		next = grouper.Remove(next, id, loc)
	}
	for _, loc := range newLocs {
		if !repositioned && containsLocation(oldLocs, loc) {
			continue
		}
		loc.Index = s.insertIndexLocked(next, loc, after, manual)
		next = grouper.Insert(next, id, loc)
	}
	s.replaceIndexLocked(col, next)
}

// replaceIndexLocked installs a relocated index, keeping the previous
// pointer when nothing actually changed so snapshot identity stays stable.
func (s *Store) replaceIndexLocked(col *collection, next *types.GroupedIssueIDs) {
	cur := col.currentIndex()
	if next == cur || grouper.Equal(next, cur) {
		return
	}
	col.setIndex(next)
}

// issueInCollection decides view membership: the issue must belong to the
// scope and satisfy the scope's rich filter.
func (s *Store) issueInCollection(col *collection, ev *rfilter.Evaluator, issue *types.Issue) bool {
	if !belongsToScope(col.scope, issue) {
		return false
	}
	if col.filter.Rich == nil {
		return true
	}
	return ev.Matches(col.filter.Rich, issue)
}

func belongsToScope(scope types.Scope, issue *types.Issue) bool {
	switch scope.Kind {
	case types.ScopeProject:
		return issue.ProjectID == scope.ProjectID && !issue.IsArchived()
	case types.ScopeSprint:
		if issue.IsArchived() || issue.SprintID == nil {
			return false
		}
		return *issue.SprintID == scope.SprintID
	case types.ScopeEpic:
		return !issue.IsArchived() && containsString(issue.EpicIDs, scope.EpicID)
	case types.ScopeArchived:
		return issue.ProjectID == scope.ProjectID && issue.IsArchived()
	case types.ScopeWorkspaceView:
		return issue.WorkspaceID == scope.WorkspaceID && !issue.IsArchived()
	}
	return false
}

// groupValues returns the bucket key(s) an issue occupies along one
// dimension. Multi-value dimensions place the issue in several buckets;
// an absent value buckets under NoneKey. An empty dimension means the
// flat all-issues bucket.
func groupValues(issue *types.Issue, dim string) []string {
	switch dim {
	case "":
		return []string{types.AllIssuesKey}
	case types.DimensionState:
		return scalarBucket(issue.State)
	case types.DimensionPriority:
		return scalarBucket(issue.Priority)
	case types.DimensionAssignee:
		return multiBucket(issue.AssigneeIDs)
	case types.DimensionLabel:
		return multiBucket(issue.LabelIDs)
	case types.DimensionSprint:
		if issue.SprintID == nil {
			return []string{types.NoneKey}
		}
		return []string{*issue.SprintID}
	case types.DimensionEpic:
		return multiBucket(issue.EpicIDs)
	case types.DimensionCreated:
		return scalarBucket(issue.CreatedByID)
	}
	return []string{types.NoneKey}
}

func scalarBucket(v string) []string {
	if v == "" {
		return []string{types.NoneKey}
	}
	return []string{v}
}

func multiBucket(vs []string) []string {
	if len(vs) == 0 {
		return []string{types.NoneKey}
	}
	return append([]string(nil), vs...)
}

func locationsFor(display types.DisplayFilters, issue *types.Issue) []grouper.Location {
	groups := groupValues(issue, display.GroupBy)
	if display.GroupBy != "" && display.SubGroupBy != "" {
		subs := groupValues(issue, display.SubGroupBy)
		out := make([]grouper.Location, 0, len(groups)*len(subs))
		for _, g := range groups {
			for _, sub := range subs {
				out = append(out, grouper.Location{Group: g, Subgroup: sub, Index: -1})
			}
		}
		return out
	}
	out := make([]grouper.Location, 0, len(groups))
	for _, g := range groups {
		out = append(out, grouper.Location{Group: g, Index: -1})
	}
	return out
}

func containsLocation(locs []grouper.Location, loc grouper.Location) bool {
	for _, l := range locs {
		if l.Group == loc.Group && l.Subgroup == loc.Subgroup {
			return true
		}
	}
	return false
}

// insertIndexLocked picks the insertion position for an issue entering a
// bucket. Under manual ordering the position follows ascending sort order;
// any other ordering appends and leaves position to the next fetch.
func (s *Store) insertIndexLocked(idx *types.GroupedIssueIDs, loc grouper.Location, issue *types.Issue, manual bool) int {
	if !manual {
		return -1
	}
	ids := idx.IDsFor(loc.Group, loc.Subgroup)
	for i, id := range ids {
		other, ok := s.issues[id]
		if !ok {
			continue
		}
		if other.SortOrder > issue.SortOrder {
			return i
		}
	}
	return -1
}
