package store

import (
	"context"

	"github.com/trellishq/trellis/internal/grouper"
	"github.com/trellishq/trellis/internal/types"
)

// Fetch loads the first page for a scope under its current filter, replacing
// whatever pages were merged before. Concurrent Fetch calls for the same
// (scope, parameter) key share a single remote request. A filter update or
// teardown that lands while the request is in flight supersedes it: the
// response still arrives but is discarded unmerged.
func (s *Store) Fetch(ctx context.Context, scope types.Scope) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	key := scope.Key()

	s.mu.Lock()
	col := s.initScopeLocked(scope)
	params := col.params.Clone()
	gen := col.generation
	flightKey := key + "?" + col.paramKey
	// First load shows the init loader; later refetches (after a mutation
	// or an explicit refresh) keep stale data visible behind the mutation
	// loader instead of blanking the view.
	kind := types.LoaderInit
	if len(col.pages) > 0 {
		kind = types.LoaderMutation
	}
	s.loaders.Set(key, "", "", kind)
	s.mu.Unlock()
	s.notify()

	s.inst.RecordFetch(ctx, string(scope.Kind))
	v, err, _ := s.flight.Do(flightKey, func() (any, error) {
		return s.fetch.FetchPage(ctx, scope, params, "")
	})
	if err != nil {
		s.settleFetchError(key, gen)
		return err
	}
	s.mergePage(scope, gen, v.(*types.Page), false)
	return nil
}

// FetchNext loads the next page for a scope. It is a no-op when the scope
// has no next cursor or a pagination request is already in flight: page
// requests for one scope are strictly serialized so cursors never interleave.
func (s *Store) FetchNext(ctx context.Context, scope types.Scope) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	key := scope.Key()

	s.mu.Lock()
	col, ok := s.collections[key]
	if !ok {
		s.mu.Unlock()
		return ErrScopeNotInitialized
	}
	if col.paginating || !col.pagination.HasNextPage {
		s.mu.Unlock()
		return nil
	}
	col.paginating = true
	params := col.params.Clone()
	gen := col.generation
	cursor := col.pagination.NextCursor
	s.loaders.Set(key, "", "", types.LoaderPagination)
	s.mu.Unlock()
	s.notify()

	s.inst.RecordFetch(ctx, string(scope.Kind))
	page, err := s.fetch.FetchPage(ctx, scope, params, cursor)

	s.mu.Lock()
	if col, ok := s.collections[key]; ok && col.generation == gen {
		col.paginating = false
	}
	s.mu.Unlock()

	if err != nil {
		s.settleFetchError(key, gen)
		return err
	}
	s.mergePage(scope, gen, page, true)
	return nil
}

// settleFetchError returns the scope loader cell to loaded after a failed
// fetch so the view is not stuck on a spinner. Already-merged data stays.
func (s *Store) settleFetchError(key string, gen int) {
	s.mu.Lock()
	if col, ok := s.collections[key]; ok && col.generation == gen {
		s.loaders.Set(key, "", "", types.LoaderLoaded)
	}
	s.mu.Unlock()
	s.notify()
}

// mergePage folds a fetched page into the collection: it updates the page
// set and pagination, upserts every carried issue into the canonical map,
// re-derives the grouped index, and settles loader and count state. A page
// whose generation no longer matches the collection is stale and dropped.
func (s *Store) mergePage(scope types.Scope, gen int, page *types.Page, appendPage bool) {
	key := scope.Key()
	s.mu.Lock()
	col, ok := s.collections[key]
	if !ok || col.generation != gen {
		s.mu.Unlock()
		return
	}
	if appendPage {
		col.pages = append(col.pages, page)
	} else {
		col.pages = []*types.Page{page}
	}
	col.pagination = page.Pagination()
	for _, issue := range page.Issues() {
		s.upsertIssueLocked(issue)
	}
	if page.Counts != nil {
		s.loaders.SetCounts(key, page.Counts)
	}
	idx := col.deriver.Derive(col.pages)
	s.loaders.MarkMerged(key, "", "", idx.IsEmpty())
	if idx.Subgroups != nil {
		for group, subs := range idx.Subgroups {
			for sub, ids := range subs {
				s.loaders.MarkMerged(key, group, sub, len(ids) == 0)
			}
		}
	} else {
		for group, ids := range idx.Groups {
			s.loaders.MarkMerged(key, group, "", len(ids) == 0)
		}
	}
	s.mu.Unlock()
	s.notify()
}

// upsertIssueLocked installs an authoritative record in the canonical map.
// Incoming server data wins over whatever optimistic state is present.
func (s *Store) upsertIssueLocked(issue *types.Issue) {
	if issue == nil || issue.ID == "" {
		return
	}
	s.issues[issue.ID] = issue.Clone()
}

// currentIndexLocked returns the live grouped index for a collection.
func (col *collection) currentIndex() *types.GroupedIssueIDs {
	return col.deriver.Current()
}

// setIndexLocked replaces a collection's grouped index with an optimistic
// relocation result.
func (col *collection) setIndex(idx *types.GroupedIssueIDs) {
	if idx == nil {
		idx = grouper.Empty()
	}
	col.deriver.Set(idx)
}
