// Package store implements the observable grouped-issue collection store:
// one canonical issue-by-id map shared by every collection, per-scope grouped
// id indexes derived from fetched pages, loader/count tracking, optimistic
// mutation with rollback, and drag-and-drop move resolution.
//
// All state access is serialized behind one mutex; optimistic writes happen
// synchronously under the lock before the remote call is issued, so two
// rapid edits to the same issue are ordered by call order, not completion
// order. Remote calls always run outside the lock.
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/trellishq/trellis/internal/filters"
	"github.com/trellishq/trellis/internal/grouper"
	"github.com/trellishq/trellis/internal/loader"
	"github.com/trellishq/trellis/internal/telemetry"
	"github.com/trellishq/trellis/internal/types"
)

// Mutation and lookup errors.
var (
	// ErrIssueNotFound indicates the issue id is not in the canonical map.
	ErrIssueNotFound = errors.New("issue not found")
	// ErrScopeNotInitialized indicates an operation on a scope that was
	// never initialized (or already torn down).
	ErrScopeNotInitialized = errors.New("scope not initialized")
	// ErrReentrantMutation indicates a mutation was attempted while a
	// rollback was restoring state. This is a logic error in the caller.
	ErrReentrantMutation = errors.New("re-entrant mutation during rollback")
)

// FetchClient is the remote fetch collaborator. Retry, backoff, and timeouts
// are its responsibility; the store only reacts to success or failure.
type FetchClient interface {
	FetchPage(ctx context.Context, scope types.Scope, params filters.Params, cursor string) (*types.Page, error)
}

// MutationService is the remote issue mutation collaborator.
type MutationService interface {
	Create(ctx context.Context, projectID string, payload map[string]any) (*types.Issue, error)
	Update(ctx context.Context, projectID, issueID string, payload map[string]any) (*types.Issue, error)
	Delete(ctx context.Context, projectID, issueID string) error
	Archive(ctx context.Context, projectID, issueID string) error
	Restore(ctx context.Context, projectID, issueID string) error
	AddToSprint(ctx context.Context, sprintID string, issueIDs []string) error
	RemoveFromSprint(ctx context.Context, sprintID, issueID string) error
	ChangeEpics(ctx context.Context, issueID string, add, remove []string) error
}

// FilterStore persists display-filter defaults per scope key. It is read at
// scope initialization and written on every filter update; it is not
// required for in-session correctness.
type FilterStore interface {
	LoadFilter(scopeKey string) (*filters.Filter, error)
	SaveFilter(scopeKey string, f *filters.Filter) error
}

// Options configure a Store.
type Options struct {
	// Prefs persists filter defaults across sessions. Optional.
	Prefs FilterStore
	// Flags are the feature toggles handed to the filter compiler.
	Flags filters.Flags
	// Now overrides the clock (used by the rich-filter evaluator and
	// timestamps on optimistic creates). Defaults to time.Now.
	Now func() time.Time
}

// collection is the per-scope state: the active filter, its compiled
// parameters, the merged page set, and the memoized grouped-id derivation.
type collection struct {
	scope      types.Scope
	filter     *filters.Filter
	params     filters.Params
	paramKey   string
	pages      []*types.Page
	deriver    grouper.Deriver
	pagination types.PaginationInfo
	paginating bool
	// generation increments whenever the fetch key changes (filter update,
	// teardown). An in-flight fetch carrying an older generation is
	// superseded: it completes, but its result is discarded unmerged.
	generation int
}

// Store is the observable collection store.
type Store struct {
	mu          sync.Mutex
	fetch       FetchClient
	svc         MutationService
	prefs       FilterStore
	flags       filters.Flags
	now         func() time.Time
	issues      map[string]*types.Issue
	collections map[string]*collection
	loaders     *loader.Tracker
	flight      singleflight.Group
	inst        *telemetry.Instruments

	subMu   sync.Mutex
	subs    map[int]func()
	nextSub int

	tempSeq    int
	inRollback bool
}

// New creates a Store around the given collaborators.
func New(fetch FetchClient, svc MutationService, opts Options) *Store {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		fetch:       fetch,
		svc:         svc,
		prefs:       opts.Prefs,
		flags:       opts.Flags,
		now:         now,
		issues:      make(map[string]*types.Issue),
		collections: make(map[string]*collection),
		loaders:     loader.New(),
		inst:        telemetry.StoreInstruments(),
		subs:        make(map[int]func()),
	}
}

// Subscribe registers a change callback and returns its unsubscribe
// function. Callbacks fire after any state change settles and are invoked
// without the store lock held.
func (s *Store) Subscribe(onChange func()) (unsubscribe func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = onChange
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) notify() {
	s.subMu.Lock()
	callbacks := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		callbacks = append(callbacks, fn)
	}
	s.subMu.Unlock()
	for _, fn := range callbacks {
		fn()
	}
}

// InitScope creates the collection for a scope, loading its filter defaults
// from the persistence collaborator when available. Initializing an existing
// scope is a no-op.
func (s *Store) InitScope(scope types.Scope) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initScopeLocked(scope)
	return nil
}

func (s *Store) initScopeLocked(scope types.Scope) *collection {
	key := scope.Key()
	if col, ok := s.collections[key]; ok {
		return col
	}
	col := &collection{scope: scope}
	if s.prefs != nil {
		if f, err := s.prefs.LoadFilter(key); err == nil && f != nil {
			col.filter = f
		}
	}
	if col.filter == nil {
		col.filter = &filters.Filter{Display: types.DisplayFilters{Layout: types.LayoutList}}
	}
	s.recompileLocked(col)
	s.collections[key] = col
	return col
}

// recompileLocked recompiles the collection's wire parameters and, when the
// fetch key changed, invalidates the merged page set and loader cells: pages
// fetched under the old key no longer belong to this collection.
func (s *Store) recompileLocked(col *collection) {
	params := filters.Compile(col.filter, s.flags)
	key := params.Encode()
	if key == col.paramKey {
		return
	}
	col.params = params
	col.paramKey = key
	col.pages = nil
	col.pagination = types.PaginationInfo{}
	col.paginating = false
	col.generation++
	s.loaders.DropScope(col.scope.Key())
	col.deriver.Set(grouper.Empty())
}

// TeardownScope discards a scope's filter, pages, pagination, and loader
// state. In-flight fetches for the scope discard their results on arrival.
func (s *Store) TeardownScope(scope types.Scope) {
	key := scope.Key()
	s.mu.Lock()
	if col, ok := s.collections[key]; ok {
		col.generation++
		delete(s.collections, key)
	}
	s.loaders.DropScope(key)
	s.mu.Unlock()
	s.notify()
}

// Filter returns the active filter for a scope, or nil when the scope has
// not been initialized. Nil is distinct from an empty filter.
func (s *Store) Filter(scope types.Scope) *filters.Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, ok := s.collections[scope.Key()]
	if !ok {
		return nil
	}
	return col.filter
}

// UpdateFilter replaces the scope's filter, recompiles the fetch parameters,
// and writes the new value through to the persistence collaborator. The
// caller is expected to follow with Fetch.
func (s *Store) UpdateFilter(scope types.Scope, f *filters.Filter) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	if f == nil {
		return errors.New("filter must not be nil")
	}
	key := scope.Key()
	s.mu.Lock()
	col, ok := s.collections[key]
	if !ok {
		s.mu.Unlock()
		return ErrScopeNotInitialized
	}
	col.filter = f
	s.recompileLocked(col)
	s.mu.Unlock()

	if s.prefs != nil {
		if err := s.prefs.SaveFilter(key, f); err != nil {
			return err
		}
	}
	s.notify()
	return nil
}

// GroupedIDs returns the derived grouped-id snapshot for a scope. The value
// is referentially stable: the identical object comes back until content
// actually changes.
func (s *Store) GroupedIDs(scope types.Scope) *types.GroupedIssueIDs {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, ok := s.collections[scope.Key()]
	if !ok {
		return grouper.Empty()
	}
	return col.deriver.Current()
}

// Issue returns the canonical record for an id, or nil. The returned value
// is shared with the store and must be treated as read-only; mutations go
// through the mutation operations.
func (s *Store) Issue(id string) *types.Issue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issues[id]
}

// IssuesByIDs resolves ids against the canonical map, skipping unknown ids.
func (s *Store) IssuesByIDs(ids []string) []*types.Issue {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.Issue, 0, len(ids))
	for _, id := range ids {
		if issue, ok := s.issues[id]; ok {
			out = append(out, issue)
		}
	}
	return out
}

// LoaderFor returns the loading phase of a (scope, group, subgroup) cell.
func (s *Store) LoaderFor(scope types.Scope, group, subgroup string) types.LoaderState {
	return s.loaders.State(scope.Key(), group, subgroup)
}

// CountFor derives the issue count for a (group, subgroup) pair; see
// loader.Tracker.Count for the cumulative semantics.
func (s *Store) CountFor(scope types.Scope, group, subgroup string, cumulative bool) int {
	return s.loaders.Count(scope.Key(), group, subgroup, cumulative)
}

// TotalCount derives the all-issues count for a scope.
func (s *Store) TotalCount(scope types.Scope) int {
	return s.loaders.Total(scope.Key())
}

// Pagination returns the cursor state for a scope.
func (s *Store) Pagination(scope types.Scope) types.PaginationInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, ok := s.collections[scope.Key()]
	if !ok {
		return types.PaginationInfo{}
	}
	return col.pagination
}
