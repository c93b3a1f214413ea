// Package trellis provides the public API for the issue collection data
// layer: an observable store of grouped, filtered, paginated issue
// collections with optimistic mutation and rollback.
//
// Most consumers need only New, the Store it returns, and the types
// re-exported here. The internal packages carry the mechanics (filter
// compilation, grouped-id derivation, loader tracking, the REST client) and
// are not part of the public surface.
package trellis

import (
	"github.com/trellishq/trellis/internal/filters"
	"github.com/trellishq/trellis/internal/prefs"
	"github.com/trellishq/trellis/internal/remote"
	"github.com/trellishq/trellis/internal/rfilter"
	"github.com/trellishq/trellis/internal/store"
	"github.com/trellishq/trellis/internal/types"
)

// Core types for working with issue collections.
type (
	Issue           = types.Issue
	GroupedIssueIDs = types.GroupedIssueIDs
	LoaderState     = types.LoaderState
	PaginationInfo  = types.PaginationInfo
	Scope           = types.Scope
	ScopeKind       = types.ScopeKind
	DisplayFilters  = types.DisplayFilters
	Layout          = types.Layout
	Filter          = filters.Filter
	Store           = store.Store
	DropLocation    = store.DropLocation
	Client          = remote.Client
)

// Scope kinds.
const (
	ScopeProject       = types.ScopeProject
	ScopeSprint        = types.ScopeSprint
	ScopeEpic          = types.ScopeEpic
	ScopeArchived      = types.ScopeArchived
	ScopeWorkspaceView = types.ScopeWorkspaceView
)

// Layouts.
const (
	LayoutList        = types.LayoutList
	LayoutBoard       = types.LayoutBoard
	LayoutCalendar    = types.LayoutCalendar
	LayoutSpreadsheet = types.LayoutSpreadsheet
	LayoutGantt       = types.LayoutGantt
)

// Loader phases.
const (
	LoaderInit       = types.LoaderInit
	LoaderPagination = types.LoaderPagination
	LoaderMutation   = types.LoaderMutation
	LoaderLoaded     = types.LoaderLoaded
	LoaderUndefined  = types.LoaderUndefined
)

// Group keys with reserved meaning.
const (
	AllIssuesKey = types.AllIssuesKey
	NoneKey      = types.NoneKey
)

// Mutation errors.
var (
	ErrIssueNotFound     = store.ErrIssueNotFound
	ErrReentrantMutation = store.ErrReentrantMutation
)

// Options configure a Store built by New.
type Options struct {
	// BaseURL and Token configure the REST client.
	BaseURL string
	Token   string
	// WorkspaceID binds the client to a workspace.
	WorkspaceID string
	// PrefsDir, when set, persists filter selections under this directory.
	PrefsDir string
	// DependencyTracking enables the relation expansion for gantt views.
	DependencyTracking bool
}

// New builds a Store wired to the REST client and, optionally, on-disk
// filter persistence.
func New(opts Options) *Store {
	client := remote.NewClient(opts.BaseURL, opts.Token).WithWorkspace(opts.WorkspaceID)
	storeOpts := store.Options{
		Flags: filters.Flags{DependencyTracking: opts.DependencyTracking},
	}
	if opts.PrefsDir != "" {
		storeOpts.Prefs = prefs.New(opts.PrefsDir)
	}
	return store.New(client, client, storeOpts)
}

// ParseRichFilter parses a rich filter expression, e.g.
// `state != done AND (priority = urgent OR updated > 7d)`, for use in a
// Filter's Rich field.
func ParseRichFilter(input string) (rfilter.Node, error) {
	return rfilter.Parse(input)
}
