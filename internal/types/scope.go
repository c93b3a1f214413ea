package types

import (
	"errors"
	"strings"
)

// ScopeKind identifies which collection family a scope belongs to.
type ScopeKind string

// Scope kinds. Every independent collection (a project view, a sprint board,
// an epic board, the archive, a saved cross-project view) gets its own scope.
const (
	ScopeProject       ScopeKind = "project"
	ScopeSprint        ScopeKind = "sprint"
	ScopeEpic          ScopeKind = "epic"
	ScopeArchived      ScopeKind = "archived"
	ScopeWorkspaceView ScopeKind = "workspace-view"
)

// Precondition errors. These are sentinels so callers can distinguish
// "nothing happened because the scope is incomplete" from remote failures.
var (
	ErrMissingWorkspace = errors.New("workspace id not set")
	ErrMissingProject   = errors.New("project id not set")
	ErrMissingScope     = errors.New("scope identifier not set")
)

// Scope is the identifying context under which a filter, pagination, and
// grouped-id state instance exists. Scope identifiers are always explicit
// parameters; the core never reads ambient context.
type Scope struct {
	Kind        ScopeKind `json:"kind"`
	WorkspaceID string    `json:"workspace_id"`
	ProjectID   string    `json:"project_id,omitempty"`
	SprintID    string    `json:"sprint_id,omitempty"`
	EpicID      string    `json:"epic_id,omitempty"`
	ViewID      string    `json:"view_id,omitempty"`
}

// Key returns the stable identity string used to key filters, pages, loader
// state, and pagination info for this scope.
func (s Scope) Key() string {
	parts := []string{string(s.Kind), s.WorkspaceID, s.ProjectID, s.SprintID, s.EpicID, s.ViewID}
	return strings.Join(parts, "/")
}

// Validate checks that the identifiers the scope kind requires are present.
func (s Scope) Validate() error {
	if s.WorkspaceID == "" {
		return ErrMissingWorkspace
	}
	switch s.Kind {
	case ScopeProject, ScopeArchived:
		if s.ProjectID == "" {
			return ErrMissingProject
		}
	case ScopeSprint:
		if s.ProjectID == "" {
			return ErrMissingProject
		}
		if s.SprintID == "" {
			return ErrMissingScope
		}
	case ScopeEpic:
		if s.ProjectID == "" {
			return ErrMissingProject
		}
		if s.EpicID == "" {
			return ErrMissingScope
		}
	case ScopeWorkspaceView:
		if s.ViewID == "" {
			return ErrMissingScope
		}
	default:
		return ErrMissingScope
	}
	return nil
}
