// Package loader tracks per-(scope, group, subgroup) loading phases and
// server-reported counts. The phase machine distinguishes "haven't fetched
// yet" (init-loader) from "fetched and genuinely empty" (undefined), which is
// what keeps an empty board from flashing its skeleton loader forever.
package loader

import (
	"strings"
	"sync"

	"github.com/trellishq/trellis/internal/types"
)

// Tracker holds loader states and counts for every scope. Safe for
// concurrent use.
type Tracker struct {
	mu     sync.RWMutex
	states map[string]types.LoaderState
	counts map[string]map[string]types.GroupCount // scope key -> group -> count
}

// New creates an empty Tracker.
func New() *Tracker {
	return &Tracker{
		states: make(map[string]types.LoaderState),
		counts: make(map[string]map[string]types.GroupCount),
	}
}

func cellKey(scope, group, subgroup string) string {
	return strings.Join([]string{scope, group, subgroup}, "\x00")
}

// State returns the loader state of a cell. Cells never written are in
// init-loader: nothing has been fetched for them yet.
func (t *Tracker) State(scope, group, subgroup string) types.LoaderState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if s, ok := t.states[cellKey(scope, group, subgroup)]; ok {
		return s
	}
	return types.LoaderInit
}

// Set transitions a cell to the given state. The one guarded transition is
// undefined -> init-loader: once a cell is known empty it must never revert
// to "not fetched yet", so that attempt is ignored.
func (t *Tracker) Set(scope, group, subgroup string, state types.LoaderState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := cellKey(scope, group, subgroup)
	if t.states[key] == types.LoaderUndefined && state == types.LoaderInit {
		return
	}
	t.states[key] = state
}

// MarkMerged records the outcome of a successful merge for a cell: loaded
// when the cell has content, undefined when the fetch came back genuinely
// empty.
func (t *Tracker) MarkMerged(scope, group, subgroup string, empty bool) {
	if empty {
		t.Set(scope, group, subgroup, types.LoaderUndefined)
		return
	}
	t.Set(scope, group, subgroup, types.LoaderLoaded)
}

// SetCounts replaces the count table for a scope. Counts are replaced, not
// merged, like pagination info.
func (t *Tracker) SetCounts(scope string, counts map[string]types.GroupCount) {
	t.mu.Lock()
	defer t.mu.Unlock()
	copied := make(map[string]types.GroupCount, len(counts))
	for k, v := range counts {
		copied[k] = v
	}
	t.counts[scope] = copied
}

// Count derives the issue count for a (group, subgroup) pair.
//
// With cumulative set, the count for the group is the sum of all its
// subgroup counts, regardless of any direct value. Without it, the direct
// count is read; when the stored value is itself a per-subgroup breakdown
// rather than a scalar, the sum over subgroups is the fallback.
func (t *Tracker) Count(scope, group, subgroup string, cumulative bool) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	counts := t.counts[scope]
	if counts == nil {
		return 0
	}
	c, ok := counts[group]
	if !ok {
		return 0
	}

	if subgroup != "" {
		if c.Subgroups == nil {
			return 0
		}
		return c.Subgroups[subgroup]
	}

	if cumulative || c.Subgroups != nil {
		if c.Subgroups != nil {
			sum := 0
			for _, n := range c.Subgroups {
				sum += n
			}
			return sum
		}
	}
	return c.Total
}

// Total derives the all-issues count for a scope: the AllIssuesKey entry
// when present, otherwise the sum over every leaf count.
func (t *Tracker) Total(scope string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	counts := t.counts[scope]
	if counts == nil {
		return 0
	}
	if c, ok := counts[types.AllIssuesKey]; ok {
		if c.Subgroups != nil {
			sum := 0
			for _, n := range c.Subgroups {
				sum += n
			}
			return sum
		}
		return c.Total
	}

	sum := 0
	for _, c := range counts {
		if c.Subgroups != nil {
			for _, n := range c.Subgroups {
				sum += n
			}
			continue
		}
		sum += c.Total
	}
	return sum
}

// DropScope discards every cell and count belonging to a scope. Called on
// scope teardown.
func (t *Tracker) DropScope(scope string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	prefix := scope + "\x00"
	for key := range t.states {
		if strings.HasPrefix(key, prefix) {
			delete(t.states, key)
		}
	}
	delete(t.counts, scope)
}
