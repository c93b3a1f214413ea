package grouper

import "github.com/trellishq/trellis/internal/types"

// Location addresses one bucket (and optionally a position) in the grouped
// index. Subgroup is empty for single-level and flat indexes. Index -1 means
// append.
type Location struct {
	Group    string
	Subgroup string
	Index    int
}

// The relocation helpers below are copy-on-write: they clone only the
// buckets they touch and share every other leaf slice with the input, which
// bounds both the cost of an optimistic write and the size of its rollback
// snapshot.

// Insert returns a new index with id inserted at the location. Inserting an
// id already present in the target bucket is a no-op returning the input.
func Insert(g *types.GroupedIssueIDs, id string, loc Location) *types.GroupedIssueIDs {
	if g == nil || id == "" {
		return g
	}
	out := shallowClone(g)
	ids := bucketOf(out, loc)
	for _, existing := range ids {
		if existing == id {
			return g
		}
	}
	setBucket(out, loc, insertAt(ids, id, loc.Index))
	return out
}

// Remove returns a new index with id removed from the location's bucket.
// Removing an absent id returns the input unchanged.
func Remove(g *types.GroupedIssueIDs, id string, loc Location) *types.GroupedIssueIDs {
	if g == nil || id == "" {
		return g
	}
	ids := bucketOf(g, loc)
	pos := -1
	for i, existing := range ids {
		if existing == id {
			pos = i
			break
		}
	}
	if pos < 0 {
		return g
	}
	out := shallowClone(g)
	next := make([]string, 0, len(ids)-1)
	next = append(next, ids[:pos]...)
	next = append(next, ids[pos+1:]...)
	setBucket(out, loc, next)
	return out
}

// RemoveEverywhere returns a new index with id removed from every bucket it
// appears in. Used for optimistic delete and archive.
func RemoveEverywhere(g *types.GroupedIssueIDs, id string) *types.GroupedIssueIDs {
	if g == nil || id == "" {
		return g
	}
	out := g
	if g.Subgroups != nil {
		for group, subs := range g.Subgroups {
			for sub := range subs {
				out = Remove(out, id, Location{Group: group, Subgroup: sub})
			}
		}
		return out
	}
	for group := range g.Groups {
		out = Remove(out, id, Location{Group: group})
	}
	return out
}

// ReplaceID returns a new index with every occurrence of oldID rewritten to
// newID in place. Positions are preserved. Used when a server-assigned id
// supersedes a temporary optimistic one.
func ReplaceID(g *types.GroupedIssueIDs, oldID, newID string) *types.GroupedIssueIDs {
	if g == nil || oldID == "" || newID == "" || oldID == newID {
		return g
	}
	out := g
	rewrite := func(loc Location) {
		ids := bucketOf(out, loc)
		for i, existing := range ids {
			if existing != oldID {
				continue
			}
			if out == g {
				out = shallowClone(g)
			}
			next := make([]string, len(ids))
			copy(next, ids)
			next[i] = newID
			setBucket(out, loc, next)
			return
		}
	}
	if g.Subgroups != nil {
		for group, subs := range g.Subgroups {
			for sub := range subs {
				rewrite(Location{Group: group, Subgroup: sub})
			}
		}
		return out
	}
	for group := range g.Groups {
		rewrite(Location{Group: group})
	}
	return out
}

// Move removes id from one bucket and inserts it in another in a single
// derived value, so subscribers never observe the id in zero or two places.
func Move(g *types.GroupedIssueIDs, id string, from, to Location) *types.GroupedIssueIDs {
	return Insert(Remove(g, id, from), id, to)
}

// shallowClone copies the top-level map(s) while sharing leaf slices.
func shallowClone(g *types.GroupedIssueIDs) *types.GroupedIssueIDs {
	out := &types.GroupedIssueIDs{}
	if g.Subgroups != nil {
		out.Subgroups = make(map[string]map[string][]string, len(g.Subgroups))
		for group, subs := range g.Subgroups {
			cloned := make(map[string][]string, len(subs))
			for sub, ids := range subs {
				cloned[sub] = ids
			}
			out.Subgroups[group] = cloned
		}
		return out
	}
	out.Groups = make(map[string][]string, len(g.Groups))
	for group, ids := range g.Groups {
		out.Groups[group] = ids
	}
	return out
}

func bucketOf(g *types.GroupedIssueIDs, loc Location) []string {
	if g.Subgroups != nil {
		return g.Subgroups[loc.Group][loc.Subgroup]
	}
	return g.Groups[loc.Group]
}

func setBucket(g *types.GroupedIssueIDs, loc Location, ids []string) {
	if g.Subgroups != nil {
		if g.Subgroups[loc.Group] == nil {
			g.Subgroups[loc.Group] = map[string][]string{}
		}
		g.Subgroups[loc.Group][loc.Subgroup] = ids
		return
	}
	if g.Groups == nil {
		g.Groups = map[string][]string{}
	}
	g.Groups[loc.Group] = ids
}

func insertAt(ids []string, id string, index int) []string {
	if index < 0 || index >= len(ids) {
		out := make([]string, 0, len(ids)+1)
		out = append(out, ids...)
		return append(out, id)
	}
	out := make([]string, 0, len(ids)+1)
	out = append(out, ids[:index]...)
	out = append(out, id)
	return append(out, ids[index:]...)
}
