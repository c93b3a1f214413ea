package rfilter

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/trellishq/trellis/internal/types"
)

// Evaluator decides whether an issue matches an expression tree. The store
// uses it after an optimistic create to decide whether the new issue belongs
// in the currently filtered view.
type Evaluator struct {
	now time.Time
}

// NewEvaluator creates an Evaluator with the given reference time for
// relative-duration comparisons (updated>7d).
func NewEvaluator(now time.Time) *Evaluator {
	return &Evaluator{now: now}
}

// Matches reports whether the issue satisfies the expression. A nil tree
// matches everything. Unknown attributes never match (the server is the
// authority; the client errs on the side of excluding, which at worst causes
// a refetch rather than a stale flash).
func (e *Evaluator) Matches(node Node, issue *types.Issue) bool {
	if node == nil {
		return true
	}
	if issue == nil {
		return false
	}
	return e.eval(node, issue)
}

func (e *Evaluator) eval(node Node, issue *types.Issue) bool {
	switch n := node.(type) {
	case *And:
		return e.eval(n.Left, issue) && e.eval(n.Right, issue)
	case *Or:
		return e.eval(n.Left, issue) || e.eval(n.Right, issue)
	case *Not:
		return !e.eval(n.Operand, issue)
	case *Comparison:
		return e.evalComparison(n, issue)
	default:
		return false
	}
}

func (e *Evaluator) evalComparison(n *Comparison, issue *types.Issue) bool {
	switch n.Field {
	case "state":
		return matchScalar(n, issue.State)
	case "priority":
		return matchScalar(n, issue.Priority)
	case "project":
		return matchScalar(n, issue.ProjectID)
	case "assignee", "assignees":
		return matchSet(n, issue.AssigneeIDs)
	case "label", "labels":
		return matchSet(n, issue.LabelIDs)
	case "epic", "epics":
		return matchSet(n, issue.EpicIDs)
	case "sprint":
		if issue.SprintID == nil {
			return matchScalar(n, "")
		}
		return matchScalar(n, *issue.SprintID)
	case "created_by":
		return matchScalar(n, issue.CreatedByID)
	case "sort_order":
		return matchNumber(n, issue.SortOrder)
	case "created", "created_at":
		return e.matchTime(n, issue.CreatedAt)
	case "updated", "updated_at":
		return e.matchTime(n, issue.UpdatedAt)
	default:
		return false
	}
}

// matchScalar handles =/!= against a single string value; value lists match
// any element.
func matchScalar(n *Comparison, got string) bool {
	switch n.Op {
	case OpEquals:
		for _, v := range n.Values {
			if strings.EqualFold(got, v) {
				return true
			}
		}
		return false
	case OpNotEquals:
		for _, v := range n.Values {
			if strings.EqualFold(got, v) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// matchSet handles membership filters over multi-value attributes: equality
// means "has any of", inequality means "has none of".
func matchSet(n *Comparison, got []string) bool {
	contains := func(v string) bool {
		for _, g := range got {
			if strings.EqualFold(g, v) {
				return true
			}
		}
		return false
	}
	switch n.Op {
	case OpEquals:
		for _, v := range n.Values {
			if contains(v) {
				return true
			}
		}
		return false
	case OpNotEquals:
		for _, v := range n.Values {
			if contains(v) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func matchNumber(n *Comparison, got float64) bool {
	want, err := strconv.ParseFloat(n.Values[0], 64)
	if err != nil {
		return false
	}
	switch n.Op {
	case OpEquals:
		return got == want
	case OpNotEquals:
		return got != want
	case OpLess:
		return got < want
	case OpLessEq:
		return got <= want
	case OpGreater:
		return got > want
	case OpGreaterEq:
		return got >= want
	default:
		return false
	}
}

// matchTime compares a timestamp against a relative duration ("updated>7d"
// means updated within the last 7 days) or an RFC3339 literal.
func (e *Evaluator) matchTime(n *Comparison, got time.Time) bool {
	var boundary time.Time
	if n.Duration {
		d, err := parseRelativeDuration(n.Values[0])
		if err != nil {
			return false
		}
		boundary = e.now.Add(-d)
	} else {
		t, err := time.Parse(time.RFC3339, n.Values[0])
		if err != nil {
			return false
		}
		boundary = t
	}

	switch n.Op {
	case OpGreater, OpGreaterEq:
		return got.After(boundary) || (n.Op == OpGreaterEq && got.Equal(boundary))
	case OpLess, OpLessEq:
		return got.Before(boundary) || (n.Op == OpLessEq && got.Equal(boundary))
	case OpEquals:
		return got.Equal(boundary)
	case OpNotEquals:
		return !got.Equal(boundary)
	default:
		return false
	}
}

// parseRelativeDuration converts 7d / 24h / 2w into a time.Duration.
func parseRelativeDuration(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, fmt.Errorf("empty duration")
	}
	suffix := raw[len(raw)-1]
	value, err := strconv.Atoi(raw[:len(raw)-1])
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	switch suffix {
	case 'h', 'H':
		return time.Duration(value) * time.Hour, nil
	case 'd', 'D':
		return time.Duration(value) * 24 * time.Hour, nil
	case 'w', 'W':
		return time.Duration(value) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("invalid duration suffix %q", raw)
	}
}
