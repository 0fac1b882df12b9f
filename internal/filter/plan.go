package filter

import "github.com/sneldb/sneldb-sub000/internal/event"

// Priority bands (spec §4.5): the event_type uid match is injected ahead
// of everything else because it is a per-segment no-op for the wrong
// event type, context_id narrows to one actor, and a since bound is the
// cheapest calendar/ZTI prune. User WHERE predicates run last.
const (
	PriorityEventType = iota
	PriorityContextID
	PrioritySince
	PriorityUserBase
)

// Planner flattens a parsed WHERE tree into a FilterGroup and injects the
// filters every query carries regardless of its WHERE clause (spec §4.5).
type Planner struct{}

// Build returns the FilterGroup to run against a segment's zone catalog.
// contextID and since are optional narrowings taken from the command
// envelope, not the WHERE clause itself.
func (Planner) Build(where *Node, eventTypeUID string, contextID string, hasContextID bool, since uint64, hasSince bool) *FilterGroup {
	var injected []*FilterGroup

	injected = append(injected, Leaf(&ColumnPredicate{
		Column:   "event_type",
		Op:       OpEq,
		Value:    event.StringVal(eventTypeUID),
		Priority: PriorityEventType,
	}))

	if hasContextID {
		injected = append(injected, Leaf(&ColumnPredicate{
			Column:   "context_id",
			Op:       OpEq,
			Value:    event.StringVal(contextID),
			Priority: PriorityContextID,
		}))
	}

	if hasSince {
		injected = append(injected, Leaf(&ColumnPredicate{
			Column:   "timestamp",
			Op:       OpGte,
			Value:    event.DatetimeVal(since),
			Priority: PrioritySince,
		}))
	}

	user := flatten(where, PriorityUserBase)
	if user != nil {
		injected = append(injected, user)
	}

	if len(injected) == 1 {
		return injected[0]
	}
	return GroupAnd(injected...)
}

func flatten(n *Node, basePriority int) *FilterGroup {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case NodeCompare:
		return Leaf(&ColumnPredicate{Column: n.Column, Op: n.Op, Value: n.Value, Priority: basePriority})
	case NodeIn:
		return Leaf(&ColumnPredicate{Column: n.Column, Values: n.Values, Priority: basePriority})
	case NodeAnd:
		children := make([]*FilterGroup, 0, len(n.Children))
		for _, c := range n.Children {
			if fg := flatten(c, basePriority); fg != nil {
				children = append(children, fg)
			}
		}
		return GroupAnd(children...)
	case NodeOr:
		children := make([]*FilterGroup, 0, len(n.Children))
		for _, c := range n.Children {
			if fg := flatten(c, basePriority); fg != nil {
				children = append(children, fg)
			}
		}
		return GroupOr(children...)
	case NodeNot:
		return GroupNot(flatten(n.Children[0], basePriority))
	default:
		return nil
	}
}
