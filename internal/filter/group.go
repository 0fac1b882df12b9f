package filter

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/sneldb/sneldb-sub000/internal/event"
)

// ColumnPredicate is one leaf test against a single column, carrying the
// priority the planner assigned it (spec §4.5: injected filters such as
// event_type and context_id rank ahead of user WHERE clauses so the
// cheapest, most selective prune runs first).
type ColumnPredicate struct {
	Column   string
	Op       CompareOp
	Value    event.Value
	Values   []event.Value // populated for an In predicate
	Priority int
}

func (p *ColumnPredicate) isIn() bool { return p.Values != nil }

// IsEqLike reports whether the predicate can only ever narrow to rows
// equal to a single value or to one of an IN list's values — the shape
// every membership-test index
// (XOR filter, enum bitmap, calendar bucket) can prune.
func (p *ColumnPredicate) IsEqLike() bool { return p.Op == OpEq || p.isIn() }

// ZonePruner resolves a ColumnPredicate against one segment's zone indexes
// (XOR filters, enum bitmaps, calendar, ZTI). definite=false means the
// pruner has no index for this column/op and the group must treat every
// zone as a candidate.
type ZonePruner interface {
	CandidateZones(p *ColumnPredicate, zoneCount int) (zones *roaring.Bitmap, definite bool)
}

// FilterGroup is the zone-set-algebra twin of the WHERE Node tree (spec
// §9): the same And/Or/Not shape, but each leaf is a ColumnPredicate and
// evaluation produces a roaring.Bitmap of candidate zone IDs instead of a
// boolean.
type FilterGroup struct {
	Kind      NodeKind // NodeCompare/NodeIn used as "leaf", or NodeAnd/NodeOr/NodeNot
	Predicate *ColumnPredicate
	Children  []*FilterGroup
}

func Leaf(p *ColumnPredicate) *FilterGroup {
	kind := NodeCompare
	if p.isIn() {
		kind = NodeIn
	}
	return &FilterGroup{Kind: kind, Predicate: p}
}

func GroupAnd(children ...*FilterGroup) *FilterGroup {
	return &FilterGroup{Kind: NodeAnd, Children: children}
}

func GroupOr(children ...*FilterGroup) *FilterGroup {
	return &FilterGroup{Kind: NodeOr, Children: children}
}

func GroupNot(child *FilterGroup) *FilterGroup {
	return &FilterGroup{Kind: NodeNot, Children: []*FilterGroup{child}}
}

// Eval walks the group bottom-up and returns the zone IDs that might
// satisfy it. full is the whole-segment universe, used as the NOT
// complement base and as the fallback when a leaf has no usable index.
func (g *FilterGroup) Eval(pruner ZonePruner, zoneCount int, full *roaring.Bitmap) *roaring.Bitmap {
	if g == nil {
		return full.Clone()
	}
	switch g.Kind {
	case NodeCompare, NodeIn:
		zones, definite := pruner.CandidateZones(g.Predicate, zoneCount)
		if !definite || zones == nil {
			return full.Clone()
		}
		return zones
	case NodeAnd:
		out := full.Clone()
		for _, c := range g.Children {
			out.And(c.Eval(pruner, zoneCount, full))
		}
		return out
	case NodeOr:
		out := roaring.New()
		for _, c := range g.Children {
			out.Or(c.Eval(pruner, zoneCount, full))
		}
		return out
	case NodeNot:
		inner := g.Children[0].Eval(pruner, zoneCount, full)
		out := full.Clone()
		out.AndNot(inner)
		return out
	default:
		return full.Clone()
	}
}

// MinPriority is the minimum priority across the group's leaves, used to
// order sibling groups so the cheapest prune runs first (spec §4.5).
func (g *FilterGroup) MinPriority() int {
	if g == nil {
		return 0
	}
	if g.Predicate != nil {
		return g.Predicate.Priority
	}
	best := int(^uint(0) >> 1)
	for _, c := range g.Children {
		if p := c.MinPriority(); p < best {
			best = p
		}
	}
	return best
}

// FullZoneSet returns the zone-ID universe [0, zoneCount).
func FullZoneSet(zoneCount int) *roaring.Bitmap {
	out := roaring.New()
	if zoneCount <= 0 {
		return out
	}
	out.AddRange(0, uint64(zoneCount))
	return out
}
