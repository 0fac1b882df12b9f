package query

import (
	"context"
	"sort"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/sneldb/sneldb-sub000/internal/event"
	"github.com/sneldb/sneldb-sub000/internal/filter"
	"github.com/sneldb/sneldb-sub000/internal/memtable"
	"github.com/sneldb/sneldb-sub000/internal/metrics"
	"github.com/sneldb/sneldb-sub000/internal/rlteplan"
	"github.com/sneldb/sneldb-sub000/internal/schema"
	"github.com/sneldb/sneldb-sub000/internal/segment"
)

// rlteSafetyFactor scales ORDER BY + LIMIT's k before asking the RLTE
// planner for zones, covering for rows a zone's ladder frontier
// overestimates or underestimates (spec §4.6: "typically 10x").
const rlteSafetyFactor = 10

// State is the executor's progress through spec §4.7's state machine.
type State uint8

const (
	StatePlanning State = iota
	StatePruning
	StateLoadingColumns
	StateEmitting
	StateDone
	StateError
)

// Executor runs one Plan against a shard's segments (oldest-to-newest,
// spec §3 ordering) plus the active memtable snapshot.
type Executor struct {
	Location *time.Location
}

// Run executes the plan and streams matching rows on the returned
// channel, closing it when done or when ctx is canceled. The returned
// *error is populated only after the channel has closed.
func (ex *Executor) Run(ctx context.Context, plan *Plan, segs []*segment.Segment, mem *memtable.Snapshot) (<-chan *event.Event, *error) {
	out := make(chan *event.Event, 256)
	var runErr error

	var picked map[string]*roaring.Bitmap
	if plan.Query.OrderBy != nil && plan.Query.HasLimit {
		picked = ex.pickRLTEZones(segs, plan)
	}

	go func() {
		defer close(out)

		emit := func(e *event.Event) bool {
			select {
			case out <- e:
				return true
			case <-ctx.Done():
				return false
			}
		}

		matches := func(r *event.Event) bool {
			if plan.Query.HasContextID && r.ContextID != plan.Query.ContextID {
				return false
			}
			if plan.Query.HasSince && r.Timestamp < plan.Query.Since {
				return false
			}
			return plan.Query.Where.Matches(r)
		}

		for _, seg := range segs {
			if !seg.HasUID(plan.UID) {
				continue
			}
			seg.Acquire()
			rows, err := ex.scanSegment(seg, plan, picked[seg.ID])
			seg.Release()
			if err != nil {
				runErr = err
				return
			}
			for _, r := range rows {
				if !matches(r) {
					continue
				}
				if !emit(r) {
					return
				}
			}
		}

		if mem != nil {
			for _, r := range mem.IterFiltered(plan.UID, plan.Query.Where) {
				if !matches(r) {
					continue
				}
				if !emit(r) {
					return
				}
			}
		}
	}()

	return out, &runErr
}

// scanSegment prunes to candidate zones via the FilterGroup, intersects
// with the RLTE planner's picked zones if one ran for this segment, then
// loads and hydrates every row in each surviving zone (spec §4.7 steps
// 1-4: "If RLTE planning succeeded, intersect with its picked zones").
func (ex *Executor) scanSegment(seg *segment.Segment, plan *Plan, picked *roaring.Bitmap) ([]*event.Event, error) {
	m, ok := seg.Meta(plan.UID)
	if !ok {
		return nil, nil
	}
	zoneCount := m.ZoneCount()

	pruner := &SegmentPruner{Seg: seg, Schema: plan.Schema, Location: ex.Location}
	full := filter.FullZoneSet(zoneCount)
	candidates := plan.Group.Eval(pruner, zoneCount, full)
	if picked != nil {
		candidates.And(picked)
	}

	pruned := zoneCount - int(candidates.GetCardinality())
	if pruned > 0 {
		metrics.ZonesPruned.Add(float64(pruned))
	}
	metrics.ZonesTouched.Add(float64(candidates.GetCardinality()))

	columns := neededColumns(plan)
	loaded := make(map[string]*segment.Column, len(columns))
	for _, col := range columns {
		kind, ok := columnKind(plan, col)
		if !ok {
			continue
		}
		c, err := seg.LoadColumn(plan.UID, col, kind)
		if err != nil {
			continue // IndexMissing/Corrupt degrades this column, not the whole query
		}
		loaded[col] = c
	}

	var out []*event.Event
	it := candidates.Iterator()
	for it.HasNext() {
		zoneID := it.Next()
		start, end := m.RowRange(int(zoneID))
		for row := start; row < end; row++ {
			out = append(out, hydrateRow(loaded, row))
		}
	}
	return out, nil
}

func neededColumns(plan *Plan) []string {
	set := map[string]struct{}{"context_id": {}, "event_type": {}, "timestamp": {}, "event_id": {}}
	if plan.Query.Projection == nil {
		for _, f := range plan.Schema.Fields {
			set[f.Name] = struct{}{}
		}
	} else {
		for _, c := range plan.Query.Projection {
			set[c] = struct{}{}
		}
	}
	collectColumns(plan.Query.Where, set)
	if plan.Query.OrderBy != nil {
		set[plan.Query.OrderBy.Column] = struct{}{}
	}
	if plan.Query.Aggregate != nil {
		if plan.Query.Aggregate.Field != "" {
			set[plan.Query.Aggregate.Field] = struct{}{}
		}
		for _, g := range plan.Query.Aggregate.GroupBy {
			set[g] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func collectColumns(n *filter.Node, set map[string]struct{}) {
	if n == nil {
		return
	}
	if n.Column != "" {
		set[n.Column] = struct{}{}
	}
	for _, c := range n.Children {
		collectColumns(c, set)
	}
}

func columnKind(plan *Plan, col string) (event.Kind, bool) {
	switch col {
	case "context_id", "event_type":
		return event.KindString, true
	case "timestamp":
		return event.KindDatetime, true
	case "event_id":
		return event.KindUint64, true
	}
	f, ok := plan.Schema.Field(col)
	if !ok {
		return 0, false
	}
	return fieldValueKind(f), true
}

func fieldValueKind(f schema.Field) event.Kind {
	switch f.Kind {
	case schema.FieldInt:
		return event.KindInt
	case schema.FieldU64:
		return event.KindUint64
	case schema.FieldFloat:
		return event.KindFloat
	case schema.FieldBool:
		return event.KindBool
	case schema.FieldDatetime:
		return event.KindDatetime
	case schema.FieldBinary:
		return event.KindBinary
	default:
		return event.KindString // string and enum both ride the string column
	}
}

func hydrateRow(loaded map[string]*segment.Column, row uint32) *event.Event {
	e := &event.Event{Payload: map[string]event.Value{}}
	for name, col := range loaded {
		if int(row) >= len(col.Values) {
			continue
		}
		v := col.Values[row]
		switch name {
		case "context_id":
			e.ContextID = v.Str
		case "event_type":
			e.UID = v.Str
		case "timestamp":
			ts, _ := v.AsNumeric()
			e.Timestamp = uint64(ts)
		case "event_id":
			u, _ := v.AsNumeric()
			e.EventID = uint64(u)
		default:
			e.Payload[name] = v
		}
	}
	return e
}

// pickRLTEZones runs the RLTE planner over every segment's ladder for
// the ORDER BY column and returns, per segment, the zone IDs it picked
// (spec §4.6). Only ladders built in the query's ORDER BY direction are
// used; when none are, it returns nil and every segment is scanned in
// full. A segment with no entry in the result (no usable ladder, or none
// of its zones picked) also falls back to a full scan rather than being
// pruned to nothing.
func (ex *Executor) pickRLTEZones(segs []*segment.Segment, plan *Plan) map[string]*roaring.Bitmap {
	var ladders []rlteplan.ZoneLadder
	for _, zl := range LaddersForOrderBy(segs, plan) {
		if zl.Ladder.Asc == plan.Query.OrderBy.Asc {
			ladders = append(ladders, zl)
		}
	}
	if len(ladders) == 0 {
		return nil
	}

	k := (plan.Query.Limit + plan.Query.Offset) * rlteSafetyFactor
	if k <= 0 {
		k = plan.Query.Limit + plan.Query.Offset
	}
	if k <= 0 {
		return nil
	}

	picks := rlteplan.Plan(ladders, k, plan.Query.OrderBy.Asc)
	if len(picks) == 0 {
		return nil
	}

	out := make(map[string]*roaring.Bitmap, len(picks))
	for _, p := range picks {
		b, ok := out[p.SegmentID]
		if !ok {
			b = roaring.New()
			out[p.SegmentID] = b
		}
		b.Add(p.ZoneID)
	}
	return out
}

// LaddersForOrderBy loads the RLTE ladder for every zone of every segment
// on the ORDER BY column, feeding rlteplan.Plan ahead of a full scan
// (spec §4.6); callers that only need a correct, unoptimized top-K can
// skip this and sort scanSegment's output instead.
func LaddersForOrderBy(segs []*segment.Segment, plan *Plan) []rlteplan.ZoneLadder {
	var out []rlteplan.ZoneLadder
	if plan.Query.OrderBy == nil {
		return out
	}
	for _, seg := range segs {
		if !seg.HasUID(plan.UID) {
			continue
		}
		slab, err := seg.LoadRLTE(plan.UID, plan.Query.OrderBy.Column)
		if err != nil {
			continue
		}
		for zoneID, ladder := range slab {
			out = append(out, rlteplan.ZoneLadder{SegmentID: seg.ID, ZoneID: zoneID, Ladder: ladder})
		}
	}
	return out
}
