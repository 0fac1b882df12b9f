package query

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sneldb/sneldb-sub000/internal/event"
)

// groupState is the tagged per-group accumulator (spec §4.8): every
// aggregate function updates the same struct so GROUP BY can be computed
// in one pass, and Merge lets shard-level partials combine associatively
// (spec §4.8 "merge law": partial aggregates from different shards/
// segments must combine without re-reading rows).
type groupState struct {
	count      uint64
	countField uint64 // COUNT(field): rows where field is non-null
	unique     map[string]struct{}
	sum        float64
	min, max   event.Value
	hasMinMax  bool
}

func newGroupState() *groupState {
	return &groupState{unique: map[string]struct{}{}}
}

func (g *groupState) add(v event.Value) {
	g.count++
	if !v.IsNull() {
		g.countField++
		g.unique[v.String()] = struct{}{}
		if f, ok := v.AsNumeric(); ok {
			g.sum += f
		}
		if !g.hasMinMax {
			g.min, g.max = v, v
			g.hasMinMax = true
		} else {
			if v.Compare(g.min) < 0 {
				g.min = v
			}
			if v.Compare(g.max) > 0 {
				g.max = v
			}
		}
	}
}

// merge combines another partial group into g, associatively: the result
// is identical whether rows were aggregated in one pass or pre-split and
// merged (spec §4.8).
func (g *groupState) merge(o *groupState) {
	g.count += o.count
	g.countField += o.countField
	for k := range o.unique {
		g.unique[k] = struct{}{}
	}
	g.sum += o.sum
	if o.hasMinMax {
		if !g.hasMinMax {
			g.min, g.max, g.hasMinMax = o.min, o.max, true
		} else {
			if o.min.Compare(g.min) < 0 {
				g.min = o.min
			}
			if o.max.Compare(g.max) > 0 {
				g.max = o.max
			}
		}
	}
}

func (g *groupState) result(fn AggFunc) event.Value {
	switch fn {
	case AggCount:
		return event.Uint64Val(g.count)
	case AggCountField:
		return event.Uint64Val(g.countField)
	case AggCountUnique:
		return event.Uint64Val(uint64(len(g.unique)))
	case AggSum:
		return event.FloatVal(g.sum)
	case AggAvg:
		if g.countField == 0 {
			return event.FloatVal(0)
		}
		return event.FloatVal(g.sum / float64(g.countField))
	case AggMin:
		return g.min
	case AggMax:
		return g.max
	default:
		return event.Null()
	}
}

// GroupResult is one GROUP BY / TIME BUCKET output row.
type GroupResult struct {
	Key   []event.Value // GroupBy column values, then the bucket label if present
	Value event.Value
}

// Aggregator runs one Aggregate clause over a row stream, computing
// GROUP BY and TIME BUCKET in a single pass (spec §4.8).
type Aggregator struct {
	Spec     *Aggregate
	Location *time.Location

	// WeekStart names the first day of the week ("monday", "sunday", ...,
	// case-insensitive) used to floor BucketWeek; empty defaults to
	// Monday. Threaded from config.Time.WeekStart (spec §4.8 testable
	// property 7: week-start correctness).
	WeekStart string
}

// weekStartDay resolves WeekStart to a time.Weekday, defaulting to
// Monday on an empty or unrecognized value.
func (a *Aggregator) weekStartDay() time.Weekday {
	switch strings.ToLower(a.WeekStart) {
	case "sunday":
		return time.Sunday
	case "monday", "":
		return time.Monday
	case "tuesday":
		return time.Tuesday
	case "wednesday":
		return time.Wednesday
	case "thursday":
		return time.Thursday
	case "friday":
		return time.Friday
	case "saturday":
		return time.Saturday
	default:
		return time.Monday
	}
}

// daysFromMonday counts wd's offset from Monday (Monday is 0, Sunday 6),
// the way chrono's num_days_from_monday does
// (original_source/src/shared/datetime/time_bucketing.rs: bucket_week).
func daysFromMonday(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}

func (a *Aggregator) bucketFloor(ts uint64) time.Time {
	loc := a.Location
	if loc == nil {
		loc = time.UTC
	}
	t := time.Unix(int64(ts), 0).In(loc)
	switch a.Spec.Bucket {
	case BucketHour:
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, loc)
	case BucketDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	case BucketWeek:
		// bucket_week: floor to the configured week-start day, ported
		// from time_bucketing.rs's days_since_week_start formula.
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
		daysSinceStart := (daysFromMonday(t.Weekday()) + (7 - daysFromMonday(a.weekStartDay()))) % 7
		return day.AddDate(0, 0, -daysSinceStart)
	case BucketMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
	case BucketYear:
		return time.Date(t.Year(), time.January, 1, 0, 0, 0, 0, loc)
	default:
		return time.Time{}
	}
}

func (a *Aggregator) keyFor(e *event.Event) string {
	parts := make([]string, 0, len(a.Spec.GroupBy)+1)
	for _, col := range a.Spec.GroupBy {
		parts = append(parts, fieldFor(e, col).String())
	}
	if a.Spec.Bucket != BucketNone {
		parts = append(parts, a.bucketFloor(e.Timestamp).Format(time.RFC3339))
	}
	key := ""
	for _, p := range parts {
		key += p + "\x1f"
	}
	return key
}

func fieldFor(e *event.Event, col string) event.Value {
	switch col {
	case "context_id":
		return event.StringVal(e.ContextID)
	case "timestamp":
		return event.DatetimeVal(e.Timestamp)
	case "event_id":
		return event.Uint64Val(e.EventID)
	default:
		if v, ok := e.Payload[col]; ok {
			return v
		}
		return event.Null()
	}
}

func (a *Aggregator) keyValues(e *event.Event) []event.Value {
	vals := make([]event.Value, 0, len(a.Spec.GroupBy)+1)
	for _, col := range a.Spec.GroupBy {
		vals = append(vals, fieldFor(e, col))
	}
	if a.Spec.Bucket != BucketNone {
		vals = append(vals, event.DatetimeVal(uint64(a.bucketFloor(e.Timestamp).Unix())))
	}
	return vals
}

// GroupAccumulator is one group's partial aggregate state plus the key
// values that identify it, still unfinalized — an AggFunc like AVG or
// MIN/MAX cannot be computed until every shard's partial has been merged
// in (spec §4.8 merge law).
type GroupAccumulator struct {
	Key   []event.Value
	state *groupState
}

// Accumulate runs rows through the GROUP BY / TIME BUCKET pass without
// finalizing the AggFunc, so a caller that only has one shard's rows can
// hand the partials to MergeAccumulators before any other shard's rows
// are even read.
func (a *Aggregator) Accumulate(rows []*event.Event) map[string]*GroupAccumulator {
	out := map[string]*GroupAccumulator{}
	for _, e := range rows {
		k := a.keyFor(e)
		acc, ok := out[k]
		if !ok {
			acc = &GroupAccumulator{Key: a.keyValues(e), state: newGroupState()}
			out[k] = acc
		}
		var operand event.Value
		if a.Spec.Field != "" {
			operand = fieldFor(e, a.Spec.Field)
		} else {
			operand = event.IntVal(1) // plain COUNT just needs a non-null sentinel
		}
		acc.state.add(operand)
	}
	return out
}

// MergeAccumulators folds src's partials into dst associatively, the way
// a shard manager combines every shard's partial aggregate before
// finalizing (spec §4.8 merge law): the result is identical whether rows
// were aggregated in one pass or split across shards and merged here.
func MergeAccumulators(dst, src map[string]*GroupAccumulator) map[string]*GroupAccumulator {
	for k, acc := range src {
		if existing, ok := dst[k]; ok {
			existing.state.merge(acc.state)
			continue
		}
		dst[k] = acc
	}
	return dst
}

// Finalize computes each group's AggFunc result and returns them sorted
// by key for deterministic output.
func (a *Aggregator) Finalize(accs map[string]*GroupAccumulator) []GroupResult {
	keys := make([]string, 0, len(accs))
	for k := range accs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]GroupResult, 0, len(keys))
	for _, k := range keys {
		acc := accs[k]
		out = append(out, GroupResult{Key: acc.Key, Value: acc.state.result(a.Spec.Func)})
	}
	return out
}

// Run aggregates rows into groups and returns results sorted by key for
// deterministic output; a one-pass convenience wrapper over
// Accumulate+Finalize for callers (tests, single-shard tools) that don't
// need to merge partials from elsewhere first.
func (a *Aggregator) Run(rows []*event.Event) []GroupResult {
	return a.Finalize(a.Accumulate(rows))
}

// MetricColumn names the output column an aggregate value materializes
// under, following spec §4.8's naming scheme.
func (a *Aggregator) MetricColumn() string {
	switch a.Spec.Func {
	case AggCount:
		return "count"
	case AggCountField:
		return "count_" + a.Spec.Field
	case AggCountUnique:
		return "count_unique_" + a.Spec.Field
	case AggSum:
		return "total_" + a.Spec.Field
	case AggAvg:
		return "avg_" + a.Spec.Field
	case AggMin:
		return "min_" + a.Spec.Field
	case AggMax:
		return "max_" + a.Spec.Field
	default:
		return "value"
	}
}

// ResultEvent materializes one GroupResult as an Event-shaped row — the
// group-by columns, the bucket label if present, then the metric column
// — so aggregate output can flow through the same row channel plain
// queries use (spec §4.7: results "materialize as rows").
func (a *Aggregator) ResultEvent(gr GroupResult) *event.Event {
	e := &event.Event{Payload: map[string]event.Value{}}
	idx := 0
	for _, col := range a.Spec.GroupBy {
		e.Payload[col] = gr.Key[idx]
		idx++
	}
	if a.Spec.Bucket != BucketNone {
		e.Payload["bucket"] = gr.Key[idx]
		idx++
	}
	e.Payload[a.MetricColumn()] = gr.Value
	return e
}

func (a *Aggregator) String() string {
	return fmt.Sprintf("aggregate(func=%d field=%q groupBy=%v bucket=%d)", a.Spec.Func, a.Spec.Field, a.Spec.GroupBy, a.Spec.Bucket)
}
