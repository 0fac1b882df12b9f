package shard

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/sneldb/sneldb-sub000/internal/config"
	"github.com/sneldb/sneldb-sub000/internal/event"
	"github.com/sneldb/sneldb-sub000/internal/ids"
	"github.com/sneldb/sneldb-sub000/internal/merge"
	"github.com/sneldb/sneldb-sub000/internal/query"
	"github.com/sneldb/sneldb-sub000/internal/schema"
)

func sortEvents(rows []*event.Event, less func(a, b *event.Event) bool) {
	sort.Slice(rows, func(i, j int) bool { return less(rows[i], rows[j]) })
}

// Manager owns every shard and routes writes/queries across them (spec
// §4.10). Routing is by xxhash of context_id, the same hash-ring idiom
// the teacher uses in fs/hrw.go to pick a target without a lookup table.
type Manager struct {
	shards []*Shard
}

// NewManager creates numShards shards rooted under dataDir/shard-<n>/ and
// starts their actor loops.
func NewManager(numShards int, dataDir string, cfg *config.Config, reg *schema.Registry) (*Manager, error) {
	m := &Manager{}
	for i := 0; i < numShards; i++ {
		s, err := New(i, filepath.Join(dataDir, fmt.Sprintf("shard-%d", i)), cfg, reg)
		if err != nil {
			return nil, err
		}
		go s.Run()
		m.shards = append(m.shards, s)
	}
	return m, nil
}

// shardFor routes a context_id to its owning shard (spec §4.10: every
// event for a given context_id always lands on the same shard).
func (m *Manager) shardFor(contextID string) *Shard {
	h := ids.HashContext(contextID)
	return m.shards[h%uint64(len(m.shards))]
}

// Store routes one event to its owning shard.
func (m *Manager) Store(e *event.Event) error {
	return m.shardFor(e.ContextID).Store(e)
}

// Batch fans an ordered slice of events for possibly-different contexts
// out to their owning shards concurrently, returning the first error (if
// any); supplements the distilled spec with the original implementation's
// BATCH command (spec §12 supplement).
func (m *Manager) Batch(events []*event.Event) error {
	type result struct{ err error }
	results := make(chan result, len(events))
	for _, e := range events {
		e := e
		go func() { results <- result{m.Store(e)} }()
	}
	var firstErr error
	for range events {
		if r := <-results; r.err != nil && firstErr == nil {
			firstErr = r.err
		}
	}
	return firstErr
}

// FlushAll forces every shard to flush its active memtable.
func (m *Manager) FlushAll() error {
	for _, s := range m.shards {
		if err := s.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// Query broadcasts plan to every shard and merges the results (spec
// §4.9/§4.10). Aggregate plans instead gather every shard's partial
// GROUP BY state and merge+finalize it here, since AVG/MIN/MAX can only
// be computed once every shard has contributed (spec §4.8 merge law).
// Otherwise, with no ORDER BY it uses the unordered fan-in; with one,
// the ordered k-way merge keyed on that column. A declared event_sequence
// runs as a final post-filter over the merged rows (spec §6, §12
// supplement).
func (m *Manager) Query(ctx context.Context, plan *query.Plan) <-chan *event.Event {
	if plan.Query.Aggregate != nil {
		return m.queryAggregate(ctx, plan)
	}

	sources := make([]<-chan *event.Event, 0, len(m.shards))
	for _, s := range m.shards {
		ch, _ := s.Query(ctx, plan)
		sources = append(sources, ch)
	}

	q := plan.Query
	limit := 0
	if q.HasLimit {
		limit = q.Limit
	}

	var rows <-chan *event.Event
	if q.OrderBy == nil {
		rows = merge.FanIn(ctx, sources, q.Offset, limit, q.DedupByEventID)
	} else {
		col := q.OrderBy.Column
		asc := q.OrderBy.Asc
		less := func(a, b *event.Event) bool {
			av := fieldForMerge(a, col)
			bv := fieldForMerge(b, col)
			c := av.Compare(bv)
			if asc {
				return c < 0
			}
			return c > 0
		}

		// Ordered expects each source already sorted on col; the executor
		// emits in zone-scan order, not ORDER BY order, so sort each shard's
		// output before the k-way merge rather than teaching the executor a
		// second row ordering.
		sorted := make([]<-chan *event.Event, len(sources))
		for i, src := range sources {
			sorted[i] = sortedChannel(ctx, src, less)
		}
		rows = merge.Ordered(ctx, sorted, less, q.Offset, limit, q.DedupByEventID)
	}

	if q.Sequence != nil {
		return sequenceFiltered(ctx, rows, q.Sequence)
	}
	return rows
}

// queryAggregate fans plan out to every shard's QueryAggregate, merges
// their partial accumulators associatively, finalizes each group's
// AggFunc, and materializes the results as rows on the returned channel
// (spec §4.7's "aggregation" execution step).
func (m *Manager) queryAggregate(ctx context.Context, plan *query.Plan) <-chan *event.Event {
	out := make(chan *event.Event, 256)

	go func() {
		defer close(out)

		type partial struct {
			accs map[string]*query.GroupAccumulator
			err  error
		}
		results := make(chan partial, len(m.shards))
		for _, s := range m.shards {
			s := s
			go func() {
				accs, err := s.QueryAggregate(ctx, plan)
				results <- partial{accs: accs, err: err}
			}()
		}

		merged := map[string]*query.GroupAccumulator{}
		for range m.shards {
			p := <-results
			if p.err != nil {
				continue
			}
			merged = query.MergeAccumulators(merged, p.accs)
		}

		agg := &query.Aggregator{Spec: plan.Query.Aggregate}
		groups := agg.Finalize(merged)

		start := plan.Query.Offset
		if start > len(groups) {
			start = len(groups)
		}
		end := len(groups)
		if plan.Query.HasLimit && start+plan.Query.Limit < end {
			end = start + plan.Query.Limit
		}

		for _, gr := range groups[start:end] {
			select {
			case out <- agg.ResultEvent(gr):
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

// sequenceFiltered drains in fully and applies query.MatchSequence, the
// way sortedChannel already buffers its whole input to re-sort it —
// sequencing likewise needs every row in a context before it can decide
// which ones satisfied the First step.
func sequenceFiltered(ctx context.Context, in <-chan *event.Event, seq *query.EventSequence) <-chan *event.Event {
	out := make(chan *event.Event, 256)
	go func() {
		defer close(out)
		var rows []*event.Event
		for e := range in {
			rows = append(rows, e)
		}
		for _, e := range query.MatchSequence(seq, rows) {
			select {
			case out <- e:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Replay scans one context_id's full history from its owning shard, in
// timestamp order (spec §4.10). Unlike Query it never fans out to every
// shard: writes to a context_id are always serialized onto the same
// shard, so that shard alone holds the whole history.
func (m *Manager) Replay(ctx context.Context, plan *query.Plan) (<-chan *event.Event, <-chan error) {
	s := m.shardFor(plan.Query.ContextID)
	return s.Replay(ctx, plan)
}

func sortedChannel(ctx context.Context, in <-chan *event.Event, less func(a, b *event.Event) bool) <-chan *event.Event {
	out := make(chan *event.Event, 256)
	go func() {
		defer close(out)
		var rows []*event.Event
		for e := range in {
			rows = append(rows, e)
		}
		sortEvents(rows, less)
		for _, e := range rows {
			select {
			case out <- e:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func fieldForMerge(e *event.Event, col string) event.Value {
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

// Shutdown stops every shard's actor loop.
func (m *Manager) Shutdown() {
	for _, s := range m.shards {
		s.Shutdown()
	}
}
