package shard_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sneldb/sneldb-sub000/internal/config"
	"github.com/sneldb/sneldb-sub000/internal/event"
	"github.com/sneldb/sneldb-sub000/internal/filter"
	"github.com/sneldb/sneldb-sub000/internal/query"
	"github.com/sneldb/sneldb-sub000/internal/schema"
	"github.com/sneldb/sneldb-sub000/internal/shard"
)

func newTestShard(t *testing.T) (*shard.Shard, *schema.Registry, string) {
	t.Helper()
	reg := schema.NewRegistry()
	uid, err := reg.Define("click", 1, []schema.Field{
		{Name: "page", Kind: schema.FieldString},
	})
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Engine.Flush.MemtableCapacity = 5
	cfg.Engine.EventPerZone = 2

	dir := t.TempDir()
	s, err := shard.New(0, dir, cfg, reg)
	require.NoError(t, err)
	go s.Run()
	t.Cleanup(s.Shutdown)

	return s, reg, uid
}

func TestShard_StoreFlushQuery(t *testing.T) {
	s, reg, uid := newTestShard(t)

	for i := 0; i < 4; i++ {
		e := &event.Event{
			ContextID: "c1",
			EventType: "click",
			UID:       uid,
			Timestamp: uint64(1000 + i),
			Payload:   map[string]event.Value{"page": event.StringVal("home")},
		}
		require.NoError(t, s.Store(e))
	}

	require.NoError(t, s.Flush())
	require.Equal(t, uint64(4), s.HighWaterMark())

	q := &query.Query{EventType: "click", Where: filter.Compare("page", filter.OpEq, event.StringVal("home"))}
	plan, err := query.BuildPlan(reg, q)
	require.NoError(t, err)

	ch, errCh := s.Query(context.Background(), plan)
	var rows []*event.Event
	for e := range ch {
		rows = append(rows, e)
	}
	require.NoError(t, <-errCh)
	require.Len(t, rows, 4)
}

func TestShard_Replay_ScansOneContextInTimestampOrder(t *testing.T) {
	s, reg, uid := newTestShard(t)

	for i := 0; i < 4; i++ {
		e := &event.Event{
			ContextID: "c1",
			EventType: "click",
			UID:       uid,
			Timestamp: uint64(1000 + (3-i)), // stored out of timestamp order
			Payload:   map[string]event.Value{"page": event.StringVal("home")},
		}
		require.NoError(t, s.Store(e))
	}
	require.NoError(t, s.Flush())

	q := &query.Query{EventType: "click", ContextID: "c1", HasContextID: true}
	plan, err := query.BuildPlan(reg, q)
	require.NoError(t, err)

	ch, errCh := s.Replay(context.Background(), plan)
	var rows []*event.Event
	for e := range ch {
		rows = append(rows, e)
	}
	require.NoError(t, <-errCh)
	require.Len(t, rows, 4)
	for i := 1; i < len(rows); i++ {
		require.LessOrEqual(t, rows[i-1].Timestamp, rows[i].Timestamp)
	}
}

func TestShard_QueryAggregate_ReturnsPartialAccumulators(t *testing.T) {
	s, reg, uid := newTestShard(t)

	for i := 0; i < 4; i++ {
		e := &event.Event{
			ContextID: "c1",
			EventType: "click",
			UID:       uid,
			Timestamp: uint64(1000 + i),
			Payload:   map[string]event.Value{"page": event.StringVal("home")},
		}
		require.NoError(t, s.Store(e))
	}
	require.NoError(t, s.Flush())

	q := &query.Query{EventType: "click", Aggregate: &query.Aggregate{Func: query.AggCount}}
	plan, err := query.BuildPlan(reg, q)
	require.NoError(t, err)

	accs, err := s.QueryAggregate(context.Background(), plan)
	require.NoError(t, err)
	require.Len(t, accs, 1)

	agg := &query.Aggregator{Spec: q.Aggregate}
	out := agg.Finalize(accs)
	require.Len(t, out, 1)
	require.Equal(t, uint64(4), out[0].Value.U)
}

func TestShard_StoreRotatesOnCapacity(t *testing.T) {
	s, _, uid := newTestShard(t)

	for i := 0; i < 12; i++ {
		e := &event.Event{
			ContextID: "c1",
			EventType: "click",
			UID:       uid,
			Timestamp: uint64(2000 + i),
			Payload:   map[string]event.Value{"page": event.StringVal("home")},
		}
		require.NoError(t, s.Store(e))
	}
	require.Greater(t, s.HighWaterMark(), uint64(0))
}
