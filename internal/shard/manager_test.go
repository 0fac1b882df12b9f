package shard_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sneldb/sneldb-sub000/internal/config"
	"github.com/sneldb/sneldb-sub000/internal/event"
	"github.com/sneldb/sneldb-sub000/internal/filter"
	"github.com/sneldb/sneldb-sub000/internal/ids"
	"github.com/sneldb/sneldb-sub000/internal/query"
	"github.com/sneldb/sneldb-sub000/internal/schema"
	"github.com/sneldb/sneldb-sub000/internal/shard"
)

func newTestManager(t *testing.T, numShards int) (*shard.Manager, *schema.Registry, string) {
	t.Helper()
	reg := schema.NewRegistry()
	uid, err := reg.Define("metric", 1, []schema.Field{
		{Name: "amount", Kind: schema.FieldFloat},
	})
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Engine.Flush.MemtableCapacity = 5
	cfg.Engine.EventPerZone = 2

	m, err := shard.NewManager(numShards, t.TempDir(), cfg, reg)
	require.NoError(t, err)
	t.Cleanup(m.Shutdown)

	return m, reg, uid
}

// contextOnShard brute-forces a context_id string that Manager routes to
// want (spec §4.10's hash-ring routing), so a two-shard test can place
// rows on each shard deterministically without running the toolchain.
func contextOnShard(numShards, want int) string {
	for i := 0; ; i++ {
		ctx := fmt.Sprintf("ctx-%d", i)
		if int(ids.HashContext(ctx)%uint64(numShards)) == want {
			return ctx
		}
	}
}

func TestManager_QueryAggregate_MergesAcrossShards(t *testing.T) {
	m, reg, uid := newTestManager(t, 2)

	ctx0 := contextOnShard(2, 0)
	ctx1 := contextOnShard(2, 1)

	store := func(ctx string, amount float64) {
		e := &event.Event{
			ContextID: ctx,
			EventType: "metric",
			UID:       uid,
			Timestamp: 1000,
			Payload:   map[string]event.Value{"amount": event.FloatVal(amount)},
		}
		require.NoError(t, m.Store(e))
	}
	store(ctx0, 10)
	store(ctx0, 20)
	store(ctx1, 30)
	require.NoError(t, m.FlushAll())

	q := &query.Query{EventType: "metric", Aggregate: &query.Aggregate{Func: query.AggAvg, Field: "amount"}}
	plan, err := query.BuildPlan(reg, q)
	require.NoError(t, err)

	ch := m.Query(context.Background(), plan)
	var rows []*event.Event
	for e := range ch {
		rows = append(rows, e)
	}
	require.Len(t, rows, 1)
	require.InDelta(t, 20.0, rows[0].Payload["avg_amount"].F, 0.0001)
}

func TestManager_Replay_RoutesToOwningShardOnly(t *testing.T) {
	m, reg, uid := newTestManager(t, 2)
	ctx := contextOnShard(2, 0)

	for i := 0; i < 3; i++ {
		e := &event.Event{
			ContextID: ctx,
			EventType: "metric",
			UID:       uid,
			Timestamp: uint64(100 + i),
			Payload:   map[string]event.Value{"amount": event.FloatVal(float64(i))},
		}
		require.NoError(t, m.Store(e))
	}
	require.NoError(t, m.FlushAll())

	q := &query.Query{EventType: "metric", ContextID: ctx, HasContextID: true}
	plan, err := query.BuildPlan(reg, q)
	require.NoError(t, err)

	ch, errCh := m.Replay(context.Background(), plan)
	var rows []*event.Event
	for e := range ch {
		rows = append(rows, e)
	}
	require.NoError(t, <-errCh)
	require.Len(t, rows, 3)
	for i := 1; i < len(rows); i++ {
		require.LessOrEqual(t, rows[i-1].Timestamp, rows[i].Timestamp)
	}
}

func TestManager_Query_AppliesEventSequence(t *testing.T) {
	m, reg, uid := newTestManager(t, 1)
	ctx := "c1"

	mk := func(ts uint64, amount float64) *event.Event {
		return &event.Event{
			ContextID: ctx,
			EventType: "metric",
			UID:       uid,
			Timestamp: ts,
			Payload:   map[string]event.Value{"amount": event.FloatVal(amount)},
		}
	}
	require.NoError(t, m.Store(mk(10, 1)))  // "first" candidate
	require.NoError(t, m.Store(mk(20, 99))) // "second" candidate
	require.NoError(t, m.FlushAll())

	q := &query.Query{
		EventType: "metric",
		Where:     filter.Compare("amount", filter.OpGte, event.FloatVal(0)),
		Sequence: &query.EventSequence{
			First:  query.SequenceStep{Where: filter.Compare("amount", filter.OpEq, event.FloatVal(1))},
			Second: query.SequenceStep{Where: filter.Compare("amount", filter.OpEq, event.FloatVal(99))},
		},
	}
	plan, err := query.BuildPlan(reg, q)
	require.NoError(t, err)

	ch := m.Query(context.Background(), plan)
	var rows []*event.Event
	for e := range ch {
		rows = append(rows, e)
	}
	require.Len(t, rows, 1)
	require.Equal(t, uint64(20), rows[0].Timestamp)
}
