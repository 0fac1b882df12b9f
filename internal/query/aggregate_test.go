package query_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sneldb/sneldb-sub000/internal/event"
	"github.com/sneldb/sneldb-sub000/internal/query"
)

func rowsForAgg() []*event.Event {
	mk := func(ctx string, ts uint64, amount float64) *event.Event {
		return &event.Event{
			ContextID: ctx,
			Timestamp: ts,
			Payload:   map[string]event.Value{"amount": event.FloatVal(amount), "plan": event.StringVal("pro")},
		}
	}
	return []*event.Event{
		mk("c1", 10, 5),
		mk("c1", 20, 7),
		mk("c2", 15, 3),
	}
}

func TestAggregator_CountAndSum(t *testing.T) {
	agg := &query.Aggregator{Spec: &query.Aggregate{Func: query.AggCount}}
	out := agg.Run(rowsForAgg())
	require.Len(t, out, 1)
	require.Equal(t, uint64(3), out[0].Value.U)

	sumAgg := &query.Aggregator{Spec: &query.Aggregate{Func: query.AggSum, Field: "amount"}}
	out = sumAgg.Run(rowsForAgg())
	require.Len(t, out, 1)
	require.InDelta(t, 15.0, out[0].Value.F, 0.0001)
}

func TestAggregator_GroupBy(t *testing.T) {
	agg := &query.Aggregator{Spec: &query.Aggregate{
		Func:    query.AggSum,
		Field:   "amount",
		GroupBy: []string{"context_id"},
	}}
	out := agg.Run(rowsForAgg())
	require.Len(t, out, 2)

	totals := map[string]float64{}
	for _, g := range out {
		totals[g.Key[0].Str] = g.Value.F
	}
	require.InDelta(t, 12.0, totals["c1"], 0.0001)
	require.InDelta(t, 3.0, totals["c2"], 0.0001)
}

func TestAggregator_MinMax(t *testing.T) {
	minAgg := &query.Aggregator{Spec: &query.Aggregate{Func: query.AggMin, Field: "amount"}}
	out := minAgg.Run(rowsForAgg())
	require.InDelta(t, 3.0, out[0].Value.F, 0.0001)

	maxAgg := &query.Aggregator{Spec: &query.Aggregate{Func: query.AggMax, Field: "amount"}}
	out = maxAgg.Run(rowsForAgg())
	require.InDelta(t, 7.0, out[0].Value.F, 0.0001)
}

func TestAggregator_AccumulateMergeFinalize(t *testing.T) {
	// Splitting rows across two "shards", accumulating each separately,
	// then merging and finalizing must equal running Run once over the
	// whole set (spec §4.8 merge law) — this is the exact path
	// Manager.queryAggregate takes across real shards.
	rows := rowsForAgg()
	spec := &query.Aggregate{Func: query.AggAvg, Field: "amount", GroupBy: []string{"context_id"}}

	whole := &query.Aggregator{Spec: spec}
	wholeOut := whole.Run(rows)

	shardA := &query.Aggregator{Spec: spec}
	shardB := &query.Aggregator{Spec: spec}
	partials := query.MergeAccumulators(shardA.Accumulate(rows[:2]), shardB.Accumulate(rows[2:]))

	final := &query.Aggregator{Spec: spec}
	mergedOut := final.Finalize(partials)

	require.Len(t, mergedOut, len(wholeOut))
	totals := map[string]float64{}
	for _, g := range wholeOut {
		totals[g.Key[0].Str] = g.Value.F
	}
	for _, g := range mergedOut {
		require.InDelta(t, totals[g.Key[0].Str], g.Value.F, 0.0001)
	}
}

func TestAggregator_ResultEvent(t *testing.T) {
	agg := &query.Aggregator{Spec: &query.Aggregate{
		Func:    query.AggSum,
		Field:   "amount",
		GroupBy: []string{"context_id"},
	}}
	out := agg.Run(rowsForAgg())
	require.NotEmpty(t, out)

	e := agg.ResultEvent(out[0])
	require.Contains(t, e.Payload, "context_id")
	require.Contains(t, e.Payload, "total_amount")
}

func TestAggregator_BucketWeekMonthYear(t *testing.T) {
	// Wednesday 2024-01-03 00:00:00 UTC, week starting Monday should
	// floor to Monday 2024-01-01 (original_source/time_bucketing.rs's
	// bucket_week test case).
	wedJan3 := uint64(1704240000)
	rows := []*event.Event{{ContextID: "c1", Timestamp: wedJan3, Payload: map[string]event.Value{}}}

	weekAgg := &query.Aggregator{Spec: &query.Aggregate{Func: query.AggCount, Bucket: query.BucketWeek}, WeekStart: "monday"}
	out := weekAgg.Run(rows)
	require.Len(t, out, 1)
	require.Equal(t, uint64(1704067200), out[0].Key[0].U)

	// February 15 2024 floors to February 1 2024 under BucketMonth.
	feb15 := uint64(1708012800)
	rows = []*event.Event{{ContextID: "c1", Timestamp: feb15, Payload: map[string]event.Value{}}}
	monthAgg := &query.Aggregator{Spec: &query.Aggregate{Func: query.AggCount, Bucket: query.BucketMonth}}
	out = monthAgg.Run(rows)
	require.Equal(t, uint64(1706745600), out[0].Key[0].U)

	yearAgg := &query.Aggregator{Spec: &query.Aggregate{Func: query.AggCount, Bucket: query.BucketYear}}
	out = yearAgg.Run(rows)
	require.Equal(t, uint64(1704067200), out[0].Key[0].U) // 2024-01-01 00:00:00 UTC
}

func TestAggregator_BucketWeekHonorsWeekStart(t *testing.T) {
	wedJan3 := uint64(1704240000)
	rows := []*event.Event{{ContextID: "c1", Timestamp: wedJan3, Payload: map[string]event.Value{}}}

	sundayAgg := &query.Aggregator{Spec: &query.Aggregate{Func: query.AggCount, Bucket: query.BucketWeek}, WeekStart: "sunday"}
	out := sundayAgg.Run(rows)
	// Week-start Sunday floors Wednesday Jan 3 to Sunday Dec 31 2023.
	require.Equal(t, uint64(1703980800), out[0].Key[0].U)
}

func TestGroupState_MergeIsAssociative(t *testing.T) {
	// aggregating in one pass must equal splitting the rows and merging
	// partials (spec §4.8's merge law), checked here for SUM by adding the
	// finalized totals of two separate Aggregator runs; groupState.merge
	// itself is exercised by TestAggregator_AccumulateMergeFinalize.
	rows := rowsForAgg()
	whole := &query.Aggregator{Spec: &query.Aggregate{Func: query.AggSum, Field: "amount"}}
	wholeOut := whole.Run(rows)

	partA := &query.Aggregator{Spec: &query.Aggregate{Func: query.AggSum, Field: "amount"}}
	partB := &query.Aggregator{Spec: &query.Aggregate{Func: query.AggSum, Field: "amount"}}
	outA := partA.Run(rows[:1])
	outB := partB.Run(rows[1:])

	require.InDelta(t, wholeOut[0].Value.F, outA[0].Value.F+outB[0].Value.F, 0.0001)
}
