package query_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sneldb/sneldb-sub000/internal/event"
	"github.com/sneldb/sneldb-sub000/internal/filter"
	"github.com/sneldb/sneldb-sub000/internal/flush"
	"github.com/sneldb/sneldb-sub000/internal/memtable"
	"github.com/sneldb/sneldb-sub000/internal/query"
	"github.com/sneldb/sneldb-sub000/internal/schema"
	"github.com/sneldb/sneldb-sub000/internal/segment"
)

func buildTestSegment(t *testing.T) (*schema.Registry, *segment.Segment, string) {
	t.Helper()
	reg := schema.NewRegistry()
	uid, err := reg.Define("signup", 1, []schema.Field{
		{Name: "plan", Kind: schema.FieldEnum, Variants: []string{"free", "pro"}},
		{Name: "amount", Kind: schema.FieldFloat},
	})
	require.NoError(t, err)

	mt := memtable.New(1000)
	base := uint64(1_700_000_000)
	for i := 0; i < 20; i++ {
		plan := "free"
		if i%2 == 0 {
			plan = "pro"
		}
		e := &event.Event{
			ContextID: "ctx",
			EventType: "signup",
			UID:       uid,
			Timestamp: base + uint64(i*60),
			EventID:   uint64(i + 1),
			Payload: map[string]event.Value{
				"plan":   event.StringVal(plan),
				"amount": event.FloatVal(float64(i)),
			},
		}
		require.NoError(t, mt.Append(e))
	}

	dir := t.TempDir()
	f := &flush.Flusher{
		SegmentsDir:  dir,
		SegmentID:    "seg-0000",
		Registry:     reg,
		EventPerZone: 5,
		ZTIStride:    2,
		Location:     time.UTC,
	}
	require.NoError(t, f.Flush(mt.Snapshot()))

	seg, err := segment.Open(filepath.Join(dir, "seg-0000"), "seg-0000", reg)
	require.NoError(t, err)
	return reg, seg, uid
}

func TestExecutor_FiltersByEnumPredicate(t *testing.T) {
	reg, seg, _ := buildTestSegment(t)

	q := &query.Query{
		EventType: "signup",
		Where:     filter.Compare("plan", filter.OpEq, event.StringVal("pro")),
	}
	plan, err := query.BuildPlan(reg, q)
	require.NoError(t, err)

	ex := &query.Executor{Location: time.UTC}
	ch, errPtr := ex.Run(context.Background(), plan, []*segment.Segment{seg}, memtable.New(1).Snapshot())

	var rows []*event.Event
	for e := range ch {
		rows = append(rows, e)
	}
	require.NoError(t, *errPtr)
	require.Len(t, rows, 10)
	for _, r := range rows {
		require.Equal(t, "pro", r.Payload["plan"].Str)
	}
}

func buildOrderedSegment(t *testing.T, eventPerZone int) (*schema.Registry, *segment.Segment) {
	t.Helper()
	reg := schema.NewRegistry()
	uid, err := reg.Define("metric", 1, []schema.Field{
		{Name: "amount", Kind: schema.FieldFloat},
	})
	require.NoError(t, err)

	mt := memtable.New(1000)
	base := uint64(1_700_000_000)
	for i := 0; i < 20; i++ {
		e := &event.Event{
			ContextID: "ctx",
			EventType: "metric",
			UID:       uid,
			Timestamp: base + uint64(i*60),
			EventID:   uint64(i + 1),
			Payload:   map[string]event.Value{"amount": event.FloatVal(float64(i))},
		}
		require.NoError(t, mt.Append(e))
	}

	dir := t.TempDir()
	f := &flush.Flusher{
		SegmentsDir:  dir,
		SegmentID:    "seg-0000",
		Registry:     reg,
		EventPerZone: eventPerZone,
		ZTIStride:    2,
		Location:     time.UTC,
	}
	require.NoError(t, f.Flush(mt.Snapshot()))

	seg, err := segment.Open(filepath.Join(dir, "seg-0000"), "seg-0000", reg)
	require.NoError(t, err)
	return reg, seg
}

// TestExecutor_RLTEPrunesZonesForOrderByLimit exercises spec §4.7 step
// 4: an ORDER BY DESC + LIMIT query must intersect scanSegment's
// candidates with the RLTE planner's picked zones, so a handful of
// high-value zones satisfy the query without reading every zone.
func TestExecutor_RLTEPrunesZonesForOrderByLimit(t *testing.T) {
	reg, seg := buildOrderedSegment(t, 2) // 10 zones of 2 rows each, amounts 0..19

	q := &query.Query{
		EventType: "metric",
		OrderBy:   &query.OrderBy{Column: "amount", Asc: false},
		Limit:     1,
		HasLimit:  true,
	}
	plan, err := query.BuildPlan(reg, q)
	require.NoError(t, err)

	ex := &query.Executor{Location: time.UTC}
	ch, errPtr := ex.Run(context.Background(), plan, []*segment.Segment{seg}, memtable.New(1).Snapshot())

	var rows []*event.Event
	for e := range ch {
		rows = append(rows, e)
	}
	require.NoError(t, *errPtr)

	// The planner picks the top zones covering at least k=10 rows (limit
	// 1 scaled by the 10x safety factor), so fewer than all 20 rows come
	// back, and the true maximum is still among them.
	require.Less(t, len(rows), 20)
	var sawMax bool
	for _, r := range rows {
		require.GreaterOrEqual(t, r.Payload["amount"].F, 10.0)
		if r.Payload["amount"].F == 19.0 {
			sawMax = true
		}
	}
	require.True(t, sawMax)
}

func TestExecutor_TimestampRangeFilter(t *testing.T) {
	reg, seg, _ := buildTestSegment(t)

	q := &query.Query{
		EventType: "signup",
		Since:     1_700_000_000 + 600,
		HasSince:  true,
	}
	plan, err := query.BuildPlan(reg, q)
	require.NoError(t, err)

	ex := &query.Executor{Location: time.UTC}
	ch, errPtr := ex.Run(context.Background(), plan, []*segment.Segment{seg}, memtable.New(1).Snapshot())

	var rows []*event.Event
	for e := range ch {
		rows = append(rows, e)
	}
	require.NoError(t, *errPtr)
	for _, r := range rows {
		require.GreaterOrEqual(t, r.Timestamp, uint64(1_700_000_000+600))
	}
}
