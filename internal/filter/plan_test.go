package filter_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sneldb/sneldb-sub000/internal/event"
	"github.com/sneldb/sneldb-sub000/internal/filter"
)

func leafPredicate(t *testing.T, g *filter.FilterGroup) *filter.ColumnPredicate {
	t.Helper()
	require.NotNil(t, g.Predicate)
	return g.Predicate
}

func TestPlanner_Build_InjectsEventTypeOnly(t *testing.T) {
	g := (filter.Planner{}).Build(nil, "u1", "", false, 0, false)
	p := leafPredicate(t, g)
	require.Equal(t, "event_type", p.Column)
	require.Equal(t, filter.PriorityEventType, p.Priority)
}

func TestPlanner_Build_InjectsContextAndSince(t *testing.T) {
	g := (filter.Planner{}).Build(nil, "u1", "ctx-1", true, 1000, true)
	require.Equal(t, filter.NodeAnd, g.Kind)
	require.Len(t, g.Children, 3)

	byColumn := map[string]*filter.ColumnPredicate{}
	for _, c := range g.Children {
		byColumn[c.Predicate.Column] = c.Predicate
	}
	require.Equal(t, filter.PriorityEventType, byColumn["event_type"].Priority)
	require.Equal(t, filter.PriorityContextID, byColumn["context_id"].Priority)
	require.Equal(t, filter.PrioritySince, byColumn["timestamp"].Priority)
	require.Equal(t, event.DatetimeVal(1000), byColumn["timestamp"].Value)
}

func TestPlanner_Build_FlattensUserWhere(t *testing.T) {
	where := filter.And(
		filter.Compare("status", filter.OpEq, event.StringVal("pending")),
		filter.Not(filter.Compare("kind", filter.OpEq, event.StringVal("a"))),
	)
	g := (filter.Planner{}).Build(where, "u1", "", false, 0, false)

	require.Equal(t, filter.NodeAnd, g.Kind)
	require.Len(t, g.Children, 2) // injected event_type + flattened user group

	userGroup := g.Children[1]
	require.Equal(t, filter.NodeAnd, userGroup.Kind)
	require.Len(t, userGroup.Children, 2)

	for _, c := range userGroup.Children {
		require.GreaterOrEqual(t, c.MinPriority(), filter.PriorityUserBase)
	}
}

func TestPlanner_Build_NoWhereNoExtras(t *testing.T) {
	g := (filter.Planner{}).Build(nil, "u1", "", false, 0, false)
	// With nothing but the event_type injection, Build returns the single
	// leaf rather than wrapping it in a one-child AND group.
	require.NotEqual(t, filter.NodeAnd, g.Kind)
}
