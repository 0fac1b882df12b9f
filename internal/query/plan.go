package query

import (
	"github.com/sneldb/sneldb-sub000/internal/filter"
	"github.com/sneldb/sneldb-sub000/internal/schema"
)

// Plan is a Query resolved against the registry: the event type's uid and
// schema looked up once, and the WHERE tree flattened into a FilterGroup
// (spec §4.5/§4.7 step 1, "Planning" state).
type Plan struct {
	Query  *Query
	UID    string
	Schema *schema.Schema
	Group  *filter.FilterGroup
}

func BuildPlan(reg *schema.Registry, q *Query) (*Plan, error) {
	sc, err := reg.GetSchema(q.EventType)
	if err != nil {
		return nil, err
	}

	group := (filter.Planner{}).Build(q.Where, sc.UID, q.ContextID, q.HasContextID, q.Since, q.HasSince)

	return &Plan{Query: q, UID: sc.UID, Schema: sc, Group: group}, nil
}
