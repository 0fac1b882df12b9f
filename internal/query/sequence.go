package query

import (
	"sort"

	"github.com/sneldb/sneldb-sub000/internal/event"
)

// MatchSequence is the optional post-filter over merged rows spec §6's
// event_sequence names: rows already fetched by the rest of the plan are
// grouped by context_id, and a row survives only if it satisfies Second
// and some earlier-or-equal row in the same context already satisfied
// First (a minimal two-step "A followed by B" join, §12 supplement).
// Sequencing never crosses shards — it runs entirely over the row set
// the caller already collected.
func MatchSequence(seq *EventSequence, rows []*event.Event) []*event.Event {
	if seq == nil {
		return rows
	}

	byContext := map[string][]*event.Event{}
	order := make([]string, 0)
	for _, e := range rows {
		if _, ok := byContext[e.ContextID]; !ok {
			order = append(order, e.ContextID)
		}
		byContext[e.ContextID] = append(byContext[e.ContextID], e)
	}

	var out []*event.Event
	for _, ctx := range order {
		ctxRows := byContext[ctx]
		sort.Slice(ctxRows, func(i, j int) bool {
			if ctxRows[i].Timestamp != ctxRows[j].Timestamp {
				return ctxRows[i].Timestamp < ctxRows[j].Timestamp
			}
			return ctxRows[i].EventID < ctxRows[j].EventID
		})

		sawFirst := false
		var firstTS uint64
		for _, e := range ctxRows {
			if matchesStep(seq.First, e) && (!sawFirst || e.Timestamp < firstTS) {
				sawFirst = true
				firstTS = e.Timestamp
			}
			if sawFirst && e.Timestamp >= firstTS && matchesStep(seq.Second, e) {
				out = append(out, e)
			}
		}
	}
	return out
}

func matchesStep(step SequenceStep, e *event.Event) bool {
	if step.EventType != "" && e.UID != step.EventType && e.EventType != step.EventType {
		return false
	}
	return step.Where.Matches(e)
}
