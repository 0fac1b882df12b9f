package query

import "github.com/sneldb/sneldb-sub000/internal/filter"

// SequenceStep names one event type condition in a follow-by sequence
// (spec §6's event_sequence); Where is an optional extra same-context
// filter scoped to this step alone.
type SequenceStep struct {
	EventType string
	Where     *filter.Node
}

// EventSequence is a minimal two-step "A followed by B" sequence join:
// rows matching Second are kept only if the same context_id already saw
// a matching First at an earlier or equal timestamp (spec §6, §12
// supplement). Cross-shard sequences are out of scope (spec §1
// Non-goals: "cross-shard joins") — matching runs over one merged,
// already-collected row set.
type EventSequence struct {
	First  SequenceStep
	Second SequenceStep
}

// AggFunc is one of the aggregate functions spec §4.8 names.
type AggFunc uint8

const (
	AggNone AggFunc = iota
	AggCount
	AggCountField
	AggCountUnique
	AggSum
	AggAvg
	AggMin
	AggMax
)

// TimeBucket is the calendar-aware bucketing width for GROUP BY TIME
// BUCKET (spec §4.8); bucket floor math reuses the same hour/day
// boundaries the calendar index is built on.
type TimeBucket uint8

const (
	BucketNone TimeBucket = iota
	BucketHour
	BucketDay
	BucketWeek
	BucketMonth
	BucketYear
)

// Aggregate describes a COUNT/SUM/AVG/MIN/MAX clause, optionally with
// GROUP BY and/or TIME BUCKET.
type Aggregate struct {
	Func       AggFunc
	Field      string // operand column; empty for plain COUNT
	GroupBy    []string
	Bucket     TimeBucket
}

// OrderBy names the ORDER BY column and direction used both for row
// emission order and, when Limit is set, as the RLTE candidate column.
type OrderBy struct {
	Column string
	Asc    bool
}

// Query is the command the executor runs: the WHERE tree has already been
// parsed by the caller (the command layer, external per spec §1); the
// event type name is resolved to its uid by BuildPlan.
type Query struct {
	EventType    string
	Where        *filter.Node
	ContextID    string
	HasContextID bool
	Since        uint64
	HasSince     bool

	Projection []string // nil means every declared field plus core columns

	OrderBy  *OrderBy
	Limit    int
	HasLimit bool
	Offset   int

	Aggregate *Aggregate
	Sequence  *EventSequence

	DedupByEventID bool
}
