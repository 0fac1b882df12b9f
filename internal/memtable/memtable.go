// Package memtable implements the in-memory, append-only buffer of recent
// events for one shard (spec §3, §4.2).
package memtable

import (
	"sync"

	"github.com/sneldb/sneldb-sub000/internal/event"
	"github.com/sneldb/sneldb-sub000/internal/xerrors"
)

// MemTable is append-only and single-writer (the owning shard loop is the
// only appender); Snapshot returns a read-only view that is safe to scan
// concurrently with further appends because appends only ever grow the
// backing slice and Snapshot freezes the length it observed.
type MemTable struct {
	mu       sync.RWMutex
	rows     []*event.Event
	capacity int
	byPoint  map[pointKey][]*event.Event // (uid, context_id) -> rows, for point reads
}

type pointKey struct {
	uid, contextID string
}

func New(capacity int) *MemTable {
	return &MemTable{
		capacity: capacity,
		byPoint:  make(map[pointKey][]*event.Event),
	}
}

// Append adds e to the table, failing with CapacityExceeded once the
// table has reached its configured flush threshold; the caller (shard) is
// expected to rotate the table in that case rather than retry here.
func (m *MemTable) Append(e *event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.rows) >= m.capacity {
		return &xerrors.CapacityExceeded{Capacity: m.capacity}
	}
	m.rows = append(m.rows, e)
	k := pointKey{uid: e.UID, contextID: e.ContextID}
	m.byPoint[k] = append(m.byPoint[k], e)
	return nil
}

func (m *MemTable) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows)
}

// Snapshot is an immutable view over the rows appended so far. Table
// continues to accept appends (if still active) after a snapshot is
// taken; the snapshot never observes them.
type Snapshot struct {
	rows []*event.Event
}

func (m *MemTable) Snapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	frozen := make([]*event.Event, len(m.rows))
	copy(frozen, m.rows)
	return &Snapshot{rows: frozen}
}

func (s *Snapshot) Len() int { return len(s.rows) }

// Predicate evaluates a row in-place against the query's predicate tree;
// defined this way (rather than importing the filter package directly) to
// avoid a dependency cycle — filter.Node implements this interface.
type Predicate interface {
	Matches(e *event.Event) bool
}

// IterFiltered scans the frozen rows matching uid and the predicate,
// evaluating directly over payload values (no indexes — memtables are
// small and unindexed by design, spec §4.2).
func (s *Snapshot) IterFiltered(uid string, pred Predicate) []*event.Event {
	out := make([]*event.Event, 0)
	for _, e := range s.rows {
		if e.UID != uid {
			continue
		}
		if pred == nil || pred.Matches(e) {
			out = append(out, e)
		}
	}
	return out
}

// ContextRows returns all rows for one context, in write order, used by
// Replay and by point-read fast paths.
func (s *Snapshot) ContextRows(uid, contextID string) []*event.Event {
	out := make([]*event.Event, 0)
	for _, e := range s.rows {
		if e.UID == uid && e.ContextID == contextID {
			out = append(out, e)
		}
	}
	return out
}

// All returns every row in the snapshot (used when hydrating a full
// sealed memtable for flush).
func (s *Snapshot) All() []*event.Event { return s.rows }
