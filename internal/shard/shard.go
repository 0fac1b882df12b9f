// Package shard implements the shard actor (spec §4.10): a single
// writer goroutine owning one active memtable, the passive memtables
// currently being flushed, and the segment list, reachable only through
// a typed message stream — the same single-goroutine-owns-mutable-state
// shape the teacher uses for its xaction registry (xact/xreg/xreg.go).
package shard

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	ratomic "sync/atomic"
	"time"

	"github.com/sneldb/sneldb-sub000/internal/config"
	"github.com/sneldb/sneldb-sub000/internal/event"
	"github.com/sneldb/sneldb-sub000/internal/flush"
	"github.com/sneldb/sneldb-sub000/internal/ids"
	"github.com/sneldb/sneldb-sub000/internal/memtable"
	"github.com/sneldb/sneldb-sub000/internal/metrics"
	"github.com/sneldb/sneldb-sub000/internal/nlog"
	"github.com/sneldb/sneldb-sub000/internal/query"
	"github.com/sneldb/sneldb-sub000/internal/schema"
	"github.com/sneldb/sneldb-sub000/internal/segment"
	"github.com/sneldb/sneldb-sub000/internal/walcodec"
)

type storeMsg struct {
	e    *event.Event
	resp chan error
}

type flushMsg struct {
	resp chan error
}

type queryMsg struct {
	ctx  context.Context
	plan *query.Plan
	out  chan *event.Event
	done chan error
}

// aggQueryMsg requests a shard's partial, unfinalized GROUP BY
// accumulators for an aggregate Plan (spec §4.7 "aggregation" step);
// Manager merges every shard's partials before computing any AggFunc.
type aggQueryMsg struct {
	ctx  context.Context
	plan *query.Plan
	resp chan aggQueryResult
}

type aggQueryResult struct {
	accs map[string]*query.GroupAccumulator
	err  error
}

// replayMsg requests one context_id's full, timestamp-ordered history
// across every segment and the active memtable, with no aggregation
// (spec §4.10's Replay, distinct from ReplayWAL's crash recovery).
type replayMsg struct {
	ctx  context.Context
	plan *query.Plan
	out  chan *event.Event
	done chan error
}

type shutdownMsg struct {
	resp chan struct{}
}

// Shard owns one shard's storage: the active memtable, passive memtables
// mid-flush, and its immutable segment list, all mutated only from Run's
// goroutine.
type Shard struct {
	ID       int
	dir      string
	cfg      *config.Config
	registry *schema.Registry
	location *time.Location

	active   *memtable.MemTable
	passive  []*memtable.Snapshot
	segments []*segment.Segment
	seq      uint64

	wal *walcodec.Writer

	hwm ratomic.Uint64 // high-water mark: EventID of the last flushed row

	msgs chan interface{}
}

// New creates a shard rooted at dir (spec §6's shard-<id>/ layout) with a
// fresh active memtable and no WAL replay: flushed segments are the
// source of truth (Open Question 1), so startup never reads wal/.
func New(id int, dir string, cfg *config.Config, reg *schema.Registry) (*Shard, error) {
	if err := os.MkdirAll(filepath.Join(dir, "segments"), 0o755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(dir, "wal"), 0o755); err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(cfg.Time.Timezone)
	if err != nil {
		loc = time.UTC
	}

	s := &Shard{
		ID:       id,
		dir:      dir,
		cfg:      cfg,
		registry: reg,
		location: loc,
		active:   memtable.New(cfg.Engine.Flush.MemtableCapacity),
		msgs:     make(chan interface{}, 256),
	}

	segs, err := loadSegments(dir, reg)
	if err != nil {
		return nil, err
	}
	s.segments = segs

	walPath := filepath.Join(dir, "wal", fmt.Sprintf("%020d.wal", time.Now().UnixNano()))
	w, err := walcodec.Create(walPath)
	if err != nil {
		return nil, err
	}
	s.wal = w

	return s, nil
}

func loadSegments(dir string, reg *schema.Registry) ([]*segment.Segment, error) {
	entries, err := os.ReadDir(filepath.Join(dir, "segments"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []*segment.Segment
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		seg, err := segment.Open(filepath.Join(dir, "segments", e.Name()), e.Name(), reg)
		if err != nil {
			nlog.Warningf("shard %d: skipping unreadable segment %s: %v", 0, e.Name(), err)
			continue
		}
		out = append(out, seg)
	}
	return out, nil
}

// Run is the actor loop; callers start it in its own goroutine and talk
// to the shard only through Store/Flush/Query/Shutdown.
func (s *Shard) Run() {
	for m := range s.msgs {
		switch msg := m.(type) {
		case storeMsg:
			msg.resp <- s.handleStore(msg.e)
		case flushMsg:
			msg.resp <- s.handleFlush()
		case queryMsg:
			s.handleQuery(msg)
		case aggQueryMsg:
			s.handleAggQuery(msg)
		case replayMsg:
			s.handleReplay(msg)
		case shutdownMsg:
			s.wal.Close()
			close(msg.resp)
			return
		}
	}
}

// Store appends e, assigning it the next EventID, and rotates to a fresh
// memtable (flushing the full one synchronously inside the actor) if
// capacity is reached.
func (s *Shard) Store(e *event.Event) error {
	resp := make(chan error, 1)
	s.msgs <- storeMsg{e: e, resp: resp}
	return <-resp
}

func (s *Shard) handleStore(e *event.Event) error {
	e.EventID = s.nextEventID()
	if err := s.wal.Append(e); err != nil {
		nlog.Warningf("shard %d: wal append failed (hint-only, continuing): %v", s.ID, err)
	}
	if err := s.active.Append(e); err != nil {
		if rotErr := s.rotate(); rotErr != nil {
			return rotErr
		}
		return s.active.Append(e)
	}
	return nil
}

func (s *Shard) nextEventID() uint64 {
	s.seq++
	return s.seq
}

// Flush forces the active memtable to rotate and flush synchronously,
// returning once the new segment is installed.
func (s *Shard) Flush() error {
	resp := make(chan error, 1)
	s.msgs <- flushMsg{resp: resp}
	return <-resp
}

func (s *Shard) handleFlush() error {
	if s.active.Len() == 0 {
		return nil
	}
	return s.rotate()
}

// rotate seals the active memtable and flushes it in place (spec §4.10
// allows passive memtables to flush concurrently with new writes; this
// core flushes synchronously within the actor for simplicity, still
// correct because the actor serializes all mutation anyway).
func (s *Shard) rotate() error {
	snap := s.active.Snapshot()
	metrics.MemtableRotations.Inc()
	s.active = memtable.New(s.cfg.Engine.Flush.MemtableCapacity)

	segID := ids.NewSegmentID(s.ID, s.seq)
	f := &flush.Flusher{
		SegmentsDir:  filepath.Join(s.dir, "segments"),
		SegmentID:    segID,
		Registry:     s.registry,
		EventPerZone: s.cfg.Engine.EventPerZone,
		ZTIStride:    64,
		Location:     s.location,
	}
	if err := f.Flush(snap); err != nil {
		return err
	}

	seg, err := segment.Open(filepath.Join(s.dir, "segments", segID), segID, s.registry)
	if err != nil {
		return err
	}
	s.segments = append(s.segments, seg)

	if snap.Len() > 0 {
		rows := snap.All()
		if rows[len(rows)-1].EventID > s.hwm.Load() {
			s.hwm.Store(rows[len(rows)-1].EventID)
		}
	}
	return nil
}

// HighWaterMark returns the EventID of the newest row guaranteed durable
// in a flushed segment (Open Question 4's resolved contract).
func (s *Shard) HighWaterMark() uint64 { return s.hwm.Load() }

// Query runs plan against this shard's segments and active memtable,
// streaming matches on the returned channel; errCh receives exactly one
// value (nil on success) once the row channel has closed.
func (s *Shard) Query(ctx context.Context, plan *query.Plan) (<-chan *event.Event, <-chan error) {
	out := make(chan *event.Event, 256)
	done := make(chan error, 1)
	s.msgs <- queryMsg{ctx: ctx, plan: plan, out: out, done: done}
	return out, done
}

func (s *Shard) handleQuery(m queryMsg) {
	segs := append([]*segment.Segment(nil), s.segments...)
	memSnap := s.active.Snapshot()
	ex := &query.Executor{Location: s.location}

	go func() {
		ch, errPtr := ex.Run(m.ctx, m.plan, segs, memSnap)
		for e := range ch {
			select {
			case m.out <- e:
			case <-m.ctx.Done():
			}
		}
		close(m.out)
		if errPtr != nil {
			m.done <- *errPtr
		} else {
			m.done <- nil
		}
	}()
}

// QueryAggregate runs plan's Aggregate clause against this shard's
// segments and active memtable, returning the shard's partial GROUP BY
// accumulators unfinalized — Manager merges every shard's partials
// before computing AVG/MIN/MAX etc, per spec §4.8's merge law.
func (s *Shard) QueryAggregate(ctx context.Context, plan *query.Plan) (map[string]*query.GroupAccumulator, error) {
	resp := make(chan aggQueryResult, 1)
	s.msgs <- aggQueryMsg{ctx: ctx, plan: plan, resp: resp}
	r := <-resp
	return r.accs, r.err
}

func (s *Shard) handleAggQuery(m aggQueryMsg) {
	segs := append([]*segment.Segment(nil), s.segments...)
	memSnap := s.active.Snapshot()
	ex := &query.Executor{Location: s.location}

	go func() {
		ch, errPtr := ex.Run(m.ctx, m.plan, segs, memSnap)
		var rows []*event.Event
		for e := range ch {
			rows = append(rows, e)
		}
		var err error
		if errPtr != nil {
			err = *errPtr
		}
		agg := &query.Aggregator{
			Spec:      m.plan.Query.Aggregate,
			Location:  s.location,
			WeekStart: s.cfg.Time.WeekStart,
		}
		m.resp <- aggQueryResult{accs: agg.Accumulate(rows), err: err}
	}()
}

// Replay scans one context_id's full history across this shard's
// segments and active memtable, in timestamp order, with no aggregation
// (spec §4.10). Unlike Query it never fans out: every event for a
// context_id is serialized onto exactly one shard at write time.
func (s *Shard) Replay(ctx context.Context, plan *query.Plan) (<-chan *event.Event, <-chan error) {
	out := make(chan *event.Event, 256)
	done := make(chan error, 1)
	s.msgs <- replayMsg{ctx: ctx, plan: plan, out: out, done: done}
	return out, done
}

func (s *Shard) handleReplay(m replayMsg) {
	segs := append([]*segment.Segment(nil), s.segments...)
	memSnap := s.active.Snapshot()
	ex := &query.Executor{Location: s.location}

	go func() {
		ch, errPtr := ex.Run(m.ctx, m.plan, segs, memSnap)
		var rows []*event.Event
		for e := range ch {
			rows = append(rows, e)
		}
		sortEvents(rows, func(a, b *event.Event) bool {
			if a.Timestamp != b.Timestamp {
				return a.Timestamp < b.Timestamp
			}
			return a.EventID < b.EventID
		})
		for _, e := range rows {
			select {
			case m.out <- e:
			case <-m.ctx.Done():
			}
		}
		close(m.out)
		if errPtr != nil {
			m.done <- *errPtr
		} else {
			m.done <- nil
		}
	}()
}

// Shutdown closes the shard's WAL writer and stops Run's goroutine.
func (s *Shard) Shutdown() {
	resp := make(chan struct{})
	s.msgs <- shutdownMsg{resp: resp}
	<-resp
}

// ReplayWAL rebuilds a memtable from a WAL file for offline tooling or
// tests; not called automatically at startup (Open Question 1: flushed
// segments alone are authoritative).
func ReplayWAL(path string) ([]*event.Event, error) {
	return walcodec.Replay(path)
}
