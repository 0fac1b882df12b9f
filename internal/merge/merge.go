// Package merge implements the two streaming merge strategies a
// cross-shard query result can use (spec §4.9): an unordered fan-in for
// queries with no ORDER BY, and an ordered k-way merge for queries that
// declare one, both respecting OFFSET/LIMIT and canceling upstream
// producers once enough rows have been emitted.
package merge

import (
	"container/heap"
	"context"

	"github.com/sneldb/sneldb-sub000/internal/event"
)

// Less orders two events by a declared column; ASC/DESC is captured by
// the closure the caller provides (spec §4.9, same OrderBy as the RLTE
// planner uses).
type Less func(a, b *event.Event) bool

// FanIn merges any number of row channels with no ordering guarantee,
// stopping once limit rows (after skipping offset) have been emitted or
// ctx is canceled. limit<=0 means unbounded.
func FanIn(ctx context.Context, sources []<-chan *event.Event, offset, limit int, dedupByEventID bool) <-chan *event.Event {
	out := make(chan *event.Event, 256)

	go func() {
		defer close(out)
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		merged := make(chan *event.Event, 256)
		done := make(chan struct{})
		remaining := len(sources)
		if remaining == 0 {
			return
		}

		for _, s := range sources {
			go func(s <-chan *event.Event) {
				for {
					select {
					case e, ok := <-s:
						if !ok {
							done <- struct{}{}
							return
						}
						select {
						case merged <- e:
						case <-ctx.Done():
							done <- struct{}{}
							return
						}
					case <-ctx.Done():
						done <- struct{}{}
						return
					}
				}
			}(s)
		}

		seen := map[uint64]struct{}{}
		skipped, emitted := 0, 0
		for remaining > 0 {
			select {
			case e := <-merged:
				if dedupByEventID {
					if _, ok := seen[e.EventID]; ok {
						continue
					}
					seen[e.EventID] = struct{}{}
				}
				if skipped < offset {
					skipped++
					continue
				}
				if limit > 0 && emitted >= limit {
					cancel()
					continue
				}
				select {
				case out <- e:
					emitted++
					if limit > 0 && emitted >= limit {
						cancel()
					}
				case <-ctx.Done():
				}
			case <-done:
				remaining--
			case <-ctx.Done():
				// drain remaining "done" signals so producer goroutines don't leak
				for remaining > 0 {
					<-done
					remaining--
				}
				return
			}
		}
	}()

	return out
}

// heapItem is one source's current head event, tracked by the ordered
// merge's min-heap.
type heapItem struct {
	e      *event.Event
	srcIdx int
}

type itemHeap struct {
	items []heapItem
	less  Less
}

func (h *itemHeap) Len() int            { return len(h.items) }
func (h *itemHeap) Less(i, j int) bool  { return h.less(h.items[i].e, h.items[j].e) }
func (h *itemHeap) Swap(i, j int)       { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *itemHeap) Push(x interface{})  { h.items = append(h.items, x.(heapItem)) }
func (h *itemHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	it := old[n-1]
	h.items = old[:n-1]
	return it
}

// Ordered performs a k-way merge of already-sorted source channels
// (each segment/shard emits rows in the declared ORDER BY order) using a
// min-heap over current heads, so the merged stream stays globally
// ordered without buffering more than one row per source at a time.
func Ordered(ctx context.Context, sources []<-chan *event.Event, less Less, offset, limit int, dedupByEventID bool) <-chan *event.Event {
	out := make(chan *event.Event, 256)

	go func() {
		defer close(out)
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		h := &itemHeap{less: less}
		heap.Init(h)
		for idx, s := range sources {
			if e, ok := recvOrDone(ctx, s); ok {
				heap.Push(h, heapItem{e: e, srcIdx: idx})
			}
		}

		seen := map[uint64]struct{}{}
		skipped, emitted := 0, 0
		for h.Len() > 0 {
			top := heap.Pop(h).(heapItem)
			if e, ok := recvOrDone(ctx, sources[top.srcIdx]); ok {
				heap.Push(h, heapItem{e: e, srcIdx: top.srcIdx})
			}

			if dedupByEventID {
				if _, ok := seen[top.e.EventID]; ok {
					continue
				}
				seen[top.e.EventID] = struct{}{}
			}
			if skipped < offset {
				skipped++
				continue
			}
			if limit > 0 && emitted >= limit {
				cancel()
				break
			}
			select {
			case out <- top.e:
				emitted++
				if limit > 0 && emitted >= limit {
					cancel()
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

func recvOrDone(ctx context.Context, s <-chan *event.Event) (*event.Event, bool) {
	select {
	case e, ok := <-s:
		return e, ok
	case <-ctx.Done():
		return nil, false
	}
}
