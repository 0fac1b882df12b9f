// Package rlte implements the per-zone geometric-rank ladder (spec §4.4,
// §4.6): for an ORDER BY candidate column, a short sequence of values at
// ranks 1, 2, 4, 8, ... in the zone's local sort order, used to bound the
// number of rows in a zone that satisfy a running top-K threshold without
// reading the column. Same "arithmetic over a sorted slice" idiom as zti;
// no pack library fits, see DESIGN.md.
package rlte

import (
	"sort"

	"github.com/sneldb/sneldb-sub000/internal/event"
)

// Rung is one (rank, value) sample of the ladder.
type Rung struct {
	Rank  uint32
	Value event.Value
}

// Ladder is one zone's geometric-rank samples of a column, sorted so that
// rung 0 is the most extreme value in the direction the zone's rows were
// sorted when the ladder was built (Build's asc argument controls that).
type Ladder struct {
	Rungs []Rung
	Asc   bool
}

// Build sorts values into local order (ascending when asc, else
// descending) and samples geometric
// ranks 1,2,4,8,... plus the final rank, matching spec §4.4.
func Build(values []event.Value, asc bool) *Ladder {
	sorted := append([]event.Value(nil), values...)
	sort.Slice(sorted, func(i, j int) bool {
		c := sorted[i].Compare(sorted[j])
		if asc {
			return c < 0
		}
		return c > 0
	})
	l := &Ladder{Asc: asc}
	if len(sorted) == 0 {
		return l
	}
	for rank := uint32(1); int(rank) <= len(sorted); rank *= 2 {
		l.Rungs = append(l.Rungs, Rung{Rank: rank, Value: sorted[rank-1]})
	}
	lastRank := uint32(len(sorted))
	if len(l.Rungs) == 0 || l.Rungs[len(l.Rungs)-1].Rank != lastRank {
		l.Rungs = append(l.Rungs, Rung{Rank: lastRank, Value: sorted[lastRank-1]})
	}
	return l
}

// Envelope returns the (min, max) bound of the ladder's values — for
// numeric ladders this is a true numeric envelope; for string ladders
// lexicographic bounds (spec §4.6 step 2).
func (l *Ladder) Envelope() (lo, hi event.Value, ok bool) {
	if len(l.Rungs) == 0 {
		return event.Value{}, event.Value{}, false
	}
	first := l.Rungs[0].Value
	last := l.Rungs[len(l.Rungs)-1].Value
	if l.Asc {
		return first, last, true
	}
	return last, first, true
}

// FrontierValue returns the most-extreme (per Asc/Desc direction) value
// in the ladder — the zone's rank-1 sample.
func (l *Ladder) FrontierValue() (event.Value, bool) {
	if len(l.Rungs) == 0 {
		return event.Value{}, false
	}
	return l.Rungs[0].Value, true
}

// UpperBoundCount returns the rank of the first rung that is not at least
// as extreme as threshold in the ladder's direction (the last rank when
// every rung is) — an upper bound on how many rows in the zone could beat
// threshold, without reading the column (spec §4.6 step 4).
func (l *Ladder) UpperBoundCount(threshold event.Value) uint32 {
	_, ub := l.BoundsAt(threshold)
	return ub
}

// BoundsAt returns [lb, ub] — number of rows guaranteed versus possibly
// satisfying the cutoff value, per spec §4.6 step 5, by bracketing
// threshold between consecutive rungs.
func (l *Ladder) BoundsAt(threshold event.Value) (lb, ub uint32) {
	for i, r := range l.Rungs {
		cmp := r.Value.Compare(threshold)
		pass := cmp >= 0
		if l.Asc {
			pass = cmp <= 0
		}
		if !pass {
			if i == 0 {
				return 0, 0
			}
			return l.Rungs[i-1].Rank, r.Rank
		}
	}
	if len(l.Rungs) == 0 {
		return 0, 0
	}
	last := l.Rungs[len(l.Rungs)-1].Rank
	return last, last
}
