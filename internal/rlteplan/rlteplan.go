// Package rlteplan implements the RLTE planner (spec §4.6): picking a set
// of candidate zones for the top-K rows of an ORDER BY query, using each
// zone's geometric-rank ladder instead of reading the column. Zones are
// taken in frontier order until the sum of their upper-bound counts
// reaches k; each count is taken at the zone's own frontier, not at a
// shared cutoff, so the picked set is not guaranteed to hold every top-K
// row.
package rlteplan

import (
	"sort"

	"github.com/sneldb/sneldb-sub000/internal/event"
	"github.com/sneldb/sneldb-sub000/internal/zone/rlte"
)

// ZoneLadder pairs a candidate zone with the ladder loaded for it.
type ZoneLadder struct {
	SegmentID string
	ZoneID    uint32
	Ladder    *rlte.Ladder
}

// Picked is one zone the planner decided must be read, along with the
// row-count bounds implied by the cutoff at the time it was picked.
type Picked struct {
	SegmentID string
	ZoneID    uint32
	LowerBound uint32
	UpperBound uint32
}

// Plan walks zones in order of how extreme their frontier value is (most
// promising first) and accumulates upper-bound counts until the running
// total reaches k, per spec §4.6 steps 3-5. asc controls ORDER BY
// direction and must match how every ladder here was built.
func Plan(zones []ZoneLadder, k int, asc bool) []Picked {
	type ranked struct {
		zl       ZoneLadder
		frontier event.Value
		ok       bool
	}

	ranked_ := make([]ranked, 0, len(zones))
	for _, zl := range zones {
		fv, ok := zl.Ladder.FrontierValue()
		ranked_ = append(ranked_, ranked{zl: zl, frontier: fv, ok: ok})
	}

	sort.SliceStable(ranked_, func(i, j int) bool {
		if !ranked_[i].ok {
			return false
		}
		if !ranked_[j].ok {
			return true
		}
		c := ranked_[i].frontier.Compare(ranked_[j].frontier)
		if asc {
			return c < 0
		}
		return c > 0
	})

	var picked []Picked
	var running uint32
	for _, r := range ranked_ {
		if !r.ok {
			continue
		}
		if running >= uint32(k) {
			break
		}
		fv, _ := r.zl.Ladder.FrontierValue()
		lb, ub := r.zl.Ladder.BoundsAt(fv)
		picked = append(picked, Picked{
			SegmentID:  r.zl.SegmentID,
			ZoneID:     r.zl.ZoneID,
			LowerBound: lb,
			UpperBound: ub,
		})
		running += ub
	}
	return picked
}

// CutoffValue returns the threshold value at which the accumulated upper
// bound across picked zones first reaches k — the value the coordinator
// broadcasts back to shards for cross-shard cutoff reduction (spec §12
// supplement, grounded on the RLTE coordinator of the original source).
func CutoffValue(zones []ZoneLadder, k int, asc bool) (event.Value, bool) {
	picked := Plan(zones, k, asc)
	if len(picked) == 0 {
		return event.Value{}, false
	}
	last := picked[len(picked)-1]
	for _, zl := range zones {
		if zl.SegmentID == last.SegmentID && zl.ZoneID == last.ZoneID {
			return zl.Ladder.FrontierValue()
		}
	}
	return event.Value{}, false
}
