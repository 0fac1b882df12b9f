// Package query implements the per-shard query plan and executor (spec
// §4.7): resolving candidate zones through the filter and RLTE planners,
// loading only the columns a projection needs, and hydrating matching
// rows.
package query

import (
	"fmt"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/sneldb/sneldb-sub000/internal/event"
	"github.com/sneldb/sneldb-sub000/internal/filter"
	"github.com/sneldb/sneldb-sub000/internal/schema"
	"github.com/sneldb/sneldb-sub000/internal/segment"
	"github.com/sneldb/sneldb-sub000/internal/zone"
	"github.com/sneldb/sneldb-sub000/internal/zone/xorfilter"
)

// SegmentPruner adapts one (segment, event type) pair to filter.ZonePruner,
// dispatching each ColumnPredicate to whichever index the segment's
// catalog says is available for that column, falling back to "every zone
// is a candidate" when it isn't (spec §7: IndexMissing degrades scan
// width, it never fails the query).
type SegmentPruner struct {
	Seg      *segment.Segment
	Schema   *schema.Schema
	Location *time.Location
}

func (p *SegmentPruner) CandidateZones(pred *filter.ColumnPredicate, zoneCount int) (*roaring.Bitmap, bool) {
	if pred.Values != nil {
		// IN: the union of each listed value's equality candidates.
		out := roaring.New()
		for _, v := range pred.Values {
			single := *pred
			single.Op, single.Value, single.Values = filter.OpEq, v, nil
			zones, ok := p.CandidateZones(&single, zoneCount)
			if !ok {
				return nil, false
			}
			out.Or(zones)
		}
		return out, true
	}
	if pred.Column == "event_type" {
		if pred.Value.Str == p.Schema.UID {
			return filter.FullZoneSet(zoneCount), true
		}
		return roaring.New(), true
	}

	cat, ok := p.Seg.Catalog(p.Schema.UID)
	if !ok {
		return nil, false
	}

	if pred.IsEqLike() && (pred.Column == "timestamp" || p.fieldKind(pred.Column) == schema.FieldDatetime) {
		if cat.Has(pred.Column, zone.IndexCalendar) {
			if zones, ok := p.viaCalendar(pred); ok {
				return zones, true
			}
		}
	}

	if field, hasField := p.Schema.Field(pred.Column); hasField && field.IsEnum() && cat.Has(pred.Column, zone.IndexEnumBitmap) {
		if zones, ok := p.viaEnum(pred, field, zoneCount); ok {
			return zones, true
		}
	}

	if pred.IsEqLike() && cat.Has(pred.Column, zone.IndexZXF) {
		if zones, ok := p.viaZXF(pred, zoneCount); ok {
			return zones, true
		}
	}

	return nil, false
}

func (p *SegmentPruner) fieldKind(column string) schema.FieldKind {
	if column == "timestamp" {
		return schema.FieldDatetime
	}
	if f, ok := p.Schema.Field(column); ok {
		return f.Kind
	}
	return schema.FieldString
}

func (p *SegmentPruner) viaCalendar(pred *filter.ColumnPredicate) (*roaring.Bitmap, bool) {
	cal, err := p.Seg.LoadCalendar(p.Schema.UID, pred.Column, p.Location)
	if err != nil {
		return nil, false
	}
	m, _ := p.Seg.Meta(p.Schema.UID)
	zoneCount := 0
	if m != nil {
		zoneCount = m.ZoneCount()
	}

	switch pred.Op {
	case filter.OpEq:
		ts, ok := pred.Value.AsNumeric()
		if !ok {
			return nil, false
		}
		return cal.ZonesEqual(uint64(ts)), true
	case filter.OpNeq:
		ts, ok := pred.Value.AsNumeric()
		if !ok {
			return nil, false
		}
		return cal.ZonesNotEqual(uint64(ts), filter.FullZoneSet(zoneCount)), true
	case filter.OpGte, filter.OpGt:
		ts, ok := pred.Value.AsNumeric()
		if !ok {
			return nil, false
		}
		lo := uint64(ts)
		if pred.Op == filter.OpGt {
			lo++
		}
		return cal.ZonesForRange(lo, ^uint64(0)), true
	case filter.OpLte, filter.OpLt:
		ts, ok := pred.Value.AsNumeric()
		if !ok {
			return nil, false
		}
		hi := uint64(ts)
		if pred.Op == filter.OpLt && hi > 0 {
			hi--
		}
		return cal.ZonesForRange(0, hi), true
	default:
		return nil, false
	}
}

func (p *SegmentPruner) viaEnum(pred *filter.ColumnPredicate, field schema.Field, zoneCount int) (*roaring.Bitmap, bool) {
	idx, err := p.Seg.LoadEnum(p.Schema.UID, pred.Column)
	if err != nil {
		return nil, false
	}
	m, ok := p.Seg.Meta(p.Schema.UID)
	if !ok {
		return nil, false
	}

	if pred.Op != filter.OpEq {
		// NEQ would need a per-zone "every row is this variant" check to
		// prune safely; no index here prunes it, so it falls back to a
		// full scan.
		return nil, false
	}

	variantIdx := field.VariantIndex(pred.Value.Str)
	if variantIdx < 0 {
		return roaring.New(), true
	}

	out := roaring.New()
	for z := 0; z < zoneCount; z++ {
		start, end := m.RowRange(z)
		if idx.HasAnyInZone(variantIdx, start, end) {
			out.Add(uint32(z))
		}
	}
	return out, true
}

func (p *SegmentPruner) viaZXF(pred *filter.ColumnPredicate, zoneCount int) (*roaring.Bitmap, bool) {
	digest, ok := digestOf(pred.Value)
	if !ok {
		return nil, false
	}
	out := roaring.New()
	for z := 0; z < zoneCount; z++ {
		zf, err := p.Seg.LoadZXF(p.Schema.UID, pred.Column, uint32(z))
		if err != nil {
			return nil, false
		}
		present := zf.Contains(digest)
		if pred.Op == filter.OpEq && present {
			out.Add(uint32(z))
		}
		if pred.Op == filter.OpNeq {
			// the filter can't rule out "some other row in the zone differs",
			// so NEQ is not pruned here (nor by the enum path above).
			return nil, false
		}
	}
	return out, true
}

// digestOf must match flush.digestValue exactly: both sides build and
// probe the same whole-segment and per-zone XOR filters.
func digestOf(v event.Value) (uint64, bool) {
	switch v.Kind {
	case event.KindString:
		return xorfilter.HashBytes([]byte(v.Str)), true
	case event.KindBinary:
		return xorfilter.HashBytes(v.Bin), true
	default:
		if f, ok := v.AsNumeric(); ok {
			return xorfilter.HashBytes([]byte(fmt.Sprintf("%v", f))), true
		}
		return 0, false
	}
}
