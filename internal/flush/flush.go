// Package flush implements the flusher: turning a sealed memtable into an
// atomically-installed immutable segment (spec §4.3).
package flush

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sneldb/sneldb-sub000/internal/event"
	"github.com/sneldb/sneldb-sub000/internal/memtable"
	"github.com/sneldb/sneldb-sub000/internal/metrics"
	"github.com/sneldb/sneldb-sub000/internal/schema"
	"github.com/sneldb/sneldb-sub000/internal/segment"
	"github.com/sneldb/sneldb-sub000/internal/xerrors"
	"github.com/sneldb/sneldb-sub000/internal/zone"
	"github.com/sneldb/sneldb-sub000/internal/zone/calendar"
	"github.com/sneldb/sneldb-sub000/internal/zone/enumidx"
	"github.com/sneldb/sneldb-sub000/internal/zone/rlte"
	"github.com/sneldb/sneldb-sub000/internal/zone/xorfilter"
	"github.com/sneldb/sneldb-sub000/internal/zone/zti"
)

// Flusher turns one sealed memtable snapshot into a segment directory.
type Flusher struct {
	SegmentsDir  string // shard's segments root
	SegmentID    string
	Registry     *schema.Registry
	EventPerZone int
	ZTIStride    uint32
	Location     *time.Location
}

// Flush runs the algorithm of spec §4.3 and atomically installs the
// result, or returns FlushFailed with the underlying cause and leaves no
// partial artefacts behind.
func (f *Flusher) Flush(snap *memtable.Snapshot) (err error) {
	start := time.Now()
	tmpDir := filepath.Join(f.SegmentsDir, "."+f.SegmentID+".tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return &xerrors.FlushFailed{Err: err}
	}
	defer func() {
		if err != nil {
			os.RemoveAll(tmpDir)
		}
	}()

	byUID := make(map[string][]*event.Event)
	for _, e := range snap.All() {
		byUID[e.UID] = append(byUID[e.UID], e)
	}

	for uid, rows := range byUID {
		sc, ok := f.Registry.GetSchemaByUID(uid)
		if !ok {
			return &xerrors.FlushFailed{Err: fmt.Errorf("unknown uid %q at flush time", uid)}
		}
		if err := f.flushEventType(tmpDir, sc, rows); err != nil {
			return &xerrors.FlushFailed{Err: err}
		}
	}

	finalDir := filepath.Join(f.SegmentsDir, f.SegmentID)
	if err := os.Rename(tmpDir, finalDir); err != nil {
		return &xerrors.FlushFailed{Err: err}
	}
	metrics.FlushDuration.Observe(time.Since(start).Seconds())
	return nil
}

func (f *Flusher) flushEventType(dir string, sc *schema.Schema, rows []*event.Event) error {
	zoneSize := f.EventPerZone
	if zoneSize <= 0 {
		zoneSize = 8192
	}
	numZones := (len(rows) + zoneSize - 1) / zoneSize
	if numZones == 0 {
		numZones = 1
	}

	rowCounts := make([]uint32, 0, numZones)
	for start := 0; start < len(rows); start += zoneSize {
		end := start + zoneSize
		if end > len(rows) {
			end = len(rows)
		}
		rowCounts = append(rowCounts, uint32(end-start))
	}
	if len(rowCounts) == 0 {
		rowCounts = []uint32{0}
	}

	columns := coreColumns()
	columns = append(columns, sc.Fields...)

	catalog := zone.NewCatalog()
	for _, col := range columns {
		if err := f.flushColumn(dir, sc, col, rows, rowCounts); err != nil {
			return err
		}
		kind := zone.IndexXF | zone.IndexZXF
		if col.IsEnum() {
			kind |= zone.IndexEnumBitmap
		}
		if col.Name == "timestamp" || col.Kind == schema.FieldDatetime {
			kind |= zone.IndexCalendar | zone.IndexZTI
		}
		if col.Kind != schema.FieldBinary {
			kind |= zone.IndexRLTE
		}
		catalog.Set(col.Name, kind)
	}

	if err := segment.WriteMeta(segment.ZonesPath(dir, sc.UID), &zone.Meta{RowCounts: rowCounts}); err != nil {
		return err
	}
	return segment.WriteCatalog(segment.CatalogPath(dir, sc.UID), catalog)
}

// coreColumns are the synthetic columns every event type carries (spec
// §3/§4.3): context_id, event_type uid, timestamp, event_id.
func coreColumns() []schema.Field {
	return []schema.Field{
		{Name: "context_id", Kind: schema.FieldString},
		{Name: "event_type", Kind: schema.FieldString},
		{Name: "timestamp", Kind: schema.FieldDatetime},
		{Name: "event_id", Kind: schema.FieldU64},
	}
}

func valueFor(col schema.Field, e *event.Event) event.Value {
	switch col.Name {
	case "context_id":
		return event.StringVal(e.ContextID)
	case "event_type":
		return event.StringVal(e.UID)
	case "timestamp":
		return event.DatetimeVal(e.Timestamp)
	case "event_id":
		return event.Uint64Val(e.EventID)
	default:
		if v, ok := e.Payload[col.Name]; ok {
			return v
		}
		return event.Null()
	}
}

func valueKind(col schema.Field) event.Kind {
	switch col.Kind {
	case schema.FieldInt:
		return event.KindInt
	case schema.FieldU64:
		return event.KindUint64
	case schema.FieldFloat:
		return event.KindFloat
	case schema.FieldBool:
		return event.KindBool
	case schema.FieldDatetime:
		return event.KindDatetime
	case schema.FieldBinary:
		return event.KindBinary
	default:
		return event.KindString // string and enum both ride the string column
	}
}

func (f *Flusher) flushColumn(dir string, sc *schema.Schema, col schema.Field, rows []*event.Event, rowCounts []uint32) error {
	kind := valueKind(col)
	values := make([]event.Value, len(rows))
	for i, e := range rows {
		values[i] = valueFor(col, e)
	}

	if err := segment.WriteColumn(segment.ColumnPath(dir, sc.UID, col.Name), kind, values); err != nil {
		return err
	}

	digests := make([]uint64, 0, len(values))
	seen := make(map[uint64]struct{}, len(values))
	for _, v := range values {
		if v.IsNull() {
			continue
		}
		d := digestValue(v)
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		digests = append(digests, d)
	}
	xf, err := xorfilter.Build(digests)
	if err != nil {
		return err
	}
	if err := segment.WriteXF(segment.XFPath(dir, sc.UID, col.Name), xf); err != nil {
		return err
	}

	zxfSlab := make(map[uint32]*xorfilter.Filter, len(rowCounts))
	var enumIdx *enumidx.Index
	if col.IsEnum() {
		enumIdx = enumidx.New(len(col.Variants))
	}
	var calIdx *calendar.Index
	ztiSlab := make(map[uint32]*zti.ZTI, len(rowCounts))
	rlteSlab := make(map[uint32]*rlte.Ladder, len(rowCounts))
	isTemporal := col.Name == "timestamp" || col.Kind == schema.FieldDatetime
	if isTemporal {
		calIdx = calendar.New(f.Location)
	}

	start := uint32(0)
	for zoneID, count := range rowCounts {
		end := start + count
		zoneValues := values[start:end]

		zoneSeen := make(map[uint64]struct{}, len(zoneValues))
		var zoneDigests []uint64
		for i, v := range zoneValues {
			if v.IsNull() {
				continue
			}
			d := digestValue(v)
			if _, ok := zoneSeen[d]; !ok {
				zoneSeen[d] = struct{}{}
				zoneDigests = append(zoneDigests, d)
			}
			if enumIdx != nil {
				variantIdx := col.VariantIndex(v.Str)
				if variantIdx >= 0 {
					if err := enumIdx.Set(variantIdx, start+uint32(i)); err != nil {
						return err
					}
				}
			}
			if isTemporal {
				if ts, ok := v.AsNumeric(); ok {
					calIdx.Touch(uint64(ts), uint32(zoneID))
				}
			}
		}
		zf, err := xorfilter.Build(zoneDigests)
		if err != nil {
			return err
		}
		zxfSlab[uint32(zoneID)] = zf

		if isTemporal {
			tsVals := make([]uint64, 0, len(zoneValues))
			for _, v := range zoneValues {
				if ts, ok := v.AsNumeric(); ok {
					tsVals = append(tsVals, uint64(ts))
				}
			}
			ztiSlab[uint32(zoneID)] = zti.Build(tsVals, f.ZTIStride)
		}

		if col.Kind != schema.FieldBinary {
			asc := false
			rlteSlab[uint32(zoneID)] = rlte.Build(append([]event.Value(nil), zoneValues...), asc)
		}
		start = end
	}

	if err := segment.WriteZXFSlab(segment.ZXFPath(dir, sc.UID, col.Name), zxfSlab); err != nil {
		return err
	}
	if enumIdx != nil {
		if err := segment.WriteEnumIndex(segment.EBMPath(dir, sc.UID, col.Name), enumIdx); err != nil {
			return err
		}
	}
	if isTemporal {
		if err := segment.WriteCalendarIndex(segment.CalPath(dir, sc.UID, col.Name), calIdx); err != nil {
			return err
		}
		if err := segment.WriteZTISlab(segment.TFIPath(dir, sc.UID, col.Name), ztiSlab); err != nil {
			return err
		}
	}
	if col.Kind != schema.FieldBinary {
		if err := segment.WriteRLTESlab(segment.RLTEPath(dir, sc.UID, col.Name), rlteSlab); err != nil {
			return err
		}
	}
	return nil
}

func digestValue(v event.Value) uint64 {
	switch v.Kind {
	case event.KindString:
		return xorfilter.HashBytes([]byte(v.Str))
	case event.KindBinary:
		return xorfilter.HashBytes(v.Bin)
	default:
		if f, ok := v.AsNumeric(); ok {
			return xorfilter.HashBytes([]byte(fmt.Sprintf("%v", f)))
		}
		return 0
	}
}
