package segment

import (
	"fmt"
	"os"
	ratomic "sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/sneldb/sneldb-sub000/internal/event"
	"github.com/sneldb/sneldb-sub000/internal/schema"
	"github.com/sneldb/sneldb-sub000/internal/xerrors"
	"github.com/sneldb/sneldb-sub000/internal/zone"
	"github.com/sneldb/sneldb-sub000/internal/zone/calendar"
	"github.com/sneldb/sneldb-sub000/internal/zone/enumidx"
	"github.com/sneldb/sneldb-sub000/internal/zone/rlte"
	"github.com/sneldb/sneldb-sub000/internal/zone/xorfilter"
	"github.com/sneldb/sneldb-sub000/internal/zone/zti"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Segment is a handle onto one immutable on-disk segment directory (spec
// §3). Segments are ordered by ID (newer sorts later) and owned by the
// shard that created them; deletion is blocked while any reader holds a
// Ref (refcount by snapshot in flight, spec §3).
type Segment struct {
	ID  string
	Dir string

	refs ratomic.Int64

	metaByUID    map[string]*zone.Meta
	catalogByUID map[string]*zone.Catalog
}

// Open loads a segment's lightweight metadata (zone counts, catalogs) for
// every uid present; index files themselves are loaded lazily per column
// on first access, since a query rarely touches every column.
func Open(dir, id string, reg *schema.Registry) (*Segment, error) {
	s := &Segment{
		ID:           id,
		Dir:          dir,
		metaByUID:    map[string]*zone.Meta{},
		catalogByUID: map[string]*zone.Catalog{},
	}
	for _, sc := range reg.IterSchemas() {
		metaPath := ZonesPath(dir, sc.UID)
		data, err := os.ReadFile(metaPath)
		if err != nil {
			if os.IsNotExist(err) {
				continue // event type has no rows in this segment
			}
			return nil, &xerrors.Io{Op: "open segment meta", Err: err}
		}
		var m zone.Meta
		if err := jsonAPI.Unmarshal(data, &m); err != nil {
			return nil, &xerrors.Corrupt{Segment: id, Detail: fmt.Sprintf("zones meta for %s: %v", sc.UID, err)}
		}
		s.metaByUID[sc.UID] = &m

		catData, err := os.ReadFile(CatalogPath(dir, sc.UID))
		if err != nil {
			return nil, &xerrors.IndexMissing{Segment: id, Column: "*", Kind: "catalog"}
		}
		var c zone.Catalog
		if err := jsonAPI.Unmarshal(catData, &c); err != nil {
			return nil, &xerrors.Corrupt{Segment: id, Detail: fmt.Sprintf("catalog for %s: %v", sc.UID, err)}
		}
		s.catalogByUID[sc.UID] = &c
	}
	return s, nil
}

// Acquire/Release implement the reader refcount that blocks deletion
// while a query's snapshot is still scanning this segment.
func (s *Segment) Acquire() { s.refs.Add(1) }
func (s *Segment) Release() { s.refs.Add(-1) }
func (s *Segment) InUse() bool { return s.refs.Load() > 0 }

func (s *Segment) HasUID(uid string) bool {
	_, ok := s.metaByUID[uid]
	return ok
}

func (s *Segment) Meta(uid string) (*zone.Meta, bool) {
	m, ok := s.metaByUID[uid]
	return m, ok
}

func (s *Segment) Catalog(uid string) (*zone.Catalog, bool) {
	c, ok := s.catalogByUID[uid]
	return c, ok
}

func (s *Segment) ZoneCount(uid string) int {
	if m, ok := s.metaByUID[uid]; ok {
		return m.ZoneCount()
	}
	return 0
}

// LoadXF/LoadZXF/LoadEnum/LoadCalendar/LoadZTI/LoadRLTE load one column's
// index lazily; callers should treat a not-exist error as IndexMissing
// (spec §7) and fall back to a broader scan rather than failing the
// query outright.

func (s *Segment) LoadXF(uid, field string) (*xorfilter.Filter, error) {
	data, err := os.ReadFile(XFPath(s.Dir, uid, field))
	if err != nil {
		return nil, &xerrors.IndexMissing{Segment: s.ID, Column: field, Kind: "xf"}
	}
	f, err := xorfilter.FromBytes(data)
	if err != nil {
		return nil, &xerrors.Corrupt{Segment: s.ID, Detail: err.Error()}
	}
	return f, nil
}

// LoadZXF loads the per-zone filter slab and returns the filter for one
// zone only (the slab is small enough that re-reading the whole file per
// zone lookup is acceptable; callers scanning many zones should cache the
// slab themselves).
func (s *Segment) LoadZXF(uid, field string, zoneID uint32) (*xorfilter.Filter, error) {
	slab, err := s.loadZXFSlab(uid, field)
	if err != nil {
		return nil, err
	}
	f, ok := slab[zoneID]
	if !ok {
		return nil, &xerrors.IndexMissing{Segment: s.ID, Column: field, Kind: "zxf"}
	}
	return f, nil
}

func (s *Segment) loadZXFSlab(uid, field string) (map[uint32]*xorfilter.Filter, error) {
	data, err := os.ReadFile(ZXFPath(s.Dir, uid, field))
	if err != nil {
		return nil, &xerrors.IndexMissing{Segment: s.ID, Column: field, Kind: "zxf"}
	}
	return decodeZXFSlab(data)
}

func (s *Segment) LoadEnum(uid, field string) (*enumidx.Index, error) {
	data, err := os.ReadFile(EBMPath(s.Dir, uid, field))
	if err != nil {
		return nil, &xerrors.IndexMissing{Segment: s.ID, Column: field, Kind: "ebm"}
	}
	idx, err := enumidx.Unmarshal(data)
	if err != nil {
		return nil, &xerrors.Corrupt{Segment: s.ID, Detail: err.Error()}
	}
	return idx, nil
}

func (s *Segment) LoadCalendar(uid, field string, loc *time.Location) (*calendar.Index, error) {
	data, err := os.ReadFile(CalPath(s.Dir, uid, field))
	if err != nil {
		return nil, &xerrors.IndexMissing{Segment: s.ID, Column: field, Kind: "cal"}
	}
	idx, err := calendar.Unmarshal(data, loc)
	if err != nil {
		return nil, &xerrors.Corrupt{Segment: s.ID, Detail: err.Error()}
	}
	return idx, nil
}

func (s *Segment) LoadZTI(uid, field string) (map[uint32]*zti.ZTI, error) {
	data, err := os.ReadFile(TFIPath(s.Dir, uid, field))
	if err != nil {
		return nil, &xerrors.IndexMissing{Segment: s.ID, Column: field, Kind: "tfi"}
	}
	return decodeZTISlab(data)
}

func (s *Segment) LoadRLTE(uid, field string) (map[uint32]*rlte.Ladder, error) {
	data, err := os.ReadFile(RLTEPath(s.Dir, uid, field))
	if err != nil {
		return nil, &xerrors.IndexMissing{Segment: s.ID, Column: field, Kind: "rlte"}
	}
	return decodeRLTESlab(data)
}

func (s *Segment) LoadColumn(uid, field string, kind event.Kind) (*Column, error) {
	col, err := ReadColumn(ColumnPath(s.Dir, uid, field), kind)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &xerrors.IndexMissing{Segment: s.ID, Column: field, Kind: "col"}
		}
		return nil, &xerrors.Corrupt{Segment: s.ID, Detail: err.Error()}
	}
	return col, nil
}
