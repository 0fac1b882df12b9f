package segment

import (
	"os"

	"github.com/sneldb/sneldb-sub000/internal/zone"
	"github.com/sneldb/sneldb-sub000/internal/zone/calendar"
	"github.com/sneldb/sneldb-sub000/internal/zone/enumidx"
	"github.com/sneldb/sneldb-sub000/internal/zone/rlte"
	"github.com/sneldb/sneldb-sub000/internal/zone/xorfilter"
	"github.com/sneldb/sneldb-sub000/internal/zone/zti"
)

// The Write* helpers below are the flusher's on-disk assembly primitives
// (spec §4.3); kept in this package so the file-naming convention (paths.go)
// and the wire formats (slabs.go) stay next to each other.

func WriteXF(path string, f *xorfilter.Filter) error {
	return os.WriteFile(path, f.Bytes(), 0o644)
}

func WriteZXFSlab(path string, slab map[uint32]*xorfilter.Filter) error {
	return os.WriteFile(path, encodeZXFSlab(slab), 0o644)
}

func WriteEnumIndex(path string, idx *enumidx.Index) error {
	raw, err := idx.Marshal()
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

func WriteCalendarIndex(path string, idx *calendar.Index) error {
	raw, err := idx.Marshal()
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

func WriteZTISlab(path string, slab map[uint32]*zti.ZTI) error {
	raw, err := encodeZTISlab(slab)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

func WriteRLTESlab(path string, slab map[uint32]*rlte.Ladder) error {
	raw, err := encodeRLTESlab(slab)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

func WriteMeta(path string, m *zone.Meta) error {
	raw, err := jsonAPI.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

func WriteCatalog(path string, c *zone.Catalog) error {
	raw, err := jsonAPI.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}
