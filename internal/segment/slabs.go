package segment

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/sneldb/sneldb-sub000/internal/zone/rlte"
	"github.com/sneldb/sneldb-sub000/internal/zone/xorfilter"
	"github.com/sneldb/sneldb-sub000/internal/zone/zti"
)

// encodeZXFSlab/decodeZXFSlab frame the per-zone XOR filter slab (.zxf):
// count, then (zoneID, length, filter bytes) repeated.
func encodeZXFSlab(slab map[uint32]*xorfilter.Filter) []byte {
	var buf bytes.Buffer
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(slab)))
	buf.Write(hdr[:])
	for zoneID, f := range slab {
		var idBuf [4]byte
		binary.LittleEndian.PutUint32(idBuf[:], zoneID)
		buf.Write(idBuf[:])
		raw := f.Bytes()
		var lb [4]byte
		binary.LittleEndian.PutUint32(lb[:], uint32(len(raw)))
		buf.Write(lb[:])
		buf.Write(raw)
	}
	return buf.Bytes()
}

func decodeZXFSlab(data []byte) (map[uint32]*xorfilter.Filter, error) {
	r := bytes.NewReader(data)
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(hdr[:])
	out := make(map[uint32]*xorfilter.Filter, n)
	for i := uint32(0); i < n; i++ {
		var idBuf, lb [4]byte
		if _, err := io.ReadFull(r, idBuf[:]); err != nil {
			return nil, err
		}
		if _, err := io.ReadFull(r, lb[:]); err != nil {
			return nil, err
		}
		raw := make([]byte, binary.LittleEndian.Uint32(lb[:]))
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, err
		}
		f, err := xorfilter.FromBytes(raw)
		if err != nil {
			return nil, err
		}
		out[binary.LittleEndian.Uint32(idBuf[:])] = f
	}
	return out, nil
}

// ZTI and RLTE slabs are less hot-path than XOR filters, so they're
// serialized with jsoniter (already a wired dependency) instead of a
// second hand-rolled binary format.

func encodeZTISlab(slab map[uint32]*zti.ZTI) ([]byte, error) {
	return jsonAPI.Marshal(slab)
}

func decodeZTISlab(data []byte) (map[uint32]*zti.ZTI, error) {
	var out map[uint32]*zti.ZTI
	if err := jsonAPI.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func encodeRLTESlab(slab map[uint32]*rlte.Ladder) ([]byte, error) {
	return jsonAPI.Marshal(slab)
}

func decodeRLTESlab(data []byte) (map[uint32]*rlte.Ladder, error) {
	var out map[uint32]*rlte.Ladder
	if err := jsonAPI.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
