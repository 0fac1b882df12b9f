package segment

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/klauspost/compress/s2"

	"github.com/sneldb/sneldb-sub000/internal/event"
)

// WriteColumn encodes one column's values in row order and writes them,
// s2-compressed, to path (spec §4.3 step 3; §6's "<uid>_<field>.col").
// Numeric/bool/datetime values are fixed-width; string/binary are
// length-prefixed, matching spec §6.
func WriteColumn(path string, kind event.Kind, values []event.Value) error {
	var raw bytes.Buffer
	for _, v := range values {
		if err := encodeValue(&raw, kind, v); err != nil {
			return err
		}
	}
	compressed := s2.Encode(nil, raw.Bytes())
	return os.WriteFile(path, compressed, 0o644)
}

func encodeValue(buf *bytes.Buffer, kind event.Kind, v event.Value) error {
	// one presence byte (1 = present, 0 = null) precedes every value so
	// the fixed-width columns can still represent implicit nulls.
	if v.IsNull() {
		buf.WriteByte(0)
	} else {
		buf.WriteByte(1)
	}
	switch kind {
	case event.KindString, event.KindBinary:
		var b []byte
		if kind == event.KindString {
			b = []byte(v.Str)
		} else {
			b = v.Bin
		}
		var lb [4]byte
		binary.LittleEndian.PutUint32(lb[:], uint32(len(b)))
		buf.Write(lb[:])
		buf.Write(b)
	case event.KindInt:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(v.I))
		buf.Write(b[:])
	case event.KindUint64, event.KindDatetime:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], v.U)
		buf.Write(b[:])
	case event.KindFloat:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(v.F))
		buf.Write(b[:])
	case event.KindBool:
		if v.B {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	default:
		return fmt.Errorf("segment: unsupported column kind %v", kind)
	}
	return nil
}

// Column is a fully decoded in-memory column, used by the executor after
// loading a zone's rows (spec §4.7 step 1: "Load only the projected
// columns for the zone").
type Column struct {
	Kind   event.Kind
	Values []event.Value
}

// ReadColumn decompresses and decodes a column file in full; callers
// needing only one zone's rows should slice Values[start:end] — column
// files are small enough per zone that whole-file decode is the
// teacher's own approach to columnar reads at this scale.
func ReadColumn(path string, kind event.Kind) (*Column, error) {
	compressed, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw, err := s2.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("segment: corrupt column %s: %w", path, err)
	}
	r := bytes.NewReader(raw)
	col := &Column{Kind: kind}
	for r.Len() > 0 {
		v, err := decodeValue(r, kind)
		if err != nil {
			return nil, err
		}
		col.Values = append(col.Values, v)
	}
	return col, nil
}

func decodeValue(r *bytes.Reader, kind event.Kind) (event.Value, error) {
	present, err := r.ReadByte()
	if err != nil {
		return event.Value{}, err
	}
	if present == 0 {
		switch kind {
		case event.KindString, event.KindBinary:
			var lb [4]byte
			if _, err := io.ReadFull(r, lb[:]); err != nil {
				return event.Value{}, err
			}
			n := binary.LittleEndian.Uint32(lb[:])
			skip := make([]byte, n)
			if _, err := io.ReadFull(r, skip); err != nil {
				return event.Value{}, err
			}
		case event.KindBool:
			if _, err := r.ReadByte(); err != nil {
				return event.Value{}, err
			}
		default:
			var b [8]byte
			if _, err := io.ReadFull(r, b[:]); err != nil {
				return event.Value{}, err
			}
		}
		return event.Null(), nil
	}
	switch kind {
	case event.KindString, event.KindBinary:
		var lb [4]byte
		if _, err := io.ReadFull(r, lb[:]); err != nil {
			return event.Value{}, err
		}
		n := binary.LittleEndian.Uint32(lb[:])
		b := make([]byte, n)
		if _, err := io.ReadFull(r, b); err != nil {
			return event.Value{}, err
		}
		if kind == event.KindString {
			return event.StringVal(string(b)), nil
		}
		return event.BinaryVal(b), nil
	case event.KindInt:
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return event.Value{}, err
		}
		return event.IntVal(int64(binary.LittleEndian.Uint64(b[:]))), nil
	case event.KindUint64:
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return event.Value{}, err
		}
		return event.Uint64Val(binary.LittleEndian.Uint64(b[:])), nil
	case event.KindDatetime:
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return event.Value{}, err
		}
		return event.DatetimeVal(binary.LittleEndian.Uint64(b[:])), nil
	case event.KindFloat:
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return event.Value{}, err
		}
		return event.FloatVal(math.Float64frombits(binary.LittleEndian.Uint64(b[:]))), nil
	case event.KindBool:
		bb, err := r.ReadByte()
		if err != nil {
			return event.Value{}, err
		}
		return event.BoolVal(bb != 0), nil
	default:
		return event.Value{}, fmt.Errorf("segment: unsupported column kind %v", kind)
	}
}
