// Package calendar implements the temporal calendar index (.cal, spec
// §4.4): for a timestamped column, hour and day buckets mapping to the
// set of zones whose rows touch that bucket. Built on the same
// roaring-bitmap idiom as enumidx; grounded identically (pack's
// stage_log_index.go bucket->roaring(ids) shape).
package calendar

import (
	"bytes"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
)

// Index maps hour and day bucket keys (Unix bucket-start seconds) to the
// set of zone ids whose rows include at least one timestamp in that
// bucket.
type Index struct {
	Hour map[int64]*roaring.Bitmap
	Day  map[int64]*roaring.Bitmap
	loc  *time.Location
}

func New(loc *time.Location) *Index {
	if loc == nil {
		loc = time.UTC
	}
	return &Index{Hour: map[int64]*roaring.Bitmap{}, Day: map[int64]*roaring.Bitmap{}, loc: loc}
}

func hourBucket(ts uint64, loc *time.Location) int64 {
	t := time.Unix(int64(ts), 0).In(loc)
	h := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, loc)
	return h.Unix()
}

func dayBucket(ts uint64, loc *time.Location) int64 {
	t := time.Unix(int64(ts), 0).In(loc)
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return d.Unix()
}

// Touch records that zoneID contains a row with timestamp ts.
func (idx *Index) Touch(ts uint64, zoneID uint32) {
	hb := hourBucket(ts, idx.loc)
	if idx.Hour[hb] == nil {
		idx.Hour[hb] = roaring.New()
	}
	idx.Hour[hb].Add(zoneID)

	db := dayBucket(ts, idx.loc)
	if idx.Day[db] == nil {
		idx.Day[db] = roaring.New()
	}
	idx.Day[db].Add(zoneID)
}

// ZonesForRange returns the union of zones touched by any hour bucket
// overlapping [lo, hi] inclusive; falls back to day buckets for ranges
// spanning more than maxHourSpan hours (two weeks) to keep the bucket
// walk small.
func (idx *Index) ZonesForRange(lo, hi uint64) *roaring.Bitmap {
	out := roaring.New()
	if hi < lo {
		return out
	}
	const maxHourSpan = 24 * 14 // two weeks of hours before switching to day buckets
	span := hi - lo
	if span/3600 <= maxHourSpan {
		for b := hourBucket(lo, idx.loc); b <= int64(hi); b += 3600 {
			if z, ok := idx.Hour[b]; ok {
				out.Or(z)
			}
		}
		return out
	}
	for b := dayBucket(lo, idx.loc); b <= int64(hi); b += 86400 {
		if z, ok := idx.Day[b]; ok {
			out.Or(z)
		}
	}
	return out
}

// ZonesEqual returns zones touching the single bucket containing ts.
func (idx *Index) ZonesEqual(ts uint64) *roaring.Bitmap {
	if z, ok := idx.Hour[hourBucket(ts, idx.loc)]; ok {
		return z.Clone()
	}
	return roaring.New()
}

// ZonesNotEqual is the full zone set (passed in by the caller, who knows
// the segment's total zone count) minus ZonesEqual(ts).
func (idx *Index) ZonesNotEqual(ts uint64, allZones *roaring.Bitmap) *roaring.Bitmap {
	out := allZones.Clone()
	out.AndNot(idx.ZonesEqual(ts))
	return out
}

// persisted wire shape: count, then repeated (bucketKey, bitmapBytes).
func (idx *Index) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	if err := marshalMap(&buf, idx.Hour); err != nil {
		return nil, err
	}
	if err := marshalMap(&buf, idx.Day); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func marshalMap(buf *bytes.Buffer, m map[int64]*roaring.Bitmap) error {
	writeUvarint(buf, uint64(len(m)))
	for k, v := range m {
		writeVarint(buf, k)
		raw, err := v.ToBytes()
		if err != nil {
			return err
		}
		writeUvarint(buf, uint64(len(raw)))
		buf.Write(raw)
	}
	return nil
}

func Unmarshal(data []byte, loc *time.Location) (*Index, error) {
	r := bytes.NewReader(data)
	idx := New(loc)
	var err error
	idx.Hour, err = unmarshalMap(r)
	if err != nil {
		return nil, err
	}
	idx.Day, err = unmarshalMap(r)
	if err != nil {
		return nil, err
	}
	return idx, nil
}

func unmarshalMap(r *bytes.Reader) (map[int64]*roaring.Bitmap, error) {
	n, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]*roaring.Bitmap, n)
	for i := uint64(0); i < n; i++ {
		k, err := readVarint(r)
		if err != nil {
			return nil, err
		}
		l, err := readUvarint(r)
		if err != nil {
			return nil, err
		}
		raw := make([]byte, l)
		if _, err := readFull(r, raw); err != nil {
			return nil, err
		}
		b := roaring.New()
		if _, err := b.FromBuffer(raw); err != nil {
			return nil, err
		}
		out[k] = b
	}
	return out, nil
}
