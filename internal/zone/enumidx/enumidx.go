// Package enumidx implements the enum bitmap index (.ebm, spec §4.4): for
// each enum column, one roaring bitmap per variant holding the row
// indexes that carry that variant. Grounded on the bucket->roaring(ids)
// shape used across the retrieval pack for log/zone indexes (e.g.
// other_examples' stage_log_index.go).
package enumidx

import (
	"bytes"
	"fmt"
	"io"

	"github.com/RoaringBitmap/roaring/v2"
)

// Index holds one bitmap per variant index (persisted variant order,
// spec §4.1: "Enum variants are order-sensitive").
type Index struct {
	Variants []*roaring.Bitmap
}

func New(numVariants int) *Index {
	idx := &Index{Variants: make([]*roaring.Bitmap, numVariants)}
	for i := range idx.Variants {
		idx.Variants[i] = roaring.New()
	}
	return idx
}

// Set records that row rowIdx holds variantIdx. Spec invariant 8: exactly
// one variant bitmap contains the row index; callers must not call Set
// twice for the same row with different variants.
func (idx *Index) Set(variantIdx int, rowIdx uint32) error {
	if variantIdx < 0 || variantIdx >= len(idx.Variants) {
		return fmt.Errorf("enumidx: variant index %d out of range (%d variants)", variantIdx, len(idx.Variants))
	}
	idx.Variants[variantIdx].Add(rowIdx)
	return nil
}

// RowsWithVariant returns the bitmap of rows holding variantIdx (equality
// and membership-test use this directly instead of reading the raw
// column, per spec §4.4/§4.7 and scenario S6).
func (idx *Index) RowsWithVariant(variantIdx int) *roaring.Bitmap {
	if variantIdx < 0 || variantIdx >= len(idx.Variants) {
		return roaring.New()
	}
	return idx.Variants[variantIdx]
}

// RowsNotVariant is the NEQ complement: union of every other variant's
// bitmap, computed directly rather than by scanning the raw column.
func (idx *Index) RowsNotVariant(variantIdx int) *roaring.Bitmap {
	out := roaring.New()
	for i, b := range idx.Variants {
		if i == variantIdx {
			continue
		}
		out.Or(b)
	}
	return out
}

// HasAnyInZone reports whether variantIdx has at least one set bit within
// [zoneStart, zoneEnd) — used to decide whether a zone is a candidate.
func (idx *Index) HasAnyInZone(variantIdx int, zoneStart, zoneEnd uint32) bool {
	if variantIdx < 0 || variantIdx >= len(idx.Variants) {
		return false
	}
	b := idx.Variants[variantIdx]
	it := b.Iterator()
	it.AdvanceIfNeeded(zoneStart)
	return it.HasNext() && it.PeekNext() < zoneEnd
}

// Marshal/Unmarshal give the flusher a compact .ebm representation: one
// length-prefixed roaring serialization per variant, in order.
func (idx *Index) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	writeUvarint(&buf, uint64(len(idx.Variants)))
	for _, b := range idx.Variants {
		raw, err := b.ToBytes()
		if err != nil {
			return nil, err
		}
		writeUvarint(&buf, uint64(len(raw)))
		buf.Write(raw)
	}
	return buf.Bytes(), nil
}

func Unmarshal(data []byte) (*Index, error) {
	r := bytes.NewReader(data)
	n, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	idx := &Index{Variants: make([]*roaring.Bitmap, n)}
	for i := range idx.Variants {
		l, err := readUvarint(r)
		if err != nil {
			return nil, err
		}
		raw := make([]byte, l)
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, err
		}
		b := roaring.New()
		if _, err := b.FromBuffer(raw); err != nil {
			return nil, err
		}
		idx.Variants[i] = b
	}
	return idx, nil
}
