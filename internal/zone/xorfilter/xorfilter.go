// Package xorfilter implements the compact probabilistic membership
// filter backing the engine's .xf (segment-wide) and .zxf (per-zone)
// indexes (spec §4.4). It is the peel-and-assign XOR-filter construction
// (Graf & Lemire, "Xor Filters: Faster and Smaller Than Bloom and Cuckoo
// Filters"), hand-built because no library in the retrieval pack
// implements this specific algorithm (see DESIGN.md). Zero false
// negatives; a small, tunable false-positive rate for non-members.
package xorfilter

import (
	"errors"
	"math/bits"

	xxhash "github.com/OneOfOne/xxhash"
)

// ErrConstructionFailed is returned when peeling could not place every
// key after the maximum number of seed retries; practically unreachable
// for realistic load factors (1.23x overcapacity) but kept explicit per
// the engine's fail-loud error policy.
var ErrConstructionFailed = errors.New("xorfilter: construction failed after retries")

// Filter is an immutable 8-bit-fingerprint XOR filter.
type Filter struct {
	seed         uint64
	blockLength  uint32
	fingerprints []uint8
}

// keyHash is the 64-bit digest a caller derives for one distinct value;
// callers hash their own domain values (strings, numeric encodings) down
// to this before calling Build, so the filter never needs to know the
// value's Go type.
type keyHash = uint64

// HashBytes derives the digest Build/Contains expect from an arbitrary
// byte representation of a column value.
func HashBytes(b []byte) uint64 { return xxhash.Checksum64S(b, 0) }

func mix(h, seed uint64) uint64 {
	h ^= seed
	h ^= h >> 33
	h *= 0xff51afd7ed558ccd
	h ^= h >> 33
	h *= 0xc4ceb9fe1a85ec53
	h ^= h >> 33
	return h
}

func (f *Filter) hashIndexes(h keyHash) (h0, h1, h2 uint32, fp uint8) {
	m := mix(h, f.seed)
	bl := uint64(f.blockLength)
	h0 = uint32(m % bl)
	h1 = uint32(bl + (m>>21)%bl)
	h2 = uint32(2*bl + (m>>42)%bl)
	fp = uint8(bits.RotateLeft64(m, 32))
	return
}

// Build constructs a filter over a set of distinct key digests. Caller
// must dedupe; duplicate digests make peeling impossible to converge
// cleanly and are rejected.
func Build(digests []uint64) (*Filter, error) {
	n := len(digests)
	if n == 0 {
		return &Filter{blockLength: 1, fingerprints: make([]uint8, 3)}, nil
	}
	capacity := uint32(float64(n)*1.23) + 32
	blockLength := (capacity + 2) / 3
	arraySize := blockLength * 3

	const maxAttempts = 100
	seed := uint64(0x9E3779B97F4A7C15)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		f := &Filter{seed: seed, blockLength: blockLength, fingerprints: make([]uint8, arraySize)}

		type slot struct {
			count uint32
			xor   uint64
		}
		slots := make([]slot, arraySize)
		for _, d := range digests {
			h0, h1, h2, _ := f.hashIndexes(d)
			slots[h0].count++
			slots[h0].xor ^= d
			slots[h1].count++
			slots[h1].xor ^= d
			slots[h2].count++
			slots[h2].xor ^= d
		}

		type queued struct {
			idx uint32
			key uint64
		}
		queue := make([]queued, 0, arraySize)
		for i := range slots {
			if slots[i].count == 1 {
				queue = append(queue, queued{idx: uint32(i), key: slots[i].xor})
			}
		}

		type assignment struct {
			idx uint32
			fp  uint8
			key uint64
		}
		order := make([]assignment, 0, n)
		visited := make([]bool, arraySize)

		for len(queue) > 0 {
			q := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			if visited[q.idx] || slots[q.idx].count != 1 {
				continue
			}
			key := q.key
			h0, h1, h2, fp := f.hashIndexes(key)
			order = append(order, assignment{idx: q.idx, fp: fp, key: key})
			visited[q.idx] = true

			for _, hx := range [3]uint32{h0, h1, h2} {
				slots[hx].count--
				slots[hx].xor ^= key
				if slots[hx].count == 1 && !visited[hx] {
					queue = append(queue, queued{idx: hx, key: slots[hx].xor})
				}
			}
		}

		if len(order) != n {
			seed = mix(seed, uint64(attempt)+1)
			continue
		}

		// Assign fingerprints so that xoring the filter's three slots for
		// any member key reproduces its fingerprint exactly.
		for i := len(order) - 1; i >= 0; i-- {
			a := order[i]
			h0, h1, h2, fp := f.hashIndexes(a.key)
			f.fingerprints[a.idx] = fp ^ f.fingerprints[h0] ^ f.fingerprints[h1] ^ f.fingerprints[h2] ^ f.fingerprints[a.idx]
		}
		return f, nil
	}
	return nil, ErrConstructionFailed
}

// Contains reports whether digest is possibly a member; false positives
// are possible (~1/256 for the 8-bit fingerprint used here), false
// negatives never occur for digests actually passed to Build.
func (f *Filter) Contains(digest uint64) bool {
	if f == nil || len(f.fingerprints) == 0 {
		return false
	}
	h0, h1, h2, fp := f.hashIndexes(digest)
	return fp == f.fingerprints[h0]^f.fingerprints[h1]^f.fingerprints[h2]
}

// Bytes/FromBytes give the flusher a compact on-disk representation for
// .xf/.zxf files: seed, block length, then the fingerprint array.
func (f *Filter) Bytes() []byte {
	out := make([]byte, 16+len(f.fingerprints))
	putU64(out[0:8], f.seed)
	putU64(out[8:16], uint64(f.blockLength))
	copy(out[16:], f.fingerprints)
	return out
}

func FromBytes(b []byte) (*Filter, error) {
	if len(b) < 16 {
		return nil, errors.New("xorfilter: truncated buffer")
	}
	f := &Filter{
		seed:        getU64(b[0:8]),
		blockLength: uint32(getU64(b[8:16])),
	}
	f.fingerprints = append([]uint8(nil), b[16:]...)
	return f, nil
}

func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func getU64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
