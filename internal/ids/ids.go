// Package ids generates the opaque uids the schema registry assigns to
// event types, and segment ids, following the teacher's cmn/cos/uuid.go
// approach: a shortid generator seeded once at process start, plus an
// xxhash-based fast path for deterministic derived ids.
package ids

import (
	"fmt"
	"sync"
	ratomic "sync/atomic"

	xxhash "github.com/OneOfOne/xxhash"
	"github.com/teris-io/shortid"
)

const abc = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

var (
	once sync.Once
	gen  *shortid.Shortid
	tie  ratomic.Uint32
)

func ensure() {
	once.Do(func() {
		g, err := shortid.New(1, abc, 1)
		if err != nil {
			panic(err)
		}
		gen = g
	})
}

// NewUID returns a new, never-reused, stable event-type identifier. The
// registry persists this value and never regenerates it for the same
// event type name once assigned.
func NewUID() string {
	ensure()
	id, err := gen.Generate()
	if err != nil {
		// shortid generation only fails on worker/seed exhaustion, which a
		// single-process engine never hits; fall back to a process-local
		// counter.
		t := tie.Add(1)
		return fmt.Sprintf("u%x", t)
	}
	return "u" + id
}

// NewSegmentID returns a new, monotonically-sortable-by-creation-order
// segment directory name. Segments sort lexicographically by generation
// sequence, so this is a zero-padded counter prefixed with the zero-padded
// shard id to avoid collisions across shards sharing a data_dir root.
func NewSegmentID(shardID int, seq uint64) string {
	return fmt.Sprintf("seg-%04d-%020d", shardID, seq)
}

// HashContext returns a stable 64-bit digest of a context_id, used by the
// shard manager to route writes (fs/hrw.go's xxhash.Checksum64S idiom).
func HashContext(contextID string) uint64 {
	return xxhash.Checksum64S([]byte(contextID), 0)
}
