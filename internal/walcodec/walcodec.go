// Package walcodec frames per-shard write-ahead log records (spec §6,
// `shard-<id>/wal/<monotonic>.wal`). The WAL is a crash-recovery hint
// only — flushed segments are authoritative (Open Question 1) — so the
// codec favors a simple append/replay shape over exactly-once durability
// guarantees. Frame compression uses the teacher's other compression
// dependency, lz4, keeping it distinct from the s2 codec column files use.
package walcodec

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/pierrec/lz4/v3"

	"github.com/sneldb/sneldb-sub000/internal/event"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// record is the on-wire shape of one WAL entry: just enough to replay an
// Append into a fresh memtable (spec §4.2/§4.10).
type record struct {
	ContextID string                  `json:"c"`
	EventType string                  `json:"t"`
	UID       string                  `json:"u"`
	Timestamp uint64                  `json:"ts"`
	EventID   uint64                  `json:"id"`
	Payload   map[string]event.Value  `json:"p"`
}

func toRecord(e *event.Event) record {
	return record{
		ContextID: e.ContextID, EventType: e.EventType, UID: e.UID,
		Timestamp: e.Timestamp, EventID: e.EventID, Payload: e.Payload,
	}
}

func (r record) toEvent() *event.Event {
	return &event.Event{
		ContextID: r.ContextID, EventType: r.EventType, UID: r.UID,
		Timestamp: r.Timestamp, EventID: r.EventID, Payload: r.Payload,
	}
}

// Writer appends events to one shard's active WAL file. Each record is
// JSON-encoded then lz4-framed and length-prefixed so Flush after every
// record leaves a replayable prefix even if the process dies mid-write.
type Writer struct {
	f  *os.File
	lz *lz4.Writer
}

func Create(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	return &Writer{f: f, lz: lz4.NewWriter(f)}, nil
}

// Append encodes e and flushes the lz4 frame, so Close is never required
// for the record to survive a crash — only for a clean file-size trim.
func (w *Writer) Append(e *event.Event) error {
	raw, err := jsonAPI.Marshal(toRecord(e))
	if err != nil {
		return err
	}
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(raw)))
	if _, err := w.lz.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := w.lz.Write(raw); err != nil {
		return err
	}
	if err := w.lz.Flush(); err != nil {
		return err
	}
	return w.f.Sync()
}

func (w *Writer) Close() error {
	if err := w.lz.Close(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

// Replay reads every whole record out of a WAL file, in write order,
// tolerating a truncated final record (the natural shape of a crash
// mid-append) by stopping at the first short read instead of erroring.
func Replay(path string) ([]*event.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	r := lz4.NewReader(bufio.NewReader(f))
	var out []*event.Event
	for {
		var lenBuf [4]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			return out, fmt.Errorf("walcodec: reading record length: %w", err)
		}
		n := binary.LittleEndian.Uint32(lenBuf[:])
		raw := make([]byte, n)
		if _, err := io.ReadFull(r, raw); err != nil {
			break // truncated tail record; everything before it still replays
		}
		var rec record
		if err := jsonAPI.Unmarshal(raw, &rec); err != nil {
			break // corrupt tail record, same treatment as truncation
		}
		out = append(out, rec.toEvent())
	}
	return out, nil
}
