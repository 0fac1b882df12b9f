// Package xerrors defines the engine's error kinds (spec §7). Each kind is
// a small concrete type rather than a sentinel, so callers can carry extra
// context (which column, which segment) without string parsing.
package xerrors

import "fmt"

// ParseError surfaces to clients as 400; the parser itself is external,
// this type only exists so the core can wrap one if it ever needs to.
type ParseError struct{ Msg string }

func (e *ParseError) Error() string { return "parse error: " + e.Msg }

// SchemaError covers unknown event types, incompatible redefinitions, and
// enum-reorder attempts.
type SchemaError struct{ Msg string }

func (e *SchemaError) Error() string { return "schema error: " + e.Msg }

func NewSchemaError(format string, args ...any) *SchemaError {
	return &SchemaError{Msg: fmt.Sprintf(format, args...)}
}

// AuthError is a marker for the external auth layer; the core never
// constructs one but the command plumbing type needs somewhere to live.
type AuthError struct{ Msg string }

func (e *AuthError) Error() string { return "auth error: " + e.Msg }

// CapacityExceeded is returned by MemTable.Append when the table has
// reached its configured flush threshold; recovered locally by rotation.
type CapacityExceeded struct{ Capacity int }

func (e *CapacityExceeded) Error() string {
	return fmt.Sprintf("memtable capacity exceeded (%d)", e.Capacity)
}

// IndexMissing means an expected index file was absent; callers fall back
// to a broader scan and log at warn.
type IndexMissing struct {
	Segment, Column, Kind string
}

func (e *IndexMissing) Error() string {
	return fmt.Sprintf("index missing: segment=%s column=%s kind=%s", e.Segment, e.Column, e.Kind)
}

// Corrupt means a checksum/format mismatch in an index or column file; the
// affected segment is skipped for that query and flagged for repair.
type Corrupt struct {
	Segment, Detail string
}

func (e *Corrupt) Error() string {
	return fmt.Sprintf("corrupt segment %s: %s", e.Segment, e.Detail)
}

// Io wraps an underlying storage failure; fatal to the current operation.
type Io struct {
	Op  string
	Err error
}

func (e *Io) Error() string { return fmt.Sprintf("io error during %s: %v", e.Op, e.Err) }
func (e *Io) Unwrap() error { return e.Err }

// ChannelClosed means a downstream receiver was dropped; upstream aborts
// cleanly rather than treating this as a failure.
type ChannelClosed struct{}

func (e *ChannelClosed) Error() string { return "channel closed" }

// FlushFailed wraps the underlying cause of a failed flush.
type FlushFailed struct{ Err error }

func (e *FlushFailed) Error() string { return fmt.Sprintf("flush failed: %v", e.Err) }
func (e *FlushFailed) Unwrap() error { return e.Err }

func IsCorrupt(err error) bool {
	_, ok := err.(*Corrupt)
	return ok
}

func IsIndexMissing(err error) bool {
	_, ok := err.(*IndexMissing)
	return ok
}

func IsCapacityExceeded(err error) bool {
	_, ok := err.(*CapacityExceeded)
	return ok
}
