// Package schema implements the process-wide event-type registry (spec
// §3, §4.1). Readers take a lock-free copy-on-write snapshot; writers
// (DEFINE only) publish a brand-new snapshot atomically, following the
// teacher's cmn/rom.go read-mostly pattern generalized from a single
// config value to an immutable map.
package schema

import (
	"fmt"
	"sync"
	ratomic "sync/atomic"

	jsoniter "github.com/json-iterator/go"

	"github.com/sneldb/sneldb-sub000/internal/event"
	"github.com/sneldb/sneldb-sub000/internal/ids"
	"github.com/sneldb/sneldb-sub000/internal/xerrors"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// FieldKind mirrors the schema-declarable primitives of spec §3.
type FieldKind uint8

const (
	FieldString FieldKind = iota
	FieldInt
	FieldU64
	FieldFloat
	FieldBool
	FieldDatetime
	FieldBinary
	FieldEnum
)

func FieldKindFromValueKind(k event.Kind) FieldKind {
	switch k {
	case event.KindString:
		return FieldString
	case event.KindInt:
		return FieldInt
	case event.KindUint64:
		return FieldU64
	case event.KindFloat:
		return FieldFloat
	case event.KindBool:
		return FieldBool
	case event.KindDatetime:
		return FieldDatetime
	case event.KindBinary:
		return FieldBinary
	default:
		return FieldString
	}
}

// Field is one declared column of an event type.
type Field struct {
	Name     string    `json:"name"`
	Kind     FieldKind `json:"kind"`
	Variants []string  `json:"variants,omitempty"` // ordered; index is persisted in enum bitmaps
}

func (f Field) IsEnum() bool { return f.Kind == FieldEnum }

// VariantIndex returns the persisted bitmap slot of a variant, or -1.
func (f Field) VariantIndex(v string) int {
	for i, variant := range f.Variants {
		if variant == v {
			return i
		}
	}
	return -1
}

// Schema is one versioned, uid-addressed event type definition.
type Schema struct {
	EventType string  `json:"event_type"`
	UID       string  `json:"uid"`
	Version   int     `json:"version"`
	Fields    []Field `json:"fields"`
}

func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// snapshot is the immutable value swapped atomically on Define.
type snapshot struct {
	byType map[string]*Schema
	byUID  map[string]*Schema
}

func emptySnapshot() *snapshot {
	return &snapshot{byType: map[string]*Schema{}, byUID: map[string]*Schema{}}
}

// Registry is the process-wide schema registry. The hot (read) path never
// takes a lock: GetSchema/GetUID/IterSchemas atomically load the current
// snapshot.
// Writes (Define) are serialized by mu and publish a new snapshot.
type Registry struct {
	mu  sync.Mutex // serializes writers only
	cur ratomic.Pointer[snapshot]
}

func NewRegistry() *Registry {
	r := &Registry{}
	r.cur.Store(emptySnapshot())
	return r
}

// Define registers event_type at the given version with the given
// fields. A superset definition at a strictly higher version shadows the
// prior one and keeps the same uid. Redefinition at the same version with
// incompatible fields is an error; enum variant reordering is rejected at
// any version (append-only, Open Question 3).
func (r *Registry) Define(eventType string, version int, fields []Field) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := r.cur.Load()
	existing, ok := snap.byType[eventType]
	if ok {
		if existing.Version == version {
			if !fieldsCompatible(existing.Fields, fields) {
				return "", xerrors.NewSchemaError(
					"event type %q already defined at version %d with incompatible fields",
					eventType, version)
			}
			return existing.UID, nil
		}
		if version < existing.Version {
			return "", xerrors.NewSchemaError(
				"event type %q: version %d is older than registered version %d",
				eventType, version, existing.Version)
		}
		if err := checkEnumAppendOnly(existing.Fields, fields); err != nil {
			return "", err
		}
	}

	uid := ""
	if ok {
		uid = existing.UID
	} else {
		uid = ids.NewUID()
	}
	sc := &Schema{EventType: eventType, UID: uid, Version: version, Fields: fields}

	next := &snapshot{
		byType: make(map[string]*Schema, len(snap.byType)+1),
		byUID:  make(map[string]*Schema, len(snap.byUID)+1),
	}
	for k, v := range snap.byType {
		next.byType[k] = v
	}
	for k, v := range snap.byUID {
		next.byUID[k] = v
	}
	next.byType[eventType] = sc
	next.byUID[uid] = sc
	r.cur.Store(next)
	return uid, nil
}

func fieldsCompatible(a, b []Field) bool {
	if len(a) != len(b) {
		return false
	}
	am := make(map[string]Field, len(a))
	for _, f := range a {
		am[f.Name] = f
	}
	for _, f := range b {
		prev, ok := am[f.Name]
		if !ok || prev.Kind != f.Kind {
			return false
		}
	}
	return true
}

// checkEnumAppendOnly rejects a redefinition that reorders or removes an
// enum variant that already exists; appending new variants is fine.
func checkEnumAppendOnly(prev, next []Field) error {
	prevByName := make(map[string]Field, len(prev))
	for _, f := range prev {
		prevByName[f.Name] = f
	}
	for _, f := range next {
		old, ok := prevByName[f.Name]
		if !ok || !old.IsEnum() || !f.IsEnum() {
			continue
		}
		if len(f.Variants) < len(old.Variants) {
			return xerrors.NewSchemaError("field %q: enum variant removal is not allowed", f.Name)
		}
		for i, v := range old.Variants {
			if f.Variants[i] != v {
				return xerrors.NewSchemaError(
					"field %q: enum variant reorder detected at index %d (%q -> %q)",
					f.Name, i, v, f.Variants[i])
			}
		}
	}
	return nil
}

func (r *Registry) GetUID(eventType string) (string, error) {
	snap := r.cur.Load()
	s, ok := snap.byType[eventType]
	if !ok {
		return "", xerrors.NewSchemaError("event type %q is not defined", eventType)
	}
	return s.UID, nil
}

func (r *Registry) GetSchema(eventType string) (*Schema, error) {
	snap := r.cur.Load()
	s, ok := snap.byType[eventType]
	if !ok {
		return nil, xerrors.NewSchemaError("event type %q is not defined", eventType)
	}
	return s, nil
}

func (r *Registry) GetSchemaByUID(uid string) (*Schema, bool) {
	snap := r.cur.Load()
	s, ok := snap.byUID[uid]
	return s, ok
}

// IterSchemas returns a stable point-in-time slice of all current schemas.
func (r *Registry) IterSchemas() []*Schema {
	snap := r.cur.Load()
	out := make([]*Schema, 0, len(snap.byType))
	for _, s := range snap.byType {
		out = append(out, s)
	}
	return out
}

// Persisted is the on-disk shape of the whole registry (one file, spec §3).
type Persisted struct {
	Schemas []*Schema `json:"schemas"`
}

func (r *Registry) MarshalJSON() ([]byte, error) {
	return jsonAPI.Marshal(Persisted{Schemas: r.IterSchemas()})
}

// LoadRegistry reconstructs a Registry from its persisted JSON form.
func LoadRegistry(data []byte) (*Registry, error) {
	var p Persisted
	if err := jsonAPI.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("schema: decode registry: %w", err)
	}
	r := NewRegistry()
	snap := emptySnapshot()
	for _, s := range p.Schemas {
		snap.byType[s.EventType] = s
		snap.byUID[s.UID] = s
	}
	r.cur.Store(snap)
	return r, nil
}
