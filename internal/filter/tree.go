// Package filter implements the WHERE tree, the per-column FilterGroup
// derived from it, and the planner that flattens one into the other
// (spec §4.5, §9 design note: "Keep as a tagged variant... plus a
// FilterGroup parallel tree").
package filter

import "github.com/sneldb/sneldb-sub000/internal/event"

// CompareOp is the comparison operator of a leaf predicate.
type CompareOp uint8

const (
	OpEq CompareOp = iota
	OpNeq
	OpGt
	OpGte
	OpLt
	OpLte
)

// NodeKind tags the WHERE tree's variant (spec §9: Compare | In | And |
// Or | Not). This tree is what the external parser hands the core inside
// a parsed Command; the core never parses text itself.
type NodeKind uint8

const (
	NodeCompare NodeKind = iota
	NodeIn
	NodeAnd
	NodeOr
	NodeNot
)

// Node is the tagged WHERE-tree variant. Dispatch on Kind happens once at
// planning time (see plan.go), never per-row on the hot path (spec §9).
type Node struct {
	Kind NodeKind

	// NodeCompare
	Column string
	Op     CompareOp
	Value  event.Value

	// NodeIn
	Values []event.Value

	// NodeAnd / NodeOr: Children; NodeNot: Children[0]
	Children []*Node
}

func Compare(column string, op CompareOp, v event.Value) *Node {
	return &Node{Kind: NodeCompare, Column: column, Op: op, Value: v}
}

func In(column string, values []event.Value) *Node {
	return &Node{Kind: NodeIn, Column: column, Values: values}
}

func And(children ...*Node) *Node { return &Node{Kind: NodeAnd, Children: children} }
func Or(children ...*Node) *Node  { return &Node{Kind: NodeOr, Children: children} }
func Not(child *Node) *Node       { return &Node{Kind: NodeNot, Children: []*Node{child}} }

// Matches evaluates the tree directly over an event's payload — the path
// memtables use (spec §4.2: "no indexes") and the row-wise fallback the
// executor uses after zone pruning narrows candidates (spec §4.7 step 2).
func (n *Node) Matches(e *event.Event) bool {
	if n == nil {
		return true
	}
	switch n.Kind {
	case NodeCompare:
		return matchValue(fieldValue(e, n.Column), n.Op, n.Value)
	case NodeIn:
		fv := fieldValue(e, n.Column)
		for _, v := range n.Values {
			if matchValue(fv, OpEq, v) {
				return true
			}
		}
		return false
	case NodeAnd:
		for _, c := range n.Children {
			if !c.Matches(e) {
				return false
			}
		}
		return true
	case NodeOr:
		for _, c := range n.Children {
			if c.Matches(e) {
				return true
			}
		}
		return false
	case NodeNot:
		return !n.Children[0].Matches(e)
	default:
		return false
	}
}

func fieldValue(e *event.Event, column string) event.Value {
	switch column {
	case "context_id":
		return event.StringVal(e.ContextID)
	case "event_type":
		return event.StringVal(e.EventType)
	case "timestamp":
		return event.DatetimeVal(e.Timestamp)
	case "event_id":
		return event.Uint64Val(e.EventID)
	default:
		if v, ok := e.Payload[column]; ok {
			return v
		}
		return event.Null()
	}
}

func matchValue(fv event.Value, op CompareOp, v event.Value) bool {
	if fv.IsNull() {
		return false
	}
	c := fv.Compare(v)
	switch op {
	case OpEq:
		return c == 0
	case OpNeq:
		return c != 0
	case OpGt:
		return c > 0
	case OpGte:
		return c >= 0
	case OpLt:
		return c < 0
	case OpLte:
		return c <= 0
	default:
		return false
	}
}
