// Package parsetree is an optional tree-building layer on top of the
// engine's callback contract: a Builder implements engine.Callbacks and
// accumulates a JSON-shaped parse tree as the events go by. The core
// engine never builds one itself (it stays callback-only); this package
// exists for tools that want a materialized tree, namely the gzlparse CLI
// and the parse service's tree endpoint.
package parsetree

import (
	"encoding/json"

	"github.com/dekarrin/gazelle/internal/engine"
	"github.com/dekarrin/gazelle/internal/grammar"
)

// Node is either a RuleNode or a TerminalNode.
type Node interface {
	json.Marshaler
	treeNode()
}

// RuleNode is one nonterminal's span: its name, starting position, the
// slot it fills in its caller (if any), its children in production
// order, and its total byte length.
type RuleNode struct {
	Rule     string
	Start    int
	Line     int
	Column   int
	HasSlot  bool
	SlotName string
	SlotNum  int
	Children []Node
	Len      int
}

// TerminalNode is one committed lexeme: its terminal name, the slot it
// fills in its enclosing rule, its position and length, and the source
// text it covers (populated only when the Builder was given a source
// buffer to slice from).
type TerminalNode struct {
	Terminal   string
	SlotName   string
	SlotNum    int
	ByteOffset int
	Line       int
	Column     int
	Len        int
	Text       string
}

func (*RuleNode) treeNode()     {}
func (*TerminalNode) treeNode() {}

func (n *RuleNode) MarshalJSON() ([]byte, error) {
	m := map[string]interface{}{
		"rule":     n.Rule,
		"start":    n.Start,
		"line":     n.Line,
		"column":   n.Column,
		"children": n.Children,
		"len":      n.Len,
	}
	if n.HasSlot {
		m["slotname"] = n.SlotName
		m["slotnum"] = n.SlotNum
	}
	return json.Marshal(m)
}

func (n *TerminalNode) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"terminal":    n.Terminal,
		"slotname":    n.SlotName,
		"slotnum":     n.SlotNum,
		"byte_offset": n.ByteOffset,
		"line":        n.Line,
		"column":      n.Column,
		"len":         n.Len,
		"text":        n.Text,
	})
}

// Builder is an engine.Callbacks implementation that materializes the
// parse as a tree of RuleNode/TerminalNode values. Source, if non-nil, is
// sliced to populate each TerminalNode's Text; callers that feed the
// whole input to a single Parse call (as gzlparse does) can simply pass
// that same slice.
type Builder struct {
	engine.NoopCallbacks
	Source []byte
	Root   Node

	stack []*RuleNode
}

// NewBuilder returns a Builder that slices source for terminal text. Pass
// nil if terminal text is not needed.
func NewBuilder(source []byte) *Builder {
	return &Builder{Source: source}
}

func (b *Builder) StartRule(ps *engine.ParseState, rtn *grammar.RTN) engine.Signal {
	start := ps.Offset()
	n := &RuleNode{
		Rule:     ps.Bound.Grammar.Strings.Get(rtn.Name),
		Start:    start.Byte,
		Line:     start.Line,
		Column:   start.Column,
		Children: []Node{},
	}
	if tr, ok := ps.CallerTransition(); ok && tr.SlotName != grammar.NoString {
		n.HasSlot = true
		n.SlotName = ps.Bound.Grammar.Strings.Get(tr.SlotName)
		n.SlotNum = tr.SlotNum
	}
	b.stack = append(b.stack, n)
	return engine.Continue
}

func (b *Builder) EndRule(ps *engine.ParseState, rtn *grammar.RTN) engine.Signal {
	n := b.stack[len(b.stack)-1]
	b.stack = b.stack[:len(b.stack)-1]
	n.Len = ps.Offset().Byte - n.Start

	if len(b.stack) == 0 {
		b.Root = n
	} else {
		parent := b.stack[len(b.stack)-1]
		parent.Children = append(parent.Children, n)
	}
	return engine.Continue
}

func (b *Builder) Terminal(ps *engine.ParseState, tok engine.Terminal) engine.Signal {
	n := &TerminalNode{
		Terminal:   ps.Bound.Grammar.Strings.Get(tok.Name),
		SlotNum:    -1,
		ByteOffset: tok.Offset.Byte,
		Line:       tok.Offset.Line,
		Column:     tok.Offset.Column,
		Len:        tok.Length,
	}
	if top := ps.TopFrame(); top != nil && top.HasTransition {
		n.SlotNum = top.Transition.SlotNum
		if top.Transition.SlotName != grammar.NoString {
			n.SlotName = ps.Bound.Grammar.Strings.Get(top.Transition.SlotName)
		}
	}
	if b.Source != nil {
		end := tok.Offset.Byte + tok.Length
		if tok.Offset.Byte >= 0 && end <= len(b.Source) {
			n.Text = string(b.Source[tok.Offset.Byte:end])
		}
	}

	if len(b.stack) > 0 {
		parent := b.stack[len(b.stack)-1]
		parent.Children = append(parent.Children, n)
	}
	return engine.Continue
}
