// Package engine implements the streaming pushdown parse engine: a
// byte-driven automaton that descends through a grammar's RTNs, using
// IntFAs to tokenize and GLAs to resolve lookahead ambiguity, and a
// buffered file driver for whole-file convenience parsing.
package engine

import (
	"fmt"

	"github.com/dekarrin/gazelle/internal/grammar"
	"github.com/dekarrin/gazelle/internal/gzlerr"
)

// Offset is a parse position: a 0-based byte count plus 1-based line and
// column, produced monotonically by the engine.
type Offset struct {
	Byte   int
	Line   int
	Column int
}

func startOffset() Offset { return Offset{Byte: 0, Line: 1, Column: 1} }

func (o Offset) String() string {
	return fmt.Sprintf("%d:%d:%d", o.Byte, o.Line, o.Column)
}

// Terminal is a committed lexeme: a name, the offset of its first byte,
// and its length in bytes.
type Terminal struct {
	Name   int // string id in the grammar's string table
	Offset Offset
	Length int
}

// bufferedTerminal is a Terminal still sitting in the token buffer,
// waiting to be consumed by an RTN or GLA cursor.
type bufferedTerminal struct {
	Terminal
}

// BoundGrammar bundles an immutable grammar with the callbacks and opaque
// user data a parse using it should invoke/carry.
type BoundGrammar struct {
	Grammar   *grammar.Grammar
	Callbacks Callbacks
	UserData  interface{}
}

func (b *BoundGrammar) callbacks() Callbacks {
	if b.Callbacks == nil {
		return NoopCallbacks{}
	}
	return b.Callbacks
}

// Limits bounds the resources one parse state may consume. Both must be
// finite; defaults are supplied by NewParseState when zero.
type Limits struct {
	MaxStackDepth int
	MaxLookahead  int
}

const (
	defaultMaxStackDepth = 4096
	defaultMaxLookahead  = 4096
)

func (l Limits) withDefaults() Limits {
	if l.MaxStackDepth <= 0 {
		l.MaxStackDepth = defaultMaxStackDepth
	}
	if l.MaxLookahead <= 0 {
		l.MaxLookahead = defaultMaxLookahead
	}
	return l
}

// Status is the outcome of one Parse call.
type Status int

const (
	StatusOK Status = iota
	StatusError
	StatusCancelled
	StatusHardEOF
	StatusResourceLimitExceeded
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusError:
		return "ERROR"
	case StatusCancelled:
		return "CANCELLED"
	case StatusHardEOF:
		return "HARD_EOF"
	case StatusResourceLimitExceeded:
		return "RESOURCE_LIMIT_EXCEEDED"
	default:
		return "UNKNOWN"
	}
}

// ParseState is a single, exclusively-owned parse in progress: the stack,
// the token buffer, offset tracking, and a reference to the bound grammar
// driving it. It is resumable across Parse calls at byte-slice
// boundaries and nowhere else.
type ParseState struct {
	Bound *BoundGrammar
	Limits

	offset            Offset
	lastNewline       byte
	openTerminalOff   Offset
	stack             growArray[Frame]
	tokens            growArray[bufferedTerminal]
	rtnCursor         int
	glaCursor         int
	enteredGLA        bool
	cancelled         bool
	terminatedHardEOF bool
}

// NewParseState allocates and initializes a parse state bound to the
// given grammar and callbacks.
func NewParseState(bound *BoundGrammar, limits Limits) *ParseState {
	ps := &ParseState{
		Bound:  bound,
		Limits: limits.withDefaults(),
		stack:  newGrowArray[Frame](),
		tokens: newGrowArray[bufferedTerminal](),
	}
	ps.offset = startOffset()
	ps.openTerminalOff = ps.offset
	return ps
}

// Offset returns the current parse position.
func (ps *ParseState) Offset() Offset { return ps.offset }

// OpenTerminalOffset returns the earliest byte still belonging to a
// terminal not yet committed to a callback. A client may safely discard
// input strictly before this offset.
func (ps *ParseState) OpenTerminalOffset() Offset { return ps.openTerminalOff }

// StackDepth returns the number of frames currently on the parse stack.
func (ps *ParseState) StackDepth() int { return ps.stack.Len() }

// TopFrame returns the frame at the top of the stack, or nil if the stack
// is empty (the parse has concluded at grammar-EOF).
func (ps *ParseState) TopFrame() *Frame {
	if ps.stack.Len() == 0 {
		return nil
	}
	return ps.stack.Top()
}

// CallerTransition returns the transition that caused the current top
// frame to be pushed (the RTNTransition committed on the frame directly
// beneath it), if any. Tools that build a parse tree from the callback
// contract (see internal/parsetree) use this from inside StartRule to
// recover the slot name/number the new rule fills in its caller, since
// that information lives on the caller's frame rather than the callee's.
func (ps *ParseState) CallerTransition() (grammar.RTNTransition, bool) {
	if ps.stack.Len() < 2 {
		return grammar.RTNTransition{}, false
	}
	caller := ps.stack.At(ps.stack.Len() - 2)
	if caller.Kind != FrameRTN || !caller.HasTransition {
		return grammar.RTNTransition{}, false
	}
	return caller.Transition, true
}

// Dup returns an independent copy of ps: the two may subsequently diverge
// by feeding different input to each.
func (ps *ParseState) Dup() *ParseState {
	cp := *ps
	cp.stack = ps.stack.Clone()
	cp.tokens = ps.tokens.Clone()
	return &cp
}

func (ps *ParseState) grammar() *grammar.Grammar { return ps.Bound.Grammar }

func (ps *ParseState) checkStackDepth() error {
	if ps.stack.Len() >= ps.MaxStackDepth {
		return gzlerr.New(gzlerr.KindResourceLimit, "parse stack depth exceeds limit")
	}
	return nil
}

func (ps *ParseState) checkLookahead() error {
	if ps.tokens.Len() >= ps.MaxLookahead {
		return gzlerr.New(gzlerr.KindResourceLimit, "token buffer length exceeds lookahead limit")
	}
	return nil
}
