package engine

import "github.com/dekarrin/gazelle/internal/grammar"

// FrameKind discriminates the three shapes a stack frame can take.
type FrameKind int

const (
	FrameIntFA FrameKind = iota
	FrameGLA
	FrameRTN
)

func (k FrameKind) String() string {
	switch k {
	case FrameIntFA:
		return "IntFA"
	case FrameGLA:
		return "GLA"
	case FrameRTN:
		return "RTN"
	default:
		return "Unknown"
	}
}

// Frame is one entry of the parse stack. It carries the start offset at
// which it was pushed plus whichever of the three variants below its Kind
// selects; the other variants' fields are zero and must not be read.
type Frame struct {
	Kind  FrameKind
	Start Offset

	// Valid when Kind == FrameIntFA.
	IntFA      int
	IntFAState int

	// Valid when Kind == FrameGLA.
	GLA      int
	GLAState int

	// Valid when Kind == FrameRTN.
	RTN      int
	RTNState int
	// HasTransition is set once a nonterminal transition has been
	// committed from this frame (push_rtn_for_transition), so that when
	// the callee returns, this frame knows which state to resume at.
	HasTransition bool
	Transition    grammar.RTNTransition
}
