package engine

import "github.com/dekarrin/gazelle/internal/grammar"

// Signal is the distinguished return value a callback uses to ask the
// engine to stop. Continue means proceed normally; Cancel is converted to
// a Cancelled result at the engine's next yield point (the end of the
// current Parse call).
type Signal int

const (
	Continue Signal = iota
	Cancel
)

// Callbacks is the capability interface a bound grammar uses to observe a
// parse as it happens. Every method is optional: embed NoopCallbacks and
// override only the ones a given tool needs.
type Callbacks interface {
	// StartRule fires when an RTN frame is pushed, before any of its
	// nested events.
	StartRule(ps *ParseState, rtn *grammar.RTN) Signal

	// EndRule fires when an RTN frame is popped, after all of its nested
	// events.
	EndRule(ps *ParseState, rtn *grammar.RTN) Signal

	// Terminal fires once a lexeme has been committed to a slot in the
	// current RTN. tok.Name and the surrounding ParseState's top RTN
	// frame transition carry the slot metadata.
	Terminal(ps *ParseState, tok Terminal) Signal

	// ErrorChar fires when the lexer has no transition for ch from a
	// non-accepting IntFA state.
	ErrorChar(ps *ParseState, ch byte) Signal

	// ErrorTerminal fires when the current RTN state has no transition
	// for the terminal named name.
	ErrorTerminal(ps *ParseState, name string) Signal
}

// NoopCallbacks implements Callbacks with every method a no-op returning
// Continue. Embed it in a callback type to pick up default behavior for
// the events that type doesn't care about.
type NoopCallbacks struct{}

func (NoopCallbacks) StartRule(*ParseState, *grammar.RTN) Signal     { return Continue }
func (NoopCallbacks) EndRule(*ParseState, *grammar.RTN) Signal       { return Continue }
func (NoopCallbacks) Terminal(*ParseState, Terminal) Signal          { return Continue }
func (NoopCallbacks) ErrorChar(*ParseState, byte) Signal             { return Continue }
func (NoopCallbacks) ErrorTerminal(*ParseState, string) Signal       { return Continue }

var _ Callbacks = NoopCallbacks{}
