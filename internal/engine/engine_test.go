package engine

import (
	"testing"

	"github.com/dekarrin/gazelle/internal/grammar"
	"github.com/dekarrin/gazelle/internal/gzlerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder is a Callbacks implementation that appends a label for every
// event it sees, in the order the engine delivers them, so tests can
// assert on exact callback ordering per spec §5's "Ordering" guarantee.
type recorder struct {
	NoopCallbacks
	events []string
}

func (r *recorder) StartRule(ps *ParseState, rtn *grammar.RTN) Signal {
	r.events = append(r.events, "start_rule:"+ps.grammar().Strings.Get(rtn.Name))
	return Continue
}

func (r *recorder) EndRule(ps *ParseState, rtn *grammar.RTN) Signal {
	r.events = append(r.events, "end_rule:"+ps.grammar().Strings.Get(rtn.Name))
	return Continue
}

func (r *recorder) Terminal(ps *ParseState, tok Terminal) Signal {
	r.events = append(r.events, "terminal:"+ps.grammar().Strings.Get(tok.Name))
	return Continue
}

func (r *recorder) ErrorChar(ps *ParseState, ch byte) Signal {
	r.events = append(r.events, "error_char")
	return Continue
}

func (r *recorder) ErrorTerminal(ps *ParseState, name string) Signal {
	r.events = append(r.events, "error_terminal:"+name)
	return Continue
}

func newBound(g *grammar.Grammar, cb Callbacks) *BoundGrammar {
	return &BoundGrammar{Grammar: g, Callbacks: cb}
}

// --- fixture: S with an immediately-final start state (empty language) ---

func emptyLanguageGrammar() *grammar.Grammar {
	return &grammar.Grammar{
		Strings: grammar.NewStrings([]string{"S"}),
		RTNs: []*grammar.RTN{
			{
				Name:   0,
				States: []grammar.RTNState{{IsFinal: true, LookaheadType: grammar.HasNeither}},
			},
		},
	}
}

// --- fixture: S := "x" ---

func singleTerminalGrammar() *grammar.Grammar {
	const xID = 1
	fa := &grammar.IntFA{
		States: []grammar.IntFAState{
			{AcceptLabel: grammar.NoString, Transitions: []grammar.IntFATransition{{Low: 'x', High: 'x', Dest: 1}}},
			{AcceptLabel: xID},
		},
	}
	rtn := &grammar.RTN{
		Name:     0,
		NumSlots: 1,
		States: []grammar.RTNState{
			{
				LookaheadType: grammar.HasIntFA,
				IntFA:         0,
				Transitions: []grammar.RTNTransition{
					{Kind: grammar.TerminalTransition, Terminal: xID, Dest: 1, SlotName: grammar.NoString},
				},
			},
			{IsFinal: true, LookaheadType: grammar.HasNeither},
		},
	}
	return &grammar.Grammar{
		Strings: grammar.NewStrings([]string{"S", "x"}),
		IntFAs:  []*grammar.IntFA{fa},
		RTNs:    []*grammar.RTN{rtn},
	}
}

// --- fixture: S := "a" "b", whitespace ignored ---

func ignoreListGrammar() *grammar.Grammar {
	const aID, bID, wsID = 1, 2, 3
	fa := &grammar.IntFA{
		States: []grammar.IntFAState{
			{AcceptLabel: grammar.NoString, Transitions: []grammar.IntFATransition{
				{Low: 'a', High: 'a', Dest: 1},
				{Low: 'b', High: 'b', Dest: 2},
				{Low: ' ', High: ' ', Dest: 3},
			}},
			{AcceptLabel: aID},
			{AcceptLabel: bID},
			{AcceptLabel: wsID},
		},
	}
	rtn := &grammar.RTN{
		Name:            0,
		IgnoreTerminals: []int{wsID},
		States: []grammar.RTNState{
			{LookaheadType: grammar.HasIntFA, IntFA: 0, Transitions: []grammar.RTNTransition{
				{Kind: grammar.TerminalTransition, Terminal: aID, Dest: 1},
			}},
			{LookaheadType: grammar.HasIntFA, IntFA: 0, Transitions: []grammar.RTNTransition{
				{Kind: grammar.TerminalTransition, Terminal: bID, Dest: 2},
			}},
			{IsFinal: true, LookaheadType: grammar.HasNeither},
		},
	}
	return &grammar.Grammar{
		Strings: grammar.NewStrings([]string{"S", "a", "b", "WS"}),
		IntFAs:  []*grammar.IntFA{fa},
		RTNs:    []*grammar.RTN{rtn},
	}
}

// --- fixture: S := A | B, disambiguated by a 2-token GLA; A:="x" "y", B:="x" "z" ---

func glaGrammar() *grammar.Grammar {
	const sID, aID, bID, xID, yID, zID = 0, 1, 2, 3, 4, 5

	chars := &grammar.IntFA{
		States: []grammar.IntFAState{
			{AcceptLabel: grammar.NoString, Transitions: []grammar.IntFATransition{
				{Low: 'x', High: 'x', Dest: 1},
				{Low: 'y', High: 'y', Dest: 2},
				{Low: 'z', High: 'z', Dest: 3},
			}},
			{AcceptLabel: xID},
			{AcceptLabel: yID},
			{AcceptLabel: zID},
		},
	}

	gla := &grammar.GLA{
		States: []grammar.GLAState{
			{IntFA: 0, Transitions: []grammar.GLATransition{{Terminal: xID, Dest: 1}}},
			{IntFA: 0, Transitions: []grammar.GLATransition{
				{Terminal: yID, Dest: 2},
				{Terminal: zID, Dest: 3},
			}},
			{Final: true, TransitionOffset: 1}, // take S's 1st transition (A)
			{Final: true, TransitionOffset: 2}, // take S's 2nd transition (B)
		},
	}

	s := &grammar.RTN{
		Name: sID,
		States: []grammar.RTNState{
			{LookaheadType: grammar.HasGLA, GLA: 0, Transitions: []grammar.RTNTransition{
				{Kind: grammar.NonterminalTransition, Nonterminal: 1, Dest: 1},
				{Kind: grammar.NonterminalTransition, Nonterminal: 2, Dest: 1},
			}},
			{IsFinal: true, LookaheadType: grammar.HasNeither},
		},
	}
	a := &grammar.RTN{
		Name: aID,
		States: []grammar.RTNState{
			{LookaheadType: grammar.HasIntFA, IntFA: 0, Transitions: []grammar.RTNTransition{
				{Kind: grammar.TerminalTransition, Terminal: xID, Dest: 1},
			}},
			{LookaheadType: grammar.HasIntFA, IntFA: 0, Transitions: []grammar.RTNTransition{
				{Kind: grammar.TerminalTransition, Terminal: yID, Dest: 2},
			}},
			{IsFinal: true, LookaheadType: grammar.HasNeither},
		},
	}
	b := &grammar.RTN{
		Name: bID,
		States: []grammar.RTNState{
			{LookaheadType: grammar.HasIntFA, IntFA: 0, Transitions: []grammar.RTNTransition{
				{Kind: grammar.TerminalTransition, Terminal: xID, Dest: 1},
			}},
			{LookaheadType: grammar.HasIntFA, IntFA: 0, Transitions: []grammar.RTNTransition{
				{Kind: grammar.TerminalTransition, Terminal: zID, Dest: 2},
			}},
			{IsFinal: true, LookaheadType: grammar.HasNeither},
		},
	}

	return &grammar.Grammar{
		Strings: grammar.NewStrings([]string{"S", "A", "B", "x", "y", "z"}),
		IntFAs:  []*grammar.IntFA{chars},
		GLAs:    []*grammar.GLA{gla},
		RTNs:    []*grammar.RTN{s, a, b},
	}
}

// --- fixture: S := IDENT, IDENT = [a-z]+ (multi-byte, needs retry to close) ---

func identGrammar() *grammar.Grammar {
	const identID = 1
	fa := &grammar.IntFA{
		States: []grammar.IntFAState{
			{AcceptLabel: grammar.NoString, Transitions: []grammar.IntFATransition{{Low: 'a', High: 'z', Dest: 1}}},
			{AcceptLabel: identID, Transitions: []grammar.IntFATransition{{Low: 'a', High: 'z', Dest: 1}}},
		},
	}
	rtn := &grammar.RTN{
		Name: 0,
		States: []grammar.RTNState{
			{LookaheadType: grammar.HasIntFA, IntFA: 0, Transitions: []grammar.RTNTransition{
				{Kind: grammar.TerminalTransition, Terminal: identID, Dest: 1},
			}},
			{IsFinal: true, LookaheadType: grammar.HasNeither},
		},
	}
	return &grammar.Grammar{
		Strings: grammar.NewStrings([]string{"S", "IDENT"}),
		IntFAs:  []*grammar.IntFA{fa},
		RTNs:    []*grammar.RTN{rtn},
	}
}

func Test_Engine_EmptyLanguage(t *testing.T) {
	rec := &recorder{}
	ps := NewParseState(newBound(emptyLanguageGrammar(), rec), Limits{})

	status, err := ps.Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, StatusHardEOF, status)

	ok, err := ps.FinishParse()
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, []string{"start_rule:S", "end_rule:S"}, rec.events)
}

func Test_Engine_SingleTerminalAcceptance(t *testing.T) {
	rec := &recorder{}
	ps := NewParseState(newBound(singleTerminalGrammar(), rec), Limits{})

	status, err := ps.Parse([]byte("x"))
	require.NoError(t, err)
	assert.Equal(t, StatusHardEOF, status)

	ok, err := ps.FinishParse()
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, []string{"start_rule:S", "terminal:x", "end_rule:S"}, rec.events)
}

func Test_Engine_IgnoreListSkipsWhitespace(t *testing.T) {
	rec := &recorder{}
	ps := NewParseState(newBound(ignoreListGrammar(), rec), Limits{})

	status, err := ps.Parse([]byte("a b"))
	require.NoError(t, err)
	assert.Equal(t, StatusHardEOF, status)

	ok, err := ps.FinishParse()
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, []string{"start_rule:S", "terminal:a", "terminal:b", "end_rule:S"}, rec.events)
}

func Test_Engine_GLADisambiguatesSecondToken(t *testing.T) {
	rec := &recorder{}
	ps := NewParseState(newBound(glaGrammar(), rec), Limits{})

	status, err := ps.Parse([]byte("xz"))
	require.NoError(t, err)
	assert.Equal(t, StatusHardEOF, status)

	ok, err := ps.FinishParse()
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, []string{
		"start_rule:S", "start_rule:B", "terminal:x", "terminal:z", "end_rule:B", "end_rule:S",
	}, rec.events)
}

func Test_Engine_ResumesAcrossBufferBoundary(t *testing.T) {
	rec := &recorder{}
	ps := NewParseState(newBound(identGrammar(), rec), Limits{})

	status, err := ps.Parse([]byte("a"))
	require.NoError(t, err)
	assert.Equal(t, StatusOK, status)
	assert.Equal(t, 1, ps.Offset().Byte)

	status, err = ps.Parse([]byte("b"))
	require.NoError(t, err)
	assert.Equal(t, StatusOK, status)
	assert.Equal(t, 2, ps.Offset().Byte)

	ok, err := ps.FinishParse()
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, []string{"start_rule:S", "terminal:IDENT", "end_rule:S"}, rec.events)
}

func Test_Engine_SameInputWholeVsSplitProducesIdenticalEvents(t *testing.T) {
	whole := &recorder{}
	psWhole := NewParseState(newBound(identGrammar(), whole), Limits{})
	_, err := psWhole.Parse([]byte("abc"))
	require.NoError(t, err)
	_, err = psWhole.FinishParse()
	require.NoError(t, err)

	split := &recorder{}
	psSplit := NewParseState(newBound(identGrammar(), split), Limits{})
	for _, b := range []byte("abc") {
		_, err := psSplit.Parse([]byte{b})
		require.NoError(t, err)
	}
	_, err = psSplit.FinishParse()
	require.NoError(t, err)

	assert.Equal(t, whole.events, split.events)
}

func Test_Engine_SyntacticErrorFiresErrorTerminal(t *testing.T) {
	const xID, yID = 1, 2
	fa := &grammar.IntFA{
		States: []grammar.IntFAState{
			{AcceptLabel: grammar.NoString, Transitions: []grammar.IntFATransition{
				{Low: 'x', High: 'x', Dest: 1},
				{Low: 'y', High: 'y', Dest: 2},
			}},
			{AcceptLabel: xID},
			{AcceptLabel: yID},
		},
	}
	rtn := &grammar.RTN{
		Name: 0,
		States: []grammar.RTNState{
			{LookaheadType: grammar.HasIntFA, IntFA: 0, Transitions: []grammar.RTNTransition{
				{Kind: grammar.TerminalTransition, Terminal: xID, Dest: 1},
			}},
			{IsFinal: true, LookaheadType: grammar.HasNeither},
		},
	}
	g := &grammar.Grammar{
		Strings: grammar.NewStrings([]string{"S", "X", "Y"}),
		IntFAs:  []*grammar.IntFA{fa},
		RTNs:    []*grammar.RTN{rtn},
	}

	rec := &recorder{}
	ps := NewParseState(newBound(g, rec), Limits{})

	status, err := ps.Parse([]byte("y"))
	require.Error(t, err)
	assert.Equal(t, StatusError, status)
	assert.Contains(t, rec.events, "error_terminal:Y")

	kind, ok := gzlerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, gzlerr.KindSyntactic, kind)
}

func Test_Engine_LexicalErrorFiresErrorChar(t *testing.T) {
	fa := &grammar.IntFA{
		States: []grammar.IntFAState{
			{AcceptLabel: grammar.NoString, Transitions: []grammar.IntFATransition{{Low: 'x', High: 'x', Dest: 1}}},
			{AcceptLabel: 1},
		},
	}
	rtn := &grammar.RTN{
		Name: 0,
		States: []grammar.RTNState{
			{LookaheadType: grammar.HasIntFA, IntFA: 0, Transitions: []grammar.RTNTransition{
				{Kind: grammar.TerminalTransition, Terminal: 1, Dest: 1},
			}},
			{IsFinal: true, LookaheadType: grammar.HasNeither},
		},
	}
	g := &grammar.Grammar{
		Strings: grammar.NewStrings([]string{"S", "X"}),
		IntFAs:  []*grammar.IntFA{fa},
		RTNs:    []*grammar.RTN{rtn},
	}

	rec := &recorder{}
	ps := NewParseState(newBound(g, rec), Limits{})

	status, err := ps.Parse([]byte("q"))
	require.Error(t, err)
	assert.Equal(t, StatusError, status)
	assert.Contains(t, rec.events, "error_char")
}

func Test_Engine_OffsetTracksLinesAndColumnsWithNewlineCoalescing(t *testing.T) {
	ps := NewParseState(newBound(emptyLanguageGrammar(), NoopCallbacks{}), Limits{})

	feed := func(s string) {
		for i := 0; i < len(s); i++ {
			ps.advanceByte(s[i])
		}
	}

	feed("ab")
	assert.Equal(t, Offset{Byte: 2, Line: 1, Column: 3}, ps.offset)

	feed("\r\n") // CRLF coalesces into a single line break
	assert.Equal(t, 2, ps.offset.Line)
	assert.Equal(t, 1, ps.offset.Column)

	feed("\n\n") // LF-LF counts as two line breaks
	assert.Equal(t, 4, ps.offset.Line)
	assert.Equal(t, 1, ps.offset.Column)

	feed("c")
	assert.Equal(t, 7, ps.offset.Byte)
	assert.Equal(t, 2, ps.offset.Column)
}
