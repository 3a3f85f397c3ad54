package grammar

import (
	"testing"

	"github.com/dekarrin/gazelle/internal/bitcode"
	"github.com/dekarrin/gazelle/internal/bitcode/bctest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildMinimal assembles a tiny but complete grammar image: a strings
// table, one IntFA recognizing a single byte 'x' as terminal "X", and one
// RTN with a single state that transitions on "X" to an accepting state.
func buildMinimal() []byte {
	w := bctest.New()

	// STRINGS block (id 10): 0="rule", 1="X"
	w.EnterSubblock(2, 10, 3)
	w.UnabbrevRecord(3, recString, []uint64{'r', 'u', 'l', 'e'})
	w.UnabbrevRecord(3, recString, []uint64{'X'})
	w.EndBlock(3)

	// INTFAS block (id 8) containing one INTFA block (id 9):
	// state 0: transition on 'x' -> state 1
	// state 1: final, accept label "X" (string id 1, wire ref 2)
	w.EnterSubblock(2, blockIntFAs, 3)
	w.EnterSubblock(3, blockIntFA, 3)
	w.UnabbrevRecord(3, recIntFAState, []uint64{1})
	w.UnabbrevRecord(3, recIntFATransition, []uint64{'x', 1})
	w.UnabbrevRecord(3, recIntFAFinalState, []uint64{0, 2})
	w.EndBlock(3)
	w.EndBlock(3)

	// RTNS block (id 11) containing one RTN block (id 12):
	// info: name = "rule" (string id 0, wire ref 1), 1 slot
	// state 0: HAS_INTFA using IntFA 0, not final, one terminal transition
	//          on "X" (wire ref 2) to state 1, slot name "x" absent (wire
	//          ref 0), slot num 1 (wire, 0-based 0)
	// state 1: trivial, final, no transitions
	w.EnterSubblock(2, blockRTNs, 3)
	w.EnterSubblock(3, blockRTN, 4)
	w.UnabbrevRecord(4, recRTNInfo, []uint64{1, 1})
	w.UnabbrevRecord(4, recRTNStateWithIntFA, []uint64{1, 0, 0})
	w.UnabbrevRecord(4, recRTNTransitionTerm, []uint64{2, 1, 0, 1})
	w.UnabbrevRecord(4, recRTNTrivialState, []uint64{0, 1})
	w.EndBlock(4)
	w.EndBlock(3)

	return w.Bytes()
}

func Test_Load_Minimal(t *testing.T) {
	r, err := bitcode.NewReader(buildMinimal())
	require.NoError(t, err)

	g, err := Load(r)
	require.NoError(t, err)

	require.Equal(t, 2, g.Strings.Len())
	assert.Equal(t, "rule", g.Strings.Get(0))
	assert.Equal(t, "X", g.Strings.Get(1))

	require.Len(t, g.IntFAs, 1)
	fa := g.IntFAs[0]
	require.Len(t, fa.States, 2)
	assert.False(t, fa.States[0].Accepting())
	dest, ok := fa.Transition(0, 'x')
	require.True(t, ok)
	assert.Equal(t, 1, dest)
	assert.True(t, fa.States[1].Accepting())
	assert.Equal(t, 1, fa.States[1].AcceptLabel)

	require.Len(t, g.RTNs, 1)
	rtn := g.Start()
	assert.Equal(t, 0, rtn.Name)
	assert.Equal(t, 1, rtn.NumSlots)
	assert.Empty(t, rtn.IgnoreTerminals)
	require.Len(t, rtn.States, 2)

	st0 := rtn.States[0]
	assert.False(t, st0.IsFinal)
	assert.Equal(t, HasIntFA, st0.LookaheadType)
	assert.Equal(t, 0, st0.IntFA)
	require.Len(t, st0.Transitions, 1)
	tr := st0.Transitions[0]
	assert.Equal(t, TerminalTransition, tr.Kind)
	assert.Equal(t, 1, tr.Terminal)
	assert.Equal(t, 1, tr.Dest)
	assert.Equal(t, NoString, tr.SlotName)
	assert.Equal(t, 0, tr.SlotNum)

	st1 := rtn.States[1]
	assert.True(t, st1.IsFinal)
	assert.Equal(t, HasNeither, st1.LookaheadType)
	assert.Empty(t, st1.Transitions)
}

func Test_Load_RTNIgnoreTerminals(t *testing.T) {
	w := bctest.New()

	// strings: 0="S", 1="WS"
	w.EnterSubblock(2, blockStrings, 3)
	w.UnabbrevRecord(3, recString, []uint64{'S'})
	w.UnabbrevRecord(3, recString, []uint64{'W', 'S'})
	w.EndBlock(3)

	w.EnterSubblock(2, blockIntFAs, 3)
	w.EnterSubblock(3, blockIntFA, 3)
	w.UnabbrevRecord(3, recIntFAFinalState, []uint64{0, 1})
	w.EndBlock(3)
	w.EndBlock(3)

	w.EnterSubblock(2, blockRTNs, 3)
	w.EnterSubblock(3, blockRTN, 4)
	w.UnabbrevRecord(4, recRTNInfo, []uint64{1, 0})
	w.UnabbrevRecord(4, recRTNIgnore, []uint64{2}) // ignore "WS" (wire ref 2)
	w.UnabbrevRecord(4, recRTNTrivialState, []uint64{0, 1})
	w.EndBlock(4)
	w.EndBlock(3)

	r, err := bitcode.NewReader(w.Bytes())
	require.NoError(t, err)

	g, err := Load(r)
	require.NoError(t, err)

	rtn := g.Start()
	require.Len(t, rtn.IgnoreTerminals, 1)
	assert.Equal(t, "WS", g.Strings.Get(rtn.IgnoreTerminals[0]))
}

func Test_Load_UnknownTopLevelBlockIsSkipped(t *testing.T) {
	w := bctest.New()
	w.EnterSubblock(2, 77, 3)
	w.UnabbrevRecord(3, 0, []uint64{1, 2, 3})
	w.EndBlock(3)

	r, err := bitcode.NewReader(w.Bytes())
	require.NoError(t, err)

	// an image with only an unrecognized block is missing required
	// entities and must fail at finalize, proving the block was at least
	// skipped rather than mis-decoded as STRINGS/INTFAS/etc.
	_, err = Load(r)
	assert.Error(t, err)
}

func Test_Load_MissingStringsIsError(t *testing.T) {
	w := bctest.New()
	w.EnterSubblock(2, blockIntFAs, 3)
	w.EnterSubblock(3, blockIntFA, 3)
	w.UnabbrevRecord(3, recIntFAFinalState, []uint64{0, 0})
	w.EndBlock(3)
	w.EndBlock(3)
	w.EnterSubblock(2, blockRTNs, 3)
	w.EnterSubblock(3, blockRTN, 3)
	w.UnabbrevRecord(3, recRTNInfo, []uint64{0, 0})
	w.UnabbrevRecord(3, recRTNTrivialState, []uint64{0, 1})
	w.EndBlock(3)
	w.EndBlock(3)

	r, err := bitcode.NewReader(w.Bytes())
	require.NoError(t, err)

	_, err = Load(r)
	assert.Error(t, err)
}

func Test_Load_BlockInfoAbbrevsWorkAcrossEntities(t *testing.T) {
	w := bctest.New()

	// BLOCKINFO registers an abbreviation for STRINGS blocks: literal code
	// 0 (the STRING record id), followed by an array of char6.
	w.EnterSubblock(2, 0, 3)
	w.SetBID(3, blockStrings)
	w.DefineAbbrev(3, []bctest.AbbrevOpSpec{
		{Literal: true, LitValue: recString},
		{Encoding: 3}, // array
		{Encoding: 4}, // of char6
	})
	w.EndBlock(3)

	w.EnterSubblock(2, blockStrings, 3)
	w.Fixed(4, 3) // abbrev id 4, the one just registered
	w.VBR(2, 6)
	w.Char6('o')
	w.Char6('k')
	w.EndBlock(3)

	w.EnterSubblock(2, blockIntFAs, 3)
	w.EnterSubblock(3, blockIntFA, 3)
	w.UnabbrevRecord(3, recIntFAFinalState, []uint64{0, 1})
	w.EndBlock(3)
	w.EndBlock(3)

	w.EnterSubblock(2, blockRTNs, 3)
	w.EnterSubblock(3, blockRTN, 3)
	w.UnabbrevRecord(3, recRTNInfo, []uint64{1, 0})
	w.UnabbrevRecord(3, recRTNTrivialState, []uint64{0, 1})
	w.EndBlock(3)
	w.EndBlock(3)

	r, err := bitcode.NewReader(w.Bytes())
	require.NoError(t, err)

	g, err := Load(r)
	require.NoError(t, err)
	require.Equal(t, 1, g.Strings.Len())
	assert.Equal(t, "ok", g.Strings.Get(0))
}
