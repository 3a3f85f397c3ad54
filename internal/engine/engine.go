package engine

import (
	"errors"

	"github.com/dekarrin/gazelle/internal/grammar"
	"github.com/dekarrin/gazelle/internal/gzlerr"
)

// errCancelled is an internal sentinel used to unwind out of nested
// descent/routing helpers once a callback has requested cancellation. It
// never escapes this package; Parse converts it to StatusCancelled.
var errCancelled = errors.New("parse cancelled by callback")

func statusForErr(err error) (Status, error) {
	if k, ok := gzlerr.KindOf(err); ok && k == gzlerr.KindResourceLimit {
		return StatusResourceLimitExceeded, err
	}
	return StatusError, err
}

// signalResult records cancellation on ps if sig asks for it, and reports
// whether it did.
func (ps *ParseState) signalResult(sig Signal) bool {
	if sig == Cancel {
		ps.cancelled = true
		return true
	}
	return false
}

func (ps *ParseState) advanceByte(ch byte) {
	ps.offset.Byte++
	if ch == 0x0A || ch == 0x0D {
		if ps.lastNewline == 0 || ps.lastNewline == ch {
			ps.offset.Line++
			ps.offset.Column = 1
		}
		ps.lastNewline = ch
	} else {
		ps.offset.Column++
		ps.lastNewline = 0
	}
}

// --- frame operations (spec §4.3.1) ---

func (ps *ParseState) pushFrame(f Frame) error {
	if err := ps.checkStackDepth(); err != nil {
		return err
	}
	ps.stack.Push(f)
	return nil
}

func (ps *ParseState) pushIntFA(idx int) error {
	return ps.pushFrame(Frame{Kind: FrameIntFA, Start: ps.offset, IntFA: idx})
}

func (ps *ParseState) pushGLA(idx int) error {
	return ps.pushFrame(Frame{Kind: FrameGLA, Start: ps.offset, GLA: idx})
}

func (ps *ParseState) pushRTN(idx int) (Signal, error) {
	f := Frame{Kind: FrameRTN, Start: ps.offset, RTN: idx}
	if err := ps.pushFrame(f); err != nil {
		return Continue, err
	}
	rtn := ps.grammar().RTNs[idx]
	return ps.Bound.callbacks().StartRule(ps, rtn), nil
}

// pushRTNForTransition commits t on caller (the frame immediately below
// the one about to be pushed) so that when the callee RTN eventually
// pops, caller knows which state to resume at.
func (ps *ParseState) pushRTNForTransition(caller *Frame, t grammar.RTNTransition) (Signal, error) {
	caller.HasTransition = true
	caller.Transition = t
	return ps.pushRTN(t.Nonterminal)
}

// popRTN fires end_rule, pops the top RTN frame, and resumes the new top
// if it had committed a transition into the frame just popped.
func (ps *ParseState) popRTN() (Signal, error) {
	top := ps.stack.Top()
	rtn := ps.grammar().RTNs[top.RTN]
	sig := ps.Bound.callbacks().EndRule(ps, rtn)
	ps.stack.Pop()
	if sig == Cancel {
		return Cancel, nil
	}
	if ps.stack.Len() > 0 {
		newTop := ps.stack.Top()
		if newTop.Kind == FrameRTN && newTop.HasTransition {
			newTop.RTNState = newTop.Transition.Dest
			newTop.HasTransition = false
		}
	}
	return Continue, nil
}

// pushIntFAForCurrentTop pushes the IntFA the current top frame needs to
// tokenize its next input: the RTN state's own IntFA, or the active GLA
// state's IntFA if lookahead is in progress.
func (ps *ParseState) pushIntFAForCurrentTop() error {
	top := ps.TopFrame()
	if top == nil {
		return nil
	}
	switch top.Kind {
	case FrameRTN:
		rtn := ps.grammar().RTNs[top.RTN]
		state := rtn.States[top.RTNState]
		return ps.pushIntFA(state.IntFA)
	case FrameGLA:
		gla := ps.grammar().GLAs[top.GLA]
		state := gla.States[top.GLAState]
		return ps.pushIntFA(state.IntFA)
	default:
		return gzlerr.New(gzlerr.KindCorruptGrammar, "no lookahead automaton available for current frame")
	}
}

// --- epsilon descent (spec §4.3.2) ---

// descendToGLA drives epsilon (non-terminal-consuming) RTN transitions
// until a lookahead decision is needed or the stack empties (hard EOF).
// It returns true if it entered a new GLA frame.
func (ps *ParseState) descendToGLA() (entered bool, err error) {
	for {
		top := ps.TopFrame()
		if top == nil {
			return false, nil
		}
		switch top.Kind {
		case FrameGLA:
			return false, nil
		case FrameRTN:
			rtn := ps.grammar().RTNs[top.RTN]
			state := rtn.States[top.RTNState]
			switch state.LookaheadType {
			case grammar.HasIntFA:
				return false, nil
			case grammar.HasGLA:
				if err := ps.pushGLA(state.GLA); err != nil {
					return false, err
				}
				return true, nil
			default: // HasNeither
				if len(state.Transitions) == 0 {
					sig, err := ps.popRTN()
					if err != nil {
						return false, err
					}
					if ps.signalResult(sig) {
						return false, errCancelled
					}
					continue
				}
				tr := state.Transitions[0]
				sig, err := ps.pushRTNForTransition(top, tr)
				if err != nil {
					return false, err
				}
				if ps.signalResult(sig) {
					return false, errCancelled
				}
				continue
			}
		default:
			return false, gzlerr.New(gzlerr.KindCorruptGrammar, "epsilon descent reached an IntFA frame")
		}
	}
}

// --- lexer tick (spec §4.3.3) ---

// stepByte runs one iteration of do_intfa_transition against ch. retry
// reports that ch was not consumed and must be retried (longest-match
// finalization of the previous lexeme).
func (ps *ParseState) stepByte(ch byte) (retry bool, status Status, err error) {
	top := ps.TopFrame()
	fa := ps.grammar().IntFAs[top.IntFA]

	if dest, ok := fa.Transition(top.IntFAState, ch); ok {
		top.IntFAState = dest
		ps.advanceByte(ch)
		newState := fa.States[dest]
		if newState.Accepting() && len(newState.Transitions) == 0 {
			term := Terminal{Name: newState.AcceptLabel, Offset: top.Start, Length: ps.offset.Byte - top.Start.Byte}
			st, err := ps.processTerminal(term)
			return false, st, err
		}
		return false, StatusOK, nil
	}

	curState := fa.States[top.IntFAState]
	if curState.Accepting() {
		term := Terminal{Name: curState.AcceptLabel, Offset: top.Start, Length: ps.offset.Byte - top.Start.Byte}
		st, err := ps.processTerminal(term)
		if err != nil || st != StatusOK {
			return false, st, err
		}
		return true, StatusOK, nil
	}

	sig := ps.Bound.callbacks().ErrorChar(ps, ch)
	if ps.signalResult(sig) {
		return false, StatusCancelled, nil
	}
	return false, StatusError, gzlerr.Newf(gzlerr.KindLexical, "no lexer transition for byte %#02x at %s", ch, ps.offset)
}

// --- terminal routing (spec §4.3.4) ---

func isIgnored(rtn *grammar.RTN, name int) bool {
	for _, t := range rtn.IgnoreTerminals {
		if t == name {
			return true
		}
	}
	return false
}

func findTerminalTransition(state grammar.RTNState, name int) (grammar.RTNTransition, bool) {
	for _, tr := range state.Transitions {
		if tr.Kind == grammar.TerminalTransition && tr.Terminal == name {
			return tr, true
		}
	}
	return grammar.RTNTransition{}, false
}

// consumeRTNTerminal fires the terminal callback for the token sitting at
// rtn_cursor, advances the RTN to tr.Dest, and advances rtn_cursor.
func (ps *ParseState) consumeRTNTerminal(top *Frame, tr grammar.RTNTransition) (Status, error) {
	tok := ps.tokens.At(ps.rtnCursor).Terminal
	top.HasTransition = true
	top.Transition = tr
	sig := ps.Bound.callbacks().Terminal(ps, tok)
	if ps.signalResult(sig) {
		return StatusCancelled, nil
	}
	top.RTNState = tr.Dest
	ps.rtnCursor++
	return StatusOK, nil
}

func (ps *ParseState) routeRTNTerminal(top *Frame) (Status, error) {
	bt := ps.tokens.At(ps.rtnCursor)
	if bt.Name == grammar.NoString {
		ps.rtnCursor++
		return StatusOK, nil
	}
	rtn := ps.grammar().RTNs[top.RTN]
	if isIgnored(rtn, bt.Name) {
		ps.rtnCursor++
		return StatusOK, nil
	}
	state := rtn.States[top.RTNState]
	tr, ok := findTerminalTransition(state, bt.Name)
	if !ok {
		sig := ps.Bound.callbacks().ErrorTerminal(ps, ps.grammar().Strings.Get(bt.Name))
		if ps.signalResult(sig) {
			return StatusCancelled, nil
		}
		return StatusError, gzlerr.Newf(gzlerr.KindSyntactic, "no RTN transition for terminal %q at %s",
			ps.grammar().Strings.Get(bt.Name), bt.Offset)
	}
	return ps.consumeRTNTerminal(top, tr)
}

func (ps *ParseState) routeGLATerminal(top *Frame) (Status, error) {
	bt := ps.tokens.At(ps.glaCursor)
	gla := ps.grammar().GLAs[top.GLA]
	dest, ok := gla.Transition(top.GLAState, bt.Name)
	if !ok {
		return StatusError, gzlerr.Newf(gzlerr.KindCorruptGrammar, "GLA has no transition for terminal %q",
			ps.grammar().Strings.Get(bt.Name))
	}
	top.GLAState = dest
	ps.glaCursor++

	glaState := gla.States[dest]
	if !glaState.Final {
		return StatusOK, nil
	}

	ps.stack.Pop() // the GLA has finished its job
	rtnFrame := ps.TopFrame()
	if rtnFrame == nil || rtnFrame.Kind != FrameRTN {
		return StatusError, gzlerr.New(gzlerr.KindCorruptGrammar, "GLA resolved with no enclosing RTN frame")
	}

	if glaState.TransitionOffset == 0 {
		sig, err := ps.popRTN()
		if err != nil {
			return StatusError, err
		}
		if ps.signalResult(sig) {
			return StatusCancelled, nil
		}
		return StatusOK, nil
	}

	rtn := ps.grammar().RTNs[rtnFrame.RTN]
	state := rtn.States[rtnFrame.RTNState]
	idx := glaState.TransitionOffset - 1
	if idx < 0 || idx >= len(state.Transitions) {
		return StatusError, gzlerr.New(gzlerr.KindCorruptGrammar, "GLA names an out-of-range RTN transition")
	}
	tr := state.Transitions[idx]
	if tr.Kind == grammar.TerminalTransition {
		return ps.consumeRTNTerminal(rtnFrame, tr)
	}
	sig, err := ps.pushRTNForTransition(rtnFrame, tr)
	if err != nil {
		return StatusError, err
	}
	if ps.signalResult(sig) {
		return StatusCancelled, nil
	}
	return StatusOK, nil
}

// processTerminal implements spec §4.3.4: it pops the just-finished IntFA
// frame, appends term to the token buffer, drives RTN/GLA routing until
// neither consumer can make progress with what's buffered, compacts the
// buffer, and pushes a fresh IntFA frame for whatever is now on top.
func (ps *ParseState) processTerminal(term Terminal) (Status, error) {
	ps.stack.Pop()

	if err := ps.checkLookahead(); err != nil {
		return StatusResourceLimitExceeded, err
	}
	ps.tokens.Push(bufferedTerminal{term})

routingLoop:
	for {
		top := ps.TopFrame()
		var st Status
		var err error
		switch {
		case top != nil && top.Kind == FrameRTN && ps.rtnCursor < ps.tokens.Len():
			st, err = ps.routeRTNTerminal(top)
		case top != nil && top.Kind == FrameGLA && ps.glaCursor < ps.tokens.Len():
			st, err = ps.routeGLATerminal(top)
		default:
			break routingLoop
		}
		if err != nil || st != StatusOK {
			return st, err
		}

		entered, err := ps.descendToGLA()
		if err != nil {
			if errors.Is(err, errCancelled) {
				return StatusCancelled, nil
			}
			return StatusError, err
		}
		if entered {
			ps.glaCursor = ps.rtnCursor
		}
		if ps.stack.Len() == 0 {
			break routingLoop
		}
	}

	if ps.rtnCursor < ps.tokens.Len() && ps.tokens.At(ps.rtnCursor).Name == grammar.NoString {
		ps.rtnCursor++
	}

	ps.tokens.DropFront(ps.rtnCursor)
	ps.glaCursor -= ps.rtnCursor
	if ps.glaCursor < 0 {
		ps.glaCursor = 0
	}
	ps.rtnCursor = 0

	if ps.tokens.Len() == 0 {
		ps.openTerminalOff = ps.offset
	} else {
		ps.openTerminalOff = ps.tokens.At(0).Offset
	}

	if ps.stack.Len() == 0 {
		ps.terminatedHardEOF = true
		return StatusHardEOF, nil
	}

	if err := ps.pushIntFAForCurrentTop(); err != nil {
		return statusForErr(err)
	}
	return StatusOK, nil
}

// --- initial/final phases (spec §4.3.5) ---

func (ps *ParseState) doInitial() (Status, error) {
	sig, err := ps.pushRTN(0)
	if err != nil {
		return statusForErr(err)
	}
	if ps.signalResult(sig) {
		return StatusCancelled, nil
	}

	if _, err := ps.descendToGLA(); err != nil {
		if errors.Is(err, errCancelled) {
			return StatusCancelled, nil
		}
		return statusForErr(err)
	}
	if ps.stack.Len() == 0 {
		ps.terminatedHardEOF = true
		return StatusHardEOF, nil
	}
	if err := ps.pushIntFAForCurrentTop(); err != nil {
		return statusForErr(err)
	}
	return StatusOK, nil
}

// Parse feeds data to the engine, resuming from wherever the last Parse
// call left off. It returns StatusOK once the whole slice has been
// consumed without the grammar concluding; any other status ends the
// parse (permanently, for Cancelled; resumably with more/different input
// otherwise is caller-defined policy).
func (ps *ParseState) Parse(data []byte) (Status, error) {
	if ps.cancelled {
		return StatusCancelled, nil
	}

	if ps.stack.Len() == 0 {
		if ps.offset.Byte == 0 && !ps.terminatedHardEOF {
			status, err := ps.doInitial()
			if status != StatusOK {
				return status, err
			}
		} else {
			return StatusHardEOF, nil
		}
	}

	i := 0
	for i < len(data) {
		ch := data[i]
		retry, status, err := ps.stepByte(ch)
		if err != nil {
			return status, err
		}
		if status != StatusOK {
			return status, nil
		}
		if !retry {
			i++
		}
		if ps.stack.Len() == 0 {
			ps.terminatedHardEOF = true
			return StatusHardEOF, nil
		}
	}
	return StatusOK, nil
}

// FinishParse handles end of input (spec §4.3.5). It reports whether the
// parse concluded in a valid accepting configuration.
func (ps *ParseState) FinishParse() (bool, error) {
	if ps.cancelled {
		return false, gzlerr.New(gzlerr.KindCancelled, "parse state is not resumable after cancellation")
	}
	if ps.stack.Len() == 0 {
		return true, nil
	}

	top := ps.TopFrame()
	if top.Kind == FrameIntFA {
		fa := ps.grammar().IntFAs[top.IntFA]
		switch {
		case top.IntFAState == 0:
			ps.stack.Pop()
		case fa.States[top.IntFAState].Accepting():
			state := fa.States[top.IntFAState]
			term := Terminal{Name: state.AcceptLabel, Offset: top.Start, Length: ps.offset.Byte - top.Start.Byte}
			st, err := ps.processTerminal(term)
			if err != nil {
				return false, err
			}
			if st != StatusOK && st != StatusHardEOF {
				return false, nil
			}
		default:
			return false, nil
		}
		top = ps.TopFrame()
	}

	if top != nil && top.Kind == FrameGLA {
		gla := ps.grammar().GLAs[top.GLA]
		if top.GLAState == 0 {
			ps.stack.Pop()
		} else {
			dest, ok := gla.Transition(top.GLAState, grammar.NoString)
			if !ok {
				return false, nil
			}
			top.GLAState = dest
			state2 := gla.States[dest]
			if !state2.Final {
				return false, nil
			}
			ps.stack.Pop()
			rtnFrame := ps.TopFrame()
			if rtnFrame == nil || rtnFrame.Kind != FrameRTN {
				return false, nil
			}
			if state2.TransitionOffset != 0 {
				return false, nil
			}
			sig, err := ps.popRTN()
			if err != nil {
				return false, err
			}
			if sig == Cancel {
				return false, gzlerr.New(gzlerr.KindCancelled, "cancelled during finish_parse")
			}
		}
	}

	for i := 0; i < ps.stack.Len(); i++ {
		f := ps.stack.At(i)
		if f.Kind != FrameRTN {
			return false, nil
		}
		rtn := ps.grammar().RTNs[f.RTN]
		if i == ps.stack.Len()-1 {
			if !rtn.States[f.RTNState].IsFinal {
				return false, nil
			}
		} else if !f.HasTransition || !rtn.States[f.Transition.Dest].IsFinal {
			return false, nil
		}
	}

	for ps.stack.Len() > 0 {
		sig, err := ps.popRTN()
		if err != nil {
			return false, err
		}
		if sig == Cancel {
			return false, gzlerr.New(gzlerr.KindCancelled, "cancelled during finish_parse")
		}
	}
	return true, nil
}
