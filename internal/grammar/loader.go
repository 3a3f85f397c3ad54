package grammar

import (
	"fmt"

	"github.com/dekarrin/gazelle/internal/bitcode"
)

// Block ids used by the grammar image format.
const (
	blockBlockInfo = 0
	blockIntFAs    = 8
	blockIntFA     = 9
	blockStrings   = 10
	blockRTNs      = 11
	blockRTN       = 12
	blockGLAs      = 13
	blockGLA       = 14
)

// Record ids shared across entities.
const (
	recString = 0

	recIntFAState      = 0
	recIntFAFinalState = 1
	recIntFATransition = 2
	recIntFATransRange = 3

	recGLAState      = 0
	recGLAFinalState = 1
	recGLATransition = 2

	recRTNInfo              = 0
	recRTNIgnore            = 1
	recRTNStateWithIntFA    = 2
	recRTNStateWithGLA      = 3
	recRTNTrivialState      = 4
	recRTNTransitionTerm    = 5
	recRTNTransitionNonterm = 6
)

// stringRef resolves a wire-encoded string reference: 0 means "absent",
// anything else is a 1-based index into the string table.
func stringRef(v uint64) int {
	if v == 0 {
		return NoString
	}
	return int(v) - 1
}

// Load consumes r's record stream and materializes an immutable grammar
// image. The loader dispatches on top-level block ids; unrecognized blocks
// are skipped. Every entity is read in two passes: the first counts its
// children so exact-size slices can be allocated, then the block is
// rewound and re-read to populate them.
func Load(r *bitcode.Reader) (*Grammar, error) {
	g := &Grammar{}
	var haveStrings bool

	for {
		rec := r.Advance()
		switch rec.Kind {
		case bitcode.StartBlock:
			switch rec.ID {
			case blockStrings:
				if err := loadStrings(r, g); err != nil {
					return nil, err
				}
				haveStrings = true
			case blockIntFAs:
				if err := loadIntFAs(r, g); err != nil {
					return nil, err
				}
			case blockGLAs:
				if err := loadGLAs(r, g); err != nil {
					return nil, err
				}
			case blockRTNs:
				if err := loadRTNs(r, g); err != nil {
					return nil, err
				}
			default:
				r.SkipBlock()
			}
		case bitcode.EndBlock:
			return nil, fmt.Errorf("corrupt grammar image: unexpected end of top-level stream")
		case bitcode.Eof:
			return finalize(g, haveStrings)
		case bitcode.Err:
			return nil, fmt.Errorf("corrupt grammar image: bitcode decoder reported %s", r.Errors())
		}
	}
}

func finalize(g *Grammar, haveStrings bool) (*Grammar, error) {
	if !haveStrings {
		return nil, fmt.Errorf("corrupt grammar image: missing string table")
	}
	if len(g.IntFAs) == 0 {
		return nil, fmt.Errorf("corrupt grammar image: no IntFAs defined")
	}
	if len(g.RTNs) == 0 {
		return nil, fmt.Errorf("corrupt grammar image: no RTNs defined")
	}
	for _, rtn := range g.RTNs {
		for _, st := range rtn.States {
			for _, tr := range st.Transitions {
				if tr.Kind == NonterminalTransition && (tr.Nonterminal < 0 || tr.Nonterminal >= len(g.RTNs)) {
					return nil, fmt.Errorf("corrupt grammar image: transition references out-of-range RTN %d", tr.Nonterminal)
				}
			}
		}
	}
	return g, nil
}

func loadStrings(r *bitcode.Reader, g *Grammar) error {
	for {
		rec := r.Advance()
		switch rec.Kind {
		case bitcode.DataRecord:
			if rec.ID != recString {
				return fmt.Errorf("corrupt grammar image: unexpected record %d in STRINGS block", rec.ID)
			}
			n := r.Current().Size()
			buf := make([]byte, n)
			for i := 0; i < n; i++ {
				buf[i] = r.Next8()
			}
			g.Strings.table = append(g.Strings.table, string(buf))
		case bitcode.EndBlock:
			return nil
		case bitcode.Err:
			return fmt.Errorf("corrupt grammar image: bitcode decoder reported %s in STRINGS block", r.Errors())
		default:
			return fmt.Errorf("corrupt grammar image: unexpected %s in STRINGS block", rec.Kind)
		}
	}
}

func loadIntFAs(r *bitcode.Reader, g *Grammar) error {
	for {
		rec := r.Advance()
		switch rec.Kind {
		case bitcode.StartBlock:
			if rec.ID != blockIntFA {
				return fmt.Errorf("corrupt grammar image: unexpected block %d in INTFAS block", rec.ID)
			}
			fa, err := loadOneIntFA(r)
			if err != nil {
				return err
			}
			g.IntFAs = append(g.IntFAs, fa)
		case bitcode.EndBlock:
			return nil
		case bitcode.Err:
			return fmt.Errorf("corrupt grammar image: bitcode decoder reported %s in INTFAS block", r.Errors())
		default:
			return fmt.Errorf("corrupt grammar image: unexpected %s in INTFAS block", rec.Kind)
		}
	}
}

// countIntFA performs the first pass: count states and transitions.
func loadOneIntFA(r *bitcode.Reader) (*IntFA, error) {
	numStates, numTrans, err := countEntity(r, func(rec *bitcode.Record) (isState, isTrans bool, err error) {
		switch rec.ID {
		case recIntFAState, recIntFAFinalState:
			return true, false, nil
		case recIntFATransition, recIntFATransRange:
			return false, true, nil
		default:
			return false, false, fmt.Errorf("corrupt grammar image: unexpected record %d in INTFA block", rec.ID)
		}
	})
	if err != nil {
		return nil, err
	}

	fa := &IntFA{States: make([]IntFAState, 0, numStates)}
	_ = numTrans

	for {
		rec := r.Advance()
		switch rec.Kind {
		case bitcode.DataRecord:
			switch rec.ID {
			case recIntFAState:
				n := int(r.Next32())
				fa.States = append(fa.States, IntFAState{
					AcceptLabel: NoString,
					Transitions: make([]IntFATransition, 0, n),
				})
			case recIntFAFinalState:
				n := int(r.Next32())
				label := stringRef(r.Next32())
				fa.States = append(fa.States, IntFAState{
					AcceptLabel: label,
					Transitions: make([]IntFATransition, 0, n),
				})
			case recIntFATransition:
				ch := r.Next8()
				dest := int(r.Next32())
				cur := &fa.States[len(fa.States)-1]
				cur.Transitions = append(cur.Transitions, IntFATransition{Low: ch, High: ch, Dest: dest})
			case recIntFATransRange:
				lo := r.Next8()
				hi := r.Next8()
				dest := int(r.Next32())
				cur := &fa.States[len(fa.States)-1]
				cur.Transitions = append(cur.Transitions, IntFATransition{Low: lo, High: hi, Dest: dest})
			default:
				return nil, fmt.Errorf("corrupt grammar image: unexpected record %d in INTFA block", rec.ID)
			}
		case bitcode.EndBlock:
			return fa, nil
		case bitcode.Err:
			return nil, fmt.Errorf("corrupt grammar image: bitcode decoder reported %s in INTFA block", r.Errors())
		default:
			return nil, fmt.Errorf("corrupt grammar image: unexpected %s in INTFA block", rec.Kind)
		}
	}
}

func loadGLAs(r *bitcode.Reader, g *Grammar) error {
	for {
		rec := r.Advance()
		switch rec.Kind {
		case bitcode.StartBlock:
			if rec.ID != blockGLA {
				return fmt.Errorf("corrupt grammar image: unexpected block %d in GLAS block", rec.ID)
			}
			gla, err := loadOneGLA(r, g)
			if err != nil {
				return err
			}
			g.GLAs = append(g.GLAs, gla)
		case bitcode.EndBlock:
			return nil
		case bitcode.Err:
			return fmt.Errorf("corrupt grammar image: bitcode decoder reported %s in GLAS block", r.Errors())
		default:
			return fmt.Errorf("corrupt grammar image: unexpected %s in GLAS block", rec.Kind)
		}
	}
}

func loadOneGLA(r *bitcode.Reader, g *Grammar) (*GLA, error) {
	numStates, _, err := countEntity(r, func(rec *bitcode.Record) (isState, isTrans bool, err error) {
		switch rec.ID {
		case recGLAState, recGLAFinalState:
			return true, false, nil
		case recGLATransition:
			return false, true, nil
		default:
			return false, false, fmt.Errorf("corrupt grammar image: unexpected record %d in GLA block", rec.ID)
		}
	})
	if err != nil {
		return nil, err
	}

	gla := &GLA{States: make([]GLAState, 0, numStates)}

	for {
		rec := r.Advance()
		switch rec.Kind {
		case bitcode.DataRecord:
			switch rec.ID {
			case recGLAState:
				intfaIdx := int(r.Next32())
				n := int(r.Next32())
				if intfaIdx < 0 || intfaIdx >= len(g.IntFAs) {
					return nil, fmt.Errorf("corrupt grammar image: GLA state references out-of-range IntFA %d", intfaIdx)
				}
				gla.States = append(gla.States, GLAState{
					IntFA:       intfaIdx,
					Transitions: make([]GLATransition, 0, n),
				})
			case recGLAFinalState:
				offset := int(r.Next32())
				gla.States = append(gla.States, GLAState{
					Final:            true,
					TransitionOffset: offset,
				})
			case recGLATransition:
				term := stringRef(r.Next32())
				dest := int(r.Next32())
				cur := &gla.States[len(gla.States)-1]
				if cur.Final {
					return nil, fmt.Errorf("corrupt grammar image: TRANSITION record attached to a final GLA state")
				}
				cur.Transitions = append(cur.Transitions, GLATransition{Terminal: term, Dest: dest})
			default:
				return nil, fmt.Errorf("corrupt grammar image: unexpected record %d in GLA block", rec.ID)
			}
		case bitcode.EndBlock:
			return gla, nil
		case bitcode.Err:
			return nil, fmt.Errorf("corrupt grammar image: bitcode decoder reported %s in GLA block", r.Errors())
		default:
			return nil, fmt.Errorf("corrupt grammar image: unexpected %s in GLA block", rec.Kind)
		}
	}
}

func loadRTNs(r *bitcode.Reader, g *Grammar) error {
	for {
		rec := r.Advance()
		switch rec.Kind {
		case bitcode.StartBlock:
			if rec.ID != blockRTN {
				return fmt.Errorf("corrupt grammar image: unexpected block %d in RTNS block", rec.ID)
			}
			rtn, err := loadOneRTN(r, g)
			if err != nil {
				return err
			}
			g.RTNs = append(g.RTNs, rtn)
		case bitcode.EndBlock:
			return nil
		case bitcode.Err:
			return fmt.Errorf("corrupt grammar image: bitcode decoder reported %s in RTNS block", r.Errors())
		default:
			return fmt.Errorf("corrupt grammar image: unexpected %s in RTNS block", rec.Kind)
		}
	}
}

func loadOneRTN(r *bitcode.Reader, g *Grammar) (*RTN, error) {
	numStates, _, err := countEntity(r, func(rec *bitcode.Record) (isState, isTrans bool, err error) {
		switch rec.ID {
		case recRTNInfo, recRTNIgnore:
			return false, false, nil
		case recRTNStateWithIntFA, recRTNStateWithGLA, recRTNTrivialState:
			return true, false, nil
		case recRTNTransitionTerm, recRTNTransitionNonterm:
			return false, true, nil
		default:
			return false, false, fmt.Errorf("corrupt grammar image: unexpected record %d in RTN block", rec.ID)
		}
	})
	if err != nil {
		return nil, err
	}

	rtn := &RTN{States: make([]RTNState, 0, numStates)}

	for {
		rec := r.Advance()
		switch rec.Kind {
		case bitcode.DataRecord:
			switch rec.ID {
			case recRTNInfo:
				rtn.Name = stringRef(r.Next32())
				rtn.NumSlots = int(r.Next32())
			case recRTNIgnore:
				term := stringRef(r.Next32())
				rtn.IgnoreTerminals = append(rtn.IgnoreTerminals, term)
			case recRTNStateWithIntFA:
				n := int(r.Next32())
				isFinal := r.Next8() != 0
				intfaIdx := int(r.Next32())
				if intfaIdx < 0 || intfaIdx >= len(g.IntFAs) {
					return nil, fmt.Errorf("corrupt grammar image: RTN state references out-of-range IntFA %d", intfaIdx)
				}
				rtn.States = append(rtn.States, RTNState{
					IsFinal:       isFinal,
					LookaheadType: HasIntFA,
					IntFA:         intfaIdx,
					Transitions:   make([]RTNTransition, 0, n),
				})
			case recRTNStateWithGLA:
				n := int(r.Next32())
				isFinal := r.Next8() != 0
				glaIdx := int(r.Next32())
				if glaIdx < 0 || glaIdx >= len(g.GLAs) {
					return nil, fmt.Errorf("corrupt grammar image: RTN state references out-of-range GLA %d", glaIdx)
				}
				rtn.States = append(rtn.States, RTNState{
					IsFinal:       isFinal,
					LookaheadType: HasGLA,
					GLA:           glaIdx,
					Transitions:   make([]RTNTransition, 0, n),
				})
			case recRTNTrivialState:
				n := int(r.Next32())
				isFinal := r.Next8() != 0
				rtn.States = append(rtn.States, RTNState{
					IsFinal:       isFinal,
					LookaheadType: HasNeither,
					Transitions:   make([]RTNTransition, 0, n),
				})
			case recRTNTransitionTerm:
				term := stringRef(r.Next32())
				dest := int(r.Next32())
				slotName := stringRef(r.Next32())
				slotNum := int(r.Next32()) - 1
				cur := &rtn.States[len(rtn.States)-1]
				cur.Transitions = append(cur.Transitions, RTNTransition{
					Kind: TerminalTransition, Terminal: term, Dest: dest,
					SlotName: slotName, SlotNum: slotNum,
				})
			case recRTNTransitionNonterm:
				// nt may index an RTN not yet loaded (forward/mutual
				// recursion) or the one currently being populated
				// (self-recursion), so it cannot be bounds-checked until
				// every RTN in the image has been loaded.
				nt := int(r.Next32())
				dest := int(r.Next32())
				slotName := stringRef(r.Next32())
				slotNum := int(r.Next32()) - 1
				cur := &rtn.States[len(rtn.States)-1]
				cur.Transitions = append(cur.Transitions, RTNTransition{
					Kind: NonterminalTransition, Nonterminal: nt, Dest: dest,
					SlotName: slotName, SlotNum: slotNum,
				})
			default:
				return nil, fmt.Errorf("corrupt grammar image: unexpected record %d in RTN block", rec.ID)
			}
		case bitcode.EndBlock:
			return rtn, nil
		case bitcode.Err:
			return nil, fmt.Errorf("corrupt grammar image: bitcode decoder reported %s in RTN block", r.Errors())
		default:
			return nil, fmt.Errorf("corrupt grammar image: unexpected %s in RTN block", rec.Kind)
		}
	}
}

// countEntity performs the generic first pass shared by IntFA/GLA/RTN
// entities: walk every record in the current block, classify it via
// classify, tally state and transition records, then rewind the block so
// the caller can re-read it to populate exact-size slices.
func countEntity(r *bitcode.Reader, classify func(*bitcode.Record) (isState, isTrans bool, err error)) (numStates, numTrans int, err error) {
	for {
		rec := r.Advance()
		switch rec.Kind {
		case bitcode.DataRecord:
			isState, isTrans, cerr := classify(&rec)
			if cerr != nil {
				return 0, 0, cerr
			}
			if isState {
				numStates++
			}
			if isTrans {
				numTrans++
			}
		case bitcode.EndBlock:
			r.RewindBlock()
			return numStates, numTrans, nil
		case bitcode.Err:
			return 0, 0, fmt.Errorf("corrupt grammar image: bitcode decoder reported %s", r.Errors())
		default:
			return 0, 0, fmt.Errorf("corrupt grammar image: unexpected %s during counting pass", rec.Kind)
		}
	}
}
