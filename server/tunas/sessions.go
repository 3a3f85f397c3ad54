package tunas

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dekarrin/gazelle/internal/engine"
	"github.com/dekarrin/gazelle/internal/grammar"
	"github.com/dekarrin/gazelle/internal/parsetree"
	"github.com/dekarrin/gazelle/server/dao"
	"github.com/dekarrin/gazelle/server/serr"
	"github.com/google/uuid"
)

// liveSession holds the in-process parse state for one open session: the
// engine.ParseState driving it and the parsetree.Builder accumulating its
// tree, neither of which can be written to persistence (see the Service
// doc comment). Access is serialized since a session may be fed and
// queried for its tree from different requests.
type liveSession struct {
	mu      sync.Mutex
	state   *engine.ParseState
	builder *parsetree.Builder
}

type sessionRegistry struct {
	mu   sync.Mutex
	live map[uuid.UUID]*liveSession
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{live: make(map[uuid.UUID]*liveSession)}
}

func (r *sessionRegistry) get(id uuid.UUID) (*liveSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ls, ok := r.live[id]
	return ls, ok
}

func (r *sessionRegistry) put(id uuid.UUID, ls *liveSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live[id] = ls
}

func (r *sessionRegistry) delete(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.live, id)
}

// CreateSession opens a new parse session against the grammar identified
// by grammarID. The returned error matches serr.ErrNotFound via errors.Is
// if no such grammar exists.
func (svc Service) CreateSession(ctx context.Context, grammarID uuid.UUID) (dao.ParseSession, error) {
	g, err := svc.loadedGrammar(ctx, grammarID)
	if err != nil {
		return dao.ParseSession{}, err
	}

	rec := dao.ParseSession{
		GrammarID: grammarID,
		Created:   time.Now(),
		Status:    engine.StatusOK.String(),
	}
	rec, err = svc.DB.ParseSessions().Create(ctx, rec)
	if err != nil {
		return dao.ParseSession{}, serr.WrapDB("could not store parse session", err)
	}

	state := engine.NewParseState(&engine.BoundGrammar{Grammar: g}, engine.Limits{})
	builder := parsetree.NewBuilder(nil)
	state.Bound.Callbacks = builder

	svc.sessions.put(rec.ID, &liveSession{state: state, builder: builder})
	return rec, nil
}

// GetSession retrieves the persisted record for a session. The returned
// error matches serr.ErrNotFound via errors.Is if it does not exist.
func (svc Service) GetSession(ctx context.Context, id uuid.UUID) (dao.ParseSession, error) {
	sesh, err := svc.DB.ParseSessions().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			return dao.ParseSession{}, serr.ErrNotFound
		}
		return dao.ParseSession{}, serr.WrapDB("could not retrieve parse session", err)
	}
	return sesh, nil
}

// FeedEvent is one callback event produced while feeding a session new
// input, recorded in the order the engine emitted it.
type FeedEvent struct {
	Kind     string
	Rule     string
	Terminal string
	Text     string
	Offset   int
}

// feedCallbacks wraps a parsetree.Builder so that one Parse call both
// grows the session's accumulated tree and records a flat list of the
// events it produced, for the feed endpoint to return to its caller.
type feedCallbacks struct {
	*parsetree.Builder
	events *[]FeedEvent
}

func (c feedCallbacks) StartRule(ps *engine.ParseState, rtn *grammar.RTN) engine.Signal {
	sig := c.Builder.StartRule(ps, rtn)
	*c.events = append(*c.events, FeedEvent{Kind: "start_rule", Rule: ps.Bound.Grammar.Strings.Get(rtn.Name)})
	return sig
}

func (c feedCallbacks) EndRule(ps *engine.ParseState, rtn *grammar.RTN) engine.Signal {
	sig := c.Builder.EndRule(ps, rtn)
	*c.events = append(*c.events, FeedEvent{Kind: "end_rule", Rule: ps.Bound.Grammar.Strings.Get(rtn.Name)})
	return sig
}

func (c feedCallbacks) Terminal(ps *engine.ParseState, tok engine.Terminal) engine.Signal {
	sig := c.Builder.Terminal(ps, tok)
	text := ""
	if end := tok.Offset.Byte + tok.Length; tok.Offset.Byte >= 0 && end <= len(c.Builder.Source) {
		text = string(c.Builder.Source[tok.Offset.Byte:end])
	}
	*c.events = append(*c.events, FeedEvent{
		Kind:     "terminal",
		Terminal: ps.Bound.Grammar.Strings.Get(tok.Name),
		Text:     text,
		Offset:   tok.Offset.Byte,
	})
	return sig
}

func (c feedCallbacks) ErrorChar(ps *engine.ParseState, ch byte) engine.Signal {
	sig := c.Builder.ErrorChar(ps, ch)
	*c.events = append(*c.events, FeedEvent{Kind: "error_char", Offset: ps.Offset().Byte})
	return sig
}

func (c feedCallbacks) ErrorTerminal(ps *engine.ParseState, name string) engine.Signal {
	sig := c.Builder.ErrorTerminal(ps, name)
	*c.events = append(*c.events, FeedEvent{Kind: "error_terminal", Terminal: name, Offset: ps.Offset().Byte})
	return sig
}

// Feed appends data to the open session identified by id and returns the
// callback events it produced plus the session's updated persisted
// record. The returned error matches serr.ErrNotFound via errors.Is if the
// session does not exist or has no corresponding live engine state (for
// example, because the server restarted since it was opened).
func (svc Service) Feed(ctx context.Context, id uuid.UUID, data []byte) (dao.ParseSession, []FeedEvent, error) {
	ls, ok := svc.sessions.get(id)
	if !ok {
		return dao.ParseSession{}, nil, serr.New("parse session is not open on this server", serr.ErrNotFound)
	}

	rec, err := svc.DB.ParseSessions().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			return dao.ParseSession{}, nil, serr.ErrNotFound
		}
		return dao.ParseSession{}, nil, serr.WrapDB("could not retrieve parse session", err)
	}
	if rec.Finished {
		return dao.ParseSession{}, nil, serr.New("parse session is already finished", serr.ErrBadArgument)
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()

	ls.builder.Source = append(rec.FedBytes, data...)
	rec.FedBytes = ls.builder.Source

	var events []FeedEvent
	ls.state.Bound.Callbacks = feedCallbacks{Builder: ls.builder, events: &events}

	status, perr := ls.state.Parse(data)
	rec.Status = status.String()

	rec, uerr := svc.DB.ParseSessions().Update(ctx, id, rec)
	if uerr != nil {
		return dao.ParseSession{}, nil, serr.WrapDB("could not update parse session", uerr)
	}

	if perr != nil {
		return rec, events, serr.New("parse error", perr)
	}
	return rec, events, nil
}

// Finish signals end-of-input to the session identified by id and reports
// whether the parse concluded in a valid accepting configuration. The
// returned error matches serr.ErrNotFound via errors.Is under the same
// conditions as Feed.
func (svc Service) Finish(ctx context.Context, id uuid.UUID) (dao.ParseSession, bool, error) {
	ls, ok := svc.sessions.get(id)
	if !ok {
		return dao.ParseSession{}, false, serr.New("parse session is not open on this server", serr.ErrNotFound)
	}

	rec, err := svc.DB.ParseSessions().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			return dao.ParseSession{}, false, serr.ErrNotFound
		}
		return dao.ParseSession{}, false, serr.WrapDB("could not retrieve parse session", err)
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()

	complete, ferr := ls.state.FinishParse()
	rec.Finished = true
	switch {
	case ferr != nil:
		rec.Status = "ERROR"
	case complete:
		rec.Status = "COMPLETE"
	default:
		rec.Status = "INCOMPLETE"
	}

	rec, uerr := svc.DB.ParseSessions().Update(ctx, id, rec)
	if uerr != nil {
		return dao.ParseSession{}, false, serr.WrapDB("could not update parse session", uerr)
	}

	if ferr != nil {
		return rec, false, serr.New("parse error", ferr)
	}
	return rec, complete, nil
}

// Tree returns the accumulated parse tree for the session identified by
// id, as materialized so far. The returned error matches serr.ErrNotFound
// via errors.Is under the same conditions as Feed.
func (svc Service) Tree(ctx context.Context, id uuid.UUID) (parsetree.Node, error) {
	ls, ok := svc.sessions.get(id)
	if !ok {
		return nil, serr.New("parse session is not open on this server", serr.ErrNotFound)
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()

	return ls.builder.Root, nil
}

// CloseSession discards a session's in-process engine state, freeing the
// memory it holds. Its persisted record is left untouched.
func (svc Service) CloseSession(id uuid.UUID) {
	svc.sessions.delete(id)
}
