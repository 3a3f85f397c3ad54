package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/dekarrin/gazelle/server/dao"
	"github.com/dekarrin/gazelle/server/result"
	"github.com/dekarrin/gazelle/server/serr"
	"github.com/dekarrin/gazelle/server/tunas"
)

func toSessionModel(s dao.ParseSession) SessionModel {
	return SessionModel{
		ID:        s.ID,
		GrammarID: s.GrammarID,
		Created:   s.Created,
		Finished:  s.Finished,
		Status:    s.Status,
		BytesFed:  len(s.FedBytes),
	}
}

func toParseEvents(events []tunas.FeedEvent) []ParseEvent {
	out := make([]ParseEvent, len(events))
	for i, e := range events {
		out[i] = ParseEvent{Kind: e.Kind, Rule: e.Rule, Terminal: e.Terminal, Text: e.Text, Offset: e.Offset}
	}
	return out
}

// HTTPCreateSession returns a HandlerFunc that opens a new parse session
// against a previously-uploaded grammar.
func (api API) HTTPCreateSession() http.HandlerFunc {
	return httpEndpoint(api.UnauthDelay, api.epCreateSession)
}

func (api API) epCreateSession(req *http.Request) result.Result {
	createReq := CreateSessionRequest{}
	if err := parseJSON(req, &createReq); err != nil {
		return result.BadRequest(err.Error(), err.Error())
	}

	sesh, err := api.Backend.CreateSession(req.Context(), createReq.GrammarID)
	if err != nil {
		if errors.Is(err, serr.ErrNotFound) {
			return result.BadRequest("no such grammar", "grammar %s not found", createReq.GrammarID)
		}
		return result.InternalServerError(err.Error())
	}

	return result.Created(toSessionModel(sesh), "parse session %s opened against grammar %s", sesh.ID, sesh.GrammarID)
}

// HTTPFeedSession returns a HandlerFunc that feeds more input to an open
// session. The request body is the raw bytes to feed.
func (api API) HTTPFeedSession() http.HandlerFunc {
	return httpEndpoint(api.UnauthDelay, api.epFeedSession)
}

func (api API) epFeedSession(req *http.Request) result.Result {
	id := requireIDParam(req)

	data, err := io.ReadAll(req.Body)
	if err != nil {
		return result.BadRequest("could not read request body: "+err.Error(), err.Error())
	}

	sesh, events, err := api.Backend.Feed(req.Context(), id, data)
	if err != nil {
		if errors.Is(err, serr.ErrNotFound) {
			return result.NotFound()
		}
		if errors.Is(err, serr.ErrBadArgument) {
			return result.BadRequest(err.Error(), err.Error())
		}
		return result.OK(FeedResponse{Session: toSessionModel(sesh), Events: toParseEvents(events)}, "session %s fed %d bytes: %s", id, len(data), err.Error())
	}

	return result.OK(FeedResponse{Session: toSessionModel(sesh), Events: toParseEvents(events)}, "session %s fed %d bytes", id, len(data))
}

// HTTPFinishSession returns a HandlerFunc that signals end-of-input to an
// open session.
func (api API) HTTPFinishSession() http.HandlerFunc {
	return httpEndpoint(api.UnauthDelay, api.epFinishSession)
}

func (api API) epFinishSession(req *http.Request) result.Result {
	id := requireIDParam(req)

	sesh, complete, err := api.Backend.Finish(req.Context(), id)
	if err != nil {
		if errors.Is(err, serr.ErrNotFound) {
			return result.NotFound()
		}
		return result.OK(FinishResponse{Session: toSessionModel(sesh), Complete: complete}, "session %s finished: %s", id, err.Error())
	}

	return result.OK(FinishResponse{Session: toSessionModel(sesh), Complete: complete}, "session %s finished, complete=%t", id, complete)
}

// HTTPGetSessionTree returns a HandlerFunc that retrieves the parse tree
// accumulated so far for an open session.
func (api API) HTTPGetSessionTree() http.HandlerFunc {
	return httpEndpoint(api.UnauthDelay, api.epGetSessionTree)
}

func (api API) epGetSessionTree(req *http.Request) result.Result {
	id := requireIDParam(req)

	tree, err := api.Backend.Tree(req.Context(), id)
	if err != nil {
		if errors.Is(err, serr.ErrNotFound) {
			return result.NotFound()
		}
		return result.InternalServerError(err.Error())
	}
	if tree == nil {
		return result.OK(nil, "session %s has no tree yet", id)
	}

	return result.OK(tree, "session %s tree retrieved", id)
}
