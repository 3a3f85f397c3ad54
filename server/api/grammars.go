package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/dekarrin/gazelle/server/dao"
	"github.com/dekarrin/gazelle/server/result"
	"github.com/dekarrin/gazelle/server/serr"
)

func toGrammarModel(g dao.Grammar, includeImage bool) GrammarModel {
	m := GrammarModel{ID: g.ID, Name: g.Name, Created: g.Created}
	if includeImage {
		m.Image = g.Image
	}
	return m
}

// HTTPCreateGrammar returns a HandlerFunc that uploads a new grammar
// image. The request body is the raw bitcode bytes of the grammar, and
// its name is given in the X-Grammar-Name header.
func (api API) HTTPCreateGrammar() http.HandlerFunc {
	return httpEndpoint(api.UnauthDelay, api.epCreateGrammar)
}

func (api API) epCreateGrammar(req *http.Request) result.Result {
	name := req.Header.Get("X-Grammar-Name")
	if name == "" {
		return result.BadRequest("X-Grammar-Name header is required", "missing grammar name")
	}

	var body io.Reader = req.Body
	if api.MaxGrammarSize > 0 {
		body = io.LimitReader(req.Body, api.MaxGrammarSize+1)
	}
	image, err := io.ReadAll(body)
	if err != nil {
		return result.BadRequest("could not read request body: "+err.Error(), err.Error())
	}
	if len(image) == 0 {
		return result.BadRequest("request body: grammar image is empty", "empty grammar image")
	}
	if api.MaxGrammarSize > 0 && int64(len(image)) > api.MaxGrammarSize {
		return result.Err(http.StatusRequestEntityTooLarge, "grammar image exceeds maximum allowed size", "grammar image too large: %d bytes", len(image))
	}

	g, err := api.Backend.UploadGrammar(req.Context(), name, image)
	if err != nil {
		if errors.Is(err, serr.ErrBadArgument) {
			return result.BadRequest(err.Error(), err.Error())
		}
		return result.InternalServerError(err.Error())
	}

	return result.Created(toGrammarModel(g, false), "grammar '%s' uploaded as %s", g.Name, g.ID)
}

// HTTPGetAllGrammars returns a HandlerFunc that lists all uploaded
// grammars. Grammar images are omitted from the listing.
func (api API) HTTPGetAllGrammars() http.HandlerFunc {
	return httpEndpoint(api.UnauthDelay, api.epGetAllGrammars)
}

func (api API) epGetAllGrammars(req *http.Request) result.Result {
	all, err := api.Backend.GetAllGrammars(req.Context())
	if err != nil {
		return result.InternalServerError(err.Error())
	}

	models := make([]GrammarModel, len(all))
	for i, g := range all {
		models[i] = toGrammarModel(g, false)
	}
	return result.OK(models, "retrieved %d grammars", len(models))
}

// HTTPGetGrammar returns a HandlerFunc that retrieves a single grammar,
// including its image bytes.
func (api API) HTTPGetGrammar() http.HandlerFunc {
	return httpEndpoint(api.UnauthDelay, api.epGetGrammar)
}

func (api API) epGetGrammar(req *http.Request) result.Result {
	id := requireIDParam(req)

	g, err := api.Backend.GetGrammar(req.Context(), id)
	if err != nil {
		if errors.Is(err, serr.ErrNotFound) {
			return result.NotFound()
		}
		return result.InternalServerError(err.Error())
	}

	return result.OK(toGrammarModel(g, true), "grammar '%s' retrieved", g.Name)
}

// HTTPDeleteGrammar returns a HandlerFunc that deletes a grammar.
func (api API) HTTPDeleteGrammar() http.HandlerFunc {
	return httpEndpoint(api.UnauthDelay, api.epDeleteGrammar)
}

func (api API) epDeleteGrammar(req *http.Request) result.Result {
	id := requireIDParam(req)

	g, err := api.Backend.DeleteGrammar(req.Context(), id)
	if err != nil {
		if errors.Is(err, serr.ErrNotFound) {
			return result.NotFound()
		}
		return result.InternalServerError(err.Error())
	}

	return result.NoContent("grammar '%s' deleted", g.Name)
}
