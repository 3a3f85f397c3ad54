package api

import (
	"net/http"
	"time"

	"github.com/dekarrin/gazelle/server/dao"
	"github.com/dekarrin/gazelle/server/middle"
	"github.com/dekarrin/gazelle/server/tunas"
	"github.com/go-chi/chi/v5"
)

// Router builds the full set of routes for the parse service, mounted
// under PathPrefix. backend is the service layer that handlers call into;
// users is the same user repository backend.DB would return from Users(),
// passed separately so auth middleware does not need its own reference to
// the whole Store; secret signs and validates auth tokens.
func Router(backend tunas.Service, users dao.UserRepository, secret []byte, unauthDelay time.Duration, maxGrammarSize int64) http.Handler {
	a := API{
		Backend:        backend,
		UnauthDelay:    unauthDelay,
		Secret:         secret,
		MaxGrammarSize: maxGrammarSize,
	}

	r := chi.NewRouter()
	r.Use(middle.DontPanic())

	r.Route(PathPrefix, func(r chi.Router) {
		optAuth := middle.OptionalAuth(users, secret, unauthDelay, dao.User{})
		reqAuth := middle.RequireAuth(users, secret, unauthDelay, dao.User{})

		r.With(optAuth).Get("/info", a.HTTPGetInfo())

		r.Post("/login", a.HTTPCreateLogin())
		r.With(reqAuth).Delete("/login", a.HTTPDeleteLogin())
		r.With(reqAuth).Post("/tokens", a.HTTPCreateToken())

		r.With(reqAuth).Post("/grammars", a.HTTPCreateGrammar())
		r.With(optAuth).Get("/grammars", a.HTTPGetAllGrammars())
		r.With(optAuth).Get("/grammars/{id}", a.HTTPGetGrammar())
		r.With(reqAuth).Delete("/grammars/{id}", a.HTTPDeleteGrammar())

		r.Post("/sessions", a.HTTPCreateSession())
		r.Post("/sessions/{id}/feed", a.HTTPFeedSession())
		r.Post("/sessions/{id}/finish", a.HTTPFinishSession())
		r.Get("/sessions/{id}/tree", a.HTTPGetSessionTree())
	})

	return r
}
