package api

import (
	"net/http"

	"github.com/dekarrin/gazelle/internal/version"
	"github.com/dekarrin/gazelle/server/dao"
	"github.com/dekarrin/gazelle/server/middle"
	"github.com/dekarrin/gazelle/server/result"
)

// HTTPGetInfo returns a HandlerFunc that retrieves information on the API and
// server.
//
// The handler has requirements for the request context it receives, and if the
// requirements are not met it may return an HTTP-500. The context must contain
// a value denoting whether the client making the request is logged-in.
func (api API) HTTPGetInfo() http.HandlerFunc {
	return httpEndpoint(api.UnauthDelay, api.epGetInfo)
}

func (api API) epGetInfo(req *http.Request) result.Result {
	loggedIn := req.Context().Value(middle.AuthLoggedIn).(bool)

	resp := InfoModel{
		Version:  version.Current,
		LoggedIn: loggedIn,
	}

	userStr := "unauthed client"
	if loggedIn {
		user := req.Context().Value(middle.AuthUser).(dao.User)
		resp.Username = user.Username
		userStr = "user '" + user.Username + "'"
	}
	return result.OK(resp, "%s got API info", userStr)
}
