package api

import (
	"time"

	"github.com/google/uuid"
)

// InfoModel is the response body of GET /info.
type InfoModel struct {
	Version  string `json:"version"`
	LoggedIn bool   `json:"logged_in"`
	Username string `json:"username,omitempty"`
}

// LoginRequest is the request body of POST /login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the response body of POST /login.
type LoginResponse struct {
	Token  string    `json:"token"`
	UserID uuid.UUID `json:"user_id"`
}

// GrammarModel is the public representation of an uploaded grammar. Its
// Image is omitted from listing responses and only included when a single
// grammar is fetched by ID.
type GrammarModel struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Created time.Time `json:"created"`
	Image   []byte    `json:"image,omitempty"`
}

// CreateSessionRequest is the request body of POST /sessions.
type CreateSessionRequest struct {
	GrammarID uuid.UUID `json:"grammar_id"`
}

// SessionModel is the public representation of a parse session.
type SessionModel struct {
	ID        uuid.UUID `json:"id"`
	GrammarID uuid.UUID `json:"grammar_id"`
	Created   time.Time `json:"created"`
	Finished  bool      `json:"finished"`
	Status    string    `json:"status"`
	BytesFed  int       `json:"bytes_fed"`
}

// ParseEvent is one callback event emitted while feeding a session, in the
// order the engine produced it.
type ParseEvent struct {
	Kind     string `json:"kind"`
	Rule     string `json:"rule,omitempty"`
	Terminal string `json:"terminal,omitempty"`
	Text     string `json:"text,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}

// FeedResponse is the response body of POST /sessions/{id}/feed.
type FeedResponse struct {
	Session SessionModel `json:"session"`
	Events  []ParseEvent `json:"events"`
}

// FinishResponse is the response body of POST /sessions/{id}/finish.
type FinishResponse struct {
	Session  SessionModel `json:"session"`
	Complete bool         `json:"complete"`
}
