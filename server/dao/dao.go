// Package dao provides data access objects for use in the parse service.
package dao

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store holds all the repositories backing the parse service.
type Store interface {
	Users() UserRepository
	Grammars() GrammarRepository
	ParseSessions() ParseSessionRepository
	Close() error
}

// GrammarRepository persists compiled grammar images.
type GrammarRepository interface {
	// Create stores a new Grammar. All attributes except auto-generated
	// fields are taken from the provided Grammar.
	Create(ctx context.Context, g Grammar) (Grammar, error)
	GetByID(ctx context.Context, id uuid.UUID) (Grammar, error)
	GetAll(ctx context.Context) ([]Grammar, error)
	Delete(ctx context.Context, id uuid.UUID) (Grammar, error)
	Close() error
}

// Grammar is one uploaded, compiled grammar image.
type Grammar struct {
	ID      uuid.UUID // PK, NOT NULL
	Name    string    // NOT NULL
	Image   []byte    // NOT NULL, raw bitcode container bytes
	Created time.Time // NOT NULL
}

// ParseSessionRepository persists in-progress and finished parse sessions.
//
// A session does not store a live *engine.ParseState directly -- that type
// holds an engine.Callbacks interface value and is not a storage format.
// Instead FedBytes accumulates every byte handed to Feed so far; a session
// can always be reconstructed by replaying FedBytes through the grammar's
// engine from scratch, which is exactly the resumability the engine itself
// guarantees at byte-slice boundaries.
type ParseSessionRepository interface {
	Create(ctx context.Context, sesh ParseSession) (ParseSession, error)
	GetByID(ctx context.Context, id uuid.UUID) (ParseSession, error)
	Update(ctx context.Context, id uuid.UUID, sesh ParseSession) (ParseSession, error)
	Delete(ctx context.Context, id uuid.UUID) (ParseSession, error)
	Close() error
}

// ParseSession is one parse in progress (or concluded) against a particular
// grammar.
type ParseSession struct {
	ID        uuid.UUID // PK, NOT NULL
	GrammarID uuid.UUID // FK (Many-to-One Grammar.ID), NOT NULL
	Created   time.Time // NOT NULL
	FedBytes  []byte    // bytes fed via Feed so far, in order
	Finished  bool      // whether FinishParse has been called
	Status    string    // last reported engine.Status, as its String()
}

type UserRepository interface {

	// Create creates a new User. All attributes except for auto-generated
	// fields are taken from the provided User.
	Create(ctx context.Context, user User) (User, error)
	GetByID(ctx context.Context, id uuid.UUID) (User, error)
	GetByUsername(ctx context.Context, username string) (User, error)
	GetAll(ctx context.Context) ([]User, error)
	Update(ctx context.Context, id uuid.UUID, user User) (User, error)
	Delete(ctx context.Context, id uuid.UUID) (User, error)

	// Close closes the connection.
	Close() error
}

type Role int

const (
	Guest Role = iota
	Unverified
	Normal

	Admin Role = 100
)

func (r Role) String() string {
	switch r {
	case Guest:
		return "guest"
	case Unverified:
		return "unverified"
	case Normal:
		return "normal"
	case Admin:
		return "admin"
	default:
		return fmt.Sprintf("Role(%d)", r)
	}
}

func ParseRole(s string) (Role, error) {
	check := strings.ToLower(s)
	switch check {
	case "guest":
		return Guest, nil
	case "unverified":
		return Unverified, nil
	case "normal":
		return Normal, nil
	case "admin":
		return Admin, nil
	default:
		return Guest, fmt.Errorf("must be one of 'guest', 'unverified', 'normal', or 'admin'")
	}
}

type User struct {
	ID             uuid.UUID     // PK, NOT NULL
	Username       string        // UNIQUE, NOT NULL
	Password       string        // NOT NULL
	Email          *mail.Address // NOT NULL
	Role           Role          // NOT NULL
	Created        time.Time     // NOT NULL
	Modified       time.Time
	LastLogoutTime time.Time // NOT NULL DEFAULT NOW()
	LastLoginTime  time.Time // NOT NULL
}
