// Package tunas has services for interacting with the parse server backend
// decoupled from the API that accesses it.
package tunas

import (
	"sync"

	"github.com/dekarrin/gazelle/internal/grammar"
	"github.com/dekarrin/gazelle/server/dao"
	"github.com/google/uuid"
)

// Service is a service for interacting with and modifying the parse server
// backend. It performs the actions requested and makes calls to server
// persistence to preserve the backend state.
//
// Beyond persistence, Service also holds the in-process state a parse
// session needs while it is open: a live [engine.ParseState] cannot be
// written to dao.ParseSession (it carries a Callbacks interface value,
// which has no storage format), so an open session's engine state and tree
// builder live only in the Service that created them, keyed by session ID.
// dao.ParseSession itself only ever stores the replayable FedBytes plus
// Finished/Status, which is what survives a server restart; an open
// session that outlives the process is lost, and feeding it further will
// return an error (see Service.liveSession).
//
// The zero-value of Service is not ready to be used; call NewService to
// construct one.
type Service struct {
	// DB is the persistence store of the service.
	DB dao.Store

	grammars *grammarCache
	sessions *sessionRegistry
}

// NewService returns a Service ready for use, backed by db.
func NewService(db dao.Store) Service {
	return Service{
		DB:       db,
		grammars: newGrammarCache(),
		sessions: newSessionRegistry(),
	}
}

// grammarCache holds decoded grammar images, keyed by grammar ID, so a
// session doesn't have to re-run grammar.Load against the stored bytes on
// every feed. Entries are populated lazily from dao.Grammar.Image on first
// use and evicted when the grammar is deleted.
type grammarCache struct {
	mu    sync.Mutex
	byID  map[uuid.UUID]*grammar.Grammar
}

func newGrammarCache() *grammarCache {
	return &grammarCache{byID: make(map[uuid.UUID]*grammar.Grammar)}
}

func (c *grammarCache) get(id uuid.UUID) (*grammar.Grammar, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.byID[id]
	return g, ok
}

func (c *grammarCache) put(id uuid.UUID, g *grammar.Grammar) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byID[id] = g
}

func (c *grammarCache) evict(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byID, id)
}
