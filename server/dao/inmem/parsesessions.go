package inmem

import (
	"context"
	"fmt"
	"time"

	"github.com/dekarrin/gazelle/server/dao"
	"github.com/google/uuid"
)

func NewParseSessionsRepository() *InMemoryParseSessionsRepository {
	return &InMemoryParseSessionsRepository{
		seshes: make(map[uuid.UUID]dao.ParseSession),
	}
}

type InMemoryParseSessionsRepository struct {
	seshes map[uuid.UUID]dao.ParseSession
}

func (impsr *InMemoryParseSessionsRepository) Close() error {
	return nil
}

func (impsr *InMemoryParseSessionsRepository) Create(ctx context.Context, s dao.ParseSession) (dao.ParseSession, error) {
	newUUID, err := uuid.NewRandom()
	if err != nil {
		return dao.ParseSession{}, fmt.Errorf("could not generate ID: %w", err)
	}

	s.ID = newUUID
	s.Created = time.Now()

	impsr.seshes[s.ID] = s

	return s, nil
}

func (impsr *InMemoryParseSessionsRepository) GetByID(ctx context.Context, id uuid.UUID) (dao.ParseSession, error) {
	s, ok := impsr.seshes[id]
	if !ok {
		return dao.ParseSession{}, dao.ErrNotFound
	}
	return s, nil
}

func (impsr *InMemoryParseSessionsRepository) Update(ctx context.Context, id uuid.UUID, s dao.ParseSession) (dao.ParseSession, error) {
	if _, ok := impsr.seshes[id]; !ok {
		return dao.ParseSession{}, dao.ErrNotFound
	}

	if s.ID != id {
		if _, ok := impsr.seshes[s.ID]; ok {
			return dao.ParseSession{}, dao.ErrConstraintViolation
		}
	}

	impsr.seshes[s.ID] = s
	if s.ID != id {
		delete(impsr.seshes, id)
	}

	return s, nil
}

func (impsr *InMemoryParseSessionsRepository) Delete(ctx context.Context, id uuid.UUID) (dao.ParseSession, error) {
	s, ok := impsr.seshes[id]
	if !ok {
		return dao.ParseSession{}, dao.ErrNotFound
	}

	delete(impsr.seshes, id)

	return s, nil
}
