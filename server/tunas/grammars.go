package tunas

import (
	"context"
	"errors"
	"time"

	"github.com/dekarrin/gazelle/internal/bitcode"
	"github.com/dekarrin/gazelle/internal/grammar"
	"github.com/dekarrin/gazelle/server/dao"
	"github.com/dekarrin/gazelle/server/serr"
	"github.com/google/uuid"
)

// UploadGrammar decodes image as a grammar (spec §4.1/4.2) to validate it,
// then persists it under name. The returned error, if non-nil, will match
// serr.ErrBadArgument via errors.Is if image is not a loadable grammar, or
// serr.ErrDB if persistence failed.
func (svc Service) UploadGrammar(ctx context.Context, name string, image []byte) (dao.Grammar, error) {
	r, err := bitcode.NewReader(image)
	if err != nil {
		return dao.Grammar{}, serr.New("not a valid grammar image", err, serr.ErrBadArgument)
	}
	g, err := grammar.Load(r)
	if err != nil {
		return dao.Grammar{}, serr.New("not a valid grammar image", err, serr.ErrBadArgument)
	}

	rec := dao.Grammar{Name: name, Image: image, Created: time.Now()}
	rec, err = svc.DB.Grammars().Create(ctx, rec)
	if err != nil {
		return dao.Grammar{}, serr.WrapDB("could not store grammar", err)
	}

	svc.grammars.put(rec.ID, g)
	return rec, nil
}

// GetGrammar retrieves the grammar with the given ID.
func (svc Service) GetGrammar(ctx context.Context, id uuid.UUID) (dao.Grammar, error) {
	g, err := svc.DB.Grammars().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			return dao.Grammar{}, serr.ErrNotFound
		}
		return dao.Grammar{}, serr.WrapDB("could not retrieve grammar", err)
	}
	return g, nil
}

// GetAllGrammars retrieves every uploaded grammar.
func (svc Service) GetAllGrammars(ctx context.Context) ([]dao.Grammar, error) {
	all, err := svc.DB.Grammars().GetAll(ctx)
	if err != nil {
		return nil, serr.WrapDB("could not retrieve grammars", err)
	}
	return all, nil
}

// DeleteGrammar removes the grammar with the given ID and evicts it from
// the decoded-grammar cache.
func (svc Service) DeleteGrammar(ctx context.Context, id uuid.UUID) (dao.Grammar, error) {
	g, err := svc.DB.Grammars().Delete(ctx, id)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			return dao.Grammar{}, serr.ErrNotFound
		}
		return dao.Grammar{}, serr.WrapDB("could not delete grammar", err)
	}
	svc.grammars.evict(id)
	return g, nil
}

// loadedGrammar returns the decoded grammar for id, loading and caching it
// from persistence if it is not already cached.
func (svc Service) loadedGrammar(ctx context.Context, id uuid.UUID) (*grammar.Grammar, error) {
	if g, ok := svc.grammars.get(id); ok {
		return g, nil
	}

	rec, err := svc.DB.Grammars().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			return nil, serr.ErrNotFound
		}
		return nil, serr.WrapDB("could not retrieve grammar", err)
	}

	r, err := bitcode.NewReader(rec.Image)
	if err != nil {
		return nil, serr.New("stored grammar image is corrupt", err)
	}
	g, err := grammar.Load(r)
	if err != nil {
		return nil, serr.New("stored grammar image is corrupt", err)
	}

	svc.grammars.put(id, g)
	return g, nil
}
