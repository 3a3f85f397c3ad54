package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dekarrin/gazelle/server/dao"
	"github.com/google/uuid"
)

// NewGrammarsDBConnFromDB wraps an already-open *sql.DB, creating the
// grammars table if it does not yet exist.
func NewGrammarsDBConnFromDB(db *sql.DB) (*GrammarsDB, error) {
	repo := &GrammarsDB{db: db}
	if err := repo.init(); err != nil {
		return nil, err
	}
	return repo, nil
}

type GrammarsDB struct {
	db *sql.DB
}

func (repo *GrammarsDB) init() error {
	_, err := repo.db.Exec(`CREATE TABLE IF NOT EXISTS grammars (
		id TEXT NOT NULL PRIMARY KEY,
		name TEXT NOT NULL,
		image TEXT NOT NULL,
		created INTEGER NOT NULL
	);`)
	if err != nil {
		return wrapDBError(err)
	}
	return nil
}

func (repo *GrammarsDB) Create(ctx context.Context, g dao.Grammar) (dao.Grammar, error) {
	newUUID, err := uuid.NewRandom()
	if err != nil {
		return dao.Grammar{}, fmt.Errorf("could not generate ID: %w", err)
	}

	stmt, err := repo.db.Prepare(`INSERT INTO grammars (id, name, image, created) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return dao.Grammar{}, wrapDBError(err)
	}
	_, err = stmt.ExecContext(ctx, newUUID.String(), g.Name, convertToDB_ByteSlice(g.Image), convertToDB_Time(g.Created))
	if err != nil {
		return dao.Grammar{}, wrapDBError(err)
	}

	return repo.GetByID(ctx, newUUID)
}

func (repo *GrammarsDB) GetByID(ctx context.Context, id uuid.UUID) (dao.Grammar, error) {
	g := dao.Grammar{ID: id}
	var image string
	var created int64

	row := repo.db.QueryRowContext(ctx, `SELECT name, image, created FROM grammars WHERE id = ?;`, convertToDB_UUID(id))
	if err := row.Scan(&g.Name, &image, &created); err != nil {
		return dao.Grammar{}, wrapDBError(err)
	}

	if err := convertFromDB_ByteSlice(image, &g.Image); err != nil {
		return dao.Grammar{}, err
	}
	if err := convertFromDB_Time(created, &g.Created); err != nil {
		return dao.Grammar{}, err
	}

	return g, nil
}

func (repo *GrammarsDB) GetAll(ctx context.Context) ([]dao.Grammar, error) {
	rows, err := repo.db.QueryContext(ctx, `SELECT id, name, image, created FROM grammars ORDER BY id;`)
	if err != nil {
		return nil, wrapDBError(err)
	}
	defer rows.Close()

	var all []dao.Grammar

	for rows.Next() {
		var g dao.Grammar
		var id, image string
		var created int64

		if err := rows.Scan(&id, &g.Name, &image, &created); err != nil {
			return nil, wrapDBError(err)
		}

		if err := convertFromDB_UUID(id, &g.ID); err != nil {
			return all, err
		}
		if err := convertFromDB_ByteSlice(image, &g.Image); err != nil {
			return all, err
		}
		if err := convertFromDB_Time(created, &g.Created); err != nil {
			return all, err
		}

		all = append(all, g)
	}

	if err := rows.Err(); err != nil {
		return all, wrapDBError(err)
	}

	return all, nil
}

func (repo *GrammarsDB) Delete(ctx context.Context, id uuid.UUID) (dao.Grammar, error) {
	curVal, err := repo.GetByID(ctx, id)
	if err != nil {
		return curVal, err
	}

	res, err := repo.db.ExecContext(ctx, `DELETE FROM grammars WHERE id = ?`, convertToDB_UUID(id))
	if err != nil {
		return curVal, wrapDBError(err)
	}
	rowsAff, err := res.RowsAffected()
	if err != nil {
		return curVal, wrapDBError(err)
	}
	if rowsAff < 1 {
		return curVal, dao.ErrNotFound
	}

	return curVal, nil
}

func (repo *GrammarsDB) Close() error {
	return nil
}
