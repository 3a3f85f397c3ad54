package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dekarrin/gazelle/server/dao"
	"github.com/google/uuid"
)

// NewParseSessionsDBConnFromDB wraps an already-open *sql.DB, creating the
// parse_sessions table if it does not yet exist.
func NewParseSessionsDBConnFromDB(db *sql.DB) (*ParseSessionsDB, error) {
	repo := &ParseSessionsDB{db: db}
	if err := repo.init(); err != nil {
		return nil, err
	}
	return repo, nil
}

type ParseSessionsDB struct {
	db *sql.DB
}

func (repo *ParseSessionsDB) init() error {
	_, err := repo.db.Exec(`CREATE TABLE IF NOT EXISTS parse_sessions (
		id TEXT NOT NULL PRIMARY KEY,
		grammar_id TEXT NOT NULL,
		created INTEGER NOT NULL,
		snapshot TEXT NOT NULL
	);`)
	if err != nil {
		return wrapDBError(err)
	}
	return nil
}

func (repo *ParseSessionsDB) Create(ctx context.Context, s dao.ParseSession) (dao.ParseSession, error) {
	newUUID, err := uuid.NewRandom()
	if err != nil {
		return dao.ParseSession{}, fmt.Errorf("could not generate ID: %w", err)
	}

	snap := parseSessionSnapshot{FedBytes: s.FedBytes, Finished: s.Finished, Status: s.Status}

	stmt, err := repo.db.Prepare(`INSERT INTO parse_sessions (id, grammar_id, created, snapshot) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return dao.ParseSession{}, wrapDBError(err)
	}
	_, err = stmt.ExecContext(ctx, newUUID.String(), convertToDB_UUID(s.GrammarID), convertToDB_Time(s.Created), convertToDB_ParseSessionSnapshot(snap))
	if err != nil {
		return dao.ParseSession{}, wrapDBError(err)
	}

	return repo.GetByID(ctx, newUUID)
}

func (repo *ParseSessionsDB) GetByID(ctx context.Context, id uuid.UUID) (dao.ParseSession, error) {
	s := dao.ParseSession{ID: id}
	var grammarID string
	var created int64
	var snapshot string

	row := repo.db.QueryRowContext(ctx, `SELECT grammar_id, created, snapshot FROM parse_sessions WHERE id = ?;`, convertToDB_UUID(id))
	if err := row.Scan(&grammarID, &created, &snapshot); err != nil {
		return dao.ParseSession{}, wrapDBError(err)
	}

	if err := convertFromDB_UUID(grammarID, &s.GrammarID); err != nil {
		return dao.ParseSession{}, err
	}
	if err := convertFromDB_Time(created, &s.Created); err != nil {
		return dao.ParseSession{}, err
	}
	var snap parseSessionSnapshot
	if err := convertFromDB_ParseSessionSnapshot(snapshot, &snap); err != nil {
		return dao.ParseSession{}, err
	}
	s.FedBytes = snap.FedBytes
	s.Finished = snap.Finished
	s.Status = snap.Status

	return s, nil
}

func (repo *ParseSessionsDB) Update(ctx context.Context, id uuid.UUID, s dao.ParseSession) (dao.ParseSession, error) {
	snap := parseSessionSnapshot{FedBytes: s.FedBytes, Finished: s.Finished, Status: s.Status}

	res, err := repo.db.ExecContext(ctx, `UPDATE parse_sessions SET id=?, grammar_id=?, created=?, snapshot=? WHERE id=?;`,
		convertToDB_UUID(s.ID),
		convertToDB_UUID(s.GrammarID),
		convertToDB_Time(s.Created),
		convertToDB_ParseSessionSnapshot(snap),
		convertToDB_UUID(id),
	)
	if err != nil {
		return dao.ParseSession{}, wrapDBError(err)
	}
	rowsAff, err := res.RowsAffected()
	if err != nil {
		return dao.ParseSession{}, wrapDBError(err)
	}
	if rowsAff < 1 {
		return dao.ParseSession{}, dao.ErrNotFound
	}

	return repo.GetByID(ctx, s.ID)
}

func (repo *ParseSessionsDB) Delete(ctx context.Context, id uuid.UUID) (dao.ParseSession, error) {
	curVal, err := repo.GetByID(ctx, id)
	if err != nil {
		return curVal, err
	}

	res, err := repo.db.ExecContext(ctx, `DELETE FROM parse_sessions WHERE id = ?`, convertToDB_UUID(id))
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

func (repo *ParseSessionsDB) Close() error {
	return nil
}
