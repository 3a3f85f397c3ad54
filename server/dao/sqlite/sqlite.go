// Package sqlite provides a sqlite-backed dao.Store, suitable for servers
// that need their grammars and parse sessions to survive a restart.
package sqlite

import (
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"net/mail"
	"path/filepath"
	"time"

	"github.com/dekarrin/gazelle/server/dao"
	"github.com/dekarrin/gazelle/server/serr"
	"github.com/dekarrin/rezi"
	"github.com/google/uuid"
	"modernc.org/sqlite"
)

type store struct {
	dbFilename      string
	grammarsFilename string

	db          *sql.DB
	grammarsDB  *sql.DB

	users    *UsersDB
	grammars *GrammarsDB
	seshes   *ParseSessionsDB
}

// NewDatastore opens (creating if necessary) the two sqlite files backing
// the store: one for users and parse sessions, one for grammar images.
func NewDatastore(storageDir string) (dao.Store, error) {
	st := &store{
		dbFilename:       "data.db",
		grammarsFilename: "grammars.db",
	}

	fileName := filepath.Join(storageDir, st.dbFilename)
	grammarsFileName := filepath.Join(storageDir, st.grammarsFilename)

	var err error
	st.db, err = sql.Open("sqlite", fileName)
	if err != nil {
		return nil, wrapDBError(err)
	}
	st.grammarsDB, err = sql.Open("sqlite", grammarsFileName)
	if err != nil {
		return nil, wrapDBError(err)
	}

	st.grammars, err = NewGrammarsDBConnFromDB(st.grammarsDB)
	if err != nil {
		return nil, fmt.Errorf("init grammars table: %w", err)
	}

	st.users = &UsersDB{db: st.db}
	if err := st.users.init(); err != nil {
		return nil, fmt.Errorf("init users table: %w", err)
	}

	st.seshes, err = NewParseSessionsDBConnFromDB(st.db)
	if err != nil {
		return nil, fmt.Errorf("init parse_sessions table: %w", err)
	}

	return st, nil
}

func (s *store) Users() dao.UserRepository {
	return s.users
}

func (s *store) Grammars() dao.GrammarRepository {
	return s.grammars
}

func (s *store) ParseSessions() dao.ParseSessionRepository {
	return s.seshes
}

func (s *store) Close() error {
	grammarsDBErr := s.grammarsDB.Close()
	mainDBErr := s.db.Close()

	var err error
	if grammarsDBErr != nil {
		if err != nil {
			err = fmt.Errorf("%s\nadditionally: %s: %w", err.Error(), s.grammarsFilename, grammarsDBErr)
		} else {
			err = fmt.Errorf("%s: %w", s.grammarsFilename, grammarsDBErr)
		}
	}
	if mainDBErr != nil {
		if err != nil {
			err = fmt.Errorf("%s\nadditionally: %s: %w", err.Error(), s.dbFilename, mainDBErr)
		} else {
			err = fmt.Errorf("%s: %w", s.dbFilename, mainDBErr)
		}
	}
	return err
}

// convertToDB_Role converts a dao.Role to storage DB format.
func convertToDB_Role(r dao.Role) string {
	return r.String()
}

// convertToDB_Email converts a *mail.Address to storage DB format. If the
// pointer is nil, it will return the zero value.
func convertToDB_Email(email *mail.Address) string {
	if email == nil {
		return ""
	}
	return email.Address
}

// convertToDB_UUID converts a uuid.UUID to storage DB format on disk.
func convertToDB_UUID(u uuid.UUID) string {
	return u.String()
}

// convertToDB_Time converts a time.Time to storage DB format on disk.
func convertToDB_Time(t time.Time) int64 {
	return t.Unix()
}

// convertToDB_ByteSlice converts bytes to storage DB format on disk.
func convertToDB_ByteSlice(b []byte) string {
	if len(b) < 1 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(b)
}

// convertFromDB_Email converts storage DB format value to a *mail.Address
// and stores it at the address pointed to by target. If the zero value is
// provided, target is set to a nil pointer. If there is a problem with the
// decoding, the returned error will be of type serr.Error, and will wrap
// dao.ErrDecodingFailure. If this function returns a non-nil error, target
// will not have been modified.
func convertFromDB_Email(s string, target **mail.Address) error {
	if s == "" {
		*target = nil
		return nil
	}

	email, err := mail.ParseAddress(s)
	if err != nil {
		return serr.New("", err, dao.ErrDecodingFailure)
	}

	*target = email
	return nil
}

// convertFromDB_Role converts storage DB format value to a dao.Role and
// stores it at the address pointed to by target.
func convertFromDB_Role(s string, target *dao.Role) error {
	r, err := dao.ParseRole(s)
	if err != nil {
		return serr.New("", err, dao.ErrDecodingFailure)
	}
	*target = r
	return nil
}

// convertFromDB_UUID converts storage DB format value to a uuid.UUID and
// stores it at the address pointed to by target.
func convertFromDB_UUID(s string, target *uuid.UUID) error {
	u, err := uuid.Parse(s)
	if err != nil {
		return serr.New("", err, dao.ErrDecodingFailure)
	}
	*target = u
	return nil
}

// convertFromDB_Time converts storage DB format value to a time.Time and
// stores it at the address pointed to by target.
func convertFromDB_Time(i int64, target *time.Time) error {
	t := time.Unix(i, 0)
	*target = t
	return nil
}

// convertFromDB_ByteSlice converts storage DB format string to an actual
// byte slice and stores it at the address pointed to by target.
func convertFromDB_ByteSlice(s string, target *[]byte) error {
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return serr.New("", err, dao.ErrDecodingFailure)
	}
	*target = decoded
	return nil
}

// parseSessionSnapshot is the part of a dao.ParseSession that gets
// collapsed into a single REZI-encoded blob column.
type parseSessionSnapshot struct {
	FedBytes []byte
	Finished bool
	Status   string
}

// convertToDB_ParseSessionSnapshot REZI-encodes a session snapshot to
// storage DB format on disk.
func convertToDB_ParseSessionSnapshot(snap parseSessionSnapshot) string {
	data := rezi.EncBinary(snap)
	return convertToDB_ByteSlice(data)
}

// convertFromDB_ParseSessionSnapshot converts a storage DB format string
// back into a parseSessionSnapshot.
func convertFromDB_ParseSessionSnapshot(s string, target *parseSessionSnapshot) error {
	if s == "" {
		*target = parseSessionSnapshot{}
		return nil
	}

	var blob []byte
	if err := convertFromDB_ByteSlice(s, &blob); err != nil {
		return serr.New("decode stored to bytes", err)
	}

	var snap parseSessionSnapshot
	n, err := rezi.DecBinary(blob, &snap)
	if err != nil {
		return serr.New("REZI decode", err, dao.ErrDecodingFailure)
	}
	if n != len(blob) {
		return serr.New(fmt.Sprintf("REZI decoded byte count mismatch; only consumed %d/%d bytes", n, len(blob)), dao.ErrDecodingFailure)
	}

	*target = snap
	return nil
}

func wrapDBError(err error) error {
	sqliteErr := &sqlite.Error{}
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code() == 19 {
			return dao.ErrConstraintViolation
		}
		return fmt.Errorf("%s", sqlite.ErrorCodeString[sqliteErr.Code()])
	} else if errors.Is(err, sql.ErrNoRows) {
		return dao.ErrNotFound
	}
	return err
}
