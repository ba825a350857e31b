// Package sqlite implements the directory on SQLite via the pure-Go
// modernc driver. Queries are written inline; the schema lives in the
// embedded migrations.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/quokkaworks/identity/internal/identity/directory"
)

type Store struct {
	db  *sql.DB
	dsn string
}

var _ directory.Store = (*Store)(nil)

func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// Enforce FKs
	if _, err := db.ExecContext(context.Background(), `PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, dsn: dsn}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Roles() directory.Roles               { return &rolesRepo{db: s.db} }
func (s *Store) Subjects() directory.Subjects         { return &subjectsRepo{db: s.db} }
func (s *Store) LoginHistory() directory.LoginHistory { return &loginHistoryRepo{db: s.db} }
func (s *Store) SigningKeys() directory.SigningKeys   { return &signingKeysRepo{db: s.db} }

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return directory.ErrNotFound
	}
	return err
}

func mapConflict(err error) error {
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return directory.ErrAlreadyExists
	}
	return err
}

func mapNullTimePtr(nt sql.NullTime) *time.Time {
	if nt.Valid {
		val := nt.Time
		return &val
	}
	return nil
}
