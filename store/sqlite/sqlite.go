// Package sqlite provides a SQLite store implementation, suitable for
// single-binary deployments and tests that want real SQL without a server.
// Schema migrations are embedded and run with goose.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/workshophq/gatekeep/store"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store is a SQLite implementation of store.Store.
type Store struct {
	db *sql.DB
}

// New opens the database at path. Use ":memory:" for an ephemeral store.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	// SQLite handles one writer at a time; a second connection would see
	// "database is locked" under write contention.
	db.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB { return s.db }

// Migrate runs all pending schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("sqlite: set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, s.db, "migrations"); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ListUserIDs returns every user known to an organization through an
// assignment or an override.
func (s *Store) ListUserIDs(ctx context.Context, orgID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM role_assignments WHERE org_id = ?
		UNION
		SELECT user_id FROM permission_overrides WHERE org_id = ?`, orgID, orgID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list users for org %s: %w", orgID, err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("sqlite: scan user id: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// requireAffected turns a zero-row write into ErrNotFound.
func requireAffected(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: %s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("sqlite: %s: %w", op, store.ErrNotFound)
	}
	return nil
}

// limitOffset appends LIMIT/OFFSET clauses, extending args in place.
func limitOffset(args *[]any, limit, offset int) string {
	var clause string
	if limit > 0 {
		*args = append(*args, limit)
		clause += " LIMIT ?"
	}
	if offset > 0 {
		if limit <= 0 {
			// SQLite requires a LIMIT before OFFSET.
			clause += " LIMIT -1"
		}
		*args = append(*args, offset)
		clause += " OFFSET ?"
	}
	return clause
}

// wrapErr maps driver errors onto the store sentinels.
func wrapErr(op string, err error) error {
	var sqErr sqlite3.Error
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("sqlite: %s: %w", op, store.ErrNotFound)
	case errors.As(err, &sqErr) && sqErr.ExtendedCode == sqlite3.ErrConstraintUnique:
		return fmt.Errorf("sqlite: %s: %w", op, store.ErrDuplicate)
	default:
		return fmt.Errorf("sqlite: %s: %w", op, err)
	}
}
