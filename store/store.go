// Package store defines the aggregate persistence interface. Each subsystem
// (role, permission, assignment, override, checklog) defines its own store
// interface; the composite Store composes them all. Backends: Postgres,
// SQLite, MongoDB, and Memory.
package store

import (
	"context"
	"errors"

	"github.com/workshophq/gatekeep/assignment"
	"github.com/workshophq/gatekeep/checklog"
	"github.com/workshophq/gatekeep/override"
	"github.com/workshophq/gatekeep/permission"
	"github.com/workshophq/gatekeep/role"
)

// ErrNotFound is the sentinel every backend wraps when an entity does not
// exist. On the authorization check path absence is a normal outcome that
// resolves to a deny, never an exception.
var ErrNotFound = errors.New("store: not found")

// ErrDuplicate is the sentinel every backend wraps when a write violates a
// uniqueness constraint, such as a second assignment of the same role to
// the same user.
var ErrDuplicate = errors.New("store: duplicate")

// Store is the aggregate persistence interface. A single backend
// (postgres, sqlite, mongo, memory) implements all of it.
type Store interface {
	role.Store
	permission.Store
	assignment.Store
	override.Store
	checklog.Store

	// ListUserIDs returns every user known to an organization through an
	// assignment or an override. The background snapshot sweeper iterates
	// this set.
	ListUserIDs(ctx context.Context, orgID string) ([]string, error)

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
