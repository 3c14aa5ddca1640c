// Package memory provides an in-memory store implementation, suitable for
// tests, examples, and single-process deployments that do not need
// persistence.
package memory

import (
	"context"
	"sync"

	"github.com/workshophq/gatekeep/assignment"
	"github.com/workshophq/gatekeep/checklog"
	"github.com/workshophq/gatekeep/override"
	"github.com/workshophq/gatekeep/permission"
	"github.com/workshophq/gatekeep/role"
)

// Store is an in-memory implementation of store.Store. Safe for concurrent
// use. All reads return copies so callers can never mutate stored state.
type Store struct {
	mu sync.RWMutex

	roles       map[string]*role.Role             // role ID -> role
	permissions map[string]*permission.Permission // permission ID -> permission
	assignments map[string]*assignment.Assignment // assignment ID -> assignment
	overrides   map[string]*override.Override     // override ID -> override
	checkLogs   map[string]*checklog.Entry        // entry ID -> entry

	rolePerms map[string]map[string]struct{} // role ID -> set of permission IDs
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		roles:       make(map[string]*role.Role),
		permissions: make(map[string]*permission.Permission),
		assignments: make(map[string]*assignment.Assignment),
		overrides:   make(map[string]*override.Override),
		checkLogs:   make(map[string]*checklog.Entry),
		rolePerms:   make(map[string]map[string]struct{}),
	}
}

// Migrate is a no-op for the in-memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping is a no-op for the in-memory store.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }

// ListUserIDs returns every user known to an organization through an
// assignment or an override.
func (s *Store) ListUserIDs(_ context.Context, orgID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, a := range s.assignments {
		if a.OrgID == orgID {
			seen[a.UserID] = struct{}{}
		}
	}
	for _, o := range s.overrides {
		if o.OrgID == orgID {
			seen[o.UserID] = struct{}{}
		}
	}

	users := make([]string, 0, len(seen))
	for u := range seen {
		users = append(users, u)
	}
	return users, nil
}

func paginate[T any](items []*T, limit, offset int) []*T {
	if offset > 0 {
		if offset >= len(items) {
			return []*T{}
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func copyRole(r *role.Role) *role.Role {
	c := *r
	return &c
}

func copyPermission(p *permission.Permission) *permission.Permission {
	c := *p
	return &c
}

func copyAssignment(a *assignment.Assignment) *assignment.Assignment {
	c := *a
	return &c
}

func copyOverride(o *override.Override) *override.Override {
	c := *o
	if o.ExpiresAt != nil {
		t := *o.ExpiresAt
		c.ExpiresAt = &t
	}
	return &c
}

func copyEntry(e *checklog.Entry) *checklog.Entry {
	c := *e
	return &c
}
