package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/workshophq/gatekeep/assignment"
	"github.com/workshophq/gatekeep/id"
	"github.com/workshophq/gatekeep/role"
	"github.com/workshophq/gatekeep/store"
)

// CreateAssignment persists a new assignment. The (user, role) pair is
// unique.
func (s *Store) CreateAssignment(_ context.Context, a *assignment.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.roles[a.RoleID.String()]; !ok {
		return fmt.Errorf("memory: role %s: %w", a.RoleID, store.ErrNotFound)
	}
	for _, existing := range s.assignments {
		if existing.OrgID == a.OrgID && existing.UserID == a.UserID && existing.RoleID == a.RoleID {
			return fmt.Errorf("memory: assignment of role %s to user %s: %w", a.RoleID, a.UserID, store.ErrDuplicate)
		}
	}
	s.assignments[a.ID.String()] = copyAssignment(a)
	return nil
}

// GetAssignment retrieves an assignment by ID.
func (s *Store) GetAssignment(_ context.Context, assID id.AssignmentID) (*assignment.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.assignments[assID.String()]
	if !ok {
		return nil, fmt.Errorf("memory: assignment %s: %w", assID, store.ErrNotFound)
	}
	return copyAssignment(a), nil
}

// DeleteAssignment removes an assignment by ID.
func (s *Store) DeleteAssignment(_ context.Context, assID id.AssignmentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.assignments[assID.String()]; !ok {
		return fmt.Errorf("memory: assignment %s: %w", assID, store.ErrNotFound)
	}
	delete(s.assignments, assID.String())
	return nil
}

// DeleteAssignmentByUserRole removes the assignment binding a user to a
// role, if one exists.
func (s *Store) DeleteAssignmentByUserRole(_ context.Context, orgID, userID string, roleID id.RoleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, a := range s.assignments {
		if a.OrgID == orgID && a.UserID == userID && a.RoleID == roleID {
			delete(s.assignments, key)
			return nil
		}
	}
	return fmt.Errorf("memory: assignment of role %s to user %s: %w", roleID, userID, store.ErrNotFound)
}

// ListAssignments returns assignments matching the filter, ordered by
// creation.
func (s *Store) ListAssignments(_ context.Context, filter *assignment.ListFilter) ([]*assignment.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if filter == nil {
		filter = &assignment.ListFilter{}
	}

	var out []*assignment.Assignment
	for _, a := range s.assignments {
		if filter.OrgID != "" && a.OrgID != filter.OrgID {
			continue
		}
		if filter.UserID != "" && a.UserID != filter.UserID {
			continue
		}
		if filter.RoleID != nil && a.RoleID != *filter.RoleID {
			continue
		}
		out = append(out, copyAssignment(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return paginate(out, filter.Limit, filter.Offset), nil
}

// ListRolesForUser returns role IDs assigned to a user.
func (s *Store) ListRolesForUser(_ context.Context, orgID, userID string) ([]id.RoleID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []id.RoleID
	for _, a := range s.assignments {
		if a.OrgID == orgID && a.UserID == userID {
			out = append(out, a.RoleID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

// ListActiveRolesForUser returns the active role entities held by a user.
func (s *Store) ListActiveRolesForUser(_ context.Context, orgID, userID string) ([]*role.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*role.Role
	for _, a := range s.assignments {
		if a.OrgID != orgID || a.UserID != userID {
			continue
		}
		r, ok := s.roles[a.RoleID.String()]
		// The role must belong to the same organization as the assignment;
		// a cross-org assignment row contributes nothing.
		if !ok || !r.IsActive || r.OrgID != orgID {
			continue
		}
		out = append(out, copyRole(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

// ListUsersForRole returns the user IDs of every holder of a role.
func (s *Store) ListUsersForRole(_ context.Context, roleID id.RoleID) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for _, a := range s.assignments {
		if a.RoleID == roleID {
			out = append(out, a.UserID)
		}
	}
	sort.Strings(out)
	return out, nil
}

// DeleteAssignmentsByUser removes all assignments for a user.
func (s *Store) DeleteAssignmentsByUser(_ context.Context, orgID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, a := range s.assignments {
		if a.OrgID == orgID && a.UserID == userID {
			delete(s.assignments, key)
		}
	}
	return nil
}

// DeleteAssignmentsByRole removes all assignments for a role.
func (s *Store) DeleteAssignmentsByRole(_ context.Context, roleID id.RoleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, a := range s.assignments {
		if a.RoleID == roleID {
			delete(s.assignments, key)
		}
	}
	return nil
}

// DeleteAssignmentsByOrg removes all assignments for an organization.
func (s *Store) DeleteAssignmentsByOrg(_ context.Context, orgID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, a := range s.assignments {
		if a.OrgID == orgID {
			delete(s.assignments, key)
		}
	}
	return nil
}
