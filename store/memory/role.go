package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/workshophq/gatekeep/id"
	"github.com/workshophq/gatekeep/role"
	"github.com/workshophq/gatekeep/store"
)

// CreateRole persists a new role.
func (s *Store) CreateRole(_ context.Context, r *role.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.roles {
		if existing.OrgID == r.OrgID && existing.Key == r.Key {
			return fmt.Errorf("memory: role key %q in org %s: %w", r.Key, r.OrgID, store.ErrDuplicate)
		}
	}
	s.roles[r.ID.String()] = copyRole(r)
	return nil
}

// GetRole retrieves a role by ID.
func (s *Store) GetRole(_ context.Context, roleID id.RoleID) (*role.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.roles[roleID.String()]
	if !ok {
		return nil, fmt.Errorf("memory: role %s: %w", roleID, store.ErrNotFound)
	}
	return copyRole(r), nil
}

// GetRoleByKey retrieves a role by organization and key.
func (s *Store) GetRoleByKey(_ context.Context, orgID, key string) (*role.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.roles {
		if r.OrgID == orgID && r.Key == key {
			return copyRole(r), nil
		}
	}
	return nil, fmt.Errorf("memory: role key %q in org %s: %w", key, orgID, store.ErrNotFound)
}

// UpdateRole persists changes to a role.
func (s *Store) UpdateRole(_ context.Context, r *role.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.roles[r.ID.String()]; !ok {
		return fmt.Errorf("memory: role %s: %w", r.ID, store.ErrNotFound)
	}
	s.roles[r.ID.String()] = copyRole(r)
	return nil
}

// DeleteRole removes a role and its grant set.
func (s *Store) DeleteRole(_ context.Context, roleID id.RoleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := roleID.String()
	if _, ok := s.roles[key]; !ok {
		return fmt.Errorf("memory: role %s: %w", roleID, store.ErrNotFound)
	}
	delete(s.roles, key)
	delete(s.rolePerms, key)
	return nil
}

// ListRoles returns roles matching the filter, ordered by creation.
func (s *Store) ListRoles(_ context.Context, filter *role.ListFilter) ([]*role.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if filter == nil {
		filter = &role.ListFilter{}
	}

	var out []*role.Role
	for _, r := range s.roles {
		if filter.OrgID != "" && r.OrgID != filter.OrgID {
			continue
		}
		if filter.IsSystem != nil && r.IsSystem != *filter.IsSystem {
			continue
		}
		if filter.IsActive != nil && r.IsActive != *filter.IsActive {
			continue
		}
		out = append(out, copyRole(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return paginate(out, filter.Limit, filter.Offset), nil
}

// ListRolePermissions returns permission IDs granted to a role.
func (s *Store) ListRolePermissions(_ context.Context, roleID id.RoleID) ([]id.PermissionID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	perms := s.rolePerms[roleID.String()]
	out := make([]id.PermissionID, 0, len(perms))
	for pid := range perms {
		parsed, err := id.Parse(pid)
		if err != nil {
			return nil, fmt.Errorf("memory: corrupt permission id %q: %w", pid, err)
		}
		out = append(out, parsed)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

// AttachPermission links a permission to a role. Attaching an already
// attached permission is a no-op.
func (s *Store) AttachPermission(_ context.Context, roleID id.RoleID, permID id.PermissionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := roleID.String()
	if _, ok := s.roles[key]; !ok {
		return fmt.Errorf("memory: role %s: %w", roleID, store.ErrNotFound)
	}
	if _, ok := s.permissions[permID.String()]; !ok {
		return fmt.Errorf("memory: permission %s: %w", permID, store.ErrNotFound)
	}
	if s.rolePerms[key] == nil {
		s.rolePerms[key] = make(map[string]struct{})
	}
	s.rolePerms[key][permID.String()] = struct{}{}
	return nil
}

// DetachPermission removes a permission from a role.
func (s *Store) DetachPermission(_ context.Context, roleID id.RoleID, permID id.PermissionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.rolePerms[roleID.String()], permID.String())
	return nil
}

// SetRolePermissions replaces the whole grant set of a role.
func (s *Store) SetRolePermissions(_ context.Context, roleID id.RoleID, permIDs []id.PermissionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := roleID.String()
	if _, ok := s.roles[key]; !ok {
		return fmt.Errorf("memory: role %s: %w", roleID, store.ErrNotFound)
	}
	set := make(map[string]struct{}, len(permIDs))
	for _, pid := range permIDs {
		if _, ok := s.permissions[pid.String()]; !ok {
			return fmt.Errorf("memory: permission %s: %w", pid, store.ErrNotFound)
		}
		set[pid.String()] = struct{}{}
	}
	s.rolePerms[key] = set
	return nil
}

// DeleteRolesByOrg removes all roles for an organization.
func (s *Store) DeleteRolesByOrg(_ context.Context, orgID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, r := range s.roles {
		if r.OrgID == orgID {
			delete(s.roles, key)
			delete(s.rolePerms, key)
		}
	}
	return nil
}
