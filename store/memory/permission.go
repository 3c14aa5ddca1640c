package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/workshophq/gatekeep/id"
	"github.com/workshophq/gatekeep/permission"
	"github.com/workshophq/gatekeep/store"
)

// CreatePermission persists a new permission.
func (s *Store) CreatePermission(_ context.Context, p *permission.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.permissions {
		if existing.OrgID == p.OrgID && existing.Key == p.Key {
			return fmt.Errorf("memory: permission key %q in org %s: %w", p.Key, p.OrgID, store.ErrDuplicate)
		}
	}
	s.permissions[p.ID.String()] = copyPermission(p)
	return nil
}

// GetPermission retrieves a permission by ID.
func (s *Store) GetPermission(_ context.Context, permID id.PermissionID) (*permission.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.permissions[permID.String()]
	if !ok {
		return nil, fmt.Errorf("memory: permission %s: %w", permID, store.ErrNotFound)
	}
	return copyPermission(p), nil
}

// GetPermissionByKey retrieves a permission by organization and key.
func (s *Store) GetPermissionByKey(_ context.Context, orgID, key string) (*permission.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.permissions {
		if p.OrgID == orgID && p.Key == key {
			return copyPermission(p), nil
		}
	}
	return nil, fmt.Errorf("memory: permission key %q in org %s: %w", key, orgID, store.ErrNotFound)
}

// UpdatePermission persists changes to a permission.
func (s *Store) UpdatePermission(_ context.Context, p *permission.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.permissions[p.ID.String()]; !ok {
		return fmt.Errorf("memory: permission %s: %w", p.ID, store.ErrNotFound)
	}
	s.permissions[p.ID.String()] = copyPermission(p)
	return nil
}

// ListPermissions returns permissions matching the filter, ordered by
// creation.
func (s *Store) ListPermissions(_ context.Context, filter *permission.ListFilter) ([]*permission.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if filter == nil {
		filter = &permission.ListFilter{}
	}

	var out []*permission.Permission
	for _, p := range s.permissions {
		if filter.OrgID != "" && p.OrgID != filter.OrgID {
			continue
		}
		if filter.Resource != "" && p.Resource != filter.Resource {
			continue
		}
		if filter.Action != "" && p.Action != filter.Action {
			continue
		}
		if filter.IsActive != nil && p.IsActive != *filter.IsActive {
			continue
		}
		out = append(out, copyPermission(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return paginate(out, filter.Limit, filter.Offset), nil
}

// ListActivePermissionKeys returns the keys of all active permissions in an
// organization.
func (s *Store) ListActivePermissionKeys(_ context.Context, orgID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for _, p := range s.permissions {
		if p.OrgID == orgID && p.IsActive {
			keys = append(keys, p.Key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// ListPermissionsByRole returns all permissions granted to a role.
func (s *Store) ListPermissionsByRole(_ context.Context, roleID id.RoleID) ([]*permission.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	grants := s.rolePerms[roleID.String()]
	out := make([]*permission.Permission, 0, len(grants))
	for pid := range grants {
		if p, ok := s.permissions[pid]; ok {
			out = append(out, copyPermission(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

// DeletePermissionsByOrg removes all permissions for an organization,
// including their role grants.
func (s *Store) DeletePermissionsByOrg(_ context.Context, orgID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, p := range s.permissions {
		if p.OrgID != orgID {
			continue
		}
		delete(s.permissions, key)
		for _, grants := range s.rolePerms {
			delete(grants, key)
		}
	}
	return nil
}
