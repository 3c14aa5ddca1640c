package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/workshophq/gatekeep/id"
	"github.com/workshophq/gatekeep/override"
	"github.com/workshophq/gatekeep/store"
)

// UpsertOverride inserts the override, replacing any existing override for
// the same (org, user, permission key) triple. Latest write wins.
func (s *Store) UpsertOverride(_ context.Context, o *override.Override) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, existing := range s.overrides {
		if existing.OrgID == o.OrgID && existing.UserID == o.UserID && existing.PermissionKey == o.PermissionKey {
			delete(s.overrides, key)
			break
		}
	}
	s.overrides[o.ID.String()] = copyOverride(o)
	return nil
}

// GetOverride retrieves the override for a (user, permission key) pair.
func (s *Store) GetOverride(_ context.Context, orgID, userID, permissionKey string) (*override.Override, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, o := range s.overrides {
		if o.OrgID == orgID && o.UserID == userID && o.PermissionKey == permissionKey {
			return copyOverride(o), nil
		}
	}
	return nil, fmt.Errorf("memory: override %q for user %s: %w", permissionKey, userID, store.ErrNotFound)
}

// DeleteOverride removes an override by ID.
func (s *Store) DeleteOverride(_ context.Context, ovrdID id.OverrideID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.overrides[ovrdID.String()]; !ok {
		return fmt.Errorf("memory: override %s: %w", ovrdID, store.ErrNotFound)
	}
	delete(s.overrides, ovrdID.String())
	return nil
}

// DeleteOverrideByKey removes the override for a (user, permission key)
// pair, if one exists.
func (s *Store) DeleteOverrideByKey(_ context.Context, orgID, userID, permissionKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, o := range s.overrides {
		if o.OrgID == orgID && o.UserID == userID && o.PermissionKey == permissionKey {
			delete(s.overrides, key)
			return nil
		}
	}
	return fmt.Errorf("memory: override %q for user %s: %w", permissionKey, userID, store.ErrNotFound)
}

// ListOverrides returns overrides matching the filter, expired or not,
// ordered by creation.
func (s *Store) ListOverrides(_ context.Context, filter *override.ListFilter) ([]*override.Override, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if filter == nil {
		filter = &override.ListFilter{}
	}

	var out []*override.Override
	for _, o := range s.overrides {
		if filter.OrgID != "" && o.OrgID != filter.OrgID {
			continue
		}
		if filter.UserID != "" && o.UserID != filter.UserID {
			continue
		}
		if filter.PermissionKey != "" && o.PermissionKey != filter.PermissionKey {
			continue
		}
		if filter.IsGranted != nil && o.IsGranted != *filter.IsGranted {
			continue
		}
		out = append(out, copyOverride(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return paginate(out, filter.Limit, filter.Offset), nil
}

// ListActiveOverrides returns a user's overrides in effect at the given
// instant.
func (s *Store) ListActiveOverrides(_ context.Context, orgID, userID string, now time.Time) ([]*override.Override, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*override.Override
	for _, o := range s.overrides {
		if o.OrgID == orgID && o.UserID == userID && o.ActiveAt(now) {
			out = append(out, copyOverride(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

// PurgeExpiredOverrides removes overrides that expired before the given
// time.
func (s *Store) PurgeExpiredOverrides(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64
	for key, o := range s.overrides {
		if o.ExpiresAt != nil && o.ExpiresAt.Before(before) {
			delete(s.overrides, key)
			purged++
		}
	}
	return purged, nil
}

// DeleteOverridesByUser removes all overrides for a user.
func (s *Store) DeleteOverridesByUser(_ context.Context, orgID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, o := range s.overrides {
		if o.OrgID == orgID && o.UserID == userID {
			delete(s.overrides, key)
		}
	}
	return nil
}

// DeleteOverridesByOrg removes all overrides for an organization.
func (s *Store) DeleteOverridesByOrg(_ context.Context, orgID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, o := range s.overrides {
		if o.OrgID == orgID {
			delete(s.overrides, key)
		}
	}
	return nil
}
