// Package snapshot defines the materialized result of a permission
// resolution for one user. Snapshots are derived, disposable, and
// rebuildable at any time from the source entities — never a source of
// truth.
package snapshot

import (
	"slices"
	"time"
)

// Snapshot is the cached resolution result for one user. The four sets are
// stored as sorted, deduplicated slices so that two snapshots computed from
// identical source data compare equal byte for byte.
type Snapshot struct {
	OrgID  string `json:"org_id"`
	UserID string `json:"user_id"`

	// Admin records that the user held an active role with the reserved
	// admin key at computation time. When set, Permissions holds the whole
	// active catalog and the override sets are empty.
	Admin bool `json:"admin"`

	// RoleKeys are the keys of the active roles held at computation time.
	RoleKeys []string `json:"role_keys"`

	// RolePermissions is the union of the active permissions granted by
	// those roles.
	RolePermissions []string `json:"role_permissions"`

	// GrantedOverrides and RevokedOverrides are the keys of the overrides
	// active at computation time, partitioned by direction.
	GrantedOverrides []string `json:"granted_overrides"`
	RevokedOverrides []string `json:"revoked_overrides"`

	// Permissions is the effective set:
	// (RolePermissions ∪ GrantedOverrides) \ RevokedOverrides, restricted
	// to active catalog keys.
	Permissions []string `json:"permissions"`

	ComputedAt time.Time `json:"computed_at"`
}

// Has reports whether the effective set contains the given permission key.
func (s *Snapshot) Has(key string) bool {
	_, found := slices.BinarySearch(s.Permissions, key)
	return found
}

// HasRole reports whether the user held the given role key at computation
// time.
func (s *Snapshot) HasRole(key string) bool {
	_, found := slices.BinarySearch(s.RoleKeys, key)
	return found
}

// Equal reports whether two snapshots carry identical contents, ignoring
// ComputedAt. Refreshing with no intervening source mutation must yield an
// Equal snapshot.
func (s *Snapshot) Equal(other *Snapshot) bool {
	if other == nil {
		return false
	}
	return s.OrgID == other.OrgID &&
		s.UserID == other.UserID &&
		s.Admin == other.Admin &&
		slices.Equal(s.RoleKeys, other.RoleKeys) &&
		slices.Equal(s.RolePermissions, other.RolePermissions) &&
		slices.Equal(s.GrantedOverrides, other.GrantedOverrides) &&
		slices.Equal(s.RevokedOverrides, other.RevokedOverrides) &&
		slices.Equal(s.Permissions, other.Permissions)
}

// Clone returns a deep copy. Cache implementations hand out clones so a
// reader never observes a snapshot mutated behind its back.
func (s *Snapshot) Clone() *Snapshot {
	c := *s
	c.RoleKeys = slices.Clone(s.RoleKeys)
	c.RolePermissions = slices.Clone(s.RolePermissions)
	c.GrantedOverrides = slices.Clone(s.GrantedOverrides)
	c.RevokedOverrides = slices.Clone(s.RevokedOverrides)
	c.Permissions = slices.Clone(s.Permissions)
	return &c
}

// Normalize sorts and deduplicates every set in place. Builders call this
// once before the snapshot becomes visible to readers.
func (s *Snapshot) Normalize() {
	s.RoleKeys = sortedSet(s.RoleKeys)
	s.RolePermissions = sortedSet(s.RolePermissions)
	s.GrantedOverrides = sortedSet(s.GrantedOverrides)
	s.RevokedOverrides = sortedSet(s.RevokedOverrides)
	s.Permissions = sortedSet(s.Permissions)
}

func sortedSet(keys []string) []string {
	if keys == nil {
		return []string{}
	}
	slices.Sort(keys)
	return slices.Compact(keys)
}
