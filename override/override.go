// Package override defines the PermissionOverride entity: a per-user
// exception (grant or revoke) to the role-derived permission set, with an
// optional expiry. An override whose expiry has passed is inert — treated
// exactly as if it were absent — without requiring deletion.
package override

import (
	"time"

	"github.com/workshophq/gatekeep/id"
)

// Override is a user-specific permission exception. IsGranted selects
// whether it adds or subtracts the permission from the role-derived set;
// a revoke always dominates a role-derived grant for the same key.
type Override struct {
	ID            id.OverrideID `json:"id" db:"id"`
	OrgID         string        `json:"org_id" db:"org_id"`
	UserID        string        `json:"user_id" db:"user_id"`
	PermissionKey string        `json:"permission_key" db:"permission_key"`
	IsGranted     bool          `json:"is_granted" db:"is_granted"`
	ExpiresAt     *time.Time    `json:"expires_at,omitempty" db:"expires_at"`
	GrantedBy     string        `json:"granted_by,omitempty" db:"granted_by"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at" db:"updated_at"`
}

// ActiveAt reports whether the override is in effect at the given instant.
// A nil ExpiresAt never expires.
func (o *Override) ActiveAt(now time.Time) bool {
	return o.ExpiresAt == nil || o.ExpiresAt.After(now)
}

// ListFilter contains filters for listing overrides.
type ListFilter struct {
	OrgID         string `json:"org_id,omitempty"`
	UserID        string `json:"user_id,omitempty"`
	PermissionKey string `json:"permission_key,omitempty"`
	IsGranted     *bool  `json:"is_granted,omitempty"`
	Limit         int    `json:"limit,omitempty"`
	Offset        int    `json:"offset,omitempty"`
}
