// Package assignment defines the RoleAssignment entity (user→role binding).
package assignment

import (
	"time"

	"github.com/workshophq/gatekeep/id"
)

// Assignment binds a role to a user within an organization.
// The (user, role) pair is unique; a user may hold zero or more roles.
type Assignment struct {
	ID        id.AssignmentID `json:"id" db:"id"`
	OrgID     string          `json:"org_id" db:"org_id"`
	RoleID    id.RoleID       `json:"role_id" db:"role_id"`
	UserID    string          `json:"user_id" db:"user_id"`
	GrantedBy string          `json:"granted_by,omitempty" db:"granted_by"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// ListFilter contains filters for listing assignments.
type ListFilter struct {
	OrgID  string     `json:"org_id,omitempty"`
	RoleID *id.RoleID `json:"role_id,omitempty"`
	UserID string     `json:"user_id,omitempty"`
	Limit  int        `json:"limit,omitempty"`
	Offset int        `json:"offset,omitempty"`
}
