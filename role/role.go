// Package role defines the Role entity and its store interface.
package role

import (
	"time"

	"github.com/workshophq/gatekeep/id"
)

// Role represents a named bundle of permissions assignable to users within
// one organization. System roles are seeded and cannot be deleted by tenant
// administrators. A role whose Key equals the engine's reserved admin key
// grants an unconditional bypass while it is active.
type Role struct {
	ID          id.RoleID `json:"id" db:"id"`
	OrgID       string    `json:"org_id" db:"org_id"`
	Key         string    `json:"key" db:"key"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description,omitempty" db:"description"`
	IsSystem    bool      `json:"is_system" db:"is_system"`
	IsActive    bool      `json:"is_active" db:"is_active"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// ListFilter contains filters for listing roles.
type ListFilter struct {
	OrgID    string `json:"org_id,omitempty"`
	IsSystem *bool  `json:"is_system,omitempty"`
	IsActive *bool  `json:"is_active,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}
