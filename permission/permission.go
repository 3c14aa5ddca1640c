// Package permission defines the Permission catalog entity and its store
// interface. A permission is an atomic capability key ("work_orders.view")
// scoped to one organization; deactivating it removes it from every
// resolution without deleting the row.
package permission

import (
	"time"

	"github.com/workshophq/gatekeep/id"
)

// Permission represents a specific action allowed on a resource.
// The Key is immutable once defined: it is never reused for a different
// resource/action pair within the same organization.
type Permission struct {
	ID          id.PermissionID `json:"id" db:"id"`
	OrgID       string          `json:"org_id" db:"org_id"`
	Key         string          `json:"key" db:"key"`
	Resource    string          `json:"resource" db:"resource"`
	Action      string          `json:"action" db:"action"`
	Description string          `json:"description,omitempty" db:"description"`
	IsActive    bool            `json:"is_active" db:"is_active"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// ListFilter contains filters for listing permissions.
type ListFilter struct {
	OrgID    string `json:"org_id,omitempty"`
	Resource string `json:"resource,omitempty"`
	Action   string `json:"action,omitempty"`
	IsActive *bool  `json:"is_active,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}
