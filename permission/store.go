package permission

import (
	"context"

	"github.com/workshophq/gatekeep/id"
)

// Store defines persistence operations for the permission catalog.
// Every operation that touches rows takes the organization explicitly;
// implementations must never return rows belonging to another organization.
type Store interface {
	// CreatePermission persists a new permission.
	CreatePermission(ctx context.Context, p *Permission) error

	// GetPermission retrieves a permission by ID.
	GetPermission(ctx context.Context, permID id.PermissionID) (*Permission, error)

	// GetPermissionByKey retrieves a permission by organization and key.
	GetPermissionByKey(ctx context.Context, orgID, key string) (*Permission, error)

	// UpdatePermission persists changes to a permission.
	UpdatePermission(ctx context.Context, p *Permission) error

	// ListPermissions returns permissions matching the filter.
	ListPermissions(ctx context.Context, filter *ListFilter) ([]*Permission, error)

	// ListActivePermissionKeys returns the keys of all active permissions
	// in an organization. This is the catalog set the admin bypass and the
	// final is_active filter of a resolution are computed against.
	ListActivePermissionKeys(ctx context.Context, orgID string) ([]string, error)

	// ListPermissionsByRole returns all permissions granted to a role.
	ListPermissionsByRole(ctx context.Context, roleID id.RoleID) ([]*Permission, error)

	// DeletePermissionsByOrg removes all permissions for an organization.
	DeletePermissionsByOrg(ctx context.Context, orgID string) error
}
