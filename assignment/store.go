package assignment

import (
	"context"

	"github.com/workshophq/gatekeep/id"
	"github.com/workshophq/gatekeep/role"
)

// Store defines persistence operations for role assignments.
type Store interface {
	// CreateAssignment persists a new assignment. Implementations enforce
	// uniqueness of the (user, role) pair.
	CreateAssignment(ctx context.Context, a *Assignment) error

	// GetAssignment retrieves an assignment by ID.
	GetAssignment(ctx context.Context, assID id.AssignmentID) (*Assignment, error)

	// DeleteAssignment removes an assignment by ID.
	DeleteAssignment(ctx context.Context, assID id.AssignmentID) error

	// DeleteAssignmentByUserRole removes the assignment binding a user to a
	// role, if one exists.
	DeleteAssignmentByUserRole(ctx context.Context, orgID, userID string, roleID id.RoleID) error

	// ListAssignments returns assignments matching the filter.
	ListAssignments(ctx context.Context, filter *ListFilter) ([]*Assignment, error)

	// ListRolesForUser returns role IDs assigned to a user. A user with no
	// assignments yields an empty slice, not an error.
	ListRolesForUser(ctx context.Context, orgID, userID string) ([]id.RoleID, error)

	// ListActiveRolesForUser returns the active role entities held by a
	// user. This is the join the resolution hot path runs on.
	ListActiveRolesForUser(ctx context.Context, orgID, userID string) ([]*role.Role, error)

	// ListUsersForRole returns the user IDs of every holder of a role.
	// Used for targeted snapshot invalidation when a role is revoked
	// or deactivated.
	ListUsersForRole(ctx context.Context, roleID id.RoleID) ([]string, error)

	// DeleteAssignmentsByUser removes all assignments for a user.
	DeleteAssignmentsByUser(ctx context.Context, orgID, userID string) error

	// DeleteAssignmentsByRole removes all assignments for a role.
	DeleteAssignmentsByRole(ctx context.Context, roleID id.RoleID) error

	// DeleteAssignmentsByOrg removes all assignments for an organization.
	DeleteAssignmentsByOrg(ctx context.Context, orgID string) error
}
