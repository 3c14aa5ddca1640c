package gatekeep

import "errors"

var (
	// ErrRoleNotFound is returned when a role cannot be found.
	ErrRoleNotFound = errors.New("gatekeep: role not found")

	// ErrPermissionNotFound is returned when a permission cannot be found.
	ErrPermissionNotFound = errors.New("gatekeep: permission not found")

	// ErrAssignmentNotFound is returned when an assignment cannot be found.
	ErrAssignmentNotFound = errors.New("gatekeep: assignment not found")

	// ErrOverrideNotFound is returned when an override cannot be found.
	ErrOverrideNotFound = errors.New("gatekeep: override not found")

	// ErrDuplicateAssignment is returned when a role is already assigned to
	// a user.
	ErrDuplicateAssignment = errors.New("gatekeep: role already assigned to user")

	// ErrSystemRoleImmutable is returned when trying to delete or rename a
	// system role.
	ErrSystemRoleImmutable = errors.New("gatekeep: system role cannot be modified")

	// ErrRoleInactive is returned when trying to assign a deactivated role.
	ErrRoleInactive = errors.New("gatekeep: role is not active")

	// ErrInvalidPermissionKey is returned when a permission key does not
	// have the "resource.action" shape.
	ErrInvalidPermissionKey = errors.New("gatekeep: invalid permission key")

	// ErrPermissionKeyConflict is returned when a permission key already
	// exists with a different resource/action pair. Keys are never reused.
	ErrPermissionKeyConflict = errors.New("gatekeep: permission key already defined with different resource/action")
)
