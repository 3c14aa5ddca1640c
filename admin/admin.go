// Package admin provides the management surface of gatekeep: the catalog,
// assignment, and override mutations an application's administration screens
// call. Every mutation keeps the snapshot cache coherent, invalidating
// exactly the users the change can affect.
package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/workshophq/gatekeep"
	"github.com/workshophq/gatekeep/assignment"
	"github.com/workshophq/gatekeep/id"
	"github.com/workshophq/gatekeep/override"
	"github.com/workshophq/gatekeep/permission"
	"github.com/workshophq/gatekeep/role"
	"github.com/workshophq/gatekeep/store"
)

// Service exposes the management operations. All methods are safe for
// concurrent use.
type Service struct {
	engine *gatekeep.Engine
	store  store.Store
}

// NewService creates a management service on top of an engine.
func NewService(engine *gatekeep.Engine) *Service {
	return &Service{engine: engine, store: engine.Store()}
}

// ──────────────────────────────────────────────────
// Role catalog
// ──────────────────────────────────────────────────

// CreateRoleInput describes a new role.
type CreateRoleInput struct {
	OrgID       string
	Key         string
	Name        string
	Description string
	IsSystem    bool
}

// CreateRole creates an active role in the organization's catalog.
func (s *Service) CreateRole(ctx context.Context, in CreateRoleInput) (*role.Role, error) {
	if in.Key == "" {
		return nil, fmt.Errorf("gatekeep: role key is required")
	}
	now := s.engine.Now()
	r := &role.Role{
		ID:          id.NewRoleID(),
		OrgID:       in.OrgID,
		Key:         in.Key,
		Name:        in.Name,
		Description: in.Description,
		IsSystem:    in.IsSystem,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateRole(ctx, r); err != nil {
		return nil, fmt.Errorf("create role %q: %w", in.Key, err)
	}
	s.engine.Plugins().EmitRoleCreated(ctx, r)
	return r, nil
}

// UpdateRoleInput carries the mutable fields of a role. Nil fields are
// left unchanged.
type UpdateRoleInput struct {
	Name        *string
	Description *string
}

// UpdateRole updates a role's display fields. The key is immutable.
func (s *Service) UpdateRole(ctx context.Context, roleID id.RoleID, in UpdateRoleInput) (*role.Role, error) {
	r, err := s.getRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		r.Name = *in.Name
	}
	if in.Description != nil {
		r.Description = *in.Description
	}
	r.UpdatedAt = s.engine.Now()
	if err := s.store.UpdateRole(ctx, r); err != nil {
		return nil, fmt.Errorf("update role %s: %w", roleID, err)
	}
	s.engine.Plugins().EmitRoleUpdated(ctx, r)
	return r, nil
}

// SetRoleActive activates or deactivates a role. Deactivation removes the
// role's grants from every holder's resolution on their next check.
func (s *Service) SetRoleActive(ctx context.Context, roleID id.RoleID, active bool) (*role.Role, error) {
	r, err := s.getRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if r.IsActive == active {
		return r, nil
	}
	r.IsActive = active
	r.UpdatedAt = s.engine.Now()
	if err := s.store.UpdateRole(ctx, r); err != nil {
		return nil, fmt.Errorf("update role %s: %w", roleID, err)
	}
	if err := s.invalidateRoleHolders(ctx, roleID, r.OrgID); err != nil {
		return nil, err
	}
	s.engine.Plugins().EmitRoleUpdated(ctx, r)
	return r, nil
}

// DeleteRole removes a non-system role, its grant set, and all its
// assignments.
func (s *Service) DeleteRole(ctx context.Context, roleID id.RoleID) error {
	r, err := s.getRole(ctx, roleID)
	if err != nil {
		return err
	}
	if r.IsSystem {
		return gatekeep.ErrSystemRoleImmutable
	}
	holders, err := s.store.ListUsersForRole(ctx, roleID)
	if err != nil {
		return fmt.Errorf("list holders of role %s: %w", roleID, err)
	}
	if err := s.store.DeleteAssignmentsByRole(ctx, roleID); err != nil {
		return fmt.Errorf("delete assignments for role %s: %w", roleID, err)
	}
	if err := s.store.DeleteRole(ctx, roleID); err != nil {
		return fmt.Errorf("delete role %s: %w", roleID, err)
	}
	// Invalidate only after the deletes: a check interleaved before them
	// would re-cache the role's grants from the still-intact rows.
	for _, userID := range holders {
		s.engine.Invalidate(ctx, r.OrgID, userID)
	}
	s.engine.Plugins().EmitRoleDeleted(ctx, roleID)
	return nil
}

// SetRolePermissions replaces a role's grant set and invalidates every
// holder.
func (s *Service) SetRolePermissions(ctx context.Context, roleID id.RoleID, permIDs []id.PermissionID) error {
	r, err := s.getRole(ctx, roleID)
	if err != nil {
		return err
	}
	for _, permID := range permIDs {
		if err := s.checkPermissionOrg(ctx, permID, r.OrgID); err != nil {
			return err
		}
	}
	if err := s.store.SetRolePermissions(ctx, roleID, permIDs); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return gatekeep.ErrPermissionNotFound
		}
		return fmt.Errorf("set permissions for role %s: %w", roleID, err)
	}
	if err := s.invalidateRoleHolders(ctx, roleID, r.OrgID); err != nil {
		return err
	}
	s.engine.Plugins().EmitRoleGrantsChanged(ctx, roleID)
	return nil
}

// AttachPermission adds one permission to a role's grant set.
func (s *Service) AttachPermission(ctx context.Context, roleID id.RoleID, permID id.PermissionID) error {
	r, err := s.getRole(ctx, roleID)
	if err != nil {
		return err
	}
	if err := s.checkPermissionOrg(ctx, permID, r.OrgID); err != nil {
		return err
	}
	if err := s.store.AttachPermission(ctx, roleID, permID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return gatekeep.ErrPermissionNotFound
		}
		return fmt.Errorf("attach permission %s to role %s: %w", permID, roleID, err)
	}
	if err := s.invalidateRoleHolders(ctx, roleID, r.OrgID); err != nil {
		return err
	}
	s.engine.Plugins().EmitRoleGrantsChanged(ctx, roleID)
	return nil
}

// DetachPermission removes one permission from a role's grant set.
func (s *Service) DetachPermission(ctx context.Context, roleID id.RoleID, permID id.PermissionID) error {
	r, err := s.getRole(ctx, roleID)
	if err != nil {
		return err
	}
	if err := s.store.DetachPermission(ctx, roleID, permID); err != nil {
		return fmt.Errorf("detach permission %s from role %s: %w", permID, roleID, err)
	}
	if err := s.invalidateRoleHolders(ctx, roleID, r.OrgID); err != nil {
		return err
	}
	s.engine.Plugins().EmitRoleGrantsChanged(ctx, roleID)
	return nil
}

// ──────────────────────────────────────────────────
// Permission catalog
// ──────────────────────────────────────────────────

// CreatePermissionInput describes a new permission.
type CreatePermissionInput struct {
	OrgID       string
	Key         string
	Description string
}

// CreatePermission defines a new active permission. The key must have the
// "resource.action" shape and must not already exist in the organization:
// keys are never reused for a different meaning.
func (s *Service) CreatePermission(ctx context.Context, in CreatePermissionInput) (*permission.Permission, error) {
	resource, action, ok := gatekeep.SplitPermissionKey(in.Key)
	if !ok || !gatekeep.ValidPermissionKey(in.Key) {
		return nil, fmt.Errorf("%w: %q", gatekeep.ErrInvalidPermissionKey, in.Key)
	}
	if _, err := s.store.GetPermissionByKey(ctx, in.OrgID, in.Key); err == nil {
		return nil, fmt.Errorf("%w: %q", gatekeep.ErrPermissionKeyConflict, in.Key)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("lookup permission %q: %w", in.Key, err)
	}

	now := s.engine.Now()
	p := &permission.Permission{
		ID:          id.NewPermissionID(),
		OrgID:       in.OrgID,
		Key:         in.Key,
		Resource:    resource,
		Action:      action,
		Description: in.Description,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreatePermission(ctx, p); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, fmt.Errorf("%w: %q", gatekeep.ErrPermissionKeyConflict, in.Key)
		}
		return nil, fmt.Errorf("create permission %q: %w", in.Key, err)
	}
	s.engine.Plugins().EmitPermissionCreated(ctx, p)
	return p, nil
}

// SetPermissionActive activates or deactivates a permission. Deactivation
// removes the key from every resolution in the organization, so the whole
// organization's snapshots are marked stale.
func (s *Service) SetPermissionActive(ctx context.Context, permID id.PermissionID, active bool) (*permission.Permission, error) {
	p, err := s.store.GetPermission(ctx, permID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, gatekeep.ErrPermissionNotFound
		}
		return nil, fmt.Errorf("get permission %s: %w", permID, err)
	}
	if p.IsActive == active {
		return p, nil
	}
	p.IsActive = active
	p.UpdatedAt = s.engine.Now()
	if err := s.store.UpdatePermission(ctx, p); err != nil {
		return nil, fmt.Errorf("update permission %s: %w", permID, err)
	}
	s.engine.InvalidateOrg(ctx, p.OrgID)
	s.engine.Plugins().EmitPermissionUpdated(ctx, p)
	return p, nil
}

// ──────────────────────────────────────────────────
// Assignments
// ──────────────────────────────────────────────────

// AssignRole assigns an active role to a user and invalidates the user's
// snapshot before returning, so the grant is visible on the next check.
func (s *Service) AssignRole(ctx context.Context, orgID, userID string, roleID id.RoleID, grantedBy string) (*assignment.Assignment, error) {
	r, err := s.getRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	// A role is only assignable inside its own organization; a cross-org
	// role ID is indistinguishable from an unknown one.
	if r.OrgID != orgID {
		return nil, gatekeep.ErrRoleNotFound
	}
	if !r.IsActive {
		return nil, gatekeep.ErrRoleInactive
	}
	a := &assignment.Assignment{
		ID:        id.NewAssignmentID(),
		OrgID:     orgID,
		RoleID:    roleID,
		UserID:    userID,
		GrantedBy: grantedBy,
		CreatedAt: s.engine.Now(),
	}
	if err := s.store.CreateAssignment(ctx, a); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, gatekeep.ErrDuplicateAssignment
		}
		return nil, fmt.Errorf("assign role %s to user %s: %w", roleID, userID, err)
	}
	s.engine.Invalidate(ctx, orgID, userID)
	s.engine.Plugins().EmitRoleAssigned(ctx, a)
	return a, nil
}

// RevokeRole removes a role from a user and invalidates the user's
// snapshot before returning, so the loss is visible on the next check.
func (s *Service) RevokeRole(ctx context.Context, orgID, userID string, roleID id.RoleID) error {
	if err := s.store.DeleteAssignmentByUserRole(ctx, orgID, userID, roleID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return gatekeep.ErrAssignmentNotFound
		}
		return fmt.Errorf("revoke role %s from user %s: %w", roleID, userID, err)
	}
	s.engine.Invalidate(ctx, orgID, userID)
	s.engine.Plugins().EmitRoleRevoked(ctx, &assignment.Assignment{
		OrgID:  orgID,
		RoleID: roleID,
		UserID: userID,
	})
	return nil
}

// ──────────────────────────────────────────────────
// Overrides
// ──────────────────────────────────────────────────

// GrantPermission sets a granting override for a user, replacing any
// existing override for the same key. A nil expiresAt grants until cleared.
func (s *Service) GrantPermission(ctx context.Context, orgID, userID, permissionKey string, expiresAt *time.Time, grantedBy string) (*override.Override, error) {
	return s.setOverride(ctx, orgID, userID, permissionKey, true, expiresAt, grantedBy)
}

// RevokePermission sets a revoking override for a user, replacing any
// existing override for the same key. The revoke dominates every
// role-derived grant while active.
func (s *Service) RevokePermission(ctx context.Context, orgID, userID, permissionKey string, expiresAt *time.Time, grantedBy string) (*override.Override, error) {
	return s.setOverride(ctx, orgID, userID, permissionKey, false, expiresAt, grantedBy)
}

func (s *Service) setOverride(ctx context.Context, orgID, userID, permissionKey string, granted bool, expiresAt *time.Time, grantedBy string) (*override.Override, error) {
	if _, err := s.store.GetPermissionByKey(ctx, orgID, permissionKey); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %q", gatekeep.ErrPermissionNotFound, permissionKey)
		}
		return nil, fmt.Errorf("lookup permission %q: %w", permissionKey, err)
	}
	now := s.engine.Now()
	o := &override.Override{
		ID:            id.NewOverrideID(),
		OrgID:         orgID,
		UserID:        userID,
		PermissionKey: permissionKey,
		IsGranted:     granted,
		ExpiresAt:     expiresAt,
		GrantedBy:     grantedBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.UpsertOverride(ctx, o); err != nil {
		return nil, fmt.Errorf("set override %q for user %s: %w", permissionKey, userID, err)
	}
	s.engine.Invalidate(ctx, orgID, userID)
	s.engine.Plugins().EmitOverrideSet(ctx, o)
	return o, nil
}

// ClearOverride removes a user's override for a permission key, restoring
// the purely role-derived outcome.
func (s *Service) ClearOverride(ctx context.Context, orgID, userID, permissionKey string) error {
	if err := s.store.DeleteOverrideByKey(ctx, orgID, userID, permissionKey); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return gatekeep.ErrOverrideNotFound
		}
		return fmt.Errorf("clear override %q for user %s: %w", permissionKey, userID, err)
	}
	s.engine.Invalidate(ctx, orgID, userID)
	s.engine.Plugins().EmitOverrideCleared(ctx, orgID, userID, permissionKey)
	return nil
}

// ──────────────────────────────────────────────────
// Organization teardown
// ──────────────────────────────────────────────────

// DeleteOrganization removes every gatekeep entity belonging to an
// organization.
func (s *Service) DeleteOrganization(ctx context.Context, orgID string) error {
	if err := s.store.DeleteAssignmentsByOrg(ctx, orgID); err != nil {
		return fmt.Errorf("delete assignments for org %s: %w", orgID, err)
	}
	if err := s.store.DeleteOverridesByOrg(ctx, orgID); err != nil {
		return fmt.Errorf("delete overrides for org %s: %w", orgID, err)
	}
	if err := s.store.DeleteRolesByOrg(ctx, orgID); err != nil {
		return fmt.Errorf("delete roles for org %s: %w", orgID, err)
	}
	if err := s.store.DeletePermissionsByOrg(ctx, orgID); err != nil {
		return fmt.Errorf("delete permissions for org %s: %w", orgID, err)
	}
	if err := s.store.DeleteCheckLogsByOrg(ctx, orgID); err != nil {
		return fmt.Errorf("delete check logs for org %s: %w", orgID, err)
	}
	s.engine.InvalidateOrg(ctx, orgID)
	return nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func (s *Service) getRole(ctx context.Context, roleID id.RoleID) (*role.Role, error) {
	r, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, gatekeep.ErrRoleNotFound
		}
		return nil, fmt.Errorf("get role %s: %w", roleID, err)
	}
	return r, nil
}

// checkPermissionOrg verifies a permission exists and belongs to the given
// organization. Cross-org permission IDs read as not found.
func (s *Service) checkPermissionOrg(ctx context.Context, permID id.PermissionID, orgID string) error {
	p, err := s.store.GetPermission(ctx, permID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return gatekeep.ErrPermissionNotFound
		}
		return fmt.Errorf("get permission %s: %w", permID, err)
	}
	if p.OrgID != orgID {
		return gatekeep.ErrPermissionNotFound
	}
	return nil
}

// invalidateRoleHolders drops the snapshot of every current holder of a
// role. Bounded by the role's holder count, unlike an org-wide
// invalidation.
func (s *Service) invalidateRoleHolders(ctx context.Context, roleID id.RoleID, orgID string) error {
	users, err := s.store.ListUsersForRole(ctx, roleID)
	if err != nil {
		return fmt.Errorf("list holders of role %s: %w", roleID, err)
	}
	for _, userID := range users {
		s.engine.Invalidate(ctx, orgID, userID)
	}
	return nil
}
