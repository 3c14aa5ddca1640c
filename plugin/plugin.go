// Package plugin defines the lifecycle hook system for gatekeep.
// Plugins are notified of events (check performed, role assigned, override
// set, snapshot refreshed, etc.) and can react — audit logging, metrics,
// tracing.
//
// Each lifecycle hook is a separate interface so plugins opt in only to the
// events they care about.
package plugin

import (
	"context"

	"github.com/workshophq/gatekeep/assignment"
	"github.com/workshophq/gatekeep/id"
	"github.com/workshophq/gatekeep/override"
	"github.com/workshophq/gatekeep/permission"
	"github.com/workshophq/gatekeep/role"
	"github.com/workshophq/gatekeep/snapshot"
)

// Plugin is the base interface all plugins must implement.
type Plugin interface {
	// Name returns a unique human-readable name for the plugin.
	Name() string
}

// ──────────────────────────────────────────────────
// Check lifecycle hooks
// ──────────────────────────────────────────────────

// BeforeCheck is called before an authorization check is evaluated.
// The req parameter is *gatekeep.CheckRequest (passed as any to avoid an
// import cycle).
type BeforeCheck interface {
	OnBeforeCheck(ctx context.Context, req any) error
}

// AfterCheck is called after an authorization check completes.
// The req parameter is *gatekeep.CheckRequest; result is
// *gatekeep.CheckResult.
type AfterCheck interface {
	OnAfterCheck(ctx context.Context, req, result any) error
}

// SnapshotRefreshed is called after a user's snapshot is recomputed,
// whether by an explicit refresh, a lazy cache fill, or the background
// sweeper.
type SnapshotRefreshed interface {
	OnSnapshotRefreshed(ctx context.Context, snap *snapshot.Snapshot) error
}

// ──────────────────────────────────────────────────
// Catalog lifecycle hooks
// ──────────────────────────────────────────────────

// RoleCreated is called after a role is created.
type RoleCreated interface {
	OnRoleCreated(ctx context.Context, r *role.Role) error
}

// RoleUpdated is called after a role is updated, including activation
// flips.
type RoleUpdated interface {
	OnRoleUpdated(ctx context.Context, r *role.Role) error
}

// RoleDeleted is called after a role is deleted.
type RoleDeleted interface {
	OnRoleDeleted(ctx context.Context, roleID id.RoleID) error
}

// PermissionCreated is called after a permission is created.
type PermissionCreated interface {
	OnPermissionCreated(ctx context.Context, p *permission.Permission) error
}

// PermissionUpdated is called after a permission is updated, including
// activation flips.
type PermissionUpdated interface {
	OnPermissionUpdated(ctx context.Context, p *permission.Permission) error
}

// RoleGrantsChanged is called after a role's permission grant set changes.
type RoleGrantsChanged interface {
	OnRoleGrantsChanged(ctx context.Context, roleID id.RoleID) error
}

// ──────────────────────────────────────────────────
// Assignment and override lifecycle hooks
// ──────────────────────────────────────────────────

// RoleAssigned is called after a role is assigned to a user.
type RoleAssigned interface {
	OnRoleAssigned(ctx context.Context, a *assignment.Assignment) error
}

// RoleRevoked is called after a role is removed from a user.
type RoleRevoked interface {
	OnRoleRevoked(ctx context.Context, a *assignment.Assignment) error
}

// OverrideSet is called after an override is created or replaced.
type OverrideSet interface {
	OnOverrideSet(ctx context.Context, o *override.Override) error
}

// OverrideCleared is called after an override is removed.
type OverrideCleared interface {
	OnOverrideCleared(ctx context.Context, orgID, userID, permissionKey string) error
}

// ──────────────────────────────────────────────────
// Shutdown hook
// ──────────────────────────────────────────────────

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
