package plugin

import (
	"context"
	"log/slog"

	"github.com/workshophq/gatekeep/assignment"
	"github.com/workshophq/gatekeep/id"
	"github.com/workshophq/gatekeep/override"
	"github.com/workshophq/gatekeep/permission"
	"github.com/workshophq/gatekeep/role"
	"github.com/workshophq/gatekeep/snapshot"
)

// Named entry types pair a hook with the plugin name for logging.

type beforeCheckEntry struct {
	name string
	hook BeforeCheck
}
type afterCheckEntry struct {
	name string
	hook AfterCheck
}
type snapshotRefreshedEntry struct {
	name string
	hook SnapshotRefreshed
}
type roleCreatedEntry struct {
	name string
	hook RoleCreated
}
type roleUpdatedEntry struct {
	name string
	hook RoleUpdated
}
type roleDeletedEntry struct {
	name string
	hook RoleDeleted
}
type permissionCreatedEntry struct {
	name string
	hook PermissionCreated
}
type permissionUpdatedEntry struct {
	name string
	hook PermissionUpdated
}
type roleGrantsChangedEntry struct {
	name string
	hook RoleGrantsChanged
}
type roleAssignedEntry struct {
	name string
	hook RoleAssigned
}
type roleRevokedEntry struct {
	name string
	hook RoleRevoked
}
type overrideSetEntry struct {
	name string
	hook OverrideSet
}
type overrideClearedEntry struct {
	name string
	hook OverrideCleared
}
type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered plugins and dispatches lifecycle events.
// It type-caches plugins at registration time so emit calls iterate only
// over plugins implementing the relevant hook.
type Registry struct {
	plugins []Plugin
	logger  *slog.Logger

	beforeCheck       []beforeCheckEntry
	afterCheck        []afterCheckEntry
	snapshotRefreshed []snapshotRefreshedEntry
	roleCreated       []roleCreatedEntry
	roleUpdated       []roleUpdatedEntry
	roleDeleted       []roleDeletedEntry
	permissionCreated []permissionCreatedEntry
	permissionUpdated []permissionUpdatedEntry
	roleGrantsChanged []roleGrantsChangedEntry
	roleAssigned      []roleAssignedEntry
	roleRevoked       []roleRevokedEntry
	overrideSet       []overrideSetEntry
	overrideCleared   []overrideClearedEntry
	shutdown          []shutdownEntry
}

// NewRegistry creates a plugin registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds a plugin and type-asserts it into all applicable hook
// caches. Plugins are notified in registration order.
func (r *Registry) Register(p Plugin) {
	r.plugins = append(r.plugins, p)
	name := p.Name()

	if h, ok := p.(BeforeCheck); ok {
		r.beforeCheck = append(r.beforeCheck, beforeCheckEntry{name, h})
	}
	if h, ok := p.(AfterCheck); ok {
		r.afterCheck = append(r.afterCheck, afterCheckEntry{name, h})
	}
	if h, ok := p.(SnapshotRefreshed); ok {
		r.snapshotRefreshed = append(r.snapshotRefreshed, snapshotRefreshedEntry{name, h})
	}
	if h, ok := p.(RoleCreated); ok {
		r.roleCreated = append(r.roleCreated, roleCreatedEntry{name, h})
	}
	if h, ok := p.(RoleUpdated); ok {
		r.roleUpdated = append(r.roleUpdated, roleUpdatedEntry{name, h})
	}
	if h, ok := p.(RoleDeleted); ok {
		r.roleDeleted = append(r.roleDeleted, roleDeletedEntry{name, h})
	}
	if h, ok := p.(PermissionCreated); ok {
		r.permissionCreated = append(r.permissionCreated, permissionCreatedEntry{name, h})
	}
	if h, ok := p.(PermissionUpdated); ok {
		r.permissionUpdated = append(r.permissionUpdated, permissionUpdatedEntry{name, h})
	}
	if h, ok := p.(RoleGrantsChanged); ok {
		r.roleGrantsChanged = append(r.roleGrantsChanged, roleGrantsChangedEntry{name, h})
	}
	if h, ok := p.(RoleAssigned); ok {
		r.roleAssigned = append(r.roleAssigned, roleAssignedEntry{name, h})
	}
	if h, ok := p.(RoleRevoked); ok {
		r.roleRevoked = append(r.roleRevoked, roleRevokedEntry{name, h})
	}
	if h, ok := p.(OverrideSet); ok {
		r.overrideSet = append(r.overrideSet, overrideSetEntry{name, h})
	}
	if h, ok := p.(OverrideCleared); ok {
		r.overrideCleared = append(r.overrideCleared, overrideClearedEntry{name, h})
	}
	if h, ok := p.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Plugins returns all registered plugins.
func (r *Registry) Plugins() []Plugin { return r.plugins }

// ──────────────────────────────────────────────────
// Check event emitters
// ──────────────────────────────────────────────────

// EmitBeforeCheck notifies all plugins that implement BeforeCheck.
func (r *Registry) EmitBeforeCheck(ctx context.Context, req any) {
	for _, e := range r.beforeCheck {
		if err := e.hook.OnBeforeCheck(ctx, req); err != nil {
			r.logHookError("OnBeforeCheck", e.name, err)
		}
	}
}

// EmitAfterCheck notifies all plugins that implement AfterCheck.
func (r *Registry) EmitAfterCheck(ctx context.Context, req, result any) {
	for _, e := range r.afterCheck {
		if err := e.hook.OnAfterCheck(ctx, req, result); err != nil {
			r.logHookError("OnAfterCheck", e.name, err)
		}
	}
}

// EmitSnapshotRefreshed notifies all plugins that implement
// SnapshotRefreshed.
func (r *Registry) EmitSnapshotRefreshed(ctx context.Context, snap *snapshot.Snapshot) {
	for _, e := range r.snapshotRefreshed {
		if err := e.hook.OnSnapshotRefreshed(ctx, snap); err != nil {
			r.logHookError("OnSnapshotRefreshed", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Catalog event emitters
// ──────────────────────────────────────────────────

// EmitRoleCreated notifies all plugins that implement RoleCreated.
func (r *Registry) EmitRoleCreated(ctx context.Context, rl *role.Role) {
	for _, e := range r.roleCreated {
		if err := e.hook.OnRoleCreated(ctx, rl); err != nil {
			r.logHookError("OnRoleCreated", e.name, err)
		}
	}
}

// EmitRoleUpdated notifies all plugins that implement RoleUpdated.
func (r *Registry) EmitRoleUpdated(ctx context.Context, rl *role.Role) {
	for _, e := range r.roleUpdated {
		if err := e.hook.OnRoleUpdated(ctx, rl); err != nil {
			r.logHookError("OnRoleUpdated", e.name, err)
		}
	}
}

// EmitRoleDeleted notifies all plugins that implement RoleDeleted.
func (r *Registry) EmitRoleDeleted(ctx context.Context, roleID id.RoleID) {
	for _, e := range r.roleDeleted {
		if err := e.hook.OnRoleDeleted(ctx, roleID); err != nil {
			r.logHookError("OnRoleDeleted", e.name, err)
		}
	}
}

// EmitPermissionCreated notifies all plugins that implement
// PermissionCreated.
func (r *Registry) EmitPermissionCreated(ctx context.Context, p *permission.Permission) {
	for _, e := range r.permissionCreated {
		if err := e.hook.OnPermissionCreated(ctx, p); err != nil {
			r.logHookError("OnPermissionCreated", e.name, err)
		}
	}
}

// EmitPermissionUpdated notifies all plugins that implement
// PermissionUpdated.
func (r *Registry) EmitPermissionUpdated(ctx context.Context, p *permission.Permission) {
	for _, e := range r.permissionUpdated {
		if err := e.hook.OnPermissionUpdated(ctx, p); err != nil {
			r.logHookError("OnPermissionUpdated", e.name, err)
		}
	}
}

// EmitRoleGrantsChanged notifies all plugins that implement
// RoleGrantsChanged.
func (r *Registry) EmitRoleGrantsChanged(ctx context.Context, roleID id.RoleID) {
	for _, e := range r.roleGrantsChanged {
		if err := e.hook.OnRoleGrantsChanged(ctx, roleID); err != nil {
			r.logHookError("OnRoleGrantsChanged", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Assignment and override event emitters
// ──────────────────────────────────────────────────

// EmitRoleAssigned notifies all plugins that implement RoleAssigned.
func (r *Registry) EmitRoleAssigned(ctx context.Context, a *assignment.Assignment) {
	for _, e := range r.roleAssigned {
		if err := e.hook.OnRoleAssigned(ctx, a); err != nil {
			r.logHookError("OnRoleAssigned", e.name, err)
		}
	}
}

// EmitRoleRevoked notifies all plugins that implement RoleRevoked.
func (r *Registry) EmitRoleRevoked(ctx context.Context, a *assignment.Assignment) {
	for _, e := range r.roleRevoked {
		if err := e.hook.OnRoleRevoked(ctx, a); err != nil {
			r.logHookError("OnRoleRevoked", e.name, err)
		}
	}
}

// EmitOverrideSet notifies all plugins that implement OverrideSet.
func (r *Registry) EmitOverrideSet(ctx context.Context, o *override.Override) {
	for _, e := range r.overrideSet {
		if err := e.hook.OnOverrideSet(ctx, o); err != nil {
			r.logHookError("OnOverrideSet", e.name, err)
		}
	}
}

// EmitOverrideCleared notifies all plugins that implement OverrideCleared.
func (r *Registry) EmitOverrideCleared(ctx context.Context, orgID, userID, permissionKey string) {
	for _, e := range r.overrideCleared {
		if err := e.hook.OnOverrideCleared(ctx, orgID, userID, permissionKey); err != nil {
			r.logHookError("OnOverrideCleared", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Shutdown emitter
// ──────────────────────────────────────────────────

// EmitShutdown notifies all plugins that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated — they must not block the check
// path.
func (r *Registry) logHookError(hook, pluginName string, err error) {
	r.logger.Warn("plugin hook error",
		slog.String("hook", hook),
		slog.String("plugin", pluginName),
		slog.String("error", err.Error()),
	)
}
