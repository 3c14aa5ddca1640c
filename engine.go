package gatekeep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/workshophq/gatekeep/plugin"
	"github.com/workshophq/gatekeep/snapshot"
	"github.com/workshophq/gatekeep/store"
)

// Engine is the permission resolution engine. It resolves users' effective
// permission sets from the role catalog, assignments, and overrides, serves
// them from the snapshot cache, and answers authorization checks.
//
// All methods are safe for concurrent use.
type Engine struct {
	store   store.Store
	cache   Cache
	plugins *plugin.Registry
	logger  *slog.Logger
	config  Config
	clock   func() time.Time

	// pending collects WithPlugin options until the registry exists.
	pending []plugin.Plugin
}

// NewEngine creates an engine. A store is required; everything else has a
// default (no cache, slog.Default, DefaultConfig, time.Now).
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		config: DefaultConfig(),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		return nil, errors.New("gatekeep: store is required")
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.plugins = plugin.NewRegistry(e.logger)
	for _, p := range e.pending {
		e.plugins.Register(p)
	}
	e.pending = nil
	return e, nil
}

// Store returns the underlying persistence backend.
func (e *Engine) Store() store.Store { return e.store }

// Plugins returns the engine's plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Logger returns the engine's logger.
func (e *Engine) Logger() *slog.Logger { return e.logger }

// Now returns the engine's current time. Overridable via WithClock.
func (e *Engine) Now() time.Time { return e.clock() }

// ──────────────────────────────────────────────────
// Check API
// ──────────────────────────────────────────────────

// HasPermission reports whether the user holds the given permission key.
// It is total: any resolution failure is logged and answered false, never
// surfaced to the caller.
func (e *Engine) HasPermission(ctx context.Context, orgID, userID, permissionKey string) bool {
	res := e.Check(ctx, &CheckRequest{OrgID: orgID, UserID: userID, PermissionKey: permissionKey})
	return res.Allowed
}

// IsAdmin reports whether the user holds an active role with the reserved
// admin key. Total and fail-closed like HasPermission.
func (e *Engine) IsAdmin(ctx context.Context, orgID, userID string) bool {
	snap, _, err := e.snapshotFor(ctx, orgID, userID)
	if err != nil {
		e.logger.Warn("admin check failed closed",
			slog.String("org_id", orgID),
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return false
	}
	return snap.Admin
}

// Check evaluates an authorization request and returns the full decision.
// Like HasPermission it never returns an error: failures deny with
// DecisionDenyError.
func (e *Engine) Check(ctx context.Context, req *CheckRequest) *CheckResult {
	start := time.Now()
	e.plugins.EmitBeforeCheck(ctx, req)

	result := e.check(ctx, req)
	result.EvalTimeNs = time.Since(start).Nanoseconds()

	e.plugins.EmitAfterCheck(ctx, req, result)
	return result
}

func (e *Engine) check(ctx context.Context, req *CheckRequest) *CheckResult {
	snap, source, err := e.snapshotFor(ctx, req.OrgID, req.UserID)
	if err != nil {
		e.logger.Warn("permission check failed closed",
			slog.String("org_id", req.OrgID),
			slog.String("user_id", req.UserID),
			slog.String("permission", req.PermissionKey),
			slog.String("error", err.Error()),
		)
		return &CheckResult{Decision: DecisionDenyError, Source: source}
	}

	switch {
	case snap.Admin:
		return &CheckResult{Allowed: true, Decision: DecisionAllowAdmin, Source: source}
	case snap.Has(req.PermissionKey):
		return &CheckResult{Allowed: true, Decision: DecisionAllow, Source: source}
	default:
		decision := DecisionDenyNoPerm
		if _, revoked := slices.BinarySearch(snap.RevokedOverrides, req.PermissionKey); revoked {
			decision = DecisionDenyRevoked
		}
		return &CheckResult{Decision: decision, Source: source}
	}
}

// snapshotFor returns the snapshot to answer a check from: the cached one
// when present and fresh, otherwise a direct resolution (whose result is
// written back to the cache).
func (e *Engine) snapshotFor(ctx context.Context, orgID, userID string) (*snapshot.Snapshot, string, error) {
	if e.cache != nil {
		if snap, ok := e.cache.Get(ctx, orgID, userID); ok && e.fresh(snap) {
			return snap, SourceSnapshot, nil
		}
	}
	snap, err := e.Refresh(ctx, orgID, userID)
	if err != nil {
		return nil, SourceDirect, err
	}
	return snap, SourceDirect, nil
}

// fresh reports whether a cached snapshot is within SnapshotMaxAge.
func (e *Engine) fresh(snap *snapshot.Snapshot) bool {
	if e.config.SnapshotMaxAge <= 0 {
		return true
	}
	return e.clock().Sub(snap.ComputedAt) <= e.config.SnapshotMaxAge
}

// ──────────────────────────────────────────────────
// Resolution
// ──────────────────────────────────────────────────

// Resolve computes a user's permission snapshot directly from the store,
// bypassing the cache. The resulting snapshot is normalized and ready for
// caching.
//
// A user with no assignments and no overrides resolves to a valid, empty
// snapshot.
func (e *Engine) Resolve(ctx context.Context, orgID, userID string) (*snapshot.Snapshot, error) {
	now := e.clock()
	snap := &snapshot.Snapshot{
		OrgID:      orgID,
		UserID:     userID,
		ComputedAt: now,
	}

	roles, err := e.store.ListActiveRolesForUser(ctx, orgID, userID)
	if err != nil {
		return nil, fmt.Errorf("gatekeep: list roles for user %s: %w", userID, err)
	}

	adminKey := e.config.adminKey()
	for _, r := range roles {
		snap.RoleKeys = append(snap.RoleKeys, r.Key)
		if r.Key == adminKey {
			snap.Admin = true
		}
	}

	// Admin bypass: the effective set is the whole active catalog and
	// overrides are not consulted.
	if snap.Admin {
		keys, err := e.store.ListActivePermissionKeys(ctx, orgID)
		if err != nil {
			return nil, fmt.Errorf("gatekeep: list active permissions for org %s: %w", orgID, err)
		}
		snap.RolePermissions = keys
		snap.Permissions = keys
		snap.Normalize()
		return snap, nil
	}

	// Base set: union of the active permissions granted by the active
	// roles. Inactive permissions and rows from other organizations are
	// dropped here, so the base set never needs re-filtering.
	base := make(map[string]struct{})
	for _, r := range roles {
		perms, err := e.store.ListPermissionsByRole(ctx, r.ID)
		if err != nil {
			return nil, fmt.Errorf("gatekeep: list permissions for role %s: %w", r.Key, err)
		}
		for _, p := range perms {
			if !p.IsActive || p.OrgID != orgID {
				continue
			}
			base[p.Key] = struct{}{}
		}
	}
	for key := range base {
		snap.RolePermissions = append(snap.RolePermissions, key)
	}

	overrides, err := e.store.ListActiveOverrides(ctx, orgID, userID, now)
	if err != nil {
		return nil, fmt.Errorf("gatekeep: list overrides for user %s: %w", userID, err)
	}

	effective := make(map[string]struct{}, len(base))
	for key := range base {
		effective[key] = struct{}{}
	}
	granted := false
	for _, o := range overrides {
		if o.IsGranted {
			snap.GrantedOverrides = append(snap.GrantedOverrides, o.PermissionKey)
			effective[o.PermissionKey] = struct{}{}
			granted = true
		} else {
			snap.RevokedOverrides = append(snap.RevokedOverrides, o.PermissionKey)
			delete(effective, o.PermissionKey)
		}
	}

	// Granted overrides may reference keys that were deactivated in the
	// catalog after the override was written; restrict the effective set
	// to active keys. The base set is already active-only, so the extra
	// catalog read only happens when a granted override exists.
	if granted {
		keys, err := e.store.ListActivePermissionKeys(ctx, orgID)
		if err != nil {
			return nil, fmt.Errorf("gatekeep: list active permissions for org %s: %w", orgID, err)
		}
		active := make(map[string]struct{}, len(keys))
		for _, k := range keys {
			active[k] = struct{}{}
		}
		for key := range effective {
			if _, ok := active[key]; !ok {
				delete(effective, key)
			}
		}
	}

	for key := range effective {
		snap.Permissions = append(snap.Permissions, key)
	}
	snap.Normalize()
	return snap, nil
}

// Refresh recomputes a user's snapshot and replaces the cached entry.
func (e *Engine) Refresh(ctx context.Context, orgID, userID string) (*snapshot.Snapshot, error) {
	snap, err := e.Resolve(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		e.cache.Put(ctx, orgID, userID, snap)
	}
	e.plugins.EmitSnapshotRefreshed(ctx, snap)
	return snap, nil
}

// ──────────────────────────────────────────────────
// Invalidation
// ──────────────────────────────────────────────────

// Invalidate drops one user's cached snapshot. The next check recomputes.
func (e *Engine) Invalidate(ctx context.Context, orgID, userID string) {
	if e.cache != nil {
		e.cache.Invalidate(ctx, orgID, userID)
	}
}

// InvalidateOrg marks every snapshot in an organization stale. Recomputation
// happens lazily on each user's next check.
func (e *Engine) InvalidateOrg(ctx context.Context, orgID string) {
	if e.cache != nil {
		e.cache.InvalidateOrg(ctx, orgID)
	}
}

// InvalidateAll drops every cached snapshot.
func (e *Engine) InvalidateAll(ctx context.Context) {
	if e.cache != nil {
		e.cache.InvalidateAll(ctx)
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Close shuts the engine down: plugins get their shutdown hook, then the
// store is closed.
func (e *Engine) Close(ctx context.Context) error {
	e.plugins.EmitShutdown(ctx)
	return e.store.Close()
}
