// Package storetest provides a conformance suite run against every store
// backend. A backend passes by exhibiting identical semantics to the
// others: sentinel errors, upsert behavior, tenant scoping, and active-set
// queries.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/workshophq/gatekeep/assignment"
	"github.com/workshophq/gatekeep/checklog"
	"github.com/workshophq/gatekeep/id"
	"github.com/workshophq/gatekeep/override"
	"github.com/workshophq/gatekeep/permission"
	"github.com/workshophq/gatekeep/role"
	"github.com/workshophq/gatekeep/store"
)

// Factory creates a fresh, migrated, empty store for one subtest.
type Factory func(t *testing.T) store.Store

// Run executes the conformance suite against the backend built by f.
func Run(t *testing.T, f Factory) {
	t.Run("Roles", func(t *testing.T) { testRoles(t, f(t)) })
	t.Run("Permissions", func(t *testing.T) { testPermissions(t, f(t)) })
	t.Run("Grants", func(t *testing.T) { testGrants(t, f(t)) })
	t.Run("Assignments", func(t *testing.T) { testAssignments(t, f(t)) })
	t.Run("Overrides", func(t *testing.T) { testOverrides(t, f(t)) })
	t.Run("CheckLogs", func(t *testing.T) { testCheckLogs(t, f(t)) })
	t.Run("ListUserIDs", func(t *testing.T) { testListUserIDs(t, f(t)) })
}

func now() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func makeRole(orgID, key string) *role.Role {
	return &role.Role{
		ID: id.NewRoleID(), OrgID: orgID, Key: key, Name: key,
		IsActive: true, CreatedAt: now(), UpdatedAt: now(),
	}
}

func makePermission(orgID, key string) *permission.Permission {
	return &permission.Permission{
		ID: id.NewPermissionID(), OrgID: orgID, Key: key,
		Resource: "work_orders", Action: "view",
		IsActive: true, CreatedAt: now(), UpdatedAt: now(),
	}
}

func makeAssignment(orgID, userID string, roleID id.RoleID) *assignment.Assignment {
	return &assignment.Assignment{
		ID: id.NewAssignmentID(), OrgID: orgID, RoleID: roleID,
		UserID: userID, CreatedAt: now(),
	}
}

func makeOverride(orgID, userID, key string, granted bool, expires *time.Time) *override.Override {
	return &override.Override{
		ID: id.NewOverrideID(), OrgID: orgID, UserID: userID,
		PermissionKey: key, IsGranted: granted, ExpiresAt: expires,
		CreatedAt: now(), UpdatedAt: now(),
	}
}

func testRoles(t *testing.T, s store.Store) {
	ctx := context.Background()

	r := makeRole("org_a", "technician")
	if err := s.CreateRole(ctx, r); err != nil {
		t.Fatalf("CreateRole: %v", err)
	}

	got, err := s.GetRole(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRole: %v", err)
	}
	if got.Key != "technician" || got.OrgID != "org_a" || !got.IsActive {
		t.Errorf("GetRole = %+v", got)
	}

	if _, err := s.GetRole(ctx, id.NewRoleID()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetRole(unknown) err = %v, want ErrNotFound", err)
	}

	byKey, err := s.GetRoleByKey(ctx, "org_a", "technician")
	if err != nil {
		t.Fatalf("GetRoleByKey: %v", err)
	}
	if byKey.ID.String() != r.ID.String() {
		t.Error("GetRoleByKey returned a different role")
	}
	if _, err := s.GetRoleByKey(ctx, "org_b", "technician"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("role key lookup must be tenant scoped, err = %v", err)
	}

	// Same key in a different org is fine; same key in the same org is a
	// duplicate.
	if err := s.CreateRole(ctx, makeRole("org_b", "technician")); err != nil {
		t.Fatalf("CreateRole(other org): %v", err)
	}
	if err := s.CreateRole(ctx, makeRole("org_a", "technician")); !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("duplicate role key err = %v, want ErrDuplicate", err)
	}

	r.IsActive = false
	r.Name = "Technician"
	if err := s.UpdateRole(ctx, r); err != nil {
		t.Fatalf("UpdateRole: %v", err)
	}
	got, _ = s.GetRole(ctx, r.ID)
	if got.IsActive || got.Name != "Technician" {
		t.Errorf("update not persisted: %+v", got)
	}

	active := true
	roles, err := s.ListRoles(ctx, &role.ListFilter{OrgID: "org_a", IsActive: &active})
	if err != nil {
		t.Fatalf("ListRoles: %v", err)
	}
	if len(roles) != 0 {
		t.Errorf("active filter returned %d roles, want 0", len(roles))
	}

	if err := s.DeleteRole(ctx, r.ID); err != nil {
		t.Fatalf("DeleteRole: %v", err)
	}
	if err := s.DeleteRole(ctx, r.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func testPermissions(t *testing.T, s store.Store) {
	ctx := context.Background()

	p1 := makePermission("org_a", "work_orders.view")
	p2 := makePermission("org_a", "work_orders.edit")
	p2.Action = "edit"
	for _, p := range []*permission.Permission{p1, p2} {
		if err := s.CreatePermission(ctx, p); err != nil {
			t.Fatalf("CreatePermission: %v", err)
		}
	}
	if err := s.CreatePermission(ctx, makePermission("org_a", "work_orders.view")); !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("duplicate permission key err = %v, want ErrDuplicate", err)
	}

	p2.IsActive = false
	p2.UpdatedAt = now().Add(time.Minute)
	if err := s.UpdatePermission(ctx, p2); err != nil {
		t.Fatalf("UpdatePermission: %v", err)
	}

	keys, err := s.ListActivePermissionKeys(ctx, "org_a")
	if err != nil {
		t.Fatalf("ListActivePermissionKeys: %v", err)
	}
	if len(keys) != 1 || keys[0] != "work_orders.view" {
		t.Errorf("active keys = %v, want [work_orders.view]", keys)
	}

	if keys, _ := s.ListActivePermissionKeys(ctx, "org_b"); len(keys) != 0 {
		t.Errorf("active keys leaked across orgs: %v", keys)
	}

	if _, err := s.GetPermissionByKey(ctx, "org_a", "invoices.view"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetPermissionByKey(unknown) err = %v, want ErrNotFound", err)
	}
}

func testGrants(t *testing.T, s store.Store) {
	ctx := context.Background()

	r := makeRole("org_a", "technician")
	p1 := makePermission("org_a", "work_orders.view")
	p2 := makePermission("org_a", "work_orders.edit")
	if err := s.CreateRole(ctx, r); err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	for _, p := range []*permission.Permission{p1, p2} {
		if err := s.CreatePermission(ctx, p); err != nil {
			t.Fatalf("CreatePermission: %v", err)
		}
	}

	if err := s.AttachPermission(ctx, r.ID, p1.ID); err != nil {
		t.Fatalf("AttachPermission: %v", err)
	}
	// Re-attaching is a no-op, not an error.
	if err := s.AttachPermission(ctx, r.ID, p1.ID); err != nil {
		t.Fatalf("re-AttachPermission: %v", err)
	}

	perms, err := s.ListPermissionsByRole(ctx, r.ID)
	if err != nil {
		t.Fatalf("ListPermissionsByRole: %v", err)
	}
	if len(perms) != 1 || perms[0].Key != "work_orders.view" {
		t.Errorf("role permissions = %v", perms)
	}

	if err := s.SetRolePermissions(ctx, r.ID, []id.PermissionID{p1.ID, p2.ID}); err != nil {
		t.Fatalf("SetRolePermissions: %v", err)
	}
	ids, err := s.ListRolePermissions(ctx, r.ID)
	if err != nil {
		t.Fatalf("ListRolePermissions: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("grant set size = %d, want 2", len(ids))
	}

	if err := s.DetachPermission(ctx, r.ID, p1.ID); err != nil {
		t.Fatalf("DetachPermission: %v", err)
	}
	ids, _ = s.ListRolePermissions(ctx, r.ID)
	if len(ids) != 1 {
		t.Errorf("grant set size after detach = %d, want 1", len(ids))
	}
}

func testAssignments(t *testing.T, s store.Store) {
	ctx := context.Background()

	active := makeRole("org_a", "technician")
	inactive := makeRole("org_a", "receptionist")
	inactive.IsActive = false
	for _, r := range []*role.Role{active, inactive} {
		if err := s.CreateRole(ctx, r); err != nil {
			t.Fatalf("CreateRole: %v", err)
		}
	}

	if err := s.CreateAssignment(ctx, makeAssignment("org_a", "user_1", active.ID)); err != nil {
		t.Fatalf("CreateAssignment: %v", err)
	}
	if err := s.CreateAssignment(ctx, makeAssignment("org_a", "user_1", inactive.ID)); err != nil {
		t.Fatalf("CreateAssignment: %v", err)
	}
	if err := s.CreateAssignment(ctx, makeAssignment("org_a", "user_1", active.ID)); !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("duplicate assignment err = %v, want ErrDuplicate", err)
	}

	all, err := s.ListRolesForUser(ctx, "org_a", "user_1")
	if err != nil {
		t.Fatalf("ListRolesForUser: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("ListRolesForUser = %d roles, want 2", len(all))
	}

	activeRoles, err := s.ListActiveRolesForUser(ctx, "org_a", "user_1")
	if err != nil {
		t.Fatalf("ListActiveRolesForUser: %v", err)
	}
	if len(activeRoles) != 1 || activeRoles[0].Key != "technician" {
		t.Errorf("active roles = %v", activeRoles)
	}

	// An assignment row referencing a role owned by another organization
	// must not surface that role.
	foreign := makeRole("org_b", "admin")
	if err := s.CreateRole(ctx, foreign); err != nil {
		t.Fatalf("CreateRole(foreign): %v", err)
	}
	if err := s.CreateAssignment(ctx, makeAssignment("org_a", "user_1", foreign.ID)); err != nil {
		t.Fatalf("CreateAssignment(foreign role): %v", err)
	}
	activeRoles, err = s.ListActiveRolesForUser(ctx, "org_a", "user_1")
	if err != nil {
		t.Fatalf("ListActiveRolesForUser: %v", err)
	}
	if len(activeRoles) != 1 || activeRoles[0].Key != "technician" {
		t.Errorf("cross-org role surfaced as active: %v", activeRoles)
	}

	// No assignments yields empty, not an error.
	none, err := s.ListActiveRolesForUser(ctx, "org_a", "user_none")
	if err != nil {
		t.Fatalf("ListActiveRolesForUser(none): %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no roles, got %v", none)
	}

	users, err := s.ListUsersForRole(ctx, active.ID)
	if err != nil {
		t.Fatalf("ListUsersForRole: %v", err)
	}
	if len(users) != 1 || users[0] != "user_1" {
		t.Errorf("ListUsersForRole = %v", users)
	}

	if err := s.DeleteAssignmentByUserRole(ctx, "org_a", "user_1", active.ID); err != nil {
		t.Fatalf("DeleteAssignmentByUserRole: %v", err)
	}
	if err := s.DeleteAssignmentByUserRole(ctx, "org_a", "user_1", active.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func testOverrides(t *testing.T, s store.Store) {
	ctx := context.Background()
	ts := now()

	revoke := makeOverride("org_a", "user_1", "work_orders.view", false, nil)
	if err := s.UpsertOverride(ctx, revoke); err != nil {
		t.Fatalf("UpsertOverride: %v", err)
	}

	// The second write for the same (user, key) replaces the first.
	grant := makeOverride("org_a", "user_1", "work_orders.view", true, nil)
	if err := s.UpsertOverride(ctx, grant); err != nil {
		t.Fatalf("UpsertOverride(replace): %v", err)
	}
	got, err := s.GetOverride(ctx, "org_a", "user_1", "work_orders.view")
	if err != nil {
		t.Fatalf("GetOverride: %v", err)
	}
	if !got.IsGranted || got.ID.String() != grant.ID.String() {
		t.Errorf("latest write should win: %+v", got)
	}
	overrides, err := s.ListOverrides(ctx, &override.ListFilter{OrgID: "org_a", UserID: "user_1"})
	if err != nil {
		t.Fatalf("ListOverrides: %v", err)
	}
	if len(overrides) != 1 {
		t.Errorf("override count = %d, want 1 per (user, key)", len(overrides))
	}

	expired := ts.Add(-time.Hour)
	future := ts.Add(time.Hour)
	if err := s.UpsertOverride(ctx, makeOverride("org_a", "user_1", "invoices.view", true, &expired)); err != nil {
		t.Fatalf("UpsertOverride(expired): %v", err)
	}
	if err := s.UpsertOverride(ctx, makeOverride("org_a", "user_1", "customers.view", true, &future)); err != nil {
		t.Fatalf("UpsertOverride(future): %v", err)
	}

	activeNow, err := s.ListActiveOverrides(ctx, "org_a", "user_1", ts)
	if err != nil {
		t.Fatalf("ListActiveOverrides: %v", err)
	}
	keys := make(map[string]bool)
	for _, o := range activeNow {
		keys[o.PermissionKey] = true
	}
	if !keys["work_orders.view"] || !keys["customers.view"] || keys["invoices.view"] {
		t.Errorf("active overrides = %v", keys)
	}

	purged, err := s.PurgeExpiredOverrides(ctx, ts)
	if err != nil {
		t.Fatalf("PurgeExpiredOverrides: %v", err)
	}
	if purged != 1 {
		t.Errorf("purged = %d, want 1", purged)
	}

	if err := s.DeleteOverrideByKey(ctx, "org_a", "user_1", "work_orders.view"); err != nil {
		t.Fatalf("DeleteOverrideByKey: %v", err)
	}
	if _, err := s.GetOverride(ctx, "org_a", "user_1", "work_orders.view"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("deleted override err = %v, want ErrNotFound", err)
	}
}

func testCheckLogs(t *testing.T, s store.Store) {
	ctx := context.Background()
	ts := now()

	for i, allowed := range []bool{true, false, true} {
		entry := &checklog.Entry{
			ID: id.NewCheckLogID(), OrgID: "org_a", UserID: "user_1",
			PermissionKey: "work_orders.view", Allowed: allowed,
			Decision: "allow", Source: "snapshot",
			CreatedAt: ts.Add(time.Duration(i) * time.Minute),
		}
		if !allowed {
			entry.Decision = "deny_no_perm"
		}
		if err := s.CreateCheckLog(ctx, entry); err != nil {
			t.Fatalf("CreateCheckLog: %v", err)
		}
	}

	denied := false
	count, err := s.CountCheckLogs(ctx, &checklog.QueryFilter{OrgID: "org_a", Allowed: &denied})
	if err != nil {
		t.Fatalf("CountCheckLogs: %v", err)
	}
	if count != 1 {
		t.Errorf("denied count = %d, want 1", count)
	}

	entries, err := s.ListCheckLogs(ctx, &checklog.QueryFilter{OrgID: "org_a", Limit: 2})
	if err != nil {
		t.Fatalf("ListCheckLogs: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("limited list = %d entries, want 2", len(entries))
	}

	purged, err := s.PurgeCheckLogs(ctx, ts.Add(90*time.Second))
	if err != nil {
		t.Fatalf("PurgeCheckLogs: %v", err)
	}
	if purged != 2 {
		t.Errorf("purged = %d, want 2", purged)
	}
}

func testListUserIDs(t *testing.T, s store.Store) {
	ctx := context.Background()

	r := makeRole("org_a", "technician")
	if err := s.CreateRole(ctx, r); err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if err := s.CreateAssignment(ctx, makeAssignment("org_a", "user_assigned", r.ID)); err != nil {
		t.Fatalf("CreateAssignment: %v", err)
	}
	if err := s.UpsertOverride(ctx, makeOverride("org_a", "user_override", "work_orders.view", true, nil)); err != nil {
		t.Fatalf("UpsertOverride: %v", err)
	}
	if err := s.UpsertOverride(ctx, makeOverride("org_b", "user_other_org", "work_orders.view", true, nil)); err != nil {
		t.Fatalf("UpsertOverride: %v", err)
	}

	users, err := s.ListUserIDs(ctx, "org_a")
	if err != nil {
		t.Fatalf("ListUserIDs: %v", err)
	}
	seen := make(map[string]bool)
	for _, u := range users {
		seen[u] = true
	}
	if len(users) != 2 || !seen["user_assigned"] || !seen["user_override"] {
		t.Errorf("ListUserIDs = %v", users)
	}
}
