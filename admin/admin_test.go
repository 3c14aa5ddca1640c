package admin_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/workshophq/gatekeep"
	"github.com/workshophq/gatekeep/admin"
	"github.com/workshophq/gatekeep/cache"
	"github.com/workshophq/gatekeep/id"
	"github.com/workshophq/gatekeep/store"
	"github.com/workshophq/gatekeep/store/memory"
)

const org = "org_garage"

func newService(t *testing.T) (*gatekeep.Engine, *admin.Service) {
	t.Helper()
	engine, err := gatekeep.NewEngine(
		gatekeep.WithStore(memory.New()),
		gatekeep.WithCache(cache.NewMemory()),
	)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return engine, admin.NewService(engine)
}

func TestCreatePermissionValidatesKey(t *testing.T) {
	ctx := context.Background()
	_, a := newService(t)

	for _, key := range []string{"", "view", "work.orders.view", "Work_Orders.view"} {
		_, err := a.CreatePermission(ctx, admin.CreatePermissionInput{OrgID: org, Key: key})
		if !errors.Is(err, gatekeep.ErrInvalidPermissionKey) {
			t.Errorf("CreatePermission(%q) err = %v, want ErrInvalidPermissionKey", key, err)
		}
	}

	p, err := a.CreatePermission(ctx, admin.CreatePermissionInput{OrgID: org, Key: "work_orders.view"})
	if err != nil {
		t.Fatalf("CreatePermission: %v", err)
	}
	if p.Resource != "work_orders" || p.Action != "view" || !p.IsActive {
		t.Errorf("permission = %+v", p)
	}
}

func TestCreatePermissionRejectsExistingKey(t *testing.T) {
	ctx := context.Background()
	_, a := newService(t)

	if _, err := a.CreatePermission(ctx, admin.CreatePermissionInput{OrgID: org, Key: "invoices.view"}); err != nil {
		t.Fatalf("CreatePermission: %v", err)
	}
	_, err := a.CreatePermission(ctx, admin.CreatePermissionInput{OrgID: org, Key: "invoices.view"})
	if !errors.Is(err, gatekeep.ErrPermissionKeyConflict) {
		t.Errorf("err = %v, want ErrPermissionKeyConflict", err)
	}

	// The same key is free in another organization.
	if _, err := a.CreatePermission(ctx, admin.CreatePermissionInput{OrgID: "org_bodyshop", Key: "invoices.view"}); err != nil {
		t.Errorf("CreatePermission(other org): %v", err)
	}
}

func TestDeleteRoleRejectsSystemRoles(t *testing.T) {
	ctx := context.Background()
	_, a := newService(t)

	sys, err := a.CreateRole(ctx, admin.CreateRoleInput{
		OrgID: org, Key: "owner", Name: "Owner", IsSystem: true,
	})
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if err := a.DeleteRole(ctx, sys.ID); !errors.Is(err, gatekeep.ErrSystemRoleImmutable) {
		t.Errorf("DeleteRole(system) err = %v, want ErrSystemRoleImmutable", err)
	}

	normal, err := a.CreateRole(ctx, admin.CreateRoleInput{OrgID: org, Key: "helper", Name: "Helper"})
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if err := a.DeleteRole(ctx, normal.ID); err != nil {
		t.Fatalf("DeleteRole: %v", err)
	}
	if _, err := a.SetRoleActive(ctx, normal.ID, false); !errors.Is(err, gatekeep.ErrRoleNotFound) {
		t.Errorf("deleted role err = %v, want ErrRoleNotFound", err)
	}
}

func TestDeleteRoleRemovesAssignments(t *testing.T) {
	ctx := context.Background()
	engine, a := newService(t)

	r, err := a.CreateRole(ctx, admin.CreateRoleInput{OrgID: org, Key: "helper", Name: "Helper"})
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if _, err := a.AssignRole(ctx, org, "user_1", r.ID, "user_boss"); err != nil {
		t.Fatalf("AssignRole: %v", err)
	}
	if err := a.DeleteRole(ctx, r.ID); err != nil {
		t.Fatalf("DeleteRole: %v", err)
	}

	ids, err := engine.Store().ListRolesForUser(ctx, org, "user_1")
	if err != nil {
		t.Fatalf("ListRolesForUser: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("assignments left after role deletion: %d", len(ids))
	}
}

func TestAssignRoleRejectsForeignOrgRole(t *testing.T) {
	ctx := context.Background()
	engine, a := newService(t)

	// A role keyed "admin" in another tenant must not be assignable here,
	// or its holder would gain the admin bypass over this tenant's catalog.
	foreign, err := a.CreateRole(ctx, admin.CreateRoleInput{
		OrgID: "org_bodyshop", Key: gatekeep.AdminRoleKey, Name: "Admin",
	})
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}

	_, err = a.AssignRole(ctx, org, "user_1", foreign.ID, "user_boss")
	if !errors.Is(err, gatekeep.ErrRoleNotFound) {
		t.Fatalf("AssignRole(foreign role) err = %v, want ErrRoleNotFound", err)
	}
	if engine.IsAdmin(ctx, org, "user_1") {
		t.Error("user gained admin in an organization the role does not belong to")
	}
	ids, err := engine.Store().ListRolesForUser(ctx, org, "user_1")
	if err != nil {
		t.Fatalf("ListRolesForUser: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("assignment persisted despite rejection: %v", ids)
	}
}

func TestGrantSetRejectsForeignOrgPermission(t *testing.T) {
	ctx := context.Background()
	engine, a := newService(t)

	r, err := a.CreateRole(ctx, admin.CreateRoleInput{OrgID: org, Key: "technician", Name: "Technician"})
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	own, err := a.CreatePermission(ctx, admin.CreatePermissionInput{OrgID: org, Key: "work_orders.view"})
	if err != nil {
		t.Fatalf("CreatePermission: %v", err)
	}
	foreign, err := a.CreatePermission(ctx, admin.CreatePermissionInput{OrgID: "org_bodyshop", Key: "invoices.view"})
	if err != nil {
		t.Fatalf("CreatePermission(other org): %v", err)
	}

	if err := a.AttachPermission(ctx, r.ID, foreign.ID); !errors.Is(err, gatekeep.ErrPermissionNotFound) {
		t.Errorf("AttachPermission(foreign) err = %v, want ErrPermissionNotFound", err)
	}
	err = a.SetRolePermissions(ctx, r.ID, []id.PermissionID{own.ID, foreign.ID})
	if !errors.Is(err, gatekeep.ErrPermissionNotFound) {
		t.Errorf("SetRolePermissions(foreign) err = %v, want ErrPermissionNotFound", err)
	}

	perms, err := engine.Store().ListPermissionsByRole(ctx, r.ID)
	if err != nil {
		t.Fatalf("ListPermissionsByRole: %v", err)
	}
	if len(perms) != 0 {
		t.Errorf("grant set changed despite rejection: %v", perms)
	}
}

type opRecorder struct {
	ops []string
}

type recordingStore struct {
	store.Store
	rec *opRecorder
}

func (s *recordingStore) DeleteAssignmentsByRole(ctx context.Context, roleID id.RoleID) error {
	s.rec.ops = append(s.rec.ops, "delete_assignments")
	return s.Store.DeleteAssignmentsByRole(ctx, roleID)
}

func (s *recordingStore) DeleteRole(ctx context.Context, roleID id.RoleID) error {
	s.rec.ops = append(s.rec.ops, "delete_role")
	return s.Store.DeleteRole(ctx, roleID)
}

type recordingCache struct {
	gatekeep.Cache
	rec *opRecorder
}

func (c *recordingCache) Invalidate(ctx context.Context, orgID, userID string) {
	c.rec.ops = append(c.rec.ops, "invalidate")
	c.Cache.Invalidate(ctx, orgID, userID)
}

func TestDeleteRoleInvalidatesAfterDeletes(t *testing.T) {
	ctx := context.Background()
	rec := &opRecorder{}
	engine, err := gatekeep.NewEngine(
		gatekeep.WithStore(&recordingStore{Store: memory.New(), rec: rec}),
		gatekeep.WithCache(&recordingCache{Cache: cache.NewMemory(), rec: rec}),
	)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	a := admin.NewService(engine)

	r, err := a.CreateRole(ctx, admin.CreateRoleInput{OrgID: org, Key: "helper", Name: "Helper"})
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if _, err := a.AssignRole(ctx, org, "user_1", r.ID, "user_boss"); err != nil {
		t.Fatalf("AssignRole: %v", err)
	}

	rec.ops = nil
	if err := a.DeleteRole(ctx, r.ID); err != nil {
		t.Fatalf("DeleteRole: %v", err)
	}

	// Holder invalidation must happen after both deletes; a check served in
	// between would otherwise re-cache the grants from the surviving rows.
	inv := slices.Index(rec.ops, "invalidate")
	if inv < 0 {
		t.Fatalf("no invalidation recorded, ops = %v", rec.ops)
	}
	if inv < slices.Index(rec.ops, "delete_assignments") || inv < slices.Index(rec.ops, "delete_role") {
		t.Errorf("invalidation ran before the deletes: %v", rec.ops)
	}
}

func TestOverrideRequiresKnownPermissionKey(t *testing.T) {
	ctx := context.Background()
	_, a := newService(t)

	_, err := a.GrantPermission(ctx, org, "user_1", "no_such.key", nil, "user_boss")
	if !errors.Is(err, gatekeep.ErrPermissionNotFound) {
		t.Errorf("GrantPermission err = %v, want ErrPermissionNotFound", err)
	}
	_, err = a.RevokePermission(ctx, org, "user_1", "no_such.key", nil, "user_boss")
	if !errors.Is(err, gatekeep.ErrPermissionNotFound) {
		t.Errorf("RevokePermission err = %v, want ErrPermissionNotFound", err)
	}
}

func TestClearOverrideMissing(t *testing.T) {
	ctx := context.Background()
	_, a := newService(t)

	err := a.ClearOverride(ctx, org, "user_1", "work_orders.view")
	if !errors.Is(err, gatekeep.ErrOverrideNotFound) {
		t.Errorf("ClearOverride err = %v, want ErrOverrideNotFound", err)
	}
}

func TestRevokeRoleMissing(t *testing.T) {
	ctx := context.Background()
	_, a := newService(t)

	r, err := a.CreateRole(ctx, admin.CreateRoleInput{OrgID: org, Key: "helper", Name: "Helper"})
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if err := a.RevokeRole(ctx, org, "user_1", r.ID); !errors.Is(err, gatekeep.ErrAssignmentNotFound) {
		t.Errorf("RevokeRole err = %v, want ErrAssignmentNotFound", err)
	}
}

func TestUpdateRoleDisplayFields(t *testing.T) {
	ctx := context.Background()
	_, a := newService(t)

	r, err := a.CreateRole(ctx, admin.CreateRoleInput{OrgID: org, Key: "helper", Name: "Helper"})
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}

	name := "Workshop Helper"
	updated, err := a.UpdateRole(ctx, r.ID, admin.UpdateRoleInput{Name: &name})
	if err != nil {
		t.Fatalf("UpdateRole: %v", err)
	}
	if updated.Name != name || updated.Key != "helper" {
		t.Errorf("updated = %+v", updated)
	}
	if updated.Description != "" {
		t.Errorf("nil input field must leave description unchanged, got %q", updated.Description)
	}
}

func TestDeleteOrganizationRemovesEverything(t *testing.T) {
	ctx := context.Background()
	engine, a := newService(t)

	p, err := a.CreatePermission(ctx, admin.CreatePermissionInput{OrgID: org, Key: "work_orders.view"})
	if err != nil {
		t.Fatalf("CreatePermission: %v", err)
	}
	r, err := a.CreateRole(ctx, admin.CreateRoleInput{OrgID: org, Key: "technician", Name: "Technician"})
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if err := a.AttachPermission(ctx, r.ID, p.ID); err != nil {
		t.Fatalf("AttachPermission: %v", err)
	}
	if _, err := a.AssignRole(ctx, org, "user_1", r.ID, "user_boss"); err != nil {
		t.Fatalf("AssignRole: %v", err)
	}
	expiry := time.Now().Add(time.Hour)
	if _, err := a.GrantPermission(ctx, org, "user_2", "work_orders.view", &expiry, "user_boss"); err != nil {
		t.Fatalf("GrantPermission: %v", err)
	}

	// Another tenant that must survive the teardown.
	if _, err := a.CreatePermission(ctx, admin.CreatePermissionInput{OrgID: "org_bodyshop", Key: "invoices.view"}); err != nil {
		t.Fatalf("CreatePermission(other org): %v", err)
	}

	if err := a.DeleteOrganization(ctx, org); err != nil {
		t.Fatalf("DeleteOrganization: %v", err)
	}

	users, err := engine.Store().ListUserIDs(ctx, org)
	if err != nil {
		t.Fatalf("ListUserIDs: %v", err)
	}
	if len(users) != 0 {
		t.Errorf("users left after teardown: %v", users)
	}
	keys, err := engine.Store().ListActivePermissionKeys(ctx, org)
	if err != nil {
		t.Fatalf("ListActivePermissionKeys: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("permissions left after teardown: %v", keys)
	}
	if engine.HasPermission(ctx, org, "user_1", "work_orders.view") {
		t.Error("check must deny after organization teardown")
	}

	otherKeys, err := engine.Store().ListActivePermissionKeys(ctx, "org_bodyshop")
	if err != nil {
		t.Fatalf("ListActivePermissionKeys(other org): %v", err)
	}
	if len(otherKeys) != 1 {
		t.Errorf("other organization affected by teardown: %v", otherKeys)
	}
}
