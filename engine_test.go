package gatekeep_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/workshophq/gatekeep"
	"github.com/workshophq/gatekeep/admin"
	"github.com/workshophq/gatekeep/cache"
	"github.com/workshophq/gatekeep/id"
	"github.com/workshophq/gatekeep/override"
	"github.com/workshophq/gatekeep/role"
	"github.com/workshophq/gatekeep/snapshot"
	"github.com/workshophq/gatekeep/store"
	"github.com/workshophq/gatekeep/store/memory"
)

const (
	orgGarage  = "org_garage"
	orgBodyRep = "org_bodyshop"
)

// testClock is a settable time source for expiry tests.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	engine *gatekeep.Engine
	admin  *admin.Service
	store  *memory.Store
	clock  *testClock

	roles map[string]id.RoleID
	perms map[string]id.PermissionID
}

// newFixture builds an engine with a memory store, a memory cache, and a
// workshop-flavored catalog: technician, receptionist, and admin roles over
// work order, invoice, customer, and salary permissions.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	st := memory.New()
	clock := newTestClock()
	eng, err := gatekeep.NewEngine(
		gatekeep.WithStore(st),
		gatekeep.WithCache(cache.NewMemory()),
		gatekeep.WithClock(clock.Now),
	)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	f := &fixture{
		engine: eng,
		admin:  admin.NewService(eng),
		store:  st,
		clock:  clock,
		roles:  make(map[string]id.RoleID),
		perms:  make(map[string]id.PermissionID),
	}

	for _, key := range []string{
		"work_orders.view", "work_orders.edit",
		"invoices.view", "invoices.edit",
		"customers.view", "salaries.view",
	} {
		p, err := f.admin.CreatePermission(ctx, admin.CreatePermissionInput{OrgID: orgGarage, Key: key})
		if err != nil {
			t.Fatalf("CreatePermission(%s): %v", key, err)
		}
		f.perms[key] = p.ID
	}

	grants := map[string][]string{
		"technician":   {"work_orders.view", "work_orders.edit", "customers.view"},
		"receptionist": {"customers.view", "invoices.view"},
		"admin":        {},
	}
	for _, key := range []string{"technician", "receptionist", "admin"} {
		r, err := f.admin.CreateRole(ctx, admin.CreateRoleInput{OrgID: orgGarage, Key: key, Name: key})
		if err != nil {
			t.Fatalf("CreateRole(%s): %v", key, err)
		}
		f.roles[key] = r.ID
		for _, pk := range grants[key] {
			if err := f.admin.AttachPermission(ctx, r.ID, f.perms[pk]); err != nil {
				t.Fatalf("AttachPermission(%s, %s): %v", key, pk, err)
			}
		}
	}
	return f
}

func (f *fixture) assign(t *testing.T, userID, roleKey string) {
	t.Helper()
	if _, err := f.admin.AssignRole(context.Background(), orgGarage, userID, f.roles[roleKey], "user_manager"); err != nil {
		t.Fatalf("AssignRole(%s, %s): %v", userID, roleKey, err)
	}
}

func TestHasPermissionRoleGrant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.assign(t, "user_tech", "technician")

	if !f.engine.HasPermission(ctx, orgGarage, "user_tech", "work_orders.view") {
		t.Error("technician should view work orders")
	}
	if f.engine.HasPermission(ctx, orgGarage, "user_tech", "invoices.edit") {
		t.Error("technician should not edit invoices")
	}
}

func TestHasPermissionUnknownUser(t *testing.T) {
	f := newFixture(t)

	// No assignments and no overrides resolves to a valid empty set.
	if f.engine.HasPermission(context.Background(), orgGarage, "user_ghost", "work_orders.view") {
		t.Error("user with no roles should be denied")
	}
}

func TestRevokeOverrideDominatesRoleGrant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.assign(t, "user_tech", "technician")

	if _, err := f.admin.RevokePermission(ctx, orgGarage, "user_tech", "work_orders.view", nil, "user_manager"); err != nil {
		t.Fatalf("RevokePermission: %v", err)
	}

	res := f.engine.Check(ctx, &gatekeep.CheckRequest{
		OrgID: orgGarage, UserID: "user_tech", PermissionKey: "work_orders.view",
	})
	if res.Allowed {
		t.Error("revoke override must dominate the role grant")
	}
	if res.Decision != gatekeep.DecisionDenyRevoked {
		t.Errorf("decision = %s, want %s", res.Decision, gatekeep.DecisionDenyRevoked)
	}

	// Other role grants are untouched.
	if !f.engine.HasPermission(ctx, orgGarage, "user_tech", "work_orders.edit") {
		t.Error("unrelated grants should survive a revoke override")
	}
}

func TestGrantOverrideExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.assign(t, "user_tech", "technician")

	expires := f.clock.Now().Add(time.Hour)
	if _, err := f.admin.GrantPermission(ctx, orgGarage, "user_tech", "invoices.view", &expires, "user_manager"); err != nil {
		t.Fatalf("GrantPermission: %v", err)
	}

	if !f.engine.HasPermission(ctx, orgGarage, "user_tech", "invoices.view") {
		t.Fatal("granted override should allow before expiry")
	}

	f.clock.Advance(2 * time.Hour)
	f.engine.Invalidate(ctx, orgGarage, "user_tech")

	if f.engine.HasPermission(ctx, orgGarage, "user_tech", "invoices.view") {
		t.Error("expired grant must behave exactly as if absent")
	}
	// The role-derived set is unaffected by the expired override.
	if !f.engine.HasPermission(ctx, orgGarage, "user_tech", "work_orders.view") {
		t.Error("role grants should survive an override expiring")
	}
}

func TestExpiryBoundaryIsExclusive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	expires := f.clock.Now().Add(time.Hour)
	if _, err := f.admin.GrantPermission(ctx, orgGarage, "user_temp", "invoices.view", &expires, "user_manager"); err != nil {
		t.Fatalf("GrantPermission: %v", err)
	}

	// At exactly the expiry instant the override is no longer active.
	f.clock.Advance(time.Hour)
	if f.engine.HasPermission(ctx, orgGarage, "user_temp", "invoices.view") {
		t.Error("override expiring exactly now must be inert")
	}
}

func TestAdminBypass(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.assign(t, "user_boss", "admin")

	// Admin holds every active permission despite the admin role having an
	// empty grant set.
	res := f.engine.Check(ctx, &gatekeep.CheckRequest{
		OrgID: orgGarage, UserID: "user_boss", PermissionKey: "salaries.view",
	})
	if !res.Allowed {
		t.Fatal("admin should hold every active permission")
	}
	if res.Decision != gatekeep.DecisionAllowAdmin {
		t.Errorf("decision = %s, want %s", res.Decision, gatekeep.DecisionAllowAdmin)
	}
	if !f.engine.IsAdmin(ctx, orgGarage, "user_boss") {
		t.Error("IsAdmin should report true")
	}
}

func TestAdminBypassIgnoresRevokeOverride(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.assign(t, "user_boss", "admin")

	if _, err := f.admin.RevokePermission(ctx, orgGarage, "user_boss", "salaries.view", nil, "user_other"); err != nil {
		t.Fatalf("RevokePermission: %v", err)
	}
	if !f.engine.HasPermission(ctx, orgGarage, "user_boss", "salaries.view") {
		t.Error("revoke overrides are not consulted for admins")
	}
}

func TestAdminBypassExcludesInactivePermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.assign(t, "user_boss", "admin")

	if _, err := f.admin.SetPermissionActive(ctx, f.perms["salaries.view"], false); err != nil {
		t.Fatalf("SetPermissionActive: %v", err)
	}
	if f.engine.HasPermission(ctx, orgGarage, "user_boss", "salaries.view") {
		t.Error("admin bypass covers only the active catalog")
	}
}

func TestRoleDeactivationExcludesGrants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.assign(t, "user_front", "receptionist")

	if !f.engine.HasPermission(ctx, orgGarage, "user_front", "invoices.view") {
		t.Fatal("receptionist should view invoices")
	}

	if _, err := f.admin.SetRoleActive(ctx, f.roles["receptionist"], false); err != nil {
		t.Fatalf("SetRoleActive: %v", err)
	}
	if f.engine.HasPermission(ctx, orgGarage, "user_front", "invoices.view") {
		t.Error("deactivated role contributes nothing")
	}

	// Reactivation restores the grants without touching assignments.
	if _, err := f.admin.SetRoleActive(ctx, f.roles["receptionist"], true); err != nil {
		t.Fatalf("SetRoleActive: %v", err)
	}
	if !f.engine.HasPermission(ctx, orgGarage, "user_front", "invoices.view") {
		t.Error("reactivated role should contribute again")
	}
}

func TestAdminRoleDeactivationRemovesBypass(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.assign(t, "user_boss", "admin")

	if _, err := f.admin.SetRoleActive(ctx, f.roles["admin"], false); err != nil {
		t.Fatalf("SetRoleActive: %v", err)
	}
	if f.engine.IsAdmin(ctx, orgGarage, "user_boss") {
		t.Error("deactivated admin role grants no bypass")
	}
	if f.engine.HasPermission(ctx, orgGarage, "user_boss", "work_orders.view") {
		t.Error("former admin with no other roles holds nothing")
	}
}

func TestPermissionDeactivationFiltersGrantedOverride(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.admin.GrantPermission(ctx, orgGarage, "user_temp", "invoices.view", nil, "user_manager"); err != nil {
		t.Fatalf("GrantPermission: %v", err)
	}
	if !f.engine.HasPermission(ctx, orgGarage, "user_temp", "invoices.view") {
		t.Fatal("granted override should allow")
	}

	if _, err := f.admin.SetPermissionActive(ctx, f.perms["invoices.view"], false); err != nil {
		t.Fatalf("SetPermissionActive: %v", err)
	}
	if f.engine.HasPermission(ctx, orgGarage, "user_temp", "invoices.view") {
		t.Error("override on a deactivated permission must not grant")
	}
}

func TestOverrideReplacedByLatestWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.assign(t, "user_tech", "technician")

	if _, err := f.admin.RevokePermission(ctx, orgGarage, "user_tech", "work_orders.view", nil, "a"); err != nil {
		t.Fatalf("RevokePermission: %v", err)
	}
	if _, err := f.admin.GrantPermission(ctx, orgGarage, "user_tech", "work_orders.view", nil, "b"); err != nil {
		t.Fatalf("GrantPermission: %v", err)
	}

	// One override per (user, key): the grant replaced the revoke.
	if !f.engine.HasPermission(ctx, orgGarage, "user_tech", "work_orders.view") {
		t.Error("latest override write should win")
	}
}

func TestClearOverrideRestoresRoleOutcome(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.assign(t, "user_tech", "technician")

	if _, err := f.admin.RevokePermission(ctx, orgGarage, "user_tech", "work_orders.view", nil, "user_manager"); err != nil {
		t.Fatalf("RevokePermission: %v", err)
	}
	if err := f.admin.ClearOverride(ctx, orgGarage, "user_tech", "work_orders.view"); err != nil {
		t.Fatalf("ClearOverride: %v", err)
	}
	if !f.engine.HasPermission(ctx, orgGarage, "user_tech", "work_orders.view") {
		t.Error("clearing the override restores the role grant")
	}
}

func TestRevokeRoleVisibleImmediately(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.assign(t, "user_tech", "technician")

	// Warm the cache.
	if !f.engine.HasPermission(ctx, orgGarage, "user_tech", "work_orders.view") {
		t.Fatal("expected initial grant")
	}

	if err := f.admin.RevokeRole(ctx, orgGarage, "user_tech", f.roles["technician"]); err != nil {
		t.Fatalf("RevokeRole: %v", err)
	}
	if f.engine.HasPermission(ctx, orgGarage, "user_tech", "work_orders.view") {
		t.Error("revocation must be visible on the next check")
	}
}

func TestTenantIsolationWithCollidingKeys(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Second organization defines the same key and role names.
	p2, err := f.admin.CreatePermission(ctx, admin.CreatePermissionInput{OrgID: orgBodyRep, Key: "work_orders.view"})
	if err != nil {
		t.Fatalf("CreatePermission: %v", err)
	}
	r2, err := f.admin.CreateRole(ctx, admin.CreateRoleInput{OrgID: orgBodyRep, Key: "technician", Name: "technician"})
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if err := f.admin.AttachPermission(ctx, r2.ID, p2.ID); err != nil {
		t.Fatalf("AttachPermission: %v", err)
	}
	if _, err := f.admin.AssignRole(ctx, orgBodyRep, "user_shared", r2.ID, "user_manager"); err != nil {
		t.Fatalf("AssignRole: %v", err)
	}

	if !f.engine.HasPermission(ctx, orgBodyRep, "user_shared", "work_orders.view") {
		t.Error("grant in the second org should hold there")
	}
	// The same user ID holds nothing in the first org.
	if f.engine.HasPermission(ctx, orgGarage, "user_shared", "work_orders.view") {
		t.Error("grants must never leak across organizations")
	}
}

func TestDuplicateAssignmentRejected(t *testing.T) {
	f := newFixture(t)
	f.assign(t, "user_tech", "technician")

	_, err := f.admin.AssignRole(context.Background(), orgGarage, "user_tech", f.roles["technician"], "user_manager")
	if !errors.Is(err, gatekeep.ErrDuplicateAssignment) {
		t.Errorf("err = %v, want ErrDuplicateAssignment", err)
	}
}

func TestAssignInactiveRoleRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.admin.SetRoleActive(ctx, f.roles["technician"], false); err != nil {
		t.Fatalf("SetRoleActive: %v", err)
	}
	_, err := f.admin.AssignRole(ctx, orgGarage, "user_new", f.roles["technician"], "user_manager")
	if !errors.Is(err, gatekeep.ErrRoleInactive) {
		t.Errorf("err = %v, want ErrRoleInactive", err)
	}
}

func TestRefreshIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.assign(t, "user_tech", "technician")

	first, err := f.engine.Refresh(ctx, orgGarage, "user_tech")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	second, err := f.engine.Refresh(ctx, orgGarage, "user_tech")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if !first.Equal(second) {
		t.Error("refresh over unchanged data must yield an identical snapshot")
	}
}

func TestCheckServesDirectThenSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.assign(t, "user_tech", "technician")

	req := &gatekeep.CheckRequest{OrgID: orgGarage, UserID: "user_tech", PermissionKey: "work_orders.view"}

	first := f.engine.Check(ctx, req)
	if first.Source != gatekeep.SourceDirect {
		t.Errorf("first check source = %s, want %s", first.Source, gatekeep.SourceDirect)
	}
	second := f.engine.Check(ctx, req)
	if second.Source != gatekeep.SourceSnapshot {
		t.Errorf("second check source = %s, want %s", second.Source, gatekeep.SourceSnapshot)
	}
	if first.Allowed != second.Allowed {
		t.Error("snapshot and direct answers must agree")
	}
}

func TestSnapshotMaxAgeForcesRecompute(t *testing.T) {
	st := memory.New()
	clock := newTestClock()
	eng, err := gatekeep.NewEngine(
		gatekeep.WithStore(st),
		gatekeep.WithCache(cache.NewMemory()),
		gatekeep.WithClock(clock.Now),
		gatekeep.WithConfig(gatekeep.Config{SnapshotMaxAge: time.Minute}),
	)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	ctx := context.Background()

	req := &gatekeep.CheckRequest{OrgID: orgGarage, UserID: "user_x", PermissionKey: "work_orders.view"}
	eng.Check(ctx, req)

	res := eng.Check(ctx, req)
	if res.Source != gatekeep.SourceSnapshot {
		t.Fatalf("fresh snapshot should serve the check, got %s", res.Source)
	}

	clock.Advance(2 * time.Minute)
	res = eng.Check(ctx, req)
	if res.Source != gatekeep.SourceDirect {
		t.Errorf("stale snapshot must force a direct resolution, got %s", res.Source)
	}
}

func TestDefaultConfigBoundsSnapshotStaleness(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.assign(t, "user_tech", "technician")

	if !f.engine.HasPermission(ctx, orgGarage, "user_tech", "work_orders.view") {
		t.Fatal("technician should view work orders")
	}

	// Revoke directly in the store, bypassing the admin service, so no
	// invalidation reaches the cache. This is the shape of an invalidation
	// lost to a concurrent refresh.
	now := f.clock.Now()
	err := f.store.UpsertOverride(ctx, &override.Override{
		ID:            id.NewOverrideID(),
		OrgID:         orgGarage,
		UserID:        "user_tech",
		PermissionKey: "work_orders.view",
		IsGranted:     false,
		GrantedBy:     "user_manager",
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		t.Fatalf("UpsertOverride: %v", err)
	}

	if !f.engine.HasPermission(ctx, orgGarage, "user_tech", "work_orders.view") {
		t.Fatal("cached snapshot should still serve until it ages out")
	}

	// With the default config the stale window is bounded: once the
	// snapshot exceeds DefaultSnapshotMaxAge the next check resolves
	// directly and sees the revoke.
	f.clock.Advance(gatekeep.DefaultSnapshotMaxAge + time.Second)
	res := f.engine.Check(ctx, &gatekeep.CheckRequest{
		OrgID: orgGarage, UserID: "user_tech", PermissionKey: "work_orders.view",
	})
	if res.Source != gatekeep.SourceDirect {
		t.Errorf("aged snapshot must force a direct resolution, got %s", res.Source)
	}
	if res.Allowed {
		t.Error("revoke must be visible once the snapshot ages out")
	}
}

// failingStore breaks at the role listing step to exercise fail-closed
// behavior.
type failingStore struct {
	store.Store
}

func (f *failingStore) ListActiveRolesForUser(context.Context, string, string) ([]*role.Role, error) {
	return nil, errors.New("backend down")
}

func TestCheckFailsClosedOnStoreError(t *testing.T) {
	eng, err := gatekeep.NewEngine(gatekeep.WithStore(&failingStore{Store: memory.New()}))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	ctx := context.Background()

	res := eng.Check(ctx, &gatekeep.CheckRequest{OrgID: orgGarage, UserID: "user_x", PermissionKey: "work_orders.view"})
	if res.Allowed {
		t.Error("resolution failure must deny")
	}
	if res.Decision != gatekeep.DecisionDenyError {
		t.Errorf("decision = %s, want %s", res.Decision, gatekeep.DecisionDenyError)
	}
	if eng.HasPermission(ctx, orgGarage, "user_x", "work_orders.view") {
		t.Error("HasPermission must fail closed")
	}
	if eng.IsAdmin(ctx, orgGarage, "user_x") {
		t.Error("IsAdmin must fail closed")
	}
}

// brokenCache reports a miss on every read so checks degrade to direct
// resolution.
type brokenCache struct{}

func (brokenCache) Get(context.Context, string, string) (*snapshot.Snapshot, bool) { return nil, false }
func (brokenCache) Put(context.Context, string, string, *snapshot.Snapshot)       {}
func (brokenCache) Invalidate(context.Context, string, string)                    {}
func (brokenCache) InvalidateOrg(context.Context, string)                         {}
func (brokenCache) InvalidateAll(context.Context)                                 {}

func TestCacheFailureDegradesToDirect(t *testing.T) {
	st := memory.New()
	eng, err := gatekeep.NewEngine(
		gatekeep.WithStore(st),
		gatekeep.WithCache(brokenCache{}),
	)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	svc := admin.NewService(eng)
	ctx := context.Background()

	p, err := svc.CreatePermission(ctx, admin.CreatePermissionInput{OrgID: orgGarage, Key: "work_orders.view"})
	if err != nil {
		t.Fatalf("CreatePermission: %v", err)
	}
	r, err := svc.CreateRole(ctx, admin.CreateRoleInput{OrgID: orgGarage, Key: "technician", Name: "Technician"})
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if err := svc.AttachPermission(ctx, r.ID, p.ID); err != nil {
		t.Fatalf("AttachPermission: %v", err)
	}
	if _, err := svc.AssignRole(ctx, orgGarage, "user_tech", r.ID, "user_manager"); err != nil {
		t.Fatalf("AssignRole: %v", err)
	}

	res := eng.Check(ctx, &gatekeep.CheckRequest{OrgID: orgGarage, UserID: "user_tech", PermissionKey: "work_orders.view"})
	if !res.Allowed {
		t.Error("a failing cache degrades latency, never correctness")
	}
	if res.Source != gatekeep.SourceDirect {
		t.Errorf("source = %s, want %s", res.Source, gatekeep.SourceDirect)
	}
}

func TestNewEngineRequiresStore(t *testing.T) {
	if _, err := gatekeep.NewEngine(); err == nil {
		t.Fatal("NewEngine without a store must error")
	}
}

func TestCheckRecorderWritesAuditEntries(t *testing.T) {
	st := memory.New()
	eng, err := gatekeep.NewEngine(
		gatekeep.WithStore(st),
		gatekeep.WithPlugin(gatekeep.NewCheckRecorder(st, nil)),
	)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	ctx := context.Background()

	eng.Check(ctx, &gatekeep.CheckRequest{OrgID: orgGarage, UserID: "user_x", PermissionKey: "work_orders.view"})

	entries, err := st.ListCheckLogs(ctx, nil)
	if err != nil {
		t.Fatalf("ListCheckLogs: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d audit entries, want 1", len(entries))
	}
	e := entries[0]
	if e.Allowed || e.Decision != string(gatekeep.DecisionDenyNoPerm) {
		t.Errorf("entry = %+v, want deny_no_perm", e)
	}
	if e.OrgID != orgGarage || e.UserID != "user_x" || e.PermissionKey != "work_orders.view" {
		t.Errorf("entry identity fields wrong: %+v", e)
	}
}
