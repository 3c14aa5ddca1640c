package refresh_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/workshophq/gatekeep"
	"github.com/workshophq/gatekeep/admin"
	"github.com/workshophq/gatekeep/cache"
	"github.com/workshophq/gatekeep/id"
	"github.com/workshophq/gatekeep/override"
	"github.com/workshophq/gatekeep/refresh"
	"github.com/workshophq/gatekeep/snapshot"
	"github.com/workshophq/gatekeep/store/memory"
)

// refreshCounter counts snapshot refresh events across sweep workers.
type refreshCounter struct {
	count atomic.Int64
}

func (c *refreshCounter) Name() string { return "refresh-counter" }

func (c *refreshCounter) OnSnapshotRefreshed(ctx context.Context, snap *snapshot.Snapshot) error {
	c.count.Add(1)
	return nil
}

func setup(t *testing.T) (*gatekeep.Engine, *admin.Service, *cache.Memory, *refreshCounter) {
	t.Helper()
	c := cache.NewMemory()
	counter := &refreshCounter{}
	engine, err := gatekeep.NewEngine(
		gatekeep.WithStore(memory.New()),
		gatekeep.WithCache(c),
		gatekeep.WithPlugin(counter),
	)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return engine, admin.NewService(engine), c, counter
}

func seedOrg(t *testing.T, a *admin.Service, orgID string, users ...string) {
	t.Helper()
	ctx := context.Background()

	perm, err := a.CreatePermission(ctx, admin.CreatePermissionInput{
		OrgID: orgID, Key: "work_orders.view",
	})
	if err != nil {
		t.Fatalf("CreatePermission: %v", err)
	}
	r, err := a.CreateRole(ctx, admin.CreateRoleInput{
		OrgID: orgID, Key: "technician", Name: "Technician",
	})
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	if err := a.AttachPermission(ctx, r.ID, perm.ID); err != nil {
		t.Fatalf("AttachPermission: %v", err)
	}
	for _, u := range users {
		if _, err := a.AssignRole(ctx, orgID, u, r.ID, "user_boss"); err != nil {
			t.Fatalf("AssignRole(%s): %v", u, err)
		}
	}
}

func TestSweepRefreshesEveryKnownUser(t *testing.T) {
	ctx := context.Background()
	engine, a, c, counter := setup(t)
	seedOrg(t, a, "org_garage", "user_1", "user_2", "user_3")

	s := refresh.NewSweeper(engine, []string{"org_garage"}, refresh.WithConcurrency(2))
	if err := s.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	for _, u := range []string{"user_1", "user_2", "user_3"} {
		snap, ok := c.Get(ctx, "org_garage", u)
		if !ok {
			t.Fatalf("no cached snapshot for %s after sweep", u)
		}
		if !snap.Has("work_orders.view") {
			t.Errorf("snapshot for %s lacks the role grant", u)
		}
	}
	if got := counter.count.Load(); got != 3 {
		t.Errorf("refresh events = %d, want 3", got)
	}
}

func TestSweepPurgesExpiredOverrides(t *testing.T) {
	ctx := context.Background()
	engine, a, _, _ := setup(t)
	seedOrg(t, a, "org_garage", "user_1")

	expired := time.Now().Add(-time.Hour)
	st := engine.Store()
	err := st.UpsertOverride(ctx, &override.Override{
		ID: id.NewOverrideID(), OrgID: "org_garage", UserID: "user_1",
		PermissionKey: "work_orders.view", IsGranted: true, ExpiresAt: &expired,
		CreatedAt: expired, UpdatedAt: expired,
	})
	if err != nil {
		t.Fatalf("UpsertOverride: %v", err)
	}

	s := refresh.NewSweeper(engine, []string{"org_garage"})
	if err := s.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	left, err := st.ListOverrides(ctx, &override.ListFilter{OrgID: "org_garage"})
	if err != nil {
		t.Fatalf("ListOverrides: %v", err)
	}
	if len(left) != 0 {
		t.Errorf("expired overrides left after sweep: %d", len(left))
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	ctx := context.Background()
	engine, a, c, _ := setup(t)
	seedOrg(t, a, "org_garage", "user_1")

	s := refresh.NewSweeper(engine, []string{"org_garage"})
	if err := s.Sweep(ctx); err != nil {
		t.Fatalf("first Sweep: %v", err)
	}
	first, _ := c.Get(ctx, "org_garage", "user_1")
	if err := s.Sweep(ctx); err != nil {
		t.Fatalf("second Sweep: %v", err)
	}
	second, _ := c.Get(ctx, "org_garage", "user_1")

	if !first.Equal(second) {
		t.Error("sweeping unchanged data must produce an identical snapshot")
	}
}

func TestStartRejectsBadScheduleAndDoubleStart(t *testing.T) {
	ctx := context.Background()
	engine, _, _, _ := setup(t)

	bad := refresh.NewSweeper(engine, nil, refresh.WithSchedule("not a cron expr"))
	if err := bad.Start(ctx); err == nil {
		t.Error("expected an error for an invalid schedule")
		bad.Stop()
	}

	s := refresh.NewSweeper(engine, nil, refresh.WithSchedule("@hourly"))
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()
	if err := s.Start(ctx); err == nil {
		t.Error("expected an error on double start")
	}
}
