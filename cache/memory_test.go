package cache

import (
	"context"
	"testing"
	"time"

	"github.com/workshophq/gatekeep/snapshot"
)

func testSnapshot(orgID, userID string, perms ...string) *snapshot.Snapshot {
	s := &snapshot.Snapshot{
		OrgID:       orgID,
		UserID:      userID,
		Permissions: perms,
		ComputedAt:  time.Now(),
	}
	s.Normalize()
	return s
}

func TestMemoryPutGet(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	c.Put(ctx, "org_a", "user_1", testSnapshot("org_a", "user_1", "work_orders.view"))

	got, ok := c.Get(ctx, "org_a", "user_1")
	if !ok {
		t.Fatal("expected a hit")
	}
	if !got.Has("work_orders.view") {
		t.Error("snapshot content lost")
	}
	if _, ok := c.Get(ctx, "org_a", "user_2"); ok {
		t.Error("unexpected hit for unknown user")
	}
}

func TestMemoryGetReturnsClone(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()
	c.Put(ctx, "org_a", "user_1", testSnapshot("org_a", "user_1", "work_orders.view"))

	first, _ := c.Get(ctx, "org_a", "user_1")
	first.Permissions[0] = "mutated"

	second, _ := c.Get(ctx, "org_a", "user_1")
	if !second.Has("work_orders.view") {
		t.Error("a reader mutated the cached snapshot")
	}
}

func TestMemoryInvalidate(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()
	c.Put(ctx, "org_a", "user_1", testSnapshot("org_a", "user_1"))
	c.Put(ctx, "org_a", "user_2", testSnapshot("org_a", "user_2"))

	c.Invalidate(ctx, "org_a", "user_1")

	if _, ok := c.Get(ctx, "org_a", "user_1"); ok {
		t.Error("invalidated entry should miss")
	}
	if _, ok := c.Get(ctx, "org_a", "user_2"); !ok {
		t.Error("other users must be untouched")
	}
}

func TestMemoryInvalidateOrg(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()
	c.Put(ctx, "org_a", "user_1", testSnapshot("org_a", "user_1"))
	c.Put(ctx, "org_b", "user_1", testSnapshot("org_b", "user_1"))

	c.InvalidateOrg(ctx, "org_a")

	if _, ok := c.Get(ctx, "org_a", "user_1"); ok {
		t.Error("org-wide invalidation should mark every entry stale")
	}
	if _, ok := c.Get(ctx, "org_b", "user_1"); !ok {
		t.Error("other organizations must be untouched")
	}

	// A fresh Put after the epoch bump is valid again.
	c.Put(ctx, "org_a", "user_1", testSnapshot("org_a", "user_1"))
	if _, ok := c.Get(ctx, "org_a", "user_1"); !ok {
		t.Error("entries written after the invalidation should hit")
	}
}

func TestMemoryInvalidateAll(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()
	c.Put(ctx, "org_a", "user_1", testSnapshot("org_a", "user_1"))
	c.Put(ctx, "org_b", "user_2", testSnapshot("org_b", "user_2"))

	c.InvalidateAll(ctx)

	if c.Len() != 0 {
		t.Errorf("Len = %d after InvalidateAll, want 0", c.Len())
	}
}

func TestMemoryEvictsAtCapacity(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(WithSize(2))

	c.Put(ctx, "org_a", "user_1", testSnapshot("org_a", "user_1"))
	c.Put(ctx, "org_a", "user_2", testSnapshot("org_a", "user_2"))
	c.Put(ctx, "org_a", "user_3", testSnapshot("org_a", "user_3"))

	if c.Len() != 2 {
		t.Errorf("Len = %d, want 2", c.Len())
	}
	if _, ok := c.Get(ctx, "org_a", "user_1"); ok {
		t.Error("oldest entry should have been evicted")
	}
}
