package plugin

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/workshophq/gatekeep/id"
	"github.com/workshophq/gatekeep/role"
	"github.com/workshophq/gatekeep/snapshot"
)

// recorderPlugin implements a subset of the hooks and records calls.
type recorderPlugin struct {
	name  string
	calls []string
	err   error
}

func (p *recorderPlugin) Name() string { return p.name }

func (p *recorderPlugin) OnBeforeCheck(ctx context.Context, req any) error {
	p.calls = append(p.calls, "before_check")
	return p.err
}

func (p *recorderPlugin) OnAfterCheck(ctx context.Context, req, result any) error {
	p.calls = append(p.calls, "after_check")
	return p.err
}

func (p *recorderPlugin) OnRoleCreated(ctx context.Context, r *role.Role) error {
	p.calls = append(p.calls, "role_created:"+r.Key)
	return p.err
}

func (p *recorderPlugin) OnShutdown(ctx context.Context) error {
	p.calls = append(p.calls, "shutdown")
	return p.err
}

// namedOnly implements nothing beyond Plugin.
type namedOnly struct{}

func (namedOnly) Name() string { return "named-only" }

func TestRegistryDispatchesToImplementedHooks(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(slog.Default())

	p := &recorderPlugin{name: "recorder"}
	reg.Register(p)
	reg.Register(namedOnly{})

	reg.EmitBeforeCheck(ctx, nil)
	reg.EmitAfterCheck(ctx, nil, nil)
	reg.EmitRoleCreated(ctx, &role.Role{Key: "technician"})
	// recorderPlugin does not implement SnapshotRefreshed; this must not
	// reach it.
	reg.EmitSnapshotRefreshed(ctx, &snapshot.Snapshot{})
	reg.EmitRoleDeleted(ctx, id.NewRoleID())
	reg.EmitShutdown(ctx)

	want := []string{"before_check", "after_check", "role_created:technician", "shutdown"}
	if len(p.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", p.calls, want)
	}
	for i := range want {
		if p.calls[i] != want[i] {
			t.Errorf("calls[%d] = %q, want %q", i, p.calls[i], want[i])
		}
	}
	if got := len(reg.Plugins()); got != 2 {
		t.Errorf("Plugins() = %d, want 2", got)
	}
}

func TestRegistryNotifiesInRegistrationOrder(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(slog.Default())

	var order []string
	first := &recorderPlugin{name: "first"}
	second := &recorderPlugin{name: "second"}
	reg.Register(first)
	reg.Register(second)

	reg.EmitShutdown(ctx)
	order = append(order, first.calls...)
	order = append(order, second.calls...)
	if len(order) != 2 {
		t.Fatalf("expected both plugins notified, got %v", order)
	}
}

func TestRegistrySwallowsHookErrors(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(slog.New(slog.DiscardHandler))

	failing := &recorderPlugin{name: "failing", err: errors.New("boom")}
	healthy := &recorderPlugin{name: "healthy"}
	reg.Register(failing)
	reg.Register(healthy)

	reg.EmitBeforeCheck(ctx, nil)

	// A failing hook must not stop later plugins from being notified.
	if len(healthy.calls) != 1 {
		t.Errorf("healthy plugin calls = %v, want one", healthy.calls)
	}
}
