package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/workshophq/gatekeep"
	"github.com/workshophq/gatekeep/snapshot"
)

func TestCheckCounters(t *testing.T) {
	ctx := context.Background()
	p := New(prometheus.NewRegistry())

	results := []*gatekeep.CheckResult{
		{Allowed: true, Decision: gatekeep.DecisionAllow, Source: gatekeep.SourceSnapshot, EvalTimeNs: 1500},
		{Allowed: true, Decision: gatekeep.DecisionAllow, Source: gatekeep.SourceSnapshot, EvalTimeNs: 900},
		{Allowed: false, Decision: gatekeep.DecisionDenyRevoked, Source: gatekeep.SourceDirect, EvalTimeNs: 42000},
	}
	for _, res := range results {
		if err := p.OnAfterCheck(ctx, nil, res); err != nil {
			t.Fatalf("OnAfterCheck: %v", err)
		}
	}
	// Results of an unexpected type are ignored, not counted.
	if err := p.OnAfterCheck(ctx, nil, "bogus"); err != nil {
		t.Fatalf("OnAfterCheck(bogus): %v", err)
	}

	if got := testutil.ToFloat64(p.checks.WithLabelValues("allow", "snapshot")); got != 2 {
		t.Errorf("allow/snapshot = %v, want 2", got)
	}
	if got := testutil.ToFloat64(p.checks.WithLabelValues("deny_revoked", "direct")); got != 1 {
		t.Errorf("deny_revoked/direct = %v, want 1", got)
	}
}

func TestRefreshCounter(t *testing.T) {
	ctx := context.Background()
	p := New(prometheus.NewRegistry())

	for range 3 {
		if err := p.OnSnapshotRefreshed(ctx, &snapshot.Snapshot{OrgID: "org_garage"}); err != nil {
			t.Fatalf("OnSnapshotRefreshed: %v", err)
		}
	}

	if got := testutil.ToFloat64(p.refreshes.WithLabelValues("org_garage")); got != 3 {
		t.Errorf("refreshes = %v, want 3", got)
	}
}
