// Package metrics provides a Prometheus plugin exposing authorization
// check and snapshot refresh metrics.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/workshophq/gatekeep"
	"github.com/workshophq/gatekeep/snapshot"
)

// Plugin records check decisions, check latency, and snapshot refreshes.
// Register it with gatekeep.WithPlugin and its collectors with a
// prometheus.Registerer.
type Plugin struct {
	checks    *prometheus.CounterVec
	latency   prometheus.Histogram
	refreshes *prometheus.CounterVec
}

// New creates the metrics plugin and registers its collectors with reg.
func New(reg prometheus.Registerer) *Plugin {
	p := &Plugin{
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gatekeep",
			Name:      "checks_total",
			Help:      "Authorization checks by decision and source.",
		}, []string{"decision", "source"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "gatekeep",
			Name:      "check_duration_seconds",
			Help:      "Authorization check latency.",
			Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 12),
		}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gatekeep",
			Name:      "snapshot_refreshes_total",
			Help:      "Snapshot recomputations by organization.",
		}, []string{"org_id"}),
	}
	reg.MustRegister(p.checks, p.latency, p.refreshes)
	return p
}

// Name implements plugin.Plugin.
func (p *Plugin) Name() string { return "prometheus-metrics" }

// OnAfterCheck implements plugin.AfterCheck.
func (p *Plugin) OnAfterCheck(_ context.Context, _, result any) error {
	res, ok := result.(*gatekeep.CheckResult)
	if !ok {
		return nil
	}
	p.checks.WithLabelValues(string(res.Decision), res.Source).Inc()
	p.latency.Observe(time.Duration(res.EvalTimeNs).Seconds())
	return nil
}

// OnSnapshotRefreshed implements plugin.SnapshotRefreshed.
func (p *Plugin) OnSnapshotRefreshed(_ context.Context, snap *snapshot.Snapshot) error {
	p.refreshes.WithLabelValues(snap.OrgID).Inc()
	return nil
}
