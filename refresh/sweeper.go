// Package refresh provides the background snapshot sweeper: a scheduled
// job that recomputes every known user's snapshot and purges expired
// overrides. The sweeper is an optimization layer; correctness never
// depends on it running.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/workshophq/gatekeep"
)

// DefaultSchedule runs a sweep every ten minutes.
const DefaultSchedule = "*/10 * * * *"

// DefaultConcurrency bounds how many users are refreshed in parallel.
const DefaultConcurrency = 8

// Sweeper periodically recomputes snapshots for every user of the
// organizations it watches. Refreshing is idempotent: a sweep over
// unchanged source data rewrites byte-identical snapshots.
type Sweeper struct {
	engine      *gatekeep.Engine
	orgIDs      []string
	schedule    string
	concurrency int
	purge       bool
	logger      *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// Option configures the sweeper.
type Option func(*Sweeper)

// WithSchedule sets the cron expression. Defaults to every ten minutes.
func WithSchedule(expr string) Option {
	return func(s *Sweeper) {
		s.schedule = expr
	}
}

// WithConcurrency bounds how many users are refreshed in parallel.
func WithConcurrency(n int) Option {
	return func(s *Sweeper) {
		s.concurrency = n
	}
}

// WithPurgeExpired enables deletion of expired override rows at the end of
// each sweep. Expired overrides are already inert; this is housekeeping.
func WithPurgeExpired(enabled bool) Option {
	return func(s *Sweeper) {
		s.purge = enabled
	}
}

// WithLogger sets the sweeper's logger. Defaults to the engine's.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

// NewSweeper creates a sweeper for the given organizations.
func NewSweeper(engine *gatekeep.Engine, orgIDs []string, opts ...Option) *Sweeper {
	s := &Sweeper{
		engine:      engine,
		orgIDs:      orgIDs,
		schedule:    DefaultSchedule,
		concurrency: DefaultConcurrency,
		purge:       true,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = engine.Logger()
	}
	return s
}

// Start schedules recurring sweeps. The given context bounds every sweep
// run; cancelling it stops in-flight refreshes cooperatively.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("refresh: sweeper already started")
	}

	c := cron.New()
	if _, err := c.AddFunc(s.schedule, func() {
		if err := s.Sweep(ctx); err != nil {
			s.logger.Error("snapshot sweep failed",
				slog.String("error", err.Error()),
			)
		}
	}); err != nil {
		return fmt.Errorf("refresh: schedule %q: %w", s.schedule, err)
	}
	c.Start()

	s.cron = c
	s.running = true
	s.logger.Info("snapshot sweeper started",
		slog.String("schedule", s.schedule),
		slog.Int("orgs", len(s.orgIDs)),
	)
	return nil
}

// Stop halts scheduling and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
	s.running = false
	s.logger.Info("snapshot sweeper stopped")
}

// Sweep refreshes every known user of every watched organization once,
// then purges expired overrides. Individual refresh failures are logged
// and counted, never fatal to the sweep.
func (s *Sweeper) Sweep(ctx context.Context) error {
	for _, orgID := range s.orgIDs {
		if err := s.sweepOrg(ctx, orgID); err != nil {
			return err
		}
	}
	if s.purge {
		purged, err := s.engine.Store().PurgeExpiredOverrides(ctx, s.engine.Now())
		if err != nil {
			return fmt.Errorf("refresh: purge expired overrides: %w", err)
		}
		if purged > 0 {
			s.logger.Info("purged expired overrides", slog.Int64("count", purged))
		}
	}
	return nil
}

func (s *Sweeper) sweepOrg(ctx context.Context, orgID string) error {
	users, err := s.engine.Store().ListUserIDs(ctx, orgID)
	if err != nil {
		return fmt.Errorf("refresh: list users for org %s: %w", orgID, err)
	}

	var failed int64
	var failedMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, userID := range users {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if _, err := s.engine.Refresh(gctx, orgID, userID); err != nil {
				failedMu.Lock()
				failed++
				failedMu.Unlock()
				s.logger.Warn("snapshot refresh failed",
					slog.String("org_id", orgID),
					slog.String("user_id", userID),
					slog.String("error", err.Error()),
				)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("refresh: sweep org %s: %w", orgID, err)
	}

	s.logger.Debug("organization swept",
		slog.String("org_id", orgID),
		slog.Int("users", len(users)),
		slog.Int64("failed", failed),
	)
	return nil
}
