package gatekeep

import (
	"log/slog"
	"time"

	"github.com/workshophq/gatekeep/plugin"
	"github.com/workshophq/gatekeep/store"
)

// Option configures the engine.
type Option func(*Engine)

// WithStore sets the persistence backend. Required.
func WithStore(s store.Store) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithCache sets the snapshot cache. Without a cache every check resolves
// directly against the store.
func WithCache(c Cache) Option {
	return func(e *Engine) {
		e.cache = c
	}
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithConfig sets the engine configuration.
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		e.config = cfg
	}
}

// WithPlugin registers a lifecycle plugin. May be given multiple times;
// plugins are notified in registration order.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		e.pending = append(e.pending, p)
	}
}

// WithClock overrides the engine's time source. Tests use this to pin
// override expiry to a known instant.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}
