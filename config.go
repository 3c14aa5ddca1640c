package gatekeep

import "time"

// DefaultSnapshotMaxAge is the default upper bound on how stale a cached
// snapshot may be served. It caps the window a lost or raced invalidation
// can keep a revoked grant alive.
const DefaultSnapshotMaxAge = 5 * time.Minute

// Config holds configuration for the gatekeep engine.
type Config struct {
	// AdminRoleKey is the reserved role key that bypasses per-permission
	// checks. Defaults to "admin".
	AdminRoleKey string `json:"admin_role_key,omitempty"`

	// SnapshotMaxAge bounds how stale a cached snapshot may be before the
	// engine recomputes it on read. Defaults to DefaultSnapshotMaxAge;
	// zero means cached snapshots are trusted until invalidated or
	// evicted by the cache's own TTL.
	SnapshotMaxAge time.Duration `json:"snapshot_max_age,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		AdminRoleKey:   AdminRoleKey,
		SnapshotMaxAge: DefaultSnapshotMaxAge,
	}
}

func (c Config) adminKey() string {
	if c.AdminRoleKey == "" {
		return AdminRoleKey
	}
	return c.AdminRoleKey
}
