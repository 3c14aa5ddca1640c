package gatekeep

import (
	"context"

	"github.com/workshophq/gatekeep/snapshot"
)

// Cache stores per-user permission snapshots, keyed by (organization, user).
// Entries are independently replaceable: refreshing one user never blocks
// reads or refreshes for another. Implementations must be safe for
// concurrent use with last-write-wins semantics and must never expose a
// half-updated snapshot to a reader.
//
// A Cache is an optimization, never a source of truth: a miss (or any
// backend failure, reported as a miss) falls through to direct resolution.
type Cache interface {
	// Get returns the cached snapshot for a user, if present and not
	// invalidated.
	Get(ctx context.Context, orgID, userID string) (*snapshot.Snapshot, bool)

	// Put replaces the cached snapshot for a user.
	Put(ctx context.Context, orgID, userID string, snap *snapshot.Snapshot)

	// Invalidate drops the cached snapshot for one user.
	Invalidate(ctx context.Context, orgID, userID string)

	// InvalidateOrg marks every snapshot in an organization for mandatory
	// recomputation on next read. Used when a catalog-wide change (role
	// grant set edited, permission deactivated) fans out to an unbounded
	// number of users; the recompute happens lazily, not inside the
	// triggering write.
	InvalidateOrg(ctx context.Context, orgID string)

	// InvalidateAll drops every cached snapshot.
	InvalidateAll(ctx context.Context)
}
