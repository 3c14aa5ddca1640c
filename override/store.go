package override

import (
	"context"
	"time"

	"github.com/workshophq/gatekeep/id"
)

// Store defines persistence operations for permission overrides.
//
// A user holds at most one override per permission key at a time: the store
// enforces this with upsert semantics on (org, user, key) where the latest
// write wins. Two simultaneously active, conflicting overrides for the same
// key therefore cannot exist — conflicts are reconciled here, never by the
// resolution engine.
type Store interface {
	// UpsertOverride inserts the override, replacing any existing override
	// for the same (org, user, permission key) triple.
	UpsertOverride(ctx context.Context, o *Override) error

	// GetOverride retrieves the override for a (user, permission key) pair.
	GetOverride(ctx context.Context, orgID, userID, permissionKey string) (*Override, error)

	// DeleteOverride removes an override by ID.
	DeleteOverride(ctx context.Context, ovrdID id.OverrideID) error

	// DeleteOverrideByKey removes the override for a (user, permission key)
	// pair, if one exists.
	DeleteOverrideByKey(ctx context.Context, orgID, userID, permissionKey string) error

	// ListOverrides returns overrides matching the filter, expired or not.
	ListOverrides(ctx context.Context, filter *ListFilter) ([]*Override, error)

	// ListActiveOverrides returns a user's overrides that are in effect at
	// the given instant (no expiry, or expiry strictly after now).
	ListActiveOverrides(ctx context.Context, orgID, userID string, now time.Time) ([]*Override, error)

	// PurgeExpiredOverrides removes overrides that expired before the given
	// time. Expired rows are already inert; this is housekeeping only.
	PurgeExpiredOverrides(ctx context.Context, before time.Time) (int64, error)

	// DeleteOverridesByUser removes all overrides for a user.
	DeleteOverridesByUser(ctx context.Context, orgID, userID string) error

	// DeleteOverridesByOrg removes all overrides for an organization.
	DeleteOverridesByOrg(ctx context.Context, orgID string) error
}
