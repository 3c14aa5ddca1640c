// Package gatekeep provides an embedded, multi-tenant permission resolution
// engine for Go applications.
//
// Gatekeep combines role-based grants, per-user overrides (grant or revoke,
// with optional expiry), and an organization tenant boundary into a single
// authorization primitive: given a user, it computes the definitive set of
// permission keys that user holds. Resolved sets are materialized into
// per-user snapshots served from a cache so the hot check stays cheap; the
// check API is total and fails closed.
//
//	eng, err := gatekeep.NewEngine(
//	    gatekeep.WithStore(memStore),
//	    gatekeep.WithCache(cache.NewMemory()),
//	)
//	if eng.HasPermission(ctx, "org_123", "user_456", "work_orders.view") {
//	    // proceed
//	}
package gatekeep

// AdminRoleKey is the reserved role key granting an unconditional bypass:
// any user holding an active role with this key receives every active
// permission in the organization's catalog, overrides ignored.
const AdminRoleKey = "admin"

// CheckRequest is the input to an authorization check.
type CheckRequest struct {
	OrgID         string `json:"org_id"`
	UserID        string `json:"user_id"`
	PermissionKey string `json:"permission_key"`
}

// CheckResult is the outcome of an authorization check.
type CheckResult struct {
	Allowed    bool     `json:"allowed"`
	Decision   Decision `json:"decision"`
	Source     string   `json:"source"` // "snapshot" or "direct"
	EvalTimeNs int64    `json:"eval_time_ns"`
}

// Decision is the authorization outcome.
type Decision string

const (
	// DecisionAllow means the permission is in the user's resolved set.
	DecisionAllow Decision = "allow"

	// DecisionAllowAdmin means the admin bypass granted the permission.
	DecisionAllowAdmin Decision = "allow_admin"

	// DecisionDenyNoPerm means the permission is not in the resolved set.
	DecisionDenyNoPerm Decision = "deny_no_perm"

	// DecisionDenyRevoked means an active override explicitly revokes the
	// permission the user's roles would otherwise grant.
	DecisionDenyRevoked Decision = "deny_revoked"

	// DecisionDenyError means resolution failed and the check fell closed.
	DecisionDenyError Decision = "deny_error"
)

// Check sources.
const (
	// SourceSnapshot marks a decision answered from a cached snapshot.
	SourceSnapshot = "snapshot"

	// SourceDirect marks a decision computed by a full resolution.
	SourceDirect = "direct"
)
