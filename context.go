package gatekeep

import "context"

type contextKey int

const (
	ctxKeyOrgID contextKey = iota
	ctxKeyUserID
)

// WithOrganization returns a context carrying the caller's organization ID.
// The surrounding auth/session layer sets this once per request; middleware
// reads it back.
func WithOrganization(ctx context.Context, orgID string) context.Context {
	return context.WithValue(ctx, ctxKeyOrgID, orgID)
}

// WithUser returns a context carrying the caller's user ID.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxKeyUserID, userID)
}

// OrganizationFromContext returns the organization ID set by
// WithOrganization, or "" when absent.
func OrganizationFromContext(ctx context.Context) string {
	v, ok := ctx.Value(ctxKeyOrgID).(string)
	if !ok {
		return ""
	}
	return v
}

// UserFromContext returns the user ID set by WithUser, or "" when absent.
func UserFromContext(ctx context.Context) string {
	v, ok := ctx.Value(ctxKeyUserID).(string)
	if !ok {
		return ""
	}
	return v
}
