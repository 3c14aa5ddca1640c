// Package middleware provides net/http middleware guarding handlers with
// gatekeep permission checks. It composes with any router that accepts
// standard http.Handler middleware, chi included.
//
// The organization and user of the request must already be on the request
// context, set by the application's auth layer via gatekeep.WithOrganization
// and gatekeep.WithUser.
package middleware

import (
	"context"
	"net/http"

	"github.com/workshophq/gatekeep"
)

// Checker is the subset of the engine the middleware needs.
type Checker interface {
	HasPermission(ctx context.Context, orgID, userID, permissionKey string) bool
	IsAdmin(ctx context.Context, orgID, userID string) bool
}

// Require returns middleware that denies the request with 403 unless the
// context's user holds the given permission. Requests without an
// organization or user on the context are denied with 401.
func Require(checker Checker, permissionKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			orgID := gatekeep.OrganizationFromContext(ctx)
			userID := gatekeep.UserFromContext(ctx)
			if orgID == "" || userID == "" {
				http.Error(w, "unauthenticated", http.StatusUnauthorized)
				return
			}
			if !checker.HasPermission(ctx, orgID, userID, permissionKey) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin returns middleware that denies the request with 403 unless
// the context's user holds the admin role.
func RequireAdmin(checker Checker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			orgID := gatekeep.OrganizationFromContext(ctx)
			userID := gatekeep.UserFromContext(ctx)
			if orgID == "" || userID == "" {
				http.Error(w, "unauthenticated", http.StatusUnauthorized)
				return
			}
			if !checker.IsAdmin(ctx, orgID, userID) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
