package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/workshophq/gatekeep"
)

// stubChecker answers from fixed sets.
type stubChecker struct {
	perms  map[string]bool // userID + "/" + key
	admins map[string]bool
}

func (s *stubChecker) HasPermission(ctx context.Context, orgID, userID, key string) bool {
	return s.perms[userID+"/"+key]
}

func (s *stubChecker) IsAdmin(ctx context.Context, orgID, userID string) bool {
	return s.admins[userID]
}

func doRequest(t *testing.T, mw func(http.Handler) http.Handler, orgID, userID string) *httptest.ResponseRecorder {
	t.Helper()
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/work-orders", nil)
	ctx := req.Context()
	if orgID != "" {
		ctx = gatekeep.WithOrganization(ctx, orgID)
	}
	if userID != "" {
		ctx = gatekeep.WithUser(ctx, userID)
	}
	req = req.WithContext(ctx)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRequire(t *testing.T) {
	checker := &stubChecker{perms: map[string]bool{
		"user_tech/work_orders.view": true,
	}}
	mw := Require(checker, "work_orders.view")

	tests := []struct {
		name   string
		orgID  string
		userID string
		want   int
	}{
		{"allowed", "org_garage", "user_tech", http.StatusOK},
		{"denied", "org_garage", "user_visitor", http.StatusForbidden},
		{"no user", "org_garage", "", http.StatusUnauthorized},
		{"no org", "", "user_tech", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, mw, tt.orgID, tt.userID)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	checker := &stubChecker{admins: map[string]bool{"user_owner": true}}
	mw := RequireAdmin(checker)

	if rec := doRequest(t, mw, "org_garage", "user_owner"); rec.Code != http.StatusOK {
		t.Errorf("admin status = %d, want 200", rec.Code)
	}
	if rec := doRequest(t, mw, "org_garage", "user_tech"); rec.Code != http.StatusForbidden {
		t.Errorf("non-admin status = %d, want 403", rec.Code)
	}
	if rec := doRequest(t, mw, "", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d, want 401", rec.Code)
	}
}
