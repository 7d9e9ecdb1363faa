package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestAuthenticator(t *testing.T) (*Authenticator, *JWTVerifier) {
	t.Helper()
	verifier, err := NewJWTVerifier("test-secret", "hdshop")
	if err != nil {
		t.Fatalf("NewJWTVerifier: %v", err)
	}
	return NewAuthenticator(verifier), verifier
}

func okHandler(t *testing.T, wantUserID string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Error("identity missing from request context")
		} else if identity.UserID != wantUserID {
			t.Errorf("UserID = %q, want %q", identity.UserID, wantUserID)
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestRequireAuthAcceptsValidToken(t *testing.T) {
	authn, verifier := newTestAuthenticator(t)
	token, err := verifier.IssueToken(&Identity{UserID: "user-1", Roles: []string{RoleUser}}, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	authn.RequireAuth()(okHandler(t, "user-1")).ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
}

func TestRequireAuthRejectsMissingHeader(t *testing.T) {
	authn, _ := newTestAuthenticator(t)

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	rec := httptest.NewRecorder()

	authn.RequireAuth()(okHandler(t, "")).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRequireAdminRejectsUserRole(t *testing.T) {
	authn, verifier := newTestAuthenticator(t)
	token, err := verifier.IssueToken(&Identity{UserID: "user-1", Roles: []string{RoleUser}}, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	req := httptest.NewRequest(http.MethodPut, "/orders/abc/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	authn.RequireAdmin()(okHandler(t, "")).ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestRequireAdminAcceptsAdminRole(t *testing.T) {
	authn, verifier := newTestAuthenticator(t)
	token, err := verifier.IssueToken(&Identity{UserID: "admin-1", Roles: []string{RoleAdmin}}, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	req := httptest.NewRequest(http.MethodPut, "/orders/abc/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	authn.RequireAdmin()(okHandler(t, "admin-1")).ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
}

func TestRequireAuthFallbackRole(t *testing.T) {
	authn, verifier := newTestAuthenticator(t)
	// Token without any role claim picks up the fallback user role.
	token, err := verifier.IssueToken(&Identity{UserID: "user-2"}, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, _ := IdentityFromContext(r.Context())
		if !identity.HasRole(RoleUser) {
			t.Errorf("Roles = %v, want fallback user role", identity.Roles)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	authn.RequireAuth(RoleUser)(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", rec.Code)
	}
}
