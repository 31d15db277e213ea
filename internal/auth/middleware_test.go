package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func issueTestToken(t *testing.T, issuer *Issuer, identity Identity) string {
	t.Helper()

	token, err := issuer.Issue(identity)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func TestMiddlewareRejectsMissingAndInvalidTokens(t *testing.T) {
	issuer := NewIssuer(testSecret, time.Hour)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("protected handler must not run")
	})
	gate := Middleware(issuer, next)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc"},
		{"empty token", "Bearer "},
		{"garbage token", "Bearer not-a-token"},
		{"expired token", "Bearer " + issueTestToken(t, NewIssuer(testSecret, -time.Minute), Identity{Username: "alice"})},
		{"foreign signature", "Bearer " + issueTestToken(t, NewIssuer("other-secret", time.Hour), Identity{Username: "alice"})},
	}

	for _, tt := range tests {
		recorder := httptest.NewRecorder()
		request := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		if tt.header != "" {
			request.Header.Set("Authorization", tt.header)
		}

		gate.ServeHTTP(recorder, request)

		if recorder.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want 401", tt.name, recorder.Code)
		}
	}
}

func TestMiddlewareAttachesIdentity(t *testing.T) {
	issuer := NewIssuer(testSecret, time.Hour)
	want := Identity{Username: "alice", AccountID: "acc-1", Admin: false}

	var got Identity
	var ok bool
	gate := Middleware(issuer, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	request.Header.Set("Authorization", "Bearer "+issueTestToken(t, issuer, want))

	gate.ServeHTTP(recorder, request)

	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", recorder.Code)
	}
	if !ok || got != want {
		t.Errorf("identity = %+v (ok=%v), want %+v", got, ok, want)
	}
}

func TestRequireAdminSeparatesForbiddenFromUnauthorized(t *testing.T) {
	issuer := NewIssuer(testSecret, time.Hour)
	gate := RequireAdmin(issuer, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Valid credential without elevation: 403, not 401.
	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
	request.Header.Set("Authorization", "Bearer "+issueTestToken(t, issuer, Identity{Username: "bob", AccountID: "acc-2"}))
	gate.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusForbidden {
		t.Errorf("non-admin status = %d, want 403", recorder.Code)
	}

	// No credential at all: 401.
	recorder = httptest.NewRecorder()
	gate.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/api/admin/users", nil))
	if recorder.Code != http.StatusUnauthorized {
		t.Errorf("missing credential status = %d, want 401", recorder.Code)
	}

	// Elevated credential passes.
	recorder = httptest.NewRecorder()
	request = httptest.NewRequest(http.MethodGet, "/api/admin/users", nil)
	request.Header.Set("Authorization", "Bearer "+issueTestToken(t, issuer, Identity{Username: "alice", AccountID: "acc-1", Admin: true}))
	gate.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Errorf("admin status = %d, want 200", recorder.Code)
	}
}
