package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestHandler() (*Handler, *fakeAccounts) {
	accounts := &fakeAccounts{}
	issuer := NewIssuer(testSecret, time.Hour)
	service := NewService(accounts, newFakeRefresh(), &fakeAttempts{}, issuer)
	return NewHandler(service), accounts
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	encoded, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(encoded))
	request.Header.Set("Content-Type", "application/json")
	handler(recorder, request)
	return recorder
}

func TestRegisterEndpoint(t *testing.T) {
	handler, _ := newTestHandler()

	recorder := postJSON(t, handler.Register, "/api/register", map[string]string{
		"username": "alice",
		"password": strongPassword,
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body %s", recorder.Code, recorder.Body.String())
	}

	var session Session
	if err := json.NewDecoder(recorder.Body).Decode(&session); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if session.AccessToken == "" || session.RefreshToken == "" || session.Username != "alice" {
		t.Errorf("session = %+v, want tokens and username set", session)
	}

	// Same username again: conflict.
	recorder = postJSON(t, handler.Register, "/api/register", map[string]string{
		"username": "alice",
		"password": strongPassword,
	})
	if recorder.Code != http.StatusConflict {
		t.Errorf("duplicate status = %d, want 409", recorder.Code)
	}
}

func TestRegisterEndpointValidation(t *testing.T) {
	handler, accounts := newTestHandler()

	tests := []struct {
		name string
		body map[string]string
	}{
		{"short username", map[string]string{"username": "al", "password": strongPassword}},
		{"weak password", map[string]string{"username": "alice", "password": "weak"}},
		{"empty body", map[string]string{}},
	}

	for _, tt := range tests {
		recorder := postJSON(t, handler.Register, "/api/register", tt.body)
		if recorder.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tt.name, recorder.Code)
		}
	}

	if len(accounts.accounts) != 0 {
		t.Error("invalid registrations must not create accounts")
	}
}

func TestLoginEndpointInvalidCredentials(t *testing.T) {
	handler, _ := newTestHandler()

	// Unknown username and wrong password are indistinguishable.
	recorder := postJSON(t, handler.Login, "/api/login", map[string]string{
		"username": "ghost",
		"password": strongPassword,
	})
	if recorder.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", recorder.Code)
	}
}

func TestLoginEndpointLockout(t *testing.T) {
	handler, accounts := newTestHandler()
	seedAccount(t, accounts, "alice", strongPassword)

	for i := 0; i < 5; i++ {
		recorder := postJSON(t, handler.Login, "/api/login", map[string]string{
			"username": "alice",
			"password": "Wr0ng!pass",
		})
		if recorder.Code != http.StatusUnauthorized {
			t.Fatalf("failed login %d: status = %d, want 401", i+1, recorder.Code)
		}
	}

	recorder := postJSON(t, handler.Login, "/api/login", map[string]string{
		"username": "alice",
		"password": strongPassword,
	})
	if recorder.Code != http.StatusTooManyRequests {
		t.Fatalf("locked status = %d, want 429", recorder.Code)
	}
	if recorder.Header().Get("Retry-After") == "" {
		t.Error("locked response must carry Retry-After")
	}
}

func TestRefreshEndpoint(t *testing.T) {
	handler, _ := newTestHandler()

	registered := postJSON(t, handler.Register, "/api/register", map[string]string{
		"username": "alice",
		"password": strongPassword,
	})
	var session Session
	if err := json.NewDecoder(registered.Body).Decode(&session); err != nil {
		t.Fatalf("decode register response: %v", err)
	}

	recorder := postJSON(t, handler.Refresh, "/api/refresh", map[string]string{
		"refresh_token": session.RefreshToken,
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("refresh status = %d, want 200", recorder.Code)
	}
	var rotated Session
	if err := json.NewDecoder(recorder.Body).Decode(&rotated); err != nil {
		t.Fatalf("decode refresh response: %v", err)
	}
	if rotated.RefreshToken == session.RefreshToken {
		t.Error("refresh must rotate the token")
	}

	// The consumed token is permanently invalid.
	recorder = postJSON(t, handler.Refresh, "/api/refresh", map[string]string{
		"refresh_token": session.RefreshToken,
	})
	if recorder.Code != http.StatusUnauthorized {
		t.Errorf("reused token status = %d, want 401", recorder.Code)
	}
}
