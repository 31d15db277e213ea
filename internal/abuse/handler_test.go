package abuse

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"linklite/internal/auth"
)

type fakeReports struct {
	reports map[string]*Report
}

func (f *fakeReports) Insert(ctx context.Context, shortCode, reason string, reporterEmail, description *string) error {
	id := shortCode + "-report"
	f.reports[id] = &Report{ID: id, ShortCode: shortCode, Reason: reason, Status: StatusPending}
	return nil
}

func (f *fakeReports) List(ctx context.Context) ([]Report, error) {
	out := make([]Report, 0, len(f.reports))
	for _, report := range f.reports {
		out = append(out, *report)
	}
	return out, nil
}

func (f *fakeReports) Get(ctx context.Context, id string) (Report, error) {
	report, ok := f.reports[id]
	if !ok {
		return Report{}, sql.ErrNoRows
	}
	return *report, nil
}

func (f *fakeReports) MarkResolved(ctx context.Context, id, status, resolverID string) error {
	f.reports[id].Status = status
	f.reports[id].ResolvedBy = &resolverID
	return nil
}

type fakeLinks struct {
	owners  map[string]string
	deleted []string
}

func (f *fakeLinks) CodeExists(ctx context.Context, code string) (bool, error) {
	_, ok := f.owners[code]
	return ok, nil
}

func (f *fakeLinks) OwnerByCode(ctx context.Context, code string) (string, error) {
	owner, ok := f.owners[code]
	if !ok {
		return "", sql.ErrNoRows
	}
	return owner, nil
}

func (f *fakeLinks) DeleteByCode(ctx context.Context, code string) error {
	delete(f.owners, code)
	f.deleted = append(f.deleted, code)
	return nil
}

type fakeAccounts struct {
	accounts map[string]auth.Account
	banned   []string
}

func (f *fakeAccounts) ByID(ctx context.Context, id string) (auth.Account, error) {
	account, ok := f.accounts[id]
	if !ok {
		return auth.Account{}, sql.ErrNoRows
	}
	return account, nil
}

func (f *fakeAccounts) Delete(ctx context.Context, id string) error {
	delete(f.accounts, id)
	f.banned = append(f.banned, id)
	return nil
}

type moderationFixture struct {
	mux      *http.ServeMux
	token    string
	reports  *fakeReports
	links    *fakeLinks
	accounts *fakeAccounts
}

// newModerationFixture wires a pending report against a link owned by "bob"
// (regular) and one owned by "root" (elevated), routed the way the bootstrap
// routes the resolve endpoint.
func newModerationFixture(t *testing.T) moderationFixture {
	t.Helper()

	reports := &fakeReports{reports: map[string]*Report{
		"r1": {ID: "r1", ShortCode: "abc123", Status: StatusPending},
		"r2": {ID: "r2", ShortCode: "adm999", Status: StatusPending},
		"r3": {ID: "r3", ShortCode: "abc123", Status: StatusResolved},
	}}
	links := &fakeLinks{owners: map[string]string{"abc123": "acc-bob", "adm999": "acc-root"}}
	accounts := &fakeAccounts{accounts: map[string]auth.Account{
		"acc-bob":  {ID: "acc-bob", Username: "bob"},
		"acc-root": {ID: "acc-root", Username: "root", Admin: true},
	}}

	issuer := auth.NewIssuer("moderation-test-secret", time.Hour)
	token, err := issuer.Issue(auth.Identity{Username: "root", AccountID: "acc-root", Admin: true})
	if err != nil {
		t.Fatalf("issue moderator token: %v", err)
	}

	handler := NewHandler(reports, links, accounts)
	mux := http.NewServeMux()
	mux.Handle("POST /api/admin/reports/{id}", auth.RequireAdmin(issuer, http.HandlerFunc(handler.Resolve)))

	return moderationFixture{mux: mux, token: token, reports: reports, links: links, accounts: accounts}
}

func (f moderationFixture) resolve(t *testing.T, reportID, action string) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(map[string]string{"action": action})
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest(http.MethodPost, "/api/admin/reports/"+reportID, bytes.NewReader(body))
	request.Header.Set("Authorization", "Bearer "+f.token)
	f.mux.ServeHTTP(recorder, request)
	return recorder
}

func TestResolveDismiss(t *testing.T) {
	fixture := newModerationFixture(t)

	recorder := fixture.resolve(t, "r1", "dismiss")
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", recorder.Code, recorder.Body.String())
	}
	if got := fixture.reports.reports["r1"].Status; got != StatusDismissed {
		t.Errorf("report status = %q, want %q", got, StatusDismissed)
	}
	if len(fixture.links.deleted) != 0 || len(fixture.accounts.banned) != 0 {
		t.Error("dismiss must not delete links or accounts")
	}
}

func TestResolveDeleteLink(t *testing.T) {
	fixture := newModerationFixture(t)

	recorder := fixture.resolve(t, "r1", "delete_url")
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", recorder.Code, recorder.Body.String())
	}
	if got := fixture.reports.reports["r1"].Status; got != StatusResolved {
		t.Errorf("report status = %q, want %q", got, StatusResolved)
	}
	if len(fixture.links.deleted) != 1 || fixture.links.deleted[0] != "abc123" {
		t.Errorf("deleted links = %v, want [abc123]", fixture.links.deleted)
	}
	if len(fixture.accounts.banned) != 0 {
		t.Error("delete_url must not delete accounts")
	}
}

func TestResolveBanOwner(t *testing.T) {
	fixture := newModerationFixture(t)

	recorder := fixture.resolve(t, "r1", "ban_user")
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", recorder.Code, recorder.Body.String())
	}
	if len(fixture.accounts.banned) != 1 || fixture.accounts.banned[0] != "acc-bob" {
		t.Errorf("banned accounts = %v, want [acc-bob]", fixture.accounts.banned)
	}
	if got := fixture.reports.reports["r1"].Status; got != StatusResolved {
		t.Errorf("report status = %q, want %q", got, StatusResolved)
	}
}

func TestResolveBanOwnerRefusesElevatedTarget(t *testing.T) {
	fixture := newModerationFixture(t)

	recorder := fixture.resolve(t, "r2", "ban_user")
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body %s", recorder.Code, recorder.Body.String())
	}
	if len(fixture.accounts.banned) != 0 {
		t.Errorf("banned accounts = %v, want none", fixture.accounts.banned)
	}
	if _, ok := fixture.accounts.accounts["acc-root"]; !ok {
		t.Error("elevated account must survive the resolve attempt")
	}
	if got := fixture.reports.reports["r2"].Status; got != StatusPending {
		t.Errorf("report status = %q, want still %q", got, StatusPending)
	}
}

func TestResolveRejectsUnknownActionAndSettledReports(t *testing.T) {
	fixture := newModerationFixture(t)

	if recorder := fixture.resolve(t, "r1", "obliterate"); recorder.Code != http.StatusBadRequest {
		t.Errorf("unknown action status = %d, want 400", recorder.Code)
	}
	if recorder := fixture.resolve(t, "r3", "dismiss"); recorder.Code != http.StatusBadRequest {
		t.Errorf("settled report status = %d, want 400", recorder.Code)
	}
	if recorder := fixture.resolve(t, "missing", "dismiss"); recorder.Code != http.StatusNotFound {
		t.Errorf("missing report status = %d, want 404", recorder.Code)
	}
}
