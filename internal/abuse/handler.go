package abuse

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"

	"linklite/internal/auth"
)

const maxJSONBodyBytes = 1 << 20

type LinkStore interface {
	CodeExists(ctx context.Context, code string) (bool, error)
	OwnerByCode(ctx context.Context, code string) (string, error)
	DeleteByCode(ctx context.Context, code string) error
}

type AccountStore interface {
	ByID(ctx context.Context, id string) (auth.Account, error)
	Delete(ctx context.Context, id string) error
}

type ReportStore interface {
	Insert(ctx context.Context, shortCode, reason string, reporterEmail, description *string) error
	List(ctx context.Context) ([]Report, error)
	Get(ctx context.Context, id string) (Report, error)
	MarkResolved(ctx context.Context, id, status, resolverID string) error
}

type Handler struct {
	reports  ReportStore
	links    LinkStore
	accounts AccountStore
}

func NewHandler(reports ReportStore, links LinkStore, accounts AccountStore) *Handler {
	return &Handler{reports: reports, links: links, accounts: accounts}
}

type submitRequest struct {
	ShortCode     string  `json:"short_code"`
	ReporterEmail *string `json:"reporter_email"`
	Reason        string  `json:"reason"`
	Description   *string `json:"description"`
}

type resolveRequest struct {
	Action string `json:"action"`
}

// Submit is the public abuse-report endpoint.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var body submitRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	body.ShortCode = strings.TrimSpace(body.ShortCode)
	body.Reason = strings.TrimSpace(body.Reason)
	if body.ShortCode == "" {
		writeError(w, http.StatusBadRequest, "short code cannot be empty")
		return
	}
	if body.Reason == "" {
		writeError(w, http.StatusBadRequest, "reason cannot be empty")
		return
	}
	if body.ReporterEmail != nil && *body.ReporterEmail != "" && !strings.Contains(*body.ReporterEmail, "@") {
		writeError(w, http.StatusBadRequest, "invalid email format")
		return
	}

	exists, err := h.links.CodeExists(r.Context(), body.ShortCode)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to submit report")
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, "short code not found")
		return
	}

	if err := h.reports.Insert(r.Context(), body.ShortCode, body.Reason, body.ReporterEmail, body.Description); err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to submit report")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"message": "report submitted successfully, thank you for helping keep this service safe",
	})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	reports, err := h.reports.List(r.Context())
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to list reports")
		return
	}

	writeJSON(w, http.StatusOK, reports)
}

// Resolve applies a moderation action to a pending report. The action string
// is parsed into the closed Action type before anything else happens.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var body resolveRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	action, err := ParseAction(body.Action)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.reports.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "report not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to resolve report")
		return
	}

	if report.Status != StatusPending {
		writeError(w, http.StatusBadRequest, "report has already been resolved")
		return
	}

	switch action {
	case ActionDismiss:
		if err := h.reports.MarkResolved(r.Context(), report.ID, StatusDismissed, identity.AccountID); err != nil {
			sentry.CaptureException(err)
			writeError(w, http.StatusInternalServerError, "failed to resolve report")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "report dismissed"})

	case ActionDeleteLink:
		if err := h.links.DeleteByCode(r.Context(), report.ShortCode); err != nil {
			sentry.CaptureException(err)
			writeError(w, http.StatusInternalServerError, "failed to resolve report")
			return
		}
		if err := h.reports.MarkResolved(r.Context(), report.ID, StatusResolved, identity.AccountID); err != nil {
			sentry.CaptureException(err)
			writeError(w, http.StatusInternalServerError, "failed to resolve report")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "url deleted and report resolved"})

	case ActionBanOwner:
		h.banOwner(w, r, report, identity)
	}
}

func (h *Handler) banOwner(w http.ResponseWriter, r *http.Request, report Report, resolver auth.Identity) {
	ownerID, err := h.links.OwnerByCode(r.Context(), report.ShortCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "url or owner not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to resolve report")
		return
	}

	owner, err := h.accounts.ByID(r.Context(), ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "url or owner not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to resolve report")
		return
	}

	// Elevated accounts are never a valid ban target.
	if owner.Admin {
		writeError(w, http.StatusBadRequest, "cannot ban admin users")
		return
	}

	if err := h.accounts.Delete(r.Context(), owner.ID); err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to resolve report")
		return
	}

	if err := h.reports.MarkResolved(r.Context(), report.ID, StatusResolved, resolver.AccountID); err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to resolve report")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "user banned, all urls deleted, and report resolved"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
