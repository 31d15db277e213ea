package admin

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/getsentry/sentry-go"

	"linklite/internal/auth"
)

type AccountStore interface {
	List(ctx context.Context) ([]auth.AccountInfo, error)
	ByID(ctx context.Context, id string) (auth.Account, error)
	Delete(ctx context.Context, id string) error
	Promote(ctx context.Context, id string) (auth.Account, error)
	Count(ctx context.Context) (int64, error)
}

type LinkStats interface {
	Totals(ctx context.Context) (int64, int64, error)
}

type Handler struct {
	accounts AccountStore
	links    LinkStats
}

func NewHandler(accounts AccountStore, links LinkStats) *Handler {
	return &Handler{accounts: accounts, links: links}
}

type statsResponse struct {
	TotalUsers  int64 `json:"total_users"`
	TotalURLs   int64 `json:"total_urls"`
	TotalClicks int64 `json:"total_clicks"`
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.accounts.List(r.Context())
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}

	writeJSON(w, http.StatusOK, users)
}

func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	targetID := r.PathValue("id")
	if targetID == identity.AccountID {
		writeError(w, http.StatusBadRequest, "cannot delete your own account")
		return
	}

	// Deletion cascades to the account's links, click history, and refresh
	// tokens through the schema's foreign keys.
	if err := h.accounts.Delete(r.Context(), targetID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to delete user")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "user deleted successfully"})
}

func (h *Handler) PromoteUser(w http.ResponseWriter, r *http.Request) {
	target, err := h.accounts.ByID(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to promote user")
		return
	}

	if target.Admin {
		writeError(w, http.StatusBadRequest, "user is already an admin")
		return
	}

	promoted, err := h.accounts.Promote(r.Context(), target.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to promote user")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("user %q promoted to admin successfully", promoted.Username),
	})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	totalUsers, err := h.accounts.Count(r.Context())
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}

	totalURLs, totalClicks, err := h.links.Totals(r.Context())
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}

	writeJSON(w, http.StatusOK, statsResponse{
		TotalUsers:  totalUsers,
		TotalURLs:   totalURLs,
		TotalClicks: totalClicks,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
