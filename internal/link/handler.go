package link

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/getsentry/sentry-go"

	"linklite/internal/auth"
)

const (
	maxJSONBodyBytes   = 1 << 20
	maxCodeGenAttempts = 10
)

type Handler struct {
	repo         *Repository
	hostURL      string
	maxURLLength int
}

func NewHandler(repo *Repository, hostURL string, maxURLLength int) *Handler {
	return &Handler{repo: repo, hostURL: hostURL, maxURLLength: maxURLLength}
}

type shortenRequest struct {
	URL string `json:"url"`
}

type shortenResponse struct {
	ShortCode   string `json:"short_code"`
	ShortURL    string `json:"short_url"`
	OriginalURL string `json:"original_url"`
}

type updateNameRequest struct {
	Name *string `json:"name"`
}

func (h *Handler) Shorten(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var body shortenRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	if body.URL == "" {
		writeError(w, http.StatusBadRequest, "url cannot be empty")
		return
	}
	if err := ValidateURL(body.URL, h.maxURLLength); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Shortening the same URL twice for the same owner returns the code it
	// already has.
	existing, err := h.repo.CodeForURL(r.Context(), identity.AccountID, body.URL)
	if err == nil {
		writeJSON(w, http.StatusOK, h.shortenResponse(existing, body.URL))
		return
	}
	if !errors.Is(err, sql.ErrNoRows) {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to create short url")
		return
	}

	code, err := h.uniqueCode(r)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to create short url")
		return
	}

	if _, err := h.repo.Create(r.Context(), identity.AccountID, body.URL, code); err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to create short url")
		return
	}

	writeJSON(w, http.StatusOK, h.shortenResponse(code, body.URL))
}

func (h *Handler) uniqueCode(r *http.Request) (string, error) {
	for attempt := 0; attempt < maxCodeGenAttempts; attempt++ {
		code, err := GenerateCode()
		if err != nil {
			return "", err
		}

		exists, err := h.repo.CodeExists(r.Context(), code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}

	return "", fmt.Errorf("short code space exhausted after %d attempts", maxCodeGenAttempts)
}

func (h *Handler) shortenResponse(code, originalURL string) shortenResponse {
	return shortenResponse{
		ShortCode:   code,
		ShortURL:    fmt.Sprintf("%s/%s", h.hostURL, code),
		OriginalURL: originalURL,
	}
}

// Redirect serves the public short-code route.
func (h *Handler) Redirect(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")

	destination, err := h.repo.ResolveClick(r.Context(), code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "short url not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to resolve short url")
		return
	}

	http.Redirect(w, r, destination, http.StatusFound)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	l, err := h.repo.ByCode(r.Context(), identity.AccountID, r.PathValue("code"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "short url not found or not owned by you")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}

	writeJSON(w, http.StatusOK, l)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	links, err := h.repo.ListByAccount(r.Context(), identity.AccountID)
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to list urls")
		return
	}

	writeJSON(w, http.StatusOK, links)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := h.repo.Delete(r.Context(), identity.AccountID, r.PathValue("code")); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "short url not found or not owned by you")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to delete url")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "url deleted"})
}

func (h *Handler) UpdateName(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var body updateNameRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	if err := h.repo.UpdateName(r.Context(), identity.AccountID, r.PathValue("code"), body.Name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "short url not found or not owned by you")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to update url name")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "url name updated"})
}

func (h *Handler) ClickHistory(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	stats, err := h.repo.ClickHistory(r.Context(), identity.AccountID, r.PathValue("code"))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "short url not found or not owned by you")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to load click history")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
