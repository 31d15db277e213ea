package maintenance

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"linklite/internal/auth"
	"linklite/internal/observability"
)

type AuthCleaner interface {
	CleanupStaleAuthData(ctx context.Context, attemptRetention time.Duration, batchSize int) (auth.CleanupResult, error)
}

type ClickCleaner interface {
	CleanupOldClicks(ctx context.Context, retention time.Duration, batchSize int) (int64, error)
}

// CleanupHandler is the retention sweep: expired refresh tokens, old login
// attempts, old click history. Nothing on the request path prunes these
// tables; this endpoint, driven by an external cron, owns it.
type CleanupHandler struct {
	authStore        AuthCleaner
	clickStore       ClickCleaner
	logger           *observability.Logger
	cronSecret       string
	attemptRetention time.Duration
	clickRetention   time.Duration
	batchSize        int
}

func NewCleanupHandler(
	authStore AuthCleaner,
	clickStore ClickCleaner,
	logger *observability.Logger,
	cronSecret string,
	attemptRetention time.Duration,
	clickRetention time.Duration,
	batchSize int,
) *CleanupHandler {
	return &CleanupHandler{
		authStore:        authStore,
		clickStore:       clickStore,
		logger:           logger,
		cronSecret:       strings.TrimSpace(cronSecret),
		attemptRetention: attemptRetention,
		clickRetention:   clickRetention,
		batchSize:        batchSize,
	}
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) != h.cronSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	authResult, err := h.authStore.CleanupStaleAuthData(r.Context(), h.attemptRetention, h.batchSize)
	if err != nil {
		h.logger.Error("auth_cleanup_failed", map[string]any{"error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cleanup failed"})
		return
	}

	deletedClicks, err := h.clickStore.CleanupOldClicks(r.Context(), h.clickRetention, h.batchSize)
	if err != nil {
		h.logger.Error("click_cleanup_failed", map[string]any{"error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cleanup failed"})
		return
	}

	h.logger.Info("cleanup_completed", map[string]any{
		"deleted_refresh_tokens": authResult.DeletedRefreshTokens,
		"deleted_login_attempts": authResult.DeletedLoginAttempts,
		"deleted_clicks":         deletedClicks,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"status":                 "ok",
		"deleted_refresh_tokens": authResult.DeletedRefreshTokens,
		"deleted_login_attempts": authResult.DeletedLoginAttempts,
		"deleted_clicks":         deletedClicks,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
