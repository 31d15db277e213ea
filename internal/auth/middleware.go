package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey struct{}

var identityKey contextKey

// IdentityFromContext returns the identity the middleware attached for the
// current request.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey).(Identity)
	return identity, ok
}

// Middleware verifies the bearer credential and attaches the resulting
// identity to the request context. Any verification failure short-circuits
// with 401; the protected handler is never invoked.
func Middleware(issuer *Issuer, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := authenticate(issuer, w, r)
		if !ok {
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, identity)))
	})
}

// RequireAdmin verifies the bearer credential and additionally requires the
// elevated flag. A valid but unelevated credential yields 403, not 401.
func RequireAdmin(issuer *Issuer, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := authenticate(issuer, w, r)
		if !ok {
			return
		}
		if !identity.Admin {
			writeError(w, http.StatusForbidden, "admin access required")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, identity)))
	})
}

func authenticate(issuer *Issuer, w http.ResponseWriter, r *http.Request) (Identity, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		writeError(w, http.StatusUnauthorized, "missing authorization token")
		return Identity{}, false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		writeError(w, http.StatusUnauthorized, "invalid authorization format")
		return Identity{}, false
	}

	tokenStr := strings.TrimSpace(parts[1])
	if tokenStr == "" {
		writeError(w, http.StatusUnauthorized, "invalid authorization token")
		return Identity{}, false
	}

	identity, err := issuer.Verify(tokenStr)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid or expired token")
		return Identity{}, false
	}

	return identity, true
}
