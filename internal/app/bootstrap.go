package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"linklite/internal/abuse"
	"linklite/internal/admin"
	"linklite/internal/auth"
	"linklite/internal/db"
	"linklite/internal/link"
	"linklite/internal/maintenance"
	"linklite/internal/observability"
)

type Options struct {
	LoadDotEnv    bool
	RunMigrations bool
}

type Runtime struct {
	Handler http.Handler
	Close   func() error
}

func Build(options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	logger := observability.NewLogger()

	databaseURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return nil, err
	}
	jwtSecret, err := mustEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}

	if err := observability.InitSentry(os.Getenv("SENTRY_DSN"), envOrDefault("APP_ENV", "development")); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	database, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(envIntOrDefault("DB_MAX_OPEN_CONNS", 10))
	database.SetMaxIdleConns(envIntOrDefault("DB_MAX_IDLE_CONNS", 5))
	database.SetConnMaxLifetime(envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30))
	database.SetConnMaxIdleTime(envMinutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10))

	if err := database.Ping(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if options.RunMigrations {
		applied, err := db.RunMigrations(context.Background(), database)
		if err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		if len(applied) > 0 {
			logger.Info("migrations_applied", map[string]any{"versions": applied})
		}
	}

	hostURL := envOrDefault("HOST_URL", "http://localhost:8080")
	maxURLLength := envIntOrDefault("MAX_URL_LENGTH", 2048)
	allowRegistration := EnvBoolOrDefault("ALLOW_REGISTRATION", true)

	issuer := auth.NewIssuer(jwtSecret, envHoursOrDefault("ACCESS_TOKEN_TTL_HOURS", 1))

	authRepo := auth.NewRepository(database)
	authService := auth.NewService(authRepo, authRepo, authRepo, issuer)
	authService.WithSecurityConfig(
		envIntOrDefault("LOCKOUT_MAX_ATTEMPTS", 5),
		envMinutesOrDefault("LOCKOUT_WINDOW_MINUTES", 30),
		envDaysOrDefault("REFRESH_TOKEN_TTL_DAYS", 7),
	)
	authService.WithRegistrationAllowed(allowRegistration)
	authHandler := auth.NewHandler(authService)

	linkRepo := link.NewRepository(database)
	linkHandler := link.NewHandler(linkRepo, hostURL, maxURLLength)

	abuseRepo := abuse.NewRepository(database)
	abuseHandler := abuse.NewHandler(abuseRepo, linkRepo, authRepo)

	adminHandler := admin.NewHandler(authRepo, linkRepo)

	cleanupHandler := maintenance.NewCleanupHandler(
		authRepo,
		linkRepo,
		logger,
		os.Getenv("CRON_SECRET"),
		envDaysOrDefault("AUTH_LOGIN_ATTEMPT_RETENTION_DAYS", 30),
		envDaysOrDefault("CLICK_RETENTION_DAYS", 30),
		envIntOrDefault("CLEANUP_BATCH_SIZE", 500),
	)

	loginLimiter := auth.NewLoginRateLimiter(
		envIntOrDefault("LOGIN_RATE_LIMIT_MAX", 10),
		envSecondsOrDefault("LOGIN_RATE_LIMIT_WINDOW_SECONDS", 60),
	)

	protected := func(h http.HandlerFunc) http.Handler {
		return auth.Middleware(issuer, h)
	}
	adminOnly := func(h http.HandlerFunc) http.Handler {
		return auth.RequireAdmin(issuer, h)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/register", authHandler.Register)
	mux.Handle("POST /api/login", loginLimiter.Middleware(http.HandlerFunc(authHandler.Login)))
	mux.HandleFunc("POST /api/refresh", authHandler.Refresh)
	mux.HandleFunc("GET /api/setup/required", authHandler.SetupRequired)
	mux.HandleFunc("GET /api/config", configHandler(hostURL, maxURLLength, allowRegistration))
	mux.HandleFunc("GET /health", healthHandler(database))
	mux.HandleFunc("POST /api/report-abuse", abuseHandler.Submit)

	mux.Handle("GET /api/me", protected(authHandler.CurrentUser))
	mux.Handle("POST /api/shorten", protected(linkHandler.Shorten))
	mux.Handle("GET /api/urls", protected(linkHandler.List))
	mux.Handle("GET /api/stats/{code}", protected(linkHandler.Stats))
	mux.Handle("DELETE /api/urls/{code}", protected(linkHandler.Delete))
	mux.Handle("PATCH /api/urls/{code}/name", protected(linkHandler.UpdateName))
	mux.Handle("GET /api/urls/{code}/clicks", protected(linkHandler.ClickHistory))

	mux.Handle("GET /api/admin/users", adminOnly(adminHandler.ListUsers))
	mux.Handle("DELETE /api/admin/users/{id}", adminOnly(adminHandler.DeleteUser))
	mux.Handle("POST /api/admin/users/{id}/promote", adminOnly(adminHandler.PromoteUser))
	mux.Handle("GET /api/admin/stats", adminOnly(adminHandler.Stats))
	mux.Handle("GET /api/admin/reports", adminOnly(abuseHandler.List))
	mux.Handle("POST /api/admin/reports/{id}", adminOnly(abuseHandler.Resolve))

	mux.HandleFunc("GET /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/cleanup", cleanupHandler.Handle)

	// Short-code redirects; literal routes above always win over the wildcard.
	mux.HandleFunc("GET /{code}", linkHandler.Redirect)

	handler := observability.RecoverMiddleware(logger, observability.RequestLoggingMiddleware(logger, mux))

	return &Runtime{
		Handler: handler,
		Close: func() error {
			observability.FlushSentry()
			return database.Close()
		},
	}, nil
}

func healthHandler(database *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func configHandler(hostURL string, maxURLLength int, allowRegistration bool) http.HandlerFunc {
	body := map[string]any{
		"host_url":           hostURL,
		"max_url_length":     maxURLLength,
		"allow_registration": allowRegistration,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func mustEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("missing required env: %s", name)
	}
	return value, nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envSecondsOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Second
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
}

func envHoursOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Hour
}

func envDaysOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * 24 * time.Hour
}

func EnvBoolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if value == "" {
		return fallback
	}

	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
