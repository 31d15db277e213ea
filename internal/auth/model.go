package auth

import "time"

type Account struct {
	ID           string
	Username     string
	PasswordHash string
	Admin        bool
	CreatedAt    time.Time
}

// Identity is what a verified access token proves. It is never persisted;
// verification rebuilds it from the token bytes alone.
type Identity struct {
	Username  string
	AccountID string
	Admin     bool
}

type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	Username     string `json:"username"`
	ExpiresIn    int64  `json:"expires_in"`
}

type RefreshRecord struct {
	ID        string
	AccountID string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// LoginAttempt rows are append-only. The username is stored as typed, even
// when it matches no account, so guessing unknown usernames is throttled too.
type LoginAttempt struct {
	Username    string
	Success     bool
	AttemptedAt time.Time
}

type AccountInfo struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Admin     bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
	LinkCount int64     `json:"url_count"`
}
