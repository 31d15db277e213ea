package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	defaultRefreshTTL    = 7 * 24 * time.Hour
	defaultMaxAttempts   = 5
	defaultLockoutWindow = 30 * time.Minute

	refreshTokenBytes = 32
)

var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrUsernameTaken       = errors.New("username already exists")
	ErrRegistrationClosed  = errors.New("registration is disabled")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
)

// LockedError is returned when the lockout threshold has been met for a
// username within the trailing window.
type LockedError struct {
	RetryAfter time.Duration
}

func (e LockedError) Error() string {
	return "account temporarily locked"
}

type AccountStore interface {
	ByUsername(ctx context.Context, username string) (Account, error)
	ByID(ctx context.Context, id string) (Account, error)
	Insert(ctx context.Context, username, passwordHash string, mustBeFirst bool) (Account, error)
	Count(ctx context.Context) (int64, error)
}

type RefreshStore interface {
	CreateRefreshToken(ctx context.Context, accountID, token string, expiresAt time.Time) error
	RedeemRefreshToken(ctx context.Context, token string, now time.Time) (string, error)
}

type AttemptLedger interface {
	RecordAttempt(ctx context.Context, username string, success bool) error
	// RecentFailures reports how many failures the window holds and when the
	// oldest of them happened; the zero time when there are none.
	RecentFailures(ctx context.Context, username string, since time.Time) (int, time.Time, error)
}

type Service struct {
	accounts          AccountStore
	refresh           RefreshStore
	attempts          AttemptLedger
	issuer            *Issuer
	refreshTTL        time.Duration
	maxAttempts       int
	lockoutWindow     time.Duration
	allowRegistration bool
}

func NewService(accounts AccountStore, refresh RefreshStore, attempts AttemptLedger, issuer *Issuer) *Service {
	return &Service{
		accounts:          accounts,
		refresh:           refresh,
		attempts:          attempts,
		issuer:            issuer,
		refreshTTL:        defaultRefreshTTL,
		maxAttempts:       defaultMaxAttempts,
		lockoutWindow:     defaultLockoutWindow,
		allowRegistration: true,
	}
}

func (s *Service) WithSecurityConfig(maxAttempts int, lockoutWindow, refreshTTL time.Duration) {
	if maxAttempts > 0 {
		s.maxAttempts = maxAttempts
	}
	if lockoutWindow > 0 {
		s.lockoutWindow = lockoutWindow
	}
	if refreshTTL > 0 {
		s.refreshTTL = refreshTTL
	}
}

func (s *Service) WithRegistrationAllowed(allowed bool) {
	s.allowRegistration = allowed
}

func (s *Service) Register(ctx context.Context, username, password string) (Session, error) {
	username = strings.TrimSpace(username)

	if err := ValidatePassword(password); err != nil {
		return Session{}, err
	}

	// A closed registration still admits the very first account, so a fresh
	// deployment can be set up. This count is a cheap pre-check; the store
	// re-verifies it inside the insert transaction, where it is race-free.
	if !s.allowRegistration {
		count, err := s.accounts.Count(ctx)
		if err != nil {
			return Session{}, err
		}
		if count > 0 {
			return Session{}, ErrRegistrationClosed
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}

	account, err := s.accounts.Insert(ctx, username, string(hash), !s.allowRegistration)
	if err != nil {
		return Session{}, err
	}

	return s.issueSession(ctx, account)
}

// Login evaluates the lockout ledger before any account lookup or password
// comparison, for every username string supplied. A locked or unknown
// username must cost the same as a known one.
func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	username = strings.TrimSpace(username)

	now := time.Now().UTC()
	failures, oldest, err := s.attempts.RecentFailures(ctx, username, now.Add(-s.lockoutWindow))
	if err != nil {
		return Session{}, err
	}
	if failures >= s.maxAttempts {
		// The lock lifts once the oldest counted failure ages out of the
		// window, so that is the honest wait time.
		retryAfter := oldest.Add(s.lockoutWindow).Sub(now)
		if retryAfter <= 0 || retryAfter > s.lockoutWindow {
			retryAfter = s.lockoutWindow
		}
		return Session{}, LockedError{RetryAfter: retryAfter}
	}

	account, err := s.accounts.ByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if recErr := s.attempts.RecordAttempt(ctx, username, false); recErr != nil {
				return Session{}, recErr
			}
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		if recErr := s.attempts.RecordAttempt(ctx, username, false); recErr != nil {
			return Session{}, recErr
		}
		return Session{}, ErrInvalidCredentials
	}

	if err := s.attempts.RecordAttempt(ctx, username, true); err != nil {
		return Session{}, err
	}

	return s.issueSession(ctx, account)
}

// Refresh redeems a single-use refresh token and rotates it: the redeemed
// string is gone from the store before the replacement is minted, so a
// captured-and-already-used token is worthless.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return Session{}, ErrInvalidRefreshToken
	}

	accountID, err := s.refresh.RedeemRefreshToken(ctx, refreshToken, time.Now().UTC())
	if err != nil {
		return Session{}, err
	}

	account, err := s.accounts.ByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrInvalidRefreshToken
		}
		return Session{}, err
	}

	return s.issueSession(ctx, account)
}

func (s *Service) SetupRequired(ctx context.Context) (bool, error) {
	count, err := s.accounts.Count(ctx)
	if err != nil {
		return false, err
	}

	return count == 0, nil
}

func (s *Service) issueSession(ctx context.Context, account Account) (Session, error) {
	access, err := s.issuer.Issue(Identity{
		Username:  account.Username,
		AccountID: account.ID,
		Admin:     account.Admin,
	})
	if err != nil {
		return Session{}, err
	}

	refreshToken, err := newRefreshToken()
	if err != nil {
		return Session{}, err
	}
	if err := s.refresh.CreateRefreshToken(ctx, account.ID, refreshToken, time.Now().UTC().Add(s.refreshTTL)); err != nil {
		return Session{}, err
	}

	return Session{
		AccessToken:  access,
		RefreshToken: refreshToken,
		Username:     account.Username,
		ExpiresIn:    int64(s.issuer.TTL().Seconds()),
	}, nil
}

func newRefreshToken() (string, error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}
