package auth

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type fakeAccounts struct {
	accounts        []Account
	byUsernameCalls int

	// staleZeroCount makes Count report an empty table regardless of state,
	// standing in for a concurrent reader whose snapshot predates an insert.
	staleZeroCount bool
}

func (f *fakeAccounts) ByUsername(ctx context.Context, username string) (Account, error) {
	f.byUsernameCalls++
	for _, account := range f.accounts {
		if account.Username == username {
			return account, nil
		}
	}
	return Account{}, sql.ErrNoRows
}

func (f *fakeAccounts) ByID(ctx context.Context, id string) (Account, error) {
	for _, account := range f.accounts {
		if account.ID == id {
			return account, nil
		}
	}
	return Account{}, sql.ErrNoRows
}

func (f *fakeAccounts) Insert(ctx context.Context, username, passwordHash string, mustBeFirst bool) (Account, error) {
	if mustBeFirst && len(f.accounts) > 0 {
		return Account{}, ErrRegistrationClosed
	}
	for _, account := range f.accounts {
		if account.Username == username {
			return Account{}, ErrUsernameTaken
		}
	}

	account := Account{
		ID:           fmt.Sprintf("acc-%d", len(f.accounts)+1),
		Username:     username,
		PasswordHash: passwordHash,
		Admin:        len(f.accounts) == 0,
		CreatedAt:    time.Now().UTC(),
	}
	f.accounts = append(f.accounts, account)
	return account, nil
}

func (f *fakeAccounts) Count(ctx context.Context) (int64, error) {
	if f.staleZeroCount {
		return 0, nil
	}
	return int64(len(f.accounts)), nil
}

type fakeRefresh struct {
	records map[string]RefreshRecord
}

func newFakeRefresh() *fakeRefresh {
	return &fakeRefresh{records: make(map[string]RefreshRecord)}
}

func (f *fakeRefresh) CreateRefreshToken(ctx context.Context, accountID, token string, expiresAt time.Time) error {
	f.records[token] = RefreshRecord{
		ID:        fmt.Sprintf("rt-%d", len(f.records)+1),
		AccountID: accountID,
		Token:     token,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}
	return nil
}

func (f *fakeRefresh) RedeemRefreshToken(ctx context.Context, token string, now time.Time) (string, error) {
	record, ok := f.records[token]
	if !ok || !record.ExpiresAt.After(now) {
		return "", ErrInvalidRefreshToken
	}

	delete(f.records, token)
	return record.AccountID, nil
}

type fakeAttempts struct {
	entries []LoginAttempt
}

func (f *fakeAttempts) RecordAttempt(ctx context.Context, username string, success bool) error {
	f.entries = append(f.entries, LoginAttempt{
		Username:    username,
		Success:     success,
		AttemptedAt: time.Now().UTC(),
	})
	return nil
}

func (f *fakeAttempts) RecentFailures(ctx context.Context, username string, since time.Time) (int, time.Time, error) {
	count := 0
	var oldest time.Time
	for _, entry := range f.entries {
		if entry.Username == username && !entry.Success && entry.AttemptedAt.After(since) {
			count++
			if oldest.IsZero() || entry.AttemptedAt.Before(oldest) {
				oldest = entry.AttemptedAt
			}
		}
	}
	return count, oldest, nil
}
