package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

type CleanupResult struct {
	DeletedRefreshTokens int64 `json:"deleted_refresh_tokens"`
	DeletedLoginAttempts int64 `json:"deleted_login_attempts"`
}

func (r *Repository) ByUsername(ctx context.Context, username string) (Account, error) {
	var account Account
	err := r.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, is_admin, created_at
		FROM accounts
		WHERE username = $1
	`, username).Scan(&account.ID, &account.Username, &account.PasswordHash, &account.Admin, &account.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, err
		}
		return Account{}, fmt.Errorf("query account by username: %w", err)
	}

	return account, nil
}

func (r *Repository) ByID(ctx context.Context, id string) (Account, error) {
	var account Account
	err := r.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, is_admin, created_at
		FROM accounts
		WHERE id = $1
	`, id).Scan(&account.ID, &account.Username, &account.PasswordHash, &account.Admin, &account.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, err
		}
		return Account{}, fmt.Errorf("query account by id: %w", err)
	}

	return account, nil
}

// Insert creates an account. The first account ever created is elevated.
// Under READ COMMITTED a plain count-then-insert would let two concurrent
// registrations both observe an empty table, so the transaction takes a table
// lock first; concurrent inserts serialize on it and exactly one sees the
// zero count. The same serialized count enforces mustBeFirst, which callers
// set when registration is closed and only the setup account may be created.
func (r *Repository) Insert(ctx context.Context, username, passwordHash string, mustBeFirst bool) (Account, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Account{}, fmt.Errorf("generate account id: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Account{}, fmt.Errorf("begin insert account tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `LOCK TABLE accounts IN SHARE ROW EXCLUSIVE MODE`); err != nil {
		return Account{}, fmt.Errorf("lock accounts table: %w", err)
	}

	var existing int64
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&existing); err != nil {
		return Account{}, fmt.Errorf("count accounts: %w", err)
	}
	if mustBeFirst && existing > 0 {
		return Account{}, ErrRegistrationClosed
	}

	account := Account{
		ID:           id.String(),
		Username:     username,
		PasswordHash: passwordHash,
		Admin:        existing == 0,
		CreatedAt:    time.Now().UTC(),
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO accounts (id, username, password_hash, is_admin, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, account.ID, account.Username, account.PasswordHash, account.Admin, account.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return Account{}, ErrUsernameTaken
		}
		return Account{}, fmt.Errorf("insert account: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Account{}, fmt.Errorf("commit insert account tx: %w", err)
	}

	return account, nil
}

func (r *Repository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}

	return count, nil
}

// Delete removes an account. Refresh tokens, links, and click history go with
// it through ON DELETE CASCADE.
func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete account rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	return nil
}

func (r *Repository) Promote(ctx context.Context, id string) (Account, error) {
	var account Account
	err := r.db.QueryRowContext(ctx, `
		UPDATE accounts
		SET is_admin = TRUE
		WHERE id = $1 AND is_admin = FALSE
		RETURNING id, username, password_hash, is_admin, created_at
	`, id).Scan(&account.ID, &account.Username, &account.PasswordHash, &account.Admin, &account.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, err
		}
		return Account{}, fmt.Errorf("promote account: %w", err)
	}

	return account, nil
}

func (r *Repository) List(ctx context.Context) ([]AccountInfo, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.id, a.username, a.is_admin, a.created_at,
			(SELECT COUNT(*) FROM links l WHERE l.account_id = a.id) AS url_count
		FROM accounts a
		ORDER BY a.created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]AccountInfo, 0)
	for rows.Next() {
		var info AccountInfo
		if err := rows.Scan(&info.ID, &info.Username, &info.Admin, &info.CreatedAt, &info.LinkCount); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts = append(accounts, info)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}

	return accounts, nil
}

func (r *Repository) CreateRefreshToken(ctx context.Context, accountID, token string, expiresAt time.Time) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate refresh token id: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, account_id, token, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, id.String(), accountID, token, expiresAt.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}

	return nil
}

// RedeemRefreshToken consumes a refresh token and returns the owning account
// id. The row lock and the delete share one transaction, so concurrent
// redemptions of the same token serialize and exactly one succeeds. Expired
// rows are never valid; the maintenance sweep, not this path, removes them.
func (r *Repository) RedeemRefreshToken(ctx context.Context, token string, now time.Time) (string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin redeem tx: %w", err)
	}
	defer tx.Rollback()

	var id, accountID string
	err = tx.QueryRowContext(ctx, `
		SELECT id, account_id
		FROM refresh_tokens
		WHERE token = $1 AND expires_at > $2
		FOR UPDATE
	`, token, now.UTC()).Scan(&id, &accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrInvalidRefreshToken
		}
		return "", fmt.Errorf("read refresh token: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE id = $1`, id); err != nil {
		return "", fmt.Errorf("delete redeemed refresh token: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit redeem tx: %w", err)
	}

	return accountID, nil
}

// RecordAttempt appends one immutable ledger row, whether or not the username
// resolves to an account.
func (r *Repository) RecordAttempt(ctx context.Context, username string, success bool) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO login_attempts (username, success, attempted_at)
		VALUES ($1, $2, $3)
	`, username, success, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record login attempt: %w", err)
	}

	return nil
}

func (r *Repository) RecentFailures(ctx context.Context, username string, since time.Time) (int, time.Time, error) {
	var count int
	var oldest sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), MIN(attempted_at)
		FROM login_attempts
		WHERE username = $1 AND success = FALSE AND attempted_at > $2
	`, username, since.UTC()).Scan(&count, &oldest)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("count recent login failures: %w", err)
	}

	return count, oldest.Time, nil
}

func (r *Repository) CleanupStaleAuthData(ctx context.Context, attemptRetention time.Duration, batchSize int) (CleanupResult, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	if attemptRetention <= 0 {
		attemptRetention = 30 * 24 * time.Hour
	}

	attemptCutoff := time.Now().UTC().Add(-attemptRetention)

	deletedTokens, err := r.deleteExpiredRefreshTokens(ctx, batchSize)
	if err != nil {
		return CleanupResult{}, err
	}

	deletedAttempts, err := r.deleteStaleLoginAttempts(ctx, attemptCutoff, batchSize)
	if err != nil {
		return CleanupResult{}, err
	}

	return CleanupResult{
		DeletedRefreshTokens: deletedTokens,
		DeletedLoginAttempts: deletedAttempts,
	}, nil
}

func (r *Repository) deleteExpiredRefreshTokens(ctx context.Context, batchSize int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT id
			FROM refresh_tokens
			WHERE expires_at < NOW()
			ORDER BY created_at ASC
			LIMIT $1
		)
		DELETE FROM refresh_tokens t
		USING stale
		WHERE t.id = stale.id
	`, batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expired refresh tokens rows affected: %w", err)
	}

	return affected, nil
}

func (r *Repository) deleteStaleLoginAttempts(ctx context.Context, cutoff time.Time, batchSize int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT id
			FROM login_attempts
			WHERE attempted_at < $1
			ORDER BY attempted_at ASC
			LIMIT $2
		)
		DELETE FROM login_attempts t
		USING stale
		WHERE t.id = stale.id
	`, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete stale login attempts: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("stale login attempts rows affected: %w", err)
	}

	return affected, nil
}
