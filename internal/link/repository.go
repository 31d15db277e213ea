package link

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CodeForURL returns the short code this account already has for a URL, if
// any, so shortening is idempotent per owner.
func (r *Repository) CodeForURL(ctx context.Context, accountID, originalURL string) (string, error) {
	var code string
	err := r.db.QueryRowContext(ctx, `
		SELECT short_code FROM links
		WHERE account_id = $1 AND original_url = $2
	`, accountID, originalURL).Scan(&code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", err
		}
		return "", fmt.Errorf("query code for url: %w", err)
	}

	return code, nil
}

func (r *Repository) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM links WHERE short_code = $1)
	`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check short code: %w", err)
	}

	return exists, nil
}

func (r *Repository) Create(ctx context.Context, accountID, originalURL, code string) (Link, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Link{}, fmt.Errorf("generate link id: %w", err)
	}

	l := Link{
		ID:          id.String(),
		AccountID:   accountID,
		OriginalURL: originalURL,
		ShortCode:   code,
		CreatedAt:   time.Now().UTC(),
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO links (id, account_id, original_url, short_code, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, l.ID, l.AccountID, l.OriginalURL, l.ShortCode, l.CreatedAt)
	if err != nil {
		return Link{}, fmt.Errorf("insert link: %w", err)
	}

	return l, nil
}

// ResolveClick returns the destination for a short code and records the click
// (counter plus history row) in one transaction.
func (r *Repository) ResolveClick(ctx context.Context, code string) (string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin click tx: %w", err)
	}
	defer tx.Rollback()

	var id, originalURL string
	err = tx.QueryRowContext(ctx, `
		SELECT id, original_url FROM links WHERE short_code = $1
	`, code).Scan(&id, &originalURL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", err
		}
		return "", fmt.Errorf("resolve short code: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE links SET clicks = clicks + 1 WHERE id = $1
	`, id); err != nil {
		return "", fmt.Errorf("increment clicks: %w", err)
	}

	clickID, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate click id: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO click_history (id, link_id, clicked_at)
		VALUES ($1, $2, $3)
	`, clickID.String(), id, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("insert click: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit click tx: %w", err)
	}

	return originalURL, nil
}

func (r *Repository) ByCode(ctx context.Context, accountID, code string) (Link, error) {
	var l Link
	err := r.db.QueryRowContext(ctx, `
		SELECT id, account_id, original_url, short_code, name, clicks, created_at
		FROM links
		WHERE short_code = $1 AND account_id = $2
	`, code, accountID).Scan(&l.ID, &l.AccountID, &l.OriginalURL, &l.ShortCode, &l.Name, &l.Clicks, &l.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Link{}, err
		}
		return Link{}, fmt.Errorf("query link by code: %w", err)
	}

	return l, nil
}

func (r *Repository) ListByAccount(ctx context.Context, accountID string) ([]Link, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, account_id, original_url, short_code, name, clicks, created_at
		FROM links
		WHERE account_id = $1
		ORDER BY created_at DESC
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	defer rows.Close()

	links := make([]Link, 0)
	for rows.Next() {
		var l Link
		if err := rows.Scan(&l.ID, &l.AccountID, &l.OriginalURL, &l.ShortCode, &l.Name, &l.Clicks, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan link: %w", err)
		}
		links = append(links, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate links: %w", err)
	}

	return links, nil
}

func (r *Repository) Delete(ctx context.Context, accountID, code string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM links WHERE short_code = $1 AND account_id = $2
	`, code, accountID)
	if err != nil {
		return fmt.Errorf("delete link: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete link rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	return nil
}

func (r *Repository) UpdateName(ctx context.Context, accountID, code string, name *string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE links SET name = $3 WHERE short_code = $1 AND account_id = $2
	`, code, accountID, name)
	if err != nil {
		return fmt.Errorf("update link name: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update link name rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	return nil
}

func (r *Repository) ClickHistory(ctx context.Context, accountID, code string) (ClickStats, error) {
	l, err := r.ByCode(ctx, accountID, code)
	if err != nil {
		return ClickStats{}, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT clicked_at FROM click_history
		WHERE link_id = $1
		ORDER BY clicked_at DESC
	`, l.ID)
	if err != nil {
		return ClickStats{}, fmt.Errorf("query click history: %w", err)
	}
	defer rows.Close()

	stats := ClickStats{TotalClicks: l.Clicks, History: make([]ClickEntry, 0)}
	for rows.Next() {
		var entry ClickEntry
		if err := rows.Scan(&entry.ClickedAt); err != nil {
			return ClickStats{}, fmt.Errorf("scan click: %w", err)
		}
		stats.History = append(stats.History, entry)
	}

	if err := rows.Err(); err != nil {
		return ClickStats{}, fmt.Errorf("iterate clicks: %w", err)
	}

	return stats, nil
}

// OwnerByCode is used by abuse moderation to find whose link was reported.
func (r *Repository) OwnerByCode(ctx context.Context, code string) (string, error) {
	var accountID string
	err := r.db.QueryRowContext(ctx, `
		SELECT account_id FROM links WHERE short_code = $1
	`, code).Scan(&accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", err
		}
		return "", fmt.Errorf("query link owner: %w", err)
	}

	return accountID, nil
}

func (r *Repository) DeleteByCode(ctx context.Context, code string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM links WHERE short_code = $1`, code); err != nil {
		return fmt.Errorf("delete link by code: %w", err)
	}

	return nil
}

func (r *Repository) Totals(ctx context.Context) (int64, int64, error) {
	var totalLinks, totalClicks int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(clicks), 0) FROM links
	`).Scan(&totalLinks, &totalClicks)
	if err != nil {
		return 0, 0, fmt.Errorf("query link totals: %w", err)
	}

	return totalLinks, totalClicks, nil
}

func (r *Repository) CleanupOldClicks(ctx context.Context, retention time.Duration, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	cutoff := time.Now().UTC().Add(-retention)

	res, err := r.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT id
			FROM click_history
			WHERE clicked_at < $1
			ORDER BY clicked_at ASC
			LIMIT $2
		)
		DELETE FROM click_history c
		USING stale
		WHERE c.id = stale.id
	`, cutoff, batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete old clicks: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("old clicks rows affected: %w", err)
	}

	return affected, nil
}
