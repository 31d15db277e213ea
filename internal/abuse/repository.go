package abuse

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

func (r *Repository) Insert(ctx context.Context, shortCode, reason string, reporterEmail, description *string) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate report id: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO abuse_reports (id, short_code, reporter_email, reason, description, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id.String(), shortCode, reporterEmail, reason, description, StatusPending, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert abuse report: %w", err)
	}

	return nil
}

func (r *Repository) List(ctx context.Context) ([]Report, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT
			ar.id, ar.short_code, ar.reporter_email, ar.reason, ar.description,
			ar.status, ar.created_at, ar.resolved_at, ar.resolved_by,
			l.original_url, a.username, a.id
		FROM abuse_reports ar
		LEFT JOIN links l ON ar.short_code = l.short_code
		LEFT JOIN accounts a ON l.account_id = a.id
		ORDER BY
			CASE ar.status WHEN $1 THEN 1 WHEN $2 THEN 2 ELSE 3 END,
			ar.created_at DESC
	`, StatusPending, StatusResolved)
	if err != nil {
		return nil, fmt.Errorf("list abuse reports: %w", err)
	}
	defer rows.Close()

	reports := make([]Report, 0)
	for rows.Next() {
		var report Report
		if err := rows.Scan(
			&report.ID, &report.ShortCode, &report.ReporterEmail, &report.Reason, &report.Description,
			&report.Status, &report.CreatedAt, &report.ResolvedAt, &report.ResolvedBy,
			&report.OriginalURL, &report.OwnerUsername, &report.OwnerID,
		); err != nil {
			return nil, fmt.Errorf("scan abuse report: %w", err)
		}
		reports = append(reports, report)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate abuse reports: %w", err)
	}

	return reports, nil
}

func (r *Repository) Get(ctx context.Context, id string) (Report, error) {
	var report Report
	err := r.db.QueryRowContext(ctx, `
		SELECT id, short_code, reporter_email, reason, description, status, created_at, resolved_at, resolved_by
		FROM abuse_reports
		WHERE id = $1
	`, id).Scan(
		&report.ID, &report.ShortCode, &report.ReporterEmail, &report.Reason, &report.Description,
		&report.Status, &report.CreatedAt, &report.ResolvedAt, &report.ResolvedBy,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Report{}, err
		}
		return Report{}, fmt.Errorf("query abuse report: %w", err)
	}

	return report, nil
}

func (r *Repository) MarkResolved(ctx context.Context, id, status, resolverID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE abuse_reports
		SET status = $2, resolved_at = $3, resolved_by = $4
		WHERE id = $1
	`, id, status, time.Now().UTC(), resolverID)
	if err != nil {
		return fmt.Errorf("resolve abuse report: %w", err)
	}

	return nil
}
