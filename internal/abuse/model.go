package abuse

import "time"

const (
	StatusPending   = "pending"
	StatusDismissed = "dismissed"
	StatusResolved  = "resolved"
)

type Report struct {
	ID            string     `json:"id"`
	ShortCode     string     `json:"short_code"`
	ReporterEmail *string    `json:"reporter_email"`
	Reason        string     `json:"reason"`
	Description   *string    `json:"description"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	ResolvedAt    *time.Time `json:"resolved_at"`
	ResolvedBy    *string    `json:"resolved_by"`

	// Filled by joins for the moderation list view.
	OriginalURL   *string `json:"original_url"`
	OwnerUsername *string `json:"url_owner_username"`
	OwnerID       *string `json:"url_owner_id"`
}
