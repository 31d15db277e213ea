package link

import "time"

type Link struct {
	ID          string    `json:"-"`
	AccountID   string    `json:"-"`
	OriginalURL string    `json:"original_url"`
	ShortCode   string    `json:"short_code"`
	Name        *string   `json:"name"`
	Clicks      int64     `json:"clicks"`
	CreatedAt   time.Time `json:"-"`
}

type ClickEntry struct {
	ClickedAt time.Time `json:"clicked_at"`
}

type ClickStats struct {
	TotalClicks int64        `json:"total_clicks"`
	History     []ClickEntry `json:"history"`
}
