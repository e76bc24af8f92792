package domain

import "time"

// NewsImage is a sized thumbnail attached to a news article.
type NewsImage struct {
	Size string `json:"size"`
	URL  string `json:"url"`
}

// NewsItem is a single news article.
type NewsItem struct {
	ID        int64       `json:"id"`
	Headline  string      `json:"headline"`
	Summary   string      `json:"summary"`
	Content   string      `json:"content"`
	Author    string      `json:"author"`
	Source    string      `json:"source"`
	Symbols   []string    `json:"symbols"`
	URL       string      `json:"url"`
	Images    []NewsImage `json:"images"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}
