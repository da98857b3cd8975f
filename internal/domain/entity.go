package domain

import (
	"time"
)

// NewsArticle is one deduplicated headline pulled from an RSS source. The
// URL is the dedup key: an article is broadcast and stored at most once.
type NewsArticle struct {
	ID          uint      `gorm:"primaryKey" json:"-"`
	Title       string    `json:"title"`
	Summary     string    `json:"description"`
	URL         string    `gorm:"uniqueIndex" json:"url"`
	Source      string    `gorm:"index" json:"source"`
	Sentiment   string    `json:"sentiment"` // "bullish", "bearish", "neutral"
	PublishedAt int64     `gorm:"index" json:"published_at"`
	CreatedAt   time.Time `json:"-"`
}
