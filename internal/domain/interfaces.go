package domain

import (
	"context"
	"time"
)

// StreamWorker defines the interface for long-lived websocket connectors.
type StreamWorker interface {
	Connect(ctx context.Context) error
	Disconnect()
}

// Poller defines the interface for periodic background fetch jobs.
type Poller interface {
	Start(ctx context.Context) error
	Stop()
}

// ArticleRepository defines how deduplicated news articles are persisted.
type ArticleRepository interface {
	SaveArticle(a *NewsArticle) error
	HasArticle(url string) (bool, error)
	RecentArticles(limit int) ([]NewsArticle, error)
	PruneOlderThan(cutoff time.Time) error
}
