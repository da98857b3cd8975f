package news

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"sync"
	"time"
	"unicode/utf8"

	"market_relay/internal/domain"
	"market_relay/internal/relay"

	"github.com/mmcdole/gofeed"
)

const (
	maxSummaryLen    = 200
	articleRetention = 7 * 24 * time.Hour
)

var tagPattern = regexp.MustCompile(`<[^>]+>`)

// Message is the broadcast shape for a fresh headline.
type Message struct {
	Type string             `json:"type"`
	News domain.NewsArticle `json:"news"`
}

// Fetcher polls a set of RSS feeds, deduplicates articles by URL against the
// store and broadcasts anything new on the configured channel. Feed failures
// are logged and retried on the next tick; one dead source never blocks the
// others.
type Fetcher struct {
	feeds          map[string]string
	perSourceLimit int
	channel        string
	interval       time.Duration

	store      domain.ArticleRepository
	dispatcher *relay.Dispatcher
	parser     *gofeed.Parser

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewFetcher creates a news fetcher over the given feed map
// (source name -> RSS URL).
func NewFetcher(feeds map[string]string, perSourceLimit int, channel string, interval time.Duration,
	store domain.ArticleRepository, dispatcher *relay.Dispatcher) *Fetcher {
	return &Fetcher{
		feeds:          feeds,
		perSourceLimit: perSourceLimit,
		channel:        channel,
		interval:       interval,
		store:          store,
		dispatcher:     dispatcher,
		parser:         gofeed.NewParser(),
	}
}

// Start begins polling. The first fetch happens immediately.
func (f *Fetcher) Start(ctx context.Context) error {
	ctx, f.cancel = context.WithCancel(ctx)

	f.fetchAll(ctx)

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("News polling panic recovered", slog.Any("panic", r))
			}
		}()

		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				slog.Info("News polling stopped")
				return
			case <-ticker.C:
				f.fetchAll(ctx)
			}
		}
	}()

	return nil
}

// Stop cancels polling and waits for the loop to exit.
func (f *Fetcher) Stop() {
	if f.cancel != nil {
		f.cancel()
	}
	f.wg.Wait()
}

// fetchAll walks every source once and publishes articles not seen before.
// A source that fails with a non-retriable error (the feed URL is wrong, not
// the network) is dropped from the rotation instead of being hammered every
// tick. Old articles are pruned afterwards.
func (f *Fetcher) fetchAll(ctx context.Context) {
	for source, url := range f.feeds {
		articles, err := f.fetchSource(ctx, source, url)
		if err != nil {
			if !domain.IsRetriable(err) {
				slog.Warn("Dropping news source",
					slog.String("source", source), slog.Any("error", err))
				delete(f.feeds, source)
			} else {
				slog.Warn("News feed fetch failed",
					slog.String("source", source), slog.Any("error", err))
			}
			continue
		}
		f.publishNew(articles)
	}

	cutoff := time.Now().Add(-articleRetention)
	if err := f.store.PruneOlderThan(cutoff); err != nil {
		slog.Warn("Article prune failed", slog.Any("error", err))
	}
}

func (f *Fetcher) fetchSource(ctx context.Context, source, url string) ([]domain.NewsArticle, error) {
	feed, err := f.parser.ParseURLWithContext(url, ctx)
	if err != nil {
		var httpErr gofeed.HTTPError
		if errors.As(err, &httpErr) &&
			httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 &&
			httpErr.StatusCode != http.StatusTooManyRequests {
			return nil, domain.NewFatalNetworkError("fetch "+source, err)
		}
		return nil, domain.NewNetworkError("fetch "+source, err)
	}

	limit := f.perSourceLimit
	if limit <= 0 || limit > len(feed.Items) {
		limit = len(feed.Items)
	}

	articles := make([]domain.NewsArticle, 0, limit)
	for _, item := range feed.Items[:limit] {
		articles = append(articles, buildArticle(source, item))
	}
	return articles, nil
}

func (f *Fetcher) publishNew(articles []domain.NewsArticle) {
	for i := range articles {
		a := &articles[i]
		if a.URL == "" {
			continue
		}

		seen, err := f.store.HasArticle(a.URL)
		if err != nil {
			slog.Warn("News dedup lookup failed", slog.Any("error", err))
			continue
		}
		if seen {
			continue
		}

		if err := f.store.SaveArticle(a); err != nil {
			slog.Warn("Failed to persist article",
				slog.String("url", a.URL), slog.Any("error", err))
			continue
		}

		f.dispatcher.Publish(f.channel, Message{Type: "news", News: *a})
		slog.Debug("New headline", slog.String("source", a.Source), slog.String("title", a.Title))
	}
}

func buildArticle(source string, item *gofeed.Item) domain.NewsArticle {
	publishedAt := time.Now().UnixMilli()
	if item.PublishedParsed != nil {
		publishedAt = item.PublishedParsed.UnixMilli()
	} else if item.UpdatedParsed != nil {
		publishedAt = item.UpdatedParsed.UnixMilli()
	}

	return domain.NewsArticle{
		Title:       item.Title,
		Summary:     cleanSummary(item.Description),
		URL:         item.Link,
		Source:      source,
		Sentiment:   AnalyzeSentiment(item.Title),
		PublishedAt: publishedAt,
	}
}

// cleanSummary strips markup and caps the length for broadcast. The cut
// backs up to a rune boundary so truncation never emits invalid UTF-8.
func cleanSummary(s string) string {
	s = tagPattern.ReplaceAllString(s, "")
	if len(s) > maxSummaryLen {
		cut := maxSummaryLen
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	return s
}
