package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"market_relay/internal/domain"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store persists deduplicated news articles. Aggregates are deliberately
// kept in memory only; the relay recomputes them from the live stream.
type Store struct {
	db *gorm.DB
}

// Open creates (or opens) the SQLite database at path.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Pure Go SQLite
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&domain.NewsArticle{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

// SaveArticle inserts an article. Saving the same URL twice keeps the first
// row untouched and is not an error.
func (s *Store) SaveArticle(a *domain.NewsArticle) error {
	return s.db.Where("url = ?", a.URL).FirstOrCreate(a).Error
}

// HasArticle reports whether an article with this URL is already stored.
func (s *Store) HasArticle(url string) (bool, error) {
	var article domain.NewsArticle
	err := s.db.Select("id").First(&article, "url = ?", url).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// RecentArticles returns up to limit articles, newest first.
func (s *Store) RecentArticles(limit int) ([]domain.NewsArticle, error) {
	var articles []domain.NewsArticle
	err := s.db.Order("published_at DESC").Limit(limit).Find(&articles).Error
	return articles, err
}

// PruneOlderThan deletes articles published before the cutoff.
func (s *Store) PruneOlderThan(cutoff time.Time) error {
	return s.db.Where("published_at < ?", cutoff.UnixMilli()).Delete(&domain.NewsArticle{}).Error
}
