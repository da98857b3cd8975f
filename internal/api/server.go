package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"market_relay/internal/domain"
	"market_relay/internal/infra"
	"market_relay/internal/relay"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	cache "github.com/patrickmn/go-cache"
)

// Cache TTLs per endpoint family, mirroring how volatile each data set is.
const (
	overviewTTL     = 5 * time.Minute
	fundingTTL      = time.Minute
	openInterestTTL = time.Minute
	newsTTL         = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server is the single HTTP surface of the relay: the /ws subscriber
// endpoint plus the REST analytics routes. Analytics responses proxy
// third-party market APIs behind an expiring cache and degrade to synthetic
// figures rather than surfacing upstream failures.
type Server struct {
	cfg      *infra.Config
	registry *relay.Registry
	articles domain.ArticleRepository

	engine     *gin.Engine
	cache      *cache.Cache
	httpClient *http.Client
	srv        *http.Server
	startedAt  time.Time
}

// NewServer wires routes over the shared relay state. articles may be nil
// when the news poller is disabled.
func NewServer(cfg *infra.Config, registry *relay.Registry, articles domain.ArticleRepository) *Server {
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:        cfg,
		registry:   registry,
		articles:   articles,
		engine:     gin.New(),
		cache:      cache.New(time.Minute, 5*time.Minute),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		startedAt:  time.Now(),
	}

	s.engine.Use(gin.Recovery())
	s.engine.Use(corsMiddleware())
	s.setupRoutes()
	return s
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Origin, Cache-Control")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) setupRoutes() {
	s.engine.GET("/api/health", s.getHealth)
	s.engine.GET("/api/market-overview", s.getMarketOverview)
	s.engine.GET("/api/funding-rates/:symbol", s.getFundingRates)
	s.engine.GET("/api/open-interest/:symbol", s.getOpenInterest)
	s.engine.GET("/api/news", s.getNews)

	s.engine.GET("/ws", s.handleWebSocket)
}

// Start serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.srv = &http.Server{Addr: addr, Handler: s.engine}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutdownCtx)
	}()

	slog.Info("HTTP server listening", slog.String("addr", addr))
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// handleWebSocket upgrades a downstream subscriber and hands it to the
// relay's connection handler.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("Failed to upgrade websocket", slog.Any("error", err))
		return
	}

	client := relay.NewClient(conn, s.registry, s.cfg.Relay.SendBuffer)
	client.Start()
	slog.Info("Subscriber connected", slog.String("remote", conn.RemoteAddr().String()))
}

func (s *Server) getHealth(c *gin.Context) {
	snap := infra.GlobalMetrics.Snapshot()
	channels, subscriptions := s.registry.Counts()

	c.JSON(http.StatusOK, gin.H{
		"status":             "ok",
		"uptime_seconds":     int(time.Since(s.startedAt).Seconds()),
		"connections":        snap.ActiveConnections,
		"active_channels":    channels,
		"subscriptions":      subscriptions,
		"upstream_connected": snap.UpstreamConnected,
		"frames_processed":   snap.FramesProcessed,
		"decode_errors":      snap.DecodeErrors,
	})
}

func (s *Server) getNews(c *gin.Context) {
	if cached, ok := s.cache.Get("news"); ok {
		c.JSON(http.StatusOK, cached)
		return
	}

	payload := gin.H{"articles": []domain.NewsArticle{}, "timestamp": time.Now().UnixMilli()}
	if s.articles != nil {
		articles, err := s.articles.RecentArticles(20)
		if err != nil {
			slog.Warn("Failed to load recent articles", slog.Any("error", err))
		} else {
			payload["articles"] = articles
		}
	}

	s.cache.Set("news", payload, newsTTL)
	c.JSON(http.StatusOK, payload)
}

func (s *Server) getMarketOverview(c *gin.Context) {
	if cached, ok := s.cache.Get("market_overview"); ok {
		c.JSON(http.StatusOK, cached)
		return
	}

	symbol := s.cfg.API.OverviewSymbol
	payload, err := s.fetchMarketOverview(c.Request.Context(), symbol)
	if err != nil {
		slog.Warn("Market overview fetch failed, serving synthetic data", slog.Any("error", err))
		payload = syntheticOverview(symbol)
	}

	s.cache.Set("market_overview", payload, overviewTTL)
	c.JSON(http.StatusOK, payload)
}

func (s *Server) getFundingRates(c *gin.Context) {
	symbol := c.Param("symbol")
	key := "funding:" + symbol
	if cached, ok := s.cache.Get(key); ok {
		c.JSON(http.StatusOK, cached)
		return
	}

	payload, err := s.fetchFundingRate(c.Request.Context(), symbol)
	if err != nil {
		slog.Warn("Funding rate fetch failed, serving synthetic data",
			slog.String("symbol", symbol), slog.Any("error", err))
		payload = syntheticFundingRate(symbol)
	}

	s.cache.Set(key, payload, fundingTTL)
	c.JSON(http.StatusOK, payload)
}

func (s *Server) getOpenInterest(c *gin.Context) {
	symbol := c.Param("symbol")
	key := "oi:" + symbol
	if cached, ok := s.cache.Get(key); ok {
		c.JSON(http.StatusOK, cached)
		return
	}

	payload, err := s.fetchOpenInterest(c.Request.Context(), symbol)
	if err != nil {
		slog.Warn("Open interest fetch failed, serving synthetic data",
			slog.String("symbol", symbol), slog.Any("error", err))
		payload = syntheticOpenInterest(symbol)
	}

	s.cache.Set(key, payload, openInterestTTL)
	c.JSON(http.StatusOK, payload)
}
