package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"market_relay/internal/api"
	"market_relay/internal/app"
	"market_relay/internal/engine"
	"market_relay/internal/infra/upstream"
	"market_relay/internal/news"
	"market_relay/internal/relay"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	// 1. Pprof Server (for performance profiling)
	go func() {
		// Localhost only for security
		slog.Info("Pprof server started on localhost:6060")
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			slog.Error("Pprof server failed", slog.Any("error", err))
		}
	}()

	// 2. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(); err != nil {
		slog.Error("Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	cfg := bootstrap.Config

	// 3. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Relay core: registry, stats, dispatcher, aggregation engine
	registry := relay.NewRegistry()
	stats := relay.NewStats()
	dispatcher := relay.NewDispatcher(registry, stats)
	aggregator := engine.NewAggregator()

	// 5. Periodic Reporter
	reporter := relay.NewReporter(aggregator, registry, dispatcher, stats, cfg.Relay.ReportTopChannels)
	go reporter.Run(ctx)

	// 6. Upstream feed client
	feed := upstream.NewClient(
		cfg.Upstream.URL,
		time.Duration(cfg.Upstream.RetryDelaySec)*time.Second,
		aggregator,
		dispatcher,
	)
	if err := feed.Connect(ctx); err != nil {
		slog.Error("Failed to start upstream client", slog.Any("error", err))
	}
	defer feed.Disconnect()
	slog.InfoContext(ctx, "Upstream client started", slog.String("url", cfg.Upstream.URL))

	// 7. News poller (optional)
	if len(cfg.News.Feeds) > 0 {
		fetcher := news.NewFetcher(
			cfg.News.Feeds,
			cfg.News.PerSourceLimit,
			cfg.News.Channel,
			time.Duration(cfg.News.PollIntervalSec)*time.Second,
			bootstrap.Store,
			dispatcher,
		)
		if err := fetcher.Start(ctx); err != nil {
			slog.Error("Failed to start news poller", slog.Any("error", err))
		}
		defer fetcher.Stop()
		slog.InfoContext(ctx, "News poller started", slog.Int("feeds", len(cfg.News.Feeds)))
	}

	// 8. HTTP/WebSocket server
	server := api.NewServer(cfg, registry, bootstrap.Store)
	go func() {
		if err := server.Start(ctx); err != nil {
			slog.Error("HTTP server failed", slog.Any("error", err))
			stop()
		}
	}()

	slog.InfoContext(ctx, "Market relay fully operational. Press Ctrl+C to exit.")

	// Wait for shutdown signal
	<-ctx.Done()

	slog.Info("Shutting down gracefully...")
}
