package app

import (
	"log/slog"
	"os"

	"market_relay/internal/event"
	"market_relay/internal/infra"
	"market_relay/internal/infra/storage"
)

const defaultConfigPath = "configs/config.yaml"

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config *infra.Config
	Store  *storage.Store
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize performs core system initialization (config, logger, DB).
func (b *Bootstrap) Initialize() error {
	slog.Info("Bootstrapping market relay...")

	// 1. Load Config
	path := os.Getenv("RELAY_CONFIG")
	if path == "" {
		path = defaultConfigPath
	}
	cfg, err := infra.LoadConfig(path)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	// 3. Initialize Storage (DB)
	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return err
	}
	b.Store = store
	slog.Info("Database initialized", slog.String("path", cfg.Storage.Path))

	// 4. Pre-warm the trade pool before the stream starts
	event.Warmup()

	return nil
}
