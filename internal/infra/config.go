package infra

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"market_relay/internal/domain"

	"gopkg.in/yaml.v3"
)

// Config holds every runtime setting of the relay. Loaded from YAML, then
// overridden by environment variables for anything deployment-specific.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Upstream struct {
		URL           string `yaml:"url"`
		RetryDelaySec int    `yaml:"retry_delay_sec"`
	} `yaml:"upstream"`

	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"server"`

	Relay struct {
		SendBuffer        int `yaml:"send_buffer"`
		ReportTopChannels int `yaml:"report_top_channels"`
	} `yaml:"relay"`

	API struct {
		OverviewSymbol    string `yaml:"overview_symbol"`
		BinanceRestURL    string `yaml:"binance_rest_url"`
		BinanceFuturesURL string `yaml:"binance_futures_url"`
	} `yaml:"api"`

	News struct {
		Channel         string            `yaml:"channel"`
		PollIntervalSec int               `yaml:"poll_interval_sec"`
		PerSourceLimit  int               `yaml:"per_source_limit"`
		Feeds           map[string]string `yaml:"feeds"`
	} `yaml:"news"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "market-relay"
	}
	if c.Upstream.RetryDelaySec == 0 {
		c.Upstream.RetryDelaySec = 5
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}
	if c.Relay.SendBuffer == 0 {
		c.Relay.SendBuffer = 256
	}
	if c.Relay.ReportTopChannels == 0 {
		c.Relay.ReportTopChannels = 5
	}
	if c.API.OverviewSymbol == "" {
		c.API.OverviewSymbol = "BTCUSDT"
	}
	if c.API.BinanceRestURL == "" {
		c.API.BinanceRestURL = "https://api.binance.com"
	}
	if c.API.BinanceFuturesURL == "" {
		c.API.BinanceFuturesURL = "https://fapi.binance.com"
	}
	if c.News.Channel == "" {
		c.News.Channel = "news:crypto"
	}
	if c.News.PollIntervalSec == 0 {
		c.News.PollIntervalSec = 60
	}
	if c.News.PerSourceLimit == 0 {
		c.News.PerSourceLimit = 5
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "data/market_relay.db"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.Upstream.URL, "ws://") && !strings.HasPrefix(c.Upstream.URL, "wss://") {
		return &domain.ConfigError{Field: "upstream.url", Err: fmt.Errorf("not a websocket URL: %q", c.Upstream.URL)}
	}
	if c.Upstream.RetryDelaySec <= 0 {
		return &domain.ConfigError{Field: "upstream.retry_delay_sec", Err: errors.New("must be positive")}
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return &domain.ConfigError{Field: "server.port", Err: fmt.Errorf("out of range: %d", c.Server.Port)}
	}
	if c.Relay.SendBuffer <= 0 {
		return &domain.ConfigError{Field: "relay.send_buffer", Err: errors.New("must be positive")}
	}
	if c.News.PollIntervalSec <= 0 {
		return &domain.ConfigError{Field: "news.poll_interval_sec", Err: errors.New("must be positive")}
	}
	return nil
}

// overrideWithEnv applies environment overrides for deployment settings.
func overrideWithEnv(cfg *Config) {
	if url := os.Getenv("RELAY_UPSTREAM_URL"); url != "" {
		cfg.Upstream.URL = url
	}
	if port := os.Getenv("RELAY_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if path := os.Getenv("RELAY_DB_PATH"); path != "" {
		cfg.Storage.Path = path
	}
	if level := os.Getenv("RELAY_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
}
