package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"market_relay/internal/domain"
	"market_relay/internal/infra"
	"market_relay/internal/infra/storage"
	"market_relay/internal/relay"

	"github.com/gorilla/websocket"
)

func testConfig(binanceURL, futuresURL string) *infra.Config {
	cfg := &infra.Config{}
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Relay.SendBuffer = 16
	cfg.API.OverviewSymbol = "BTCUSDT"
	cfg.API.BinanceRestURL = binanceURL
	cfg.API.BinanceFuturesURL = futuresURL
	cfg.Logging.Level = "info"
	return cfg
}

// fakeBinance serves canned ticker/klines/futures responses.
func fakeBinance(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v3/ticker/24hr", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"lastPrice":          "97000.50",
			"priceChange":        "1200.25",
			"priceChangePercent": "1.25",
			"volume":             "35000.5",
			"highPrice":          "98000",
			"lowPrice":           "95500",
			"weightedAvgPrice":   "96800",
		})
	})
	mux.HandleFunc("/api/v3/klines", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([][]any{
			{float64(1700000000000), "96000", "96100", "95900", "96050", "12.5"},
			{float64(1700000060000), "96050", "96200", "96000", "96150", "8.2"},
		})
	})
	mux.HandleFunc("/fapi/v1/premiumIndex", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"symbol":          "BTCUSDT",
			"markPrice":       "97010.00",
			"lastFundingRate": "0.0001",
			"nextFundingTime": int64(1700010000000),
		})
	})
	mux.HandleFunc("/fapi/v1/openInterest", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"symbol":       "BTCUSDT",
			"openInterest": "61234.5",
			"time":         int64(1700000000000),
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func getJSONBody(t *testing.T, handler http.Handler, path string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var body map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("GET %s: response is not JSON: %v", path, err)
		}
	}
	return rec.Code, body
}

func TestServer_Health(t *testing.T) {
	registry := relay.NewRegistry()
	s := NewServer(testConfig("http://unused", "http://unused"), registry, nil)

	code, body := getJSONBody(t, s.Handler(), "/api/health")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if body["status"] != "ok" {
		t.Errorf("Expected status ok, got %v", body["status"])
	}
	for _, key := range []string{"active_channels", "subscriptions", "connections", "upstream_connected", "frames_processed"} {
		if _, present := body[key]; !present {
			t.Errorf("Health response missing %q", key)
		}
	}
}

func TestServer_MarketOverviewLive(t *testing.T) {
	binance := fakeBinance(t)
	s := NewServer(testConfig(binance.URL, binance.URL), relay.NewRegistry(), nil)

	code, body := getJSONBody(t, s.Handler(), "/api/market-overview")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if body["data_source"] != "binance_live" {
		t.Errorf("Expected live data source, got %v", body["data_source"])
	}
	if body["current_price"] != 97000.50 {
		t.Errorf("Expected parsed last price, got %v", body["current_price"])
	}
	historical, ok := body["historical_data"].([]any)
	if !ok || len(historical) != 2 {
		t.Fatalf("Expected 2 historical points, got %v", body["historical_data"])
	}
	first := historical[0].(map[string]any)
	wantVWAP := (96100.0 + 95900.0 + 96050.0) / 3
	if first["vwap"] != wantVWAP {
		t.Errorf("Expected kline vwap %f, got %v", wantVWAP, first["vwap"])
	}
}

func TestServer_MarketOverviewSyntheticFallback(t *testing.T) {
	s := NewServer(testConfig("http://127.0.0.1:1", "http://127.0.0.1:1"), relay.NewRegistry(), nil)

	code, body := getJSONBody(t, s.Handler(), "/api/market-overview")
	if code != http.StatusOK {
		t.Fatalf("Fallback must still answer 200, got %d", code)
	}
	if body["data_source"] != "synthetic" {
		t.Errorf("Expected synthetic data source, got %v", body["data_source"])
	}
	if body["symbol"] != "BTCUSDT" {
		t.Errorf("Expected configured symbol, got %v", body["symbol"])
	}
	if historical, ok := body["historical_data"].([]any); !ok || len(historical) != 60 {
		t.Error("Synthetic overview should still carry 60 historical points")
	}
}

func TestServer_FundingRatesLive(t *testing.T) {
	binance := fakeBinance(t)
	s := NewServer(testConfig(binance.URL, binance.URL), relay.NewRegistry(), nil)

	code, body := getJSONBody(t, s.Handler(), "/api/funding-rates/BTCUSDT")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	if body["funding_rate"] != 0.0001 {
		t.Errorf("Expected parsed funding rate, got %v", body["funding_rate"])
	}
	if body["data_source"] != "binance_live" {
		t.Errorf("Expected live data source, got %v", body["data_source"])
	}
}

func TestServer_OpenInterestSyntheticFallback(t *testing.T) {
	s := NewServer(testConfig("http://127.0.0.1:1", "http://127.0.0.1:1"), relay.NewRegistry(), nil)

	code, body := getJSONBody(t, s.Handler(), "/api/open-interest/ETHUSDT")
	if code != http.StatusOK {
		t.Fatalf("Fallback must still answer 200, got %d", code)
	}
	if body["data_source"] != "synthetic" {
		t.Errorf("Expected synthetic data source, got %v", body["data_source"])
	}
	if body["symbol"] != "ETHUSDT" {
		t.Errorf("Expected requested symbol echoed, got %v", body["symbol"])
	}
}

func TestServer_OverviewCacheHit(t *testing.T) {
	binance := fakeBinance(t)
	s := NewServer(testConfig(binance.URL, binance.URL), relay.NewRegistry(), nil)

	_, first := getJSONBody(t, s.Handler(), "/api/market-overview")

	// Kill the upstream; the cached payload must keep serving.
	binance.Close()
	_, second := getJSONBody(t, s.Handler(), "/api/market-overview")

	if second["data_source"] != "binance_live" {
		t.Error("Expected cached live payload after upstream loss")
	}
	if first["timestamp"] != second["timestamp"] {
		t.Error("Cached payload should be served unchanged")
	}
}

func TestServer_News(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	article := &domain.NewsArticle{
		Title:       "Bitcoin hits record high",
		Summary:     "Another milestone.",
		URL:         "https://example.com/record",
		Source:      "TestFeed",
		Sentiment:   "bullish",
		PublishedAt: time.Now().UnixMilli(),
	}
	if err := store.SaveArticle(article); err != nil {
		t.Fatalf("SaveArticle failed: %v", err)
	}

	s := NewServer(testConfig("http://unused", "http://unused"), relay.NewRegistry(), store)

	code, body := getJSONBody(t, s.Handler(), "/api/news")
	if code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", code)
	}
	articles, ok := body["articles"].([]any)
	if !ok || len(articles) != 1 {
		t.Fatalf("Expected 1 article, got %v", body["articles"])
	}
	got := articles[0].(map[string]any)
	if got["title"] != "Bitcoin hits record high" {
		t.Errorf("Wrong article returned: %v", got)
	}
}

func TestServer_NewsWithoutStore(t *testing.T) {
	s := NewServer(testConfig("http://unused", "http://unused"), relay.NewRegistry(), nil)

	code, body := getJSONBody(t, s.Handler(), "/api/news")
	if code != http.StatusOK {
		t.Fatalf("Expected 200 without a store, got %d", code)
	}
	if articles, ok := body["articles"].([]any); !ok || len(articles) != 0 {
		t.Errorf("Expected empty article list, got %v", body["articles"])
	}
}

func TestServer_CORSPreflight(t *testing.T) {
	s := NewServer(testConfig("http://unused", "http://unused"), relay.NewRegistry(), nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204 for preflight, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Missing CORS header")
	}
}

func TestServer_WebSocketEndpoint(t *testing.T) {
	registry := relay.NewRegistry()
	s := NewServer(testConfig("http://unused", "http://unused"), registry, nil)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("WebSocket dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := conn.WriteJSON(map[string]string{"action": "subscribe", "channel": "trade:BTCUSDT"}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ack map[string]string
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if ack["status"] != "success" {
		t.Errorf("Expected subscribe ack over /ws, got %+v", ack)
	}
}
