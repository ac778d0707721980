package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func newTestClient(baseURL string) *LunarCrush {
	return NewLunarCrush(Options{
		BaseURL:   baseURL,
		APIKey:    "test-key",
		Timeout:   time.Second,
		UserAgent: "test",
		MaxCoins:  100,
	}, noopLogger())
}

func listingBody(coins ...map[string]any) map[string]any {
	return map[string]any{"data": coins}
}

func coin(symbol string, sentiment, marketCap float64) map[string]any {
	return map[string]any{
		"id":                 1,
		"symbol":             symbol,
		"name":               symbol,
		"price":              100.5,
		"sentiment":          sentiment,
		"interactions_24h":   1000,
		"percent_change_24h": 2.5,
		"galaxy_score":       60,
		"market_cap":         marketCap,
	}
}

func TestFetchMetricsFiltersRequestedSymbols(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/coins/list/v1" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Fatalf("missing bearer auth, got %q", got)
		}
		_ = json.NewEncoder(w).Encode(listingBody(
			coin("BTC", 75, 1000),
			coin("ETH", 60, 500),
			coin("DOGE", 40, 10),
		))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	metrics, err := client.FetchMetrics(context.Background(), []string{"btc", "ETH"})
	if err != nil {
		t.Fatalf("FetchMetrics failed: %v", err)
	}

	if len(metrics) != 2 {
		t.Fatalf("expected 2 metrics, got %d", len(metrics))
	}
	if metrics[0].Symbol != "BTC" || metrics[1].Symbol != "ETH" {
		t.Fatalf("unexpected symbols: %s, %s", metrics[0].Symbol, metrics[1].Symbol)
	}
}

func TestFetchMetricsDedupKeepsGreatestMarketCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(listingBody(
			coin("BTC", 10, 100),
			coin("BTC", 90, 200),
		))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	metrics, err := client.FetchMetrics(context.Background(), []string{"BTC"})
	if err != nil {
		t.Fatalf("FetchMetrics failed: %v", err)
	}

	if len(metrics) != 1 {
		t.Fatalf("expected 1 metric after dedup, got %d", len(metrics))
	}
	if !metrics[0].MarketCap.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("dedup should keep market cap 200, got %s", metrics[0].MarketCap)
	}
	if !metrics[0].Sentiment.Equal(decimal.NewFromInt(90)) {
		t.Fatalf("dedup kept the wrong record, sentiment %s", metrics[0].Sentiment)
	}
}

func TestFetchMetricsCapsUnfilteredListing(t *testing.T) {
	coins := make([]map[string]any, 0, 10)
	for i := 0; i < 10; i++ {
		coins = append(coins, coin(string(rune('A'+i)), 50, float64(i)))
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"data": coins})
	}))
	defer srv.Close()

	client := NewLunarCrush(Options{BaseURL: srv.URL, MaxCoins: 3, Timeout: time.Second}, noopLogger())
	metrics, err := client.FetchMetrics(context.Background(), nil)
	if err != nil {
		t.Fatalf("FetchMetrics failed: %v", err)
	}
	if len(metrics) != 3 {
		t.Fatalf("expected listing capped at 3, got %d", len(metrics))
	}
}

func TestFetchAllErrorTaxonomy(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusInternalServerError, ErrUpstreamUnavailable},
		{http.StatusBadGateway, ErrUpstreamUnavailable},
	}

	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))

		client := newTestClient(srv.URL)
		_, err := client.FetchAll(context.Background())
		if !errors.Is(err, tc.want) {
			t.Errorf("status %d: got %v, want %v", tc.status, err, tc.want)
		}
		srv.Close()
	}
}

func TestFetchAllMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	if _, err := client.FetchAll(context.Background()); !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("expected ErrMalformedResponse, got %v", err)
	}
}

func TestFetchAllRetriesTransientFailures(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(listingBody(coin("BTC", 75, 1000)))
	}))
	defer srv.Close()

	client := NewLunarCrush(Options{
		BaseURL:       srv.URL,
		Timeout:       time.Second,
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
	}, noopLogger())

	metrics, err := client.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if len(metrics) != 1 {
		t.Fatalf("expected 1 metric, got %d", len(metrics))
	}
}

func TestFetchAllDoesNotRetryAuthFailures(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewLunarCrush(Options{
		BaseURL:       srv.URL,
		Timeout:       time.Second,
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
	}, noopLogger())

	if _, err := client.FetchAll(context.Background()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("auth failures must not be retried, got %d attempts", attempts)
	}
}

func TestFetchCoinNormalizesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/coins/BTC/v1" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"config": map[string]any{
				"id":     "btc",
				"name":   "Bitcoin",
				"symbol": "BTC",
				"topic":  "bitcoin",
			},
			"data": map[string]any{
				"id":                 1,
				"name":               "Bitcoin",
				"symbol":             "BTC",
				"price":              65000.25,
				"market_cap":         1280000000,
				"percent_change_24h": -1.2,
				"percent_change_7d":  4.1,
				"percent_change_30d": 9.9,
				"galaxy_score":       72,
				"alt_rank":           3,
				"volatility":         0.02,
				"market_cap_rank":    1,
			},
		})
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	metric, err := client.FetchCoin(context.Background(), "btc")
	if err != nil {
		t.Fatalf("FetchCoin failed: %v", err)
	}
	if metric == nil {
		t.Fatal("expected a metric")
	}

	if metric.Symbol != "BTC" || metric.Topic != "bitcoin" {
		t.Fatalf("unexpected normalization: %+v", metric)
	}
	// The per-symbol endpoint lacks social fields; they are synthesized as zero.
	if !metric.Sentiment.IsZero() || metric.Interactions24h != 0 || metric.SocialVolume24h != 0 || !metric.SocialDominance.IsZero() {
		t.Fatalf("social fields should be zero, got %+v", metric)
	}
	if metric.Logo != "https://cdn.lunarcrush.com/btc.png" {
		t.Fatalf("unexpected logo url %s", metric.Logo)
	}
}

func TestFetchCoinNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	metric, err := client.FetchCoin(context.Background(), "NOPE")
	if err != nil {
		t.Fatalf("404 should not error: %v", err)
	}
	if metric != nil {
		t.Fatalf("expected nil metric for unknown symbol, got %+v", metric)
	}
}

func TestTopCoinsSortsByMarketCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(listingBody(
			coin("ETH", 60, 500),
			coin("BTC", 75, 1000),
			coin("DOGE", 40, 10),
		))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	top, err := client.TopCoins(context.Background(), 2)
	if err != nil {
		t.Fatalf("TopCoins failed: %v", err)
	}
	if len(top) != 2 || top[0].Symbol != "BTC" || top[1].Symbol != "ETH" {
		t.Fatalf("unexpected top coins: %+v", top)
	}
}
