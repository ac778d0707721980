package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	coinsListPath = "/coins/list/v1"
	coinPathFmt   = "/coins/%s/v1"
	logoCDNFmt    = "https://cdn.lunarcrush.com/%s.png"
)

// Options parameterise the LunarCrush client.
type Options struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration
	UserAgent     string
	MaxCoins      int
	RetryAttempts int
	RetryDelay    time.Duration
}

// LunarCrush fetches social metrics from the LunarCrush public API.
type LunarCrush struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewLunarCrush constructs a metrics client.
func NewLunarCrush(opts Options, logger zerolog.Logger) *LunarCrush {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://lunarcrush.com/api4/public"
	}

	if opts.MaxCoins <= 0 {
		opts.MaxCoins = 100
	}

	return &LunarCrush{
		opts:    opts,
		logger:  logger.With().Str("component", "lunarcrush").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

type listResponse struct {
	Data []CoinMetric `json:"data"`
}

// coinEnvelope is the per-symbol endpoint shape. Its field set is disjoint
// from the bulk listing: no sentiment, interactions, social volume, or
// dominance.
type coinEnvelope struct {
	Config struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		Symbol    string `json:"symbol"`
		Topic     string `json:"topic"`
		Generated int64  `json:"generated"`
	} `json:"config"`
	Data struct {
		ID               int64            `json:"id"`
		Name             string           `json:"name"`
		Symbol           string           `json:"symbol"`
		Price            decimal.Decimal  `json:"price"`
		PriceBTC         decimal.Decimal  `json:"price_btc"`
		MarketCap        decimal.Decimal  `json:"market_cap"`
		PercentChange24h decimal.Decimal  `json:"percent_change_24h"`
		PercentChange7d  decimal.Decimal  `json:"percent_change_7d"`
		PercentChange30d decimal.Decimal  `json:"percent_change_30d"`
		Volume24h        decimal.Decimal  `json:"volume_24h"`
		MaxSupply        *decimal.Decimal `json:"max_supply"`
		GalaxyScore      decimal.Decimal  `json:"galaxy_score"`
		AltRank          int64            `json:"alt_rank"`
		Volatility       decimal.Decimal  `json:"volatility"`
		MarketCapRank    int64            `json:"market_cap_rank"`
	} `json:"data"`
}

// FetchAll retrieves the full provider listing. The listing carries the
// sentiment fields the per-symbol endpoint lacks.
func (l *LunarCrush) FetchAll(ctx context.Context) ([]CoinMetric, error) {
	body, err := l.getWithRetry(ctx, coinsListPath)
	if err != nil {
		return nil, err
	}

	var res listResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("%w: decode coin listing: %v", ErrMalformedResponse, err)
	}
	return res.Data, nil
}

// FetchCoin retrieves a single symbol through the per-symbol endpoint and
// normalises its envelope shape. Returns (nil, nil) when the symbol is
// unknown upstream.
func (l *LunarCrush) FetchCoin(ctx context.Context, symbol string) (*CoinMetric, error) {
	path := fmt.Sprintf(coinPathFmt, strings.ToUpper(symbol))
	body, err := l.get(ctx, path)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var env coinEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: decode coin %s: %v", ErrMalformedResponse, symbol, err)
	}

	metric := normalizeEnvelope(env)
	return &metric, nil
}

// normalizeEnvelope maps the per-symbol shape onto CoinMetric. Fields the
// endpoint does not carry are synthesised as zero.
func normalizeEnvelope(env coinEnvelope) CoinMetric {
	return CoinMetric{
		ID:               env.Data.ID,
		Symbol:           env.Data.Symbol,
		Name:             env.Data.Name,
		Price:            env.Data.Price,
		Sentiment:        decimal.Zero,
		Interactions24h:  0,
		SocialVolume24h:  0,
		SocialDominance:  decimal.Zero,
		PercentChange24h: env.Data.PercentChange24h,
		GalaxyScore:      env.Data.GalaxyScore,
		AltRank:          env.Data.AltRank,
		MarketCap:        env.Data.MarketCap,
		LastUpdatedPrice: time.Now().Unix(),
		Topic:            env.Config.Topic,
		Logo:             fmt.Sprintf(logoCDNFmt, strings.ToLower(env.Data.Symbol)),
	}
}

// FetchMetrics returns the listing filtered to the requested symbols, or the
// first MaxCoins entries when no symbols are given. Duplicate symbols keep
// the entry with the greatest market cap.
func (l *LunarCrush) FetchMetrics(ctx context.Context, symbols []string) ([]CoinMetric, error) {
	all, err := l.FetchAll(ctx)
	if err != nil {
		return nil, err
	}

	filtered := all
	if len(symbols) > 0 {
		wanted := make(map[string]struct{}, len(symbols))
		for _, s := range symbols {
			wanted[strings.ToUpper(s)] = struct{}{}
		}
		filtered = filtered[:0:0]
		for _, coin := range all {
			if _, ok := wanted[strings.ToUpper(coin.Symbol)]; ok {
				filtered = append(filtered, coin)
			}
		}
	}

	deduped := dedupByMarketCap(filtered)

	if len(symbols) == 0 && len(deduped) > l.opts.MaxCoins {
		deduped = deduped[:l.opts.MaxCoins]
	}
	return deduped, nil
}

// dedupByMarketCap keeps, per symbol, the record with the greatest market
// cap, preserving each symbol's first-seen position in the batch.
func dedupByMarketCap(coins []CoinMetric) []CoinMetric {
	result := make([]CoinMetric, 0, len(coins))
	index := make(map[string]int, len(coins))

	for _, coin := range coins {
		key := strings.ToUpper(coin.Symbol)
		if at, seen := index[key]; seen {
			if coin.MarketCap.GreaterThan(result[at].MarketCap) {
				result[at] = coin
			}
			continue
		}
		index[key] = len(result)
		result = append(result, coin)
	}
	return result
}

// TopCoins returns the listing sorted by market cap descending, truncated.
func (l *LunarCrush) TopCoins(ctx context.Context, limit int) ([]CoinMetric, error) {
	all, err := l.FetchAll(ctx)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].MarketCap.GreaterThan(all[j].MarketCap)
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (l *LunarCrush) getWithRetry(ctx context.Context, path string) ([]byte, error) {
	attempts := l.opts.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := l.opts.RetryDelay
	if delay <= 0 {
		delay = time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		body, err := l.get(ctx, path)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if !errors.Is(err, ErrUpstreamUnavailable) && !errors.Is(err, ErrRateLimited) {
			return nil, err
		}
		if attempt == attempts {
			break
		}

		l.logger.Warn().Err(err).Int("attempt", attempt).Str("path", path).Msg("retrying upstream request")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}

func (l *LunarCrush) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+l.opts.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if ua := strings.TrimSpace(l.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		// Transport failures and client timeouts count as upstream outage.
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUpstreamUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, statusError(resp.StatusCode, body)
	}
	return body, nil
}

func statusError(status int, payload []byte) error {
	switch {
	case status == http.StatusUnauthorized:
		return fmt.Errorf("%w (check your LunarCrush credentials)", ErrUnauthorized)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w (upgrade your plan or try again later)", ErrRateLimited)
	case status == http.StatusNotFound:
		return ErrNotFound
	case status >= 500:
		return fmt.Errorf("%w (status %d)", ErrUpstreamUnavailable, status)
	default:
		trimmed := strings.TrimSpace(string(payload))
		if trimmed != "" {
			return fmt.Errorf("lunarcrush api error (%d): %s", status, trimmed)
		}
		return fmt.Errorf("lunarcrush api error (%d)", status)
	}
}

var _ MetricsFetcher = (*LunarCrush)(nil)
