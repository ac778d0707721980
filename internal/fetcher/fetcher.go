package fetcher

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// Upstream failure taxonomy. Wrapped errors are matched with errors.Is.
var (
	ErrUnauthorized        = errors.New("lunarcrush: invalid api key")
	ErrRateLimited         = errors.New("lunarcrush: rate limit exceeded")
	ErrUpstreamUnavailable = errors.New("lunarcrush: api unavailable")
	ErrMalformedResponse   = errors.New("lunarcrush: malformed response")
	ErrNotFound            = errors.New("lunarcrush: coin not found")
)

// CoinMetric is one freshly fetched, not-yet-persisted snapshot for a symbol.
// Both upstream response shapes normalise into it.
type CoinMetric struct {
	ID               int64           `json:"id"`
	Symbol           string          `json:"symbol"`
	Name             string          `json:"name"`
	Price            decimal.Decimal `json:"price"`
	Sentiment        decimal.Decimal `json:"sentiment"`
	Interactions24h  int64           `json:"interactions_24h"`
	SocialVolume24h  int64           `json:"social_volume_24h"`
	SocialDominance  decimal.Decimal `json:"social_dominance"`
	PercentChange24h decimal.Decimal `json:"percent_change_24h"`
	GalaxyScore      decimal.Decimal `json:"galaxy_score"`
	AltRank          int64           `json:"alt_rank"`
	MarketCap        decimal.Decimal `json:"market_cap"`
	LastUpdatedPrice int64           `json:"last_updated_price"`
	Topic            string          `json:"topic"`
	Logo             string          `json:"logo"`
}

// MetricsFetcher retrieves current metrics for a symbol set. An empty set
// means the provider's full listing, capped at the configured maximum.
type MetricsFetcher interface {
	FetchMetrics(ctx context.Context, symbols []string) ([]CoinMetric, error)
}
