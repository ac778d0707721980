package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"sentiment-alerts/internal/classify"
	"sentiment-alerts/internal/fetcher"
	"sentiment-alerts/internal/service"
	"sentiment-alerts/internal/storage"
	"sentiment-alerts/internal/storage/memory"
)

// SimulateAlert feeds a synthetic single-coin batch through the full
// pipeline against an in-memory store, so the alert path can be exercised
// without live data. A non-negative previous sentiment is seeded as history.
func (a *App) SimulateAlert(ctx context.Context, symbol string, current, previous float64) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is not enabled")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("no notification channel configured")
	}

	mem := memory.NewStore()
	currentSentiment := decimal.NewFromFloat(current)

	if previous >= 0 {
		seed := a.seedObservation(symbol, decimal.NewFromFloat(previous))
		if err := mem.InsertObservation(ctx, seed); err != nil {
			return err
		}
	}

	static := &staticFetcher{metric: fetcher.CoinMetric{
		Symbol:    symbol,
		Name:      symbol,
		Sentiment: currentSentiment,
		Price:     decimal.NewFromInt(1),
		MarketCap: decimal.NewFromInt(1),
	}}

	svc, err := service.New(a.Config, static, mem, mem, notifier, a.Logger)
	if err != nil {
		return err
	}

	result, err := svc.Process(ctx, service.Trigger{
		CheckType: service.CheckManual,
		Coins:     []string{symbol},
		Profile:   classify.Manual,
	})
	if err != nil {
		return err
	}

	if len(result.Alerts) == 0 {
		fmt.Fprintln(os.Stdout, "no alert generated for the simulated change")
		return nil
	}
	for _, alert := range result.Alerts {
		fmt.Fprintln(os.Stdout, alert.Message)
	}
	return nil
}

func (a *App) seedObservation(symbol string, sentiment decimal.Decimal) storage.Observation {
	return storage.Observation{
		Symbol:    symbol,
		Sentiment: sentiment,
		Price:     decimal.NewFromInt(1),
		CreatedAt: time.Now().UTC().Add(-time.Hour),
	}
}

type staticFetcher struct {
	metric fetcher.CoinMetric
}

func (s *staticFetcher) FetchMetrics(context.Context, []string) ([]fetcher.CoinMetric, error) {
	return []fetcher.CoinMetric{s.metric}, nil
}

var _ fetcher.MetricsFetcher = (*staticFetcher)(nil)
