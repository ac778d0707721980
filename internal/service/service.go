package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"sentiment-alerts/internal/alerting"
	"sentiment-alerts/internal/classify"
	"sentiment-alerts/internal/config"
	"sentiment-alerts/internal/fetcher"
	"sentiment-alerts/internal/storage"
)

// Check types carried by a trigger.
const (
	CheckScheduled = "scheduled"
	CheckManual    = "manual"
)

// Trigger describes one requested processing run.
type Trigger struct {
	Timestamp time.Time
	CheckType string
	// Coins overrides the configured monitored set when non-empty.
	Coins   []string
	Profile classify.Profile
}

// Result summarises a completed run.
type Result struct {
	JobID          string
	CoinsProcessed int
	Alerts         []alerting.Alert
	Duration       time.Duration
}

// Service orchestrates fetching, change detection, persistence, and alerting.
type Service struct {
	fetcher  fetcher.MetricsFetcher
	history  storage.HistoryStore
	jobs     storage.JobStore
	notifier alerting.Notifier
	logger   zerolog.Logger

	defaultCoins   []string
	defaultProfile classify.Profile
	lookback       time.Duration
	workers        int
	notifyTimeout  time.Duration
	locker         storage.AdvisoryLocker
	lockKey        int64
}

// New constructs the processing service. A nil notifier disables alert
// delivery without affecting the rest of the run.
func New(cfg *config.Config, metrics fetcher.MetricsFetcher, history storage.HistoryStore, jobs storage.JobStore, notifier alerting.Notifier, logger zerolog.Logger) (*Service, error) {
	profile, err := classify.ProfileByName(cfg.Monitor.Profile)
	if err != nil {
		return nil, err
	}

	workers := cfg.Monitor.Workers
	if workers <= 0 {
		workers = 8
	}

	notifyTimeout := cfg.Alerting.NotifyTimeout
	if notifyTimeout <= 0 {
		notifyTimeout = 15 * time.Second
	}

	var locker storage.AdvisoryLocker
	if l, ok := history.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		fetcher:        metrics,
		history:        history,
		jobs:           jobs,
		notifier:       notifier,
		logger:         logger.With().Str("component", "service").Logger(),
		defaultCoins:   cfg.Monitor.Coins,
		defaultProfile: profile,
		lookback:       cfg.Monitor.Lookback,
		workers:        workers,
		notifyTimeout:  notifyTimeout,
		locker:         locker,
		lockKey:        cfg.Scheduler.AdvisoryLockKey,
	}, nil
}

// ProcessScheduled runs one scheduled tick under the advisory lock. When the
// lock is held by another instance the tick is skipped, not failed. Manual
// runs bypass the lock on purpose: an operator asking for a run gets one.
func (s *Service) ProcessScheduled(ctx context.Context, bucket time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("bucket", bucket).Msg("skip tick because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	_, err = s.Process(ctx, Trigger{
		Timestamp: bucket,
		CheckType: CheckScheduled,
		Profile:   s.defaultProfile,
	})
	return err
}

// Process executes one full run: job record, fetch, reconcile, notify,
// finalise. A fetch failure fails the job; per-symbol failures degrade only
// that symbol.
func (s *Service) Process(ctx context.Context, trig Trigger) (*Result, error) {
	start := time.Now()

	job, err := s.jobs.CreateJob(ctx)
	if err != nil {
		return nil, fmt.Errorf("create processing job: %w", err)
	}

	logger := s.logger.With().Str("job_id", job.ID).Str("check_type", trig.CheckType).Logger()

	if err := s.jobs.MarkJobProcessing(ctx, job.ID); err != nil {
		s.failJob(ctx, job.ID, err.Error(), logger)
		return nil, fmt.Errorf("mark job processing: %w", err)
	}

	coins := trig.Coins
	if len(coins) == 0 {
		coins = s.defaultCoins
	}

	batch, err := s.fetcher.FetchMetrics(ctx, coins)
	if err != nil {
		s.failJob(ctx, job.ID, err.Error(), logger)
		return nil, fmt.Errorf("fetch metrics: %w", err)
	}

	profile := trig.Profile
	if profile.Name == "" {
		profile = s.defaultProfile
	}

	alerts := s.reconcile(ctx, batch, profile, logger)

	s.dispatch(ctx, alerts, logger)

	duration := time.Since(start)
	if err := s.jobs.CompleteJob(ctx, job.ID, len(batch), len(alerts), duration); err != nil {
		return nil, fmt.Errorf("complete job: %w", err)
	}

	logger.Info().
		Int("coins_processed", len(batch)).
		Int("alerts_generated", len(alerts)).
		Dur("duration", duration).
		Str("profile", profile.Name).
		Msg("processing run completed")

	return &Result{
		JobID:          job.ID,
		CoinsProcessed: len(batch),
		Alerts:         alerts,
		Duration:       duration,
	}, nil
}

// reconcile processes each metric independently with bounded parallelism.
// A symbol whose history read or write fails contributes neither an
// observation nor an alert; the rest of the batch is unaffected. The
// returned alerts preserve batch order.
func (s *Service) reconcile(ctx context.Context, batch []fetcher.CoinMetric, profile classify.Profile, logger zerolog.Logger) []alerting.Alert {
	since := time.Now().UTC().Add(-s.lookback)

	results := make([]*alerting.Alert, len(batch))
	sem := make(chan struct{}, s.workers)
	var wg sync.WaitGroup

	for i := range batch {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, metric fetcher.CoinMetric) {
			defer wg.Done()
			defer func() { <-sem }()

			alert, err := s.processCoin(ctx, metric, profile, since)
			if err != nil {
				logger.Error().Err(err).Str("symbol", metric.Symbol).Msg("symbol skipped after processing error")
				return
			}
			results[i] = alert
		}(i, batch[i])
	}
	wg.Wait()

	alerts := make([]alerting.Alert, 0, len(batch))
	for _, alert := range results {
		if alert != nil {
			alerts = append(alerts, *alert)
		}
	}
	return alerts
}

// processCoin runs the per-symbol sequence: history read, classify,
// unconditional observation write, alert construction.
func (s *Service) processCoin(ctx context.Context, metric fetcher.CoinMetric, profile classify.Profile, since time.Time) (*alerting.Alert, error) {
	previous, err := s.history.LatestObservation(ctx, metric.Symbol, since)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	var previousSentiment *decimal.Decimal
	if previous != nil {
		value := previous.Sentiment
		previousSentiment = &value
	}

	change := classify.Classify(metric.Sentiment, previousSentiment, profile)

	obs := storage.Observation{
		Symbol:           metric.Symbol,
		Sentiment:        metric.Sentiment,
		Price:            metric.Price,
		Interactions24h:  metric.Interactions24h,
		PercentChange24h: metric.PercentChange24h,
		GalaxyScore:      metric.GalaxyScore,
	}
	if err := s.history.InsertObservation(ctx, obs); err != nil {
		return nil, fmt.Errorf("write observation: %w", err)
	}

	if change == classify.Normal {
		return nil, nil
	}

	return &alerting.Alert{
		Symbol:            metric.Symbol,
		Name:              metric.Name,
		Sentiment:         metric.Sentiment,
		PreviousSentiment: previousSentiment,
		ChangeType:        change,
		Message:           classify.Message(metric.Symbol, metric.Sentiment, previousSentiment, change),
		Price:             metric.Price,
		PercentChange24h:  metric.PercentChange24h,
		Timestamp:         time.Now().UTC(),
	}, nil
}

// dispatch delivers alerts best-effort. The outcome is logged and the wait is
// bounded so no in-flight send outlives the run, but failure never escalates.
func (s *Service) dispatch(ctx context.Context, alerts []alerting.Alert, logger zerolog.Logger) {
	if len(alerts) == 0 || s.notifier == nil {
		return
	}

	nctx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.notifier.Notify(nctx, alerts)
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.Error().Err(err).Int("alerts", len(alerts)).Msg("failed to dispatch alerts")
		}
	case <-nctx.Done():
		logger.Error().Int("alerts", len(alerts)).Msg("alert dispatch timed out")
	}
}

func (s *Service) failJob(ctx context.Context, id, message string, logger zerolog.Logger) {
	if err := s.jobs.FailJob(ctx, id, message); err != nil {
		logger.Error().Err(err).Msg("failed to mark job failed")
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
