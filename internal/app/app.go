package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"sentiment-alerts/internal/alerting"
	"sentiment-alerts/internal/config"
	"sentiment-alerts/internal/fetcher"
	"sentiment-alerts/internal/scheduler"
	"sentiment-alerts/internal/server"
	"sentiment-alerts/internal/service"
	"sentiment-alerts/internal/storage"
	"sentiment-alerts/internal/storage/memory"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newFetcher() *fetcher.LunarCrush {
	return fetcher.NewLunarCrush(fetcher.Options{
		BaseURL:       a.Config.LunarCrush.BaseURL,
		APIKey:        a.Config.LunarCrush.APIKey,
		Timeout:       a.Config.LunarCrush.RequestTimeout,
		UserAgent:     a.Config.LunarCrush.UserAgent,
		MaxCoins:      a.Config.LunarCrush.MaxCoins,
		RetryAttempts: a.Config.LunarCrush.RetryAttempts,
		RetryDelay:    a.Config.LunarCrush.RetryDelay,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if !a.Config.Alerting.Enabled || a.Config.Alerting.Discord.WebhookURL == "" {
		return nil
	}
	cfg := a.Config.Alerting
	return alerting.NewDiscordNotifier(cfg.Discord.WebhookURL, cfg.MaxEmbedFields, cfg.Discord.Timeout, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// openStores resolves history and job stores, falling back to an in-memory
// store when no database is configured.
func (a *App) openStores(ctx context.Context) (storage.HistoryStore, storage.JobStore, func(), error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; using in-memory store, state is lost on exit")
		mem := memory.NewStore()
		return mem, mem, func() {}, nil
	}
	return store, store, closeStore, nil
}

// Run executes the long-running monitoring service: the scheduler, and the
// trigger API when enabled.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	history, jobs, closeStore, err := a.openStores(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	svc, err := service.New(a.Config, a.newFetcher(), history, jobs, a.newNotifier(), a.Logger)
	if err != nil {
		return err
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	errCh := make(chan error, 2)
	go func() {
		errCh <- sched.Run(ctx, svc.ProcessScheduled)
	}()

	if a.Config.Server.Enabled {
		srv := server.New(a.Config.Server, svc, a.Logger)
		go func() {
			errCh <- srv.Start(ctx)
		}()
	}

	a.Logger.Info().Msg("starting sentiment monitoring service")
	err = <-errCh
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("sentiment monitoring service stopped")
	return nil
}

// ExportOptions hold parameters for exporting historical observations.
type ExportOptions struct {
	Symbol    string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
	Jobs  bool
}
