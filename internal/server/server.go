package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"sentiment-alerts/internal/classify"
	"sentiment-alerts/internal/config"
	"sentiment-alerts/internal/service"
)

// Runner launches one processing run for a trigger.
type Runner interface {
	Process(ctx context.Context, trig service.Trigger) (*service.Result, error)
}

// Server exposes the manual trigger API.
type Server struct {
	cfg    config.ServerConfig
	runner Runner
	logger zerolog.Logger
	echo   *echo.Echo
}

// New constructs the trigger API server.
func New(cfg config.ServerConfig, runner Runner, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		cfg:    cfg,
		runner: runner,
		logger: logger.With().Str("component", "server").Logger(),
		echo:   e,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	g := s.echo.Group("/api")
	g.POST("/trigger", s.trigger)
	g.GET("/trigger", s.describe)
}

type triggerRequest struct {
	Coins   []string `json:"coins,omitempty"`
	Profile string   `json:"profile,omitempty"`
}

type triggerResponse struct {
	Success bool   `json:"success"`
	EventID string `json:"eventId,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// trigger queues one manual processing run and responds immediately with the
// generated event id; the run proceeds in the background.
func (s *Server) trigger(c echo.Context) error {
	var req triggerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, triggerResponse{
			Success: false,
			Error:   "invalid request body",
		})
	}

	profile, err := classify.ProfileByName(req.Profile)
	if err != nil {
		return c.JSON(http.StatusBadRequest, triggerResponse{
			Success: false,
			Error:   err.Error(),
		})
	}

	eventID := uuid.NewString()
	trig := service.Trigger{
		Timestamp: time.Now().UTC(),
		CheckType: service.CheckManual,
		Coins:     req.Coins,
		Profile:   profile,
	}

	s.logger.Info().Str("event_id", eventID).Strs("coins", req.Coins).Str("profile", profile.Name).Msg("manual trigger received")

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := s.runner.Process(ctx, trig); err != nil {
			s.logger.Error().Err(err).Str("event_id", eventID).Msg("triggered run failed")
		}
	}()

	return c.JSON(http.StatusAccepted, triggerResponse{
		Success: true,
		EventID: eventID,
		Message: "Sentiment processing job queued successfully",
	})
}

func (s *Server) describe(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status": "Sentiment Processing API",
		"endpoints": map[string]string{
			"POST": "Queue a new sentiment processing job",
		},
	})
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(s.cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	s.logger.Info().Str("addr", s.cfg.Addr).Msg("trigger API listening")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}

// Handler exposes the underlying HTTP handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
