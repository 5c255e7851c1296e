// Package server wires the transport, backends and router into a running bot.
package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hrygo/termrelay/internal/profile"
	"github.com/hrygo/termrelay/plugin/ai"
	"github.com/hrygo/termrelay/plugin/ai/session"
	"github.com/hrygo/termrelay/plugin/ai/timeout"
	"github.com/hrygo/termrelay/plugin/ocr"
	"github.com/hrygo/termrelay/plugin/telegram"
	"github.com/hrygo/termrelay/plugin/termbin"
	"github.com/hrygo/termrelay/server/internal/observability"
	pacing "github.com/hrygo/termrelay/server/middleware"
	"github.com/hrygo/termrelay/server/router/bot"
	"github.com/hrygo/termrelay/server/runner/offload"
)

const (
	webhookPath     = "/telegram/webhook"
	ocrCheckTimeout = 5 * time.Second
)

// Per-chat pacing of outbound messages.
const (
	chatMessagesPerSecond = 1
	chatMessageBurst      = 5
)

// Server runs the bot.
type Server struct {
	Profile *profile.Profile

	Telegram   *telegram.Client
	Sessions   *session.Store
	Metrics    *observability.Metrics
	Pool       *offload.Pool
	Backends   bot.Backends
	Pacer      *pacing.RateLimiter
	Handler    *bot.Handler
	Dispatcher *bot.Dispatcher

	// ocrVersion is empty when tesseract was not found at startup.
	ocrVersion string

	echoServer *echo.Echo
	logger     *slog.Logger
	startedAt  time.Time

	// handleCtx outlives the receive loop so queued units can finish on shutdown.
	handleCtx    context.Context
	cancelHandle context.CancelFunc
}

// NewServer creates the server. It makes no network calls.
func NewServer(ctx context.Context, p *profile.Profile, logger *slog.Logger) (*Server, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		Profile:   p,
		Metrics:   observability.NewMetrics(),
		logger:    logger,
		startedAt: time.Now(),
	}

	s.Telegram = telegram.NewClient(&telegram.Config{
		Token:          p.BotToken,
		BaseURL:        p.TelegramBaseURL,
		RequestTimeout: timeout.TransportRequestTimeout,
		RatePerSecond:  30,
		Burst:          30,
	})
	s.Sessions = session.NewStore(&session.Config{
		SystemPrompt: p.SystemPrompt,
		MaxTurns:     p.MaxHistoryTurns,
	})
	s.Pool = offload.NewPool(&offload.Config{
		Workers: p.Workers,
		Timeout: p.BackendTimeout,
	})

	backends, err := s.newBackends(ctx)
	if err != nil {
		return nil, err
	}
	s.Backends = backends

	s.Pacer = pacing.NewRateLimiter(chatMessagesPerSecond, chatMessageBurst)
	deliverer := bot.NewDeliverer(s.Telegram, s.Pacer, s.Metrics, logger)
	s.Handler = bot.NewHandler(&bot.Config{
		MaxMessageLength: p.MaxMessageLength,
		DisplayThreshold: p.DisplayThreshold,
	}, s.Sessions, backends, s.Pool, s.Telegram, deliverer, s.Metrics, logger)

	s.handleCtx, s.cancelHandle = context.WithCancel(context.WithoutCancel(ctx))
	s.Dispatcher = bot.NewDispatcher(s.handleCtx, s.Handler, logger)

	s.echoServer = s.newEcho()
	return s, nil
}

func (s *Server) newBackends(ctx context.Context) (bot.Backends, error) {
	p := s.Profile
	backends := bot.Backends{
		Archive: termbin.NewClient(&termbin.Config{
			Addr:        p.ArchiveAddr,
			DialTimeout: timeout.ArchiveDialTimeout,
		}),
	}

	extractor := ocr.NewClient(&ocr.Config{
		TesseractPath: p.TesseractPath,
		DataPath:      p.TessdataPath,
		Languages:     p.OCRLanguages,
		Preprocess:    true,
	})
	checkCtx, cancel := context.WithTimeout(ctx, ocrCheckTimeout)
	defer cancel()
	if version, err := extractor.GetVersion(checkCtx); err == nil {
		backends.Extraction = extractor
		s.ocrVersion = version
		s.logger.Info("text recognition ready", "tesseract", version, "languages", p.OCRLanguages)
	} else {
		s.logger.Warn("tesseract not available; photos will be answered as unavailable", "path", p.TesseractPath, "error", err)
	}

	if !p.IsAIEnabled() {
		s.logger.Warn("AI API key not set; conversation, transcription and /say are unavailable")
		return backends, nil
	}
	provider, err := ai.NewProvider(ai.NewConfigFromProfile(p))
	if err != nil {
		return backends, fmt.Errorf("create AI provider: %w", err)
	}
	backends.Completion = bot.CompleterFunc(provider.Chat)
	backends.Transcription = provider
	backends.Synthesis = provider
	return backends, nil
}

func (s *Server) newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", s.handleMetrics)
	if s.Profile.IsWebhook() {
		e.POST(webhookPath, telegram.WebhookHandler(s.Profile.WebhookSecret, s.submit))
	}
	return e
}

// HTTPHandler returns the health, metrics and webhook routes.
func (s *Server) HTTPHandler() http.Handler {
	return s.echoServer
}

// Start receives updates until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	if err := s.identify(ctx); err != nil {
		return err
	}

	if s.Profile.HTTPAddr != "" {
		go func() {
			s.logger.Info("HTTP server listening", "addr", s.Profile.HTTPAddr)
			if err := s.echoServer.Start(s.Profile.HTTPAddr); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				s.logger.Error("HTTP server stopped", "error", err)
			}
		}()
	}

	if s.Profile.IsWebhook() {
		if err := s.Telegram.SetWebhook(ctx, s.Profile.WebhookURL, s.Profile.WebhookSecret); err != nil {
			return fmt.Errorf("set webhook: %w", err)
		}
		s.logger.Info("receiving updates by webhook", "url", s.Profile.WebhookURL)
		<-ctx.Done()
		return nil
	}

	if err := s.Telegram.DeleteWebhook(ctx); err != nil {
		s.logger.Warn("failed to delete webhook before polling", "error", err)
	}
	s.logger.Info("receiving updates by long polling")
	return telegram.NewPoller(s.Telegram, s.Profile.PollTimeout, s.logger).Run(ctx, s.submit)
}

// identify checks the token and learns the bot username for command filtering.
func (s *Server) identify(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, timeout.TransportRequestTimeout)
	defer cancel()

	me, err := s.Telegram.GetMe(ctx)
	if err != nil {
		var reqErr *telegram.RequestError
		if stderrors.As(err, &reqErr) && reqErr.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("bot token rejected by Telegram: %w", err)
		}
		s.logger.Warn("getMe failed, commands addressed to other bots are not filtered", "error", err)
		return nil
	}
	s.Handler.SetBotUsername(me.Username)
	s.logger.Info("bot identified", "username", me.Username, "id", me.ID)
	return nil
}

// submit converts an update into a unit and queues it. It never blocks.
func (s *Server) submit(u telegram.Update) {
	unit, ok := bot.UnitFromMessage(u.Message)
	if !ok {
		s.logger.Debug("update ignored", "update_id", u.UpdateID)
		return
	}
	s.Dispatcher.Submit(unit)
}

// Shutdown stops the HTTP server and waits for queued units. Units still
// running when ctx expires are canceled.
func (s *Server) Shutdown(ctx context.Context) error {
	var firstErr error
	if err := s.echoServer.Shutdown(ctx); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		firstErr = err
	}
	if err := s.Dispatcher.WaitContext(ctx); err != nil {
		s.logger.Warn("shutdown deadline reached, canceling pending units", "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}
	s.cancelHandle()
	return firstErr
}

type healthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Receiving string `json:"receiving"`
	Tesseract string `json:"tesseract,omitempty"`
	UptimeSec int64  `json:"uptime_seconds"`
}

// handleHealth reports liveness.
// GET /healthz
func (s *Server) handleHealth(c echo.Context) error {
	receiving := "polling"
	if s.Profile.IsWebhook() {
		receiving = "webhook"
	}
	return c.JSON(http.StatusOK, healthResponse{
		Status:    "ok",
		Version:   s.Profile.Version,
		Receiving: receiving,
		Tesseract: s.ocrVersion,
		UptimeSec: int64(time.Since(s.startedAt).Seconds()),
	})
}

type metricsResponse struct {
	*observability.MetricsSnapshot
	SuccessRate float64       `json:"success_rate"`
	Sessions    session.Stats `json:"sessions"`
	Workers     int           `json:"workers"`
	InFlight    int64         `json:"in_flight"`
	Panics      int64         `json:"handler_panics"`
	PacedChats  int           `json:"paced_chats"`
}

// handleMetrics reports pipeline counters.
// GET /metrics
func (s *Server) handleMetrics(c echo.Context) error {
	snap := s.Metrics.Snapshot()
	return c.JSON(http.StatusOK, metricsResponse{
		MetricsSnapshot: snap,
		SuccessRate:     snap.SuccessRate(),
		Sessions:        s.Sessions.Stats(),
		Workers:         s.Pool.Workers(),
		InFlight:        s.Pool.InFlight(),
		Panics:          s.Dispatcher.Panics(),
		PacedChats:      s.Pacer.Keys(),
	})
}
