package bot

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hrygo/termrelay/plugin/ai/session"
	"github.com/hrygo/termrelay/plugin/telegram"
	aierrors "github.com/hrygo/termrelay/server/internal/errors"
	"github.com/hrygo/termrelay/server/internal/observability"
	"github.com/hrygo/termrelay/server/runner/offload"
)

// Pipeline names.
const (
	PipelineCommand       = "command"
	PipelineArchive       = "archive"
	PipelineConversation  = "conversation"
	PipelineExtraction    = "extraction"
	PipelineTranscription = "transcription"
	PipelineUnsupported   = "unsupported"
)

// Config holds the router configuration.
type Config struct {
	// MaxMessageLength is the longest outbound text message.
	MaxMessageLength int
	// DisplayThreshold is the longest extracted or transcribed text shown
	// directly. Longer text is archived and previewed.
	DisplayThreshold int
	// PreviewLength is the preview size shown with an archive link.
	PreviewLength int
	// BotUsername filters commands addressed to other bots. Empty accepts all.
	BotUsername string
	// TypingInterval is how often the typing action is refreshed.
	TypingInterval time.Duration
}

// DefaultConfig returns the default router configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxMessageLength: telegram.MaxMessageLength,
		DisplayThreshold: 1000,
		PreviewLength:    300,
		TypingInterval:   4 * time.Second,
	}
}

// Handler selects and runs the pipeline for each unit.
type Handler struct {
	config    *Config
	sessions  session.SessionService
	backends  Backends
	chatReady bool
	pool      *offload.Pool
	transport Transport
	deliverer *Deliverer
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// pipelineFunc runs one pipeline. The returned error is the failure already
// reported to the user, if any.
type pipelineFunc func(ctx context.Context, u Unit, mode session.Mode) error

// NewHandler creates a handler. Missing backends reply as unavailable.
func NewHandler(config *Config, sessions session.SessionService, backends Backends, pool *offload.Pool, transport Transport, deliverer *Deliverer, metrics *observability.Metrics, logger *slog.Logger) *Handler {
	if config == nil {
		config = DefaultConfig()
	}
	def := DefaultConfig()
	if config.MaxMessageLength <= 0 {
		config.MaxMessageLength = def.MaxMessageLength
	}
	if config.DisplayThreshold <= 0 {
		config.DisplayThreshold = def.DisplayThreshold
	}
	if config.PreviewLength <= 0 || config.PreviewLength > config.DisplayThreshold {
		config.PreviewLength = min(def.PreviewLength, config.DisplayThreshold)
	}
	if config.TypingInterval <= 0 {
		config.TypingInterval = def.TypingInterval
	}
	config.BotUsername = strings.TrimPrefix(config.BotUsername, "@")
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	if deliverer == nil {
		deliverer = NewDeliverer(transport, nil, metrics, logger)
	}
	return &Handler{
		config:    config,
		sessions:  sessions,
		backends:  backends.withDefaults(),
		chatReady: backends.Completion != nil,
		pool:      pool,
		transport: transport,
		deliverer: deliverer,
		metrics:   metrics,
		logger:    logger,
	}
}

// SetBotUsername sets the name used to filter commands addressed to other
// bots. It must be called before the first unit is handled.
func (h *Handler) SetBotUsername(name string) {
	h.config.BotUsername = strings.TrimPrefix(name, "@")
}

// Handle processes one unit to completion. Backend failures are reported to
// the user and never returned.
func (h *Handler) Handle(ctx context.Context, u Unit) {
	mode := h.sessions.Mode(u.UserID)
	name, run := h.route(u, mode)

	rc := observability.NewRequestContext(h.logger, u.UserID, u.ChatID)
	rc.SetPipeline(name)
	ctx = observability.WithRequestContext(ctx, rc)
	h.metrics.RecordRequest(name)

	err := run(ctx, u, mode)

	h.metrics.RecordDuration(name, rc.Duration())
	attrs := []slog.Attr{
		slog.String("kind", u.Kind.String()),
		slog.String("mode", mode.String()),
		slog.Int64(observability.LogFieldDuration, rc.DurationMs()),
	}
	if err != nil && !aierrors.IsCode(err, aierrors.ErrCodeEmptyResult) {
		h.metrics.RecordFailure(name)
		attrs = append(attrs, slog.String(observability.LogFieldErrorCode,
			string(aierrors.GetCodeFromError(err, aierrors.ErrCodeBackendUnavailable))))
		rc.Error("unit failed", err, attrs...)
		return
	}
	rc.Info("unit handled", attrs...)
}

// route picks the pipeline for a unit and the sender's mode.
func (h *Handler) route(u Unit, mode session.Mode) (string, pipelineFunc) {
	switch u.Kind {
	case UnitCommand:
		return PipelineCommand, h.runCommand
	case UnitText:
		switch mode {
		case session.ModeArchive:
			return PipelineArchive, h.archiveText
		case session.ModeConversational:
			return PipelineConversation, h.converseText
		}
	case UnitPhoto:
		return PipelineExtraction, h.extractPhoto
	case UnitVoice:
		return PipelineTranscription, h.transcribeVoice
	case UnitUnsupported:
		return PipelineUnsupported, h.unsupported
	}
	return PipelineUnsupported, h.unsupported
}

// unsupported tells the user which message kinds the bot handles.
func (h *Handler) unsupported(ctx context.Context, u Unit, mode session.Mode) error {
	if u.Kind != UnitUnsupported {
		if rc, ok := observability.FromContext(ctx); ok {
			rc.Warn("no pipeline for unit", slog.String("kind", u.Kind.String()), slog.String("mode", mode.String()))
		}
	}
	h.deliver(ctx, u.ChatID, Result{Text: msgUnsupported})
	return nil
}
