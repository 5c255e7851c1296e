package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/termrelay/internal/profile"
	"github.com/hrygo/termrelay/plugin/ai/timeout"
	"github.com/hrygo/termrelay/server"
)

func newServeCmd() *cobra.Command {
	def := profile.Default()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	f := cmd.Flags()
	f.String("mode", def.Mode, "Run mode: prod|dev.")
	f.String("bot-token", "", "Telegram bot token (required; falls back to TERMBIN_BOT_TOKEN).")
	f.String("telegram-base-url", def.TelegramBaseURL, "Telegram Bot API base URL.")
	f.Duration("poll-timeout", def.PollTimeout, "Long polling window.")
	f.String("webhook-url", "", "Public webhook URL; enables webhook mode instead of polling.")
	f.String("webhook-secret", "", "Secret token Telegram sends with webhook requests.")
	f.String("http-addr", "", "Listen address for /healthz, /metrics and the webhook.")
	f.String("ai-api-key", "", "OpenAI-compatible API key (falls back to OPENAI_API_KEY).")
	f.String("ai-base-url", "", "OpenAI-compatible base URL (falls back to OPENAI_BASE_URL).")
	f.String("ai-chat-model", def.AIChatModel, "Chat completion model.")
	f.String("ai-transcription-model", def.AITranscriptionModel, "Speech recognition model.")
	f.String("ai-speech-model", def.AISpeechModel, "Speech synthesis model.")
	f.String("ai-speech-voice", def.AISpeechVoice, "Speech synthesis voice.")
	f.String("system-prompt", "", "System prompt for new conversations.")
	f.Int("max-history-turns", def.MaxHistoryTurns, "Conversation messages kept per user besides the system prompt.")
	f.String("ocr-tesseract-path", def.TesseractPath, "Tesseract executable.")
	f.String("ocr-tessdata-path", "", "Tesseract tessdata directory.")
	f.String("ocr-languages", def.OCRLanguages, "Tesseract languages, e.g. eng+deu.")
	f.String("archive-addr", def.ArchiveAddr, "termbin-compatible archive address.")
	f.Int("workers", def.Workers, "Concurrent backend calls.")
	f.Duration("backend-timeout", def.BackendTimeout, "Timeout for a single backend call.")
	f.Int("display-threshold", def.DisplayThreshold, "Longest extracted text shown without archiving.")
	f.Int("max-message-length", def.MaxMessageLength, "Longest outbound message.")

	for _, name := range serveKeys {
		_ = viper.BindPFlag(name, f.Lookup(name))
	}
	return cmd
}

var serveKeys = []string{
	"mode", "bot-token", "telegram-base-url", "poll-timeout", "webhook-url",
	"webhook-secret", "http-addr", "ai-api-key", "ai-base-url", "ai-chat-model",
	"ai-transcription-model", "ai-speech-model", "ai-speech-voice", "system-prompt",
	"max-history-turns", "ocr-tesseract-path", "ocr-tessdata-path", "ocr-languages",
	"archive-addr", "workers", "backend-timeout", "display-threshold", "max-message-length",
}

// profileFromViper reads flags, config file and TERMRELAY_* variables.
// Legacy variables and defaults are applied afterwards by the profile.
func profileFromViper() *profile.Profile {
	p := &profile.Profile{
		Mode:                 viper.GetString("mode"),
		Version:              version,
		BotToken:             viper.GetString("bot-token"),
		TelegramBaseURL:      viper.GetString("telegram-base-url"),
		PollTimeout:          viper.GetDuration("poll-timeout"),
		WebhookURL:           viper.GetString("webhook-url"),
		WebhookSecret:        viper.GetString("webhook-secret"),
		HTTPAddr:             viper.GetString("http-addr"),
		AIAPIKey:             viper.GetString("ai-api-key"),
		AIBaseURL:            viper.GetString("ai-base-url"),
		AIChatModel:          viper.GetString("ai-chat-model"),
		AITranscriptionModel: viper.GetString("ai-transcription-model"),
		AISpeechModel:        viper.GetString("ai-speech-model"),
		AISpeechVoice:        viper.GetString("ai-speech-voice"),
		SystemPrompt:         viper.GetString("system-prompt"),
		MaxHistoryTurns:      viper.GetInt("max-history-turns"),
		TesseractPath:        viper.GetString("ocr-tesseract-path"),
		TessdataPath:         viper.GetString("ocr-tessdata-path"),
		OCRLanguages:         viper.GetString("ocr-languages"),
		ArchiveAddr:          viper.GetString("archive-addr"),
		Workers:              viper.GetInt("workers"),
		BackendTimeout:       viper.GetDuration("backend-timeout"),
		DisplayThreshold:     viper.GetInt("display-threshold"),
		MaxMessageLength:     viper.GetInt("max-message-length"),
	}
	p.FromEnv()
	return p
}

func runServe(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	p := profileFromViper()
	if err := p.Validate(); err != nil {
		if stderrors.Is(err, profile.ErrMissingBotToken) {
			return fmt.Errorf("%w: set TERMRELAY_BOT_TOKEN or pass --bot-token", err)
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := loggerFromViper(os.Stderr, p.IsDev())
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := server.NewServer(ctx, p, logger)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	logger.Info("termrelay starting",
		"version", p.Version,
		"mode", p.Mode,
		"webhook", p.IsWebhook(),
		"ai", p.IsAIEnabled(),
		"workers", p.Workers,
	)
	runErr := s.Start(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout.ShutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", "error", err)
	}
	logger.Info("termrelay stopped")
	return runErr
}
