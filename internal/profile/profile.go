package profile

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ErrMissingBotToken is returned by Validate when no bot token is configured.
var ErrMissingBotToken = errors.New("bot token is required (set TERMRELAY_BOT_TOKEN)")

// Profile is the configuration to start the bot.
type Profile struct {
	// Mode can be "prod" or "dev"
	Mode string
	// Version is the current version of the bot
	Version string

	// Telegram transport
	BotToken        string        // TERMRELAY_BOT_TOKEN (legacy: TERMBIN_BOT_TOKEN)
	TelegramBaseURL string        // TERMRELAY_TELEGRAM_BASE_URL (default: https://api.telegram.org)
	PollTimeout     time.Duration // TERMRELAY_POLL_TIMEOUT (default: 30s)
	WebhookURL      string        // TERMRELAY_WEBHOOK_URL, enables webhook mode
	WebhookSecret   string        // TERMRELAY_WEBHOOK_SECRET
	HTTPAddr        string        // TERMRELAY_HTTP_ADDR, health/metrics/webhook listener

	// AI backends (completion, transcription, synthesis)
	AIAPIKey             string // TERMRELAY_AI_API_KEY (legacy: OPENAI_API_KEY)
	AIBaseURL            string // TERMRELAY_AI_BASE_URL (default: https://api.openai.com/v1)
	AIChatModel          string // TERMRELAY_AI_CHAT_MODEL (default: gpt-4o-mini)
	AITranscriptionModel string // TERMRELAY_AI_TRANSCRIPTION_MODEL (default: whisper-1)
	AISpeechModel        string // TERMRELAY_AI_SPEECH_MODEL (default: tts-1)
	AISpeechVoice        string // TERMRELAY_AI_SPEECH_VOICE (default: alloy)
	SystemPrompt         string // TERMRELAY_SYSTEM_PROMPT
	MaxHistoryTurns      int    // TERMRELAY_MAX_HISTORY_TURNS (default: 20)

	// Image text extraction
	TesseractPath string // TERMRELAY_OCR_TESSERACT_PATH (default: tesseract)
	TessdataPath  string // TERMRELAY_OCR_TESSDATA_PATH (default: "")
	OCRLanguages  string // TERMRELAY_OCR_LANGUAGES (default: eng)

	// Archive
	ArchiveAddr string // TERMRELAY_ARCHIVE_ADDR (default: termbin.com:9999)

	// Dispatch
	Workers          int           // TERMRELAY_WORKERS (default: 8)
	BackendTimeout   time.Duration // TERMRELAY_BACKEND_TIMEOUT (default: 60s)
	DisplayThreshold int           // TERMRELAY_DISPLAY_THRESHOLD (default: 1000)
	MaxMessageLength int           // TERMRELAY_MAX_MESSAGE_LENGTH (default: 4096)
}

// Default returns a profile populated with defaults and no credentials.
func Default() *Profile {
	return &Profile{
		Mode:                 "prod",
		TelegramBaseURL:      "https://api.telegram.org",
		PollTimeout:          30 * time.Second,
		AIBaseURL:            "https://api.openai.com/v1",
		AIChatModel:          "gpt-4o-mini",
		AITranscriptionModel: "whisper-1",
		AISpeechModel:        "tts-1",
		AISpeechVoice:        "alloy",
		MaxHistoryTurns:      20,
		TesseractPath:        "tesseract",
		OCRLanguages:         "eng",
		ArchiveAddr:          "termbin.com:9999",
		Workers:              8,
		BackendTimeout:       60 * time.Second,
		DisplayThreshold:     1000,
		MaxMessageLength:     4096,
	}
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIEnabled returns true if an API key for the AI backends is configured.
func (p *Profile) IsAIEnabled() bool {
	return p.AIAPIKey != ""
}

// IsWebhook returns true if updates are received through a webhook.
func (p *Profile) IsWebhook() bool {
	return p.WebhookURL != ""
}

// FromEnv fills empty fields from environment variables.
// Supports both TERMRELAY_* and the legacy variable names.
func (p *Profile) FromEnv() {
	getEnvWithFallback := func(newKey, legacyKey string) string {
		if val := os.Getenv(newKey); val != "" {
			return val
		}
		if legacyKey == "" {
			return ""
		}
		return os.Getenv(legacyKey)
	}
	setString := func(dst *string, newKey, legacyKey string) {
		if *dst == "" {
			*dst = strings.TrimSpace(getEnvWithFallback(newKey, legacyKey))
		}
	}
	setInt := func(dst *int, key string) {
		if *dst != 0 {
			return
		}
		if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
			*dst = n
		}
	}
	setDuration := func(dst *time.Duration, key string) {
		if *dst != 0 {
			return
		}
		if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
			*dst = d
		}
	}

	setString(&p.BotToken, "TERMRELAY_BOT_TOKEN", "TERMBIN_BOT_TOKEN")
	setString(&p.TelegramBaseURL, "TERMRELAY_TELEGRAM_BASE_URL", "")
	setDuration(&p.PollTimeout, "TERMRELAY_POLL_TIMEOUT")
	setString(&p.WebhookURL, "TERMRELAY_WEBHOOK_URL", "")
	setString(&p.WebhookSecret, "TERMRELAY_WEBHOOK_SECRET", "")
	setString(&p.HTTPAddr, "TERMRELAY_HTTP_ADDR", "")

	setString(&p.AIAPIKey, "TERMRELAY_AI_API_KEY", "OPENAI_API_KEY")
	setString(&p.AIBaseURL, "TERMRELAY_AI_BASE_URL", "OPENAI_BASE_URL")
	setString(&p.AIChatModel, "TERMRELAY_AI_CHAT_MODEL", "")
	setString(&p.AITranscriptionModel, "TERMRELAY_AI_TRANSCRIPTION_MODEL", "")
	setString(&p.AISpeechModel, "TERMRELAY_AI_SPEECH_MODEL", "")
	setString(&p.AISpeechVoice, "TERMRELAY_AI_SPEECH_VOICE", "")
	setString(&p.SystemPrompt, "TERMRELAY_SYSTEM_PROMPT", "")
	setInt(&p.MaxHistoryTurns, "TERMRELAY_MAX_HISTORY_TURNS")

	setString(&p.TesseractPath, "TERMRELAY_OCR_TESSERACT_PATH", "")
	setString(&p.TessdataPath, "TERMRELAY_OCR_TESSDATA_PATH", "")
	setString(&p.OCRLanguages, "TERMRELAY_OCR_LANGUAGES", "")

	setString(&p.ArchiveAddr, "TERMRELAY_ARCHIVE_ADDR", "")

	setInt(&p.Workers, "TERMRELAY_WORKERS")
	setDuration(&p.BackendTimeout, "TERMRELAY_BACKEND_TIMEOUT")
	setInt(&p.DisplayThreshold, "TERMRELAY_DISPLAY_THRESHOLD")
	setInt(&p.MaxMessageLength, "TERMRELAY_MAX_MESSAGE_LENGTH")
}

// Validate checks required settings and replaces invalid values with defaults.
func (p *Profile) Validate() error {
	if p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "prod"
	}
	if strings.TrimSpace(p.BotToken) == "" {
		return ErrMissingBotToken
	}

	def := Default()
	if p.TelegramBaseURL == "" {
		p.TelegramBaseURL = def.TelegramBaseURL
	}
	p.TelegramBaseURL = strings.TrimRight(p.TelegramBaseURL, "/")
	if p.PollTimeout <= 0 {
		p.PollTimeout = def.PollTimeout
	}
	if p.MaxHistoryTurns <= 0 {
		p.MaxHistoryTurns = def.MaxHistoryTurns
	}
	if p.Workers <= 0 {
		p.Workers = def.Workers
	}
	if p.BackendTimeout <= 0 {
		p.BackendTimeout = def.BackendTimeout
	}
	if p.MaxMessageLength <= 0 || p.MaxMessageLength > def.MaxMessageLength {
		p.MaxMessageLength = def.MaxMessageLength
	}
	if p.DisplayThreshold <= 0 || p.DisplayThreshold >= p.MaxMessageLength {
		p.DisplayThreshold = def.DisplayThreshold
		if p.DisplayThreshold >= p.MaxMessageLength {
			p.DisplayThreshold = p.MaxMessageLength / 4
		}
	}
	if p.ArchiveAddr == "" {
		p.ArchiveAddr = def.ArchiveAddr
	}
	if p.TesseractPath == "" {
		p.TesseractPath = def.TesseractPath
	}
	if p.WebhookURL != "" && p.HTTPAddr == "" {
		return errors.New("webhook mode requires an HTTP listen address")
	}
	return nil
}
