package ai

import (
	"errors"
	"time"

	"github.com/hrygo/termrelay/internal/profile"
)

// Config represents the configuration of the OpenAI-compatible backends.
type Config struct {
	APIKey  string
	BaseURL string

	LLM    LLMConfig
	Speech SpeechConfig

	MaxRetries int
	Timeout    time.Duration
}

// LLMConfig represents chat completion configuration.
type LLMConfig struct {
	Model       string  // gpt-4o-mini
	MaxTokens   int     // default: 1024
	Temperature float32 // default: 0.7
}

// SpeechConfig represents transcription and synthesis configuration.
type SpeechConfig struct {
	TranscriptionModel string // whisper-1
	SynthesisModel     string // tts-1
	Voice              string // alloy
}

// DefaultConfig returns the default configuration without credentials.
func DefaultConfig() *Config {
	return &Config{
		BaseURL: "https://api.openai.com/v1",
		LLM: LLMConfig{
			Model:       "gpt-4o-mini",
			MaxTokens:   1024,
			Temperature: 0.7,
		},
		Speech: SpeechConfig{
			TranscriptionModel: "whisper-1",
			SynthesisModel:     "tts-1",
			Voice:              "alloy",
		},
		MaxRetries: 2,
		Timeout:    45 * time.Second,
	}
}

// NewConfigFromProfile creates AI config from profile.
func NewConfigFromProfile(p *profile.Profile) *Config {
	cfg := DefaultConfig()
	cfg.APIKey = p.AIAPIKey
	if p.AIBaseURL != "" {
		cfg.BaseURL = p.AIBaseURL
	}
	if p.AIChatModel != "" {
		cfg.LLM.Model = p.AIChatModel
	}
	if p.AITranscriptionModel != "" {
		cfg.Speech.TranscriptionModel = p.AITranscriptionModel
	}
	if p.AISpeechModel != "" {
		cfg.Speech.SynthesisModel = p.AISpeechModel
	}
	if p.AISpeechVoice != "" {
		cfg.Speech.Voice = p.AISpeechVoice
	}
	if p.BackendTimeout > 0 && p.BackendTimeout < cfg.Timeout {
		cfg.Timeout = p.BackendTimeout
	}
	return cfg
}

// Enabled reports whether credentials are configured.
func (c *Config) Enabled() bool {
	return c != nil && c.APIKey != ""
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !c.Enabled() {
		return ErrNotConfigured
	}
	if c.LLM.Model == "" {
		return errors.New("LLM model is required")
	}
	if c.Speech.TranscriptionModel == "" || c.Speech.SynthesisModel == "" {
		return errors.New("speech models are required")
	}
	return nil
}
