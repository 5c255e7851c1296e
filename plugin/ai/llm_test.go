package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/termrelay/internal/profile"
	"github.com/hrygo/termrelay/plugin/ai/session"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.APIKey = "test-key"
	cfg.BaseURL = srv.URL + "/v1"
	cfg.MaxRetries = 2
	p, err := NewProvider(cfg)
	require.NoError(t, err)
	return p
}

func writeChatResponse(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"model":  "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	})
}

func TestNewProviderRequiresKey(t *testing.T) {
	_, err := NewProvider(DefaultConfig())
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewProvider(nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestChat(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeChatResponse(w, "hi there")
	})

	reply, err := p.Chat(context.Background(), []session.Message{
		{Role: session.RoleSystem, Content: "be brief"},
		{Role: session.RoleUser, Content: "hello"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hi there", reply)

	assert.Equal(t, "gpt-4o-mini", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "hello", got.Messages[1].Content)
}

func TestChatEmptyInput(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})
	_, err := p.Chat(context.Background(), nil)
	assert.Error(t, err)
}

func TestChatRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
			return
		}
		writeChatResponse(w, "second time")
	})

	reply, err := p.Chat(context.Background(), []session.Message{{Role: session.RoleUser, Content: "x"}})
	require.NoError(t, err)
	assert.Equal(t, "second time", reply)
	assert.Equal(t, int32(2), calls.Load())
}

func TestChatDoesNotRetryAuthErrors(t *testing.T) {
	var calls atomic.Int32
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	})

	_, err := p.Chat(context.Background(), []session.Message{{Role: session.RoleUser, Content: "x"}})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestChatEmptyChoices(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"x","choices":[]}`)
	})
	_, err := p.Chat(context.Background(), []session.Message{{Role: session.RoleUser, Content: "x"}})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "empty chat response"))
}

func TestNewConfigFromProfile(t *testing.T) {
	p := &profile.Profile{
		AIAPIKey:      "k",
		AIBaseURL:     "http://localhost:8080/v1",
		AIChatModel:   "deepseek-chat",
		AISpeechVoice: "nova",
	}
	cfg := NewConfigFromProfile(p)

	assert.True(t, cfg.Enabled())
	assert.Equal(t, "http://localhost:8080/v1", cfg.BaseURL)
	assert.Equal(t, "deepseek-chat", cfg.LLM.Model)
	assert.Equal(t, "nova", cfg.Speech.Voice)
	assert.Equal(t, "whisper-1", cfg.Speech.TranscriptionModel)
	assert.NoError(t, cfg.Validate())

	assert.False(t, NewConfigFromProfile(&profile.Profile{}).Enabled())
}
