// Package bot routes inbound chat units to backend pipelines by session mode,
// offloads backend calls and delivers formatted replies.
package bot

import (
	"context"

	"github.com/pkg/errors"

	"github.com/hrygo/termrelay/plugin/ai/session"
	aierrors "github.com/hrygo/termrelay/server/internal/errors"
)

// Backend names used in logs, metrics and failures.
const (
	BackendArchive       = "archive"
	BackendCompletion    = "completion"
	BackendExtraction    = "extraction"
	BackendTranscription = "transcription"
	BackendSynthesis     = "synthesis"
)

// ErrBackendNotConfigured is the cause of failures from a missing backend.
var ErrBackendNotConfigured = errors.New("backend not configured")

// Archiver stores a text blob and returns its retrieval URL.
type Archiver interface {
	Archive(ctx context.Context, data []byte) (string, error)
}

// Completer answers an ordered conversation.
type Completer interface {
	Complete(ctx context.Context, messages []session.Message) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, messages []session.Message) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, messages []session.Message) (string, error) {
	return f(ctx, messages)
}

// Extractor recognizes text in an image. No text is an empty string, not an error.
type Extractor interface {
	ExtractText(ctx context.Context, image []byte, mimeType string) (string, error)
}

// Transcriber converts speech to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// Synthesizer converts text to OGG/Opus speech.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Transport is the outbound side of the chat transport.
type Transport interface {
	SendText(ctx context.Context, chatID int64, text, parseMode string) (int64, error)
	EditText(ctx context.Context, chatID, messageID int64, text, parseMode string) error
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	SendVoice(ctx context.Context, chatID int64, audio []byte, filename string) error
	SendChatAction(ctx context.Context, chatID int64, action string) error
	Download(ctx context.Context, fileID string) ([]byte, error)
}

// Backends groups the collaborators. A nil field marks a backend as not
// configured; its pipelines reply with a BackendUnavailable failure.
type Backends struct {
	Archive       Archiver
	Completion    Completer
	Extraction    Extractor
	Transcription Transcriber
	Synthesis     Synthesizer
}

// unavailable stands in for a missing backend.
type unavailable struct{}

func (unavailable) Archive(context.Context, []byte) (string, error) {
	return "", aierrors.BackendUnavailable(BackendArchive, ErrBackendNotConfigured)
}

func (unavailable) Complete(context.Context, []session.Message) (string, error) {
	return "", aierrors.BackendUnavailable(BackendCompletion, ErrBackendNotConfigured)
}

func (unavailable) ExtractText(context.Context, []byte, string) (string, error) {
	return "", aierrors.BackendUnavailable(BackendExtraction, ErrBackendNotConfigured)
}

func (unavailable) Transcribe(context.Context, []byte, string) (string, error) {
	return "", aierrors.BackendUnavailable(BackendTranscription, ErrBackendNotConfigured)
}

func (unavailable) Synthesize(context.Context, string) ([]byte, error) {
	return nil, aierrors.BackendUnavailable(BackendSynthesis, ErrBackendNotConfigured)
}

// withDefaults replaces missing backends with unavailable stubs.
func (b Backends) withDefaults() Backends {
	if b.Archive == nil {
		b.Archive = unavailable{}
	}
	if b.Completion == nil {
		b.Completion = unavailable{}
	}
	if b.Extraction == nil {
		b.Extraction = unavailable{}
	}
	if b.Transcription == nil {
		b.Transcription = unavailable{}
	}
	if b.Synthesis == nil {
		b.Synthesis = unavailable{}
	}
	return b
}
