package bot

import (
	"fmt"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aierrors "github.com/hrygo/termrelay/server/internal/errors"
)

func TestChunk(t *testing.T) {
	const L = 10

	t.Run("3L+7 gives four chunks", func(t *testing.T) {
		body := strings.Repeat("0123456789", 3) + "abcdefg"
		chunks := Chunk(body, L)
		require.Len(t, chunks, 4)
		for _, c := range chunks[:3] {
			assert.Len(t, c, L)
		}
		assert.Equal(t, "abcdefg", chunks[3])
		assert.Equal(t, body, strings.Join(chunks, ""))
	})

	t.Run("exactly L is one chunk", func(t *testing.T) {
		assert.Equal(t, []string{"0123456789"}, Chunk("0123456789", L))
	})

	t.Run("empty text has no chunks", func(t *testing.T) {
		assert.Empty(t, Chunk("", L))
	})

	t.Run("counts characters not bytes", func(t *testing.T) {
		body := strings.Repeat("é", 25)
		chunks := Chunk(body, L)
		require.Len(t, chunks, 3)
		assert.Equal(t, 10, runeLen(chunks[0]))
		assert.Equal(t, 5, runeLen(chunks[2]))
		assert.Equal(t, body, strings.Join(chunks, ""))
	})

	t.Run("characters outside the BMP count twice", func(t *testing.T) {
		body := strings.Repeat("😀", 5)
		chunks := Chunk(body, 4)
		assert.Equal(t, []string{"😀😀", "😀😀", "😀"}, chunks)

		mixed := "abc😀"
		assert.Equal(t, []string{"abc", "😀"}, Chunk(mixed, 4))
		assert.Equal(t, []string{"😀", "😀"}, Chunk("😀😀", 1), "a character is never split")
	})

	t.Run("non-positive limit uses the transport limit", func(t *testing.T) {
		assert.Len(t, Chunk(strings.Repeat("a", 5000), 0), 2)
	})
}

func TestFormat(t *testing.T) {
	t.Run("text", func(t *testing.T) {
		replies := Format(Result{Text: "hello", Rich: true}, 100)
		assert.Equal(t, []Reply{{Kind: ReplyText, Text: "hello", Rich: true}}, replies)
	})

	t.Run("long text", func(t *testing.T) {
		replies := Format(Result{Text: strings.Repeat("z", 25)}, 10)
		require.Len(t, replies, 3)
		assert.Equal(t, "zzzzz", replies[2].Text)
	})

	t.Run("audio", func(t *testing.T) {
		replies := Format(Result{Audio: []byte("OggS")}, 100)
		assert.Equal(t, []Reply{{Kind: ReplyVoice, Audio: []byte("OggS")}}, replies)
	})

	t.Run("failure", func(t *testing.T) {
		replies := Format(Result{Text: "ignored", Err: aierrors.BackendTimeout(BackendCompletion, nil)}, 100)
		require.Len(t, replies, 1)
		assert.Equal(t, fmt.Sprintf(msgBackendTimeout, "AI"), replies[0].Text)
		assert.False(t, replies[0].Rich)
	})
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"timeout", aierrors.BackendTimeout(BackendArchive, nil), fmt.Sprintf(msgBackendTimeout, "termbin.com")},
		{"unavailable", aierrors.BackendUnavailable(BackendSynthesis, errors.New("boom")), fmt.Sprintf(msgBackendDown, "speech synthesis")},
		{"not configured", aierrors.BackendUnavailable(BackendCompletion, ErrBackendNotConfigured), fmt.Sprintf(msgBackendMissing, "AI")},
		{"wrapped", errors.Wrap(aierrors.BackendTimeout(BackendExtraction, nil), "pipeline"), fmt.Sprintf(msgBackendTimeout, "text recognition")},
		{"empty result", aierrors.EmptyResult(msgNoSpeech), msgNoSpeech},
		{"too large", aierrors.PayloadTooLarge("x"), msgPayloadTooLarge},
		{"transport", aierrors.TransportUnavailable("download", nil), msgTransportFailed},
		{"unknown backend", aierrors.BackendUnavailable("await canceled", nil), msgGenericFailure},
		{"untyped", errors.New("plain"), msgGenericFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Describe(tt.err))
		})
	}
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "abc", preview("abcdef", 3))
	assert.Equal(t, "ab", preview("ab", 3))
	assert.Equal(t, "жж", preview("жжж", 2))
}
