package bot

import (
	stderrors "errors"
	"fmt"
	"unicode/utf16"

	"github.com/hrygo/termrelay/plugin/telegram"
	aierrors "github.com/hrygo/termrelay/server/internal/errors"
)

// ReplyKind is the kind of an outbound message.
type ReplyKind int

const (
	ReplyText ReplyKind = iota
	ReplyVoice
)

// Reply is one outbound message.
type Reply struct {
	Kind ReplyKind
	Text string
	// Rich marks Text as Markdown to be rendered before sending.
	Rich  bool
	Audio []byte
}

// Result is the outcome of a pipeline: text, audio or a typed failure.
type Result struct {
	Text  string
	Rich  bool
	Audio []byte
	Err   error
}

// Format turns a result into the ordered replies that carry it, each text
// reply holding at most maxLen characters.
func Format(res Result, maxLen int) []Reply {
	switch {
	case res.Err != nil:
		return []Reply{{Kind: ReplyText, Text: Describe(res.Err)}}
	case res.Audio != nil:
		return []Reply{{Kind: ReplyVoice, Audio: res.Audio}}
	}

	chunks := Chunk(res.Text, maxLen)
	replies := make([]Reply, 0, len(chunks))
	for _, c := range chunks {
		replies = append(replies, Reply{Kind: ReplyText, Text: c, Rich: res.Rich})
	}
	return replies
}

// Chunk splits text into consecutive pieces of at most maxLen characters as
// Telegram counts them (UTF-16 code units), never splitting a character.
// Joining the pieces yields text again.
func Chunk(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = telegram.MaxMessageLength
	}
	if text == "" {
		return nil
	}

	var chunks []string
	start, units := 0, 0
	for i, r := range text {
		n := utf16Len(r)
		if units > 0 && units+n > maxLen {
			chunks = append(chunks, text[start:i])
			start, units = i, 0
		}
		units += n
	}
	return append(chunks, text[start:])
}

// utf16Len is the number of UTF-16 code units r occupies.
func utf16Len(r rune) int {
	if n := utf16.RuneLen(r); n > 0 {
		return n
	}
	return 1
}

// preview returns the first n runes of text.
func preview(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}

func runeLen(s string) int {
	return len([]rune(s))
}

var backendLabels = map[string]string{
	BackendArchive:       "termbin.com",
	BackendCompletion:    "AI",
	BackendExtraction:    "text recognition",
	BackendTranscription: "speech recognition",
	BackendSynthesis:     "speech synthesis",
}

// Describe returns the user-facing text for a failure.
func Describe(err error) string {
	aiErr, ok := aierrors.As(err)
	if !ok {
		return msgGenericFailure
	}
	label, known := backendLabels[aiErr.Message]

	switch aiErr.Code {
	case aierrors.ErrCodeEmptyResult:
		return aiErr.Message
	case aierrors.ErrCodeBackendTimeout:
		if known {
			return fmt.Sprintf(msgBackendTimeout, label)
		}
	case aierrors.ErrCodeBackendUnavailable:
		if !known {
			break
		}
		if stderrors.Is(aiErr, ErrBackendNotConfigured) {
			return fmt.Sprintf(msgBackendMissing, label)
		}
		return fmt.Sprintf(msgBackendDown, label)
	case aierrors.ErrCodePayloadTooLarge:
		return msgPayloadTooLarge
	case aierrors.ErrCodeTransportUnavailable:
		return msgTransportFailed
	}
	return msgGenericFailure
}
