package bot

import (
	"context"
	stderrors "errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hrygo/termrelay/plugin/ai/session"
	"github.com/hrygo/termrelay/plugin/telegram"
	aierrors "github.com/hrygo/termrelay/server/internal/errors"
	"github.com/hrygo/termrelay/server/internal/observability"
	"github.com/hrygo/termrelay/server/runner/offload"
)

// archiveText uploads the text behind a placeholder that is edited into the result.
func (h *Handler) archiveText(ctx context.Context, u Unit, _ session.Mode) error {
	placeholder := h.deliverer.Placeholder(ctx, u.ChatID, msgUploading)

	link, err := h.archive(ctx, u.Text)
	reply := msgArchived + link
	if err != nil {
		reply = Describe(err)
	}
	if derr := h.deliverer.Replace(ctx, u.ChatID, placeholder, reply); derr != nil && err == nil {
		return derr
	}
	return err
}

func (h *Handler) archive(ctx context.Context, text string) (string, error) {
	return offload.Run(ctx, h.pool, BackendArchive, func(ctx context.Context) (string, error) {
		return h.backends.Archive.Archive(ctx, []byte(text))
	}).Await(ctx)
}

func (h *Handler) converseText(ctx context.Context, u Unit, _ session.Mode) error {
	return h.converse(ctx, u, u.Text)
}

// converse sends history plus prompt to the completion backend. History is
// only extended when a reply arrives.
func (h *Handler) converse(ctx context.Context, u Unit, prompt string) error {
	history, ok := h.sessions.History(u.UserID)
	if !ok {
		h.sessions.StartConversation(u.UserID)
		history, _ = h.sessions.History(u.UserID)
	}
	messages := append(history, session.Message{Role: session.RoleUser, Content: prompt})

	stop := h.startChatAction(ctx, u.ChatID, telegram.ChatActionTyping)
	reply, err := offload.Run(ctx, h.pool, BackendCompletion, func(ctx context.Context) (string, error) {
		return h.backends.Completion.Complete(ctx, messages)
	}).Await(ctx)
	stop()

	if err == nil && strings.TrimSpace(reply) == "" {
		err = aierrors.EmptyResult(msgEmptyCompletion)
	}
	if err != nil {
		h.deliver(ctx, u.ChatID, Result{Err: err})
		return err
	}

	h.sessions.AppendExchange(u.UserID, prompt, reply)
	h.deliver(ctx, u.ChatID, Result{Text: reply, Rich: true})
	return nil
}

// extractPhoto reads the text in an image. In conversation mode the text,
// after the caption if any, becomes the prompt.
func (h *Handler) extractPhoto(ctx context.Context, u Unit, mode session.Mode) error {
	image, err := h.download(ctx, u)
	if err != nil {
		h.deliver(ctx, u.ChatID, Result{Err: err})
		return err
	}

	text, err := offload.Run(ctx, h.pool, BackendExtraction, func(ctx context.Context) (string, error) {
		return h.backends.Extraction.ExtractText(ctx, image, u.MimeType)
	}).Await(ctx)
	if err != nil {
		h.deliver(ctx, u.ChatID, Result{Err: err})
		return err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		err := aierrors.EmptyResult(msgNoTextFound)
		h.deliver(ctx, u.ChatID, Result{Err: err})
		return err
	}

	if mode == session.ModeConversational {
		prompt := text
		if caption := strings.TrimSpace(u.Text); caption != "" {
			prompt = caption + "\n\n" + text
		}
		return h.converse(ctx, u, prompt)
	}
	return h.present(ctx, u.ChatID, text)
}

// transcribeVoice converts speech to text. In conversation mode the
// transcript is handled exactly like a text message.
func (h *Handler) transcribeVoice(ctx context.Context, u Unit, mode session.Mode) error {
	audio, err := h.download(ctx, u)
	if err != nil {
		h.deliver(ctx, u.ChatID, Result{Err: err})
		return err
	}

	filename := u.FileName
	if filename == "" {
		filename = "voice.ogg"
	}
	transcript, err := offload.Run(ctx, h.pool, BackendTranscription, func(ctx context.Context) (string, error) {
		return h.backends.Transcription.Transcribe(ctx, audio, filename)
	}).Await(ctx)
	if err != nil {
		h.deliver(ctx, u.ChatID, Result{Err: err})
		return err
	}
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		err := aierrors.EmptyResult(msgNoSpeech)
		h.deliver(ctx, u.ChatID, Result{Err: err})
		return err
	}

	if mode == session.ModeConversational {
		return h.converse(ctx, u, transcript)
	}
	return h.present(ctx, u.ChatID, transcript)
}

// present shows text directly, or archives it with a preview when it is
// longer than the display threshold. If archiving fails the full text is sent.
func (h *Handler) present(ctx context.Context, chatID int64, text string) error {
	if runeLen(text) <= h.config.DisplayThreshold {
		h.deliver(ctx, chatID, Result{Text: text})
		return nil
	}

	if rc, ok := observability.FromContext(ctx); ok {
		rc.Debug("text above display threshold, archiving",
			slog.String(observability.LogFieldErrorCode, string(aierrors.ErrCodePayloadTooLarge)),
			slog.Int(observability.LogFieldMessageLen, runeLen(text)))
	}
	link, err := h.archive(ctx, text)
	if err != nil {
		if rc, ok := observability.FromContext(ctx); ok {
			rc.Warn("archive fallback failed, sending full text",
				slog.String(observability.LogFieldErrorCode, string(aierrors.GetCodeFromError(err, aierrors.ErrCodeBackendUnavailable))))
		}
		h.deliver(ctx, chatID, Result{Text: text})
		return nil
	}
	h.deliver(ctx, chatID, Result{Text: preview(text, h.config.PreviewLength) + msgFullText + link})
	return nil
}

// download fetches the unit's attachment, refusing files over the transport limit.
func (h *Handler) download(ctx context.Context, u Unit) ([]byte, error) {
	if u.FileSize > telegram.MaxDownloadBytes {
		return nil, aierrors.PayloadTooLarge("attachment exceeds download limit")
	}
	data, err := h.transport.Download(ctx, u.FileID)
	switch {
	case stderrors.Is(err, telegram.ErrFileTooLarge):
		return nil, aierrors.PayloadTooLarge("attachment exceeds download limit")
	case err != nil:
		return nil, aierrors.TransportUnavailable("download attachment", err)
	}
	return data, nil
}

// deliver formats and sends a result. Transport failures are logged by the deliverer.
func (h *Handler) deliver(ctx context.Context, chatID int64, res Result) {
	_ = h.deliverer.Deliver(ctx, chatID, Format(res, h.config.MaxMessageLength))
}

// startChatAction shows action until the returned stop function is called.
// stop waits for the refresher to exit.
func (h *Handler) startChatAction(ctx context.Context, chatID int64, action string) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(h.config.TypingInterval)
		defer ticker.Stop()
		for {
			// Best effort: a failed action never affects the reply.
			_ = h.transport.SendChatAction(ctx, chatID, action)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}
