package bot

import (
	"context"
	"log/slog"

	"github.com/hrygo/termrelay/plugin/telegram"
	aierrors "github.com/hrygo/termrelay/server/internal/errors"
	"github.com/hrygo/termrelay/server/internal/observability"
	"github.com/hrygo/termrelay/server/middleware"
)

// Deliverer sends replies through the transport, one visible message per reply.
type Deliverer struct {
	transport Transport
	pacer     *middleware.RateLimiter
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewDeliverer creates a deliverer. pacer and metrics may be nil.
func NewDeliverer(transport Transport, pacer *middleware.RateLimiter, metrics *observability.Metrics, logger *slog.Logger) *Deliverer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deliverer{transport: transport, pacer: pacer, metrics: metrics, logger: logger}
}

// Deliver sends replies in order. The first transport failure drops the
// remaining replies and is returned as TransportUnavailable.
func (d *Deliverer) Deliver(ctx context.Context, chatID int64, replies []Reply) error {
	for i, r := range replies {
		if err := d.deliverOne(ctx, chatID, r); err != nil {
			d.logAttrs(ctx, slog.LevelWarn, "reply dropped",
				slog.Int("chunk", i),
				slog.Int("chunks", len(replies)),
				slog.String(observability.LogFieldErrorCode, string(aierrors.ErrCodeTransportUnavailable)),
				slog.Any("error", err))
			return aierrors.TransportUnavailable("send reply", err)
		}
		if d.metrics != nil {
			d.metrics.RecordReply()
		}
	}
	return nil
}

func (d *Deliverer) deliverOne(ctx context.Context, chatID int64, r Reply) error {
	if err := d.pace(ctx, chatID); err != nil {
		return err
	}
	switch r.Kind {
	case ReplyVoice:
		return d.transport.SendVoice(ctx, chatID, r.Audio, "speech.ogg")
	case ReplyText:
		if r.Rich {
			err := d.sendRich(ctx, chatID, r.Text)
			if !aierrors.IsCode(err, aierrors.ErrCodeMalformedRichText) {
				return err
			}
			d.logAttrs(ctx, slog.LevelDebug, "rich text rejected, resending as plain text",
				slog.String(observability.LogFieldErrorCode, string(aierrors.ErrCodeMalformedRichText)),
				slog.Any("error", err))
		}
		_, err := d.transport.SendText(ctx, chatID, r.Text, "")
		return err
	}
	return nil
}

// sendRich renders Markdown and sends it as HTML. A rejected rendering is
// reported as MalformedRichText; nothing was shown to the user in that case.
// Rendering can lengthen a chunk past the limit, so a too-long rejection
// counts as a rejected rendering too.
func (d *Deliverer) sendRich(ctx context.Context, chatID int64, md string) error {
	_, err := d.transport.SendText(ctx, chatID, telegram.RenderHTML(md), telegram.ParseModeHTML)
	if telegram.IsParseError(err) || telegram.IsMessageTooLong(err) {
		return aierrors.MalformedRichText(err)
	}
	return err
}

// Replace edits a placeholder message into text. When there is no
// placeholder or the edit fails, text is sent as a new message.
func (d *Deliverer) Replace(ctx context.Context, chatID, messageID int64, text string) error {
	if messageID != 0 {
		err := d.transport.EditText(ctx, chatID, messageID, text, "")
		if err == nil {
			if d.metrics != nil {
				d.metrics.RecordReply()
			}
			return nil
		}
		d.logAttrs(ctx, slog.LevelDebug, "placeholder edit failed, sending new message", slog.Any("error", err))
	}
	return d.Deliver(ctx, chatID, []Reply{{Kind: ReplyText, Text: text}})
}

// Placeholder sends a transient status message and returns its id, or 0.
func (d *Deliverer) Placeholder(ctx context.Context, chatID int64, text string) int64 {
	if err := d.pace(ctx, chatID); err != nil {
		return 0
	}
	id, err := d.transport.SendText(ctx, chatID, text, "")
	if err != nil {
		d.logAttrs(ctx, slog.LevelWarn, "placeholder not sent", slog.Any("error", err))
		return 0
	}
	return id
}

func (d *Deliverer) pace(ctx context.Context, chatID int64) error {
	if d.pacer == nil {
		return nil
	}
	return d.pacer.WaitChat(ctx, chatID)
}

// logAttrs logs through the unit's request context when ctx carries one.
func (d *Deliverer) logAttrs(ctx context.Context, level slog.Level, msg string, attrs ...slog.Attr) {
	if rc, ok := observability.FromContext(ctx); ok {
		rc.Log(level, msg, attrs...)
		return
	}
	d.logger.LogAttrs(ctx, level, msg, attrs...)
}
