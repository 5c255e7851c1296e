package bot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/termrelay/plugin/telegram"
	aierrors "github.com/hrygo/termrelay/server/internal/errors"
	"github.com/hrygo/termrelay/server/internal/observability"
	"github.com/hrygo/termrelay/server/middleware"
)

func TestDeliverRichRendersHTML(t *testing.T) {
	tr := newFakeTransport()
	d := NewDeliverer(tr, nil, nil, nil)

	err := d.Deliver(context.Background(), 1, []Reply{{Kind: ReplyText, Text: "**hi** & bye", Rich: true}})
	require.NoError(t, err)

	assert.Equal(t, []string{"<b>hi</b> &amp; bye"}, tr.texts())
	assert.Equal(t, telegram.ParseModeHTML, tr.last().ParseMode)
}

func TestDeliverTransportFailureDropsRemaining(t *testing.T) {
	tr := newFakeTransport()
	tr.failSend = true
	metrics := observability.NewMetrics()
	d := NewDeliverer(tr, nil, metrics, nil)

	err := d.Deliver(context.Background(), 1, []Reply{{Kind: ReplyText, Text: "a"}, {Kind: ReplyText, Text: "b"}})

	assert.True(t, aierrors.IsCode(err, aierrors.ErrCodeTransportUnavailable))
	assert.Empty(t, tr.texts())
	assert.Equal(t, int64(0), metrics.Snapshot().RepliesSent)
}

func TestDeliverFailedRichSendIsNotRetriedOnOtherErrors(t *testing.T) {
	tr := newFakeTransport()
	tr.failSend = true
	d := NewDeliverer(tr, nil, nil, nil)

	err := d.Deliver(context.Background(), 1, []Reply{{Kind: ReplyText, Text: "x", Rich: true}})

	assert.Error(t, err)
	assert.Equal(t, 1, tr.richTries)
}

func TestDeliverRichTooLongAfterRenderingFallsBackToPlain(t *testing.T) {
	tr := newFakeTransport()
	tr.richLimit = 20
	d := NewDeliverer(tr, nil, nil, nil)

	// "---" renders as a wider rule, pushing the HTML past the limit.
	chunk := "a\n\n---\n\nb\n\n---\n\nc"
	require.LessOrEqual(t, len(chunk), 20)

	err := d.Deliver(context.Background(), 1, []Reply{
		{Kind: ReplyText, Text: chunk, Rich: true},
		{Kind: ReplyText, Text: "next", Rich: true},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{chunk, "next"}, tr.texts())
	assert.Equal(t, "", tr.messages[0].ParseMode)
	assert.Equal(t, 2, tr.richTries)
}

func TestReplace(t *testing.T) {
	tr := newFakeTransport()
	d := NewDeliverer(tr, nil, nil, nil)
	ctx := context.Background()

	id := d.Placeholder(ctx, 1, "working...")
	require.NotZero(t, id)
	require.NoError(t, d.Replace(ctx, 1, id, "done"))
	assert.Equal(t, []string{"done"}, tr.texts())

	// Unknown placeholder falls back to a new message.
	require.NoError(t, d.Replace(ctx, 1, 999, "fresh"))
	require.NoError(t, d.Replace(ctx, 1, 0, "fresh again"))
	assert.Equal(t, []string{"done", "fresh", "fresh again"}, tr.texts())
}

func TestPlaceholderFailure(t *testing.T) {
	tr := newFakeTransport()
	tr.failSend = true
	d := NewDeliverer(tr, nil, nil, nil)
	assert.Zero(t, d.Placeholder(context.Background(), 1, "working..."))
}

func TestDeliverPacedPerChat(t *testing.T) {
	tr := newFakeTransport()
	pacer := middleware.NewRateLimiter(1000, 10)
	d := NewDeliverer(tr, pacer, nil, nil)

	replies := []Reply{{Kind: ReplyText, Text: "1"}, {Kind: ReplyText, Text: "2"}, {Kind: ReplyVoice, Audio: []byte("a")}}
	require.NoError(t, d.Deliver(context.Background(), 5, replies))
	assert.Equal(t, []string{"1", "2"}, tr.texts())
	assert.Len(t, tr.voices, 1)
	assert.Equal(t, 1, pacer.Keys())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, d.Deliver(ctx, 6, replies[:1]))
}
