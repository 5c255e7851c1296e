package bot

import (
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/termrelay/plugin/ai/session"
	"github.com/hrygo/termrelay/plugin/telegram"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text     string
		bot      string
		wantName string
		wantArgs string
		wantOK   bool
	}{
		{"/start", "", "start", "", true},
		{"/say hello world", "", "say", "hello world", true},
		{"/say   spaced  ", "", "say", "spaced", true},
		{"/say\nnext line", "", "say", "next line", true},
		{"/chat@relay_bot", "relay_bot", "chat", "", true},
		{"/chat@Relay_Bot", "relay_bot", "chat", "", true},
		{"/chat@other_bot", "relay_bot", "", "", false},
		{"/chat@other_bot", "", "chat", "", true},
		{"/Start", "", "Start", "", true},
		{"/", "", "", "", false},
		{"hello", "", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			name, args, ok := ParseCommand(tt.text, tt.bot)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestStartResetsSession(t *testing.T) {
	tb := newTestBot(t, time.Second, nil)
	tb.text("/chat")
	tb.text("hello")
	tb.transport.reset()

	tb.text("/start")

	assert.Equal(t, []string{msgStart}, tb.transport.texts())
	assert.Equal(t, session.ModeArchive, tb.sessions.Mode(testUser))
	_, ok := tb.sessions.History(testUser)
	assert.False(t, ok)
}

func TestExitIsIdempotent(t *testing.T) {
	tb := newTestBot(t, time.Second, nil)
	tb.text("/chat")
	tb.text("hello")

	for i := 0; i < 2; i++ {
		tb.transport.reset()
		tb.text("/exit")

		assert.Equal(t, []string{msgChatExited}, tb.transport.texts())
		assert.Equal(t, session.ModeArchive, tb.sessions.Mode(testUser))
		history, ok := tb.sessions.History(testUser)
		assert.False(t, ok)
		assert.Empty(t, history)
	}
}

func TestModeCommand(t *testing.T) {
	tb := newTestBot(t, time.Second, nil)
	tb.text("/mode")
	assert.Equal(t, msgModeArchive, tb.transport.last().Text)

	tb.text("/chat")
	tb.text("hello")
	tb.text("/mode")
	assert.Equal(t, fmt.Sprintf(msgModeConversation, 3), tb.transport.last().Text)
	assert.Equal(t, session.ModeConversational, tb.sessions.Mode(testUser), "/mode must not mutate")
}

func TestHelpAndUnknown(t *testing.T) {
	tb := newTestBot(t, time.Second, nil)
	tb.text("/help")
	tb.text("/frobnicate")
	tb.text("/Chat")

	assert.Equal(t, []string{msgHelp, msgUnknownCommand, msgUnknownCommand}, tb.transport.texts())
	assert.Equal(t, session.ModeArchive, tb.sessions.Mode(testUser))
}

func TestCommandForAnotherBotIsIgnored(t *testing.T) {
	tb := newTestBot(t, time.Second, func(cfg *Config, _ *Backends) {
		cfg.BotUsername = "@relay_bot"
	})
	tb.text("/chat@other_bot")
	assert.Empty(t, tb.transport.texts())
	assert.Equal(t, session.ModeArchive, tb.sessions.Mode(testUser))

	tb.text("/chat@relay_bot")
	assert.Equal(t, session.ModeConversational, tb.sessions.Mode(testUser))
}

func TestSetBotUsername(t *testing.T) {
	tb := newTestBot(t, time.Second, nil)
	tb.handler.SetBotUsername("@relay_bot")

	tb.text("/help@other_bot")
	assert.Empty(t, tb.transport.texts())

	tb.text("/help@Relay_Bot")
	assert.Equal(t, []string{msgHelp}, tb.transport.texts())
}

func TestSay(t *testing.T) {
	t.Run("usage without arguments", func(t *testing.T) {
		tb := newTestBot(t, time.Second, nil)
		tb.text("/say")
		tb.text("/say    ")

		assert.Equal(t, []string{msgSayUsage, msgSayUsage}, tb.transport.texts())
		assert.Empty(t, tb.synth.calls)
	})

	t.Run("replies with voice", func(t *testing.T) {
		tb := newTestBot(t, time.Second, nil)
		tb.text("/say good morning")

		require.Len(t, tb.transport.voices, 1)
		assert.Equal(t, []byte("OggS"), tb.transport.voices[0])
		assert.Equal(t, []string{"good morning"}, tb.synth.calls)
		assert.Empty(t, tb.transport.texts())
		assert.Contains(t, tb.transport.actions, telegram.ChatActionRecordVoice)
	})

	t.Run("failure", func(t *testing.T) {
		tb := newTestBot(t, time.Second, nil)
		tb.synth.err = errors.New("tts: 503")
		tb.text("/say hi")

		assert.Equal(t, []string{fmt.Sprintf(msgBackendDown, "speech synthesis")}, tb.transport.texts())
		assert.Empty(t, tb.transport.voices)
	})

	t.Run("empty audio is a failure", func(t *testing.T) {
		tb := newTestBot(t, time.Second, nil)
		tb.synth.audio = nil
		tb.text("/say hi")

		assert.Equal(t, []string{fmt.Sprintf(msgBackendDown, "speech synthesis")}, tb.transport.texts())
	})

	t.Run("mode is unchanged", func(t *testing.T) {
		tb := newTestBot(t, time.Second, nil)
		tb.text("/chat")
		tb.text("/say hi")
		assert.Equal(t, session.ModeConversational, tb.sessions.Mode(testUser))
		history, _ := tb.sessions.History(testUser)
		assert.Len(t, history, 1)
	})
}
