package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/termrelay/plugin/ai/session"
	"github.com/hrygo/termrelay/plugin/telegram"
	aierrors "github.com/hrygo/termrelay/server/internal/errors"
	"github.com/hrygo/termrelay/server/runner/offload"
)

var errEmptyAudio = errors.New("synthesis returned no audio")

// Command names, without the leading slash.
const (
	CommandStart = "start"
	CommandHelp  = "help"
	CommandChat  = "chat"
	CommandExit  = "exit"
	CommandMode  = "mode"
	CommandSay   = "say"
)

// ParseCommand splits "/name@bot args" into name and args. ok is false when
// text is not a command or is addressed to another bot.
func ParseCommand(text, botUsername string) (name, args string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, rest, _ := strings.Cut(text[1:], " ")
	if i := strings.IndexAny(head, "\n\t"); i >= 0 {
		rest = head[i+1:] + " " + rest
		head = head[:i]
	}
	name, target, addressed := strings.Cut(head, "@")
	if addressed && botUsername != "" && !strings.EqualFold(target, botUsername) {
		return "", "", false
	}
	if name == "" {
		return "", "", false
	}
	return name, strings.TrimSpace(rest), true
}

// runCommand interprets a command. Only /say reaches a backend.
func (h *Handler) runCommand(ctx context.Context, u Unit, mode session.Mode) error {
	name, args, ok := ParseCommand(u.Text, h.config.BotUsername)
	if !ok {
		return nil
	}

	var reply string
	switch name {
	case CommandStart:
		h.sessions.Reset(u.UserID)
		reply = msgStart
	case CommandHelp:
		reply = msgHelp
	case CommandChat:
		h.sessions.StartConversation(u.UserID)
		reply = msgChatEntered
		if !h.chatReady {
			reply += msgChatUnavailable
		}
	case CommandExit:
		h.sessions.Reset(u.UserID)
		reply = msgChatExited
	case CommandMode:
		reply = h.describeMode(u.UserID, mode)
	case CommandSay:
		if args == "" {
			reply = msgSayUsage
			break
		}
		return h.say(ctx, u, args)
	default:
		reply = msgUnknownCommand
	}

	h.deliver(ctx, u.ChatID, Result{Text: reply})
	return nil
}

func (h *Handler) describeMode(userID int64, mode session.Mode) string {
	switch mode {
	case session.ModeConversational:
		history, _ := h.sessions.History(userID)
		return fmt.Sprintf(msgModeConversation, len(history))
	default:
		return msgModeArchive
	}
}

// say synthesizes text and replies with a voice message.
func (h *Handler) say(ctx context.Context, u Unit, text string) error {
	stop := h.startChatAction(ctx, u.ChatID, telegram.ChatActionRecordVoice)
	audio, err := offload.Run(ctx, h.pool, BackendSynthesis, func(ctx context.Context) ([]byte, error) {
		return h.backends.Synthesis.Synthesize(ctx, text)
	}).Await(ctx)
	stop()

	if err == nil && len(audio) == 0 {
		err = aierrors.BackendUnavailable(BackendSynthesis, errEmptyAudio)
	}
	if err != nil {
		h.deliver(ctx, u.ChatID, Result{Err: err})
		return err
	}
	h.deliver(ctx, u.ChatID, Result{Audio: audio})
	return nil
}
