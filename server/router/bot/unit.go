package bot

import (
	"strings"

	"github.com/hrygo/termrelay/plugin/telegram"
)

// UnitKind is the kind of an inbound unit.
type UnitKind int

const (
	UnitText UnitKind = iota
	UnitPhoto
	UnitVoice
	UnitCommand
	// UnitUnsupported is media the bot cannot process, such as a PDF or a sticker.
	UnitUnsupported
)

func (k UnitKind) String() string {
	switch k {
	case UnitText:
		return "text"
	case UnitPhoto:
		return "photo"
	case UnitVoice:
		return "voice"
	case UnitCommand:
		return "command"
	case UnitUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Unit is one inbound message.
type Unit struct {
	Kind      UnitKind
	ChatID    int64
	UserID    int64
	MessageID int64
	// Text is the message text, the media caption or the full command line.
	Text string

	FileID   string
	FileName string
	MimeType string
	FileSize int64
}

// UnitFromMessage converts a Telegram message into a unit. Media the bot
// cannot process becomes UnitUnsupported. Messages without content the bot
// answers, such as service messages or messages from bots, report false.
func UnitFromMessage(msg *telegram.Message) (Unit, bool) {
	if msg == nil || msg.Chat == nil || msg.From == nil || msg.From.IsBot {
		return Unit{}, false
	}
	u := Unit{
		ChatID:    msg.Chat.ID,
		UserID:    msg.From.ID,
		MessageID: msg.MessageID,
	}

	switch {
	case msg.Text != "":
		u.Text = msg.Text
		u.Kind = UnitText
		if strings.HasPrefix(msg.Text, "/") {
			u.Kind = UnitCommand
		}
		return u, true

	case len(msg.Photo) > 0:
		p := msg.LargestPhoto()
		u.Kind = UnitPhoto
		u.Text = msg.Caption
		u.FileID = p.FileID
		u.FileSize = p.FileSize
		u.MimeType = "image/jpeg"
		return u, true

	case msg.Voice != nil:
		u.Kind = UnitVoice
		u.Text = msg.Caption
		u.FileID = msg.Voice.FileID
		u.FileSize = msg.Voice.FileSize
		u.MimeType = msg.Voice.MimeType
		u.FileName = "voice.ogg"
		return u, true

	case msg.Audio != nil:
		u.Kind = UnitVoice
		u.Text = msg.Caption
		u.FileID = msg.Audio.FileID
		u.FileSize = msg.Audio.FileSize
		u.MimeType = msg.Audio.MimeType
		u.FileName = msg.Audio.FileName
		return u, true

	case msg.Document != nil:
		doc := msg.Document
		mime := strings.ToLower(doc.MimeType)
		u.Text = msg.Caption
		u.FileID = doc.FileID
		u.FileSize = doc.FileSize
		u.MimeType = doc.MimeType
		u.FileName = doc.FileName
		switch {
		case strings.HasPrefix(mime, "image/"):
			u.Kind = UnitPhoto
			return u, true
		case strings.HasPrefix(mime, "audio/"):
			u.Kind = UnitVoice
			return u, true
		}
		u.Kind = UnitUnsupported
		return u, true

	case msg.Sticker != nil, msg.Video != nil, msg.VideoNote != nil, msg.Animation != nil:
		u.Kind = UnitUnsupported
		u.Text = msg.Caption
		return u, true
	}
	return Unit{}, false
}
