// Package session holds per-user conversation mode and bounded chat history.
// State lives in process memory only and is lost on restart.
package session

// Mode is the conversational mode of a user.
type Mode int

const (
	// ModeArchive uploads plain text to the archive backend. It is the default.
	ModeArchive Mode = iota
	// ModeConversational accumulates text into an LLM conversation.
	ModeConversational
)

// String returns the human readable mode name.
func (m Mode) String() string {
	switch m {
	case ModeArchive:
		return "archive"
	case ModeConversational:
		return "conversation"
	default:
		return "unknown"
	}
}

// Role is the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a conversation message.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SessionService defines the per-user session operations.
// Every method is keyed by user identity and never observes another user's state.
type SessionService interface {
	// Mode returns the user's mode, ModeArchive when the user is unknown.
	Mode(userID int64) Mode

	// SetMode changes the user's mode without touching history.
	SetMode(userID int64, mode Mode)

	// History returns a copy of the user's history and whether one exists.
	History(userID int64) ([]Message, bool)

	// Reset sets the mode to ModeArchive and clears history.
	Reset(userID int64)

	// StartConversation sets ModeConversational and seeds history with the system prompt.
	StartConversation(userID int64)

	// AppendTurn appends one message and trims history to the configured bound.
	AppendTurn(userID int64, role Role, content string)

	// AppendExchange appends a user message and the assistant reply in one step.
	AppendExchange(userID int64, userContent, assistantContent string)
}

// Stats summarizes store occupancy.
type Stats struct {
	Sessions       int `json:"sessions"`
	Conversational int `json:"conversational"`
}
