package session

import (
	"sync"
)

const (
	// DefaultMaxTurns is the number of non-system messages kept per user.
	DefaultMaxTurns = 20

	// DefaultSystemPrompt seeds every new conversation.
	DefaultSystemPrompt = "You are a helpful assistant in a Telegram chat. Answer concisely."

	shardCount = 32
)

// Config holds the session store configuration.
type Config struct {
	// SystemPrompt is the first message of every conversation.
	SystemPrompt string
	// MaxTurns bounds history to 1 system message plus MaxTurns entries.
	MaxTurns int
}

// DefaultConfig returns the default session store configuration.
func DefaultConfig() *Config {
	return &Config{
		SystemPrompt: DefaultSystemPrompt,
		MaxTurns:     DefaultMaxTurns,
	}
}

// Store is an in-memory SessionService. Users are spread over fixed shards;
// each shard lock only guards lookup, and each session has its own lock.
type Store struct {
	config *Config
	shards [shardCount]shard
}

type shard struct {
	mu       sync.Mutex
	sessions map[int64]*entry
}

type entry struct {
	mu      sync.Mutex
	mode    Mode
	history []Message
}

var _ SessionService = (*Store)(nil)

// NewStore creates a new in-memory session store.
func NewStore(config *Config) *Store {
	if config == nil {
		config = DefaultConfig()
	}
	if config.MaxTurns <= 0 {
		config.MaxTurns = DefaultMaxTurns
	}
	if config.SystemPrompt == "" {
		config.SystemPrompt = DefaultSystemPrompt
	}
	s := &Store{config: config}
	for i := range s.shards {
		s.shards[i].sessions = make(map[int64]*entry)
	}
	return s
}

// MaxHistory returns the largest history length the store keeps.
func (s *Store) MaxHistory() int {
	return s.config.MaxTurns + 1
}

func (s *Store) shardFor(userID int64) *shard {
	idx := uint64(userID) % shardCount
	return &s.shards[idx]
}

// lookup returns the user's entry, or nil when create is false and none exists.
func (s *Store) lookup(userID int64, create bool) *entry {
	sh := s.shardFor(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.sessions[userID]
	if !ok && create {
		e = &entry{mode: ModeArchive}
		sh.sessions[userID] = e
	}
	return e
}

// Mode returns the user's mode.
func (s *Store) Mode(userID int64) Mode {
	e := s.lookup(userID, false)
	if e == nil {
		return ModeArchive
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// SetMode changes the user's mode.
func (s *Store) SetMode(userID int64, mode Mode) {
	e := s.lookup(userID, true)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mode = mode
}

// History returns a copy of the user's history.
func (s *Store) History(userID int64) ([]Message, bool) {
	e := s.lookup(userID, false)
	if e == nil {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.history == nil {
		return nil, false
	}
	out := make([]Message, len(e.history))
	copy(out, e.history)
	return out, true
}

// Reset returns the user to archive mode with no history.
func (s *Store) Reset(userID int64) {
	e := s.lookup(userID, true)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mode = ModeArchive
	e.history = nil
}

// StartConversation switches to conversation mode with a fresh history.
func (s *Store) StartConversation(userID int64) {
	e := s.lookup(userID, true)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mode = ModeConversational
	e.history = []Message{s.systemMessage()}
}

// AppendTurn appends a message and trims the history.
func (s *Store) AppendTurn(userID int64, role Role, content string) {
	e := s.lookup(userID, true)
	e.mu.Lock()
	defer e.mu.Unlock()
	s.appendLocked(e, Message{Role: role, Content: content})
}

// AppendExchange appends a user message followed by the assistant reply.
func (s *Store) AppendExchange(userID int64, userContent, assistantContent string) {
	e := s.lookup(userID, true)
	e.mu.Lock()
	defer e.mu.Unlock()
	s.appendLocked(e,
		Message{Role: RoleUser, Content: userContent},
		Message{Role: RoleAssistant, Content: assistantContent},
	)
}

// appendLocked must be called with e.mu held.
func (s *Store) appendLocked(e *entry, msgs ...Message) {
	if len(e.history) == 0 || e.history[0].Role != RoleSystem {
		e.history = append([]Message{s.systemMessage()}, e.history...)
	}
	e.history = append(e.history, msgs...)
	e.history = trimHistory(e.history, s.MaxHistory())
}

func (s *Store) systemMessage() Message {
	return Message{Role: RoleSystem, Content: s.config.SystemPrompt}
}

// trimHistory keeps history[0] and the newest max-1 messages after it.
func trimHistory(history []Message, max int) []Message {
	if len(history) <= max {
		return history
	}
	out := make([]Message, 0, max)
	out = append(out, history[0])
	out = append(out, history[len(history)-(max-1):]...)
	return out
}

// Stats returns the number of known sessions and how many are conversational.
func (s *Store) Stats() Stats {
	var st Stats
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		entries := make([]*entry, 0, len(sh.sessions))
		for _, e := range sh.sessions {
			entries = append(entries, e)
		}
		sh.mu.Unlock()

		for _, e := range entries {
			st.Sessions++
			e.mu.Lock()
			if e.mode == ModeConversational {
				st.Conversational++
			}
			e.mu.Unlock()
		}
	}
	return st
}
