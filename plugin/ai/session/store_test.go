package session

import (
	"fmt"
	"sync"
	"testing"
)

func TestStoreDefaults(t *testing.T) {
	s := NewStore(nil)

	t.Run("UnknownUser_IsArchive", func(t *testing.T) {
		for _, id := range []int64{0, 1, 42, -7, 1 << 40} {
			if got := s.Mode(id); got != ModeArchive {
				t.Errorf("user %d: expected archive, got %s", id, got)
			}
		}
	})

	t.Run("UnknownUser_HasNoHistory", func(t *testing.T) {
		if h, ok := s.History(99); ok || h != nil {
			t.Errorf("expected no history, got %v", h)
		}
	})

	t.Run("MaxHistory", func(t *testing.T) {
		if s.MaxHistory() != 21 {
			t.Errorf("expected 21, got %d", s.MaxHistory())
		}
	})
}

func TestStartConversationSeedsSystemPrompt(t *testing.T) {
	s := NewStore(&Config{SystemPrompt: "be brief"})
	s.StartConversation(1)

	if s.Mode(1) != ModeConversational {
		t.Fatalf("expected conversational mode")
	}
	h, ok := s.History(1)
	if !ok || len(h) != 1 {
		t.Fatalf("expected one message, got %v", h)
	}
	if h[0] != (Message{Role: RoleSystem, Content: "be brief"}) {
		t.Errorf("unexpected system message %+v", h[0])
	}
}

func TestAppendTurnKeepsBound(t *testing.T) {
	s := NewStore(nil)
	s.StartConversation(1)

	for i := 1; i <= 60; i++ {
		role := RoleUser
		if i%2 == 0 {
			role = RoleAssistant
		}
		s.AppendTurn(1, role, fmt.Sprintf("m%d", i))

		h, _ := s.History(1)
		if len(h) > 21 {
			t.Fatalf("after %d appends history has %d entries", i, len(h))
		}
		if h[0].Role != RoleSystem {
			t.Fatalf("after %d appends history[0] is %s", i, h[0].Role)
		}
		if h[len(h)-1].Content != fmt.Sprintf("m%d", i) {
			t.Fatalf("newest message lost after %d appends", i)
		}
	}

	h, _ := s.History(1)
	if len(h) != 21 {
		t.Fatalf("expected 21 entries, got %d", len(h))
	}
	// Oldest non-system entries are evicted first and order is preserved.
	for i, m := range h[1:] {
		want := fmt.Sprintf("m%d", 41+i)
		if m.Content != want {
			t.Errorf("entry %d: expected %s, got %s", i+1, want, m.Content)
		}
	}
}

func TestAppendTurnWithoutConversationSeedsSystem(t *testing.T) {
	s := NewStore(nil)
	s.AppendTurn(5, RoleUser, "hi")

	h, ok := s.History(5)
	if !ok || len(h) != 2 {
		t.Fatalf("expected system + user, got %v", h)
	}
	if h[0].Role != RoleSystem || h[1].Content != "hi" {
		t.Errorf("unexpected history %v", h)
	}
}

func TestAppendExchange(t *testing.T) {
	s := NewStore(&Config{MaxTurns: 4})
	s.StartConversation(1)
	s.AppendExchange(1, "hello", "hi there")

	h, _ := s.History(1)
	want := []Message{
		{Role: RoleSystem, Content: DefaultSystemPrompt},
		{Role: RoleUser, Content: "hello"},
		{Role: RoleAssistant, Content: "hi there"},
	}
	if len(h) != len(want) {
		t.Fatalf("expected %v, got %v", want, h)
	}
	for i := range want {
		if h[i] != want[i] {
			t.Errorf("entry %d: expected %+v, got %+v", i, want[i], h[i])
		}
	}

	s.AppendExchange(1, "a", "b")
	s.AppendExchange(1, "c", "d")
	h, _ = s.History(1)
	if len(h) != 5 || h[0].Role != RoleSystem || h[1].Content != "a" || h[4].Content != "d" {
		t.Errorf("unexpected trimmed history %v", h)
	}
}

func TestResetIsIdempotent(t *testing.T) {
	s := NewStore(nil)
	s.StartConversation(3)
	s.AppendExchange(3, "q", "a")

	for i := 0; i < 2; i++ {
		s.Reset(3)
		if s.Mode(3) != ModeArchive {
			t.Errorf("reset %d: expected archive", i)
		}
		if h, ok := s.History(3); ok || len(h) != 0 {
			t.Errorf("reset %d: expected empty history, got %v", i, h)
		}
	}
}

func TestHistoryReturnsCopy(t *testing.T) {
	s := NewStore(nil)
	s.StartConversation(1)

	h, _ := s.History(1)
	h[0].Content = "mutated"

	h2, _ := s.History(1)
	if h2[0].Content == "mutated" {
		t.Error("History must not expose internal state")
	}
}

func TestSetModeKeepsHistory(t *testing.T) {
	s := NewStore(nil)
	s.StartConversation(1)
	s.SetMode(1, ModeArchive)

	if s.Mode(1) != ModeArchive {
		t.Error("expected archive mode")
	}
	if _, ok := s.History(1); !ok {
		t.Error("SetMode must not clear history")
	}
}

func TestUsersAreIsolated(t *testing.T) {
	s := NewStore(nil)
	// 1 and 33 share a shard.
	s.StartConversation(1)
	s.AppendTurn(1, RoleUser, "secret")

	if s.Mode(33) != ModeArchive {
		t.Error("user 33 must not see user 1's mode")
	}
	if _, ok := s.History(33); ok {
		t.Error("user 33 must not see user 1's history")
	}
}

func TestConcurrentAppendsNeverLoseTurns(t *testing.T) {
	s := NewStore(&Config{MaxTurns: 1000})
	const users, perUser = 8, 100

	var wg sync.WaitGroup
	for u := int64(0); u < users; u++ {
		s.StartConversation(u)
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func(u int64) {
				defer wg.Done()
				for i := 0; i < perUser/4; i++ {
					s.AppendTurn(u, RoleUser, "x")
				}
			}(u)
		}
	}
	wg.Wait()

	for u := int64(0); u < users; u++ {
		h, _ := s.History(u)
		if len(h) != perUser+1 {
			t.Errorf("user %d: expected %d entries, got %d", u, perUser+1, len(h))
		}
	}

	st := s.Stats()
	if st.Sessions != users || st.Conversational != users {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestModeString(t *testing.T) {
	if ModeArchive.String() != "archive" || ModeConversational.String() != "conversation" {
		t.Error("unexpected mode names")
	}
	if Mode(9).String() != "unknown" {
		t.Error("expected unknown for out of range mode")
	}
}
