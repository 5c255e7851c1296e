package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu      sync.Mutex
	order   map[int64][]int64
	delay   func(u Unit) time.Duration
	block   map[int64]chan struct{}
	panicOn int64
}

func (r *recordingHandler) Handle(ctx context.Context, u Unit) {
	if u.MessageID == r.panicOn && r.panicOn != 0 {
		panic("handler exploded")
	}
	if ch, ok := r.block[u.UserID]; ok {
		<-ch
	}
	if r.delay != nil {
		time.Sleep(r.delay(u))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order[u.UserID] = append(r.order[u.UserID], u.MessageID)
}

func (r *recordingHandler) handled(user int64) []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.order[user]...)
}

func TestDispatcherKeepsPerUserOrder(t *testing.T) {
	h := &recordingHandler{
		order: make(map[int64][]int64),
		delay: func(u Unit) time.Duration {
			// Earlier units are slower, so reordering would show.
			return time.Duration(10-u.MessageID) * time.Millisecond
		},
	}
	d := NewDispatcher(context.Background(), h, nil)

	for i := int64(1); i <= 9; i++ {
		d.Submit(Unit{UserID: 1, MessageID: i})
		d.Submit(Unit{UserID: 2, MessageID: i})
	}
	d.Wait()

	want := []int64{1, 2, 3, 4, 5, 6, 7, 8, 9}
	assert.Equal(t, want, h.handled(1))
	assert.Equal(t, want, h.handled(2))
}

func TestDispatcherNoHeadOfLineBlocking(t *testing.T) {
	release := make(chan struct{})
	h := &recordingHandler{
		order: make(map[int64][]int64),
		block: map[int64]chan struct{}{1: release},
	}
	d := NewDispatcher(context.Background(), h, nil)

	d.Submit(Unit{UserID: 1, MessageID: 1})
	d.Submit(Unit{UserID: 2, MessageID: 1})

	require.Eventually(t, func() bool {
		return len(h.handled(2)) == 1
	}, time.Second, 5*time.Millisecond, "user 2 must not wait for user 1")
	assert.Empty(t, h.handled(1))

	close(release)
	d.Wait()
	assert.Equal(t, []int64{1}, h.handled(1))
}

func TestDispatcherRecoversPanics(t *testing.T) {
	h := &recordingHandler{order: make(map[int64][]int64), panicOn: 2}
	d := NewDispatcher(context.Background(), h, nil)

	d.Submit(Unit{UserID: 1, MessageID: 1})
	d.Submit(Unit{UserID: 1, MessageID: 2})
	d.Submit(Unit{UserID: 1, MessageID: 3})
	d.Wait()

	assert.Equal(t, []int64{1, 3}, h.handled(1))
	assert.Equal(t, int64(1), d.Panics())
}

func TestDispatcherWaitContext(t *testing.T) {
	release := make(chan struct{})
	h := &recordingHandler{
		order: make(map[int64][]int64),
		block: map[int64]chan struct{}{1: release},
	}
	d := NewDispatcher(context.Background(), h, nil)
	d.Submit(Unit{UserID: 1, MessageID: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.WaitContext(ctx), context.DeadlineExceeded)

	close(release)
	require.NoError(t, d.WaitContext(context.Background()))
}

func TestDispatcherWithHandlerSerializesHistory(t *testing.T) {
	tb := newTestBot(t, time.Second, nil)
	tb.text("/chat")
	d := NewDispatcher(context.Background(), tb.handler, nil)

	for i := 0; i < 15; i++ {
		d.Submit(Unit{Kind: UnitText, UserID: testUser, ChatID: testChat, Text: "turn"})
	}
	d.Wait()

	history, ok := tb.sessions.History(testUser)
	require.True(t, ok)
	assert.Len(t, history, 21)
	for i := 1; i < len(history); i++ {
		if i%2 == 1 {
			assert.Equal(t, "turn", history[i].Content)
		} else {
			assert.Equal(t, "ok", history[i].Content)
		}
	}
}
