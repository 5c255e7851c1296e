package bot

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// UnitHandler processes one unit.
type UnitHandler interface {
	Handle(ctx context.Context, u Unit)
}

// Dispatcher runs units of one user strictly in acceptance order and units
// of different users concurrently. Submit never blocks.
type Dispatcher struct {
	ctx     context.Context
	handler UnitHandler
	logger  *slog.Logger

	queues  sync.Map // user id -> *userQueue
	pending sync.WaitGroup
	panics  atomic.Int64
}

type userQueue struct {
	mu      sync.Mutex
	units   []Unit
	running bool
}

// NewDispatcher creates a dispatcher. Units are handled with ctx.
func NewDispatcher(ctx context.Context, handler UnitHandler, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{ctx: ctx, handler: handler, logger: logger}
}

// Submit queues a unit behind the sender's earlier units.
func (d *Dispatcher) Submit(u Unit) {
	d.pending.Add(1)
	v, _ := d.queues.LoadOrStore(u.UserID, &userQueue{})
	q := v.(*userQueue)

	q.mu.Lock()
	q.units = append(q.units, u)
	start := !q.running
	q.running = true
	q.mu.Unlock()

	if start {
		go d.drain(q)
	}
}

// drain handles queued units until the queue is empty.
func (d *Dispatcher) drain(q *userQueue) {
	for {
		q.mu.Lock()
		if len(q.units) == 0 {
			q.running = false
			q.mu.Unlock()
			return
		}
		u := q.units[0]
		q.units[0] = Unit{}
		q.units = q.units[1:]
		q.mu.Unlock()

		d.handle(u)
		d.pending.Done()
	}
}

// handle runs one unit; a panic is logged and the queue moves on.
func (d *Dispatcher) handle(u Unit) {
	defer func() {
		if r := recover(); r != nil {
			d.panics.Add(1)
			d.logger.Error("unit handler panicked",
				slog.Int64("user_id", u.UserID),
				slog.Int64("chat_id", u.ChatID),
				slog.String("panic", fmt.Sprint(r)),
				slog.String("stack", string(debug.Stack())))
		}
	}()
	d.handler.Handle(d.ctx, u)
}

// Wait blocks until every submitted unit has been handled.
func (d *Dispatcher) Wait() {
	d.pending.Wait()
}

// WaitContext is Wait bounded by ctx.
func (d *Dispatcher) WaitContext(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Panics returns the number of recovered handler panics.
func (d *Dispatcher) Panics() int64 {
	return d.panics.Load()
}
