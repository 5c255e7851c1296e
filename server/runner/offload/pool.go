// Package offload runs blocking backend calls off the message-handling path.
// Calls are bounded by a weighted semaphore and each carries a deadline, so a
// stuck backend only degrades the reply that is waiting for it.
package offload

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/hrygo/termrelay/plugin/ai/timeout"
	aierrors "github.com/hrygo/termrelay/server/internal/errors"
)

// DefaultWorkers is the default number of concurrent backend calls.
const DefaultWorkers = 8

// Config holds the pool configuration.
type Config struct {
	// Workers is the maximum number of backend calls running at once.
	Workers int
	// Timeout bounds each call, including the wait for a free slot.
	Timeout time.Duration
}

// Pool bounds concurrent backend calls.
type Pool struct {
	sem      *semaphore.Weighted
	workers  int
	timeout  time.Duration
	inFlight atomic.Int64
}

// NewPool creates a new pool.
func NewPool(cfg *Config) *Pool {
	workers := DefaultWorkers
	callTimeout := timeout.BackendTimeout
	if cfg != nil {
		if cfg.Workers > 0 {
			workers = cfg.Workers
		}
		if cfg.Timeout > 0 {
			callTimeout = cfg.Timeout
		}
	}
	return &Pool{
		sem:     semaphore.NewWeighted(int64(workers)),
		workers: workers,
		timeout: callTimeout,
	}
}

// Workers returns the pool size.
func (p *Pool) Workers() int {
	return p.workers
}

// InFlight returns the number of calls currently holding a slot.
func (p *Pool) InFlight() int64 {
	return p.inFlight.Load()
}

// Future is the pending result of one offloaded call.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the call finishes or ctx ends.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, aierrors.Wrap(ctx.Err(), aierrors.ErrCodeBackendUnavailable, "await canceled")
	}
}

type outcome[T any] struct {
	value T
	err   error
}

// Run starts fn on the pool and returns immediately. backend names the
// collaborator in failures. fn receives a context that expires with the
// pool timeout; if fn ignores it, the slot is still released at the deadline.
func Run[T any](ctx context.Context, p *Pool, backend string, fn func(context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}

	go func() {
		defer close(f.done)

		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()

		if err := p.sem.Acquire(callCtx, 1); err != nil {
			f.err = classify(backend, callCtx, err)
			return
		}
		p.inFlight.Add(1)
		defer func() {
			p.inFlight.Add(-1)
			p.sem.Release(1)
		}()

		// Buffered so an abandoned call can still deliver and exit.
		ch := make(chan outcome[T], 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					ch <- outcome[T]{err: fmt.Errorf("panic in %s backend: %v", backend, r)}
				}
			}()
			v, err := fn(callCtx)
			ch <- outcome[T]{value: v, err: err}
		}()

		select {
		case o := <-ch:
			f.value = o.value
			if o.err != nil {
				f.err = classify(backend, callCtx, o.err)
			}
		case <-callCtx.Done():
			f.err = classify(backend, callCtx, callCtx.Err())
		}
	}()

	return f
}

// classify maps a call error to a typed failure.
func classify(backend string, callCtx context.Context, err error) error {
	if aiErr, ok := aierrors.As(err); ok {
		return aiErr
	}
	if callCtx.Err() == context.DeadlineExceeded {
		return aierrors.BackendTimeout(backend, err)
	}
	return aierrors.BackendUnavailable(backend, err)
}
