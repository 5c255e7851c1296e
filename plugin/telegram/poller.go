package telegram

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net/http"
	"time"
)

const (
	pollBackoffMin = time.Second
	pollBackoffMax = 30 * time.Second
)

// Poller receives updates with getUpdates long polling.
type Poller struct {
	client  *Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewPoller creates a poller. A non-positive timeout defaults to 30s.
func NewPoller(client *Client, timeout time.Duration, logger *slog.Logger) *Poller {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{client: client, timeout: timeout, logger: logger}
}

// Run polls until ctx is canceled and passes every update to handle in order.
// handle must not block for long; it runs on the polling goroutine.
// Run returns nil on cancellation and an error only when the token is rejected.
func (p *Poller) Run(ctx context.Context, handle func(Update)) error {
	var offset int64
	backoff := pollBackoffMin

	for ctx.Err() == nil {
		updates, next, err := p.client.GetUpdates(ctx, offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if IsPollTimeout(err) {
				continue
			}
			var reqErr *RequestError
			if stderrors.As(err, &reqErr) && reqErr.StatusCode == http.StatusUnauthorized {
				return err
			}
			p.logger.Warn("telegram getUpdates failed", "error", err, "retry_in", backoff)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, pollBackoffMax)
			continue
		}

		backoff = pollBackoffMin
		offset = next
		for _, u := range updates {
			handle(u)
		}
	}
	return nil
}
