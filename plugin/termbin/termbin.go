// Package termbin uploads plain text to a termbin-compatible pastebin.
// The protocol is raw TCP: write the payload, half-close, read back one URL.
package termbin

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ErrPayloadTooLarge is returned when the payload exceeds Config.MaxBytes.
var ErrPayloadTooLarge = errors.New("payload too large for archive")

// Config holds the archive client configuration.
type Config struct {
	// Addr is the host:port of the termbin service.
	Addr string
	// DialTimeout bounds connecting to Addr.
	DialTimeout time.Duration
	// MaxBytes is the largest payload accepted.
	MaxBytes int
}

// DefaultConfig returns the default archive configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr:        "termbin.com:9999",
		DialTimeout: 10 * time.Second,
		MaxBytes:    4 << 20,
	}
}

// Client archives text and returns its retrieval URL.
type Client struct {
	config *Config
	dialer *net.Dialer
	http   *http.Client
}

// NewClient creates a new archive client.
func NewClient(config *Config) *Client {
	def := DefaultConfig()
	if config == nil {
		config = def
	}
	if config.Addr == "" {
		config.Addr = def.Addr
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = def.DialTimeout
	}
	if config.MaxBytes <= 0 {
		config.MaxBytes = def.MaxBytes
	}
	return &Client{
		config: config,
		dialer: &net.Dialer{Timeout: config.DialTimeout},
		http:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Archive uploads data and returns the URL the service answered with.
func (c *Client) Archive(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("nothing to archive")
	}
	if len(data) > c.config.MaxBytes {
		return "", errors.Wrapf(ErrPayloadTooLarge, "%d bytes", len(data))
	}

	conn, err := c.dialer.DialContext(ctx, "tcp", c.config.Addr)
	if err != nil {
		return "", errors.Wrapf(err, "failed to connect to %s", c.config.Addr)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	// Unblock reads and writes when ctx is canceled without a deadline.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if _, err := conn.Write(data); err != nil {
		return "", errors.Wrap(err, "failed to send payload")
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.CloseWrite(); err != nil {
			return "", errors.Wrap(err, "failed to close write side")
		}
	}

	raw, err := io.ReadAll(io.LimitReader(conn, 1024))
	if err != nil {
		return "", errors.Wrap(err, "failed to read response")
	}
	return parseResponse(raw)
}

func parseResponse(raw []byte) (string, error) {
	link := strings.TrimSpace(string(bytes.Trim(raw, "\x00")))
	if !strings.HasPrefix(link, "http://") && !strings.HasPrefix(link, "https://") {
		if link == "" {
			return "", errors.New("empty response from archive")
		}
		return "", errors.Errorf("unexpected archive response: %q", link)
	}
	return link, nil
}

// Fetch downloads the content behind an archive URL.
func (c *Client) Fetch(ctx context.Context, link string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch archive")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("archive fetch http %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, int64(c.config.MaxBytes)+1))
}
