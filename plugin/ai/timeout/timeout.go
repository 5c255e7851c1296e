// Package timeout defines centralized timeout and size constants for backend calls.
package timeout

import "time"

const (
	// BackendTimeout bounds a single backend call (archive, completion, OCR, speech).
	BackendTimeout = 60 * time.Second

	// CompletionTimeout is the per-request timeout handed to the completion client.
	CompletionTimeout = 45 * time.Second

	// ArchiveDialTimeout bounds connecting to the archive service.
	ArchiveDialTimeout = 10 * time.Second

	// TransportRequestTimeout bounds one chat transport request.
	TransportRequestTimeout = 60 * time.Second

	// PollTimeout is the long polling window for receiving updates.
	PollTimeout = 30 * time.Second

	// ShutdownTimeout bounds draining in-flight units on shutdown.
	ShutdownTimeout = 30 * time.Second

	// MaxRetries is the maximum number of attempts for retryable backend calls.
	MaxRetries = 2

	// MaxTruncateLength is the maximum length for truncating strings in logs.
	MaxTruncateLength = 200
)
