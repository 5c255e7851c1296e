package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a specific failure kind of a relay pipeline.
type ErrorCode string

const (
	// ErrCodeTransportUnavailable indicates the chat transport could not be reached.
	ErrCodeTransportUnavailable ErrorCode = "TRANSPORT_UNAVAILABLE"
	// ErrCodeBackendUnavailable indicates a backend is not configured or its call failed.
	ErrCodeBackendUnavailable ErrorCode = "BACKEND_UNAVAILABLE"
	// ErrCodeBackendTimeout indicates a backend call exceeded its deadline.
	ErrCodeBackendTimeout ErrorCode = "BACKEND_TIMEOUT"
	// ErrCodeEmptyResult indicates a backend produced no content. Not an error for the user.
	ErrCodeEmptyResult ErrorCode = "EMPTY_RESULT"
	// ErrCodePayloadTooLarge indicates content too large to handle directly.
	ErrCodePayloadTooLarge ErrorCode = "PAYLOAD_TOO_LARGE"
	// ErrCodeMalformedRichText indicates the transport rejected rich-text markup.
	ErrCodeMalformedRichText ErrorCode = "MALFORMED_RICH_TEXT"
)

// AIError represents a structured failure of a backend or transport call.
type AIError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *AIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *AIError) Unwrap() error {
	return e.Cause
}

// Convenience constructors for common error types.

// TransportUnavailable creates a transport failure.
func TransportUnavailable(msg string, cause error) *AIError {
	return &AIError{Code: ErrCodeTransportUnavailable, Message: msg, Cause: cause}
}

// BackendUnavailable creates a backend failure. Message names the backend.
func BackendUnavailable(backend string, cause error) *AIError {
	return &AIError{Code: ErrCodeBackendUnavailable, Message: backend, Cause: cause}
}

// BackendTimeout creates a timeout failure. Message names the backend.
func BackendTimeout(backend string, cause error) *AIError {
	return &AIError{Code: ErrCodeBackendTimeout, Message: backend, Cause: cause}
}

// EmptyResult creates a "no content" outcome carrying the text shown to the user.
func EmptyResult(msg string) *AIError {
	return &AIError{Code: ErrCodeEmptyResult, Message: msg}
}

// PayloadTooLarge creates a payload size failure.
func PayloadTooLarge(msg string) *AIError {
	return &AIError{Code: ErrCodePayloadTooLarge, Message: msg}
}

// MalformedRichText creates a rich-text rejection.
func MalformedRichText(cause error) *AIError {
	return &AIError{Code: ErrCodeMalformedRichText, Message: "rich text rejected", Cause: cause}
}

// Wrap wraps an existing error with additional context.
func Wrap(cause error, code ErrorCode, msg string) *AIError {
	return &AIError{Code: code, Message: msg, Cause: cause}
}

// As returns the first AIError in err's chain.
func As(err error) (*AIError, bool) {
	var aiErr *AIError
	if stderrors.As(err, &aiErr) {
		return aiErr, true
	}
	return nil, false
}

// IsCode checks if any error in the chain is of a specific code.
func IsCode(err error, code ErrorCode) bool {
	if aiErr, ok := As(err); ok {
		return aiErr.Code == code
	}
	return false
}

// GetCodeFromError extracts the error code from any error.
// Returns the provided default code if the error is not an AIError.
func GetCodeFromError(err error, defaultCode ErrorCode) ErrorCode {
	if aiErr, ok := As(err); ok {
		return aiErr.Code
	}
	return defaultCode
}
