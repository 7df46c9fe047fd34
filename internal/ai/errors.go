package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
)

// ErrNotConfigured is returned when a question is submitted before an API key has been configured
var ErrNotConfigured = errors.New("API key not configured")

// ErrEmptyResponse is returned when the provider answers without any text content
var ErrEmptyResponse = errors.New("provider returned an empty response")

// CredentialError reports that a model client could not be created for an API key, either because the key is malformed
// or because the provider rejected it
type CredentialError struct {
	Provider string
	Err      error
}

func (ce *CredentialError) Error() string {
	return fmt.Sprintf("invalid API key or authentication error: %s", ce.Err)
}

func (ce *CredentialError) Unwrap() error {
	return ce.Err
}

// ProviderError reports a failed model call, after retries were exhausted or on a non-retryable rejection. Its message is
// the provider's own, so it can be shown to the user verbatim
type ProviderError struct {
	Provider   string
	StatusCode int // HTTP status of the last attempt, or 0 if no response was received
	Attempts   int
	Err        error
}

func (pe *ProviderError) Error() string {
	return pe.Err.Error()
}

func (pe *ProviderError) Unwrap() error {
	return pe.Err
}

// retryableStatus reports whether an HTTP status from a provider indicates a transient condition
func retryableStatus(code int) bool {
	switch {
	case code == http.StatusRequestTimeout,
		code == http.StatusConflict,
		code == http.StatusTooManyRequests:
		return true
	case code >= 500:
		return true
	default:
		return false
	}
}

// retryableTransportError reports whether an error that carries no HTTP status is worth retrying. Context errors never
// are; network failures are
func retryableTransportError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
