// Package transport provides the HTTP round tripper shared by the model provider clients.
package transport

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// RateLimitedTransport waits out 429 responses that carry a Retry-After header, as long as the requested wait is no
// longer than maxWait. Longer waits are returned to the caller, whose retry policy decides what to do
type RateLimitedTransport struct {
	base    http.RoundTripper
	maxWait time.Duration
	logger  zerolog.Logger
}

func WithRateLimiting(base http.RoundTripper, maxWait time.Duration, logger zerolog.Logger) *RateLimitedTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &RateLimitedTransport{base: base, maxWait: maxWait, logger: logger}
}

func (t *RateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Preserve the original request body for retries
	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read request body: %w", err)
		}
		err = req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to close request body: %w", err)
		}
	}

	for {
		// Restore the request body for each attempt
		if bodyBytes != nil {
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}

		start := time.Now()
		resp, err := t.base.RoundTrip(req)
		if err != nil {
			t.logger.Debug().Err(err).Str("method", req.Method).Str("path", req.URL.Path).Msg("Provider request failed")
			return resp, err
		}
		t.logger.Debug().
			Str("method", req.Method).
			Str("host", req.URL.Host).
			Str("path", req.URL.Path).
			Int("status", resp.StatusCode).
			Dur("duration", time.Since(start)).
			Msg("Provider request")

		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		waitDuration := ParseRetryAfter(resp.Header.Get("retry-after"), time.Now())
		if waitDuration <= 0 || waitDuration > t.maxWait {
			return resp, nil
		}

		// Close the response body to free resources
		err = resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to close response body: %w", err)
		}

		t.logger.Info().Dur("wait", waitDuration).Msg("Rate limited, waiting")
		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(waitDuration):
			// Continue the loop to retry
		}
	}
}

// ParseRetryAfter parses a Retry-After header given either as a number of seconds or as an HTTP date. It returns zero
// when the header is absent or unparseable
func ParseRetryAfter(value string, now time.Time) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if retryTime, err := http.ParseTime(value); err == nil {
		return retryTime.Sub(now)
	}
	return 0
}

// NewHTTPClient returns an HTTP client whose transport honours short Retry-After waits
func NewHTTPClient(maxWait time.Duration, logger zerolog.Logger) *http.Client {
	return &http.Client{
		Transport: WithRateLimiting(nil, maxWait, logger),
	}
}
