// Package transport provides HTTP round trippers shared by the API clients.
package transport

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"
)

// DefaultMaxWait is the longest retry-after delay RateLimitedTransport will honor before giving up and returning the
// 429 response to the caller
const DefaultMaxWait = 2 * time.Minute

// RateLimitedTransport waits out 429 responses that carry a retry-after header and then replays the request
type RateLimitedTransport struct {
	base    http.RoundTripper
	maxWait time.Duration
}

// WithRateLimiting wraps base, or http.DefaultTransport if base is nil
func WithRateLimiting(base http.RoundTripper) *RateLimitedTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &RateLimitedTransport{base: base, maxWait: DefaultMaxWait}
}

// WithMaxWait returns a copy of the transport that honors retry-after delays up to maxWait
func (t *RateLimitedTransport) WithMaxWait(maxWait time.Duration) *RateLimitedTransport {
	return &RateLimitedTransport{base: t.base, maxWait: maxWait}
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
		if bodyBytes != nil {
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}

		resp, err := t.base.RoundTrip(req)
		if err != nil {
			return resp, err
		}
		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		waitDuration := parseRetryAfter(resp.Header.Get("retry-after"), time.Now())
		if waitDuration <= 0 || waitDuration > t.maxWait {
			return resp, nil
		}

		err = resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to close response body: %w", err)
		}

		log.Printf("Rate limited, waiting %s", waitDuration)
		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(waitDuration):
		}
	}
}

// parseRetryAfter parses a retry-after header given either as a number of seconds or as an HTTP date. It returns zero
// if the header is absent or unparseable
func parseRetryAfter(value string, now time.Time) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if retryTime, err := time.Parse(time.RFC1123, value); err == nil {
		return retryTime.Sub(now)
	}
	return 0
}
