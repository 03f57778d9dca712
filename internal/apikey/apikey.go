// Package apikey checks the Anthropic API key the editing tool will use.
package apikey

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/cchalm/aider-runner/internal/transport"
)

// EnvVar is the environment variable the editing tools read the key from
const EnvVar = "ANTHROPIC_API_KEY"

// EnvironmentError indicates that the process environment cannot support a run, e.g. a required key is missing or
// rejected
type EnvironmentError struct {
	Message string
	Err     error
}

func (ee EnvironmentError) Error() string {
	if ee.Err != nil {
		return fmt.Sprintf("%s: %v", ee.Message, ee.Err)
	}
	return ee.Message
}

func (ee EnvironmentError) Unwrap() error {
	return ee.Err
}

// RequirePresent returns an EnvironmentError if the key is empty
func RequirePresent(key string) error {
	if key == "" {
		return EnvironmentError{Message: fmt.Sprintf("Error: %s environment variable not set", EnvVar)}
	}
	return nil
}

// NewClient creates an Anthropic client that waits out rate limiting
func NewClient(apiKey string, opts ...option.RequestOption) anthropic.Client {
	rateLimitedHTTPClient := &http.Client{
		Transport: transport.WithRateLimiting(nil),
	}
	opts = append([]option.RequestOption{
		option.WithHTTPClient(rateLimitedHTTPClient),
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(2),
	}, opts...)
	return anthropic.NewClient(opts...)
}

// Verify makes the cheapest authenticated request available, listing a single model, to confirm that the key is
// accepted. Authentication failures are reported as EnvironmentError; other failures are returned as-is
func Verify(ctx context.Context, client anthropic.Client) error {
	_, err := client.Models.List(ctx, anthropic.ModelListParams{Limit: anthropic.Int(1)})
	if err == nil {
		return nil
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden) {
		return EnvironmentError{Message: fmt.Sprintf("Error: %s was rejected by the Anthropic API", EnvVar), Err: err}
	}
	return fmt.Errorf("failed to verify API key: %w", err)
}
