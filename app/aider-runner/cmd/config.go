package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cchalm/aider-runner/internal/config"
)

// settings holds the raw values of flags that need parsing before they can populate a config.Config
type settings struct {
	config.Config

	Dir          string
	Variant      string
	OTLPInsecure bool
}

func loadOptionalFromEnv(dest *string, key string) {
	_ = parseOptionalFromEnv(dest, key, func(v string) (string, error) { return v, nil })
}

func parseOptionalFromEnv[T any](dest *T, key string, parseFn func(string) (T, error)) error {
	str := os.Getenv(key)
	if str == "" {
		return nil // Leave default value
	}
	v, err := parseFn(str)
	if err != nil {
		return fmt.Errorf("failed to parse environment variable '%s' value '%s' as '%T': %w", key, str, *dest, err)
	}
	*dest = v
	return nil
}

// loadEnv fills in values that come from the environment. Flags the user set explicitly take precedence over
// environment overrides
func (s *settings) loadEnv(cmd *cobra.Command) error {
	flags := cmd.Flags()

	loadOptionalFromEnv(&s.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	loadOptionalFromEnv(&s.GithubToken, "GITHUB_TOKEN")
	loadOptionalFromEnv(&s.GithubOutputPath, "GITHUB_OUTPUT")

	if !flags.Changed("timeout") {
		if err := parseOptionalFromEnv(&s.Timeout, "AIDER_RUNNER_TIMEOUT", time.ParseDuration); err != nil {
			return err
		}
	}
	if !flags.Changed("tool") {
		loadOptionalFromEnv(&s.Tool, "AIDER_RUNNER_TOOL")
	}
	if !flags.Changed("otlp-endpoint") {
		loadOptionalFromEnv(&s.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	return nil
}

// resolve produces the validated runner configuration
func (s *settings) resolve() (config.Config, error) {
	cfg := s.Config
	variant, err := config.ParseVariant(s.Variant)
	if err != nil {
		return config.Config{}, err
	}
	cfg.Variant = variant

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.ReportEnabled() && cfg.GithubToken == "" {
		return config.Config{}, fmt.Errorf("GITHUB_TOKEN not set, required to report to %s#%d", cfg.ReportRepo, cfg.ReportIssue)
	}
	return cfg, nil
}
