// Package config provides configuration management for the aider runner.
package config

import (
	"fmt"
	"time"
)

// Variant selects which of the two runner behaviors is used
type Variant string

const (
	// VariantDirect requires ANTHROPIC_API_KEY and passes the file list to the tool verbatim
	VariantDirect Variant = "direct"
	// VariantResolve expands glob patterns and drops paths that don't exist before invoking the tool
	VariantResolve Variant = "resolve"
)

// ParseVariant parses a variant name
func ParseVariant(s string) (Variant, error) {
	switch Variant(s) {
	case VariantDirect, VariantResolve:
		return Variant(s), nil
	}
	return "", fmt.Errorf("unknown variant '%s', expected '%s' or '%s'", s, VariantDirect, VariantResolve)
}

// Config holds the configuration for a single runner invocation
type Config struct {
	Variant Variant

	// Input and output files, relative to the working directory
	FilesToModifyPath string
	PromptPath        string
	PromptCopyPath    string
	OutcomePath       string

	// External tool
	Tool       string
	ToolBinary string        // Overrides the tool's default binary name if set
	Timeout    time.Duration // Zero means wait for the tool indefinitely

	// API key handling
	AnthropicAPIKey string
	VerifyAPIKey    bool

	// Optional GitHub Actions output file
	GithubOutputPath string

	// Optional outcome report
	GithubToken string
	ReportRepo  string // owner/repo
	ReportIssue int

	// Telemetry
	TelemetryEnabled bool
	OTLPEndpoint     string
}

// Defaults returns a Config populated with the fixed file names and the default tool
func Defaults() Config {
	return Config{
		Variant:           VariantResolve,
		FilesToModifyPath: "files_to_modify.json",
		PromptPath:        "aider_prompt.txt",
		PromptCopyPath:    "prompt_for_aider.txt",
		OutcomePath:       "changes_made.txt",
		Tool:              "aider",
	}
}

// Validate checks that the configuration is internally consistent. It does not check the environment; missing API
// keys are reported separately so that they can be told apart from configuration mistakes
func (c Config) Validate() error {
	if _, err := ParseVariant(string(c.Variant)); err != nil {
		return err
	}
	if c.FilesToModifyPath == "" || c.PromptPath == "" || c.PromptCopyPath == "" || c.OutcomePath == "" {
		return fmt.Errorf("input and output file paths must not be empty")
	}
	if c.Tool == "" {
		return fmt.Errorf("tool must not be empty")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout)
	}
	if (c.ReportRepo == "") != (c.ReportIssue == 0) {
		return fmt.Errorf("report repository and report issue must be set together")
	}
	if c.TelemetryEnabled && c.OTLPEndpoint == "" {
		return fmt.Errorf("telemetry is enabled but no OTLP endpoint is configured")
	}
	return nil
}

// ReportEnabled returns true if the outcome should be posted to a GitHub issue
func (c Config) ReportEnabled() bool {
	return c.ReportRepo != "" && c.ReportIssue != 0
}
