// Package runner drives an external editing tool over a list of files and records whether it changed anything.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cchalm/aider-runner/internal/apikey"
	"github.com/cchalm/aider-runner/internal/config"
	"github.com/cchalm/aider-runner/internal/editor"
	"github.com/cchalm/aider-runner/internal/git"
	"github.com/cchalm/aider-runner/internal/pathspec"
	"github.com/cchalm/aider-runner/internal/report"
	"github.com/cchalm/aider-runner/internal/telemetry"
	"github.com/cchalm/aider-runner/internal/workspace"
)

const maxDisplayArgLen = 80

// ConfigError indicates that a required input file is missing or malformed
type ConfigError struct {
	Path string
	Err  error
}

func (ce ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration file '%s': %v", ce.Path, ce.Err)
}

func (ce ConfigError) Unwrap() error {
	return ce.Err
}

// ToolRunner runs an editing tool to completion
type ToolRunner interface {
	Run(ctx context.Context, tool editor.Tool, inv editor.Invocation) (editor.Result, error)
}

// Outcome describes a completed run
type Outcome struct {
	RunID       string
	Paths       []string
	Warnings    []pathspec.Warning
	ToolSkipped bool
	ToolResult  editor.Result
	ToolErr     error // Non-nil if the tool failed; informational only
	ChangesMade bool
	Status      string
}

// Runner performs a single change-driving run in a working directory
type Runner struct {
	config     config.Config
	fs         workspace.FileSystem
	tool       editor.Tool
	toolRunner ToolRunner
	status     git.StatusReader
	tracer     trace.Tracer
	publishers []report.Publisher
	newRunID   func() string
}

// New creates a new Runner
func New(
	cfg config.Config,
	fs workspace.FileSystem,
	tool editor.Tool,
	toolRunner ToolRunner,
	status git.StatusReader,
	tracer trace.Tracer,
	publishers ...report.Publisher,
) *Runner {
	return &Runner{
		config:     cfg,
		fs:         fs,
		tool:       tool,
		toolRunner: toolRunner,
		status:     status,
		tracer:     tracer,
		publishers: publishers,
		newRunID:   telemetry.NewRunID,
	}
}

// OwnFiles returns the files the runner reads and writes itself. Change detection ignores them
func OwnFiles(cfg config.Config) []string {
	var files []string
	for _, path := range []string{cfg.FilesToModifyPath, cfg.PromptPath, cfg.PromptCopyPath, cfg.OutcomePath} {
		if path != "" && !filepath.IsAbs(path) {
			files = append(files, path)
		}
	}
	return files
}

// Run loads the file list and prompt, runs the editing tool, and writes whether the working tree changed to the
// outcome file. Tool failures are logged and reflected only through change detection. Returned errors are fatal
func (r *Runner) Run(ctx context.Context) (outcome Outcome, err error) {
	outcome.RunID = r.newRunID()
	ctx, span := r.tracer.Start(ctx, "runner.Run", trace.WithAttributes(
		attribute.String("run.id", outcome.RunID),
		attribute.String("run.variant", string(r.config.Variant)),
		attribute.String("tool.name", r.tool.Name()),
	))
	defer func() {
		span.SetAttributes(
			attribute.Bool("run.changes_made", outcome.ChangesMade),
			attribute.Bool("tool.skipped", outcome.ToolSkipped),
			attribute.Int("run.path_count", len(outcome.Paths)),
		)
		telemetry.EndSpan(span, err)
	}()

	log.Printf("Starting run %s (variant: %s, tool: %s)", outcome.RunID, r.config.Variant, r.tool.Name())

	entries, err := r.loadFileList(ctx)
	if err != nil {
		return outcome, err
	}

	if r.config.Variant == config.VariantResolve {
		resolution, err := r.resolvePaths(ctx, entries)
		if err != nil {
			return outcome, err
		}
		outcome.Paths = resolution.Paths
		outcome.Warnings = resolution.Warnings
		if len(outcome.Paths) == 0 {
			log.Printf("No valid files to modify, skipping %s", r.tool.Name())
			outcome.ToolSkipped = true
			if err := r.persistOutcome(ctx, false); err != nil {
				return outcome, err
			}
			r.publish(ctx, outcome)
			return outcome, nil
		}
	} else {
		outcome.Paths = entries
	}

	prompt, err := r.loadPrompt(ctx)
	if err != nil {
		return outcome, err
	}

	if r.config.Variant == config.VariantDirect {
		if err := apikey.RequirePresent(r.config.AnthropicAPIKey); err != nil {
			return outcome, err
		}
	}

	if err := r.persistPrompt(ctx, prompt); err != nil {
		return outcome, err
	}

	if err := r.invokeTool(ctx, prompt, &outcome); err != nil {
		return outcome, err
	}

	outcome.ChangesMade, outcome.Status, err = r.detectChanges(ctx)
	if err != nil {
		return outcome, err
	}

	if err := r.persistOutcome(ctx, outcome.ChangesMade); err != nil {
		return outcome, err
	}

	r.publish(ctx, outcome)
	return outcome, nil
}

func (r *Runner) loadFileList(ctx context.Context) (_ []string, err error) {
	ctx, span := r.tracer.Start(ctx, "runner.LoadFileList")
	defer func() { telemetry.EndSpan(span, err) }()

	content, err := r.fs.Read(ctx, r.config.FilesToModifyPath)
	if err != nil {
		return nil, ConfigError{Path: r.config.FilesToModifyPath, Err: err}
	}
	entries, err := pathspec.ParseFileList([]byte(content))
	if err != nil {
		return nil, ConfigError{Path: r.config.FilesToModifyPath, Err: err}
	}
	span.SetAttributes(attribute.Int("file_list.length", len(entries)))
	return entries, nil
}

func (r *Runner) resolvePaths(ctx context.Context, entries []string) (_ pathspec.Resolution, err error) {
	ctx, span := r.tracer.Start(ctx, "runner.ResolvePaths")
	defer func() { telemetry.EndSpan(span, err) }()

	resolution, err := pathspec.Resolve(ctx, r.fs, entries)
	if err != nil {
		return pathspec.Resolution{}, fmt.Errorf("failed to resolve files to modify: %w", err)
	}
	span.SetAttributes(
		attribute.Int("paths.resolved", len(resolution.Paths)),
		attribute.Int("paths.warnings", len(resolution.Warnings)),
	)
	log.Printf("Resolved %d path(s) from %d file list entries", len(resolution.Paths), len(entries))
	return resolution, nil
}

func (r *Runner) loadPrompt(ctx context.Context) (_ string, err error) {
	ctx, span := r.tracer.Start(ctx, "runner.LoadPrompt")
	defer func() { telemetry.EndSpan(span, err) }()

	prompt, err := r.fs.Read(ctx, r.config.PromptPath)
	if err != nil {
		return "", ConfigError{Path: r.config.PromptPath, Err: err}
	}
	return prompt, nil
}

func (r *Runner) persistPrompt(ctx context.Context, prompt string) (err error) {
	ctx, span := r.tracer.Start(ctx, "runner.PersistPrompt")
	defer func() { telemetry.EndSpan(span, err) }()

	err = r.fs.Write(ctx, r.config.PromptCopyPath, prompt)
	if err != nil {
		return fmt.Errorf("failed to persist prompt: %w", err)
	}
	return nil
}

// invokeTool runs the tool and logs what it printed. Tool failures are recorded on the outcome; the returned error is
// fatal
func (r *Runner) invokeTool(ctx context.Context, prompt string, outcome *Outcome) (err error) {
	ctx, span := r.tracer.Start(ctx, "runner.InvokeTool")
	defer func() { telemetry.EndSpan(span, err) }()

	inv := editor.Invocation{
		Prompt:     prompt,
		PromptPath: r.config.PromptCopyPath,
		Paths:      outcome.Paths,
	}
	binary, args, _ := r.tool.Command(inv)
	log.Printf("Running command: %s", displayCommand(binary, args))

	result, runErr := r.toolRunner.Run(ctx, r.tool, inv)
	outcome.ToolResult = result

	log.Printf("%s stdout:\n%s", r.tool.Name(), result.Stdout)
	log.Printf("%s stderr:\n%s", r.tool.Name(), result.Stderr)
	log.Printf("%s exit code: %d", r.tool.Name(), result.ExitCode)
	span.SetAttributes(
		attribute.Int("tool.exit_code", result.ExitCode),
		attribute.Bool("tool.timed_out", result.TimedOut),
		attribute.Int64("tool.duration_ms", result.Duration.Milliseconds()),
	)

	var toolErr editor.ExternalToolError
	if errors.As(runErr, &toolErr) {
		log.Printf("Warning: %v", toolErr)
		span.AddEvent("tool failed", trace.WithAttributes(attribute.String("error", toolErr.Error())))
		outcome.ToolErr = toolErr
		return nil
	} else if runErr != nil {
		return fmt.Errorf("failed to run %s: %w", r.tool.Name(), runErr)
	}
	return nil
}

func (r *Runner) detectChanges(ctx context.Context) (_ bool, _ string, err error) {
	ctx, span := r.tracer.Start(ctx, "runner.DetectChanges")
	defer func() { telemetry.EndSpan(span, err) }()

	changed, status, err := git.DetectChanges(ctx, r.status)
	if err != nil {
		return false, "", fmt.Errorf("failed to query working tree status: %w", err)
	}
	log.Printf("Git status output: %s", status)
	log.Printf("Changes detected: %t", changed)
	span.SetAttributes(attribute.Bool("run.changes_made", changed))
	return changed, status, nil
}

func (r *Runner) persistOutcome(ctx context.Context, changesMade bool) (err error) {
	ctx, span := r.tracer.Start(ctx, "runner.PersistOutcome")
	defer func() { telemetry.EndSpan(span, err) }()

	err = r.fs.Write(ctx, r.config.OutcomePath, strconv.FormatBool(changesMade))
	if err != nil {
		return fmt.Errorf("failed to persist outcome: %w", err)
	}
	return nil
}

func (r *Runner) publish(ctx context.Context, outcome Outcome) {
	if len(r.publishers) == 0 {
		return
	}
	ctx, span := r.tracer.Start(ctx, "runner.Publish")
	defer span.End()

	summary := report.Summary{
		RunID:        outcome.RunID,
		Tool:         r.tool.Name(),
		Paths:        outcome.Paths,
		ExitCode:     outcome.ToolResult.ExitCode,
		TimedOut:     outcome.ToolResult.TimedOut,
		ToolSkipped:  outcome.ToolSkipped,
		ChangesMade:  outcome.ChangesMade,
		StatusOutput: outcome.Status,
	}
	failures := report.PublishAll(ctx, summary, r.publishers)
	span.SetAttributes(attribute.Int("publish.failures", failures))
}

// displayCommand formats a command line for logging, abbreviating long arguments such as inline prompts
func displayCommand(binary string, args []string) string {
	shown := []string{binary}
	for _, arg := range args {
		if utf8.RuneCountInString(arg) > maxDisplayArgLen || strings.Contains(arg, "\n") {
			arg = strconv.Quote(truncate(arg, maxDisplayArgLen))
		}
		shown = append(shown, arg)
	}
	return strings.Join(shown, " ")
}

// truncate keeps the first n runes of s
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
