package editor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// waitDelay bounds how long Wait blocks on output pipes after the child has been killed
const waitDelay = 5 * time.Second

// Result captures the observable outcome of a tool run
type Result struct {
	Command  string
	Stdout   string
	Stderr   string
	ExitCode int // -1 if the process never started or was killed
	Duration time.Duration
	TimedOut bool
}

// ExternalToolError indicates that the editing tool failed to start, exited non-zero, or timed out. It is
// informational: a failed tool usually leaves the working tree clean, which change detection reports on its own
type ExternalToolError struct {
	Tool     string
	ExitCode int
	TimedOut bool
	Err      error
}

func (ete ExternalToolError) Error() string {
	if ete.TimedOut {
		return fmt.Sprintf("%s timed out: %v", ete.Tool, ete.Err)
	}
	if ete.ExitCode < 0 {
		return fmt.Sprintf("%s failed to run: %v", ete.Tool, ete.Err)
	}
	return fmt.Sprintf("%s exited with code %d", ete.Tool, ete.ExitCode)
}

func (ete ExternalToolError) Unwrap() error {
	return ete.Err
}

// Runner runs editing tools in a working directory
type Runner struct {
	Dir     string
	Timeout time.Duration // Zero means no timeout
}

// Run runs the tool to completion with the persisted prompt file as its stdin. The Result is always populated, even
// when an error is returned. Errors of type ExternalToolError describe tool failures; any other error means the run
// could not be attempted or the parent context was canceled
func (r Runner) Run(ctx context.Context, tool Tool, inv Invocation) (Result, error) {
	binary, args, env := tool.Command(inv)
	result := Result{
		Command:  strings.Join(append([]string{binary}, args...), " "),
		ExitCode: -1,
	}

	promptPath := inv.PromptPath
	if !filepath.IsAbs(promptPath) {
		promptPath = filepath.Join(r.Dir, promptPath)
	}
	promptFile, err := os.Open(promptPath)
	if err != nil {
		return result, fmt.Errorf("failed to open prompt file: %w", err)
	}
	defer promptFile.Close()

	runCtx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, binary, args...)
	cmd.Dir = r.Dir
	cmd.Stdin = promptFile
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Env = append(os.Environ(), env...)
	cmd.WaitDelay = waitDelay

	start := time.Now()
	runErr := cmd.Run()
	result.Duration = time.Since(start)
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if runErr == nil {
		return result, nil
	}

	// The parent context going away is not a tool failure
	if ctx.Err() != nil {
		return result, fmt.Errorf("tool run interrupted: %w", ctx.Err())
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		result.TimedOut = true
		return result, ExternalToolError{
			Tool:     tool.Name(),
			ExitCode: result.ExitCode,
			TimedOut: true,
			Err:      fmt.Errorf("no exit after %s: %w", r.Timeout, runCtx.Err()),
		}
	}

	return result, ExternalToolError{
		Tool:     tool.Name(),
		ExitCode: result.ExitCode,
		Err:      runErr,
	}
}
