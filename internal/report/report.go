// Package report publishes the outcome of a run outside the working directory.
package report

import (
	"context"
	"fmt"
	"log"
	"strings"

	githubpkg "github.com/cchalm/aider-runner/internal/github"
	"github.com/cchalm/aider-runner/internal/workspace"
)

// Summary describes a finished run
type Summary struct {
	RunID        string
	Tool         string
	Paths        []string
	ExitCode     int
	TimedOut     bool
	ToolSkipped  bool // True if no paths resolved and the tool was never invoked
	ChangesMade  bool
	StatusOutput string
}

// Publisher delivers a summary somewhere
type Publisher interface {
	Publish(ctx context.Context, summary Summary) error
}

// Markdown renders the summary as a GitHub comment
func (s Summary) Markdown() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "### %s run `%s`\n\n", s.Tool, s.RunID)

	if s.ToolSkipped {
		sb.WriteString("No files to modify were found, so the tool was not run.\n")
	} else {
		switch {
		case s.TimedOut:
			sb.WriteString("- Tool result: timed out\n")
		case s.ExitCode == 0:
			sb.WriteString("- Tool result: success\n")
		default:
			fmt.Fprintf(&sb, "- Tool result: exit code %d\n", s.ExitCode)
		}
		fmt.Fprintf(&sb, "- Files: %d\n", len(s.Paths))
		for _, p := range s.Paths {
			fmt.Fprintf(&sb, "  - `%s`\n", p)
		}
	}

	fmt.Fprintf(&sb, "\n**Changes made:** %t\n", s.ChangesMade)
	if s.ChangesMade && strings.TrimSpace(s.StatusOutput) != "" {
		fmt.Fprintf(&sb, "\n```\n%s\n```\n", strings.TrimRight(s.StatusOutput, "\n"))
	}
	return sb.String()
}

// ActionsOutput appends `changes_made=<bool>` to a GitHub Actions output file
type ActionsOutput struct {
	FS   workspace.FileSystem
	Path string
}

func (ao ActionsOutput) Publish(ctx context.Context, summary Summary) error {
	line := fmt.Sprintf("changes_made=%t\n", summary.ChangesMade)
	err := ao.FS.Append(ctx, ao.Path, line)
	if err != nil {
		return fmt.Errorf("failed to write GitHub Actions output: %w", err)
	}
	return nil
}

// IssueComment posts the summary as a comment on an issue or pull request
type IssueComment struct {
	Comments githubpkg.IssueCommentService
	Issue    githubpkg.IssueRef
}

func (ic IssueComment) Publish(ctx context.Context, summary Summary) error {
	_, err := ic.Comments.CreateComment(ctx, ic.Issue, summary.Markdown())
	if err != nil {
		return fmt.Errorf("failed to post run summary: %w", err)
	}
	log.Printf("Posted run summary to %s", ic.Issue)
	return nil
}

// PublishAll runs every publisher. Failures are logged and do not stop the remaining publishers; the number of
// failures is returned
func PublishAll(ctx context.Context, summary Summary, publishers []Publisher) int {
	failures := 0
	for _, p := range publishers {
		if err := p.Publish(ctx, summary); err != nil {
			log.Printf("Warning: %v", err)
			failures++
		}
	}
	return failures
}
