package cmd

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cchalm/aider-runner/internal/apikey"
	"github.com/cchalm/aider-runner/internal/config"
	"github.com/cchalm/aider-runner/internal/editor"
	"github.com/cchalm/aider-runner/internal/git"
	githubpkg "github.com/cchalm/aider-runner/internal/github"
	"github.com/cchalm/aider-runner/internal/report"
	"github.com/cchalm/aider-runner/internal/runner"
	"github.com/cchalm/aider-runner/internal/workspace"
)

func (s *settings) runRunner(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := s.resolve()
	if err != nil {
		return err
	}

	dir, err := filepath.Abs(s.Dir)
	if err != nil {
		return fmt.Errorf("failed to resolve working directory '%s': %w", s.Dir, err)
	}

	log.Printf("Starting aider-runner %s in %s", versionInfo.Version, dir)

	if cfg.VerifyAPIKey {
		if err := apikey.RequirePresent(cfg.AnthropicAPIKey); err != nil {
			return err
		}
		log.Printf("Verifying Anthropic API key")
		if err := apikey.Verify(ctx, apikey.NewClient(cfg.AnthropicAPIKey)); err != nil {
			return err
		}
	}

	tool, err := editor.New(cfg.Tool, cfg.ToolBinary)
	if err != nil {
		return err
	}

	telemetryProvider, err := createTelemetryProvider(ctx, cfg, s.OTLPInsecure)
	if err != nil {
		return err
	}
	defer shutdownTelemetry(telemetryProvider)

	fs := workspace.NewLocalFileSystem(dir)
	publishers, err := createPublishers(ctx, cfg, fs)
	if err != nil {
		return err
	}

	repo := git.NewLocalRepo(dir, runner.OwnFiles(cfg)...)
	if !repo.IsWorkTree(ctx) {
		log.Printf("Warning: %s is not inside a git working tree, change detection will fail", dir)
	}

	r := runner.New(
		cfg,
		fs,
		tool,
		editor.Runner{Dir: dir, Timeout: cfg.Timeout},
		repo,
		telemetryProvider.Tracer(),
		publishers...,
	)

	outcome, err := r.Run(ctx)
	if err != nil {
		return err
	}

	log.Printf("Run %s finished, changes made: %t", outcome.RunID, outcome.ChangesMade)
	return nil
}

func createPublishers(ctx context.Context, cfg config.Config, fs workspace.FileSystem) ([]report.Publisher, error) {
	var publishers []report.Publisher
	if cfg.GithubOutputPath != "" {
		publishers = append(publishers, report.ActionsOutput{FS: fs, Path: cfg.GithubOutputPath})
	}
	if cfg.ReportEnabled() {
		issue, err := githubpkg.ParseIssueRef(cfg.ReportRepo, cfg.ReportIssue)
		if err != nil {
			return nil, err
		}
		client := createGithubClient(ctx, cfg.GithubToken)
		publishers = append(publishers, report.IssueComment{
			Comments: githubpkg.NewIssueCommentService(client),
			Issue:    issue,
		})
	}
	return publishers, nil
}
