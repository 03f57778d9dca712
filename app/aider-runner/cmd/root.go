package cmd

import (
	"log"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/cchalm/aider-runner/internal/config"
	"github.com/cchalm/aider-runner/internal/editor"
)

// NewRootCommand builds the command tree. Running the root command with no subcommand performs a run, so the binary
// can stand in for the original scripts without arguments
func NewRootCommand() *cobra.Command {
	s := &settings{Config: config.Defaults(), Variant: string(config.VariantResolve)}

	rootCmd := &cobra.Command{
		Use:   "aider-runner",
		Short: "Drive an AI pair-programming tool over a list of files",
		Long: `aider-runner reads a list of files and a prompt, runs an AI pair-programming tool such as aider
over those files without committing, and records whether the tool changed the working tree
in changes_made.txt.`,
		Args:              cobra.NoArgs,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: s.loadRootConfig,
		RunE:              s.runRunner,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&s.Dir, "dir", ".", "Working directory; input and output files are relative to it")
	flags.StringVar(&s.Variant, "variant", s.Variant, "Run variant: 'resolve' expands globs and skips missing files, 'direct' requires ANTHROPIC_API_KEY and passes the file list as-is")
	flags.StringVar(&s.FilesToModifyPath, "files", s.FilesToModifyPath, "JSON array of files or glob patterns to modify")
	flags.StringVar(&s.PromptPath, "prompt", s.PromptPath, "Prompt file")
	flags.StringVar(&s.PromptCopyPath, "prompt-copy", s.PromptCopyPath, "File the prompt is copied to and streamed from")
	flags.StringVar(&s.OutcomePath, "outcome", s.OutcomePath, "File that receives 'true' or 'false'")
	flags.StringVar(&s.Tool, "tool", s.Tool, "Editing tool, one of: "+strings.Join(editor.Names(), ", "))
	flags.StringVar(&s.ToolBinary, "tool-binary", "", "Path to the editing tool's executable, if not the default")
	flags.DurationVar(&s.Timeout, "timeout", 0, "Kill the editing tool after this long; 0 waits indefinitely")
	flags.BoolVar(&s.VerifyAPIKey, "verify-api-key", false, "Check ANTHROPIC_API_KEY against the Anthropic API before running")
	flags.StringVar(&s.ReportRepo, "report-repo", "", "Repository in the format 'owner/repo' to post the outcome to")
	flags.IntVar(&s.ReportIssue, "report-issue", 0, "Issue or pull request number to post the outcome to")
	flags.BoolVar(&s.TelemetryEnabled, "telemetry", false, "Export traces over OTLP/HTTP")
	flags.StringVar(&s.OTLPEndpoint, "otlp-endpoint", "", "OTLP/HTTP collector host:port")
	flags.BoolVar(&s.OTLPInsecure, "otlp-insecure", false, "Use plain HTTP for the OTLP exporter")
	rootCmd.MarkFlagsRequiredTogether("report-repo", "report-issue")

	rootCmd.AddCommand(newRunCommand(s))
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

func Execute() error {
	return NewRootCommand().ExecuteContext(setupContext())
}

func (s *settings) loadRootConfig(cmd *cobra.Command, _ []string) error {
	// Load .env file
	err := godotenv.Load(filepath.Join(s.Dir, ".env"))
	if err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return s.loadEnv(cmd)
}

func newRunCommand(s *settings) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the editing tool once and record whether it changed anything",
		Long: `Loads the file list and prompt, runs the editing tool with the prompt on its standard input,
then checks git status and writes 'true' or 'false' to the outcome file. A failing tool is
logged but does not fail the run.`,
		Args: cobra.NoArgs,
		RunE: s.runRunner,
	}
}
