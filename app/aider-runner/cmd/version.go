package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// VersionInfo describes the build, set by main from ldflags
type VersionInfo struct {
	Version   string
	GitCommit string
	BuildTime string
}

var versionInfo = VersionInfo{Version: "dev", GitCommit: "unknown", BuildTime: "unknown"}

// SetVersionInfo records build information for the version command and telemetry
func SetVersionInfo(version, gitCommit, buildTime string) {
	versionInfo = VersionInfo{Version: version, GitCommit: gitCommit, BuildTime: buildTime}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// Replaces the root hook; printing the version needs no environment
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "aider-runner %s (commit %s, built %s)\n", versionInfo.Version, versionInfo.GitCommit, versionInfo.BuildTime)
		},
	}
}
