// Package gittest creates throwaway git repositories for tests.
package gittest

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// InitRepo creates a repository in a temporary directory with a single committed file, tracked.txt, and returns its
// path. The test is skipped if git is not installed
func InitRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	dir := t.TempDir()
	Git(t, dir, "init", "--quiet")
	Git(t, dir, "config", "user.email", "runner@example.com")
	Git(t, dir, "config", "user.name", "Runner Test")
	Git(t, dir, "config", "commit.gpgsign", "false")

	err := os.WriteFile(filepath.Join(dir, "tracked.txt"), []byte("original\n"), 0644)
	require.NoError(t, err)
	Git(t, dir, "add", "tracked.txt")
	Git(t, dir, "commit", "--quiet", "-m", "initial commit")
	return dir
}

// Git runs a git command in dir and fails the test if it fails
func Git(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
	return string(out)
}
