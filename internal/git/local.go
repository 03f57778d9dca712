package git

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os/exec"
	"path/filepath"
	"strings"
)

// LocalRepo runs porcelain git commands against a working tree on disk
type LocalRepo struct {
	dir     string
	binary  string
	exclude []string // Paths, relative to dir, that Status never reports
}

// NewLocalRepo creates a LocalRepo for the working tree containing dir. Excluded paths are left out of Status so that
// files the caller writes itself don't register as changes
func NewLocalRepo(dir string, exclude ...string) LocalRepo {
	return LocalRepo{dir: dir, binary: "git", exclude: exclude}
}

// Status returns the output of `git status --porcelain` for the whole working tree, minus excluded paths. Excluded
// paths outside the working tree are skipped
func (lr LocalRepo) Status(ctx context.Context) (string, error) {
	args := []string{"status", "--porcelain"}
	if len(lr.exclude) > 0 {
		exclude, err := lr.excludesInWorkTree(ctx)
		if err != nil {
			return "", err
		}
		if len(exclude) > 0 {
			args = append(args, "--", ":/")
			for _, path := range exclude {
				args = append(args, ":(exclude)"+path)
			}
		}
	}
	return lr.run(ctx, args...)
}

func (lr LocalRepo) excludesInWorkTree(ctx context.Context) ([]string, error) {
	out, err := lr.run(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, err
	}
	top := resolveSymlinks(filepath.Clean(strings.TrimSpace(out)))
	dir := resolveSymlinks(lr.dir)

	var inside []string
	for _, path := range lr.exclude {
		full := path
		if !filepath.IsAbs(full) {
			full = filepath.Join(dir, path)
		}
		rel, err := filepath.Rel(top, full)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			log.Printf("Not excluding '%s' from git status, it is outside the working tree %s", path, top)
			continue
		}
		inside = append(inside, path)
	}
	return inside, nil
}

func resolveSymlinks(path string) string {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return path
	}
	return resolved
}

// IsWorkTree returns true if the directory is inside a git working tree
func (lr LocalRepo) IsWorkTree(ctx context.Context) bool {
	out, err := lr.run(ctx, "rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(out) == "true"
}

func (lr LocalRepo) run(ctx context.Context, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, lr.binary, args...)
	cmd.Dir = lr.dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		return "", fmt.Errorf("git %s: %w\n%s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
