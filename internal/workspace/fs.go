// Package workspace provides access to the working directory the runner operates in.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

var (
	ErrFileNotFound error = fmt.Errorf("file not found")
	ErrIsDir        error = fmt.Errorf("path is a directory")
)

// ReadOnlyFileSystem is a basic interface for reading files
type ReadOnlyFileSystem interface {
	// Read reads the content of a file at the given path
	Read(ctx context.Context, path string) (string, error)

	// Exists returns true if a file or directory exists at the given path, false otherwise
	Exists(ctx context.Context, path string) (bool, error)


	// Glob returns the paths matching the given pattern, in lexical order
	Glob(ctx context.Context, pattern string) ([]string, error)
}

// FileSystem is a basic interface for reading and writing files
type FileSystem interface {
	ReadOnlyFileSystem

	// Write writes the content to a file at the given path, creating the file if it doesn't exist and truncating it
	// if it does
	Write(ctx context.Context, path string, content string) error
	// Append appends the content to a file at the given path, creating the file if it doesn't exist
	Append(ctx context.Context, path string, content string) error
}

// LocalFileSystem is a FileSystem backed by a directory of the OS file system. Relative paths are resolved against
// the root directory; absolute paths are used as-is
type LocalFileSystem struct {
	root string
}

var _ FileSystem = LocalFileSystem{}

func NewLocalFileSystem(root string) LocalFileSystem {
	return LocalFileSystem{root: root}
}

func (lfs LocalFileSystem) abs(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(lfs.root, path)
}

// Read reads the content of a file at the given path
func (lfs LocalFileSystem) Read(_ context.Context, path string) (string, error) {
	b, err := os.ReadFile(lfs.abs(path))
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("failed to read '%s': %w", path, ErrFileNotFound)
	} else if err != nil {
		info, statErr := os.Stat(lfs.abs(path))
		if statErr == nil && info.IsDir() {
			return "", fmt.Errorf("failed to read '%s': %w", path, ErrIsDir)
		}
		return "", fmt.Errorf("failed to read '%s': %w", path, err)
	}
	return string(b), nil
}

// Exists returns true if a file or directory exists at the given path
func (lfs LocalFileSystem) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(lfs.abs(path))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("failed to stat '%s': %w", path, err)
	}
	return true, nil
}

// Glob expands the pattern against the file system. Matches are returned in the same form as the pattern: relative
// patterns yield paths relative to the root
func (lfs LocalFileSystem) Glob(_ context.Context, pattern string) ([]string, error) {
	matches, err := filepath.Glob(lfs.abs(pattern))
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern '%s': %w", pattern, err)
	}
	if filepath.IsAbs(pattern) {
		sort.Strings(matches)
		return matches, nil
	}

	relMatches := make([]string, 0, len(matches))
	for _, match := range matches {
		rel, err := filepath.Rel(lfs.root, match)
		if err != nil {
			return nil, fmt.Errorf("failed to make '%s' relative to '%s': %w", match, lfs.root, err)
		}
		relMatches = append(relMatches, rel)
	}
	sort.Strings(relMatches)
	return relMatches, nil
}

// Write writes the content to a file at the given path
func (lfs LocalFileSystem) Write(_ context.Context, path string, content string) error {
	err := os.WriteFile(lfs.abs(path), []byte(content), 0666)
	if err != nil {
		return fmt.Errorf("failed to write '%s': %w", path, err)
	}
	return nil
}

// Append appends the content to a file at the given path
func (lfs LocalFileSystem) Append(_ context.Context, path string, content string) (err error) {
	f, err := os.OpenFile(lfs.abs(path), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		return fmt.Errorf("failed to open '%s' for appending: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close '%s': %w", path, closeErr)
		}
	}()

	_, err = f.WriteString(content)
	if err != nil {
		return fmt.Errorf("failed to append to '%s': %w", path, err)
	}
	return nil
}
