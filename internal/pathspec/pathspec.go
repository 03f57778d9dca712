// Package pathspec turns the configured file list into the paths handed to the editing tool.
package pathspec

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/cchalm/aider-runner/internal/workspace"
)

// Warning describes a file list entry that contributed no paths
type Warning struct {
	Entry  string
	Reason string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %s", w.Entry, w.Reason)
}

// Resolution is the result of resolving a file list
type Resolution struct {
	Paths    []string
	Warnings []Warning
}

// ParseFileList decodes a JSON array of strings. Anything else, including null, is rejected
func ParseFileList(data []byte) ([]string, error) {
	var raw json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	trimmed := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(trimmed, "[") {
		return nil, fmt.Errorf("expected a JSON array of strings")
	}

	var entries []string
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("expected a JSON array of strings: %w", err)
	}
	if entries == nil {
		entries = []string{}
	}
	return entries, nil
}

// IsPattern returns true if the entry contains a glob wildcard character
func IsPattern(entry string) bool {
	return strings.ContainsAny(entry, "*?[")
}

// Resolve expands glob patterns and keeps plain entries only if they exist. Entries that contribute nothing produce a
// warning rather than an error. Order follows the file list, with each pattern's matches in lexical order
func Resolve(ctx context.Context, fs workspace.ReadOnlyFileSystem, entries []string) (Resolution, error) {
	res := Resolution{Paths: []string{}}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return Resolution{}, err
		}

		if IsPattern(entry) {
			matches, err := fs.Glob(ctx, entry)
			if err != nil {
				res.warn(entry, err.Error())
				continue
			}
			if len(matches) == 0 {
				res.warn(entry, "no files matched pattern")
				continue
			}
			res.Paths = append(res.Paths, matches...)
			continue
		}

		exists, err := fs.Exists(ctx, entry)
		if err != nil {
			return Resolution{}, fmt.Errorf("failed to check '%s': %w", entry, err)
		}
		if !exists {
			res.warn(entry, "file does not exist")
			continue
		}
		res.Paths = append(res.Paths, entry)
	}
	return res, nil
}

func (r *Resolution) warn(entry string, reason string) {
	w := Warning{Entry: entry, Reason: reason}
	log.Printf("Warning: %s", w)
	r.Warnings = append(r.Warnings, w)
}
