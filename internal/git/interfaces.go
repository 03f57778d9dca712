// Package git provides Git operations and abstractions.
package git

import (
	"context"
	"strings"
)

// StatusReader reports the state of a working tree
type StatusReader interface {
	// Status returns the porcelain status of the working tree
	Status(ctx context.Context) (string, error)
}

// HasChanges returns true if the porcelain status output describes any modified, added, deleted, or untracked paths
func HasChanges(porcelain string) bool {
	return strings.TrimSpace(porcelain) != ""
}

// DetectChanges queries the working tree status and reports whether it is dirty, along with the raw status output
func DetectChanges(ctx context.Context, sr StatusReader) (bool, string, error) {
	status, err := sr.Status(ctx)
	if err != nil {
		return false, "", err
	}
	return HasChanges(status), status, nil
}
