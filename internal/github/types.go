package github

import (
	"fmt"
	"strings"
)

// IssueRef identifies a GitHub issue or pull request
type IssueRef struct {
	Owner  string
	Repo   string
	Number int
}

func (ir IssueRef) String() string {
	return fmt.Sprintf("%s/%s#%d", ir.Owner, ir.Repo, ir.Number)
}

// ParseIssueRef builds an IssueRef from a repository name in the format 'owner/repo' and an issue number
func ParseIssueRef(qualifiedRepoName string, number int) (IssueRef, error) {
	parts := strings.Split(qualifiedRepoName, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return IssueRef{}, fmt.Errorf("invalid repository format '%s', expected owner/repo", qualifiedRepoName)
	}
	if number <= 0 {
		return IssueRef{}, fmt.Errorf("invalid issue number %d", number)
	}
	return IssueRef{Owner: parts[0], Repo: parts[1], Number: number}, nil
}
