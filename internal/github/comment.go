// Package github wraps the parts of the GitHub API the runner reports through.
package github

import (
	"context"
	"fmt"

	"github.com/google/go-github/v72/github"
	"golang.org/x/oauth2"
)

// IssueCommentService posts comments on issues and pull requests
type IssueCommentService interface {
	CreateComment(ctx context.Context, issue IssueRef, body string) (*github.IssueComment, error)
}

// issueCommentService implements IssueCommentService using GitHub API
type issueCommentService struct {
	client *github.Client
}

// NewIssueCommentService creates a new IssueCommentService
func NewIssueCommentService(client *github.Client) IssueCommentService {
	return &issueCommentService{
		client: client,
	}
}

func (ics *issueCommentService) CreateComment(ctx context.Context, issue IssueRef, body string) (*github.IssueComment, error) {
	comment := &github.IssueComment{
		Body: github.Ptr(body),
	}

	created, _, err := ics.client.Issues.CreateComment(ctx, issue.Owner, issue.Repo, issue.Number, comment)
	if err != nil {
		return nil, fmt.Errorf("failed to comment on %s: %w", issue, err)
	}

	return created, nil
}

// NewClient creates a GitHub client authenticated with a static token
func NewClient(ctx context.Context, token string) *github.Client {
	tokenSource := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	httpClient := oauth2.NewClient(ctx, tokenSource)
	return github.NewClient(httpClient)
}
