// Package github resolves abbreviated commit hashes through the GitHub API.
package github

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/go-github/v73/github"
	"golang.org/x/time/rate"
)

// CommitLookup expands an abbreviated git commit hash of the mirrored
// repository into the full 40 character hash.
//
//go:generate mockgen -destination=../../mocks/mock_commit_lookup.go -package=mocks . CommitLookup
type CommitLookup interface {
	FullHash(ctx context.Context, shortHash string) (string, error)
}

type commitLookup struct {
	client  *github.Client
	owner   string
	repo    string
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewCommitLookup wraps the official go-github client. A non-nil limiter
// throttles every lookup, which is required for unauthenticated clients.
func NewCommitLookup(client *github.Client, owner, repo string, limiter *rate.Limiter, logger *slog.Logger) CommitLookup {
	return &commitLookup{client: client, owner: owner, repo: repo, limiter: limiter, logger: logger}
}

// FullHash asks GitHub for the full SHA-1 of a commit reference.
func (c *commitLookup) FullHash(ctx context.Context, shortHash string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("commit lookup throttled: %w", err)
		}
	}
	sha, _, err := c.client.Repositories.GetCommitSHA1(ctx, c.owner, c.repo, shortHash, "")
	if err != nil {
		c.logger.Error("failed to resolve commit", "owner", c.owner, "repo", c.repo, "ref", shortHash, "error", err)
		return "", fmt.Errorf("failed to resolve commit %s on %s/%s: %w", shortHash, c.owner, c.repo, err)
	}
	if len(sha) != 40 {
		return "", fmt.Errorf("unexpected commit hash %q for %s", sha, shortHash)
	}
	return sha, nil
}
