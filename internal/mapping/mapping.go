// Package mapping translates git commit hashes into mercurial changeset
// hashes through a git/hg mapping service.
package mapping

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// Client queries {baseURL}/{repo}/rev/git/{hash}, which answers with the
// line "<git hash> <hg hash>".
type Client struct {
	baseURL string
	repo    string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient builds a mapping client for one mirrored repository.
func NewClient(baseURL, repo string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimSuffix(baseURL, "/"), repo: repo, http: httpClient, logger: logger}
}

// GitToHg returns the mercurial hash matching a full git hash.
func (c *Client) GitToHg(ctx context.Context, gitHash string) (string, error) {
	endpoint := fmt.Sprintf("%s/%s/rev/git/%s", c.baseURL, c.repo, gitHash)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("mapping request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("mapping service returned status %d for %s", resp.StatusCode, gitHash)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return "", fmt.Errorf("failed to read mapping response: %w", err)
	}

	fields := strings.Fields(string(body))
	if len(fields) != 2 || fields[0] != gitHash {
		return "", fmt.Errorf("unexpected mapping response for %s: %q", gitHash, strings.TrimSpace(string(body)))
	}
	c.logger.Debug("mapped git commit", "git", gitHash, "hg", fields[1])
	return fields[1], nil
}
