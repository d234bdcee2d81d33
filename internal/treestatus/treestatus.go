// Package treestatus reads the open/closed status of the try tree.
package treestatus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// StatusOpen is the only status accepting pushes.
const StatusOpen = "open"

// Client reads a tree status endpoint answering {"status": "..."}, possibly
// wrapped in a "result" object.
type Client struct {
	url    string
	http   *http.Client
	logger *slog.Logger
}

// NewClient builds a client for the status endpoint of one tree.
func NewClient(url string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{url: url, http: httpClient, logger: logger}
}

type statusPayload struct {
	Status string `json:"status"`
	Result *struct {
		Status string `json:"status"`
	} `json:"result"`
}

// Status returns the current tree status.
func (c *Client) Status(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("tree status request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("tree status returned status %d", resp.StatusCode)
	}
	var payload statusPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode tree status: %w", err)
	}
	if payload.Result != nil && payload.Result.Status != "" {
		return payload.Result.Status, nil
	}
	return payload.Status, nil
}

// IsOpen reports whether the tree accepts pushes. Any failure counts as not
// open.
func (c *Client) IsOpen(ctx context.Context) bool {
	status, err := c.Status(ctx)
	if err != nil {
		c.logger.Warn("failed to read tree status", "error", err)
		return false
	}
	c.logger.Debug("tree status", "status", status)
	return status == StatusOpen
}
