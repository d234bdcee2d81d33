// Package phabricator is a small Conduit API client covering the calls made
// by the review pipeline.
package phabricator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// ErrNotFound is returned when a search yields no object.
var ErrNotFound = errors.New("object not found on phabricator")

// ConduitError is an application level error returned by the API.
type ConduitError struct {
	Method string
	Code   string
	Info   string
}

func (e *ConduitError) Error() string {
	return fmt.Sprintf("conduit %s failed: %s: %s", e.Method, e.Code, e.Info)
}

// Client calls the Conduit API of a Phabricator instance.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient builds a client for the instance at baseURL, e.g.
// https://phabricator.services.mozilla.com.
func NewClient(baseURL, token string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimSuffix(strings.TrimSuffix(baseURL, "/"), "/api"),
		token:   token,
		http:    httpClient,
		logger:  logger,
	}
}

// Hostname returns the host serving the review frontend.
func (c *Client) Hostname() string {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL
	}
	return u.Host
}

// RevisionURL returns the frontend URL of a revision.
func (c *Client) RevisionURL(revisionID int) string {
	return fmt.Sprintf("%s/D%d", c.baseURL, revisionID)
}

// RepositoryURL returns the frontend URL of a diffusion repository.
func (c *Client) RepositoryURL(repo *Repository) string {
	if repo.ShortName != "" {
		return fmt.Sprintf("%s/source/%s", c.baseURL, repo.ShortName)
	}
	return fmt.Sprintf("%s/diffusion/%d", c.baseURL, repo.ID)
}

type conduitResponse struct {
	Result    json.RawMessage `json:"result"`
	ErrorCode *string         `json:"error_code"`
	ErrorInfo *string         `json:"error_info"`
}

// call posts params to {baseURL}/api/{method} and decodes the result into out.
func (c *Client) call(ctx context.Context, method string, params map[string]any, out any) error {
	if params == nil {
		params = map[string]any{}
	}
	params["__conduit__"] = map[string]string{"token": c.token}
	encoded, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to encode %s parameters: %w", method, err)
	}

	form := url.Values{}
	form.Set("params", string(encoded))
	form.Set("output", "json")
	form.Set("__conduit__", "1")

	endpoint := fmt.Sprintf("%s/api/%s", c.baseURL, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	c.logger.Debug("conduit request", "method", method)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("conduit %s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("conduit %s returned status %d", method, resp.StatusCode)
	}

	var payload conduitResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("failed to decode conduit %s response: %w", method, err)
	}
	if payload.ErrorCode != nil && *payload.ErrorCode != "" {
		info := ""
		if payload.ErrorInfo != nil {
			info = *payload.ErrorInfo
		}
		return &ConduitError{Method: method, Code: *payload.ErrorCode, Info: info}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload.Result, out); err != nil {
		return fmt.Errorf("failed to decode conduit %s result: %w", method, err)
	}
	return nil
}

// searchResult is the envelope of every *.search method.
type searchResult[T any] struct {
	Data []T `json:"data"`
}

func search[T any](ctx context.Context, c *Client, method string, params map[string]any) ([]T, error) {
	var res searchResult[T]
	if err := c.call(ctx, method, params, &res); err != nil {
		return nil, err
	}
	return res.Data, nil
}
