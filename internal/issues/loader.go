package issues

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"golang.org/x/sync/singleflight"

	"github.com/sevigo/patch-warden/internal/cache"
)

// GitLoader reads files from a local git clone. With an empty revision the
// working tree is read, which holds the applied patch.
type GitLoader struct {
	root     string
	revision string
	repo     *git.Repository
}

// NewGitLoader opens the clone at root.
func NewGitLoader(root, revision string) (*GitLoader, error) {
	repo, err := git.PlainOpen(root)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository at %s: %w", root, err)
	}
	return &GitLoader{root: root, revision: revision, repo: repo}, nil
}

func (l *GitLoader) Load(_ context.Context, path string) (string, error) {
	if l.revision == "" {
		return l.loadWorktree(path)
	}

	hash, err := l.repo.ResolveRevision(plumbing.Revision(l.revision))
	if err != nil {
		return "", fmt.Errorf("failed to resolve revision %s: %w", l.revision, err)
	}
	commit, err := l.repo.CommitObject(*hash)
	if err != nil {
		return "", fmt.Errorf("failed to get commit object for %s: %w", l.revision, err)
	}
	file, err := commit.File(path)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return "", fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return "", fmt.Errorf("failed to read %s at %s: %w", path, l.revision, err)
	}
	return file.Contents()
}

func (l *GitLoader) loadWorktree(path string) (string, error) {
	full := filepath.Join(l.root, filepath.FromSlash(path))
	rel, err := filepath.Rel(l.root, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path escapes repository: %s", path)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return "", err
	}
	return string(data), nil
}

// RawFileLoader fetches files from the review host raw-file endpoint,
// {repository}/raw-file/{revision}/{path}, caching every answer per path.
type RawFileLoader struct {
	client   *http.Client
	repoURL  string
	revision string
	cache    cache.Cache
	group    singleflight.Group
	logger   *slog.Logger
}

// NewRawFileLoader builds a loader for one repository revision.
func NewRawFileLoader(client *http.Client, repoURL, revision string, c cache.Cache, logger *slog.Logger) *RawFileLoader {
	if client == nil {
		client = http.DefaultClient
	}
	if c == nil {
		c = cache.NewMemory()
	}
	return &RawFileLoader{
		client:   client,
		repoURL:  strings.TrimSuffix(repoURL, "/"),
		revision: revision,
		cache:    c,
		logger:   logger,
	}
}

func (l *RawFileLoader) cacheKey(path string) string {
	return l.repoURL + ":" + l.revision + ":" + path
}

func (l *RawFileLoader) Load(ctx context.Context, path string) (string, error) {
	key := l.cacheKey(path)
	if content, ok, err := l.cache.Get(ctx, key); err == nil && ok {
		return content, nil
	}

	v, err, _ := l.group.Do(key, func() (any, error) {
		content, err := l.fetch(ctx, path)
		if err != nil && !errors.Is(err, ErrFileNotFound) {
			return "", err
		}
		// A missing file is cached as empty content.
		if cacheErr := l.cache.Set(ctx, key, content); cacheErr != nil {
			l.logger.Warn("failed to cache raw file", "path", path, "error", cacheErr)
		}
		return content, err
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (l *RawFileLoader) fetch(ctx context.Context, path string) (string, error) {
	escaped := make([]string, 0)
	for _, segment := range strings.Split(path, "/") {
		escaped = append(escaped, url.PathEscape(segment))
	}
	endpoint := fmt.Sprintf("%s/raw-file/%s/%s", l.repoURL, l.revision, strings.Join(escaped, "/"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", fmt.Errorf("%w: %s", ErrFileNotFound, path)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, endpoint)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", endpoint, err)
	}
	return string(data), nil
}
