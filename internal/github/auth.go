package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v73/github"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/sevigo/patch-warden/internal/config"
)

// NewCommitLookupFromConfig picks the authentication method from cfg: a
// personal token, then a GitHub App installation, else anonymous access
// throttled to cfg.UnauthenticatedRPS.
func NewCommitLookupFromConfig(ctx context.Context, cfg config.GitHubConfig, logger *slog.Logger) (CommitLookup, error) {
	switch {
	case cfg.Token != "":
		return NewCommitLookup(newTokenClient(ctx, cfg.Token), cfg.Owner, cfg.Repo, nil, logger), nil
	case cfg.AppID != 0 && cfg.InstallationID != 0:
		client, err := createInstallationClient(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return NewCommitLookup(client, cfg.Owner, cfg.Repo, nil, logger), nil
	default:
		logger.Warn("no GitHub credentials configured, commit lookups are throttled", "rps", cfg.UnauthenticatedRPS)
		limiter := rate.NewLimiter(rate.Limit(cfg.UnauthenticatedRPS), 1)
		return NewCommitLookup(github.NewClient(nil), cfg.Owner, cfg.Repo, limiter, logger), nil
	}
}

func newTokenClient(ctx context.Context, token string) *github.Client {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return github.NewClient(oauth2.NewClient(ctx, ts))
}

// createInstallationClient authenticates as a GitHub App installation.
func createInstallationClient(ctx context.Context, cfg config.GitHubConfig, logger *slog.Logger) (*github.Client, error) {
	logger.Info("Creating GitHub installation client", "installation_id", cfg.InstallationID)

	privateKey, err := os.ReadFile(cfg.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key from %s: %w", cfg.PrivateKeyPath, err)
	}

	// The apps transport signs JWTs to obtain installation tokens.
	appTransport, err := ghinstallation.NewAppsTransport(http.DefaultTransport, cfg.AppID, privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub App transport: %w", err)
	}
	appClient := github.NewClient(&http.Client{Transport: appTransport})

	token, _, err := appClient.Apps.CreateInstallationToken(ctx, cfg.InstallationID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create installation token for installation ID %d: %w", cfg.InstallationID, err)
	}
	if token.GetToken() == "" {
		return nil, fmt.Errorf("received an empty installation token")
	}
	logger.Info("Successfully created installation token", "installation_id", cfg.InstallationID, "expires_at", token.GetExpiresAt())

	return newTokenClient(ctx, token.GetToken()), nil
}
