package app

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/sevigo/patch-warden/internal/config"
)

// Directory is the review-host API used to resolve names into PHIDs.
type Directory interface {
	SearchProjects(ctx context.Context, slugs []string) (map[string]string, error)
	SearchUsers(ctx context.Context, usernames []string) (map[string]string, error)
	ListRepositories(ctx context.Context) (map[string]string, error)
}

// PHIDBinder accepts repository PHID aliases.
type PHIDBinder interface {
	BindPHIDs(names map[string]string)
}

// Lookups holds the PHIDs resolved once at startup.
type Lookups struct {
	SecureProjects []string
	Blacklist      []string
}

// ResolveLookups turns configured slugs and usernames into PHIDs and binds
// review-host repository PHIDs to the managed repositories.
func ResolveLookups(ctx context.Context, dir Directory, cfg *config.Config, repos PHIDBinder, logger *slog.Logger) (*Lookups, error) {
	out := &Lookups{}

	if len(cfg.Phabricator.SecureProjects) > 0 {
		projects, err := dir.SearchProjects(ctx, cfg.Phabricator.SecureProjects)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve secure projects: %w", err)
		}
		out.SecureProjects = slices.Sorted(maps.Keys(projects))
		if len(projects) < len(cfg.Phabricator.SecureProjects) {
			logger.Warn("some secure projects were not found", "configured", cfg.Phabricator.SecureProjects, "found", projects)
		}
	}

	if len(cfg.Phabricator.UserBlacklist) > 0 {
		users, err := dir.SearchUsers(ctx, cfg.Phabricator.UserBlacklist)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve blacklisted users: %w", err)
		}
		out.Blacklist = slices.Sorted(maps.Keys(users))
		logger.Info("blacklisted users", "users", slices.Sorted(maps.Values(users)))
	}

	names, err := dir.ListRepositories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list review-host repositories: %w", err)
	}
	repos.BindPHIDs(names)

	return out, nil
}
