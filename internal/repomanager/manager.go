package repomanager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sevigo/patch-warden/internal/config"
	"github.com/sevigo/patch-warden/internal/hgutil"
)

// Manager owns the repositories of the deployment and grants exclusive
// access to each local clone. Distinct repositories are driven in parallel.
type Manager struct {
	repos   map[string]Repository
	aliases map[string]string
	locks   sync.Map
	logger  *slog.Logger
}

// NewManager indexes repositories by name.
func NewManager(repos []Repository, logger *slog.Logger) *Manager {
	m := &Manager{
		repos:   make(map[string]Repository, len(repos)),
		aliases: make(map[string]string),
		logger:  logger,
	}
	for _, repo := range repos {
		m.repos[repo.Name()] = repo
	}
	return m
}

// NewManagerFromConfig builds one hg repository per configured entry.
func NewManagerFromConfig(cfg *config.Config, client *hgutil.Client, opts Options, logger *slog.Logger) *Manager {
	if opts.ReposDir == "" {
		opts.ReposDir = cfg.ReposDir
	}
	if opts.TransientErrors == nil {
		opts.TransientErrors = cfg.Try.TransientErrors
	}
	opts.Hg = cfg.Hg

	repos := make([]Repository, 0, len(cfg.Repositories))
	for _, repoCfg := range cfg.Repositories {
		repos = append(repos, NewRepository(repoCfg, client, opts, logger))
	}
	m := NewManager(repos, logger)
	for _, repoCfg := range cfg.Repositories {
		if repoCfg.PHID != "" {
			m.aliases[repoCfg.PHID] = repoCfg.Name
		}
	}
	return m
}

// BindPHIDs registers review-host repository PHIDs, mapped to repository
// names, as lookup aliases. Unknown names are ignored.
func (m *Manager) BindPHIDs(names map[string]string) {
	for phid, name := range names {
		if _, ok := m.repos[name]; !ok {
			continue
		}
		if _, exists := m.aliases[phid]; !exists {
			m.aliases[phid] = name
		}
	}
}

// Get returns a repository by name or review-host PHID.
func (m *Manager) Get(key string) (Repository, error) {
	if name, ok := m.aliases[key]; ok {
		key = name
	}
	repo, ok := m.repos[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRepoNotFound, key)
	}
	return repo, nil
}

// Repositories lists the managed repositories.
func (m *Manager) Repositories() []Repository {
	out := make([]Repository, 0, len(m.repos))
	for _, repo := range m.repos {
		out = append(out, repo)
	}
	return out
}

// Acquire blocks until the caller owns the named clone or ctx is done. The
// returned function releases it.
func (m *Manager) Acquire(ctx context.Context, name string) (func(), error) {
	val, _ := m.locks.LoadOrStore(name, make(chan struct{}, 1))
	slot, ok := val.(chan struct{})
	if !ok {
		return nil, fmt.Errorf("internal error: failed to assert lock type")
	}
	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CloneAll clones every repository missing a local clone, in parallel.
func (m *Manager) CloneAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, repo := range m.repos {
		g.Go(func() error {
			release, err := m.Acquire(ctx, repo.Name())
			if err != nil {
				return err
			}
			defer release()

			if repo.Cloned() {
				m.logger.Info("repository already cloned", "repo", repo.Name())
				return nil
			}
			if err := repo.Clone(ctx); err != nil {
				return fmt.Errorf("failed to clone %s: %w", repo.Name(), err)
			}
			return nil
		})
	}
	return g.Wait()
}
