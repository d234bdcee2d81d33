package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sevigo/patch-warden/internal/core"
	"github.com/sevigo/patch-warden/internal/logger"
	"github.com/sevigo/patch-warden/internal/metrics"
	"github.com/sevigo/patch-warden/internal/phabricator"
	"github.com/sevigo/patch-warden/internal/repomanager"
)

// Visibility advances queued builds on the review host.
type Visibility interface {
	Advance(ctx context.Context, build *core.Build)
	Forget(target string)
}

// StackSource loads the patch stack of a build.
type StackSource interface {
	SearchDiff(ctx context.Context, id int) (*phabricator.Diff, error)
	LoadStack(ctx context.Context, diff *phabricator.Diff) (core.PatchStack, error)
}

// Repositories resolves and locks local clones.
type Repositories interface {
	Get(key string) (repomanager.Repository, error)
	Acquire(ctx context.Context, name string) (func(), error)
}

// Pipeline takes a build from the webhook to its published result.
type Pipeline struct {
	visibility   Visibility
	stacks       StackSource
	repos        Repositories
	worker       *TryWorker
	publisher    core.Publisher
	blacklist    map[string]struct{}
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewPipeline builds the pipeline. blacklist holds author PHIDs whose
// revisions are dropped.
func NewPipeline(
	visibility Visibility,
	stacks StackSource,
	repos Repositories,
	worker *TryWorker,
	publisher core.Publisher,
	blacklist []string,
	pollInterval time.Duration,
	logger *slog.Logger,
) *Pipeline {
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	p := &Pipeline{
		visibility:   visibility,
		stacks:       stacks,
		repos:        repos,
		worker:       worker,
		publisher:    publisher,
		blacklist:    make(map[string]struct{}, len(blacklist)),
		pollInterval: pollInterval,
		logger:       logger,
	}
	for _, phid := range blacklist {
		p.blacklist[phid] = struct{}{}
	}
	return p
}

// Run processes one build. Returned errors concern publication only; every
// processing failure is published as a result.
func (p *Pipeline) Run(ctx context.Context, build *core.Build) error {
	log := logger.ForBuild(p.logger, build)

	if err := p.waitVisible(ctx, build); err != nil {
		return err
	}

	switch build.State {
	case core.BuildSecured:
		log.Info("build is secured, skipping")
		return nil
	case core.BuildExpired:
		log.Info("build is expired, skipping")
		return nil
	case core.BuildPublic:
	default:
		return fmt.Errorf("unexpected build state %s", build.State)
	}

	if _, blocked := p.blacklist[build.AuthorPHID]; blocked {
		log.Info("revision author is blacklisted, skipping", "author", build.AuthorPHID)
		return nil
	}

	if err := p.publisher.Publish(ctx, &core.Result{Mode: core.ResultWork, Build: build}); err != nil {
		log.Warn("failed to publish work status", "error", err)
	}

	return p.publisher.Publish(ctx, p.process(ctx, build, log))
}

// waitVisible re-invokes the tracker every poll interval until the build
// leaves the queued state.
func (p *Pipeline) waitVisible(ctx context.Context, build *core.Build) error {
	metrics.QueuedBuilds.Inc()
	defer metrics.QueuedBuilds.Dec()
	defer p.visibility.Forget(build.TargetPHID)

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	for {
		p.visibility.Advance(ctx, build)
		if build.State != core.BuildQueued {
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return fmt.Errorf("stopped waiting for %s: %w", build.String(), ctx.Err())
		}
	}
}

func (p *Pipeline) process(ctx context.Context, build *core.Build, log *slog.Logger) *core.Result {
	diff, err := p.stacks.SearchDiff(ctx, build.DiffID)
	if err != nil {
		return p.generalFailure(build, log, fmt.Errorf("failed to load diff: %w", err))
	}
	stack, err := p.stacks.LoadStack(ctx, diff)
	if err != nil {
		return p.generalFailure(build, log, fmt.Errorf("failed to load patch stack: %w", err))
	}
	build.Stack = stack
	log.Info("loaded patch stack", "patches", len(stack))

	repo, err := p.repos.Get(build.RepoPHID)
	if err != nil {
		return p.generalFailure(build, log, err)
	}
	release, err := p.repos.Acquire(ctx, repo.Name())
	if err != nil {
		return p.generalFailure(build, log, fmt.Errorf("failed to acquire %s: %w", repo.Name(), err))
	}
	defer release()

	return p.worker.Run(ctx, repo, build)
}

func (p *Pipeline) generalFailure(build *core.Build, log *slog.Logger, err error) *core.Result {
	log.Error("build processing failed", "error", err)
	return &core.Result{Mode: core.ResultFailGeneral, Build: build, Message: err.Error()}
}
