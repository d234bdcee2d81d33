package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/sevigo/patch-warden/internal/config"
	"github.com/sevigo/patch-warden/internal/core"
	"github.com/sevigo/patch-warden/internal/logger"
	"github.com/sevigo/patch-warden/internal/metrics"
	"github.com/sevigo/patch-warden/internal/repomanager"
	"github.com/sevigo/patch-warden/internal/sampling"
)

// outcome tags the result of one clean, apply and push cycle.
type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeRetryable
	outcomeTerminal
)

type attempt struct {
	outcome outcome
	result  *core.Result
	err     error
}

// TreeStatus reports whether the try tree accepts pushes.
type TreeStatus interface {
	IsOpen(ctx context.Context) bool
}

// Sleeper pauses for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func contextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryWorker pushes the patch stack of a public build to the try service,
// retrying transient VCS failures with exponential delay.
type TryWorker struct {
	maxRetries     int
	baseDelay      float64
	skippable      []string
	treeherderURL  string
	pollInterval   time.Duration
	maxWait        time.Duration
	selectionRatio float64
	status         TreeStatus
	sleep          Sleeper
	logger         *slog.Logger
}

// WorkerOption customizes a TryWorker.
type WorkerOption func(*TryWorker)

// WithSleeper replaces the blocking sleep between retries and status polls.
func WithSleeper(s Sleeper) WorkerOption {
	return func(w *TryWorker) { w.sleep = s }
}

// NewTryWorker builds a worker. A nil status skips the tree status wait.
func NewTryWorker(cfg *config.Config, status TreeStatus, logger *slog.Logger, opts ...WorkerOption) *TryWorker {
	w := &TryWorker{
		maxRetries:     cfg.Try.MaxRetries,
		baseDelay:      cfg.Try.BaseDelay,
		skippable:      cfg.Try.SkippableFiles,
		treeherderURL:  strings.TrimSuffix(cfg.Try.TreeherderURL, "/"),
		pollInterval:   cfg.TreeStatus.PollInterval,
		maxWait:        cfg.TreeStatus.MaxWait,
		selectionRatio: cfg.Sampling.TestSelectionRatio,
		status:         status,
		sleep:          contextSleep,
		logger:         logger,
	}
	if w.pollInterval <= 0 {
		w.pollInterval = time.Minute
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run drives the build until a terminal result. Only retryable VCS
// failures are retried, at most maxRetries times.
func (w *TryWorker) Run(ctx context.Context, repo repomanager.Repository, build *core.Build) *core.Result {
	log := logger.ForBuild(w.logger, build).With("repo", repo.Name())

	for build.Retries <= w.maxRetries {
		a := w.attempt(ctx, repo, build)
		if a.outcome != outcomeRetryable {
			metrics.TryResults.WithLabelValues(string(a.result.Mode)).Inc()
			return a.result
		}

		build.Retries++
		if build.Retries > w.maxRetries {
			log.Error("max retries reached pushing to try", "retries", build.Retries, "error", a.err)
			break
		}

		log.Warn("transient VCS failure, retrying", "retries", build.Retries, "error", a.err)
		w.waitTryAvailable(ctx, log)

		delay := time.Duration(math.Pow(w.baseDelay, float64(build.Retries)) * float64(time.Second))
		if err := w.sleep(ctx, delay); err != nil {
			result := &core.Result{Mode: core.ResultFailGeneral, Build: build, Message: fmt.Sprintf("interrupted while retrying: %v", err)}
			metrics.TryResults.WithLabelValues(string(result.Mode)).Inc()
			return result
		}
	}

	result := &core.Result{
		Mode:    core.ResultFailMercurial,
		Build:   build,
		Message: "Max number of retries has been reached pushing the build to try repository",
	}
	metrics.TryResults.WithLabelValues(string(result.Mode)).Inc()
	return result
}

// attempt runs one clean, apply and push cycle.
func (w *TryWorker) attempt(ctx context.Context, repo repomanager.Repository, build *core.Build) attempt {
	metrics.PushAttempts.Inc()

	if err := repo.Reset(ctx); err != nil {
		return w.failure(build, err)
	}
	if err := repo.Apply(ctx, build, build.Stack); err != nil {
		return w.failure(build, err)
	}

	files, err := TouchedFiles(build.Stack)
	if err != nil {
		return w.failure(build, err)
	}
	if skipped := SkippableTouched(w.logger, files, w.skippable); len(skipped) > 0 {
		w.logger.Info("patch touches skippable files, not pushing", "build", build.String(), "files", skipped)
		return attempt{
			outcome: outcomeTerminal,
			result: &core.Result{
				Mode:    core.ResultFailIneligible,
				Build:   build,
				Message: fmt.Sprintf("Modified files match skippable internal configuration files: %s", strings.Join(skipped, ", ")),
			},
		}
	}

	if err := repo.WriteCITrigger(ctx, build); err != nil {
		return w.failure(build, err)
	}
	tip, err := repo.PushToTry(ctx)
	if err != nil {
		return w.failure(build, err)
	}

	return attempt{
		outcome: outcomeSuccess,
		result: &core.Result{
			Mode:          core.ResultSuccess,
			Build:         build,
			TreeherderURL: w.TreeherderURL(repo.TryName(), tip),
			Revision:      tip,
			TestSelection: sampling.Sample(build.RevisionID, w.selectionRatio),
		},
	}
}

func (w *TryWorker) failure(build *core.Build, err error) attempt {
	if repomanager.IsRetryable(err) {
		return attempt{outcome: outcomeRetryable, err: err}
	}
	mode := core.ResultFailGeneral
	var vcsErr *repomanager.VcsError
	if errors.As(err, &vcsErr) {
		mode = core.ResultFailMercurial
	}
	return attempt{
		outcome: outcomeTerminal,
		err:     err,
		result:  &core.Result{Mode: mode, Build: build, Message: err.Error()},
	}
}

// waitTryAvailable polls the tree status until it is open. After maxWait it
// gives up and lets the push proceed.
func (w *TryWorker) waitTryAvailable(ctx context.Context, log *slog.Logger) {
	if w.status == nil {
		return
	}
	for waited := time.Duration(0); waited < w.maxWait; waited += w.pollInterval {
		if w.status.IsOpen(ctx) {
			return
		}
		log.Info("try tree is not open, waiting", "waited", waited)
		if err := w.sleep(ctx, w.pollInterval); err != nil {
			return
		}
	}
	log.Warn("try tree still not open, proceeding anyway", "max_wait", w.maxWait)
}

// TreeherderURL links the CI jobs of a pushed revision.
func (w *TryWorker) TreeherderURL(tryName, revision string) string {
	return fmt.Sprintf("%s/#/jobs?repo=%s&revision=%s", w.treeherderURL, url.QueryEscape(tryName), url.QueryEscape(revision))
}
