// Package jobs runs builds through visibility polling, try pushes and
// reporting.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sevigo/patch-warden/internal/core"
)

var (
	// ErrQueueFull is returned by Dispatch when no slot is available.
	ErrQueueFull = errors.New("build queue is full")
	// ErrStopped is returned by Dispatch once the dispatcher is shutting down.
	ErrStopped = errors.New("dispatcher is stopped")
)

// dispatcher implements core.JobDispatcher. Every accepted build runs in its
// own goroutine so a build waiting on one repository never delays another.
type dispatcher struct {
	job    core.Job        // Job implementation executed for each build.
	slots  chan struct{}   // One token per build accepted and not finished.
	wg     sync.WaitGroup  // Tracks running builds for graceful shutdown.
	ctx    context.Context // Cancelled by Stop to interrupt waiting builds.
	cancel context.CancelFunc
	logger *slog.Logger

	mu      sync.Mutex
	stopped bool
}

// Dispatcher queues builds and stops them on shutdown.
type Dispatcher interface {
	core.JobDispatcher
	Stop()
}

// NewDispatcher initializes a dispatcher accepting at most maxBuilds builds
// at a time. If maxBuilds is 0 or negative, it defaults to 100.
func NewDispatcher(job core.Job, maxBuilds int, logger *slog.Logger) Dispatcher {
	if maxBuilds <= 0 {
		maxBuilds = 100
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &dispatcher{
		job:    job,
		slots:  make(chan struct{}, maxBuilds),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

// Dispatch accepts a build and starts processing it right away.
func (d *dispatcher) Dispatch(_ context.Context, build *core.Build) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return fmt.Errorf("%w, cannot accept %s", ErrStopped, build.String())
	}

	select {
	case d.slots <- struct{}{}:
	default:
		return fmt.Errorf("%w, cannot accept %s", ErrQueueFull, build.String())
	}

	d.logger.Info("accepted build", "build", build.String(), "target", build.TargetPHID, "in_flight", len(d.slots))
	d.wg.Add(1)
	go d.processBuild(build)
	return nil
}

func (d *dispatcher) processBuild(build *core.Build) {
	defer d.wg.Done()
	defer func() { <-d.slots }()

	if err := d.job.Run(d.ctx, build); err != nil {
		d.logger.Error("build processing failed",
			"build", build.String(),
			"target", build.TargetPHID,
			"error", err,
		)
	}
}

// Stop refuses new builds, interrupts waiting ones and waits for all of them
// to return.
func (d *dispatcher) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()

	d.logger.Info("stopping dispatcher and waiting for builds to finish")
	d.cancel()
	d.wg.Wait()
	d.logger.Info("all builds have finished")
}
