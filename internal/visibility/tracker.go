// Package visibility decides when a queued build can be read by the bot on
// the review host.
package visibility

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sevigo/patch-warden/internal/config"
	"github.com/sevigo/patch-warden/internal/core"
	"github.com/sevigo/patch-warden/internal/metrics"
	"github.com/sevigo/patch-warden/internal/phabricator"
)

// ReviewHost is the part of the review-host API used to probe a build.
type ReviewHost interface {
	LoadRevision(ctx context.Context, id int) (*phabricator.Revision, error)
	SearchDiff(ctx context.Context, id int) (*phabricator.Diff, error)
	RevisionURL(revisionID int) string
}

type attempts struct {
	left    int
	last    time.Time
	secured bool
}

// Tracker advances queued builds through the visibility state machine. It
// is safe for concurrent use.
type Tracker struct {
	host        ReviewHost
	secure      map[string]struct{}
	maxRetries  int
	baseSleep   time.Duration
	buildExpiry time.Duration
	now         func() time.Time
	logger      *slog.Logger

	mu      sync.Mutex
	retries map[string]*attempts
}

// Option customizes a Tracker.
type Option func(*Tracker)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker builds a tracker. secureProjects holds the PHIDs of projects
// that hide a revision from the bot.
func NewTracker(host ReviewHost, secureProjects []string, cfg config.VisibilityConfig, logger *slog.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		host:        host,
		secure:      make(map[string]struct{}, len(secureProjects)),
		maxRetries:  cfg.MaxRetries,
		baseSleep:   cfg.BaseSleep,
		buildExpiry: cfg.BuildExpiry,
		now:         time.Now,
		logger:      logger,
		retries:     make(map[string]*attempts),
	}
	for _, p := range secureProjects {
		t.secure[p] = struct{}{}
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Advance runs at most one visibility probe for a queued build, honoring the
// exponential backoff between probes of the same target. Builds in any other
// state are left untouched.
func (t *Tracker) Advance(ctx context.Context, build *core.Build) {
	if build.State != core.BuildQueued {
		return
	}

	log := t.logger.With(build.LogAttrs()...)
	left, ok, secured := t.reserve(build.TargetPHID)
	if secured {
		build.State = core.BuildSecured
		log.Info("revision was already marked as secure")
		return
	}
	if !ok {
		return
	}
	log.Info("checking visibility status", "retries_left", left)

	switch visible := t.probe(ctx, build, log); {
	case visible:
		build.State = core.BuildPublic
		build.RevisionURL = t.host.RevisionURL(build.RevisionID)
		log.Info("revision is public")
		if t.expired(ctx, build, log) {
			build.State = core.BuildExpired
			log.Info("revision has expired")
		}
	case left <= 0:
		build.State = core.BuildSecured
		t.markSecured(build.TargetPHID)
		log.Info("revision is marked as secure")
	default:
		build.State = core.BuildQueued
	}
	metrics.VisibilityProbes.WithLabelValues(string(build.State)).Inc()
}

// reserve consumes one retry for target when its backoff window has
// elapsed, returning the retries left afterwards. Targets already secured
// are reported as such and never reserved again.
func (t *Tracker) reserve(target string) (int, bool, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	a, ok := t.retries[target]
	if !ok {
		a = &attempts{left: t.maxRetries}
		t.retries[target] = a
	}
	if a.secured {
		return 0, false, true
	}
	if a.left <= 0 {
		return 0, false, false
	}

	now := t.now()
	if !a.last.IsZero() && now.Sub(a.last) < t.Backoff(a.left) {
		return a.left, false, false
	}
	a.left--
	a.last = now
	return a.left, true, false
}

func (t *Tracker) markSecured(target string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if a, ok := t.retries[target]; ok {
		a.secured = true
	}
}

// Backoff returns the delay required before the next probe when left
// retries remain.
func (t *Tracker) Backoff(left int) time.Duration {
	return t.baseSleep * time.Duration(1<<(t.maxRetries-left))
}

// RetriesLeft reports the remaining probes for a target.
func (t *Tracker) RetriesLeft(target string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if a, ok := t.retries[target]; ok {
		return a.left
	}
	return t.maxRetries
}

// Forget drops the retry state of a target once its build is done. Secured
// targets are kept so they are never fetched again.
func (t *Tracker) Forget(target string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if a, ok := t.retries[target]; ok && a.secured {
		return
	}
	delete(t.retries, target)
}

var errSecure = errors.New("secure revision")

func (t *Tracker) probe(ctx context.Context, build *core.Build, log *slog.Logger) bool {
	rev, err := t.host.LoadRevision(ctx, build.RevisionID)
	if err == nil {
		for _, p := range rev.ProjectPHIDs {
			if _, ok := t.secure[p]; ok {
				err = errSecure
				break
			}
		}
	}
	if err != nil {
		log.Info("revision not accessible", "error", err)
		return false
	}
	build.RevisionPHID = rev.PHID
	build.AuthorPHID = rev.AuthorPHID
	return true
}

// expired loads the diff creation date when needed. A build whose date
// cannot be determined is not considered expired.
func (t *Tracker) expired(ctx context.Context, build *core.Build, log *slog.Logger) bool {
	if build.DiffCreated.IsZero() {
		diff, err := t.host.SearchDiff(ctx, build.DiffID)
		if err != nil {
			log.Warn("failed to load diff", "error", err)
			return false
		}
		build.DiffPHID = diff.PHID
		build.DiffCreated = diff.Created
	}
	if build.DiffCreated.IsZero() {
		log.Warn("no creation date found")
		return false
	}
	return t.now().Sub(build.DiffCreated) > t.buildExpiry
}
