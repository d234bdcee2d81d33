package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/sevigo/patch-warden/internal/config"
	"github.com/sevigo/patch-warden/internal/core"
	"github.com/sevigo/patch-warden/internal/logger"
	"github.com/sevigo/patch-warden/internal/phabricator"
	"github.com/sevigo/patch-warden/internal/repomanager"
	"github.com/sevigo/patch-warden/internal/visibility"
	"github.com/sevigo/patch-warden/mocks"
)

// fakeVisibility turns the build into final after a number of probes.
type fakeVisibility struct {
	probes    int
	final     core.BuildState
	author    string
	calls     int
	forgotten []string
}

func (v *fakeVisibility) Advance(_ context.Context, build *core.Build) {
	v.calls++
	if build.State != core.BuildQueued || v.calls < v.probes {
		return
	}
	build.State = v.final
	build.AuthorPHID = v.author
}

func (v *fakeVisibility) Forget(target string) {
	v.forgotten = append(v.forgotten, target)
}

type fakeStacks struct {
	stack core.PatchStack
	err   error
}

func (s *fakeStacks) SearchDiff(_ context.Context, id int) (*phabricator.Diff, error) {
	return &phabricator.Diff{ID: id, PHID: "PHID-DIFF-test"}, nil
}

func (s *fakeStacks) LoadStack(_ context.Context, _ *phabricator.Diff) (core.PatchStack, error) {
	return s.stack, s.err
}

type fakeRepos struct {
	repo     repomanager.Repository
	acquired int
}

func (r *fakeRepos) Get(key string) (repomanager.Repository, error) {
	if r.repo == nil {
		return nil, repomanager.ErrRepoNotFound
	}
	return r.repo, nil
}

func (r *fakeRepos) Acquire(_ context.Context, _ string) (func(), error) {
	r.acquired++
	return func() {}, nil
}

type recordingPublisher struct {
	mu      sync.Mutex
	results []*core.Result
}

func (p *recordingPublisher) Publish(_ context.Context, result *core.Result) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results = append(p.results, result)
	return nil
}

func (p *recordingPublisher) modes() []core.ResultMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	modes := make([]core.ResultMode, 0, len(p.results))
	for _, r := range p.results {
		modes = append(modes, r.Mode)
	}
	return modes
}

func queuedBuild() *core.Build {
	return &core.Build{
		DiffID:     42,
		RevisionID: 12,
		RepoPHID:   "PHID-REPO-mc",
		TargetPHID: "PHID-HMBT-test",
		State:      core.BuildQueued,
	}
}

func TestPipeline_PushesPublicBuild(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := mocks.NewMockRepository(ctrl)
	repo.EXPECT().Name().Return("mozilla-central").AnyTimes()
	repo.EXPECT().TryName().Return("try").AnyTimes()
	repo.EXPECT().Reset(gomock.Any()).Return(nil)
	repo.EXPECT().Apply(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	repo.EXPECT().WriteCITrigger(gomock.Any(), gomock.Any()).Return(nil)
	repo.EXPECT().PushToTry(gomock.Any()).Return("deadbeef", nil)

	visibility := &fakeVisibility{probes: 3, final: core.BuildPublic, author: "PHID-USER-dev"}
	stack := core.PatchStack{{ID: 42, Content: fooPatch}}
	repos := &fakeRepos{repo: repo}
	publisher := &recordingPublisher{}

	p := NewPipeline(visibility, &fakeStacks{stack: stack}, repos,
		NewTryWorker(testConfig(), nil, logger.Nop()), publisher,
		[]string{"PHID-USER-bot"}, time.Millisecond, logger.Nop())

	build := queuedBuild()
	require.NoError(t, p.Run(context.Background(), build))

	assert.Equal(t, 3, visibility.calls)
	assert.Equal(t, []string{"PHID-HMBT-test"}, visibility.forgotten)
	assert.Equal(t, []core.ResultMode{core.ResultWork, core.ResultSuccess}, publisher.modes())
	assert.Equal(t, stack, build.Stack)
	assert.Equal(t, 1, repos.acquired)
}

func TestPipeline_SkipsWithoutPublishing(t *testing.T) {
	tests := []struct {
		name   string
		final  core.BuildState
		author string
	}{
		{name: "Secured", final: core.BuildSecured},
		{name: "Expired", final: core.BuildExpired},
		{name: "Blacklisted author", final: core.BuildPublic, author: "PHID-USER-bot"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			publisher := &recordingPublisher{}
			repos := &fakeRepos{}
			p := NewPipeline(&fakeVisibility{probes: 1, final: tt.final, author: tt.author},
				&fakeStacks{}, repos, NewTryWorker(testConfig(), nil, logger.Nop()), publisher,
				[]string{"PHID-USER-bot"}, time.Millisecond, logger.Nop())

			require.NoError(t, p.Run(context.Background(), queuedBuild()))
			assert.Empty(t, publisher.modes())
			assert.Zero(t, repos.acquired)
		})
	}
}

func TestPipeline_PublishesGeneralFailures(t *testing.T) {
	tests := []struct {
		name   string
		stacks *fakeStacks
		repos  *fakeRepos
		want   string
	}{
		{
			name:   "Stack failure",
			stacks: &fakeStacks{err: errors.New("conduit timeout")},
			repos:  &fakeRepos{},
			want:   "failed to load patch stack: conduit timeout",
		},
		{
			name:   "Unknown repository",
			stacks: &fakeStacks{stack: core.PatchStack{{ID: 42}}},
			repos:  &fakeRepos{},
			want:   "repository not managed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			publisher := &recordingPublisher{}
			p := NewPipeline(&fakeVisibility{probes: 1, final: core.BuildPublic},
				tt.stacks, tt.repos, NewTryWorker(testConfig(), nil, logger.Nop()), publisher,
				nil, time.Millisecond, logger.Nop())

			require.NoError(t, p.Run(context.Background(), queuedBuild()))
			require.Equal(t, []core.ResultMode{core.ResultWork, core.ResultFailGeneral}, publisher.modes())
			assert.Contains(t, publisher.results[1].Message, tt.want)
		})
	}
}

// deniedHost never lets the bot read a revision.
type deniedHost struct {
	mu     sync.Mutex
	probes int
}

func (h *deniedHost) LoadRevision(_ context.Context, _ int) (*phabricator.Revision, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes++
	return nil, phabricator.ErrNotFound
}

func (h *deniedHost) SearchDiff(_ context.Context, id int) (*phabricator.Diff, error) {
	return &phabricator.Diff{ID: id}, nil
}

func (h *deniedHost) RevisionURL(id int) string { return "" }

func TestPipeline_SecuredTargetIsNeverFetchedAgain(t *testing.T) {
	host := &deniedHost{}
	tracker := visibility.NewTracker(host, nil,
		config.VisibilityConfig{MaxRetries: 3, BaseSleep: time.Millisecond, BuildExpiry: time.Hour}, logger.Nop())
	publisher := &recordingPublisher{}
	repos := &fakeRepos{}
	p := NewPipeline(tracker, &fakeStacks{}, repos, NewTryWorker(testConfig(), nil, logger.Nop()),
		publisher, nil, time.Millisecond, logger.Nop())

	first := queuedBuild()
	require.NoError(t, p.Run(context.Background(), first))
	assert.Equal(t, core.BuildSecured, first.State)
	assert.Equal(t, 3, host.probes)

	second := queuedBuild()
	require.NoError(t, p.Run(context.Background(), second))
	assert.Equal(t, core.BuildSecured, second.State)
	assert.Equal(t, 3, host.probes)
	assert.Empty(t, publisher.modes())
	assert.Zero(t, repos.acquired)
}

func TestPipeline_StopsWhileQueued(t *testing.T) {
	visibility := &fakeVisibility{probes: 1 << 30, final: core.BuildPublic}
	publisher := &recordingPublisher{}
	p := NewPipeline(visibility, &fakeStacks{}, &fakeRepos{},
		NewTryWorker(testConfig(), nil, logger.Nop()), publisher, nil, time.Millisecond, logger.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Run(ctx, queuedBuild())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, publisher.modes())
	assert.Equal(t, []string{"PHID-HMBT-test"}, visibility.forgotten)
}
