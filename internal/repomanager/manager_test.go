package repomanager

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/sevigo/patch-warden/internal/config"
	"github.com/sevigo/patch-warden/internal/hgutil"
	"github.com/sevigo/patch-warden/internal/logger"
	"github.com/sevigo/patch-warden/mocks"
)

func TestManager_Get(t *testing.T) {
	cfg := &config.Config{
		ReposDir: t.TempDir(),
		Repositories: []config.RepositoryConfig{
			{Name: "mozilla-central", PHID: "PHID-REPO-mc", URL: "https://hg/mc", Checkout: config.CheckoutRobust},
			{Name: "nss", URL: "https://hg/nss", Checkout: config.CheckoutPlain},
		},
	}
	m := NewManagerFromConfig(cfg, hgutil.NewClient(&scriptedRunner{}, logger.Nop()), Options{}, logger.Nop())
	m.BindPHIDs(map[string]string{"PHID-REPO-nss": "nss", "PHID-REPO-gone": "comm-central"})

	tests := []struct {
		key     string
		want    string
		wantErr bool
	}{
		{key: "mozilla-central", want: "mozilla-central"},
		{key: "PHID-REPO-mc", want: "mozilla-central"},
		{key: "PHID-REPO-nss", want: "nss"},
		{key: "PHID-REPO-gone", wantErr: true},
		{key: "unknown", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			repo, err := m.Get(tt.key)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrRepoNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, repo.Name())
		})
	}
	assert.Len(t, m.Repositories(), 2)
}

func TestManager_AcquireIsExclusive(t *testing.T) {
	m := NewManager(nil, logger.Nop())
	ctx := context.Background()

	release, err := m.Acquire(ctx, "mozilla-central")
	require.NoError(t, err)

	// Another repository is independent.
	other, err := m.Acquire(ctx, "nss")
	require.NoError(t, err)
	other()

	acquired := make(chan struct{})
	go func() {
		second, err := m.Acquire(ctx, "mozilla-central")
		if err == nil {
			close(acquired)
			second()
		}
	}()

	select {
	case <-acquired:
		t.Fatal("clone acquired twice")
	case <-time.After(50 * time.Millisecond):
	}
	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("clone never released")
	}
}

func TestManager_AcquireHonorsContext(t *testing.T) {
	m := NewManager(nil, logger.Nop())
	release, err := m.Acquire(context.Background(), "mozilla-central")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.Acquire(ctx, "mozilla-central")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestManager_CloneAll(t *testing.T) {
	ctrl := gomock.NewController(t)

	cloned := mocks.NewMockRepository(ctrl)
	cloned.EXPECT().Name().Return("mozilla-central").AnyTimes()
	cloned.EXPECT().Cloned().Return(true)

	missing := mocks.NewMockRepository(ctrl)
	missing.EXPECT().Name().Return("nss").AnyTimes()
	missing.EXPECT().Cloned().Return(false)
	missing.EXPECT().Clone(gomock.Any()).Return(nil)

	m := NewManager([]Repository{cloned, missing}, logger.Nop())
	require.NoError(t, m.CloneAll(context.Background()))
}

func TestManager_CloneAllFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	var clones atomic.Int32

	broken := mocks.NewMockRepository(ctrl)
	broken.EXPECT().Name().Return("nss").AnyTimes()
	broken.EXPECT().Cloned().Return(false)
	broken.EXPECT().Clone(gomock.Any()).DoAndReturn(func(context.Context) error {
		clones.Add(1)
		return &VcsError{Message: "failed to clone https://hg/nss", Err: errors.New("abort: HTTP Error 404")}
	})

	m := NewManager([]Repository{broken}, logger.Nop())
	err := m.CloneAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to clone nss")
	assert.Equal(t, int32(1), clones.Load())
}
