package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/patch-warden/internal/compare"
	"github.com/sevigo/patch-warden/internal/core"
	"github.com/sevigo/patch-warden/internal/jobs"
	"github.com/sevigo/patch-warden/internal/logger"
	"github.com/sevigo/patch-warden/internal/storage"
)

type fakeDispatcher struct {
	builds []*core.Build
	err    error
}

func (d *fakeDispatcher) Dispatch(_ context.Context, build *core.Build) error {
	if d.err != nil {
		return d.err
	}
	d.builds = append(d.builds, build)
	return nil
}

type fakeScopes struct {
	scope *compare.Scope
	calls int
}

func (s *fakeScopes) LoadComparisonScope(_ context.Context, diffID int) (*compare.Scope, error) {
	s.calls++
	if _, ok := s.scope.Diff(diffID); !ok {
		return nil, fmt.Errorf("diff %d: %w", diffID, storage.ErrNotFound)
	}
	return s.scope, nil
}

func testScope() *compare.Scope {
	return compare.NewScope([]compare.Diff{
		{ID: 1, RevisionID: 10, Issues: []compare.IssueRef{{ID: "a", Hash: "h1"}, {ID: "b", Hash: "h2"}}},
		{ID: 2, RevisionID: 10, Issues: []compare.IssueRef{{ID: "a", Hash: "h1"}, {ID: "c", Hash: "h3"}}},
		{ID: 5, RevisionID: 20, Issues: []compare.IssueRef{{ID: "c", Hash: "h3"}}},
	})
}

func TestRouter_Builds(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		err        error
		wantStatus int
		wantQueued int
	}{
		{
			name:       "Valid notification",
			query:      "diff=1234&repo=PHID-REPO-mc&revision=56&target=PHID-HMBT-abc",
			wantStatus: http.StatusAccepted,
			wantQueued: 1,
		},
		{
			name:       "Missing target",
			query:      "diff=1234&repo=PHID-REPO-mc&revision=56",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Queue full",
			query:      "diff=1234&repo=PHID-REPO-mc&revision=56&target=PHID-HMBT-abc",
			err:        fmt.Errorf("%w, cannot accept build", jobs.ErrQueueFull),
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "Shutting down",
			query:      "diff=1234&repo=PHID-REPO-mc&revision=56&target=PHID-HMBT-abc",
			err:        fmt.Errorf("%w, cannot accept build", jobs.ErrStopped),
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "Dispatcher failure",
			query:      "diff=1234&repo=PHID-REPO-mc&revision=56&target=PHID-HMBT-abc",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dispatcher := &fakeDispatcher{err: tt.err}
			router := NewRouter(dispatcher, &fakeScopes{scope: testScope()}, logger.Nop())

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/builds?"+tt.query, nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Len(t, dispatcher.builds, tt.wantQueued)
		})
	}
}

func TestRouter_Issues(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantIssues []string
		wantPrev   *int
		wantLoads  int
	}{
		{name: "Unresolved", path: "/api/v2/diff/2/issues/unresolved", wantStatus: http.StatusOK, wantIssues: []string{"a"}, wantPrev: intPtr(1), wantLoads: 1},
		{name: "Closed", path: "/api/v2/diff/2/issues/closed", wantStatus: http.StatusOK, wantIssues: []string{"b"}, wantPrev: intPtr(1), wantLoads: 1},
		{name: "Known", path: "/api/v2/diff/2/issues/known", wantStatus: http.StatusOK, wantIssues: []string{"c"}, wantPrev: intPtr(1), wantLoads: 1},
		{name: "Known on first diff", path: "/api/v2/diff/1/issues/known", wantStatus: http.StatusOK, wantIssues: []string{}, wantLoads: 1},
		{name: "Invalid mode", path: "/api/v2/diff/2/issues/reopened", wantStatus: http.StatusBadRequest},
		{name: "Non integer id", path: "/api/v2/diff/abc/issues/known", wantStatus: http.StatusBadRequest},
		{name: "Invalid mode checked before id", path: "/api/v2/diff/abc/issues/bogus", wantStatus: http.StatusBadRequest},
		{name: "Unknown diff", path: "/api/v2/diff/99/issues/known", wantStatus: http.StatusNotFound, wantLoads: 1},
		{name: "Unresolved on first diff", path: "/api/v2/diff/1/issues/unresolved", wantStatus: http.StatusBadRequest, wantLoads: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scopes := &fakeScopes{scope: testScope()}
			router := NewRouter(&fakeDispatcher{}, scopes, logger.Nop())

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantLoads, scopes.calls)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			if tt.wantStatus != http.StatusOK {
				return
			}

			var body compare.Result
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			ids := make([]string, 0, len(body.Issues))
			for _, i := range body.Issues {
				ids = append(ids, i.ID)
			}
			assert.Equal(t, tt.wantIssues, ids)
			assert.Equal(t, tt.wantPrev, body.PreviousDiffID)
		})
	}
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	router := NewRouter(&fakeDispatcher{}, &fakeScopes{scope: testScope()}, logger.Nop())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func intPtr(i int) *int { return &i }
