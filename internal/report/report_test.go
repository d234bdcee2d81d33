package report

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/patch-warden/internal/core"
	"github.com/sevigo/patch-warden/internal/logger"
	"github.com/sevigo/patch-warden/internal/phabricator"
)

type message struct {
	target string
	state  phabricator.BuildState
	units  []phabricator.UnitResult
}

type artifact struct {
	target, key, name, uri string
}

type fakeHarbormaster struct {
	messages  []message
	artifacts []artifact
	err       error
}

func (h *fakeHarbormaster) SendMessage(_ context.Context, target string, state phabricator.BuildState, units []phabricator.UnitResult) error {
	h.messages = append(h.messages, message{target: target, state: state, units: units})
	return h.err
}

func (h *fakeHarbormaster) CreateURIArtifact(_ context.Context, target, key, name, uri string) error {
	h.artifacts = append(h.artifacts, artifact{target: target, key: key, name: name, uri: uri})
	return h.err
}

func build() *core.Build {
	return &core.Build{DiffID: 42, RevisionID: 12, TargetPHID: "PHID-HMBT-test"}
}

func TestPublish(t *testing.T) {
	missingBase := build()
	missingBase.MissingBaseRevision = true
	missingBase.BaseRevision = "abcdef"
	missingBase.ActualBaseRevision = "central"

	tests := []struct {
		name          string
		result        *core.Result
		wantMessages  []message
		wantArtifacts []artifact
	}{
		{
			name:         "Work",
			result:       &core.Result{Mode: core.ResultWork, Build: build()},
			wantMessages: []message{{target: "PHID-HMBT-test", state: phabricator.BuildWork}},
		},
		{
			name:   "Success",
			result: &core.Result{Mode: core.ResultSuccess, Build: build(), TreeherderURL: "https://treeherder/#/jobs?repo=try&revision=abc"},
			wantArtifacts: []artifact{{
				target: "PHID-HMBT-test",
				key:    "treeherder",
				name:   "CI (Treeherder) Jobs",
				uri:    "https://treeherder/#/jobs?repo=try&revision=abc",
			}},
		},
		{
			name:   "Success on default revision",
			result: &core.Result{Mode: core.ResultSuccess, Build: missingBase, TreeherderURL: "https://treeherder/x"},
			wantMessages: []message{{
				target: "PHID-HMBT-test",
				state:  phabricator.BuildWork,
				units: []phabricator.UnitResult{{
					Namespace: "code-review",
					Name:      "mercurial",
					Result:    phabricator.UnitUnsound,
					Details: "WARNING: The base revision of your patch is not available in the current repository.\n" +
						"Your patch has been rebased on central: issues may be positioned on the wrong lines.",
				}},
			}},
			wantArtifacts: []artifact{{target: "PHID-HMBT-test", key: "treeherder", name: "CI (Treeherder) Jobs", uri: "https://treeherder/x"}},
		},
		{
			name:   "General failure",
			result: &core.Result{Mode: core.ResultFailGeneral, Build: build(), Message: "boom"},
			wantMessages: []message{{
				target: "PHID-HMBT-test",
				state:  phabricator.BuildFail,
				units: []phabricator.UnitResult{{
					Namespace: "code-review",
					Name:      "general",
					Result:    phabricator.UnitBroken,
					Details:   "WARNING: An error occurred in the code review bot.\n\n```boom```",
					Format:    "remarkup",
				}},
			}},
		},
		{
			name:   "Mercurial failure with missing parent",
			result: &core.Result{Mode: core.ResultFailMercurial, Build: missingBase, Message: "patch failed"},
			wantMessages: []message{{
				target: "PHID-HMBT-test",
				state:  phabricator.BuildFail,
				units: []phabricator.UnitResult{{
					Namespace: "code-review",
					Name:      "mercurial",
					Result:    phabricator.UnitFail,
					Details: "WARNING: The code review bot failed to apply your patch because the parent revision (abcdef) " +
						"does not exist in the repository. If possible, you should publish that revision.\n\n```patch failed```",
					Format: "remarkup",
				}},
			}},
		},
		{
			name:         "Ineligible is a normal skip",
			result:       &core.Result{Mode: core.ResultFailIneligible, Build: build(), Message: "skippable"},
			wantMessages: []message{{target: "PHID-HMBT-test", state: phabricator.BuildPass}},
		},
		{
			name:   "Unknown mode",
			result: &core.Result{Mode: "test_result", Build: build()},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeHarbormaster{}
			p := NewPublisher(api, true, logger.Nop())
			require.NoError(t, p.Publish(context.Background(), tt.result))
			assert.Equal(t, tt.wantMessages, api.messages)
			assert.Equal(t, tt.wantArtifacts, api.artifacts)
		})
	}
}

func TestPublish_Disabled(t *testing.T) {
	api := &fakeHarbormaster{}
	p := NewPublisher(api, false, logger.Nop())
	require.NoError(t, p.Publish(context.Background(), &core.Result{Mode: core.ResultFailGeneral, Build: build(), Message: "boom"}))
	assert.Empty(t, api.messages)
	assert.Empty(t, api.artifacts)
}

func TestPublish_Error(t *testing.T) {
	missingBase := build()
	missingBase.MissingBaseRevision = true
	api := &fakeHarbormaster{err: errors.New("conduit down")}
	p := NewPublisher(api, true, logger.Nop())

	err := p.Publish(context.Background(), &core.Result{Mode: core.ResultSuccess, Build: missingBase})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing base warning")
	assert.Empty(t, api.artifacts)
}
