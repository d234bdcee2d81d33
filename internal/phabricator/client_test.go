package phabricator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/patch-warden/internal/core"
	"github.com/sevigo/patch-warden/internal/logger"
)

type handlerFunc func(t *testing.T, params map[string]any) any

// conduitServer serves fake Conduit methods and records the calls it gets.
func conduitServer(t *testing.T, handlers map[string]handlerFunc) (*Client, *[]string) {
	t.Helper()
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := strings.TrimPrefix(r.URL.Path, "/api/")
		calls = append(calls, method)
		assert.NoError(t, r.ParseForm())

		var params map[string]any
		assert.NoError(t, json.Unmarshal([]byte(r.PostForm.Get("params")), &params))
		conduit, _ := params["__conduit__"].(map[string]any)
		assert.Equal(t, "api-token", conduit["token"])

		h, ok := handlers[method]
		if !ok {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"result": nil, "error_code": "ERR-CONDUIT-CORE", "error_info": "unknown method " + method,
			})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"result": h(t, params), "error_code": nil, "error_info": nil})
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/api/", "api-token", srv.Client(), logger.Nop()), &calls
}

func searchData(items ...map[string]any) map[string]any {
	return map[string]any{"data": items, "cursor": map[string]any{"after": nil}}
}

func revisionItem(id int, phid string, closed bool, projects ...string) map[string]any {
	return map[string]any{
		"id":   id,
		"phid": phid,
		"fields": map[string]any{
			"title":           "Bug 1 - test",
			"authorPHID":      "PHID-USER-author",
			"repositoryPHID":  "PHID-REPO-mc",
			"bugzilla.bug-id": "1",
			"status":          map[string]any{"value": "needs-review", "closed": closed},
		},
		"attachments": map[string]any{
			"projects":  map[string]any{"projectPHIDs": projects},
			"reviewers": map[string]any{"reviewers": []any{map[string]any{"reviewerPHID": "PHID-USER-rev"}}},
		},
	}
}

func diffItem(id int, phid, revisionPHID, base string) map[string]any {
	return map[string]any{
		"id":   id,
		"phid": phid,
		"fields": map[string]any{
			"revisionPHID": revisionPHID,
			"dateCreated":  1700000000,
			"refs":         []any{map[string]any{"type": "base", "identifier": base}},
		},
		"attachments": map[string]any{
			"commits": map[string]any{"commits": []any{map[string]any{
				"message": "Bug 1 - test r=reviewer",
				"author":  map[string]any{"name": "Dev", "email": "dev@example.com"},
			}}},
		},
	}
}

func TestClient_LoadRevision(t *testing.T) {
	client, _ := conduitServer(t, map[string]handlerFunc{
		"differential.revision.search": func(t *testing.T, params map[string]any) any {
			constraints := params["constraints"].(map[string]any)
			ids := constraints["ids"].([]any)
			if ids[0].(float64) != 51 {
				return searchData()
			}
			attachments := params["attachments"].(map[string]any)
			assert.Equal(t, true, attachments["projects"])
			assert.Equal(t, true, attachments["reviewers"])
			return searchData(revisionItem(51, "PHID-DREV-51", false, "PHID-PROJ-secure"))
		},
	})

	rev, err := client.LoadRevision(context.Background(), 51)
	require.NoError(t, err)
	assert.Equal(t, "PHID-DREV-51", rev.PHID)
	assert.Equal(t, "PHID-USER-author", rev.AuthorPHID)
	assert.Equal(t, "PHID-REPO-mc", rev.RepositoryPHID)
	assert.Equal(t, 1, rev.BugzillaID)
	assert.Equal(t, []string{"PHID-PROJ-secure"}, rev.ProjectPHIDs)
	assert.Equal(t, []string{"PHID-USER-rev"}, rev.ReviewerPHIDs)

	_, err = client.LoadRevision(context.Background(), 52)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestClient_SearchDiff(t *testing.T) {
	client, _ := conduitServer(t, map[string]handlerFunc{
		"differential.diff.search": func(_ *testing.T, _ map[string]any) any {
			return searchData(diffItem(42, "PHID-DIFF-42", "PHID-DREV-51", "abcdef"))
		},
	})

	diff, err := client.SearchDiff(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "abcdef", diff.BaseRevision)
	assert.Equal(t, time.Unix(1700000000, 0), diff.Created)
	assert.Equal(t, []core.Commit{{Message: "Bug 1 - test r=reviewer", AuthorName: "Dev", AuthorEmail: "dev@example.com"}}, diff.Commits)
}

func TestClient_ConduitError(t *testing.T) {
	client, _ := conduitServer(t, nil)

	_, err := client.RawDiff(context.Background(), 1)
	var cerr *ConduitError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "differential.getrawdiff", cerr.Method)
	assert.Equal(t, "ERR-CONDUIT-CORE", cerr.Code)
}

func TestClient_LoadStack(t *testing.T) {
	client, calls := conduitServer(t, map[string]handlerFunc{
		"differential.getrawdiff": func(_ *testing.T, params map[string]any) any {
			switch params["diffID"].(float64) {
			case 42:
				return "patch 42"
			case 30:
				return "patch 30"
			default:
				return "patch 10"
			}
		},
		"edge.search": func(_ *testing.T, params map[string]any) any {
			switch params["sourcePHIDs"].([]any)[0] {
			case "PHID-DREV-51":
				return searchData(map[string]any{"destinationPHID": "PHID-DREV-50"})
			case "PHID-DREV-50":
				return searchData(map[string]any{"destinationPHID": "PHID-DREV-40"})
			default:
				return searchData()
			}
		},
		"differential.revision.search": func(_ *testing.T, params map[string]any) any {
			phid := params["constraints"].(map[string]any)["phids"].([]any)[0].(string)
			if phid == "PHID-DREV-50" {
				return searchData(revisionItem(50, phid, false))
			}
			return searchData(revisionItem(40, phid, true))
		},
		"differential.diff.search": func(_ *testing.T, params map[string]any) any {
			assert.Equal(t, "newest", params["order"])
			rev := params["constraints"].(map[string]any)["revisionPHIDs"].([]any)[0].(string)
			if rev == "PHID-DREV-50" {
				return searchData(diffItem(30, "PHID-DIFF-30", rev, "base30"))
			}
			return searchData(diffItem(10, "PHID-DIFF-10", rev, "base10"))
		},
	})

	stack, err := client.LoadStack(context.Background(), &Diff{
		ID: 42, PHID: "PHID-DIFF-42", RevisionPHID: "PHID-DREV-51", BaseRevision: "base42",
	})
	require.NoError(t, err)
	require.Len(t, stack, 3)

	assert.Equal(t, 10, stack[0].ID)
	assert.True(t, stack[0].Merged)
	assert.Equal(t, 30, stack[1].ID)
	assert.False(t, stack[1].Merged)
	assert.Equal(t, "base30", stack[1].BaseRevision)
	assert.Equal(t, 42, stack.Last().ID)
	assert.Equal(t, "patch 42", stack.Last().Content)
	assert.NotEmpty(t, *calls)
}

func TestClient_Harbormaster(t *testing.T) {
	var got []map[string]any
	record := func(_ *testing.T, params map[string]any) any {
		delete(params, "__conduit__")
		got = append(got, params)
		return nil
	}
	client, _ := conduitServer(t, map[string]handlerFunc{
		"harbormaster.sendmessage":    record,
		"harbormaster.createartifact": record,
	})
	ctx := context.Background()

	require.NoError(t, client.SendMessage(ctx, "PHID-HMBT-1", BuildFail, []UnitResult{{
		Namespace: "code-review", Name: "general", Result: UnitBroken, Details: "boom", Format: "remarkup",
	}}))
	require.NoError(t, client.SendMessage(ctx, "PHID-HMBT-1", BuildWork, nil))
	require.NoError(t, client.CreateURIArtifact(ctx, "PHID-HMBT-1", "treeherder", "CI (Treeherder) Jobs", "https://th/1"))

	require.Len(t, got, 3)
	assert.Equal(t, "fail", got[0]["type"])
	units := got[0]["unit"].([]any)
	assert.Equal(t, "broken", units[0].(map[string]any)["result"])
	assert.NotContains(t, got[1], "unit")
	assert.Equal(t, "uri", got[2]["artifactType"])
	assert.Equal(t, map[string]any{"uri": "https://th/1", "name": "CI (Treeherder) Jobs", "ui.external": true}, got[2]["artifactData"])
}

func TestClient_Lookups(t *testing.T) {
	client, _ := conduitServer(t, map[string]handlerFunc{
		"project.search": func(_ *testing.T, _ map[string]any) any {
			return searchData(map[string]any{"phid": "PHID-PROJ-1", "fields": map[string]any{"name": "secure-revision"}})
		},
		"user.search": func(_ *testing.T, _ map[string]any) any {
			return searchData(map[string]any{"phid": "PHID-USER-bot", "fields": map[string]any{"username": "bot"}})
		},
		"diffusion.repository.search": func(_ *testing.T, _ map[string]any) any {
			return searchData(map[string]any{"phid": "PHID-REPO-1", "fields": map[string]any{"name": "mozilla-central"}})
		},
	})
	ctx := context.Background()

	projects, err := client.SearchProjects(ctx, []string{"secure-revision"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"PHID-PROJ-1": "secure-revision"}, projects)

	users, err := client.SearchUsers(ctx, []string{"bot"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"PHID-USER-bot": "bot"}, users)

	repos, err := client.ListRepositories(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"PHID-REPO-1": "mozilla-central"}, repos)
}

func TestClient_URLs(t *testing.T) {
	c := NewClient("https://phabricator.example.com/api/", "t", nil, logger.Nop())
	assert.Equal(t, "phabricator.example.com", c.Hostname())
	assert.Equal(t, "https://phabricator.example.com/D1234", c.RevisionURL(1234))
	assert.Equal(t, "https://phabricator.example.com/source/mozilla-central",
		c.RepositoryURL(&Repository{ID: 1, ShortName: "mozilla-central"}))
	assert.Equal(t, "https://phabricator.example.com/diffusion/7", c.RepositoryURL(&Repository{ID: 7}))
}

func TestClient_LoadRepository(t *testing.T) {
	client, _ := conduitServer(t, map[string]handlerFunc{
		"diffusion.repository.search": func(t *testing.T, params map[string]any) any {
			constraints := params["constraints"].(map[string]any)
			if constraints["phids"].([]any)[0] != "PHID-REPO-mc" {
				return searchData()
			}
			return searchData(map[string]any{
				"id":     1,
				"phid":   "PHID-REPO-mc",
				"fields": map[string]any{"name": "mozilla-central", "shortName": "mozilla-central"},
			})
		},
	})

	repo, err := client.LoadRepository(context.Background(), "PHID-REPO-mc")
	require.NoError(t, err)
	assert.Equal(t, &Repository{ID: 1, PHID: "PHID-REPO-mc", Name: "mozilla-central", ShortName: "mozilla-central"}, repo)

	_, err = client.LoadRepository(context.Background(), "PHID-REPO-unknown")
	assert.True(t, errors.Is(err, ErrNotFound))
}
