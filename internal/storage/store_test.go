package storage

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sevigo/patch-warden/internal/compare"
	"github.com/sevigo/patch-warden/internal/db"
	"github.com/sevigo/patch-warden/internal/issues"
)

func valid(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}

func TestBuildScope(t *testing.T) {
	rows := []scopeRow{
		{DiffID: 1, RevisionID: 10, IssueID: valid("a"), Hash: valid("h1")},
		{DiffID: 1, RevisionID: 10, IssueID: valid("b"), Hash: valid("h2")},
		{DiffID: 2, RevisionID: 10, IssueID: valid("a"), Hash: valid("h1")},
		{DiffID: 2, RevisionID: 10, IssueID: valid("c")},
		{DiffID: 3, RevisionID: 10},
		{DiffID: 7, RevisionID: 20, IssueID: valid("b"), Hash: valid("h2")},
	}
	scope := buildScope(rows)

	d2, ok := scope.Diff(2)
	require.True(t, ok)
	assert.Equal(t, []compare.IssueRef{{ID: "a", Hash: "h1"}, {ID: "c"}}, d2.Issues)

	d3, ok := scope.Diff(3)
	require.True(t, ok)
	assert.Empty(t, d3.Issues)

	closed, err := scope.Query(2, compare.ModeClosed)
	require.NoError(t, err)
	assert.Equal(t, []compare.IssueRef{{ID: "b", Hash: "h2"}}, closed.Issues)

	known, err := scope.Query(1, compare.ModeKnown)
	require.NoError(t, err)
	assert.Equal(t, []compare.IssueRef{{ID: "b", Hash: "h2"}}, known.Issues)
}

// openTestDB connects to the database named by PW_TEST_DATABASE_DSN.
func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	dsn := os.Getenv("PW_TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("PW_TEST_DATABASE_DSN not set")
	}
	conn, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, (&db.DB{DB: conn}).RunMigrations())
	_, err = conn.Exec(`TRUNCATE repositories, revisions, diffs, issues, issue_links CASCADE`)
	require.NoError(t, err)
	return conn
}

func TestPostgresStore(t *testing.T) {
	conn := openTestDB(t)
	store := NewStore(conn)
	ctx := context.Background()

	require.NoError(t, store.SaveRepository(ctx, &Repository{ID: 1, PHID: "PHID-REPO-mc", Slug: "mozilla-central", URL: "https://hg.mozilla.org/mozilla-central"}))
	for _, rev := range []*Revision{{ID: 10, PHID: "PHID-DREV-a", RepositoryID: 1}, {ID: 20, PHID: "PHID-DREV-b", RepositoryID: 1}} {
		require.NoError(t, store.SaveRevision(ctx, rev))
	}
	for _, d := range []*Diff{{ID: 1, PHID: "PHID-DIFF-1", RevisionID: 10}, {ID: 2, PHID: "PHID-DIFF-2", RevisionID: 10}, {ID: 7, PHID: "PHID-DIFF-7", RevisionID: 20}} {
		require.NoError(t, store.SaveDiff(ctx, d))
	}

	issue := func(line int) *issues.Issue {
		return &issues.Issue{Analyzer: "mozlint", Path: "dom/a.cpp", Line: line, NbLines: 1, Check: "no-var", Level: issues.LevelWarning}
	}

	first, err := store.SaveIssues(ctx, 1, []NewIssue{{Issue: issue(3), Hash: "h1"}, {Issue: issue(5), Hash: "h2"}, {Issue: issue(8)}})
	require.NoError(t, err)
	require.Len(t, first, 3)
	second, err := store.SaveIssues(ctx, 2, []NewIssue{{Issue: issue(4), Hash: "h1"}})
	require.NoError(t, err)
	assert.Equal(t, first[0].ID, second[0].ID, "same hash shares one issue")
	_, err = store.SaveIssues(ctx, 7, []NewIssue{{Issue: issue(9), Hash: "h2"}})
	require.NoError(t, err)

	scope, err := store.LoadComparisonScope(ctx, 2)
	require.NoError(t, err)

	unresolved, err := scope.Query(2, compare.ModeUnresolved)
	require.NoError(t, err)
	assert.Equal(t, []compare.IssueRef{{ID: first[0].ID, Hash: "h1"}}, unresolved.Issues)

	closed, err := scope.Query(2, compare.ModeClosed)
	require.NoError(t, err)
	assert.Equal(t, []compare.IssueRef{{ID: first[1].ID, Hash: "h2"}}, closed.Issues)

	known, err := scope.Query(1, compare.ModeKnown)
	require.NoError(t, err)
	assert.Equal(t, []compare.IssueRef{{ID: first[1].ID, Hash: "h2"}}, known.Issues)

	_, err = store.LoadComparisonScope(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.SaveIssues(ctx, 999, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

