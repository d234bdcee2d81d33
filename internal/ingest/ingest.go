// Package ingest records the issues an analyzer reported on a diff together
// with the repository, revision and diff they belong to.
package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sevigo/patch-warden/internal/compare"
	"github.com/sevigo/patch-warden/internal/config"
	"github.com/sevigo/patch-warden/internal/diffindex"
	"github.com/sevigo/patch-warden/internal/issues"
	"github.com/sevigo/patch-warden/internal/phabricator"
	"github.com/sevigo/patch-warden/internal/storage"
)

// ReviewHost is the part of the review-host API needed to describe a diff.
type ReviewHost interface {
	SearchDiff(ctx context.Context, id int) (*phabricator.Diff, error)
	LoadRevisionByPHID(ctx context.Context, phid string) (*phabricator.Revision, error)
	LoadRepository(ctx context.Context, phid string) (*phabricator.Repository, error)
	RepositoryURL(repo *phabricator.Repository) string
	RawDiff(ctx context.Context, diffID int) (string, error)
}

// Summary counts what an ingestion stored.
type Summary struct {
	Issues         []compare.IssueRef
	InPatch        int
	NewForRevision int
	Unidentified   int
}

// Ingester stores analyzer issues on a diff.
type Ingester struct {
	host   ReviewHost
	store  storage.Store
	hasher *issues.Hasher
	policy issues.Policy
	urls   map[string]string
	logger *slog.Logger
}

// New builds an ingester. The URL of a configured repository takes
// precedence over the one derived from the review host.
func New(host ReviewHost, store storage.Store, hasher *issues.Hasher, policy issues.Policy,
	repos []config.RepositoryConfig, logger *slog.Logger,
) *Ingester {
	urls := make(map[string]string, len(repos))
	for _, r := range repos {
		if r.PHID != "" && r.URL != "" {
			urls[r.PHID] = r.URL
		}
	}
	return &Ingester{host: host, store: store, hasher: hasher, policy: policy, urls: urls, logger: logger}
}

// Ingest records found on the diff. mercurialHash is the revision the patch
// was pushed as, empty when unknown.
func (in *Ingester) Ingest(ctx context.Context, diffID int, mercurialHash string, found []*issues.Issue) (*Summary, error) {
	log := in.logger.With("diff_id", diffID)

	revisionID, err := in.saveDiff(ctx, diffID, mercurialHash)
	if err != nil {
		return nil, err
	}

	raw, err := in.host.RawDiff(ctx, diffID)
	if err != nil {
		return nil, fmt.Errorf("failed to load raw diff %d: %w", diffID, err)
	}
	idx, err := diffindex.Parse(raw)
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	pending := make([]storage.NewIssue, 0, len(found))
	candidate := compare.Diff{ID: diffID, RevisionID: revisionID}
	for _, issue := range found {
		hash, err := issue.Hash(ctx, in.hasher)
		if err != nil {
			log.Warn("storing issue without identity", "issue", issue.String(), "error", err)
			hash = ""
			summary.Unidentified++
		}
		n := storage.NewIssue{Issue: issue, Hash: hash, InPatch: issue.Publishable(idx, in.policy)}
		if n.InPatch {
			summary.InPatch++
		}
		pending = append(pending, n)
		candidate.Issues = append(candidate.Issues, compare.IssueRef{Hash: hash})
	}

	scope, err := in.store.LoadComparisonScope(ctx, diffID)
	if err != nil {
		return nil, err
	}
	fresh := make(map[string]struct{})
	for _, ref := range scope.With(candidate).New(candidate) {
		fresh[ref.Hash] = struct{}{}
	}
	for n := range pending {
		if _, ok := fresh[pending[n].Hash]; ok {
			pending[n].NewForRevision = true
			summary.NewForRevision++
		}
	}

	summary.Issues, err = in.store.SaveIssues(ctx, diffID, pending)
	if err != nil {
		return nil, err
	}
	log.Info("stored issues",
		"issues", len(summary.Issues),
		"in_patch", summary.InPatch,
		"new_for_revision", summary.NewForRevision,
		"unidentified", summary.Unidentified)
	return summary, nil
}

// saveDiff upserts the diff and its parents, returning the revision id.
func (in *Ingester) saveDiff(ctx context.Context, diffID int, mercurialHash string) (int, error) {
	diff, err := in.host.SearchDiff(ctx, diffID)
	if err != nil {
		return 0, fmt.Errorf("failed to load diff %d: %w", diffID, err)
	}
	rev, err := in.host.LoadRevisionByPHID(ctx, diff.RevisionPHID)
	if err != nil {
		return 0, fmt.Errorf("failed to load revision of diff %d: %w", diffID, err)
	}
	repo, err := in.host.LoadRepository(ctx, rev.RepositoryPHID)
	if err != nil {
		return 0, fmt.Errorf("failed to load repository of D%d: %w", rev.ID, err)
	}

	url, ok := in.urls[repo.PHID]
	if !ok {
		url = in.host.RepositoryURL(repo)
	}
	slug := repo.ShortName
	if slug == "" {
		slug = repo.Name
	}
	if err := in.store.SaveRepository(ctx, &storage.Repository{ID: repo.ID, PHID: repo.PHID, Slug: slug, URL: url}); err != nil {
		return 0, err
	}

	stored := &storage.Revision{ID: rev.ID, PHID: rev.PHID, RepositoryID: repo.ID, Title: rev.Title}
	if rev.BugzillaID > 0 {
		bug := rev.BugzillaID
		stored.BugzillaID = &bug
	}
	if err := in.store.SaveRevision(ctx, stored); err != nil {
		return 0, err
	}

	if err := in.store.SaveDiff(ctx, &storage.Diff{
		ID:            diff.ID,
		PHID:          diff.PHID,
		RevisionID:    rev.ID,
		MercurialHash: mercurialHash,
	}); err != nil {
		return 0, err
	}
	return rev.ID, nil
}
