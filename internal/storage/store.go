// Package storage persists revisions, diffs and issue identities and loads
// the comparison scope of a diff.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/sevigo/patch-warden/internal/compare"
	"github.com/sevigo/patch-warden/internal/issues"
)

// Repository is a repository known to the review host.
type Repository struct {
	ID   int    `db:"id"`
	PHID string `db:"phid"`
	Slug string `db:"slug"`
	URL  string `db:"url"`
}

// Revision is a review request.
type Revision struct {
	ID           int    `db:"id"`
	PHID         string `db:"phid"`
	RepositoryID int    `db:"repository_id"`
	Title        string `db:"title"`
	BugzillaID   *int   `db:"bugzilla_id"`
}

// Diff is one version of a revision.
type Diff struct {
	ID            int            `db:"id"`
	PHID          string         `db:"phid"`
	RevisionID    int            `db:"revision_id"`
	ReviewTaskID  sql.NullString `db:"review_task_id"`
	MercurialHash string         `db:"mercurial_hash"`
}

// NewIssue is an issue reported on a diff, with its identity already
// computed. An empty Hash stores an unidentified issue.
type NewIssue struct {
	Issue          *issues.Issue
	Hash           string
	InPatch        bool
	NewForRevision bool
}

// Store defines the interface for all database operations.
type Store interface {
	SaveRepository(ctx context.Context, repo *Repository) error
	SaveRevision(ctx context.Context, rev *Revision) error
	SaveDiff(ctx context.Context, diff *Diff) error
	GetDiff(ctx context.Context, id int) (*Diff, error)
	SaveIssues(ctx context.Context, diffID int, found []NewIssue) ([]compare.IssueRef, error)
	LoadComparisonScope(ctx context.Context, diffID int) (*compare.Scope, error)
}

type postgresStore struct {
	db *sqlx.DB
}

// NewStore creates a new Store
func NewStore(db *sqlx.DB) Store {
	return &postgresStore{db: db}
}

func (s *postgresStore) SaveRepository(ctx context.Context, repo *Repository) error {
	query := `
		INSERT INTO repositories (id, phid, slug, url)
		VALUES (:id, :phid, :slug, :url)
		ON CONFLICT (id) DO UPDATE SET phid = EXCLUDED.phid, slug = EXCLUDED.slug, url = EXCLUDED.url, updated_at = NOW()`
	if _, err := s.db.NamedExecContext(ctx, query, repo); err != nil {
		return fmt.Errorf("failed to save repository %s: %w", repo.Slug, err)
	}
	return nil
}

func (s *postgresStore) SaveRevision(ctx context.Context, rev *Revision) error {
	query := `
		INSERT INTO revisions (id, phid, repository_id, title, bugzilla_id)
		VALUES (:id, :phid, :repository_id, :title, :bugzilla_id)
		ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, bugzilla_id = EXCLUDED.bugzilla_id, updated_at = NOW()`
	if _, err := s.db.NamedExecContext(ctx, query, rev); err != nil {
		return fmt.Errorf("failed to save revision D%d: %w", rev.ID, err)
	}
	return nil
}

func (s *postgresStore) SaveDiff(ctx context.Context, diff *Diff) error {
	query := `
		INSERT INTO diffs (id, phid, revision_id, review_task_id, mercurial_hash)
		VALUES (:id, :phid, :revision_id, :review_task_id, :mercurial_hash)
		ON CONFLICT (id) DO UPDATE SET review_task_id = EXCLUDED.review_task_id, mercurial_hash = EXCLUDED.mercurial_hash, updated_at = NOW()`
	if _, err := s.db.NamedExecContext(ctx, query, diff); err != nil {
		return fmt.Errorf("failed to save diff %d: %w", diff.ID, err)
	}
	return nil
}

// GetDiff returns ErrNotFound for an unknown id.
func (s *postgresStore) GetDiff(ctx context.Context, id int) (*Diff, error) {
	var d Diff
	err := s.db.GetContext(ctx, &d, `SELECT id, phid, revision_id, review_task_id, mercurial_hash FROM diffs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("diff %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load diff %d: %w", id, err)
	}
	return &d, nil
}

// SaveIssues links the issues to the diff in one transaction. Issues sharing
// a hash share one row.
func (s *postgresStore) SaveIssues(ctx context.Context, diffID int, found []NewIssue) ([]compare.IssueRef, error) {
	diff, err := s.GetDiff(ctx, diffID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	refs := make([]compare.IssueRef, 0, len(found))
	for _, n := range found {
		id, err := upsertIssue(ctx, tx, n)
		if err != nil {
			return nil, err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO issue_links (issue_id, revision_id, diff_id, new_for_revision, in_patch, line, nb_lines, char)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT DO NOTHING`,
			id, diff.RevisionID, diff.ID, n.NewForRevision, n.InPatch, n.Issue.Line, n.Issue.NbLines, n.Issue.Column)
		if err != nil {
			return nil, fmt.Errorf("failed to link issue %s to diff %d: %w", id, diff.ID, err)
		}
		refs = append(refs, compare.IssueRef{ID: id.String(), Hash: n.Hash})
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit issues of diff %d: %w", diff.ID, err)
	}
	return refs, nil
}

func upsertIssue(ctx context.Context, tx *sqlx.Tx, n NewIssue) (uuid.UUID, error) {
	i := n.Issue
	id := uuid.New()
	if n.Hash == "" {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO issues (id, hash, analyzer, path, level, check_name, message)
			VALUES ($1, NULL, $2, $3, $4, $5, $6)`,
			id, i.Analyzer, i.Path, string(i.Level), i.Check, i.Message)
		if err != nil {
			return uuid.Nil, fmt.Errorf("failed to save %s: %w", i, err)
		}
		return id, nil
	}

	// The no-op update makes RETURNING yield the existing row on conflict.
	err := tx.GetContext(ctx, &id, `
		INSERT INTO issues (id, hash, analyzer, path, level, check_name, message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (hash) DO UPDATE SET hash = EXCLUDED.hash
		RETURNING id`,
		id, n.Hash, i.Analyzer, i.Path, string(i.Level), i.Check, i.Message)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to save %s: %w", i, err)
	}
	return id, nil
}

// scopeRow is one diff/issue pair. Diffs without issues carry a NULL issue.
type scopeRow struct {
	DiffID     int            `db:"diff_id"`
	RevisionID int            `db:"revision_id"`
	IssueID    sql.NullString `db:"issue_id"`
	Hash       sql.NullString `db:"hash"`
}

const scopeQuery = `
	WITH target AS (
		SELECT revision_id FROM diffs WHERE id = $1
	), shared AS (
		SELECT DISTINCT l.diff_id
		FROM issue_links l
		JOIN issues i ON i.id = l.issue_id
		WHERE l.diff_id IS NOT NULL
		  AND i.hash IN (
			SELECT i2.hash
			FROM issue_links l2
			JOIN issues i2 ON i2.id = l2.issue_id
			WHERE l2.revision_id = (SELECT revision_id FROM target) AND i2.hash IS NOT NULL
		  )
	)
	SELECT d.id AS diff_id, d.revision_id, l.issue_id::text AS issue_id, i.hash
	FROM diffs d
	LEFT JOIN issue_links l ON l.diff_id = d.id
	LEFT JOIN issues i ON i.id = l.issue_id
	WHERE d.revision_id = (SELECT revision_id FROM target)
	   OR d.id IN (SELECT diff_id FROM shared)
	ORDER BY d.id, l.id`

// LoadComparisonScope loads every diff of the revision owning diffID, plus
// the diffs of other revisions sharing an identity with it.
func (s *postgresStore) LoadComparisonScope(ctx context.Context, diffID int) (*compare.Scope, error) {
	if _, err := s.GetDiff(ctx, diffID); err != nil {
		return nil, err
	}
	var rows []scopeRow
	if err := s.db.SelectContext(ctx, &rows, scopeQuery, diffID); err != nil {
		return nil, fmt.Errorf("failed to load comparison scope of diff %d: %w", diffID, err)
	}
	return buildScope(rows), nil
}

func buildScope(rows []scopeRow) *compare.Scope {
	var diffs []compare.Diff
	index := make(map[int]int)
	for _, r := range rows {
		pos, ok := index[r.DiffID]
		if !ok {
			pos = len(diffs)
			index[r.DiffID] = pos
			diffs = append(diffs, compare.Diff{ID: r.DiffID, RevisionID: r.RevisionID})
		}
		if !r.IssueID.Valid {
			continue
		}
		diffs[pos].Issues = append(diffs[pos].Issues, compare.IssueRef{ID: r.IssueID.String, Hash: r.Hash.String})
	}
	return compare.NewScope(diffs)
}
