package phabricator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sevigo/patch-warden/internal/core"
)

// Revision is a differential revision with its project and reviewer
// attachments.
type Revision struct {
	ID             int
	PHID           string
	Title          string
	AuthorPHID     string
	RepositoryPHID string
	BugzillaID     int
	Closed         bool
	ProjectPHIDs  []string
	ReviewerPHIDs []string
}

// Diff is one diff of a revision.
type Diff struct {
	ID           int
	PHID         string
	RevisionPHID string
	BaseRevision string
	Created      time.Time
	Commits      []core.Commit
}

type revisionData struct {
	ID     int    `json:"id"`
	PHID   string `json:"phid"`
	Fields struct {
		Title          string `json:"title"`
		AuthorPHID     string `json:"authorPHID"`
		RepositoryPHID string `json:"repositoryPHID"`
		BugzillaID     string `json:"bugzilla.bug-id"`
		Status         struct {
			Value  string `json:"value"`
			Closed bool   `json:"closed"`
		} `json:"status"`
	} `json:"fields"`
	Attachments struct {
		Projects struct {
			ProjectPHIDs []string `json:"projectPHIDs"`
		} `json:"projects"`
		Reviewers struct {
			Reviewers []struct {
				ReviewerPHID string `json:"reviewerPHID"`
			} `json:"reviewers"`
		} `json:"reviewers"`
	} `json:"attachments"`
}

func (d revisionData) revision() *Revision {
	r := &Revision{
		ID:             d.ID,
		PHID:           d.PHID,
		Title:          d.Fields.Title,
		AuthorPHID:     d.Fields.AuthorPHID,
		RepositoryPHID: d.Fields.RepositoryPHID,
		Closed:         d.Fields.Status.Closed,
		ProjectPHIDs:   d.Attachments.Projects.ProjectPHIDs,
	}
	// The bug field is free text and often empty.
	if bug, err := strconv.Atoi(strings.TrimSpace(d.Fields.BugzillaID)); err == nil && bug > 0 {
		r.BugzillaID = bug
	}
	for _, rv := range d.Attachments.Reviewers.Reviewers {
		r.ReviewerPHIDs = append(r.ReviewerPHIDs, rv.ReviewerPHID)
	}
	return r
}

type diffData struct {
	ID     int    `json:"id"`
	PHID   string `json:"phid"`
	Fields struct {
		RevisionPHID string `json:"revisionPHID"`
		DateCreated  int64  `json:"dateCreated"`
		Refs         []struct {
			Type       string `json:"type"`
			Identifier string `json:"identifier"`
		} `json:"refs"`
	} `json:"fields"`
	Attachments struct {
		Commits struct {
			Commits []struct {
				Message string `json:"message"`
				Author  struct {
					Name  string `json:"name"`
					Email string `json:"email"`
				} `json:"author"`
			} `json:"commits"`
		} `json:"commits"`
	} `json:"attachments"`
}

func (d diffData) diff() *Diff {
	out := &Diff{
		ID:           d.ID,
		PHID:         d.PHID,
		RevisionPHID: d.Fields.RevisionPHID,
	}
	if d.Fields.DateCreated > 0 {
		out.Created = time.Unix(d.Fields.DateCreated, 0)
	}
	for _, ref := range d.Fields.Refs {
		if ref.Type == "base" {
			out.BaseRevision = ref.Identifier
		}
	}
	for _, c := range d.Attachments.Commits.Commits {
		out.Commits = append(out.Commits, core.Commit{
			Message:     c.Message,
			AuthorName:  c.Author.Name,
			AuthorEmail: c.Author.Email,
		})
	}
	return out
}

var revisionAttachments = map[string]bool{"projects": true, "reviewers": true}

// LoadRevision loads a revision by id with its projects and reviewers.
func (c *Client) LoadRevision(ctx context.Context, id int) (*Revision, error) {
	data, err := search[revisionData](ctx, c, "differential.revision.search", map[string]any{
		"constraints": map[string]any{"ids": []int{id}},
		"attachments": revisionAttachments,
	})
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: revision D%d", ErrNotFound, id)
	}
	return data[0].revision(), nil
}

// LoadRevisionByPHID loads a revision by PHID.
func (c *Client) LoadRevisionByPHID(ctx context.Context, phid string) (*Revision, error) {
	data, err := search[revisionData](ctx, c, "differential.revision.search", map[string]any{
		"constraints": map[string]any{"phids": []string{phid}},
		"attachments": revisionAttachments,
	})
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: revision %s", ErrNotFound, phid)
	}
	return data[0].revision(), nil
}

// SearchDiff loads a diff by id with its commits.
func (c *Client) SearchDiff(ctx context.Context, id int) (*Diff, error) {
	data, err := search[diffData](ctx, c, "differential.diff.search", map[string]any{
		"constraints": map[string]any{"ids": []int{id}},
		"attachments": map[string]bool{"commits": true},
	})
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: diff %d", ErrNotFound, id)
	}
	return data[0].diff(), nil
}

// LatestDiff loads the newest diff of a revision.
func (c *Client) LatestDiff(ctx context.Context, revisionPHID string) (*Diff, error) {
	data, err := search[diffData](ctx, c, "differential.diff.search", map[string]any{
		"constraints": map[string]any{"revisionPHIDs": []string{revisionPHID}},
		"attachments": map[string]bool{"commits": true},
		"order":       "newest",
		"limit":       1,
	})
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: diff of revision %s", ErrNotFound, revisionPHID)
	}
	return data[0].diff(), nil
}

// RawDiff returns the unified diff of a diff.
func (c *Client) RawDiff(ctx context.Context, diffID int) (string, error) {
	var raw string
	if err := c.call(ctx, "differential.getrawdiff", map[string]any{"diffID": diffID}, &raw); err != nil {
		return "", err
	}
	return raw, nil
}

// ParentRevisions returns the PHIDs of the revisions a revision depends on.
func (c *Client) ParentRevisions(ctx context.Context, revisionPHID string) ([]string, error) {
	type edge struct {
		DestinationPHID string `json:"destinationPHID"`
	}
	data, err := search[edge](ctx, c, "edge.search", map[string]any{
		"sourcePHIDs": []string{revisionPHID},
		"types":       []string{"revision.parent"},
	})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(data))
	for _, e := range data {
		out = append(out, e.DestinationPHID)
	}
	return out, nil
}
