package phabricator

import (
	"context"
	"fmt"
)

type namedObject struct {
	PHID   string `json:"phid"`
	Fields struct {
		Name     string `json:"name"`
		Username string `json:"username"`
	} `json:"fields"`
}

// SearchProjects maps the PHIDs of the projects with the given slugs to
// their names.
func (c *Client) SearchProjects(ctx context.Context, slugs []string) (map[string]string, error) {
	data, err := search[namedObject](ctx, c, "project.search", map[string]any{
		"constraints": map[string]any{"slugs": slugs},
	})
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(data))
	for _, p := range data {
		out[p.PHID] = p.Fields.Name
	}
	return out, nil
}

// SearchUsers maps the PHIDs of the users with the given usernames to their
// usernames.
func (c *Client) SearchUsers(ctx context.Context, usernames []string) (map[string]string, error) {
	data, err := search[namedObject](ctx, c, "user.search", map[string]any{
		"constraints": map[string]any{"usernames": usernames},
	})
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(data))
	for _, u := range data {
		out[u.PHID] = u.Fields.Username
	}
	return out, nil
}

// ListRepositories maps repository PHIDs to repository names.
func (c *Client) ListRepositories(ctx context.Context) (map[string]string, error) {
	data, err := search[namedObject](ctx, c, "diffusion.repository.search", nil)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(data))
	for _, r := range data {
		out[r.PHID] = r.Fields.Name
	}
	return out, nil
}

// Repository is a repository hosted by diffusion.
type Repository struct {
	ID        int
	PHID      string
	Name      string
	ShortName string
}

// LoadRepository loads a repository by PHID.
func (c *Client) LoadRepository(ctx context.Context, phid string) (*Repository, error) {
	type repositoryData struct {
		ID     int    `json:"id"`
		PHID   string `json:"phid"`
		Fields struct {
			Name      string `json:"name"`
			ShortName string `json:"shortName"`
		} `json:"fields"`
	}
	data, err := search[repositoryData](ctx, c, "diffusion.repository.search", map[string]any{
		"constraints": map[string]any{"phids": []string{phid}},
	})
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: repository %s", ErrNotFound, phid)
	}
	r := data[0]
	return &Repository{ID: r.ID, PHID: r.PHID, Name: r.Fields.Name, ShortName: r.Fields.ShortName}, nil
}
