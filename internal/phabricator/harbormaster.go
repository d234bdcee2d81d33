package phabricator

import (
	"context"
)

// BuildState is a harbormaster build target message type.
type BuildState string

const (
	BuildPass BuildState = "pass"
	BuildFail BuildState = "fail"
	BuildWork BuildState = "work"
)

// UnitResultState is the result of one unit entry.
type UnitResultState string

const (
	UnitPass    UnitResultState = "pass"
	UnitFail    UnitResultState = "fail"
	UnitBroken  UnitResultState = "broken"
	UnitSkip    UnitResultState = "skip"
	UnitUnsound UnitResultState = "unsound"
)

// UnitResult is one entry of the unit tests section of a revision.
type UnitResult struct {
	Namespace string          `json:"namespace"`
	Name      string          `json:"name"`
	Result    UnitResultState `json:"result"`
	Details   string          `json:"details,omitempty"`
	Format    string          `json:"format,omitempty"`
	Duration  float64         `json:"duration,omitempty"`
}

// SendMessage updates a build target with a state and optional unit results.
func (c *Client) SendMessage(ctx context.Context, targetPHID string, state BuildState, units []UnitResult) error {
	params := map[string]any{
		"buildTargetPHID": targetPHID,
		"type":            string(state),
	}
	if len(units) > 0 {
		params["unit"] = units
	}
	return c.call(ctx, "harbormaster.sendmessage", params, nil)
}

// CreateURIArtifact attaches an external link to a build target.
func (c *Client) CreateURIArtifact(ctx context.Context, targetPHID, key, name, uri string) error {
	return c.call(ctx, "harbormaster.createartifact", map[string]any{
		"buildTargetPHID": targetPHID,
		"artifactKey":     key,
		"artifactType":    "uri",
		"artifactData": map[string]any{
			"uri":         uri,
			"name":        name,
			"ui.external": true,
		},
	}, nil)
}
