package phabricator

import (
	"context"
	"fmt"
	"slices"

	"github.com/sevigo/patch-warden/internal/core"
)

// maxStackDepth bounds the walk through parent revisions.
const maxStackDepth = 50

// LoadStack builds the patch stack of a diff, oldest first. Parents are
// followed through the first dependency edge of each revision; parents that
// are already closed are kept and flagged as merged.
func (c *Client) LoadStack(ctx context.Context, diff *Diff) (core.PatchStack, error) {
	var stack core.PatchStack
	seen := map[string]bool{}

	current := diff
	merged := false
	for depth := 0; current != nil; depth++ {
		if depth >= maxStackDepth {
			return nil, fmt.Errorf("patch stack of diff %d is deeper than %d", diff.ID, maxStackDepth)
		}

		raw, err := c.RawDiff(ctx, current.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load patch of diff %d: %w", current.ID, err)
		}
		stack = append(stack, &core.Patch{
			ID:           current.ID,
			PHID:         current.PHID,
			BaseRevision: current.BaseRevision,
			Content:      raw,
			Merged:       merged,
			Commits:      current.Commits,
		})
		seen[current.RevisionPHID] = true

		parents, err := c.ParentRevisions(ctx, current.RevisionPHID)
		if err != nil {
			return nil, fmt.Errorf("failed to load parents of %s: %w", current.RevisionPHID, err)
		}
		if len(parents) == 0 || seen[parents[0]] {
			break
		}
		if len(parents) > 1 {
			c.logger.Warn("revision has several parents, following the first", "revision", current.RevisionPHID)
		}

		parent, err := c.LoadRevisionByPHID(ctx, parents[0])
		if err != nil {
			return nil, err
		}
		merged = parent.Closed
		current, err = c.LatestDiff(ctx, parent.PHID)
		if err != nil {
			return nil, err
		}
	}

	slices.Reverse(stack)
	return stack, nil
}
