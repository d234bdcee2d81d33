// Package core holds the build, patch and result types shared by the
// pipeline stages, plus the interfaces that connect them.
package core

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// BuildState is the visibility state of a build on the review host.
type BuildState string

const (
	BuildQueued  BuildState = "queued"
	BuildPublic  BuildState = "public"
	BuildSecured BuildState = "secured"
	BuildExpired BuildState = "expired"
)

// TargetPrefix is the PHID prefix of harbormaster build targets.
const TargetPrefix = "PHID-HMBT-"

// Build is one patch-under-review instance. It is mutated only by the
// visibility tracker and the try-push worker.
type Build struct {
	DiffID       int
	RevisionID   int
	DiffPHID     string
	RevisionPHID string
	RepoPHID     string
	TargetPHID   string

	State   BuildState
	Retries int

	// Filled once the build becomes public.
	AuthorPHID  string
	DiffCreated time.Time
	RevisionURL string
	Stack       PatchStack

	// Filled by the clone manager while applying the stack.
	BaseRevision        string
	ActualBaseRevision  string
	MissingBaseRevision bool
}

func (b *Build) String() string {
	return fmt.Sprintf("Diff %d (D%d)", b.DiffID, b.RevisionID)
}

// LogAttrs returns the key/value pairs identifying the build in log records.
func (b *Build) LogAttrs() []any {
	return []any{"diff", b.DiffID, "revision", b.RevisionID, "target", b.TargetPHID}
}

// BuildFromQuery transforms the query parameters of a build notification into
// a queued Build. It rejects payloads missing any of diff, repo, revision or
// target, or carrying malformed values.
func BuildFromQuery(values url.Values) (*Build, error) {
	for _, key := range []string{"diff", "repo", "revision", "target"} {
		if strings.TrimSpace(values.Get(key)) == "" {
			return nil, fmt.Errorf("missing %s parameter", key)
		}
	}

	diffID, err := strconv.Atoi(values.Get("diff"))
	if err != nil || diffID <= 0 {
		return nil, fmt.Errorf("invalid diff id: %q", values.Get("diff"))
	}
	revisionID, err := strconv.Atoi(values.Get("revision"))
	if err != nil || revisionID <= 0 {
		return nil, fmt.Errorf("invalid revision id: %q", values.Get("revision"))
	}

	target := values.Get("target")
	if !strings.HasPrefix(target, TargetPrefix) {
		return nil, fmt.Errorf("invalid target PHID: %q", target)
	}

	return &Build{
		DiffID:     diffID,
		RevisionID: revisionID,
		RepoPHID:   values.Get("repo"),
		TargetPHID: target,
		State:      BuildQueued,
	}, nil
}
