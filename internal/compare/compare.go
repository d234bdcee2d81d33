// Package compare classifies issue identities across the ordered diffs of a
// revision.
package compare

import (
	"fmt"
	"slices"
)

// Mode selects the comparison to run for a diff.
type Mode string

const (
	// ModeKnown lists issues also reported on a diff of another revision.
	ModeKnown Mode = "known"
	// ModeUnresolved lists issues still present since the previous diff.
	ModeUnresolved Mode = "unresolved"
	// ModeClosed lists issues of the previous diff that disappeared.
	ModeClosed Mode = "closed"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeKnown, ModeUnresolved, ModeClosed:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// IssueRef is one stored issue. An empty Hash marks an issue whose identity
// could not be computed; it never matches another issue.
type IssueRef struct {
	ID   string `json:"id"`
	Hash string `json:"hash"`
}

// Diff is one version of a revision together with the issues reported on it.
type Diff struct {
	ID         int
	RevisionID int
	Issues     []IssueRef
}

// Result is the answer to a comparison query.
type Result struct {
	PreviousDiffID *int       `json:"previous_diff_id"`
	Issues         []IssueRef `json:"issues"`
}

// Scope holds every diff needed to answer queries: all diffs of the
// revisions under comparison and any diff of another revision sharing an
// identity with them.
type Scope struct {
	diffs []Diff
}

// NewScope copies diffs into a scope.
func NewScope(diffs []Diff) *Scope {
	return &Scope{diffs: slices.Clone(diffs)}
}

// With returns a copy of the scope where d replaces the stored diff with the
// same id, or is added when the scope does not hold it yet.
func (s *Scope) With(d Diff) *Scope {
	out := &Scope{diffs: make([]Diff, 0, len(s.diffs)+1)}
	for _, c := range s.diffs {
		if c.ID != d.ID {
			out.diffs = append(out.diffs, c)
		}
	}
	out.diffs = append(out.diffs, d)
	return out
}

// Diff returns the diff with the given id.
func (s *Scope) Diff(id int) (Diff, bool) {
	for _, d := range s.diffs {
		if d.ID == id {
			return d, true
		}
	}
	return Diff{}, false
}

// Previous returns the diff of the same revision with the greatest id
// strictly below d.ID.
func (s *Scope) Previous(d Diff) (Diff, bool) {
	var (
		prev  Diff
		found bool
	)
	for _, c := range s.diffs {
		if c.RevisionID != d.RevisionID || c.ID >= d.ID {
			continue
		}
		if !found || c.ID > prev.ID {
			prev, found = c, true
		}
	}
	return prev, found
}

// Known returns the issues of d whose identity also appears on a diff of a
// different revision. It does not depend on the diff order.
func (s *Scope) Known(d Diff) []IssueRef {
	elsewhere := make(map[string]struct{})
	for _, c := range s.diffs {
		if c.RevisionID == d.RevisionID {
			continue
		}
		for _, h := range hashes(c) {
			elsewhere[h] = struct{}{}
		}
	}
	return filter(d.Issues, func(h string) bool {
		_, ok := elsewhere[h]
		return ok
	})
}

// Unresolved returns the issues of d whose identity was already on the
// previous diff.
func (s *Scope) Unresolved(d Diff) ([]IssueRef, error) {
	prev, ok := s.Previous(d)
	if !ok {
		return nil, &ComparatorError{DiffID: d.ID, Mode: ModeUnresolved, Err: ErrNoPreviousDiff}
	}
	before := set(prev)
	return filter(d.Issues, func(h string) bool {
		_, ok := before[h]
		return ok
	}), nil
}

// Closed returns the issues of the previous diff whose identity is absent
// from d.
func (s *Scope) Closed(d Diff) ([]IssueRef, error) {
	prev, ok := s.Previous(d)
	if !ok {
		return nil, &ComparatorError{DiffID: d.ID, Mode: ModeClosed, Err: ErrNoPreviousDiff}
	}
	after := set(d)
	return filter(prev.Issues, func(h string) bool {
		_, ok := after[h]
		return !ok
	}), nil
}

// New returns the issues of d absent from the previous diff, or every
// identified issue of d when it is the first diff.
func (s *Scope) New(d Diff) []IssueRef {
	before := map[string]struct{}{}
	if prev, ok := s.Previous(d); ok {
		before = set(prev)
	}
	return filter(d.Issues, func(h string) bool {
		_, ok := before[h]
		return !ok
	})
}

// Query answers a comparison request for the diff with the given id.
func (s *Scope) Query(diffID int, mode Mode) (*Result, error) {
	d, ok := s.Diff(diffID)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrDiffNotFound, diffID)
	}

	res := &Result{Issues: []IssueRef{}}
	if prev, ok := s.Previous(d); ok {
		res.PreviousDiffID = &prev.ID
	}

	var (
		issues []IssueRef
		err    error
	)
	switch mode {
	case ModeKnown:
		issues = s.Known(d)
	case ModeUnresolved:
		issues, err = s.Unresolved(d)
	case ModeClosed:
		issues, err = s.Closed(d)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	if err != nil {
		return nil, err
	}
	if issues != nil {
		res.Issues = issues
	}
	return res, nil
}

func hashes(d Diff) []string {
	out := make([]string, 0, len(d.Issues))
	for _, i := range d.Issues {
		if i.Hash != "" {
			out = append(out, i.Hash)
		}
	}
	return out
}

func set(d Diff) map[string]struct{} {
	out := make(map[string]struct{}, len(d.Issues))
	for _, h := range hashes(d) {
		out[h] = struct{}{}
	}
	return out
}

func filter(issues []IssueRef, keep func(hash string) bool) []IssueRef {
	out := make([]IssueRef, 0, len(issues))
	for _, i := range issues {
		if i.Hash != "" && keep(i.Hash) {
			out = append(out, i)
		}
	}
	return out
}
