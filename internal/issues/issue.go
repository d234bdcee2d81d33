// Package issues models static-analysis findings and their
// position-independent identity.
package issues

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/sevigo/patch-warden/internal/diffindex"
)

// Level is the severity of a finding.
type Level string

const (
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Issue is one finding reported by an analyzer against a diff.
type Issue struct {
	Analyzer string
	Path     string
	// Line is 1-indexed; zero marks a whole-file finding.
	Line    int
	NbLines int
	Column  int
	Check   string
	Level   Level
	Message string

	Details Variant

	hashOnce sync.Once
	hash     string
	hashErr  error
}

func (i *Issue) String() string {
	return fmt.Sprintf("%s issue %s@%s %s line %d", i.Analyzer, i.Check, i.Level, i.Path, i.Line)
}

// Hash returns the content hash of the issue. The first call computes it and
// every later call returns the same outcome, including a failure.
func (i *Issue) Hash(ctx context.Context, h *Hasher) (string, error) {
	i.hashOnce.Do(func() {
		i.hash, i.hashErr = h.compute(ctx, i)
	})
	return i.hash, i.hashErr
}

// Validates applies the analyzer specific publication rules.
func (i *Issue) Validates(p Policy) bool {
	return i.variant().Validates(i, p)
}

// Text renders the body published on the review host.
func (i *Issue) Text() string {
	return i.variant().Text(i)
}

// Markdown renders a detailed description for debug output.
func (i *Issue) Markdown() string {
	return i.variant().Markdown(i)
}

// Publishable reports whether the issue passes its rules and lies inside the
// lines modified by the patch.
func (i *Issue) Publishable(idx *diffindex.Index, p Policy) bool {
	return i.Validates(p) && idx.InPatch(i.Path, i.Line, i.NbLines)
}

func (i *Issue) variant() Variant {
	if i.Details == nil {
		return Default{}
	}
	return i.Details
}

// Policy carries the configurable publication rules.
type Policy struct {
	// PublishableChecks are glob patterns of clang-tidy checks to report.
	PublishableChecks []string
	// AllowedPaths are glob patterns of paths where style issues are reported.
	AllowedPaths []string
	// DisabledChecks maps a linter to checks that are never reported.
	DisabledChecks map[string][]string
}

// DefaultPolicy publishes every check on every path and disables the flake8
// quote rule.
func DefaultPolicy() Policy {
	return Policy{
		PublishableChecks: []string{"*"},
		AllowedPaths:      []string{"*"},
		DisabledChecks:    map[string][]string{"flake8": {"Q000"}},
	}
}

// matchAny matches shell style patterns where '*' also spans '/'.
func matchAny(patterns []string, value string) bool {
	for _, p := range patterns {
		if globRegexp(p).MatchString(value) {
			return true
		}
	}
	return false
}

func globRegexp(pattern string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}
