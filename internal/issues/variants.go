package issues

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// Analyzer families with dedicated rules.
const (
	KindClangTidy   = "clang-tidy"
	KindClangFormat = "clang-format"
	KindMozLint     = "mozlint"
	KindInfer       = "infer"
	KindCoverity    = "coverity"
	KindDefault     = "default"
)

// Identity contributes analyzer specific fields to the content hash.
type Identity interface {
	ExtraIdentifiers() map[string]any
}

// Renderable produces the published and debug representations.
type Renderable interface {
	Text(i *Issue) string
	Markdown(i *Issue) string
}

// Validatable decides whether the analyzer rules allow publication.
type Validatable interface {
	Validates(i *Issue, p Policy) bool
}

// Variant is the closed set of analyzer families. Only types declared in
// this package implement it.
type Variant interface {
	Identity
	Renderable
	Validatable
	Kind() string
	sealed()
}

// Reliability is the false-positive ratio class of a checker.
type Reliability string

const (
	ReliabilityUnknown Reliability = "unknown"
	ReliabilityHigh    Reliability = "high"
	ReliabilityMedium  Reliability = "medium"
	ReliabilityLow     Reliability = "low"
)

func (r Reliability) invert() string {
	switch r {
	case ReliabilityHigh:
		return "low"
	case ReliabilityLow:
		return "high"
	case ReliabilityMedium:
		return "medium"
	default:
		return "unknown"
	}
}

func (r Reliability) known() bool {
	return r != "" && r != ReliabilityUnknown
}

func (r Reliability) sentence() string {
	return fmt.Sprintf("Checker reliability is %s, meaning that the false positive ratio is %s.", r, r.invert())
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

var macroExpansion = regexp.MustCompile(`^expanded from macro`)

// ClangTidy findings are single-line and carry notes.
type ClangTidy struct {
	Char        int
	Body        string
	Reason      string
	Notes       []string
	Reliability Reliability
}

func (ClangTidy) sealed() {}

func (ClangTidy) Kind() string { return KindClangTidy }

func (c ClangTidy) ExtraIdentifiers() map[string]any {
	return map[string]any{"char": c.Char}
}

func (c ClangTidy) expandedMacro() bool {
	return len(c.Notes) > 0 && macroExpansion.MatchString(c.Notes[0])
}

func (c ClangTidy) Validates(i *Issue, p Policy) bool {
	if i.Level != LevelWarning && i.Level != LevelError {
		return false
	}
	return matchAny(p.PublishableChecks, i.Check) && !c.expandedMacro()
}

func (c ClangTidy) Text(i *Issue) string {
	body := fmt.Sprintf("%s: %s [clang-tidy: %s]", capitalize(string(i.Level)), capitalize(i.Message), i.Check)
	if c.Body != "" {
		body += fmt.Sprintf("\n```\n%s\n```", c.Body)
	}
	if c.Reason != "" {
		body += "\n" + c.Reason
	}
	if c.Reliability.known() {
		body += "\n" + c.Reliability.sentence()
	}
	return body
}

func (c ClangTidy) Markdown(i *Issue) string {
	reliability := c.Reliability
	if reliability == "" {
		reliability = ReliabilityUnknown
	}
	return fmt.Sprintf(`## clang-tidy %s

- **Message**: %s
- **Location**: %s:%d:%d
- **Clang check**: %s
- **Expanded Macro**: %s
- **Checker reliability **: %s (false positive risk)

%s`, i.Level, i.Message, i.Path, i.Line, c.Char, i.Check, yesNo(c.expandedMacro()), reliability, codeBlock(c.Body))
}

// ClangFormat findings describe a styling fix over a range of lines.
type ClangFormat struct {
	Patch string
}

func (ClangFormat) sealed() {}

func (ClangFormat) Kind() string { return KindClangFormat }

func (ClangFormat) ExtraIdentifiers() map[string]any { return map[string]any{} }

func (ClangFormat) Validates(i *Issue, p Policy) bool {
	return matchAny(p.AllowedPaths, i.Path)
}

func (c ClangFormat) Text(_ *Issue) string {
	if c.Patch != "" {
		return fmt.Sprintf("Replace with :\n\n```%s```", c.Patch)
	}
	return "Incorrect coding style [clang-format]"
}

func (ClangFormat) Markdown(i *Issue) string {
	return fmt.Sprintf(`## clang-format style issue

- **Path**: %s
- **Lines**: from %d, on %d lines
`, i.Path, i.Line, i.NbLines)
}

// MozLint findings come from one of the mozlint linters.
type MozLint struct {
	Linter string
}

func (MozLint) sealed() {}

func (MozLint) Kind() string { return KindMozLint }

func (MozLint) ExtraIdentifiers() map[string]any { return map[string]any{} }

func (m MozLint) disabled(i *Issue, p Policy) bool {
	return slices.Contains(p.DisabledChecks[m.Linter], i.Check)
}

func (m MozLint) Validates(i *Issue, p Policy) bool {
	return !m.disabled(i, p)
}

func (m MozLint) Text(i *Issue) string {
	linter := m.Linter
	if i.Check != "" {
		linter = fmt.Sprintf("%s: %s", m.Linter, i.Check)
	}
	return fmt.Sprintf("%s: %s [%s]", capitalize(string(i.Level)), capitalize(i.Message), linter)
}

func (m MozLint) Markdown(i *Issue) string {
	return fmt.Sprintf(`## mozlint %s

- **Path**: %s
- **Level**: %s
- **Line**: %d
`, m.Linter, i.Path, i.Level, i.Line) + codeBlock(i.Message)
}

// Infer findings are keyed by bug type.
type Infer struct {
	BugType  string
	Severity string
}

func (Infer) sealed() {}

func (Infer) Kind() string { return KindInfer }

func (f Infer) ExtraIdentifiers() map[string]any {
	return map[string]any{"bug_type": f.BugType, "kind": f.Severity}
}

func (Infer) Validates(_ *Issue, _ Policy) bool { return true }

func (f Infer) Text(i *Issue) string {
	return fmt.Sprintf("%s: %s [infer: %s]", f.Severity, capitalize(i.Message), f.BugType)
}

func (f Infer) Markdown(i *Issue) string {
	return fmt.Sprintf(`## infer error

- **Message**: %s
- **Location**: %s:%d:%d
- **Infer check**: %s
`, i.Message, i.Path, i.Line, i.Column, f.BugType)
}

// Coverity findings are only reported when absent from the reference
// snapshot.
type Coverity struct {
	Reliability Reliability
	// Local is true when the issue is not present in the reference snapshot.
	Local      bool
	BuildError bool
}

func (Coverity) sealed() {}

func (Coverity) Kind() string { return KindCoverity }

func (Coverity) ExtraIdentifiers() map[string]any { return map[string]any{} }

func (c Coverity) Validates(_ *Issue, _ Policy) bool { return c.Local }

func (c Coverity) Text(i *Issue) string {
	if c.Reliability.known() {
		return c.Reliability.sentence() + "\n" + i.Message
	}
	return i.Message
}

func (c Coverity) Markdown(i *Issue) string {
	title := "Coverity analysis"
	if c.BuildError {
		title = "Coverity build error"
	}
	return fmt.Sprintf(`## %s

- **Check**: %s
- **Location**: %s:%d
`, title, i.Check, i.Path, i.Line) + codeBlock(i.Message)
}

// Default covers analyzers publishing the generic issue format.
type Default struct{}

func (Default) sealed() {}

func (Default) Kind() string { return KindDefault }

func (Default) ExtraIdentifiers() map[string]any { return map[string]any{} }

func (Default) Validates(_ *Issue, _ Policy) bool { return true }

func (Default) Text(i *Issue) string {
	return fmt.Sprintf("%s: %s [%s]", capitalize(string(i.Level)), i.Message, i.Check)
}

func (Default) Markdown(i *Issue) string {
	return fmt.Sprintf(`## issue %s

- **Path**: %s
- **Level**: %s
- **Check**: %s
- **Line**: %d
`, i.Analyzer, i.Path, i.Level, i.Check, i.Line) + codeBlock(i.Message)
}

func codeBlock(s string) string {
	return fmt.Sprintf("\n```\n%s\n```\n", s)
}
