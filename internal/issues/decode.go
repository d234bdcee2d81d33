package issues

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Record is the serialized form of an issue exchanged with analyzers and the
// command line tool.
type Record struct {
	Analyzer string `json:"analyzer"`
	Path     string `json:"path"`
	Line     int    `json:"line"`
	NbLines  int    `json:"nb_lines"`
	Column   int    `json:"column"`
	Check    string `json:"check"`
	Level    string `json:"level"`
	Message  string `json:"message"`

	// Analyzer specific fields.
	Char        int      `json:"char,omitempty"`
	Body        string   `json:"body,omitempty"`
	Reason      string   `json:"reason,omitempty"`
	Notes       []string `json:"notes,omitempty"`
	Reliability string   `json:"reliability,omitempty"`
	Patch       string   `json:"patch,omitempty"`
	Linter      string   `json:"linter,omitempty"`
	BugType     string   `json:"bug_type,omitempty"`
	Kind        string   `json:"kind,omitempty"`
	Local       bool     `json:"local,omitempty"`
	BuildError  bool     `json:"build_error,omitempty"`
}

// Decode parses a JSON array of issue records.
func Decode(data []byte) ([]*Issue, error) {
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode issues: %w", err)
	}
	out := make([]*Issue, 0, len(records))
	for _, r := range records {
		issue, err := r.Issue()
		if err != nil {
			return nil, err
		}
		out = append(out, issue)
	}
	return out, nil
}

// Issue converts the record, selecting the variant from the analyzer name.
func (r Record) Issue() (*Issue, error) {
	if r.Analyzer == "" || r.Path == "" {
		return nil, fmt.Errorf("issue record requires analyzer and path")
	}
	level := Level(strings.ToLower(r.Level))
	if level == "" {
		level = LevelWarning
	}
	issue := &Issue{
		Analyzer: r.Analyzer,
		Path:     r.Path,
		Line:     r.Line,
		NbLines:  r.NbLines,
		Column:   r.Column,
		Check:    r.Check,
		Level:    level,
		Message:  r.Message,
	}
	if issue.Line > 0 && issue.NbLines == 0 {
		issue.NbLines = 1
	}
	issue.Details = r.variant()
	return issue, nil
}

func (r Record) variant() Variant {
	switch {
	case r.Analyzer == KindClangTidy || strings.HasSuffix(r.Analyzer, "-"+KindClangTidy):
		return ClangTidy{Char: r.Char, Body: r.Body, Reason: r.Reason, Notes: r.Notes, Reliability: Reliability(r.Reliability)}
	case r.Analyzer == KindClangFormat:
		return ClangFormat{Patch: r.Patch}
	case r.Analyzer == KindInfer:
		return Infer{BugType: r.BugType, Severity: r.Kind}
	case r.Analyzer == KindCoverity:
		return Coverity{Reliability: Reliability(r.Reliability), Local: r.Local, BuildError: r.BuildError}
	case r.Linter != "" || strings.HasPrefix(r.Analyzer, KindMozLint):
		return MozLint{Linter: r.Linter}
	default:
		return Default{}
	}
}
