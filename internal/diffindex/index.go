// Package diffindex indexes the lines a unified diff adds to each file.
package diffindex

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

const devNull = "/dev/null"

// Index maps a file path to the set of new-side line numbers that the diff
// introduces or touches.
type Index struct {
	files map[string]map[int]struct{}
}

// Parse builds an Index from a unified diff, possibly spanning many files.
func Parse(unified string) (*Index, error) {
	fileDiffs, err := diff.NewMultiFileDiffReader(strings.NewReader(unified)).ReadAllFiles()
	if err != nil {
		return nil, fmt.Errorf("failed to parse unified diff: %w", err)
	}

	idx := &Index{files: make(map[string]map[int]struct{}, len(fileDiffs))}
	for _, fd := range fileDiffs {
		path := filePath(fd)
		if path == "" {
			continue
		}
		lines, ok := idx.files[path]
		if !ok {
			lines = make(map[int]struct{})
			idx.files[path] = lines
		}
		for _, hunk := range fd.Hunks {
			addHunk(lines, hunk)
		}
	}
	return idx, nil
}

// addHunk walks the hunk body and records every '+' line at its new-side
// position. Context lines advance the counter, removals do not.
func addHunk(lines map[int]struct{}, hunk *diff.Hunk) {
	current := int(hunk.NewStartLine)
	for _, line := range strings.Split(string(hunk.Body), "\n") {
		switch {
		case strings.HasPrefix(line, "+"):
			lines[current] = struct{}{}
			current++
		case strings.HasPrefix(line, " "):
			current++
		}
	}
}

func filePath(fd *diff.FileDiff) string {
	name := fd.NewName
	if name == "" || name == devNull {
		name = fd.OrigName
	}
	if name == devNull {
		return ""
	}
	for _, prefix := range []string{"b/", "a/"} {
		if strings.HasPrefix(name, prefix) {
			return strings.TrimPrefix(name, prefix)
		}
	}
	return name
}

// AddedLines returns the added-line set of a file and whether the diff
// mentions it at all.
func (i *Index) AddedLines(path string) (map[int]struct{}, bool) {
	lines, ok := i.files[path]
	return lines, ok
}

// HasFile reports whether the diff modifies the file.
func (i *Index) HasFile(path string) bool {
	_, ok := i.files[path]
	return ok
}

// Files returns the sorted paths touched by the diff.
func (i *Index) Files() []string {
	paths := make([]string, 0, len(i.files))
	for p := range i.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// InPatch reports whether a finding lies inside the edited region. A zero
// line marks a whole-file finding and always matches. A zero nbLines counts
// as one line.
func (i *Index) InPatch(path string, line, nbLines int) bool {
	if line <= 0 {
		return true
	}
	lines, ok := i.files[path]
	if !ok {
		return false
	}
	if nbLines <= 0 {
		nbLines = 1
	}
	for l := line; l < line+nbLines; l++ {
		if _, hit := lines[l]; hit {
			return true
		}
	}
	return false
}
