package jobs

import (
	"fmt"
	"log/slog"
	"path"
	"slices"
	"strings"

	"github.com/sevigo/patch-warden/internal/core"
	"github.com/sevigo/patch-warden/internal/diffindex"
)

// TouchedFiles returns the sorted paths modified anywhere in the stack.
func TouchedFiles(stack core.PatchStack) ([]string, error) {
	seen := make(map[string]struct{})
	for _, patch := range stack {
		idx, err := diffindex.Parse(patch.Content)
		if err != nil {
			return nil, fmt.Errorf("patch %d: %w", patch.ID, err)
		}
		for _, file := range idx.Files() {
			seen[file] = struct{}{}
		}
	}
	files := make([]string, 0, len(seen))
	for file := range seen {
		files = append(files, file)
	}
	slices.Sort(files)
	return files, nil
}

// SkippableTouched returns the touched files matching an entry of the
// skippable set. Entries are exact paths or path.Match patterns.
func SkippableTouched(logger *slog.Logger, files, skippable []string) []string {
	if len(skippable) == 0 {
		return nil
	}

	var matched []string
	for _, file := range files {
		cleanPath := strings.TrimPrefix(file, "./")
		for _, pattern := range skippable {
			ok := pattern == cleanPath
			if !ok {
				var err error
				ok, err = path.Match(pattern, cleanPath)
				if err != nil {
					logger.Warn("Ignoring malformed skippable pattern", "pattern", pattern, "error", err)
					continue
				}
			}
			if ok {
				matched = append(matched, cleanPath)
				break
			}
		}
	}
	return matched
}
