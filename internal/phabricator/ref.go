package phabricator

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var revisionRefRegex = regexp.MustCompile(`(?:^|/)D(\d+)$`)

// ParseRevisionRef extracts the revision id from "D1234" or a revision URL
// such as https://phabricator.example.com/D1234.
func ParseRevisionRef(ref string) (int, error) {
	ref = strings.TrimSuffix(strings.TrimSpace(ref), "/")

	matches := revisionRefRegex.FindStringSubmatch(ref)
	if len(matches) != 2 {
		return 0, fmt.Errorf("invalid revision reference: %s", ref)
	}

	id, err := strconv.Atoi(matches[1])
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid revision id '%s'", matches[1])
	}
	return id, nil
}
