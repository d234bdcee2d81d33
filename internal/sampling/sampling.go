// Package sampling selects a deterministic subset of revisions.
package sampling

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Sample reports whether a revision falls in the sampled share given by
// ratio. The decision depends only on the revision id, so every instance of
// the bot agrees on it.
func Sample(revisionID int, ratio float64) bool {
	switch {
	case ratio <= 0:
		return false
	case ratio >= 1:
		return true
	}
	return Position(revisionID) < ratio
}

// Position maps a revision id to a uniformly spread value in [0, 1).
func Position(revisionID int) float64 {
	sum := xxhash.Sum64String(strconv.Itoa(revisionID))
	// Keep the top 53 bits so the quotient is exact and below 1.
	return float64(sum>>11) / (1 << 53)
}
