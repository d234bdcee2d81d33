package compare

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidMode is returned for a mode outside known, unresolved and closed.
	ErrInvalidMode = errors.New("invalid comparison mode")
	// ErrDiffNotFound is returned when the requested diff is not in scope.
	ErrDiffNotFound = errors.New("diff not found")
	// ErrNoPreviousDiff is wrapped by ComparatorError when a mode needs a
	// predecessor and the diff is the first of its revision.
	ErrNoPreviousDiff = errors.New("diff has no previous diff")
)

// ComparatorError reports a malformed comparison request.
type ComparatorError struct {
	DiffID int
	Mode   Mode
	Err    error
}

func (e *ComparatorError) Error() string {
	return fmt.Sprintf("cannot list %s issues of diff %d: %v", e.Mode, e.DiffID, e.Err)
}

func (e *ComparatorError) Unwrap() error {
	return e.Err
}
