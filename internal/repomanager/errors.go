package repomanager

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sevigo/patch-warden/internal/hgutil"
)

var (
	ErrRepoNotFound = errors.New("repository not managed")
	ErrNotCloned    = errors.New("repository is not cloned")
)

// VcsError is the only error returned by repository operations. Retryable
// errors are transient remote failures worth another clean, apply and push
// cycle.
type VcsError struct {
	Message   string
	Retryable bool
	Err       error
}

func (e *VcsError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *VcsError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err carries a retryable VcsError.
func IsRetryable(err error) bool {
	var vcsErr *VcsError
	return errors.As(err, &vcsErr) && vcsErr.Retryable
}

// classifier decides retryability by substring match of the command output
// against the configured transient failures.
type classifier []string

func (c classifier) wrap(message string, err error) *VcsError {
	output := hgutil.Output(err)
	vcsErr := &VcsError{Message: message, Err: err}
	for _, fragment := range c {
		if fragment != "" && strings.Contains(output, fragment) {
			vcsErr.Retryable = true
			break
		}
	}
	return vcsErr
}
