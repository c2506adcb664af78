package domain

import (
	"errors"
	"fmt"
)

// ErrRunAborted is the terminal reason surfaced when the caller cancelled a
// run mid-stream. Usage reported before the abort is still billed.
var ErrRunAborted = errors.New("aborted")

// InsufficientCreditsError rejects a request whose estimated cost exceeds the
// caller's cached balance. It is raised before any provider call and is not
// retried.
type InsufficientCreditsError struct {
	Required  int64
	Available int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: required %d, available %d", e.Required, e.Available)
}

// IsInsufficientCredits reports whether err is an admission rejection.
func IsInsufficientCredits(err error) bool {
	var target *InsufficientCreditsError
	return errors.As(err, &target)
}
