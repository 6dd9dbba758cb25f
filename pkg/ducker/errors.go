package ducker

import "errors"

// Lifecycle errors. The ducker runs exactly once: it can be started from its
// initial state only, and once stopped it stays stopped.
var (
	// ErrNotStarted is returned by Stop before Start has succeeded.
	ErrNotStarted = errors.New("ducker not started")

	// ErrAlreadyStarted is returned by Start while the ducker is active.
	ErrAlreadyStarted = errors.New("ducker already started")

	// ErrStopped is returned by Start and Stop after the ducker has stopped.
	ErrStopped = errors.New("ducker stopped")
)
