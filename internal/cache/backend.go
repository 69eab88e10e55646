package cache

import "context"

// Backend stores entry bytes. Implementations must make Populate atomic:
// a concurrent Restore sees either no entry or the complete one.
type Backend interface {
	// Restore copies the entry for key to target. found is false, with a
	// nil error, when there is no entry. A non-nil error with found set
	// means the entry exists but could not be copied.
	Restore(ctx context.Context, key, target string) (found bool, err error)

	// Populate stores the file at source under key.
	Populate(ctx context.Context, key, source string) error

	// Name labels the backend in logs and metrics.
	Name() string
}
