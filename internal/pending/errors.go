package pending

import "errors"

var (
	// ErrSuperseded is the cancellation cause of a request replaced by a
	// newer one with the same key.
	ErrSuperseded = errors.New("pending: request superseded")

	// ErrCancelled is the cancellation cause used by CancelAll.
	ErrCancelled = errors.New("pending: request cancelled")
)
