package space

import "github.com/cockroachdb/errors"

var (
	// ErrExhausted indicates no free chunk is large enough for a request.
	// The caller decides whether to collect, expand or fail.
	ErrExhausted = errors.New("space: exhausted")

	// ErrZeroSize indicates a zero-word allocation request.
	ErrZeroSize = errors.New("space: zero size request")

	// ErrNotAllocated indicates Free or SetCantCoalesce on an address that
	// does not start a live block.
	ErrNotAllocated = errors.New("space: address is not a live block")

	// ErrSweepInProgress indicates BeginSweep while a sweep is running.
	ErrSweepInProgress = errors.New("space: sweep already in progress")

	// ErrNoSweep indicates EndSweep without a matching BeginSweep.
	ErrNoSweep = errors.New("space: no sweep in progress")
)
