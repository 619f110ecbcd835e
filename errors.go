package medrex

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the planner and checkpoint store.
var (
	// ErrInvalidMetadata is returned by [Planner.Plan] when a non-empty
	// file reports a zero or negative average record size. This is a
	// configuration error in the source, caught before any work is
	// scheduled.
	ErrInvalidMetadata = errors.New("medrex: average record size must be positive")

	// ErrOffsetRegression is returned by [Store.Save] when a checkpoint
	// would move a chunk's offset backwards. Offsets are monotonically
	// non-decreasing per chunk.
	ErrOffsetRegression = errors.New("medrex: checkpoint offset regression")
)

// ChunkError reports that a chunk exhausted its retry budget. The job
// transitions to [StatusFailed] and the wrapped error is the last failure.
type ChunkError struct {
	Chunk    int
	Attempts int
	Err      error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d failed after %d attempts: %v", e.Chunk, e.Attempts, e.Err)
}

func (e *ChunkError) Unwrap() error { return e.Err }
