// Package checkpoint persists per-source progress cursors so long-running
// stages can resume after interruption.
package checkpoint

import (
	"context"
	"errors"
)

var (
	// ErrInconsistent is returned when an update targets a key path that
	// does not exist in the progress document. The update is not applied.
	ErrInconsistent = errors.New("checkpoint key path does not exist")
	// ErrLocked is returned when another process already owns the store.
	ErrLocked = errors.New("checkpoint store is locked by another process")
	// ErrReadOnly is returned by writes to a SnapshotStore.
	ErrReadOnly = errors.New("checkpoint store is read-only")
)

// UnknownOffset marks a state written without an output offset. Resuming
// from it appends to the existing output instead of rewinding it.
const UnknownOffset int64 = -1

// State is the resumable progress of one source.
//
// LineCursor is the number of the last line whose output has been committed.
// OutputOffset is the byte length of the output artifact at that commit.
type State struct {
	SourceID     string `json:"-"`
	Path         string `json:"path"`
	LineCursor   int64  `json:"line"`
	OutputOffset int64  `json:"output_offset"`
	Done         bool   `json:"status"`
}

// Store reads and writes checkpoint states. Implementations are owned by a
// single process at a time.
type Store interface {
	Get(ctx context.Context, sourceID string) (State, error)
	Set(ctx context.Context, state State) error
	Flush(ctx context.Context) error
}

// Lister is implemented by stores that can enumerate every known source.
type Lister interface {
	List(ctx context.Context) ([]State, error)
}

// Resetter is implemented by stores that can forget a source.
type Resetter interface {
	Reset(ctx context.Context, sourceID string) error
}
