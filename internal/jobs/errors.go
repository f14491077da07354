package jobs

import (
	"errors"
	"fmt"
)

// Kinds of per-chunk failure. Each one sends the chunk to fallback; they stay
// distinct so a caller can tell a failed remote job from a lost status channel.
var (
	ErrSubmission = errors.New("submission failed")
	ErrRemoteJob  = errors.New("remote job failed")
	ErrTimeout    = errors.New("job timed out")
	ErrPolling    = errors.New("polling failed")
	ErrDownload   = errors.New("download failed")
)

type Error struct {
	Kind     error
	Chunk    int
	RemoteID string
	Err      error
}

func (e *Error) Error() string {
	if e.RemoteID == "" {
		return fmt.Sprintf("chunk %d: %v: %v", e.Chunk, e.Kind, e.Err)
	}
	return fmt.Sprintf("chunk %d (job %s): %v: %v", e.Chunk, e.RemoteID, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error { return []error{e.Kind, e.Err} }

// Kind reports which failure sentinel err carries, or nil.
func Kind(err error) error {
	var je *Error
	if errors.As(err, &je) {
		return je.Kind
	}
	return nil
}
