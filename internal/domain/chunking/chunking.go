// Package chunking splits a content unit that is too large for a service into
// ordered chunks that each fit under the service limit.
package chunking

import (
	"errors"
	"fmt"
	"time"

	"github.com/forPelevin/storyreel/internal/domain/sizing"
	"github.com/forPelevin/storyreel/internal/types"
)

var ErrInvariantViolation = errors.New("chunking invariant violation")

// Chunker is stateless. ChunkDuration is only consulted for media.
type Chunker struct {
	Estimator     sizing.Estimator
	ChunkDuration time.Duration
}

// Split returns the chunks of u. A unit at or under limit comes back as a
// single chunk equal to u. Content is never dropped: an element that cannot be
// divided further is emitted whole and marked forced.
func (c Chunker) Split(u types.Unit, limit float64) ([]types.Chunk, error) {
	if c.Estimator == nil {
		return nil, errors.New("chunking: estimator is required")
	}
	if u.Kind.IsMedia() {
		return c.splitMedia(u, limit)
	}
	return c.splitText(u, limit), nil
}

func (c Chunker) splitMedia(u types.Unit, limit float64) ([]types.Chunk, error) {
	if size := c.Estimator.Estimate(u); size <= limit {
		return []types.Chunk{{Index: 0, Payload: u, Boundary: types.BoundaryTimeSegment, Size: size}}, nil
	}
	if c.ChunkDuration <= 0 {
		return nil, fmt.Errorf("chunking: chunk duration must be > 0, got %s", c.ChunkDuration)
	}

	n := int((u.Duration + c.ChunkDuration - 1) / c.ChunkDuration)
	out := make([]types.Chunk, 0, n)
	for off := time.Duration(0); off < u.Duration; off += c.ChunkDuration {
		p := types.Unit{
			Kind:     u.Kind,
			Path:     u.Path,
			Offset:   u.Offset + off,
			Duration: min(c.ChunkDuration, u.Duration-off),
		}
		size := c.Estimator.Estimate(p)
		b := types.BoundaryTimeSegment
		if size > limit {
			b = types.BoundaryForced
		}
		out = append(out, types.Chunk{Index: len(out), Payload: p, Boundary: b, Size: size})
	}
	return out, nil
}

// Verify checks the postcondition of Split against the unit it came from.
func Verify(u types.Unit, chunks []types.Chunk) error {
	if len(chunks) == 0 {
		return fmt.Errorf("%w: no chunks", ErrInvariantViolation)
	}
	for i, c := range chunks {
		if c.Index != i {
			return fmt.Errorf("%w: position %d holds index %d", ErrInvariantViolation, i, c.Index)
		}
		if c.Payload.Kind != u.Kind {
			return fmt.Errorf("%w: chunk %d is %s, unit is %s", ErrInvariantViolation, i, c.Payload.Kind, u.Kind)
		}
	}

	if !u.Kind.IsMedia() {
		if got := Join(chunks); got != u.Text {
			return fmt.Errorf("%w: rejoined text has %d bytes, unit has %d", ErrInvariantViolation, len(got), len(u.Text))
		}
		return nil
	}

	next := u.Offset
	for _, c := range chunks {
		if c.Payload.Path != u.Path {
			return fmt.Errorf("%w: chunk %d reads %q, unit is %q", ErrInvariantViolation, c.Index, c.Payload.Path, u.Path)
		}
		if c.Payload.Offset != next {
			return fmt.Errorf("%w: chunk %d starts at %s, expected %s", ErrInvariantViolation, c.Index, c.Payload.Offset, next)
		}
		next += c.Payload.Duration
	}
	if end := u.Offset + u.Duration; next != end {
		return fmt.Errorf("%w: chunks end at %s, unit ends at %s", ErrInvariantViolation, next, end)
	}
	return nil
}
