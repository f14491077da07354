// Package assemble merges per-chunk outputs back into one unit in chunk order.
package assemble

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/forPelevin/storyreel/internal/types"
)

// ErrOrder means the outputs do not cover indices 0..N-1 exactly once. It is
// a caller bug, never a runtime condition to recover from.
var ErrOrder = errors.New("reassembly: outputs must cover 0..N-1 exactly once")

const textBoundary = "\n\n"

// Joiner concatenates media files in order without re-encoding.
type Joiner interface {
	Concat(ctx context.Context, parts []string, dst string) error
}

type Reassembler struct {
	joiner Joiner
}

// New returns a Reassembler. j may be nil when only text is merged.
func New(j Joiner) *Reassembler { return &Reassembler{joiner: j} }

// Merge orders outputs by index and joins them. Media is written to dst.
func (r *Reassembler) Merge(ctx context.Context, outputs []types.Output, dst string) (types.Unit, error) {
	ordered, err := Order(outputs)
	if err != nil {
		return types.Unit{}, err
	}
	kind := ordered[0].Unit.Kind
	for _, o := range ordered[1:] {
		if o.Unit.Kind != kind {
			return types.Unit{}, fmt.Errorf("reassembly: output %d is %s, output 0 is %s", o.Index, o.Unit.Kind, kind)
		}
	}
	if !kind.IsMedia() {
		return Text(ordered), nil
	}
	if r.joiner == nil {
		return types.Unit{}, errors.New("reassembly: no media joiner configured")
	}
	if dst == "" {
		return types.Unit{}, errors.New("reassembly: media output path is empty")
	}

	parts := make([]string, 0, len(ordered))
	var total time.Duration
	for _, o := range ordered {
		parts = append(parts, o.Unit.Path)
		total += o.Unit.Duration
	}
	if err := r.joiner.Concat(ctx, parts, dst); err != nil {
		return types.Unit{}, fmt.Errorf("reassembly: %w", err)
	}
	return types.Media(kind, dst, total), nil
}

// Text joins already ordered text outputs with one blank line between them.
func Text(ordered []types.Output) types.Unit {
	parts := make([]string, 0, len(ordered))
	for _, o := range ordered {
		parts = append(parts, strings.TrimSpace(o.Unit.Text))
	}
	return types.Text(strings.Join(parts, textBoundary))
}

// Order returns a copy of outputs sorted by index, or ErrOrder when an index
// is missing, repeated or out of range.
func Order(outputs []types.Output) ([]types.Output, error) {
	if len(outputs) == 0 {
		return nil, fmt.Errorf("%w: no outputs", ErrOrder)
	}
	out := make([]types.Output, len(outputs))
	copy(out, outputs)
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	for i, o := range out {
		if o.Index != i {
			return nil, fmt.Errorf("%w: got index %d at position %d", ErrOrder, o.Index, i)
		}
	}
	return out, nil
}
