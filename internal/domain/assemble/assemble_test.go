package assemble

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/forPelevin/storyreel/internal/types"
)

func textOutputs(pairs ...any) []types.Output {
	var out []types.Output
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, types.Output{Index: pairs[i].(int), Unit: types.Text(pairs[i+1].(string))})
	}
	return out
}

func TestMerge_TextOrderIndependent(t *testing.T) {
	t.Parallel()

	r := New(nil)
	cases := map[string][]types.Output{
		"in order":     textOutputs(0, "A", 1, "B", 2, "C"),
		"out of order": textOutputs(2, "C", 0, "A", 1, "B"),
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := r.Merge(context.Background(), in, "")
			if err != nil {
				t.Fatalf("merge: %v", err)
			}
			if got.Kind != types.KindText || got.Text != "A\n\nB\n\nC" {
				t.Fatalf("unexpected merge result: %+v", got)
			}
		})
	}
}

func TestMerge_TextTrimsChunkEdges(t *testing.T) {
	t.Parallel()

	got, err := New(nil).Merge(context.Background(), textOutputs(1, "\nsecond\n", 0, "first  "), "")
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if got.Text != "first\n\nsecond" {
		t.Fatalf("unexpected text: %q", got.Text)
	}
}

func TestMerge_RejectsBadIndices(t *testing.T) {
	t.Parallel()

	tests := map[string][]types.Output{
		"empty":     nil,
		"gap":       textOutputs(0, "A", 2, "C"),
		"duplicate": textOutputs(0, "A", 1, "B", 1, "B"),
		"negative":  textOutputs(-1, "Z", 0, "A"),
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := New(nil).Merge(context.Background(), in, ""); !errors.Is(err, ErrOrder) {
				t.Fatalf("expected ErrOrder, got %v", err)
			}
		})
	}
}

type fakeJoiner struct {
	parts []string
	dst   string
	err   error
}

func (f *fakeJoiner) Concat(_ context.Context, parts []string, dst string) error {
	f.parts = append([]string(nil), parts...)
	f.dst = dst
	return f.err
}

func TestMerge_MediaConcatsInIndexOrder(t *testing.T) {
	t.Parallel()

	j := &fakeJoiner{}
	in := []types.Output{
		{Index: 1, Unit: types.Media(types.KindAudio, "b.mp3", 2*time.Second)},
		{Index: 2, Unit: types.Media(types.KindAudio, "c.mp3", 3*time.Second)},
		{Index: 0, Unit: types.Media(types.KindAudio, "a.mp3", time.Second)},
	}
	got, err := New(j).Merge(context.Background(), in, "out.mp3")
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if !reflect.DeepEqual(j.parts, []string{"a.mp3", "b.mp3", "c.mp3"}) {
		t.Fatalf("unexpected concat order: %v", j.parts)
	}
	if got.Path != "out.mp3" || got.Duration != 6*time.Second || got.Kind != types.KindAudio {
		t.Fatalf("unexpected merge result: %+v", got)
	}
}

func TestMerge_MediaErrors(t *testing.T) {
	t.Parallel()

	one := []types.Output{{Index: 0, Unit: types.Media(types.KindVideo, "a.mp4", time.Second)}}

	if _, err := New(nil).Merge(context.Background(), one, "out.mp4"); err == nil {
		t.Fatalf("expected error without joiner")
	}
	if _, err := New(&fakeJoiner{}).Merge(context.Background(), one, ""); err == nil {
		t.Fatalf("expected error without destination")
	}
	if _, err := New(&fakeJoiner{err: errors.New("boom")}).Merge(context.Background(), one, "out.mp4"); err == nil {
		t.Fatalf("expected joiner error to surface")
	}

	mixed := append(one, types.Output{Index: 1, Unit: types.Text("x")})
	if _, err := New(&fakeJoiner{}).Merge(context.Background(), mixed, "out.mp4"); err == nil {
		t.Fatalf("expected error for mixed kinds")
	}
}
