// Package inline turns a blocking call into a job API: Submit starts the call
// in the background and Poll reports on it.
package inline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/forPelevin/storyreel/internal/types"
)

// Func processes payload. Media results are written to dst.
type Func func(ctx context.Context, payload types.Unit, dst string) (types.Unit, error)

var ErrUnknownJob = errors.New("unknown job")

type Service struct {
	fn  Func
	dir string
	ext string

	mu   sync.Mutex
	jobs map[string]*job
}

type job struct {
	done bool
	out  types.Unit
	err  error

	cancel  context.CancelFunc
	stopped chan struct{}
}

// New runs fn for every submitted payload. Media results land in dir with
// extension ext until downloaded.
func New(fn Func, dir, ext string) *Service {
	return &Service{fn: fn, dir: dir, ext: ext, jobs: map[string]*job{}}
}

// Submit starts the call under ctx. Cancelling ctx or the job stops it.
func (s *Service) Submit(ctx context.Context, payload types.Unit) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := uuid.NewString()
	dst := ""
	if s.ext != "" {
		if err := os.MkdirAll(s.dir, 0o755); err != nil {
			return "", err
		}
		dst = filepath.Join(s.dir, id+s.ext)
	}

	jctx, cancel := context.WithCancel(ctx)
	j := &job{cancel: cancel, stopped: make(chan struct{})}
	s.mu.Lock()
	s.jobs[id] = j
	s.mu.Unlock()

	go func() {
		defer close(j.stopped)
		defer cancel()
		out, err := s.fn(jctx, payload, dst)
		s.mu.Lock()
		j.done, j.out, j.err = true, out, err
		s.mu.Unlock()
	}()
	return id, nil
}

func (s *Service) Poll(_ context.Context, id string) (types.JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	switch {
	case !ok:
		return types.JobStatus{}, fmt.Errorf("%w: %s", ErrUnknownJob, id)
	case !j.done:
		return types.JobStatus{State: types.RemotePending}, nil
	case j.err != nil:
		return types.JobStatus{State: types.RemoteFailed, Reason: j.err.Error()}, nil
	default:
		return types.JobStatus{State: types.RemoteCompleted, Output: id}, nil
	}
}

// Download hands over a finished result. Media files are moved to dst.
func (s *Service) Download(_ context.Context, ref, dst string) (types.Unit, error) {
	s.mu.Lock()
	j, ok := s.jobs[ref]
	if ok && j.done && j.err == nil {
		delete(s.jobs, ref)
	}
	s.mu.Unlock()
	if !ok {
		return types.Unit{}, fmt.Errorf("%w: %s", ErrUnknownJob, ref)
	}
	if !j.done || j.err != nil {
		return types.Unit{}, fmt.Errorf("job %s has no result", ref)
	}

	out := j.out
	if out.Kind.IsMedia() && dst != "" && out.Path != dst {
		if err := os.Rename(out.Path, dst); err != nil {
			return types.Unit{}, err
		}
		out.Path = dst
	}
	return out, nil
}

// Cancel stops job id and waits for its call to return. Any media it wrote is
// removed.
func (s *Service) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	j, ok := s.jobs[id]
	delete(s.jobs, id)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, id)
	}

	j.cancel()
	select {
	case <-j.stopped:
	case <-ctx.Done():
		return ctx.Err()
	}
	if j.out.Kind.IsMedia() && j.out.Path != "" {
		_ = os.Remove(j.out.Path)
	}
	return nil
}
