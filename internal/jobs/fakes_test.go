package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/forPelevin/storyreel/internal/types"
)

type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.slept = append(c.slept, d)
	return nil
}

func (c *fakeClock) elapsed(since time.Time) time.Duration {
	return c.Now().Sub(since)
}

type poll struct {
	st  types.JobStatus
	err error
}

var (
	pending   = poll{st: types.JobStatus{State: types.RemotePending}}
	completed = poll{st: types.JobStatus{State: types.RemoteCompleted, Output: "ref-1"}}
	flaky     = poll{err: errors.New("connection reset")}
)

// scriptedAPI replays polls in order and repeats the last one forever.
type scriptedAPI struct {
	mu          sync.Mutex
	submitErr   error
	polls       []poll
	downloadErr error
	output      types.Unit
	onPoll      func(n int)

	pollCount  int
	downloaded []string
}

func (a *scriptedAPI) Submit(_ context.Context, _ types.Unit) (string, error) {
	if a.submitErr != nil {
		return "", a.submitErr
	}
	return "job-1", nil
}

func (a *scriptedAPI) Poll(_ context.Context, _ string) (types.JobStatus, error) {
	a.mu.Lock()
	i := a.pollCount
	a.pollCount++
	a.mu.Unlock()
	if a.onPoll != nil {
		a.onPoll(i + 1)
	}
	if i >= len(a.polls) {
		i = len(a.polls) - 1
	}
	return a.polls[i].st, a.polls[i].err
}

func (a *scriptedAPI) Download(_ context.Context, ref, _ string) (types.Unit, error) {
	a.mu.Lock()
	a.downloaded = append(a.downloaded, ref)
	a.mu.Unlock()
	if a.downloadErr != nil {
		return types.Unit{}, a.downloadErr
	}
	return a.output, nil
}

func repeat(p poll, n int) []poll {
	out := make([]poll, n)
	for i := range out {
		out[i] = p
	}
	return out
}
