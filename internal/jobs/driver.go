// Package jobs drives one chunk through a remote asynchronous job: submit,
// poll until a terminal state, download.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/forPelevin/storyreel/internal/domain/sizing"
	"github.com/forPelevin/storyreel/internal/logger"
	"github.com/forPelevin/storyreel/internal/ports"
	"github.com/forPelevin/storyreel/internal/types"
)

type Config struct {
	PollInterval time.Duration
	Timeout      TimeoutModel
	// MaxPollFailures is how many consecutive failed status checks are
	// tolerated. One more is reported as ErrPolling.
	MaxPollFailures int
	RetryInitial    time.Duration
	RetryMax        time.Duration
	// WordsPerMinute converts text chunks into an expected runtime.
	WordsPerMinute float64
}

func DefaultConfig() Config {
	return Config{
		PollInterval: 2 * time.Second,
		Timeout: TimeoutModel{
			PerMinute: 90 * time.Second,
			Base:      time.Minute,
			Min:       2 * time.Minute,
			Max:       30 * time.Minute,
		},
		MaxPollFailures: 5,
		RetryInitial:    time.Second,
		RetryMax:        30 * time.Second,
		WordsPerMinute:  150,
	}
}

type Driver struct {
	cfg   Config
	clock Clock
	log   *logrus.Entry
}

type Option func(*Driver)

func WithClock(c Clock) Option { return func(d *Driver) { d.clock = c } }

func WithLogger(l *logrus.Entry) Option { return func(d *Driver) { d.log = l } }

func New(cfg Config, opts ...Option) *Driver {
	def := DefaultConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = def.RetryInitial
	}
	if cfg.RetryMax < cfg.RetryInitial {
		cfg.RetryMax = cfg.RetryInitial
	}
	if cfg.MaxPollFailures < 0 {
		cfg.MaxPollFailures = 0
	}
	if cfg.Timeout == (TimeoutModel{}) {
		cfg.Timeout = def.Timeout
	} else if cfg.Timeout.Min <= 0 {
		cfg.Timeout.Min = def.Timeout.Min
	}
	if cfg.WordsPerMinute <= 0 {
		cfg.WordsPerMinute = def.WordsPerMinute
	}
	d := &Driver{cfg: cfg, clock: realClock{}, log: logger.Nop()}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Budget is the time a chunk's job may take from submission to completion.
func (d *Driver) Budget(u types.Unit) time.Duration {
	return d.cfg.Timeout.For(sizing.Minutes(u, d.cfg.WordsPerMinute))
}

// Run submits ch and polls until the job completes, fails or runs out of
// budget. Failures come back as *Error. Context cancellation is returned as
// the context error and is never classified as a job failure.
func (d *Driver) Run(ctx context.Context, api ports.JobAPI, ch types.Chunk, dst string) (types.Job, error) {
	job := types.Job{ChunkIndex: ch.Index}
	log := d.log.WithField("chunk", ch.Index)

	id, err := api.Submit(ctx, ch.Payload)
	if err != nil {
		if ctx.Err() != nil {
			return d.canceled(job, ctx.Err())
		}
		job.State = types.JobFailed
		return d.fail(job, ErrSubmission, err)
	}

	now := d.clock.Now()
	job.RemoteID = id
	job.State = types.JobSubmitted
	job.SubmittedAt = now
	job.Deadline = now.Add(d.Budget(ch.Payload))
	log = log.WithField("remote_id", id)
	log.Debugf("submitted, deadline in %s", job.Deadline.Sub(now))

	bo := d.newBackOff()
	failures := 0
	job.State = types.JobPolling
	for {
		if err := ctx.Err(); err != nil {
			return d.canceled(job, err)
		}
		if !d.clock.Now().Before(job.Deadline) {
			job.State = types.JobTimedOut
			return d.fail(job, ErrTimeout, fmt.Errorf("no terminal state after %s", job.Deadline.Sub(job.SubmittedAt)))
		}

		st, err := api.Poll(ctx, id)
		job.Polls++
		if err != nil {
			if ctx.Err() != nil {
				return d.canceled(job, ctx.Err())
			}
			failures++
			job.PollErrors++
			if failures > d.cfg.MaxPollFailures {
				job.State = types.JobFailed
				return d.fail(job, ErrPolling, fmt.Errorf("%d consecutive failures, last: %w", failures, err))
			}
			wait := bo.NextBackOff()
			logger.WithError(log, err).Warnf("poll failed (%d/%d), retrying in %s", failures, d.cfg.MaxPollFailures, wait)
			if err := d.sleep(ctx, job.Deadline, wait); err != nil {
				return d.canceled(job, err)
			}
			continue
		}
		failures = 0
		bo.Reset()

		switch st.State {
		case types.RemoteCompleted:
			out, err := api.Download(ctx, st.Output, dst)
			if err != nil {
				if dst != "" {
					_ = os.Remove(dst)
				}
				if ctx.Err() != nil {
					return d.canceled(job, ctx.Err())
				}
				job.State = types.JobFailed
				return d.fail(job, ErrDownload, err)
			}
			job.State = types.JobCompleted
			job.Result = out
			log.Debugf("completed after %d polls", job.Polls)
			return job, nil
		case types.RemoteFailed:
			reason := st.Reason
			if reason == "" {
				reason = "no reason given"
			}
			job.State = types.JobFailed
			return d.fail(job, ErrRemoteJob, errors.New(reason))
		}

		if err := d.sleep(ctx, job.Deadline, d.cfg.PollInterval); err != nil {
			return d.canceled(job, err)
		}
	}
}

// sleep waits for dur but never past deadline.
func (d *Driver) sleep(ctx context.Context, deadline time.Time, dur time.Duration) error {
	if left := deadline.Sub(d.clock.Now()); left < dur {
		dur = left
	}
	if dur <= 0 {
		return ctx.Err()
	}
	return d.clock.Sleep(ctx, dur)
}

func (d *Driver) newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = d.cfg.RetryInitial
	bo.MaxInterval = d.cfg.RetryMax
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

func (d *Driver) fail(job types.Job, kind, cause error) (types.Job, error) {
	err := &Error{Kind: kind, Chunk: job.ChunkIndex, RemoteID: job.RemoteID, Err: cause}
	job.Err = err
	return job, err
}

func (d *Driver) canceled(job types.Job, cause error) (types.Job, error) {
	job.State = types.JobCanceled
	job.Err = cause
	return job, fmt.Errorf("chunk %d: %w", job.ChunkIndex, cause)
}
