// Package orchestrator pushes one content unit through a size-limited remote
// stage: size it, split it if needed, run a job per chunk, and reassemble.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/forPelevin/storyreel/internal/domain/assemble"
	"github.com/forPelevin/storyreel/internal/domain/chunking"
	"github.com/forPelevin/storyreel/internal/domain/sizing"
	"github.com/forPelevin/storyreel/internal/jobs"
	"github.com/forPelevin/storyreel/internal/logger"
	"github.com/forPelevin/storyreel/internal/ports"
	"github.com/forPelevin/storyreel/internal/types"
)

var ErrAllChunksFailed = errors.New("every chunk failed")

type Config struct {
	// Concurrency bounds the jobs in flight for one run. It exists to stay
	// under the remote service's rate limits.
	Concurrency   int
	ChunkDuration time.Duration
}

// FallbackFunc produces the stand-in output for a chunk whose job failed.
type FallbackFunc func(ctx context.Context, payload types.Unit, dst string) (types.Unit, error)

// Stage is one remote service and the limit it enforces.
type Stage struct {
	Name      string
	API       ports.JobAPI
	Estimator sizing.Estimator
	Limit     float64
	// OutputExt is the file extension of media outputs. Empty for text.
	OutputExt string
	// Fallback defaults to handing back the chunk's own payload. Stages whose
	// output kind differs from their input kind must set it.
	Fallback FallbackFunc
}

type Orchestrator struct {
	cfg    Config
	driver *jobs.Driver
	media  ports.MediaTool
	merger *assemble.Reassembler
	log    *logrus.Entry
}

// New wires an orchestrator. media may be nil when only text is processed.
func New(cfg Config, driver *jobs.Driver, media ports.MediaTool, log *logrus.Entry) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	var joiner assemble.Joiner
	if media != nil {
		joiner = media
	}
	return &Orchestrator{
		cfg:    cfg,
		driver: driver,
		media:  media,
		merger: assemble.New(joiner),
		log:    log,
	}
}

// Process runs u through st. Chunk intermediates live in a temp dir under
// workDir that is removed before Process returns. Media output is written to
// dst.
//
// A PartialFailure run is returned with a nil error; the caller reads
// Run.Fallback to learn which chunks were not processed. Errors are returned
// for Failed runs and for cancellation.
func (o *Orchestrator) Process(ctx context.Context, st Stage, u types.Unit, workDir, dst string) (types.Run, error) {
	run := types.Run{ID: uuid.NewString(), Stage: st.Name, Kind: u.Kind, Outcome: types.OutcomeFailed}
	log := logger.WithRun(o.log, run.ID, st.Name)

	if st.API == nil || st.Estimator == nil {
		return run, fmt.Errorf("%s: stage needs an API and an estimator", st.Name)
	}
	if u.Kind.IsMedia() && o.media == nil {
		return run, fmt.Errorf("%s: media stage without a media tool", st.Name)
	}

	size := st.Estimator.Estimate(u)
	run.Split = size > st.Limit
	chunker := chunking.Chunker{Estimator: st.Estimator, ChunkDuration: o.cfg.ChunkDuration}
	chunks, err := chunker.Split(u, st.Limit)
	if err != nil {
		return run, fmt.Errorf("%s: %w", st.Name, err)
	}
	if err := chunking.Verify(u, chunks); err != nil {
		return run, fmt.Errorf("%s: %w", st.Name, err)
	}
	run.Chunks = chunks
	if run.Split {
		log.Infof("size %.0f over limit %.0f, split into %d chunks", size, st.Limit, len(chunks))
	} else {
		log.Debugf("size %.0f within limit %.0f", size, st.Limit)
	}

	tmp, err := os.MkdirTemp(workDir, st.Name+"-")
	if err != nil {
		return run, err
	}
	defer os.RemoveAll(tmp)

	results := make([]chunkResult, len(chunks))
	work := func(ctx context.Context, i int) error {
		var err error
		results[i], err = o.runChunk(ctx, st, chunks[i], run.Split, tmp, log)
		return err
	}

	if run.Split {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(o.cfg.Concurrency)
		for i := range chunks {
			i := i
			g.Go(func() error { return work(gctx, i) })
		}
		err = g.Wait()
	} else {
		err = work(ctx, 0)
	}

	run.Jobs = make([]types.Job, len(results))
	outputs := make([]types.Output, len(results))
	for i, r := range results {
		run.Jobs[i] = r.job
		outputs[i] = r.out
		if r.fellBack {
			run.Fallback = append(run.Fallback, i)
		}
	}
	if err != nil {
		return run, fmt.Errorf("%s: %w", st.Name, err)
	}
	if len(run.Fallback) == len(chunks) {
		return run, fmt.Errorf("%s: %w (last: %w)", st.Name, ErrAllChunksFailed, run.Jobs[len(chunks)-1].Err)
	}

	out, err := o.merger.Merge(ctx, outputs, dst)
	if err != nil {
		return run, fmt.Errorf("%s: %w", st.Name, err)
	}
	run.Output = out
	run.Outcome = types.OutcomeDone
	if len(run.Fallback) > 0 {
		run.Outcome = types.OutcomePartialFailure
		log.Warnf("finished with %d of %d chunks unprocessed: %v", len(run.Fallback), len(chunks), run.Fallback)
	} else {
		log.Infof("finished, %d chunk(s) processed", len(chunks))
	}
	return run, nil
}

type chunkResult struct {
	job      types.Job
	out      types.Output
	fellBack bool
}

func (o *Orchestrator) runChunk(ctx context.Context, st Stage, ch types.Chunk, split bool, tmp string, log *logrus.Entry) (chunkResult, error) {
	res := chunkResult{job: types.Job{ChunkIndex: ch.Index}}

	if ch.Payload.Kind.IsMedia() && split {
		src := ch.Payload
		part := filepath.Join(tmp, fmt.Sprintf("part-%03d%s", ch.Index, filepath.Ext(src.Path)))
		if err := o.media.Cut(ctx, src.Path, src.Offset, src.Duration, part); err != nil {
			return res, fmt.Errorf("cut chunk %d: %w", ch.Index, err)
		}
		ch.Payload = types.Media(src.Kind, part, src.Duration)
	}

	dst := ""
	if st.OutputExt != "" {
		dst = filepath.Join(tmp, fmt.Sprintf("out-%03d%s", ch.Index, st.OutputExt))
	}

	// Calls made on behalf of the job must not outlive it.
	jctx, cancel := context.WithCancel(ctx)
	defer cancel()
	job, err := o.driver.Run(jctx, st.API, ch, dst)
	res.job = job
	if err == nil {
		out, err := o.withDuration(ctx, job.Result, ch.Payload)
		if err != nil {
			return res, fmt.Errorf("chunk %d: %w", ch.Index, err)
		}
		res.out = types.Output{Index: ch.Index, Unit: out}
		return res, nil
	}
	kind := jobs.Kind(err)
	if kind == nil {
		return res, err
	}
	o.abandon(ctx, st, job, log)

	logger.WithError(log.WithField("chunk", ch.Index), err).Warnf("%v, using fallback content", kind)
	sub := ch.Payload
	if st.Fallback != nil {
		sub, err = st.Fallback(ctx, ch.Payload, dst)
		if err != nil {
			return res, fmt.Errorf("fallback for chunk %d: %w", ch.Index, err)
		}
	}
	res.out = types.Output{Index: ch.Index, Unit: sub}
	res.fellBack = true
	return res, nil
}

// abandon stops a failed job on services that support it and waits until it
// has let go of the service.
func (o *Orchestrator) abandon(ctx context.Context, st Stage, job types.Job, log *logrus.Entry) {
	c, ok := st.API.(ports.JobCanceler)
	if !ok || job.RemoteID == "" {
		return
	}
	if err := c.Cancel(ctx, job.RemoteID); err != nil {
		logger.WithError(log.WithField("remote_id", job.RemoteID), err).Debug("cancel failed")
	}
}

// withDuration fills in the duration of a media result that came back
// without one. Media inputs map onto outputs of the same length. Anything
// else is probed.
func (o *Orchestrator) withDuration(ctx context.Context, out, in types.Unit) (types.Unit, error) {
	if !out.Kind.IsMedia() || out.Duration > 0 {
		return out, nil
	}
	if in.Kind.IsMedia() && in.Duration > 0 {
		out.Duration = in.Duration
		return out, nil
	}
	if o.media == nil {
		return out, nil
	}
	d, err := o.media.ProbeDuration(ctx, out.Path)
	if err != nil {
		return out, fmt.Errorf("probe output: %w", err)
	}
	out.Duration = d
	return out, nil
}
