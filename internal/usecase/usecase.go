package usecase

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/forPelevin/storyreel/internal/domain/narration"
	"github.com/forPelevin/storyreel/internal/domain/subtitles"
	"github.com/forPelevin/storyreel/internal/logger"
	"github.com/forPelevin/storyreel/internal/orchestrator"
	"github.com/forPelevin/storyreel/internal/ports"
	"github.com/forPelevin/storyreel/internal/types"
)

// Processor runs one stage over a unit, splitting it when it is too large.
type Processor interface {
	Process(ctx context.Context, st orchestrator.Stage, u types.Unit, workDir, dst string) (types.Run, error)
}

// Stages holds the orchestrated stages. A nil Rewrite skips rewriting and a
// nil Subtitles selects local subtitle rendering.
type Stages struct {
	Rewrite   *orchestrator.Stage
	Narrate   orchestrator.Stage
	Subtitles *orchestrator.Stage
}

type Deps struct {
	Source ports.ContentSource
	Video  ports.VideoTool
	// ASR is optional. Without it subtitles are timed from the script.
	ASR    ports.ASR
	Proc   Processor
	Stages Stages
	Log    *logrus.Entry
}

type Usecase struct{ d Deps }

func New(d Deps) Usecase {
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	return Usecase{d: d}
}

type Input struct {
	RunID      string
	URL        string
	Background string
	CacheDir   string
	Subtitles  bool
	// Sink receives every artifact of the run.
	Sink ports.Sink
}

type Result struct {
	Manifest types.Manifest
	Runs     []types.Run
}

func (u Usecase) Fetch(ctx context.Context, url string) (types.Post, error) {
	p, err := u.d.Source.Fetch(ctx, url)
	if err != nil {
		return types.Post{}, fmt.Errorf("fetch post: %w", err)
	}
	return p, nil
}

// Run turns post into a narrated vertical video.
func (u Usecase) Run(ctx context.Context, post types.Post, in Input) (Result, error) {
	log := u.d.Log.WithField("run_id", in.RunID)
	res := Result{Manifest: types.Manifest{
		RunID:     in.RunID,
		Source:    in.URL,
		Title:     post.Title,
		Subreddit: post.Subreddit,
		Caption:   narration.Caption(post.Title, post.Subreddit),
	}}
	record := func(r types.Run) {
		res.Runs = append(res.Runs, r)
		res.Manifest.Stages = append(res.Manifest.Stages, Summarize(r))
	}

	cleaned := narration.CleanPost(post.FullText())
	if strings.TrimSpace(cleaned) == "" {
		return res, errors.New("post has no narratable text")
	}

	// script
	script := narration.BasicCleanup(cleaned)
	if st := u.d.Stages.Rewrite; st != nil {
		run, err := u.d.Proc.Process(ctx, *st, types.Text(cleaned), in.CacheDir, "")
		record(run)
		switch {
		case ctx.Err() != nil:
			return res, ctx.Err()
		case err != nil:
			log.WithError(err).Warn("rewrite failed, using basic cleanup")
		default:
			script = run.Output.Text
		}
	}
	scriptPath, err := in.Sink.Persist(ctx, "script.txt", types.Text(script))
	if err != nil {
		return res, err
	}
	res.Manifest.Script = filepath.Base(scriptPath)

	// narration
	run, err := u.d.Proc.Process(ctx, u.d.Stages.Narrate, types.Text(script), in.CacheDir, filepath.Join(in.CacheDir, "narration.mp3"))
	record(run)
	if err != nil {
		return res, fmt.Errorf("narrate: %w", err)
	}
	narrPath, err := in.Sink.Persist(ctx, "narration.mp3", run.Output)
	if err != nil {
		return res, err
	}
	res.Manifest.Narration = filepath.Base(narrPath)

	dur, err := u.d.Video.ProbeDuration(ctx, narrPath)
	if err != nil {
		return res, err
	}
	res.Manifest.Duration = dur.Seconds()

	// compose
	bg, err := u.d.Video.ProbeVideo(ctx, in.Background)
	if err != nil {
		return res, fmt.Errorf("background video: %w", err)
	}
	w, h := VerticalSize(bg.Width)
	composed := filepath.Join(in.CacheDir, "video.mp4")
	spec := ports.ComposeSpec{Background: in.Background, Audio: narrPath, Duration: dur, Width: w, Height: h}
	if err := u.d.Video.ComposeVertical(ctx, spec, composed); err != nil {
		return res, err
	}
	videoPath, err := in.Sink.Persist(ctx, "video.mp4", types.Media(types.KindVideo, composed, dur))
	if err != nil {
		return res, err
	}
	res.Manifest.Video = filepath.Base(videoPath)
	log.Infof("composed %dx%d video, %s", w, h, dur.Round(time.Second))

	if !in.Subtitles {
		return res, nil
	}

	// subtitles
	finalTmp := filepath.Join(in.CacheDir, "final.mp4")
	if st := u.d.Stages.Subtitles; st != nil {
		run, err := u.d.Proc.Process(ctx, *st, types.Media(types.KindVideo, videoPath, dur), in.CacheDir, finalTmp)
		record(run)
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if err != nil {
			log.WithError(err).Warn("subtitles failed, keeping the unsubtitled video")
			return res, nil
		}
		final, err := in.Sink.Persist(ctx, "final.mp4", run.Output)
		if err != nil {
			return res, err
		}
		res.Manifest.Final = filepath.Base(final)
		return res, nil
	}

	tr := u.transcript(ctx, log, script, narrPath, dur, in.CacheDir)
	assPath, err := in.Sink.Persist(ctx, "subtitles.ass", types.Text(subtitles.RenderKaraokeASS(tr)))
	if err != nil {
		return res, err
	}
	res.Manifest.Subtitles = filepath.Base(assPath)
	if err := u.d.Video.BurnSubtitles(ctx, videoPath, assPath, finalTmp); err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		log.WithError(err).Warn("burning subtitles failed, keeping the unsubtitled video")
		return res, nil
	}
	final, err := in.Sink.Persist(ctx, "final.mp4", types.Media(types.KindVideo, finalTmp, dur))
	if err != nil {
		return res, err
	}
	res.Manifest.Final = filepath.Base(final)
	return res, nil
}

// transcript prefers recognized word timings and falls back to spreading the
// script evenly over the narration.
func (u Usecase) transcript(ctx context.Context, log *logrus.Entry, script, narrPath string, dur time.Duration, cacheDir string) types.Transcript {
	if u.d.ASR != nil {
		wav := filepath.Join(cacheDir, "narration.wav")
		err := u.d.Video.ExtractAudioMono16k(ctx, narrPath, wav)
		if err == nil {
			var tr types.Transcript
			if tr, err = u.d.ASR.Transcribe(ctx, wav, cacheDir); err == nil && len(tr.Segments) > 0 {
				return tr
			}
		}
		if err != nil {
			log.WithError(err).Warn("transcription failed, timing subtitles from the script")
		}
	}
	return subtitles.TimeScript(script, dur)
}

// VerticalSize picks a 9:16 output size no wider than the source allows.
func VerticalSize(width int) (int, int) {
	switch {
	case width >= 1080:
		return 1080, 1920
	case width >= 720:
		return 720, 1280
	default:
		return 540, 960
	}
}

// Summarize flattens a stage run into its manifest entry.
func Summarize(r types.Run) types.ManifestStage {
	s := types.ManifestStage{
		Name:     r.Stage,
		Kind:     r.Kind,
		Outcome:  r.Outcome,
		Split:    r.Split,
		Chunks:   len(r.Chunks),
		Forced:   r.Forced(),
		Fallback: r.Fallback,
		Jobs:     make([]types.ManifestJob, 0, len(r.Jobs)),
	}
	for i, j := range r.Jobs {
		mj := types.ManifestJob{
			Chunk:      j.ChunkIndex,
			RemoteID:   j.RemoteID,
			State:      j.State,
			Polls:      j.Polls,
			PollErrors: j.PollErrors,
		}
		if i < len(r.Chunks) {
			mj.Boundary = r.Chunks[i].Boundary
			mj.Size = r.Chunks[i].Size
		}
		if j.Err != nil {
			mj.Error = j.Err.Error()
		}
		s.Jobs = append(s.Jobs, mj)
	}
	return s
}
