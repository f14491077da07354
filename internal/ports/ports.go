package ports

import (
	"context"
	"time"

	"github.com/forPelevin/storyreel/internal/types"
)

type ContentSource interface {
	Fetch(ctx context.Context, locator string) (types.Post, error)
}

// JobAPI is a remote service that processes one payload asynchronously.
// Polling must be safe to repeat. Submit is never retried by the service.
type JobAPI interface {
	Submit(ctx context.Context, payload types.Unit) (string, error)
	Poll(ctx context.Context, remoteID string) (types.JobStatus, error)
	// Download fetches a completed output. Media outputs are written to dst.
	Download(ctx context.Context, ref, dst string) (types.Unit, error)
}

// JobCanceler is implemented by job APIs that can stop a job they were given.
// Cancel returns once the job no longer uses the service.
type JobCanceler interface {
	Cancel(ctx context.Context, remoteID string) error
}

type Sink interface {
	// Persist stores u under name and returns where it landed.
	Persist(ctx context.Context, name string, u types.Unit) (string, error)
}

type MediaTool interface {
	ProbeDuration(ctx context.Context, path string) (time.Duration, error)
	Cut(ctx context.Context, src string, start, length time.Duration, dst string) error
	Concat(ctx context.Context, parts []string, dst string) error
	Silence(ctx context.Context, length time.Duration, dst string) error
}

type VideoTool interface {
	MediaTool
	ProbeVideo(ctx context.Context, path string) (types.VideoInfo, error)
	ComposeVertical(ctx context.Context, spec ComposeSpec, dst string) error
	ExtractAudioMono16k(ctx context.Context, in, outWav string) error
	BurnSubtitles(ctx context.Context, in, ass, dst string) error
}

// ComposeSpec describes a background video looped or trimmed under a
// narration track.
type ComposeSpec struct {
	Background string
	Audio      string
	Duration   time.Duration
	Width      int
	Height     int
}

type ASR interface {
	Transcribe(ctx context.Context, wavPath, cacheDir string) (types.Transcript, error)
}
