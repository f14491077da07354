package types

import (
	"strings"
	"time"
)

type Kind string

const (
	KindText  Kind = "text"
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

func (k Kind) IsMedia() bool { return k == KindAudio || k == KindVideo }

// Unit is one addressable span of content. Text units carry their payload
// inline. Media units point at a file and select the window
// [Offset, Offset+Duration) of it.
type Unit struct {
	Kind     Kind          `json:"kind"`
	Text     string        `json:"text,omitempty"`
	Path     string        `json:"path,omitempty"`
	Offset   time.Duration `json:"offset,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
}

func Text(s string) Unit { return Unit{Kind: KindText, Text: s} }

func Media(kind Kind, path string, d time.Duration) Unit {
	return Unit{Kind: kind, Path: path, Duration: d}
}

type Boundary string

const (
	BoundaryParagraph   Boundary = "paragraph"
	BoundarySentence    Boundary = "sentence"
	BoundaryForced      Boundary = "forced"
	BoundaryTimeSegment Boundary = "time-segment"
)

type Chunk struct {
	Index    int
	Payload  Unit
	Boundary Boundary
	// Sep is the original text that followed this chunk in its source unit.
	Sep  string
	Size float64
}

// RemoteState is what a remote job API reports on poll.
type RemoteState string

const (
	RemotePending   RemoteState = "pending"
	RemoteCompleted RemoteState = "completed"
	RemoteFailed    RemoteState = "failed"
)

type JobStatus struct {
	State  RemoteState
	Output string // output reference, set when completed
	Reason string // set when failed
}

type JobState string

const (
	JobSubmitted JobState = "submitted"
	JobPolling   JobState = "polling"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobTimedOut  JobState = "timed_out"
	JobCanceled  JobState = "canceled"
)

type Job struct {
	ChunkIndex  int
	RemoteID    string
	State       JobState
	SubmittedAt time.Time
	Deadline    time.Time
	Polls       int
	PollErrors  int
	Result      Unit
	Err         error
}

type Outcome string

const (
	OutcomeDone           Outcome = "done"
	OutcomePartialFailure Outcome = "partial_failure"
	OutcomeFailed         Outcome = "failed"
)

// Output is one per-chunk result handed to reassembly.
type Output struct {
	Index int
	Unit  Unit
}

// Run is the aggregate of one orchestrated pass over a content unit.
type Run struct {
	ID       string
	Stage    string
	Kind     Kind
	Split    bool
	Outcome  Outcome
	Chunks   []Chunk
	Jobs     []Job
	Fallback []int
	Output   Unit
}

func (r Run) Forced() []int {
	var out []int
	for _, c := range r.Chunks {
		if c.Boundary == BoundaryForced {
			out = append(out, c.Index)
		}
	}
	return out
}

type Post struct {
	Title       string  `json:"title"`
	Body        string  `json:"selftext"`
	Author      string  `json:"author"`
	Subreddit   string  `json:"subreddit"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
	URL         string  `json:"url"`
	Permalink   string  `json:"permalink"`
}

func (p Post) FullText() string {
	if strings.TrimSpace(p.Body) == "" {
		return p.Title
	}
	return p.Title + "\n\n" + p.Body
}

type Transcript struct {
	Segments []Segment `json:"segments"`
}

type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
	Words []Word  `json:"words,omitempty"`
}

type Word struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Word  string  `json:"word"`
}

type VideoInfo struct {
	Duration time.Duration
	Width    int
	Height   int
}

type Manifest struct {
	RunID     string          `json:"run_id"`
	Source    string          `json:"source"`
	Title     string          `json:"title"`
	Subreddit string          `json:"subreddit"`
	Caption   string          `json:"caption"`
	Script    string          `json:"script"`
	Narration string          `json:"narration"`
	Video     string          `json:"video"`
	Final     string          `json:"final"`
	Subtitles string          `json:"subtitles,omitempty"`
	Duration  float64         `json:"duration_sec"`
	Stages    []ManifestStage `json:"stages"`
}

type ManifestStage struct {
	Name     string        `json:"name"`
	Kind     Kind          `json:"kind"`
	Outcome  Outcome       `json:"outcome"`
	Split    bool          `json:"split"`
	Chunks   int           `json:"chunks"`
	Forced   []int         `json:"forced,omitempty"`
	Fallback []int         `json:"fallback,omitempty"`
	Jobs     []ManifestJob `json:"jobs"`
}

type ManifestJob struct {
	Chunk      int      `json:"chunk"`
	Boundary   Boundary `json:"boundary"`
	Size       float64  `json:"size"`
	RemoteID   string   `json:"remote_id,omitempty"`
	State      JobState `json:"state"`
	Polls      int      `json:"polls"`
	PollErrors int      `json:"poll_errors"`
	Error      string   `json:"error,omitempty"`
}
