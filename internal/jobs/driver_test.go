package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/forPelevin/storyreel/internal/types"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Timeout = TimeoutModel{PerMinute: time.Minute, Base: 0, Min: 10 * time.Minute, Max: 10 * time.Minute}
	return cfg
}

func textChunk(s string) types.Chunk {
	return types.Chunk{Index: 3, Payload: types.Text(s), Boundary: types.BoundaryParagraph}
}

func TestRun_CompletesOnFirstPoll(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	api := &scriptedAPI{polls: []poll{completed}, output: types.Text("rewritten")}
	job, err := New(testConfig(), WithClock(clk)).Run(context.Background(), api, textChunk("raw"), "")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if job.State != types.JobCompleted || job.Result.Text != "rewritten" {
		t.Fatalf("unexpected job: %+v", job)
	}
	if job.Polls != 1 || len(clk.slept) != 0 {
		t.Fatalf("expected a single poll without sleeping, got polls=%d slept=%v", job.Polls, clk.slept)
	}
	if job.ChunkIndex != 3 || job.RemoteID != "job-1" {
		t.Fatalf("unexpected job identity: %+v", job)
	}
	if len(api.downloaded) != 1 || api.downloaded[0] != "ref-1" {
		t.Fatalf("expected download of ref-1, got %v", api.downloaded)
	}
}

func TestRun_PollsAtFixedInterval(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	cfg := testConfig()
	cfg.PollInterval = 3 * time.Second
	api := &scriptedAPI{polls: []poll{pending, pending, completed}}

	job, err := New(cfg, WithClock(clk)).Run(context.Background(), api, textChunk("raw"), "")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if job.Polls != 3 {
		t.Fatalf("expected 3 polls, got %d", job.Polls)
	}
	if len(clk.slept) != 2 || clk.slept[0] != 3*time.Second || clk.slept[1] != 3*time.Second {
		t.Fatalf("unexpected sleeps: %v", clk.slept)
	}
}

func TestRun_FailureKinds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		api       *scriptedAPI
		wantKind  error
		wantState types.JobState
		wantPolls int
	}{
		{
			name:      "submission",
			api:       &scriptedAPI{submitErr: errors.New("400 bad request"), polls: []poll{completed}},
			wantKind:  ErrSubmission,
			wantState: types.JobFailed,
		},
		{
			name:      "remote failure",
			api:       &scriptedAPI{polls: []poll{pending, {st: types.JobStatus{State: types.RemoteFailed, Reason: "bad media"}}}},
			wantKind:  ErrRemoteJob,
			wantState: types.JobFailed,
			wantPolls: 2,
		},
		{
			name:      "polling",
			api:       &scriptedAPI{polls: repeat(flaky, 6)},
			wantKind:  ErrPolling,
			wantState: types.JobFailed,
			wantPolls: 6,
		},
		{
			name:      "download",
			api:       &scriptedAPI{polls: []poll{completed}, downloadErr: errors.New("truncated body")},
			wantKind:  ErrDownload,
			wantState: types.JobFailed,
			wantPolls: 1,
		},
	}

	kinds := []error{ErrSubmission, ErrRemoteJob, ErrTimeout, ErrPolling, ErrDownload}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			job, err := New(testConfig(), WithClock(newFakeClock())).Run(context.Background(), tt.api, textChunk("raw"), "")
			if !errors.Is(err, tt.wantKind) {
				t.Fatalf("expected %v, got %v", tt.wantKind, err)
			}
			for _, k := range kinds {
				if k != tt.wantKind && errors.Is(err, k) {
					t.Fatalf("error %v also matches %v", err, k)
				}
			}
			if Kind(err) != tt.wantKind {
				t.Fatalf("Kind() = %v, want %v", Kind(err), tt.wantKind)
			}
			if job.State != tt.wantState || job.Polls != tt.wantPolls {
				t.Fatalf("unexpected job: state=%s polls=%d", job.State, job.Polls)
			}
			if job.Err == nil {
				t.Fatalf("expected job to record its error")
			}
		})
	}
}

func TestRun_TimesOutWhenNeverLeavingPending(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	cfg := DefaultConfig()
	cfg.PollInterval = 2 * time.Second
	cfg.Timeout = TimeoutModel{Min: 10 * time.Second, Max: 10 * time.Second}

	job, err := New(cfg, WithClock(clk)).Run(context.Background(), &scriptedAPI{polls: []poll{pending}}, textChunk("raw"), "")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if job.State != types.JobTimedOut {
		t.Fatalf("expected timed out state, got %s", job.State)
	}
	if job.Polls != 5 {
		t.Fatalf("expected 5 polls inside a 10s budget at 2s interval, got %d", job.Polls)
	}
	if got := clk.elapsed(job.SubmittedAt); got != 10*time.Second {
		t.Fatalf("expected to stop exactly at the deadline, elapsed %s", got)
	}
}

func TestRun_RecoversFromPollErrorsWithinLimit(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	cfg := testConfig()
	cfg.MaxPollFailures = 5
	api := &scriptedAPI{polls: append(repeat(flaky, 5), completed), output: types.Text("ok")}
	d := New(cfg, WithClock(clk))

	chunk := textChunk("raw")
	job, err := d.Run(context.Background(), api, chunk, "")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if job.State != types.JobCompleted || job.PollErrors != 5 || job.Polls != 6 {
		t.Fatalf("unexpected job: %+v", job)
	}
	if got := job.Deadline.Sub(job.SubmittedAt); got != d.Budget(chunk.Payload) {
		t.Fatalf("deadline moved: budget %s, got %s", d.Budget(chunk.Payload), got)
	}

	var total time.Duration
	for _, s := range clk.slept {
		if s <= 0 {
			t.Fatalf("expected positive backoff waits, got %v", clk.slept)
		}
		total += s
	}
	if len(clk.slept) != 5 {
		t.Fatalf("expected 5 backoff waits, got %v", clk.slept)
	}
	if clk.elapsed(job.SubmittedAt) != total {
		t.Fatalf("elapsed time should equal time spent retrying")
	}
}

func TestRun_PollFailureCountResetsOnSuccess(t *testing.T) {
	t.Parallel()

	polls := append(repeat(flaky, 4), pending)
	polls = append(polls, repeat(flaky, 4)...)
	polls = append(polls, completed)
	api := &scriptedAPI{polls: polls}

	cfg := testConfig()
	cfg.MaxPollFailures = 4
	job, err := New(cfg, WithClock(newFakeClock())).Run(context.Background(), api, textChunk("raw"), "")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if job.PollErrors != 8 {
		t.Fatalf("expected 8 poll errors in total, got %d", job.PollErrors)
	}
}

func TestRun_DownloadFailureRemovesPartialFile(t *testing.T) {
	t.Parallel()

	dst := filepath.Join(t.TempDir(), "out-000.mp4")
	if err := os.WriteFile(dst, []byte("partial"), 0o644); err != nil {
		t.Fatalf("write partial: %v", err)
	}
	api := &scriptedAPI{polls: []poll{completed}, downloadErr: errors.New("unexpected EOF")}
	chunk := types.Chunk{Index: 0, Payload: types.Media(types.KindVideo, "in.mp4", time.Minute)}

	if _, err := New(testConfig(), WithClock(newFakeClock())).Run(context.Background(), api, chunk, dst); !errors.Is(err, ErrDownload) {
		t.Fatalf("expected ErrDownload, got %v", err)
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Fatalf("expected partial download to be removed, stat err=%v", err)
	}
}

func TestRun_CancellationIsNotAJobFailure(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	api := &scriptedAPI{polls: []poll{pending}}
	api.onPoll = func(n int) {
		if n == 3 {
			cancel()
		}
	}

	job, err := New(testConfig(), WithClock(newFakeClock())).Run(ctx, api, textChunk("raw"), "")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if Kind(err) != nil {
		t.Fatalf("cancellation must not carry a job failure kind, got %v", Kind(err))
	}
	if job.State != types.JobCanceled {
		t.Fatalf("expected canceled state, got %s", job.State)
	}
	if api.pollCount != 3 {
		t.Fatalf("expected polling to stop after cancel, got %d polls", api.pollCount)
	}
}

func TestTimeoutModel_For(t *testing.T) {
	m := TimeoutModel{PerMinute: 90 * time.Second, Base: time.Minute, Min: 2 * time.Minute, Max: 30 * time.Minute}
	tests := []struct {
		minutes float64
		want    time.Duration
	}{
		{0, 2 * time.Minute},
		{0.5, 2 * time.Minute},
		{1, 150 * time.Second},
		{10, 16 * time.Minute},
		{100, 30 * time.Minute},
	}
	for _, tt := range tests {
		if got := m.For(tt.minutes); got != tt.want {
			t.Fatalf("For(%v) = %s, want %s", tt.minutes, got, tt.want)
		}
	}
}

func TestBudget_UsesChunkRuntime(t *testing.T) {
	d := New(DefaultConfig())

	text := types.Text(strings.Repeat("word ", 1500))
	if got := d.Budget(text); got != 16*time.Minute {
		t.Fatalf("text budget = %s, want 16m", got)
	}
	media := types.Media(types.KindVideo, "v.mp4", 4*time.Minute)
	if got := d.Budget(media); got != 7*time.Minute {
		t.Fatalf("media budget = %s, want 7m", got)
	}
}

func TestNew_ZeroConfigGetsUsableDeadline(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	api := &scriptedAPI{polls: []poll{pending, pending, completed}, output: types.Text("done")}

	job, err := New(Config{}, WithClock(clk)).Run(context.Background(), api, textChunk("raw"), "")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if job.State != types.JobCompleted || job.Polls != 3 {
		t.Fatalf("unexpected job: %+v", job)
	}
	if got := job.Deadline.Sub(job.SubmittedAt); got != 2*time.Minute {
		t.Fatalf("deadline budget = %s, want the 2m minimum", got)
	}

	partial := New(Config{Timeout: TimeoutModel{PerMinute: time.Minute}})
	if got := partial.Budget(types.Text("raw")); got != 2*time.Minute {
		t.Fatalf("budget with zero minimum = %s, want 2m", got)
	}
}
