//go:build integration

package itest

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/forPelevin/storyreel/internal/pipeline"
	"github.com/forPelevin/storyreel/internal/types"
)

func TestE2E(t *testing.T) {
	if os.Getenv("ELEVENLABS_API_KEY") == "" {
		t.Fatalf("ELEVENLABS_API_KEY is required for itest")
	}
	url := os.Getenv("ITEST_REDDIT_URL")
	if url == "" {
		t.Fatalf("ITEST_REDDIT_URL is required for itest")
	}

	tmp := t.TempDir()
	bg := filepath.Join(tmp, "background.mp4")

	// Landscape background, shorter than any narration so it has to loop.
	ff := exec.Command("ffmpeg",
		"-y",
		"-f", "lavfi",
		"-i", "testsrc=s=1280x720:d=8:r=30",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		bg,
	)
	if b, err := ff.CombinedOutput(); err != nil {
		t.Fatalf("ffmpeg fixture failed: %v\n%s", err, string(b))
	}

	outDir := filepath.Join(tmp, "out")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	cfg := pipeline.DefaultConfig()
	cfg.URL = url
	cfg.OutDir = outDir
	cfg.CacheDir = filepath.Join(tmp, "cache")
	cfg.Background = bg
	cfg.Report = true
	cfg.FFmpegPath = "ffmpeg"
	cfg.FFprobePath = "ffprobe"
	cfg.WhisperBin = ".cache/bin/whisper.cpp"
	cfg.WhisperModel = ".cache/models/ggml-base.bin"
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.OpenAIBaseURL = os.Getenv("OPENAI_BASE_URL")
	cfg.ElevenLabsAPIKey = os.Getenv("ELEVENLABS_API_KEY")
	cfg.ZapCapAPIKey = os.Getenv("ZAPCAP_API_KEY")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}

	if err := pipeline.Run(ctx, cfg); err != nil {
		t.Fatalf("pipeline failed: %v", err)
	}

	runs, err := filepath.Glob(filepath.Join(outDir, "*", "manifest.json"))
	if err != nil || len(runs) != 1 {
		t.Fatalf("expected one run manifest, got %v (%v)", runs, err)
	}
	runDir := filepath.Dir(runs[0])
	b, err := os.ReadFile(runs[0])
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var m types.Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	if m.Final == "" {
		t.Fatalf("expected a subtitled video, manifest: %s", b)
	}
	for _, st := range m.Stages {
		if st.Outcome == types.OutcomeFailed && st.Name == "narrate" {
			t.Fatalf("narration failed: %+v", st)
		}
	}

	narr, err := probeDurationSeconds(filepath.Join(runDir, m.Narration))
	if err != nil {
		t.Fatalf("probe narration: %v", err)
	}
	final, err := probeDurationSeconds(filepath.Join(runDir, m.Final))
	if err != nil {
		t.Fatalf("probe final: %v", err)
	}
	if math.Abs(final-narr) > 1.0 {
		t.Fatalf("final video is %.2fs, narration is %.2fs", final, narr)
	}
	w, h, err := probeSize(filepath.Join(runDir, m.Final))
	if err != nil {
		t.Fatalf("probe final size: %v", err)
	}
	// 1280x720 background lands in the 720 bucket.
	if w != 720 || h != 1280 {
		t.Fatalf("expected 720x1280 output, got %dx%d", w, h)
	}
	if _, err := os.Stat(filepath.Join(runDir, "report.xlsx")); err != nil {
		t.Fatalf("missing report: %v", err)
	}
}
