package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/forPelevin/storyreel/internal/jobs"
	"github.com/forPelevin/storyreel/internal/logger"
	"github.com/forPelevin/storyreel/internal/orchestrator"
	"github.com/forPelevin/storyreel/internal/ports"
	"github.com/forPelevin/storyreel/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/storyreel/internal/ports/adapters/filesink"
	"github.com/forPelevin/storyreel/internal/ports/adapters/openai"
	"github.com/forPelevin/storyreel/internal/ports/adapters/reddit"
	"github.com/forPelevin/storyreel/internal/ports/adapters/whispercpp"
	"github.com/forPelevin/storyreel/internal/ports/adapters/xlsxreport"
	"github.com/forPelevin/storyreel/internal/ports/adapters/zapcap"
	"github.com/forPelevin/storyreel/internal/types"
	"github.com/forPelevin/storyreel/internal/usecase"
)

type Config struct {
	URL        string
	OutDir     string
	Background string
	Rewrite    bool
	Subtitles  bool
	Report     bool
	Log        *logrus.Entry

	// CacheDir is the base directory for intermediate files.
	// If empty, defaults to ".cache".
	CacheDir string

	Concurrency   int
	ChunkDuration time.Duration
	Jobs          jobs.Config

	RewriteTokenLimit   int
	TTSCharLimit        int
	SubtitleMaxDuration time.Duration

	FFmpegPath  string
	FFprobePath string

	WhisperBin   string
	WhisperModel string

	OpenAIAPIKey       string
	OpenAIModel        string
	OpenAIBaseURL      string
	OpenAIAllowedHosts []string

	ElevenLabsAPIKey  string
	ElevenLabsVoiceID string

	ZapCapAPIKey     string
	ZapCapTemplateID string
}

// DefaultConfig holds the tunables a run uses when nothing overrides them.
func DefaultConfig() Config {
	return Config{
		OutDir:              "out",
		Background:          "background_video.mp4",
		Rewrite:             true,
		Subtitles:           true,
		CacheDir:            ".cache",
		Concurrency:         3,
		ChunkDuration:       5 * time.Minute,
		Jobs:                jobs.DefaultConfig(),
		RewriteTokenLimit:   3000,
		TTSCharLimit:        40000,
		SubtitleMaxDuration: 10 * time.Minute,
		OpenAIModel:         openai.DefaultModel,
	}
}

func (c Config) Validate() error {
	if c.URL == "" {
		return errors.New("post url is empty")
	}
	if _, err := reddit.JSONURL(c.URL); err != nil {
		return err
	}
	if c.Background == "" {
		return errors.New("background video is empty")
	}
	if _, err := os.Stat(c.Background); err != nil {
		return fmt.Errorf("stat background: %w", err)
	}
	if c.ElevenLabsAPIKey == "" {
		return errors.New("ELEVENLABS_API_KEY is required")
	}
	if c.Concurrency <= 0 {
		return errors.New("concurrency must be > 0")
	}
	if c.ChunkDuration <= 0 {
		return errors.New("chunk duration must be > 0")
	}
	if c.RewriteTokenLimit <= 0 {
		return errors.New("rewrite token limit must be > 0")
	}
	if c.TTSCharLimit <= 0 {
		return errors.New("tts char limit must be > 0")
	}
	if c.SubtitleMaxDuration <= 0 {
		return errors.New("subtitle max duration must be > 0")
	}
	if c.ChunkDuration > c.SubtitleMaxDuration {
		return errors.New("chunk duration must be <= subtitle max duration")
	}
	if c.Jobs.PollInterval <= 0 {
		return errors.New("poll interval must be > 0")
	}
	if c.Jobs.MaxPollFailures < 0 {
		return errors.New("poll failure limit must be >= 0")
	}
	t := c.Jobs.Timeout
	if t.PerMinute < 0 || t.Base < 0 || t.Min <= 0 {
		return errors.New("timeout model values must be positive")
	}
	if t.Min > t.Max {
		return errors.New("timeout min must be <= timeout max")
	}
	if c.Rewrite && c.OpenAIAPIKey != "" {
		return openai.ValidateBaseURL(c.OpenAIBaseURL, c.OpenAIAllowedHosts)
	}
	return nil
}

func Run(ctx context.Context, cfg Config) error {
	log := cfg.Log
	if log == nil {
		log = logger.Nop()
	}

	// adapters
	v := ffmpeg.New(cfg.FFmpegPath, cfg.FFprobePath)
	driver := jobs.New(cfg.Jobs, jobs.WithLogger(log))
	orch := orchestrator.New(orchestrator.Config{
		Concurrency:   cfg.Concurrency,
		ChunkDuration: cfg.ChunkDuration,
	}, driver, v, log)

	jobID := hash(cfg.URL)
	baseCache := cfg.CacheDir
	if baseCache == "" {
		baseCache = ".cache"
	}
	cacheDir := filepath.Join(baseCache, "runs", jobID)
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return err
	}
	defer os.RemoveAll(cacheDir)
	log.Debugf("cache: %s", cacheDir)

	deps := usecase.Deps{
		Source: reddit.New(),
		Video:  v,
		Proc:   orch,
		Stages: buildStages(cfg, v, cacheDir),
		Log:    log,
	}
	if w := whispercpp.New(cfg.WhisperBin, cfg.WhisperModel); w.Available() {
		deps.ASR = w
	}
	if cfg.Subtitles && deps.Stages.Subtitles == nil {
		log.Infof("no ZapCap key, subtitles are rendered locally (whisper: %t)", deps.ASR != nil)
	}
	uc := usecase.New(deps)

	post, err := uc.Fetch(ctx, cfg.URL)
	if err != nil {
		return err
	}
	log.Infof("fetched r/%s: %q", post.Subreddit, post.Title)

	outDir := cfg.OutDir
	if outDir == "" {
		outDir = "out"
	}
	runID := uuid.NewString()
	sink := filesink.New(buildRunOutDir(outDir, post, time.Now().UTC()))
	log = log.WithField("run_id", runID)
	log.Infof("output run dir: %s", sink.Dir())

	res, runErr := uc.Run(ctx, post, usecase.Input{
		RunID:      runID,
		URL:        cfg.URL,
		Background: cfg.Background,
		CacheDir:   cacheDir,
		Subtitles:  cfg.Subtitles,
		Sink:       sink,
	})
	if runErr != nil && len(res.Manifest.Stages) == 0 {
		return runErr
	}

	// The manifest is written for failed runs too so stage outcomes survive.
	if err := writeManifest(context.WithoutCancel(ctx), sink, res.Manifest); err != nil {
		return errors.Join(runErr, err)
	}
	if cfg.Report {
		if err := xlsxreport.Write(filepath.Join(sink.Dir(), "report.xlsx"), res.Manifest); err != nil {
			return errors.Join(runErr, err)
		}
	}
	if runErr != nil {
		return runErr
	}

	for _, st := range res.Manifest.Stages {
		log.WithField("stage", st.Name).Infof("%s: %d chunk(s), fallback %v", st.Outcome, st.Chunks, st.Fallback)
	}
	out := res.Manifest.Final
	if out == "" {
		out = res.Manifest.Video
	}
	log.Infof("done: %s", filepath.Join(sink.Dir(), out))
	return nil
}

func writeManifest(ctx context.Context, sink ports.Sink, m types.Manifest) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	_, err = sink.Persist(ctx, "manifest.json", types.Text(string(b)))
	return err
}

const maxSlugRunes = 60

func buildRunOutDir(outRoot string, post types.Post, now time.Time) string {
	name := normalizePathSegment(post.Subreddit + " " + post.Title)
	if r := []rune(name); len(r) > maxSlugRunes {
		name = strings.TrimRight(string(r[:maxSlugRunes]), "-")
	}
	if name == "" {
		name = "post"
	}
	ts := now.UTC().Format("20060102-150405Z")
	runSeed := fmt.Sprintf("%s|%s|%d", post.Permalink, post.Title, now.UTC().UnixNano())
	suffix := hash(runSeed)[:6]
	return filepath.Join(outRoot, fmt.Sprintf("%s-%s-%s", name, ts, suffix))
}

func normalizePathSegment(s string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}

// ensure adapters implement ports
var _ ports.VideoTool = (*ffmpeg.Adapter)(nil)
var _ ports.ASR = (*whispercpp.Adapter)(nil)
var _ ports.ContentSource = (*reddit.Source)(nil)
var _ ports.JobAPI = (*zapcap.Client)(nil)
var _ ports.Sink = (*filesink.Sink)(nil)
var _ usecase.Processor = (*orchestrator.Orchestrator)(nil)
