package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/forPelevin/storyreel/internal/logger"
	"github.com/forPelevin/storyreel/internal/pipeline"
)

func run(cmd *cobra.Command, url string) error {
	cfg, err := buildConfig(cmd, url)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	cfg.Log = logger.New().Entry

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 3*time.Hour)
	defer cancel()

	return pipeline.Run(ctx, cfg)
}

// buildConfig layers flags over environment over defaults.
func buildConfig(cmd *cobra.Command, url string) (pipeline.Config, error) {
	cfg := pipeline.DefaultConfig()
	cfg.URL = strings.TrimSpace(url)

	f := cmd.Flags()
	cfg.OutDir, _ = f.GetString("out")
	cfg.Background, _ = f.GetString("background")
	noRewrite, _ := f.GetBool("no-rewrite")
	noSubs, _ := f.GetBool("no-subtitles")
	cfg.Rewrite = !noRewrite
	cfg.Subtitles = !noSubs
	cfg.Report, _ = f.GetBool("report")
	cfg.Concurrency, _ = f.GetInt("concurrency")

	cfg.FFmpegPath = "ffmpeg"
	cfg.FFprobePath = "ffprobe"
	cfg.WhisperBin = getenvDefault("WHISPER_BIN", ".cache/bin/whisper.cpp")
	cfg.WhisperModel = getenvDefault("WHISPER_MODEL", ".cache/models/ggml-base.bin")

	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.OpenAIModel = getenvDefault("OPENAI_MODEL", cfg.OpenAIModel)
	cfg.OpenAIBaseURL = os.Getenv("OPENAI_BASE_URL")
	cfg.OpenAIAllowedHosts = splitList(os.Getenv("OPENAI_ALLOWED_HOSTS"))
	cfg.ElevenLabsAPIKey = os.Getenv("ELEVENLABS_API_KEY")
	cfg.ElevenLabsVoiceID = os.Getenv("ELEVENLABS_VOICE_ID")
	cfg.ZapCapAPIKey = os.Getenv("ZAPCAP_API_KEY")
	cfg.ZapCapTemplateID = os.Getenv("ZAPCAP_TEMPLATE_ID")

	var err error
	get := func(dst *int, k string) {
		if err == nil {
			*dst, err = getenvInt(k, *dst)
		}
	}
	getDur := func(dst *time.Duration, k string) {
		if err == nil {
			*dst, err = getenvDuration(k, *dst)
		}
	}
	get(&cfg.RewriteTokenLimit, "REWRITE_TOKEN_LIMIT")
	get(&cfg.TTSCharLimit, "TTS_CHAR_LIMIT")
	get(&cfg.Jobs.MaxPollFailures, "POLL_FAILURE_LIMIT")
	getDur(&cfg.SubtitleMaxDuration, "SUBTITLE_MAX_DURATION")
	getDur(&cfg.ChunkDuration, "CHUNK_DURATION")
	getDur(&cfg.Jobs.PollInterval, "POLL_INTERVAL")
	getDur(&cfg.Jobs.Timeout.PerMinute, "TIMEOUT_PER_MINUTE")
	getDur(&cfg.Jobs.Timeout.Base, "TIMEOUT_BASE")
	getDur(&cfg.Jobs.Timeout.Min, "TIMEOUT_MIN")
	getDur(&cfg.Jobs.Timeout.Max, "TIMEOUT_MAX")
	if err != nil {
		return cfg, err
	}

	if d, _ := f.GetDuration("chunk-duration"); d > 0 {
		cfg.ChunkDuration = d
	}
	return cfg, nil
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(k string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return n, nil
}

func getenvDuration(k string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", k, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
