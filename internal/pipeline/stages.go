package pipeline

import (
	"context"
	"path/filepath"
	"time"

	"github.com/forPelevin/storyreel/internal/domain/narration"
	"github.com/forPelevin/storyreel/internal/domain/sizing"
	"github.com/forPelevin/storyreel/internal/orchestrator"
	"github.com/forPelevin/storyreel/internal/ports"
	"github.com/forPelevin/storyreel/internal/ports/adapters/elevenlabs"
	"github.com/forPelevin/storyreel/internal/ports/adapters/inline"
	"github.com/forPelevin/storyreel/internal/ports/adapters/openai"
	"github.com/forPelevin/storyreel/internal/ports/adapters/zapcap"
	"github.com/forPelevin/storyreel/internal/types"
	"github.com/forPelevin/storyreel/internal/usecase"
)

const (
	stageRewrite   = "rewrite"
	stageNarrate   = "narrate"
	stageSubtitles = "subtitles"
)

func buildStages(cfg Config, media ports.MediaTool, cacheDir string) usecase.Stages {
	tts := elevenlabs.New(cfg.ElevenLabsAPIKey, cfg.ElevenLabsVoiceID, "")
	st := usecase.Stages{
		Narrate: orchestrator.Stage{
			Name:      stageNarrate,
			API:       inline.New(tts.Process, filepath.Join(cacheDir, "tts"), ".mp3"),
			Estimator: sizing.ForChars(),
			Limit:     float64(cfg.TTSCharLimit),
			OutputExt: ".mp3",
			Fallback:  silenceFallback(media, cfg.Jobs.WordsPerMinute),
		},
	}
	if cfg.Rewrite && cfg.OpenAIAPIKey != "" {
		rw := openai.New(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
		st.Rewrite = &orchestrator.Stage{
			Name:      stageRewrite,
			API:       inline.New(rw.Process, "", ""),
			Estimator: sizing.ForTokens(),
			Limit:     float64(cfg.RewriteTokenLimit),
			Fallback:  cleanupFallback,
		}
	}
	if cfg.ZapCapAPIKey != "" {
		st.Subtitles = &orchestrator.Stage{
			Name:      stageSubtitles,
			API:       zapcap.New(cfg.ZapCapAPIKey, cfg.ZapCapTemplateID, ""),
			Estimator: sizing.Meter{},
			Limit:     cfg.SubtitleMaxDuration.Seconds(),
			OutputExt: ".mp4",
		}
	}
	return st
}

// cleanupFallback keeps an unrewritten chunk readable.
func cleanupFallback(_ context.Context, payload types.Unit, _ string) (types.Unit, error) {
	return types.Text(narration.BasicCleanup(payload.Text)), nil
}

// silenceFallback stands in for a chunk that could not be narrated with
// silence as long as its narration would have been.
func silenceFallback(media ports.MediaTool, wordsPerMinute float64) orchestrator.FallbackFunc {
	return func(ctx context.Context, payload types.Unit, dst string) (types.Unit, error) {
		d := time.Duration(sizing.Minutes(payload, wordsPerMinute) * float64(time.Minute))
		if d < time.Second {
			d = time.Second
		}
		if err := media.Silence(ctx, d, dst); err != nil {
			return types.Unit{}, err
		}
		return types.Media(types.KindAudio, dst, d), nil
	}
}
