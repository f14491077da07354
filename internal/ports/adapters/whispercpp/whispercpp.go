package whispercpp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/forPelevin/storyreel/internal/types"
)

type Adapter struct {
	bin   string
	model string
}

func New(binPath, modelPath string) *Adapter {
	if binPath == "" {
		binPath = "whisper-cli"
	}
	return &Adapter{bin: binPath, model: modelPath}
}

// Available reports whether both the binary and the model can be found.
func (a *Adapter) Available() bool {
	if a.model == "" {
		return false
	}
	if _, err := os.Stat(a.model); err != nil {
		return false
	}
	_, err := exec.LookPath(a.bin)
	return err == nil
}

// Transcribe runs whisper.cpp with one word per output entry and regroups the
// words into sentence segments.
func (a *Adapter) Transcribe(ctx context.Context, wavPath, cacheDir string) (types.Transcript, error) {
	outPrefix := filepath.Join(cacheDir, "whisper")
	args := []string{
		"-m", a.model,
		"-f", wavPath,
		"-ml", "1",
		"-sow",
		"-oj",
		"-of", outPrefix,
	}
	cmd := exec.CommandContext(ctx, a.bin, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whisper.cpp failed: %w\n%s", err, string(b))
	}

	jb, err := os.ReadFile(outPrefix + ".json")
	if err != nil {
		return types.Transcript{}, err
	}
	return parseWords(jb)
}

type output struct {
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

func parseWords(b []byte) (types.Transcript, error) {
	var out output
	if err := json.Unmarshal(b, &out); err != nil {
		return types.Transcript{}, fmt.Errorf("parse whisper.cpp output: %w", err)
	}

	var tr types.Transcript
	var cur types.Segment
	flush := func() {
		if len(cur.Words) == 0 {
			return
		}
		cur.End = cur.Words[len(cur.Words)-1].End
		tr.Segments = append(tr.Segments, cur)
		cur = types.Segment{}
	}
	for _, e := range out.Transcription {
		w := strings.TrimSpace(e.Text)
		// Skip empties and markers such as [BLANK_AUDIO].
		if w == "" || strings.HasPrefix(w, "[") {
			continue
		}
		word := types.Word{Start: float64(e.Offsets.From) / 1000, End: float64(e.Offsets.To) / 1000, Word: w}
		if len(cur.Words) == 0 {
			cur.Start = word.Start
			cur.Text = w
		} else {
			cur.Text += " " + w
		}
		cur.Words = append(cur.Words, word)
		if strings.ContainsAny(w[len(w)-1:], ".!?") {
			flush()
		}
	}
	flush()

	if len(tr.Segments) == 0 {
		return tr, errors.New("whisper.cpp produced no words")
	}
	return tr, nil
}
