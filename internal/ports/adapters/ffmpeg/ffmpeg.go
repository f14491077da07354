package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/forPelevin/storyreel/internal/ports"
	"github.com/forPelevin/storyreel/internal/types"
)

type Adapter struct {
	ffmpeg  string
	ffprobe string
}

func New(ffmpegPath, ffprobePath string) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Adapter{ffmpeg: ffmpegPath, ffprobe: ffprobePath}
}

func (a *Adapter) run(ctx context.Context, what string, args ...string) error {
	cmd := exec.CommandContext(ctx, a.ffmpeg, append([]string{"-y", "-hide_banner", "-loglevel", "error"}, args...)...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg %s: %w\n%s", what, err, string(b))
	}
	return nil
}

func (a *Adapter) ExtractAudioMono16k(ctx context.Context, in, outWav string) error {
	return a.run(ctx, "extract audio",
		"-i", in,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-f", "wav",
		outWav,
	)
}

// Cut copies the window [start, start+length) of src into dst. Streams are
// re-encoded so the cut lands exactly on the window edges.
func (a *Adapter) Cut(ctx context.Context, src string, start, length time.Duration, dst string) error {
	args := []string{
		"-ss", fmtSeconds(start),
		"-i", src,
		"-t", fmtSeconds(length),
	}
	if isAudioExt(dst) {
		args = append(args, "-vn", "-c:a", "libmp3lame", "-b:a", "128k", dst)
	} else {
		args = append(args,
			"-c:v", "libx264",
			"-preset", "veryfast",
			"-crf", "18",
			"-c:a", "aac",
			"-b:a", "192k",
			dst,
		)
	}
	return a.run(ctx, "cut", args...)
}

// Concat joins parts in order. Parts with identical stream layouts are
// joined with stream copy. Mixed parts, such as remote outputs next to local
// fallbacks, are re-encoded to the layout of the first part.
func (a *Adapter) Concat(ctx context.Context, parts []string, dst string) error {
	if len(parts) == 0 {
		return errors.New("ffmpeg concat: no parts")
	}
	layouts := make([]layout, len(parts))
	for i, p := range parts {
		l, err := a.probeLayout(ctx, p)
		if err != nil {
			return err
		}
		layouts[i] = l
	}
	if sameLayout(layouts) {
		return a.concatCopy(ctx, parts, dst)
	}
	return a.concatEncode(ctx, parts, layouts[0], dst)
}

func (a *Adapter) concatCopy(ctx context.Context, parts []string, dst string) error {
	list, err := os.CreateTemp(filepath.Dir(dst), ".concat-*.txt")
	if err != nil {
		return err
	}
	defer os.Remove(list.Name())
	for _, p := range parts {
		abs, err := filepath.Abs(p)
		if err != nil {
			list.Close()
			return err
		}
		fmt.Fprintf(list, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	if err := list.Close(); err != nil {
		return err
	}
	return a.run(ctx, "concat",
		"-f", "concat",
		"-safe", "0",
		"-i", list.Name(),
		"-c", "copy",
		dst,
	)
}

func (a *Adapter) concatEncode(ctx context.Context, parts []string, target layout, dst string) error {
	var args []string
	for _, p := range parts {
		args = append(args, "-i", p)
	}
	args = append(args, "-filter_complex", concatFilter(len(parts), target))
	if target.hasVideo() {
		args = append(args,
			"-map", "[v]",
			"-map", "[a]",
			"-c:v", "libx264",
			"-preset", "veryfast",
			"-crf", "18",
			"-c:a", "aac",
			"-b:a", "192k",
			"-movflags", "+faststart",
		)
	} else {
		args = append(args, "-map", "[a]", "-c:a", "libmp3lame", "-b:a", "128k")
	}
	return a.run(ctx, "concat (re-encode)", append(args, dst)...)
}

// layout is the part of a file's stream setup that must match for stream copy.
type layout struct {
	Streams []streamInfo `json:"streams"`
}

type streamInfo struct {
	Type       string `json:"codec_type"`
	Codec      string `json:"codec_name"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	FrameRate  string `json:"r_frame_rate"`
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

func (l layout) stream(kind string) (streamInfo, bool) {
	for _, s := range l.Streams {
		if s.Type == kind {
			return s, true
		}
	}
	return streamInfo{}, false
}

func (l layout) hasVideo() bool {
	_, ok := l.stream("video")
	return ok
}

func (a *Adapter) probeLayout(ctx context.Context, in string) (layout, error) {
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-show_entries", "stream=codec_type,codec_name,width,height,r_frame_rate,sample_rate,channels",
		"-of", "json",
		in,
	)
	b, err := cmd.Output()
	if err != nil {
		return layout{}, fmt.Errorf("ffprobe streams %s: %w", in, err)
	}
	return parseLayout(b)
}

func parseLayout(b []byte) (layout, error) {
	var l layout
	if err := json.Unmarshal(b, &l); err != nil {
		return layout{}, fmt.Errorf("parse ffprobe streams: %w", err)
	}
	if len(l.Streams) == 0 {
		return layout{}, errors.New("no streams")
	}
	return l, nil
}

func sameLayout(ls []layout) bool {
	for _, l := range ls[1:] {
		if !reflect.DeepEqual(l, ls[0]) {
			return false
		}
	}
	return true
}

// concatFilter scales, pads and resamples n inputs to target and joins them.
func concatFilter(n int, target layout) string {
	a, _ := target.stream("audio")
	rate := a.SampleRate
	if rate == "" {
		rate = "44100"
	}
	channels := "stereo"
	if a.Channels == 1 {
		channels = "mono"
	}
	audio := fmt.Sprintf("aresample=%s,aformat=channel_layouts=%s", rate, channels)

	var b strings.Builder
	v, video := target.stream("video")
	if video {
		fps := v.FrameRate
		if fps == "" || fps == "0/0" {
			fps = "30"
		}
		for i := 0; i < n; i++ {
			fmt.Fprintf(&b, "[%d:v:0]scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1,fps=%s,format=yuv420p[v%d];",
				i, v.Width, v.Height, v.Width, v.Height, fps, i)
		}
	}
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "[%d:a:0]%s[a%d];", i, audio, i)
	}
	for i := 0; i < n; i++ {
		if video {
			fmt.Fprintf(&b, "[v%d]", i)
		}
		fmt.Fprintf(&b, "[a%d]", i)
	}
	if video {
		fmt.Fprintf(&b, "concat=n=%d:v=1:a=1[v][a]", n)
	} else {
		fmt.Fprintf(&b, "concat=n=%d:v=0:a=1[a]", n)
	}
	return b.String()
}

// Silence renders length of silent mp3 audio.
func (a *Adapter) Silence(ctx context.Context, length time.Duration, dst string) error {
	if length <= 0 {
		length = time.Second
	}
	return a.run(ctx, "silence",
		"-f", "lavfi",
		"-i", "anullsrc=r=44100:cl=mono",
		"-t", fmtSeconds(length),
		"-c:a", "libmp3lame",
		"-b:a", "128k",
		dst,
	)
}

func (a *Adapter) ComposeVertical(ctx context.Context, spec ports.ComposeSpec, dst string) error {
	if spec.Duration <= 0 || spec.Width <= 0 || spec.Height <= 0 {
		return fmt.Errorf("ffmpeg compose: invalid spec %+v", spec)
	}
	return a.run(ctx, "compose",
		"-stream_loop", "-1",
		"-i", spec.Background,
		"-i", spec.Audio,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-vf", verticalFilter(spec.Width, spec.Height),
		"-r", "30",
		"-c:v", "libx264",
		"-b:v", "8000k",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "192k",
		"-t", fmtSeconds(spec.Duration),
		"-movflags", "+faststart",
		dst,
	)
}

func (a *Adapter) BurnSubtitles(ctx context.Context, in, ass, dst string) error {
	return a.run(ctx, "burn subtitles",
		"-i", in,
		"-vf", "subtitles="+escapeFilterPath(ass),
		"-c:v", "libx264",
		"-b:v", "8000k",
		"-c:a", "copy",
		dst,
	)
}

func (a *Adapter) ProbeDuration(ctx context.Context, in string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		in,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration: %w\n%s", err, string(b))
	}
	return parseSeconds(strings.TrimSpace(string(b)))
}

func (a *Adapter) ProbeVideo(ctx context.Context, in string) (types.VideoInfo, error) {
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height:format=duration",
		"-of", "json",
		in,
	)
	b, err := cmd.Output()
	if err != nil {
		return types.VideoInfo{}, fmt.Errorf("ffprobe video: %w", err)
	}
	return parseProbe(b)
}

func parseProbe(b []byte) (types.VideoInfo, error) {
	var out struct {
		Streams []struct {
			Width  int `json:"width"`
			Height int `json:"height"`
		} `json:"streams"`
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return types.VideoInfo{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(out.Streams) == 0 {
		return types.VideoInfo{}, errors.New("no video stream")
	}
	d, err := parseSeconds(out.Format.Duration)
	if err != nil {
		return types.VideoInfo{}, err
	}
	return types.VideoInfo{Duration: d, Width: out.Streams[0].Width, Height: out.Streams[0].Height}, nil
}

func parseSeconds(s string) (time.Duration, error) {
	sec, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	return time.Duration(sec * float64(time.Second)), nil
}

// verticalFilter scales to cover w x h and crops the overflow from the center.
func verticalFilter(w, h int) string {
	return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,setsar=1", w, h, w, h)
}

func isAudioExt(p string) bool {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".mp3", ".wav", ".m4a", ".aac":
		return true
	}
	return false
}

func fmtSeconds(d time.Duration) string {
	sec := float64(d) / float64(time.Second)
	return strconv.FormatFloat(sec, 'f', 3, 64)
}

func escapeFilterPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "\\\\")
	p = strings.ReplaceAll(p, ":", "\\:")
	p = strings.ReplaceAll(p, "'", "\\'")
	return p
}
