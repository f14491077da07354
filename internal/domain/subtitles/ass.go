package subtitles

import (
	"fmt"
	"strings"
	"time"

	"github.com/forPelevin/storyreel/internal/types"
)

// RenderKaraokeASS renders the whole transcript as word-highlighted ASS
// events. Segments without word timings are shown as plain lines.
func RenderKaraokeASS(tr types.Transcript) string {
	var b strings.Builder
	b.WriteString(assHeader())
	b.WriteString("\n[Events]\n")
	b.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")
	for _, s := range tr.Segments {
		words := collectWords(s)
		if len(words) == 0 {
			if text := sanitizeASS(s.Text); text != "" {
				writeEvent(&b, dur(s.Start), dur(s.End), text)
			}
			continue
		}
		for _, ln := range packWords(words) {
			var t strings.Builder
			for _, w := range ln.Words {
				durCS := int((w.End - w.Start) / (10 * time.Millisecond))
				if durCS < 1 {
					durCS = 1
				}
				t.WriteString(fmt.Sprintf("{\\k%d}%s ", durCS, w.Text))
			}
			writeEvent(&b, ln.Start, ln.End, strings.TrimSpace(t.String()))
		}
	}
	return b.String()
}

type wword struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

type line struct {
	Start time.Duration
	End   time.Duration
	Words []wword
}

func collectWords(s types.Segment) []wword {
	var out []wword
	for _, w := range s.Words {
		text := sanitizeASS(w.Word)
		if text == "" {
			continue
		}
		out = append(out, wword{Start: dur(w.Start), End: dur(w.End), Text: text})
	}
	return out
}

const (
	// Vertical video leaves room for short lines only.
	lineChars = 28
	lineWords = 6
)

// packWords groups words into display lines of at most lineWords words and
// lineChars runes. A single overlong word still gets a line of its own.
func packWords(words []wword) []line {
	var (
		out []line
		cur []wword
		n   int
	)
	flush := func() {
		if len(cur) == 0 {
			return
		}
		out = append(out, line{Start: cur[0].Start, End: cur[len(cur)-1].End, Words: cur})
		cur, n = nil, 0
	}
	for _, w := range words {
		wl := len([]rune(w.Text))
		if len(cur) > 0 && (len(cur) == lineWords || n+1+wl > lineChars) {
			flush()
		}
		if len(cur) > 0 {
			n++
		}
		n += wl
		cur = append(cur, w)
	}
	flush()
	return out
}

func writeEvent(b *strings.Builder, start, end time.Duration, text string) {
	b.WriteString("Dialogue: 0,")
	b.WriteString(assTime(start))
	b.WriteString(",")
	b.WriteString(assTime(end))
	b.WriteString(",Story,,0,0,0,,")
	b.WriteString(text)
	b.WriteString("\n")
}

func assHeader() string {
	return strings.TrimSpace(`
[Script Info]
ScriptType: v4.00+
PlayResX: 1080
PlayResY: 1920
ScaledBorderAndShadow: yes

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: Story, Inter, 84, &H00FFFFFF, &H0000D2FF, &H00000000, &H64000000, 1,0,0,0,100,100,0,0,1,6,2,5, 60,60,0,1
`)
}

// assTime formats d as H:MM:SS.cc, truncated to centiseconds.
func assTime(d time.Duration) string {
	cs := max(int64(d/(10*time.Millisecond)), 0)
	return fmt.Sprintf("%d:%02d:%02d.%02d", cs/360000, cs/6000%60, cs/100%60, cs%100)
}

func sanitizeASS(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "{", "(")
	s = strings.ReplaceAll(s, "}", ")")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}

func dur(sec float64) time.Duration { return time.Duration(sec * float64(time.Second)) }

func seconds(d time.Duration) float64 { return d.Seconds() }
