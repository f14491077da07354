package subtitles

import (
	"strings"
	"testing"
	"time"

	"github.com/forPelevin/storyreel/internal/types"
)

func TestRenderKaraokeASS_KaraokeHasKTags(t *testing.T) {
	tr := types.Transcript{Segments: []types.Segment{
		{Start: 0, End: 2, Words: []types.Word{{Start: 0.0, End: 0.3, Word: "Hello"}, {Start: 0.3, End: 0.8, Word: "world"}}},
	}}
	ass := RenderKaraokeASS(tr)
	if !strings.Contains(ass, "{\\k30}Hello {\\k50}world") {
		t.Fatalf("expected karaoke tags in ASS, got:\n%s", ass)
	}
	if !strings.Contains(ass, "PlayResY: 1920") {
		t.Fatalf("expected a vertical canvas")
	}
}

func TestRenderKaraokeASS_PlainSegmentAndSanitize(t *testing.T) {
	tr := types.Transcript{Segments: []types.Segment{
		{Start: 1, End: 3, Text: "use {braces}\nhere"},
		{Start: 3, End: 4, Text: "   "},
	}}
	ass := RenderKaraokeASS(tr)
	if !strings.Contains(ass, "Dialogue: 0,0:00:01.00,0:00:03.00,Story,,0,0,0,,use (braces) here\n") {
		t.Fatalf("unexpected plain event:\n%s", ass)
	}
	if strings.Count(ass, "Dialogue:") != 1 {
		t.Fatalf("expected blank segment to be skipped:\n%s", ass)
	}
}

func TestPackWords_Budgets(t *testing.T) {
	var words []wword
	for i := 0; i < 14; i++ {
		at := time.Duration(i) * 100 * time.Millisecond
		words = append(words, wword{Start: at, End: at + 100*time.Millisecond, Text: "abc"})
	}
	lines := packWords(words)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if lines[0].End != 600*time.Millisecond || lines[2].Start != 1200*time.Millisecond {
		t.Fatalf("unexpected line bounds: %+v / %+v", lines[0], lines[2])
	}
}

func TestPackWords_CharBudget(t *testing.T) {
	words := []wword{
		{Start: 0, End: time.Second, Text: "extraordinarily"},
		{Start: time.Second, End: 2 * time.Second, Text: "uncomfortable"},
		{Start: 2 * time.Second, End: 3 * time.Second, Text: "conversations"},
	}
	lines := packWords(words)
	if len(lines) != 2 || len(lines[0].Words) != 1 || len(lines[1].Words) != 2 {
		t.Fatalf("unexpected packing: %+v", lines)
	}
}

func TestAssTime_Format(t *testing.T) {
	got := assTime(61*time.Second + 234*time.Millisecond)
	if got != "0:01:01.23" {
		t.Fatalf("unexpected assTime: %s", got)
	}
}

func TestTimeScript(t *testing.T) {
	script := strings.TrimSpace(strings.Repeat("w ", 12)) + "\n\nlast two"
	tr := TimeScript(script, 14*time.Second)

	if len(tr.Segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(tr.Segments))
	}
	if n := len(tr.Segments[0].Words); n != 10 {
		t.Fatalf("expected 10 words on the first line, got %d", n)
	}
	last := tr.Segments[2]
	if last.Text != "last two" || last.End != 14 || last.Start != 12 {
		t.Fatalf("unexpected last segment: %+v", last)
	}

	if got := TimeScript("", time.Minute); len(got.Segments) != 0 {
		t.Fatalf("expected empty transcript for empty script")
	}
}
