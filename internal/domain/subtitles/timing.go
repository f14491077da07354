package subtitles

import (
	"strings"
	"time"

	"github.com/forPelevin/storyreel/internal/domain/narration"
	"github.com/forPelevin/storyreel/internal/types"
)

const wordsPerLine = 10

// TimeScript spreads total evenly over the words of script, one segment per
// display line. It stands in for real word timings when no recognizer is
// available.
func TimeScript(script string, total time.Duration) types.Transcript {
	lines := narration.ScriptLines(script, wordsPerLine)
	n := 0
	for _, l := range lines {
		n += len(strings.Fields(l))
	}
	if n == 0 || total <= 0 {
		return types.Transcript{}
	}

	per := total / time.Duration(n)
	var tr types.Transcript
	at := time.Duration(0)
	for _, l := range lines {
		seg := types.Segment{Start: seconds(at), Text: l}
		for _, w := range strings.Fields(l) {
			seg.Words = append(seg.Words, types.Word{Start: seconds(at), End: seconds(at + per), Word: w})
			at += per
		}
		seg.End = seconds(at)
		tr.Segments = append(tr.Segments, seg)
	}
	return tr
}
