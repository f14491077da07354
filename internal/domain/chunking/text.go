package chunking

import (
	"regexp"
	"strings"

	"github.com/forPelevin/storyreel/internal/domain/sizing"
	"github.com/forPelevin/storyreel/internal/types"
)

var (
	paragraphSep = regexp.MustCompile(`\r?\n\s*\n`)
	// The separator is the whitespace after terminal punctuation and any
	// closing quote or bracket.
	sentenceEnd = regexp.MustCompile(`[.!?…]+["'”’)\]]*(\s+)`)
)

type piece struct {
	body string
	sep  string
}

func (c Chunker) splitText(u types.Unit, limit float64) []types.Chunk {
	if size := c.Estimator.Estimate(u); size <= limit {
		return []types.Chunk{{Index: 0, Payload: u, Boundary: types.BoundaryParagraph, Size: size}}
	}

	a := &accumulator{est: c.Estimator, limit: limit}
	for _, p := range pieces(u.Text, paragraphSep.FindAllStringIndex(u.Text, -1)) {
		if a.measure(p.body) <= limit {
			a.add(p, types.BoundaryParagraph)
			continue
		}
		a.flush()
		sents := pieces(p.body, sentenceSeps(p.body))
		sents[len(sents)-1].sep += p.sep
		for _, s := range sents {
			a.add(s, types.BoundarySentence)
		}
		a.flush()
	}
	a.flush()
	return a.out
}

// Join restores the source text by putting each chunk's recorded separator
// back after it.
func Join(chunks []types.Chunk) string {
	var b strings.Builder
	for _, c := range chunks {
		b.WriteString(c.Payload.Text)
		b.WriteString(c.Sep)
	}
	return b.String()
}

func sentenceSeps(s string) [][]int {
	ms := sentenceEnd.FindAllStringSubmatchIndex(s, -1)
	out := make([][]int, 0, len(ms))
	for _, m := range ms {
		out = append(out, []int{m[2], m[3]})
	}
	return out
}

// pieces cuts text at the given separator spans. Concatenating every body and
// sep reproduces text. Whitespace-only bodies are folded into a neighbour so
// every piece carries content unless the whole text is blank.
func pieces(text string, seps [][]int) []piece {
	var out []piece
	lead := ""
	prev := 0
	for _, m := range seps {
		body, sep := text[prev:m[0]], text[m[0]:m[1]]
		prev = m[1]
		if strings.TrimSpace(body) == "" {
			if len(out) == 0 {
				lead += body + sep
			} else {
				out[len(out)-1].sep += body + sep
			}
			continue
		}
		out = append(out, piece{body: lead + body, sep: sep})
		lead = ""
	}

	tail := text[prev:]
	switch {
	case strings.TrimSpace(tail) != "":
		out = append(out, piece{body: lead + tail})
	case len(out) == 0:
		out = append(out, piece{body: lead + tail})
	default:
		out[len(out)-1].sep += tail
	}
	return out
}

type accumulator struct {
	est   sizing.Estimator
	limit float64
	out   []types.Chunk

	open bool
	body string
	sep  string
	kind types.Boundary
}

func (a *accumulator) measure(s string) float64 { return a.est.Estimate(types.Text(s)) }

func (a *accumulator) add(p piece, kind types.Boundary) {
	if a.open {
		if joined := a.body + a.sep + p.body; a.measure(joined) <= a.limit {
			a.body, a.sep = joined, p.sep
			return
		}
		a.flush()
	}
	a.open, a.body, a.sep, a.kind = true, p.body, p.sep, kind
}

func (a *accumulator) flush() {
	if !a.open {
		return
	}
	size := a.measure(a.body)
	kind := a.kind
	if size > a.limit {
		kind = types.BoundaryForced
	}
	a.out = append(a.out, types.Chunk{
		Index:    len(a.out),
		Payload:  types.Text(a.body),
		Boundary: kind,
		Sep:      a.sep,
		Size:     size,
	})
	a.open = false
}
