// Package sizing measures content units in the cost space of the service
// that will receive them.
package sizing

import (
	"strings"
	"unicode/utf8"

	"github.com/forPelevin/storyreel/internal/types"
)

type Estimator interface {
	Estimate(u types.Unit) float64
}

// Func adapts a plain function to Estimator.
type Func func(u types.Unit) float64

func (f Func) Estimate(u types.Unit) float64 { return f(u) }

type TextMetric string

const (
	Tokens TextMetric = "tokens"
	Chars  TextMetric = "chars"
)

const defaultBytesPerToken = 4

// Meter estimates text in tokens or characters and media in seconds.
// One Meter is used per stage so the two text cost spaces never mix.
type Meter struct {
	Text          TextMetric
	BytesPerToken int
}

func ForTokens() Meter { return Meter{Text: Tokens, BytesPerToken: defaultBytesPerToken} }

func ForChars() Meter { return Meter{Text: Chars} }

func (m Meter) Estimate(u types.Unit) float64 {
	if u.Kind.IsMedia() {
		if u.Duration <= 0 {
			return 0
		}
		return u.Duration.Seconds()
	}
	if u.Text == "" {
		return 0
	}
	if m.Text == Chars {
		return float64(utf8.RuneCountInString(u.Text))
	}
	bpt := m.BytesPerToken
	if bpt <= 0 {
		bpt = defaultBytesPerToken
	}
	return float64((len(u.Text) + bpt - 1) / bpt)
}

// Minutes approximates how long the unit runs when played or narrated.
// Text is converted at wordsPerMinute.
func Minutes(u types.Unit, wordsPerMinute float64) float64 {
	if u.Kind.IsMedia() {
		return u.Duration.Minutes()
	}
	if wordsPerMinute <= 0 {
		return 0
	}
	return float64(Words(u.Text)) / wordsPerMinute
}

func Words(s string) int { return len(strings.Fields(s)) }
