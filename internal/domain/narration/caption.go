package narration

import (
	"strings"
	"unicode"
)

const (
	captionLimit = 2200
	maxHashtags  = 10
)

var defaultHashtags = []string{"reddit", "redditstory", "storytelling", "viral", "fyp", "foryou", "storytime", "interesting"}

// Caption builds a short-video post description: the text, a blank line and
// up to ten unique hashtags. The text is trimmed so the whole caption fits the
// platform limit with the hashtags intact.
func Caption(text string, tags ...string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		text = "Amazing Reddit story!"
	}

	seen := map[string]bool{}
	var hs []string
	all := append(append([]string{}, tags...), defaultHashtags...)
	for _, t := range all {
		t = hashtag(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		hs = append(hs, "#"+t)
		if len(hs) == maxHashtags {
			break
		}
	}
	tail := strings.Join(hs, " ")

	if r := []rune(text); len(r)+2+len([]rune(tail)) > captionLimit {
		keep := captionLimit - len([]rune(tail)) - 5
		text = strings.TrimSpace(string(r[:max(keep, 0)])) + "..."
	}
	return text + "\n\n" + tail
}

func hashtag(s string) string {
	return strings.ToLower(strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, s))
}
