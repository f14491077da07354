// Package narration prepares forum post text for reading aloud.
package narration

import (
	"strings"
)

var boilerplate = []string{
	"please do not harass",
	"refer to rules",
	"i am not the oop",
}

var repostPrefixes = []string{"[Original Post]", "[Update]"}

const commentsMarker = "EDIT: Added comments"

// CleanPost drops repost boilerplate and moderator notes line by line and
// stops at the appended comments section. Blank lines collapse into a single
// paragraph break.
func CleanPost(content string) string {
	var paras []string
	var cur []string
	flush := func() {
		if len(cur) > 0 {
			paras = append(paras, strings.Join(cur, "\n"))
			cur = nil
		}
	}

lines:
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			flush()
			continue
		}
		if strings.HasPrefix(line, commentsMarker) {
			break
		}
		lower := strings.ToLower(line)
		for _, kw := range boilerplate {
			if strings.Contains(lower, kw) {
				continue lines
			}
		}
		for _, p := range repostPrefixes {
			if strings.HasPrefix(line, p) {
				continue lines
			}
		}
		cur = append(cur, line)
	}
	flush()
	return strings.Join(paras, "\n\n")
}

var markup = strings.NewReplacer(
	"**", "",
	"*", "",
	"#", "",
	"&gt;", "",
	"&lt;", "",
	"&amp;", "&",
)

// BasicCleanup strips markdown emphasis, headings and quote entities and
// collapses whitespace inside each paragraph. It is what narration falls back
// to when no rewrite service is available.
func BasicCleanup(text string) string {
	text = markup.Replace(strings.ReplaceAll(text, "\r\n", "\n"))
	var paras []string
	for _, p := range strings.Split(text, "\n\n") {
		if p = strings.Join(strings.Fields(p), " "); p != "" {
			paras = append(paras, p)
		}
	}
	return strings.Join(paras, "\n\n")
}

// ScriptLines breaks text into display lines of at most maxWords words. A
// line never spans two source lines.
func ScriptLines(text string, maxWords int) []string {
	if maxWords <= 0 {
		maxWords = 10
	}
	var out []string
	for _, line := range strings.Split(text, "\n") {
		words := strings.Fields(line)
		for i := 0; i < len(words); i += maxWords {
			out = append(out, strings.Join(words[i:min(i+maxWords, len(words))], " "))
		}
	}
	return out
}
