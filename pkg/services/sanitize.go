package services

import (
	"regexp"
	"strings"
)

// MaxResponseLength is the marketplace's hard limit on answer text.
const MaxResponseLength = 2000

var (
	scriptRe = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</\s*(script|style)\s*>`)
	tagRe    = regexp.MustCompile(`<[^>]*>`)
	spaceRe  = regexp.MustCompile(`[ \t]+`)
)

// SanitizeResponseText strips unsafe content from operator-provided answer
// text: HTML tags (including script/style bodies), control characters, and
// redundant whitespace. Returns the empty string when nothing safe remains.
func SanitizeResponseText(raw string) string {
	text := scriptRe.ReplaceAllString(raw, " ")
	text = tagRe.ReplaceAllString(text, " ")

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r == '\n' || r == '\t' || r >= 0x20 {
			b.WriteRune(r)
		}
	}

	text = spaceRe.ReplaceAllString(b.String(), " ")
	return strings.TrimSpace(text)
}
