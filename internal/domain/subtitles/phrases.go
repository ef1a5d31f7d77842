package subtitles

import (
	"strings"
	"unicode/utf8"

	"github.com/forPelevin/hlshorts/internal/types"
)

// Line budgets sized for a 1080px wide vertical frame.
const (
	maxLineWords = 4
	maxLineChars = 20
)

// GroupPhrases splits words into caption lines. A line closes once it holds
// maxLineWords words, exceeds maxLineChars characters, or ends a sentence.
func GroupPhrases(words []types.Word) []types.Phrase {
	var out []types.Phrase
	var cur []types.Word
	chars := 0
	for i, w := range words {
		cur = append(cur, w)
		chars += utf8.RuneCountInString(strings.TrimSpace(w.Word))
		if len(cur) >= maxLineWords || chars > maxLineChars || endsSentence(w.Word) || i == len(words)-1 {
			out = append(out, types.NewPhrase(cur))
			cur = cur[:0:0]
			chars = 0
		}
	}
	return out
}

func endsSentence(s string) bool {
	t := strings.TrimSpace(s)
	return strings.HasSuffix(t, ".") || strings.HasSuffix(t, "?") || strings.HasSuffix(t, "!")
}
