package segmenter

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// endingFillers are words that leave a clip hanging when it ends on them.
var endingFillers = map[string]struct{}{
	"e": {}, "mas": {}, "ou": {}, "que": {}, "então": {}, "porque": {}, "pois": {},
	"tipo": {}, "né": {}, "de": {}, "com": {}, "pra": {}, "para": {},
	"and": {}, "but": {}, "or": {}, "so": {}, "because": {}, "the": {}, "of": {}, "to": {}, "like": {},
}

// hookStarters are weak openers stripped from the start of a clip.
var hookStarters = map[string]struct{}{
	"então": {}, "tipo": {}, "né": {}, "assim": {}, "bom": {}, "enfim": {}, "aí": {}, "e": {}, "mas": {},
	"so": {}, "like": {}, "well": {}, "um": {}, "uh": {}, "and": {}, "but": {}, "okay": {}, "ok": {},
}

// normalizeWord case-folds and removes punctuation so "Então," and "então"
// compare equal.
func normalizeWord(s string) string {
	folded := cases.Fold().String(strings.TrimSpace(s))
	return strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) {
			return -1
		}
		return r
	}, folded)
}

func isEndingFiller(word string) bool {
	_, ok := endingFillers[normalizeWord(word)]
	return ok
}

func isHookStarter(word string) bool {
	_, ok := hookStarters[normalizeWord(word)]
	return ok
}

func endsSentence(word string) bool {
	t := strings.TrimSpace(word)
	t = strings.TrimRight(t, `"')]»”`)
	return strings.HasSuffix(t, ".") || strings.HasSuffix(t, "?") || strings.HasSuffix(t, "!") || strings.HasSuffix(t, "…")
}
