package segmenter

import "github.com/forPelevin/hlshorts/internal/types"

const maxHookRemovals = 2

// CleanHook drops up to two filler words from the start of a segment's words.
// A word is only dropped while the remainder still spans minDuration, and the
// last word is never dropped.
func CleanHook(words []types.Word, minDuration float64) []types.Word {
	for removed := 0; removed < maxHookRemovals && len(words) > 1; removed++ {
		if !isHookStarter(words[0].Word) {
			break
		}
		if words[len(words)-1].End-words[1].Start < minDuration {
			break
		}
		words = words[1:]
	}
	return words
}
