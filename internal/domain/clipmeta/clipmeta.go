// Package clipmeta derives publishing metadata from segment text when no
// language model is available.
package clipmeta

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/forPelevin/hlshorts/internal/types"
)

const (
	titleWords   = 6
	captionRunes = 200
	maxTags      = 3
	minTagRunes  = 5
)

var titleCaser = cases.Title(language.Und)

// Fallback builds deterministic metadata from the segment text.
func Fallback(seg types.Segment) types.ClipMeta {
	text := strings.TrimSpace(seg.Text)
	if text == "" {
		return types.ClipMeta{Title: "Highlight", Caption: "Highlight"}
	}
	return types.ClipMeta{
		Title:   title(text),
		Caption: truncate(text, captionRunes),
		Tags:    tags(text),
	}
}

// Complete fills empty fields of got from the fallback for seg.
func Complete(got types.ClipMeta, seg types.Segment) types.ClipMeta {
	fb := Fallback(seg)
	got.Title = strings.TrimSpace(got.Title)
	got.Caption = strings.TrimSpace(got.Caption)
	if got.Title == "" {
		got.Title = fb.Title
	}
	if got.Caption == "" {
		got.Caption = fb.Caption
	}
	if len(got.Tags) == 0 {
		got.Tags = fb.Tags
	}
	return got
}

func title(text string) string {
	fields := strings.Fields(text)
	if len(fields) > titleWords {
		fields = fields[:titleWords]
	}
	t := strings.TrimRightFunc(strings.Join(fields, " "), unicode.IsPunct)
	return titleCaser.String(t)
}

// tags picks the most frequent long words, ties broken alphabetically.
func tags(text string) []string {
	counts := map[string]int{}
	for _, f := range strings.Fields(text) {
		w := strings.ToLower(strings.TrimFunc(f, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) }))
		if utf8.RuneCountInString(w) < minTagRunes {
			continue
		}
		counts[w]++
	}
	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})
	if len(words) > maxTags {
		words = words[:maxTags]
	}
	return words
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n-1])) + "…"
}
