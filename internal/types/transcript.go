package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
)

// ErrInvalidTranscript marks a transcript that cannot be segmented.
var ErrInvalidTranscript = errors.New("invalid transcript")

type Transcript struct {
	Segments []TranscriptSegment `json:"segments"`
}

type TranscriptSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
	Words []Word  `json:"words,omitempty"`
}

// UnmarshalJSON accepts both {"segments": [...]} and a bare array of
// segment records.
func (t *Transcript) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var segs []TranscriptSegment
		if err := json.Unmarshal(trimmed, &segs); err != nil {
			return err
		}
		t.Segments = segs
		return nil
	}
	type plain Transcript
	var p plain
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return err
	}
	*t = Transcript(p)
	return nil
}

// LoadTranscript reads and validates a transcript document.
func LoadTranscript(path string) (Transcript, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Transcript{}, fmt.Errorf("%w: %v", ErrInvalidTranscript, err)
	}
	var tr Transcript
	if err := json.Unmarshal(b, &tr); err != nil {
		return Transcript{}, fmt.Errorf("%w: decode %s: %v", ErrInvalidTranscript, path, err)
	}
	if err := tr.Validate(); err != nil {
		return Transcript{}, err
	}
	return tr, nil
}

// Validate checks timing invariants once so downstream code can rely on them.
func (t Transcript) Validate() error {
	prev := math.Inf(-1)
	for i, s := range t.Segments {
		if !finite(s.Start) || !finite(s.End) {
			return fmt.Errorf("%w: segment %d has non-finite timing", ErrInvalidTranscript, i)
		}
		if s.End < s.Start {
			return fmt.Errorf("%w: segment %d ends before it starts (%.3f < %.3f)", ErrInvalidTranscript, i, s.End, s.Start)
		}
		for j, w := range s.Words {
			if !finite(w.Start) || !finite(w.End) {
				return fmt.Errorf("%w: segment %d word %d has non-finite timing", ErrInvalidTranscript, i, j)
			}
			if w.End < w.Start {
				return fmt.Errorf("%w: segment %d word %d ends before it starts (%.3f < %.3f)", ErrInvalidTranscript, i, j, w.End, w.Start)
			}
			if w.Start < prev {
				return fmt.Errorf("%w: segment %d word %d starts at %.3f, before previous word at %.3f", ErrInvalidTranscript, i, j, w.Start, prev)
			}
			prev = w.Start
		}
	}
	return nil
}

// Words flattens all segment words in order, trimming text and dropping
// words with no text.
func (t Transcript) Words() []Word {
	var out []Word
	for _, s := range t.Segments {
		for _, w := range s.Words {
			text := strings.TrimSpace(w.Word)
			if text == "" {
				continue
			}
			out = append(out, Word{Start: w.Start, End: w.End, Word: text})
		}
	}
	return out
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }
