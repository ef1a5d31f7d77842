// Package segmenter cuts a timestamped word list into short-form clip
// segments using a scored lookahead over candidate end words.
package segmenter

import (
	"context"
	"log/slog"
	"math"

	"github.com/forPelevin/hlshorts/internal/types"
)

const (
	punctuationBonus = 3.0
	pauseBonus       = 1.5
	fillerPenalty    = -5.0
	timeBonusWeight  = 2.0
	timeBonusCap     = 2.0

	// pauseThreshold is the silence (seconds) after a word that counts as a
	// natural break.
	pauseThreshold = 0.5
)

type Config struct {
	MinDuration float64
	MaxDuration float64
}

type Segmenter struct {
	cfg Config
	log *slog.Logger
}

func New(cfg Config, log *slog.Logger) *Segmenter {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Segmenter{cfg: cfg, log: log.With("component", "segmenter")}
}

type cutKind int

const (
	cutNone cutKind = iota
	cutScored
	cutForced
	cutSkip
)

// Segment runs one segmentation pass. The result is fully determined by
// words and the configured bounds.
func (s *Segmenter) Segment(words []types.Word) []types.Segment {
	segs, _ := s.SegmentContext(context.Background(), words)
	return segs
}

// SegmentContext is Segment with a cancellation check at every segment
// boundary. On cancellation it returns the segments built so far.
func (s *Segmenter) SegmentContext(ctx context.Context, words []types.Word) ([]types.Segment, error) {
	var out []types.Segment
	cursor := 0
	for cursor < len(words) {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		end, kind := s.nextCut(words, cursor)
		switch kind {
		case cutNone:
			s.log.Debug("dropping short tail",
				"from", words[cursor].Start,
				"to", words[len(words)-1].End,
				"words", len(words)-cursor,
			)
			cursor = len(words)
			continue
		case cutSkip:
			s.log.Warn("word longer than max duration skipped",
				"start", words[cursor].Start,
				"end", words[cursor].End,
				"word", words[cursor].Word,
			)
			cursor++
			continue
		case cutForced:
			s.log.Debug("safety cut", "start", words[cursor].Start, "end", words[end].End)
		}

		cleaned := CleanHook(words[cursor:end+1], s.cfg.MinDuration)
		if seg, ok := types.NewSegment(cleaned); ok {
			out = append(out, seg)
		}
		cursor = end + 1
	}

	if len(out) == 0 {
		s.log.Warn("no segments produced", "words", len(words), "min", s.cfg.MinDuration, "max", s.cfg.MaxDuration)
	} else {
		s.log.Info("segmentation done", "words", len(words), "segments", len(out))
	}
	return out, nil
}

// nextCut scans forward from cursor and returns the index of the last word
// of the next segment.
func (s *Segmenter) nextCut(words []types.Word, cursor int) (int, cutKind) {
	start := words[cursor].Start
	best, bestScore := -1, math.Inf(-1)
	for i := cursor; i < len(words); i++ {
		dur := words[i].End - start
		if dur > s.cfg.MaxDuration {
			switch {
			case best >= 0:
				return best, cutScored
			case i == cursor:
				return cursor, cutSkip
			default:
				return i - 1, cutForced
			}
		}
		if dur < s.cfg.MinDuration {
			continue
		}
		// >= so that equal scores prefer the longer segment.
		if sc := s.score(words, i, dur); sc >= bestScore {
			best, bestScore = i, sc
		}
	}
	if best < 0 {
		return -1, cutNone
	}
	return best, cutScored
}

func (s *Segmenter) score(words []types.Word, i int, dur float64) float64 {
	w := words[i]
	sc := 0.0
	if endsSentence(w.Word) {
		sc += punctuationBonus
	}
	// The end of the transcript is followed by silence.
	if i == len(words)-1 || words[i+1].Start-w.End > pauseThreshold {
		sc += pauseBonus
	}
	if isEndingFiller(w.Word) {
		sc += fillerPenalty
	}
	if s.cfg.MaxDuration > 0 {
		sc += math.Min(timeBonusWeight*dur/s.cfg.MaxDuration, timeBonusCap)
	}
	return sc
}
