package types

import "strings"

type Word struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Word  string  `json:"word"`
}

// Phrase is an ordered group of words rendered as one subtitle line.
type Phrase struct {
	Start float64
	End   float64
	Text  string
	Words []Word
}

func NewPhrase(words []Word) Phrase {
	if len(words) == 0 {
		return Phrase{}
	}
	cp := append([]Word(nil), words...)
	return Phrase{
		Start: cp[0].Start,
		End:   cp[len(cp)-1].End,
		Text:  joinWords(cp),
		Words: cp,
	}
}

// Segment is one clip's span of transcript time. Words is the exact source
// slice covered by [Start, End].
type Segment struct {
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Duration float64 `json:"duration"`
	Text     string  `json:"text"`
	Words    []Word  `json:"words"`
}

// NewSegment builds a segment from a contiguous run of words. It reports false
// when the run is empty or spans no time.
func NewSegment(words []Word) (Segment, bool) {
	if len(words) == 0 {
		return Segment{}, false
	}
	cp := append([]Word(nil), words...)
	start := cp[0].Start
	end := cp[len(cp)-1].End
	if end-start <= 0 {
		return Segment{}, false
	}
	return Segment{
		Start:    start,
		End:      end,
		Duration: end - start,
		Text:     joinWords(cp),
		Words:    cp,
	}, true
}

func joinWords(words []Word) string {
	parts := make([]string, 0, len(words))
	for _, w := range words {
		if t := strings.TrimSpace(w.Word); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}

type VideoInfo struct {
	Width    int
	Height   int
	FPS      float64
	Duration float64
}

// Frame is a decoded RGB24 raster.
type Frame struct {
	Index  int
	Width  int
	Height int
	Pix    []byte
}

// RelBox is a bounding box expressed as fractions of frame width/height.
type RelBox struct {
	XMin   float64 `json:"xmin"`
	YMin   float64 `json:"ymin"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// CenterX returns the horizontal center of the box in pixels of a frame
// frameW wide.
func (b RelBox) CenterX(frameW int) float64 {
	return (b.XMin + b.Width/2) * float64(frameW)
}

type Detection struct {
	Box        RelBox  `json:"box"`
	Confidence float64 `json:"confidence"`
}

// FrameSample is one scanned frame. ObservedX is only meaningful when
// Detected is set; CenterX is the smoothed, clamped subject position.
type FrameSample struct {
	Index     int
	Detected  bool
	ObservedX float64
	CenterX   float64
}

type Trace struct {
	Samples []FrameSample
	Outcome Outcome
	Reason  error
}

// Centers returns the smoothed center of every sample.
func (t Trace) Centers() []float64 {
	out := make([]float64, len(t.Samples))
	for i, s := range t.Samples {
		out[i] = s.CenterX
	}
	return out
}

// CropPlan positions a TargetWidth x TargetHeight window inside the source
// scaled to ScaledWidth x ScaledHeight.
type CropPlan struct {
	OffsetX      int
	OffsetY      int
	TargetWidth  int
	TargetHeight int
	ScaledWidth  int
	ScaledHeight int
	Outcome      Outcome
	Reason       error
}

type Manifest struct {
	JobID string         `json:"job_id"`
	Input string         `json:"input"`
	Clips []ManifestClip `json:"clips"`
}

type ManifestClip struct {
	ID        string        `json:"id"`
	StartSec  float64       `json:"start_sec"`
	EndSec    float64       `json:"end_sec"`
	Duration  float64       `json:"duration"`
	Text      string        `json:"text"`
	File      string        `json:"file"`
	Subtitles string        `json:"subtitles"`
	Title     string        `json:"title"`
	Caption   string        `json:"caption"`
	Tags      []string      `json:"tags"`
	Crop      *ManifestCrop `json:"crop,omitempty"`
}

type ManifestCrop struct {
	OffsetX      int    `json:"offset_x"`
	OffsetY      int    `json:"offset_y"`
	ScaledWidth  int    `json:"scaled_width"`
	ScaledHeight int    `json:"scaled_height"`
	Tracking     string `json:"tracking"`
	Plan         string `json:"plan"`
}

// ClipMeta is the publishing metadata attached to a segment.
type ClipMeta struct {
	Title   string
	Caption string
	Tags    []string
}
