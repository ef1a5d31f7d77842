package subtitles

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/forPelevin/hlshorts/internal/types"
)

// Style is the look of the burned-in captions. Colours use ASS &HAABBGGRR
// notation.
type Style struct {
	PlayResX        int
	PlayResY        int
	Font            string
	FontSize        int
	PrimaryColour   string
	HighlightColour string
	Outline         int
	MarginV         int
}

func DefaultStyle(w, h int) Style {
	return Style{
		PlayResX:        w,
		PlayResY:        h,
		Font:            "Arial",
		FontSize:        85,
		PrimaryColour:   "&H0000FFFF",
		HighlightColour: "&H00FFFFFF",
		Outline:         4,
		MarginV:         250,
	}
}

// RenderASS renders a segment's captions with times relative to the segment
// start. Segments without word timings get a single plain event.
func RenderASS(seg types.Segment, st Style) (string, error) {
	if st.PlayResX <= 0 || st.PlayResY <= 0 {
		return "", errors.New("subtitles: play resolution must be positive")
	}
	if len(seg.Words) == 0 {
		return renderASSPlain(st, seg.Text, dur(seg.Duration)), nil
	}
	return renderASSKaraoke(st, seg), nil
}

func renderASSKaraoke(st Style, seg types.Segment) string {
	var b strings.Builder
	b.WriteString(assHeader(st))
	b.WriteString(eventsHeader)
	for _, ph := range GroupPhrases(seg.Words) {
		b.WriteString("Dialogue: 0,")
		b.WriteString(assTime(rel(ph.Start, seg)))
		b.WriteString(",")
		b.WriteString(assTime(rel(ph.End, seg)))
		b.WriteString(",Default,,0,0,0,,")
		for i, w := range ph.Words {
			// Highlight holds through the pause until the next word starts.
			end := w.End
			if i+1 < len(ph.Words) && ph.Words[i+1].Start > end {
				end = ph.Words[i+1].Start
			}
			durCS := int(dur(end-w.Start) / (10 * time.Millisecond))
			if durCS < 1 {
				durCS = 1
			}
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(fmt.Sprintf("{\\k%d}%s", durCS, sanitizeASS(w.Word)))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func renderASSPlain(st Style, text string, d time.Duration) string {
	var b strings.Builder
	b.WriteString(assHeader(st))
	b.WriteString(eventsHeader)
	b.WriteString("Dialogue: 0,0:00:00.00,")
	b.WriteString(assTime(d))
	b.WriteString(",Default,,0,0,0,,")
	b.WriteString(sanitizeASS(text))
	b.WriteString("\n")
	return b.String()
}

const eventsHeader = "\n[Events]\nFormat: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n"

func assHeader(st Style) string {
	var b strings.Builder
	b.WriteString("[Script Info]\n")
	b.WriteString("ScriptType: v4.00+\n")
	fmt.Fprintf(&b, "PlayResX: %d\n", st.PlayResX)
	fmt.Fprintf(&b, "PlayResY: %d\n", st.PlayResY)
	b.WriteString("WrapStyle: 1\n")
	b.WriteString("ScaledBorderAndShadow: yes\n\n")
	b.WriteString("[V4+ Styles]\n")
	b.WriteString("Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding\n")
	fmt.Fprintf(&b, "Style: Default,%s,%d,%s,%s,&H00000000,&H80000000,-1,0,0,0,100,100,0,0,1,%d,0,2,20,20,%d,1\n",
		st.Font, st.FontSize, st.PrimaryColour, st.HighlightColour, st.Outline, st.MarginV)
	return b.String()
}

func rel(sec float64, seg types.Segment) time.Duration {
	d := dur(sec - seg.Start)
	if d < 0 {
		return 0
	}
	if total := dur(seg.Duration); d > total {
		return total
	}
	return d
}

func assTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hs := int(d / time.Hour)
	d -= time.Duration(hs) * time.Hour
	ms := int(d / time.Minute)
	d -= time.Duration(ms) * time.Minute
	s := int(d / time.Second)
	d -= time.Duration(s) * time.Second
	cs := int(d / (10 * time.Millisecond))
	return fmt.Sprintf("%d:%02d:%02d.%02d", hs, ms, s, cs)
}

// sanitizeASS keeps word text from being read as override tags. ASS has no
// escape for the backslash, so it is swapped for a look-alike rune.
func sanitizeASS(s string) string {
	s = strings.ReplaceAll(s, "\\", "\u29f5")
	s = strings.ReplaceAll(s, "{", "(")
	s = strings.ReplaceAll(s, "}", ")")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}

func dur(sec float64) time.Duration { return time.Duration(sec * float64(time.Second)) }
