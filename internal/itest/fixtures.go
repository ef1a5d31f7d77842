//go:build integration

package itest

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/forPelevin/hlshorts/internal/types"
)

// makeVideo writes a 1280x720 test pattern with a tone track.
func makeVideo(t *testing.T, dir string, seconds int) string {
	t.Helper()
	out := filepath.Join(dir, "input.mp4")
	d := strconv.Itoa(seconds)
	cmd := exec.Command("ffmpeg",
		"-y",
		"-f", "lavfi", "-i", "testsrc=size=1280x720:rate=25:duration="+d,
		"-f", "lavfi", "-i", "sine=frequency=440:duration="+d,
		"-shortest",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		out,
	)
	if b, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("ffmpeg fixture failed: %v\n%s", err, string(b))
	}
	return out
}

// writeTranscript lays one word every half second over [0, seconds), with a
// sentence end every four words.
func writeTranscript(t *testing.T, dir string, seconds int) string {
	t.Helper()
	var words []types.Word
	for i := 0; float64(i)*0.5+0.5 <= float64(seconds); i++ {
		w := types.Word{Start: float64(i) * 0.5, End: float64(i)*0.5 + 0.45, Word: "palavra"}
		if i%4 == 3 {
			w.Word = "fim."
		}
		words = append(words, w)
	}
	tr := types.Transcript{Segments: []types.TranscriptSegment{{
		Start: words[0].Start,
		End:   words[len(words)-1].End,
		Words: words,
	}}}
	b, err := json.Marshal(tr)
	if err != nil {
		t.Fatal(err)
	}
	p := filepath.Join(dir, "transcript.json")
	if err := os.WriteFile(p, b, 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}
