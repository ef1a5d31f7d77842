package whispercpp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/forPelevin/hlshorts/internal/types"
)

type Adapter struct {
	bin      string
	model    string
	language string
	threads  int
}

func New(binPath, modelPath, language string, threads int) *Adapter {
	if language == "" {
		language = "auto"
	}
	return &Adapter{bin: binPath, model: modelPath, language: language, threads: threads}
}

// Transcribe runs whisper.cpp with one segment per word so every word gets
// its own timing. The JSON result is left in cacheDir.
func (a *Adapter) Transcribe(ctx context.Context, wavPath, cacheDir string) (types.Transcript, error) {
	outPrefix := filepath.Join(cacheDir, "whisper")
	args := []string{
		"-m", a.model,
		"-f", wavPath,
		"-l", a.language,
		"-oj",
		"-of", outPrefix,
		"-ml", "1",
		"-sow",
	}
	if a.threads > 0 {
		args = append(args, "-t", strconv.Itoa(a.threads))
	}
	cmd := exec.CommandContext(ctx, a.bin, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whisper.cpp failed: %w\n%s", err, string(b))
	}

	jb, err := os.ReadFile(outPrefix + ".json")
	if err != nil {
		return types.Transcript{}, fmt.Errorf("read whisper output: %w", err)
	}
	tr, err := parseOutput(jb)
	if err != nil {
		return types.Transcript{}, err
	}
	if err := tr.Validate(); err != nil {
		return types.Transcript{}, err
	}
	return tr, nil
}

type whisperOutput struct {
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

// parseOutput reads whisper.cpp's native JSON, where each transcription
// entry is one word with millisecond offsets. Words are grouped into
// sentence segments. Documents already in transcript shape are accepted
// as is.
func parseOutput(b []byte) (types.Transcript, error) {
	var out whisperOutput
	if err := json.Unmarshal(b, &out); err != nil {
		return types.Transcript{}, fmt.Errorf("%w: whisper json: %v", types.ErrInvalidTranscript, err)
	}
	if out.Transcription == nil {
		var tr types.Transcript
		if err := json.Unmarshal(b, &tr); err != nil {
			return types.Transcript{}, fmt.Errorf("%w: whisper json: %v", types.ErrInvalidTranscript, err)
		}
		return trimTranscript(tr), nil
	}

	var tr types.Transcript
	var cur []types.Word
	flush := func() {
		if len(cur) == 0 {
			return
		}
		tr.Segments = append(tr.Segments, types.TranscriptSegment{
			Start: cur[0].Start,
			End:   cur[len(cur)-1].End,
			Text:  types.NewPhrase(cur).Text,
			Words: cur,
		})
		cur = nil
	}
	for _, e := range out.Transcription {
		text := strings.TrimSpace(e.Text)
		if text == "" || isSpecialToken(text) {
			continue
		}
		cur = append(cur, types.Word{
			Start: float64(e.Offsets.From) / 1000,
			End:   float64(e.Offsets.To) / 1000,
			Word:  text,
		})
		if strings.ContainsAny(text[len(text)-1:], ".?!") {
			flush()
		}
	}
	flush()
	return tr, nil
}

func isSpecialToken(s string) bool {
	return strings.HasPrefix(s, "[_") || (strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]"))
}

func trimTranscript(tr types.Transcript) types.Transcript {
	for i := range tr.Segments {
		tr.Segments[i].Text = strings.TrimSpace(tr.Segments[i].Text)
		for j := range tr.Segments[i].Words {
			tr.Segments[i].Words[j].Word = strings.TrimSpace(tr.Segments[i].Words[j].Word)
		}
	}
	return tr
}
