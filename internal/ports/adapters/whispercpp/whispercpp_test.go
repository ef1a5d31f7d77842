package whispercpp

import (
	"errors"
	"testing"

	"github.com/forPelevin/hlshorts/internal/types"
)

func TestParseOutput_NativeWords(t *testing.T) {
	in := []byte(`{"transcription":[
		{"offsets":{"from":0,"to":500},"text":" Olá"},
		{"offsets":{"from":500,"to":1000},"text":" pessoal."},
		{"offsets":{"from":1000,"to":1000},"text":" [_BEG_]"},
		{"offsets":{"from":1200,"to":1600},"text":" tudo"},
		{"offsets":{"from":1600,"to":2100},"text":" bem"}
	]}`)
	tr, err := parseOutput(in)
	if err != nil {
		t.Fatal(err)
	}
	if len(tr.Segments) != 2 {
		t.Fatalf("expected 2 sentence segments, got %d", len(tr.Segments))
	}
	if tr.Segments[0].Text != "Olá pessoal." || tr.Segments[0].End != 1.0 {
		t.Fatalf("unexpected first segment: %+v", tr.Segments[0])
	}
	words := tr.Words()
	if len(words) != 4 || words[2].Word != "tudo" || words[2].Start != 1.2 {
		t.Fatalf("unexpected words: %+v", words)
	}
}

func TestParseOutput_TranscriptShape(t *testing.T) {
	in := []byte(`{"segments":[{"start":0,"end":1,"text":" hi ","words":[{"start":0,"end":1,"word":" hi "}]}]}`)
	tr, err := parseOutput(in)
	if err != nil {
		t.Fatal(err)
	}
	if tr.Segments[0].Text != "hi" || tr.Segments[0].Words[0].Word != "hi" {
		t.Fatalf("expected trimmed text: %+v", tr.Segments[0])
	}
}

func TestParseOutput_Invalid(t *testing.T) {
	_, err := parseOutput([]byte(`not json`))
	if !errors.Is(err, types.ErrInvalidTranscript) {
		t.Fatalf("expected ErrInvalidTranscript, got %v", err)
	}
}
