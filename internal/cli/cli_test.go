package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/forPelevin/hlshorts/internal/config"
	"github.com/forPelevin/hlshorts/internal/progress"
	"github.com/forPelevin/hlshorts/internal/types"
)

type cliEnv struct {
	dir        string
	configPath string
	stateDB    string
}

func setupCLITestEnv(t *testing.T) cliEnv {
	t.Helper()
	dir := t.TempDir()
	env := cliEnv{
		dir:        dir,
		configPath: filepath.Join(dir, "hlshorts.toml"),
		stateDB:    filepath.Join(dir, "state", "hlshorts.db"),
	}
	content := fmt.Sprintf("[paths]\nwork_dir = %q\nout_dir = %q\ncache_dir = %q\nstate_db = %q\n",
		filepath.Join(dir, "runs"),
		filepath.Join(dir, "out"),
		filepath.Join(dir, "cache"),
		env.stateDB,
	)
	if err := os.WriteFile(env.configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return env
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, s, want string) {
	t.Helper()
	if !strings.Contains(s, want) {
		t.Fatalf("expected output to contain %q\noutput:\n%s", want, s)
	}
}

func writeTranscriptFixture(t *testing.T, dir string) string {
	t.Helper()
	const body = `{"segments":[
 {"start":0,"end":2.1,"text":"Olá pessoal hoje vamos falar.","words":[
  {"start":0,"end":0.5,"word":"Olá"},{"start":0.5,"end":1.0,"word":"pessoal"},
  {"start":1.0,"end":1.5,"word":"hoje"},{"start":1.5,"end":2.1,"word":"vamos falar."}]},
 {"start":2.2,"end":4.4,"text":"depois outra coisa importante.","words":[
  {"start":2.2,"end":2.7,"word":"depois"},{"start":2.7,"end":3.2,"word":"outra"},
  {"start":3.2,"end":3.8,"word":"coisa"},{"start":3.8,"end":4.4,"word":"importante."}]}
]}`
	p := filepath.Join(dir, "transcript.json")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write transcript: %v", err)
	}
	return p
}

func TestSegmentCommand_Table(t *testing.T) {
	env := setupCLITestEnv(t)
	tr := writeTranscriptFixture(t, env.dir)

	out, _, err := runCLI(t, []string{"segment", tr, "--min", "1.5", "--max", "3"}, env.configPath)
	if err != nil {
		t.Fatalf("segment: %v", err)
	}
	requireContains(t, out, "001")
	requireContains(t, out, "002")
	requireContains(t, out, "Olá pessoal hoje vamos falar.")
	requireContains(t, out, "2.10")
}

func TestSegmentCommand_JSON(t *testing.T) {
	env := setupCLITestEnv(t)
	tr := writeTranscriptFixture(t, env.dir)

	out, _, err := runCLI(t, []string{"segment", tr, "--min", "1.5", "--max", "3", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("segment: %v", err)
	}
	var segs []types.Segment
	if err := json.Unmarshal([]byte(out), &segs); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if len(segs) != 2 || segs[1].Start != 2.2 || segs[1].End != 4.4 {
		t.Fatalf("unexpected segments: %+v", segs)
	}
}

func TestSegmentCommand_NoSegmentsAndErrors(t *testing.T) {
	env := setupCLITestEnv(t)
	tr := writeTranscriptFixture(t, env.dir)

	out, _, err := runCLI(t, []string{"segment", tr}, env.configPath)
	if err != nil {
		t.Fatalf("segment: %v", err)
	}
	requireContains(t, out, "No segments found")

	_, _, err = runCLI(t, []string{"segment", filepath.Join(env.dir, "missing.json")}, env.configPath)
	if !errors.Is(err, types.ErrInvalidTranscript) {
		t.Fatalf("expected ErrInvalidTranscript, got %v", err)
	}

	_, _, err = runCLI(t, []string{"segment", tr, "--min", "10", "--max", "5"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "min_seconds") {
		t.Fatalf("expected bounds validation error, got %v", err)
	}
}

func TestConfigInit(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "config.toml")

	out, _, err := runCLI(t, []string{"config", "init", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, _, exists, err := config.Load(target); err != nil || !exists {
		t.Fatalf("expected loadable sample config, exists=%v err=%v", exists, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", target}, ""); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected already exists error, got %v", err)
	}
	if _, _, err := runCLI(t, []string{"config", "init", target, "--overwrite"}, ""); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestStatusCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "No jobs recorded")

	store, err := progress.Open(env.stateDB)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	err = store.Put(context.Background(), types.Progress{
		JobID:     "job-abc",
		Input:     "/videos/talk.mp4",
		Status:    types.JobRunning,
		Stage:     "render",
		Done:      3,
		Total:     5,
		UpdatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	store.Close()

	out, _, err = runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "job-abc")
	requireContains(t, out, "3/5")
	requireContains(t, out, "talk.mp4")

	out, _, err = runCLI(t, []string{"status", "job-abc", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	var views []progressView
	if err := json.Unmarshal([]byte(out), &views); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if len(views) != 1 || views[0].Status != "running" || views[0].Done != 3 {
		t.Fatalf("unexpected status json: %+v", views)
	}

	if _, _, err := runCLI(t, []string{"status", "nope"}, env.configPath); err == nil || !strings.Contains(err.Error(), "job nope not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestRunCommand_RejectsBadInput(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "")
	env := setupCLITestEnv(t)
	input := filepath.Join(env.dir, "talk.mp4")
	if err := os.WriteFile(input, []byte("not really a video"), 0o644); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name string
		args []string
		want string
	}{
		{name: "no args", args: []string{"run"}, want: "accepts 1 arg(s), received 0"},
		{name: "missing input", args: []string{"run", filepath.Join(env.dir, "nope.mp4")}, want: "config: stat input"},
		{name: "url without host", args: []string{"run", "https://"}, want: "config: invalid input url"},
		{name: "unknown layout", args: []string{"run", input, "--layout", "zoom"}, want: "crop.layout"},
		{name: "min above max", args: []string{"run", input, "--min", "90"}, want: "min_seconds"},
		{name: "llm without key", args: []string{"run", input, "--llm"}, want: "OPENROUTER_API_KEY"},
		{name: "missing transcript", args: []string{"run", input, "--transcript", filepath.Join(env.dir, "t.json")}, want: "invalid transcript"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := runCLI(t, tc.args, env.configPath)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestRunFlags_ApplyOnlyChanged(t *testing.T) {
	var flags runFlags
	cmd := &cobra.Command{Use: "x"}
	flags.register(cmd)
	if err := cmd.ParseFlags([]string{"--max", "45", "--layout", " BLUR ", "--no-subs"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg := config.Default()
	flags.apply(cmd, &cfg)
	if cfg.Segment.MinSeconds != 30 || cfg.Segment.MaxSeconds != 45 {
		t.Fatalf("unexpected bounds: %+v", cfg.Segment)
	}
	if cfg.Crop.Layout != "blur" || cfg.Subtitles.Enabled || cfg.LLM.Enabled || cfg.Tracking.Estimate {
		t.Fatalf("unexpected settings: layout=%q subs=%v llm=%v estimate=%v",
			cfg.Crop.Layout, cfg.Subtitles.Enabled, cfg.LLM.Enabled, cfg.Tracking.Estimate)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("  a   b\nc ", 10); got != "a b c" {
		t.Fatalf("unexpected collapse: %q", got)
	}
	if got := truncate("abcdefgh", 5); got != "abcd…" {
		t.Fatalf("unexpected truncation: %q", got)
	}
}
