package ytdlp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const helperEnv = "HLSHORTS_HELPER_YTDLP"

// TestHelperYtDlp is not a real test: it stands in for the yt-dlp binary in
// the tests below.
func TestHelperYtDlp(t *testing.T) {
	mode := os.Getenv(helperEnv)
	if mode == "" {
		return
	}
	args := os.Args
	for i, a := range args {
		if a == "--" {
			args = args[i+1:]
			break
		}
	}
	if len(args) > 0 && args[0] == "--version" {
		fmt.Println("2025.06.30")
		os.Exit(0)
	}
	var tmpl string
	for i := 0; i+1 < len(args); i++ {
		if args[i] == "-o" {
			tmpl = args[i+1]
		}
	}
	switch mode {
	case "fail":
		fmt.Fprintln(os.Stderr, "ERROR: Unsupported URL")
		os.Exit(1)
	case "nothing":
		os.Exit(0)
	}
	for _, ext := range []string{"f137.mp4", "mp4"} {
		p := strings.Replace(tmpl, "%(ext)s", ext, 1)
		if err := os.WriteFile(p, []byte("video"), 0o644); err != nil {
			os.Exit(2)
		}
	}
	os.Exit(0)
}

func helperAdapter(t *testing.T, mode string) *Adapter {
	t.Helper()
	t.Setenv(helperEnv, mode)
	a := New(os.Args[0], DefaultOptions(), nil)
	a.cmd = append(a.cmd, "-test.run=^TestHelperYtDlp$", "--")
	return a
}

func TestBuildArgs(t *testing.T) {
	args := DefaultOptions().BuildArgs("https://youtu.be/x", "/w/source_raw.%(ext)s")
	joined := strings.Join(args, " ")
	want := "--no-config --no-warnings --no-progress --no-update --no-playlist -f " + DefaultFormat + " -o /w/source_raw.%(ext)s -- https://youtu.be/x"
	if joined != want {
		t.Fatalf("args:\n got %s\nwant %s", joined, want)
	}

	bare := Options{Format: " best "}.BuildArgs("u", "o")
	if strings.Join(bare, " ") != "--no-playlist -f best -o o -- u" {
		t.Fatalf("unexpected bare args: %v", bare)
	}
	if got := (Options{}).BuildArgs("u", "o"); got[2] != DefaultFormat {
		t.Fatalf("expected default format, got %v", got)
	}
}

func TestFindDownloaded(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"source_raw.f137.mp4", "source_raw.webm.part", "source_raw.webm", "other.mp4"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	got, err := findDownloaded(dir)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(got) != "source_raw.webm" {
		t.Fatalf("findDownloaded = %s", got)
	}

	if _, err := findDownloaded(t.TempDir()); !errors.Is(err, ErrNoOutput) {
		t.Fatalf("expected ErrNoOutput, got %v", err)
	}
}

func TestCheckBinary_Missing(t *testing.T) {
	a := New(filepath.Join(t.TempDir(), "no-yt-dlp"), DefaultOptions(), nil)
	if err := a.CheckBinary(); err == nil || !strings.Contains(err.Error(), "yt-dlp not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
	if _, err := a.Download(context.Background(), "https://x", t.TempDir()); err == nil {
		t.Fatal("expected download to fail without binary")
	}
}

func TestVersion(t *testing.T) {
	v, err := helperAdapter(t, "ok").Version(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if v != "2025.06.30" {
		t.Fatalf("version = %q", v)
	}
}

func TestDownload(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "source_raw.mkv")
	if err := os.WriteFile(stale, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := helperAdapter(t, "ok").Download(context.Background(), "https://youtu.be/x", dir)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if got != filepath.Join(dir, "source_raw.mp4") {
		t.Fatalf("downloaded path = %s", got)
	}
	if _, err := os.Stat(stale); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected stale raw file removed, stat err = %v", err)
	}
}

func TestDownload_Failures(t *testing.T) {
	_, err := helperAdapter(t, "fail").Download(context.Background(), "https://x", t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "Unsupported URL") {
		t.Fatalf("expected yt-dlp output in error, got %v", err)
	}

	_, err = helperAdapter(t, "nothing").Download(context.Background(), "https://x", t.TempDir())
	if !errors.Is(err, ErrNoOutput) {
		t.Fatalf("expected ErrNoOutput, got %v", err)
	}
}
