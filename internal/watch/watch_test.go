package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestIsVideoFile(t *testing.T) {
	t.Parallel()
	tests := map[string]bool{
		"talk.mp4":         true,
		"/in/Podcast.MOV":  true,
		"clip.webm":        true,
		"notes.txt":        false,
		"transcript.json":  false,
		"no-extension":     false,
		"archive.mp4.part": false,
	}
	for in, want := range tests {
		if got := IsVideoFile(in); got != want {
			t.Fatalf("IsVideoFile(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestWatcher_HandlesOnlyNewVideos(t *testing.T) {
	dir := t.TempDir()
	got := make(chan string, 4)
	w, err := New(dir, func(_ context.Context, path string) error {
		got <- filepath.Base(path)
		return nil
	}, nil, 2)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	defer w.Stop()
	w.Settle = 0

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	for _, name := range []string{"notes.txt", "talk.mp4"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case name := <-got:
		if name != "talk.mp4" {
			t.Fatalf("unexpected file handled: %s", name)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for handler")
	}

	cancel()
	if err := <-done; err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	select {
	case name := <-got:
		t.Fatalf("unexpected extra file handled: %s", name)
	default:
	}
}

func TestWatcher_BoundsConcurrency(t *testing.T) {
	dir := t.TempDir()
	var running, peak atomic.Int32
	var wg sync.WaitGroup
	wg.Add(3)
	w, err := New(dir, func(context.Context, string) error {
		defer wg.Done()
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		running.Add(-1)
		return nil
	}, nil, 1)
	if err != nil {
		t.Fatalf("new watcher: %v", err)
	}
	defer w.Stop()
	w.Settle = 0

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Start(ctx) }()

	for _, name := range []string{"a.mp4", "b.mp4", "c.mp4"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for handlers")
	}
	if p := peak.Load(); p != 1 {
		t.Fatalf("expected at most one running job, saw %d", p)
	}
}

func TestNew_RejectsMissingDir(t *testing.T) {
	t.Parallel()
	_, err := New(filepath.Join(t.TempDir(), "missing"), func(context.Context, string) error { return nil }, nil, 1)
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
}
