// Package watch starts one job per video file dropped into a directory.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/forPelevin/hlshorts/internal/logging"
)

// DefaultSettle is how long a new file is left alone before it is handed
// over, so that copies in progress can finish.
const DefaultSettle = 500 * time.Millisecond

// Handler processes one file. Handlers run concurrently and must not share
// mutable state.
type Handler func(ctx context.Context, path string) error

var videoExts = map[string]struct{}{
	".mp4": {}, ".mov": {}, ".avi": {}, ".mkv": {}, ".webm": {}, ".m4v": {}, ".flv": {},
}

type Watcher struct {
	dir     string
	handler Handler
	log     *slog.Logger
	fsw     *fsnotify.Watcher
	sem     chan struct{}
	wg      sync.WaitGroup

	// Settle delays each handler call; zero hands files over immediately.
	Settle time.Duration
}

func New(dir string, handler Handler, log *slog.Logger, maxConcurrent int) (*Watcher, error) {
	if handler == nil {
		return nil, errors.New("watch: handler is nil")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("add watch path: %w", err)
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	log = logging.OrNop(log)
	return &Watcher{
		dir:     dir,
		handler: handler,
		log:     log.With("component", "watch"),
		fsw:     fsw,
		sem:     make(chan struct{}, maxConcurrent),
		Settle:  DefaultSettle,
	}, nil
}

// Start blocks until ctx is done or the watcher fails, then waits for the
// running handlers.
func (w *Watcher) Start(ctx context.Context) error {
	w.log.Info("watching for videos", "dir", w.dir, "max_concurrent", cap(w.sem))
	defer w.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("watch stopping, waiting for running jobs")
			return ctx.Err()

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}
			if !ev.Has(fsnotify.Create) {
				continue
			}
			if !IsVideoFile(ev.Name) {
				w.log.Debug("ignoring non-video file", "path", ev.Name)
				continue
			}
			w.log.Info("new video detected", "path", ev.Name)

			select {
			case w.sem <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}
			w.wg.Add(1)
			go w.handle(ctx, ev.Name)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			w.log.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, path string) {
	defer w.wg.Done()
	defer func() { <-w.sem }()

	if w.Settle > 0 {
		t := time.NewTimer(w.Settle)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return
		}
	}
	if err := w.handler(ctx, path); err != nil {
		w.log.Error("job failed", "path", path, "error", err)
	}
}

func (w *Watcher) Stop() error {
	return w.fsw.Close()
}

func IsVideoFile(path string) bool {
	_, ok := videoExts[strings.ToLower(filepath.Ext(path))]
	return ok
}
