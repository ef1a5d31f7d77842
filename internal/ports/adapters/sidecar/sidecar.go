// Package sidecar runs an external subject detector as a child process.
//
// Protocol, one exchange per frame over stdin/stdout:
//
//	-> {"index":12,"width":640,"height":360,"format":"rgb24","size":691200}\n
//	-> <size raw bytes>
//	<- {"index":12,"detections":[{"box":{"xmin":..,"ymin":..,"width":..,"height":..},"confidence":0.93}]}\n
//
// A reply with a non-empty "error" field fails that frame.
package sidecar

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/forPelevin/hlshorts/internal/logging"
	"github.com/forPelevin/hlshorts/internal/ports"
	"github.com/forPelevin/hlshorts/internal/types"
)

// ErrNotConfigured is returned by OpenDetector when no command is set.
var ErrNotConfigured = errors.New("sidecar: detector command not configured")

const (
	closeGrace   = 2 * time.Second
	maxReplySize = 1 << 20
)

type Factory struct {
	argv          []string
	minConfidence float64
	log           *slog.Logger
}

func New(argv []string, minConfidence float64, log *slog.Logger) *Factory {
	log = logging.OrNop(log)
	return &Factory{argv: append([]string(nil), argv...), minConfidence: minConfidence, log: log.With("component", "detector")}
}

// OpenDetector starts one detector process. The caller must Close it.
func (f *Factory) OpenDetector(ctx context.Context) (ports.Detector, error) {
	if len(f.argv) == 0 || strings.TrimSpace(f.argv[0]) == "" {
		return nil, ErrNotConfigured
	}
	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, f.argv[0], f.argv[1:]...)
	stderr := &syncBuffer{}
	cmd.Stderr = stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("sidecar stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("sidecar stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start detector %q: %w", f.argv[0], err)
	}
	f.log.Debug("detector started", "cmd", strings.Join(f.argv, " "), "pid", cmd.Process.Pid)

	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 64*1024), maxReplySize)
	return &detector{
		cmd:           cmd,
		cancel:        cancel,
		stdin:         stdin,
		w:             bufio.NewWriter(stdin),
		replies:       sc,
		stderr:        stderr,
		minConfidence: f.minConfidence,
	}, nil
}

type detector struct {
	cmd           *exec.Cmd
	cancel        context.CancelFunc
	stdin         io.WriteCloser
	w             *bufio.Writer
	replies       *bufio.Scanner
	stderr        *syncBuffer
	minConfidence float64
	closed        bool
}

type frameHeader struct {
	Index  int    `json:"index"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
	Size   int    `json:"size"`
}

type reply struct {
	Index      int               `json:"index"`
	Detections []types.Detection `json:"detections"`
	Error      string            `json:"error,omitempty"`
}

func (d *detector) Detect(frame types.Frame) ([]types.Detection, error) {
	if d.closed {
		return nil, errors.New("sidecar: detector closed")
	}
	if want := frame.Width * frame.Height * 3; len(frame.Pix) != want {
		return nil, fmt.Errorf("sidecar: frame %d has %d bytes, want %d", frame.Index, len(frame.Pix), want)
	}
	hdr, err := json.Marshal(frameHeader{Index: frame.Index, Width: frame.Width, Height: frame.Height, Format: "rgb24", Size: len(frame.Pix)})
	if err != nil {
		return nil, err
	}
	if _, err := d.w.Write(append(hdr, '\n')); err != nil {
		return nil, d.procErr("write header", err)
	}
	if _, err := d.w.Write(frame.Pix); err != nil {
		return nil, d.procErr("write frame", err)
	}
	if err := d.w.Flush(); err != nil {
		return nil, d.procErr("flush frame", err)
	}

	if !d.replies.Scan() {
		err := d.replies.Err()
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return nil, d.procErr("read reply", err)
	}
	var r reply
	if err := json.Unmarshal(d.replies.Bytes(), &r); err != nil {
		return nil, fmt.Errorf("sidecar: decode reply for frame %d: %w", frame.Index, err)
	}
	if r.Error != "" {
		return nil, fmt.Errorf("sidecar: frame %d: %s", frame.Index, r.Error)
	}
	if r.Index != frame.Index {
		return nil, fmt.Errorf("sidecar: reply for frame %d, want %d", r.Index, frame.Index)
	}
	out := r.Detections[:0]
	for _, det := range r.Detections {
		if det.Confidence >= d.minConfidence {
			out = append(out, det)
		}
	}
	return out, nil
}

// Close ends the detector: stdin is closed so the process can exit on its
// own, and it is killed after a grace period.
func (d *detector) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	_ = d.stdin.Close()

	done := make(chan error, 1)
	go func() { done <- d.cmd.Wait() }()
	select {
	case <-done:
	case <-time.After(closeGrace):
		d.cancel()
		<-done
	}
	d.cancel()
	return nil
}

func (d *detector) procErr(op string, err error) error {
	msg := strings.TrimSpace(d.stderr.String())
	if msg == "" {
		return fmt.Errorf("sidecar %s: %w", op, err)
	}
	return fmt.Errorf("sidecar %s: %w: %s", op, err, truncate(msg, 400))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// syncBuffer collects stderr while the process runs.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
