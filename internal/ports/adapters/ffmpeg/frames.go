package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"github.com/forPelevin/hlshorts/internal/ports"
	"github.com/forPelevin/hlshorts/internal/types"
)

// OpenFrames starts an ffmpeg decoder that writes rgb24 frames of
// [start, end) to a pipe, scaled down to the analysis width.
func (a *Adapter) OpenFrames(ctx context.Context, path string, info types.VideoInfo, start, end float64) (ports.FrameStream, error) {
	if info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("open frames: invalid source size %dx%d", info.Width, info.Height)
	}
	if end <= start {
		return nil, fmt.Errorf("open frames: empty range [%.3f, %.3f)", start, end)
	}
	w, h := analysisSize(info.Width, info.Height, a.analysisWidth)

	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-v", "error",
		"-ss", strconv.FormatFloat(start, 'f', 3, 64),
		"-to", strconv.FormatFloat(end, 'f', 3, 64),
		"-i", path,
		"-an", "-sn",
		"-vf", fmt.Sprintf("scale=%d:%d", w, h),
		"-pix_fmt", "rgb24",
		"-f", "rawvideo",
		"pipe:1",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open frames: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("open frames: start ffmpeg: %w", err)
	}
	return &frameStream{
		cmd:    cmd,
		cancel: cancel,
		r:      bufio.NewReaderSize(stdout, w*h*3),
		stderr: &stderr,
		width:  w,
		height: h,
	}, nil
}

type frameStream struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	r      *bufio.Reader
	stderr *bytes.Buffer
	width  int
	height int
	next   int
	done   bool
	waited bool
	err    error
}

func (s *frameStream) Next() (types.Frame, error) {
	if s.done {
		return types.Frame{}, s.err
	}
	pix := make([]byte, s.width*s.height*3)
	if _, err := io.ReadFull(s.r, pix); err != nil {
		s.done = true
		s.err = io.EOF
		if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			s.err = fmt.Errorf("read frame %d: %w", s.next, err)
		} else if werr := s.wait(); werr != nil {
			s.err = fmt.Errorf("ffmpeg decode: %w: %s", werr, strings.TrimSpace(s.stderr.String()))
		}
		return types.Frame{}, s.err
	}
	f := types.Frame{Index: s.next, Width: s.width, Height: s.height, Pix: pix}
	s.next++
	return f, nil
}

// Close stops the decoder. It is safe to call after the stream ended.
func (s *frameStream) Close() error {
	s.cancel()
	s.done = true
	if s.err == nil {
		s.err = io.EOF
	}
	_ = s.wait()
	return nil
}

func (s *frameStream) wait() error {
	if s.waited {
		return nil
	}
	s.waited = true
	return s.cmd.Wait()
}

// analysisSize scales the source down to maxWidth keeping the aspect ratio,
// with even dimensions.
func analysisSize(w, h, maxWidth int) (int, int) {
	if maxWidth <= 0 || maxWidth >= w {
		return w - w%2, h - h%2
	}
	sh := int(math.Round(float64(h) * float64(maxWidth) / float64(w)))
	sh -= sh % 2
	if sh < 2 {
		sh = 2
	}
	return maxWidth - maxWidth%2, sh
}
