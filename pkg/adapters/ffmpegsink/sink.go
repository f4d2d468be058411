// Package ffmpegsink streams raw frames into an ffmpeg process.
package ffmpegsink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"sync"

	"github.com/user/drivecap/pkg/ports"
)

var (
	// ErrFFmpegNotFound is returned when no ffmpeg executable can be located.
	ErrFFmpegNotFound = errors.New("ffmpegsink: ffmpeg not found")

	// ErrInvalidConfig is returned when the sink configuration cannot describe a raw stream.
	ErrInvalidConfig = errors.New("ffmpegsink: invalid configuration")

	// ErrClosed is returned when writing to a closed stream.
	ErrClosed = errors.New("ffmpegsink: stream closed")
)

// maxStderr bounds the ffmpeg diagnostics kept for error reports.
const maxStderr = 8 * 1024

// Sink launches ffmpeg processes. It implements ports.EncodingSink.
type Sink struct {
	ffmpegPath string
	logger     ports.Logger
}

// New creates a Sink. An empty ffmpegPath triggers discovery via FindFFmpeg.
func New(ffmpegPath string, logger ports.Logger) *Sink {
	return &Sink{
		ffmpegPath: ffmpegPath,
		logger:     logger.WithComponent("encoder"),
	}
}

// FindFFmpeg searches for ffmpeg.
// Priority: 1) FFMPEG_PATH env, 2) PATH, 3) common locations
func FindFFmpeg() (string, error) {
	if envPath := os.Getenv("FFMPEG_PATH"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
		return "", fmt.Errorf("%w: FFMPEG_PATH %s not found", ErrFFmpegNotFound, envPath)
	}

	execName := "ffmpeg"
	if runtime.GOOS == "windows" {
		execName = "ffmpeg.exe"
	}
	if path, err := exec.LookPath(execName); err == nil {
		return path, nil
	}

	var commonPaths []string
	switch runtime.GOOS {
	case "windows":
		commonPaths = []string{
			`C:\ffmpeg\bin\ffmpeg.exe`,
			`C:\Program Files\ffmpeg\bin\ffmpeg.exe`,
		}
	case "darwin":
		commonPaths = []string{
			"/opt/homebrew/bin/ffmpeg",
			"/usr/local/bin/ffmpeg",
		}
	default:
		commonPaths = []string{
			"/usr/bin/ffmpeg",
			"/usr/local/bin/ffmpeg",
			"/snap/bin/ffmpeg",
		}
	}
	for _, p := range commonPaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", ErrFFmpegNotFound
}

// Args builds the ffmpeg argument list for cfg: raw frames on stdin, one
// encoded video file out.
func Args(cfg ports.SinkConfig) []string {
	pixFmt := cfg.PixelFormat
	if pixFmt == "" {
		pixFmt = "bgr24"
	}
	codec := cfg.Codec
	if codec == "" {
		codec = "libx264"
	}
	preset := cfg.Preset
	if preset == "" {
		preset = "veryfast"
	}
	outFmt := cfg.OutputFormat
	if outFmt == "" {
		outFmt = "yuv420p"
	}

	args := []string{
		"-y",
		"-loglevel", "error",
		"-f", "rawvideo",
		"-vcodec", "rawvideo",
		"-pix_fmt", pixFmt,
		"-s", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"-r", strconv.Itoa(cfg.FPS),
		"-i", "-", // stdin
		"-an",
		"-vcodec", codec,
		"-preset", preset,
	}
	if cfg.CRF > 0 {
		args = append(args, "-crf", strconv.Itoa(cfg.CRF))
	}
	args = append(args,
		"-pix_fmt", outFmt,
		cfg.OutputPath,
	)
	return args
}

// Start launches ffmpeg for cfg. The process runs until the returned stream is closed.
func (s *Sink) Start(ctx context.Context, cfg ports.SinkConfig) (ports.EncodingStream, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.FPS <= 0 || cfg.OutputPath == "" {
		return nil, fmt.Errorf("%w: %dx%d @ %d fps -> %q", ErrInvalidConfig, cfg.Width, cfg.Height, cfg.FPS, cfg.OutputPath)
	}

	ffmpegPath := s.ffmpegPath
	if ffmpegPath == "" {
		found, err := FindFFmpeg()
		if err != nil {
			return nil, err
		}
		ffmpegPath = found
	}

	args := Args(cfg)
	s.logger.Debug("Starting %s %v", ffmpegPath, args)

	// Not bound to ctx: an interrupted session still finalizes its file via Close.
	cmd := exec.Command(ffmpegPath, args...)
	stream := &stream{
		cmd:        cmd,
		frameBytes: cfg.Width * cfg.Height * bytesPerPixel(cfg.PixelFormat),
		logger:     s.logger,
	}
	cmd.Stderr = &stream.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("get stdin pipe: %w", err)
	}
	stream.stdin = stdin

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	return stream, nil
}

func bytesPerPixel(pixFmt string) int {
	switch pixFmt {
	case "rgba", "bgra", "argb", "abgr":
		return 4
	case "gray":
		return 1
	default:
		return 3
	}
}

// stream is a running ffmpeg process.
type stream struct {
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	stderr     tailBuffer
	frameBytes int
	logger     ports.Logger

	mu     sync.Mutex
	closed bool
	frames int

	closeOnce sync.Once
	closeErr  error
}

// WriteFrame writes one raw frame to ffmpeg's stdin.
func (s *stream) WriteFrame(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.frameBytes > 0 && len(data) != s.frameBytes {
		return fmt.Errorf("%w: frame is %d bytes, expected %d", ErrInvalidConfig, len(data), s.frameBytes)
	}
	if _, err := s.stdin.Write(data); err != nil {
		return fmt.Errorf("write frame %d: %w (stderr: %s)", s.frames, err, s.stderr.String())
	}
	s.frames++
	return nil
}

// Close closes stdin and waits for ffmpeg to finalize the output file.
func (s *stream) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		frames := s.frames
		s.mu.Unlock()

		s.stdin.Close()
		if err := s.cmd.Wait(); err != nil {
			s.closeErr = fmt.Errorf("ffmpeg exited: %w (stderr: %s)", err, s.stderr.String())
			return
		}
		s.logger.Debug("Encoder finished after %d frames", frames)
	})
	return s.closeErr
}

// tailBuffer keeps the last maxStderr bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, _ := t.buf.Write(p)
	if over := t.buf.Len() - maxStderr; over > 0 {
		t.buf.Next(over)
	}
	return n, nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(bytes.TrimSpace(t.buf.Bytes()))
}

var _ ports.EncodingSink = (*Sink)(nil)
