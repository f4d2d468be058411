// Package filesink provides a file-based debug sink implementation.
package filesink

import (
	"fmt"
	"path/filepath"

	"github.com/user/drivecap/pkg/adapters/ggrenderer"
	"github.com/user/drivecap/pkg/ports"
)

// Sink saves debug output to files.
type Sink struct {
	baseDir string
	fs      ports.FileSystem
}

// New creates a new FileSink.
func New(baseDir string, fs ports.FileSystem) *Sink {
	return &Sink{
		baseDir: baseDir,
		fs:      fs,
	}
}

// Enabled returns true as this sink saves output.
func (s *Sink) Enabled() bool {
	return true
}

// SaveFrame saves a forwarded frame as PNG.
func (s *Sink) SaveFrame(index int, frame *ports.Frame) error {
	img, err := ggrenderer.FrameImage(frame)
	if err != nil {
		return fmt.Errorf("convert frame %d: %w", index, err)
	}
	data, err := ggrenderer.EncodePNG(img)
	if err != nil {
		return fmt.Errorf("encode frame %d: %w", index, err)
	}

	dir := filepath.Join(s.baseDir, "frames")
	if err := s.fs.MkdirAll(dir); err != nil {
		return err
	}
	path := filepath.Join(dir, fmt.Sprintf("frame-%05d.png", index))
	return s.fs.WriteFile(path, data)
}

// SaveSessionJSON saves the session report as JSON.
func (s *Sink) SaveSessionJSON(data []byte) error {
	path := filepath.Join(s.baseDir, "session.json")
	return s.fs.WriteFile(path, data)
}

// Ensure Sink implements ports.DebugSink
var _ ports.DebugSink = (*Sink)(nil)
