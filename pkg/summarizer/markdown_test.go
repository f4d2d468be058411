package summarizer

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/user/drivecap/pkg/mocks"
)

func sampleSummary() *Summary {
	return NewBuilder().
		WithSession("3f2c9a4e-0000-4000-8000-000000000001").
		WithSimulator(SimulatorInfo{Kind: "bridge", Host: "127.0.0.1", Port: 2000, TMPort: 8000}).
		WithSettings(Settings{Width: 1280, Height: 720, FPS: 20, DurationSec: 30, FOV: 90, Vehicle: "vehicle.tesla.model3", Preset: "veryfast"}).
		WithRecording(RecordingInfo{Ticks: 600, FramesWritten: 598, SkippedTicks: 2, FramesCaptured: 600, ElapsedMs: 30012}).
		WithVideo(VideoInfo{Path: "carla_drive.mp4", Codec: "h264", FrameCount: 598, DurationMs: 29900, FileSize: 1024 * 1024, Width: 1280, Height: 720}).
		Build()
}

func TestMarkdownFormatter_Format_Basic(t *testing.T) {
	summary := sampleSummary()
	summary.GeneratedAt = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

	result := NewMarkdownFormatter().Format(summary)

	checks := []string{
		"# Recording Summary",
		"2024-01-15 10:30:00 UTC",
		"3f2c9a4e-0000-4000-8000-000000000001",
		"carla_drive.mp4",
		"| Frames written | 598 |",
		"29.9 s at 20 FPS",
		"| Codec | h264 |",
		"1280x720",
		"1.00 MB",
		"| Skipped ticks | 2 |",
		"30.01 s",
		"bridge (127.0.0.1:2000, TM 8000)",
		"vehicle.tesla.model3",
		"veryfast",
	}
	for _, check := range checks {
		if !strings.Contains(result, check) {
			t.Errorf("expected output to contain %q\n%s", check, result)
		}
	}

	if strings.Contains(result, "interrupted") {
		t.Error("did not expect interruption note")
	}
	if strings.Contains(result, "Teardown Warnings") {
		t.Error("did not expect teardown section")
	}
	if strings.Contains(result, "| CRF |") {
		t.Error("did not expect CRF row when unset")
	}
}

func TestMarkdownFormatter_Format_Interrupted(t *testing.T) {
	summary := sampleSummary()
	summary.Recording.Interrupted = true

	result := NewMarkdownFormatter().Format(summary)
	if !strings.Contains(result, "interrupted") {
		t.Error("expected interruption note")
	}
}

func TestMarkdownFormatter_Format_TeardownFailures(t *testing.T) {
	summary := sampleSummary()
	summary.TeardownFailures = []TeardownFailure{{Step: "destroy camera", Error: "rpc timeout"}}

	result := NewMarkdownFormatter().Format(summary)
	if !strings.Contains(result, "## Teardown Warnings") || !strings.Contains(result, "- destroy camera: rpc timeout") {
		t.Errorf("expected teardown warnings, got:\n%s", result)
	}
}

func TestMarkdownFormatter_Format_WithoutProbe(t *testing.T) {
	summary := sampleSummary()
	summary.Video = VideoInfo{Path: "out.mp4"}

	result := NewMarkdownFormatter().Format(summary)
	if strings.Contains(result, "| Codec |") || strings.Contains(result, "| File size |") {
		t.Errorf("expected probe rows omitted, got:\n%s", result)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.00 KB"},
		{3 * 1024 * 1024, "3.00 MB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatMs(t *testing.T) {
	if got := formatMs(250); got != "250 ms" {
		t.Errorf("formatMs(250) = %q", got)
	}
	if got := formatMs(1500); got != "1.50 s" {
		t.Errorf("formatMs(1500) = %q", got)
	}
}

type sessionIDFormatter struct{}

func (sessionIDFormatter) Format(s *Summary) string {
	return "summary " + s.SessionID
}

func TestWriter_Write(t *testing.T) {
	fs := mocks.NewFileSystem()
	w := NewWriter(sessionIDFormatter{}, fs)

	path := filepath.Join("reports", "summary.md")
	if err := w.Write(path, &Summary{SessionID: "x"}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	data, ok := fs.GetFile(path)
	if !ok || string(data) != "summary x" {
		t.Errorf("unexpected file content %q", data)
	}
}

func TestWriter_WriteError(t *testing.T) {
	fs := mocks.NewFileSystem()
	fs.WriteFileFunc = func(path string, data []byte) error { return errors.New("disk full") }

	err := NewWriter(NewMarkdownFormatter(), fs).Write("summary.md", sampleSummary())
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("expected wrapped write error, got %v", err)
	}
}
