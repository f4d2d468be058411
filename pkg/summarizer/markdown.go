package summarizer

import (
	"fmt"
	"strings"
)

// MarkdownFormatter renders a Summary as a Markdown report.
type MarkdownFormatter struct{}

// NewMarkdownFormatter creates a new MarkdownFormatter.
func NewMarkdownFormatter() *MarkdownFormatter {
	return &MarkdownFormatter{}
}

// Format implements the Formatter interface.
func (f *MarkdownFormatter) Format(s *Summary) string {
	var b strings.Builder

	b.WriteString("# Recording Summary\n\n")
	fmt.Fprintf(&b, "Generated: %s\n", s.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	if s.SessionID != "" {
		fmt.Fprintf(&b, "Session: `%s`\n", s.SessionID)
	}
	b.WriteString("\n")

	if s.Recording.Interrupted {
		b.WriteString("> **Note:** Recording was interrupted before the configured duration elapsed.\n\n")
	}

	b.WriteString("## Output\n\n")
	b.WriteString("| Item | Value |\n|------|-------|\n")
	fmt.Fprintf(&b, "| File | %s |\n", s.Video.Path)
	fmt.Fprintf(&b, "| Frames written | %d |\n", s.Recording.FramesWritten)
	fmt.Fprintf(&b, "| Length | %.1f s at %d FPS |\n", s.RecordedSeconds(), s.Settings.FPS)
	if s.Video.Codec != "" {
		fmt.Fprintf(&b, "| Codec | %s |\n", s.Video.Codec)
		fmt.Fprintf(&b, "| Container frames | %d |\n", s.Video.FrameCount)
		fmt.Fprintf(&b, "| Container duration | %s |\n", formatMs(s.Video.DurationMs))
	}
	if s.Video.Width > 0 {
		fmt.Fprintf(&b, "| Resolution | %dx%d |\n", s.Video.Width, s.Video.Height)
	}
	if s.Video.FileSize > 0 {
		fmt.Fprintf(&b, "| File size | %s |\n", formatBytes(s.Video.FileSize))
	}
	b.WriteString("\n")

	b.WriteString("## Stepping\n\n")
	b.WriteString("| Counter | Value |\n|---------|-------|\n")
	fmt.Fprintf(&b, "| Ticks | %d |\n", s.Recording.Ticks)
	fmt.Fprintf(&b, "| Skipped ticks | %d |\n", s.Recording.SkippedTicks)
	fmt.Fprintf(&b, "| Images captured | %d |\n", s.Recording.FramesCaptured)
	fmt.Fprintf(&b, "| Images rejected | %d |\n", s.Recording.FramesRejected)
	fmt.Fprintf(&b, "| Images superseded | %d |\n", s.Recording.FramesDropped)
	fmt.Fprintf(&b, "| Wall clock | %s |\n", formatMs(s.Recording.ElapsedMs))
	b.WriteString("\n")

	b.WriteString("## Settings\n\n")
	b.WriteString("| Setting | Value |\n|---------|-------|\n")
	fmt.Fprintf(&b, "| Simulator | %s (%s:%d, TM %d) |\n", s.Simulator.Kind, s.Simulator.Host, s.Simulator.Port, s.Simulator.TMPort)
	fmt.Fprintf(&b, "| Camera | %dx%d, FOV %g |\n", s.Settings.Width, s.Settings.Height, s.Settings.FOV)
	fmt.Fprintf(&b, "| Duration | %g s |\n", s.Settings.DurationSec)
	if s.Settings.Vehicle != "" {
		fmt.Fprintf(&b, "| Vehicle | %s |\n", s.Settings.Vehicle)
	}
	if s.Settings.Preset != "" {
		fmt.Fprintf(&b, "| Preset | %s |\n", s.Settings.Preset)
	}
	if s.Settings.CRF > 0 {
		fmt.Fprintf(&b, "| CRF | %d |\n", s.Settings.CRF)
	}

	if len(s.TeardownFailures) > 0 {
		b.WriteString("\n## Teardown Warnings\n\n")
		for _, f := range s.TeardownFailures {
			fmt.Fprintf(&b, "- %s: %s\n", f.Step, f.Error)
		}
	}

	return b.String()
}

func formatMs(ms int) string {
	if ms < 1000 {
		return fmt.Sprintf("%d ms", ms)
	}
	return fmt.Sprintf("%.2f s", float64(ms)/1000)
}

func formatBytes(n int64) string {
	switch {
	case n >= 1024*1024:
		return fmt.Sprintf("%.2f MB", float64(n)/(1024*1024))
	case n >= 1024:
		return fmt.Sprintf("%.2f KB", float64(n)/1024)
	default:
		return fmt.Sprintf("%d B", n)
	}
}

var _ Formatter = (*MarkdownFormatter)(nil)
