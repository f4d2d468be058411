// Package mp4probe reads back encoded MP4 files to verify the recording.
package mp4probe

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Eyevinn/mp4ff/mp4"

	"github.com/user/drivecap/pkg/ports"
)

// Codec names reported in VideoInfo.Codec.
const (
	CodecH264    = "h264"
	CodecHEVC    = "hevc"
	CodecAV1     = "av1"
	CodecUnknown = "unknown"
)

// ErrNoVideoTrack is returned when the file has no video track.
var ErrNoVideoTrack = errors.New("mp4probe: no video track found")

// Probe implements ports.OutputProbe using mp4ff.
type Probe struct{}

// New creates a new Probe.
func New() *Probe {
	return &Probe{}
}

// Probe inspects the MP4 file at path.
func (p *Probe) Probe(path string) (*ports.VideoInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	return p.ProbeReader(f)
}

// ProbeReader inspects an MP4 stream.
func (p *Probe) ProbeReader(reader io.ReadSeeker) (*ports.VideoInfo, error) {
	mp4File, err := mp4.DecodeFile(reader)
	if err != nil {
		return nil, fmt.Errorf("decode mp4: %w", err)
	}

	moov := mp4File.Moov
	if moov == nil && mp4File.Init != nil {
		moov = mp4File.Init.Moov
	}
	if moov == nil {
		return nil, ErrNoVideoTrack
	}

	for _, trak := range moov.Traks {
		if info, ok := videoInfo(trak); ok {
			if info.FrameCount == 0 {
				addFragments(mp4File, trak, info)
			}
			return info, nil
		}
	}
	return nil, ErrNoVideoTrack
}

func videoInfo(trak *mp4.TrakBox) (*ports.VideoInfo, bool) {
	if trak.Mdia == nil || trak.Mdia.Hdlr == nil || trak.Mdia.Hdlr.HandlerType != "vide" {
		return nil, false
	}
	info := &ports.VideoInfo{Codec: CodecUnknown}

	if mdhd := trak.Mdia.Mdhd; mdhd != nil && mdhd.Timescale > 0 {
		info.DurationMs = int(mdhd.Duration * 1000 / uint64(mdhd.Timescale))
	}

	if trak.Mdia.Minf == nil || trak.Mdia.Minf.Stbl == nil {
		return info, true
	}
	stbl := trak.Mdia.Minf.Stbl

	if stbl.Stsz != nil {
		info.FrameCount = int(stbl.Stsz.SampleNumber)
	}
	if stbl.Stsd != nil {
		for _, child := range stbl.Stsd.Children {
			if info.Codec == CodecUnknown {
				info.Codec = codecName(child.Type())
			}
			if vse, ok := child.(*mp4.VisualSampleEntryBox); ok {
				info.Width = int(vse.Width)
				info.Height = int(vse.Height)
			}
		}
	}
	return info, true
}

// addFragments counts samples and duration from movie fragments.
func addFragments(mp4File *mp4.File, trak *mp4.TrakBox, info *ports.VideoInfo) {
	var timescale uint64
	if trak.Mdia.Mdhd != nil {
		timescale = uint64(trak.Mdia.Mdhd.Timescale)
	}
	trackID := uint32(0)
	if trak.Tkhd != nil {
		trackID = trak.Tkhd.TrackID
	}

	var samples int
	var duration uint64
	for _, seg := range mp4File.Segments {
		for _, frag := range seg.Fragments {
			if frag.Moof == nil {
				continue
			}
			for _, traf := range frag.Moof.Trafs {
				if traf.Tfhd == nil || (trackID != 0 && traf.Tfhd.TrackID != trackID) {
					continue
				}
				for _, trun := range traf.Truns {
					samples += int(trun.SampleCount())
					for _, s := range trun.Samples {
						dur := s.Dur
						if dur == 0 {
							dur = traf.Tfhd.DefaultSampleDuration
						}
						duration += uint64(dur)
					}
				}
			}
		}
	}

	info.FrameCount = samples
	if timescale > 0 && duration > 0 {
		info.DurationMs = int(duration * 1000 / timescale)
	}
}

func codecName(sampleEntry string) string {
	switch sampleEntry {
	case "avc1", "avc3":
		return CodecH264
	case "hvc1", "hev1":
		return CodecHEVC
	case "av01":
		return CodecAV1
	default:
		return CodecUnknown
	}
}

var _ ports.OutputProbe = (*Probe)(nil)
