package capture

import (
	"bytes"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/user/drivecap/pkg/adapters/logger"
	"github.com/user/drivecap/pkg/framebuffer"
	"github.com/user/drivecap/pkg/metrics"
	"github.com/user/drivecap/pkg/ports"
)

func bgra(width, height int) []byte {
	data := make([]byte, width*height*4)
	for p := 0; p < width*height; p++ {
		data[p*4] = byte(p)       // B
		data[p*4+1] = byte(p + 1) // G
		data[p*4+2] = byte(p + 2) // R
		data[p*4+3] = 0xFF        // A
	}
	return data
}

func TestDropAlpha(t *testing.T) {
	src := []byte{
		1, 2, 3, 255,
		4, 5, 6, 255,
		7, 8, 9, 0,
	}
	want := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9}

	got := DropAlpha(src)
	if !bytes.Equal(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestAdapter_OnImage(t *testing.T) {
	buf := framebuffer.New()
	a := New(buf, 4, 2, logger.NewNoop(), nil)

	raw := bgra(4, 2)
	a.OnImage(ports.RawImage{Frame: 42, Width: 4, Height: 2, Data: raw})

	f, ok := buf.TakeLatest()
	if !ok {
		t.Fatal("expected frame in buffer")
	}
	if f.Width != 4 || f.Height != 2 || f.Seq != 42 {
		t.Errorf("unexpected frame header %+v", f)
	}
	if len(f.Data) != 4*2*3 {
		t.Fatalf("expected %d bytes, got %d", 4*2*3, len(f.Data))
	}
	for p := 0; p < 8; p++ {
		if f.Data[p*3] != raw[p*4] || f.Data[p*3+1] != raw[p*4+1] || f.Data[p*3+2] != raw[p*4+2] {
			t.Fatalf("pixel %d mismatch", p)
		}
	}

	// Mutating the source after delivery must not affect the frame
	raw[0] = 0xAA
	if f.Data[0] == 0xAA {
		t.Error("frame shares memory with the raw image")
	}

	if a.Captured() != 1 || a.Rejected() != 0 {
		t.Errorf("unexpected counters captured=%d rejected=%d", a.Captured(), a.Rejected())
	}
}

func TestAdapter_RejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		img  ports.RawImage
	}{
		{"zero width", ports.RawImage{Width: 0, Height: 2, Data: bgra(4, 2)}},
		{"short buffer", ports.RawImage{Width: 4, Height: 2, Data: bgra(4, 1)}},
		{"wrong size", ports.RawImage{Width: 2, Height: 2, Data: bgra(2, 2)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := framebuffer.New()
			reg := prometheus.NewRegistry()
			m, err := metrics.New(reg)
			if err != nil {
				t.Fatalf("metrics: %v", err)
			}
			a := New(buf, 4, 2, logger.NewNoop(), m)

			a.OnImage(tt.img)

			if _, ok := buf.TakeLatest(); ok {
				t.Error("expected no frame for malformed image")
			}
			if a.Rejected() != 1 {
				t.Errorf("expected 1 rejected, got %d", a.Rejected())
			}
			if got := testutil.ToFloat64(m.FramesRejected); got != 1 {
				t.Errorf("expected rejected metric 1, got %v", got)
			}
		})
	}
}

func TestAdapter_AnySizeWhenUnconstrained(t *testing.T) {
	buf := framebuffer.New()
	a := New(buf, 0, 0, logger.NewNoop(), nil)

	a.OnImage(ports.RawImage{Width: 3, Height: 3, Data: bgra(3, 3)})

	if _, ok := buf.TakeLatest(); !ok {
		t.Error("expected frame to be accepted")
	}
}

func TestAdapter_CountsDrops(t *testing.T) {
	buf := framebuffer.New()
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	a := New(buf, 2, 2, logger.NewNoop(), m)

	for i := 0; i < 3; i++ {
		a.OnImage(ports.RawImage{Frame: uint64(i), Width: 2, Height: 2, Data: bgra(2, 2)})
	}

	if got := testutil.ToFloat64(m.FramesDropped); got != 2 {
		t.Errorf("expected 2 dropped, got %v", got)
	}
	f, _ := buf.TakeLatest()
	if f.Seq != 2 {
		t.Errorf("expected latest seq 2, got %d", f.Seq)
	}
}
