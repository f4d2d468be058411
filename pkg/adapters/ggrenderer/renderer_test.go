package ggrenderer

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/user/drivecap/pkg/ports"
)

func TestRenderer_Render(t *testing.T) {
	r := New(160, 90)

	img := r.Render(Scene{Frame: 1, Distance: 0, Speed: 10})
	if img.Bounds().Dx() != 160 || img.Bounds().Dy() != 90 {
		t.Fatalf("expected 160x90, got %v", img.Bounds())
	}

	// Top row is sky, bottom centre is road.
	sky := img.RGBAAt(80, 0)
	if sky.B <= sky.R {
		t.Errorf("expected bluish sky, got %v", sky)
	}
	road := img.RGBAAt(30, 89)
	if road != asphalt {
		t.Errorf("expected asphalt at bottom, got %v", road)
	}
}

func TestRenderer_RenderChangesWithDistance(t *testing.T) {
	r := New(160, 90)

	first := append([]byte(nil), r.Render(Scene{Frame: 1, Distance: 0}).Pix...)
	second := r.Render(Scene{Frame: 1, Distance: 4.5}).Pix

	if bytes.Equal(first, second) {
		t.Error("expected lane markings to move with distance")
	}
}

func TestBGRA(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.SetRGBA(0, 0, color.RGBA{R: 1, G: 2, B: 3, A: 255})
	img.SetRGBA(1, 0, color.RGBA{R: 4, G: 5, B: 6, A: 255})

	got := BGRA(img)
	want := []byte{3, 2, 1, 255, 6, 5, 4, 255}
	if !bytes.Equal(got, want) {
		t.Errorf("BGRA() = %v, want %v", got, want)
	}
}

func TestFrameImage(t *testing.T) {
	f := &ports.Frame{Width: 2, Height: 1, Data: []byte{3, 2, 1, 6, 5, 4}}

	img, err := FrameImage(f)
	if err != nil {
		t.Fatalf("FrameImage failed: %v", err)
	}
	if c := img.RGBAAt(1, 0); c != (color.RGBA{R: 4, G: 5, B: 6, A: 255}) {
		t.Errorf("unexpected pixel %v", c)
	}

	if _, err := FrameImage(&ports.Frame{Width: 2, Height: 2, Data: []byte{1}}); err == nil {
		t.Error("expected error for short frame")
	}
}

func TestEncodePNG(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 50, 50))
	data, err := EncodePNG(img)
	if err != nil {
		t.Fatalf("EncodePNG failed: %v", err)
	}

	decoded, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.Bounds().Dx() != 50 || decoded.Bounds().Dy() != 50 {
		t.Errorf("expected 50x50, got %v", decoded.Bounds())
	}
}
