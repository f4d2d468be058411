// Package ggrenderer draws synthetic camera images using the gg library
// and converts between raw frame layouts and image.Image.
package ggrenderer

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"

	"github.com/user/drivecap/pkg/ports"
)

// Scene is the state drawn into one image.
type Scene struct {
	Frame    uint64
	Distance float64 // Meters driven; scrolls the lane markings
	Speed    float64 // Meters per second, shown in the HUD
	Heading  float64 // Degrees; sways the horizon
}

var (
	skyTop    = color.RGBA{R: 96, G: 148, B: 214, A: 255}
	skyBottom = color.RGBA{R: 196, G: 220, B: 240, A: 255}
	grass     = color.RGBA{R: 74, G: 122, B: 58, A: 255}
	asphalt   = color.RGBA{R: 58, G: 58, B: 62, A: 255}
	laneMark  = color.RGBA{R: 236, G: 236, B: 220, A: 255}
	hudColor  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	hudShadow = color.RGBA{R: 0, G: 0, B: 0, A: 160}
)

const (
	dashLength = 3.0 // meters
	dashPeriod = 9.0 // meters
)

// Renderer draws road scenes of a fixed size. It reuses its canvas and is
// not safe for concurrent use.
type Renderer struct {
	width  int
	height int
	img    *image.RGBA
	dc     *gg.Context
}

// New creates a new Renderer for width x height images.
func New(width, height int) *Renderer {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	dc := gg.NewContextForRGBA(img)
	dc.SetFontFace(basicfont.Face7x13)
	return &Renderer{width: width, height: height, img: img, dc: dc}
}

// Render draws the scene and returns the canvas. The returned image is
// overwritten by the next call.
func (r *Renderer) Render(s Scene) *image.RGBA {
	w, h := float64(r.width), float64(r.height)
	horizon := h*0.45 + math.Sin(s.Heading*math.Pi/180)*h*0.03

	sky := gg.NewLinearGradient(0, 0, 0, horizon)
	sky.AddColorStop(0, skyTop)
	sky.AddColorStop(1, skyBottom)
	r.dc.SetFillStyle(sky)
	r.dc.DrawRectangle(0, 0, w, horizon)
	r.dc.Fill()

	r.dc.SetColor(grass)
	r.dc.DrawRectangle(0, horizon, w, h-horizon)
	r.dc.Fill()

	// Road as a trapezoid narrowing towards the horizon.
	vanish := w / 2
	r.dc.SetColor(asphalt)
	r.dc.MoveTo(vanish-w*0.02, horizon)
	r.dc.LineTo(vanish+w*0.02, horizon)
	r.dc.LineTo(w*0.95, h)
	r.dc.LineTo(w*0.05, h)
	r.dc.ClosePath()
	r.dc.Fill()

	r.drawLaneMarks(horizon, s.Distance)
	r.drawHUD(s)

	return r.img
}

// drawLaneMarks draws centre dashes with perspective: a point d meters
// ahead of the camera maps to row horizon + (h - horizon) / (1 + d/4).
func (r *Renderer) drawLaneMarks(horizon, distance float64) {
	w, h := float64(r.width), float64(r.height)
	row := func(d float64) float64 { return horizon + (h-horizon)/(1+d/4) }
	offset := math.Mod(distance, dashPeriod)

	r.dc.SetColor(laneMark)
	for d := -offset; d < 120; d += dashPeriod {
		near, far := math.Max(d, 0), d+dashLength
		if far <= 0 {
			continue
		}
		y1, y2 := row(near), row(far)
		half1 := w * 0.006 * (y1 - horizon) / (h - horizon) * 3
		half2 := w * 0.006 * (y2 - horizon) / (h - horizon) * 3
		r.dc.MoveTo(w/2-half1, y1)
		r.dc.LineTo(w/2+half1, y1)
		r.dc.LineTo(w/2+half2, y2)
		r.dc.LineTo(w/2-half2, y2)
		r.dc.ClosePath()
		r.dc.Fill()
	}
}

func (r *Renderer) drawHUD(s Scene) {
	text := fmt.Sprintf("frame %d  %.1f km/h  %.0f m", s.Frame, s.Speed*3.6, s.Distance)
	r.dc.SetColor(hudShadow)
	r.dc.DrawString(text, 11, 21)
	r.dc.SetColor(hudColor)
	r.dc.DrawString(text, 10, 20)
}

// BGRA returns the image pixels as row-major BGRA bytes.
func BGRA(img *image.RGBA) []byte {
	b := img.Bounds()
	out := make([]byte, 0, b.Dx()*b.Dy()*4)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y) : img.PixOffset(b.Min.X, y)+b.Dx()*4]
		for i := 0; i < len(row); i += 4 {
			out = append(out, row[i+2], row[i+1], row[i], row[i+3])
		}
	}
	return out
}

// FrameImage converts a BGR24 frame to an RGBA image.
func FrameImage(f *ports.Frame) (*image.RGBA, error) {
	if f == nil || f.Width <= 0 || f.Height <= 0 || len(f.Data) < f.Width*f.Height*3 {
		return nil, errors.New("ggrenderer: invalid frame")
	}
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for i, j := 0, 0; i < f.Width*f.Height*3; i, j = i+3, j+4 {
		img.Pix[j] = f.Data[i+2]
		img.Pix[j+1] = f.Data[i+1]
		img.Pix[j+2] = f.Data[i]
		img.Pix[j+3] = 0xff
	}
	return img, nil
}

// EncodePNG encodes an image as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}
