package render

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/khaledhikmat/vs-infer/model"
	"golang.org/x/xerrors"
)

// MinKeypointConfidence is the score a keypoint needs to be drawn.
const MinKeypointConfidence = 0.5

var (
	boxColor      = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	keypointColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}
)

type OverlayOption func(*Overlay)

// WithAllowedLabels restricts boxes to the given labels. No labels means
// everything is drawn.
func WithAllowedLabels(labels ...string) OverlayOption {
	return func(o *Overlay) {
		for _, l := range labels {
			l = strings.ToLower(strings.TrimSpace(l))
			if l != "" {
				o.allowed[l] = true
			}
		}
	}
}

// WithMaxWidth downscales annotated frames wider than w.
func WithMaxWidth(w int) OverlayOption {
	return func(o *Overlay) {
		o.maxWidth = w
	}
}

// Overlay draws predictions on top of a frame: boxes with labels and pose
// keypoints. It keeps the latest annotated image.
type Overlay struct {
	allowed  map[string]bool
	maxWidth int
	fontPath string
	fontSize float64

	mu     sync.Mutex
	latest image.Image
}

func NewOverlay(opts ...OverlayOption) *Overlay {
	o := &Overlay{
		allowed: map[string]bool{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// LoadFont replaces the built-in bitmap face with a TrueType font.
func (o *Overlay) LoadFont(path string, points float64) error {
	// Fail early instead of on the first frame
	if _, err := gg.LoadFontFace(path, points); err != nil {
		return xerrors.Errorf("error loading font %s: %w", path, err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.fontPath = path
	o.fontSize = points
	return nil
}

// BoxLabel formats a detection label as "<label> <pct>%".
func BoxLabel(p model.Prediction) string {
	return fmt.Sprintf("%s %d%%", p.Label, int(math.Round(p.Confidence*100)))
}

// LabelPosition returns where a box label is drawn: just above the box, or
// pinned to y=10 when the box touches the top edge.
func LabelPosition(box image.Rectangle) (float64, float64) {
	y := 10.0
	if box.Min.Y > 10 {
		y = float64(box.Min.Y - 5)
	}
	return float64(box.Min.X), y
}

func (o *Overlay) allows(label string) bool {
	if len(o.allowed) == 0 {
		return true
	}
	return o.allowed[strings.ToLower(label)]
}

// Draw renders preds over frame and returns the annotated image. The frame
// itself is not modified.
func (o *Overlay) Draw(frame *model.Frame, preds []model.Prediction) (image.Image, error) {
	if frame == nil || frame.Image == nil {
		return nil, xerrors.New("nothing to draw on")
	}

	o.mu.Lock()
	fontPath, fontSize := o.fontPath, o.fontSize
	o.mu.Unlock()

	b := frame.Image.Bounds()
	dc := gg.NewContext(b.Dx(), b.Dy())
	dc.DrawImage(frame.Image, -b.Min.X, -b.Min.Y)

	if fontPath != "" {
		if err := dc.LoadFontFace(fontPath, fontSize); err != nil {
			return nil, xerrors.Errorf("error loading font %s: %w", fontPath, err)
		}
	}

	for _, p := range preds {
		if !o.allows(p.Label) {
			continue
		}

		if p.Box != nil {
			box := *p.Box
			dc.SetColor(boxColor)
			dc.SetLineWidth(2)
			dc.DrawRectangle(float64(box.Min.X), float64(box.Min.Y), float64(box.Dx()), float64(box.Dy()))
			dc.Stroke()

			x, y := LabelPosition(box)
			dc.DrawString(BoxLabel(p), x, y)
		}

		dc.SetColor(keypointColor)
		for _, kp := range p.Keypoints {
			if kp.Confidence <= MinKeypointConfidence {
				continue
			}
			dc.DrawCircle(kp.X, kp.Y, 5)
			dc.Fill()
		}
	}

	var out image.Image = dc.Image()
	if o.maxWidth > 0 && b.Dx() > o.maxWidth {
		out = imaging.Resize(out, o.maxWidth, 0, imaging.Lanczos)
	}

	o.mu.Lock()
	o.latest = out
	o.mu.Unlock()

	return out, nil
}

// Latest returns the last annotated image, nil before the first Draw.
func (o *Overlay) Latest() image.Image {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.latest
}

// WritePNG saves the latest annotated image.
func (o *Overlay) WritePNG(path string) error {
	img := o.Latest()
	if img == nil {
		return xerrors.New("no annotated frame yet")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return xerrors.Errorf("error creating %s: %w", filepath.Dir(path), err)
	}

	if err := gg.SavePNG(path, img); err != nil {
		return xerrors.Errorf("error saving %s: %w", path, err)
	}
	return nil
}
