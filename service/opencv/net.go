package opencv

import (
	"image"
	"sync"

	"github.com/khaledhikmat/vs-infer/model"
	"gocv.io/x/gocv"
	"golang.org/x/xerrors"
)

// dnn wraps a gocv.Net. Nets are not thread-safe, every forward pass holds mu.
type dnn struct {
	mu  sync.Mutex
	net gocv.Net
}

func loadNet(modelPath, configPath string) (*dnn, error) {
	net := gocv.ReadNet(modelPath, configPath)
	if net.Empty() {
		return nil, xerrors.Errorf("error reading model %s: %w", modelPath, model.ErrModelLoadFailure)
	}

	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return nil, xerrors.Errorf("error setting backend: %w", model.ErrModelLoadFailure)
	}

	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, xerrors.Errorf("error setting target: %w", model.ErrModelLoadFailure)
	}

	return &dnn{net: net}, nil
}

// forward runs the net on a blob built from the frame. The caller owns the
// returned Mat.
func (d *dnn) forward(frame *model.Frame, scale float64, size image.Point, mean gocv.Scalar, swapRB bool) (gocv.Mat, error) {
	if frame == nil || frame.Image == nil {
		return gocv.NewMat(), xerrors.New("empty frame")
	}

	img, err := gocv.ImageToMatRGB(frame.Image)
	if err != nil {
		return gocv.NewMat(), xerrors.Errorf("error converting frame: %w", err)
	}
	defer img.Close()

	if img.Empty() {
		return gocv.NewMat(), xerrors.New("skipping empty frame due to decode error")
	}

	blob := gocv.BlobFromImage(img, scale, size, mean, swapRB, false)
	defer blob.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.net.SetInput(blob, "")
	return d.net.Forward(""), nil
}

func (d *dnn) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}
