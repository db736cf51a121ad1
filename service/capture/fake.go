package capture

import (
	"image"
	"image/color"
	"sync"
)

type fakeService struct {
	width  int
	height int
	frames int
}

// NewFake returns a capture service producing synthetic frames. Cameras never
// end; videos end after the given number of frames.
func NewFake(width, height, videoFrames int) IService {
	return &fakeService{
		width:  width,
		height: height,
		frames: videoFrames,
	}
}

func (svc *fakeService) OpenCamera(cfg CameraConfig) (Device, error) {
	w, h := svc.width, svc.height
	if cfg.Width > 0 && cfg.Height > 0 {
		w, h = cfg.Width, cfg.Height
	}
	return &fakeDevice{width: w, height: h, limit: -1}, nil
}

func (svc *fakeService) OpenVideo(_ string) (Device, error) {
	return &fakeDevice{width: svc.width, height: svc.height, limit: svc.frames}, nil
}

type fakeDevice struct {
	mu     sync.Mutex
	width  int
	height int
	limit  int
	read   int
	closed bool
}

func (d *fakeDevice) Read() (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed || (d.limit >= 0 && d.read >= d.limit) {
		return nil, ErrEndOfStream
	}
	d.read++

	img := image.NewRGBA(image.Rect(0, 0, d.width, d.height))
	shade := uint8(d.read % 256)
	for y := 0; y < d.height; y++ {
		for x := 0; x < d.width; x++ {
			img.SetRGBA(x, y, color.RGBA{R: shade, G: uint8(x % 256), B: uint8(y % 256), A: 255})
		}
	}
	return img, nil
}

func (d *fakeDevice) Size() (int, int) {
	return d.width, d.height
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}
