package opencv

import (
	"fmt"
	"image"
	"sync"

	"github.com/khaledhikmat/vs-infer/service/capture"
	"gocv.io/x/gocv"
	"golang.org/x/xerrors"
)

type captureService struct {
}

// NewCapture opens cameras and video files through OpenCV.
func NewCapture() capture.IService {
	return &captureService{}
}

func (svc *captureService) OpenCamera(cfg capture.CameraConfig) (capture.Device, error) {
	webcam, err := gocv.OpenVideoCapture(cfg.DeviceID)
	if err != nil {
		return nil, xerrors.Errorf("error opening camera %d: %w", cfg.DeviceID, err)
	}

	if !webcam.IsOpened() {
		webcam.Close()
		return nil, xerrors.Errorf("camera %d is not available", cfg.DeviceID)
	}

	// Resolution is a request, the driver may pick the closest supported mode
	if cfg.Width > 0 && cfg.Height > 0 {
		webcam.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
		webcam.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}

	return &gocvDevice{
		name: fmt.Sprintf("camera-%d", cfg.DeviceID),
		cap:  webcam,
		live: true,
	}, nil
}

func (svc *captureService) OpenVideo(path string) (capture.Device, error) {
	video, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, xerrors.Errorf("error opening video %s: %w", path, err)
	}

	if !video.IsOpened() {
		video.Close()
		return nil, xerrors.Errorf("video %s could not be decoded", path)
	}

	return &gocvDevice{
		name: path,
		cap:  video,
	}, nil
}

type gocvDevice struct {
	mu     sync.Mutex
	name   string
	cap    *gocv.VideoCapture
	live   bool
	closed bool
}

func (d *gocvDevice) Read() (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, capture.ErrEndOfStream
	}

	img := gocv.NewMat()
	defer img.Close() // Crucial to close the image to avoid memory leaks

	if ok := d.cap.Read(&img); !ok || img.Empty() {
		if d.live {
			return nil, xerrors.Errorf("error reading frame from %s", d.name)
		}
		return nil, capture.ErrEndOfStream
	}

	return img.ToImage()
}

func (d *gocvDevice) Size() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, 0
	}
	return int(d.cap.Get(gocv.VideoCaptureFrameWidth)), int(d.cap.Get(gocv.VideoCaptureFrameHeight))
}

func (d *gocvDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	return d.cap.Close()
}
