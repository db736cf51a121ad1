package capture

import (
	"image"

	"golang.org/x/xerrors"
)

// ErrEndOfStream is returned by Device.Read once a file-backed device has no
// more frames.
var ErrEndOfStream = xerrors.New("end of stream")

type CameraConfig struct {
	DeviceID   int
	Width      int
	Height     int
	FacingMode string
}

// Device is an acquired capture handle. Close releases all of its tracks.
type Device interface {
	Read() (image.Image, error)
	Size() (int, int)
	Close() error
}

type IService interface {
	OpenCamera(cfg CameraConfig) (Device, error)
	OpenVideo(path string) (Device, error)
}
