package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/khaledhikmat/vs-infer/model"
	"github.com/khaledhikmat/vs-infer/service/capture"
	"github.com/khaledhikmat/vs-infer/service/lgr"
	"golang.org/x/xerrors"
)

// CameraSource reads frames synchronously from a live camera.
type CameraSource struct {
	sourceCounters

	mu      sync.Mutex
	svc     capture.IService
	cfg     capture.CameraConfig
	device  capture.Device
	seq     uint64
	stopped bool
}

func NewCameraSource(svc capture.IService, cfg capture.CameraConfig) *CameraSource {
	return &CameraSource{
		svc: svc,
		cfg: cfg,
	}
}

func (s *CameraSource) Mode() model.SourceMode { return model.LiveCamera }

func (s *CameraSource) Name() string {
	return fmt.Sprintf("camera-%d", s.cfg.DeviceID)
}

func (s *CameraSource) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device != nil {
		return nil
	}

	device, err := s.svc.OpenCamera(s.cfg)
	if err != nil {
		return xerrors.Errorf("camera %d: %v: %w", s.cfg.DeviceID, err, model.ErrDeviceUnavailable)
	}

	s.device = device
	s.stopped = false

	w, h := device.Size()
	lgr.Logger.Info("camera started",
		slog.Int("device", s.cfg.DeviceID),
		slog.Int("width", w),
		slog.Int("height", h),
		slog.String("facingMode", s.cfg.FacingMode),
	)
	return nil
}

func (s *CameraSource) CurrentFrame() (*model.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil, model.ErrSourceExhausted
	}
	if s.device == nil {
		return nil, nil
	}

	img, err := s.device.Read()
	if err != nil {
		s.errors.Add(1)
		return nil, xerrors.Errorf("camera %d: %v: %w", s.cfg.DeviceID, err, model.ErrDeviceUnavailable)
	}

	s.seq++
	s.frames.Add(1)
	return model.NewFrame(img, s.seq), nil
}

// Stop releases the camera device. It is idempotent.
func (s *CameraSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	if s.device == nil {
		return nil
	}

	err := s.device.Close()
	s.device = nil

	lgr.Logger.Info("camera stopped", slog.Int("device", s.cfg.DeviceID))
	return err
}
