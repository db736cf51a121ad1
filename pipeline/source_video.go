package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/khaledhikmat/vs-infer/model"
	"github.com/khaledhikmat/vs-infer/service/capture"
	"github.com/khaledhikmat/vs-infer/service/lgr"
	"golang.org/x/xerrors"
)

// VideoSource decodes a video file frame by frame. End of file exhausts the
// source.
type VideoSource struct {
	sourceCounters

	mu        sync.Mutex
	svc       capture.IService
	input     Input
	device    capture.Device
	seq       uint64
	exhausted bool
}

func NewVideoSource(svc capture.IService, input Input) *VideoSource {
	return &VideoSource{
		svc:   svc,
		input: input,
	}
}

func (s *VideoSource) Mode() model.SourceMode { return model.VideoFile }

func (s *VideoSource) Name() string {
	if s.input.Path != "" {
		return filepath.Base(s.input.Path)
	}
	return "uploaded-video"
}

func (s *VideoSource) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device != nil {
		return nil
	}

	path := s.input.Path
	if s.input.Blob != nil {
		staged, release, err := stageBlob(s.input.Blob, "vs-video-*")
		if err != nil {
			return err
		}
		// The staged file is only needed while the decoder opens it
		defer release()
		path = staged
	}

	if path == "" {
		return xerrors.New("video source has neither a path nor a blob")
	}

	device, err := s.svc.OpenVideo(path)
	if err != nil {
		return xerrors.Errorf("error loading video %s: %w", s.Name(), err)
	}

	s.device = device
	s.exhausted = false

	lgr.Logger.Info("video loaded", slog.String("video", s.Name()))
	return nil
}

func (s *VideoSource) CurrentFrame() (*model.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.exhausted {
		return nil, model.ErrSourceExhausted
	}
	if s.device == nil {
		return nil, nil
	}

	img, err := s.device.Read()
	if errors.Is(err, capture.ErrEndOfStream) {
		s.exhausted = true
		return nil, model.ErrSourceExhausted
	}
	if err != nil {
		s.errors.Add(1)
		return nil, xerrors.Errorf("error decoding %s: %w", s.Name(), err)
	}

	s.seq++
	s.frames.Add(1)
	return model.NewFrame(img, s.seq), nil
}

func (s *VideoSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.exhausted = true
	if s.device == nil {
		return nil
	}

	err := s.device.Close()
	s.device = nil
	return err
}
