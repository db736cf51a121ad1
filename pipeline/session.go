package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/khaledhikmat/vs-infer/model"
	"github.com/khaledhikmat/vs-infer/service/capture"
	"github.com/khaledhikmat/vs-infer/service/lgr"
	"go.uber.org/multierr"
	"golang.org/x/xerrors"
)

// Session owns the active frame source and the runner that reads it. It
// replaces shared global state: each session is independent and exactly one
// source mode is active at a time.
type Session struct {
	id      string
	capture capture.IService
	camera  capture.CameraConfig
	runner  *Runner

	mu        sync.Mutex
	source    FrameSource
	switches  int
	startTime time.Time
}

func NewSession(captureSvc capture.IService, camera capture.CameraConfig, opts ...RunnerOption) *Session {
	return &Session{
		id:        uuid.NewString(),
		capture:   captureSvc,
		camera:    camera,
		runner:    NewRunner(opts...),
		startTime: time.Now(),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) Runner() *Runner { return s.runner }

// Source returns the active source, nil before the first Switch.
func (s *Session) Source() FrameSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source
}

// Switch tears down the active source, releasing camera tracks and files,
// and only then builds and starts the source for the requested mode. The
// runner is left Idle; call Run to resume inference.
func (s *Session) Switch(ctx context.Context, mode model.SourceMode, input Input) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.teardown(ctx); err != nil {
		return err
	}

	var next FrameSource
	switch mode {
	case model.LiveCamera:
		next = NewCameraSource(s.capture, s.camera)
	case model.VideoFile:
		next = NewVideoSource(s.capture, input)
	case model.Upload:
		next = NewImageSource(input)
	default:
		return xerrors.Errorf("unsupported source mode %s", mode)
	}

	if err := next.Start(ctx); err != nil {
		// A half-started source may hold resources
		return multierr.Combine(err, next.Stop())
	}

	s.source = next
	s.switches++

	lgr.Logger.Info("session switched source",
		slog.String("session", s.id),
		slog.String("mode", mode.String()),
		slog.String("source", next.Name()),
	)
	return nil
}

// Run starts the runner on the active source.
func (s *Session) Run(ctx context.Context, infer InferFunc, onResult ResultFunc, onError ErrorFunc) error {
	s.mu.Lock()
	src := s.source
	s.mu.Unlock()

	if src == nil {
		return model.ErrNoSource
	}
	return s.runner.Start(ctx, src, infer, onResult, onError)
}

// Stop halts the runner without releasing the source.
func (s *Session) Stop(ctx context.Context) error {
	return s.runner.StopAndWait(ctx)
}

// Close stops the runner and releases the active source.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.teardown(ctx)
}

func (s *Session) Stats() model.SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	mode := ""
	if s.source != nil {
		mode = s.source.Mode().String()
	}
	return model.SessionStats{
		ID:        s.id,
		Mode:      mode,
		Switches:  s.switches,
		Uptime:    int64(time.Since(s.startTime).Seconds()),
		Timestamp: time.Now().Unix(),
	}
}

// teardown must be called with s.mu held. The source is released even when
// the runner did not stop in time.
func (s *Session) teardown(ctx context.Context) error {
	var waitErr error
	if err := s.runner.StopAndWait(ctx); err != nil {
		waitErr = xerrors.Errorf("error waiting for runner to stop: %w", err)
	}

	if s.source == nil {
		return waitErr
	}

	prev := s.source
	s.source = nil
	if err := prev.Stop(); err != nil {
		return multierr.Combine(waitErr, xerrors.Errorf("error releasing %s: %w", prev.Name(), err))
	}
	return waitErr
}
