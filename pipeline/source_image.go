package pipeline

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/khaledhikmat/vs-infer/model"
	"golang.org/x/xerrors"
)

// ImageSource yields one decoded still image, the same *Frame on every call.
type ImageSource struct {
	sourceCounters

	mu    sync.Mutex
	input Input
	frame *model.Frame
}

func NewImageSource(input Input) *ImageSource {
	return &ImageSource{
		input: input,
	}
}

func (s *ImageSource) Mode() model.SourceMode { return model.Upload }

func (s *ImageSource) Name() string {
	if s.input.Path != "" {
		return filepath.Base(s.input.Path)
	}
	return "uploaded-image"
}

func (s *ImageSource) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.frame != nil {
		return nil
	}

	var err error
	var frame *model.Frame
	switch {
	case s.input.Blob != nil:
		img, decErr := imaging.Decode(s.input.Blob, imaging.AutoOrientation(true))
		if decErr == nil {
			frame = model.NewFrame(img, 1)
		}
		err = decErr
	case s.input.Path != "":
		// imaging.Open closes the file once decoded
		img, decErr := imaging.Open(s.input.Path, imaging.AutoOrientation(true))
		if decErr == nil {
			frame = model.NewFrame(img, 1)
		}
		err = decErr
	default:
		err = xerrors.New("image source has neither a path nor a blob")
	}

	if err != nil {
		s.errors.Add(1)
		return xerrors.Errorf("error processing image %s: %w", s.Name(), err)
	}

	s.frame = frame
	s.frames.Add(1)
	return nil
}

func (s *ImageSource) CurrentFrame() (*model.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame, nil
}

// Stop keeps the decoded frame; there is nothing to release.
func (s *ImageSource) Stop() error {
	return nil
}
