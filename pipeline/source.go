package pipeline

import (
	"context"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/khaledhikmat/vs-infer/model"
	"golang.org/x/xerrors"
)

// FrameSource abstracts where frames come from. CurrentFrame returns
// (nil, nil) while no frame is available yet and model.ErrSourceExhausted
// once the source can never produce again.
type FrameSource interface {
	Start(ctx context.Context) error
	CurrentFrame() (*model.Frame, error)
	Stop() error
	Mode() model.SourceMode
	Name() string
	Stats() SourceStats
}

type SourceStats struct {
	Frames int
	Errors int
}

// Input describes what a source mode should be built from: a file path or an
// uploaded blob.
type Input struct {
	Path string
	Blob io.Reader
}

type sourceCounters struct {
	frames atomic.Int64
	errors atomic.Int64
}

func (c *sourceCounters) Stats() SourceStats {
	return SourceStats{
		Frames: int(c.frames.Load()),
		Errors: int(c.errors.Load()),
	}
}

// stageBlob copies an uploaded blob into a temporary file so that path based
// decoders can open it. The returned release func removes the file and is
// safe to call more than once.
func stageBlob(blob io.Reader, pattern string) (string, func(), error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", func() {}, xerrors.Errorf("error staging upload: %w", err)
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			os.Remove(f.Name())
		})
	}

	if _, err := io.Copy(f, blob); err != nil {
		f.Close()
		release()
		return "", func() {}, xerrors.Errorf("error staging upload: %w", err)
	}

	if err := f.Close(); err != nil {
		release()
		return "", func() {}, xerrors.Errorf("error staging upload: %w", err)
	}

	return f.Name(), release, nil
}
