package mode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/khaledhikmat/vs-infer/model"
	"github.com/khaledhikmat/vs-infer/pipeline"
	"github.com/khaledhikmat/vs-infer/render"
	"github.com/khaledhikmat/vs-infer/service/capture"
	"github.com/khaledhikmat/vs-infer/service/lgr"
	"go.opentelemetry.io/otel"
)

// loop wires one model into a session and drives it until the context is
// cancelled, the runner stops on its own or a still image was processed.
type loop struct {
	name     string
	policy   model.ErrorPolicy
	status   *render.Status
	infer    pipeline.InferFunc
	onResult pipeline.ResultFunc
	cleanup  func()
}

func (l loop) proc() string {
	return "mode_" + l.name
}

func (l loop) run(canxCtx context.Context, svcs ServicesFactory, req Request) error {
	// Create error and stats streams
	errorStream := make(chan interface{}, 100)
	statsStream := make(chan interface{}, 10)

	if l.cleanup != nil {
		defer l.cleanup()
	}

	shutdownTime := time.Duration(svcs.CfgSvc.GetModeMaxShutdownTime()) * time.Second

	camParams := svcs.CfgSvc.GetCameraParameters(l.name)
	if req.DeviceID >= 0 {
		camParams.DeviceID = req.DeviceID
	}

	session := pipeline.NewSession(svcs.CaptureSvc, capture.CameraConfig{
		DeviceID:   camParams.DeviceID,
		Width:      camParams.Width,
		Height:     camParams.Height,
		FacingMode: camParams.FacingMode,
	},
		pipeline.WithName(l.name),
		pipeline.WithScheduler(pipeline.NewFPSScheduler(svcs.CfgSvc.GetLoopFPS())),
		pipeline.WithErrorPolicy(l.policy),
		pipeline.WithTracer(otel.Tracer("github.com/khaledhikmat/vs-infer/mode")),
		pipeline.WithStats(func(stats model.RunnerStats) {
			statsStream <- stats
		}),
	)

	misc := map[string]interface{}{
		"session": session.ID(),
		"source":  req.Source.String(),
		"input":   req.Input.Path,
	}

	l.status.Update(startingMessage(req.Source))
	if err := session.Switch(canxCtx, req.Source, req.Input); err != nil {
		l.status.Error(err)
		procError(svcs.DataSvc, model.GenError(l.proc(), err, misc, "error switching to %s", req.Source))
		return err
	}
	l.status.Update(activeMessage(req.Source))

	// A still image is inferred once, there is nothing to wait for after that
	finished := make(chan struct{})
	var once sync.Once
	settle := func() {
		if req.Source == model.Upload {
			once.Do(func() { close(finished) })
		}
	}

	var mu sync.Mutex
	var lastErr error
	onError := func(err error) {
		mu.Lock()
		lastErr = err
		mu.Unlock()

		l.status.Error(err)
		if errors.Is(err, model.ErrSourceExhausted) {
			return
		}

		// Never block the loop on a slow consumer
		select {
		case errorStream <- model.GenError(l.proc(), err, misc, "runner error"):
		default:
			lgr.Logger.Warn("errorStream full, dropping error", slog.Any("error", err))
		}
		settle()
	}

	onResult := func(frame *model.Frame, preds []model.Prediction) {
		l.onResult(frame, preds)
		settle()
	}

	failure := func() error {
		mu.Lock()
		defer mu.Unlock()
		if lastErr != nil && !errors.Is(lastErr, model.ErrSourceExhausted) {
			return lastErr
		}
		return nil
	}

	var haltErr error
	var done <-chan struct{}

	if err := session.Run(canxCtx, l.infer, onResult, onError); err != nil {
		procError(svcs.DataSvc, model.GenError(l.proc(), err, misc, "error starting runner"))
		haltErr = err
		goto resume
	}
	done = session.Runner().Done()

	// Wait for cancellation, loop end, stats or error
	for {
		select {
		case <-canxCtx.Done():
			lgr.Logger.Info(
				"mode context cancelled",
				slog.String("mode", l.name),
			)
			goto resume

		case <-finished:
			haltErr = failure()
			goto resume

		case <-done:
			haltErr = failure()
			lgr.Logger.Info(
				"mode runner stopped",
				slog.String("mode", l.name),
				slog.Any("error", haltErr),
			)
			goto resume

		case e := <-errorStream:
			procError(svcs.DataSvc, e)

		case s := <-statsStream:
			procStats(svcs.DataSvc, s)
		}
	}

	// Stop the runner and release the source within the shutdown time, then
	// flush whatever the loop reported on its way out
resume:
	lgr.Logger.Info(
		"mode is releasing its session",
		slog.String("mode", l.name),
		slog.Duration("period", shutdownTime),
	)

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTime)
	defer cancel()

	if err := session.Close(closeCtx); err != nil {
		procError(svcs.DataSvc, model.GenError(l.proc(), err, misc, "error closing session"))
	}
	procStats(svcs.DataSvc, session.Stats())

	for {
		select {
		case e := <-errorStream:
			procError(svcs.DataSvc, e)
		case s := <-statsStream:
			procStats(svcs.DataSvc, s)
		default:
			return haltErr
		}
	}
}

func startingMessage(mode model.SourceMode) string {
	switch mode {
	case model.LiveCamera:
		return "Starting camera..."
	case model.VideoFile:
		return "Loading video..."
	}
	return "Loading image..."
}

func activeMessage(mode model.SourceMode) string {
	switch mode {
	case model.LiveCamera:
		return "Camera active"
	case model.VideoFile:
		return "Video loaded"
	}
	return "Image loaded"
}

func sourceName(req Request) string {
	if req.Input.Path != "" {
		return filepath.Base(req.Input.Path)
	}
	if req.Source == model.LiveCamera {
		if req.DeviceID < 0 {
			return "camera"
		}
		return fmt.Sprintf("camera-%d", req.DeviceID)
	}
	return "upload"
}

func topLabel(preds []model.Prediction) string {
	if len(preds) == 0 {
		return ""
	}
	return preds[0].Label
}
