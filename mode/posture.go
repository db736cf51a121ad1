package mode

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/khaledhikmat/vs-infer/model"
	"github.com/khaledhikmat/vs-infer/posture"
	"github.com/khaledhikmat/vs-infer/render"
	"github.com/khaledhikmat/vs-infer/service/config"
	"github.com/khaledhikmat/vs-infer/service/lgr"
)

// Posture estimates body keypoints, draws them and prints posture feedback.
func Posture(canxCtx context.Context, svcs ServicesFactory, req Request) error {
	status := render.NewStatus(svcs.Out)
	params := svcs.CfgSvc.GetModelParameters(config.PostureName)

	status.Update("Loading model...")
	estimator, err := svcs.InferenceSvc.NewPoseEstimator(params)
	if err != nil {
		status.Error(err)
		procError(svcs.DataSvc, model.GenError("mode_posture",
			err,
			map[string]interface{}{"model": params.ModelPath},
			"error loading pose estimator"))
		return err
	}

	overlay := newOverlay(svcs.CfgSvc)
	last := ""

	return loop{
		name:   config.PostureName,
		policy: model.ParseErrorPolicy(params.ErrorPolicy),
		status: status,
		infer:  estimator.EstimatePose,
		onResult: func(frame *model.Frame, preds []model.Prediction) {
			if _, err := overlay.Draw(frame, preds); err != nil {
				lgr.Logger.Warn("error drawing keypoints", slog.Any("error", err))
			}

			var keypoints []model.Keypoint
			if len(preds) > 0 {
				keypoints = preds[0].Keypoints
			}

			text := render.Feedback(posture.Analyze(keypoints))
			if text == last {
				return
			}
			last = text
			fmt.Fprintf(svcs.Out, "frame %d\n%s\n", frame.Seq, text)
		},
		cleanup: func() {
			saveOverlay(overlay, filepath.Join(svcs.CfgSvc.GetOutputFolder(), "posture.png"))
			estimator.Close()
		},
	}.run(canxCtx, svcs, req)
}

// newOverlay applies the configured font. A font that cannot be loaded is
// logged and the built-in face is kept.
func newOverlay(cfgSvc config.IService, opts ...render.OverlayOption) *render.Overlay {
	overlay := render.NewOverlay(opts...)

	path, size := cfgSvc.GetOverlayFont()
	if path == "" {
		return overlay
	}

	if err := overlay.LoadFont(path, size); err != nil {
		lgr.Logger.Warn("error loading overlay font, using the built-in face",
			slog.String("font", path),
			slog.Any("error", err),
		)
	}
	return overlay
}

func saveOverlay(overlay *render.Overlay, path string) {
	if overlay.Latest() == nil {
		return
	}

	if err := overlay.WritePNG(path); err != nil {
		lgr.Logger.Error("error saving annotated frame", slog.String("path", path), slog.Any("error", err))
		return
	}
	lgr.Logger.Info("annotated frame saved", slog.String("path", path))
}
