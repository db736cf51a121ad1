package mode

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/khaledhikmat/vs-infer/model"
	"github.com/khaledhikmat/vs-infer/render"
	"github.com/khaledhikmat/vs-infer/service/config"
	"github.com/khaledhikmat/vs-infer/service/lgr"
	"golang.org/x/xerrors"
)

// Traffic detects and counts vehicles on a camera or video. Detection errors
// stop the analysis unless the policy says otherwise.
func Traffic(canxCtx context.Context, svcs ServicesFactory, req Request) error {
	if req.Source == model.Upload {
		return xerrors.New("traffic analysis needs a camera or a video")
	}

	status := render.NewStatus(svcs.Out)
	params := svcs.CfgSvc.GetModelParameters(config.TrafficName)
	if len(params.AllowedClasses) == 0 {
		params.AllowedClasses = render.TrafficClasses
	}

	status.Update("Loading model...")
	detector, err := svcs.InferenceSvc.NewDetector(params)
	if err != nil {
		status.Error(err)
		procError(svcs.DataSvc, model.GenError("mode_traffic",
			err,
			map[string]interface{}{"model": params.ModelPath},
			"error loading detector"))
		return err
	}

	overlay := newOverlay(svcs.CfgSvc, render.WithAllowedLabels(params.AllowedClasses...))
	detections := render.NewDetectionLog(svcs.CfgSvc.GetDetectionLogFile(),
		time.Duration(params.CoolDownPeriod)*time.Second,
		params.AllowedClasses...)
	source := sourceName(req)
	printed := false
	var last render.TrafficStats

	return loop{
		name:   config.TrafficName,
		policy: model.ParseErrorPolicy(params.ErrorPolicy),
		status: status,
		infer:  detector.Detect,
		onResult: func(frame *model.Frame, preds []model.Prediction) {
			if _, err := overlay.Draw(frame, preds); err != nil {
				lgr.Logger.Warn("error drawing detections", slog.Any("error", err))
			}

			if _, err := detections.Log(source, frame, preds); err != nil {
				lgr.Logger.Warn("error logging detections", slog.Any("error", err))
			}

			counts := render.CountTraffic(preds)
			if printed && counts == last {
				return
			}
			printed = true
			last = counts
			fmt.Fprintf(svcs.Out, "frame %d  %s\n", frame.Seq, counts)
		},
		cleanup: func() {
			saveOverlay(overlay, filepath.Join(svcs.CfgSvc.GetOutputFolder(), "traffic.png"))
			detections.Close()
			detector.Close()
		},
	}.run(canxCtx, svcs, req)
}
