package opencv

import (
	"context"
	"image"
	"log/slog"

	"github.com/khaledhikmat/vs-infer/model"
	"github.com/khaledhikmat/vs-infer/service/config"
	"github.com/khaledhikmat/vs-infer/service/inference"
	"github.com/khaledhikmat/vs-infer/service/lgr"
	"gocv.io/x/gocv"
	"golang.org/x/xerrors"
)

// OpenPose COCO heatmap order. Neck has no counterpart in the keypoint
// vocabulary and is skipped.
var openPoseParts = []string{
	"nose", "", "rightShoulder", "rightElbow", "rightWrist",
	"leftShoulder", "leftElbow", "leftWrist", "rightHip", "rightKnee",
	"rightAnkle", "leftHip", "leftKnee", "leftAnkle", "rightEye",
	"leftEye", "rightEar", "leftEar",
}

type poseEstimator struct {
	*dnn
	params config.ModelParameters
}

// NewPoseEstimator loads the OpenPose COCO caffe model (prototxt in
// ConfigPath). It estimates a single pose per frame.
func NewPoseEstimator(params config.ModelParameters) (inference.PoseEstimator, error) {
	if err := inference.CheckModel(params.ModelPath); err != nil {
		return nil, err
	}
	if err := inference.CheckModel(params.ConfigPath); err != nil {
		return nil, err
	}

	net, err := loadNet(params.ModelPath, params.ConfigPath)
	if err != nil {
		return nil, err
	}

	lgr.Logger.Info("pose estimator loaded",
		slog.String("model", params.ModelPath),
		slog.String("config", params.ConfigPath),
	)

	return &poseEstimator{
		dnn:    net,
		params: params,
	}, nil
}

func (p *poseEstimator) EstimatePose(ctx context.Context, frame *model.Frame) ([]model.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prob, err := p.forward(frame, 1.0/255.0, image.Pt(p.params.InputWidth, p.params.InputHeight), gocv.NewScalar(0, 0, 0, 0), false)
	if err != nil {
		return nil, err
	}
	defer prob.Close()

	// [1, parts, H, W]
	dims := prob.Size()
	if len(dims) != 4 {
		return nil, xerrors.Errorf("unexpected pose output dims: %v", dims)
	}
	nparts, h, w := dims[1], dims[2], dims[3]

	var keypoints []model.Keypoint
	score := 0.0
	for i := 0; i < nparts && i < len(openPoseParts); i++ {
		if openPoseParts[i] == "" {
			continue
		}

		heatmap, err := prob.FromPtr(h, w, gocv.MatTypeCV32F, 0, i)
		if err != nil {
			continue
		}
		_, maxVal, _, maxLoc := gocv.MinMaxLoc(heatmap)
		heatmap.Close()

		if maxVal < p.params.ConfidenceThreshold {
			continue
		}

		keypoints = append(keypoints, model.Keypoint{
			Part:       openPoseParts[i],
			X:          float64(maxLoc.X) * float64(frame.Width) / float64(w),
			Y:          float64(maxLoc.Y) * float64(frame.Height) / float64(h),
			Confidence: float64(maxVal),
		})
		score += float64(maxVal)
	}

	if len(keypoints) == 0 {
		return nil, nil
	}

	return []model.Prediction{
		{
			Label:      "person",
			Confidence: score / float64(len(keypoints)),
			Keypoints:  keypoints,
		},
	}, nil
}
